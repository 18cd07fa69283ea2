package policy

import (
	"fmt"
	"sort"

	"github.com/doculedger-governance/internal/domain/proposal"
	"github.com/shopspring/decimal"
)

// Outcome is the aggregate policy decision for a proposal
type Outcome string

const (
	OutcomeApprove Outcome = "approve"
	OutcomeReview  Outcome = "review"
	OutcomeReject  Outcome = "reject"
)

// RuleResult is the verdict of one rule evaluation. An evaluator error is
// recorded as that rule's failure, never as a crash of the whole run.
type RuleResult struct {
	Rule   string       `json:"rule"`
	Type   RuleType     `json:"type"`
	Action ActionOnFail `json:"action_on_fail"`
	Passed bool         `json:"passed"`
	Detail string       `json:"detail,omitempty"`
}

// Result aggregates all rule verdicts into an overall decision
type Result struct {
	Overall Outcome      `json:"overall"`
	Passed  []RuleResult `json:"passed,omitempty"`
	Failed  []RuleResult `json:"failed,omitempty"`
	Warned  []RuleResult `json:"warned,omitempty"`
}

// Engine evaluates proposals against a fixed, validated rule set. Evaluate is
// a pure function of the proposal and the rules: no clock, no network, no
// store. Identical inputs always reproduce the identical result, so decisions
// can be replayed from audit logs alone.
type Engine struct {
	rules []Rule
}

// NewEngine validates each rule and orders them by ascending priority.
// Inactive rules are dropped up front.
func NewEngine(rules []Rule) (*Engine, error) {
	active := make([]Rule, 0, len(rules))
	for i := range rules {
		if err := rules[i].Validate(); err != nil {
			return nil, fmt.Errorf("invalid policy rule: %w", err)
		}
		if rules[i].Active {
			active = append(active, rules[i])
		}
	}
	sort.SliceStable(active, func(i, j int) bool {
		return active[i].Priority < active[j].Priority
	})
	return &Engine{rules: active}, nil
}

// Rules returns the active rule set in evaluation order
func (e *Engine) Rules() []Rule {
	return e.rules
}

// Evaluate runs every active rule independently and aggregates:
// any failed auto_reject rule forces reject; otherwise any failed
// require_review rule forces review; otherwise approve. warn_only failures
// are recorded for audit and never change the outcome. All rules always run,
// so diagnostics are complete even after a reject.
func (e *Engine) Evaluate(p *proposal.Proposal) Result {
	result := Result{Overall: OutcomeApprove}

	for _, rule := range e.rules {
		rr := evaluateRule(rule, p)

		if rr.Passed {
			result.Passed = append(result.Passed, rr)
			continue
		}

		switch rule.ActionOnFail {
		case ActionAutoReject:
			result.Failed = append(result.Failed, rr)
			result.Overall = OutcomeReject
		case ActionRequireReview:
			result.Failed = append(result.Failed, rr)
			if result.Overall != OutcomeReject {
				result.Overall = OutcomeReview
			}
		case ActionWarnOnly:
			result.Warned = append(result.Warned, rr)
		}
	}

	return result
}

func evaluateRule(rule Rule, p *proposal.Proposal) RuleResult {
	rr := RuleResult{Rule: rule.Name, Type: rule.Type, Action: rule.ActionOnFail}

	passed, detail := func() (ok bool, detail string) {
		// A panicking evaluator fails its own rule only.
		defer func() {
			if r := recover(); r != nil {
				ok = false
				detail = fmt.Sprintf("rule evaluator panicked: %v", r)
			}
		}()

		switch rule.Type {
		case RuleTypeThreshold:
			return evalThreshold(rule.Threshold, p)
		case RuleTypeBalanced:
			return evalBalanced(rule.Balanced, p)
		case RuleTypeEntryCount:
			return evalEntryCount(rule.EntryCount, p)
		case RuleTypeTaxSanity:
			return evalTaxSanity(rule.TaxSanity, p)
		case RuleTypeVendorAllowlist:
			return evalVendorAllowlist(rule.VendorAllowlist, p)
		}
		return false, "no evaluator for rule type " + string(rule.Type)
	}()

	rr.Passed = passed
	rr.Detail = detail
	return rr
}

func evalThreshold(cfg *ThresholdConfig, p *proposal.Proposal) (bool, string) {
	if cfg.Currency != "" && p.Currency != "" && cfg.Currency != p.Currency {
		return true, fmt.Sprintf("currency %s not covered by threshold (%s)", p.Currency, cfg.Currency)
	}
	total := p.TotalAmount()
	if total.GreaterThan(cfg.maxAmount) {
		return false, fmt.Sprintf("total %s exceeds max %s", total.String(), cfg.maxAmount.String())
	}
	return true, ""
}

func evalBalanced(cfg *BalancedConfig, p *proposal.Proposal) (bool, string) {
	diff := p.DebitTotal().Sub(p.CreditTotal()).Abs()
	if diff.GreaterThan(cfg.tolerance) {
		return false, fmt.Sprintf("debit/credit imbalance %s exceeds tolerance %s", diff.String(), cfg.tolerance.String())
	}
	return true, ""
}

func evalEntryCount(cfg *EntryCountConfig, p *proposal.Proposal) (bool, string) {
	n := len(p.Lines)
	if n < cfg.Min || n > cfg.Max {
		return false, fmt.Sprintf("entry count %d outside [%d, %d]", n, cfg.Min, cfg.Max)
	}
	return true, ""
}

func evalTaxSanity(cfg *TaxSanityConfig, p *proposal.Proposal) (bool, string) {
	minRate := decimal.NewFromFloat(cfg.MinRate)
	maxRate := decimal.NewFromFloat(cfg.MaxRate)
	for _, line := range p.Lines {
		if !line.IsTaxLine() {
			continue
		}
		implied := line.Amount().Div(line.TaxBase)
		if implied.LessThan(minRate) || implied.GreaterThan(maxRate) {
			return false, fmt.Sprintf("implied tax rate %s on account %s outside [%f, %f]",
				implied.StringFixed(4), line.Account, cfg.MinRate, cfg.MaxRate)
		}
	}
	return true, ""
}

func evalVendorAllowlist(cfg *VendorAllowlistConfig, p *proposal.Proposal) (bool, string) {
	for _, allowed := range cfg.AllowedVendors {
		if allowed.Name != p.Vendor.Name {
			continue
		}
		if allowed.TaxID == "" || allowed.TaxID == p.Vendor.TaxID {
			return true, ""
		}
	}
	return false, fmt.Sprintf("vendor %q is not in the allowlist", p.Vendor.Name)
}
