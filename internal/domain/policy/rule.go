package policy

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// RuleType identifies a built-in rule evaluator
type RuleType string

const (
	RuleTypeThreshold       RuleType = "threshold"
	RuleTypeVendorAllowlist RuleType = "vendor_allowlist"
	RuleTypeBalanced        RuleType = "balanced"
	RuleTypeTaxSanity       RuleType = "tax_sanity"
	RuleTypeEntryCount      RuleType = "entry_count"
)

// ActionOnFail is what a failing rule contributes to the overall decision
type ActionOnFail string

const (
	ActionAutoReject    ActionOnFail = "auto_reject"
	ActionRequireReview ActionOnFail = "require_review"
	ActionWarnOnly      ActionOnFail = "warn_only"
)

// ThresholdConfig fails proposals whose total exceeds MaxAmount in Currency.
// Amounts are configured as strings and parsed to decimals at load time.
type ThresholdConfig struct {
	MaxAmount string `mapstructure:"max_amount"`
	Currency  string `mapstructure:"currency"`

	maxAmount decimal.Decimal
}

// BalancedConfig fails proposals whose debit and credit totals diverge by
// more than the tolerance
type BalancedConfig struct {
	Tolerance string `mapstructure:"tolerance"`

	tolerance decimal.Decimal
}

// EntryCountConfig bounds the number of journal lines
type EntryCountConfig struct {
	Min int `mapstructure:"min"`
	Max int `mapstructure:"max"`
}

// TaxSanityConfig bounds the implied VAT rate of tax lines
type TaxSanityConfig struct {
	MinRate float64 `mapstructure:"min_rate"`
	MaxRate float64 `mapstructure:"max_rate"`
}

// VendorAllowlistConfig restricts vendors by name and, when configured on an
// entry, tax id
type VendorAllowlistConfig struct {
	AllowedVendors []AllowedVendor `mapstructure:"allowed_vendors"`
}

// AllowedVendor is one allowlist entry. An empty TaxID matches any tax id.
type AllowedVendor struct {
	Name  string `mapstructure:"name"`
	TaxID string `mapstructure:"tax_id"`
}

// Rule is one declarative policy check: a tagged variant keyed by Type, with
// exactly one config populated. Rules are configuration, not transactional
// records; they are validated at load time, never at evaluation time.
type Rule struct {
	Name         string       `mapstructure:"name"`
	Type         RuleType     `mapstructure:"type"`
	Priority     int          `mapstructure:"priority"`
	ActionOnFail ActionOnFail `mapstructure:"action_on_fail"`
	Active       bool         `mapstructure:"active"`

	Threshold       *ThresholdConfig       `mapstructure:"threshold,omitempty"`
	Balanced        *BalancedConfig        `mapstructure:"balanced,omitempty"`
	EntryCount      *EntryCountConfig      `mapstructure:"entry_count,omitempty"`
	TaxSanity       *TaxSanityConfig       `mapstructure:"tax_sanity,omitempty"`
	VendorAllowlist *VendorAllowlistConfig `mapstructure:"vendor_allowlist,omitempty"`
}

// Validate checks the tagged variant matches the rule type and parses decimal
// fields, caching them for evaluation
func (r *Rule) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("rule has no name")
	}
	switch r.ActionOnFail {
	case ActionAutoReject, ActionRequireReview, ActionWarnOnly:
	default:
		return fmt.Errorf("rule %s: unknown action_on_fail %q", r.Name, r.ActionOnFail)
	}

	switch r.Type {
	case RuleTypeThreshold:
		if r.Threshold == nil {
			return fmt.Errorf("rule %s: threshold config missing", r.Name)
		}
		amount, err := decimal.NewFromString(r.Threshold.MaxAmount)
		if err != nil {
			return fmt.Errorf("rule %s: invalid max_amount %q: %w", r.Name, r.Threshold.MaxAmount, err)
		}
		if !amount.IsPositive() {
			return fmt.Errorf("rule %s: max_amount must be positive", r.Name)
		}
		r.Threshold.maxAmount = amount
	case RuleTypeBalanced:
		if r.Balanced == nil {
			return fmt.Errorf("rule %s: balanced config missing", r.Name)
		}
		tolerance, err := decimal.NewFromString(r.Balanced.Tolerance)
		if err != nil {
			return fmt.Errorf("rule %s: invalid tolerance %q: %w", r.Name, r.Balanced.Tolerance, err)
		}
		if tolerance.IsNegative() {
			return fmt.Errorf("rule %s: tolerance must not be negative", r.Name)
		}
		r.Balanced.tolerance = tolerance
	case RuleTypeEntryCount:
		if r.EntryCount == nil {
			return fmt.Errorf("rule %s: entry_count config missing", r.Name)
		}
		if r.EntryCount.Min < 0 || r.EntryCount.Max < r.EntryCount.Min {
			return fmt.Errorf("rule %s: entry_count bounds invalid (min=%d max=%d)", r.Name, r.EntryCount.Min, r.EntryCount.Max)
		}
	case RuleTypeTaxSanity:
		if r.TaxSanity == nil {
			return fmt.Errorf("rule %s: tax_sanity config missing", r.Name)
		}
		if r.TaxSanity.MinRate < 0 || r.TaxSanity.MaxRate < r.TaxSanity.MinRate {
			return fmt.Errorf("rule %s: tax_sanity bounds invalid (min=%f max=%f)", r.Name, r.TaxSanity.MinRate, r.TaxSanity.MaxRate)
		}
	case RuleTypeVendorAllowlist:
		if r.VendorAllowlist == nil {
			return fmt.Errorf("rule %s: vendor_allowlist config missing", r.Name)
		}
		if len(r.VendorAllowlist.AllowedVendors) == 0 {
			return fmt.Errorf("rule %s: allowed_vendors is empty", r.Name)
		}
	default:
		return fmt.Errorf("rule %s: unknown rule type %q", r.Name, r.Type)
	}
	return nil
}
