package policy

import (
	"fmt"

	"github.com/spf13/viper"
)

// LoadRules reads the declarative rule set from a YAML file under a top-level
// "rules" key and builds a validated engine from it. Any config error is
// reported at load time so evaluation never has to deal with a half-formed rule.
func LoadRules(path string) (*Engine, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read policy rules file %s: %w", path, err)
	}

	var rules []Rule
	if err := v.UnmarshalKey("rules", &rules); err != nil {
		return nil, fmt.Errorf("failed to parse policy rules file %s: %w", path, err)
	}
	if len(rules) == 0 {
		return nil, fmt.Errorf("policy rules file %s defines no rules", path)
	}

	return NewEngine(rules)
}
