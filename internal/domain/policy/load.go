package policy

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"github.com/tradeflow/approval-engine/internal/domain/document"
)

// ceilingUnbounded marks the top tier that covers any amount.
const ceilingUnbounded = "unbounded"

// File shape of the policy configuration, loaded once at startup:
//
//	kinds:
//	  trade_spend:
//	    sla_hours: 48
//	    levels:
//	      - level: kam
//	        ceiling: 5000
//	      - level: board
//	        ceiling: unbounded
//	    extra_rules:
//	      - when: {field: spendType, operator: eq, value: cash_coop}
//	        require_level: finance
//	auto_approval_rules:
//	  - {level: kam, kind: trade_spend, ceiling: 1000}
type policyFile struct {
	Kinds             map[string]kindConfig `mapstructure:"kinds"`
	AutoApprovalRules []autoApprovalConfig  `mapstructure:"auto_approval_rules"`
}

type kindConfig struct {
	SLAHours   int               `mapstructure:"sla_hours"`
	Levels     []levelConfig     `mapstructure:"levels"`
	ExtraRules []extraRuleConfig `mapstructure:"extra_rules"`
}

type levelConfig struct {
	Level   string      `mapstructure:"level"`
	Ceiling interface{} `mapstructure:"ceiling"`
}

type extraRuleConfig struct {
	When         conditionConfig `mapstructure:"when"`
	RequireLevel string          `mapstructure:"require_level"`
}

type conditionConfig struct {
	Field    string      `mapstructure:"field"`
	Operator string      `mapstructure:"operator"`
	Value    interface{} `mapstructure:"value"`
}

type autoApprovalConfig struct {
	Level   string      `mapstructure:"level"`
	Kind    string      `mapstructure:"kind"`
	Ceiling interface{} `mapstructure:"ceiling"`
}

// Load reads the policy file and builds the immutable registry and
// auto-approval evaluator.
func Load(path string) (*Registry, *Evaluator, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return nil, nil, fmt.Errorf("%w: read policy file: %v", document.ErrConfiguration, err)
	}

	var file policyFile
	if err := v.Unmarshal(&file); err != nil {
		return nil, nil, fmt.Errorf("%w: decode policy file: %v", document.ErrConfiguration, err)
	}

	policies := make([]WorkflowPolicy, 0, len(file.Kinds))
	for kind, kc := range file.Kinds {
		p := WorkflowPolicy{
			Kind:     document.Kind(kind),
			SLAHours: kc.SLAHours,
		}
		for _, lc := range kc.Levels {
			tier, err := tierFromConfig(lc)
			if err != nil {
				return nil, nil, err
			}
			p.OrderedLevels = append(p.OrderedLevels, tier)
		}
		for _, rc := range kc.ExtraRules {
			p.ExtraRules = append(p.ExtraRules, CriteriaRule{
				When: Condition{
					Field:    rc.When.Field,
					Operator: Operator(rc.When.Operator),
					Value:    rc.When.Value,
				},
				RequireLevel: rc.RequireLevel,
			})
		}
		policies = append(policies, p)
	}

	registry, err := NewRegistry(policies)
	if err != nil {
		return nil, nil, err
	}

	rules := make([]AutoApprovalRule, 0, len(file.AutoApprovalRules))
	for _, rc := range file.AutoApprovalRules {
		ceiling, unbounded, err := parseCeiling(rc.Ceiling)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: auto-approval rule %s/%s: %v", document.ErrConfiguration, rc.Kind, rc.Level, err)
		}
		if unbounded {
			return nil, nil, fmt.Errorf("%w: auto-approval rule %s/%s cannot be unbounded", document.ErrConfiguration, rc.Kind, rc.Level)
		}
		rules = append(rules, AutoApprovalRule{
			Level:   rc.Level,
			Kind:    document.Kind(rc.Kind),
			Ceiling: ceiling,
		})
	}

	evaluator, err := NewEvaluator(rules)
	if err != nil {
		return nil, nil, err
	}

	return registry, evaluator, nil
}

func tierFromConfig(lc levelConfig) (LevelTier, error) {
	ceiling, unbounded, err := parseCeiling(lc.Ceiling)
	if err != nil {
		return LevelTier{}, fmt.Errorf("%w: level %s: %v", document.ErrConfiguration, lc.Level, err)
	}
	return LevelTier{Level: lc.Level, Ceiling: ceiling, Unbounded: unbounded}, nil
}

// parseCeiling accepts a number, a numeric string, or the literal
// "unbounded".
func parseCeiling(v interface{}) (decimal.Decimal, bool, error) {
	if s, ok := v.(string); ok && s == ceilingUnbounded {
		return decimal.Decimal{}, true, nil
	}
	if v == nil {
		return decimal.Decimal{}, false, fmt.Errorf("missing ceiling")
	}
	d, ok := toDecimal(v)
	if !ok {
		return decimal.Decimal{}, false, fmt.Errorf("ceiling %v is not a number", v)
	}
	return d, false, nil
}
