package policy

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/tradeflow/approval-engine/internal/domain/document"
)

// Operator compares a snapshot field against a configured value
type Operator string

const (
	OpEq  Operator = "eq"
	OpNeq Operator = "neq"
	OpGt  Operator = "gt"
	OpGte Operator = "gte"
	OpLt  Operator = "lt"
	OpLte Operator = "lte"
)

var validOperators = map[Operator]bool{
	OpEq:  true,
	OpNeq: true,
	OpGt:  true,
	OpGte: true,
	OpLt:  true,
	OpLte: true,
}

// amountField addresses the document amount instead of a criteria flag.
const amountField = "amount"

// Condition is a single predicate over a document snapshot.
type Condition struct {
	Field    string
	Operator Operator
	Value    interface{}
}

// Validate checks the condition for configuration defects.
func (c Condition) Validate() error {
	if c.Field == "" {
		return fmt.Errorf("%w: criteria condition without a field", document.ErrConfiguration)
	}
	if !validOperators[c.Operator] {
		return fmt.Errorf("%w: unknown criteria operator %q", document.ErrConfiguration, c.Operator)
	}
	if c.Value == nil {
		return fmt.Errorf("%w: criteria condition on %s without a value", document.ErrConfiguration, c.Field)
	}
	if c.Operator != OpEq && c.Operator != OpNeq {
		if _, ok := toDecimal(c.Value); !ok {
			return fmt.Errorf("%w: operator %s on %s requires a numeric value", document.ErrConfiguration, c.Operator, c.Field)
		}
	}
	return nil
}

// Matches evaluates the condition against a snapshot. A missing field
// never matches.
func (c Condition) Matches(snap document.Snapshot) bool {
	var actual interface{}
	if c.Field == amountField {
		actual = snap.Amount
	} else {
		var ok bool
		actual, ok = snap.CriteriaFlags[c.Field]
		if !ok {
			return false
		}
	}

	actualNum, actualIsNum := toDecimal(actual)
	wantNum, wantIsNum := toDecimal(c.Value)

	switch c.Operator {
	case OpEq:
		if actualIsNum && wantIsNum {
			return actualNum.Equal(wantNum)
		}
		return fmt.Sprint(actual) == fmt.Sprint(c.Value)
	case OpNeq:
		if actualIsNum && wantIsNum {
			return !actualNum.Equal(wantNum)
		}
		return fmt.Sprint(actual) != fmt.Sprint(c.Value)
	case OpGt:
		return actualIsNum && wantIsNum && actualNum.GreaterThan(wantNum)
	case OpGte:
		return actualIsNum && wantIsNum && actualNum.GreaterThanOrEqual(wantNum)
	case OpLt:
		return actualIsNum && wantIsNum && actualNum.LessThan(wantNum)
	case OpLte:
		return actualIsNum && wantIsNum && actualNum.LessThanOrEqual(wantNum)
	}
	return false
}

// toDecimal converts the value types that appear in criteria flags and
// decoded yaml into a decimal for comparison.
func toDecimal(v interface{}) (decimal.Decimal, bool) {
	switch n := v.(type) {
	case decimal.Decimal:
		return n, true
	case int:
		return decimal.NewFromInt(int64(n)), true
	case int64:
		return decimal.NewFromInt(n), true
	case float32:
		return decimal.NewFromFloat32(n), true
	case float64:
		return decimal.NewFromFloat(n), true
	case string:
		if d, err := decimal.NewFromString(n); err == nil {
			return d, true
		}
	case fmt.Stringer:
		if d, err := decimal.NewFromString(n.String()); err == nil {
			return d, true
		}
	}
	// json.Number and friends
	if n, ok := v.(interface{ Float64() (float64, error) }); ok {
		if f, err := n.Float64(); err == nil {
			return decimal.NewFromFloat(f), true
		}
	}
	return decimal.Decimal{}, false
}
