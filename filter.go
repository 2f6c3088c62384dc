package tablemap

import (
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
)

// Built-in operator names.
const (
	OpEqual          = "=="
	OpStrictEqual    = "==="
	OpNotEqual       = "!="
	OpStrictNotEqual = "!=="
	OpGreater        = ">"
	OpGreaterEqual   = ">="
	OpLess           = "<"
	OpLessEqual      = "<="
	OpIn             = "in"
	OpNotIn          = "notIn"
	OpContains       = "contains"
	OpNotContains    = "notContains"
	OpIsectEmpty     = "isectEmpty"
	OpIsectNotEmpty  = "isectNotEmpty"
)

// maxInOperands is the DynamoDB limit on operands of a single IN comparison.
const maxInOperands = 100

// Filter is a compiled boolean test over a record.
type Filter interface {
	// Match evaluates the filter against r.
	Match(r Record) bool
	// Condition renders the filter as a DynamoDB condition selecting a
	// superset of the matching records. ok is false when no such rendering
	// exists; callers must still apply Match to the returned items.
	Condition() (cond expression.ConditionBuilder, ok bool)
}

// OperatorFunc builds the filter for one field/operator/value triple.
type OperatorFunc func(field string, value any) Filter

// Operators maps operator names to their builders. A nil entry disables an
// operator for the layer that declares it.
type Operators map[string]OperatorFunc

func builtin(op string) OperatorFunc {
	return func(field string, value any) Filter {
		return &Predicate{Field: field, Operator: op, Value: value}
	}
}

var builtins = Operators{
	OpEqual:          builtin(OpEqual),
	OpStrictEqual:    builtin(OpEqual),
	OpNotEqual:       builtin(OpNotEqual),
	OpStrictNotEqual: builtin(OpNotEqual),
	OpGreater:        builtin(OpGreater),
	OpGreaterEqual:   builtin(OpGreaterEqual),
	OpLess:           builtin(OpLess),
	OpLessEqual:      builtin(OpLessEqual),
	OpIn:             builtin(OpIn),
	OpNotIn:          builtin(OpNotIn),
	OpContains:       builtin(OpContains),
	OpNotContains:    builtin(OpNotContains),
	OpIsectEmpty:     builtin(OpIsectEmpty),
	OpIsectNotEmpty:  builtin(OpIsectNotEmpty),
}

// DefaultOperators returns a copy of the built-in operator table.
func DefaultOperators() Operators {
	ops := make(Operators, len(builtins))
	for k, v := range builtins {
		ops[k] = v
	}
	return ops
}

// Predicate tests a single field with a built-in operator.
type Predicate struct {
	Field    string
	Operator string
	Value    any
}

// Match implements Filter. Scalar operators read a missing field as nil and
// list operators read it as an empty list.
func (p *Predicate) Match(r Record) bool {
	v := r[p.Field]

	switch p.Operator {
	case OpEqual, OpStrictEqual:
		return Equal(v, p.Value)
	case OpNotEqual, OpStrictNotEqual:
		return !Equal(v, p.Value)
	case OpGreater:
		return Compare(v, p.Value) > 0
	case OpGreaterEqual:
		return Compare(v, p.Value) >= 0
	case OpLess:
		return Compare(v, p.Value) < 0
	case OpLessEqual:
		return Compare(v, p.Value) <= 0
	case OpIn:
		return containsValue(toList(p.Value), v)
	case OpNotIn:
		return !containsValue(toList(p.Value), v)
	case OpContains:
		return containsValue(toList(v), p.Value)
	case OpNotContains:
		return !containsValue(toList(v), p.Value)
	case OpIsectEmpty:
		return !intersects(toList(v), toList(p.Value))
	case OpIsectNotEmpty:
		return intersects(toList(v), toList(p.Value))
	}
	return false
}

func never(name expression.NameBuilder) expression.ConditionBuilder {
	return expression.AttributeExists(name).And(expression.AttributeNotExists(name))
}

func isNull(name expression.NameBuilder) expression.ConditionBuilder {
	return expression.AttributeNotExists(name).Or(expression.AttributeType(name, expression.Null))
}

// Condition implements Filter.
func (p *Predicate) Condition() (expression.ConditionBuilder, bool) {
	name := expression.Name(p.Field)

	switch p.Operator {
	case OpEqual, OpStrictEqual:
		if p.Value == nil {
			return isNull(name), true
		}
		return name.Equal(expression.Value(p.Value)), true
	case OpNotEqual, OpStrictNotEqual:
		if p.Value == nil {
			return expression.Not(isNull(name)), true
		}
		return expression.AttributeNotExists(name).Or(name.NotEqual(expression.Value(p.Value))), true
	case OpGreater, OpGreaterEqual, OpLess, OpLessEqual:
		return p.compareCondition(name)
	case OpIn:
		return inCondition(name, toList(p.Value))
	case OpNotIn:
		cond, ok := inCondition(name, toList(p.Value))
		if !ok {
			return cond, false
		}
		return expression.Not(cond), true
	case OpContains:
		s, ok := p.Value.(string)
		if !ok {
			return expression.ConditionBuilder{}, false
		}
		return expression.Contains(name, s), true
	case OpIsectNotEmpty:
		values := toList(p.Value)
		if len(values) == 0 {
			return never(name), true
		}
		conds := make([]expression.ConditionBuilder, 0, len(values))
		for _, v := range values {
			s, ok := v.(string)
			if !ok {
				return expression.ConditionBuilder{}, false
			}
			conds = append(conds, expression.Contains(name, s))
		}
		return orAll(conds), true
	}

	// notContains and isectEmpty have no exact rendering: contains also
	// matches substrings, so its negation would drop matching records.
	return expression.ConditionBuilder{}, false
}

func (p *Predicate) compareCondition(name expression.NameBuilder) (expression.ConditionBuilder, bool) {
	if p.Value == nil {
		switch p.Operator {
		case OpGreater:
			return expression.Not(isNull(name)), true
		case OpLess:
			return never(name), true
		case OpLessEqual:
			return isNull(name), true
		default:
			return expression.AttributeNotExists(name).Or(expression.AttributeExists(name)), true
		}
	}

	value := expression.Value(p.Value)
	switch p.Operator {
	case OpGreater:
		return name.GreaterThan(value), true
	case OpGreaterEqual:
		return name.GreaterThanEqual(value), true
	case OpLess:
		return isNull(name).Or(name.LessThan(value)), true
	default:
		return isNull(name).Or(name.LessThanEqual(value)), true
	}
}

func inCondition(name expression.NameBuilder, values []any) (expression.ConditionBuilder, bool) {
	var (
		conds    []expression.ConditionBuilder
		operands []expression.OperandBuilder
		hasNil   bool
	)
	for _, v := range dedupeAll(values) {
		if v == nil {
			hasNil = true
			continue
		}
		operands = append(operands, expression.Value(v))
	}

	for i := 0; i < len(operands); i += maxInOperands {
		end := min(i+maxInOperands, len(operands))
		chunk := operands[i:end]
		conds = append(conds, name.In(chunk[0], chunk[1:]...))
	}
	if hasNil {
		conds = append(conds, isNull(name))
	}
	if len(conds) == 0 {
		return never(name), true
	}
	return orAll(conds), true
}

// dedupeAll is dedupe without dropping nil.
func dedupeAll(values []any) []any {
	out := dedupe(values)
	for _, v := range values {
		if v == nil {
			return append(out, nil)
		}
	}
	return out
}

func orAll(conds []expression.ConditionBuilder) expression.ConditionBuilder {
	if len(conds) == 1 {
		return conds[0]
	}
	return conds[0].Or(conds[1], conds[2:]...)
}

// Junction combines the accumulated filter with the next predicate.
type Junction struct {
	Or    bool
	Left  Filter
	Right Filter
}

// Match implements Filter.
func (j *Junction) Match(r Record) bool {
	if j.Or {
		return j.Left.Match(r) || j.Right.Match(r)
	}
	return j.Left.Match(r) && j.Right.Match(r)
}

// Condition implements Filter. A conjunction with one renderable side still
// narrows the scan; a disjunction needs both sides.
func (j *Junction) Condition() (expression.ConditionBuilder, bool) {
	left, lok := j.Left.Condition()
	right, rok := j.Right.Condition()

	if j.Or {
		if !lok || !rok {
			return expression.ConditionBuilder{}, false
		}
		return left.Or(right), true
	}

	switch {
	case lok && rok:
		return left.And(right), true
	case lok:
		return left, true
	case rok:
		return right, true
	}
	return expression.ConditionBuilder{}, false
}
