package tablemap

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cast"
)

// Sort directions.
const (
	SortAscending  = "asc"
	SortDescending = "desc"
)

// orPrefix marks an operator that is OR-ed with the accumulated filter.
const orPrefix = "|"

// reserved lists the query keywords that are not folded into the where clause.
var reserved = map[string]struct{}{
	"orderBy": {},
	"sort":    {},
	"limit":   {},
	"offset":  {},
	"skip":    {},
	"where":   {},
}

// Condition is one field/operator/value entry of a where clause. An operator
// prefixed with "|" is OR-ed with everything before it; others are AND-ed.
type Condition struct {
	Field    string
	Operator string
	Value    any
}

// Order is one sort key.
type Order struct {
	Field     string
	Direction string
}

// Descending reports whether the direction is "desc", ignoring case.
func (o Order) Descending() bool {
	return strings.EqualFold(o.Direction, SortDescending)
}

// Query is a declarative selection. The where clause is folded left to
// right: it is not a boolean tree.
type Query struct {
	Where   []Condition
	OrderBy []Order
	Skip    int
	Limit   int
}

// NewQuery returns an empty query that selects every record.
func NewQuery() *Query {
	return &Query{}
}

// And appends a condition AND-ed with the accumulated filter.
func (q *Query) And(field, operator string, value any) *Query {
	q.Where = append(q.Where, Condition{Field: field, Operator: operator, Value: value})
	return q
}

// Or appends a condition OR-ed with the accumulated filter.
func (q *Query) Or(field, operator string, value any) *Query {
	q.Where = append(q.Where, Condition{Field: field, Operator: orPrefix + operator, Value: value})
	return q
}

// Equal appends an equality condition.
func (q *Query) Equal(field string, value any) *Query {
	return q.And(field, OpEqual, value)
}

// Sort appends a sort key.
func (q *Query) Sort(field, direction string) *Query {
	q.OrderBy = append(q.OrderBy, Order{Field: field, Direction: direction})
	return q
}

// Page sets the zero-based offset and the maximum result count. A zero limit
// means no limit.
func (q *Query) Page(skip, limit int) *Query {
	q.Skip, q.Limit = skip, limit
	return q
}

// QueryFromMap builds a Query from a loosely-typed description. Keys outside
// the reserved set {orderBy, sort, limit, offset, skip, where} are folded into
// the where clause, as an equality unless the value is itself an operator map.
//
// Map iteration has no order, so fields are folded by name and, within a field,
// plain operators come before "|"-prefixed ones.
func QueryFromMap(m map[string]any) (*Query, error) {
	q := NewQuery()
	where := map[string]any{}

	if raw, ok := m["where"]; ok && raw != nil {
		w, ok := raw.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: where must be a map, got %T", ErrInvalidQuery, raw)
		}
		for field, criteria := range w {
			where[field] = criteria
		}
	}
	for key, value := range m {
		if _, ok := reserved[key]; !ok {
			where[key] = value
		}
	}

	fields := make([]string, 0, len(where))
	for field := range where {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	for _, field := range fields {
		q.Where = append(q.Where, foldCriteria(field, where[field])...)
	}

	orderBy := m["orderBy"]
	if orderBy == nil {
		orderBy = m["sort"]
	}
	orders, err := parseOrderBy(orderBy)
	if err != nil {
		return nil, err
	}
	q.OrderBy = orders

	skip := m["skip"]
	if skip == nil {
		skip = m["offset"]
	}
	if q.Skip, err = cast.ToIntE(skip); skip != nil && err != nil {
		return nil, fmt.Errorf("%w: skip: %v", ErrInvalidQuery, err)
	}
	if limit := m["limit"]; limit != nil {
		if q.Limit, err = cast.ToIntE(limit); err != nil {
			return nil, fmt.Errorf("%w: limit: %v", ErrInvalidQuery, err)
		}
	}
	return q, nil
}

func foldCriteria(field string, criteria any) []Condition {
	ops, ok := criteria.(map[string]any)
	if !ok {
		return []Condition{{Field: field, Operator: OpEqual, Value: criteria}}
	}

	names := make([]string, 0, len(ops))
	for op := range ops {
		names = append(names, op)
	}
	sort.Slice(names, func(i, j int) bool {
		oi, oj := strings.HasPrefix(names[i], orPrefix), strings.HasPrefix(names[j], orPrefix)
		if oi != oj {
			return !oi
		}
		return names[i] < names[j]
	})

	conds := make([]Condition, len(names))
	for i, op := range names {
		conds[i] = Condition{Field: field, Operator: op, Value: ops[op]}
	}
	return conds
}

func parseOrderBy(v any) ([]Order, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case string:
		return []Order{{Field: x, Direction: SortAscending}}, nil
	case []Order:
		return x, nil
	case []string:
		if len(x) == 2 && isDirection(x[1]) {
			return []Order{{Field: x[0], Direction: x[1]}}, nil
		}
		orders := make([]Order, len(x))
		for i, field := range x {
			orders[i] = Order{Field: field, Direction: SortAscending}
		}
		return orders, nil
	case []any:
		var orders []Order
		for i, item := range x {
			switch entry := item.(type) {
			case string:
				orders = append(orders, Order{Field: entry, Direction: SortAscending})
			case []any:
				o, err := orderPair(entry)
				if err != nil {
					return nil, fmt.Errorf("%w: orderBy[%d]: %v", ErrInvalidQuery, i, err)
				}
				orders = append(orders, o)
			case []string:
				o, err := orderPair(toList(entry))
				if err != nil {
					return nil, fmt.Errorf("%w: orderBy[%d]: %v", ErrInvalidQuery, i, err)
				}
				orders = append(orders, o)
			default:
				return nil, fmt.Errorf("%w: orderBy[%d] has type %T", ErrInvalidQuery, i, item)
			}
		}
		return orders, nil
	}
	return nil, fmt.Errorf("%w: orderBy has type %T", ErrInvalidQuery, v)
}

func isDirection(s string) bool {
	return strings.EqualFold(s, SortAscending) || strings.EqualFold(s, SortDescending)
}

func orderPair(pair []any) (Order, error) {
	if len(pair) == 0 || len(pair) > 2 {
		return Order{}, fmt.Errorf("expected [field, direction], got %d elements", len(pair))
	}
	field, err := cast.ToStringE(pair[0])
	if err != nil {
		return Order{}, err
	}
	o := Order{Field: field, Direction: SortAscending}
	if len(pair) == 2 {
		if o.Direction, err = cast.ToStringE(pair[1]); err != nil {
			return Order{}, err
		}
	}
	return o, nil
}

// Plan is a compiled query: the native form handed to a Driver.
type Plan struct {
	Filter  Filter   // nil selects every record
	Sort    []Order  // applied in listed order of precedence
	Skip    int      // applied after filtering and sorting
	Limit   int      // zero means unlimited
	Skipped []string // operators that resolved to no predicate
}

// Compile turns q into a Plan. Each operator is looked up in the given
// layers in order, then in the built-in table; an operator found nowhere, or
// disabled by a nil entry, contributes no predicate.
func Compile(q *Query, layers ...Operators) (*Plan, error) {
	plan := &Plan{}
	if q == nil {
		return plan, nil
	}
	if q.Skip < 0 || q.Limit < 0 {
		return nil, fmt.Errorf("%w: skip and limit must not be negative", ErrInvalidQuery)
	}

	for _, c := range q.Where {
		if c.Field == "" {
			return nil, fmt.Errorf("%w: condition without a field", ErrInvalidQuery)
		}
		op, isOr := strings.CutPrefix(c.Operator, orPrefix)

		fn := lookupOperator(op, layers)
		if fn == nil {
			plan.Skipped = append(plan.Skipped, c.Operator)
			continue
		}
		pred := fn(c.Field, c.Value)
		if pred == nil {
			plan.Skipped = append(plan.Skipped, c.Operator)
			continue
		}

		if plan.Filter == nil {
			plan.Filter = pred
		} else {
			plan.Filter = &Junction{Or: isOr, Left: plan.Filter, Right: pred}
		}
	}

	for _, o := range q.OrderBy {
		if o.Field == "" {
			return nil, fmt.Errorf("%w: sort key without a field", ErrInvalidQuery)
		}
	}
	plan.Sort = append(plan.Sort, q.OrderBy...)
	plan.Skip, plan.Limit = q.Skip, q.Limit
	return plan, nil
}

func lookupOperator(op string, layers []Operators) OperatorFunc {
	for _, layer := range layers {
		if fn, ok := layer[op]; ok {
			return fn
		}
	}
	return builtins[op]
}

// Match reports whether r passes the plan's filter.
func (p *Plan) Match(r Record) bool {
	return p == nil || p.Filter == nil || p.Filter.Match(r)
}

// Order sorts records in place by the plan's sort keys. The first key is
// the primary one; ties fall through to later keys and finally keep their
// input order.
func (p *Plan) Order(records []Record) {
	if p == nil || len(p.Sort) == 0 {
		return
	}
	sort.SliceStable(records, func(i, j int) bool {
		for _, o := range p.Sort {
			c := Compare(records[i][o.Field], records[j][o.Field])
			if c == 0 {
				continue
			}
			if o.Descending() {
				return c > 0
			}
			return c < 0
		}
		return false
	})
}

// Page applies skip and limit to already sorted records.
func (p *Plan) Page(records []Record) []Record {
	if p == nil {
		return records
	}
	if p.Skip > 0 {
		if p.Skip >= len(records) {
			return records[:0]
		}
		records = records[p.Skip:]
	}
	if p.Limit > 0 && p.Limit < len(records) {
		records = records[:p.Limit]
	}
	return records
}

// Apply filters, sorts and paginates records, returning a new slice.
func (p *Plan) Apply(records []Record) []Record {
	out := make([]Record, 0, len(records))
	for _, r := range records {
		if p.Match(r) {
			out = append(out, r)
		}
	}
	p.Order(out)
	return p.Page(out)
}
