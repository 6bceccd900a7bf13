package models

import "fmt"

// FilterLogic joins the children of a filter group.
type FilterLogic string

const (
	LogicAnd FilterLogic = "and"
	LogicOr  FilterLogic = "or"
)

// FilterOperator is the comparison applied by a filter condition.
type FilterOperator string

const (
	OpEq      FilterOperator = "eq"
	OpNe      FilterOperator = "ne"
	OpGt      FilterOperator = "gt"
	OpGte     FilterOperator = "gte"
	OpLt      FilterOperator = "lt"
	OpLte     FilterOperator = "lte"
	OpBetween FilterOperator = "between"
	OpIn      FilterOperator = "in"
	OpNotIn   FilterOperator = "not_in"
	OpIsNull  FilterOperator = "is_null"
)

var validOperators = map[FilterOperator]bool{
	OpEq: true, OpNe: true, OpGt: true, OpGte: true, OpLt: true, OpLte: true,
	OpBetween: true, OpIn: true, OpNotIn: true, OpIsNull: true,
}

// FilterNode is one node of a user-composed audience filter: either a group
// (Logic set, combining Conditions) or a condition leaf (Field and Operator
// set). The two forms are distinguished by which fields are populated, which
// matches the JSON shape the admin UI produces.
type FilterNode struct {
	// Group form
	Logic      FilterLogic   `json:"logic,omitempty"`
	Conditions []*FilterNode `json:"conditions,omitempty"`

	// Condition form
	Field    string         `json:"field,omitempty"`
	Operator FilterOperator `json:"operator,omitempty"`
	Value    interface{}    `json:"value,omitempty"`
}

// IsGroup reports whether the node is a group rather than a condition leaf.
func (n *FilterNode) IsGroup() bool {
	return n.Logic != "" || len(n.Conditions) > 0
}

// Validate checks the structural shape of the tree and rejects conditions
// referencing fields outside the allowlist reported by knownField. Operator
// value arity is checked here so malformed trees are refused at the API
// boundary instead of silently compiling to nothing.
func (n *FilterNode) Validate(knownField func(string) bool) error {
	if n == nil {
		return nil
	}
	if n.IsGroup() {
		if n.Logic != LogicAnd && n.Logic != LogicOr {
			return fmt.Errorf("invalid group logic: %q", n.Logic)
		}
		if len(n.Conditions) == 0 {
			return fmt.Errorf("filter group has no conditions")
		}
		for _, child := range n.Conditions {
			if err := child.Validate(knownField); err != nil {
				return err
			}
		}
		return nil
	}

	if n.Field == "" {
		return fmt.Errorf("filter condition is missing a field")
	}
	if !validOperators[n.Operator] {
		return fmt.Errorf("invalid filter operator: %q", n.Operator)
	}
	if knownField != nil && !knownField(n.Field) {
		return fmt.Errorf("unknown filter field: %q", n.Field)
	}

	switch n.Operator {
	case OpBetween:
		vals, ok := n.Value.([]interface{})
		if !ok || len(vals) != 2 {
			return fmt.Errorf("operator %q requires exactly two values", n.Operator)
		}
	case OpIn, OpNotIn:
		vals, ok := n.Value.([]interface{})
		if !ok || len(vals) == 0 {
			return fmt.Errorf("operator %q requires a non-empty array value", n.Operator)
		}
	case OpIsNull:
		switch n.Value.(type) {
		case nil, bool:
		default:
			return fmt.Errorf("operator %q requires a boolean value", n.Operator)
		}
	default:
		if _, isArray := n.Value.([]interface{}); isArray {
			return fmt.Errorf("operator %q does not accept an array value", n.Operator)
		}
		if n.Value == nil {
			return fmt.Errorf("operator %q requires a value", n.Operator)
		}
	}
	return nil
}
