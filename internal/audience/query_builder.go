package audience

import (
	"fmt"
	"strings"

	"github.com/lib/pq"

	"storyadmin/internal/models"
)

// DefaultUserPreferences is the notification preference set applied when a
// campaign targeting users does not choose one. An explicit empty set means
// "no users", not "no filter", and is handled by the estimator before any
// query is built.
var DefaultUserPreferences = []string{"news", "inspiration"}

// leadSuppressedStatuses are excluded from every leads query regardless of
// the user-authored filter.
var leadSuppressedStatuses = []string{"unsub", "hard_bounce"}

// QueryBuilder compiles a campaign filter tree into a parameterized SQL
// query against one recipient source. Every user-supplied value travels as a
// $n argument; the only strings spliced into the query text are columns
// resolved through the per-source allowlist. Conditions that cannot be
// compiled (unmapped field, malformed value) are dropped, matching how saved
// filters from older field sets behave.
type QueryBuilder struct {
	source models.RecipientType
	alias  string
	args   []interface{}
	argc   int
}

// QueryOptions carries the non-filter parts of an audience query.
type QueryOptions struct {
	// Preferences narrows the users source by notification preference.
	// nil means the default set; ignored for leads.
	Preferences []string
	// ExcludeIDs removes recipients already marked sent for the campaign.
	ExcludeIDs []string
	// Limit caps a select query; 0 means no cap. Ignored for counts.
	Limit int
}

// NewQueryBuilder creates a builder for one recipient source.
func NewQueryBuilder(source models.RecipientType) *QueryBuilder {
	alias := "a"
	if source == models.RecipientLead {
		alias = "l"
	}
	return &QueryBuilder{source: source, alias: alias}
}

func (qb *QueryBuilder) reset() {
	qb.args = make([]interface{}, 0)
	qb.argc = 1
}

// nextArg registers a query argument and returns its placeholder.
func (qb *QueryBuilder) nextArg(value interface{}) string {
	qb.args = append(qb.args, value)
	placeholder := fmt.Sprintf("$%d", qb.argc)
	qb.argc++
	return placeholder
}

// BuildCountQuery builds the COUNT query used for audience estimation.
func (qb *QueryBuilder) BuildCountQuery(tree *models.FilterNode, opts QueryOptions) (string, []interface{}, error) {
	qb.reset()

	var query string
	switch qb.source {
	case models.RecipientUser:
		query = "SELECT COUNT(*) FROM authors a"
	case models.RecipientLead:
		query = "SELECT COUNT(*) FROM leads l"
	default:
		return "", nil, fmt.Errorf("unknown recipient source: %q", qb.source)
	}

	where, err := qb.buildWhere(tree, opts)
	if err != nil {
		return "", nil, err
	}

	return query + "\nWHERE " + where, qb.args, nil
}

// BuildSelectQuery builds the recipient resolution query used by the batch
// runner: id, email and locale per eligible recipient.
func (qb *QueryBuilder) BuildSelectQuery(tree *models.FilterNode, opts QueryOptions) (string, []interface{}, error) {
	qb.reset()

	var query string
	switch qb.source {
	case models.RecipientUser:
		query = "SELECT a.id, a.email, a.preferred_locale FROM authors a"
	case models.RecipientLead:
		query = "SELECT l.id, l.email, l.language FROM leads l"
	default:
		return "", nil, fmt.Errorf("unknown recipient source: %q", qb.source)
	}

	where, err := qb.buildWhere(tree, opts)
	if err != nil {
		return "", nil, err
	}
	query += "\nWHERE " + where
	query += fmt.Sprintf("\nORDER BY %s.created_at ASC", qb.alias)

	if opts.Limit > 0 {
		query += "\nLIMIT " + qb.nextArg(opts.Limit)
	}

	return query, qb.args, nil
}

// buildWhere assembles default suppression, sent-recipient exclusion and the
// compiled filter tree.
func (qb *QueryBuilder) buildWhere(tree *models.FilterNode, opts QueryOptions) (string, error) {
	conditions := []string{fmt.Sprintf("%s.email IS NOT NULL", qb.alias)}

	switch qb.source {
	case models.RecipientUser:
		prefs := opts.Preferences
		if prefs == nil {
			prefs = DefaultUserPreferences
		}
		conditions = append(conditions,
			fmt.Sprintf("a.notification_preference = ANY(%s)", qb.nextArg(pq.Array(prefs))))
	case models.RecipientLead:
		conditions = append(conditions,
			fmt.Sprintf("NOT (l.email_status = ANY(%s))", qb.nextArg(pq.Array(leadSuppressedStatuses))))
	}

	if len(opts.ExcludeIDs) > 0 {
		conditions = append(conditions,
			fmt.Sprintf("NOT (%s.id = ANY(%s))", qb.alias, qb.nextArg(pq.Array(opts.ExcludeIDs))))
	}

	if tree != nil {
		compiled := qb.buildNode(tree)
		if compiled != "" {
			conditions = append(conditions, "("+compiled+")")
		}
	}

	return strings.Join(conditions, "\n  AND "), nil
}

// buildNode compiles one tree node. Nodes that produce no SQL return "".
func (qb *QueryBuilder) buildNode(node *models.FilterNode) string {
	if node.IsGroup() {
		return qb.buildGroup(node)
	}
	return qb.buildCondition(node)
}

// buildGroup combines the children with AND/OR, parenthesized. Children that
// compile to nothing are omitted; an entirely empty group vanishes.
func (qb *QueryBuilder) buildGroup(group *models.FilterNode) string {
	parts := make([]string, 0, len(group.Conditions))
	for _, child := range group.Conditions {
		sql := qb.buildNode(child)
		if sql == "" {
			continue
		}
		if child.IsGroup() {
			sql = "(" + sql + ")"
		}
		parts = append(parts, sql)
	}
	if len(parts) == 0 {
		return ""
	}

	operator := " AND "
	if group.Logic == models.LogicOr {
		operator = " OR "
	}
	return strings.Join(parts, operator)
}

// buildCondition compiles a single leaf. Unmapped fields and malformed
// values drop the condition rather than erroring.
func (qb *QueryBuilder) buildCondition(cond *models.FilterNode) string {
	column, ok := fieldColumn(qb.source, cond.Field)
	if !ok {
		return ""
	}
	field := qb.alias + "." + column

	switch cond.Operator {
	case models.OpEq:
		if !scalar(cond.Value) {
			return ""
		}
		return fmt.Sprintf("%s = %s", field, qb.nextArg(cond.Value))
	case models.OpNe:
		if !scalar(cond.Value) {
			return ""
		}
		return fmt.Sprintf("%s <> %s", field, qb.nextArg(cond.Value))
	case models.OpGt:
		if !scalar(cond.Value) {
			return ""
		}
		return fmt.Sprintf("%s > %s", field, qb.nextArg(cond.Value))
	case models.OpGte:
		if !scalar(cond.Value) {
			return ""
		}
		return fmt.Sprintf("%s >= %s", field, qb.nextArg(cond.Value))
	case models.OpLt:
		if !scalar(cond.Value) {
			return ""
		}
		return fmt.Sprintf("%s < %s", field, qb.nextArg(cond.Value))
	case models.OpLte:
		if !scalar(cond.Value) {
			return ""
		}
		return fmt.Sprintf("%s <= %s", field, qb.nextArg(cond.Value))

	case models.OpBetween:
		vals, ok := cond.Value.([]interface{})
		if !ok || len(vals) != 2 {
			return ""
		}
		return fmt.Sprintf("%s BETWEEN %s AND %s", field, qb.nextArg(vals[0]), qb.nextArg(vals[1]))

	case models.OpIn:
		vals, ok := cond.Value.([]interface{})
		if !ok || len(vals) == 0 {
			return ""
		}
		return fmt.Sprintf("%s = ANY(%s)", field, qb.nextArg(pq.Array(vals)))
	case models.OpNotIn:
		vals, ok := cond.Value.([]interface{})
		if !ok || len(vals) == 0 {
			return ""
		}
		return fmt.Sprintf("NOT (%s = ANY(%s))", field, qb.nextArg(pq.Array(vals)))

	case models.OpIsNull:
		if isNullWanted(cond.Value) {
			return fmt.Sprintf("%s IS NULL", field)
		}
		return fmt.Sprintf("%s IS NOT NULL", field)
	}

	return ""
}

// scalar reports whether v is usable as a single comparison argument.
func scalar(v interface{}) bool {
	switch v.(type) {
	case nil, []interface{}, map[string]interface{}:
		return false
	}
	return true
}

// isNullWanted interprets the is_null operand: true or a missing value mean
// IS NULL, anything else means IS NOT NULL.
func isNullWanted(v interface{}) bool {
	switch val := v.(type) {
	case nil:
		return true
	case bool:
		return val
	}
	return false
}
