package audience

import (
	"strings"
	"testing"

	"storyadmin/internal/models"
)

func TestBuildCountQueryUsersDefaults(t *testing.T) {
	qb := NewQueryBuilder(models.RecipientUser)

	query, args, err := qb.BuildCountQuery(nil, QueryOptions{})
	if err != nil {
		t.Fatalf("BuildCountQuery failed: %v", err)
	}

	if !strings.HasPrefix(query, "SELECT COUNT(*) FROM authors a") {
		t.Errorf("Unexpected query prefix: %q", query)
	}
	if !strings.Contains(query, "a.email IS NOT NULL") {
		t.Error("Expected email suppression clause")
	}
	if !strings.Contains(query, "a.notification_preference = ANY($1)") {
		t.Error("Expected default preference clause")
	}
	if len(args) != 1 {
		t.Errorf("Expected 1 argument (preference array), got %d", len(args))
	}
}

func TestBuildCountQueryLeadsSuppression(t *testing.T) {
	qb := NewQueryBuilder(models.RecipientLead)

	query, args, err := qb.BuildCountQuery(nil, QueryOptions{})
	if err != nil {
		t.Fatalf("BuildCountQuery failed: %v", err)
	}

	if !strings.HasPrefix(query, "SELECT COUNT(*) FROM leads l") {
		t.Errorf("Unexpected query prefix: %q", query)
	}
	if !strings.Contains(query, "NOT (l.email_status = ANY($1))") {
		t.Error("Expected lead status suppression clause")
	}
	if len(args) != 1 {
		t.Errorf("Expected 1 argument, got %d", len(args))
	}
}

func TestBuildQueryExclusionAndLimit(t *testing.T) {
	qb := NewQueryBuilder(models.RecipientUser)

	query, args, err := qb.BuildSelectQuery(nil, QueryOptions{
		ExcludeIDs: []string{"id-1", "id-2"},
		Limit:      50,
	})
	if err != nil {
		t.Fatalf("BuildSelectQuery failed: %v", err)
	}

	if !strings.Contains(query, "NOT (a.id = ANY($2))") {
		t.Errorf("Expected exclusion clause, got: %q", query)
	}
	if !strings.Contains(query, "ORDER BY a.created_at ASC") {
		t.Error("Expected deterministic ordering")
	}
	if !strings.Contains(query, "LIMIT $3") {
		t.Error("Expected parameterized limit")
	}
	// prefs array, exclude array, limit
	if len(args) != 3 {
		t.Errorf("Expected 3 arguments, got %d", len(args))
	}
}

func TestBuildConditionParameterization(t *testing.T) {
	tree := &models.FilterNode{
		Logic: models.LogicAnd,
		Conditions: []*models.FilterNode{
			{Field: "country", Operator: models.OpEq, Value: "DE'; DROP TABLE authors; --"},
			{Field: "storiesGenerated", Operator: models.OpGte, Value: float64(5)},
		},
	}

	qb := NewQueryBuilder(models.RecipientUser)
	query, args, err := qb.BuildCountQuery(tree, QueryOptions{})
	if err != nil {
		t.Fatalf("BuildCountQuery failed: %v", err)
	}

	// The value must travel as an argument, never in the SQL text.
	if strings.Contains(query, "DROP TABLE") {
		t.Errorf("User value leaked into SQL text: %q", query)
	}
	if !strings.Contains(query, "a.country = $2") {
		t.Errorf("Expected parameterized equality, got: %q", query)
	}
	if !strings.Contains(query, "a.stories_generated >= $3") {
		t.Errorf("Expected parameterized comparison, got: %q", query)
	}
	if len(args) != 3 {
		t.Errorf("Expected 3 arguments, got %d", len(args))
	}
}

func TestBuildConditionOperators(t *testing.T) {
	tests := []struct {
		name     string
		node     *models.FilterNode
		wantSQL  string
		wantArgs int
	}{
		{
			name:     "between",
			node:     &models.FilterNode{Field: "creditBalance", Operator: models.OpBetween, Value: []interface{}{float64(10), float64(100)}},
			wantSQL:  "a.credit_balance BETWEEN $2 AND $3",
			wantArgs: 3,
		},
		{
			name:     "in",
			node:     &models.FilterNode{Field: "subscriptionPlan", Operator: models.OpIn, Value: []interface{}{"pro", "studio"}},
			wantSQL:  "a.subscription_plan = ANY($2)",
			wantArgs: 2,
		},
		{
			name:     "not_in",
			node:     &models.FilterNode{Field: "country", Operator: models.OpNotIn, Value: []interface{}{"US"}},
			wantSQL:  "NOT (a.country = ANY($2))",
			wantArgs: 2,
		},
		{
			name:     "is_null true",
			node:     &models.FilterNode{Field: "lastActiveAt", Operator: models.OpIsNull, Value: true},
			wantSQL:  "a.last_active_at IS NULL",
			wantArgs: 1,
		},
		{
			name:     "is_null false",
			node:     &models.FilterNode{Field: "lastActiveAt", Operator: models.OpIsNull, Value: false},
			wantSQL:  "a.last_active_at IS NOT NULL",
			wantArgs: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			qb := NewQueryBuilder(models.RecipientUser)
			query, args, err := qb.BuildCountQuery(tt.node, QueryOptions{})
			if err != nil {
				t.Fatalf("BuildCountQuery failed: %v", err)
			}
			if !strings.Contains(query, tt.wantSQL) {
				t.Errorf("Expected %q in query:\n%s", tt.wantSQL, query)
			}
			if len(args) != tt.wantArgs {
				t.Errorf("Expected %d arguments, got %d", tt.wantArgs, len(args))
			}
		})
	}
}

func TestBuildConditionDropsUnmappedFields(t *testing.T) {
	tree := &models.FilterNode{
		Logic: models.LogicAnd,
		Conditions: []*models.FilterNode{
			{Field: "shoeSize", Operator: models.OpEq, Value: float64(42)},
			{Field: "country", Operator: models.OpEq, Value: "DE"},
		},
	}

	qb := NewQueryBuilder(models.RecipientUser)
	query, args, err := qb.BuildCountQuery(tree, QueryOptions{})
	if err != nil {
		t.Fatalf("BuildCountQuery failed: %v", err)
	}

	if strings.Contains(query, "shoe") {
		t.Errorf("Unmapped field leaked into SQL: %q", query)
	}
	if !strings.Contains(query, "a.country = $2") {
		t.Error("Mapped sibling condition should survive")
	}
	// prefs + country; the dropped condition contributes nothing.
	if len(args) != 2 {
		t.Errorf("Expected 2 arguments, got %d", len(args))
	}
}

func TestBuildGroupWhereAllConditionsDrop(t *testing.T) {
	tree := &models.FilterNode{
		Logic: models.LogicOr,
		Conditions: []*models.FilterNode{
			{Field: "shoeSize", Operator: models.OpEq, Value: float64(42)},
			{Field: "favoriteColor", Operator: models.OpEq, Value: "blue"},
		},
	}

	qb := NewQueryBuilder(models.RecipientUser)
	query, _, err := qb.BuildCountQuery(tree, QueryOptions{})
	if err != nil {
		t.Fatalf("BuildCountQuery failed: %v", err)
	}

	// An entirely dropped group must not leave a dangling "()" behind.
	if strings.Contains(query, "()") {
		t.Errorf("Empty group left residue in SQL: %q", query)
	}
}

func TestSharedFieldMapsPerSource(t *testing.T) {
	tree := &models.FilterNode{Field: "preferredLocale", Operator: models.OpEq, Value: "de-DE"}

	userQuery, _, err := NewQueryBuilder(models.RecipientUser).BuildCountQuery(tree, QueryOptions{})
	if err != nil {
		t.Fatalf("user query failed: %v", err)
	}
	if !strings.Contains(userQuery, "a.preferred_locale = $2") {
		t.Errorf("Expected authors column, got: %q", userQuery)
	}

	leadQuery, _, err := NewQueryBuilder(models.RecipientLead).BuildCountQuery(tree, QueryOptions{})
	if err != nil {
		t.Fatalf("lead query failed: %v", err)
	}
	if !strings.Contains(leadQuery, "l.language = $2") {
		t.Errorf("Expected leads column, got: %q", leadQuery)
	}
}

func TestNestedGroupsParenthesized(t *testing.T) {
	tree := &models.FilterNode{
		Logic: models.LogicOr,
		Conditions: []*models.FilterNode{
			{Field: "country", Operator: models.OpEq, Value: "DE"},
			{
				Logic: models.LogicAnd,
				Conditions: []*models.FilterNode{
					{Field: "country", Operator: models.OpEq, Value: "FR"},
					{Field: "emailVerified", Operator: models.OpEq, Value: true},
				},
			},
		},
	}

	qb := NewQueryBuilder(models.RecipientUser)
	query, args, err := qb.BuildCountQuery(tree, QueryOptions{})
	if err != nil {
		t.Fatalf("BuildCountQuery failed: %v", err)
	}

	if !strings.Contains(query, "a.country = $2 OR (a.country = $3 AND a.email_verified = $4)") {
		t.Errorf("Unexpected group compilation:\n%s", query)
	}
	if len(args) != 4 {
		t.Errorf("Expected 4 arguments, got %d", len(args))
	}
}

func TestExplicitPreferencesOverrideDefault(t *testing.T) {
	qb := NewQueryBuilder(models.RecipientUser)
	_, args, err := qb.BuildCountQuery(nil, QueryOptions{Preferences: []string{"product"}})
	if err != nil {
		t.Fatalf("BuildCountQuery failed: %v", err)
	}
	if len(args) != 1 {
		t.Fatalf("Expected 1 argument, got %d", len(args))
	}
}
