package audience

import "storyadmin/internal/models"

// The filter compiler only ever resolves logical field names through these
// allowlists; a condition naming anything else never reaches SQL. The two
// recipient sources are structurally different tables, so each source gets
// its own mapping and a shared logical name may land on a different column
// per source (e.g. preferredLocale).

// userFields maps logical filter fields to columns of the core DB's authors
// table.
var userFields = map[string]string{
	"preferredLocale":  "preferred_locale",
	"country":          "country",
	"createdAt":        "created_at",
	"lastActiveAt":     "last_active_at",
	"storiesGenerated": "stories_generated",
	"creditBalance":    "credit_balance",
	"subscriptionPlan": "subscription_plan",
	"emailVerified":    "email_verified",
}

// leadFields maps logical filter fields to columns of the workflow DB's
// leads table.
var leadFields = map[string]string{
	"preferredLocale": "language",
	"country":         "country",
	"createdAt":       "created_at",
	"source":          "source",
	"emailStatus":     "email_status",
	"lastContactedAt": "last_contacted_at",
}

// fieldColumn resolves a logical field for one source. ok is false for
// unmapped fields.
func fieldColumn(rt models.RecipientType, field string) (string, bool) {
	switch rt {
	case models.RecipientUser:
		col, ok := userFields[field]
		return col, ok
	case models.RecipientLead:
		col, ok := leadFields[field]
		return col, ok
	}
	return "", false
}

// KnownField reports whether the given logical field is filterable for the
// campaign's audience source. Used at the API boundary to reject filter
// trees naming fields that would otherwise be silently dropped.
func KnownField(source models.AudienceSource, field string) bool {
	switch source {
	case models.AudienceUsers:
		_, ok := userFields[field]
		return ok
	case models.AudienceLeads:
		_, ok := leadFields[field]
		return ok
	case models.AudienceBoth:
		_, users := userFields[field]
		_, leads := leadFields[field]
		return users || leads
	}
	return false
}
