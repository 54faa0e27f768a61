// Package schema defines the flat, all-string row layouts written to the
// data lake and the mapping from typed API records to those rows.
//
// Every column is a UTF-8 string. Absent source fields become "", booleans
// become "true"/"false" and label lists are joined with ";".
package schema

// BadgeRow is one issued badge.
type BadgeRow struct {
	BadgeID            string `parquet:"name=badge_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	IssuedTo           string `parquet:"name=issued_to, type=BYTE_ARRAY, convertedtype=UTF8"`
	IssuedToFirstName  string `parquet:"name=issued_to_first_name, type=BYTE_ARRAY, convertedtype=UTF8"`
	IssuedToMiddleName string `parquet:"name=issued_to_middle_name, type=BYTE_ARRAY, convertedtype=UTF8"`
	IssuedToLastName   string `parquet:"name=issued_to_last_name, type=BYTE_ARRAY, convertedtype=UTF8"`
	UserID             string `parquet:"name=user_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	RecipientEmail     string `parquet:"name=recipient_email, type=BYTE_ARRAY, convertedtype=UTF8"`
	BadgeTemplateID    string `parquet:"name=badge_template_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	BadgeTemplateName  string `parquet:"name=badge_template_name, type=BYTE_ARRAY, convertedtype=UTF8"`
	ImageURL           string `parquet:"name=image_url, type=BYTE_ARRAY, convertedtype=UTF8"`
	Locale             string `parquet:"name=locale, type=BYTE_ARRAY, convertedtype=UTF8"`
	Public             string `parquet:"name=public, type=BYTE_ARRAY, convertedtype=UTF8"`
	State              string `parquet:"name=state, type=BYTE_ARRAY, convertedtype=UTF8"`
	IssuedAt           string `parquet:"name=issued_at, type=BYTE_ARRAY, convertedtype=UTF8"`
	ExpiresAt          string `parquet:"name=expires_at, type=BYTE_ARRAY, convertedtype=UTF8"`
	CreatedAt          string `parquet:"name=created_at, type=BYTE_ARRAY, convertedtype=UTF8"`
	UpdatedAt          string `parquet:"name=updated_at, type=BYTE_ARRAY, convertedtype=UTF8"`
	StateUpdatedAt     string `parquet:"name=state_updated_at, type=BYTE_ARRAY, convertedtype=UTF8"`
	OrganizationID     string `parquet:"name=organization_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	OrganizationName   string `parquet:"name=organization_name, type=BYTE_ARRAY, convertedtype=UTF8"`
}

// TemplateRow is one badge template.
type TemplateRow struct {
	BadgeTemplateID        string `parquet:"name=badge_template_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	PrimaryBadgeTemplateID string `parquet:"name=primary_badge_template_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	VariantName            string `parquet:"name=variant_name, type=BYTE_ARRAY, convertedtype=UTF8"`
	Name                   string `parquet:"name=name, type=BYTE_ARRAY, convertedtype=UTF8"`
	Description            string `parquet:"name=description, type=BYTE_ARRAY, convertedtype=UTF8"`
	State                  string `parquet:"name=state, type=BYTE_ARRAY, convertedtype=UTF8"`
	Public                 string `parquet:"name=public, type=BYTE_ARRAY, convertedtype=UTF8"`
	BadgesCount            string `parquet:"name=badges_count, type=BYTE_ARRAY, convertedtype=UTF8"`
	ImageURL               string `parquet:"name=image_url, type=BYTE_ARRAY, convertedtype=UTF8"`
	URL                    string `parquet:"name=url, type=BYTE_ARRAY, convertedtype=UTF8"`
	VanitySlug             string `parquet:"name=vanity_slug, type=BYTE_ARRAY, convertedtype=UTF8"`
	VariantsAllowed        string `parquet:"name=variants_allowed, type=BYTE_ARRAY, convertedtype=UTF8"`
	VariantType            string `parquet:"name=variant_type, type=BYTE_ARRAY, convertedtype=UTF8"`
	Level                  string `parquet:"name=level, type=BYTE_ARRAY, convertedtype=UTF8"`
	TypeCategory           string `parquet:"name=type_category, type=BYTE_ARRAY, convertedtype=UTF8"`
	Skills                 string `parquet:"name=skills, type=BYTE_ARRAY, convertedtype=UTF8"`
	ReportingTags          string `parquet:"name=reporting_tags, type=BYTE_ARRAY, convertedtype=UTF8"`
	StateUpdatedAt         string `parquet:"name=state_updated_at, type=BYTE_ARRAY, convertedtype=UTF8"`
	CreatedAt              string `parquet:"name=created_at, type=BYTE_ARRAY, convertedtype=UTF8"`
	UpdatedAt              string `parquet:"name=updated_at, type=BYTE_ARRAY, convertedtype=UTF8"`
	OrganizationID         string `parquet:"name=organization_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	OrganizationName       string `parquet:"name=organization_name, type=BYTE_ARRAY, convertedtype=UTF8"`
	OrganizationVanityURL  string `parquet:"name=organization_vanity_url, type=BYTE_ARRAY, convertedtype=UTF8"`
}

// ActivityRow is one activity of a badge template, exploded out of the
// template it belongs to.
type ActivityRow struct {
	BadgeTemplateID string `parquet:"name=badge_template_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	ActivityID      string `parquet:"name=badge_template_activity_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	ActivityTitle   string `parquet:"name=badge_template_activity_title, type=BYTE_ARRAY, convertedtype=UTF8"`
	ActivityType    string `parquet:"name=badge_template_activity_type, type=BYTE_ARRAY, convertedtype=UTF8"`
	ActivityURL     string `parquet:"name=badge_template_activity_url, type=BYTE_ARRAY, convertedtype=UTF8"`
}

// Records converts typed rows into the untyped slice accepted by the
// partition writer.
func Records[T any](rows []T) []any {
	out := make([]any, len(rows))
	for i := range rows {
		out[i] = rows[i]
	}
	return out
}
