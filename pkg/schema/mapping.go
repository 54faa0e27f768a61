package schema

import "github.com/Sternrassler/credly-ingest/pkg/credly"

// MapBadge flattens an issued badge. The organization is the first issuer
// entity, and the image comes from the badge template.
func MapBadge(b credly.Badge) BadgeRow {
	user := refOrZero(b.User)
	tpl := refOrZero(b.BadgeTemplate)

	var org credly.Ref
	if b.Issuer != nil && len(b.Issuer.Entities) > 0 {
		org = b.Issuer.Entities[0]
	}

	return BadgeRow{
		BadgeID:            b.ID.String(),
		IssuedTo:           b.IssuedTo.String(),
		IssuedToFirstName:  b.IssuedToFirstName.String(),
		IssuedToMiddleName: b.IssuedToMiddleName.String(),
		IssuedToLastName:   b.IssuedToLastName.String(),
		UserID:             user.ID.String(),
		RecipientEmail:     b.RecipientEmail.String(),
		BadgeTemplateID:    tpl.ID.String(),
		BadgeTemplateName:  tpl.Name.String(),
		ImageURL:           tpl.ImageURL.String(),
		Locale:             b.Locale.String(),
		Public:             b.Public.String(),
		State:              b.State.String(),
		IssuedAt:           b.IssuedAt.String(),
		ExpiresAt:          b.ExpiresAt.String(),
		CreatedAt:          b.CreatedAt.String(),
		UpdatedAt:          b.UpdatedAt.String(),
		StateUpdatedAt:     b.StateUpdatedAt.String(),
		OrganizationID:     org.ID.String(),
		OrganizationName:   org.Name.String(),
	}
}

// MapBadges flattens a page of badges.
func MapBadges(badges []credly.Badge) []BadgeRow {
	rows := make([]BadgeRow, len(badges))
	for i, b := range badges {
		rows[i] = MapBadge(b)
	}
	return rows
}

// MapTemplate flattens a badge template. The organization is the owner.
func MapTemplate(t credly.Template) TemplateRow {
	owner := refOrZero(t.Owner)

	return TemplateRow{
		BadgeTemplateID:        t.ID.String(),
		PrimaryBadgeTemplateID: t.PrimaryBadgeTemplateID.String(),
		VariantName:            t.VariantName.String(),
		Name:                   t.Name.String(),
		Description:            t.Description.String(),
		State:                  t.State.String(),
		Public:                 t.Public.String(),
		BadgesCount:            t.BadgesCount.String(),
		ImageURL:               t.ImageURL.String(),
		URL:                    t.URL.String(),
		VanitySlug:             t.VanitySlug.String(),
		VariantsAllowed:        t.VariantsAllowed.String(),
		VariantType:            t.VariantType.String(),
		Level:                  t.Level.String(),
		TypeCategory:           t.TypeCategory.String(),
		Skills:                 t.Skills.Join(),
		ReportingTags:          t.ReportingTags.Join(),
		StateUpdatedAt:         t.StateUpdatedAt.String(),
		CreatedAt:              t.CreatedAt.String(),
		UpdatedAt:              t.UpdatedAt.String(),
		OrganizationID:         owner.ID.String(),
		OrganizationName:       owner.Name.String(),
		OrganizationVanityURL:  owner.VanityURL.String(),
	}
}

// MapActivities explodes the activities of one template into rows keyed by
// the template id.
func MapActivities(t credly.Template) []ActivityRow {
	rows := make([]ActivityRow, 0, len(t.Activities))
	for _, a := range t.Activities {
		rows = append(rows, ActivityRow{
			BadgeTemplateID: t.ID.String(),
			ActivityID:      a.ID.String(),
			ActivityTitle:   a.Title.String(),
			ActivityType:    a.ActivityType.String(),
			ActivityURL:     a.URL.String(),
		})
	}
	return rows
}

// MapTemplates flattens templates and their activities in one pass.
func MapTemplates(templates []credly.Template) ([]TemplateRow, []ActivityRow) {
	rows := make([]TemplateRow, len(templates))
	var activities []ActivityRow
	for i, t := range templates {
		rows[i] = MapTemplate(t)
		activities = append(activities, MapActivities(t)...)
	}
	return rows, activities
}

func refOrZero(r *credly.Ref) credly.Ref {
	if r == nil {
		return credly.Ref{}
	}
	return *r
}
