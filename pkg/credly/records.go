package credly

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/segmentio/encoding/json"
)

// ParseError reports a response whose structure does not match the expected
// record shape. Index is -1 for envelope-level failures.
type ParseError struct {
	Resource Resource
	Index    int
	Err      error
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("parse %s response: %v", e.Resource, e.Err)
	}
	return fmt.Sprintf("parse %s record %d: %v", e.Resource, e.Index, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *ParseError) Unwrap() error {
	return e.Err
}

// FlexString holds a JSON scalar as text. Strings are taken as is, numbers
// keep their literal form, booleans become "true"/"false" and null becomes
// "". Objects and arrays are rejected.
type FlexString string

// UnmarshalJSON implements json.Unmarshaler.
func (f *FlexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		*f = ""
		return nil
	}
	switch b[0] {
	case 'n':
		*f = ""
	case '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = FlexString(s)
	case '{', '[':
		return fmt.Errorf("expected scalar, got %s", kindOf(b))
	default:
		*f = FlexString(b)
	}
	return nil
}

// String returns the text form.
func (f FlexString) String() string { return string(f) }

// NameList is a list of labels that the API returns either as strings or
// as objects carrying a "name". A bare string decodes to a single element.
type NameList []string

// UnmarshalJSON implements json.Unmarshaler.
func (n *NameList) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || b[0] == 'n' {
		*n = nil
		return nil
	}
	if b[0] != '[' {
		var single FlexString
		if err := single.UnmarshalJSON(b); err != nil {
			return err
		}
		*n = NameList{string(single)}
		return nil
	}

	var elems []json.RawMessage
	if err := json.Unmarshal(b, &elems); err != nil {
		return err
	}
	out := make(NameList, 0, len(elems))
	for i, raw := range elems {
		raw = bytes.TrimSpace(raw)
		if len(raw) > 0 && raw[0] == '{' {
			var named struct {
				Name FlexString `json:"name"`
			}
			if err := json.Unmarshal(raw, &named); err != nil {
				return fmt.Errorf("element %d: %w", i, err)
			}
			out = append(out, string(named.Name))
			continue
		}
		var s FlexString
		if err := s.UnmarshalJSON(raw); err != nil {
			return fmt.Errorf("element %d: %w", i, err)
		}
		out = append(out, string(s))
	}
	*n = out
	return nil
}

// Join concatenates the labels with ";".
func (n NameList) Join() string {
	return strings.Join(n, ";")
}

// Ref is a nested object reference.
type Ref struct {
	ID        FlexString `json:"id"`
	Name      FlexString `json:"name"`
	ImageURL  FlexString `json:"image_url"`
	VanityURL FlexString `json:"vanity_url"`
}

// Issuer describes who issued a badge.
type Issuer struct {
	Entities []Ref `json:"entities"`
}

// Badge is an issued badge as returned by the badge search endpoint.
// Every field is optional.
type Badge struct {
	ID                 FlexString `json:"id"`
	IssuedTo           FlexString `json:"issued_to"`
	IssuedToFirstName  FlexString `json:"issued_to_first_name"`
	IssuedToMiddleName FlexString `json:"issued_to_middle_name"`
	IssuedToLastName   FlexString `json:"issued_to_last_name"`
	RecipientEmail     FlexString `json:"recipient_email"`
	Locale             FlexString `json:"locale"`
	Public             FlexString `json:"public"`
	State              FlexString `json:"state"`
	IssuedAt           FlexString `json:"issued_at"`
	ExpiresAt          FlexString `json:"expires_at"`
	CreatedAt          FlexString `json:"created_at"`
	UpdatedAt          FlexString `json:"updated_at"`
	StateUpdatedAt     FlexString `json:"state_updated_at"`
	User               *Ref       `json:"user"`
	BadgeTemplate      *Ref       `json:"badge_template"`
	Issuer             *Issuer    `json:"issuer"`
}

// Activity is one step required to earn a badge template.
type Activity struct {
	ID           FlexString `json:"id"`
	Title        FlexString `json:"title"`
	ActivityType FlexString `json:"activity_type"`
	URL          FlexString `json:"url"`
}

// Template is a badge template. Every field is optional.
type Template struct {
	ID                     FlexString `json:"id"`
	PrimaryBadgeTemplateID FlexString `json:"primary_badge_template_id"`
	VariantName            FlexString `json:"variant_name"`
	Name                   FlexString `json:"name"`
	Description            FlexString `json:"description"`
	State                  FlexString `json:"state"`
	Public                 FlexString `json:"public"`
	BadgesCount            FlexString `json:"badges_count"`
	ImageURL               FlexString `json:"image_url"`
	URL                    FlexString `json:"url"`
	VanitySlug             FlexString `json:"vanity_slug"`
	VariantsAllowed        FlexString `json:"variants_allowed"`
	VariantType            FlexString `json:"variant_type"`
	Level                  FlexString `json:"level"`
	TypeCategory           FlexString `json:"type_category"`
	Skills                 NameList   `json:"skills"`
	ReportingTags          NameList   `json:"reporting_tags"`
	StateUpdatedAt         FlexString `json:"state_updated_at"`
	CreatedAt              FlexString `json:"created_at"`
	UpdatedAt              FlexString `json:"updated_at"`
	Owner                  *Ref       `json:"owner"`
	Activities             []Activity `json:"badge_template_activities"`
}

// DecodeBadges decodes raw badge records, failing on the first record whose
// structure does not match.
func DecodeBadges(items []json.RawMessage) ([]Badge, error) {
	return decodeAll[Badge](ResourceBadges, items)
}

// DecodeTemplates decodes raw template records, failing on the first record
// whose structure does not match.
func DecodeTemplates(items []json.RawMessage) ([]Template, error) {
	return decodeAll[Template](ResourceTemplates, items)
}

func decodeAll[T any](resource Resource, items []json.RawMessage) ([]T, error) {
	out := make([]T, len(items))
	for i, raw := range items {
		trimmed := bytes.TrimSpace(raw)
		if len(trimmed) == 0 || trimmed[0] != '{' {
			return nil, &ParseError{Resource: resource, Index: i, Err: fmt.Errorf("expected object, got %s", kindOf(trimmed))}
		}
		if err := json.Unmarshal(trimmed, &out[i]); err != nil {
			return nil, &ParseError{Resource: resource, Index: i, Err: err}
		}
	}
	return out, nil
}

func kindOf(b []byte) string {
	if len(b) == 0 {
		return "empty value"
	}
	switch b[0] {
	case '{':
		return "object"
	case '[':
		return "array"
	case '"':
		return "string"
	case 'n':
		return "null"
	case 't', 'f':
		return "boolean"
	default:
		return "number"
	}
}
