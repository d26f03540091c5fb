package domain

import (
	"fmt"
	"strings"
)

// TransformationType tags how a mapped source value is converted.
type TransformationType string

const (
	TransformString  TransformationType = "STRING"
	TransformNumber  TransformationType = "NUMBER"
	TransformDate    TransformationType = "DATE"
	TransformBoolean TransformationType = "BOOLEAN"
	TransformArray   TransformationType = "ARRAY"
)

// Valid reports whether t is a known transformation type.
func (t TransformationType) Valid() bool {
	switch t {
	case TransformString, TransformNumber, TransformDate, TransformBoolean, TransformArray:
		return true
	}
	return false
}

// FieldMapping maps one source JSON path of a connection's records to one
// JobOffer column.
type FieldMapping struct {
	ConnectionID       int64              `db:"ConnectionId" json:"connection_id"`
	ClientID           *int64             `db:"ClientId" json:"client_id"`
	SourceField        string             `db:"SourceField" json:"source_field"`
	TargetField        string             `db:"TargetField" json:"target_field"`
	TransformationType TransformationType `db:"TransformationType" json:"transformation_type"`
	TransformationRule *string            `db:"TransformationRule" json:"transformation_rule,omitempty"`
}

// Rule returns the transformation rule or "".
func (m *FieldMapping) Rule() string {
	if m.TransformationRule == nil {
		return ""
	}
	return *m.TransformationRule
}

// Validate checks the mapping in isolation and canonicalises TargetField and
// an empty TransformationType (STRING).
func (m *FieldMapping) Validate() error {
	if strings.TrimSpace(m.SourceField) == "" {
		return fmt.Errorf("%w: source_field is required", ErrInvalidMapping)
	}

	target, ok := CanonicalTarget(m.TargetField)
	if !ok {
		return fmt.Errorf("%w: unknown target_field %q", ErrInvalidMapping, m.TargetField)
	}
	m.TargetField = target

	if m.TransformationType == "" {
		m.TransformationType = TransformString
	}
	m.TransformationType = TransformationType(strings.ToUpper(string(m.TransformationType)))
	if !m.TransformationType.Valid() {
		return fmt.Errorf("%w: transformation_type must be one of STRING, NUMBER, DATE, BOOLEAN, ARRAY (got %q)",
			ErrInvalidMapping, m.TransformationType)
	}

	return nil
}

// OfferColumns lists the JobOffer columns a mapping may target. Columns the
// importer fixes (Source, StatusId, ConnectionId, UserId, counters) are absent.
var OfferColumns = []string{
	"ExternalId", "Title", "JobTitle", "Description", "CompanyName", "Sector",
	"Address", "Country", "CountryId", "Region", "RegionId", "City", "CityId",
	"Postcode", "Latitude", "Longitude", "Vacancies", "SalaryMin", "SalaryMax",
	"JobType", "ExternalUrl", "ApplicationUrl", "Budget", "ApplicationsGoal",
	"PublicationDate",
}

// Names the dashboard historically used as targets.
var targetAliases = map[string]string{
	"company":       "CompanyName",
	"apply_url":     "ApplicationUrl",
	"published_at":  "PublicationDate",
	"contract_type": "JobType",
	"location":      "Address",
}

var columnsByKey = func() map[string]string {
	m := make(map[string]string, len(OfferColumns))
	for _, c := range OfferColumns {
		m[strings.ToLower(c)] = c
	}
	return m
}()

// CanonicalTarget resolves a target name in PascalCase, snake_case or a
// legacy alias to its JobOffer column.
func CanonicalTarget(name string) (string, bool) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", false
	}
	if c, ok := targetAliases[strings.ToLower(name)]; ok {
		return c, true
	}
	key := strings.ToLower(strings.ReplaceAll(name, "_", ""))
	c, ok := columnsByKey[key]
	return c, ok
}
