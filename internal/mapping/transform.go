// Package mapping turns provider records into JobOffer rows using a
// connection's ClientFieldMappings.
package mapping

import (
	"errors"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/cuongbtq/offer-importer/internal/domain"
	"github.com/tidwall/gjson"
)

// ErrMissingExternalID marks a record that cannot be keyed for upsert.
var ErrMissingExternalID = errors.New("record has no external id")

type compiledMapping struct {
	source string
	target string
	typ    domain.TransformationType
	rules  []rule
}

// Transformer applies one connection's mapping set to records.
type Transformer struct {
	mappings   []compiledMapping
	useDefault bool
}

// New compiles mappings. An empty set selects the built-in default mapping.
func New(mappings []domain.FieldMapping) (*Transformer, error) {
	t := &Transformer{useDefault: len(mappings) == 0}
	for i := range mappings {
		m := mappings[i]
		if err := m.Validate(); err != nil {
			return nil, err
		}
		rules, err := parseRules(m.Rule())
		if err != nil {
			return nil, err
		}
		t.mappings = append(t.mappings, compiledMapping{
			source: m.SourceField,
			target: m.TargetField,
			typ:    m.TransformationType,
			rules:  rules,
		})
	}
	return t, nil
}

// UsesDefault reports whether the built-in default mapping is active.
func (t *Transformer) UsesDefault() bool {
	return t.useDefault
}

// Apply maps one record. A mapped path that is missing or null leaves its
// column unset; only a missing ExternalId fails the record.
func (t *Transformer) Apply(record gjson.Result, conn *domain.Connection) (*domain.JobOffer, error) {
	offer := &domain.JobOffer{}

	if t.useDefault {
		applyDefault(record, offer)
	} else {
		for _, m := range t.mappings {
			if v, ok := m.value(record); ok {
				assign(offer, m.target, v)
			}
		}
	}

	offer.ExternalID = strings.TrimSpace(offer.ExternalID)
	if offer.ExternalID == "" {
		return nil, ErrMissingExternalID
	}

	offer.ConnectionID = conn.ID
	offer.UserID = conn.UserID
	offer.Source = domain.SourceAPI
	offer.StatusID = domain.StatusActive
	offer.BudgetSpent = 0
	offer.ApplicationsReceived = 0
	if offer.Budget == 0 {
		offer.Budget = domain.DefaultBudget
	}
	if offer.ApplicationsGoal == 0 {
		offer.ApplicationsGoal = domain.DefaultApplicationsGoal
	}
	if offer.Vacancies == 0 {
		offer.Vacancies = domain.DefaultVacancies
	}
	return offer, nil
}

// value resolves and converts the mapped source. ok is false when the column
// should stay unset.
func (m compiledMapping) value(record gjson.Result) (any, bool) {
	raw := record.Get(m.source)
	if m.typ == domain.TransformArray {
		raw = firstElement(raw)
	}

	s, present := scalarString(raw)
	for _, r := range m.rules {
		s, present = r(s, present)
	}
	if !present {
		return nil, false
	}
	return m.convert(s)
}

func (m compiledMapping) convert(s string) (any, bool) {
	switch m.typ {
	case domain.TransformNumber:
		f, ok := parseNumber(s)
		return f, ok
	case domain.TransformDate:
		d, ok := ParseDate(s)
		return d, ok
	case domain.TransformBoolean:
		return parseBool(s), true
	default:
		return s, true
	}
}

// setters assign a converted value to a JobOffer column.
var setters = map[string]func(o *domain.JobOffer, v any){
	"ExternalId":       func(o *domain.JobOffer, v any) { o.ExternalID = asString(v) },
	"Title":            func(o *domain.JobOffer, v any) { o.Title = asString(v) },
	"JobTitle":         func(o *domain.JobOffer, v any) { o.JobTitle = asString(v) },
	"Description":      func(o *domain.JobOffer, v any) { o.Description = asString(v) },
	"CompanyName":      func(o *domain.JobOffer, v any) { o.CompanyName = asString(v) },
	"Sector":           func(o *domain.JobOffer, v any) { o.Sector = asString(v) },
	"Address":          func(o *domain.JobOffer, v any) { o.Address = asString(v) },
	"Country":          func(o *domain.JobOffer, v any) { o.Country = asString(v) },
	"Region":           func(o *domain.JobOffer, v any) { o.Region = asString(v) },
	"City":             func(o *domain.JobOffer, v any) { o.City = asString(v) },
	"Postcode":         func(o *domain.JobOffer, v any) { o.Postcode = asString(v) },
	"JobType":          func(o *domain.JobOffer, v any) { o.JobType = asString(v) },
	"ExternalUrl":      func(o *domain.JobOffer, v any) { o.ExternalURL = asString(v) },
	"ApplicationUrl":   func(o *domain.JobOffer, v any) { o.ApplicationURL = asString(v) },
	"CountryId":        func(o *domain.JobOffer, v any) { o.CountryID = asInt64Ptr(v) },
	"RegionId":         func(o *domain.JobOffer, v any) { o.RegionID = asInt64Ptr(v) },
	"CityId":           func(o *domain.JobOffer, v any) { o.CityID = asInt64Ptr(v) },
	"Latitude":         func(o *domain.JobOffer, v any) { o.Latitude = asFloatPtr(v) },
	"Longitude":        func(o *domain.JobOffer, v any) { o.Longitude = asFloatPtr(v) },
	"SalaryMin":        func(o *domain.JobOffer, v any) { o.SalaryMin = asFloatPtr(v) },
	"SalaryMax":        func(o *domain.JobOffer, v any) { o.SalaryMax = asFloatPtr(v) },
	"Budget":           func(o *domain.JobOffer, v any) { o.Budget = derefFloat(asFloatPtr(v)) },
	"Vacancies":        func(o *domain.JobOffer, v any) { o.Vacancies = asInt32(v) },
	"ApplicationsGoal": func(o *domain.JobOffer, v any) { o.ApplicationsGoal = asInt32(v) },
	"PublicationDate":  func(o *domain.JobOffer, v any) { o.PublicationDate = asTimePtr(v) },
}

func assign(o *domain.JobOffer, target string, v any) {
	if set, ok := setters[target]; ok {
		set(o, v)
	}
}

func asString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	case time.Time:
		return x.Format(time.RFC3339)
	}
	return ""
}

func asFloatPtr(v any) *float64 {
	var f float64
	switch x := v.(type) {
	case float64:
		f = x
	case string:
		n, ok := parseNumber(x)
		if !ok {
			return nil
		}
		f = n
	case bool:
		if x {
			f = 1
		}
	default:
		return nil
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}

func asInt64Ptr(v any) *int64 {
	f := asFloatPtr(v)
	if f == nil || *f == 0 || *f >= math.MaxInt64 || *f <= math.MinInt64 {
		return nil
	}
	n := int64(*f)
	return &n
}

// asInt32 returns 0 for values an INTEGER column cannot hold, so the
// column falls back to its default.
func asInt32(v any) int {
	f := asFloatPtr(v)
	if f == nil || *f > math.MaxInt32 || *f < math.MinInt32 {
		return 0
	}
	return int(*f)
}

func asTimePtr(v any) *time.Time {
	switch x := v.(type) {
	case time.Time:
		return &x
	case string:
		if t, ok := ParseDate(x); ok {
			return &t
		}
	case float64:
		if t, ok := ParseDate(strconv.FormatInt(int64(x), 10)); ok {
			return &t
		}
	}
	return nil
}

func derefFloat(f *float64) float64 {
	if f == nil {
		return 0
	}
	return *f
}
