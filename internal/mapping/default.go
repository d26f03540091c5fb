package mapping

import (
	"github.com/cuongbtq/offer-importer/internal/domain"
	"github.com/tidwall/gjson"
)

type defaultField struct {
	target string
	typ    domain.TransformationType
	paths  []string
}

// defaultFields is used for connections without mappings. For each column the
// first path holding a non-empty scalar wins, so nested provider shapes
// (company.enterpriseName, location.cityName, salary.salaryMin) are tried
// before flat keys.
var defaultFields = []defaultField{
	{"ExternalId", domain.TransformString, []string{"id", "ID", "Id", "external_id", "offer_id"}},
	{"Title", domain.TransformString, []string{"title", "job_title", "jobtitle"}},
	{"JobTitle", domain.TransformString, []string{"job_title", "jobtitle", "title"}},
	{"Description", domain.TransformString, []string{"description", "content", "job_description"}},
	{"CompanyName", domain.TransformString, []string{
		"company.enterpriseName", "company.name", "company.company_name", "company.title", "company", "company_name",
	}},
	{"Sector", domain.TransformString, []string{"category", "sector", "company.sector"}},
	{"Address", domain.TransformString, []string{"location.address", "location.locationDescription", "address", "location"}},
	{"Country", domain.TransformString, []string{"location.countryName", "location.country", "country", "pais"}},
	{"Region", domain.TransformString, []string{"location.regionName", "location.region", "region"}},
	{"City", domain.TransformString, []string{"location.cityName", "location.city", "city", "location_city"}},
	{"Postcode", domain.TransformString, []string{"location.zipCode", "location.postal_code", "postcode", "postal_code"}},
	{"CountryId", domain.TransformNumber, []string{"location.countryId", "country_id", "countryId"}},
	{"RegionId", domain.TransformNumber, []string{"location.regionId", "region_id", "regionId"}},
	{"CityId", domain.TransformNumber, []string{"location.cityId", "city_id", "cityId"}},
	{"Latitude", domain.TransformNumber, []string{"location.latitude", "location.lat", "latitude", "lat"}},
	{"Longitude", domain.TransformNumber, []string{"location.longitude", "location.lng", "longitude", "lng"}},
	{"Vacancies", domain.TransformNumber, []string{"vacancies", "num_vacancies"}},
	{"JobType", domain.TransformString, []string{"job_type", "jobtype"}},
	{"ExternalUrl", domain.TransformString, []string{"url", "external_url"}},
	{"ApplicationUrl", domain.TransformString, []string{"application_url", "url_apply", "apply_url"}},
	{"PublicationDate", domain.TransformDate, []string{"publication_date", "published_at", "created_at", "publication", "date"}},
	{"SalaryMin", domain.TransformNumber, []string{"salary.salaryMin", "salary.min", "salary_min", "salaryMin"}},
	{"SalaryMax", domain.TransformNumber, []string{"salary.salaryMax", "salary.max", "salary_max", "salaryMax"}},
}

func applyDefault(record gjson.Result, offer *domain.JobOffer) {
	for _, f := range defaultFields {
		s, ok := firstScalar(record, f.paths)
		if !ok {
			continue
		}
		m := compiledMapping{target: f.target, typ: f.typ}
		if v, ok := m.convert(s); ok {
			assign(offer, f.target, v)
		}
	}
}

func firstScalar(record gjson.Result, paths []string) (string, bool) {
	for _, p := range paths {
		v := record.Get(p)
		if !v.Exists() || v.Type == gjson.Null || v.IsObject() || v.IsArray() {
			continue
		}
		if s, ok := scalarString(v); ok && s != "" {
			return s, true
		}
	}
	return "", false
}
