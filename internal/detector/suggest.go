package detector

import (
	"strings"

	"github.com/cuongbtq/offer-importer/internal/domain"
)

// conventionalNames maps common provider key names (lowercased, no
// separators) to the JobOffer column they usually carry.
var conventionalNames = map[string]string{
	"id": "ExternalId", "uuid": "ExternalId", "offerid": "ExternalId", "jobid": "ExternalId", "externalid": "ExternalId", "reference": "ExternalId",

	"title": "Title", "jobtitle": "JobTitle", "position": "JobTitle",

	"content": "Description", "description": "Description", "jobdescription": "Description", "summary": "Description",

	"company": "CompanyName", "companyname": "CompanyName", "employer": "CompanyName", "organization": "CompanyName", "enterprisename": "CompanyName",

	"category": "Sector", "sector": "Sector", "industry": "Sector", "department": "Sector",

	"address": "Address", "fulladdress": "Address", "streetaddress": "Address",
	"city": "City", "cityname": "City", "locationcity": "City", "town": "City", "municipality": "City",
	"region": "Region", "regionname": "Region", "state": "Region", "province": "Region",
	"country": "Country", "countryname": "Country", "nation": "Country",
	"postcode": "Postcode", "postalcode": "Postcode", "zip": "Postcode", "zipcode": "Postcode",
	"latitude": "Latitude", "lat": "Latitude",
	"longitude": "Longitude", "lng": "Longitude", "lon": "Longitude",

	"url": "ExternalUrl", "joburl": "ExternalUrl", "externalurl": "ExternalUrl", "link": "ExternalUrl", "permalink": "ExternalUrl",
	"applicationurl": "ApplicationUrl", "applyurl": "ApplicationUrl", "urlapply": "ApplicationUrl", "applylink": "ApplicationUrl",

	"publicationdate": "PublicationDate", "publishedat": "PublicationDate", "createdat": "PublicationDate", "datecreated": "PublicationDate", "postdate": "PublicationDate",

	"salary": "SalaryMin", "salarymin": "SalaryMin", "minsalary": "SalaryMin", "salaryfrom": "SalaryMin",
	"salarymax": "SalaryMax", "maxsalary": "SalaryMax", "salaryto": "SalaryMax",

	"jobtype": "JobType", "employmenttype": "JobType", "contracttype": "JobType", "workday": "JobType",

	"vacancies": "Vacancies", "positions": "Vacancies", "openings": "Vacancies", "numvacancies": "Vacancies",
}

var targetTypes = map[string]domain.TransformationType{
	"Latitude":        domain.TransformNumber,
	"Longitude":       domain.TransformNumber,
	"SalaryMin":       domain.TransformNumber,
	"SalaryMax":       domain.TransformNumber,
	"Vacancies":       domain.TransformNumber,
	"PublicationDate": domain.TransformDate,
}

var descriptions = map[string]string{
	"ExternalId":      "Unique identifier of the offer at the provider",
	"Title":           "Offer title",
	"JobTitle":        "Job position title",
	"Description":     "Full offer description",
	"CompanyName":     "Hiring company",
	"Sector":          "Sector or category",
	"Address":         "Street address",
	"City":            "City",
	"Region":          "Region or province",
	"Country":         "Country",
	"Postcode":        "Postal code",
	"Latitude":        "Latitude",
	"Longitude":       "Longitude",
	"ExternalUrl":     "Offer page URL",
	"ApplicationUrl":  "Application URL",
	"PublicationDate": "Publication date",
	"SalaryMin":       "Minimum salary",
	"SalaryMax":       "Maximum salary",
	"JobType":         "Contract or working-day type",
	"Vacancies":       "Number of openings",
}

func normalizeKey(key string) string {
	r := strings.NewReplacer("_", "", "-", "", " ", "")
	return strings.ToLower(r.Replace(key))
}

func conventionalTarget(key string) (string, bool) {
	t, ok := conventionalNames[normalizeKey(key)]
	return t, ok
}

func describe(key string) string {
	if t, ok := conventionalTarget(key); ok {
		return descriptions[t]
	}
	return "Field: " + key
}

// lastSegment returns the final component of an escaped gjson path, unescaped.
func lastSegment(path string) string {
	var (
		seg     strings.Builder
		escaped bool
	)
	for _, r := range path {
		switch {
		case escaped:
			seg.WriteRune(r)
			escaped = false
		case r == '\\':
			escaped = true
		case r == '.':
			seg.Reset()
		default:
			seg.WriteRune(r)
		}
	}
	return seg.String()
}

// Suggest proposes mappings for fields whose key follows a common naming
// convention. Each target column is claimed by the first matching field in
// document order; array summaries are never suggested. ClientID is left for
// the store to fill.
func Suggest(connectionID int64, fields []Field) []domain.FieldMapping {
	claimed := make(map[string]bool)
	mappings := make([]domain.FieldMapping, 0, len(fields))

	for _, f := range fields {
		if strings.HasPrefix(f.Sample, "Array[") {
			continue
		}
		target, ok := conventionalTarget(lastSegment(f.Name))
		if !ok || claimed[target] {
			continue
		}
		claimed[target] = true

		typ, ok := targetTypes[target]
		if !ok {
			typ = domain.TransformString
		}
		mappings = append(mappings, domain.FieldMapping{
			ConnectionID:       connectionID,
			SourceField:        f.Name,
			TargetField:        target,
			TransformationType: typ,
		})
	}
	return mappings
}
