package mapping

import (
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// representativeKeys are tried in order when an object has to stand in for a
// scalar column.
var representativeKeys = []string{
	"name", "title", "text", "content", "value", "address", "description",
	"cityName", "regionName", "countryName", "company_name", "enterpriseName",
	"location", "salaryType", "salaryMin", "salaryMax", "min", "max",
}

// scalarString renders v as the string a column would receive. ok is false for
// missing and null values.
func scalarString(v gjson.Result) (string, bool) {
	if !v.Exists() || v.Type == gjson.Null {
		return "", false
	}
	switch {
	case v.IsObject():
		return objectString(v)
	case v.IsArray():
		parts := make([]string, 0, 4)
		v.ForEach(func(_, item gjson.Result) bool {
			if s, ok := scalarString(item); ok && s != "" {
				parts = append(parts, s)
			}
			return true
		})
		if len(parts) == 0 {
			return "", false
		}
		return strings.Join(parts, ", "), true
	case v.Type == gjson.String:
		return v.Str, true
	default:
		return v.Raw, true
	}
}

func objectString(v gjson.Result) (string, bool) {
	for _, key := range representativeKeys {
		child := v.Get(key)
		if !child.Exists() || child.Type == gjson.Null || child.IsObject() || child.IsArray() {
			continue
		}
		if s, _ := scalarString(child); s != "" {
			return s, true
		}
	}

	var place []string
	for _, key := range []string{"cityName", "regionName", "countryName"} {
		if s := v.Get(key).String(); s != "" {
			place = append(place, s)
		}
	}
	if len(place) > 0 {
		return strings.Join(place, ", "), true
	}

	keys := make([]string, 0, 3)
	v.ForEach(func(key, _ gjson.Result) bool {
		keys = append(keys, key.String())
		return len(keys) < 3
	})
	if len(keys) == 0 {
		return "", false
	}
	return "{" + strings.Join(keys, ", ") + "}", true
}

// firstElement returns the first element of an array, or v itself.
func firstElement(v gjson.Result) gjson.Result {
	if !v.IsArray() {
		return v
	}
	items := v.Array()
	if len(items) == 0 {
		return gjson.Result{}
	}
	return items[0]
}

// parseNumber accepts plain numbers and a decimal comma.
func parseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f, true
	}
	if strings.Count(s, ",") == 1 && !strings.Contains(s, ".") {
		if f, err := strconv.ParseFloat(strings.Replace(s, ",", ".", 1), 64); err == nil {
			return f, true
		}
	}
	return 0, false
}

func parseBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "0", "false", "no", "n", "off":
		return false
	}
	return true
}

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"2/1/2006 15:04:05",
	"2/1/2006 15:04",
	"2/1/2006",
}

// ParseDate parses ISO-8601 dates and DD/MM/YYYY with an optional hh:mm[:ss]
// time. Numeric input is a unix timestamp in seconds or milliseconds.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, true
		}
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil && n > 0 {
		if n > 1e12 {
			return time.UnixMilli(n).UTC(), true
		}
		return time.Unix(n, 0).UTC(), true
	}
	return time.Time{}, false
}
