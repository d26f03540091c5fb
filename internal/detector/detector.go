// Package detector infers a flat field list from one sample record of a
// provider's JSON response.
package detector

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/cuongbtq/offer-importer/internal/domain"
	"github.com/tidwall/gjson"
)

const (
	// maxDepth is how many object levels below the record are flattened.
	maxDepth     = 3
	maxSampleLen = 100
)

// ErrInvalidSample is returned when the sample is not a JSON object.
var ErrInvalidSample = errors.New("sample record must be a JSON object")

// Field is one detected leaf of a sample record.
type Field struct {
	Name        string                    `json:"name"`
	Type        domain.TransformationType `json:"type"`
	Sample      string                    `json:"sample"`
	Description string                    `json:"description"`
}

// Detect flattens sample into dotted paths in document order. Every Name is
// a valid lookup path for the mapping engine.
func Detect(sample []byte) ([]Field, error) {
	if !gjson.ValidBytes(sample) {
		return nil, fmt.Errorf("%w: invalid JSON", ErrInvalidSample)
	}
	root := gjson.ParseBytes(sample)
	if !root.IsObject() {
		return nil, ErrInvalidSample
	}
	return DetectRecord(root), nil
}

// DetectRecord is Detect for an already parsed record.
func DetectRecord(record gjson.Result) []Field {
	fields := make([]Field, 0, 16)
	walk(record, "", 0, &fields)
	return fields
}

func walk(obj gjson.Result, prefix string, depth int, out *[]Field) {
	obj.ForEach(func(key, value gjson.Result) bool {
		rawKey := key.String()
		name := joinPath(prefix, EscapeKey(rawKey))

		switch {
		case value.IsObject():
			if depth+1 > maxDepth || isEmpty(value) {
				*out = append(*out, Field{
					Name:        name,
					Type:        domain.TransformString,
					Sample:      summarizeObject(value),
					Description: describe(rawKey),
				})
				return true
			}
			walk(value, name, depth+1, out)

		case value.IsArray():
			items := value.Array()
			*out = append(*out, Field{
				Name:        name,
				Type:        domain.TransformString,
				Sample:      fmt.Sprintf("Array[%d]", len(items)),
				Description: describe(rawKey),
			})
			if len(items) > 0 && items[0].IsObject() && depth+1 <= maxDepth {
				walk(items[0], name+".0", depth+1, out)
			}

		default:
			*out = append(*out, Field{
				Name:        name,
				Type:        InferType(value),
				Sample:      SampleValue(value),
				Description: describe(rawKey),
			})
		}
		return true
	})
}

func joinPath(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}

// EscapeKey escapes the characters gjson treats as path syntax.
func EscapeKey(key string) string {
	if !strings.ContainsAny(key, `.*?|#@\!`) {
		return key
	}
	var b strings.Builder
	for _, r := range key {
		switch r {
		case '.', '*', '?', '|', '#', '@', '\\', '!':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

func isEmpty(obj gjson.Result) bool {
	empty := true
	obj.ForEach(func(_, _ gjson.Result) bool {
		empty = false
		return false
	})
	return empty
}

// summarizeObject renders an object too deep to flatten as its first keys.
func summarizeObject(obj gjson.Result) string {
	keys := make([]string, 0, 3)
	obj.ForEach(func(key, _ gjson.Result) bool {
		keys = append(keys, key.String())
		return len(keys) < 3
	})
	if len(keys) == 0 {
		return ""
	}
	return "{" + strings.Join(keys, ", ") + "}"
}

var datePrefix = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}`)

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// IsDateLike reports whether s is an ISO-8601 date or datetime.
func IsDateLike(s string) bool {
	s = strings.TrimSpace(s)
	if !datePrefix.MatchString(s) {
		return false
	}
	for _, layout := range dateLayouts {
		if _, err := time.Parse(layout, s); err == nil {
			return true
		}
	}
	return false
}

// InferType classifies a scalar JSON value.
func InferType(v gjson.Result) domain.TransformationType {
	switch v.Type {
	case gjson.Number:
		return domain.TransformNumber
	case gjson.String:
		if IsDateLike(v.Str) {
			return domain.TransformDate
		}
	}
	return domain.TransformString
}

// SampleValue renders a scalar for display, trimmed and capped at 100 runes.
func SampleValue(v gjson.Result) string {
	var s string
	switch v.Type {
	case gjson.Null:
		return ""
	case gjson.String:
		s = strings.TrimSpace(v.Str)
	default:
		s = v.Raw
	}
	if utf8.RuneCountInString(s) > maxSampleLen {
		runes := []rune(s)
		s = string(runes[:maxSampleLen]) + "..."
	}
	return s
}
