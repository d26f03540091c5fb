package mapping

import (
	"fmt"
	"net/url"
	"strings"
	"unicode"

	"github.com/cuongbtq/offer-importer/internal/domain"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// ruleSeparator chains several rules in one TransformationRule.
const ruleSeparator = "|"

// rule rewrites a value before type conversion. present reports whether the
// source had a value at all.
type rule func(s string, present bool) (string, bool)

// ValidateRule reports whether raw is a usable TransformationRule such as
// "trim|lower" or "base_url:https://example.com/jobs/".
func ValidateRule(raw string) error {
	_, err := parseRules(raw)
	return err
}

func parseRules(raw string) ([]rule, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}

	var out []rule
	for _, part := range strings.Split(raw, ruleSeparator) {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, arg, _ := strings.Cut(part, ":")
		r, err := compileRule(strings.ToLower(strings.TrimSpace(name)), arg)
		if err != nil {
			return nil, fmt.Errorf("%w: rule %q: %v", domain.ErrInvalidMapping, part, err)
		}
		out = append(out, r)
	}
	return out, nil
}

func compileRule(name, arg string) (rule, error) {
	switch name {
	case "trim":
		return onPresent(strings.TrimSpace), nil
	case "lower":
		return onPresent(strings.ToLower), nil
	case "upper":
		return onPresent(strings.ToUpper), nil
	case "ascii":
		return onPresent(foldASCII), nil
	case "prefix":
		return onPresent(func(s string) string {
			if s == "" || strings.HasPrefix(s, arg) {
				return s
			}
			return arg + s
		}), nil
	case "suffix":
		return onPresent(func(s string) string {
			if s == "" || strings.HasSuffix(s, arg) {
				return s
			}
			return s + arg
		}), nil
	case "default":
		return func(s string, present bool) (string, bool) {
			if !present || strings.TrimSpace(s) == "" {
				return arg, true
			}
			return s, true
		}, nil
	case "base_url":
		base, err := url.Parse(strings.TrimSpace(arg))
		if err != nil || !base.IsAbs() {
			return nil, fmt.Errorf("base_url needs an absolute URL")
		}
		if !strings.HasSuffix(base.Path, "/") {
			base.Path += "/"
		}
		return onPresent(func(s string) string {
			return resolveURL(base, s)
		}), nil
	}
	return nil, fmt.Errorf("unknown rule")
}

func onPresent(fn func(string) string) rule {
	return func(s string, present bool) (string, bool) {
		if !present {
			return s, false
		}
		return fn(s), true
	}
}

func resolveURL(base *url.URL, s string) string {
	s = strings.TrimSpace(s)
	if s == "" || strings.HasPrefix(s, "//") {
		return s
	}
	ref, err := url.Parse(s)
	if err != nil || ref.IsAbs() {
		return s
	}
	return base.ResolveReference(ref).String()
}

// foldASCII strips combining marks, so "Logroño" becomes "Logrono".
func foldASCII(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}
