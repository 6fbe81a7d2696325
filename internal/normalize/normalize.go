// Package normalize reduces free-text company names and role titles to comparison keys.
package normalize

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	companySuffixExpr = regexp.MustCompile(
		`(?i)(?:,\s*|\s+)(?:inc|llc|ltd|corp|corporation|company|co|incorporated|limited|gmbh|plc)\.?\s*$`)
	nonAlnumExpr   = regexp.MustCompile(`[^\p{L}\p{N}\s]+`)
	whitespaceExpr = regexp.MustCompile(`\s+`)

	abbreviationExpr = regexp.MustCompile(`\b(swe|sde|ml|ai|fe|be|qa|ui|ux)\b`)
	internshipExpr   = regexp.MustCompile(`\binternship\b`)
	seasonYearExpr   = regexp.MustCompile(`\b(?:spring|summer|fall|autumn|winter)\s+\d{4}\b`)
	bareYearExpr     = regexp.MustCompile(`\b20\d{2}\b`)
	roleSeparators   = strings.NewReplacer("-", " ", "–", " ", "—", " ", "/", " ", ",", " ", "(", " ", ")", " ", "|", " ")
)

var abbreviations = map[string]string{
	"swe": "software engineer",
	"sde": "software development engineer",
	"ml":  "machine learning",
	"ai":  "artificial intelligence",
	"fe":  "frontend",
	"be":  "backend",
	"qa":  "quality assurance",
	"ui":  "user interface",
	"ux":  "user experience",
}

// Company returns the comparison key for a company name. Empty input yields an empty key.
func Company(raw string) string {
	name := strings.ToLower(strings.TrimSpace(foldDiacritics(raw)))
	if name == "" {
		return ""
	}

	name = companySuffixExpr.ReplaceAllString(name, "")

	name = nonAlnumExpr.ReplaceAllString(name, " ")
	name = whitespaceExpr.ReplaceAllString(name, " ")
	return strings.TrimSpace(name)
}

// Role returns the comparison key for a role title.
func Role(raw string) string {
	role := strings.ToLower(strings.TrimSpace(foldDiacritics(raw)))
	if role == "" {
		return ""
	}

	role = abbreviationExpr.ReplaceAllStringFunc(role, func(m string) string {
		return abbreviations[m]
	})
	role = internshipExpr.ReplaceAllString(role, "intern")
	role = seasonYearExpr.ReplaceAllString(role, "")
	role = bareYearExpr.ReplaceAllString(role, "")
	role = roleSeparators.Replace(role)
	role = whitespaceExpr.ReplaceAllString(role, " ")
	return strings.TrimSpace(role)
}

var unknownExact = map[string]struct{}{
	"unknown":             {},
	"n/a":                 {},
	"na":                  {},
	"not specified":       {},
	"not found":           {},
	"not in email":        {},
	"not mentioned":       {},
	"cannot determine":    {},
	"could not determine": {},
	"unclear":             {},
	"none":                {},
	"null":                {},
	"not available":       {},
}

var unknownContains = []string{
	"not in email content",
	"cannot be determined",
	"not provided",
}

// IsUnknown reports whether an extracted value is empty or a placeholder phrase
// that must be replaced before it reaches an application record.
func IsUnknown(raw string) bool {
	value := strings.ToLower(strings.TrimSpace(raw))
	if value == "" {
		return true
	}
	if _, ok := unknownExact[value]; ok {
		return true
	}
	for _, phrase := range unknownContains {
		if strings.Contains(value, phrase) {
			return true
		}
	}
	return false
}

func foldDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	result, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return result
}
