// Package phone normalizes Dutch phone numbers into the canonical encodings a
// CRM record might use. Contacts are stored with inconsistent formatting
// (0612345678, +31612345678, 06-12345678), so a lookup has to try all of them.
package phone

import (
	"regexp"
	"strings"
)

// Formats holds the canonical representations of one raw phone number.
type Formats struct {
	Clean         string // domestic digits only, e.g. 0612345678
	International string // +31 prefixed, e.g. +31612345678
	Hyphenated    string // separator after the area/mobile prefix, e.g. 06-12345678
}

const (
	countryPrefix = "+31"
	trunkPrefix   = "0"
)

var (
	nonDigits = regexp.MustCompile(`\D`)

	// Mobile numbers: 06 plus eight digits.
	mobilePattern = regexp.MustCompile(`^06\d{8}$`)
	// Three-digit geographic area codes (large cities and regions).
	shortAreaPattern = regexp.MustCompile(`^0(10|13|14|15|20|23|24|26|30|33|35|36|38|40|43|45|46|50|53|55|58|70|71|72|73|74|75|76|77|78|79|85|88)\d{7}$`)
	// Remaining ten-digit numbers with a trunk zero carry a four-digit area code.
	longAreaPattern = regexp.MustCompile(`^0\d{9}$`)
)

// Normalize turns a raw phone string into its canonical formats. It is total:
// malformed input degrades to best-effort forms instead of failing.
func Normalize(raw string) Formats {
	trimmed := strings.TrimSpace(raw)

	var clean, international string
	switch {
	case strings.HasPrefix(trimmed, countryPrefix):
		clean = trunkPrefix + digitsOnly(strings.TrimPrefix(trimmed, countryPrefix))
		international = countryPrefix + digitsOnly(strings.TrimPrefix(trimmed, countryPrefix))
	case strings.HasPrefix(trimmed, trunkPrefix):
		clean = digitsOnly(trimmed)
		international = countryPrefix + strings.TrimPrefix(clean, trunkPrefix)
	default:
		// No reliable prefix rule; pass the original through unchanged.
		clean = digitsOnly(trimmed)
		international = trimmed
	}

	return Formats{
		Clean:         clean,
		International: international,
		Hyphenated:    hyphenate(clean),
	}
}

// All returns the formats as a slice, in lookup order.
func (f Formats) All() []string {
	return []string{f.Clean, f.International, f.Hyphenated}
}

// hyphenate inserts a separator after the area or mobile prefix. Numbers that
// match none of the known shapes are returned without a separator.
func hyphenate(clean string) string {
	switch {
	case mobilePattern.MatchString(clean):
		return clean[:2] + "-" + clean[2:]
	case shortAreaPattern.MatchString(clean):
		return clean[:3] + "-" + clean[3:]
	case longAreaPattern.MatchString(clean):
		return clean[:4] + "-" + clean[4:]
	default:
		return clean
	}
}

func digitsOnly(s string) string {
	return nonDigits.ReplaceAllString(s, "")
}
