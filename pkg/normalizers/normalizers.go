// Package normalizers canonicalizes lead identity fields into comparable keys and
// holds the named value transforms field mappings can reference.
package normalizers

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
)

// Normalizer is a function that normalizes a string value
type Normalizer func(string) string

var registry = make(map[string]Normalizer)

func init() {
	Register("lowercase", Lowercase)
	Register("uppercase", Uppercase)
	Register("trim", Trim)
	Register("nphone", NormalizePhone)
	Register("nemail", NormalizeEmail)
	Register("nkey", Normalize)
	Register("digits_only", DigitsOnly)
	Register("collapse_whitespace", CollapseWhitespace)
	Register("title", Title)
}

// Register adds a normalizer to the registry
func Register(name string, fn Normalizer) {
	registry[name] = fn
}

// Get retrieves a normalizer by name
func Get(name string) (Normalizer, bool) {
	fn, ok := registry[name]
	return fn, ok
}

// Apply applies a named normalizer to a value. Unknown names leave the value as is.
func Apply(value, normalizer string) string {
	fn, ok := registry[normalizer]
	if !ok {
		return value
	}
	return fn(value)
}

// ApplyChain applies multiple normalizers in sequence
func ApplyChain(value string, normalizers ...string) string {
	result := value
	for _, name := range normalizers {
		result = Apply(result, name)
	}
	return result
}

// legalSuffixes are dropped as whole words from company keys.
var legalSuffixes = map[string]bool{
	"inc":          true,
	"llc":          true,
	"ltd":          true,
	"corp":         true,
	"co":           true,
	"incorporated": true,
	"limited":      true,
	"corporation":  true,
	"company":      true,
}

// foldCase maps s to a caseless form. Upper-casing first sends letters like the
// Turkish dotless i and the Greek final sigma to the same fold as their capitals.
// A Caser is stateful, so each call gets its own.
func foldCase(s string) string {
	return cases.Fold().String(strings.ToUpper(s))
}

// Normalize canonicalizes free text into a comparison key: case folded, punctuation
// stripped, whitespace collapsed, legal-entity suffix words removed.
func Normalize(s string) string {
	var b strings.Builder
	for _, r := range foldCase(s) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteRune(' ')
		case r == '&' || r == '/' || r == '-' || r == '_':
			// word separators inside names ("a&b", "tampa-bay")
			b.WriteRune(' ')
		}
	}

	words := strings.Fields(b.String())
	kept := words[:0]
	for _, w := range words {
		if legalSuffixes[w] {
			continue
		}
		kept = append(kept, w)
	}
	return strings.Join(kept, " ")
}

// IdentityKey is the composite company+city key. It is empty when either part
// normalizes to empty, and an empty key never identifies anything.
func IdentityKey(company, city string) string {
	c := Normalize(company)
	l := Normalize(city)
	if c == "" || l == "" {
		return ""
	}
	return c + "|" + l
}

// NormalizePhone keeps the digits of a phone number. Numbers with fewer than
// seven digits are treated as absent, and a leading US country code is dropped.
func NormalizePhone(s string) string {
	digits := DigitsOnly(s)
	if len(digits) < 7 {
		return ""
	}
	if len(digits) == 11 && digits[0] == '1' {
		return digits[1:]
	}
	return digits
}

// NormalizeEmail normalizes an email address (lowercase, trim)
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func Lowercase(s string) string {
	return strings.ToLower(s)
}

func Uppercase(s string) string {
	return strings.ToUpper(s)
}

func Trim(s string) string {
	return strings.TrimSpace(s)
}

// CollapseWhitespace trims and folds runs of whitespace into single spaces.
func CollapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Title upper-cases the first letter of every word and lower-cases the rest.
func Title(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		runes := []rune(strings.ToLower(w))
		runes[0] = unicode.ToUpper(runes[0])
		words[i] = string(runes)
	}
	return strings.Join(words, " ")
}

// DigitsOnly keeps only digit characters
func DigitsOnly(s string) string {
	var result strings.Builder
	for _, r := range s {
		if unicode.IsDigit(r) {
			result.WriteRune(r)
		}
	}
	return result.String()
}
