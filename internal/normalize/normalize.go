// Package normalize canonicalises location names, postcodes and websites so
// that independently scraped records can be compared.
package normalize

import (
	"net/url"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// stopwords are descriptors shared by most retail sites and carry no identity.
var stopwords = map[string]bool{
	"the":      true,
	"shopping": true,
	"centre":   true,
	"center":   true,
	"mall":     true,
	"park":     true,
	"retail":   true,
}

var stripAccents = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// UK postcode in its compact (no space) form, e.g. PE11NT, SW1A1AA.
var rePostcode = regexp.MustCompile(`^[A-Z]{1,2}\d[A-Z\d]?\d[ABD-HJLNP-UW-Z]{2}$`)

// Name lowercases the input, folds accents, drops stopwords and strips every
// non-alphanumeric character. Name(Name(x)) == Name(x).
func Name(raw string) string {
	var b strings.Builder
	for _, tok := range tokens(raw) {
		if stopwords[tok] {
			continue
		}
		b.WriteString(tok)
	}
	out := b.String()
	if stopwords[out] {
		// "re tail" would otherwise become a stopword on the next pass
		return ""
	}
	return out
}

// Compact is Name without stopword removal. It gives names made only of
// stopwords ("The Mall") a usable comparison key.
func Compact(raw string) string {
	return strings.Join(tokens(raw), "")
}

func tokens(raw string) []string {
	folded, _, err := transform.String(stripAccents, strings.ToLower(raw))
	if err != nil {
		folded = strings.ToLower(raw)
	}
	return strings.FieldsFunc(folded, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// Postcode removes all whitespace and uppercases.
func Postcode(raw string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return unicode.ToUpper(r)
	}, raw)
}

// ValidPostcode reports whether a normalized postcode has the UK shape.
func ValidPostcode(normalized string) bool {
	return rePostcode.MatchString(normalized)
}

// Website reduces a URL to host[/path] with scheme, "www.", query, fragment
// and trailing slashes removed. Input that cannot be parsed yields "".
func Website(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" {
		return ""
	}
	if !strings.Contains(s, "://") {
		s = "https://" + s
	}
	u, err := url.Parse(s)
	if err != nil || u.Hostname() == "" {
		return ""
	}
	host := strings.TrimPrefix(u.Hostname(), "www.")
	path := strings.TrimRight(u.EscapedPath(), "/")
	return host + path
}

// Host returns the host part of a value produced by Website.
func Host(website string) string {
	host, _, _ := strings.Cut(website, "/")
	return host
}
