// Package locale maps language hints onto the locales the product ships.
package locale

import (
	"golang.org/x/text/language"
)

// Default is used when nothing better matches.
const Default = "en"

var (
	supported = []language.Tag{
		language.English,
		language.MustParse("nl-BE"),
		language.MustParse("fr-BE"),
	}
	matcher = language.NewMatcher(supported)
)

// Supported lists the shipped locale codes.
func Supported() []string {
	out := make([]string, len(supported))
	for i, t := range supported {
		out[i] = t.String()
	}
	return out
}

// IsSupported reports whether code is one of the shipped locales.
func IsSupported(code string) bool {
	for _, t := range supported {
		if t.String() == code {
			return true
		}
	}
	return false
}

// Match maps a language code such as "nl" or "fr-FR" onto a shipped locale.
func Match(code string) string {
	if code == "" {
		return Default
	}
	tag, err := language.Parse(code)
	if err != nil {
		return Default
	}
	return pick(tag)
}

// FromAcceptLanguage resolves an Accept-Language header.
func FromAcceptLanguage(header string) string {
	tags, _, err := language.ParseAcceptLanguage(header)
	if err != nil || len(tags) == 0 {
		return Default
	}
	return pick(tags...)
}

// Resolve picks the locale for a request: explicit cookie first, then the
// stored profile preference, then the browser header.
func Resolve(cookie, preferred, acceptLanguage string) string {
	if cookie != "" {
		return Match(cookie)
	}
	if preferred != "" {
		return Match(preferred)
	}
	return FromAcceptLanguage(acceptLanguage)
}

func pick(tags ...language.Tag) string {
	_, idx, conf := matcher.Match(tags...)
	if conf == language.No {
		return Default
	}
	return supported[idx].String()
}
