package catalog

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Localizer resolves messages for one locale. Missing or empty translations
// fall back to a caller-supplied default so labels never render as raw keys.
type Localizer struct {
	bundle  *Bundle
	locale  string
	printer *message.Printer
}

// Localizer returns a localizer for locale. Unknown locales resolve through
// the base locale.
func (b *Bundle) Localizer(locale string) *Localizer {
	locale = strings.TrimSpace(locale)
	if !b.HasLocale(locale) {
		locale = BaseLocale
	}
	tag, err := language.Parse(locale)
	if err != nil {
		tag = language.AmericanEnglish
	}
	return &Localizer{bundle: b, locale: locale, printer: message.NewPrinter(tag)}
}

// Locale returns the resolved locale.
func (l *Localizer) Locale() string {
	return l.locale
}

// Has reports whether key has a non-empty translation.
func (l *Localizer) Has(key string) bool {
	value, ok := l.bundle.Message(l.locale, key)
	return ok && value != ""
}

// Localize returns the translation of key formatted with args, or fallback
// formatted with args when there is none.
func (l *Localizer) Localize(key string, fallback string, args ...any) string {
	value, ok := l.bundle.Message(l.locale, key)
	if !ok || value == "" {
		if len(args) == 0 {
			return fallback
		}
		return fmt.Sprintf(fallback, args...)
	}
	if len(args) == 0 {
		return value
	}
	return l.printer.Sprintf(value, args...)
}

// KeySegment turns a display value into a catalog key segment by replacing
// spaces with underscores.
func KeySegment(value string) string {
	return strings.ReplaceAll(strings.TrimSpace(value), " ", "_")
}
