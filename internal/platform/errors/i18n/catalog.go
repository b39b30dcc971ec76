// Package i18n provides internationalization support for error messages.
package i18n

import (
	"bytes"
	"strings"
	"sync"
	"text/template"

	"golang.org/x/text/language"
)

// Code is a machine-readable error code (duplicated from errors package to avoid cycle).
type Code = string

// BaseLocale is the fallback locale for every lookup.
const BaseLocale = "en-US"

// Catalog maps error codes to message templates for a specific locale.
type Catalog struct {
	locale   string
	messages map[Code]string
}

var (
	catalogsMu sync.RWMutex
	// catalogs holds built-in and registered catalogs by locale.
	catalogs = map[string]*Catalog{
		enUSCatalog.locale: enUSCatalog,
		ptBRCatalog.locale: ptBRCatalog,
	}
	matcherMu sync.Mutex
	matcher   language.Matcher
	supported []string
)

// GetCatalog returns the catalog for the given locale.
// Falls back to en-US if the locale is not found.
func GetCatalog(locale string) *Catalog {
	requested := strings.TrimSpace(locale)
	if requested == "" {
		requested = BaseLocale
	}
	if c, ok := lookupCatalog(requested); ok {
		return c
	}
	tag, err := language.Parse(requested)
	if err != nil {
		return mustBase()
	}
	return GetCatalogForTags([]language.Tag{tag})
}

// GetCatalogForAcceptLanguage resolves an Accept-Language header to the best catalog.
func GetCatalogForAcceptLanguage(header string) *Catalog {
	tags, _, err := language.ParseAcceptLanguage(header)
	if err != nil || len(tags) == 0 {
		return mustBase()
	}
	return GetCatalogForTags(tags)
}

// GetCatalogForTags returns the catalog that best matches the preferred tags.
func GetCatalogForTags(tags []language.Tag) *Catalog {
	m, locales := currentMatcher()
	_, index, confidence := m.Match(tags...)
	if confidence == language.No || index < 0 || index >= len(locales) {
		return mustBase()
	}
	if c, ok := lookupCatalog(locales[index]); ok {
		return c
	}
	return mustBase()
}

// Locale returns the locale of this catalog.
func (c *Catalog) Locale() string {
	return c.locale
}

// Format renders the message template with the given metadata.
// Falls back to the error code itself if no template is found.
// Templates are always executed even with nil/empty metadata to ensure
// consistent output (template variables without metadata render as empty).
func (c *Catalog) Format(code Code, metadata map[string]string) string {
	tmpl, ok := c.messages[code]
	if !ok {
		return code
	}

	if metadata == nil {
		metadata = map[string]string{}
	}

	t, err := template.New("msg").Parse(tmpl)
	if err != nil {
		return tmpl
	}

	var buf bytes.Buffer
	if err := t.Execute(&buf, metadata); err != nil {
		return tmpl
	}
	return buf.String()
}

// RegisterCatalog registers a new catalog for the given locale.
// Callers should only use this during init or test setup.
func RegisterCatalog(locale string, cat *Catalog) {
	catalogsMu.Lock()
	catalogs[locale] = cat
	catalogsMu.Unlock()

	matcherMu.Lock()
	matcher = nil
	matcherMu.Unlock()
}

// NewCatalog creates a new catalog with the given locale and messages.
func NewCatalog(locale string, messages map[Code]string) *Catalog {
	cloned := make(map[Code]string, len(messages))
	for key, value := range messages {
		cloned[key] = value
	}
	return &Catalog{
		locale:   locale,
		messages: cloned,
	}
}

func lookupCatalog(locale string) (*Catalog, bool) {
	catalogsMu.RLock()
	defer catalogsMu.RUnlock()
	cat, ok := catalogs[locale]
	return cat, ok
}

func mustBase() *Catalog {
	cat, _ := lookupCatalog(BaseLocale)
	return cat
}

// currentMatcher builds the language matcher lazily; the base locale is always first
// so it wins when nothing else matches.
func currentMatcher() (language.Matcher, []string) {
	matcherMu.Lock()
	defer matcherMu.Unlock()
	if matcher != nil {
		return matcher, supported
	}

	catalogsMu.RLock()
	locales := []string{BaseLocale}
	for locale := range catalogs {
		if locale != BaseLocale {
			locales = append(locales, locale)
		}
	}
	catalogsMu.RUnlock()

	tags := make([]language.Tag, 0, len(locales))
	kept := make([]string, 0, len(locales))
	for _, locale := range locales {
		tag, err := language.Parse(locale)
		if err != nil {
			continue
		}
		tags = append(tags, tag)
		kept = append(kept, locale)
	}
	matcher = language.NewMatcher(tags)
	supported = kept
	return matcher, supported
}
