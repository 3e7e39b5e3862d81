// Package render turns a response key, a locale and structured data into
// final user-facing text plus call-to-action labels. Templates live in a
// declarative catalogue loaded once at startup.
package render

import (
	_ "embed"
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

// Template keys used by the orchestrator.
const (
	KeySmalltalk          = "smalltalk"
	KeyFallback           = "fallback"
	KeySearchAnswer       = "search_answer"
	KeyEscalated          = "escalated"
	KeyEscalatedTicket    = "escalated_ticket"
	KeyAskSlot            = "ask_slot"
	KeyConfirmCorrection  = "confirm_correction"
	KeyCorrectionDeclined = "correction_declined"
	KeyInvalidTracking    = "invalid_tracking"
	KeyToolFailure        = "tool_failure"
	KeyTechnicalProblem   = "technical_problem"
	KeyTrackingStatus     = "tracking_status"
	KeyPODReady           = "pod_ready"
	KeyInvoicesList       = "invoices_list"
	KeyInvoicePDF         = "invoice_pdf"
	KeyQuoteResult        = "quote_result"
	KeyNotificationsOn    = "notifications_on"
)

//go:embed templates/catalog.yaml
var defaultCatalogYAML []byte

// Catalog holds the template and CTA tables, keyed by locale then key.
type Catalog struct {
	Templates map[string]map[string]string   `yaml:"templates"`
	CTAs      map[string]map[string][]string `yaml:"ctas"`
}

// DefaultCatalog parses the embedded catalogue.
func DefaultCatalog() (*Catalog, error) {
	return parseCatalog(defaultCatalogYAML)
}

// LoadCatalog reads a catalogue from a YAML file; an empty path yields the
// embedded defaults.
func LoadCatalog(path string) (*Catalog, error) {
	if path == "" {
		return DefaultCatalog()
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("templates %q: %w", path, err)
	}
	return parseCatalog(raw)
}

func parseCatalog(raw []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("templates: parse: %w", err)
	}
	if len(c.Templates) == 0 {
		return nil, fmt.Errorf("templates: no locales declared")
	}
	for locale, t := range c.Templates {
		if t[KeyFallback] == "" {
			return nil, fmt.Errorf("templates: locale %q has no %q template", locale, KeyFallback)
		}
	}
	return &c, nil
}

// Renderer resolves (key, locale) pairs against the catalogue.
type Renderer struct {
	catalog       *Catalog
	defaultLocale string
}

func NewRenderer(catalog *Catalog, defaultLocale string) *Renderer {
	return &Renderer{catalog: catalog, defaultLocale: defaultLocale}
}

var placeholderRe = regexp.MustCompile(`\{\{([A-Za-z0-9_]+)\}\}`)

// Render looks up the template for (key, locale), substitutes {{field}}
// placeholders from data in a single pass and returns the message with its
// CTA list. Missing template keys fall back to the locale's generic
// "I don't understand" message; missing data keys leave the placeholder
// verbatim. Data lookup is flat: nested values must be pre-flattened by
// the caller.
func (r *Renderer) Render(key, locale string, data map[string]any) (string, []string) {
	tpl := r.lookupTemplate(key, locale)
	msg := placeholderRe.ReplaceAllStringFunc(tpl, func(ph string) string {
		name := ph[2 : len(ph)-2]
		if v, ok := data[name]; ok {
			return fmt.Sprint(v)
		}
		return ph
	})
	return msg, r.lookupCTAs(key, locale)
}

func (r *Renderer) lookupTemplate(key, locale string) string {
	for _, loc := range []string{locale, r.defaultLocale} {
		if t, ok := r.catalog.Templates[loc]; ok {
			if s := t[key]; s != "" {
				return s
			}
		}
	}
	// Generic "I don't understand" in the requested locale, then default.
	for _, loc := range []string{locale, r.defaultLocale} {
		if t, ok := r.catalog.Templates[loc]; ok {
			if s := t[KeyFallback]; s != "" {
				return s
			}
		}
	}
	return ""
}

func (r *Renderer) lookupCTAs(key, locale string) []string {
	for _, loc := range []string{locale, r.defaultLocale} {
		if c, ok := r.catalog.CTAs[loc]; ok {
			if ctas := c[key]; len(ctas) > 0 {
				return append([]string(nil), ctas...)
			}
		}
	}
	for _, loc := range []string{locale, r.defaultLocale} {
		if c, ok := r.catalog.CTAs[loc]; ok {
			if ctas := c["default"]; len(ctas) > 0 {
				return append([]string(nil), ctas...)
			}
		}
	}
	return nil
}

// AskKey returns the template key used to ask for a missing slot, falling
// back to the generic ask template when no specific one exists.
func (r *Renderer) AskKey(slot, locale string) string {
	key := "ask_" + slot
	for _, loc := range []string{locale, r.defaultLocale} {
		if t, ok := r.catalog.Templates[loc]; ok && t[key] != "" {
			return key
		}
	}
	return KeyAskSlot
}
