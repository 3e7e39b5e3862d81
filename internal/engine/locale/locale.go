// Package locale decides the active language for a turn.
package locale

import (
	"strings"

	"github.com/nextmove-ai/convocore/internal/engine/model"
)

// Supported locales.
const (
	French  = "fr"
	English = "en"
)

// Marker words used by the message heuristic. Only unambiguous, frequent
// words belong here; anything shared between the two languages hurts more
// than it helps.
var (
	frenchMarkers = []string{
		"bonjour", "salut", "merci", "oui", "non", "svp", "colis",
		"suivre", "suivi", "facture", "devis", "livraison", "combien",
		"je", "mon", "ma", "mes", "vous", "est", "où", "coûte",
	}
	englishMarkers = []string{
		"hello", "hi", "thanks", "please", "track", "tracking",
		"invoice", "quote", "shipment", "delivery", "where", "my",
		"the", "is", "how", "much", "want", "need",
	}
)

// Detector picks a locale from the user profile, the message content and
// the configured default, in that order of authority.
type Detector struct {
	defaultLocale string
}

func NewDetector(defaultLocale string) *Detector {
	if defaultLocale == "" {
		defaultLocale = French
	}
	return &Detector{defaultLocale: defaultLocale}
}

// Detect returns the locale for this turn. An explicit user preference
// always wins; otherwise marker words in the message decide; a silent
// message (a bare code, a city name) falls back to the default.
func (d *Detector) Detect(text string, sess *model.Session) string {
	if sess != nil && sess.Preferences.Locale != "" {
		return sess.Preferences.Locale
	}

	tokens := strings.Fields(strings.ToLower(text))
	fr := countHits(tokens, frenchMarkers)
	en := countHits(tokens, englishMarkers)

	switch {
	case fr > en:
		return French
	case en > fr:
		return English
	default:
		return d.defaultLocale
	}
}

// Default returns the configured default locale.
func (d *Detector) Default() string {
	return d.defaultLocale
}

func countHits(tokens, markers []string) int {
	n := 0
	for _, tok := range tokens {
		tok = strings.Trim(tok, ".,;:!?\"'()[]")
		for _, m := range markers {
			if tok == m {
				n++
				break
			}
		}
	}
	return n
}
