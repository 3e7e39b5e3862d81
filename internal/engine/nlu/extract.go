package nlu

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/nextmove-ai/convocore/internal/engine/model"
)

// Extractor pulls typed entity candidates out of a message, independent of
// intent. It runs a fixed battery of independent extractors; each returns
// at most one best match and all that fire populate the result map. A
// numeric string that could be either a tracking code or an invoice number
// goes to the tracking extractor, which runs first and is more specific.
type Extractor struct {
	cities   []cityEntry
	modes    []keywordEntry
	channels []keywordEntry

	reInvoice *regexp.Regexp
	reNumber  *regexp.Regexp
	reWeight  *regexp.Regexp
	reVolume  *regexp.Regexp
	reAmount  *regexp.Regexp
}

type cityEntry struct {
	lower     string
	canonical string
}

type keywordEntry struct {
	keyword   string
	canonical string
}

// Static conversion rates used to normalize money amounts to XOF for the
// escalation threshold comparison. The fx tool owns the user-facing rates.
var amountToXOF = map[string]float64{
	"fcfa": 1, "xof": 1, "cfa": 1, "franc": 1, "francs": 1,
	"eur": 655.957, "euro": 655.957, "euros": 655.957, "€": 655.957,
	"usd": 600, "dollar": 600, "dollars": 600, "$": 600,
}

// NewExtractor builds an extractor from the rule tables.
func NewExtractor(rules *Rules) *Extractor {
	e := &Extractor{
		reInvoice: regexp.MustCompile(`\b(?:inv|fac|fct)[-/]?(\d{3,10})\b`),
		reNumber:  regexp.MustCompile(`\b(\d{3,10})\b`),
		reWeight:  regexp.MustCompile(`(\d+(?:[.,]\d+)?)\s*(kg|kilos?|kilogrammes?|tonnes?|t)\b`),
		reVolume:  regexp.MustCompile(`(\d+(?:[.,]\d+)?)\s*(m3|m³|cbm)\b`),
		reAmount:  regexp.MustCompile(`(\d[\d .]*(?:[.,]\d+)?)\s*(fcfa|xof|cfa|francs?|euros?|eur|€|dollars?|usd|\$)`),
	}
	for _, c := range rules.Gazetteer.Cities {
		e.cities = append(e.cities, cityEntry{lower: Normalize(c), canonical: c})
	}
	e.modes = flattenKeywords(rules.TransportModes)
	e.channels = flattenKeywords(rules.Channels)
	return e
}

// flattenKeywords turns canonical→synonyms maps into a deterministic list,
// longest keyword first so "fret aérien" wins over "air".
func flattenKeywords(m map[string][]string) []keywordEntry {
	var out []keywordEntry
	for canonical, kws := range m {
		for _, kw := range kws {
			out = append(out, keywordEntry{keyword: Normalize(kw), canonical: canonical})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if len(out[i].keyword) != len(out[j].keyword) {
			return len(out[i].keyword) > len(out[j].keyword)
		}
		return out[i].keyword < out[j].keyword
	})
	return out
}

// Extract runs every extractor over the message and returns the populated
// entity map. No side effects.
func (e *Extractor) Extract(text string) model.EntitySet {
	ents := model.EntitySet{}
	norm := Normalize(text)

	e.extractTracking(text, ents)
	e.extractInvoice(norm, ents)
	e.extractCities(norm, ents)
	e.extractKeyword(norm, e.modes, EntityTransportMode, ents)
	e.extractKeyword(norm, e.channels, EntityChannel, ents)
	e.extractWeight(norm, ents)
	e.extractVolume(norm, ents)
	e.extractAmount(norm, ents)

	return ents
}

// extractTracking claims either an already-valid code or a purely numeric
// run of plausible length (left for the validator to repair). Purely
// alphabetic words are never claimed here: nearly every long word would
// qualify.
func (e *Extractor) extractTracking(text string, ents model.EntitySet) {
	var best *model.Entity
	offset := 0
	for _, field := range strings.Fields(text) {
		start := strings.Index(text[offset:], field) + offset
		offset = start + len(field)

		token := strings.Trim(field, ".,;:!?\"'()[]")
		if token == "" {
			continue
		}
		code := NormalizeTrackingCode(token)

		switch {
		case IsValidTrackingCode(code):
			ents[EntityTrackingCode] = model.Entity{
				Value:      token,
				Normalized: code,
				Confidence: 0.95,
				Start:      start,
				End:        start + len(field),
			}
			return
		case isAllDigits(code) && len(code) >= trackingMinLen && len(code) <= trackingMaxLen:
			if best == nil {
				best = &model.Entity{
					Value:      token,
					Normalized: code,
					Confidence: 0.6,
					Start:      start,
					End:        start + len(field),
				}
			}
		}
	}
	if best != nil {
		ents[EntityTrackingCode] = *best
	}
}

// extractInvoice matches explicit invoice references (INV-1234, FAC2024)
// and, when the message talks about invoices, bare numbers not already
// claimed as a tracking candidate.
func (e *Extractor) extractInvoice(norm string, ents model.EntitySet) {
	if m := e.reInvoice.FindStringSubmatchIndex(norm); m != nil {
		ents[EntityInvoiceNumber] = model.Entity{
			Value:      norm[m[0]:m[1]],
			Normalized: strings.ToUpper(norm[m[0]:m[1]]),
			Confidence: 0.9,
			Start:      m[0],
			End:        m[1],
		}
		return
	}

	if !strings.Contains(norm, "facture") && !strings.Contains(norm, "invoice") {
		return
	}
	tracking, hasTracking := ents[EntityTrackingCode]
	for _, m := range e.reNumber.FindAllStringSubmatchIndex(norm, -1) {
		num := norm[m[2]:m[3]]
		if hasTracking && num == tracking.Normalized {
			continue
		}
		ents[EntityInvoiceNumber] = model.Entity{
			Value:      num,
			Normalized: num,
			Confidence: 0.7,
			Start:      m[2],
			End:        m[3],
		}
		return
	}
}

// extractCities scans the closed gazetteer. Two hits become origin and
// destination in reading order; a single hit is refined by the preceding
// preposition when one is present, otherwise emitted as a generic city for
// the slot filler to place.
func (e *Extractor) extractCities(norm string, ents model.EntitySet) {
	type hit struct {
		pos  int
		city cityEntry
	}
	var hits []hit
	for _, c := range e.cities {
		if pos := strings.Index(norm, c.lower); pos >= 0 {
			hits = append(hits, hit{pos: pos, city: c})
		}
	}
	if len(hits) == 0 {
		return
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].pos < hits[j].pos })

	mk := func(h hit, conf float64) model.Entity {
		return model.Entity{
			Value:      h.city.canonical,
			Normalized: h.city.canonical,
			Confidence: conf,
			Start:      h.pos,
			End:        h.pos + len(h.city.lower),
		}
	}

	if len(hits) >= 2 {
		ents[EntityOrigin] = mk(hits[0], 0.85)
		ents[EntityDestination] = mk(hits[1], 0.85)
		return
	}

	h := hits[0]
	switch precedingWord(norm, h.pos) {
	case "de", "depuis", "from":
		ents[EntityOrigin] = mk(h, 0.9)
	case "vers", "à", "a", "pour", "to":
		ents[EntityDestination] = mk(h, 0.9)
	default:
		ents[EntityCity] = mk(h, 0.8)
	}
}

func precedingWord(norm string, pos int) string {
	before := strings.Fields(norm[:pos])
	if len(before) == 0 {
		return ""
	}
	return before[len(before)-1]
}

func (e *Extractor) extractKeyword(norm string, entries []keywordEntry, name string, ents model.EntitySet) {
	for _, entry := range entries {
		if pos := strings.Index(norm, entry.keyword); pos >= 0 {
			ents[name] = model.Entity{
				Value:      entry.keyword,
				Normalized: entry.canonical,
				Confidence: 0.85,
				Start:      pos,
				End:        pos + len(entry.keyword),
			}
			return
		}
	}
}

func (e *Extractor) extractWeight(norm string, ents model.EntitySet) {
	m := e.reWeight.FindStringSubmatchIndex(norm)
	if m == nil {
		return
	}
	v, err := parseDecimal(norm[m[2]:m[3]])
	if err != nil {
		return
	}
	if unit := norm[m[4]:m[5]]; unit == "t" || strings.HasPrefix(unit, "tonne") {
		v *= 1000
	}
	ents[EntityWeightKg] = model.Entity{
		Value:      norm[m[0]:m[1]],
		Normalized: formatNumber(v),
		Confidence: 0.9,
		Start:      m[0],
		End:        m[1],
	}
}

func (e *Extractor) extractVolume(norm string, ents model.EntitySet) {
	m := e.reVolume.FindStringSubmatchIndex(norm)
	if m == nil {
		return
	}
	v, err := parseDecimal(norm[m[2]:m[3]])
	if err != nil {
		return
	}
	ents[EntityVolumeM3] = model.Entity{
		Value:      norm[m[0]:m[1]],
		Normalized: formatNumber(v),
		Confidence: 0.9,
		Start:      m[0],
		End:        m[1],
	}
}

// extractAmount normalizes money mentions to XOF so the escalation policy
// compares a single unit against its threshold.
func (e *Extractor) extractAmount(norm string, ents model.EntitySet) {
	m := e.reAmount.FindStringSubmatchIndex(norm)
	if m == nil {
		return
	}
	v, err := parseDecimal(strings.ReplaceAll(norm[m[2]:m[3]], " ", ""))
	if err != nil {
		return
	}
	if rate, ok := amountToXOF[norm[m[4]:m[5]]]; ok {
		v *= rate
	}
	ents[EntityAmount] = model.Entity{
		Value:      strings.TrimSpace(norm[m[0]:m[1]]),
		Normalized: formatNumber(v),
		Confidence: 0.85,
		Start:      m[0],
		End:        m[1],
	}
}

// parseDecimal accepts both French and English decimal notation. Dots used
// as thousands separators (1.000.000) are stripped when a comma decimal is
// present.
func parseDecimal(s string) (float64, error) {
	if strings.Contains(s, ",") {
		s = strings.ReplaceAll(s, ".", "")
		s = strings.ReplaceAll(s, ",", ".")
	}
	return strconv.ParseFloat(s, 64)
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
