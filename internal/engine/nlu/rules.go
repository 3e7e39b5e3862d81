// Package nlu implements the rule-based NLU pipeline: entity extraction,
// tracking-code validation with deterministic auto-correction, and intent
// classification. All matching behaviour is driven by declarative rule
// tables loaded once at startup, so the extractor and classifier are
// interpreters over data rather than branching code.
package nlu

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Reserved intent names.
const (
	IntentTrackShipment = "track_shipment"
	IntentPOD           = "pod"
	IntentInvoices      = "invoices"
	IntentCreateQuote   = "create_quote"
	IntentNotifications = "notifications"
	IntentSupportHuman  = "support_human"
	IntentSmalltalk     = "smalltalk"
	IntentFallback      = "fallback"
)

// Entity names produced by the extractor.
const (
	EntityTrackingCode  = "tracking_code"
	EntityInvoiceNumber = "invoice_number"
	EntityOrigin        = "origin"
	EntityDestination   = "destination"
	EntityCity          = "city"
	EntityTransportMode = "transport_mode"
	EntityWeightKg      = "weight_kg"
	EntityVolumeM3      = "volume_m3"
	EntityChannel       = "channel"
	EntityAmount        = "amount"
)

// IntentDef declares a dialogue goal: its example utterance patterns
// (literal or wildcard), the slots that must be filled before dispatch and
// the nice-to-have slots that never block it. Intents are static
// configuration, never created at runtime.
type IntentDef struct {
	Name     string   `yaml:"name"`
	Category string   `yaml:"category"`
	Examples []string `yaml:"examples"`
	Required []string `yaml:"required_slots"`
	Optional []string `yaml:"optional_slots"`
}

// Gazetteer holds the closed vocabulary lists used by the extractor.
type Gazetteer struct {
	Cities []string `yaml:"cities"`
}

// EscalationKeywords holds the keyword lists consumed by the escalation
// policy.
type EscalationKeywords struct {
	HumanKeywords   []string `yaml:"human_keywords"`
	UrgencyKeywords []string `yaml:"urgency_keywords"`
}

// Rules is the full declarative rule table: intent catalogue, extraction
// vocabularies and escalation keyword lists.
type Rules struct {
	Intents        []IntentDef         `yaml:"intents"`
	Gazetteer      Gazetteer           `yaml:"gazetteer"`
	TransportModes map[string][]string `yaml:"transport_modes"`
	Channels       map[string][]string `yaml:"channels"`
	Escalation     EscalationKeywords  `yaml:"escalation"`

	byName map[string]*IntentDef
}

//go:embed rules/intents.yaml
var defaultRulesYAML []byte

// DefaultRules parses the embedded rule tables.
func DefaultRules() (*Rules, error) {
	return parseRules(defaultRulesYAML)
}

// LoadRules reads rule tables from a YAML file. An empty path yields the
// embedded defaults.
func LoadRules(path string) (*Rules, error) {
	if path == "" {
		return DefaultRules()
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("rules %q: %w", path, err)
	}
	return parseRules(raw)
}

func parseRules(raw []byte) (*Rules, error) {
	var r Rules
	if err := yaml.Unmarshal(raw, &r); err != nil {
		return nil, fmt.Errorf("rules: parse: %w", err)
	}
	if len(r.Intents) == 0 {
		return nil, fmt.Errorf("rules: no intents declared")
	}

	r.byName = make(map[string]*IntentDef, len(r.Intents)+1)
	for i := range r.Intents {
		it := &r.Intents[i]
		if it.Name == "" {
			return nil, fmt.Errorf("rules: intent %d has no name", i)
		}
		if it.Name == IntentFallback {
			return nil, fmt.Errorf("rules: %q is reserved", IntentFallback)
		}
		if _, dup := r.byName[it.Name]; dup {
			return nil, fmt.Errorf("rules: duplicate intent %q", it.Name)
		}
		r.byName[it.Name] = it
	}

	// The fallback intent is always present, last, with no examples: it can
	// only win when nothing else scores.
	r.Intents = append(r.Intents, IntentDef{Name: IntentFallback, Category: "general"})
	r.byName[IntentFallback] = &r.Intents[len(r.Intents)-1]

	return &r, nil
}

// Intent returns the declaration for name, or nil.
func (r *Rules) Intent(name string) *IntentDef {
	return r.byName[name]
}

// Category returns the declared category for an intent name, or "general".
func (r *Rules) Category(name string) string {
	if it := r.byName[name]; it != nil && it.Category != "" {
		return it.Category
	}
	return "general"
}
