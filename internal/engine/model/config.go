package model

import "time"

// ================ Config ================

// EngineConfig tunes the conversational core. Everything here is sourced
// from environment variables with workable defaults.
type EngineConfig struct {
	SessionTTL    time.Duration `envconfig:"SESSION_TTL" default:"120m"`
	DefaultLocale string        `envconfig:"DEFAULT_LOCALE" default:"fr"`
	ToolTimeout   time.Duration `envconfig:"TOOL_TIMEOUT" default:"5s"`

	// HistoryMaxTurns bounds the short conversation history kept per
	// session and handed to the free-text generator for context.
	HistoryMaxTurns int `envconfig:"HISTORY_MAX_TURNS" default:"10"`

	Escalation struct {
		// AmountThreshold is the billing amount (XOF) above which a
		// billing-category message is escalated to commercial.
		AmountThreshold float64 `envconfig:"ESCALATION_AMOUNT_THRESHOLD" default:"1000000"`
		// TicketThreshold is the recent-ticket count above which a
		// technical-category message signals a recurring problem.
		TicketThreshold int `envconfig:"ESCALATION_TICKET_THRESHOLD" default:"2"`
	}

	// Optional YAML overrides for the declarative rule tables. When empty
	// the embedded defaults are used.
	IntentRulesPath string `envconfig:"INTENT_RULES_PATH"`
	TemplatesPath   string `envconfig:"TEMPLATES_PATH"`
}

// GeneratorConfig configures the optional Gemini-backed free-text
// generator. The engine is fully functional without it.
type GeneratorConfig struct {
	Model       string  `envconfig:"GENERATOR_MODEL" default:"gemini-2.5-flash-lite"`
	MaxTokens   int     `envconfig:"GENERATOR_MAX_TOKENS" default:"1000"`
	Temperature float32 `envconfig:"GENERATOR_TEMPERATURE" default:"0.4"`
}
