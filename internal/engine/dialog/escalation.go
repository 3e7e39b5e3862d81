package dialog

import (
	"strconv"
	"strings"

	"github.com/nextmove-ai/convocore/internal/engine/model"
	"github.com/nextmove-ai/convocore/internal/engine/nlu"
)

// Departments a conversation can be handed off to.
const (
	DeptGeneral    = "general"
	DeptCommercial = "commercial"
	DeptLogistique = "logistique"
	DeptTechnique  = "technique"
)

// Urgency levels attached to an escalation.
const (
	UrgencyMedium = "medium"
	UrgencyHigh   = "high"
)

// Escalation describes a forced hand-off to a human agent.
type Escalation struct {
	Department string
	Urgency    string
	Reason     string
}

// EscalationPolicy is the ordered rule set evaluated before normal intent
// handling. The first matching rule wins and short-circuits slot filling
// and tool dispatch for the turn.
type EscalationPolicy struct {
	rules           *nlu.Rules
	amountThreshold float64
	ticketThreshold int
}

// NewEscalationPolicy builds the policy from the rule tables and the
// configured thresholds.
func NewEscalationPolicy(rules *nlu.Rules, amountThreshold float64, ticketThreshold int) *EscalationPolicy {
	return &EscalationPolicy{
		rules:           rules,
		amountThreshold: amountThreshold,
		ticketThreshold: ticketThreshold,
	}
}

// Evaluate checks the rules in order against the normalized message, the
// classified intent, this turn's entities and the session history. It
// returns nil when normal routing should proceed.
func (p *EscalationPolicy) Evaluate(norm, intentName string, ents model.EntitySet, sess *model.Session) *Escalation {
	// Rule 1: explicit human request.
	if intentName == nlu.IntentSupportHuman || containsAny(norm, p.rules.Escalation.HumanKeywords) {
		return &Escalation{Department: DeptGeneral, Urgency: UrgencyMedium, Reason: "human_requested"}
	}

	category := p.rules.Category(intentName)

	// Rule 2: billing with a high amount.
	if category == "billing" {
		if amount, ok := ents[nlu.EntityAmount]; ok {
			if v, err := strconv.ParseFloat(amount.Normalized, 64); err == nil && v > p.amountThreshold {
				return &Escalation{Department: DeptCommercial, Urgency: UrgencyHigh, Reason: "high_amount"}
			}
		}
	}

	// Rule 3: delivery trouble flagged as urgent.
	if category == "delivery" && containsAny(norm, p.rules.Escalation.UrgencyKeywords) {
		return &Escalation{Department: DeptLogistique, Urgency: UrgencyHigh, Reason: "urgent_delivery"}
	}

	// Rule 4: recurring technical problem.
	if category == "technical" && sess.RecentTickets > p.ticketThreshold {
		return &Escalation{Department: DeptTechnique, Urgency: UrgencyMedium, Reason: "recurring_issue"}
	}

	return nil
}

func containsAny(norm string, keywords []string) bool {
	for _, kw := range keywords {
		if kw != "" && strings.Contains(norm, nlu.Normalize(kw)) {
			return true
		}
	}
	return false
}
