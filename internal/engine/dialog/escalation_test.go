package dialog

import (
	"testing"

	"github.com/nextmove-ai/convocore/internal/engine/model"
	"github.com/nextmove-ai/convocore/internal/engine/nlu"
)

func newPolicy(t *testing.T) *EscalationPolicy {
	t.Helper()
	rules, err := nlu.DefaultRules()
	if err != nil {
		t.Fatalf("DefaultRules: %v", err)
	}
	return NewEscalationPolicy(rules, 1_000_000, 2)
}

func amountEnt(v string) model.EntitySet {
	return model.EntitySet{nlu.EntityAmount: model.Entity{Value: v, Normalized: v, Confidence: 0.85}}
}

func TestEscalationHumanRequest(t *testing.T) {
	p := newPolicy(t)
	sess := model.NewSession("u", "c")

	esc := p.Evaluate("je veux parler à un humain", nlu.IntentSupportHuman, nil, sess)
	if esc == nil {
		t.Fatal("expected escalation")
	}
	if esc.Department != DeptGeneral || esc.Urgency != UrgencyMedium || esc.Reason != "human_requested" {
		t.Fatalf("got %+v", esc)
	}
}

func TestEscalationHumanKeywordWithoutIntent(t *testing.T) {
	p := newPolicy(t)
	esc := p.Evaluate("passez-moi un conseiller maintenant", nlu.IntentFallback, nil, model.NewSession("u", "c"))
	if esc == nil || esc.Department != DeptGeneral {
		t.Fatalf("got %+v, want general escalation on keyword", esc)
	}
}

func TestEscalationHighBillingAmount(t *testing.T) {
	p := newPolicy(t)
	sess := model.NewSession("u", "c")

	esc := p.Evaluate("probleme sur une facture de 2000000 fcfa", nlu.IntentInvoices, amountEnt("2000000"), sess)
	if esc == nil {
		t.Fatal("expected escalation")
	}
	if esc.Department != DeptCommercial || esc.Urgency != UrgencyHigh || esc.Reason != "high_amount" {
		t.Fatalf("got %+v", esc)
	}

	// At or below the threshold normal routing proceeds.
	if esc := p.Evaluate("facture de 1000000 fcfa", nlu.IntentInvoices, amountEnt("1000000"), sess); esc != nil {
		t.Fatalf("threshold is exclusive, got %+v", esc)
	}
}

func TestEscalationRuleOrder(t *testing.T) {
	p := newPolicy(t)
	sess := model.NewSession("u", "c")

	// Both the human-request rule and the billing-amount rule match; the
	// first declared rule must win.
	esc := p.Evaluate("je veux un humain pour ma facture de 2000000 fcfa", nlu.IntentInvoices, amountEnt("2000000"), sess)
	if esc == nil || esc.Reason != "human_requested" {
		t.Fatalf("got %+v, want human_requested to win", esc)
	}
}

func TestEscalationUrgentDelivery(t *testing.T) {
	p := newPolicy(t)
	esc := p.Evaluate("mon colis est urgent", nlu.IntentTrackShipment, nil, model.NewSession("u", "c"))
	if esc == nil || esc.Department != DeptLogistique || esc.Urgency != UrgencyHigh {
		t.Fatalf("got %+v, want logistique/high", esc)
	}
}

func TestEscalationRecurringTechnicalIssue(t *testing.T) {
	p := newPolicy(t)
	sess := model.NewSession("u", "c")
	sess.RecentTickets = 3

	esc := p.Evaluate("les notifications ne marchent pas", nlu.IntentNotifications, nil, sess)
	if esc == nil || esc.Department != DeptTechnique || esc.Reason != "recurring_issue" {
		t.Fatalf("got %+v, want technique escalation", esc)
	}

	sess.RecentTickets = 2
	if esc := p.Evaluate("les notifications ne marchent pas", nlu.IntentNotifications, nil, sess); esc != nil {
		t.Fatalf("ticket threshold is exclusive, got %+v", esc)
	}
}

func TestNoEscalationOnNormalTraffic(t *testing.T) {
	p := newPolicy(t)
	if esc := p.Evaluate("suivre dkr240815", nlu.IntentTrackShipment, nil, model.NewSession("u", "c")); esc != nil {
		t.Fatalf("got %+v, want nil", esc)
	}
}
