package engine

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/cloudwego/eino/schema"

	errx "github.com/nextmove-ai/convocore/internal/core/error"
	"github.com/nextmove-ai/convocore/internal/engine/fallback"
	"github.com/nextmove-ai/convocore/internal/engine/model"
	"github.com/nextmove-ai/convocore/internal/engine/nlu"
	"github.com/nextmove-ai/convocore/internal/engine/render"
	"github.com/nextmove-ai/convocore/internal/engine/session"
	"github.com/nextmove-ai/convocore/internal/engine/tools"
)

func testConfig() model.EngineConfig {
	cfg := model.EngineConfig{
		SessionTTL:      2 * time.Hour,
		DefaultLocale:   "fr",
		ToolTimeout:     time.Second,
		HistoryMaxTurns: 10,
	}
	cfg.Escalation.AmountThreshold = 1_000_000
	cfg.Escalation.TicketThreshold = 2
	return cfg
}

func newTestEngine(t *testing.T, repo model.SessionRepository) *Orchestrator {
	t.Helper()

	rules, err := nlu.DefaultRules()
	if err != nil {
		t.Fatalf("rules: %v", err)
	}
	catalog, err := render.DefaultCatalog()
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	if repo == nil {
		mem := session.NewMemoryRepository(2 * time.Hour)
		t.Cleanup(mem.Close)
		repo = mem
	}

	orch, err := New(Options{
		Config:     testConfig(),
		Rules:      rules,
		Sessions:   repo,
		Dispatcher: tools.NewDispatcher(tools.NewDemoRegistry(), time.Second),
		Renderer:   render.NewRenderer(catalog, "fr"),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return orch
}

func send(t *testing.T, o *Orchestrator, text string) *model.Response {
	t.Helper()
	resp, err := o.HandleMessage(context.Background(), model.InboundMessage{
		Text:      text,
		UserID:    "demo-user",
		ChannelID: "web",
	})
	if err != nil {
		t.Fatalf("HandleMessage(%q): %v", text, err)
	}
	return resp
}

func loadSession(t *testing.T, repo model.SessionRepository) *model.Session {
	t.Helper()
	sess, err := repo.Load(context.Background(), "demo-user", "web")
	if err != nil {
		t.Fatalf("load session: %v", err)
	}
	if sess == nil {
		t.Fatal("no session persisted")
	}
	return sess
}

func TestEmptyMessageRejectedWithoutSession(t *testing.T) {
	mem := session.NewMemoryRepository(time.Hour)
	t.Cleanup(mem.Close)
	o := newTestEngine(t, mem)

	_, err := o.HandleMessage(context.Background(), model.InboundMessage{
		Text: "   ", UserID: "demo-user", ChannelID: "web",
	})
	if errx.KindOf(err) != errx.KindInvalidInput {
		t.Fatalf("err = %v, want invalid_input", err)
	}
	if sess, _ := mem.Load(context.Background(), "demo-user", "web"); sess != nil {
		t.Fatal("rejected message must not create a session")
	}
}

func TestTrackShipmentHappyPath(t *testing.T) {
	mem := session.NewMemoryRepository(time.Hour)
	t.Cleanup(mem.Close)
	o := newTestEngine(t, mem)

	resp := send(t, o, "Suivre DKR240815")
	if resp.Escalated || resp.RequiresInput {
		t.Fatalf("got %+v", resp)
	}
	for _, want := range []string{"DKR240815", "Port de Dakar"} {
		if !strings.Contains(resp.Message, want) {
			t.Fatalf("message %q missing %q", resp.Message, want)
		}
	}
	if len(resp.CTAs) == 0 {
		t.Fatal("expected CTAs")
	}

	sess := loadSession(t, mem)
	if sess.LastIntent != nlu.IntentTrackShipment || sess.PendingIntent != "" {
		t.Fatalf("session = %+v", sess)
	}
}

func TestBareValidCodeTriggersImplicitTracking(t *testing.T) {
	o := newTestEngine(t, nil)
	resp := send(t, o, "DKR240815")
	if !strings.Contains(resp.Message, "Port de Dakar") {
		t.Fatalf("got %q, want implicit tracking lookup", resp.Message)
	}
}

func TestQuoteSlotFillingAcrossTurns(t *testing.T) {
	mem := session.NewMemoryRepository(time.Hour)
	t.Cleanup(mem.Close)
	o := newTestEngine(t, mem)

	resp := send(t, o, "je veux un devis")
	if !resp.RequiresInput || !strings.Contains(resp.Message, "départ") {
		t.Fatalf("turn 1 = %+v, want origin question", resp)
	}

	resp = send(t, o, "de Dakar vers Abidjan")
	if !resp.RequiresInput || !strings.Contains(resp.Message, "poids") {
		t.Fatalf("turn 2 = %+v, want weight question", resp)
	}
	sess := loadSession(t, mem)
	if sess.PendingSlots["origin"] != "Dakar" || sess.PendingSlots["destination"] != "Abidjan" {
		t.Fatalf("pending slots = %v", sess.PendingSlots)
	}

	resp = send(t, o, "500 kg")
	if resp.RequiresInput || resp.Escalated {
		t.Fatalf("turn 3 = %+v, want dispatched quote", resp)
	}
	for _, want := range []string{"Dakar", "Abidjan", "200000"} {
		if !strings.Contains(resp.Message, want) {
			t.Fatalf("quote %q missing %q", resp.Message, want)
		}
	}

	sess = loadSession(t, mem)
	if sess.PendingIntent != "" || sess.AwaitingSlot != "" {
		t.Fatalf("pending state not cleared: %+v", sess)
	}
}

func TestSmalltalkDoesNotDisturbPendingFlow(t *testing.T) {
	mem := session.NewMemoryRepository(time.Hour)
	t.Cleanup(mem.Close)
	o := newTestEngine(t, mem)

	send(t, o, "je veux un devis")
	resp := send(t, o, "merci")
	if !strings.Contains(resp.Message, "NextMove") {
		t.Fatalf("got %q, want smalltalk reply", resp.Message)
	}

	sess := loadSession(t, mem)
	if sess.PendingIntent != nlu.IntentCreateQuote {
		t.Fatalf("pending intent = %q, want create_quote kept", sess.PendingIntent)
	}

	resp = send(t, o, "de Dakar vers Abidjan")
	if !strings.Contains(resp.Message, "poids") {
		t.Fatalf("flow did not resume: %q", resp.Message)
	}
}

func TestOneMissingSlotAskedPerTurn(t *testing.T) {
	o := newTestEngine(t, nil)
	resp := send(t, o, "combien ça coûte")
	if !strings.Contains(resp.Message, "départ") || strings.Contains(resp.Message, "poids") {
		t.Fatalf("got %q, want only the origin question", resp.Message)
	}
}

func TestAutoCorrectionNeedsConfirmation(t *testing.T) {
	mem := session.NewMemoryRepository(time.Hour)
	t.Cleanup(mem.Close)
	o := newTestEngine(t, mem)

	resp := send(t, o, "suivre mon colis")
	if !resp.RequiresInput || !strings.Contains(resp.Message, "DKR240815") {
		t.Fatalf("turn 1 = %+v, want tracking question with example", resp)
	}

	resp = send(t, o, "12345678")
	if !resp.RequiresInput {
		t.Fatalf("turn 2 = %+v, want confirmation question", resp)
	}
	for _, want := range []string{"12345678", "K12345678"} {
		if !strings.Contains(resp.Message, want) {
			t.Fatalf("confirmation %q missing %q", resp.Message, want)
		}
	}
	sess := loadSession(t, mem)
	if sess.PendingConfirmation == nil || sess.PendingConfirmation.Corrected != "K12345678" {
		t.Fatalf("pending confirmation = %+v", sess.PendingConfirmation)
	}

	resp = send(t, o, "oui")
	if resp.RequiresInput || resp.Escalated {
		t.Fatalf("turn 3 = %+v, want dispatched lookup", resp)
	}
	if !strings.Contains(resp.Message, "K12345678") || !strings.Contains(resp.Message, "Abidjan") {
		t.Fatalf("got %q", resp.Message)
	}

	sess = loadSession(t, mem)
	if sess.PendingConfirmation != nil || sess.PendingIntent != "" {
		t.Fatalf("pending state not cleared: %+v", sess)
	}
}

func TestAutoCorrectionDeclined(t *testing.T) {
	mem := session.NewMemoryRepository(time.Hour)
	t.Cleanup(mem.Close)
	o := newTestEngine(t, mem)

	send(t, o, "suivre mon colis")
	send(t, o, "12345678")

	resp := send(t, o, "non")
	if !resp.RequiresInput || !strings.Contains(resp.Message, "DKR240815") {
		t.Fatalf("got %+v, want re-prompt with example", resp)
	}
	sess := loadSession(t, mem)
	if sess.PendingConfirmation != nil || sess.AwaitingSlot != "tracking_code" {
		t.Fatalf("session = %+v", sess)
	}

	resp = send(t, o, "DKR240815")
	if !strings.Contains(resp.Message, "Port de Dakar") {
		t.Fatalf("got %q, want lookup after corrected answer", resp.Message)
	}
}

func TestInvalidTrackingReprompts(t *testing.T) {
	mem := session.NewMemoryRepository(time.Hour)
	t.Cleanup(mem.Close)
	o := newTestEngine(t, mem)

	send(t, o, "suivre mon colis")
	resp := send(t, o, "AB12")
	if !resp.RequiresInput || !strings.Contains(resp.Message, "DKR240815") {
		t.Fatalf("got %+v, want invalid-code re-prompt", resp)
	}
	sess := loadSession(t, mem)
	if sess.AwaitingSlot != "tracking_code" {
		t.Fatalf("awaiting = %q", sess.AwaitingSlot)
	}
}

func TestEscalationShortCircuits(t *testing.T) {
	mem := session.NewMemoryRepository(time.Hour)
	t.Cleanup(mem.Close)
	o := newTestEngine(t, mem)

	resp := send(t, o, "je veux parler à un humain")
	if !resp.Escalated || resp.RequiresInput {
		t.Fatalf("got %+v", resp)
	}
	if !strings.Contains(resp.Message, "general") || !strings.Contains(resp.Message, "ticket") {
		t.Fatalf("got %q, want ticketed hand-off", resp.Message)
	}

	sess := loadSession(t, mem)
	if sess.RecentTickets != 1 || sess.Topic != "escalation" {
		t.Fatalf("session = %+v", sess)
	}
}

func TestInvoicesListDispatchesImmediately(t *testing.T) {
	o := newTestEngine(t, nil)
	resp := send(t, o, "mes factures")
	if resp.RequiresInput {
		t.Fatalf("got %+v, want immediate list", resp)
	}
	for _, want := range []string{"2", "1270000"} {
		if !strings.Contains(resp.Message, want) {
			t.Fatalf("got %q, missing %q", resp.Message, want)
		}
	}
}

func TestToolFailureStaysResumable(t *testing.T) {
	mem := session.NewMemoryRepository(time.Hour)
	t.Cleanup(mem.Close)
	o := newTestEngine(t, mem)

	resp := send(t, o, "suivre ZZZ0000001")
	if resp.Escalated || resp.RequiresInput {
		t.Fatalf("got %+v", resp)
	}
	if !strings.Contains(resp.Message, "incident technique") {
		t.Fatalf("got %q, want empathetic failure", resp.Message)
	}

	sess := loadSession(t, mem)
	if sess.PendingIntent != nlu.IntentTrackShipment {
		t.Fatalf("pending intent = %q, want resumable state", sess.PendingIntent)
	}
}

func TestEnglishConversationLocksLocale(t *testing.T) {
	o := newTestEngine(t, nil)

	resp := send(t, o, "track my shipment")
	if !strings.Contains(resp.Message, "tracking number") {
		t.Fatalf("got %q, want english question", resp.Message)
	}

	// The bare follow-up carries no language markers; the locale locked on
	// the first turn must keep the conversation in English.
	resp = send(t, o, "12345678")
	if !strings.Contains(resp.Message, "did you mean") {
		t.Fatalf("got %q, want english confirmation", resp.Message)
	}
}

func TestFallbackMenuOnGibberish(t *testing.T) {
	o := newTestEngine(t, nil)
	resp := send(t, o, "xyzzy plugh frobnicate")
	if resp.Escalated {
		t.Fatalf("got %+v", resp)
	}
	if !strings.Contains(resp.Message, "pas compris") || len(resp.CTAs) == 0 {
		t.Fatalf("got %+v, want fallback menu", resp)
	}
}

// failingRepo simulates an unreachable session store.
type failingRepo struct{}

func (failingRepo) Load(context.Context, string, string) (*model.Session, error) {
	return nil, errx.SessionUnavailable(errors.New("connection refused"))
}
func (failingRepo) Save(context.Context, *model.Session) error            { return nil }
func (failingRepo) Delete(context.Context, string, string) error          { return nil }
func (failingRepo) AppendMessage(context.Context, string, string, *schema.Message) error {
	return nil
}
func (failingRepo) History(context.Context, string, string, int) ([]*schema.Message, error) {
	return nil, nil
}

type stubSearcher struct {
	results []fallback.SearchResult
	err     error
}

func (s stubSearcher) Search(context.Context, string) ([]fallback.SearchResult, []string, error) {
	return s.results, nil, s.err
}

type stubGenerator struct {
	text string
	err  error
}

func (g stubGenerator) Generate(context.Context, string, []*schema.Message) (string, error) {
	return g.text, g.err
}

func newEngineWithCollaborators(t *testing.T, searcher fallback.Searcher, generator fallback.Generator) *Orchestrator {
	t.Helper()

	rules, err := nlu.DefaultRules()
	if err != nil {
		t.Fatalf("rules: %v", err)
	}
	catalog, err := render.DefaultCatalog()
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	mem := session.NewMemoryRepository(time.Hour)
	t.Cleanup(mem.Close)

	orch, err := New(Options{
		Config:     testConfig(),
		Rules:      rules,
		Sessions:   mem,
		Dispatcher: tools.NewDispatcher(tools.NewDemoRegistry(), time.Second),
		Renderer:   render.NewRenderer(catalog, "fr"),
		Searcher:   searcher,
		Generator:  generator,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return orch
}

func TestFallbackPrefersKnowledgeSearch(t *testing.T) {
	o := newEngineWithCollaborators(t,
		stubSearcher{results: []fallback.SearchResult{{Snippet: "nos délais de douane sont de 48h"}}},
		stubGenerator{text: "should not be used"},
	)

	resp := send(t, o, "xyzzy plugh frobnicate")
	if !strings.Contains(resp.Message, "48h") {
		t.Fatalf("got %q, want search snippet", resp.Message)
	}
}

func TestFallbackUsesGeneratorWhenSearchEmpty(t *testing.T) {
	o := newEngineWithCollaborators(t,
		stubSearcher{},
		stubGenerator{text: "Je peux vous aider avec vos expéditions."},
	)

	resp := send(t, o, "xyzzy plugh frobnicate")
	if resp.Message != "Je peux vous aider avec vos expéditions." {
		t.Fatalf("got %q, want generated text", resp.Message)
	}
	if len(resp.CTAs) == 0 {
		t.Fatal("generated fallback must still carry the shortcut CTAs")
	}
}

func TestFallbackSurvivesCollaboratorFailures(t *testing.T) {
	o := newEngineWithCollaborators(t,
		stubSearcher{err: errors.New("search down")},
		stubGenerator{err: errors.New("model down")},
	)

	resp := send(t, o, "xyzzy plugh frobnicate")
	if !strings.Contains(resp.Message, "pas compris") {
		t.Fatalf("got %q, want rule-based fallback", resp.Message)
	}
}

func TestSessionStoreFailureHandsOver(t *testing.T) {
	o := newTestEngine(t, failingRepo{})

	resp, err := o.HandleMessage(context.Background(), model.InboundMessage{
		Text: "bonjour", UserID: "demo-user", ChannelID: "web",
	})
	if err != nil {
		t.Fatalf("err = %v, want graceful reply", err)
	}
	if !resp.Escalated || !strings.Contains(resp.Message, "technique") {
		t.Fatalf("got %+v, want technical-problem hand-over", resp)
	}
}
