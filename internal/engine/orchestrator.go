// Package engine wires the NLU pipeline, slot filling, session memory,
// escalation policy, tool dispatch and template rendering into the
// per-message orchestrator. Every collaborator is injected at
// construction; the orchestrator owns the turn sequence
// RECEIVE → LOCALE → EXTRACT+CLASSIFY → ESCALATE? → SLOT_FILL →
// (ASK_SLOT | CONFIRM | DISPATCH) → RENDER → PERSIST.
package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/schema"

	errx "github.com/nextmove-ai/convocore/internal/core/error"
	"github.com/nextmove-ai/convocore/internal/engine/dialog"
	"github.com/nextmove-ai/convocore/internal/engine/fallback"
	"github.com/nextmove-ai/convocore/internal/engine/locale"
	"github.com/nextmove-ai/convocore/internal/engine/model"
	"github.com/nextmove-ai/convocore/internal/engine/nlu"
	"github.com/nextmove-ai/convocore/internal/engine/render"
	"github.com/nextmove-ai/convocore/internal/engine/session"
	"github.com/nextmove-ai/convocore/internal/engine/tools"
	logx "github.com/nextmove-ai/convocore/pkg/logger"
)

// Options holds everything needed to build an Orchestrator. Sessions,
// Dispatcher and Renderer are required; Searcher and Generator are
// optional collaborators consulted on the fallback path only.
type Options struct {
	Config     model.EngineConfig
	Rules      *nlu.Rules
	Sessions   model.SessionRepository
	Dispatcher *tools.Dispatcher
	Renderer   *render.Renderer
	Searcher   fallback.Searcher
	Generator  fallback.Generator
}

// Orchestrator is the top-level state machine invoked once per inbound
// message.
type Orchestrator struct {
	cfg        model.EngineConfig
	rules      *nlu.Rules
	detector   *locale.Detector
	extractor  *nlu.Extractor
	classifier *nlu.Classifier
	policy     *dialog.EscalationPolicy
	sessions   model.SessionRepository
	dispatcher *tools.Dispatcher
	renderer   *render.Renderer
	searcher   fallback.Searcher
	generator  fallback.Generator

	locks session.KeyedMutex
}

// New validates the options and assembles the orchestrator.
func New(opts Options) (*Orchestrator, error) {
	if opts.Rules == nil {
		return nil, fmt.Errorf("rules are nil")
	}
	if opts.Sessions == nil {
		return nil, fmt.Errorf("session repository is nil")
	}
	if opts.Dispatcher == nil {
		return nil, fmt.Errorf("tool dispatcher is nil")
	}
	if opts.Renderer == nil {
		return nil, fmt.Errorf("renderer is nil")
	}

	return &Orchestrator{
		cfg:        opts.Config,
		rules:      opts.Rules,
		detector:   locale.NewDetector(opts.Config.DefaultLocale),
		extractor:  nlu.NewExtractor(opts.Rules),
		classifier: nlu.NewClassifier(opts.Rules),
		policy: dialog.NewEscalationPolicy(
			opts.Rules,
			opts.Config.Escalation.AmountThreshold,
			opts.Config.Escalation.TicketThreshold,
		),
		sessions:   opts.Sessions,
		dispatcher: opts.Dispatcher,
		renderer:   opts.Renderer,
		searcher:   opts.Searcher,
		generator:  opts.Generator,
	}, nil
}

var (
	affirmations = []string{"oui", "ouais", "yes", "ok", "d'accord", "daccord", "exact", "confirme", "c'est ça"}
	negations    = []string{"non", "no", "pas du tout", "incorrect", "c'est faux"}
)

// HandleMessage processes one inbound message and produces exactly one
// response. Empty input is rejected before any session mutation. Turns for
// the same (user, channel) pair are serialized; different sessions run in
// parallel.
func (o *Orchestrator) HandleMessage(ctx context.Context, msg model.InboundMessage) (*model.Response, error) {
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return nil, errx.InvalidInput("message text is empty")
	}
	if msg.UserID == "" || msg.ChannelID == "" {
		return nil, errx.InvalidInput("user_id and channel_id are required")
	}

	unlock := o.locks.Lock(msg.UserID, msg.ChannelID)
	defer unlock()

	sess, err := o.sessions.Load(ctx, msg.UserID, msg.ChannelID)
	if err != nil {
		logx.Error().Err(err).Str("user_id", msg.UserID).Msg("session load failed")
		return o.technicalProblem(text), nil
	}
	if sess == nil {
		sess = model.NewSession(msg.UserID, msg.ChannelID)
	}

	loc := o.detector.Detect(text, sess)
	if sess.Preferences.Locale == "" {
		// Lock the first detected locale in so bare follow-ups (a code, a
		// city name) keep the conversation's language.
		sess.Preferences.Locale = loc
	}
	norm := nlu.Normalize(text)

	o.appendHistory(ctx, sess, schema.UserMessage(text))

	turn := &turnContext{sess: sess, locale: loc, text: text, norm: norm}

	// A pending auto-correction confirmation takes precedence over
	// everything else this turn.
	if pc := sess.PendingConfirmation; pc != nil {
		sess.PendingConfirmation = nil
		switch {
		case matchesAny(norm, affirmations):
			slots := cloneSlots(pc.Slots)
			slots[pc.Slot] = pc.Corrected
			return o.dispatchTurn(ctx, turn, pc.Intent, slots)
		case matchesAny(norm, negations):
			sess.PendingIntent = pc.Intent
			sess.PendingSlots = cloneSlots(pc.Slots)
			sess.AwaitingSlot = pc.Slot
			return o.ask(ctx, turn, render.KeyCorrectionDeclined, map[string]any{"example": nlu.TrackingCodeExample})
		default:
			// Neither yes nor no: abandon the confirmation and process the
			// message normally, keeping the interrupted intent resumable.
			sess.PendingIntent = pc.Intent
			sess.PendingSlots = cloneSlots(pc.Slots)
			sess.AwaitingSlot = pc.Slot
		}
	}

	ents := o.extractor.Extract(text)
	turn.entities = ents

	// A bare answer to "what is your tracking number?" may not look like a
	// code at all; hand the whole message to the validator.
	if sess.AwaitingSlot == "tracking_code" {
		if _, ok := ents[nlu.EntityTrackingCode]; !ok && len(strings.Fields(text)) == 1 {
			ents[nlu.EntityTrackingCode] = model.Entity{
				Value:      text,
				Normalized: nlu.NormalizeTrackingCode(text),
				Confidence: 0.5,
				End:        len(text),
			}
		}
	}

	cls := o.classifier.Classify(text)
	logx.Debug().
		Str("user_id", msg.UserID).
		Str("intent", cls.Intent).
		Float64("confidence", cls.Confidence).
		Int("entities", len(ents)).
		Msg("message classified")

	// Escalation short-circuits slot filling and dispatch for the turn.
	if esc := o.policy.Evaluate(norm, cls.Intent, ents, sess); esc != nil {
		return o.escalate(ctx, turn, cls.Intent, esc)
	}

	intentName := o.resolveIntent(cls, sess, ents)

	switch intentName {
	case nlu.IntentFallback:
		return o.fallbackTurn(ctx, turn)
	case nlu.IntentSmalltalk:
		// Smalltalk never disturbs an in-flight slot-filling exchange.
		return o.finish(ctx, turn, intentName, o.render(turn, render.KeySmalltalk, nil), false)
	}

	intentDef := o.rules.Intent(intentName)
	if intentDef == nil {
		logx.Warn().Str("intent", intentName).Msg("classified intent missing from catalogue")
		return o.fallbackTurn(ctx, turn)
	}

	fill := dialog.Fill(intentDef, ents, sess)

	// Business-rule normalization before dispatch: a filled tracking code
	// must re-validate, and a repaired one needs explicit confirmation.
	if code, ok := fill.Slots["tracking_code"]; ok {
		normalized, verdict := nlu.ValidateTrackingCode(code)
		switch verdict {
		case nlu.VerdictValid:
			fill.Slots["tracking_code"] = normalized
		case nlu.VerdictCorrected:
			slots := cloneSlots(fill.Slots)
			delete(slots, "tracking_code")
			sess.PendingConfirmation = &model.PendingConfirmation{
				Intent:    intentName,
				Slot:      "tracking_code",
				Original:  code,
				Corrected: normalized,
				Slots:     slots,
			}
			return o.ask(ctx, turn, render.KeyConfirmCorrection, map[string]any{
				"original":  code,
				"corrected": normalized,
			})
		case nlu.VerdictInvalid:
			delete(fill.Slots, "tracking_code")
			sess.PendingIntent = intentName
			sess.PendingSlots = fill.Slots
			sess.AwaitingSlot = "tracking_code"
			return o.ask(ctx, turn, render.KeyInvalidTracking, map[string]any{"example": nlu.TrackingCodeExample})
		}
	}

	if !fill.Complete() {
		slot := fill.Missing[0]
		sess.PendingIntent = intentName
		sess.PendingSlots = fill.Slots
		sess.AwaitingSlot = slot
		key := o.renderer.AskKey(slot, turn.locale)
		return o.ask(ctx, turn, key, map[string]any{
			"slot":    slot,
			"example": nlu.TrackingCodeExample,
		})
	}

	return o.dispatchTurn(ctx, turn, intentName, fill.Slots)
}

// turnContext carries per-turn values between orchestrator stages.
type turnContext struct {
	sess     *model.Session
	locale   string
	text     string
	norm     string
	entities model.EntitySet
}

// resolveIntent applies the fallback recovery ladder: resume a pending
// intent, then treat a tracking-code-shaped token as an implicit
// track_shipment, otherwise stay on fallback. An explicit new intent that
// differs from the pending one switches topic and drops stale slots.
func (o *Orchestrator) resolveIntent(cls nlu.Classification, sess *model.Session, ents model.EntitySet) string {
	if cls.Intent == nlu.IntentFallback {
		if sess.PendingIntent != "" {
			return sess.PendingIntent
		}
		if _, ok := ents[nlu.EntityTrackingCode]; ok {
			return nlu.IntentTrackShipment
		}
		return nlu.IntentFallback
	}

	if sess.PendingIntent != "" && cls.Intent != sess.PendingIntent && cls.Intent != nlu.IntentSmalltalk {
		sess.ClearPending()
	}
	return cls.Intent
}

// dispatchTurn calls the tool mapped to the completed intent and renders
// its outcome. Tool failures render an empathetic retry-or-escalate
// message and keep the filled slots resumable; raw error internals never
// reach the user.
func (o *Orchestrator) dispatchTurn(ctx context.Context, turn *turnContext, intentName string, slots map[string]string) (*model.Response, error) {
	toolName, templateKey, params := o.toolFor(intentName, slots, turn.sess)
	if toolName == "" {
		return o.fallbackTurn(ctx, turn)
	}

	result := o.dispatcher.Dispatch(ctx, toolName, params)
	if !result.Success {
		logx.Warn().
			Str("tool", toolName).
			Str("kind", string(result.ErrorKind)).
			Str("user_id", turn.sess.UserID).
			Msg("dispatch failed")
		turn.sess.PendingIntent = intentName
		turn.sess.PendingSlots = slots
		turn.sess.AwaitingSlot = ""
		resp := o.render(turn, render.KeyToolFailure, nil)
		return o.finish(ctx, turn, intentName, resp, false)
	}

	if intentName == nlu.IntentNotifications {
		turn.sess.Preferences.Notifications = appendUnique(turn.sess.Preferences.Notifications, slots["channel"])
	}

	resp := o.render(turn, templateKey, result.Data)
	return o.finish(ctx, turn, intentName, resp, true)
}

// toolFor maps a completed intent plus slots to exactly one capability
// call.
func (o *Orchestrator) toolFor(intentName string, slots map[string]string, sess *model.Session) (string, string, map[string]string) {
	switch intentName {
	case nlu.IntentTrackShipment:
		return tools.ToolTrackingLookup, render.KeyTrackingStatus, map[string]string{
			"tracking_code": slots["tracking_code"],
		}
	case nlu.IntentPOD:
		return tools.ToolPODFetch, render.KeyPODReady, map[string]string{
			"tracking_code": slots["tracking_code"],
		}
	case nlu.IntentInvoices:
		if slots["invoice_number"] != "" {
			return tools.ToolInvoicePDF, render.KeyInvoicePDF, map[string]string{
				"invoice_number": slots["invoice_number"],
			}
		}
		return tools.ToolInvoicesList, render.KeyInvoicesList, map[string]string{
			"user_id": sess.UserID,
		}
	case nlu.IntentCreateQuote:
		return tools.ToolQuoteCompute, render.KeyQuoteResult, map[string]string{
			"origin":         slots["origin"],
			"destination":    slots["destination"],
			"weight_kg":      slots["weight_kg"],
			"volume_m3":      slots["volume_m3"],
			"transport_mode": slots["transport_mode"],
		}
	case nlu.IntentNotifications:
		return tools.ToolNotifySubscribe, render.KeyNotificationsOn, map[string]string{
			"user_id": sess.UserID,
			"channel": slots["channel"],
		}
	default:
		return "", "", nil
	}
}

// escalate opens a support ticket (best effort) and renders the hand-off
// message. Escalation always completes the turn: pending slot state is
// cleared.
func (o *Orchestrator) escalate(ctx context.Context, turn *turnContext, intentName string, esc *dialog.Escalation) (*model.Response, error) {
	logx.Info().
		Str("user_id", turn.sess.UserID).
		Str("department", esc.Department).
		Str("urgency", esc.Urgency).
		Str("reason", esc.Reason).
		Msg("escalating to human agent")

	data := map[string]any{"department": esc.Department}
	key := render.KeyEscalated

	ticket := o.dispatcher.Dispatch(ctx, tools.ToolTicketCreate, map[string]string{
		"user_id":    turn.sess.UserID,
		"department": esc.Department,
		"urgency":    esc.Urgency,
		"summary":    truncate(turn.text, 140),
	})
	if ticket.Success {
		key = render.KeyEscalatedTicket
		data["ticket_id"] = ticket.Data["ticket_id"]
		turn.sess.RecentTickets++
	} else {
		logx.Warn().Str("kind", string(ticket.ErrorKind)).Msg("ticket creation failed, escalating without ticket")
	}

	resp := o.render(turn, key, data)
	resp.Escalated = true
	return o.finish(ctx, turn, intentName, resp, true)
}

// fallbackTurn handles messages no rule understood: knowledge search
// first, then the free-text generator, then the shortcut menu. Both
// collaborators are best-effort; any failure falls through silently.
func (o *Orchestrator) fallbackTurn(ctx context.Context, turn *turnContext) (*model.Response, error) {
	if o.searcher != nil {
		results, _, err := o.searcher.Search(ctx, turn.text)
		if err != nil {
			logx.Warn().Err(err).Msg("knowledge search failed")
		} else if len(results) > 0 {
			resp := o.render(turn, render.KeySearchAnswer, map[string]any{"snippet": results[0].Snippet})
			return o.finish(ctx, turn, nlu.IntentFallback, resp, false)
		}
	}

	if o.generator != nil {
		history, err := o.sessions.History(ctx, turn.sess.UserID, turn.sess.ChannelID, o.cfg.HistoryMaxTurns)
		if err != nil {
			logx.Warn().Err(err).Msg("history load for generator failed")
			history = nil
		}
		prompt := generatorPrompt(turn.locale)
		if text, err := o.generator.Generate(ctx, prompt, history); err != nil {
			logx.Warn().Err(err).Msg("generator failed, using rule-based fallback")
		} else if text != "" {
			_, ctas := o.renderer.Render(render.KeyFallback, turn.locale, nil)
			resp := &model.Response{Message: text, CTAs: ctas}
			return o.finish(ctx, turn, nlu.IntentFallback, resp, false)
		}
	}

	resp := o.render(turn, render.KeyFallback, nil)
	return o.finish(ctx, turn, nlu.IntentFallback, resp, false)
}

// ask renders a clarifying question, marks the turn as requiring input and
// persists the pending state so the next message resumes the exchange.
func (o *Orchestrator) ask(ctx context.Context, turn *turnContext, key string, data map[string]any) (*model.Response, error) {
	resp := o.render(turn, key, data)
	resp.RequiresInput = true
	intentName := turn.sess.PendingIntent
	if intentName == "" && turn.sess.PendingConfirmation != nil {
		intentName = turn.sess.PendingConfirmation.Intent
	}
	return o.finish(ctx, turn, intentName, resp, false)
}

func (o *Orchestrator) render(turn *turnContext, key string, data map[string]any) *model.Response {
	msg, ctas := o.renderer.Render(key, turn.locale, data)
	return &model.Response{Message: msg, CTAs: ctas}
}

// finish is the PERSIST stage: it always refreshes last intent, entities,
// topic and the updated-at stamp, clears pending state when the turn fully
// completed, and saves the session. A save failure aborts the turn with
// the generic technical-problem reply instead of a partial update.
func (o *Orchestrator) finish(ctx context.Context, turn *turnContext, intentName string, resp *model.Response, completed bool) (*model.Response, error) {
	sess := turn.sess
	if intentName != "" {
		sess.LastIntent = intentName
		switch {
		case resp.Escalated:
			sess.Topic = "escalation"
		case sess.Topic == "" || completed:
			sess.Topic = o.rules.Category(intentName)
		}
	}
	// Entities only survive into the immediate follow-up turn.
	sess.LastEntities = turn.entities
	if completed {
		sess.ClearPending()
	}
	sess.UpdatedAt = time.Now().UTC()

	if err := o.sessions.Save(ctx, sess); err != nil {
		logx.Error().Err(err).Str("user_id", sess.UserID).Msg("session save failed")
		return o.technicalProblem(turn.text), nil
	}

	o.appendHistory(ctx, sess, schema.AssistantMessage(resp.Message, nil))
	return resp, nil
}

// technicalProblem is the whole-turn failure reply used when the session
// store is unreachable. Nothing is persisted.
func (o *Orchestrator) technicalProblem(text string) *model.Response {
	loc := o.detector.Detect(text, nil)
	msg, ctas := o.renderer.Render(render.KeyTechnicalProblem, loc, nil)
	return &model.Response{Message: msg, CTAs: ctas, Escalated: true}
}

func (o *Orchestrator) appendHistory(ctx context.Context, sess *model.Session, msg *schema.Message) {
	if err := o.sessions.AppendMessage(ctx, sess.UserID, sess.ChannelID, msg); err != nil {
		logx.Warn().Err(err).Str("user_id", sess.UserID).Msg("history append failed")
	}
}

func generatorPrompt(loc string) string {
	if loc == locale.English {
		return "You are the assistant of NextMove, a logistics company. " +
			"Answer the customer's last message briefly and helpfully in English. " +
			"If the request needs account data you do not have, suggest the shortcut menu."
	}
	return "Tu es l'assistant de NextMove, une entreprise de logistique. " +
		"Réponds brièvement et utilement au dernier message du client, en français. " +
		"Si la demande nécessite des données de compte que tu n'as pas, propose le menu de raccourcis."
}

func matchesAny(norm string, candidates []string) bool {
	for _, c := range candidates {
		if norm == c {
			return true
		}
	}
	return false
}

func cloneSlots(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func appendUnique(list []string, v string) []string {
	if v == "" {
		return list
	}
	for _, x := range list {
		if x == v {
			return list
		}
	}
	return append(list, v)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
