package model

import (
	"context"
	"time"

	"github.com/cloudwego/eino/schema"
	errx "github.com/nextmove-ai/convocore/internal/core/error"
)

// InboundMessage is the contract consumed from the chat/UI layer. ChannelID
// distinguishes otherwise-identical users across web/WhatsApp/etc. and is
// part of the session key.
type InboundMessage struct {
	Text      string `json:"text"`
	UserID    string `json:"user_id"`
	ChannelID string `json:"channel_id"`
}

// Response is the terminal artifact of a turn, produced to the UI layer.
// It is stateless and never stored beyond the reply.
type Response struct {
	Message       string   `json:"message"`
	CTAs          []string `json:"ctas"`
	RequiresInput bool     `json:"requires_input"`
	Escalated     bool     `json:"escalated"`
}

// Entity is a typed value extracted from free text. Entities are ephemeral
// per turn; selected normalized values are persisted into the session's
// LastEntities for one follow-up turn only.
type Entity struct {
	Value      string  `json:"value"`
	Normalized string  `json:"normalized"`
	Confidence float64 `json:"confidence"`
	Start      int     `json:"start"`
	End        int     `json:"end"`
}

// EntitySet maps entity name to its single best extracted candidate.
type EntitySet map[string]Entity

// ToolResult is the outcome of a dispatched capability call. It is always
// produced; tool errors never propagate past the dispatcher boundary.
type ToolResult struct {
	Success   bool           `json:"success"`
	Data      map[string]any `json:"data,omitempty"`
	ErrorKind errx.Kind      `json:"error_kind,omitempty"`
	Message   string         `json:"message"`
}

// Preferences holds per-user settings carried on the session.
type Preferences struct {
	Locale        string   `json:"locale,omitempty"`
	Notifications []string `json:"notifications,omitempty"`
}

// PendingConfirmation records an auto-corrected code awaiting an explicit
// yes/no from the user. Auto-corrections are never dispatched silently.
type PendingConfirmation struct {
	Intent    string            `json:"intent"`
	Slot      string            `json:"slot"`
	Original  string            `json:"original"`
	Corrected string            `json:"corrected"`
	Slots     map[string]string `json:"slots,omitempty"`
}

// Session is the per-(user, channel) conversational memory. It is lazily
// created on the first message and treated as nonexistent once UpdatedAt is
// older than the configured TTL. Only the orchestrator mutates it, once per
// turn, under the store's per-session lock.
type Session struct {
	UserID    string `json:"user_id"`
	ChannelID string `json:"channel_id"`

	LastIntent    string            `json:"last_intent,omitempty"`
	PendingIntent string            `json:"pending_intent,omitempty"`
	PendingSlots  map[string]string `json:"pending_slots,omitempty"`
	AwaitingSlot  string            `json:"awaiting_slot,omitempty"`

	PendingConfirmation *PendingConfirmation `json:"pending_confirmation,omitempty"`

	Topic        string            `json:"conversation_topic,omitempty"`
	LastEntities map[string]Entity `json:"last_entities,omitempty"`
	Preferences  Preferences       `json:"user_preferences"`

	// RecentTickets counts escalation tickets opened from this session and
	// feeds the recurring-problem escalation rule.
	RecentTickets int `json:"recent_tickets,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewSession creates a fresh session for the given user and channel.
func NewSession(userID, channelID string) *Session {
	now := time.Now().UTC()
	return &Session{
		UserID:    userID,
		ChannelID: channelID,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// ClearPending drops all multi-turn slot-filling state. Called when a turn
// completes a full dispatch or escalation, or when the user switches topic.
func (s *Session) ClearPending() {
	s.PendingIntent = ""
	s.PendingSlots = nil
	s.AwaitingSlot = ""
	s.PendingConfirmation = nil
}

// SessionRepository is the session store contract. Load returns (nil, nil)
// for absent or TTL-expired sessions so callers can lazily create a fresh
// one. The short message history rides alongside the session document and
// shares its TTL.
type SessionRepository interface {
	Load(ctx context.Context, userID, channelID string) (*Session, error)
	Save(ctx context.Context, session *Session) error
	Delete(ctx context.Context, userID, channelID string) error

	AppendMessage(ctx context.Context, userID, channelID string, message *schema.Message) error
	History(ctx context.Context, userID, channelID string, maxTurns int) ([]*schema.Message, error)
}
