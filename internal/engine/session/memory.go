package session

import (
	"context"
	"sync"
	"time"

	"github.com/cloudwego/eino/schema"

	"github.com/nextmove-ai/convocore/internal/engine/model"
)

// MemoryRepository is an in-process session store used for tests and for
// deployments without Redis. Expiry is lazy on Load; a background sweeper
// bounds memory for long-running processes.
type MemoryRepository struct {
	ttl time.Duration

	mu       sync.RWMutex
	sessions map[string]*model.Session
	history  map[string][]*schema.Message

	stop chan struct{}
	once sync.Once
}

const sweepInterval = 10 * time.Minute

func NewMemoryRepository(ttl time.Duration) *MemoryRepository {
	r := &MemoryRepository{
		ttl:      ttl,
		sessions: make(map[string]*model.Session),
		history:  make(map[string][]*schema.Message),
		stop:     make(chan struct{}),
	}
	go r.sweep()
	return r
}

// Close stops the background sweeper.
func (r *MemoryRepository) Close() {
	r.once.Do(func() { close(r.stop) })
}

func key(userID, channelID string) string {
	return userID + "|" + channelID
}

func (r *MemoryRepository) expired(s *model.Session) bool {
	return r.ttl > 0 && time.Since(s.UpdatedAt) > r.ttl
}

func (r *MemoryRepository) Load(_ context.Context, userID, channelID string) (*model.Session, error) {
	r.mu.RLock()
	s, ok := r.sessions[key(userID, channelID)]
	r.mu.RUnlock()
	if !ok || r.expired(s) {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

func (r *MemoryRepository) Save(_ context.Context, s *model.Session) error {
	cp := *s
	r.mu.Lock()
	r.sessions[key(s.UserID, s.ChannelID)] = &cp
	r.mu.Unlock()
	return nil
}

func (r *MemoryRepository) Delete(_ context.Context, userID, channelID string) error {
	k := key(userID, channelID)
	r.mu.Lock()
	delete(r.sessions, k)
	delete(r.history, k)
	r.mu.Unlock()
	return nil
}

func (r *MemoryRepository) AppendMessage(_ context.Context, userID, channelID string, message *schema.Message) error {
	k := key(userID, channelID)
	r.mu.Lock()
	r.history[k] = append(r.history[k], message)
	r.mu.Unlock()
	return nil
}

func (r *MemoryRepository) History(_ context.Context, userID, channelID string, maxTurns int) ([]*schema.Message, error) {
	r.mu.RLock()
	msgs := r.history[key(userID, channelID)]
	r.mu.RUnlock()

	if maxTurns > 0 && len(msgs) > maxTurns {
		msgs = msgs[len(msgs)-maxTurns:]
	}
	out := make([]*schema.Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

func (r *MemoryRepository) sweep() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-r.stop:
			return
		case <-ticker.C:
			r.mu.Lock()
			for k, s := range r.sessions {
				if r.expired(s) {
					delete(r.sessions, k)
					delete(r.history, k)
				}
			}
			r.mu.Unlock()
		}
	}
}

var _ model.SessionRepository = (*MemoryRepository)(nil)
