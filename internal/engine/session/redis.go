// Package session provides the conversational memory service: per
// (user, channel) session documents plus a short message history, with
// TTL-based expiry and a per-session critical section for the turn's
// read-modify-write.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/redis/go-redis/v9"

	errx "github.com/nextmove-ai/convocore/internal/core/error"
	"github.com/nextmove-ai/convocore/internal/engine/model"
	logx "github.com/nextmove-ai/convocore/pkg/logger"
)

// RedisRepository stores sessions as JSON documents and message history as
// a Redis list, both expiring together after the configured TTL of
// inactivity.
type RedisRepository struct {
	rdb redis.Cmdable
	ttl time.Duration
}

func NewRedisRepository(rdb redis.Cmdable, ttl time.Duration) *RedisRepository {
	return &RedisRepository{rdb: rdb, ttl: ttl}
}

func (r *RedisRepository) stateKey(userID, channelID string) string {
	return fmt.Sprintf("session:%s:%s:state", userID, channelID)
}

func (r *RedisRepository) messagesKey(userID, channelID string) string {
	return fmt.Sprintf("session:%s:%s:messages", userID, channelID)
}

func (r *RedisRepository) Load(ctx context.Context, userID, channelID string) (*model.Session, error) {
	key := r.stateKey(userID, channelID)
	raw, err := r.rdb.Get(ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		logx.Error().Err(err).Str("key", key).Msg("failed to load session from redis")
		return nil, errx.WrapRedis(err)
	}

	var s model.Session
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		logx.Error().Err(err).Str("key", key).Msg("failed to unmarshal session")
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}

	// The key TTL already enforces expiry; the timestamp check covers
	// documents written with a longer TTL before a config change.
	if r.ttl > 0 && time.Since(s.UpdatedAt) > r.ttl {
		return nil, nil
	}
	return &s, nil
}

func (r *RedisRepository) Save(ctx context.Context, s *model.Session) error {
	b, err := json.Marshal(s)
	if err != nil {
		logx.Error().Err(err).Str("user_id", s.UserID).Msg("failed to marshal session")
		return fmt.Errorf("marshal session: %w", err)
	}
	key := r.stateKey(s.UserID, s.ChannelID)
	if err := r.rdb.Set(ctx, key, b, r.ttl).Err(); err != nil {
		logx.Error().Err(err).Str("key", key).Msg("failed to save session to redis")
		return errx.WrapRedis(err)
	}
	// Keep the history's lifetime aligned with the session document.
	if r.ttl > 0 {
		if err := r.rdb.Expire(ctx, r.messagesKey(s.UserID, s.ChannelID), r.ttl).Err(); err != nil {
			logx.Warn().Err(err).Str("key", key).Msg("failed to touch history TTL")
		}
	}
	return nil
}

func (r *RedisRepository) Delete(ctx context.Context, userID, channelID string) error {
	if err := r.rdb.Del(ctx, r.stateKey(userID, channelID), r.messagesKey(userID, channelID)).Err(); err != nil {
		logx.Error().Err(err).Str("user_id", userID).Msg("failed to delete session from redis")
		return errx.WrapRedis(err)
	}
	return nil
}

func (r *RedisRepository) AppendMessage(ctx context.Context, userID, channelID string, message *schema.Message) error {
	b, err := json.Marshal(message)
	if err != nil {
		logx.Error().Err(err).Str("user_id", userID).Msg("failed to marshal message")
		return fmt.Errorf("marshal message: %w", err)
	}
	key := r.messagesKey(userID, channelID)

	if err := r.rdb.RPush(ctx, key, b).Err(); err != nil {
		logx.Error().Err(err).Str("key", key).Msg("failed to push message to redis")
		return errx.WrapRedis(err)
	}
	if r.ttl > 0 {
		if ok, err := r.rdb.Expire(ctx, key, r.ttl).Result(); err != nil {
			logx.Error().Err(err).Str("key", key).Msg("failed to set expire")
			return errx.WrapRedis(err)
		} else if !ok {
			logx.Warn().Str("key", key).Dur("ttl", r.ttl).Msg("failed to set TTL on history key")
		}
	}
	return nil
}

func (r *RedisRepository) History(ctx context.Context, userID, channelID string, maxTurns int) ([]*schema.Message, error) {
	key := r.messagesKey(userID, channelID)

	start := int64(0)
	if maxTurns > 0 {
		start = int64(-maxTurns)
	}
	rows, err := r.rdb.LRange(ctx, key, start, -1).Result()
	if err != nil {
		if err == redis.Nil {
			return []*schema.Message{}, nil
		}
		logx.Error().Err(err).Str("key", key).Msg("failed to load history from redis")
		return nil, errx.WrapRedis(err)
	}

	msgs := make([]*schema.Message, 0, len(rows))
	for i, raw := range rows {
		var m schema.Message
		if err := json.Unmarshal([]byte(raw), &m); err != nil {
			logx.Error().Err(err).Str("key", key).Int("index", i).Msg("failed to unmarshal message")
			return nil, fmt.Errorf("unmarshal message at index %d: %w", i, err)
		}
		msgs = append(msgs, &m)
	}
	return msgs, nil
}

var _ model.SessionRepository = (*RedisRepository)(nil)
