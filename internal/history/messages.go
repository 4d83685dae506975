// Package history caches conversation state in Redis: the per-thread message
// list and assistant configurations. Both are caches over the control plane;
// a cold Redis only costs one reload.
package history

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/projectdavid/orchestrator/internal/observability"
	"github.com/projectdavid/orchestrator/internal/store"
	"github.com/projectdavid/orchestrator/pkg/models"
)

// MessageCache is the per-thread Redis list holding the most recent dialogue.
//
// Key shape: thread:{thread_id}:history, a list of JSON-encoded messages
// oldest-first, capped at limit entries and bounded by ttl.
type MessageCache struct {
	rdb     redis.UniversalClient
	backend store.Messages
	limit   int
	ttl     time.Duration
	logger  *observability.Logger
	metrics *observability.Metrics
}

// NewMessageCache creates a MessageCache. limit and ttl fall back to 200 and
// one hour when unset.
func NewMessageCache(rdb redis.UniversalClient, backend store.Messages, limit int, ttl time.Duration, logger *observability.Logger, metrics *observability.Metrics) *MessageCache {
	if limit <= 0 {
		limit = 200
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	if logger == nil {
		logger = observability.NopLogger()
	}
	if metrics == nil {
		metrics = observability.NopMetrics()
	}
	return &MessageCache{rdb: rdb, backend: backend, limit: limit, ttl: ttl, logger: logger, metrics: metrics}
}

func historyKey(threadID string) string {
	return fmt.Sprintf("thread:%s:history", threadID)
}

// Get returns the cached dialogue, cold-loading from the backend on a miss.
// The cold-load result overwrites whatever was cached before.
func (c *MessageCache) Get(ctx context.Context, threadID string) ([]models.Message, error) {
	raw, err := c.rdb.LRange(ctx, historyKey(threadID), 0, -1).Result()
	if err != nil && err != redis.Nil {
		c.logger.Warn(ctx, "history cache read failed, falling back to store", "thread_id", threadID, "error", err)
		raw = nil
	}
	if len(raw) > 0 {
		c.metrics.CacheHits.WithLabelValues("history").Inc()
		return decodeMessages(raw), nil
	}

	c.metrics.CacheMisses.WithLabelValues("history").Inc()
	msgs, err := c.backend.GetFormattedMessages(ctx, threadID)
	if err != nil {
		return nil, fmt.Errorf("cold-load thread %s: %w", threadID, err)
	}
	if err := c.Set(ctx, threadID, msgs); err != nil {
		// The dialogue never depends on the cache; log and serve anyway.
		c.logger.Warn(ctx, "history cache fill failed", "thread_id", threadID, "error", err)
	}
	return msgs, nil
}

// Set atomically replaces the cached dialogue with the last limit messages.
func (c *MessageCache) Set(ctx context.Context, threadID string, msgs []models.Message) error {
	if len(msgs) > c.limit {
		msgs = msgs[len(msgs)-c.limit:]
	}
	encoded := make([]any, 0, len(msgs))
	for _, m := range msgs {
		b, err := json.Marshal(m)
		if err != nil {
			return fmt.Errorf("encode message %s: %w", m.ID, err)
		}
		encoded = append(encoded, b)
	}

	key := historyKey(threadID)
	pipe := c.rdb.TxPipeline()
	pipe.Del(ctx, key)
	if len(encoded) > 0 {
		pipe.RPush(ctx, key, encoded...)
		pipe.Expire(ctx, key, c.ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// Append pushes one message and retrims the list to the last limit entries.
func (c *MessageCache) Append(ctx context.Context, threadID string, msg models.Message) error {
	b, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode message %s: %w", msg.ID, err)
	}
	key := historyKey(threadID)
	pipe := c.rdb.TxPipeline()
	pipe.RPush(ctx, key, b)
	pipe.LTrim(ctx, key, int64(-c.limit), -1)
	pipe.Expire(ctx, key, c.ttl)
	_, err = pipe.Exec(ctx)
	return err
}

// Delete drops the cached dialogue.
func (c *MessageCache) Delete(ctx context.Context, threadID string) error {
	return c.rdb.Del(ctx, historyKey(threadID)).Err()
}

// Refresh bypasses the cache: cold-load and overwrite unconditionally.
func (c *MessageCache) Refresh(ctx context.Context, threadID string) ([]models.Message, error) {
	msgs, err := c.backend.GetFormattedMessages(ctx, threadID)
	if err != nil {
		return nil, fmt.Errorf("refresh thread %s: %w", threadID, err)
	}
	if err := c.Set(ctx, threadID, msgs); err != nil {
		c.logger.Warn(ctx, "history cache refresh fill failed", "thread_id", threadID, "error", err)
	}
	return msgs, nil
}

// decodeMessages drops entries that no longer parse rather than failing the
// whole read.
func decodeMessages(raw []string) []models.Message {
	out := make([]models.Message, 0, len(raw))
	for _, r := range raw {
		var m models.Message
		if err := json.Unmarshal([]byte(r), &m); err != nil {
			continue
		}
		out = append(out, m)
	}
	return out
}
