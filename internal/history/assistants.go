package history

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/projectdavid/orchestrator/internal/observability"
	"github.com/projectdavid/orchestrator/internal/store"
	"github.com/projectdavid/orchestrator/pkg/models"
)

// AssistantCache caches assistant definitions in Redis by id. Assistants are
// read-only during a run, so a short TTL is plenty. Concurrent cold-loads
// for the same assistant collapse into one backend call.
type AssistantCache struct {
	rdb     redis.UniversalClient
	backend store.Assistants
	ttl     time.Duration
	logger  *observability.Logger
	metrics *observability.Metrics

	mu       sync.Mutex
	inflight map[string]*assistantLoad
}

type assistantLoad struct {
	done      chan struct{}
	assistant *models.Assistant
	err       error
}

// NewAssistantCache creates an AssistantCache with the given TTL (default
// one hour).
func NewAssistantCache(rdb redis.UniversalClient, backend store.Assistants, ttl time.Duration, logger *observability.Logger, metrics *observability.Metrics) *AssistantCache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	if logger == nil {
		logger = observability.NopLogger()
	}
	if metrics == nil {
		metrics = observability.NopMetrics()
	}
	return &AssistantCache{
		rdb:      rdb,
		backend:  backend,
		ttl:      ttl,
		logger:   logger,
		metrics:  metrics,
		inflight: make(map[string]*assistantLoad),
	}
}

func assistantKey(id string) string {
	return fmt.Sprintf("assistant:%s:config", id)
}

// Get returns the assistant, from Redis when possible.
func (c *AssistantCache) Get(ctx context.Context, id string) (*models.Assistant, error) {
	raw, err := c.rdb.Get(ctx, assistantKey(id)).Result()
	if err == nil {
		var a models.Assistant
		if jsonErr := json.Unmarshal([]byte(raw), &a); jsonErr == nil {
			c.metrics.CacheHits.WithLabelValues("assistant").Inc()
			return &a, nil
		}
		// Poisoned entry: fall through to a reload.
	} else if err != redis.Nil {
		c.logger.Warn(ctx, "assistant cache read failed", "assistant_id", id, "error", err)
	}
	c.metrics.CacheMisses.WithLabelValues("assistant").Inc()
	return c.load(ctx, id)
}

// Invalidate drops the cached definition.
func (c *AssistantCache) Invalidate(ctx context.Context, id string) error {
	return c.rdb.Del(ctx, assistantKey(id)).Err()
}

// load cold-loads one assistant, deduplicating concurrent callers.
func (c *AssistantCache) load(ctx context.Context, id string) (*models.Assistant, error) {
	c.mu.Lock()
	if in, ok := c.inflight[id]; ok {
		c.mu.Unlock()
		select {
		case <-in.done:
			return in.assistant, in.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	in := &assistantLoad{done: make(chan struct{})}
	c.inflight[id] = in
	c.mu.Unlock()

	in.assistant, in.err = c.backend.RetrieveAssistant(ctx, id)
	if in.err == nil {
		if b, err := json.Marshal(in.assistant); err == nil {
			if err := c.rdb.Set(ctx, assistantKey(id), b, c.ttl).Err(); err != nil {
				c.logger.Warn(ctx, "assistant cache fill failed", "assistant_id", id, "error", err)
			}
		}
	}

	c.mu.Lock()
	delete(c.inflight, id)
	c.mu.Unlock()
	close(in.done)
	return in.assistant, in.err
}
