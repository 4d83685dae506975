// Package fanout mirrors canonical events to Redis streams so out-of-process
// consumers can follow a run. Mirroring is fire-and-forget: a Redis failure
// is logged and swallowed, never surfaced to the client event stream.
package fanout

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/projectdavid/orchestrator/internal/observability"
	"github.com/projectdavid/orchestrator/pkg/models"
)

// Mirror appends events to stream:{run_id}, bounded by an approximate
// MAXLEN and a TTL that is set exactly once per stream.
type Mirror struct {
	rdb     redis.UniversalClient
	maxLen  int64
	ttl     time.Duration
	logger  *observability.Logger
	metrics *observability.Metrics
}

// NewMirror creates a Mirror. maxLen defaults to 1000 and ttl to one hour.
func NewMirror(rdb redis.UniversalClient, maxLen int64, ttl time.Duration, logger *observability.Logger, metrics *observability.Metrics) *Mirror {
	if maxLen <= 0 {
		maxLen = 1000
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
	return &Mirror{rdb: rdb, maxLen: maxLen, ttl: ttl, logger: logger, metrics: metrics}
}

func streamKey(runID string) string {
	return "stream:" + runID
}

func sentinelKey(runID string) string {
	return streamKey(runID) + "::ttl_set"
}

// Publish mirrors one event. Errors are logged, counted, and dropped.
func (m *Mirror) Publish(ctx context.Context, runID string, event models.StreamEvent) {
	m.metrics.EventsEmitted.WithLabelValues(string(event.Type)).Inc()

	values := Flatten(event)
	err := m.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: streamKey(runID),
		MaxLen: m.maxLen,
		Approx: true,
		Values: values,
	}).Err()
	if err != nil {
		m.logger.Warn(ctx, "stream mirror write failed", "run_id", runID, "type", string(event.Type), "error", err)
		return
	}
	m.ensureTTL(ctx, runID)
}

// ensureTTL issues EXPIRE exactly once per stream, guarded by a sentinel.
func (m *Mirror) ensureTTL(ctx context.Context, runID string) {
	set, err := m.rdb.SetNX(ctx, sentinelKey(runID), "1", m.ttl).Result()
	if err != nil {
		m.logger.Warn(ctx, "stream ttl sentinel failed", "run_id", runID, "error", err)
		return
	}
	if !set {
		return
	}
	if err := m.rdb.Expire(ctx, streamKey(runID), m.ttl).Err(); err != nil {
		m.logger.Warn(ctx, "stream expire failed", "run_id", runID, "error", err)
	}
}

// Flatten converts an event to the field map stored in the stream entry.
// Nested structures become JSON strings, nil becomes "", booleans render as
// "True"/"False", other scalars pass through for Redis to stringify.
func Flatten(event models.StreamEvent) map[string]any {
	var generic map[string]any
	raw, err := json.Marshal(event)
	if err != nil || json.Unmarshal(raw, &generic) != nil {
		return map[string]any{"type": string(event.Type)}
	}

	out := make(map[string]any, len(generic))
	for k, v := range generic {
		out[k] = flattenValue(v)
	}
	return out
}

func flattenValue(v any) any {
	switch val := v.(type) {
	case nil:
		return ""
	case bool:
		if val {
			return "True"
		}
		return "False"
	case string, float64, json.Number:
		return val
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprintf("%v", val)
		}
		return string(b)
	}
}
