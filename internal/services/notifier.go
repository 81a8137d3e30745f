package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/gaugeworks/gaugetrack-backend/internal/observability"
	"github.com/gaugeworks/gaugetrack-backend/internal/pkg/env"
	"github.com/gaugeworks/gaugetrack-backend/internal/pkg/logger"
)

// Event is the fan-out record for dashboards and downstream listeners.
// GoID/NoGoID are zero when the event concerns a single unpaired gauge.
type Event struct {
	ID        string                 `json:"id"`
	Kind      string                 `json:"kind"`
	GoID      int64                  `json:"go_id,omitempty"`
	NoGoID    int64                  `json:"nogo_id,omitempty"`
	GaugeID   int64                  `json:"gauge_id,omitempty"`
	DisplayID string                 `json:"display_id,omitempty"`
	Actor     string                 `json:"actor,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
	At        time.Time              `json:"at"`
}

// EventPublisher fans events out after a successful commit. Publishing
// is best effort; failures are logged and never fail the operation.
type EventPublisher interface {
	Publish(ctx context.Context, event Event) error
}

type redisPublisher struct {
	log     *logger.Logger
	rdb     *goredis.Client
	channel string
	metrics *observability.Metrics
}

// NewRedisPublisher connects to Redis Pub/Sub using REDIS_ADDR and
// REDIS_EVENTS_CHANNEL.
func NewRedisPublisher(logg *logger.Logger, metrics *observability.Metrics) (EventPublisher, error) {
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	serviceLog := logg.With("service", "RedisPublisher")

	addr := strings.TrimSpace(env.Get("REDIS_ADDR", "", logg))
	if addr == "" {
		return nil, fmt.Errorf("missing REDIS_ADDR")
	}
	channel := strings.TrimSpace(env.Get("REDIS_EVENTS_CHANNEL", "gaugetrack.events", logg))

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &redisPublisher{
		log:     serviceLog,
		rdb:     rdb,
		channel: channel,
		metrics: metrics,
	}, nil
}

func (p *redisPublisher) Publish(ctx context.Context, event Event) error {
	if p == nil || p.rdb == nil {
		return fmt.Errorf("redis publisher not initialized")
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}
	raw, err := json.Marshal(event)
	if err != nil {
		p.metrics.IncEventPublished(event.Kind, "encode_error")
		return err
	}
	if err := p.rdb.Publish(ctx, p.channel, raw).Err(); err != nil {
		p.metrics.IncEventPublished(event.Kind, "error")
		return err
	}
	p.metrics.IncEventPublished(event.Kind, "ok")
	return nil
}

// NopPublisher satisfies EventPublisher when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }

// publishEvent is the shared best-effort send used by the services after
// their transaction commits.
func publishEvent(ctx context.Context, pub EventPublisher, log *logger.Logger, event Event) {
	if pub == nil {
		return
	}
	if err := pub.Publish(ctx, event); err != nil && log != nil {
		log.Warn("event publish failed", "kind", event.Kind, "error", err)
	}
}
