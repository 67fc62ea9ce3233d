// Package events publishes bot activity to Redis pub/sub so other services
// can follow what was posted and when.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/otherjamesbrown/recap-bot/pkg/logging"
)

// Redis channels
const (
	ChannelRecapDispatched = "events.recap.dispatched"
	ChannelCycleCompleted  = "events.recap.cycle_completed"
)

// BaseEvent contains common fields for all events.
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
	TraceID   string    `json:"trace_id,omitempty"`
	Source    string    `json:"source"`
	Version   string    `json:"version"`
}

// NewBaseEvent creates a BaseEvent with sensible defaults.
func NewBaseEvent(eventType string) BaseEvent {
	return BaseEvent{
		EventID:   uuid.NewString(),
		EventType: eventType,
		Timestamp: time.Now().UTC(),
		Source:    "recap-bot",
		Version:   "1.0",
	}
}

// DispatchEvent is published after the pipeline acts on a meeting.
type DispatchEvent struct {
	BaseEvent

	MeetingID    string    `json:"meeting_id"`
	MeetingTitle string    `json:"meeting_title"`
	MeetingStart time.Time `json:"meeting_start"`
	Outcome      string    `json:"outcome"`
	MatchTier    string    `json:"match_tier,omitempty"`
	TranscriptID string    `json:"transcript_id,omitempty"`
	Channel      string    `json:"channel,omitempty"`
	MessageTS    string    `json:"message_ts,omitempty"`
	ScheduledID  string    `json:"scheduled_id,omitempty"`
}

// CycleEvent is published after every poll cycle.
type CycleEvent struct {
	BaseEvent

	CycleID   string         `json:"cycle_id"`
	Trigger   string         `json:"trigger"`
	Events    int            `json:"events"`
	Skipped   int            `json:"skipped"`
	Outcomes  map[string]int `json:"outcomes"`
	Purged    int            `json:"purged"`
	Error     string         `json:"error,omitempty"`
	ElapsedMs int64          `json:"elapsed_ms"`
}

// Publisher publishes bot events.
type Publisher interface {
	PublishDispatch(ctx context.Context, e DispatchEvent) error
	PublishCycle(ctx context.Context, e CycleEvent) error
	Close() error
}

// redisClient is the subset of *redis.Client the publisher uses.
type redisClient interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
	Ping(ctx context.Context) *redis.StatusCmd
	Close() error
}

// RedisPublisher publishes events to Redis.
type RedisPublisher struct {
	client redisClient
	logger logging.Logger
}

// NewRedisPublisher creates a publisher on an existing client.
func NewRedisPublisher(client redisClient, logger logging.Logger) *RedisPublisher {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &RedisPublisher{
		client: client,
		logger: logger.With(logging.F("component", "event_publisher")),
	}
}

// NewRedisPublisherFromURL connects to a redis:// URL and verifies it with PING.
func NewRedisPublisherFromURL(ctx context.Context, url string, logger logging.Logger) (*RedisPublisher, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return NewRedisPublisher(client, logger), nil
}

// PublishDispatch publishes a dispatch event.
func (p *RedisPublisher) PublishDispatch(ctx context.Context, e DispatchEvent) error {
	if e.EventType == "" {
		e.BaseEvent = NewBaseEvent("recap.dispatched")
	}
	return p.publish(ctx, ChannelRecapDispatched, e)
}

// PublishCycle publishes a cycle summary.
func (p *RedisPublisher) PublishCycle(ctx context.Context, e CycleEvent) error {
	if e.EventType == "" {
		e.BaseEvent = NewBaseEvent("recap.cycle_completed")
	}
	return p.publish(ctx, ChannelCycleCompleted, e)
}

// Ping checks the Redis connection.
func (p *RedisPublisher) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

func (p *RedisPublisher) publish(ctx context.Context, channel string, event interface{}) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := p.client.Publish(ctx, channel, data).Err(); err != nil {
		p.logger.Error("Failed to publish event",
			logging.Err(err),
			logging.F("channel", channel))
		return fmt.Errorf("failed to publish to %s: %w", channel, err)
	}

	p.logger.Debug("Event published",
		logging.F("channel", channel),
		logging.F("payload_size", len(data)))
	return nil
}

// Close closes the Redis connection.
func (p *RedisPublisher) Close() error {
	return p.client.Close()
}

// NopPublisher discards all events.
type NopPublisher struct{}

func (NopPublisher) PublishDispatch(context.Context, DispatchEvent) error { return nil }
func (NopPublisher) PublishCycle(context.Context, CycleEvent) error       { return nil }
func (NopPublisher) Close() error                                         { return nil }
