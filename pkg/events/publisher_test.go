package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type published struct {
	channel string
	payload []byte
}

type fakeRedis struct {
	sent   []published
	err    error
	closed bool
}

func (f *fakeRedis) Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd {
	cmd := redis.NewIntCmd(ctx)
	if f.err != nil {
		cmd.SetErr(f.err)
		return cmd
	}
	f.sent = append(f.sent, published{channel: channel, payload: message.([]byte)})
	cmd.SetVal(1)
	return cmd
}

func (f *fakeRedis) Ping(ctx context.Context) *redis.StatusCmd {
	cmd := redis.NewStatusCmd(ctx)
	cmd.SetVal("PONG")
	return cmd
}

func (f *fakeRedis) Close() error {
	f.closed = true
	return nil
}

func TestNewBaseEvent(t *testing.T) {
	event := NewBaseEvent("recap.dispatched")

	assert.NotEmpty(t, event.EventID)
	assert.Equal(t, "recap.dispatched", event.EventType)
	assert.Equal(t, "recap-bot", event.Source)
	assert.Equal(t, "1.0", event.Version)
	assert.False(t, event.Timestamp.IsZero())
}

func TestPublishDispatch(t *testing.T) {
	fake := &fakeRedis{}
	p := NewRedisPublisher(fake, nil)

	start := time.Date(2026, 10, 19, 15, 0, 0, 0, time.UTC)
	err := p.PublishDispatch(context.Background(), DispatchEvent{
		MeetingID:    "evt-1",
		MeetingTitle: "Weekly Sync",
		MeetingStart: start,
		Outcome:      "sent",
		MatchTier:    "key",
		TranscriptID: "t-9",
		Channel:      "C1",
		MessageTS:    "1.2",
	})
	require.NoError(t, err)
	require.Len(t, fake.sent, 1)
	assert.Equal(t, ChannelRecapDispatched, fake.sent[0].channel)

	var got map[string]any
	require.NoError(t, json.Unmarshal(fake.sent[0].payload, &got))
	assert.Equal(t, "recap.dispatched", got["event_type"])
	assert.Equal(t, "evt-1", got["meeting_id"])
	assert.Equal(t, "sent", got["outcome"])
	assert.Equal(t, "key", got["match_tier"])
	assert.NotContains(t, got, "scheduled_id")
}

func TestPublishCycle(t *testing.T) {
	fake := &fakeRedis{}
	p := NewRedisPublisher(fake, nil)

	err := p.PublishCycle(context.Background(), CycleEvent{
		CycleID:  "c-1",
		Trigger:  "manual",
		Events:   3,
		Outcomes: map[string]int{"sent": 2, "no_action": 1},
	})
	require.NoError(t, err)
	require.Len(t, fake.sent, 1)
	assert.Equal(t, ChannelCycleCompleted, fake.sent[0].channel)
}

func TestPublishError(t *testing.T) {
	fake := &fakeRedis{err: errors.New("connection refused")}
	p := NewRedisPublisher(fake, nil)

	err := p.PublishDispatch(context.Background(), DispatchEvent{MeetingID: "evt-1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), ChannelRecapDispatched)
}

func TestClose(t *testing.T) {
	fake := &fakeRedis{}
	p := NewRedisPublisher(fake, nil)
	require.NoError(t, p.Ping(context.Background()))
	require.NoError(t, p.Close())
	assert.True(t, fake.closed)
}
