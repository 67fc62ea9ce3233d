package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/otherjamesbrown/recap-bot/pkg/meeting"
)

func TestProcessedSet_AddContains(t *testing.T) {
	set := NewProcessedSet()
	start := time.Date(2025, 10, 20, 15, 0, 0, 0, time.UTC)
	key := meeting.EventKey{ID: "evt-1", Start: start}

	assert.False(t, set.Contains(key))
	set.Add(key, start)
	assert.True(t, set.Contains(key))
	assert.Equal(t, 1, set.Len())

	// Same id, different occurrence.
	assert.False(t, set.Contains(meeting.EventKey{ID: "evt-1", Start: start.Add(7 * 24 * time.Hour)}))

	// Re-adding is a no-op.
	set.Add(key, start.Add(time.Hour))
	assert.Equal(t, 1, set.Len())
}

func TestProcessedSet_KeyIgnoresZone(t *testing.T) {
	set := NewProcessedSet()
	start := time.Date(2025, 10, 20, 15, 0, 0, 0, time.UTC)
	set.Add(meeting.EventKey{ID: "evt-1", Start: start}, start)

	est := time.FixedZone("EST", -5*3600)
	assert.True(t, set.Contains(meeting.EventKey{ID: "evt-1", Start: start.In(est)}))
}

func TestProcessedSet_Purge(t *testing.T) {
	now := time.Date(2025, 10, 21, 12, 0, 0, 0, time.UTC)
	set := NewProcessedSet()

	old := meeting.EventKey{ID: "old", Start: now.Add(-26 * time.Hour)}
	edge := meeting.EventKey{ID: "edge", Start: now.Add(-24 * time.Hour)}
	fresh := meeting.EventKey{ID: "fresh", Start: now.Add(-time.Hour)}
	late := meeting.EventKey{ID: "late", Start: now}

	set.Add(fresh, now.Add(-time.Hour))
	set.Add(old, now.Add(-25*time.Hour))
	set.Add(edge, now.Add(-24*time.Hour))
	set.Add(late, now)

	removed := set.Purge(DefaultRetention, now)

	assert.Equal(t, 1, removed)
	assert.False(t, set.Contains(old))
	assert.True(t, set.Contains(edge))
	assert.True(t, set.Contains(fresh))
	assert.True(t, set.Contains(late))
	assert.Equal(t, []string{fresh.String(), edge.String(), late.String()}, set.Keys())
}

func TestProcessedSet_PurgeEmpty(t *testing.T) {
	assert.Zero(t, NewProcessedSet().Purge(DefaultRetention, time.Now()))
}
