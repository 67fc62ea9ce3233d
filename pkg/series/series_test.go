package series

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/otherjamesbrown/recap-bot/pkg/meeting"
)

func at(month time.Month, day, hour int) time.Time {
	return time.Date(2026, month, day, hour, 0, 0, 0, time.UTC)
}

func TestIdentifySeries(t *testing.T) {
	records := []meeting.Transcript{
		{ID: "e1", Title: "Engineering Sync: Sprint 23", Date: at(10, 1, 14)},
		{ID: "d1", Title: "Daily Standup", Date: at(10, 13, 9), Participants: []string{"alice", "bob"}},
		{ID: "e2", Title: "Engineering Sync: Sprint 24", Date: at(10, 8, 14)},
		{ID: "d2", Title: "Daily Standup", Date: at(10, 14, 9), Participants: []string{"alice", "carol"}},
		{ID: "o1", Title: "One-off Vendor Call", Date: at(10, 10, 11)},
		{ID: "d3", Title: "Daily Standup", Date: at(10, 15, 9), Participants: []string{"alice", "bob", "alice"}},
		{ID: "e3", Title: "Engineering Sync: Sprint 25", Date: at(10, 15, 14)},
		{ID: "d4", Title: "Standup daily", Date: at(10, 16, 9), Participants: []string{"alice"}},
	}

	got := IdentifySeries(records, DefaultThresholds().Aggregation())
	require.Len(t, got, 2)

	daily := got[0]
	assert.Equal(t, "daily standup", daily.ID)
	assert.Equal(t, "daily standup", daily.Name)
	assert.Equal(t, CadenceDaily, daily.Cadence)
	assert.Len(t, daily.Records, 4)
	assert.Equal(t, []string{"alice", "bob"}, daily.CommonParticipants)
	assert.Equal(t, "d4", daily.Latest().ID)

	eng := got[1]
	assert.Equal(t, "engineering sync", eng.ID)
	assert.Equal(t, "Engineering Sync", eng.Name)
	assert.Equal(t, CadenceWeekly, eng.Cadence)
	assert.Len(t, eng.Records, 3)
}

func TestIdentifySeries_SingletonsDropped(t *testing.T) {
	records := []meeting.Transcript{
		{Title: "Brand New Kickoff", Date: at(10, 1, 9)},
		{Title: "Quarterly Offsite", Date: at(10, 2, 9)},
	}
	assert.Empty(t, IdentifySeries(records, DefaultThresholds().Aggregation()))
}

func TestCommonKeywords(t *testing.T) {
	records := []meeting.Transcript{
		{Keywords: []string{"Roadmap", "API", "roadmap", "hiring"}},
		{Keywords: []string{"roadmap", "budget"}},
		{Keywords: []string{"Budget"}},
		{Keywords: []string{"latency"}},
	}
	// Threshold 0.3 of 4 records is 1.2, so a keyword needs two records.
	assert.Equal(t, []string{"budget", "roadmap"}, CommonKeywords(records, KeywordThreshold))
	assert.Nil(t, CommonKeywords(nil, KeywordThreshold))
}

func TestCommonParticipants(t *testing.T) {
	records := []meeting.Transcript{
		{Participants: []string{"alice", "bob"}},
		{Participants: []string{"alice"}},
		{Participants: []string{"carol", "bob"}},
		{Participants: []string{"alice", " "}},
	}
	assert.Equal(t, []string{"alice", "bob"}, CommonParticipants(records, ParticipantThreshold))
}
