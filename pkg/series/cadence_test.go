package series

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/otherjamesbrown/recap-bot/pkg/meeting"
)

func spaced(n int, gap time.Duration) []meeting.Transcript {
	start := time.Date(2026, 9, 1, 9, 0, 0, 0, time.UTC)
	out := make([]meeting.Transcript, n)
	for i := range out {
		// Reverse order to exercise sorting.
		out[n-1-i] = meeting.Transcript{Title: "x", Date: start.Add(time.Duration(i) * gap)}
	}
	return out
}

func TestDetectCadence(t *testing.T) {
	day := 24 * time.Hour
	tests := []struct {
		name    string
		records []meeting.Transcript
		want    Cadence
	}{
		{"five daily", spaced(5, day), CadenceDaily},
		{"four weekly", spaced(4, 7*day), CadenceWeekly},
		{"one record", spaced(1, day), CadenceAdhoc},
		{"none", nil, CadenceAdhoc},
		{"same day", spaced(3, time.Hour), CadenceDaily},
		{"biweekly", spaced(3, 14*day), CadenceBiweekly},
		{"monthly", spaced(4, 30*day), CadenceMonthly},
		{"every three days", spaced(4, 3*day), CadenceAdhoc},
		{"partial days floor", spaced(3, 7*day-time.Hour), CadenceWeekly},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectCadence(tt.records))
		})
	}
}

func TestDetectCadence_SkippedWeekReadsAsAdhoc(t *testing.T) {
	start := time.Date(2026, 9, 1, 9, 0, 0, 0, time.UTC)
	records := []meeting.Transcript{
		{Date: start},
		{Date: start.AddDate(0, 0, 7)},
		{Date: start.AddDate(0, 0, 21)},
	}
	// Mean gap 10.5 days falls between the weekly and biweekly bands.
	assert.Equal(t, CadenceAdhoc, DetectCadence(records))
}
