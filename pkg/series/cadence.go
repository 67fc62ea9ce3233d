package series

import (
	"sort"
	"time"

	"github.com/otherjamesbrown/recap-bot/pkg/meeting"
)

// Cadence is the recurrence interval classification of a series.
type Cadence string

const (
	CadenceDaily    Cadence = "daily"
	CadenceWeekly   Cadence = "weekly"
	CadenceBiweekly Cadence = "biweekly"
	CadenceMonthly  Cadence = "monthly"
	CadenceAdhoc    Cadence = "adhoc"
)

// DetectCadence classifies the mean whole-day gap between consecutive
// occurrences. A skipped occurrence widens the mean, so a weekly series with
// one missed week can read as biweekly.
func DetectCadence[T meeting.Record](records []T) Cadence {
	if len(records) < 2 {
		return CadenceAdhoc
	}

	dates := make([]time.Time, len(records))
	for i, r := range records {
		dates[i] = r.OccurredAt()
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	total := 0
	for i := 1; i < len(dates); i++ {
		total += wholeDays(dates[i].Sub(dates[i-1]))
	}
	return classify(float64(total) / float64(len(dates)-1))
}

func wholeDays(d time.Duration) int {
	days := int(d / (24 * time.Hour))
	if d < 0 && d%(24*time.Hour) != 0 {
		days--
	}
	return days
}

func classify(meanDays float64) Cadence {
	switch {
	case meanDays <= 1.5:
		return CadenceDaily
	case meanDays >= 5 && meanDays <= 9:
		return CadenceWeekly
	case meanDays >= 12 && meanDays <= 16:
		return CadenceBiweekly
	case meanDays >= 25 && meanDays <= 35:
		return CadenceMonthly
	default:
		return CadenceAdhoc
	}
}
