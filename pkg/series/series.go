package series

import (
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/otherjamesbrown/recap-bot/pkg/meeting"
)

// Default frequency thresholds for series attributes.
const (
	ParticipantThreshold = 0.5
	KeywordThreshold     = 0.3
	minKeywordRunes      = 4
)

// Series is a group of two or more occurrences of the same meeting.
type Series struct {
	ID                 string               `json:"id" yaml:"id"`
	Name               string               `json:"name" yaml:"name"`
	Cadence            Cadence              `json:"cadence" yaml:"cadence"`
	Records            []meeting.Transcript `json:"-" yaml:"-"`
	CommonParticipants []string             `json:"common_participants,omitempty" yaml:"common_participants,omitempty"`
	CommonKeywords     []string             `json:"common_keywords,omitempty" yaml:"common_keywords,omitempty"`
}

// Latest returns the most recent occurrence in the series.
func (s Series) Latest() meeting.Transcript {
	latest := s.Records[0]
	for _, r := range s.Records[1:] {
		if r.Date.After(latest.Date) {
			latest = r
		}
	}
	return latest
}

// CommonParticipants returns names present in at least threshold of records.
// Each record counts a name once.
func CommonParticipants(records []meeting.Transcript, threshold float64) []string {
	return frequent(records, threshold, func(t meeting.Transcript) []string { return t.Participants }, false)
}

// CommonKeywords returns lower-cased keywords longer than three characters
// present in at least threshold of records.
func CommonKeywords(records []meeting.Transcript, threshold float64) []string {
	return frequent(records, threshold, func(t meeting.Transcript) []string { return t.Keywords }, true)
}

func frequent(records []meeting.Transcript, threshold float64, values func(meeting.Transcript) []string, keywords bool) []string {
	if len(records) == 0 {
		return nil
	}

	counts := make(map[string]int)
	for _, r := range records {
		seen := make(map[string]struct{})
		for _, v := range values(r) {
			v = strings.TrimSpace(v)
			if keywords {
				v = strings.ToLower(v)
				if utf8.RuneCountInString(v) < minKeywordRunes {
					continue
				}
			}
			if v == "" {
				continue
			}
			if _, dup := seen[v]; dup {
				continue
			}
			seen[v] = struct{}{}
			counts[v]++
		}
	}

	need := float64(len(records)) * threshold
	var out []string
	for v, n := range counts {
		if float64(n) >= need {
			out = append(out, v)
		}
	}
	sort.Strings(out)
	return out
}

// IdentifySeries groups transcripts into series by key. Groups of one are
// merged into an existing group when their title passes the aggregation
// strategy against that group's first title. Only groups of two or more are
// returned, most recently active first.
func IdentifySeries(records []meeting.Transcript, aggregation OverlapStrategy) []Series {
	type group struct {
		key     string
		records []meeting.Transcript
	}

	var groups []*group
	byKey := make(map[string]*group)
	for _, r := range records {
		key := ExtractSeriesKey(r.Title)
		g, ok := byKey[key]
		if !ok {
			g = &group{key: key}
			byKey[key] = g
			groups = append(groups, g)
		}
		g.records = append(g.records, r)
	}

	var merged []*group
	var singles []*group
	for _, g := range groups {
		if len(g.records) >= 2 {
			merged = append(merged, g)
		} else {
			singles = append(singles, g)
		}
	}
	for _, s := range singles {
		title := s.records[0].Title
		for _, g := range merged {
			if aggregation.Similar(title, g.records[0].Title) {
				g.records = append(g.records, s.records...)
				break
			}
		}
	}

	out := make([]Series, 0, len(merged))
	for _, g := range merged {
		out = append(out, newSeries(g.key, g.records))
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Latest().Date.After(out[j].Latest().Date)
	})
	return out
}

func newSeries(key string, records []meeting.Transcript) Series {
	name := key
	for _, r := range records {
		if n, ok := ExtractSeriesName(r.Title); ok {
			name = n
			break
		}
	}
	return Series{
		ID:                 key,
		Name:               name,
		Cadence:            DetectCadence(records),
		Records:            records,
		CommonParticipants: CommonParticipants(records, ParticipantThreshold),
		CommonKeywords:     CommonKeywords(records, KeywordThreshold),
	}
}
