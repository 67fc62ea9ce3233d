package series

import (
	"strings"
	"time"
	"unicode"

	"github.com/otherjamesbrown/recap-bot/pkg/meeting"
)

// Tier names the strategy that produced a match.
type Tier string

const (
	TierKey     Tier = "key"
	TierOverlap Tier = "overlap"
)

// Default thresholds for the token-overlap strategy.
const (
	DefaultMinSharedWords  = 2
	DefaultMinOverlapRatio = 0.7
)

// Strategy decides whether a candidate title belongs to the same series as a
// target title.
type Strategy interface {
	Tier() Tier
	// Bind precomputes whatever the strategy needs from the target title and
	// returns a predicate over candidate titles.
	Bind(target string) func(candidate string) bool
}

// KeyStrategy matches titles with identical series keys.
type KeyStrategy struct{}

func (KeyStrategy) Tier() Tier { return TierKey }

func (KeyStrategy) Bind(target string) func(string) bool {
	want := ExtractSeriesKey(target)
	return func(candidate string) bool {
		return ExtractSeriesKey(candidate) == want
	}
}

// OverlapStrategy matches titles whose lower-cased word sets overlap enough.
// Both sets must have at least two words. A zero threshold is disabled.
type OverlapStrategy struct {
	// MinShared is the absolute number of shared words required.
	MinShared int
	// MinRatio is shared words divided by the smaller set's size.
	MinRatio float64
}

func (OverlapStrategy) Tier() Tier { return TierOverlap }

func (s OverlapStrategy) Bind(target string) func(string) bool {
	want := wordSet(target)
	return func(candidate string) bool {
		return s.overlaps(want, wordSet(candidate))
	}
}

// Similar reports whether two titles pass this strategy.
func (s OverlapStrategy) Similar(a, b string) bool {
	return s.overlaps(wordSet(a), wordSet(b))
}

func (s OverlapStrategy) overlaps(a, b map[string]struct{}) bool {
	if len(a) < 2 || len(b) < 2 {
		return false
	}
	shared := 0
	for w := range a {
		if _, ok := b[w]; ok {
			shared++
		}
	}
	if s.MinShared > 0 && shared >= s.MinShared {
		return true
	}
	if s.MinRatio > 0 {
		smaller := len(a)
		if len(b) < smaller {
			smaller = len(b)
		}
		return float64(shared)/float64(smaller) >= s.MinRatio
	}
	return false
}

func wordSet(title string) map[string]struct{} {
	fields := strings.FieldsFunc(strings.ToLower(title), func(r rune) bool {
		return r == '/' || unicode.IsSpace(r)
	})
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set
}

// Matcher is an ordered chain of strategies. The first strategy with any
// match decides the result.
type Matcher struct {
	strategies []Strategy
}

// NewMatcher builds a matcher from strategies in priority order.
func NewMatcher(strategies ...Strategy) *Matcher {
	return &Matcher{strategies: strategies}
}

// DefaultMatcher is exact key equality, then a shared-word floor.
func DefaultMatcher() *Matcher {
	return NewMatcher(KeyStrategy{}, OverlapStrategy{MinShared: DefaultMinSharedWords})
}

// Thresholds configures the overlap strategies.
type Thresholds struct {
	MinSharedWords  int     `yaml:"min_shared_words"`
	MinOverlapRatio float64 `yaml:"min_overlap_ratio"`
}

// DefaultThresholds returns the shared-word floor and overlap ratio defaults.
func DefaultThresholds() Thresholds {
	return Thresholds{MinSharedWords: DefaultMinSharedWords, MinOverlapRatio: DefaultMinOverlapRatio}
}

// PreviousMatcher is the previous-occurrence matcher for th.
func (th Thresholds) PreviousMatcher() *Matcher {
	return NewMatcher(KeyStrategy{}, OverlapStrategy{MinShared: th.MinSharedWords})
}

// Aggregation is the stricter ratio strategy used when grouping a corpus.
func (th Thresholds) Aggregation() OverlapStrategy {
	return OverlapStrategy{MinRatio: th.MinOverlapRatio}
}

// Strategies returns the chain in priority order.
func (m *Matcher) Strategies() []Strategy {
	return m.strategies
}

// Match is a previous occurrence and the tier that found it.
type Match[T meeting.Record] struct {
	Record T
	Tier   Tier
}

// FindPrevious returns the latest candidate dated strictly before at that
// belongs to the same series as title. No match is not an error.
func FindPrevious[T meeting.Record](m *Matcher, title string, at time.Time, candidates []T) (Match[T], bool) {
	if m == nil {
		m = DefaultMatcher()
	}

	for _, s := range m.strategies {
		matches := s.Bind(title)
		best := -1
		for i, c := range candidates {
			if !c.OccurredAt().Before(at) {
				continue
			}
			if !matches(c.SeriesTitle()) {
				continue
			}
			if best < 0 || c.OccurredAt().After(candidates[best].OccurredAt()) {
				best = i
			}
		}
		if best >= 0 {
			return Match[T]{Record: candidates[best], Tier: s.Tier()}, true
		}
	}

	var zero Match[T]
	return zero, false
}
