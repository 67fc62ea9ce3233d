// Package series identifies recurring meeting series from free-text titles.
//
// A series key is a normalized string derived only from a title. Titles that
// differ by an embedded date, time, sequence number or quarter produce the
// same key, so the key can be used to group occurrences and to find the
// previous occurrence of an upcoming meeting.
package series

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// MinKeyLength is the shortest key accepted before falling back to the
// leading words of the title.
const MinKeyLength = 6

// fallbackWords is how many leading title words form a fallback key.
const fallbackWords = 3

// Explicit delimiters, tried in order against the case-preserved title.
var delimiterPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\[(.+?)\]`),
	regexp.MustCompile(`(?i)\((.+?)\)`),
	regexp.MustCompile(`(?i)^(.+?):`),
	regexp.MustCompile(`(?i)^(.+?)\s*-`),
	regexp.MustCompile(`(?i)^(.+?)\s*\|`),
}

// Well-known recurring meeting phrases, tried against the lower-cased title.
var phrasePatterns = []*regexp.Regexp{
	regexp.MustCompile(`daily\s+(standup|sync|scrum|meeting)`),
	regexp.MustCompile(`weekly\s+(\w+\s*)*(meeting|sync|review|retro|retrospective)`),
	regexp.MustCompile(`bi-?weekly\s+(\w+\s*)*(meeting|sync|review)`),
	regexp.MustCompile(`monthly\s+(\w+\s*)*(meeting|sync|review|all-hands)`),
	regexp.MustCompile(`1:1|one-on-one|1-on-1`),
	regexp.MustCompile(`sprint\s+(planning|review|retro|retrospective)`),
	regexp.MustCompile(`(team|dept|department)\s+(meeting|sync|standup)`),
	regexp.MustCompile(`(product|design|engineering)\s+(review|sync|meeting)`),
	regexp.MustCompile(`all-hands|company\s+meeting|town\s+hall`),
}

// Trailing occurrence markers stripped when deriving a base name.
var suffixPattern = regexp.MustCompile(
	`(\s+\d{1,2}[/-]\d{1,2}[/-]\d{2,4}|\s+\d{4}[/-]\d{1,2}[/-]\d{1,2}|\s+#\d+|\s+\(\d+\)|\s+\d{1,2}:\d{2})`)

var dateTimePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\d{4}[/-]\d{1,2}[/-]\d{1,2}`),
	regexp.MustCompile(`(?i)\d{1,2}[/-]\d{1,2}[/-]\d{2,4}`),
	regexp.MustCompile(`(?i)\d{1,2}:\d{2}(\s*(am|pm))?`),
	regexp.MustCompile(`(?i)(jan|feb|mar|apr|may|jun|jul|aug|sep|oct|nov|dec)[a-z]*\s+\d{1,2}`),
	regexp.MustCompile(`(?i)#\d+`),
	regexp.MustCompile(`(?i)\(\d+\)`),
	regexp.MustCompile(`(?i)week\s+\d+`),
	regexp.MustCompile(`(?i)q[1-4]\s+\d{4}`),
}

var (
	whitespace = regexp.MustCompile(`\s+`)
	// Letters and digits in any script, underscore, whitespace and hyphen survive.
	disallowed = regexp.MustCompile(`[^\p{L}\p{N}_\s-]`)
)

// ExtractSeriesName returns a human-readable series name for title, or false
// when none of the heuristics apply.
func ExtractSeriesName(title string) (string, bool) {
	title = strings.TrimSpace(title)
	lower := strings.ToLower(title)

	for _, re := range delimiterPatterns {
		if m := re.FindStringSubmatch(title); m != nil {
			return strings.TrimSpace(m[1]), true
		}
	}

	for _, re := range phrasePatterns {
		if m := re.FindString(lower); m != "" {
			return strings.TrimSpace(m), true
		}
	}

	base := strings.TrimSpace(suffixPattern.ReplaceAllString(lower, ""))
	if utf8.RuneCountInString(base) > 5 {
		return base, true
	}
	return "", false
}

// ExtractSeriesKey returns the normalized series key for title. It never
// fails; an empty title yields an empty key. The result is a fixed point:
// ExtractSeriesKey(ExtractSeriesKey(t)) == ExtractSeriesKey(t).
func ExtractSeriesKey(title string) string {
	key := extractKey(title)
	for i := 0; i < maxRefinements; i++ {
		next := extractKey(key)
		if next == key {
			break
		}
		key = next
	}
	return key
}

// maxRefinements bounds re-extraction. Each pass can only shorten the key, so
// real titles settle in one or two passes.
const maxRefinements = 4

func extractKey(title string) string {
	lower := strings.ToLower(strings.TrimSpace(title))
	// Dates go first so a hyphenated date cannot act as the "name -" delimiter.
	stripped := RemoveDateTimePatterns(lower)

	var key string
	if name, ok := ExtractSeriesName(stripped); ok {
		key = Normalize(name)
	} else {
		key = Normalize(stripped)
	}

	if utf8.RuneCountInString(key) < MinKeyLength {
		if fb := fallbackKey(lower); utf8.RuneCountInString(fb) > utf8.RuneCountInString(key) {
			key = fb
		}
	}
	return key
}

// fallbackKey is the normalized first few words of the date-stripped title.
func fallbackKey(lower string) string {
	words := strings.Fields(RemoveDateTimePatterns(lower))
	if len(words) > fallbackWords {
		words = words[:fallbackWords]
	}
	return Normalize(strings.Join(words, " "))
}

// RemoveDateTimePatterns strips dates, clock times, "Mon DD", "#N", "(N)",
// "week N" and "qN YYYY" tokens, then collapses whitespace.
func RemoveDateTimePatterns(text string) string {
	for _, re := range dateTimePatterns {
		text = re.ReplaceAllString(text, "")
	}
	return strings.TrimSpace(whitespace.ReplaceAllString(text, " "))
}

// Normalize lower-cases text, drops punctuation and collapses whitespace.
func Normalize(text string) string {
	text = strings.ToLower(norm.NFKC.String(text))
	text = disallowed.ReplaceAllString(text, "")
	return strings.TrimSpace(whitespace.ReplaceAllString(text, " "))
}
