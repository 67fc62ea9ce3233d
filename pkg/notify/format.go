package notify

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/otherjamesbrown/recap-bot/pkg/meeting"
)

// Display limits.
const (
	MaxActionItems    = 5
	MaxKeyTopics      = 5
	MaxParticipants   = 10
	MaxDescriptionLen = 500
)

const timeLayout = "03:04 PM"

// SummaryMessage is posted when a previous occurrence was found.
func SummaryMessage(event meeting.Event, prev meeting.Transcript, minutesUntil int) Message {
	msg := Message{Text: fmt.Sprintf("Meeting Summary for %s", event.Title)}
	msg.add(BlockHeader, fmt.Sprintf("📅 Upcoming Meeting: %s", event.Title))
	msg.add(BlockContext, timing(event, minutesUntil))
	msg.add(BlockDivider, "")
	msg.add(BlockSection, "*📝 Summary from Previous Meeting*")

	summary := strings.TrimSpace(prev.Summary)
	if summary == "" {
		summary = "_No summary available from previous meeting_"
	}
	msg.add(BlockSection, summary)

	if len(prev.ActionItems) > 0 {
		lines := make([]string, 0, MaxActionItems)
		for _, item := range head(prev.ActionItems, MaxActionItems) {
			lines = append(lines, "• "+item)
		}
		msg.add(BlockSection, "*✅ Action Items from Last Meeting:*\n"+strings.Join(lines, "\n"))
	}

	if len(prev.Keywords) > 0 {
		topics := make([]string, 0, MaxKeyTopics)
		for _, k := range head(prev.Keywords, MaxKeyTopics) {
			topics = append(topics, "`"+k+"`")
		}
		msg.add(BlockSection, "*🏷️ Key Topics:* "+strings.Join(topics, " • "))
	}

	if len(prev.Participants) > 0 {
		msg.add(BlockContext, "*Participants:* "+strings.Join(head(prev.Participants, MaxParticipants), ", "))
	}

	if prev.MeetingURL != "" {
		msg.add(BlockSection, fmt.Sprintf("<%s|View Full Transcript in Fireflies>", prev.MeetingURL))
	}

	msg.add(BlockDivider, "")
	return msg
}

// FirstMeetingMessage is posted for a recurring event with no earlier
// occurrence on record.
func FirstMeetingMessage(event meeting.Event, minutesUntil int) Message {
	msg := Message{Text: fmt.Sprintf("First meeting notification for %s", event.Title)}
	msg.add(BlockHeader, fmt.Sprintf("📅 Upcoming Meeting: %s", event.Title))
	msg.add(BlockContext, timing(event, minutesUntil))
	msg.add(BlockSection, "_This appears to be the first meeting in this series. No previous summary available._")

	if desc := strings.TrimSpace(event.Description); desc != "" {
		msg.add(BlockSection, "*Meeting Description:*\n"+truncateRunes(desc, MaxDescriptionLen))
	}
	if len(event.Attendees) > 0 {
		msg.add(BlockContext, "*Attendees:* "+strings.Join(head(event.Attendees, MaxParticipants), ", "))
	}
	return msg
}

func timing(event meeting.Event, minutesUntil int) string {
	return fmt.Sprintf("*Starting in %d minutes* • %s", minutesUntil, event.Start.Format(timeLayout))
}

func head(items []string, n int) []string {
	if len(items) > n {
		return items[:n]
	}
	return items
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}
