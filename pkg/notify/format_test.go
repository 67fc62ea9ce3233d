package notify

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/otherjamesbrown/recap-bot/pkg/meeting"
)

var start = time.Date(2026, 10, 19, 15, 4, 0, 0, time.UTC)

func blockTexts(m Message, kind BlockKind) []string {
	var out []string
	for _, b := range m.Blocks {
		if b.Kind == kind {
			out = append(out, b.Text)
		}
	}
	return out
}

func TestSummaryMessage(t *testing.T) {
	event := meeting.Event{ID: "e1", Title: "Engineering Daily Standup", Start: start}
	prev := meeting.Transcript{
		Summary:      "Shipped the billing migration.",
		ActionItems:  []string{"Alice to update runbook", "Bob to file follow-up"},
		Keywords:     []string{"billing", "migration"},
		Participants: []string{"alice@example.com", "bob@example.com"},
		MeetingURL:   "https://app.fireflies.ai/view/abc",
	}

	msg := SummaryMessage(event, prev, 30)

	assert.Equal(t, "Meeting Summary for Engineering Daily Standup", msg.Text)
	require.NotEmpty(t, msg.Blocks)
	assert.Equal(t, Block{Kind: BlockHeader, Text: "📅 Upcoming Meeting: Engineering Daily Standup"}, msg.Blocks[0])
	assert.Equal(t, "*Starting in 30 minutes* • 03:04 PM", msg.Blocks[1].Text)
	assert.Equal(t, BlockDivider, msg.Blocks[len(msg.Blocks)-1].Kind)

	sections := strings.Join(blockTexts(msg, BlockSection), "\n")
	assert.Contains(t, sections, "Shipped the billing migration.")
	assert.Contains(t, sections, "• Alice to update runbook\n• Bob to file follow-up")
	assert.Contains(t, sections, "`billing` • `migration`")
	assert.Contains(t, sections, "<https://app.fireflies.ai/view/abc|View Full Transcript in Fireflies>")
	assert.Contains(t, blockTexts(msg, BlockContext), "*Participants:* alice@example.com, bob@example.com")
}

func TestSummaryMessage_LimitsAndPlaceholders(t *testing.T) {
	var items, people []string
	for i := 0; i < 12; i++ {
		items = append(items, string(rune('a'+i)))
		people = append(people, string(rune('A'+i)))
	}
	msg := SummaryMessage(meeting.Event{Title: "Sync", Start: start}, meeting.Transcript{ActionItems: items, Participants: people}, 5)

	sections := strings.Join(blockTexts(msg, BlockSection), "\n")
	assert.Contains(t, sections, "_No summary available from previous meeting_")
	assert.Contains(t, sections, "• e")
	assert.NotContains(t, sections, "• f")
	assert.NotContains(t, sections, "Key Topics")
	assert.NotContains(t, sections, "View Full Transcript")
	assert.Contains(t, blockTexts(msg, BlockContext), "*Participants:* A, B, C, D, E, F, G, H, I, J")
}

func TestFirstMeetingMessage(t *testing.T) {
	event := meeting.Event{
		Title:       "Platform Guild",
		Start:       start,
		Description: strings.Repeat("é", 600),
		Attendees:   []string{"alice", "bob"},
		Recurring:   true,
	}

	msg := FirstMeetingMessage(event, 30)

	assert.Equal(t, "First meeting notification for Platform Guild", msg.Text)
	sections := blockTexts(msg, BlockSection)
	require.Len(t, sections, 2)
	assert.Contains(t, sections[0], "first meeting in this series")
	assert.Equal(t, "*Meeting Description:*\n"+strings.Repeat("é", 500), sections[1])
	assert.Contains(t, blockTexts(msg, BlockContext), "*Attendees:* alice, bob")
}

func TestMessage_PlainText(t *testing.T) {
	msg := FirstMeetingMessage(meeting.Event{Title: "Guild", Start: start}, 10)
	text := msg.PlainText()
	assert.True(t, strings.HasPrefix(text, "*📅 Upcoming Meeting: Guild*\n\n*Starting in 10 minutes*"))
	assert.Equal(t, "fallback", Message{Text: "fallback"}.PlainText())
}
