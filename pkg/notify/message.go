// Package notify builds the outbound messages the bot posts before a meeting
// and decides which channel they go to. Messages are transport-neutral; the
// slack package renders them as Block Kit.
package notify

import "strings"

// BlockKind is the layout role of a block.
type BlockKind string

const (
	BlockHeader  BlockKind = "header"
	BlockContext BlockKind = "context"
	BlockSection BlockKind = "section"
	BlockDivider BlockKind = "divider"
)

// Block is one visual unit. Header text is plain; context and section text
// use Slack mrkdwn.
type Block struct {
	Kind BlockKind
	Text string
}

// Message is a complete outbound message. Text is the notification fallback.
type Message struct {
	Text   string
	Blocks []Block
}

// PlainText flattens the message into mrkdwn text, one block per paragraph.
func (m Message) PlainText() string {
	var parts []string
	for _, b := range m.Blocks {
		switch b.Kind {
		case BlockDivider:
			continue
		case BlockHeader:
			parts = append(parts, "*"+b.Text+"*")
		default:
			parts = append(parts, b.Text)
		}
	}
	if len(parts) == 0 {
		return m.Text
	}
	return strings.Join(parts, "\n\n")
}

func (m *Message) add(kind BlockKind, text string) {
	m.Blocks = append(m.Blocks, Block{Kind: kind, Text: text})
}
