package slack

import (
	slackapi "github.com/slack-go/slack"

	"github.com/otherjamesbrown/recap-bot/pkg/notify"
)

// Block Kit limits.
const (
	maxHeaderRunes  = 150
	maxSectionRunes = 3000
)

// RenderBlocks converts a notify.Message into Block Kit blocks.
func RenderBlocks(msg notify.Message) []slackapi.Block {
	blocks := make([]slackapi.Block, 0, len(msg.Blocks))
	for _, b := range msg.Blocks {
		switch b.Kind {
		case notify.BlockHeader:
			blocks = append(blocks, slackapi.NewHeaderBlock(
				slackapi.NewTextBlockObject(slackapi.PlainTextType, clip(b.Text, maxHeaderRunes), true, false)))
		case notify.BlockContext:
			blocks = append(blocks, slackapi.NewContextBlock("",
				slackapi.NewTextBlockObject(slackapi.MarkdownType, clip(b.Text, maxSectionRunes), false, false)))
		case notify.BlockSection:
			blocks = append(blocks, slackapi.NewSectionBlock(
				slackapi.NewTextBlockObject(slackapi.MarkdownType, clip(b.Text, maxSectionRunes), false, false), nil, nil))
		case notify.BlockDivider:
			blocks = append(blocks, slackapi.NewDividerBlock())
		}
	}
	return blocks
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
