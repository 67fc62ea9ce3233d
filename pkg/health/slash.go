package health

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	slackapi "github.com/slack-go/slack"

	"github.com/otherjamesbrown/recap-bot/pkg/logging"
)

const maxSlashBody = 64 << 10

const slashHelp = "*Recap bot*\n" +
	"• `help` shows this message\n" +
	"• `status` shows poll status\n" +
	"Recaps are posted to the meeting's channel before each recurring meeting."

const slashUnsupported = "Per-user subscriptions are not supported. Recaps are posted to the meeting's channel."

func (s *Server) handleSlashCommand(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxSlashBody))
	if err != nil {
		c.Status(http.StatusBadRequest)
		return
	}

	verifier, err := slackapi.NewSecretsVerifier(c.Request.Header, s.signingSecret)
	if err != nil {
		s.logger.Warn("Rejected slash command", logging.Err(err))
		c.Status(http.StatusUnauthorized)
		return
	}
	if _, err := verifier.Write(body); err != nil {
		c.Status(http.StatusInternalServerError)
		return
	}
	if err := verifier.Ensure(); err != nil {
		s.logger.Warn("Slash command signature mismatch", logging.Err(err))
		c.Status(http.StatusUnauthorized)
		return
	}

	c.Request.Body = io.NopCloser(bytes.NewReader(body))
	cmd, err := slackapi.SlashCommandParse(c.Request)
	if err != nil {
		c.Status(http.StatusBadRequest)
		return
	}

	s.logger.Info("Slash command",
		logging.F("command", cmd.Command),
		logging.F("text", cmd.Text),
		logging.F("user_id", cmd.UserID))

	c.JSON(http.StatusOK, &slackapi.Msg{
		ResponseType: slackapi.ResponseTypeEphemeral,
		Text:         s.slashReply(cmd.Text),
	})
}

func (s *Server) slashReply(text string) string {
	fields := strings.Fields(strings.ToLower(text))
	verb := "help"
	if len(fields) > 0 {
		verb = fields[0]
	}

	switch verb {
	case "status":
		h := s.health()
		last := "never"
		if h.LastPoll != nil {
			last = h.LastPoll.Format("2006-01-02 15:04 MST")
		}
		return fmt.Sprintf("Status: %s\nProcessed events: %d\nLast poll: %s", h.Status, h.ProcessedEvents, last)
	case "subscribe", "unsubscribe":
		return slashUnsupported
	case "help":
		return slashHelp
	default:
		return fmt.Sprintf("Unknown command %q.\n\n%s", verb, slashHelp)
	}
}
