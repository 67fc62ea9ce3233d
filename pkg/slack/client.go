// Package slack posts meeting recaps to Slack through the Web API.
package slack

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	slackapi "github.com/slack-go/slack"

	rerrors "github.com/otherjamesbrown/recap-bot/pkg/errors"
	"github.com/otherjamesbrown/recap-bot/pkg/logging"
	"github.com/otherjamesbrown/recap-bot/pkg/notify"
	"github.com/otherjamesbrown/recap-bot/pkg/retry"
)

// Collaborator is the name used in errors, logs and metrics.
const Collaborator = "slack"

const defaultChannelCacheTTL = 10 * time.Minute

// Config configures a Client.
type Config struct {
	Token string
	// APIURL overrides the Web API base, e.g. for tests. Must end in "/".
	APIURL string
	Client *http.Client
	Retry  retry.Policy
	// ChannelCacheTTL is how long the name to id map is trusted.
	ChannelCacheTTL time.Duration
	Logger          logging.Logger
}

type scheduledMessage struct {
	channelID string
	postAt    time.Time
}

// Client wraps the Slack Web API with retries, a channel-id cache and a
// record of messages it has scheduled.
type Client struct {
	api      *slackapi.Client
	retry    retry.Policy
	logger   logging.Logger
	cacheTTL time.Duration
	now      func() time.Time

	mu       sync.RWMutex
	channels map[string]string
	loadedAt time.Time

	schedMu   sync.Mutex
	scheduled map[string]scheduledMessage
}

// NewClient creates a client for the bot token in cfg.
func NewClient(cfg Config) *Client {
	opts := []slackapi.Option{}
	if cfg.APIURL != "" {
		opts = append(opts, slackapi.OptionAPIURL(cfg.APIURL))
	}
	if cfg.Client != nil {
		opts = append(opts, slackapi.OptionHTTPClient(cfg.Client))
	}
	if cfg.ChannelCacheTTL <= 0 {
		cfg.ChannelCacheTTL = defaultChannelCacheTTL
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NewNopLogger()
	}
	return &Client{
		api:       slackapi.New(cfg.Token, opts...),
		retry:     cfg.Retry,
		logger:    cfg.Logger.With(logging.F("collaborator", Collaborator)),
		cacheTTL:  cfg.ChannelCacheTTL,
		now:       time.Now,
		channels:  make(map[string]string),
		scheduled: make(map[string]scheduledMessage),
	}
}

// ResolveChannel maps a channel name (with or without "#") to its id.
// Values that already look like ids are returned as is. ok is false when
// the workspace has no such channel visible to the bot.
func (c *Client) ResolveChannel(ctx context.Context, name string) (string, bool, error) {
	name = strings.TrimPrefix(strings.TrimSpace(name), "#")
	if name == "" {
		return "", false, nil
	}
	if looksLikeChannelID(name) {
		return name, true, nil
	}

	c.mu.RLock()
	fresh := !c.loadedAt.IsZero() && c.now().Sub(c.loadedAt) < c.cacheTTL
	id, ok := c.channels[name]
	c.mu.RUnlock()
	if fresh {
		return id, ok, nil
	}

	if err := c.refreshChannels(ctx); err != nil {
		return "", false, err
	}

	c.mu.RLock()
	id, ok = c.channels[name]
	c.mu.RUnlock()
	return id, ok, nil
}

func looksLikeChannelID(s string) bool {
	if len(s) < 9 || !strings.ContainsRune("CGD", rune(s[0])) {
		return false
	}
	for _, r := range s {
		if !(r >= 'A' && r <= 'Z' || r >= '0' && r <= '9') {
			return false
		}
	}
	return true
}

func (c *Client) refreshChannels(ctx context.Context) error {
	channels := make(map[string]string)
	cursor := ""
	for {
		var (
			page []slackapi.Channel
			next string
		)
		err := c.call(ctx, "conversations.list", func(ctx context.Context) error {
			var err error
			page, next, err = c.api.GetConversationsContext(ctx, &slackapi.GetConversationsParameters{
				Cursor:          cursor,
				ExcludeArchived: true,
				Limit:           200,
				Types:           []string{"public_channel", "private_channel"},
			})
			return err
		})
		if err != nil {
			return err
		}
		for _, ch := range page {
			channels[ch.Name] = ch.ID
		}
		if next == "" {
			break
		}
		cursor = next
	}

	c.mu.Lock()
	c.channels = channels
	c.loadedAt = c.now()
	c.mu.Unlock()

	c.logger.Debug("Channel cache refreshed", logging.F("channels", len(channels)))
	return nil
}

// SendFormatted posts msg as Block Kit and returns the message timestamp.
func (c *Client) SendFormatted(ctx context.Context, channelID string, msg notify.Message) (string, error) {
	var ts string
	err := c.call(ctx, "chat.postMessage", func(ctx context.Context) error {
		var err error
		_, ts, err = c.api.PostMessageContext(ctx, channelID,
			slackapi.MsgOptionBlocks(RenderBlocks(msg)...),
			slackapi.MsgOptionText(msg.Text, false),
		)
		return err
	})
	if err != nil {
		return "", err
	}
	return ts, nil
}

// Schedule asks Slack to post text at the given time and returns the
// scheduled message id. chat.scheduleMessage answers with the id but the
// library only surfaces the message ts, so the id is read back from
// chat.scheduledMessages.list.
func (c *Client) Schedule(ctx context.Context, channelID string, at time.Time, text string) (string, error) {
	postAt := strconv.FormatInt(at.Unix(), 10)
	err := c.call(ctx, "chat.scheduleMessage", func(ctx context.Context) error {
		_, _, err := c.api.ScheduleMessageContext(ctx, channelID, postAt,
			slackapi.MsgOptionText(text, false),
		)
		return err
	})
	if err != nil {
		return "", err
	}

	id, err := c.findScheduled(ctx, channelID, at, text)
	if err != nil {
		return "", err
	}

	c.schedMu.Lock()
	c.scheduled[id] = scheduledMessage{channelID: channelID, postAt: at}
	c.schedMu.Unlock()

	c.logger.WithContext(ctx).Info("Message scheduled",
		logging.F("scheduled_id", id), logging.F("channel", channelID), logging.F("post_at", at))
	return id, nil
}

// findScheduled looks up the id of a message just scheduled in channelID
// for at. An exact text match wins; otherwise the most recently created
// message at that time that this client is not already tracking.
func (c *Client) findScheduled(ctx context.Context, channelID string, at time.Time, text string) (string, error) {
	var all []slackapi.ScheduledMessage
	cursor := ""
	for {
		var (
			page []slackapi.ScheduledMessage
			next string
		)
		err := c.call(ctx, "chat.scheduledMessages.list", func(ctx context.Context) error {
			var err error
			page, next, err = c.api.GetScheduledMessagesContext(ctx, &slackapi.GetScheduledMessagesParameters{
				Channel: channelID,
				Cursor:  cursor,
				Oldest:  strconv.FormatInt(at.Unix()-1, 10),
				Latest:  strconv.FormatInt(at.Unix()+1, 10),
			})
			return err
		})
		if err != nil {
			return "", err
		}
		all = append(all, page...)
		if next == "" {
			break
		}
		cursor = next
	}

	c.schedMu.Lock()
	defer c.schedMu.Unlock()

	var (
		best    string
		created int
	)
	for _, m := range all {
		if m.ID == "" || int64(m.PostAt) != at.Unix() {
			continue
		}
		if m.Text == text {
			return m.ID, nil
		}
		if _, tracked := c.scheduled[m.ID]; tracked {
			continue
		}
		if best == "" || m.DateCreated > created {
			best, created = m.ID, m.DateCreated
		}
	}
	if best == "" {
		return "", &rerrors.CallError{Code: rerrors.ErrParse, Collaborator: Collaborator, Op: "chat.scheduleMessage",
			Message: fmt.Sprintf("scheduled message for %s not listed in %s", at.UTC().Format(time.RFC3339), channelID)}
	}
	return best, nil
}

// CancelSchedule deletes a message this client scheduled. It returns false
// for ids it does not know about.
func (c *Client) CancelSchedule(ctx context.Context, id string) (bool, error) {
	c.schedMu.Lock()
	sm, ok := c.scheduled[id]
	c.schedMu.Unlock()
	if !ok {
		return false, nil
	}
	return c.CancelScheduleIn(ctx, sm.channelID, id)
}

// CancelScheduleIn deletes a scheduled message given its channel.
func (c *Client) CancelScheduleIn(ctx context.Context, channelID, id string) (bool, error) {
	var deleted bool
	err := c.call(ctx, "chat.deleteScheduledMessage", func(ctx context.Context) error {
		var err error
		deleted, err = c.api.DeleteScheduledMessageContext(ctx, &slackapi.DeleteScheduledMessageParameters{
			Channel:            channelID,
			ScheduledMessageID: id,
		})
		return err
	})
	if err != nil {
		return false, err
	}

	c.schedMu.Lock()
	delete(c.scheduled, id)
	c.schedMu.Unlock()
	return deleted, nil
}

// ScheduledCount returns how many scheduled messages are still tracked.
// Entries whose post time has passed are dropped first.
func (c *Client) ScheduledCount() int {
	now := c.now()
	c.schedMu.Lock()
	defer c.schedMu.Unlock()
	for id, sm := range c.scheduled {
		if !sm.postAt.After(now) {
			delete(c.scheduled, id)
		}
	}
	return len(c.scheduled)
}

// Ping verifies the token with auth.test.
func (c *Client) Ping(ctx context.Context) error {
	return c.call(ctx, "auth.test", func(ctx context.Context) error {
		_, err := c.api.AuthTestContext(ctx)
		return err
	})
}

func (c *Client) call(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	return retry.Do(ctx, c.retry, func(attempt int, err error, wait time.Duration) {
		c.logger.WithContext(ctx).Warn("Slack request failed, retrying",
			logging.F("op", op), logging.F("attempt", attempt), logging.F("backoff", wait), logging.Err(err))
	}, func(ctx context.Context) error {
		if err := fn(ctx); err != nil {
			return classify(err, op)
		}
		return nil
	})
}

// classify maps slack-go errors onto the shared taxonomy.
func classify(err error, op string) error {
	var status slackapi.StatusCodeError
	if errors.As(err, &status) {
		return rerrors.FromStatus(Collaborator, op, status.Code, status.Status)
	}
	var limited *slackapi.RateLimitedError
	if errors.As(err, &limited) {
		return &rerrors.CallError{Code: rerrors.ErrRateLimit, Collaborator: Collaborator, Op: op,
			Message: fmt.Sprintf("retry after %s", limited.RetryAfter), Cause: err}
	}
	var resp slackapi.SlackErrorResponse
	if errors.As(err, &resp) {
		ce := &rerrors.CallError{Collaborator: Collaborator, Op: op, Message: resp.Err, Cause: err}
		switch resp.Err {
		case "channel_not_found", "message_not_found", "invalid_scheduled_message_id":
			ce.Code = rerrors.ErrMissing
		case "invalid_auth", "not_authed", "account_inactive", "token_revoked", "missing_scope", "not_in_channel":
			ce.Code = rerrors.ErrAuth
		case "ratelimited":
			ce.Code = rerrors.ErrRateLimit
		case "internal_error", "fatal_error", "service_unavailable", "request_timeout":
			ce.Code = rerrors.ErrUnavailable
		default:
			ce.Code = rerrors.ErrRequest
		}
		return ce
	}
	return rerrors.Classify(err, Collaborator, op)
}
