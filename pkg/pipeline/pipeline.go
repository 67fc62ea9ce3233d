// Package pipeline decides what to post for one upcoming meeting and posts it.
package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/otherjamesbrown/recap-bot/pkg/events"
	rerrors "github.com/otherjamesbrown/recap-bot/pkg/errors"
	"github.com/otherjamesbrown/recap-bot/pkg/logging"
	"github.com/otherjamesbrown/recap-bot/pkg/meeting"
	"github.com/otherjamesbrown/recap-bot/pkg/notify"
	"github.com/otherjamesbrown/recap-bot/pkg/observability"
	"github.com/otherjamesbrown/recap-bot/pkg/series"
)

// Outcome is the terminal state of processing one event.
type Outcome string

const (
	OutcomeSent         Outcome = "sent"
	OutcomeSendFailed   Outcome = "send_failed"
	OutcomeNoChannel    Outcome = "no_channel"
	OutcomeNoAction     Outcome = "no_action"
	OutcomeLookupFailed Outcome = "lookup_failed"
)

// TierNone labels lookups that found no previous occurrence.
const TierNone = "none"

// minScheduleLead is the shortest delay worth handing to the messenger's scheduler.
const minScheduleLead = time.Minute

const publishTimeout = 5 * time.Second

// TranscriptSource finds the previous occurrence of a meeting series.
type TranscriptSource interface {
	// FindPrevious returns false with a nil error when there is no previous
	// occurrence; an error means the lookup itself failed.
	FindPrevious(ctx context.Context, title string, at time.Time) (series.Match[meeting.Transcript], bool, error)
}

// Messenger delivers messages to channels.
type Messenger interface {
	ResolveChannel(ctx context.Context, name string) (id string, ok bool, err error)
	SendFormatted(ctx context.Context, channelID string, msg notify.Message) (ts string, err error)
	Schedule(ctx context.Context, channelID string, at time.Time, text string) (id string, err error)
}

// DeliveryMode selects between posting now and asking the messenger to post later.
type DeliveryMode string

const (
	DeliveryImmediate DeliveryMode = "immediate"
	DeliveryScheduled DeliveryMode = "scheduled"
)

// ParseDeliveryMode converts a config value, defaulting to immediate.
func ParseDeliveryMode(s string) (DeliveryMode, error) {
	switch DeliveryMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", DeliveryImmediate:
		return DeliveryImmediate, nil
	case DeliveryScheduled:
		return DeliveryScheduled, nil
	default:
		return "", fmt.Errorf("unknown delivery mode %q: %w", s, rerrors.ErrConfig)
	}
}

// Config wires a Pipeline. Transcripts, Messenger and Router are required.
type Config struct {
	Transcripts TranscriptSource
	Messenger   Messenger
	Router      *notify.Router
	// NotifyMinutes is how long before the start the recap should appear.
	NotifyMinutes int
	Delivery      DeliveryMode

	Publisher events.Publisher
	Metrics   *observability.Metrics
	Tracer    *observability.Tracer
	Logger    logging.Logger
}

// Result describes what Process did.
type Result struct {
	Outcome      Outcome
	Tier         string
	TranscriptID string
	ChannelID    string
	MessageTS    string
	ScheduledID  string
	Err          error
}

// Pipeline processes one meeting event at a time. It is safe to share
// between goroutines as long as its collaborators are.
type Pipeline struct {
	transcripts TranscriptSource
	messenger   Messenger
	router      *notify.Router
	notifyLead  time.Duration
	delivery    DeliveryMode
	publisher   events.Publisher
	metrics     *observability.Metrics
	tracer      *observability.Tracer
	logger      logging.Logger
	now         func() time.Time
}

// New creates a Pipeline.
func New(cfg Config) *Pipeline {
	if cfg.Router == nil {
		cfg.Router = notify.NewRouter(nil)
	}
	if cfg.Delivery == "" {
		cfg.Delivery = DeliveryImmediate
	}
	if cfg.Publisher == nil {
		cfg.Publisher = events.NopPublisher{}
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NewNopLogger()
	}
	return &Pipeline{
		transcripts: cfg.Transcripts,
		messenger:   cfg.Messenger,
		router:      cfg.Router,
		notifyLead:  time.Duration(cfg.NotifyMinutes) * time.Minute,
		delivery:    cfg.Delivery,
		publisher:   cfg.Publisher,
		metrics:     cfg.Metrics,
		tracer:      cfg.Tracer,
		logger:      cfg.Logger.With(logging.F("component", "pipeline")),
		now:         time.Now,
	}
}

// Process looks up the previous occurrence of event's series and posts
// either its summary or a first-meeting notice. At most one message is sent.
func (p *Pipeline) Process(ctx context.Context, event meeting.Event) Result {
	ctx = logging.ContextWithEventID(ctx, event.ID)
	ctx, span := p.tracer.StartEventSpan(ctx, event.ID, event.Title)
	defer span.End()

	logger := p.logger.WithContext(ctx).With(logging.F("title", event.Title), logging.F("start", event.Start))
	logger.Info("Processing event")

	res := p.process(ctx, logger, event)

	p.metrics.RecordOutcome(string(res.Outcome))
	observability.SetOutcome(span, string(res.Outcome), res.Tier)
	if res.Err != nil {
		observability.SetError(span, res.Err, string(rerrors.CodeOf(res.Err)))
	}
	p.publish(ctx, logger, event, res)
	return res
}

func (p *Pipeline) process(ctx context.Context, logger logging.Logger, event meeting.Event) Result {
	minutesUntil := event.MinutesUntil(p.now())
	if minutesUntil < 0 {
		minutesUntil = 0
	}

	match, found, err := p.transcripts.FindPrevious(ctx, event.Title, event.Start)
	if err != nil {
		logger.Error("Previous transcript lookup failed", logging.Err(err))
		return Result{Outcome: OutcomeLookupFailed, Err: err}
	}

	var (
		msg notify.Message
		res Result
	)
	if found {
		res.Tier = string(match.Tier)
		res.TranscriptID = match.Record.ID
		p.metrics.RecordMatchTier(res.Tier)
		logger.Info("Found previous meeting",
			logging.F("transcript_id", match.Record.ID),
			logging.F("transcript_title", match.Record.Title),
			logging.F("tier", res.Tier))
		msg = notify.SummaryMessage(event, match.Record, minutesUntil)
	} else {
		res.Tier = TierNone
		p.metrics.RecordMatchTier(TierNone)
		if !event.Recurring {
			logger.Info("No previous meeting and event is not recurring")
			res.Outcome = OutcomeNoAction
			return res
		}
		logger.Info("No previous meeting found, sending first-meeting notice")
		msg = notify.FirstMeetingMessage(event, minutesUntil)
	}

	channelID, ok, err := p.resolveChannel(ctx, logger, event.Title)
	if err != nil {
		res.Outcome, res.Err = OutcomeSendFailed, err
		return res
	}
	if !ok {
		logger.Warn("No Slack channel for event",
			logging.F("routed", p.router.Channel(event.Title)),
			logging.F("default", p.router.DefaultChannel()))
		res.Outcome, res.Err = OutcomeNoChannel, rerrors.ErrNoChannel
		return res
	}
	res.ChannelID = channelID

	if err := p.deliver(ctx, logger, event, channelID, msg, &res); err != nil {
		logger.Error("Failed to send message", logging.F("channel", channelID), logging.Err(err))
		res.Outcome, res.Err = OutcomeSendFailed, err
		return res
	}
	res.Outcome = OutcomeSent
	return res
}

// resolveChannel tries the routed channel, then the default one.
func (p *Pipeline) resolveChannel(ctx context.Context, logger logging.Logger, title string) (string, bool, error) {
	routed := p.router.Channel(title)
	fallback := p.router.DefaultChannel()

	id, ok, err := p.messenger.ResolveChannel(ctx, routed)
	switch {
	case err != nil:
		logger.Warn("Channel lookup failed, trying default", logging.F("channel", routed), logging.Err(err))
	case ok:
		return id, true, nil
	}
	if routed == fallback {
		return "", false, err
	}
	return p.messenger.ResolveChannel(ctx, fallback)
}

func (p *Pipeline) deliver(ctx context.Context, logger logging.Logger, event meeting.Event, channelID string, msg notify.Message, res *Result) error {
	if p.delivery == DeliveryScheduled {
		postAt := event.Start.Add(-p.notifyLead)
		if postAt.Sub(p.now()) > minScheduleLead {
			id, err := p.messenger.Schedule(ctx, channelID, postAt, msg.PlainText())
			if err != nil {
				return err
			}
			res.ScheduledID = id
			logger.Info("Recap scheduled", logging.F("channel", channelID), logging.F("post_at", postAt))
			return nil
		}
	}

	ts, err := p.messenger.SendFormatted(ctx, channelID, msg)
	if err != nil {
		return err
	}
	res.MessageTS = ts
	logger.Info("Recap sent", logging.F("channel", channelID), logging.F("ts", ts))
	return nil
}

func (p *Pipeline) publish(ctx context.Context, logger logging.Logger, event meeting.Event, res Result) {
	switch res.Outcome {
	case OutcomeNoAction, OutcomeLookupFailed:
		return
	}

	// The dispatch already happened; publish even if the cycle is being cancelled.
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	e := events.DispatchEvent{
		BaseEvent:    events.NewBaseEvent("recap.dispatched"),
		MeetingID:    event.ID,
		MeetingTitle: event.Title,
		MeetingStart: event.Start,
		Outcome:      string(res.Outcome),
		MatchTier:    res.Tier,
		TranscriptID: res.TranscriptID,
		Channel:      res.ChannelID,
		MessageTS:    res.MessageTS,
		ScheduledID:  res.ScheduledID,
	}
	e.TraceID = observability.GetTraceID(ctx)
	if err := p.publisher.PublishDispatch(pctx, e); err != nil {
		p.metrics.RecordPublishFailure()
		logger.Warn("Failed to publish dispatch event", logging.Err(err))
	}
}
