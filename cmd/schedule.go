package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var (
	scheduleAt      string
	scheduleIn      time.Duration
	scheduleChannel string
)

// scheduleResult is printed by schedule send.
type scheduleResult struct {
	Channel     string    `json:"channel" yaml:"channel"`
	ChannelID   string    `json:"channel_id" yaml:"channel_id"`
	ScheduledID string    `json:"scheduled_id" yaml:"scheduled_id"`
	PostAt      time.Time `json:"post_at" yaml:"post_at"`
}

// NewScheduleCommand creates the 'schedule' command group.
func NewScheduleCommand(deps *Deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Schedule or cancel ad-hoc Slack posts",
		Long: `Queue a message with Slack's scheduler, or cancel a queued one.

Commands:
  send   - Schedule a message for later
  cancel - Cancel a scheduled message

Examples:
  recap schedule send engineering "Retro notes are up" --in 2h
  recap schedule cancel Q1298393284 --channel engineering`,
	}
	cmd.AddCommand(newScheduleSendCommand(deps))
	cmd.AddCommand(newScheduleCancelCommand(deps))
	return cmd
}

func newScheduleSendCommand(deps *Deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "send <channel> <text>",
		Short: "Schedule a message",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScheduleSend(cmd, deps, args[0], args[1])
		},
	}
	cmd.Flags().StringVar(&scheduleAt, "at", "", "Post time (RFC3339 or 'YYYY-MM-DD HH:MM')")
	cmd.Flags().DurationVar(&scheduleIn, "in", 0, "Post after this delay, e.g. 90m")
	cmd.MarkFlagsMutuallyExclusive("at", "in")
	return cmd
}

func runScheduleSend(cmd *cobra.Command, deps *Deps, channel, text string) error {
	var postAt time.Time
	switch {
	case scheduleAt != "":
		t, err := parseWhen(scheduleAt)
		if err != nil {
			return err
		}
		postAt = t
	case scheduleIn > 0:
		postAt = deps.Now().Add(scheduleIn)
	default:
		return fmt.Errorf("one of --at or --in is required")
	}
	if !postAt.After(deps.Now()) {
		return fmt.Errorf("post time %s is in the past", postAt.Format(time.RFC3339))
	}

	app, err := loadApp(cmd, deps)
	if err != nil {
		return err
	}
	defer app.Close()

	ctx := cmd.Context()
	channelID, ok, err := app.Slack.ResolveChannel(ctx, channel)
	if err != nil {
		return fmt.Errorf("resolving channel: %w", err)
	}
	if !ok {
		return fmt.Errorf("channel %q not found", channel)
	}

	id, err := app.Slack.Schedule(ctx, channelID, postAt, text)
	if err != nil {
		return fmt.Errorf("scheduling message: %w", err)
	}

	result := scheduleResult{Channel: channel, ChannelID: channelID, ScheduledID: id, PostAt: postAt}
	format, err := outputFormat(cmd)
	if err != nil {
		return err
	}
	if done, err := writeStructured(cmd.OutOrStdout(), format, result); done || err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Scheduled %s in #%s for %s\n", id, channel, postAt.Local().Format("Mon Jan 2 15:04"))
	return nil
}

func newScheduleCancelCommand(deps *Deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cancel <scheduled-id>",
		Short: "Cancel a scheduled message",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := loadApp(cmd, deps)
			if err != nil {
				return err
			}
			defer app.Close()

			ctx := cmd.Context()
			channelID, ok, err := app.Slack.ResolveChannel(ctx, scheduleChannel)
			if err != nil {
				return fmt.Errorf("resolving channel: %w", err)
			}
			if !ok {
				return fmt.Errorf("channel %q not found", scheduleChannel)
			}
			cancelled, err := app.Slack.CancelScheduleIn(ctx, channelID, args[0])
			if err != nil {
				return fmt.Errorf("cancelling %s: %w", args[0], err)
			}
			if !cancelled {
				return fmt.Errorf("scheduled message %s not found", args[0])
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Cancelled %s\n", args[0])
			return nil
		},
	}
	cmd.Flags().StringVar(&scheduleChannel, "channel", "", "Channel the message was scheduled in")
	_ = cmd.MarkFlagRequired("channel")
	return cmd
}
