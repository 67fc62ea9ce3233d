package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/otherjamesbrown/recap-bot/pkg/meeting"
)

var (
	eventsHours int
	eventsLimit int
)

// NewEventsCommand creates the 'events' command.
func NewEventsCommand(deps *Deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "List upcoming calendar events",
		Long: `List upcoming events from every configured calendar, merged and deduplicated.

Examples:
  recap events
  recap events --hours 48 -o json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEvents(cmd, deps)
		},
	}
	cmd.Flags().IntVar(&eventsHours, "hours", 24, "How far ahead to look")
	cmd.Flags().IntVar(&eventsLimit, "limit", 50, "Maximum events to list")
	return cmd
}

func runEvents(cmd *cobra.Command, deps *Deps) error {
	app, err := loadApp(cmd, deps)
	if err != nil {
		return err
	}
	defer app.Close()

	now := deps.Now()
	events, err := app.Calendar.Upcoming(cmd.Context(), now, now.Add(time.Duration(eventsHours)*time.Hour), eventsLimit)
	if err != nil {
		return fmt.Errorf("fetching events: %w", err)
	}
	if events == nil {
		events = []meeting.Event{}
	}

	format, err := outputFormat(cmd)
	if err != nil {
		return err
	}
	if done, err := writeStructured(cmd.OutOrStdout(), format, events); done || err != nil {
		return err
	}

	if len(events) == 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "No events in the next %d hours.\n", eventsHours)
		return nil
	}
	tw := newTable(cmd.OutOrStdout())
	fmt.Fprintln(tw, "START\tIN\tTITLE\tRECURRING\tSOURCE")
	for _, e := range events {
		fmt.Fprintf(tw, "%s\t%dm\t%s\t%t\t%s\n",
			e.Start.Local().Format("Mon 15:04"), e.MinutesUntil(now), truncate(e.Title, 50), e.Recurring, e.Source)
	}
	return tw.Flush()
}
