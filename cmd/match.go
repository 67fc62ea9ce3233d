package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/otherjamesbrown/recap-bot/pkg/meeting"
	"github.com/otherjamesbrown/recap-bot/pkg/series"
)

var matchAt string

// matchResult is the dry-run lookup output.
type matchResult struct {
	Title      string              `json:"title" yaml:"title"`
	SeriesKey  string              `json:"series_key" yaml:"series_key"`
	At         time.Time           `json:"at" yaml:"at"`
	Found      bool                `json:"found" yaml:"found"`
	Tier       series.Tier         `json:"tier,omitempty" yaml:"tier,omitempty"`
	Transcript *meeting.Transcript `json:"transcript,omitempty" yaml:"transcript,omitempty"`
}

// NewMatchCommand creates the 'match' command.
func NewMatchCommand(deps *Deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "match <title>",
		Short: "Find the previous occurrence of a meeting (dry run)",
		Long: `Run the previous-occurrence lookup for a meeting title without posting anything.

The lookup searches the transcript service's look-back window by series name,
falls back to an unfiltered fetch, and reports which match tier succeeded.

Examples:
  recap match "Platform Team Sync - Oct 20"
  recap match "Weekly 1:1" --at 2025-10-20T15:00:00Z -o json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMatch(cmd, deps, args[0])
		},
	}
	cmd.Flags().StringVar(&matchAt, "at", "", "Meeting start (RFC3339 or 'YYYY-MM-DD HH:MM'); defaults to now")
	return cmd
}

func runMatch(cmd *cobra.Command, deps *Deps, title string) error {
	at := deps.Now()
	if matchAt != "" {
		parsed, err := parseWhen(matchAt)
		if err != nil {
			return err
		}
		at = parsed
	}

	app, err := loadApp(cmd, deps)
	if err != nil {
		return err
	}
	defer app.Close()

	m, found, err := app.Fireflies.FindPrevious(cmd.Context(), title, at)
	if err != nil {
		return fmt.Errorf("looking up previous occurrence: %w", err)
	}

	result := matchResult{Title: title, SeriesKey: series.ExtractSeriesKey(title), At: at, Found: found}
	if found {
		result.Tier = m.Tier
		result.Transcript = &m.Record
	}

	format, err := outputFormat(cmd)
	if err != nil {
		return err
	}
	if done, err := writeStructured(cmd.OutOrStdout(), format, result); done || err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Title:      %s\n", title)
	fmt.Fprintf(out, "Series key: %s\n", result.SeriesKey)
	if !found {
		fmt.Fprintln(out, "No previous occurrence found.")
		return nil
	}
	t := m.Record
	fmt.Fprintf(out, "Match tier: %s\n", m.Tier)
	fmt.Fprintf(out, "Previous:   %s (%s)\n", t.Title, t.Date.Format("2006-01-02 15:04"))
	fmt.Fprintf(out, "Transcript: %s\n", t.ID)
	if t.Summary != "" {
		fmt.Fprintf(out, "\n%s\n", t.Summary)
	}
	return nil
}

// parseWhen accepts RFC3339 or a local "YYYY-MM-DD HH:MM".
func parseWhen(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation("2006-01-02 15:04", s, time.Local); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("invalid time %q (use RFC3339 or 'YYYY-MM-DD HH:MM')", s)
}
