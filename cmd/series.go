package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/otherjamesbrown/recap-bot/pkg/meeting"
	"github.com/otherjamesbrown/recap-bot/pkg/series"
)

// Series command flags.
var (
	seriesDays  int
	seriesLimit int
)

// seriesSummary is the list view of one series.
type seriesSummary struct {
	ID          string         `json:"id" yaml:"id"`
	Name        string         `json:"name" yaml:"name"`
	Cadence     series.Cadence `json:"cadence" yaml:"cadence"`
	Occurrences int            `json:"occurrences" yaml:"occurrences"`
	Latest      time.Time      `json:"latest" yaml:"latest"`
}

// seriesDetail is the show view of one series.
type seriesDetail struct {
	series.Series `yaml:",inline"`
	Occurrences   []meeting.Transcript `json:"occurrences" yaml:"occurrences"`
}

// NewSeriesCommand creates the 'series' command group.
func NewSeriesCommand(deps *Deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "series",
		Short: "Discover recurring meeting series in recent transcripts",
		Long: `Group recent transcripts into meeting series and report their cadence.

Series are computed on demand from the transcript service; nothing is stored.

Commands:
  list   - List every series with two or more occurrences
  show   - Show one series with its occurrences

Examples:
  recap series list
  recap series list --days 90 -o json
  recap series show "Platform Team Sync"`,
	}

	cmd.PersistentFlags().IntVar(&seriesDays, "days", 60, "How many days of transcripts to scan")
	cmd.PersistentFlags().IntVar(&seriesLimit, "limit", 200, "Maximum transcripts to fetch")

	cmd.AddCommand(newSeriesListCommand(deps))
	cmd.AddCommand(newSeriesShowCommand(deps))
	return cmd
}

func newSeriesListCommand(deps *Deps) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List meeting series",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			all, err := discoverSeries(cmd, deps)
			if err != nil {
				return err
			}
			return renderSeriesList(cmd, all)
		},
	}
}

func newSeriesShowCommand(deps *Deps) *cobra.Command {
	return &cobra.Command{
		Use:   "show <name-or-id>",
		Short: "Show one meeting series",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			all, err := discoverSeries(cmd, deps)
			if err != nil {
				return err
			}
			s, ok := findSeries(all, args[0])
			if !ok {
				return fmt.Errorf("no series matches %q", args[0])
			}
			return renderSeriesDetail(cmd, s)
		},
	}
}

func discoverSeries(cmd *cobra.Command, deps *Deps) ([]series.Series, error) {
	app, err := loadApp(cmd, deps)
	if err != nil {
		return nil, err
	}
	defer app.Close()

	records, err := app.Fireflies.Recent(cmd.Context(), seriesDays, seriesLimit)
	if err != nil {
		return nil, fmt.Errorf("fetching transcripts: %w", err)
	}
	return series.IdentifySeries(records, app.Config.Matching.Aggregation()), nil
}

// findSeries matches by series id, then by the key of the given name.
func findSeries(all []series.Series, query string) (series.Series, bool) {
	key := series.ExtractSeriesKey(query)
	for _, s := range all {
		if s.ID == query || s.ID == key {
			return s, true
		}
	}
	lower := strings.ToLower(query)
	for _, s := range all {
		if strings.EqualFold(s.Name, query) || strings.Contains(strings.ToLower(s.Name), lower) {
			return s, true
		}
	}
	return series.Series{}, false
}

func renderSeriesList(cmd *cobra.Command, all []series.Series) error {
	summaries := make([]seriesSummary, 0, len(all))
	for _, s := range all {
		summaries = append(summaries, seriesSummary{
			ID:          s.ID,
			Name:        s.Name,
			Cadence:     s.Cadence,
			Occurrences: len(s.Records),
			Latest:      s.Latest().Date,
		})
	}

	format, err := outputFormat(cmd)
	if err != nil {
		return err
	}
	if done, err := writeStructured(cmd.OutOrStdout(), format, summaries); done || err != nil {
		return err
	}

	if len(summaries) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No recurring series found.")
		return nil
	}
	tw := newTable(cmd.OutOrStdout())
	fmt.Fprintln(tw, "NAME\tCADENCE\tCOUNT\tLATEST\tID")
	for _, s := range summaries {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n",
			truncate(s.Name, 40), s.Cadence, s.Occurrences, s.Latest.Format("2006-01-02"), s.ID)
	}
	return tw.Flush()
}

func renderSeriesDetail(cmd *cobra.Command, s series.Series) error {
	format, err := outputFormat(cmd)
	if err != nil {
		return err
	}
	detail := seriesDetail{Series: s, Occurrences: s.Records}
	if done, err := writeStructured(cmd.OutOrStdout(), format, detail); done || err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Series:       %s\n", s.Name)
	fmt.Fprintf(out, "ID:           %s\n", s.ID)
	fmt.Fprintf(out, "Cadence:      %s\n", s.Cadence)
	fmt.Fprintf(out, "Occurrences:  %d\n", len(s.Records))
	if len(s.CommonParticipants) > 0 {
		fmt.Fprintf(out, "Participants: %s\n", strings.Join(s.CommonParticipants, ", "))
	}
	if len(s.CommonKeywords) > 0 {
		fmt.Fprintf(out, "Keywords:     %s\n", strings.Join(s.CommonKeywords, ", "))
	}
	fmt.Fprintln(out)

	tw := newTable(out)
	fmt.Fprintln(tw, "DATE\tTITLE\tMINUTES\tID")
	for _, r := range s.Records {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", r.Date.Format("2006-01-02 15:04"), truncate(r.Title, 50), r.DurationMinutes, r.ID)
	}
	return tw.Flush()
}
