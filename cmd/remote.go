package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/otherjamesbrown/recap-bot/pkg/health"
	"github.com/otherjamesbrown/recap-bot/pkg/scheduler"
)

var remoteAddr string

// addRemoteFlag registers --addr on a command that talks to a running bot.
func addRemoteFlag(cmd *cobra.Command) {
	cmd.Flags().StringVar(&remoteAddr, "addr", "", "Bot base URL (default http://localhost:<server.port>)")
}

func resolveRemote(deps *Deps) (string, error) {
	if remoteAddr != "" {
		return strings.TrimRight(remoteAddr, "/"), nil
	}
	cfg, err := deps.LoadConfig()
	if err != nil {
		return "", fmt.Errorf("loading configuration: %w", err)
	}
	return fmt.Sprintf("http://localhost:%d", cfg.Server.Port), nil
}

// callBot sends a request to a running bot and decodes the JSON body into out.
func callBot(ctx context.Context, deps *Deps, method, path string, out any) (int, error) {
	base, err := resolveRemote(deps)
	if err != nil {
		return 0, err
	}
	req, err := http.NewRequestWithContext(ctx, method, base+path, nil)
	if err != nil {
		return 0, err
	}
	resp, err := deps.HTTPClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("contacting bot at %s: %w", base, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, fmt.Errorf("reading response: %w", err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return resp.StatusCode, fmt.Errorf("unexpected response (%d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return resp.StatusCode, nil
}

// NewTriggerCommand creates the 'trigger' command.
func NewTriggerCommand(deps *Deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trigger",
		Short: "Run one poll cycle on a running bot",
		Long: `Ask a running bot to poll now and print the cycle report.

Examples:
  recap trigger
  recap trigger --addr http://recap.internal:8080 -o json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var report scheduler.CycleReport
			code, err := callBot(cmd.Context(), deps, http.MethodPost, "/trigger", &report)
			if err != nil {
				return err
			}
			if code != http.StatusOK {
				return fmt.Errorf("trigger failed with status %d", code)
			}
			return renderCycleReport(cmd, report)
		},
	}
	addRemoteFlag(cmd)
	return cmd
}

func renderCycleReport(cmd *cobra.Command, report scheduler.CycleReport) error {
	format, err := outputFormat(cmd)
	if err != nil {
		return err
	}
	if done, err := writeStructured(cmd.OutOrStdout(), format, report); done || err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Cycle %s (%s) in %s\n", report.CycleID, report.Trigger,
		report.FinishedAt.Sub(report.StartedAt).Round(time.Millisecond))
	if report.Error != "" {
		fmt.Fprintf(out, "Error: %s\n", report.Error)
	}
	fmt.Fprintf(out, "Skipped: %d  Purged: %d\n", report.Skipped, report.Purged)
	if len(report.Events) == 0 {
		return nil
	}
	tw := newTable(out)
	fmt.Fprintln(tw, "EVENT\tSTART\tOUTCOME\tTIER")
	for _, e := range report.Events {
		outcome := e.Outcome
		if e.Skipped {
			outcome = "already processed"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", truncate(e.Title, 40), e.Start.Local().Format("Mon 15:04"), outcome, e.Tier)
	}
	return tw.Flush()
}

// NewHealthCommand creates the 'health' command.
func NewHealthCommand(deps *Deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Show the status of a running bot",
		Long: `Query a running bot's /status endpoint, including collaborator checks.

Examples:
  recap health
  recap health -o json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var status health.StatusResponse
			if _, err := callBot(cmd.Context(), deps, http.MethodGet, "/status", &status); err != nil {
				return err
			}
			return renderStatus(cmd, status)
		},
	}
	addRemoteFlag(cmd)
	return cmd
}

func renderStatus(cmd *cobra.Command, status health.StatusResponse) error {
	format, err := outputFormat(cmd)
	if err != nil {
		return err
	}
	if done, err := writeStructured(cmd.OutOrStdout(), format, status); done || err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	last := "never"
	if status.LastPoll != nil {
		last = status.LastPoll.Local().Format("2006-01-02 15:04:05")
	}
	fmt.Fprintf(out, "Status:           %s\n", status.Status)
	fmt.Fprintf(out, "Processed events: %d\n", status.ProcessedEvents)
	fmt.Fprintf(out, "Last poll:        %s\n", last)
	fmt.Fprintf(out, "Cycles:           %d (%d failed)\n", status.Cycles, status.FailedCycles)
	if status.LastError != "" {
		fmt.Fprintf(out, "Last error:       %s\n", status.LastError)
	}
	if len(status.Collaborators) == 0 {
		return nil
	}
	fmt.Fprintln(out)
	tw := newTable(out)
	fmt.Fprintln(tw, "COLLABORATOR\tOK\tLATENCY\tERROR")
	for _, c := range status.Collaborators {
		fmt.Fprintf(tw, "%s\t%t\t%dms\t%s\n", c.Name, c.OK, c.LatencyMs, c.Error)
	}
	return tw.Flush()
}
