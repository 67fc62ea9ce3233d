// Package main provides the recap CLI entry point.
// recap posts the summary of the previous occurrence of each upcoming
// recurring meeting to Slack shortly before the meeting starts.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/otherjamesbrown/recap-bot/cmd"
	"github.com/otherjamesbrown/recap-bot/pkg/buildinfo"
)

// Global flags.
var (
	outputFormat string
	debug        bool
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "recap",
	Short: "Meeting recap bot",
	Long: `recap watches your calendars for upcoming recurring meetings, finds the
transcript of the previous occurrence, and posts its summary to Slack before
the meeting starts.

COMMON WORKFLOWS:
  Run the bot:        recap run
  Check a lookup:     recap match "Platform Team Sync"
  Explore series:     recap series list  →  recap series show <name>
  Operate a bot:      recap health  |  recap trigger
  Store secrets:      recap auth set slack_bot_token

Configuration is read from $RECAP_CONFIG_DIR/config.yaml (default
~/.recap/config.yaml), then the environment, then the keyring.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if debug {
			return os.Setenv("LOG_LEVEL", "debug")
		}
		return nil
	},
}

// versionCmd prints version information.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long: `Print the version, commit hash, and build time of the recap binary.

Examples:
  recap version
  recap version -o json`,
	Args: cobra.NoArgs,
	RunE: func(c *cobra.Command, args []string) error {
		info := buildinfo.Resolve("recap")
		switch outputFormat {
		case "json", "yaml":
			return cmd.WriteStructured(c.OutOrStdout(), outputFormat, info)
		}
		fmt.Fprintf(c.OutOrStdout(), "recap %s\n", info.Version)
		fmt.Fprintf(c.OutOrStdout(), "  commit:     %s\n", info.Commit)
		fmt.Fprintf(c.OutOrStdout(), "  built:      %s\n", info.BuildTime)
		fmt.Fprintf(c.OutOrStdout(), "  go version: %s\n", info.GoVersion)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "text", "Output format: text, json, yaml")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")

	deps := cmd.DefaultDeps()
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(cmd.NewRunCommand(deps))
	rootCmd.AddCommand(cmd.NewSeriesCommand(deps))
	rootCmd.AddCommand(cmd.NewMatchCommand(deps))
	rootCmd.AddCommand(cmd.NewEventsCommand(deps))
	rootCmd.AddCommand(cmd.NewTriggerCommand(deps))
	rootCmd.AddCommand(cmd.NewHealthCommand(deps))
	rootCmd.AddCommand(cmd.NewAuthCommand(deps))
	rootCmd.AddCommand(cmd.NewScheduleCommand(deps))
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
