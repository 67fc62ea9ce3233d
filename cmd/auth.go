package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/otherjamesbrown/recap-bot/credentials"
)

var authValueFromEnv string

// secretEnv maps each secret to the environment variable that overrides it.
var secretEnv = map[credentials.Secret]string{
	credentials.SecretFirefliesAPIKey:    "FIREFLIES_API_KEY",
	credentials.SecretSlackBotToken:      "SLACK_BOT_TOKEN",
	credentials.SecretSlackSigningSecret: "SLACK_SIGNING_SECRET",
}

// authStatus is the output row of auth status.
type authStatus struct {
	Secret string `json:"secret" yaml:"secret"`
	Source string `json:"source" yaml:"source"`
	Masked string `json:"masked,omitempty" yaml:"masked,omitempty"`
	Error  string `json:"error,omitempty" yaml:"error,omitempty"`
}

// NewAuthCommand creates the 'auth' command group.
func NewAuthCommand(deps *Deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage stored secrets",
		Long: `Manage the bot's secrets in the system keyring (macOS Keychain, Windows
Credential Manager, or Linux Secret Service).

Secrets: fireflies_api_key, slack_bot_token, slack_signing_secret

Environment variables take precedence over stored secrets.

Examples:
  recap auth set slack_bot_token
  recap auth set fireflies-api-key --from-env FF_KEY
  recap auth status
  recap auth delete slack_signing_secret`,
	}
	cmd.AddCommand(newAuthSetCommand(deps))
	cmd.AddCommand(newAuthStatusCommand(deps))
	cmd.AddCommand(newAuthDeleteCommand(deps))
	return cmd
}

func newAuthSetCommand(deps *Deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set <secret>",
		Short: "Store a secret (read without echo)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			secret, err := credentials.ParseSecret(args[0])
			if err != nil {
				return err
			}

			var value string
			if authValueFromEnv != "" {
				value = os.Getenv(authValueFromEnv)
				if value == "" {
					return fmt.Errorf("environment variable %s is empty", authValueFromEnv)
				}
			} else {
				value, err = deps.ReadSecret(fmt.Sprintf("%s: ", secret))
				if err != nil {
					return err
				}
			}

			if err := deps.Secrets.Set(secret, value); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Stored %s (%s)\n", secret, credentials.MaskCredential(strings.TrimSpace(value)))
			return nil
		},
	}
	cmd.Flags().StringVar(&authValueFromEnv, "from-env", "", "Read the value from this environment variable instead of prompting")
	return cmd
}

func newAuthStatusCommand(deps *Deps) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show where each secret comes from",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var rows []authStatus
			for _, st := range deps.Secrets.StatusAll() {
				row := authStatus{Secret: string(st.Secret), Source: "missing", Error: st.Error}
				if v := os.Getenv(secretEnv[st.Secret]); v != "" {
					row.Source = "env:" + secretEnv[st.Secret]
					row.Masked = credentials.MaskCredential(v)
				} else if st.Stored {
					row.Source = "keyring"
					row.Masked = st.Masked
				}
				rows = append(rows, row)
			}

			format, err := outputFormat(cmd)
			if err != nil {
				return err
			}
			if done, err := writeStructured(cmd.OutOrStdout(), format, rows); done || err != nil {
				return err
			}

			tw := newTable(cmd.OutOrStdout())
			fmt.Fprintln(tw, "SECRET\tSOURCE\tVALUE")
			for _, r := range rows {
				value := r.Masked
				if r.Error != "" {
					value = r.Error
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\n", r.Secret, r.Source, value)
			}
			return tw.Flush()
		},
	}
}

func newAuthDeleteCommand(deps *Deps) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <secret>",
		Short: "Remove a stored secret",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			secret, err := credentials.ParseSecret(args[0])
			if err != nil {
				return err
			}
			if err := deps.Secrets.Delete(secret); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", secret)
			return nil
		},
	}
}
