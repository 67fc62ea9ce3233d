package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/otherjamesbrown/recap-bot/config"
	"github.com/otherjamesbrown/recap-bot/credentials"
)

// Deps holds dependencies shared by the commands. Tests swap the functions.
type Deps struct {
	LoadConfig func() (*config.Config, error)
	NewApp     func(ctx context.Context, cfg *config.Config, opts AppOptions) (*App, error)
	Secrets    *credentials.Store
	HTTPClient *http.Client
	Now        func() time.Time

	// ReadSecret prompts for a value without echo.
	ReadSecret func(prompt string) (string, error)
}

// DefaultDeps returns default dependencies for production use.
func DefaultDeps() *Deps {
	secrets := credentials.NewStore()
	return &Deps{
		LoadConfig: func() (*config.Config, error) {
			return config.LoadConfig(func(name string) (string, bool) {
				return secrets.Lookup(credentials.Secret(name))
			})
		},
		NewApp:     NewApp,
		Secrets:    secrets,
		HTTPClient: &http.Client{Timeout: 3 * time.Minute},
		Now:        time.Now,
		ReadSecret: readSecretFromTerminal,
	}
}

// readSecretFromTerminal reads a line with echo disabled, falling back to a
// plain read when stdin is not a terminal.
func readSecretFromTerminal(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", fmt.Errorf("reading secret: %w", err)
		}
		return strings.TrimSpace(string(b)), nil
	}
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("reading secret: %w", err)
	}
	return strings.TrimSpace(line), nil
}

// loadApp loads config and wires an App for read-only commands.
func loadApp(cmd *cobra.Command, deps *Deps) (*App, error) {
	cfg, err := deps.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}
	return deps.NewApp(cmd.Context(), cfg, AppOptions{LogOutput: cmd.ErrOrStderr()})
}
