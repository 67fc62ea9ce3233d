package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// OutputFormat defines the supported output formats for CLI results.
type OutputFormat string

const (
	OutputFormatText OutputFormat = "text"
	OutputFormatJSON OutputFormat = "json"
	OutputFormatYAML OutputFormat = "yaml"
)

// IsValid checks if the output format is valid.
func (f OutputFormat) IsValid() bool {
	switch f {
	case OutputFormatText, OutputFormatJSON, OutputFormatYAML:
		return true
	default:
		return false
	}
}

// outputFormat reads the persistent --output flag.
func outputFormat(cmd *cobra.Command) (OutputFormat, error) {
	v, err := cmd.Flags().GetString("output")
	if err != nil || v == "" {
		return OutputFormatText, nil
	}
	f := OutputFormat(v)
	if !f.IsValid() {
		return "", fmt.Errorf("invalid output format: %q (must be text, json, or yaml)", v)
	}
	return f, nil
}

// writeStructured encodes v as JSON or YAML. It returns false for text so the
// caller renders its own table.
func writeStructured(w io.Writer, format OutputFormat, v any) (bool, error) {
	switch format {
	case OutputFormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return true, enc.Encode(v)
	case OutputFormatYAML:
		enc := yaml.NewEncoder(w)
		defer enc.Close()
		return true, enc.Encode(v)
	default:
		return false, nil
	}
}

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

// truncate shortens s to n runes with an ellipsis.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

// WriteStructured encodes v as JSON or YAML for callers outside this package.
func WriteStructured(w io.Writer, format string, v any) error {
	f := OutputFormat(format)
	if f != OutputFormatJSON && f != OutputFormatYAML {
		return fmt.Errorf("invalid structured format: %q", format)
	}
	_, err := writeStructured(w, f, v)
	return err
}
