package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"golang.org/x/term"
)

// =============================================================================
// Output Format Type
// =============================================================================

// OutputFormat selects how commands render results.
type OutputFormat string

const (
	// OutputAuto renders a table on a terminal and JSON otherwise.
	OutputAuto  OutputFormat = "auto"
	OutputTable OutputFormat = "table"
	OutputJSON  OutputFormat = "json"
)

var outputFormat string

func init() {
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", string(OutputAuto), "Output format (auto,table,json)")
}

func parseOutputFormat(s string) (OutputFormat, error) {
	switch f := OutputFormat(strings.ToLower(s)); f {
	case "", OutputAuto:
		return OutputAuto, nil
	case OutputTable, OutputJSON:
		return f, nil
	default:
		return "", fmt.Errorf("unknown output format %q (want auto, table or json)", s)
	}
}

// resolveFormat turns auto into table or JSON depending on whether w is a
// terminal.
func resolveFormat(w io.Writer) (OutputFormat, error) {
	f, err := parseOutputFormat(outputFormat)
	if err != nil || f != OutputAuto {
		return f, err
	}
	if isTerminal(w) {
		return OutputTable, nil
	}
	return OutputJSON, nil
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func formatDuration(d time.Duration) string {
	if d == 0 {
		return "-"
	}
	return d.Round(time.Millisecond).String()
}
