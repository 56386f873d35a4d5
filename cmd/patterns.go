package cmd

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/adalundhe/rebound/core/failure"
	"github.com/adalundhe/rebound/core/pattern"
)

var patternsCmd = &cobra.Command{
	Use:   "patterns",
	Short: "Inspect and validate the pattern library",
	Long:  `List, show, test, validate, and export recovery patterns.`,
}

var patternsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List patterns in the active library",
	RunE:  runPatternsList,
}

var patternsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one pattern",
	Args:  cobra.ExactArgs(1),
	RunE:  runPatternsShow,
}

var patternsTestCmd = &cobra.Command{
	Use:   "test <message>",
	Short: "Rank patterns against a failure message",
	Long: `Show every pattern that matches the message, ranked by confidence, without
consulting circuits, history or the advisory classifier.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runPatternsTest,
}

var patternsValidateCmd = &cobra.Command{
	Use:   "validate <file>",
	Short: "Check a pattern file",
	Args:  cobra.ExactArgs(1),
	RunE:  runPatternsValidate,
}

var patternsExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Print the built-in patterns as a pattern file",
	RunE:  runPatternsExport,
}

var (
	patternsCategory string
	patternsTestKind string
)

func init() {
	rootCmd.AddCommand(patternsCmd)
	patternsCmd.AddCommand(patternsListCmd)
	patternsCmd.AddCommand(patternsShowCmd)
	patternsCmd.AddCommand(patternsTestCmd)
	patternsCmd.AddCommand(patternsValidateCmd)
	patternsCmd.AddCommand(patternsExportCmd)

	patternsListCmd.Flags().StringVar(&patternsCategory, "category", "", "Only list patterns of this category")
	patternsTestCmd.Flags().StringVar(&patternsTestKind, "kind", "", "Error kind hint")
}

func activeLibrary() (*pattern.Library, error) {
	file := manager.Get().Patterns.File
	if file == "" {
		return pattern.DefaultLibrary(), nil
	}
	return pattern.LoadFile(file)
}

func runPatternsList(cmd *cobra.Command, args []string) error {
	lib, err := activeLibrary()
	if err != nil {
		return err
	}

	var patterns []pattern.Pattern
	for _, p := range lib.Patterns() {
		if patternsCategory == "" || p.Category.String() == patternsCategory {
			patterns = append(patterns, p)
		}
	}

	w := cmd.OutOrStdout()
	format, err := resolveFormat(w)
	if err != nil {
		return err
	}
	if format == OutputJSON {
		if patterns == nil {
			patterns = []pattern.Pattern{}
		}
		return printJSON(w, patterns)
	}
	return printPatternTable(w, patterns)
}

func printPatternTable(w io.Writer, patterns []pattern.Pattern) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCATEGORY\tSTRATEGY\tCONFIDENCE\tMAX")
	fmt.Fprintln(tw, "--\t--------\t--------\t----------\t---")
	for _, p := range patterns {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%.2f\t%d\n", p.ID, p.Category, p.Strategy, p.BaseConfidence, p.MaxAttempts)
	}
	return tw.Flush()
}

func runPatternsShow(cmd *cobra.Command, args []string) error {
	lib, err := activeLibrary()
	if err != nil {
		return err
	}
	p, ok := lib.Get(args[0])
	if !ok {
		return fmt.Errorf("pattern %q not found", args[0])
	}

	w := cmd.OutOrStdout()
	format, err := resolveFormat(w)
	if err != nil {
		return err
	}
	if format == OutputJSON {
		return printJSON(w, p)
	}
	data, err := pattern.Marshal([]pattern.Pattern{p})
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

type candidateOutput struct {
	PatternID  string           `json:"pattern_id"`
	Category   string           `json:"category"`
	Strategy   failure.Strategy `json:"strategy"`
	Confidence float64          `json:"confidence"`
	HintMatch  bool             `json:"hint_match"`
}

func runPatternsTest(cmd *cobra.Command, args []string) error {
	lib, err := activeLibrary()
	if err != nil {
		return err
	}
	message, err := readMessage(cmd.InOrStdin(), args)
	if err != nil {
		return err
	}

	matcher := pattern.NewMatcher(lib, pattern.WithDecay(manager.Get().Engine.HistoryDecay))
	candidates := matcher.Match(failure.Signal{RawMessage: message, KindHint: patternsTestKind}, nil)

	out := make([]candidateOutput, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, candidateOutput{
			PatternID:  c.Pattern.ID,
			Category:   c.Pattern.Category.String(),
			Strategy:   c.Pattern.Strategy,
			Confidence: c.Confidence,
			HintMatch:  c.HintMatch,
		})
	}

	w := cmd.OutOrStdout()
	format, err := resolveFormat(w)
	if err != nil {
		return err
	}
	if format == OutputJSON {
		return printJSON(w, out)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RANK\tPATTERN\tSTRATEGY\tCONFIDENCE\tHINT")
	for i, c := range out {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%.2f\t%t\n", i+1, c.PatternID, c.Strategy, c.Confidence, c.HintMatch)
	}
	return tw.Flush()
}

func runPatternsValidate(cmd *cobra.Command, args []string) error {
	lib, err := pattern.LoadFile(args[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: %d patterns OK\n", args[0], lib.Len())
	return nil
}

func runPatternsExport(cmd *cobra.Command, args []string) error {
	data, err := pattern.Marshal(pattern.DefaultPatterns())
	if err != nil {
		return err
	}
	_, err = cmd.OutOrStdout().Write(data)
	return err
}
