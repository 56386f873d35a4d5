package cmd

import (
	"fmt"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/adalundhe/rebound/core/failure"
	"github.com/adalundhe/rebound/core/history"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Attempt history management commands",
	Long:  `Query recorded attempts, report outcomes, show per-pattern statistics, and prune old entries.`,
}

var historyAttemptsCmd = &cobra.Command{
	Use:   "attempts <task-id>",
	Short: "List the attempts recorded for a task",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistoryAttempts,
}

var historyOutcomeCmd = &cobra.Command{
	Use:   "outcome <attempt-id> <succeeded|failed>",
	Short: "Record the outcome of an attempt",
	Args:  cobra.ExactArgs(2),
	RunE:  runHistoryOutcome,
}

var historyStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show per-pattern success statistics",
	RunE:  runHistoryStats,
}

var historyPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete resolved attempts older than the retention period",
	RunE:  runHistoryPrune,
}

var historyStatsAttempt int

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.AddCommand(historyAttemptsCmd)
	historyCmd.AddCommand(historyOutcomeCmd)
	historyCmd.AddCommand(historyStatsCmd)
	historyCmd.AddCommand(historyPruneCmd)

	historyStatsCmd.Flags().IntVar(&historyStatsAttempt, "attempt", 0, "Attempt depth to report success rates for")
}

func openHistory() (*history.Store, error) {
	store, err := history.Open(manager.Get().History)
	if err != nil {
		return nil, fmt.Errorf("open history: %w", err)
	}
	return store, nil
}

func runHistoryAttempts(cmd *cobra.Command, args []string) error {
	store, err := openHistory()
	if err != nil {
		return err
	}
	defer store.Close()

	attempts, err := store.Attempts(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	format, err := resolveFormat(w)
	if err != nil {
		return err
	}
	if format == OutputJSON {
		if attempts == nil {
			attempts = []failure.Attempt{}
		}
		return printJSON(w, attempts)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tATTEMPT\tPATTERN\tSTRATEGY\tCLASS\tOUTCOME\tDECIDED")
	fmt.Fprintln(tw, "--\t-------\t-------\t--------\t-----\t-------\t-------")
	for _, a := range attempts {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\t%s\t%s\n",
			a.ID, a.AttemptCount, a.PatternID, a.Strategy, a.ResourceClass, a.Outcome,
			a.DecidedAt.Local().Format("2006-01-02 15:04:05"))
	}
	return tw.Flush()
}

func runHistoryOutcome(cmd *cobra.Command, args []string) error {
	outcome, err := failure.ParseOutcome(args[1])
	if err != nil {
		return err
	}

	store, err := openHistory()
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.RecordOutcome(cmd.Context(), args[0], outcome); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", args[0], outcome)
	return nil
}

type statsOutput struct {
	PatternID string `json:"pattern_id"`
	failure.PatternStats
}

func runHistoryStats(cmd *cobra.Command, args []string) error {
	store, err := openHistory()
	if err != nil {
		return err
	}
	defer store.Close()

	stats, err := store.PatternStats(cmd.Context(), historyStatsAttempt)
	if err != nil {
		return err
	}
	out := make([]statsOutput, 0, len(stats))
	for id, s := range stats {
		out = append(out, statsOutput{PatternID: id, PatternStats: s})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PatternID < out[j].PatternID })

	w := cmd.OutOrStdout()
	format, err := resolveFormat(w)
	if err != nil {
		return err
	}
	if format == OutputJSON {
		return printJSON(w, out)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "PATTERN\tSAMPLES\tSUCCESS\tINFLECTION")
	fmt.Fprintln(tw, "-------\t-------\t-------\t----------")
	for _, s := range out {
		inflection := "-"
		if s.InflectionAttempt > 0 {
			inflection = fmt.Sprint(s.InflectionAttempt)
		}
		fmt.Fprintf(tw, "%s\t%d\t%.0f%%\t%s\n", s.PatternID, s.Samples, s.SuccessRate*100, inflection)
	}
	return tw.Flush()
}

func runHistoryPrune(cmd *cobra.Command, args []string) error {
	store, err := openHistory()
	if err != nil {
		return err
	}
	defer store.Close()

	n, err := store.Prune(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Pruned %d attempts\n", n)
	return nil
}
