package cmd

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/adalundhe/rebound/core/failure"
	"github.com/adalundhe/rebound/core/service"
)

var decideCmd = &cobra.Command{
	Use:   "decide [message]",
	Short: "Decide how to recover from a failure",
	Long: `Classify a failure message and print the recovery decision.

The message is read from the arguments, or from stdin when it is "-" or
omitted. With a history database the decision takes past outcomes into
account, and --record stores it as a pending attempt.`,
	Example: `  rebound decide --task job-7 --attempt 2 "connection reset by peer"
  kubectl logs job/etl | tail -1 | rebound decide --task etl -o json`,
	RunE: runDecide,
}

var (
	decideTask       string
	decideAttempt    int
	decideClass      string
	decideHint       string
	decideStatus     int
	decideRetryAfter time.Duration
	decideNoHistory  bool
	decideRecord     bool
)

func init() {
	rootCmd.AddCommand(decideCmd)

	decideCmd.Flags().StringVar(&decideTask, "task", "cli", "Task id")
	decideCmd.Flags().IntVar(&decideAttempt, "attempt", 0, "Attempts already made (0 for the first failure)")
	decideCmd.Flags().StringVar(&decideClass, "class", "", "Resource class of the failing dependency")
	decideCmd.Flags().StringVar(&decideHint, "kind", "", "Error kind hint (e.g. a pattern id)")
	decideCmd.Flags().IntVar(&decideStatus, "status", 0, "HTTP-style status code")
	decideCmd.Flags().DurationVar(&decideRetryAfter, "retry-after", 0, "Server-suggested wait")
	decideCmd.Flags().BoolVar(&decideNoHistory, "no-history", false, "Decide without the history database")
	decideCmd.Flags().BoolVar(&decideRecord, "record", false, "Store the decision as a pending attempt")
}

func runDecide(cmd *cobra.Command, args []string) error {
	if decideRecord && decideNoHistory {
		return fmt.Errorf("--record needs the history database")
	}
	message, err := readMessage(cmd.InOrStdin(), args)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	var opts []service.Option
	if decideNoHistory {
		opts = append(opts, service.WithoutHistory())
	}
	svc, err := newService(ctx, opts...)
	if err != nil {
		return err
	}
	defer svc.Close()

	sig := failure.Signal{
		RawMessage:    message,
		KindHint:      decideHint,
		TaskID:        decideTask,
		AttemptCount:  decideAttempt,
		ResourceClass: decideClass,
		ObservedAt:    time.Now(),
		RetryAfter:    decideRetryAfter,
		StatusCode:    decideStatus,
	}

	var hist *failure.History
	if svc.History != nil {
		hist, err = svc.History.Summary(ctx, sig.TaskID, sig.Attempt())
		if err != nil {
			return fmt.Errorf("history summary: %w", err)
		}
	}

	d := svc.Engine.Decide(ctx, sig, hist)

	var attemptID string
	if decideRecord {
		a, err := svc.History.Append(ctx, failure.AttemptFromDecision("", sig, d))
		if err != nil {
			return err
		}
		attemptID = a.ID
	}

	return printDecision(cmd.OutOrStdout(), d, attemptID)
}

func readMessage(stdin io.Reader, args []string) (string, error) {
	if len(args) > 0 && !(len(args) == 1 && args[0] == "-") {
		return strings.Join(args, " "), nil
	}
	data, err := io.ReadAll(bufio.NewReader(stdin))
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

type decisionOutput struct {
	failure.Decision
	DelaySeconds float64 `json:"delay_seconds"`
	AttemptID    string  `json:"attempt_id,omitempty"`
}

func printDecision(w io.Writer, d failure.Decision, attemptID string) error {
	format, err := resolveFormat(w)
	if err != nil {
		return err
	}
	if format == OutputJSON {
		return printJSON(w, decisionOutput{Decision: d, DelaySeconds: d.Delay.Seconds(), AttemptID: attemptID})
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Strategy:\t%s\n", d.Strategy)
	fmt.Fprintf(tw, "Delay:\t%s\n", formatDuration(d.Delay))
	fmt.Fprintf(tw, "Pattern:\t%s\n", d.PatternID)
	fmt.Fprintf(tw, "Confidence:\t%.2f\n", d.Confidence)
	fmt.Fprintf(tw, "State:\t%s\n", d.State)
	fmt.Fprintf(tw, "Terminal:\t%t\n", d.Terminal)
	fmt.Fprintf(tw, "Advisory:\t%t\n", d.AdvisoryUsed)
	fmt.Fprintf(tw, "Rationale:\t%s\n", d.Rationale)
	if attemptID != "" {
		fmt.Fprintf(tw, "Attempt:\t%s\n", attemptID)
	}
	return tw.Flush()
}
