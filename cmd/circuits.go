package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var circuitsCmd = &cobra.Command{
	Use:   "circuits",
	Short: "Inspect circuits on a running server",
	Long: `Circuit state lives in the serving process. These commands query and reset
it through the HTTP API of "rebound serve".`,
}

var circuitsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tracked resource classes",
	RunE:  runCircuitsList,
}

var circuitsResetCmd = &cobra.Command{
	Use:   "reset <resource-class>",
	Short: "Close a circuit and clear its failure count",
	Args:  cobra.ExactArgs(1),
	RunE:  runCircuitsReset,
}

var circuitsServer string

func init() {
	rootCmd.AddCommand(circuitsCmd)
	circuitsCmd.AddCommand(circuitsListCmd)
	circuitsCmd.AddCommand(circuitsResetCmd)

	circuitsCmd.PersistentFlags().StringVar(&circuitsServer, "server", "", "Server URL (default derived from server.addr)")
}

// serverURL returns the base URL of the API, deriving it from the listen
// address when --server is not set.
func serverURL() string {
	if circuitsServer != "" {
		return strings.TrimRight(circuitsServer, "/")
	}
	addr := manager.Get().Server.Addr
	if strings.HasPrefix(addr, ":") {
		addr = "localhost" + addr
	}
	return "http://" + addr
}

type circuitView struct {
	ResourceClass       string    `json:"resource_class"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	Tripped             bool      `json:"tripped"`
	TripExpiresAt       time.Time `json:"trip_expires_at"`
	RemainingSeconds    float64   `json:"remaining_seconds"`
}

var apiClient = &http.Client{Timeout: 10 * time.Second}

func apiDo(cmd *cobra.Command, method, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(cmd.Context(), method, serverURL()+path, nil)
	if err != nil {
		return nil, err
	}
	resp, err := apiClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("contact server: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("server returned %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}
	return body, nil
}

func runCircuitsList(cmd *cobra.Command, args []string) error {
	body, err := apiDo(cmd, http.MethodGet, "/v1/circuits")
	if err != nil {
		return err
	}
	var circuits []circuitView
	if err := json.Unmarshal(body, &circuits); err != nil {
		return fmt.Errorf("decode circuits: %w", err)
	}

	w := cmd.OutOrStdout()
	format, err := resolveFormat(w)
	if err != nil {
		return err
	}
	if format == OutputJSON {
		return printJSON(w, circuits)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CLASS\tFAILURES\tSTATE\tREMAINING")
	fmt.Fprintln(tw, "-----\t--------\t-----\t---------")
	for _, c := range circuits {
		state := "closed"
		if c.Tripped {
			state = "tripped"
		}
		remaining := time.Duration(c.RemainingSeconds * float64(time.Second))
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", c.ResourceClass, c.ConsecutiveFailures, state, formatDuration(remaining))
	}
	return tw.Flush()
}

func runCircuitsReset(cmd *cobra.Command, args []string) error {
	if _, err := apiDo(cmd, http.MethodDelete, "/v1/circuits/"+url.PathEscape(args[0])); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: reset\n", args[0])
	return nil
}
