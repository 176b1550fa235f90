package commands

import (
	"fmt"
	"net/url"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/agentrt/runtime/pkg/types"
)

var sessionsCmd = &cobra.Command{
	Use:     "sessions",
	Aliases: []string{"session"},
	Short:   "Manage sessions",
}

var sessionsListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List every non-deleted session id",
	RunE:    runSessionsList,
}

var (
	createSystemPrompt string
	sessionsListLimit  int
	sessionsListOffset int
)

var sessionsCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a new session",
	RunE:  runSessionsCreate,
}

var sessionsHistoryCmd = &cobra.Command{
	Use:   "history [sessionID]",
	Short: "Print a session's full message log",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionsHistory,
}

func init() {
	sessionsCreateCmd.Flags().StringVar(&createSystemPrompt, "system-prompt", "", "Optional system prompt override")
	sessionsListCmd.Flags().IntVar(&sessionsListLimit, "limit", 0, "Maximum number of session ids to return (0 = unbounded)")
	sessionsListCmd.Flags().IntVar(&sessionsListOffset, "offset", 0, "Number of leading session ids to skip")

	sessionsCmd.AddCommand(sessionsListCmd)
	sessionsCmd.AddCommand(sessionsCreateCmd)
	sessionsCmd.AddCommand(sessionsHistoryCmd)
}

func runSessionsList(cmd *cobra.Command, args []string) error {
	q := url.Values{}
	if sessionsListLimit > 0 {
		q.Set("limit", fmt.Sprintf("%d", sessionsListLimit))
	}
	if sessionsListOffset > 0 {
		q.Set("offset", fmt.Sprintf("%d", sessionsListOffset))
	}
	path := "/sessions"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var resp struct {
		Sessions []string `json:"sessions"`
	}
	if err := newClient().get(path, &resp); err != nil {
		return err
	}
	for _, id := range resp.Sessions {
		fmt.Println(id)
	}
	return nil
}

func runSessionsCreate(cmd *cobra.Command, args []string) error {
	req := map[string]string{"systemPrompt": createSystemPrompt}
	var sess types.Session
	if err := newClient().post("/sessions", req, &sess); err != nil {
		return err
	}
	fmt.Println(sess.ID)
	return nil
}

func runSessionsHistory(cmd *cobra.Command, args []string) error {
	var resp struct {
		Messages []types.Message `json:"messages"`
	}
	if err := newClient().get("/sessions/"+args[0]+"/history", &resp); err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SEQ\tROLE\tCONTENT")
	for _, m := range resp.Messages {
		fmt.Fprintf(w, "%d\t%s\t%s\n", m.Seq, m.Role, truncate(m.Content, 80))
	}
	return w.Flush()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
