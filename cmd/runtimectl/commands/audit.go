package commands

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var auditLimit int

var auditCmd = &cobra.Command{
	Use:   "audit-log",
	Short: "Print the most recent observed events",
	RunE:  runAuditLog,
}

func init() {
	auditCmd.Flags().IntVar(&auditLimit, "limit", 50, "Maximum entries to print")
}

// auditEntry mirrors internal/metrics.AuditEntry.
type auditEntry struct {
	EventID       string         `json:"event_id"`
	EventType     string         `json:"event_type"`
	EventCategory string         `json:"event_category"`
	SessionID     string         `json:"session_id,omitempty"`
	Timestamp     int64          `json:"timestamp"`
	Payload       map[string]any `json:"payload,omitempty"`
}

func runAuditLog(cmd *cobra.Command, args []string) error {
	var resp struct {
		Entries []auditEntry `json:"entries"`
	}
	path := fmt.Sprintf("/events/audit-log?limit=%d", auditLimit)
	if err := newClient().get(path, &resp); err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIMESTAMP\tCATEGORY\tTYPE\tSESSION")
	for _, e := range resp.Entries {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", e.Timestamp, e.EventCategory, e.EventType, e.SessionID)
	}
	return w.Flush()
}
