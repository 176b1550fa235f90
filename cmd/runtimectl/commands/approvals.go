package commands

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/agentrt/runtime/pkg/types"
)

var approvalsCmd = &cobra.Command{
	Use:     "approvals",
	Aliases: []string{"approval", "hitl"},
	Short:   "List and resolve pending human-in-the-loop approvals",
}

var approvalsListCmd = &cobra.Command{
	Use:   "list [sessionID]",
	Short: "List pending approvals for a session",
	Args:  cobra.ExactArgs(1),
	RunE:  runApprovalsList,
}

var approvalFeedback string

var approvalsApproveCmd = &cobra.Command{
	Use:   "approve [sessionID] [requestID]",
	Short: "Approve a pending request",
	Args:  cobra.ExactArgs(2),
	RunE:  runApprovalsApprove,
}

var approvalsRejectCmd = &cobra.Command{
	Use:   "reject [sessionID] [requestID]",
	Short: "Reject a pending request",
	Args:  cobra.ExactArgs(2),
	RunE:  runApprovalsReject,
}

func init() {
	approvalsApproveCmd.Flags().StringVar(&approvalFeedback, "feedback", "", "Optional operator feedback recorded with the decision")
	approvalsRejectCmd.Flags().StringVar(&approvalFeedback, "feedback", "", "Optional operator feedback recorded with the decision")

	approvalsCmd.AddCommand(approvalsListCmd)
	approvalsCmd.AddCommand(approvalsApproveCmd)
	approvalsCmd.AddCommand(approvalsRejectCmd)
}

func runApprovalsList(cmd *cobra.Command, args []string) error {
	var resp struct {
		PendingApprovals []types.PendingApproval `json:"pendingApprovals"`
	}
	if err := newClient().get("/sessions/"+args[0]+"/pending-approvals", &resp); err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "REQUEST ID\tTYPE\tSUBJECT\tSTATUS\tREASON")
	for _, a := range resp.PendingApprovals {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", a.RequestID, a.RequestType, a.Subject, a.Status, a.Reason)
	}
	return w.Flush()
}

func runApprovalsApprove(cmd *cobra.Command, args []string) error {
	return decide(args[0], args[1], "approve")
}

func runApprovalsReject(cmd *cobra.Command, args []string) error {
	return decide(args[0], args[1], "reject")
}

func decide(sessionID, requestID, decision string) error {
	req := map[string]string{
		"requestID": requestID,
		"decision":  decision,
		"feedback":  approvalFeedback,
	}
	var decided types.PendingApproval
	if err := newClient().post("/sessions/"+sessionID+"/hitl-decision", req, &decided); err != nil {
		return err
	}
	fmt.Printf("%s: %s\n", decided.RequestID, decided.Status)
	return nil
}
