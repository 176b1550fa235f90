package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check the runtime's liveness",
	RunE:  runHealth,
}

func runHealth(cmd *cobra.Command, args []string) error {
	var resp map[string]string
	if err := newClient().get("/health", &resp); err != nil {
		return err
	}
	fmt.Println(resp["status"])
	return nil
}
