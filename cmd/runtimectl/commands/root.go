// Package commands provides runtimectl's CLI commands: an HTTP client
// against the admin REST surface spec.md §6 defines (internal/server),
// structured the way the teacher's cmd/opencode/commands package structures
// its own cobra tree (one root command, one file per subcommand group,
// global persistent flags carrying cross-cutting config).
package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	// Version information set at build time.
	Version   = "0.1.0"
	BuildTime = "dev"
)

// Global flags shared by every subcommand.
var (
	serverAddr string
	apiKey     string
	timeoutSec int
)

var rootCmd = &cobra.Command{
	Use:   "runtimectl",
	Short: "runtimectl - operator CLI for the agentrt runtime",
	Long: `runtimectl talks to a running agentrt-runtime process's admin REST
surface: list agents and sessions, inspect history, resolve pending HITL
approvals, and read the metrics/audit log.

It does not itself drive a chat turn — that's the IDE transport edge's
job (internal/transportedge). runtimectl is an operator's window into a
process already running 'runtime-server'.`,
	Version: Version,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverAddr, "server", "http://127.0.0.1:8080", "Admin REST surface base URL")
	rootCmd.PersistentFlags().StringVar(&apiKey, "api-key", "", "Shared secret for the admin REST surface, overrides $INTERNAL_API_KEY")
	rootCmd.PersistentFlags().IntVar(&timeoutSec, "timeout", 30, "Request timeout in seconds")

	rootCmd.SetVersionTemplate(fmt.Sprintf("runtimectl %s (%s)\n", Version, BuildTime))

	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(agentsCmd)
	rootCmd.AddCommand(sessionsCmd)
	rootCmd.AddCommand(approvalsCmd)
	rootCmd.AddCommand(auditCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
