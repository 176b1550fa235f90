package commands

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/agentrt/runtime/pkg/types"
)

var agentsCmd = &cobra.Command{
	Use:     "agents",
	Aliases: []string{"agent"},
	Short:   "Inspect the agent roster",
}

var agentsListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List the fixed agent roster",
	RunE:    runAgentsList,
}

var agentsCurrentCmd = &cobra.Command{
	Use:   "current [sessionID]",
	Short: "Show the agent currently handling a session",
	Args:  cobra.ExactArgs(1),
	RunE:  runAgentsCurrent,
}

func init() {
	agentsCmd.AddCommand(agentsListCmd)
	agentsCmd.AddCommand(agentsCurrentCmd)
}

func runAgentsList(cmd *cobra.Command, args []string) error {
	var defs []types.AgentDefinition
	if err := newClient().get("/agents", &defs); err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tMODEL\tTOOLS")
	for _, d := range defs {
		tools := "all"
		if d.Tools != nil {
			var enabled []string
			for t, ok := range d.Tools {
				if ok {
					enabled = append(enabled, t)
				}
			}
			tools = strings.Join(enabled, ", ")
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", d.Name, d.Model, tools)
	}
	return w.Flush()
}

func runAgentsCurrent(cmd *cobra.Command, args []string) error {
	var resp map[string]string
	if err := newClient().get("/agents/"+args[0]+"/current", &resp); err != nil {
		return err
	}
	fmt.Println(resp["currentAgent"])
	return nil
}
