// Package main provides the entry point for runtimectl, the operator CLI
// against the runtime's admin REST surface.
package main

import (
	"fmt"
	"os"

	"github.com/agentrt/runtime/cmd/runtimectl/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
