package main

import (
	"os"

	"github.com/spf13/cobra"

	enginesqlite "github.com/quarrylabs/quarry/pkg/engine/sqlite"
	"github.com/quarrylabs/quarry/pkg/worker"
)

// newWorkerCmd is the hidden entrypoint the pool re-execs this binary with.
func newWorkerCmd() *cobra.Command {
	return &cobra.Command{
		Use:    "worker",
		Short:  "Run as a pool worker process",
		Hidden: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			reg := worker.NewRegistry()
			reg.RegisterQuery(enginesqlite.New())
			return worker.Run(reg, os.Stdin, os.Stdout)
		},
	}
}
