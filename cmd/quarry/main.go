package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	root := &cobra.Command{
		Use:     "quarry",
		Short:   "Quarry — bounded-resource SQL execution over remote datasets",
		Version: version,
	}

	root.AddCommand(
		newQueryCmd(),
		newPrefetchCmd(),
		newCacheCmd(),
		newQuotaCmd(),
		newWorkerCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
