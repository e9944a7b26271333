package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/quarrylabs/quarry/pkg/config"
)

func newQueryCmd() *cobra.Command {
	var (
		configPath string
		datasets   []string
		user       string
		timeout    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "query <sql>",
		Short: "Execute a SQL statement against remote datasets",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			r, cleanup, err := buildRunner(cfg)
			if err != nil {
				return err
			}
			defer cleanup()

			result, err := r.Execute(cmd.Context(), args[0], datasets, user, timeout)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			for i, col := range result.Columns {
				if i > 0 {
					fmt.Fprint(w, "\t")
				}
				fmt.Fprint(w, col)
			}
			fmt.Fprintln(w)
			for _, row := range result.Rows {
				for i, v := range row {
					if i > 0 {
						fmt.Fprint(w, "\t")
					}
					fmt.Fprintf(w, "%v", v)
				}
				fmt.Fprintln(w)
			}
			w.Flush()
			fmt.Printf("(%d rows)\n", result.TotalRows)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "quarry.yaml", "path to config file")
	cmd.Flags().StringArrayVarP(&datasets, "dataset", "d", nil, "dataset URL (repeatable)")
	cmd.Flags().StringVarP(&user, "user", "u", "local", "user ID for quota accounting")
	cmd.Flags().DurationVarP(&timeout, "timeout", "t", 0, "execution deadline (default from config)")
	return cmd
}
