package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"prov-go/internal/app"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List the commands that changed the metadata, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, args, appOptions{}, func(ctx context.Context, a *app.App) error {
			limit, _ := cmd.Flags().GetInt("limit")
			ops, err := a.History(ctx, limit)
			if err != nil {
				return err
			}
			return render(cmd, ops, func(w io.Writer) error {
				if len(ops) == 0 {
					fmt.Fprintln(w, "No operations.")
					return nil
				}
				tw := table(w)
				fmt.Fprintln(tw, "SEQ\tWHEN\tSTATUS\tCOMMAND")
				for _, op := range ops {
					line := op.Command
					if op.Parameters != "" {
						line += " " + op.Parameters
					}
					status := op.Status
					if op.Error != "" {
						status += ": " + op.Error
					}
					fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", op.Seq, when(op.StartedAt), status, line)
				}
				return tw.Flush()
			})
		})
	},
}

func init() {
	historyCmd.Flags().IntP("limit", "n", 20, "Number of operations to show (0 for all)")
	rootCmd.AddCommand(historyCmd)
}
