package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"prov-go/internal/app"
	"prov-go/internal/prov"
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Inspect the plans activities execute",
}

var planListCmd = &cobra.Command{
	Use:     "ls",
	Aliases: []string{"list"},
	Short:   "List every plan version",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, args, appOptions{}, func(ctx context.Context, a *app.App) error {
			plans, err := a.Activities().Plans(ctx)
			if err != nil {
				return err
			}
			views := make([]prov.PlanView, 0, len(plans))
			for _, p := range plans {
				views = append(views, prov.NewPlanView(p))
			}
			return render(cmd, views, func(w io.Writer) error {
				if len(views) == 0 {
					fmt.Fprintln(w, "No plans.")
					return nil
				}
				tw := table(w)
				fmt.Fprintln(tw, "NAME\tID\tMODIFIED\tCOMMAND")
				for _, v := range views {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", v.Name, v.ID, when(v.DateModified), v.Command)
				}
				return tw.Flush()
			})
		})
	},
}

var planShowCmd = &cobra.Command{
	Use:   "show NAME",
	Short: "Show the newest version of a plan",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, args, appOptions{}, func(ctx context.Context, a *app.App) error {
			p, err := a.Activities().PlanByName(ctx, args[0])
			if err != nil {
				return err
			}
			v := prov.NewPlanView(p)
			return render(cmd, v, func(w io.Writer) error {
				fmt.Fprintf(w, "Name:         %s\n", v.Name)
				fmt.Fprintf(w, "ID:           %s\n", v.ID)
				fmt.Fprintf(w, "Command:      %s\n", v.Command)
				if v.Description != "" {
					fmt.Fprintf(w, "Description:  %s\n", v.Description)
				}
				if len(v.Keywords) > 0 {
					fmt.Fprintf(w, "Keywords:     %s\n", strings.Join(v.Keywords, ", "))
				}
				if len(v.Inputs) > 0 {
					fmt.Fprintf(w, "Inputs:       %s\n", strings.Join(v.Inputs, ", "))
				}
				if len(v.Outputs) > 0 {
					fmt.Fprintf(w, "Outputs:      %s\n", strings.Join(v.Outputs, ", "))
				}
				if len(v.Parameters) > 0 {
					fmt.Fprintf(w, "Parameters:   %s\n", strings.Join(v.Parameters, ", "))
				}
				fmt.Fprintf(w, "Created:      %s\n", when(v.DateCreated))
				fmt.Fprintf(w, "Modified:     %s\n", when(v.DateModified))
				if v.DerivedFrom != "" {
					fmt.Fprintf(w, "Derived from: %s\n", v.DerivedFrom)
				}
				return nil
			})
		})
	},
}

func init() {
	planCmd.AddCommand(planListCmd, planShowCmd)
	rootCmd.AddCommand(planCmd)
}
