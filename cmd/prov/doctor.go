package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"prov-go/internal/app"
	"prov-go/internal/doctor"
)

var errProblemsFound = errors.New("problems found")

type checkView struct {
	Name      string   `json:"name" yaml:"name"`
	Valid     bool     `json:"valid" yaml:"valid"`
	ManualFix bool     `json:"manual_fix,omitempty" yaml:"manual_fix,omitempty"`
	Problems  []string `json:"problems,omitempty" yaml:"problems,omitempty"`
}

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check the metadata for inconsistencies and optionally repair them",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		fix, _ := cmd.Flags().GetBool("fix")
		only, _ := cmd.Flags().GetStringSlice("check")
		return withApp(cmd, args, appOptions{mutating: fix}, func(ctx context.Context, a *app.App) error {
			if list, _ := cmd.Flags().GetBool("list"); list {
				for _, name := range a.Doctor().Names() {
					fmt.Fprintln(cmd.OutOrStdout(), name)
				}
				return nil
			}

			results, err := a.Doctor().Run(ctx, fix, only...)
			if err != nil {
				return err
			}
			views := make([]checkView, 0, len(results))
			for _, r := range results {
				views = append(views, checkView{Name: r.Name, Valid: r.Valid, ManualFix: r.HasManualFix, Problems: r.Problems})
			}
			if err := render(cmd, views, func(w io.Writer) error { return printResults(w, results, fix) }); err != nil {
				return err
			}
			if !doctor.AllValid(results) {
				return errProblemsFound
			}
			return nil
		})
	},
}

func printResults(w io.Writer, results []doctor.CheckResult, fix bool) error {
	for _, r := range results {
		switch {
		case len(r.Problems) == 0:
			fmt.Fprintf(w, "ok     %s\n", r.Name)
		case r.Valid:
			fmt.Fprintf(w, "fixed  %s (%d)\n", r.Name, len(r.Problems))
		default:
			fmt.Fprintf(w, "FAIL   %s (%d)\n", r.Name, len(r.Problems))
			if r.Report != "" {
				fmt.Fprint(w, r.Report)
			}
		}
	}
	if !fix && !doctor.AllValid(results) {
		fmt.Fprintln(w, "\nRun 'prov doctor --fix' to repair what can be repaired automatically.")
	}
	return nil
}

func init() {
	doctorCmd.Flags().Bool("fix", false, "Repair problems that can be repaired automatically")
	doctorCmd.Flags().StringSlice("check", nil, "Run only these checks")
	doctorCmd.Flags().Bool("list", false, "List the available checks")
	rootCmd.AddCommand(doctorCmd)
}
