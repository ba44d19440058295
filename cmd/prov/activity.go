package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"prov-go/internal/app"
	"prov-go/internal/model"
	"prov-go/internal/prov"
)

var activityCmd = &cobra.Command{
	Use:     "activity",
	Aliases: []string{"act"},
	Short:   "Record and inspect executions",
}

// activityID accepts a full id or the identifier part of one.
func activityID(arg string) string {
	if strings.HasPrefix(arg, "/") {
		return arg
	}
	return model.ActivityID(arg)
}

// parameterFilter parses name, name=value or name=v1,v2.
func parameterFilter(f *prov.ActivityFilter, param string) {
	name, values, found := strings.Cut(param, "=")
	f.ParameterName = name
	if !found {
		return
	}
	parts := strings.Split(values, ",")
	if len(parts) == 1 {
		f.ParameterValue = parts[0]
		return
	}
	for _, p := range parts {
		f.ParameterValues = append(f.ParameterValues, p)
	}
}

func activityViews(ctx context.Context, a *app.App, acts []*model.Activity) ([]prov.ActivityView, error) {
	views := make([]prov.ActivityView, 0, len(acts))
	for _, act := range acts {
		plan, err := a.Activities().Plan(ctx, act)
		if err != nil {
			return nil, err
		}
		views = append(views, prov.NewActivityView(act, plan))
	}
	return views, nil
}

func printActivities(w io.Writer, views []prov.ActivityView) error {
	if len(views) == 0 {
		fmt.Fprintln(w, "No activities.")
		return nil
	}
	tw := table(w)
	fmt.Fprintln(tw, "ID\tPLAN\tSTARTED\tDURATION\tINPUTS\tOUTPUTS")
	for _, v := range views {
		id := strings.TrimPrefix(v.ID, model.ActivityIDPrefix())
		if v.Deleted != nil {
			id += " (deleted)"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\n", id, v.Plan, when(v.StartedAt),
			v.EndedAt.Sub(v.StartedAt).Round(time.Second), len(v.Inputs), len(v.Outputs))
	}
	return tw.Flush()
}

var activityRecordCmd = &cobra.Command{
	Use:   "record FILE",
	Short: "Record an execution described by a YAML file (- for stdin)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var in io.Reader = cmd.InOrStdin()
		if args[0] != "-" {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("opening record file: %w", err)
			}
			defer f.Close()
			in = f
		}
		rf, err := parseRecordFile(in, time.Now().UTC())
		if err != nil {
			return err
		}

		return withApp(cmd, args, appOptions{mutating: true}, func(ctx context.Context, a *app.App) error {
			req, err := rf.request(a.Workspace().Resolve, a.Agents(), a.Creator())
			if err != nil {
				return err
			}
			act, err := a.Activities().Record(ctx, req)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Recorded %s\n", act.ID)
			return nil
		})
	},
}

var activityListCmd = &cobra.Command{
	Use:     "ls",
	Aliases: []string{"list"},
	Short:   "List activities, ordered by start time",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, args, appOptions{}, func(ctx context.Context, a *app.App) error {
			flags := cmd.Flags()
			var f prov.ActivityFilter
			if input, _ := flags.GetString("input"); input != "" {
				paths, err := workspacePaths(a, []string{input})
				if err != nil {
					return err
				}
				f.InputPath = paths[0]
			}
			if output, _ := flags.GetString("output"); output != "" {
				paths, err := workspacePaths(a, []string{output})
				if err != nil {
					return err
				}
				f.OutputPath = paths[0]
			}
			if param, _ := flags.GetString("param"); param != "" {
				parameterFilter(&f, param)
			}
			f.PlanName, _ = flags.GetString("plan")
			f.IncludeDeleted, _ = flags.GetBool("deleted")

			acts, err := a.Activities().List(ctx, f)
			if err != nil {
				return err
			}
			views, err := activityViews(ctx, a, acts)
			if err != nil {
				return err
			}
			return render(cmd, views, func(w io.Writer) error { return printActivities(w, views) })
		})
	},
}

var activityShowCmd = &cobra.Command{
	Use:   "show ID",
	Short: "Show an activity",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, args, appOptions{}, func(ctx context.Context, a *app.App) error {
			act, err := a.Activities().Show(ctx, activityID(args[0]))
			if err != nil {
				return err
			}
			plan, err := a.Activities().Plan(ctx, act)
			if err != nil {
				return err
			}
			v := prov.NewActivityView(act, plan)
			return render(cmd, v, func(w io.Writer) error {
				fmt.Fprintf(w, "ID:       %s\n", v.ID)
				fmt.Fprintf(w, "Plan:     %s (%s)\n", v.Plan, v.PlanID)
				fmt.Fprintf(w, "Command:  %s\n", v.Command)
				if v.Agent != "" {
					fmt.Fprintf(w, "Agent:    %s\n", v.Agent)
				}
				fmt.Fprintf(w, "Started:  %s\n", when(v.StartedAt))
				fmt.Fprintf(w, "Ended:    %s\n", when(v.EndedAt))
				if v.Deleted != nil {
					fmt.Fprintf(w, "Deleted:  %s\n", when(*v.Deleted))
				}
				for _, p := range v.Inputs {
					fmt.Fprintf(w, "Input:    %s\n", p)
				}
				for _, p := range v.Outputs {
					fmt.Fprintf(w, "Output:   %s\n", p)
				}
				for _, p := range act.Parameters {
					fmt.Fprintf(w, "Param:    %s=%v\n", p.Name, p.Value)
				}
				return nil
			})
		})
	},
}

var activityRemoveCmd = &cobra.Command{
	Use:   "rm ID",
	Short: "Mark an activity deleted",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, args, appOptions{mutating: true}, func(ctx context.Context, a *app.App) error {
			force, _ := cmd.Flags().GetBool("force")
			return a.Activities().Remove(ctx, activityID(args[0]), force)
		})
	},
}

// lineageCmd builds the upstream and downstream commands, which differ only
// in the direction they walk.
func lineageCmd(use, short string,
	walk func(s *prov.ActivityService) func(context.Context, string, int) ([]*model.Activity, error),
	chains func(s *prov.ActivityService) func(context.Context, string) ([][]*model.Activity, error),
) *cobra.Command {
	c := &cobra.Command{
		Use:   use + " ID",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, args, appOptions{}, func(ctx context.Context, a *app.App) error {
				id := activityID(args[0])
				if all, _ := cmd.Flags().GetBool("chains"); all {
					paths, err := chains(a.Activities())(ctx, id)
					if err != nil {
						return err
					}
					ids := make([][]string, 0, len(paths))
					for _, path := range paths {
						var chain []string
						for _, act := range path {
							chain = append(chain, act.ID)
						}
						ids = append(ids, chain)
					}
					return render(cmd, ids, func(w io.Writer) error {
						for _, chain := range ids {
							fmt.Fprintln(w, strings.Join(chain, " -> "))
						}
						return nil
					})
				}

				depth, _ := cmd.Flags().GetInt("depth")
				acts, err := walk(a.Activities())(ctx, id, depth)
				if err != nil {
					return err
				}
				views, err := activityViews(ctx, a, acts)
				if err != nil {
					return err
				}
				return render(cmd, views, func(w io.Writer) error { return printActivities(w, views) })
			})
		},
	}
	c.Flags().Int("depth", 0, "Levels to follow (0 for all)")
	c.Flags().Bool("chains", false, "Print every path instead of the set of activities")
	return c
}

var activityCollectionCmd = &cobra.Command{
	Use:   "collection",
	Short: "Group activities",
}

var activityCollectionCreateCmd = &cobra.Command{
	Use:   "create ID...",
	Short: "Group activities, e.g. the steps of one workflow run",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, args, appOptions{mutating: true}, func(ctx context.Context, a *app.App) error {
			ids := make([]string, 0, len(args))
			for _, arg := range args {
				ids = append(ids, activityID(arg))
			}
			c, err := a.Activities().CreateCollection(ctx, ids)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created collection %s\n", c.ID)
			return nil
		})
	},
}

var activityCollectionListCmd = &cobra.Command{
	Use:     "ls",
	Aliases: []string{"list"},
	Short:   "List activity collections",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, args, appOptions{}, func(ctx context.Context, a *app.App) error {
			colls, err := a.Activities().ActivityCollections(ctx)
			if err != nil {
				return err
			}
			return render(cmd, colls, func(w io.Writer) error {
				if len(colls) == 0 {
					fmt.Fprintln(w, "No collections.")
					return nil
				}
				for _, c := range colls {
					fmt.Fprintf(w, "%s\n", c.ID)
					for _, id := range c.ActivityIDs {
						fmt.Fprintf(w, "\t%s\n", id)
					}
				}
				return nil
			})
		})
	},
}

func init() {
	activityListCmd.Flags().String("input", "", "Only activities using this path")
	activityListCmd.Flags().String("output", "", "Only activities generating this path")
	activityListCmd.Flags().String("plan", "", "Only activities of this plan, any version")
	activityListCmd.Flags().String("param", "", "Only activities with parameter name, name=value or name=v1,v2")
	activityListCmd.Flags().Bool("deleted", false, "Include deleted activities")

	activityRemoveCmd.Flags().BoolP("force", "f", false, "Remove even if other activities depend on it")

	upstream := lineageCmd("upstream", "List the activities an activity depends on",
		func(s *prov.ActivityService) func(context.Context, string, int) ([]*model.Activity, error) { return s.Upstream },
		func(s *prov.ActivityService) func(context.Context, string) ([][]*model.Activity, error) { return s.UpstreamChains },
	)
	downstream := lineageCmd("downstream", "List the activities depending on an activity",
		func(s *prov.ActivityService) func(context.Context, string, int) ([]*model.Activity, error) { return s.Downstream },
		func(s *prov.ActivityService) func(context.Context, string) ([][]*model.Activity, error) { return s.DownstreamChains },
	)

	activityCollectionCmd.AddCommand(activityCollectionCreateCmd, activityCollectionListCmd)
	activityCmd.AddCommand(activityRecordCmd, activityListCmd, activityShowCmd, activityRemoveCmd,
		upstream, downstream, activityCollectionCmd)
	rootCmd.AddCommand(activityCmd)
}
