package main

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"prov-go/internal/app"
	"prov-go/internal/model"
	"prov-go/internal/prov"
)

var datasetCmd = &cobra.Command{
	Use:     "dataset",
	Aliases: []string{"ds"},
	Short:   "Manage datasets and their versions",
}

// workspacePaths converts command line paths into project-relative paths.
func workspacePaths(a *app.App, args []string) ([]string, error) {
	out := make([]string, 0, len(args))
	for _, arg := range args {
		abs, err := filepath.Abs(arg)
		if err != nil {
			return nil, fmt.Errorf("resolving %s: %w", arg, err)
		}
		rel, err := a.Workspace().Rel(abs)
		if err != nil {
			return nil, err
		}
		out = append(out, rel)
	}
	return out, nil
}

func creators(a *app.App) []model.Person {
	if p := a.Creator(); p != nil {
		return []model.Person{*p}
	}
	return nil
}

var datasetCreateCmd = &cobra.Command{
	Use:   "create SLUG",
	Short: "Create a dataset",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, args, appOptions{mutating: true}, func(ctx context.Context, a *app.App) error {
			slug := args[0]
			name, _ := cmd.Flags().GetString("name")
			description, _ := cmd.Flags().GetString("description")
			keywords, _ := cmd.Flags().GetStringSlice("keyword")
			license, _ := cmd.Flags().GetString("license")
			datadir, _ := cmd.Flags().GetString("datadir")
			if datadir == "" {
				datadir = a.DefaultDatadir(slug)
			} else {
				rel, err := workspacePaths(a, []string{datadir})
				if err != nil {
					return err
				}
				datadir = rel[0]
			}
			d, err := a.Datasets().Create(ctx, prov.CreateDatasetRequest{
				Slug:        slug,
				Name:        name,
				Description: description,
				Creators:    creators(a),
				Keywords:    keywords,
				License:     license,
				Datadir:     datadir,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created dataset %s (%s)\n", d.Slug, d.GetDatadir())
			return nil
		})
	},
}

var datasetListCmd = &cobra.Command{
	Use:     "ls",
	Aliases: []string{"list"},
	Short:   "List datasets",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, args, appOptions{}, func(ctx context.Context, a *app.App) error {
			datasets, err := a.Datasets().List(ctx)
			if err != nil {
				return err
			}
			views := make([]prov.DatasetView, 0, len(datasets))
			for _, d := range datasets {
				views = append(views, prov.NewDatasetView(d, nil, false))
			}
			return render(cmd, views, func(w io.Writer) error {
				if len(views) == 0 {
					fmt.Fprintln(w, "No datasets.")
					return nil
				}
				tw := table(w)
				fmt.Fprintln(tw, "SLUG\tNAME\tFILES\tMODIFIED\tDATADIR")
				for _, v := range views {
					fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n", v.Slug, v.Name, len(v.Files), when(v.DateModified), v.Datadir)
				}
				return tw.Flush()
			})
		})
	},
}

var datasetShowCmd = &cobra.Command{
	Use:   "show SLUG",
	Short: "Show the current version of a dataset, or a tagged one",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, args, appOptions{}, func(ctx context.Context, a *app.App) error {
			tag, _ := cmd.Flags().GetString("tag")
			all, _ := cmd.Flags().GetBool("all-files")
			d, err := a.Datasets().Show(ctx, args[0], tag)
			if err != nil {
				return err
			}
			tags, err := a.Datasets().ListTags(ctx, args[0])
			if err != nil {
				return err
			}
			var own []*model.DatasetTag
			for _, t := range tags {
				if t.DatasetID == d.ID {
					own = append(own, t)
				}
			}
			v := prov.NewDatasetView(d, own, all)
			return render(cmd, v, func(w io.Writer) error { return printDataset(w, v) })
		})
	},
}

func printDataset(w io.Writer, v prov.DatasetView) error {
	fmt.Fprintf(w, "Slug:         %s\n", v.Slug)
	fmt.Fprintf(w, "Version:      %s\n", v.ID)
	if v.Name != "" {
		fmt.Fprintf(w, "Name:         %s\n", v.Name)
	}
	if v.Description != "" {
		fmt.Fprintf(w, "Description:  %s\n", v.Description)
	}
	if len(v.Creators) > 0 {
		fmt.Fprintf(w, "Creators:     %s\n", strings.Join(v.Creators, ", "))
	}
	if len(v.Keywords) > 0 {
		fmt.Fprintf(w, "Keywords:     %s\n", strings.Join(v.Keywords, ", "))
	}
	if v.License != "" {
		fmt.Fprintf(w, "License:      %s\n", v.License)
	}
	fmt.Fprintf(w, "Datadir:      %s\n", v.Datadir)
	if v.DateCreated != nil {
		fmt.Fprintf(w, "Created:      %s\n", when(*v.DateCreated))
	}
	fmt.Fprintf(w, "Modified:     %s\n", when(v.DateModified))
	if v.DateRemoved != nil {
		fmt.Fprintf(w, "Removed:      %s\n", when(*v.DateRemoved))
	}
	if v.DerivedFrom != "" {
		fmt.Fprintf(w, "Derived from: %s\n", v.DerivedFrom)
	}
	if v.SameAs != "" {
		fmt.Fprintf(w, "Same as:      %s\n", v.SameAs)
	}
	if len(v.Tags) > 0 {
		fmt.Fprintf(w, "Tags:         %s\n", strings.Join(v.Tags, ", "))
	}
	if len(v.Files) == 0 {
		fmt.Fprintln(w, "\nNo files.")
		return nil
	}
	fmt.Fprintln(w)
	tw := table(w)
	fmt.Fprintln(tw, "PATH\tCHECKSUM\tSIZE\tADDED\tREMOVED")
	for _, f := range v.Files {
		removed := "-"
		if f.DateRemoved != nil {
			removed = when(*f.DateRemoved)
		}
		path := f.Path
		if f.External {
			path += " (external)"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", path, short(f.Checksum), size(f.Size), when(f.DateAdded), removed)
	}
	return tw.Flush()
}

var datasetHistoryCmd = &cobra.Command{
	Use:   "history SLUG",
	Short: "List the versions of a dataset, newest first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, args, appOptions{}, func(ctx context.Context, a *app.App) error {
			versions, err := a.Datasets().History(ctx, args[0])
			if err != nil {
				return err
			}
			views := make([]prov.DatasetView, 0, len(versions))
			for _, d := range versions {
				views = append(views, prov.NewDatasetView(d, nil, false))
			}
			return render(cmd, views, func(w io.Writer) error {
				tw := table(w)
				fmt.Fprintln(tw, "VERSION\tMODIFIED\tFILES\tREMOVED")
				for _, v := range views {
					removed := ""
					if v.DateRemoved != nil {
						removed = "yes"
					}
					fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", v.ID, when(v.DateModified), len(v.Files), removed)
				}
				return tw.Flush()
			})
		})
	},
}

var datasetEditCmd = &cobra.Command{
	Use:   "edit SLUG",
	Short: "Change dataset metadata",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, args, appOptions{mutating: true}, func(ctx context.Context, a *app.App) error {
			var e model.DatasetEdit
			flags := cmd.Flags()
			if flags.Changed("name") {
				v, _ := flags.GetString("name")
				e.Name = &v
			}
			if flags.Changed("description") {
				v, _ := flags.GetString("description")
				e.Description = &v
			}
			if flags.Changed("keyword") {
				v, _ := flags.GetStringSlice("keyword")
				e.Keywords = &v
			}
			if flags.Changed("license") {
				v, _ := flags.GetString("license")
				e.License = &v
			}
			changed, err := a.Datasets().Edit(ctx, args[0], e, a.Creator())
			if err != nil {
				return err
			}
			if len(changed) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "Nothing changed.")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Updated %s: %s\n", args[0], strings.Join(changed, ", "))
			return nil
		})
	},
}

var datasetAddCmd = &cobra.Command{
	Use:   "add SLUG PATH...",
	Short: "Add files to a dataset",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, args, appOptions{mutating: true}, func(ctx context.Context, a *app.App) error {
			paths, err := workspacePaths(a, args[1:])
			if err != nil {
				return err
			}
			create, _ := cmd.Flags().GetBool("create")
			external, _ := cmd.Flags().GetBool("external")
			added, err := a.Datasets().AddFiles(ctx, args[0], paths, prov.AddFilesOptions{
				Create:   create,
				Creator:  a.Creator(),
				External: external,
			})
			if err != nil {
				return err
			}
			if len(added) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "All files are up to date.")
				return nil
			}
			for _, p := range added {
				fmt.Fprintf(cmd.OutOrStdout(), "added %s\n", p)
			}
			return nil
		})
	},
}

var datasetUnlinkCmd = &cobra.Command{
	Use:   "unlink SLUG PATH...",
	Short: "Remove files from a dataset",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, args, appOptions{mutating: true}, func(ctx context.Context, a *app.App) error {
			paths, err := workspacePaths(a, args[1:])
			if err != nil {
				return err
			}
			removed, err := a.Datasets().RemoveFiles(ctx, args[0], paths, a.Creator())
			if err != nil {
				return err
			}
			for _, p := range removed {
				fmt.Fprintf(cmd.OutOrStdout(), "unlinked %s\n", p)
			}
			return nil
		})
	},
}

var datasetUpdateCmd = &cobra.Command{
	Use:   "update SLUG",
	Short: "Record changes of dataset files in the workspace",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, args, appOptions{mutating: true}, func(ctx context.Context, a *app.App) error {
			res, err := a.Datasets().Update(ctx, args[0], a.Creator())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(res.Updated) == 0 && len(res.Deleted) == 0 {
				fmt.Fprintln(out, "All files are up to date.")
				return nil
			}
			for _, p := range res.Updated {
				fmt.Fprintf(out, "updated %s\n", p)
			}
			for _, p := range res.Deleted {
				fmt.Fprintf(out, "deleted %s\n", p)
			}
			return nil
		})
	},
}

var datasetRemoveCmd = &cobra.Command{
	Use:   "rm SLUG",
	Short: "Remove a dataset; its versions stay in the history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ok, err := confirm(cmd, fmt.Sprintf("Remove dataset %s?", args[0]))
		if err != nil || !ok {
			return err
		}
		return withApp(cmd, args, appOptions{mutating: true}, func(ctx context.Context, a *app.App) error {
			d, err := a.Datasets().Remove(ctx, args[0], a.Creator())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed dataset %s (last version %s)\n", args[0], d.ID)
			return nil
		})
	},
}

var datasetTagCmd = &cobra.Command{
	Use:   "tag SLUG NAME",
	Short: "Tag the current version of a dataset",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, args, appOptions{mutating: true}, func(ctx context.Context, a *app.App) error {
			description, _ := cmd.Flags().GetString("description")
			force, _ := cmd.Flags().GetBool("force")
			tag, err := a.Datasets().Tag(ctx, args[0], args[1], description, force)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Tagged %s as %s\n", tag.DatasetID, tag.Name)
			return nil
		})
	},
}

var datasetUntagCmd = &cobra.Command{
	Use:   "untag SLUG NAME",
	Short: "Remove a tag from a dataset",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, args, appOptions{mutating: true}, func(ctx context.Context, a *app.App) error {
			return a.Datasets().Untag(ctx, args[0], args[1])
		})
	},
}

var datasetTagsCmd = &cobra.Command{
	Use:   "tags SLUG",
	Short: "List the tags of a dataset",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, args, appOptions{}, func(ctx context.Context, a *app.App) error {
			tags, err := a.Datasets().ListTags(ctx, args[0])
			if err != nil {
				return err
			}
			views := prov.NewTagViews(tags)
			return render(cmd, views, func(w io.Writer) error {
				if len(views) == 0 {
					fmt.Fprintln(w, "No tags.")
					return nil
				}
				tw := table(w)
				fmt.Fprintln(tw, "NAME\tVERSION\tCREATED\tDESCRIPTION")
				for _, t := range views {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", t.Name, t.DatasetID, when(t.DateCreated), t.Description)
				}
				return tw.Flush()
			})
		})
	},
}

func init() {
	datasetCreateCmd.Flags().String("name", "", "Human readable name")
	datasetCreateCmd.Flags().String("description", "", "Description")
	datasetCreateCmd.Flags().StringSlice("keyword", nil, "Keyword (repeatable)")
	datasetCreateCmd.Flags().String("license", "", "License")
	datasetCreateCmd.Flags().String("datadir", "", "Data directory (default <data_dir>/<slug>)")

	datasetShowCmd.Flags().String("tag", "", "Show the version with this tag")
	datasetShowCmd.Flags().Bool("all-files", false, "Include removed files")

	datasetEditCmd.Flags().String("name", "", "Human readable name")
	datasetEditCmd.Flags().String("description", "", "Description")
	datasetEditCmd.Flags().StringSlice("keyword", nil, "Keyword (repeatable, replaces the list)")
	datasetEditCmd.Flags().String("license", "", "License")

	datasetAddCmd.Flags().BoolP("create", "c", false, "Create the dataset if it does not exist")
	datasetAddCmd.Flags().Bool("external", false, "Files live outside the data directory")

	datasetRemoveCmd.Flags().BoolP("yes", "y", false, "Do not ask for confirmation")

	datasetTagCmd.Flags().StringP("description", "d", "", "Tag description")
	datasetTagCmd.Flags().BoolP("force", "f", false, "Move the tag if it already exists")

	datasetCmd.AddCommand(datasetCreateCmd, datasetListCmd, datasetShowCmd, datasetHistoryCmd,
		datasetEditCmd, datasetAddCmd, datasetUnlinkCmd, datasetUpdateCmd, datasetRemoveCmd,
		datasetTagCmd, datasetUntagCmd, datasetTagsCmd)
	rootCmd.AddCommand(datasetCmd)
}
