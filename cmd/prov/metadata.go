package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"prov-go/internal/app"
)

var metadataCmd = &cobra.Command{
	Use:   "metadata",
	Short: "Back up and restore the metadata store",
}

var metadataBackupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Upload a snapshot of the metadata to the archive",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, args, appOptions{}, func(ctx context.Context, a *app.App) error {
			version, err := a.BackupMetadata(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Uploaded version %d to %s\n", version, a.ArchiveName())
			return nil
		})
	},
}

var metadataRestoreCmd = &cobra.Command{
	Use:   "restore",
	Short: "Replace the local metadata with the archived snapshot",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ok, err := confirm(cmd, "Replace the local metadata with the archived snapshot?")
		if err != nil || !ok {
			return err
		}
		return withApp(cmd, args, appOptions{skipVersionCheck: true}, func(ctx context.Context, a *app.App) error {
			version, err := a.RestoreMetadata(ctx, func() (string, error) {
				return readPassphrase(cmd, "Passphrase: ")
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Restored version %d from %s\n", version, a.ArchiveName())
			return nil
		})
	},
}

func init() {
	metadataRestoreCmd.Flags().BoolP("yes", "y", false, "Do not ask for confirmation")
	metadataCmd.AddCommand(metadataBackupCmd, metadataRestoreCmd)
	rootCmd.AddCommand(metadataCmd)
}
