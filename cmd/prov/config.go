package main

import (
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"prov-go/internal/app"
	"prov-go/internal/archive"
	"prov-go/internal/config"
	"prov-go/internal/encryption"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration and encryption keys",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("getting defaults: %w", err)
		}

		projectID := uuid.New().String()
		cfg := config.NewConfig(projectID, defaults["base_dir"])
		cfg.User.Name, _ = cmd.Flags().GetString("name")
		cfg.User.Email, _ = cmd.Flags().GetString("email")
		if plaintext, _ := cmd.Flags().GetBool("no-encryption"); plaintext {
			cfg.Encryption = config.EncryptionConfig{Type: "none"}
		}

		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("initializing config: %w", err)
		}

		enc, err := encryption.NewEncryptorFromConfig(cfg.Encryption)
		if err != nil {
			return err
		}
		if enc != nil && !enc.IsConfigured() {
			pw, err := newPassphrase(cmd)
			if err != nil {
				return err
			}
			if err := enc.Setup(pw); err != nil {
				return fmt.Errorf("generating keys: %w", err)
			}
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Configuration initialized at %s\n", defaults["config_path"])
		fmt.Fprintf(out, "Project ID: %s\n", projectID)
		fmt.Fprintf(out, "Base Dir:   %s\n", cfg.BaseDir)
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, path, err := loadConfig()
		if err != nil {
			return err
		}
		return render(cmd, cfg, func(w io.Writer) error {
			fmt.Fprintf(w, "Configuration from %s:\n\n", path)
			fmt.Fprintf(w, "Project ID: %s\n", cfg.ProjectID)
			fmt.Fprintf(w, "Base Dir:   %s\n", cfg.BaseDir)
			fmt.Fprintf(w, "Log Dir:    %s\n", cfg.LogDir)
			fmt.Fprintf(w, "Store:      %s %s\n", cfg.Store.Type, cfg.Store.DataDir)
			fmt.Fprintf(w, "Workspace:  %s (data in %s)\n", cfg.Workspace.Root, cfg.Workspace.DataDir)
			fmt.Fprintf(w, "Encryption: %s\n", cfg.Encryption.Type)
			for _, a := range cfg.Archives {
				fmt.Fprintf(w, "Archive:    %s (%s)\n", a.Name, a.Type)
			}
			if cfg.User.Name != "" {
				fmt.Fprintf(w, "User:       %s <%s>\n", cfg.User.Name, cfg.User.Email)
			}
			return nil
		})
	},
}

var configArchiveCmd = &cobra.Command{
	Use:   "archive",
	Short: "Manage metadata archives",
}

var configArchiveCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Verify that every configured archive is reachable",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		if len(cfg.Archives) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No archives configured.")
			return nil
		}
		ctx := cmd.Context()
		var failed int
		for _, ac := range cfg.Archives {
			a, err := archive.NewArchiveFromConfig(ctx, ac)
			if err == nil {
				err = a.ValidateSetup(ctx)
			}
			if err != nil {
				failed++
				fmt.Fprintf(cmd.OutOrStdout(), "%-12s FAIL  %v\n", ac.Name, err)
				continue
			}
			v, err := a.Version(ctx, cfg.ProjectID)
			if err != nil {
				failed++
				fmt.Fprintf(cmd.OutOrStdout(), "%-12s FAIL  %v\n", ac.Name, err)
				continue
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%-12s ok    version %d\n", ac.Name, v)
		}
		if failed > 0 {
			return fmt.Errorf("%d archive(s) not usable", failed)
		}
		return nil
	},
}

func init() {
	configCmd.AddCommand(configInitCmd)
	configInitCmd.Flags().String("name", "", "Your name, recorded as creator")
	configInitCmd.Flags().String("email", "", "Your email, recorded as creator")
	configInitCmd.Flags().Bool("no-encryption", false, "Archive metadata snapshots unencrypted")
	configCmd.AddCommand(configListCmd)
	configCmd.AddCommand(configArchiveCmd)
	configArchiveCmd.AddCommand(configArchiveCheckCmd)
	rootCmd.AddCommand(configCmd)
}
