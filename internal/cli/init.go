package cli

import (
	"fmt"
	"path/filepath"

	"github.com/clawcontrol/claw/internal/core"
	"github.com/spf13/cobra"
)

// WorkspaceInit is the WorkspaceInitializer used by the init command.
// Set during application wiring.
var WorkspaceInit core.WorkspaceInitializer

var initCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Initialize a Claw board workspace",
	Long: `Initialize a directory as a Claw board workspace: a .clawconfig with the
default settings, the data directory for the file store, the task counter and
a .gitignore for runtime files.

Safe to run on existing workspaces -- files and directories that already
exist are skipped and not overwritten.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if WorkspaceInit == nil {
			return fmt.Errorf("workspace initializer not initialized")
		}

		basePath := "."
		if len(args) > 0 {
			basePath = args[0]
		}
		absPath, err := filepath.Abs(basePath)
		if err != nil {
			return fmt.Errorf("resolving path: %w", err)
		}

		prefix, _ := cmd.Flags().GetString("prefix")
		backend, _ := cmd.Flags().GetString("backend")
		format, _ := cmd.Flags().GetString("format")
		addr, _ := cmd.Flags().GetString("addr")
		redisAddr, _ := cmd.Flags().GetString("redis")

		result, err := WorkspaceInit.Init(core.InitConfig{
			BasePath:   absPath,
			Prefix:     prefix,
			Backend:    backend,
			Format:     format,
			ServerAddr: addr,
			RedisAddr:  redisAddr,
		})
		if err != nil {
			return fmt.Errorf("initializing workspace: %w", err)
		}

		out := cmd.OutOrStdout()
		if len(result.Created) > 0 {
			fmt.Fprintln(out, "Created:")
			for _, p := range result.Created {
				rel, _ := filepath.Rel(absPath, p)
				fmt.Fprintf(out, "  %s\n", rel)
			}
		}
		if len(result.Skipped) > 0 {
			fmt.Fprintln(out, "Skipped (already exist):")
			for _, p := range result.Skipped {
				rel, _ := filepath.Rel(absPath, p)
				fmt.Fprintf(out, "  %s\n", rel)
			}
		}

		fmt.Fprintf(out, "\nBoard workspace initialized at %s\n", absPath)
		return nil
	},
}

func init() {
	initCmd.Flags().String("prefix", "TASK", "Task ID prefix")
	initCmd.Flags().String("backend", "file", "Storage backend (file or sqlite)")
	initCmd.Flags().String("format", "yaml", "File store format (yaml or json)")
	initCmd.Flags().String("addr", "", "HTTP bridge listen address")
	initCmd.Flags().String("redis", "", "Redis address for pub/sub notification delivery")
	rootCmd.AddCommand(initCmd)
}
