package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

var completionInstall bool

var completionCmd = &cobra.Command{
	Use:   "completion <shell>",
	Short: "Set up shell completions for claw",
	Long: `Set up shell tab-completions for claw commands, flags, task IDs and agent IDs.

Supported shells: bash, zsh, fish, powershell

Quick install (writes the script to your user completion directory):

  claw completion bash --install
  claw completion zsh --install
  claw completion fish --install

Or print the completion script to stdout (for manual setup):

  claw completion bash
  claw completion zsh
  claw completion fish
  claw completion powershell`,
	ValidArgs: []string{"bash", "zsh", "fish", "powershell"},
	Args:      cobra.MaximumNArgs(1),
	RunE:      runCompletion,
}

func init() {
	completionCmd.Flags().BoolVar(&completionInstall, "install", false,
		"Install completions into your user completion directory")

	// Replace Cobra's default completion command with ours.
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.AddCommand(completionCmd)
}

func runCompletion(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return cmd.Help()
	}
	shell := args[0]

	if completionInstall {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("detecting home directory: %w", err)
		}
		return installCompletion(cmd.OutOrStdout(), home, shell)
	}

	// Hints go to stderr so eval "$(claw completion bash)" only sees the script.
	out := cmd.OutOrStdout()
	switch shell {
	case "bash":
		printHints(cmd, `#   eval "$(claw completion bash)"`, "#   claw completion bash --install")
		return rootCmd.GenBashCompletionV2(out, true)
	case "zsh":
		printHints(cmd, `#   eval "$(claw completion zsh)"`, "#   claw completion zsh --install")
		return rootCmd.GenZshCompletion(out)
	case "fish":
		printHints(cmd, "#   claw completion fish | source", "#   claw completion fish --install")
		return rootCmd.GenFishCompletion(out, true)
	case "powershell":
		printHints(cmd, "#   claw completion powershell | Out-String | Invoke-Expression",
			"#   (add the line above to your PowerShell profile)")
		return rootCmd.GenPowerShellCompletionWithDesc(out)
	default:
		return fmt.Errorf("unsupported shell %q (supported: bash, zsh, fish, powershell)", shell)
	}
}

func printHints(cmd *cobra.Command, session, permanent string) {
	w := cmd.ErrOrStderr()
	for _, line := range []string{
		"# To load completions in your current session:",
		session,
		"#",
		"# To install permanently:",
		permanent,
		"#",
	} {
		_, _ = fmt.Fprintln(w, line)
	}
}

// completionTarget returns where --install writes the script for shell,
// relative to home. All targets are user-local so no root is needed.
func completionTarget(home, shell string) (string, error) {
	switch shell {
	case "bash":
		return filepath.Join(home, ".local", "share", "bash-completion", "completions", "claw"), nil
	case "zsh":
		return filepath.Join(home, ".local", "share", "zsh", "site-functions", "_claw"), nil
	case "fish":
		return filepath.Join(home, ".config", "fish", "completions", "claw.fish"), nil
	case "powershell":
		return "", fmt.Errorf("automatic install is not supported for PowerShell; run 'claw completion powershell' and add the output to your profile")
	default:
		return "", fmt.Errorf("unsupported shell %q", shell)
	}
}

func installCompletion(out io.Writer, home, shell string) error {
	target, err := completionTarget(home, shell)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o750); err != nil {
		return fmt.Errorf("creating completion directory: %w", err)
	}

	err = writeCompletionFile(target, func(f *os.File) error {
		switch shell {
		case "bash":
			return rootCmd.GenBashCompletionV2(f, true)
		case "zsh":
			return rootCmd.GenZshCompletion(f)
		default:
			return rootCmd.GenFishCompletion(f, true)
		}
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "%s completions installed to %s\n", shell, target)
	switch shell {
	case "bash":
		fmt.Fprintf(out, "Restart your shell or run: source %s\n", target)
	case "zsh":
		fmt.Fprintln(out, "Ensure this directory is in your fpath. Add to ~/.zshrc if needed:")
		fmt.Fprintf(out, "  fpath=(%s $fpath)\n", filepath.Dir(target))
		fmt.Fprintln(out, "  autoload -Uz compinit && compinit")
	case "fish":
		fmt.Fprintln(out, "Completions will be available in new fish sessions automatically.")
	}
	return nil
}

// writeCompletionFile creates target and lets genFn write the script into it,
// propagating close errors.
func writeCompletionFile(target string, genFn func(*os.File) error) error {
	f, err := os.Create(target)
	if err != nil {
		return fmt.Errorf("creating completion file %s: %w", target, err)
	}

	writeErr := genFn(f)
	closeErr := f.Close()

	if writeErr != nil {
		return writeErr
	}
	if closeErr != nil {
		return fmt.Errorf("closing completion file %s: %w", target, closeErr)
	}
	return nil
}
