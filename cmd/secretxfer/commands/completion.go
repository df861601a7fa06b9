package commands

import (
	"github.com/spf13/cobra"
)

// NewCompletionCommand creates the completion command for generating shell completions.
func NewCompletionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: "Generate shell completion scripts",
		Long: `Generate shell completion scripts for secretxfer.

To load completions:

Bash:
  $ source <(secretxfer completion bash)

  # To load completions for each session, execute once:
  # Linux:
  $ secretxfer completion bash > /etc/bash_completion.d/secretxfer
  # macOS:
  $ secretxfer completion bash > $(brew --prefix)/etc/bash_completion.d/secretxfer

Zsh:
  # If shell completion is not already enabled in your environment,
  # you will need to enable it. You can execute the following once:
  $ echo "autoload -U compinit; compinit" >> ~/.zshrc

  # To load completions for each session, execute once:
  $ secretxfer completion zsh > "${fpath[1]}/_secretxfer"

  # You will need to start a new shell for this setup to take effect.

Fish:
  $ secretxfer completion fish | source

  # To load completions for each session, execute once:
  $ secretxfer completion fish > ~/.config/fish/completions/secretxfer.fish

PowerShell:
  PS> secretxfer completion powershell | Out-String | Invoke-Expression

  # To load completions for every new session, run:
  PS> secretxfer completion powershell > secretxfer.ps1
  # and source this file from your PowerShell profile.
`,
		DisableFlagsInUseLine: true,
		ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
		Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			switch args[0] {
			case "bash":
				return cmd.Root().GenBashCompletion(out)
			case "zsh":
				return cmd.Root().GenZshCompletion(out)
			case "fish":
				return cmd.Root().GenFishCompletion(out, true)
			case "powershell":
				return cmd.Root().GenPowerShellCompletionWithDesc(out)
			}
			return nil
		},
	}

	return cmd
}
