package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"driftwatch/internal/app"
	"driftwatch/internal/tui"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
)

const (
	version = "1.0.0"
	repoURL = "https://github.com/driftwatch/driftwatch"
)

func generateCompletion(shell string) error {
	switch shell {
	case "bash":
		fmt.Println("# bash completion for driftwatch")
		fmt.Println("_driftwatch_completions() {")
		fmt.Println("    local cur")
		fmt.Println("    COMPREPLY=()")
		fmt.Println("    cur=\"${COMP_WORDS[COMP_CWORD]}\"")
		fmt.Println("    opts=\"stats completion help --server --mock --version --help\"")
		fmt.Println("    if [[ $COMP_CWORD -eq 1 ]]; then")
		fmt.Println("        COMPREPLY=( $(compgen -W \"${opts}\" -- \"${cur}\") )")
		fmt.Println("    fi")
		fmt.Println("    return 0")
		fmt.Println("}")
		fmt.Println("complete -F _driftwatch_completions driftwatch")
	case "zsh":
		fmt.Println("# zsh completion for driftwatch")
		fmt.Println("compdef _driftwatch driftwatch")
		fmt.Println("_driftwatch() {")
		fmt.Println("    _arguments -C \\")
		fmt.Println("        '(-h --help)'{-h,--help}'[show help]' \\")
		fmt.Println("        '(-v --version)'{-v,--version}'[print version]' \\")
		fmt.Println("        '--server[backend base URL]' \\")
		fmt.Println("        '--mock[run against the built-in mock backend]' \\")
		fmt.Println("        '*::command:->command'")
		fmt.Println("}")
	case "fish":
		fmt.Println("# fish completion for driftwatch")
		fmt.Println("complete -c driftwatch -f -a 'stats completion help'")
		fmt.Println("complete -c driftwatch -s h -l help -d 'Show help'")
		fmt.Println("complete -c driftwatch -s v -l version -d 'Print version'")
		fmt.Println("complete -c driftwatch -l server -d 'Backend base URL'")
		fmt.Println("complete -c driftwatch -l mock -d 'Use mock backend'")
	default:
		return fmt.Errorf("unsupported shell: %s", shell)
	}
	return nil
}

func loadConfig(serverFlag string) (app.Config, error) {
	cfg, err := app.LoadConfig(app.DefaultConfigPath())
	if err != nil {
		return cfg, err
	}
	if serverFlag != "" {
		cfg.ServerURL = serverFlag
	}
	if cfg.ServerURL == "" {
		cfg.ServerURL = os.Getenv("DRIFTWATCH_SERVER_URL")
	}
	return cfg, nil
}

func main() {
	root := &cobra.Command{
		Use:     "driftwatch",
		Short:   "driftwatch - terminal focus drift monitor",
		Long:    "driftwatch tracks your terminal activity (keys, mouse, scrolling, focus)\nand polls a drift detection backend to warn you when your focus slips.\n\nRun without arguments to open the dashboard.\n\nFor more information, visit: " + repoURL,
		Version: version,
		RunE: func(cmd *cobra.Command, args []string) error {
			if v, _ := cmd.Flags().GetBool("version"); v {
				fmt.Printf("driftwatch v%s\n", version)
				fmt.Printf("Repository: %s\n", repoURL)
				return nil
			}

			cfg, err := loadConfig(rootServer)
			if err != nil {
				return err
			}

			application, err := app.NewApplication(cfg, rootMock)
			if err != nil {
				return err
			}

			p := tea.NewProgram(
				tui.NewDashboard(application),
				tea.WithAltScreen(),
				tea.WithMouseAllMotion(),
				tea.WithReportFocus(),
			)
			if _, err := p.Run(); err != nil {
				return err
			}
			// The dashboard stops tracking on quit; this covers panics in View.
			application.Tracker.Stop()
			return nil
		},
	}

	root.Flags().BoolP("version", "v", false, "Print version information")
	root.PersistentFlags().StringVar(&rootServer, "server", "", "Backend base URL (default: config, then DRIFTWATCH_SERVER_URL)")
	root.Flags().BoolVar(&rootMock, "mock", false, "Run against the built-in mock backend")

	statsCmd := &cobra.Command{
		Use:   "stats [session-id]",
		Short: "Print server-side statistics for a session",
		Long:  "Fetch aggregate statistics for a tracking session from the backend.\n\nExamples:\n  - driftwatch stats 2f1f6a0e-...\n  - driftwatch stats --server http://localhost:8000 2f1f6a0e-...",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(rootServer)
			if err != nil {
				return err
			}
			if cfg.ServerURL == "" {
				return fmt.Errorf("stats needs a backend: pass --server or set DRIFTWATCH_SERVER_URL")
			}

			ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()

			client := app.NewClient(cfg.ServerURL)
			stats, err := client.Stats(ctx, args[0])
			if err != nil {
				return err
			}
			out, err := json.MarshalIndent(stats, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}
	root.AddCommand(statsCmd)

	completionCmd := &cobra.Command{
		Use:   "completion [shell]",
		Short: "Generate shell completion",
		Long:  "Generate shell completion script for driftwatch.\n\nExamples:\n  - driftwatch completion bash >> ~/.bashrc\n  - driftwatch completion zsh > ~/.zsh/completion/_driftwatch\n  - driftwatch completion fish > ~/.config/fish/completions/driftwatch.fish",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return generateCompletion(args[0])
		},
	}
	root.AddCommand(completionCmd)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var (
	rootServer string
	rootMock   bool
)
