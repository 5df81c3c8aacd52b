// Command openclaw-agent is the CLI front end for the task orchestrator:
// start, status, logs, kill, cleanup, cleanup-stale, list, executors,
// config, and dashboard, styled the way the flagship alex CLI colors its
// own output.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/openclaw/coding-agent-orchestrator/internal/completion"
	orchconfig "github.com/openclaw/coding-agent-orchestrator/internal/config"
	"github.com/openclaw/coding-agent-orchestrator/internal/metadata"
	"github.com/openclaw/coding-agent-orchestrator/internal/orchestrator"
	"github.com/openclaw/coding-agent-orchestrator/internal/registry"
	"github.com/openclaw/coding-agent-orchestrator/internal/task"
)

var (
	green  = color.New(color.FgGreen).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	blue   = color.New(color.FgBlue).SprintFunc()
	bold   = color.New(color.Bold).SprintFunc()
)

// metadataDir resolves "{data_dir}/openclaw/tasks", honoring XDG_DATA_HOME
// and falling back to ~/.local/share.
func metadataDir() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			home = "/tmp"
		}
		dataDir = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataDir, "openclaw", "tasks")
}

func buildOrchestrator(configPath string) (*orchestrator.Orchestrator, error) {
	cfg, err := orchconfig.Load(configPath)
	if err != nil {
		return nil, err
	}
	store, err := metadata.NewStore(metadataDir())
	if err != nil {
		return nil, err
	}
	reg := registry.New(cfg, store)

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	var notifier *completion.Notifier
	if cfg.Defaults.WebhookURL != "" {
		notifier = completion.NewNotifier(cfg.Defaults.WebhookURL, logger)
	}

	return orchestrator.New(reg, store, notifier, logger), nil
}

func main() {
	var configPath string

	root := &cobra.Command{
		Use:   "openclaw-agent",
		Short: "Multi-backend orchestrator for long-running coding-agent and shell tasks",
		Long: bold("openclaw-agent") + ` drives claude-code and shell jobs across SSH, container,
and local executors, tracking each task's lifecycle in a durable metadata store.`,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to executor config YAML (default ~/.config/openclaw/coding-agent.yaml)")

	root.AddCommand(newStartCommand(&configPath))
	root.AddCommand(newStatusCommand(&configPath))
	root.AddCommand(newLogsCommand(&configPath))
	root.AddCommand(newKillCommand(&configPath))
	root.AddCommand(newCleanupCommand(&configPath))
	root.AddCommand(newCleanupStaleCommand(&configPath))
	root.AddCommand(newListCommand(&configPath))
	root.AddCommand(newExecutorsCommand(&configPath))
	root.AddCommand(newConfigCommand(&configPath))
	root.AddCommand(newDashboardCommand(&configPath))

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", red("error:"), err)
		os.Exit(1)
	}
}

func newStartCommand(configPath *string) *cobra.Command {
	var (
		executorName string
		prompt       string
		command      string
		workspace    string
		maxTurns     int
		allowedTools []string
		detach       bool
	)

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start a new task on a named executor",
		RunE: func(cmd *cobra.Command, args []string) error {
			orch, err := buildOrchestrator(*configPath)
			if err != nil {
				return err
			}

			var req task.Request
			switch {
			case prompt != "":
				req.Type = task.PayloadClaudeCode
				req.Prompt = prompt
				req.AllowedTools = allowedTools
				if maxTurns > 0 {
					req.MaxTurns = &maxTurns
				}
			case command != "":
				req.Type = task.PayloadShellCommand
				req.Command = command
			default:
				return fmt.Errorf("one of --prompt or --command is required")
			}
			req.Workspace = workspace
			req.Detach = detach

			m, err := orch.Start(context.Background(), executorName, req)
			if err != nil {
				return err
			}
			fmt.Printf("%s task %s started on %s (status: %s)\n", green("✓"), bold(string(m.TaskID)), executorName, m.Status)
			return nil
		},
	}

	cmd.Flags().StringVar(&executorName, "executor", "", "executor name (required)")
	cmd.Flags().StringVar(&prompt, "prompt", "", "claude-code prompt")
	cmd.Flags().StringVar(&command, "command", "", "shell command")
	cmd.Flags().StringVar(&workspace, "workspace", "", "remote/local workspace path")
	cmd.Flags().IntVar(&maxTurns, "max-turns", 0, "max turns for claude-code")
	cmd.Flags().StringSliceVar(&allowedTools, "allowed-tools", nil, "allowed tool names for claude-code")
	cmd.Flags().BoolVar(&detach, "detach", false, "do not block for PID readback")
	cmd.MarkFlagRequired("executor")

	return cmd
}

func newStatusCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "status <task-id>",
		Short: "Show a task's current status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			orch, err := buildOrchestrator(*configPath)
			if err != nil {
				return err
			}
			m, err := orch.Status(context.Background(), task.ID(args[0]))
			if err != nil {
				return err
			}
			printStatus(m)
			return nil
		},
	}
}

func printStatus(m *metadata.Metadata) {
	statusColor := blue
	switch m.Status {
	case task.StatusCompleted:
		statusColor = green
	case task.StatusFailed, task.StatusHeartbeatTimeout, task.StatusKilled:
		statusColor = red
	case task.StatusStarting, task.StatusRunning:
		statusColor = yellow
	}
	fmt.Printf("%s: %s\n", bold("task"), m.TaskID)
	fmt.Printf("  %s: %s\n", "executor", m.ExecutorName)
	fmt.Printf("  %s: %s\n", "status", statusColor(string(m.Status)))
	fmt.Printf("  %s: %s\n", "description", m.Description)
	if m.PID != nil {
		fmt.Printf("  %s: %d\n", "pid", *m.PID)
	}
	if m.ExitCode != nil {
		fmt.Printf("  %s: %d\n", "exit_code", *m.ExitCode)
	}
	if m.Error != "" {
		fmt.Printf("  %s: %s\n", "error", m.Error)
	}
}

func newLogsCommand(configPath *string) *cobra.Command {
	var lines int
	cmd := &cobra.Command{
		Use:   "logs <task-id>",
		Short: "Show the tail of a task's log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			orch, err := buildOrchestrator(*configPath)
			if err != nil {
				return err
			}
			out, err := orch.Logs(context.Background(), task.ID(args[0]), lines)
			if err != nil {
				return err
			}
			fmt.Println(strings.Join(out, "\n"))
			return nil
		},
	}
	cmd.Flags().IntVar(&lines, "lines", 100, "number of trailing log lines")
	return cmd
}

func newKillCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "kill <task-id>",
		Short: "Kill a running task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			orch, err := buildOrchestrator(*configPath)
			if err != nil {
				return err
			}
			if err := orch.Kill(context.Background(), task.ID(args[0])); err != nil {
				return err
			}
			fmt.Printf("%s task %s killed\n", green("✓"), args[0])
			return nil
		},
	}
}

func newCleanupCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup <task-id>",
		Short: "Remove a task's substrate artifacts and local metadata",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			orch, err := buildOrchestrator(*configPath)
			if err != nil {
				return err
			}
			if err := orch.Cleanup(context.Background(), task.ID(args[0])); err != nil {
				return err
			}
			fmt.Printf("%s task %s cleaned up\n", green("✓"), args[0])
			return nil
		},
	}
}

func newCleanupStaleCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup-stale",
		Short: "Reclassify Running tasks whose heartbeat has gone stale",
		RunE: func(cmd *cobra.Command, args []string) error {
			orch, err := buildOrchestrator(*configPath)
			if err != nil {
				return err
			}
			changed, err := orch.CleanupStale(context.Background())
			if err != nil {
				return err
			}
			if len(changed) == 0 {
				fmt.Println("no stale tasks found")
				return nil
			}
			for _, id := range changed {
				fmt.Printf("%s task %s marked heartbeat_timeout\n", yellow("!"), id)
			}
			return nil
		},
	}
}

func newListCommand(configPath *string) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List all known tasks, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			orch, err := buildOrchestrator(*configPath)
			if err != nil {
				return err
			}
			all, err := orch.List(context.Background())
			if err != nil {
				return err
			}
			if asJSON {
				for _, m := range all {
					line, err := m.JSONLLine()
					if err != nil {
						return err
					}
					fmt.Println(line)
				}
				return nil
			}
			for _, m := range all {
				fmt.Printf("%-36s  %-10s  %-10s  %s\n", m.TaskID, m.ExecutorName, m.Status, m.Description)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "emit one JSON object per line")
	return cmd
}

func newExecutorsCommand(configPath *string) *cobra.Command {
	var labels []string
	cmd := &cobra.Command{
		Use:   "executors",
		Short: "List configured executors, optionally filtered by label",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := orchconfig.Load(*configPath)
			if err != nil {
				return err
			}
			execs := cfg.Executors
			if len(labels) > 0 {
				execs = cfg.FindByLabels(labels)
			}
			for _, e := range execs {
				fmt.Printf("%-20s  %-10s  labels=%s\n", e.Name, e.Type, strings.Join(e.Labels, ","))
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&labels, "label", nil, "require this label (repeatable)")
	return cmd
}

func newConfigCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Show the resolved executor configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := orchconfig.Load(*configPath)
			if err != nil {
				return err
			}
			data, err := json.MarshalIndent(cfg, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(data))
			return nil
		},
	}
}

func newDashboardCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "dashboard",
		Short: "Emit a JSONL dashboard projection of every known task",
		RunE: func(cmd *cobra.Command, args []string) error {
			orch, err := buildOrchestrator(*configPath)
			if err != nil {
				return err
			}
			all, err := orch.List(context.Background())
			if err != nil {
				return err
			}
			for _, m := range all {
				line, err := m.JSONLLine()
				if err != nil {
					return err
				}
				fmt.Println(line)
			}
			return nil
		},
	}
}
