package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/haasonsaas/praxis/internal/tools"
	"github.com/haasonsaas/praxis/internal/tools/builtin"
	"github.com/haasonsaas/praxis/pkg/models"
)

// builtinRegistry builds the registry the CLI runs with.
func builtinRegistry() (*tools.Registry, error) {
	registry := tools.NewRegistry()
	if err := registry.RegisterAll(builtin.Descriptors()); err != nil {
		return nil, err
	}
	return registry, nil
}

// signalContext returns a context cancelled on SIGINT/SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func configPath(cmd *cobra.Command) string {
	path, _ := cmd.Flags().GetString("config")
	return path
}

func buildRunCmd() *cobra.Command {
	var agentUUID string

	cmd := &cobra.Command{
		Use:   "run [prompt]",
		Short: "Run one agent turn",
		Long: `Run one agent turn against the configured provider.

Chunks stream to stdout as they arrive. If the model calls a frontend
tool the run pauses; feed the results back with "praxis resume".`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			rt, err := buildRuntime(ctx, configPath(cmd))
			if err != nil {
				return err
			}
			defer rt.close(context.Background())

			registry, err := builtinRegistry()
			if err != nil {
				return err
			}
			a, err := rt.buildAgent(ctx, agentUUID, registry)
			if err != nil {
				return err
			}

			ch, err := a.Run(ctx, args[0])
			if err != nil {
				return err
			}
			for chunk := range ch {
				fmt.Print(chunk)
			}
			fmt.Println()
			if a.Awaiting() {
				fmt.Fprintf(os.Stderr, "paused on frontend tools; resume with: praxis resume --agent %s\n",
					a.AgentUUID())
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&agentUUID, "agent", "a", "",
		"Agent UUID (empty creates a new agent)")
	return cmd
}

func buildResumeCmd() *cobra.Command {
	var (
		agentUUID string
		results   []string
	)

	cmd := &cobra.Command{
		Use:   "resume",
		Short: "Resume a run paused on frontend tools",
		Example: `  praxis resume --agent 4f7c... --result F1=yes
  praxis resume --agent 4f7c... --result F1='{"approved":true}'`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			blocks, err := parseResults(results)
			if err != nil {
				return err
			}

			rt, err := buildRuntime(ctx, configPath(cmd))
			if err != nil {
				return err
			}
			defer rt.close(context.Background())

			registry, err := builtinRegistry()
			if err != nil {
				return err
			}
			a, err := rt.buildAgent(ctx, agentUUID, registry)
			if err != nil {
				return err
			}

			ch, err := a.Resume(ctx, blocks)
			if err != nil {
				return err
			}
			for chunk := range ch {
				fmt.Print(chunk)
			}
			fmt.Println()
			return nil
		},
	}

	cmd.Flags().StringVarP(&agentUUID, "agent", "a", "", "Agent UUID (required)")
	cmd.Flags().StringArrayVarP(&results, "result", "r", nil,
		"Frontend tool result as tool_use_id=body (repeatable)")
	_ = cmd.MarkFlagRequired("agent")
	_ = cmd.MarkFlagRequired("result")
	return cmd
}

// parseResults converts id=body pairs into tool_result blocks.
func parseResults(pairs []string) ([]models.Block, error) {
	blocks := make([]models.Block, 0, len(pairs))
	for _, pair := range pairs {
		id, body, ok := strings.Cut(pair, "=")
		if !ok || id == "" {
			return nil, fmt.Errorf("malformed result %q, want tool_use_id=body", pair)
		}
		blocks = append(blocks, models.ToolResultBlock(id,
			[]models.Block{models.TextBlock(body)}, false))
	}
	return blocks, nil
}

func buildAgentsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agents",
		Short: "Manage stored agents",
	}

	var limit, offset int
	list := &cobra.Command{
		Use:   "list",
		Short: "List stored agents, most recently updated first",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			rt, err := buildRuntime(ctx, configPath(cmd))
			if err != nil {
				return err
			}
			defer rt.close(context.Background())

			configs, total, err := rt.store.Configs().List(ctx, limit, offset)
			if err != nil {
				return err
			}
			for _, cfg := range configs {
				title := cfg.Title
				if title == "" {
					title = "(untitled)"
				}
				fmt.Printf("%s  %-30s  model=%s runs=%d updated=%s\n",
					cfg.AgentUUID, title, cfg.Model, cfg.RunCount,
					cfg.UpdatedAt.Format("2006-01-02 15:04:05"))
			}
			fmt.Printf("%d of %d agents\n", len(configs), total)
			return nil
		},
	}
	list.Flags().IntVar(&limit, "limit", 20, "Page size")
	list.Flags().IntVar(&offset, "offset", 0, "Page offset")

	var title string
	retitle := &cobra.Command{
		Use:   "set-title [agent-uuid]",
		Short: "Set an agent's title",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			rt, err := buildRuntime(ctx, configPath(cmd))
			if err != nil {
				return err
			}
			defer rt.close(context.Background())

			ok, err := rt.store.Configs().SetTitle(ctx, args[0], title)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("agent %s not found", args[0])
			}
			return nil
		},
	}
	retitle.Flags().StringVar(&title, "title", "", "New title")
	_ = retitle.MarkFlagRequired("title")

	remove := &cobra.Command{
		Use:   "delete [agent-uuid]",
		Short: "Delete an agent and its stored data",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			rt, err := buildRuntime(ctx, configPath(cmd))
			if err != nil {
				return err
			}
			defer rt.close(context.Background())

			ok, err := rt.store.Configs().Delete(ctx, args[0])
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("agent %s not found", args[0])
			}
			return nil
		},
	}

	cmd.AddCommand(list, retitle, remove)
	return cmd
}

func buildHistoryCmd() *cobra.Command {
	var (
		agentUUID string
		limit     int
		beforeSeq int64
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show stored conversation records for an agent",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			rt, err := buildRuntime(ctx, configPath(cmd))
			if err != nil {
				return err
			}
			defer rt.close(context.Background())

			records, hasMore, err := rt.store.Conversations().LoadCursor(ctx, agentUUID, beforeSeq, limit)
			if err != nil {
				return err
			}
			for _, rec := range records {
				fmt.Printf("seq=%d run=%s stop=%s cost=$%.4f\n  user: %s\n",
					rec.Seq, rec.RunID, rec.StopReason, rec.Cost.TotalUSD,
					firstLine(rec.UserMessage.PlainText()))
				for _, msg := range rec.Messages {
					if text := msg.PlainText(); text != "" {
						fmt.Printf("  %s: %s\n", msg.Role, firstLine(text))
					}
				}
			}
			if hasMore && len(records) > 0 {
				fmt.Printf("more: --before-seq %d\n", records[len(records)-1].Seq)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&agentUUID, "agent", "a", "", "Agent UUID (required)")
	cmd.Flags().IntVar(&limit, "limit", 10, "Records per page")
	cmd.Flags().Int64Var(&beforeSeq, "before-seq", 0, "Return records older than this sequence")
	_ = cmd.MarkFlagRequired("agent")
	return cmd
}

func buildRunLogCmd() *cobra.Command {
	var (
		agentUUID string
		runID     string
	)

	cmd := &cobra.Command{
		Use:   "runlog",
		Short: "Show the event log of one run",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			rt, err := buildRuntime(ctx, configPath(cmd))
			if err != nil {
				return err
			}
			defer rt.close(context.Background())

			events, err := rt.store.RunLogs().Load(ctx, agentUUID, runID)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(os.Stdout)
			for _, ev := range events {
				if err := enc.Encode(ev); err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&agentUUID, "agent", "a", "", "Agent UUID (required)")
	cmd.Flags().StringVar(&runID, "run", "", "Run ID (required)")
	_ = cmd.MarkFlagRequired("agent")
	_ = cmd.MarkFlagRequired("run")
	return cmd
}

// firstLine truncates multi-line text for listing output.
func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i] + " ..."
	}
	if len(s) > 120 {
		s = s[:120] + "..."
	}
	return s
}
