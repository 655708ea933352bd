package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/skosovsky/roost"

	// Register the built-in environments and task datasets.
	_ "github.com/skosovsky/roost/envs/dummy"
	_ "github.com/skosovsky/roost/envs/gsm8k"
)

var logLevel string

func main() {
	// Best-effort .env loading; absence is fine.
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:   "roost",
		Short: "roost runs tool-calling environments for LLM agents.",
		PersistentPreRun: func(*cobra.Command, []string) {
			setupLogging(logLevel)
		},
	}
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")

	rootCmd.AddCommand(toolsCmd(), playCmd(), batchesCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func setupLogging(level string) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})))
}

// parseParams turns repeated key=value flags into factory params. Values are
// parsed as JSON when possible, otherwise kept as strings.
func parseParams(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	params := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, val, found := strings.Cut(pair, "=")
		if !found || key == "" {
			return nil, fmt.Errorf("invalid --param %q, want key=value", pair)
		}
		var parsed any
		if err := json.Unmarshal([]byte(val), &parsed); err != nil {
			parsed = val
		}
		params[key] = parsed
	}
	return params, nil
}

func toolsCmd() *cobra.Command {
	var params []string
	cmd := &cobra.Command{
		Use:   "tools <environment>",
		Short: "Describe the tools exposed by an environment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := parseParams(params)
			if err != nil {
				return err
			}
			env, err := roost.NewEnvironment(args[0], p)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			defer env.Close(ctx) //nolint:errcheck
			_, tools, err := env.Reset(ctx)
			if err != nil {
				return err
			}
			for i, tool := range tools {
				if i > 0 {
					fmt.Println()
				}
				fmt.Println(roost.DescribeStr(tool))
			}
			return nil
		},
	}
	cmd.Flags().StringArrayVar(&params, "param", nil, "environment parameter key=value (repeatable)")
	return cmd
}

func playCmd() *cobra.Command {
	var (
		params    []string
		toolName  string
		toolArgs  string
		withFrame bool
	)
	cmd := &cobra.Command{
		Use:   "play <environment>",
		Short: "Run one environment step with a scripted tool call",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := parseParams(params)
			if err != nil {
				return err
			}
			env, err := roost.NewEnvironment(args[0], p)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			defer env.Close(ctx) //nolint:errcheck
			obs, tools, err := env.Reset(ctx)
			if err != nil {
				return err
			}
			for _, m := range obs {
				fmt.Printf("[%s] %s\n", m.Role, m.Content)
			}
			names := make([]string, len(tools))
			for i, t := range tools {
				names[i] = t.Name()
			}
			slog.Info("environment ready", "tools", names)

			call := roost.ParseToolCall("", toolName, []byte(toolArgs))
			result, err := env.Step(ctx, roost.NewToolRequest(call))
			if err != nil {
				return err
			}
			for _, m := range result.Observations {
				fmt.Printf("[%s] %s\n", m.Role, m.Content)
			}
			fmt.Printf("reward=%g done=%v truncated=%v\n", result.Reward, result.Done, result.Truncated)
			if withFrame {
				frame, err := json.MarshalIndent(env.ExportFrame(), "", "  ")
				if err != nil {
					return err
				}
				fmt.Println(string(frame))
			}
			return nil
		},
	}
	cmd.Flags().StringArrayVar(&params, "param", nil, "environment parameter key=value (repeatable)")
	cmd.Flags().StringVar(&toolName, "tool", "", "tool to call")
	cmd.Flags().StringVar(&toolArgs, "args", "{}", "JSON arguments for the tool call")
	cmd.Flags().BoolVar(&withFrame, "frame", false, "print the exported frame after the step")
	_ = cmd.MarkFlagRequired("tool")
	return cmd
}

func batchesCmd() *cobra.Command {
	var (
		params     []string
		batchSize  int
		maxBatches int
		shuffle    bool
	)
	cmd := &cobra.Command{
		Use:   "batches <dataset>",
		Short: "Iterate batches of environments from a task dataset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := parseParams(params)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			ds, err := roost.NewNamedTaskDataset(ctx, args[0], p)
			if err != nil {
				return err
			}
			count := 0
			for batch, err := range roost.IterBatches(ctx, ds, batchSize, shuffle) {
				if err != nil {
					return err
				}
				for _, env := range batch {
					frame, err := json.Marshal(env.ExportFrame())
					if err != nil {
						return err
					}
					fmt.Println(string(frame))
				}
				count++
				if maxBatches > 0 && count >= maxBatches {
					break
				}
			}
			slog.Info("done", "batches", count)
			return nil
		},
	}
	cmd.Flags().StringArrayVar(&params, "param", nil, "dataset parameter key=value (repeatable)")
	cmd.Flags().IntVar(&batchSize, "batch-size", 4, "environments per batch")
	cmd.Flags().IntVar(&maxBatches, "max-batches", 1, "stop after this many batches (0 = all)")
	cmd.Flags().BoolVar(&shuffle, "shuffle", false, "shuffle a finite dataset before batching")
	return cmd
}
