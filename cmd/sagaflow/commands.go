package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/glimte/sagaflow-go"
	"github.com/glimte/sagaflow-go/health"
	"github.com/glimte/sagaflow-go/internal/config"
	"github.com/glimte/sagaflow-go/internal/reliability"
	"github.com/glimte/sagaflow-go/messaging"
)

// cliOptions holds the persistent flags
type cliOptions struct {
	configPath string
	verbose    bool
}

func newRootCmd(out, errOut io.Writer) *cobra.Command {
	opts := &cliOptions{}

	rootCmd := &cobra.Command{
		Use:   "sagaflow",
		Short: "Run and operate the sagaflow order pipeline",
		Long: `Sagaflow runs queued order sagas and notification jobs.
It also moves dead-lettered jobs back to their original queue.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, gitCommit, buildTime),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.SetOut(out)
	rootCmd.SetErr(errOut)

	rootCmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Path to a YAML config file")
	rootCmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Enable verbose output")

	rootCmd.AddCommand(
		newReprocessDLQCmd(opts),
		newWorkerCmd(opts),
		newHealthCmd(opts),
	)
	return rootCmd
}

func newReprocessDLQCmd(opts *cliOptions) *cobra.Command {
	var queue string

	cmd := &cobra.Command{
		Use:   "reprocess-dlq",
		Short: "Move every job of a dead-letter queue back to its original queue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := reliability.ValidateDLQName(queue); err != nil {
				return err
			}

			client, err := openClient(cmd, opts)
			if err != nil {
				return err
			}
			defer client.Close()

			result, err := client.ReprocessDLQ(cmd.Context(), queue)
			if err != nil {
				return fmt.Errorf("failed to reprocess %s: %w", queue, err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), result.Message())
			return nil
		},
	}
	cmd.Flags().StringVarP(&queue, "queue", "q", "", "Dead-letter queue to drain (must end with _dlq)")

	return cmd
}

func newWorkerCmd(opts *cliOptions) *cobra.Command {
	var concurrency int

	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Consume the order and notification queues until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := openClient(cmd, opts)
			if err != nil {
				return err
			}
			defer client.Close()

			worker := client.NewWorker(messaging.WithConcurrency(concurrency))

			fmt.Fprintln(cmd.OutOrStdout(), "Worker running... Press Ctrl+C to stop")
			return worker.Run(cmd.Context())
		},
	}
	cmd.Flags().IntVarP(&concurrency, "concurrency", "n", 0, "Number of consuming goroutines (overrides config)")

	return cmd
}

func newHealthCmd(opts *cliOptions) *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check the queue driver, database and external services",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := openClient(cmd, opts)
			if err != nil {
				return err
			}
			defer client.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			report := client.Health(ctx)
			printReport(cmd.OutOrStdout(), report)
			if !report.Healthy() {
				return fmt.Errorf("system is %s", report.Status)
			}
			return nil
		},
	}
	cmd.Flags().DurationVarP(&timeout, "timeout", "t", 5*time.Second, "Time allowed for all checks")

	return cmd
}

func printReport(w io.Writer, report health.Report) {
	fmt.Fprintf(w, "Overall: %s (%v)\n", report.Status, report.Duration.Round(time.Millisecond))
	fmt.Fprintln(w, strings.Repeat("-", 60))
	for _, check := range report.Checks {
		fmt.Fprintf(w, "%-20s %-10s %s\n", check.Name, check.Status, check.Message)
		if check.Error != "" {
			fmt.Fprintf(w, "%-20s %-10s error: %s\n", "", "", check.Error)
		}
	}
}

func openClient(cmd *cobra.Command, opts *cliOptions) (*sagaflow.Client, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}

	client, err := sagaflow.NewClient(cmd.Context(), cfg, sagaflow.WithLogger(newLogger(cmd.ErrOrStderr(), opts.verbose)))
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}
	return client, nil
}

func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}
