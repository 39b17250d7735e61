// Package app wires configuration, logging and the endpoints into the pgtuna commands.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/rbright/pgtuna/internal/config"
	"github.com/rbright/pgtuna/internal/logging"
	"github.com/rbright/pgtuna/internal/telemetry"
)

const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2
)

// Runner holds the process streams. Logger overrides the configured logger when set.
type Runner struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
	Logger *slog.Logger
}

// exitError carries a non-usage failure out of a cobra RunE.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error {
	return e.err
}

// execute runs root and maps its outcome to a process exit code.
func (r Runner) execute(ctx context.Context, root *cobra.Command, args []string) int {
	root.SetArgs(args)
	root.SetIn(r.Stdin)
	root.SetOut(r.Stdout)
	root.SetErr(r.Stderr)
	root.SilenceErrors = true
	root.SilenceUsage = true

	cmd, err := root.ExecuteContextC(ctx)
	if err == nil {
		return exitOK
	}

	var exit *exitError
	if errors.As(err, &exit) {
		if exit.err != nil {
			fmt.Fprintf(r.Stderr, "error: %v\n", exit.err)
		}
		return exit.code
	}

	fmt.Fprintf(r.Stderr, "error: %v\n\n", err)
	fmt.Fprint(r.Stderr, cmd.UsageString())
	return exitUsage
}

// session is the per-command runtime: resolved config, logger and counters.
type session struct {
	cfg         config.Loaded
	logs        logging.Runtime
	logger      *slog.Logger
	metrics     *telemetry.Metrics
	dumpMetrics bool
	metricsOut  io.Writer
}

func (r Runner) start(cmd *cobra.Command) (*session, error) {
	v := config.NewViper()
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return nil, &exitError{code: exitFailure, err: err}
	}

	loaded, err := config.Load(v)
	if err != nil {
		return nil, &exitError{code: exitFailure, err: fmt.Errorf("config: %w", err)}
	}

	logRuntime, err := logging.New(logging.Options{
		Level:    loaded.Config.Log.Level,
		Format:   loaded.Config.Log.Format,
		File:     loaded.Config.Log.File,
		Fallback: r.Stderr,
	})
	if err != nil {
		return nil, &exitError{code: exitFailure, err: fmt.Errorf("setup logging: %w", err)}
	}

	logger := r.Logger
	if logger == nil {
		logger = logRuntime.Logger
	}

	for _, w := range loaded.Warnings {
		fmt.Fprintf(r.Stderr, "warning: %s\n", w.Message)
		logger.Warn("config warning", "message", w.Message)
	}

	return &session{
		cfg:         loaded,
		logs:        logRuntime,
		logger:      logger,
		metrics:     telemetry.New(),
		dumpMetrics: v.GetBool("metrics"),
		metricsOut:  r.Stderr,
	}, nil
}

// fail logs a terminal error with the final counters and turns it into exit status 1.
func (s *session) fail(err error) error {
	attrs := append([]any{"error", err.Error()}, s.metrics.Snapshot().LogAttrs()...)
	s.logger.Error("stopped", attrs...)
	if s.dumpMetrics {
		s.metrics.WritePrometheus(s.metricsOut)
	}
	return &exitError{code: exitFailure, err: err}
}

func (s *session) close() {
	_ = s.logs.Close()
}

func addMetricsFlag(cmd *cobra.Command) {
	cmd.PersistentFlags().Bool("metrics", false, "print counters in Prometheus text format on exit")
}
