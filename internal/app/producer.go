package app

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/rbright/pgtuna/internal/config"
	"github.com/rbright/pgtuna/internal/fifo"
	"github.com/rbright/pgtuna/internal/version"
)

// ExecuteProducer runs the pipe-producer command line and returns its exit code.
func ExecuteProducer(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	r := Runner{Stdout: stdout, Stderr: stderr}
	return r.ExecuteProducer(ctx, args)
}

func (r Runner) ExecuteProducer(ctx context.Context, args []string) int {
	return r.execute(ctx, r.producerCommand(), args)
}

func (r Runner) producerCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pipe-producer PIPE_PATH",
		Short: "Stream random newline-terminated bytes into a named pipe",
		Long: `pipe-producer opens PIPE_PATH for writing, creating a named pipe there if
nothing exists, and writes one random byte followed by a newline on every
tick until a write fails or the process is killed.`,
		Version: version.String("pipe-producer"),
		Args:    cobra.ExactArgs(1),
		RunE:    r.runProducer,
	}
	cmd.SetVersionTemplate("{{.Version}}\n")
	config.RegisterLogFlags(cmd.Flags())
	config.RegisterPipeFlags(cmd.Flags())
	addMetricsFlag(cmd)
	return cmd
}

func (r Runner) runProducer(cmd *cobra.Command, args []string) error {
	s, err := r.start(cmd)
	if err != nil {
		return err
	}
	defer s.close()

	path := args[0]
	cfg := s.cfg.Config.Pipe
	s.logger.Info("opening pipe", "path", path)

	opener := fifo.Opener{Mode: cfg.Mode, MaxAttempts: cfg.OpenAttempts, Logger: s.logger}
	// the handle lives until the process exits
	pipe, err := opener.OpenOrCreate(path)
	if err != nil {
		return s.fail(fmt.Errorf("could not open pipe for writing: %w", err))
	}

	producer := &fifo.Producer{Interval: cfg.Interval, Logger: s.logger, Metrics: s.metrics}
	return s.fail(producer.Run(pipe))
}
