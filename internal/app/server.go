package app

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rbright/pgtuna/internal/config"
	"github.com/rbright/pgtuna/internal/doctor"
	"github.com/rbright/pgtuna/internal/ipc"
	"github.com/rbright/pgtuna/internal/version"
)

// ExecuteServer runs the pgtuna command line and returns its exit code.
func ExecuteServer(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	r := Runner{Stdin: stdin, Stdout: stdout, Stderr: stderr}
	return r.ExecuteServer(ctx, args)
}

func (r Runner) ExecuteServer(ctx context.Context, args []string) int {
	return r.execute(ctx, r.serverCommand(), args)
}

func (r Runner) serverCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "pgtuna",
		Short: "Answer requests on a unix socket",
		Long: `pgtuna listens on a unix-domain socket and answers every request with a
fixed placeholder line. Clients write any UTF-8 text, close their write side
and read the reply. Connections are served one at a time.

Every flag can also be set as PGTUNA_<FLAG> (e.g. PGTUNA_SOCKET_PATH).`,
		Version: version.String("pgtuna"),
		Args:    cobra.NoArgs,
		RunE:    r.runServe,
	}
	root.SetVersionTemplate("{{.Version}}\n")
	config.RegisterLogFlags(root.PersistentFlags())
	config.RegisterSocketFlags(root.PersistentFlags())
	addMetricsFlag(root)

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Bind the socket and serve clients until a failure",
		Args:  cobra.NoArgs,
		RunE:  r.runServe,
	}

	askCmd := &cobra.Command{
		Use:   "ask [TEXT...]",
		Short: "Send one request and print the reply (reads stdin without TEXT)",
		RunE:  r.runAsk,
	}
	askCmd.Flags().Duration(config.KeyAskTimeout, config.Default().AskTimeout, "roundtrip timeout")

	doctorCmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check configuration and endpoint paths",
		Args:  cobra.NoArgs,
		RunE:  r.runDoctor,
	}
	doctorCmd.Flags().String("pipe", "", "also check this named pipe path")
	config.RegisterPipeFlags(doctorCmd.Flags())

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.String("pgtuna"))
		},
	}

	root.AddCommand(serveCmd, askCmd, doctorCmd, versionCmd)
	return root
}

func (r Runner) runServe(cmd *cobra.Command, _ []string) error {
	s, err := r.start(cmd)
	if err != nil {
		return err
	}
	defer s.close()

	cfg := s.cfg.Config.Socket
	listener, err := ipc.NewBuilder().
		WithPath(cfg.Path).
		WithPermissions(cfg.Mode).
		Nonblocking(cfg.Nonblocking).
		WithRetries(cfg.Retries).
		WithProbeTimeout(cfg.ProbeTimeout).
		WithLogger(s.logger).
		Build(cmd.Context())
	if err != nil {
		return s.fail(fmt.Errorf("could not create the socket: %w", err))
	}
	defer listener.Close()

	s.logger.Info("serving", "path", listener.Path())
	server := &ipc.Server{Logger: s.logger, Metrics: s.metrics}
	return s.fail(server.Serve(listener))
}

func (r Runner) runAsk(cmd *cobra.Command, args []string) error {
	s, err := r.start(cmd)
	if err != nil {
		return err
	}
	defer s.close()

	var request []byte
	if len(args) > 0 {
		request = []byte(strings.Join(args, " "))
	} else {
		request, err = io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return &exitError{code: exitFailure, err: fmt.Errorf("read request: %w", err)}
		}
	}

	resp, err := ipc.Send(cmd.Context(), s.cfg.Config.Socket.Path, request, s.cfg.Config.AskTimeout)
	if err != nil {
		s.logger.Error("ask failed", "path", s.cfg.Config.Socket.Path, "error", err.Error())
		return &exitError{code: exitFailure, err: err}
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(resp))
	return nil
}

func (r Runner) runDoctor(cmd *cobra.Command, _ []string) error {
	s, err := r.start(cmd)
	if err != nil {
		return err
	}
	defer s.close()

	pipePath, _ := cmd.Flags().GetString("pipe")
	report := doctor.Run(cmd.Context(), s.cfg, pipePath)
	fmt.Fprintln(cmd.OutOrStdout(), report.String())
	if !report.OK() {
		return &exitError{code: exitFailure}
	}
	return nil
}
