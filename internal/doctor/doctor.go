// Package doctor runs readiness diagnostics for the socket and pipe endpoints.
package doctor

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/rbright/pgtuna/internal/config"
	"github.com/rbright/pgtuna/internal/fifo"
	"github.com/rbright/pgtuna/internal/ipc"
)

// Check is one doctor assertion result.
type Check struct {
	Name    string
	Pass    bool
	Message string
}

// Report is the full doctor output contract.
type Report struct {
	Checks []Check
}

// OK returns true when all checks pass.
func (r Report) OK() bool {
	for _, check := range r.Checks {
		if !check.Pass {
			return false
		}
	}
	return true
}

// String renders the report as user-facing text output.
func (r Report) String() string {
	var b strings.Builder
	for _, check := range r.Checks {
		status := "OK"
		if !check.Pass {
			status = "FAIL"
		}
		b.WriteString(fmt.Sprintf("[%s] %s: %s\n", status, check.Name, check.Message))
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// Run checks the loaded config, the socket path and, when pipePath is set, the pipe path.
func Run(ctx context.Context, loaded config.Loaded, pipePath string) Report {
	checks := []Check{checkConfig(loaded)}
	checks = append(checks, checkSocket(ctx, loaded.Config.Socket))
	if strings.TrimSpace(pipePath) != "" {
		checks = append(checks, checkPipe(pipePath, loaded.Config.Pipe.Mode))
	}
	return Report{Checks: checks}
}

func checkConfig(loaded config.Loaded) Check {
	if len(loaded.Warnings) == 0 {
		return Check{Name: "config", Pass: true, Message: "valid"}
	}
	msgs := make([]string, 0, len(loaded.Warnings))
	for _, w := range loaded.Warnings {
		msgs = append(msgs, w.Message)
	}
	return Check{Name: "config", Pass: true, Message: "valid with warnings: " + strings.Join(msgs, "; ")}
}

// checkSocket reports whether the server could bind its socket path right now.
func checkSocket(ctx context.Context, cfg config.SocketConfig) Check {
	const name = "socket"

	info, err := os.Lstat(cfg.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return Check{Name: name, Pass: true, Message: fmt.Sprintf("%s is free", cfg.Path)}
	}
	if err != nil {
		return Check{Name: name, Pass: false, Message: err.Error()}
	}
	if info.Mode().Type() != fs.ModeSocket {
		return Check{Name: name, Pass: false, Message: fmt.Sprintf("%s is occupied by a %s", cfg.Path, fifo.DescribeType(info.Mode()))}
	}

	alive, err := ipc.Probe(ctx, cfg.Path, cfg.ProbeTimeout)
	switch {
	case alive:
		return Check{Name: name, Pass: true, Message: fmt.Sprintf("server answering on %s", cfg.Path)}
	case err != nil:
		return Check{Name: name, Pass: false, Message: fmt.Sprintf("socket %s did not answer: %v", cfg.Path, err)}
	default:
		return Check{Name: name, Pass: true, Message: fmt.Sprintf("stale socket at %s will be replaced on start", cfg.Path)}
	}
}

// checkPipe reports whether path can serve as the producer's named pipe.
func checkPipe(path string, mode fs.FileMode) Check {
	const name = "pipe"

	info, err := os.Lstat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Check{Name: name, Pass: true, Message: fmt.Sprintf("%s will be created with mode %04o", path, uint32(mode))}
	}
	if err != nil {
		return Check{Name: name, Pass: false, Message: err.Error()}
	}
	if info.Mode().Type() != fs.ModeNamedPipe {
		return Check{Name: name, Pass: false, Message: fmt.Sprintf("%s is a %s, not a named pipe", path, fifo.DescribeType(info.Mode()))}
	}
	return Check{Name: name, Pass: true, Message: fmt.Sprintf("named pipe at %s (mode %04o)", path, uint32(info.Mode().Perm()))}
}
