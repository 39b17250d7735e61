package ipc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sys/unix"
)

// Builder configures and binds the listening socket.
type Builder struct {
	path         string
	mode         fs.FileMode
	nonblocking  bool
	retries      int
	probeTimeout time.Duration
	logger       *slog.Logger
}

// NewBuilder starts from the well-known path, mode 0700 and blocking accepts.
func NewBuilder() *Builder {
	return &Builder{
		path:         DefaultSocketPath,
		mode:         DefaultSocketMode,
		retries:      2,
		probeTimeout: 200 * time.Millisecond,
	}
}

func (b *Builder) WithPath(path string) *Builder {
	b.path = path
	return b
}

func (b *Builder) WithPermissions(mode fs.FileMode) *Builder {
	b.mode = mode.Perm()
	return b
}

func (b *Builder) Nonblocking(nonblocking bool) *Builder {
	b.nonblocking = nonblocking
	return b
}

// WithRetries bounds how many stale sockets Build clears before giving up.
func (b *Builder) WithRetries(retries int) *Builder {
	b.retries = retries
	return b
}

func (b *Builder) WithProbeTimeout(timeout time.Duration) *Builder {
	b.probeTimeout = timeout
	return b
}

func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// Build binds the socket. A live owner yields ErrAlreadyRunning, a dead one
// is unlinked and the bind retried. Any non-socket object at the path fails
// with ErrPathOccupied and is left untouched.
func (b *Builder) Build(ctx context.Context) (*Listener, error) {
	path := b.path
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("socket path is empty")
	}
	logger := b.logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("ensure socket dir: %w", err)
	}

	for attempt := 0; attempt <= b.retries; attempt++ {
		info, err := os.Lstat(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("stat socket path %s: %w", path, err)
		case info.Mode().Type() != fs.ModeSocket:
			return nil, fmt.Errorf("%w: %s is not a socket (mode %s)", ErrPathOccupied, path, info.Mode())
		default:
			if err := b.clearStale(ctx, path, logger); err != nil {
				return nil, err
			}
		}

		ln, err := net.ListenUnix("unix", &net.UnixAddr{Name: path, Net: "unix"})
		if err == nil {
			if err := os.Chmod(path, b.mode); err != nil {
				_ = ln.Close()
				return nil, fmt.Errorf("chmod socket %s: %w", path, err)
			}
			logger.Info("listening",
				"path", path,
				"mode", fmt.Sprintf("%04o", b.mode),
				"nonblocking", b.nonblocking,
			)
			return &Listener{ln: ln, path: path, nonblocking: b.nonblocking}, nil
		}

		if !errors.Is(err, unix.EADDRINUSE) {
			return nil, fmt.Errorf("listen unix %s: %w", path, err)
		}

		if attempt < b.retries {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(25*(attempt+1)) * time.Millisecond):
			}
		}
	}

	return nil, fmt.Errorf("failed to acquire socket %s after %d retries", path, b.retries)
}

// clearStale removes a socket file nobody answers on.
func (b *Builder) clearStale(ctx context.Context, path string, logger *slog.Logger) error {
	alive, err := Probe(ctx, path, b.probeTimeout)
	if alive {
		return ErrAlreadyRunning
	}
	if err != nil {
		return fmt.Errorf("probe existing socket %s: %w", path, err)
	}

	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove stale socket %s: %w", path, err)
	}
	logger.Warn("removed stale socket", "path", path)
	return nil
}

// Listener is the bound endpoint. It is never rebound.
type Listener struct {
	ln          *net.UnixListener
	path        string
	nonblocking bool
}

func (l *Listener) Path() string {
	return l.path
}

// AcceptConnection returns the next client and its address. In non-blocking
// mode it returns ErrWouldBlock instead of waiting.
func (l *Listener) AcceptConnection() (net.Conn, net.Addr, error) {
	if l.nonblocking {
		return l.acceptPending()
	}

	conn, err := l.ln.AcceptUnix()
	if err != nil {
		return nil, nil, err
	}
	return conn, conn.RemoteAddr(), nil
}

func (l *Listener) acceptPending() (net.Conn, net.Addr, error) {
	raw, err := l.ln.SyscallConn()
	if err != nil {
		return nil, nil, err
	}

	var (
		nfd       int
		acceptErr error
	)
	// the runtime keeps listener fds in O_NONBLOCK, so accept returns EAGAIN when idle
	if err := raw.Control(func(fd uintptr) {
		nfd, _, acceptErr = unix.Accept(int(fd))
	}); err != nil {
		return nil, nil, err
	}
	if acceptErr != nil {
		if errors.Is(acceptErr, unix.EAGAIN) {
			return nil, nil, ErrWouldBlock
		}
		return nil, nil, acceptErr
	}
	unix.CloseOnExec(nfd)

	f := os.NewFile(uintptr(nfd), "pgtuna-conn")
	defer f.Close()
	conn, err := net.FileConn(f)
	if err != nil {
		return nil, nil, fmt.Errorf("wrap accepted fd: %w", err)
	}
	return conn, conn.RemoteAddr(), nil
}

// Close stops accepting and unlinks the socket file.
func (l *Listener) Close() error {
	return l.ln.Close()
}
