// Package fifo opens named pipes for writing and streams payloads into them.
package fifo

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"

	"golang.org/x/sys/unix"
)

const (
	DefaultMode        fs.FileMode = 0o660
	DefaultMaxAttempts             = 3
)

// Opener resolves a path to a write-only named pipe handle.
type Opener struct {
	Mode        fs.FileMode
	MaxAttempts int
	Logger      *slog.Logger

	mkfifo func(path string, mode uint32) error
}

// OpenOrCreate opens path with the default Opener.
func OpenOrCreate(path string) (*os.File, error) {
	return Opener{}.OpenOrCreate(path)
}

// OpenOrCreate opens path for writing, creating a FIFO there when nothing exists yet.
// Every create is followed by another open; MaxAttempts bounds the creates.
// Opening blocks until a reader has the pipe open.
func (o Opener) OpenOrCreate(path string) (*os.File, error) {
	logger := o.logger()
	attempts := o.MaxAttempts
	if attempts <= 0 {
		attempts = DefaultMaxAttempts
	}

	for created := 0; ; created++ {
		f, err := os.OpenFile(path, os.O_WRONLY, 0)
		if err == nil {
			if err := checkFIFO(f, path); err != nil {
				_ = f.Close()
				return nil, err
			}
			logger.Info("opened pipe", "path", path, "creates", created)
			return f, nil
		}

		if errors.Is(err, unix.EISDIR) {
			// a directory cannot be opened for writing, so the type check happens here
			return nil, fmt.Errorf("%w: %s is a %s", ErrNotFIFO, path, DescribeType(fs.ModeDir))
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w %s: %w", ErrOpenFailed, path, err)
		}
		if created == attempts {
			return nil, fmt.Errorf("%w: %s after %d attempts", ErrCreateExhausted, path, attempts)
		}

		logger.Info("creating pipe", "path", path, "mode", fmt.Sprintf("%04o", o.mode()))
		if err := o.create(path); err != nil {
			return nil, err
		}
		logger.Info("created pipe", "path", path)
	}
}

func (o Opener) create(path string) error {
	mkfifo := o.mkfifo
	if mkfifo == nil {
		mkfifo = unix.Mkfifo
	}

	mode := o.mode()
	if err := mkfifo(path, uint32(mode)); err != nil {
		if errors.Is(err, fs.ErrExist) {
			// another writer created it first
			return nil
		}
		return fmt.Errorf("%w %s: %w", ErrCreateFailed, path, err)
	}

	// mkfifo applies the umask. A pipe that vanished again is left to the next open attempt.
	if err := os.Chmod(path, mode); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w %s: chmod: %w", ErrCreateFailed, path, err)
	}
	return nil
}

func (o Opener) mode() fs.FileMode {
	if o.Mode == 0 {
		return DefaultMode
	}
	return o.Mode.Perm()
}

func (o Opener) logger() *slog.Logger {
	if o.Logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return o.Logger
}

// checkFIFO verifies the object behind an open handle is a named pipe.
func checkFIFO(f *os.File, path string) error {
	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("%w %s: stat: %w", ErrOpenFailed, path, err)
	}
	if info.Mode().Type() != fs.ModeNamedPipe {
		return fmt.Errorf("%w: %s is a %s", ErrNotFIFO, path, DescribeType(info.Mode()))
	}
	return nil
}

// DescribeType names the kind of filesystem object a mode describes.
func DescribeType(mode fs.FileMode) string {
	switch mode.Type() {
	case 0:
		return "regular file"
	case fs.ModeDir:
		return "directory"
	case fs.ModeNamedPipe:
		return "named pipe"
	case fs.ModeSocket:
		return "socket"
	case fs.ModeSymlink:
		return "symlink"
	case fs.ModeDevice:
		return "block device"
	case fs.ModeDevice | fs.ModeCharDevice:
		return "character device"
	default:
		return "irregular file"
	}
}
