package fifo

import (
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"time"

	"github.com/rbright/pgtuna/internal/telemetry"
)

const (
	// Terminator ends every payload.
	Terminator byte = 0x0a
	// PayloadSize is one value byte plus the terminator.
	PayloadSize = 2

	DefaultInterval = 500 * time.Millisecond
)

// NewPayload frames one value byte for the wire.
func NewPayload(value byte) [PayloadSize]byte {
	return [PayloadSize]byte{value, Terminator}
}

// Producer emits random newline-terminated bytes into a pipe.
type Producer struct {
	// Interval is the pause after each payload. Zero disables throttling.
	Interval time.Duration
	Logger   *slog.Logger
	Metrics  *telemetry.Metrics

	next  func() byte
	sleep func(time.Duration)
}

// Run writes one payload per iteration until a write fails.
// It has no other exit and never returns nil.
func (p *Producer) Run(w io.Writer) error {
	logger := p.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	next := p.next
	if next == nil {
		next = randomByte
	}
	sleep := p.sleep
	if sleep == nil {
		sleep = time.Sleep
	}

	for {
		payload := NewPayload(next())
		logger.Debug("sending number", "value", payload[0])

		n, err := w.Write(payload[:])
		if err != nil && n == 0 {
			return fmt.Errorf("%w: %w", ErrWriteFailed, err)
		}
		if n != PayloadSize {
			return fmt.Errorf("%w: wrote %d of %d bytes", ErrShortWrite, n, PayloadSize)
		}
		if err != nil {
			return fmt.Errorf("%w: %w", ErrWriteFailed, err)
		}
		p.Metrics.PayloadWritten(n)

		if p.Interval > 0 {
			sleep(p.Interval)
		}
	}
}

func randomByte() byte {
	return byte(rand.Intn(256))
}
