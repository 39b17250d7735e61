package ipc

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/rbright/pgtuna/internal/fsm"
	"github.com/rbright/pgtuna/internal/telemetry"
)

const (
	// pendingPoll is the pause between accepts on a non-blocking endpoint.
	pendingPoll = 10 * time.Millisecond
	// loggedRequestLimit caps how much of a request reaches the debug log.
	loggedRequestLimit = 64
)

// Endpoint yields accepted connections together with the peer address.
type Endpoint interface {
	AcceptConnection() (net.Conn, net.Addr, error)
}

// Server answers every request with Response.
type Server struct {
	Logger  *slog.Logger
	Metrics *telemetry.Metrics

	state fsm.State
}

// State reports where the serve loop is. It is only meaningful once Serve
// has returned or from the goroutine running it.
func (s *Server) State() fsm.State {
	return s.state
}

// Serve handles clients strictly one after another in accept order. Further
// clients wait in the kernel backlog. The first accept or connection error
// ends the loop; there is no per-connection recovery.
func (s *Server) Serve(endpoint Endpoint) error {
	logger := s.logger()
	s.state = fsm.StateListening

	for {
		conn, addr, err := endpoint.AcceptConnection()
		if errors.Is(err, ErrWouldBlock) {
			time.Sleep(pendingPoll)
			continue
		}
		if err != nil {
			s.advance(logger, fsm.EventFail)
			return fmt.Errorf("%w: %w", ErrAcceptFailed, err)
		}

		connID := uuid.NewString()
		connLogger := logger.With("conn_id", connID)
		connLogger.Info("accepted connection", "peer", peerName(addr))
		s.Metrics.ConnectionAccepted()
		s.advance(connLogger, fsm.EventAccepted)

		step := func(event fsm.Event) { s.advance(connLogger, event) }
		if err := s.handle(conn, connLogger, step); err != nil {
			s.advance(connLogger, fsm.EventFail)
			return fmt.Errorf("connection %s: %w", connID, err)
		}
	}
}

func (s *Server) advance(logger *slog.Logger, event fsm.Event) {
	next, err := fsm.Transition(s.state, event)
	if err != nil {
		logger.Warn("ignored server event", "error", err.Error())
		return
	}
	logger.Debug("server state", "from", s.state, "to", next)
	s.state = next
}

// HandleConnection reads the request to end-of-stream, then writes Response.
// A peer that never closes its write half blocks this call indefinitely.
func (s *Server) HandleConnection(conn io.ReadWriteCloser) error {
	return s.handle(conn, s.logger(), func(fsm.Event) {})
}

func (s *Server) handle(conn io.ReadWriteCloser, logger *slog.Logger, step func(fsm.Event)) error {
	defer conn.Close()

	request, err := io.ReadAll(conn)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrReadFailed, err)
	}
	s.Metrics.RequestRead(len(request))
	if !utf8.Valid(request) {
		return fmt.Errorf("%w: %d bytes", ErrInvalidEncoding, len(request))
	}
	logger.Debug("received request", "bytes", len(request), "message", requestPreview(request))
	step(fsm.EventReceived)

	if _, err := io.WriteString(conn, Response); err != nil {
		return fmt.Errorf("%w: %w", ErrWriteFailed, err)
	}
	s.Metrics.ResponseWritten()
	step(fsm.EventReplied)
	logger.Info("sent response", "bytes", len(Response))
	return nil
}

func (s *Server) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return s.Logger
}

// requestPreview shortens request to loggedRequestLimit bytes without splitting a rune.
func requestPreview(request []byte) string {
	if len(request) <= loggedRequestLimit {
		return string(request)
	}
	cut := loggedRequestLimit
	for cut > 0 && !utf8.RuneStart(request[cut]) {
		cut--
	}
	return string(request[:cut]) + "..."
}

func peerName(addr net.Addr) string {
	if addr == nil {
		return ""
	}
	return addr.String()
}
