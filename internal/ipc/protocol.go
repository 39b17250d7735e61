// Package ipc serves a fixed reply over a unix-domain socket, one client at a time.
//
// The exchange has no framing: a client writes any UTF-8 text, closes its
// write half, and reads until EOF. Every request gets Response back.
package ipc

import (
	"errors"
	"io/fs"
)

// Response is a placeholder reply. The request is never parsed and no
// tuning protocol exists behind it.
const Response = "work_mem = 64MB"

const (
	DefaultSocketPath             = "/tmp/.s.pgtuna"
	DefaultSocketMode fs.FileMode = 0o700
)

var (
	ErrInvalidEncoding = errors.New("request is not valid UTF-8")
	ErrReadFailed      = errors.New("read request")
	ErrWriteFailed     = errors.New("write response")
	ErrAcceptFailed    = errors.New("accept connection")

	// ErrPathOccupied means a non-socket object sits at the socket path.
	ErrPathOccupied   = errors.New("socket path occupied")
	ErrAlreadyRunning = errors.New("pgtuna server already running")
	// ErrWouldBlock is returned by a non-blocking listener with no pending client.
	ErrWouldBlock = errors.New("no pending connection")
)
