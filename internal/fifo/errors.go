package fifo

import "errors"

var (
	// ErrCreateExhausted means the pipe was still missing after every create-then-open attempt.
	ErrCreateExhausted = errors.New("named pipe still missing after creation attempts")
	ErrOpenFailed      = errors.New("open named pipe")
	ErrCreateFailed    = errors.New("create named pipe")
	// ErrNotFIFO means the path opened fine but holds some other kind of object.
	ErrNotFIFO     = errors.New("not a named pipe")
	ErrShortWrite  = errors.New("short write to named pipe")
	ErrWriteFailed = errors.New("write to named pipe")
)
