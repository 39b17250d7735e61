// Package config resolves, validates, and defaults pgtuna runtime settings.
//
// Values come from flags, PGTUNA_* environment variables and optional .env
// files, in that order of precedence. There is no config file.
package config

import (
	"io/fs"
	"time"
)

// Config is the fully materialized runtime configuration.
type Config struct {
	Socket     SocketConfig
	Pipe       PipeConfig
	Log        LogConfig
	AskTimeout time.Duration
}

// SocketConfig controls how the server endpoint is bound.
type SocketConfig struct {
	Path         string
	Mode         fs.FileMode
	Nonblocking  bool
	Retries      int
	ProbeTimeout time.Duration
}

// PipeConfig controls named pipe creation and producer pacing.
type PipeConfig struct {
	Mode         fs.FileMode
	OpenAttempts int
	Interval     time.Duration
}

// LogConfig selects the logger level, encoding and sink.
type LogConfig struct {
	Level  string
	Format string
	File   string
}

// Warning is a non-fatal validation message.
type Warning struct {
	Message string
}
