package config

import (
	"fmt"
	"strings"
)

var (
	validLevels  = map[string]struct{}{"debug": {}, "info": {}, "warn": {}, "error": {}}
	validFormats = map[string]struct{}{"text": {}, "json": {}}
)

// Validate enforces config invariants and returns non-fatal warnings.
func Validate(cfg Config) ([]Warning, error) {
	warnings := make([]Warning, 0)

	if strings.TrimSpace(cfg.Socket.Path) == "" {
		return nil, fmt.Errorf("socket-path must not be empty")
	}
	if cfg.Socket.Mode.Perm() != cfg.Socket.Mode {
		return nil, fmt.Errorf("socket-mode must only hold permission bits")
	}
	if cfg.Socket.Retries < 0 {
		return nil, fmt.Errorf("socket-retries must be >= 0")
	}
	if cfg.Socket.ProbeTimeout <= 0 {
		return nil, fmt.Errorf("probe-timeout must be > 0")
	}
	if cfg.Pipe.Mode.Perm() != cfg.Pipe.Mode {
		return nil, fmt.Errorf("pipe-mode must only hold permission bits")
	}
	if cfg.Pipe.Mode == 0 {
		return nil, fmt.Errorf("pipe-mode must not be 0000")
	}
	if cfg.Pipe.OpenAttempts < 1 {
		return nil, fmt.Errorf("pipe-open-attempts must be >= 1")
	}
	if cfg.Pipe.Interval < 0 {
		return nil, fmt.Errorf("pipe-interval must be >= 0")
	}
	if _, ok := validLevels[cfg.Log.Level]; !ok {
		return nil, fmt.Errorf("log-level must be one of: debug, info, warn, error")
	}
	if _, ok := validFormats[cfg.Log.Format]; !ok {
		return nil, fmt.Errorf("log-format must be one of: text, json")
	}
	if cfg.AskTimeout <= 0 {
		return nil, fmt.Errorf("ask-timeout must be > 0")
	}

	if cfg.Pipe.Interval == 0 {
		warnings = append(warnings, Warning{Message: "pipe-interval is 0; the producer writes unthrottled"})
	}
	if cfg.Socket.Mode&0o007 != 0 {
		warnings = append(warnings, Warning{Message: fmt.Sprintf("socket-mode %04o lets any local user connect", uint32(cfg.Socket.Mode))})
	}
	if cfg.Pipe.Mode&0o200 == 0 {
		warnings = append(warnings, Warning{Message: fmt.Sprintf("pipe-mode %04o denies the owner write access", uint32(cfg.Pipe.Mode))})
	}

	return warnings, nil
}
