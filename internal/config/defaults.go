package config

import "time"

// Default returns the canonical runtime configuration used when nothing is set.
func Default() Config {
	return Config{
		Socket: SocketConfig{
			Path:         "/tmp/.s.pgtuna",
			Mode:         0o700,
			Nonblocking:  false,
			Retries:      2,
			ProbeTimeout: 200 * time.Millisecond,
		},
		Pipe: PipeConfig{
			Mode:         0o660,
			OpenAttempts: 3,
			Interval:     500 * time.Millisecond,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
			File:   "",
		},
		AskTimeout: 5 * time.Second,
	}
}
