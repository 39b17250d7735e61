package config

import (
	"fmt"
	"io/fs"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix namespaces environment overrides, e.g. PGTUNA_SOCKET_PATH.
const EnvPrefix = "pgtuna"

const (
	KeySocketPath        = "socket-path"
	KeySocketMode        = "socket-mode"
	KeySocketNonblocking = "socket-nonblocking"
	KeySocketRetries     = "socket-retries"
	KeyProbeTimeout      = "probe-timeout"
	KeyPipeMode          = "pipe-mode"
	KeyPipeOpenAttempts  = "pipe-open-attempts"
	KeyPipeInterval      = "pipe-interval"
	KeyLogLevel          = "log-level"
	KeyLogFormat         = "log-format"
	KeyLogFile           = "log-file"
	KeyAskTimeout        = "ask-timeout"
)

// Loaded captures the resolved config and its non-fatal warnings.
type Loaded struct {
	Config   Config
	Warnings []Warning
}

// NewViper returns a viper instance seeded with defaults, .env files and
// PGTUNA_* environment variables.
func NewViper() *viper.Viper {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	def := Default()
	v.SetDefault(KeySocketPath, def.Socket.Path)
	v.SetDefault(KeySocketMode, formatMode(def.Socket.Mode))
	v.SetDefault(KeySocketNonblocking, def.Socket.Nonblocking)
	v.SetDefault(KeySocketRetries, def.Socket.Retries)
	v.SetDefault(KeyProbeTimeout, def.Socket.ProbeTimeout)
	v.SetDefault(KeyPipeMode, formatMode(def.Pipe.Mode))
	v.SetDefault(KeyPipeOpenAttempts, def.Pipe.OpenAttempts)
	v.SetDefault(KeyPipeInterval, def.Pipe.Interval)
	v.SetDefault(KeyLogLevel, def.Log.Level)
	v.SetDefault(KeyLogFormat, def.Log.Format)
	v.SetDefault(KeyLogFile, def.Log.File)
	v.SetDefault(KeyAskTimeout, def.AskTimeout)
	return v
}

// RegisterLogFlags adds the logging flags shared by every binary.
func RegisterLogFlags(flags *pflag.FlagSet) {
	def := Default()
	flags.String(KeyLogLevel, def.Log.Level, "log level (debug, info, warn, error)")
	flags.String(KeyLogFormat, def.Log.Format, "log encoding (text, json)")
	flags.String(KeyLogFile, def.Log.File, "log file path; empty logs to stderr, 'state' uses $XDG_STATE_HOME/pgtuna/log.jsonl")
}

// RegisterSocketFlags adds the socket endpoint flags.
func RegisterSocketFlags(flags *pflag.FlagSet) {
	def := Default()
	flags.String(KeySocketPath, def.Socket.Path, "unix socket path")
	flags.String(KeySocketMode, formatMode(def.Socket.Mode), "socket file permissions (octal)")
	flags.Bool(KeySocketNonblocking, def.Socket.Nonblocking, "poll for connections instead of blocking in accept")
	flags.Int(KeySocketRetries, def.Socket.Retries, "stale socket recovery attempts")
	flags.Duration(KeyProbeTimeout, def.Socket.ProbeTimeout, "timeout when probing an existing socket")
}

// RegisterPipeFlags adds the named pipe producer flags.
func RegisterPipeFlags(flags *pflag.FlagSet) {
	def := Default()
	flags.String(KeyPipeMode, formatMode(def.Pipe.Mode), "permissions for a newly created pipe (octal)")
	flags.Int(KeyPipeOpenAttempts, def.Pipe.OpenAttempts, "create-then-open attempts before giving up")
	flags.Duration(KeyPipeInterval, def.Pipe.Interval, "pause between payloads")
}

// Load materializes and validates the configuration held by v.
func Load(v *viper.Viper) (Loaded, error) {
	socketMode, err := parseMode(v.GetString(KeySocketMode))
	if err != nil {
		return Loaded{}, fmt.Errorf("%s: %w", KeySocketMode, err)
	}
	pipeMode, err := parseMode(v.GetString(KeyPipeMode))
	if err != nil {
		return Loaded{}, fmt.Errorf("%s: %w", KeyPipeMode, err)
	}

	cfg := Config{
		Socket: SocketConfig{
			Path:         strings.TrimSpace(v.GetString(KeySocketPath)),
			Mode:         socketMode,
			Nonblocking:  v.GetBool(KeySocketNonblocking),
			Retries:      v.GetInt(KeySocketRetries),
			ProbeTimeout: v.GetDuration(KeyProbeTimeout),
		},
		Pipe: PipeConfig{
			Mode:         pipeMode,
			OpenAttempts: v.GetInt(KeyPipeOpenAttempts),
			Interval:     v.GetDuration(KeyPipeInterval),
		},
		Log: LogConfig{
			Level:  strings.ToLower(strings.TrimSpace(v.GetString(KeyLogLevel))),
			Format: strings.ToLower(strings.TrimSpace(v.GetString(KeyLogFormat))),
			File:   strings.TrimSpace(v.GetString(KeyLogFile)),
		},
		AskTimeout: v.GetDuration(KeyAskTimeout),
	}

	warnings, err := Validate(cfg)
	if err != nil {
		return Loaded{}, err
	}
	return Loaded{Config: cfg, Warnings: warnings}, nil
}

func parseMode(raw string) (fs.FileMode, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, fmt.Errorf("mode must not be empty")
	}
	mode, err := strconv.ParseUint(raw, 8, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid octal mode %q", raw)
	}
	if mode > 0o777 {
		return 0, fmt.Errorf("mode %q has bits outside 0777", raw)
	}
	return fs.FileMode(mode), nil
}

func formatMode(mode fs.FileMode) string {
	return fmt.Sprintf("%04o", uint32(mode.Perm()))
}
