package config

import (
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	defaultHost      = "localhost"
	defaultPort      = 5900
	defaultTimeout   = 5 * time.Second
	defaultLogLevel  = "info"
	defaultScheduler = "auto"

	// EnvPrefix is prepended to every environment variable, e.g. VNCMCP_HOST.
	EnvPrefix = "VNCMCP"
)

// Configuration keys. Each maps to EnvPrefix + "_" + upper-cased key.
const (
	KeyHost      = "host"
	KeyPort      = "port"
	KeyTimeout   = "timeout"
	KeyUsername  = "username"
	KeyPassword  = "password"
	KeyLogLevel  = "log_level"
	KeyWorkers   = "workers"
	KeyDiagAddr  = "diag_addr"
	KeyDBPath    = "db_path"
	KeyScheduler = "scheduler"
)

// Config holds application configuration.
type Config struct {
	Host      string
	Port      int
	Timeout   time.Duration
	Username  string
	Password  string
	LogLevel  slog.Level
	Workers   int
	DiagAddr  string
	DBPath    string
	Scheduler string
}

// SetDefaults registers defaults on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyHost, defaultHost)
	v.SetDefault(KeyPort, defaultPort)
	v.SetDefault(KeyTimeout, defaultTimeout)
	v.SetDefault(KeyUsername, "")
	v.SetDefault(KeyPassword, "")
	v.SetDefault(KeyLogLevel, defaultLogLevel)
	v.SetDefault(KeyWorkers, 0)
	v.SetDefault(KeyDiagAddr, "")
	v.SetDefault(KeyDBPath, "")
	v.SetDefault(KeyScheduler, defaultScheduler)
}

// NewViper returns a viper instance with defaults registered and environment
// lookup enabled.
func NewViper() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads configuration from v: flags bound to it, then environment
// variables, then an optional config file, then defaults.
func Load(v *viper.Viper) Config {
	return Config{
		Host:      v.GetString(KeyHost),
		Port:      v.GetInt(KeyPort),
		Timeout:   v.GetDuration(KeyTimeout),
		Username:  v.GetString(KeyUsername),
		Password:  v.GetString(KeyPassword),
		LogLevel:  parseLogLevel(v.GetString(KeyLogLevel)),
		Workers:   v.GetInt(KeyWorkers),
		DiagAddr:  v.GetString(KeyDiagAddr),
		DBPath:    v.GetString(KeyDBPath),
		Scheduler: v.GetString(KeyScheduler),
	}
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger creates a structured JSON logger writing to w at the configured level.
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
}
