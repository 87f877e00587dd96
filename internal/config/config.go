package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultPort           = "5000"
	DefaultWhisperModel   = "base"
	DefaultWorkDir        = "downloads"
	DefaultStaticDir      = "static"
	DefaultWhisperBinary  = "whisper-cli"
	DefaultModelDir       = "models"
	DefaultFetchTimeout   = 10 * time.Minute
	DefaultAllowedOrigins = "*"
	DefaultEventStream    = "transcriptor:events"
)

// Config holds process settings read from the environment at startup.
type Config struct {
	Port      string
	WorkDir   string
	StaticDir string

	YtDlpPath       string
	WhisperBinary   string
	WhisperModel    string
	WhisperModelDir string

	FetchTimeout      time.Duration
	MaxConcurrentJobs int64

	AllowedOrigins []string
	LogLevel       slog.Level

	// HistoryDB is the DuckDB file for finished job outcomes. Empty disables history.
	HistoryDB string

	// Redis is optional. With an empty RedisAddr no events leave the process.
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	EventStream   string
}

// Load reads the configuration from the process environment.
func Load(logger *slog.Logger) *Config {
	return LoadFrom(logger, os.Getenv)
}

// LoadFrom reads the configuration through getenv. Invalid values fall back
// to their defaults with a warning.
func LoadFrom(logger *slog.Logger, getenv func(string) string) *Config {
	l := loader{logger: logger, getenv: getenv}

	return &Config{
		Port:            l.str("PORT", DefaultPort),
		WorkDir:         l.str("TRANSCRIPTOR_WORKDIR", DefaultWorkDir),
		StaticDir:       l.str("TRANSCRIPTOR_STATIC_DIR", DefaultStaticDir),
		YtDlpPath:       strings.TrimSpace(getenv("YTDLP_PATH")),
		WhisperBinary:   l.str("WHISPER_CPP_PATH", DefaultWhisperBinary),
		WhisperModel:    l.str("WHISPER_MODEL", DefaultWhisperModel),
		WhisperModelDir: l.str("WHISPER_MODEL_DIR", DefaultModelDir),

		FetchTimeout:      l.duration("TRANSCRIPTOR_FETCH_TIMEOUT", DefaultFetchTimeout),
		MaxConcurrentJobs: int64(l.nonNegativeInt("TRANSCRIPTOR_MAX_CONCURRENT_JOBS", 0)),

		AllowedOrigins: splitAndClean(l.str("TRANSCRIPTOR_ALLOWED_ORIGINS", DefaultAllowedOrigins)),
		LogLevel:       l.level("TRANSCRIPTOR_LOG_LEVEL", slog.LevelInfo),

		HistoryDB: strings.TrimSpace(getenv("TRANSCRIPTOR_HISTORY_DB")),

		RedisAddr:     strings.TrimSpace(getenv("REDIS_ADDR")),
		RedisPassword: getenv("REDIS_PASSWORD"),
		RedisDB:       l.nonNegativeInt("REDIS_DB", 0),
		EventStream:   l.str("TRANSCRIPTOR_EVENT_STREAM", DefaultEventStream),
	}
}

// Addr is the HTTP listen address.
func (c *Config) Addr() string {
	return ":" + c.Port
}

type loader struct {
	logger *slog.Logger
	getenv func(string) string
}

func (l loader) str(key, fallback string) string {
	v := strings.TrimSpace(l.getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func (l loader) nonNegativeInt(key string, fallback int) int {
	v := strings.TrimSpace(l.getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		l.logger.Warn("invalid integer setting, using default", "key", key, "value", v, "default", fallback)
		return fallback
	}
	return n
}

func (l loader) duration(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(l.getenv(key))
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		l.logger.Warn("invalid duration setting, using default", "key", key, "value", v, "default", fallback.String())
		return fallback
	}
	return d
}

func (l loader) level(key string, fallback slog.Level) slog.Level {
	v := strings.TrimSpace(l.getenv(key))
	if v == "" {
		return fallback
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(v)); err != nil {
		l.logger.Warn("invalid log level, using default", "key", key, "value", v, "default", fallback.String())
		return fallback
	}
	return lvl
}

// splitAndClean splits a comma-separated list and trims spaces; empty entries are removed
func splitAndClean(csv string) []string {
	var out []string
	for _, p := range strings.Split(csv, ",") {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	if len(out) == 0 {
		return []string{DefaultAllowedOrigins}
	}
	return out
}
