// Package config reads the process configuration from the environment.
// A .env.local or .env file is loaded first when present.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	Presence  PresenceConfig
	History   HistoryConfig
	WebSocket WebSocketConfig
	Log       LogConfig
}

type ServerConfig struct {
	Port int
}

type DatabaseConfig struct {
	URL string
}

type RedisConfig struct {
	URL string
}

type JWTConfig struct {
	Secret string
}

type PresenceConfig struct {
	GracePeriod time.Duration
}

type HistoryConfig struct {
	PageSize    int
	MaxPageSize int
	Location    *time.Location
}

type WebSocketConfig struct {
	AllowedOrigins []string
	MessageRate    float64
	MessageBurst   int
	EventTimeout   time.Duration
}

type LogConfig struct {
	Level  slog.Level
	Format string
}

// Addr is the listen address, e.g. ":8080".
func (c ServerConfig) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Load reads the environment. extraFiles are dotenv files loaded before the
// defaults; variables already set are never overridden.
func Load(extraFiles ...string) (*Config, error) {
	for _, f := range extraFiles {
		if err := godotenv.Load(f); err != nil {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}
	_ = godotenv.Load(".env.local")
	_ = godotenv.Load()

	return FromEnv(os.LookupEnv)
}

// FromEnv builds a Config from lookup without touching dotenv files.
func FromEnv(lookup func(string) (string, bool)) (*Config, error) {
	e := env{lookup: lookup}

	cfg := &Config{
		Server:   ServerConfig{Port: e.int("PORT", 8080)},
		Database: DatabaseConfig{URL: e.required("DATABASE_URL")},
		Redis:    RedisConfig{URL: e.required("REDIS_URL")},
		JWT:      JWTConfig{Secret: e.required("JWT_SECRET")},
		Presence: PresenceConfig{GracePeriod: e.duration("PRESENCE_GRACE_PERIOD", 5*time.Second)},
		History: HistoryConfig{
			PageSize:    e.int("HISTORY_PAGE_SIZE", 30),
			MaxPageSize: e.int("HISTORY_MAX_PAGE_SIZE", 100),
			Location:    e.location("DISPLAY_TIMEZONE", time.UTC),
		},
		WebSocket: WebSocketConfig{
			AllowedOrigins: e.list("WS_ALLOWED_ORIGINS", []string{"*"}),
			MessageRate:    e.float("WS_MESSAGE_RATE", 5),
			MessageBurst:   e.int("WS_MESSAGE_BURST", 10),
			EventTimeout:   e.duration("WS_EVENT_TIMEOUT", 5*time.Second),
		},
		Log: LogConfig{
			Level:  e.level("LOG_LEVEL", slog.LevelInfo),
			Format: e.oneOf("LOG_FORMAT", "json", "json", "text"),
		},
	}

	if cfg.Presence.GracePeriod <= 0 {
		e.fail("PRESENCE_GRACE_PERIOD", errors.New("must be positive"))
	}
	if cfg.WebSocket.EventTimeout <= 0 {
		e.fail("WS_EVENT_TIMEOUT", errors.New("must be positive"))
	}
	if cfg.History.PageSize <= 0 {
		e.fail("HISTORY_PAGE_SIZE", errors.New("must be positive"))
	}
	if cfg.History.MaxPageSize < cfg.History.PageSize {
		e.fail("HISTORY_MAX_PAGE_SIZE", errors.New("must not be below HISTORY_PAGE_SIZE"))
	}

	if err := errors.Join(e.errs...); err != nil {
		return nil, err
	}
	return cfg, nil
}

// env collects every bad key instead of stopping at the first one.
type env struct {
	lookup func(string) (string, bool)
	errs   []error
}

func (e *env) fail(key string, err error) {
	e.errs = append(e.errs, fmt.Errorf("invalid %s: %w", key, err))
}

func (e *env) get(key string) (string, bool) {
	v, ok := e.lookup(key)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

func (e *env) required(key string) string {
	v, ok := e.get(key)
	if !ok {
		e.errs = append(e.errs, fmt.Errorf("%s is required", key))
	}
	return v
}

func (e *env) int(key string, fallback int) int {
	v, ok := e.get(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.fail(key, err)
		return fallback
	}
	return n
}

func (e *env) float(key string, fallback float64) float64 {
	v, ok := e.get(key)
	if !ok {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		e.fail(key, err)
		return fallback
	}
	return f
}

func (e *env) duration(key string, fallback time.Duration) time.Duration {
	v, ok := e.get(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.fail(key, err)
		return fallback
	}
	return d
}

func (e *env) location(key string, fallback *time.Location) *time.Location {
	v, ok := e.get(key)
	if !ok {
		return fallback
	}
	loc, err := time.LoadLocation(v)
	if err != nil {
		e.fail(key, err)
		return fallback
	}
	return loc
}

func (e *env) list(key string, fallback []string) []string {
	v, ok := e.get(key)
	if !ok {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}

func (e *env) level(key string, fallback slog.Level) slog.Level {
	v, ok := e.get(key)
	if !ok {
		return fallback
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(v)); err != nil {
		e.fail(key, err)
		return fallback
	}
	return lvl
}

func (e *env) oneOf(key, fallback string, allowed ...string) string {
	v, ok := e.get(key)
	if !ok {
		return fallback
	}
	v = strings.ToLower(v)
	for _, a := range allowed {
		if v == a {
			return v
		}
	}
	e.fail(key, fmt.Errorf("%q is not one of %s", v, strings.Join(allowed, ", ")))
	return fallback
}
