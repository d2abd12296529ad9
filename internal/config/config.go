// Package config loads client settings. Later sources win: built-in
// defaults, the YAML file, .env, then MM_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/DoyleJ11/matchmaking-client/internal/matchmaking"
	"github.com/DoyleJ11/matchmaking-client/internal/ping"
	"github.com/DoyleJ11/matchmaking-client/internal/types"
)

var ErrInvalid = errors.New("invalid config")

type Config struct {
	SteamID       uint64 `yaml:"steam_id"`
	ClientVersion uint32 `yaml:"client_version"`
	BackendURL    string `yaml:"backend_url"`
	ListenAddr    string `yaml:"listen_addr"`

	TickInterval     time.Duration `yaml:"tick_interval"`
	RequestTimeout   time.Duration `yaml:"request_timeout"`
	PartyUpdateDelay time.Duration `yaml:"party_update_delay"`
	InviteTimeout    time.Duration `yaml:"invite_timeout"`
	SessionTimeout   time.Duration `yaml:"session_timeout"`
	PingInterval     time.Duration `yaml:"ping_interval"`
	PingNotifyEvery  time.Duration `yaml:"ping_notify_every"`

	AllowMatchmakingInGame bool   `yaml:"allow_matchmaking_in_game"`
	CriteriaFile           string `yaml:"criteria_file"`
	HistoryDSN             string `yaml:"history_dsn"`
	LogLevel               string `yaml:"log_level"`
	Development            bool   `yaml:"development"`

	POPs          map[string]ping.Target `yaml:"pops"`
	PingOverrides map[string]int         `yaml:"ping_overrides"` // milliseconds
}

func Default() Config {
	return Config{
		ClientVersion:    1,
		BackendURL:       "ws://127.0.0.1:27100/ws",
		ListenAddr:       "127.0.0.1:8080",
		TickInterval:     100 * time.Millisecond,
		RequestTimeout:   10 * time.Second,
		PartyUpdateDelay: 2 * time.Second,
		InviteTimeout:    30 * time.Second,
		SessionTimeout:   10 * time.Second,
		PingInterval:     180 * time.Second,
		PingNotifyEvery:  30 * time.Second,
		CriteriaFile:     "casual_criteria.yaml",
		LogLevel:         "info",
	}
}

// Load builds the configuration and validates it. path may be empty.
func Load(path string) (Config, error) {
	// .env never overrides variables already set in the process.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	var errs error
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok {
			*dst = v
		}
	}
	parse := func(key string, set func(string) error) {
		v, ok := lookup(key)
		if !ok {
			return
		}
		if err := set(v); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", key, err))
		}
	}
	dur := func(key string, dst *time.Duration) {
		parse(key, func(v string) (err error) {
			*dst, err = time.ParseDuration(v)
			return err
		})
	}
	boolean := func(key string, dst *bool) {
		parse(key, func(v string) (err error) {
			*dst, err = strconv.ParseBool(v)
			return err
		})
	}

	parse("MM_STEAM_ID", func(v string) (err error) {
		c.SteamID, err = strconv.ParseUint(v, 10, 64)
		return err
	})
	parse("MM_CLIENT_VERSION", func(v string) error {
		n, err := strconv.ParseUint(v, 10, 32)
		c.ClientVersion = uint32(n)
		return err
	})
	str("MM_BACKEND_URL", &c.BackendURL)
	str("MM_LISTEN_ADDR", &c.ListenAddr)
	dur("MM_TICK_INTERVAL", &c.TickInterval)
	dur("MM_REQUEST_TIMEOUT", &c.RequestTimeout)
	dur("MM_PARTY_UPDATE_DELAY", &c.PartyUpdateDelay)
	dur("MM_INVITE_TIMEOUT", &c.InviteTimeout)
	dur("MM_SESSION_TIMEOUT", &c.SessionTimeout)
	dur("MM_PING_INTERVAL", &c.PingInterval)
	dur("MM_PING_NOTIFY_EVERY", &c.PingNotifyEvery)
	boolean("MM_ALLOW_MATCHMAKING_IN_GAME", &c.AllowMatchmakingInGame)
	str("MM_CRITERIA_FILE", &c.CriteriaFile)
	str("MM_HISTORY_DSN", &c.HistoryDSN)
	str("MM_LOG_LEVEL", &c.LogLevel)
	boolean("MM_DEVELOPMENT", &c.Development)
	return errs
}

// Validate reports every problem at once.
func (c Config) Validate() error {
	var errs error
	if c.SteamID == 0 {
		errs = multierr.Append(errs, errors.New("steam_id is required"))
	}
	if u, err := url.Parse(c.BackendURL); err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
		errs = multierr.Append(errs, fmt.Errorf("backend_url %q must be a ws:// or wss:// url", c.BackendURL))
	}
	if c.ListenAddr == "" {
		errs = multierr.Append(errs, errors.New("listen_addr is required"))
	}
	for name, d := range map[string]time.Duration{
		"tick_interval":      c.TickInterval,
		"request_timeout":    c.RequestTimeout,
		"party_update_delay": c.PartyUpdateDelay,
		"invite_timeout":     c.InviteTimeout,
		"session_timeout":    c.SessionTimeout,
		"ping_interval":      c.PingInterval,
		"ping_notify_every":  c.PingNotifyEvery,
	} {
		if d <= 0 {
			errs = multierr.Append(errs, fmt.Errorf("%s must be positive", name))
		}
	}
	if _, err := zap.ParseAtomicLevel(c.LogLevel); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("log_level: %w", err))
	}
	for name, t := range c.POPs {
		if t.Direct == "" && t.Relay == "" {
			errs = multierr.Append(errs, fmt.Errorf("pop %q has no address", name))
		}
	}
	for name, ms := range c.PingOverrides {
		if ms <= 0 {
			errs = multierr.Append(errs, fmt.Errorf("ping override for %q must be positive", name))
		}
	}
	if errs != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, errs)
	}
	return nil
}

// Orchestrator converts the settings the matchmaking core needs.
func (c Config) Orchestrator(initial types.SearchCriteria) matchmaking.Config {
	overrides := make(map[string]time.Duration, len(c.PingOverrides))
	for name, ms := range c.PingOverrides {
		overrides[name] = time.Duration(ms) * time.Millisecond
	}
	return matchmaking.Config{
		Self:                   types.SteamID(c.SteamID),
		ClientVersion:          c.ClientVersion,
		RequestTimeout:         c.RequestTimeout,
		PartyUpdateDelay:       c.PartyUpdateDelay,
		InviteTimeout:          c.InviteTimeout,
		SessionTimeout:         c.SessionTimeout,
		PingInterval:           c.PingInterval,
		PingNotifyEvery:        c.PingNotifyEvery,
		PingOverrides:          overrides,
		AllowMatchmakingInGame: c.AllowMatchmakingInGame,
		CriteriaFile:           c.CriteriaFile,
		Initial:                initial,
	}
}

// Logger builds a production logger, or a development one (DPanic panics)
// when Development is set.
func (c Config) Logger() (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if c.Development {
		zc = zap.NewDevelopmentConfig()
	}
	level, err := zap.ParseAtomicLevel(c.LogLevel)
	if err != nil {
		return nil, err
	}
	zc.Level = level
	return zc.Build()
}
