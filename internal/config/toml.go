// Package config provides configuration helpers and TOML parsing.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Environment variables holding secrets.
const (
	EnvAPIToken      = "ARCADE_API_TOKEN"
	EnvRedisPassword = "ARCADE_REDIS_PASSWORD"
)

// Sync backends.
const (
	SyncNone   = "none"
	SyncRedis  = "redis"
	SyncMemory = "memory"
)

// FileConfig represents the TOML configuration file. Unset fields keep their defaults.
type FileConfig struct {
	Store  StoreConfig  `toml:"store"`
	API    APIConfig    `toml:"api"`
	Sync   SyncConfig   `toml:"sync"`
	Course CourseConfig `toml:"course"`
	Gates  GatesConfig  `toml:"gates"`
	Log    LogConfig    `toml:"log"`
	Server ServerConfig `toml:"server"`
	Watch  WatchConfig  `toml:"watch"`
}

// StoreConfig maps local storage settings.
type StoreConfig struct {
	Driver *string `toml:"driver"`
	DSN    *string `toml:"dsn"`
}

// APIConfig maps lesson API settings.
type APIConfig struct {
	URL      *string `toml:"url"`
	Timeout  *string `toml:"timeout"`
	TokenEnv *string `toml:"token_env"`
}

// SyncConfig maps remote sync settings.
type SyncConfig struct {
	Backend      *string `toml:"backend"`
	RedisAddr    *string `toml:"redis_addr"`
	RedisPrefix  *string `toml:"redis_prefix"`
	ReadAttempts *int    `toml:"read_attempts"`
	ReadBackoff  *string `toml:"read_backoff"`
}

// CourseConfig maps course settings.
type CourseConfig struct {
	Required *int    `toml:"required"`
	Mode     *string `toml:"mode"`
}

// GatesConfig maps room unlock thresholds.
type GatesConfig struct {
	SpeakingModules  *int `toml:"speaking_modules"`
	ArcadeVocabulary *int `toml:"arcade_vocabulary"`
	LibraryGrammar   *int `toml:"library_grammar"`
}

// LogConfig maps logger settings.
type LogConfig struct {
	Mode  *string `toml:"mode"`
	Level *string `toml:"level"`
}

// ServerConfig maps HTTP facade settings.
type ServerConfig struct {
	Addr           *string  `toml:"addr"`
	AllowedOrigins []string `toml:"allowed_origins"`
}

// WatchConfig maps background job settings.
type WatchConfig struct {
	PullEvery *string `toml:"pull_every"`
}

// Config is the resolved configuration with defaults applied.
type Config struct {
	StoreDriver string
	StoreDSN    string

	APIURL     string
	APITimeout time.Duration
	APIToken   string

	SyncBackend      string
	RedisAddr        string
	RedisPrefix      string
	RedisPassword    string
	SyncReadAttempts int
	SyncReadBackoff  time.Duration

	Required int
	Mode     string

	GateSpeakingModules  int
	GateArcadeVocabulary int
	GateLibraryGrammar   int

	LogMode  string
	LogLevel string

	ServerAddr     string
	AllowedOrigins []string

	PullEvery time.Duration
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		StoreDriver:          "sqlite",
		StoreDSN:             DefaultDBPath(),
		APITimeout:           30 * time.Second,
		SyncBackend:          SyncNone,
		RedisAddr:            "localhost:6379",
		RedisPrefix:          "arcade:user:",
		SyncReadAttempts:     3,
		SyncReadBackoff:      time.Second,
		Required:             10,
		Mode:                 "course",
		GateSpeakingModules:  5,
		GateArcadeVocabulary: 2,
		GateLibraryGrammar:   2,
		LogMode:              "dev",
		LogLevel:             "warn",
		ServerAddr:           "127.0.0.1:8787",
		PullEvery:            5 * time.Minute,
	}
}

// LoadConfig reads a TOML config from the given path. Missing file is not an error.
func LoadConfig(path string) (FileConfig, error) {
	if path == "" {
		return FileConfig{}, fmt.Errorf("config path is empty")
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return FileConfig{}, nil
		}
		return FileConfig{}, fmt.Errorf("failed to stat config: %w", err)
	}
	var cfg FileConfig
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return FileConfig{}, fmt.Errorf("failed to decode config: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		return FileConfig{}, fmt.Errorf("unknown config keys: %s", strings.Join(keys, ", "))
	}
	return cfg, nil
}

// Resolve applies the file over the defaults and reads secrets from the environment.
func (f FileConfig) Resolve() (Config, error) {
	cfg := Defaults()
	setString(&cfg.StoreDriver, f.Store.Driver)
	setString(&cfg.StoreDSN, f.Store.DSN)
	setString(&cfg.APIURL, f.API.URL)
	setString(&cfg.SyncBackend, f.Sync.Backend)
	setString(&cfg.RedisAddr, f.Sync.RedisAddr)
	setString(&cfg.RedisPrefix, f.Sync.RedisPrefix)
	setInt(&cfg.SyncReadAttempts, f.Sync.ReadAttempts)
	setInt(&cfg.Required, f.Course.Required)
	setString(&cfg.Mode, f.Course.Mode)
	setInt(&cfg.GateSpeakingModules, f.Gates.SpeakingModules)
	setInt(&cfg.GateArcadeVocabulary, f.Gates.ArcadeVocabulary)
	setInt(&cfg.GateLibraryGrammar, f.Gates.LibraryGrammar)
	setString(&cfg.LogMode, f.Log.Mode)
	setString(&cfg.LogLevel, f.Log.Level)
	setString(&cfg.ServerAddr, f.Server.Addr)
	if f.Server.AllowedOrigins != nil {
		cfg.AllowedOrigins = f.Server.AllowedOrigins
	}

	for _, d := range []struct {
		name string
		src  *string
		dst  *time.Duration
	}{
		{"api.timeout", f.API.Timeout, &cfg.APITimeout},
		{"sync.read_backoff", f.Sync.ReadBackoff, &cfg.SyncReadBackoff},
		{"watch.pull_every", f.Watch.PullEvery, &cfg.PullEvery},
	} {
		if d.src == nil {
			continue
		}
		parsed, err := time.ParseDuration(*d.src)
		if err != nil || parsed <= 0 {
			return Config{}, fmt.Errorf("invalid %s %q (use a positive duration like 30s)", d.name, *d.src)
		}
		*d.dst = parsed
	}

	tokenEnv := EnvAPIToken
	setString(&tokenEnv, f.API.TokenEnv)
	cfg.APIToken = os.Getenv(tokenEnv)
	cfg.RedisPassword = os.Getenv(EnvRedisPassword)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks enumerated settings and ranges.
func (c Config) Validate() error {
	switch c.StoreDriver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("invalid store.driver %q (use sqlite or postgres)", c.StoreDriver)
	}
	switch c.SyncBackend {
	case SyncNone, SyncRedis, SyncMemory:
	default:
		return fmt.Errorf("invalid sync.backend %q (use none, redis, or memory)", c.SyncBackend)
	}
	switch c.Mode {
	case "arcade", "course":
	default:
		return fmt.Errorf("invalid course.mode %q (use arcade or course)", c.Mode)
	}
	if c.Required < 1 {
		return fmt.Errorf("invalid course.required %d (use >= 1)", c.Required)
	}
	if c.SyncReadAttempts < 1 {
		return fmt.Errorf("invalid sync.read_attempts %d (use >= 1)", c.SyncReadAttempts)
	}
	for name, v := range map[string]int{
		"gates.speaking_modules":  c.GateSpeakingModules,
		"gates.arcade_vocabulary": c.GateArcadeVocabulary,
		"gates.library_grammar":   c.GateLibraryGrammar,
	} {
		if v < 0 {
			return fmt.Errorf("invalid %s %d (use >= 0)", name, v)
		}
	}
	return nil
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}

func setInt(dst *int, src *int) {
	if src != nil {
		*dst = *src
	}
}
