// Package config loads server settings. Sources are layered, later ones
// winning:
//
//	built-in defaults ← YAML file ← .env file ← process environment
//
// The YAML file and the .env file are both optional. godotenv never
// overwrites a variable that is already set, which is what puts the real
// environment above .env.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Backend modes. ModeLocal runs the embedded SQLite backend and is meant
// for development and tests only.
const (
	ModeRemote = "remote"
	ModeLocal  = "local"
)

const minSecretLength = 16

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Backend   BackendConfig   `yaml:"backend"`
	Local     LocalConfig     `yaml:"local"`
	Redis     RedisConfig     `yaml:"redis"`
	Session   SessionConfig   `yaml:"session"`
	Sweep     SweepConfig     `yaml:"sweep"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

type ServerConfig struct {
	Port int `yaml:"port"`
	// SiteURL is the public origin; OAuth redirects come back to it.
	SiteURL string `yaml:"site_url"`
}

type BackendConfig struct {
	Mode    string        `yaml:"mode"` // remote, local
	URL     string        `yaml:"url"`
	AnonKey string        `yaml:"anon_key"`
	Timeout time.Duration `yaml:"timeout"`
}

// LocalConfig configures the embedded SQLite backend (BAAS_MODE=local).
type LocalConfig struct {
	DBPath             string `yaml:"db_path"`
	JWTSecret          string `yaml:"jwt_secret"`
	GitHubClientID     string `yaml:"github_client_id"`
	GitHubClientSecret string `yaml:"github_client_secret"`
	GoogleClientID     string `yaml:"google_client_id"`
	GoogleClientSecret string `yaml:"google_client_secret"`
}

// RedisConfig is optional. With an empty Addr sessions and the membership
// outbox live in process memory.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

func (r RedisConfig) Enabled() bool { return r.Addr != "" }

type SessionConfig struct {
	// IdleTimeout evicts a browser's in-memory store after this long without
	// a request. Its tokens stay in the token store.
	IdleTimeout time.Duration `yaml:"idle_timeout"`
	// TTL bounds how long persisted tokens are kept.
	TTL time.Duration `yaml:"ttl"`
}

type SweepConfig struct {
	Schedule string `yaml:"schedule"` // cron spec, e.g. "@every 1m"
}

type RateLimitConfig struct {
	// Auth is the number of sign-in/sign-up posts allowed per IP per minute.
	Auth int `yaml:"auth"`
}

func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port: 8080,
		},
		Backend: BackendConfig{
			Mode:    ModeRemote,
			Timeout: 10 * time.Second,
		},
		Local: LocalConfig{
			DBPath: "data/hackhub.db",
		},
		Session: SessionConfig{
			IdleTimeout: 30 * time.Minute,
			TTL:         30 * 24 * time.Hour,
		},
		Sweep: SweepConfig{
			Schedule: "@every 1m",
		},
		RateLimit: RateLimitConfig{
			Auth: 10,
		},
	}
}

// Load reads configPath (default "config.yaml") and envPath (default
// ".env"); either may be missing.
func Load(configPath, envPath string) (*Config, error) {
	if configPath == "" {
		configPath = "config.yaml"
	}
	if envPath == "" {
		envPath = ".env"
	}

	cfg := DefaultConfig()

	data, err := os.ReadFile(configPath)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("config: reading %s: %w", configPath, err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parsing %s: %w", configPath, err)
		}
	}

	if err := godotenv.Load(envPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("config: loading %s: %w", envPath, err)
	}

	if err := cfg.overrideFromEnv(); err != nil {
		return nil, err
	}
	if cfg.Server.SiteURL == "" {
		cfg.Server.SiteURL = fmt.Sprintf("http://localhost:%d", cfg.Server.Port)
	}
	cfg.Server.SiteURL = strings.TrimRight(cfg.Server.SiteURL, "/")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) overrideFromEnv() error {
	setString(&c.Backend.Mode, "BAAS_MODE")
	setString(&c.Backend.URL, "BAAS_URL")
	setString(&c.Backend.AnonKey, "BAAS_ANON_KEY")
	setString(&c.Server.SiteURL, "SITE_URL")
	setString(&c.Local.DBPath, "DB_PATH")
	setString(&c.Local.JWTSecret, "JWT_SECRET")
	setString(&c.Local.GitHubClientID, "GITHUB_CLIENT_ID")
	setString(&c.Local.GitHubClientSecret, "GITHUB_CLIENT_SECRET")
	setString(&c.Local.GoogleClientID, "GOOGLE_CLIENT_ID")
	setString(&c.Local.GoogleClientSecret, "GOOGLE_CLIENT_SECRET")
	setString(&c.Redis.Addr, "REDIS_ADDR")
	setString(&c.Redis.Password, "REDIS_PASSWORD")
	setString(&c.Sweep.Schedule, "SWEEP_SCHEDULE")

	if err := setInt(&c.Server.Port, "PORT"); err != nil {
		return err
	}
	if err := setInt(&c.Redis.DB, "REDIS_DB"); err != nil {
		return err
	}
	if err := setInt(&c.RateLimit.Auth, "AUTH_RATE_LIMIT"); err != nil {
		return err
	}
	if err := setDuration(&c.Session.IdleTimeout, "SESSION_IDLE_TIMEOUT"); err != nil {
		return err
	}
	return setDuration(&c.Backend.Timeout, "BAAS_TIMEOUT")
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("config: %s=%q is not an integer", key, v)
	}
	*dst = n
	return nil
}

func setDuration(dst *time.Duration, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("config: %s=%q: %w", key, v, err)
	}
	*dst = d
	return nil
}

// Validate checks the settings the chosen backend mode needs.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("config: port %d out of range", c.Server.Port)
	}
	switch c.Backend.Mode {
	case ModeRemote:
		if c.Backend.URL == "" || c.Backend.AnonKey == "" {
			return errors.New("config: BAAS_URL and BAAS_ANON_KEY are required in remote mode")
		}
	case ModeLocal:
		if len(c.Local.JWTSecret) < minSecretLength {
			return fmt.Errorf("config: JWT_SECRET must be at least %d characters in local mode", minSecretLength)
		}
		if c.Local.DBPath == "" {
			return errors.New("config: DB_PATH is required in local mode")
		}
	default:
		return fmt.Errorf("config: unknown BAAS_MODE %q", c.Backend.Mode)
	}
	if c.RateLimit.Auth < 0 {
		return errors.New("config: AUTH_RATE_LIMIT must not be negative")
	}
	return nil
}
