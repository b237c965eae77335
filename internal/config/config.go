// Package config carrega a configuração do coordenador.
//
// Ordem de precedência: defaults -> arquivo YAML (opcional) -> variáveis de ambiente.
// As chaves do YAML seguem os nomes das opções (rateLimit.maxRequests,
// rateLimit.windowSeconds, ticket.ttlSeconds, ...).
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type LogConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

type RateStatsConfig struct {
	Enabled       bool          `yaml:"enabled"`
	RedisAddr     string        `yaml:"redisAddr"`
	RedisPassword string        `yaml:"redisPassword"`
	RedisDB       int           `yaml:"redisDB"`
	Prefix        string        `yaml:"prefix"`
	TTL           time.Duration `yaml:"ttl"`
	Bucket        string        `yaml:"bucket"` // minute | none
	TrackKeys     bool          `yaml:"trackKeys"`
}

type RateLimitConfig struct {
	Enabled            bool            `yaml:"enabled"`
	MaxRequests        int             `yaml:"maxRequests"`
	WindowSeconds      int             `yaml:"windowSeconds"`
	Algorithm          string          `yaml:"algorithm"` // "window" (padrão) ou "bucket"
	CleanupEvery       time.Duration   `yaml:"cleanupEvery"`
	TrustXForwardedFor bool            `yaml:"trustXForwardedFor"`
	Stats              RateStatsConfig `yaml:"stats"`
}

// Window devolve a janela como duração.
func (c RateLimitConfig) Window() time.Duration {
	return time.Duration(c.WindowSeconds) * time.Second
}

type ConcurrencyConfig struct {
	Max     int           `yaml:"max"`
	Timeout time.Duration `yaml:"timeout"`
}

type TicketConfig struct {
	TTLSeconds   int           `yaml:"ttlSeconds"`
	CleanupEvery time.Duration `yaml:"cleanupEvery"`
}

func (c TicketConfig) TTL() time.Duration {
	return time.Duration(c.TTLSeconds) * time.Second
}

type AuthConfig struct {
	JWTSecret string `yaml:"jwtSecret"`
	Issuer    string `yaml:"issuer"`
}

type ReconcileConfig struct {
	SourceURL   string        `yaml:"sourceURL"`
	Timeout     time.Duration `yaml:"timeout"`
	RefuseEmpty bool          `yaml:"refuseEmpty"`
}

type StoreConfig struct {
	Driver string `yaml:"driver"` // sqlite | postgres | memory
	Path   string `yaml:"path"`
	DSN    string `yaml:"dsn"`
}

type NotifyConfig struct {
	RedisAddr string `yaml:"redisAddr"`
	Channel   string `yaml:"channel"`
}

type Config struct {
	ListenAddr  string            `yaml:"listenAddr"`
	Log         LogConfig         `yaml:"log"`
	RateLimit   RateLimitConfig   `yaml:"rateLimit"`
	Concurrency ConcurrencyConfig `yaml:"concurrency"`
	Ticket      TicketConfig      `yaml:"ticket"`
	Auth        AuthConfig        `yaml:"auth"`
	Reconcile   ReconcileConfig   `yaml:"reconcile"`
	Store       StoreConfig       `yaml:"store"`
	Notify      NotifyConfig      `yaml:"notify"`
}

// Default devolve a configuração padrão (10 req / 60s, ticket 30s).
func Default() Config {
	return Config{
		ListenAddr: ":8080",
		Log:        LogConfig{Level: "info"},
		RateLimit: RateLimitConfig{
			Enabled:       true,
			MaxRequests:   10,
			WindowSeconds: 60,
			Algorithm:     "window",
			CleanupEvery:  time.Minute,
			Stats: RateStatsConfig{
				Prefix: "ratelimit:stats",
				TTL:    24 * time.Hour,
				Bucket: "minute",
			},
		},
		Concurrency: ConcurrencyConfig{Max: 100},
		Ticket: TicketConfig{
			TTLSeconds:   30,
			CleanupEvery: 30 * time.Second,
		},
		Reconcile: ReconcileConfig{
			SourceURL: "https://aberto.sesp.mt.gov.br/api-regionais",
			Timeout:   10 * time.Second,
		},
		Store: StoreConfig{
			Driver: "sqlite",
			Path:   "./data/coordinator.db",
		},
		Notify: NotifyConfig{Channel: "coordinator:notify"},
	}
}

// Load aplica defaults, lê o YAML em path (se não vazio), aplica o ambiente e valida.
func Load(path string) (Config, error) {
	c := Default()
	if strings.TrimSpace(path) != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, &c); err != nil {
			return Config{}, fmt.Errorf("parse config: %w", err)
		}
	}
	applyEnv(&c)
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func applyEnv(c *Config) {
	c.ListenAddr = getenvDefault("LISTEN_ADDR", c.ListenAddr)
	c.Log.Level = getenvDefault("LOG_LEVEL", c.Log.Level)
	c.Log.JSON = getenvBoolDefault("LOG_JSON", c.Log.JSON)

	c.RateLimit.Enabled = getenvBoolDefault("RATE_ENABLED", c.RateLimit.Enabled)
	c.RateLimit.MaxRequests = getenvIntDefault("RATE_LIMIT_MAX_REQUESTS", c.RateLimit.MaxRequests)
	c.RateLimit.WindowSeconds = getenvIntDefault("RATE_LIMIT_WINDOW_SECONDS", c.RateLimit.WindowSeconds)
	c.RateLimit.Algorithm = strings.ToLower(getenvDefault("RATE_ALGORITHM", c.RateLimit.Algorithm))
	c.RateLimit.CleanupEvery = getenvDurationDefault("RATE_CLEANUP_EVERY", c.RateLimit.CleanupEvery)
	c.RateLimit.TrustXForwardedFor = getenvBoolDefault("TRUST_XFF", c.RateLimit.TrustXForwardedFor)

	c.RateLimit.Stats.Enabled = getenvBoolDefault("RATE_STATS_ENABLED", c.RateLimit.Stats.Enabled)
	c.RateLimit.Stats.RedisAddr = getenvDefault("RATE_STATS_REDIS_ADDR", c.RateLimit.Stats.RedisAddr)
	c.RateLimit.Stats.RedisPassword = getenvDefault("RATE_STATS_REDIS_PASSWORD", c.RateLimit.Stats.RedisPassword)
	c.RateLimit.Stats.RedisDB = getenvIntDefault("RATE_STATS_REDIS_DB", c.RateLimit.Stats.RedisDB)
	c.RateLimit.Stats.Prefix = getenvDefault("RATE_STATS_PREFIX", c.RateLimit.Stats.Prefix)
	c.RateLimit.Stats.TTL = getenvDurationDefault("RATE_STATS_TTL", c.RateLimit.Stats.TTL)
	c.RateLimit.Stats.Bucket = strings.ToLower(getenvDefault("RATE_STATS_BUCKET", c.RateLimit.Stats.Bucket))
	c.RateLimit.Stats.TrackKeys = getenvBoolDefault("RATE_STATS_TRACK_KEYS", c.RateLimit.Stats.TrackKeys)

	c.Concurrency.Max = getenvIntDefault("CONCURRENCY_MAX", c.Concurrency.Max)
	c.Concurrency.Timeout = getenvDurationDefault("CONCURRENCY_TIMEOUT", c.Concurrency.Timeout)

	c.Ticket.TTLSeconds = getenvIntDefault("TICKET_TTL_SECONDS", c.Ticket.TTLSeconds)
	c.Ticket.CleanupEvery = getenvDurationDefault("TICKET_CLEANUP_EVERY", c.Ticket.CleanupEvery)

	c.Auth.JWTSecret = getenvDefault("JWT_SECRET", c.Auth.JWTSecret)
	c.Auth.Issuer = getenvDefault("JWT_ISSUER", c.Auth.Issuer)

	c.Reconcile.SourceURL = getenvDefault("REGIONAIS_API_URL", c.Reconcile.SourceURL)
	c.Reconcile.Timeout = getenvDurationDefault("REGIONAIS_TIMEOUT", c.Reconcile.Timeout)
	c.Reconcile.RefuseEmpty = getenvBoolDefault("RECONCILE_REFUSE_EMPTY", c.Reconcile.RefuseEmpty)

	c.Store.Driver = strings.ToLower(getenvDefault("STORE_DRIVER", c.Store.Driver))
	c.Store.Path = getenvDefault("STORE_PATH", c.Store.Path)
	c.Store.DSN = getenvDefault("STORE_DSN", c.Store.DSN)

	c.Notify.RedisAddr = getenvDefault("NOTIFY_REDIS_ADDR", c.Notify.RedisAddr)
	c.Notify.Channel = getenvDefault("NOTIFY_CHANNEL", c.Notify.Channel)
}

// Validate não altera a configuração.
func (c Config) Validate() error {
	if strings.TrimSpace(c.ListenAddr) == "" {
		return errors.New("listenAddr is required")
	}
	if c.RateLimit.MaxRequests <= 0 {
		return errors.New("rateLimit.maxRequests must be > 0")
	}
	if c.RateLimit.WindowSeconds <= 0 {
		return errors.New("rateLimit.windowSeconds must be > 0")
	}
	switch c.RateLimit.Algorithm {
	case "window", "bucket":
	default:
		return fmt.Errorf("rateLimit.algorithm must be window or bucket, got %q", c.RateLimit.Algorithm)
	}
	if c.RateLimit.Stats.Enabled && strings.TrimSpace(c.RateLimit.Stats.RedisAddr) == "" {
		return errors.New("rateLimit.stats.redisAddr is required when stats are enabled")
	}
	if c.Concurrency.Max < 0 {
		return errors.New("concurrency.max must be >= 0")
	}
	if c.Ticket.TTLSeconds <= 0 {
		return errors.New("ticket.ttlSeconds must be > 0")
	}
	switch c.Store.Driver {
	case "sqlite":
		if strings.TrimSpace(c.Store.Path) == "" {
			return errors.New("store.path is required for sqlite")
		}
	case "postgres":
		if strings.TrimSpace(c.Store.DSN) == "" {
			return errors.New("store.dsn is required for postgres")
		}
	case "memory":
	default:
		return fmt.Errorf("store.driver must be sqlite, postgres or memory, got %q", c.Store.Driver)
	}
	if c.Reconcile.Timeout < 0 {
		return errors.New("reconcile.timeout must be >= 0")
	}
	return nil
}

func getenvDefault(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

func getenvIntDefault(k string, def int) int {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return def
	}
	return i
}

func getenvBoolDefault(k string, def bool) bool {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return def
	}
	return b
}

func getenvDurationDefault(k string, def time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil {
		return def
	}
	return d
}
