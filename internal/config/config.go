package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"reviewbot/internal/ratelimiter"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

var ErrMissing = errors.New("required environment variable is not set")

const (
	StateMemory = "memory"
	StateRedis  = "redis"
)

type Config struct {
	BotToken string `validate:"required"`
	// AdminID is the operator's chat id; zero means no operator.
	AdminID  int64
	LogLevel string `validate:"oneof=debug info warn error"`

	DB          DBConfig
	State       StateConfig
	Bot         BotConfig
	Addr        string
	Auth        BasicAuthConfig
	RateLimiter ratelimiter.Config

	BroadcastDelay time.Duration `validate:"gte=0"`
	CloudinaryURL  string
	ProductsFile   string
}

type DBConfig struct {
	Addr        string `validate:"required"`
	MaxConns    int32  `validate:"gte=1"`
	MaxIdleTime string
}

type StateConfig struct {
	Backend  string        `validate:"oneof=memory redis"`
	RedisURL string        `validate:"required_if=Backend redis"`
	TTL      time.Duration `validate:"gt=0"`
}

type BotConfig struct {
	WebhookURL    string `validate:"omitempty,url"`
	WebhookSecret string
	PollTimeout   time.Duration `validate:"gt=0"`
	RetryDelay    time.Duration `validate:"gte=0"`
}

type BasicAuthConfig struct {
	User string
	Pass string
}

// HasAdmin reports whether an operator is configured.
func (c Config) HasAdmin() bool { return c.AdminID != 0 }

// Webhook reports whether updates arrive by webhook instead of long polling.
func (c Config) Webhook() bool { return c.Bot.WebhookURL != "" }

// Load reads .env when present, then the environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	return FromEnv(os.LookupEnv)
}

// FromEnv builds a Config from lookup, which has the os.LookupEnv signature.
func FromEnv(lookup func(string) (string, bool)) (Config, error) {
	e := env{lookup: lookup}

	cfg := Config{
		BotToken: e.str("BOT_TOKEN", ""),
		AdminID:  e.adminID(),
		LogLevel: strings.ToLower(e.str("LOG_LEVEL", "info")),
		DB: DBConfig{
			Addr:        e.str("DATABASE_URL", ""),
			MaxConns:    int32(e.int("DB_MAX_CONNS", 10)),
			MaxIdleTime: e.str("DB_MAX_IDLE_TIME", "15m"),
		},
		State: StateConfig{
			Backend:  strings.ToLower(e.str("STATE_BACKEND", StateMemory)),
			RedisURL: e.str("REDIS_URL", ""),
			TTL:      e.duration("STATE_TTL", 24*time.Hour),
		},
		Bot: BotConfig{
			WebhookURL:    e.str("WEBHOOK_URL", ""),
			WebhookSecret: e.str("WEBHOOK_SECRET", ""),
			PollTimeout:   e.duration("POLL_TIMEOUT", 10*time.Second),
			RetryDelay:    e.duration("RETRY_DELAY", 5*time.Second),
		},
		Addr: e.str("ADDR", ":8080"),
		Auth: BasicAuthConfig{
			User: e.str("AUTH_BASIC_USER", ""),
			Pass: e.str("AUTH_BASIC_PASS", ""),
		},
		RateLimiter: ratelimiter.Config{
			RequestsPerTimeFrame: e.int("RATELIMITER_REQUESTS_COUNT", 20),
			TimeFrame:            5 * time.Second,
			Enabled:              e.bool("RATE_LIMITER_ENABLED", false),
		},
		BroadcastDelay: e.duration("BROADCAST_DELAY", 100*time.Millisecond),
		CloudinaryURL:  e.str("CLOUDINARY_URL", ""),
		ProductsFile:   e.str("PRODUCTS_FILE", ""),
	}

	if cfg.BotToken == "" {
		return Config{}, fmt.Errorf("BOT_TOKEN: %w", ErrMissing)
	}
	if cfg.DB.Addr == "" {
		return Config{}, fmt.Errorf("DATABASE_URL: %w", ErrMissing)
	}
	if len(e.invalid) > 0 {
		return Config{}, fmt.Errorf("invalid values for %s", strings.Join(e.invalid, ", "))
	}

	if err := validator.New(validator.WithRequiredStructEnabled()).Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

type env struct {
	lookup  func(string) (string, bool)
	invalid []string
}

func (e *env) str(key, def string) string {
	if v, ok := e.lookup(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return def
}

func (e *env) int(key string, def int) int {
	v := e.str(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.invalid = append(e.invalid, key)
		return def
	}
	return n
}

func (e *env) bool(key string, def bool) bool {
	v := e.str(key, "")
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.invalid = append(e.invalid, key)
		return def
	}
	return b
}

func (e *env) duration(key string, def time.Duration) time.Duration {
	v := e.str(key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.invalid = append(e.invalid, key)
		return def
	}
	return d
}

// adminID treats an unparsable ADMIN_ID the same as an absent one.
func (e *env) adminID() int64 {
	v := e.str("ADMIN_ID", "")
	if v == "" {
		return 0
	}
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0
	}
	return id
}
