// Package config loads application configuration from environment variables.
package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Store drivers accepted in STORE_DRIVER.
const (
	DriverMySQL  = "mysql"
	DriverMongo  = "mongo"
	DriverMemory = "memory"
)

// Config holds all runtime configuration values.  Each field corresponds to
// an environment variable.
type Config struct {
	Env  string // APP_ENV (dev, test, prod)
	Port string // APP_PORT

	StoreDriver string // STORE_DRIVER
	DBUser      string
	DBPass      string
	DBHost      string
	DBPort      string
	DBName      string
	AutoMigrate bool // apply pending MySQL migrations at startup
	MongoURI    string
	MongoDB     string

	JWTSecret      string
	AccessTTLMin   int
	RefreshTTLDays int
	BcryptCost     int
	AuthStrict     bool // re-check the user on every authenticated request

	CORSOrigins []string
	BodyLimit   string

	AMQPURL       string
	EventsEnabled bool
	EventsQueue   string

	LogLevel  string
	LogFormat string

	RateLimit RateLimitConfig
	Cache     CacheConfig
	Redis     RedisConfig
}

// Load reads a .env file if one exists, then the environment.  Invalid or
// missing required values stop the program.
func Load() Config {
	_ = godotenv.Load()
	cfg, err := Parse(os.LookupEnv)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	return cfg
}

// Parse builds a Config from lookup, which has the signature of
// os.LookupEnv.  All problems are reported together.
func Parse(lookup func(string) (string, bool)) (Config, error) {
	e := &env{lookup: lookup}
	cfg := Config{
		Env:         e.str("APP_ENV", "dev"),
		Port:        e.str("APP_PORT", "8080"),
		StoreDriver: strings.ToLower(e.str("STORE_DRIVER", DriverMySQL)),

		JWTSecret:      e.must("JWT_SECRET"),
		AccessTTLMin:   e.num("ACCESS_TOKEN_TTL_MIN", 15),
		RefreshTTLDays: e.num("REFRESH_TOKEN_TTL_DAYS", 7),
		BcryptCost:     e.num("BCRYPT_COST", 12),
		AuthStrict:     e.flag("AUTH_STRICT", true),

		CORSOrigins: splitList(e.str("CORS_ORIGINS", "*")),
		BodyLimit:   e.str("BODY_LIMIT", "1M"),

		AMQPURL:       e.str("RABBITMQ_URL", e.str("AMQP_URL", "")),
		EventsEnabled: e.flag("EVENTS_ENABLED", false),
		EventsQueue:   e.str("EVENTS_QUEUE", "task-manager.events"),

		LogLevel:  e.str("LOG_LEVEL", "info"),
		LogFormat: e.str("LOG_FORMAT", "text"),

		RateLimit: loadRateLimit(e),
		Cache:     loadCache(e),
		Redis:     loadRedis(e),
	}

	switch cfg.StoreDriver {
	case DriverMySQL:
		cfg.DBUser = e.must("DB_USER")
		cfg.DBPass = e.str("DB_PASS", "")
		cfg.DBHost = e.must("DB_HOST")
		cfg.DBPort = e.str("DB_PORT", "3306")
		cfg.DBName = e.must("DB_NAME")
		cfg.AutoMigrate = e.flag("DB_AUTO_MIGRATE", true)
	case DriverMongo:
		cfg.MongoURI = e.must("MONGO_URI")
		cfg.MongoDB = e.str("MONGO_DB", "task_manager")
	case DriverMemory:
	default:
		e.fail(fmt.Errorf("STORE_DRIVER: unknown driver %q", cfg.StoreDriver))
	}

	if cfg.AccessTTLMin < 1 {
		e.fail(errors.New("ACCESS_TOKEN_TTL_MIN must be positive"))
	}
	if cfg.RefreshTTLDays < 1 {
		e.fail(errors.New("REFRESH_TOKEN_TTL_DAYS must be positive"))
	}
	if cfg.BcryptCost < 4 || cfg.BcryptCost > 31 {
		e.fail(fmt.Errorf("BCRYPT_COST must be between 4 and 31, got %d", cfg.BcryptCost))
	}
	if cfg.EventsEnabled && cfg.AMQPURL == "" {
		e.fail(errors.New("EVENTS_ENABLED requires RABBITMQ_URL"))
	}
	return cfg, errors.Join(e.errs...)
}

// IsProd reports whether the app runs in production.
func (c Config) IsProd() bool { return c.Env == "prod" || c.Env == "production" }

// env reads typed values and remembers every problem it meets.
type env struct {
	lookup func(string) (string, bool)
	errs   []error
}

func (e *env) fail(err error) { e.errs = append(e.errs, err) }

func (e *env) get(k string) (string, bool) {
	v, ok := e.lookup(k)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

// must retrieves a required variable.
func (e *env) must(k string) string {
	v, ok := e.get(k)
	if !ok {
		e.fail(fmt.Errorf("missing required env var: %s", k))
	}
	return v
}

func (e *env) str(k, d string) string {
	if v, ok := e.get(k); ok {
		return v
	}
	return d
}

func (e *env) num(k string, d int) int {
	v, ok := e.get(k)
	if !ok {
		return d
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.fail(fmt.Errorf("invalid int for %s: %q", k, v))
		return d
	}
	return n
}

func (e *env) flag(k string, d bool) bool {
	v, ok := e.get(k)
	if !ok {
		return d
	}
	switch strings.ToLower(v) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	e.fail(fmt.Errorf("invalid bool for %s: %q", k, v))
	return d
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
