package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	BackendRedis  = "redis"
	BackendTables = "tables"

	CacheFile  = "file"
	CacheRedis = "redis"
)

// Config is the runtime configuration shared by the binaries.
type Config struct {
	Debug bool

	// Remote task store.
	Backend          string
	StorageConnStr   string
	TasksTable       string
	RedisConnStr     string
	StoreClock       string
	FeedIdle         time.Duration
	ResubscribeDelay time.Duration

	// Local cache.
	CacheBackend      string
	CacheDir          string
	CacheKey          string
	CacheRedisConnStr string

	// Orchestrator variant.
	UseIdentityScope    bool
	EnableLocalFallback bool

	// Identity.
	IdentityURL     string
	IdentityToken   string
	IdentityTimeout time.Duration
	SessionSecret   string
	SessionAudience string
	SessionIssuer   string
	Auth0Domain     string
	Auth0Audience   string

	NotificationQueue string

	Port string
}

// Lookup reads one variable, reporting whether it is set.
type Lookup func(key string) (string, bool)

// Load reads .env when present and then the process environment.
func Load() (Config, error) {
	_ = godotenv.Load()
	return FromEnv(os.LookupEnv)
}

// FromEnv builds a Config from lookup. Invalid values are errors.
func FromEnv(lookup Lookup) (Config, error) {
	r := reader{lookup: lookup}
	cfg := Config{
		Debug:               r.flag("DEBUG", false),
		Backend:             strings.ToLower(r.str("TASKS_BACKEND", BackendRedis)),
		StorageConnStr:      r.str("STORAGE_CONNECTION_STRING", ""),
		TasksTable:          r.str("TASKS_TABLE", "tasks"),
		RedisConnStr:        r.str("REDIS_CONNECTION_STRING", ""),
		FeedIdle:            r.duration("FEED_IDLE", 30*time.Second),
		ResubscribeDelay:    r.duration("RESUBSCRIBE_DELAY", 2*time.Second),
		CacheBackend:        strings.ToLower(r.str("CACHE_BACKEND", CacheFile)),
		CacheDir:            r.str("CACHE_DIR", defaultCacheDir()),
		CacheKey:            r.str("CACHE_KEY", "todos_offline"),
		UseIdentityScope:    r.flag("USE_IDENTITY_SCOPE", false),
		EnableLocalFallback: r.flag("ENABLE_LOCAL_FALLBACK", true),
		IdentityURL:         r.str("IDENTITY_URL", ""),
		IdentityToken:       r.str("IDENTITY_TOKEN", ""),
		IdentityTimeout:     r.duration("IDENTITY_TIMEOUT", 10*time.Second),
		SessionSecret:       r.str("SESSION_SECRET", ""),
		SessionAudience:     r.str("SESSION_AUDIENCE", "tasksync"),
		SessionIssuer:       r.str("SESSION_ISSUER", "tasksync"),
		Auth0Domain:         r.str("AUTH0_DOMAIN", ""),
		Auth0Audience:       r.str("AUTH0_AUDIENCE", ""),
		NotificationQueue:   r.str("NOTIFICATION_QUEUE", ""),
		Port:                r.str("TASKSYNC_PORT", "8080"),
	}
	cfg.CacheRedisConnStr = r.str("CACHE_REDIS_CONNECTION_STRING", cfg.RedisConnStr)
	defaultClock := "local"
	if cfg.RedisConnStr != "" {
		defaultClock = "redis"
	}
	cfg.StoreClock = strings.ToLower(r.str("STORE_CLOCK", defaultClock))
	if len(r.errs) > 0 {
		return Config{}, errors.Join(r.errs...)
	}
	return cfg, cfg.Validate()
}

// Validate checks that every selected component has what it needs.
func (c Config) Validate() error {
	var errs []error
	switch c.Backend {
	case BackendRedis:
		if c.RedisConnStr == "" {
			errs = append(errs, errors.New("REDIS_CONNECTION_STRING is required for the redis backend"))
		}
	case BackendTables:
		if c.StorageConnStr == "" || c.TasksTable == "" {
			errs = append(errs, errors.New("STORAGE_CONNECTION_STRING and TASKS_TABLE are required for the tables backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown TASKS_BACKEND %q", c.Backend))
	}
	switch c.StoreClock {
	case "local":
	case "redis":
		if c.RedisConnStr == "" {
			errs = append(errs, errors.New("STORE_CLOCK=redis requires REDIS_CONNECTION_STRING"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown STORE_CLOCK %q", c.StoreClock))
	}
	switch c.CacheBackend {
	case CacheFile:
		if c.CacheDir == "" {
			errs = append(errs, errors.New("CACHE_DIR is required for the file cache"))
		}
	case CacheRedis:
		if c.CacheRedisConnStr == "" {
			errs = append(errs, errors.New("CACHE_REDIS_CONNECTION_STRING is required for the redis cache"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown CACHE_BACKEND %q", c.CacheBackend))
	}
	if c.UseIdentityScope && c.IdentityURL == "" && c.IdentityToken == "" {
		errs = append(errs, errors.New("USE_IDENTITY_SCOPE requires IDENTITY_URL or IDENTITY_TOKEN"))
	}
	if c.Auth0Domain != "" && c.Auth0Audience == "" {
		errs = append(errs, errors.New("AUTH0_DOMAIN requires AUTH0_AUDIENCE"))
	}
	if c.NotificationQueue != "" && c.StorageConnStr == "" {
		errs = append(errs, errors.New("NOTIFICATION_QUEUE requires STORAGE_CONNECTION_STRING"))
	}
	if c.Port == "" {
		errs = append(errs, errors.New("TASKSYNC_PORT is empty"))
	}
	return errors.Join(errs...)
}

// ListenAddr is the daemon listen address.
func (c Config) ListenAddr() string { return ":" + c.Port }

// JWKSURL is the Auth0 key set location, empty without a domain.
func (c Config) JWKSURL() string {
	if c.Auth0Domain == "" {
		return ""
	}
	return fmt.Sprintf("https://%s/.well-known/jwks.json", c.Auth0Domain)
}

// Auth0Issuer is the expected iss claim of Auth0 tokens.
func (c Config) Auth0Issuer() string {
	if c.Auth0Domain == "" {
		return ""
	}
	return "https://" + c.Auth0Domain + "/"
}

func defaultCacheDir() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return ".tasksync"
	}
	return filepath.Join(dir, "tasksync")
}

type reader struct {
	lookup Lookup
	errs   []error
}

func (r *reader) str(key, def string) string {
	if v, ok := r.lookup(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return def
}

func (r *reader) flag(key string, def bool) bool {
	v := r.str(key, "")
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("invalid %s: %w", key, err))
		return def
	}
	return b
}

func (r *reader) duration(key string, def time.Duration) time.Duration {
	v := r.str(key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("invalid %s: %w", key, err))
		return def
	}
	if d <= 0 {
		r.errs = append(r.errs, fmt.Errorf("invalid %s: must be greater than zero", key))
		return def
	}
	return d
}
