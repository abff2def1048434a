package app

import (
	"errors"
	"fmt"

	"github.com/MicahParks/keyfunc"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"tasksync/config"
	"tasksync/identity"
	"tasksync/storage"
	"tasksync/syncer"
)

// App holds the components built from a Config.
type App struct {
	Config       config.Config
	Orchestrator *syncer.Orchestrator
	Backend      *storage.Backend
	Issuer       *identity.Issuer
	Verifier     *identity.Verifier
	Metrics      *syncer.Metrics

	closers []func()
}

// Build wires the orchestrator and its collaborators. reg may be nil to skip
// metrics registration.
func Build(cfg config.Config, logger *log.Logger, reg prometheus.Registerer) (*App, error) {
	if logger == nil {
		logger = log.StandardLogger()
	}
	a := &App{Config: cfg}
	if err := a.build(cfg, logger, reg); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build(cfg config.Config, logger *log.Logger, reg prometheus.Registerer) error {
	var rc *redis.Client
	if cfg.RedisConnStr != "" {
		rc = redis.NewClient(storage.ParseRedisOptions(cfg.RedisConnStr))
		a.closers = append(a.closers, func() { _ = rc.Close() })
	}

	backend := &storage.Backend{
		Clock: storage.LocalClock,
		Options: storage.RemoteOptions{
			Logger:           logger,
			ResubscribeDelay: cfg.ResubscribeDelay,
		},
	}
	switch cfg.Backend {
	case config.BackendTables:
		docs, err := storage.NewTableDocuments(cfg.StorageConnStr, cfg.TasksTable)
		if err != nil {
			return fmt.Errorf("tables backend: %w", err)
		}
		backend.Documents = docs
	default:
		if rc == nil {
			return errors.New("redis backend: no redis connection")
		}
		backend.Documents = storage.NewRedisDocuments(rc).WithLogger(logger)
	}
	if cfg.StoreClock == "redis" && rc != nil {
		backend.Clock = storage.NewRedisClock(rc)
	}
	if rc != nil {
		backend.Feed = storage.NewRedisFeed(rc, cfg.FeedIdle)
	}
	a.Backend = backend

	cache, err := a.buildCache(cfg, rc, logger)
	if err != nil {
		return err
	}

	if err := a.buildIdentity(cfg); err != nil {
		return err
	}
	var resolver syncer.ScopeResolver
	if cfg.UseIdentityScope {
		var idBackend identity.Backend = identity.StaticBackend{Token: cfg.IdentityToken}
		if cfg.IdentityToken == "" {
			idBackend = identity.NewAnonymousBackend(cfg.IdentityURL, cfg.IdentityTimeout)
		}
		resolver = identity.NewProvider(idBackend, a.Verifier, logger)
	}

	var notifier syncer.NotificationCanceler
	if cfg.NotificationQueue != "" {
		q, err := storage.NewQueueNotifications(cfg.StorageConnStr, cfg.NotificationQueue)
		if err != nil {
			return fmt.Errorf("notification queue: %w", err)
		}
		notifier = q
	}

	if reg != nil {
		a.Metrics = syncer.NewMetrics(reg)
	}
	a.Orchestrator, err = syncer.New(syncer.BackendFactory(backend), resolver, cache, notifier, syncer.Options{
		UseIdentityScope:    cfg.UseIdentityScope,
		EnableLocalFallback: cfg.EnableLocalFallback,
		ResubscribeDelay:    cfg.ResubscribeDelay,
		Logger:              logger,
		Metrics:             a.Metrics,
	})
	return err
}

func (a *App) buildCache(cfg config.Config, rc *redis.Client, logger *log.Logger) (syncer.Cache, error) {
	if !cfg.EnableLocalFallback {
		return nil, nil
	}
	var kv storage.KV
	switch cfg.CacheBackend {
	case config.CacheRedis:
		client := rc
		if client == nil || cfg.CacheRedisConnStr != cfg.RedisConnStr {
			client = redis.NewClient(storage.ParseRedisOptions(cfg.CacheRedisConnStr))
			a.closers = append(a.closers, func() { _ = client.Close() })
		}
		kv = storage.NewRedisKV(client)
	default:
		fkv, err := storage.NewFileKV(cfg.CacheDir)
		if err != nil {
			return nil, fmt.Errorf("file cache: %w", err)
		}
		kv = fkv
	}
	return storage.NewLocalCache(kv, cfg.CacheKey, logger), nil
}

func (a *App) buildIdentity(cfg config.Config) error {
	if cfg.SessionSecret != "" {
		secret := []byte(cfg.SessionSecret)
		a.Issuer = identity.NewIssuer(secret, cfg.SessionAudience, cfg.SessionIssuer)
		a.Verifier = identity.NewHMACVerifier(secret, cfg.SessionAudience, cfg.SessionIssuer)
		return nil
	}
	if cfg.Auth0Domain != "" {
		jwks, err := keyfunc.Get(cfg.JWKSURL(), keyfunc.Options{})
		if err != nil {
			return fmt.Errorf("jwks: %w", err)
		}
		a.closers = append(a.closers, jwks.EndBackground)
		a.Verifier = identity.NewJWKSVerifier(jwks, cfg.Auth0Audience, cfg.Auth0Issuer())
	}
	return nil
}

// Close resets the orchestrator and releases connections.
func (a *App) Close() {
	if a.Orchestrator != nil {
		a.Orchestrator.Reset()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
