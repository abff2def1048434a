package storage

import (
	"crypto/tls"
	"strings"

	"github.com/redis/go-redis/v9"

	"tasksync/domain"
)

// Backend builds Remote clients that share one document store, clock and feed.
type Backend struct {
	Documents Documents
	Clock     Clock
	Feed      Feed
	Options   RemoteOptions
}

// ForScope returns a client bound to scope.
func (b *Backend) ForScope(scope domain.Scope) *Remote {
	return NewRemote(b.Documents, b.Clock, b.Feed, scope, b.Options)
}

// ParseRedisOptions accepts a redis:// URL or the "host:port,password=...,ssl=true" form.
func ParseRedisOptions(conn string) *redis.Options {
	opts, err := redis.ParseURL(conn)
	if err == nil {
		return opts
	}
	parts := strings.Split(conn, ",")
	opts = &redis.Options{Addr: parts[0]}
	for _, p := range parts[1:] {
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch strings.ToLower(kv[0]) {
		case "password":
			opts.Password = kv[1]
		case "ssl":
			if strings.ToLower(kv[1]) == "true" {
				opts.TLSConfig = &tls.Config{}
			}
		}
	}
	return opts
}
