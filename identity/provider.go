package identity

import (
	"context"
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"

	"tasksync/domain"
)

// Provider resolves the scope token of the session. The first successful
// resolution is kept for the lifetime of the process; failures are not cached.
type Provider struct {
	backend  Backend
	verifier *Verifier
	logger   *log.Logger

	mu    sync.Mutex
	scope string
}

// NewProvider creates a provider. With a nil verifier the token itself is the scope.
func NewProvider(backend Backend, verifier *Verifier, logger *log.Logger) *Provider {
	if backend == nil {
		panic("identity.NewProvider: backend is nil")
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Provider{backend: backend, verifier: verifier, logger: logger}
}

// ResolveScope returns the identity token used to scope remote storage.
func (p *Provider) ResolveScope(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.scope != "" {
		return p.scope, nil
	}
	token, err := p.backend.SignIn(ctx)
	if err != nil {
		p.logger.WithError(err).Warn("identity sign-in failed")
		return "", fmt.Errorf("%w: %v", domain.ErrAuthUnavailable, err)
	}
	scope := token
	if p.verifier != nil {
		scope, err = p.verifier.Subject(token)
		if err != nil {
			p.logger.WithError(err).Warn("identity token rejected")
			return "", fmt.Errorf("%w: %v", domain.ErrAuthUnavailable, err)
		}
	}
	p.scope = scope
	p.logger.WithField("scope", scope).Info("identity resolved")
	return scope, nil
}
