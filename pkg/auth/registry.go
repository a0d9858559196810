// Package auth resolves a job's AuthStrategy into a mutation of the outbound request.
package auth

import (
	"sync"

	"github.com/callsched/core/pkg/errors"
	"github.com/callsched/core/pkg/models"
)

// Provider builds the credential mutation for one job.
type Provider func(job *models.JobDefinition) (models.RequestMutation, error)

// Registry maps every AuthStrategy to its Provider.
type Registry struct {
	mu        sync.RWMutex
	providers map[models.AuthStrategy]Provider
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{providers: make(map[models.AuthStrategy]Provider)}
}

// NewDefaultRegistry registers a provider for every built-in strategy using cfg.
func NewDefaultRegistry(cfg Config) *Registry {
	r := NewRegistry()
	r.Register(models.AuthNone, None)
	r.Register(models.AuthBearerToken, BearerToken(cfg.BearerToken))
	r.Register(models.AuthBasic, Basic(cfg.BasicUsername, cfg.BasicPassword))
	r.Register(models.AuthAPIKey, APIKey(cfg.APIKeyHeader, cfg.APIKey))
	r.Register(models.AuthSignedJWT, SignedJWT(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTTTL))
	return r
}

// Register installs or replaces the provider for strategy.
func (r *Registry) Register(strategy models.AuthStrategy, p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[strategy] = p
}

// Validate fails when any known strategy has no provider. Called once at startup.
func (r *Registry) Validate() error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, s := range models.AuthStrategies {
		if _, ok := r.providers[s]; !ok {
			return errors.Internal(errors.CodeAuthenticationProvider, nil,
				"no authentication provider registered for strategy %s", s)
		}
	}
	return nil
}

// Mutation returns the request mutation for job's strategy. An empty strategy means NONE.
func (r *Registry) Mutation(job *models.JobDefinition) (models.RequestMutation, error) {
	strategy := job.AuthStrategy.OrNone()

	r.mu.RLock()
	p, ok := r.providers[strategy]
	r.mu.RUnlock()

	if !ok {
		return nil, errors.Internal(errors.CodeAuthenticationProvider, nil,
			"no authentication provider registered for strategy %s", strategy)
	}
	m, err := p(job)
	if err != nil {
		return nil, errors.Internal(errors.CodeAuthenticationProvider, err,
			"authentication strategy %s failed for job %s", strategy, job.Key)
	}
	return m, nil
}

// Apply resolves and applies job's strategy to req.
func (r *Registry) Apply(job *models.JobDefinition, req *models.HTTPRequest) error {
	m, err := r.Mutation(job)
	if err != nil {
		return err
	}
	return m(req)
}
