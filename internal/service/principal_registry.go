package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/GoPolymarket/fundgate/internal/config"
	"github.com/GoPolymarket/fundgate/internal/model"
	"golang.org/x/time/rate"
)

const (
	DefaultPrincipalQPS   = 10
	DefaultPrincipalBurst = 20
)

// PrincipalRegistry resolves API keys to principals and owns their rate
// limiters.
type PrincipalRegistry struct {
	mu         sync.RWMutex
	principals map[string]*model.Principal // Key: API key
	limiters   map[string]*rate.Limiter    // Key: principal ID
	fallback   *model.Principal
	repo       PrincipalRepo
}

type PrincipalRepo interface {
	GetByAPIKey(ctx context.Context, apiKey string) (*model.Principal, error)
}

// NewPrincipalRegistry loads the configured principals. repo, when set,
// resolves keys missing from the config.
func NewPrincipalRegistry(cfg *config.Config, repo PrincipalRepo) (*PrincipalRegistry, error) {
	pr := &PrincipalRegistry{
		principals: make(map[string]*model.Principal),
		limiters:   make(map[string]*rate.Limiter),
		repo:       repo,
	}
	if cfg == nil {
		return pr, nil
	}

	for _, pc := range cfg.Auth.Principals {
		if pc.ID == "" || pc.APIKey == "" {
			return nil, fmt.Errorf("principal %q: id and api_key are required", pc.ID)
		}
		identity, err := model.ParseKey(pc.Identity)
		if err != nil {
			return nil, fmt.Errorf("principal %s: identity: %w", pc.ID, err)
		}
		p := &model.Principal{
			ID:       pc.ID,
			APIKey:   pc.APIKey,
			Identity: identity,
			Rate: model.RateLimitConfig{
				QPS:   pc.RateLimit,
				Burst: pc.Burst,
			},
		}
		if p.Rate.QPS == 0 {
			p.Rate.QPS = DefaultPrincipalQPS
		}
		if p.Rate.Burst == 0 {
			p.Rate.Burst = DefaultPrincipalBurst
		}
		pr.Register(p)
	}

	// Single principal mode: requests without a key act as the first principal.
	if !cfg.Auth.RequireAPIKey && len(cfg.Auth.Principals) > 0 {
		pr.fallback, _ = pr.ByAPIKey(cfg.Auth.Principals[0].APIKey)
	}
	return pr, nil
}

func (pr *PrincipalRegistry) Register(p *model.Principal) {
	if p == nil {
		return
	}
	pr.mu.Lock()
	defer pr.mu.Unlock()
	pr.principals[p.APIKey] = p

	limit := rate.Limit(p.Rate.QPS)
	if limit <= 0 {
		limit = rate.Inf
	}
	burst := p.Rate.Burst
	if burst <= 0 {
		burst = 1
	}
	pr.limiters[p.ID] = rate.NewLimiter(limit, burst)
}

func (pr *PrincipalRegistry) Remove(id string) {
	pr.mu.Lock()
	defer pr.mu.Unlock()
	for key, p := range pr.principals {
		if p.ID == id {
			delete(pr.principals, key)
			delete(pr.limiters, id)
		}
	}
	if pr.fallback != nil && pr.fallback.ID == id {
		pr.fallback = nil
	}
}

func (pr *PrincipalRegistry) ByAPIKey(apiKey string) (*model.Principal, bool) {
	pr.mu.RLock()
	defer pr.mu.RUnlock()
	p, ok := pr.principals[apiKey]
	return p, ok
}

// ByAPIKeyWithFallback consults the repository on a miss and caches the hit.
func (pr *PrincipalRegistry) ByAPIKeyWithFallback(ctx context.Context, apiKey string) (*model.Principal, bool) {
	if p, ok := pr.ByAPIKey(apiKey); ok {
		return p, true
	}
	if pr.repo == nil {
		return nil, false
	}
	p, err := pr.repo.GetByAPIKey(ctx, apiKey)
	if err != nil || p == nil {
		return nil, false
	}
	pr.Register(p)
	return p, true
}

func (pr *PrincipalRegistry) List() []*model.Principal {
	pr.mu.RLock()
	defer pr.mu.RUnlock()
	out := make([]*model.Principal, 0, len(pr.principals))
	for _, p := range pr.principals {
		out = append(out, p)
	}
	return out
}

// Default is the principal used for unauthenticated requests, nil unless
// API keys are optional.
func (pr *PrincipalRegistry) Default() *model.Principal {
	pr.mu.RLock()
	defer pr.mu.RUnlock()
	return pr.fallback
}

func (pr *PrincipalRegistry) Limiter(principalID string) *rate.Limiter {
	pr.mu.RLock()
	defer pr.mu.RUnlock()
	return pr.limiters[principalID]
}
