package service

import (
	"context"
	"errors"
	"testing"

	"github.com/GoPolymarket/fundgate/internal/config"
	"github.com/GoPolymarket/fundgate/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func principalConfig(requireKey bool) *config.Config {
	return &config.Config{Auth: config.AuthConfig{
		RequireAPIKey: requireKey,
		Principals: []config.PrincipalConfig{
			{ID: "desk", APIKey: "sk-desk", Identity: model.NamedKey("desk").String(), RateLimit: 1, Burst: 2},
			{ID: "keeper", APIKey: "sk-keeper", Identity: model.NamedKey("keeper").String()},
		},
	}}
}

func TestPrincipalRegistryFromConfig(t *testing.T) {
	pr, err := NewPrincipalRegistry(principalConfig(true), nil)
	require.NoError(t, err)

	desk, ok := pr.ByAPIKey("sk-desk")
	require.True(t, ok)
	assert.Equal(t, "desk", desk.ID)
	assert.Equal(t, model.NamedKey("desk"), desk.Identity)

	keeper, ok := pr.ByAPIKey("sk-keeper")
	require.True(t, ok)
	assert.Equal(t, float64(DefaultPrincipalQPS), keeper.Rate.QPS)
	assert.Equal(t, DefaultPrincipalBurst, keeper.Rate.Burst)

	_, ok = pr.ByAPIKey("sk-unknown")
	assert.False(t, ok)
	assert.Nil(t, pr.Default())
	assert.Len(t, pr.List(), 2)
}

func TestPrincipalRegistryRateLimit(t *testing.T) {
	pr, err := NewPrincipalRegistry(principalConfig(true), nil)
	require.NoError(t, err)

	limiter := pr.Limiter("desk")
	require.NotNil(t, limiter)
	assert.True(t, limiter.Allow())
	assert.True(t, limiter.Allow())
	assert.False(t, limiter.Allow())

	pr.Remove("desk")
	assert.Nil(t, pr.Limiter("desk"))
	_, ok := pr.ByAPIKey("sk-desk")
	assert.False(t, ok)
}

func TestPrincipalRegistryDefault(t *testing.T) {
	pr, err := NewPrincipalRegistry(principalConfig(false), nil)
	require.NoError(t, err)
	require.NotNil(t, pr.Default())
	assert.Equal(t, "desk", pr.Default().ID)
}

func TestPrincipalRegistryRejectsBadConfig(t *testing.T) {
	cfg := principalConfig(true)
	cfg.Auth.Principals[0].Identity = "not-a-key"
	_, err := NewPrincipalRegistry(cfg, nil)
	assert.Error(t, err)

	cfg = principalConfig(true)
	cfg.Auth.Principals[1].APIKey = ""
	_, err = NewPrincipalRegistry(cfg, nil)
	assert.Error(t, err)
}

type stubPrincipalRepo struct {
	lookups int
}

func (r *stubPrincipalRepo) GetByAPIKey(_ context.Context, apiKey string) (*model.Principal, error) {
	r.lookups++
	if apiKey != "sk-provisioned" {
		return nil, errors.New("not found")
	}
	return &model.Principal{ID: "provisioned", APIKey: apiKey, Identity: model.NamedKey("provisioned")}, nil
}

func TestPrincipalRegistryRepoFallback(t *testing.T) {
	repo := &stubPrincipalRepo{}
	pr, err := NewPrincipalRegistry(principalConfig(true), repo)
	require.NoError(t, err)
	ctx := context.Background()

	p, ok := pr.ByAPIKeyWithFallback(ctx, "sk-provisioned")
	require.True(t, ok)
	assert.Equal(t, "provisioned", p.ID)
	assert.NotNil(t, pr.Limiter("provisioned"))

	_, ok = pr.ByAPIKeyWithFallback(ctx, "sk-provisioned")
	assert.True(t, ok)
	assert.Equal(t, 1, repo.lookups)

	_, ok = pr.ByAPIKeyWithFallback(ctx, "sk-unknown")
	assert.False(t, ok)

	_, ok = pr.ByAPIKeyWithFallback(ctx, "sk-desk")
	assert.True(t, ok)
	assert.Equal(t, 2, repo.lookups)
}
