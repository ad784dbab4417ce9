package handler

import (
	"context"
	"net/http"
	"sort"
	"strings"

	"github.com/GoPolymarket/fundgate/internal/model"
	"github.com/GoPolymarket/fundgate/internal/pkg/apperrors"
	"github.com/GoPolymarket/fundgate/internal/service"
	"github.com/gin-gonic/gin"
)

// PrincipalStore persists principals created at runtime.
type PrincipalStore interface {
	Create(ctx context.Context, p *model.Principal) error
}

type PrincipalHandler struct {
	registry *service.PrincipalRegistry
	store    PrincipalStore
}

// NewPrincipalHandler serves principal administration. store may be nil, in
// which case new principals live until restart.
func NewPrincipalHandler(registry *service.PrincipalRegistry, store PrincipalStore) *PrincipalHandler {
	return &PrincipalHandler{registry: registry, store: store}
}

type PrincipalCreateRequest struct {
	ID        string    `json:"id" binding:"required"`
	APIKey    string    `json:"api_key" binding:"required"`
	Identity  model.Key `json:"identity"`
	RateLimit float64   `json:"rate_limit"`
	Burst     int       `json:"burst"`
}

type principalPublic struct {
	ID         string                `json:"id"`
	Identity   model.Key             `json:"identity"`
	Rate       model.RateLimitConfig `json:"rate_limit"`
	KeyPreview string                `json:"api_key_preview"`
}

func (h *PrincipalHandler) List(c *gin.Context) {
	principals := h.registry.List()
	sort.Slice(principals, func(i, j int) bool { return principals[i].ID < principals[j].ID })
	out := make([]principalPublic, 0, len(principals))
	for _, p := range principals {
		out = append(out, toPrincipalPublic(p))
	}
	c.JSON(http.StatusOK, out)
}

func (h *PrincipalHandler) Create(c *gin.Context) {
	var req PrincipalCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.NewInvalidRequest(err.Error()))
		return
	}
	if req.Identity.IsZero() {
		c.Error(apperrors.NewInvalidRequest("identity is required"))
		return
	}
	if _, exists := h.registry.ByAPIKey(req.APIKey); exists {
		c.Error(apperrors.NewInvalidRequest("api_key already registered"))
		return
	}
	for _, existing := range h.registry.List() {
		if existing.ID == req.ID {
			c.Error(apperrors.NewInvalidRequest("principal id already registered"))
			return
		}
	}

	p := &model.Principal{
		ID:       req.ID,
		APIKey:   req.APIKey,
		Identity: req.Identity,
		Rate:     model.RateLimitConfig{QPS: req.RateLimit, Burst: req.Burst},
	}
	if p.Rate.QPS == 0 {
		p.Rate.QPS = service.DefaultPrincipalQPS
	}
	if p.Rate.Burst == 0 {
		p.Rate.Burst = service.DefaultPrincipalBurst
	}
	if h.store != nil {
		if err := h.store.Create(c.Request.Context(), p); err != nil {
			c.Error(apperrors.New(apperrors.ErrInternal, "failed to persist principal", err))
			return
		}
	}
	h.registry.Register(p)
	c.JSON(http.StatusCreated, toPrincipalPublic(p))
}

func (h *PrincipalHandler) Delete(c *gin.Context) {
	id := c.Param("id")
	for _, p := range h.registry.List() {
		if p.ID == id {
			h.registry.Remove(id)
			c.Status(http.StatusNoContent)
			return
		}
	}
	c.Error(apperrors.NewNotFound("principal not found"))
}

func toPrincipalPublic(p *model.Principal) principalPublic {
	return principalPublic{
		ID:         p.ID,
		Identity:   p.Identity,
		Rate:       p.Rate,
		KeyPreview: maskSecret(p.APIKey),
	}
}

func maskSecret(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	if len(value) <= 8 {
		return "****"
	}
	return value[:4] + "..." + value[len(value)-4:]
}
