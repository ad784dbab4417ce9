package handler

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/GoPolymarket/fundgate/internal/ledger"
	"github.com/GoPolymarket/fundgate/internal/middleware"
	"github.com/GoPolymarket/fundgate/internal/model"
	"github.com/GoPolymarket/fundgate/internal/pkg/apperrors"
	"github.com/GoPolymarket/fundgate/internal/service"
	"github.com/gin-gonic/gin"
)

type AuditHandler struct {
	svc *service.AuditService
}

func NewAuditHandler(svc *service.AuditService) *AuditHandler {
	return &AuditHandler{svc: svc}
}

// List returns the caller's own audit trail. batch_id traces one batch back
// to the request that submitted it; op keeps the requests whose batch carried
// that operation.
func (h *AuditHandler) List(c *gin.Context) {
	principal, ok := middleware.PrincipalFrom(c)
	if !ok {
		c.Error(apperrors.New(apperrors.ErrAuthFailed, "unauthorized: missing principal context", nil))
		return
	}

	filter := model.AuditFilter{
		PrincipalID: principal.ID,
		BatchID:     c.Query("batch_id"),
		Op:          c.Query("op"),
		Limit:       100,
	}
	if filter.Op != "" && !ledger.IsOperation(filter.Op) {
		c.Error(apperrors.NewInvalidRequest(fmt.Sprintf("unknown operation %q", filter.Op)))
		return
	}
	if raw := c.Query("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			filter.Limit = parsed
		}
	}
	for param, dst := range map[string]**time.Time{"from": &filter.From, "to": &filter.To} {
		raw := c.Query(param)
		if raw == "" {
			continue
		}
		t, err := parseTime(raw)
		if err != nil {
			c.Error(apperrors.NewInvalidRequest(fmt.Sprintf("%s: %v", param, err)))
			return
		}
		*dst = &t
	}

	records, err := h.svc.List(c.Request.Context(), filter)
	if err != nil {
		c.Error(apperrors.New(apperrors.ErrInternal, err.Error(), err))
		return
	}
	c.JSON(http.StatusOK, records)
}

func parseTime(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	if unix, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.Unix(unix, 0).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("invalid time format")
}
