package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/GoPolymarket/fundgate/internal/ledger"
	"github.com/GoPolymarket/fundgate/internal/middleware"
	"github.com/GoPolymarket/fundgate/internal/model"
	"github.com/GoPolymarket/fundgate/internal/pkg/apperrors"
	"github.com/gin-gonic/gin"
)

const maxJournalPage = 500

type BatchHandler struct {
	engine  *ledger.Engine
	journal ledger.JournalReader
}

func NewBatchHandler(engine *ledger.Engine, journal ledger.JournalReader) *BatchHandler {
	return &BatchHandler{engine: engine, journal: journal}
}

type batchOp struct {
	Op   string          `json:"op" binding:"required"`
	Args json.RawMessage `json:"args"`
}

type BatchRequest struct {
	ID  string    `json:"id"`
	Ops []batchOp `json:"ops" binding:"required"`
	// FillBasket completes every valuation operation with the fund's basket
	// as it stands when that operation runs, so clients need not enumerate
	// whitelist, vault and oracle keys.
	FillBasket bool `json:"fill_basket"`
}

type batchResponse struct {
	BatchID  string         `json:"batch_id"`
	Status   string         `json:"status"`
	SlotTime int64          `json:"slot_time"`
	Ops      []string       `json:"ops"`
	Events   []ledger.Event `json:"events"`
}

// Submit executes the operations as one atomic batch signed by the caller's
// ledger identity.
func (h *BatchHandler) Submit(c *gin.Context) {
	principal, ok := middleware.PrincipalFrom(c)
	if !ok {
		c.Error(apperrors.New(apperrors.ErrAuthFailed, "unauthorized: missing principal context", nil))
		return
	}

	var req BatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.NewInvalidRequest(err.Error()))
		return
	}
	if len(req.Ops) == 0 {
		c.Error(apperrors.NewInvalidRequest("batch has no operations"))
		return
	}

	ops := make([]ledger.Operation, 0, len(req.Ops))
	names := make([]string, 0, len(req.Ops))
	for i, raw := range req.Ops {
		op, err := ledger.DecodeOperation(raw.Op, raw.Args)
		if err != nil {
			c.Error(apperrors.NewInvalidRequest(fmt.Sprintf("ops[%d]: %s", i, apperrors.Wrap(err).Message)))
			return
		}
		ops = append(ops, op)
		names = append(names, op.Name())
	}
	middleware.AddAuditContext(c, model.AuditBatchOps, names)
	if err := middleware.ChargeOperations(c, len(ops)); err != nil {
		c.Error(err)
		return
	}

	receipt, err := h.engine.Execute(c.Request.Context(), ledger.Batch{
		ID:          req.ID,
		Signer:      principal.Identity,
		Ops:         ops,
		FillBaskets: req.FillBasket,
	})
	if receipt != nil {
		middleware.AddAuditContext(c, model.AuditBatchID, receipt.BatchID)
		middleware.AddAuditContext(c, model.AuditBatchStatus, receipt.Status)
	}
	if err != nil {
		if receipt == nil {
			c.Error(err)
			return
		}
		middleware.RejectBatch(c, receipt.BatchID, receipt.FailedOp, err)
		return
	}

	events := receipt.Events
	if events == nil {
		events = []ledger.Event{}
	}
	c.JSON(http.StatusOK, batchResponse{
		BatchID:  receipt.BatchID,
		Status:   receipt.Status,
		SlotTime: receipt.Timestamp,
		Ops:      receipt.Ops,
		Events:   events,
	})
}

// List serves the batch journal, newest first.
func (h *BatchHandler) List(c *gin.Context) {
	if h.journal == nil {
		c.Error(apperrors.NewNotFound("batch journal disabled"))
		return
	}

	filter := ledger.JournalFilter{Status: c.Query("status"), Limit: 100}
	if raw := c.Query("signer"); raw != "" {
		signer, err := model.ParseKey(raw)
		if err != nil {
			c.Error(apperrors.NewInvalidRequest(err.Error()))
			return
		}
		filter.Signer = signer
	}
	if filter.Status != "" && filter.Status != ledger.StatusCommitted && filter.Status != ledger.StatusRejected {
		c.Error(apperrors.NewInvalidRequest(fmt.Sprintf("unknown status %q", filter.Status)))
		return
	}
	if raw := c.Query("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			filter.Limit = min(parsed, maxJournalPage)
		}
	}

	receipts, err := h.journal.List(c.Request.Context(), filter)
	if err != nil {
		c.Error(apperrors.New(apperrors.ErrInternal, "failed to read batch journal", err))
		return
	}
	c.JSON(http.StatusOK, receipts)
}

// Operations lists the operations a batch may carry with their argument
// fields.
func (h *BatchHandler) Operations(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"operations": ledger.Operations()})
}
