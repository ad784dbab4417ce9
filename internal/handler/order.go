package handler

import (
	"net/http"

	"github.com/GoPolymarket/fundgate/internal/ledger"
	"github.com/GoPolymarket/fundgate/internal/model"
	"github.com/GoPolymarket/fundgate/internal/pkg/apperrors"
	"github.com/gin-gonic/gin"
)

type OrderHandler struct {
	engine *ledger.Engine
}

func NewOrderHandler(engine *ledger.Engine) *OrderHandler {
	return &OrderHandler{engine: engine}
}

type limitOrderView struct {
	model.LimitOrder
	Escrow        model.Key `json:"escrow"`
	EscrowBalance uint64    `json:"escrow_balance"`
}

type dcaOrderView struct {
	model.DcaOrder
	Escrow        model.Key `json:"escrow"`
	EscrowBalance uint64    `json:"escrow_balance"`
}

func (h *OrderHandler) Limit(c *gin.Context) {
	key, ok := keyParam(c, "key")
	if !ok {
		return
	}
	var view limitOrderView
	err := h.engine.View(c.Request.Context(), func(st *ledger.State) error {
		o, ok := st.LimitOrders[key]
		if !ok {
			return apperrors.NewNotFound("limit order not found")
		}
		view.LimitOrder = *o
		view.Escrow = ledger.LimitEscrowAccount(o)
		view.EscrowBalance = st.Balance(view.Escrow)
		return nil
	})
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *OrderHandler) Dca(c *gin.Context) {
	key, ok := keyParam(c, "key")
	if !ok {
		return
	}
	var view dcaOrderView
	err := h.engine.View(c.Request.Context(), func(st *ledger.State) error {
		o, ok := st.DcaOrders[key]
		if !ok {
			return apperrors.NewNotFound("dca order not found")
		}
		view.DcaOrder = *o
		view.Escrow = ledger.DcaEscrowAccount(o)
		view.EscrowBalance = st.Balance(view.Escrow)
		return nil
	})
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, view)
}
