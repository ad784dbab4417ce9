package handler

import (
	"net/http"

	"github.com/GoPolymarket/fundgate/internal/ledger"
	"github.com/GoPolymarket/fundgate/internal/middleware"
	"github.com/GoPolymarket/fundgate/internal/model"
	"github.com/GoPolymarket/fundgate/internal/oracle"
	"github.com/GoPolymarket/fundgate/internal/pkg/apperrors"
	"github.com/GoPolymarket/fundgate/internal/pkg/metrics"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// AdminHandler moves value and prices into the ledger from outside it.
type AdminHandler struct {
	engine  *ledger.Engine
	program model.Key
}

func NewAdminHandler(engine *ledger.Engine, oracleProgram model.Key) *AdminHandler {
	return &AdminHandler{engine: engine, program: oracleProgram}
}

type PriceRequest struct {
	Feed        model.Key       `json:"feed"`
	Owner       *model.Key      `json:"owner"`
	Price       decimal.Decimal `json:"price"`
	Conf        decimal.Decimal `json:"conf"`
	PublishTime int64           `json:"publish_time"`
}

type CreditRequest struct {
	Owner  model.Key  `json:"owner"`
	Mint   *model.Key `json:"mint"`
	Amount uint64     `json:"amount"`
}

// PostPrice writes a price account. Owner defaults to the configured oracle
// program and publish time to the ledger clock.
func (h *AdminHandler) PostPrice(c *gin.Context) {
	var req PriceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.NewInvalidRequest(err.Error()))
		return
	}
	owner := h.program
	if req.Owner != nil {
		owner = *req.Owner
	}
	if req.PublishTime == 0 {
		req.PublishTime = h.engine.Now()
	}

	acc, err := oracle.PriceMessage{
		Type:        "price",
		Feed:        req.Feed,
		Price:       req.Price,
		Conf:        req.Conf,
		PublishTime: req.PublishTime,
	}.Account(owner)
	if err != nil {
		c.Error(apperrors.NewInvalidRequest(err.Error()))
		return
	}
	if err := h.engine.PostPrice(c.Request.Context(), acc); err != nil {
		c.Error(err)
		return
	}
	metrics.OracleUpdates.WithLabelValues("admin").Inc()
	middleware.AddAuditContext(c, "feed", acc.Key.String())
	c.JSON(http.StatusOK, acc)
}

// Credit deposits value into a wallet. Mint defaults to the native mint.
func (h *AdminHandler) Credit(c *gin.Context) {
	var req CreditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.NewInvalidRequest(err.Error()))
		return
	}
	mint := model.NativeMint
	if req.Mint != nil {
		mint = *req.Mint
	}

	balance, err := h.engine.Credit(c.Request.Context(), req.Owner, mint, req.Amount)
	if err != nil {
		c.Error(err)
		return
	}
	account := model.WalletAccount(req.Owner, mint)
	middleware.AddAuditContext(c, "account", account.String())
	c.JSON(http.StatusOK, gin.H{
		"owner":   req.Owner,
		"mint":    mint,
		"account": account,
		"balance": balance,
	})
}
