package handler

import (
	"net/http"
	"sort"

	"github.com/GoPolymarket/fundgate/internal/ledger"
	"github.com/GoPolymarket/fundgate/internal/model"
	"github.com/GoPolymarket/fundgate/internal/pkg/apperrors"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type FundHandler struct {
	engine *ledger.Engine
}

func NewFundHandler(engine *ledger.Engine) *FundHandler {
	return &FundHandler{engine: engine}
}

type fundView struct {
	Fund         model.Fund             `json:"fund"`
	VaultBalance uint64                 `json:"vault_balance"`
	Lock         *model.TradingLock     `json:"lock,omitempty"`
	Strategy     *model.Strategy        `json:"strategy,omitempty"`
	Whitelist    []model.WhitelistEntry `json:"whitelist"`
}

type navView struct {
	*ledger.NavReport
	NavDecimal string `json:"nav_decimal"`
	SharePrice string `json:"share_price,omitempty"`
}

type sharesView struct {
	Owner      model.Key              `json:"owner"`
	Account    model.Key              `json:"account"`
	Shares     uint64                 `json:"shares"`
	Withdrawal *model.WithdrawRequest `json:"pending_withdrawal,omitempty"`
}

type ordersView struct {
	Limit []model.LimitOrder `json:"limit"`
	Dca   []model.DcaOrder   `json:"dca"`
}

func keyParam(c *gin.Context, name string) (model.Key, bool) {
	k, err := model.ParseKey(c.Param(name))
	if err != nil {
		c.Error(apperrors.NewInvalidRequest(err.Error()))
		return model.Key{}, false
	}
	return k, true
}

func (h *FundHandler) List(c *gin.Context) {
	var funds []model.Fund
	err := h.engine.View(c.Request.Context(), func(st *ledger.State) error {
		funds = make([]model.Fund, 0, len(st.Funds))
		for _, f := range st.Funds {
			funds = append(funds, *f)
		}
		return nil
	})
	if err != nil {
		c.Error(err)
		return
	}
	sort.Slice(funds, func(i, j int) bool { return funds[i].Key.Less(funds[j].Key) })
	c.JSON(http.StatusOK, funds)
}

func (h *FundHandler) Get(c *gin.Context) {
	key, ok := keyParam(c, "fund")
	if !ok {
		return
	}

	var view fundView
	err := h.engine.View(c.Request.Context(), func(st *ledger.State) error {
		f, ok := st.Funds[key]
		if !ok {
			return apperrors.NewNotFound("fund not found")
		}
		view.Fund = *f
		view.VaultBalance = st.Balance(f.Vault)
		if lock, ok := st.Locks[model.TradingLockKey(key)]; ok {
			l := *lock
			view.Lock = &l
		}
		if s, ok := st.Strategies[model.StrategyKey(key)]; ok {
			strategy := *s
			strategy.Allocations = append([]model.Allocation(nil), s.Allocations...)
			view.Strategy = &strategy
		}
		view.Whitelist = []model.WhitelistEntry{}
		for _, wl := range st.Whitelist {
			if wl.Scope == model.ScopeFund && wl.Owner == key {
				view.Whitelist = append(view.Whitelist, *wl)
			}
		}
		return nil
	})
	if err != nil {
		c.Error(err)
		return
	}
	sort.Slice(view.Whitelist, func(i, j int) bool { return view.Whitelist[i].Mint.Less(view.Whitelist[j].Mint) })
	c.JSON(http.StatusOK, view)
}

// NAV values the fund at the current ledger time.
func (h *FundHandler) NAV(c *gin.Context) {
	key, ok := keyParam(c, "fund")
	if !ok {
		return
	}
	report, err := h.engine.NAV(c.Request.Context(), key)
	if err != nil {
		c.Error(err)
		return
	}

	nav := decimal.NewFromUint64(report.Nav)
	view := navView{NavReport: report, NavDecimal: nav.Shift(-model.BaseDecimals).String()}
	if report.TotalShares > 0 {
		view.SharePrice = nav.Div(decimal.NewFromUint64(report.TotalShares)).StringFixed(model.BaseDecimals)
	}
	c.JSON(http.StatusOK, view)
}

func (h *FundHandler) Shares(c *gin.Context) {
	key, ok := keyParam(c, "fund")
	if !ok {
		return
	}
	owner, ok := keyParam(c, "owner")
	if !ok {
		return
	}

	var view sharesView
	err := h.engine.View(c.Request.Context(), func(st *ledger.State) error {
		f, ok := st.Funds[key]
		if !ok {
			return apperrors.NewNotFound("fund not found")
		}
		view.Owner = owner
		view.Account = model.AssociatedKey(owner, f.ShareMint)
		view.Shares = st.Balance(view.Account)
		if req, ok := st.Withdrawals[model.WithdrawRequestKey(key, owner)]; ok {
			w := *req
			view.Withdrawal = &w
		}
		return nil
	})
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// Orders lists the fund's limit and DCA orders by order id.
func (h *FundHandler) Orders(c *gin.Context) {
	key, ok := keyParam(c, "fund")
	if !ok {
		return
	}
	view := ordersView{Limit: []model.LimitOrder{}, Dca: []model.DcaOrder{}}
	err := h.engine.View(c.Request.Context(), func(st *ledger.State) error {
		if _, ok := st.Funds[key]; !ok {
			return apperrors.NewNotFound("fund not found")
		}
		for _, o := range st.LimitOrders {
			if o.Fund == key {
				view.Limit = append(view.Limit, *o)
			}
		}
		for _, o := range st.DcaOrders {
			if o.Fund == key {
				view.Dca = append(view.Dca, *o)
			}
		}
		return nil
	})
	if err != nil {
		c.Error(err)
		return
	}
	sort.Slice(view.Limit, func(i, j int) bool { return view.Limit[i].OrderID < view.Limit[j].OrderID })
	sort.Slice(view.Dca, func(i, j int) bool { return view.Dca[i].OrderID < view.Dca[j].OrderID })
	c.JSON(http.StatusOK, view)
}
