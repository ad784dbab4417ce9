package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/GoPolymarket/fundgate/internal/config"
	"github.com/GoPolymarket/fundgate/internal/ledger"
	"github.com/GoPolymarket/fundgate/internal/middleware"
	"github.com/GoPolymarket/fundgate/internal/model"
	"github.com/GoPolymarket/fundgate/internal/repository"
	"github.com/GoPolymarket/fundgate/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	configAdmin   = model.NamedKey("admin")
	fundManager   = model.NamedKey("manager")
	investor      = model.NamedKey("investor")
	treasury      = model.NamedKey("treasury")
	oracleProgram = model.NamedKey("oracle_program")
	baseFeed      = model.NamedKey("feed/base")
	mintA         = model.NamedKey("mint/a")
	feedA         = model.NamedKey("feed/a")
)

const (
	startTime   int64  = 1_700_000_000
	seedDeposit uint64 = 1_000_000_000
)

type fixture struct {
	t        *testing.T
	engine   *ledger.Engine
	journal  *repository.MemoryJournal
	registry *service.PrincipalRegistry
	audit    *service.AuditService
	router   *gin.Engine
	fund     model.Key
}

// newFixture serves a trading fund holding base units and an enabled mint A,
// seeded directly through the engine.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	f := &fixture{t: t, journal: repository.NewMemoryJournal(100)}
	f.engine = ledger.NewEngine(ledger.NewMemoryStore(), ledger.Options{
		Clock:   func() time.Time { return time.Unix(startTime, 0) },
		Journal: f.journal,
	})

	cfg := &config.Config{Auth: config.AuthConfig{
		RequireAPIKey: true,
		Principals: []config.PrincipalConfig{
			{ID: "manager", APIKey: "manager-key", Identity: fundManager.String()},
			{ID: "investor", APIKey: "investor-key", Identity: investor.String()},
		},
	}}
	registry, err := service.NewPrincipalRegistry(cfg, nil)
	require.NoError(t, err)
	f.registry = registry

	audit, err := service.NewAuditService("", nil)
	require.NoError(t, err)
	t.Cleanup(audit.Close)
	f.audit = audit

	f.seed()
	f.router = f.routes(cfg)
	return f
}

func (f *fixture) seed() {
	ctx := context.Background()
	for _, p := range []model.PriceAccount{
		{Key: baseFeed, Owner: oracleProgram, Price: 15_000_000_000, Expo: -8, PublishTime: startTime},
		{Key: feedA, Owner: oracleProgram, Price: 1_000_000, Expo: -6, PublishTime: startTime},
	} {
		require.NoError(f.t, f.engine.PostPrice(ctx, p))
	}
	_, err := f.engine.Execute(ctx, ledger.Batch{Signer: configAdmin, Ops: []ledger.Operation{
		&ledger.InitializeConfig{ConfigID: 1, ConfigParams: ledger.ConfigParams{
			FeeTreasury:         treasury,
			BaseFeed:            baseFeed,
			OracleProgram:       oracleProgram,
			DepositFeeBps:       50,
			WithdrawFeeBps:      100,
			TradeFeeBps:         10,
			MaxManagerFeeBps:    2_000,
			MaxSlippageBps:      500,
			MinManagerDeposit:   seedDeposit,
			MaxWithdrawTimelock: 86_400,
		}},
		&ledger.AddToken{Scope: model.ScopeGlobal, ConfigID: 1, Mint: mintA, Decimals: 6, Feed: feedA},
	}})
	require.NoError(f.t, err)

	_, err = f.engine.Credit(ctx, fundManager, model.NativeMint, 10*seedDeposit)
	require.NoError(f.t, err)
	f.fund = model.FundKey(model.ConfigKey(1), fundManager, 1)
	_, err = f.engine.Execute(ctx, ledger.Batch{Signer: fundManager, Ops: []ledger.Operation{
		&ledger.InitializeFund{
			ConfigID:           1,
			FundID:             1,
			FundType:           model.FundTypeTrading,
			InitialDeposit:     seedDeposit,
			ManagerFeeBps:      100,
			MinInvestorDeposit: 100_000_000,
			WithdrawTimelock:   3_600,
		},
		&ledger.AddToken{Scope: model.ScopeFund, Fund: f.fund, Mint: mintA, Feed: feedA},
	}})
	require.NoError(f.t, err)
}

func (f *fixture) routes(cfg *config.Config) *gin.Engine {
	r := gin.New()
	r.Use(middleware.ErrorHandler())

	batches := NewBatchHandler(f.engine, f.journal)
	funds := NewFundHandler(f.engine)
	orders := NewOrderHandler(f.engine)
	admin := NewAdminHandler(f.engine, oracleProgram)
	principals := NewPrincipalHandler(f.registry, nil)
	audit := NewAuditHandler(f.audit)

	v1 := r.Group("/v1")
	adminGroup := v1.Group("/admin")
	adminGroup.POST("/prices", admin.PostPrice)
	adminGroup.POST("/credits", admin.Credit)
	adminGroup.GET("/principals", principals.List)
	adminGroup.POST("/principals", principals.Create)
	adminGroup.DELETE("/principals/:id", principals.Delete)

	authed := v1.Group("", middleware.AuthMiddleware(cfg, f.registry), middleware.AuditMiddleware(f.audit))
	authed.GET("/operations", batches.Operations)
	authed.POST("/batches", batches.Submit)
	authed.GET("/batches", batches.List)
	authed.GET("/funds", funds.List)
	authed.GET("/funds/:fund", funds.Get)
	authed.GET("/funds/:fund/nav", funds.NAV)
	authed.GET("/funds/:fund/shares/:owner", funds.Shares)
	authed.GET("/funds/:fund/orders", funds.Orders)
	authed.GET("/orders/limit/:key", orders.Limit)
	authed.GET("/orders/dca/:key", orders.Dca)
	authed.GET("/audit", audit.List)
	return r
}

func (f *fixture) do(method, path, apiKey string, body any) *httptest.ResponseRecorder {
	f.t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(f.t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set(middleware.HeaderGatewayKey, apiKey)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func depositOp(fund model.Key, amount uint64) gin.H {
	return gin.H{"op": ledger.OpDeposit, "args": gin.H{"fund": fund, "amount": amount}}
}

func (f *fixture) credit(owner model.Key, amount uint64) {
	f.t.Helper()
	w := f.do(http.MethodPost, "/v1/admin/credits", "", gin.H{"owner": owner, "amount": amount})
	require.Equal(f.t, http.StatusOK, w.Code, w.Body.String())
}

func (f *fixture) shares(owner model.Key) uint64 {
	f.t.Helper()
	w := f.do(http.MethodGet, "/v1/funds/"+f.fund.String()+"/shares/"+owner.String(), "investor-key", nil)
	require.Equal(f.t, http.StatusOK, w.Code, w.Body.String())
	return decode[struct {
		Shares uint64 `json:"shares"`
	}](f.t, w).Shares
}

func TestSubmitBatchDeposit(t *testing.T) {
	f := newFixture(t)
	f.credit(investor, 500_000_000)

	w := f.do(http.MethodPost, "/v1/batches", "investor-key", gin.H{
		"ops":         []gin.H{depositOp(f.fund, 200_000_000)},
		"fill_basket": true,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	resp := decode[batchResponse](t, w)
	assert.NotEmpty(t, resp.BatchID)
	assert.Equal(t, ledger.StatusCommitted, resp.Status)
	assert.Equal(t, startTime, resp.SlotTime)
	require.Len(t, resp.Events, 1)
	assert.Equal(t, ledger.OpDeposit, resp.Events[0].Op)
	assert.Positive(t, f.shares(investor))

	w = f.do(http.MethodGet, "/v1/batches?signer="+investor.String(), "investor-key", nil)
	require.Equal(t, http.StatusOK, w.Code)
	receipts := decode[[]ledger.Receipt](t, w)
	require.Len(t, receipts, 1)
	assert.Equal(t, resp.BatchID, receipts[0].BatchID)
	assert.Equal(t, investor, receipts[0].Signer)
}

func TestSubmitBatchRejectionIsAtomic(t *testing.T) {
	f := newFixture(t)
	f.credit(investor, 500_000_000)

	w := f.do(http.MethodPost, "/v1/batches", "investor-key", gin.H{
		"id":          "two-deposits",
		"ops":         []gin.H{depositOp(f.fund, 200_000_000), depositOp(f.fund, 1)},
		"fill_basket": true,
	})
	require.Equal(t, http.StatusUnprocessableEntity, w.Code, w.Body.String())

	body := decode[map[string]any](t, w)
	assert.Equal(t, "ECONOMIC_GUARD", body["code"])
	assert.Equal(t, "DepositTooSmall", body["reason"])
	assert.Equal(t, "two-deposits", body["batch_id"])
	assert.Equal(t, float64(1), body["failed_op"])
	assert.Zero(t, f.shares(investor))

	w = f.do(http.MethodGet, "/v1/batches?status=rejected", "investor-key", nil)
	require.Equal(t, http.StatusOK, w.Code)
	receipts := decode[[]ledger.Receipt](t, w)
	require.Len(t, receipts, 1)
	assert.Equal(t, "two-deposits", receipts[0].BatchID)
}

func TestSubmitBatchValidation(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodPost, "/v1/batches", "", gin.H{"ops": []gin.H{depositOp(f.fund, 1)}})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = f.do(http.MethodPost, "/v1/batches", "investor-key", gin.H{"ops": []gin.H{}})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(http.MethodPost, "/v1/batches", "investor-key", gin.H{"ops": []gin.H{{"op": "mint_everything"}}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "ops[0]")

	w = f.do(http.MethodGet, "/v1/batches?status=pending", "investor-key", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(http.MethodGet, "/v1/operations", "investor-key", nil)
	require.Equal(t, http.StatusOK, w.Code)
	listing := decode[map[string][]ledger.OperationInfo](t, w)
	require.NotEmpty(t, listing["operations"])
	var limit *ledger.OperationInfo
	for i := range listing["operations"] {
		if listing["operations"][i].Name == ledger.OpCreateLimitOrder {
			limit = &listing["operations"][i]
		}
	}
	require.NotNil(t, limit)
	assert.Contains(t, limit.Args, "limit_price")
	assert.Contains(t, limit.Args, "price_expo")
}

func TestFundEndpoints(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodGet, "/v1/funds", "investor-key", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]model.Fund](t, w), 1)

	w = f.do(http.MethodGet, "/v1/funds/"+f.fund.String(), "investor-key", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	view := decode[fundView](t, w)
	assert.Equal(t, fundManager, view.Fund.Manager)
	assert.Equal(t, view.Fund.TotalShares, f.shares(fundManager))
	require.Len(t, view.Whitelist, 1)
	assert.Equal(t, mintA, view.Whitelist[0].Mint)
	assert.Positive(t, view.VaultBalance)

	w = f.do(http.MethodGet, "/v1/funds/0x1234", "investor-key", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = f.do(http.MethodGet, "/v1/funds/"+model.NamedKey("nobody").String(), "investor-key", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(http.MethodGet, "/v1/funds/"+f.fund.String()+"/nav", "investor-key", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	nav := decode[map[string]any](t, w)
	assert.Equal(t, view.Fund.Key.String(), nav["fund"])
	assert.NotEmpty(t, nav["nav_decimal"])
	assert.NotEmpty(t, nav["share_price"])
	assert.Positive(t, nav["nav"])
}

func TestOrderEndpoints(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodPost, "/v1/batches", "manager-key", gin.H{"ops": []gin.H{{
		"op": ledger.OpCreateLimitOrder,
		"args": gin.H{
			"fund":             f.fund,
			"side":             "buy",
			"mint":             mintA,
			"amount_in":        100_000_000,
			"min_out":          10_000_000,
			"limit_price":      1_000_000,
			"price_expo":       -6,
			"max_slippage_bps": 100,
		},
	}}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	key := model.LimitOrderKey(f.fund, 0)
	w = f.do(http.MethodGet, "/v1/orders/limit/"+key.String(), "manager-key", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	order := decode[limitOrderView](t, w)
	assert.Equal(t, model.SideBuy, order.Side)
	assert.Equal(t, model.OrderStatusOpen, order.Status)
	assert.Equal(t, uint64(100_000_000), order.EscrowBalance)

	w = f.do(http.MethodGet, "/v1/funds/"+f.fund.String()+"/orders", "manager-key", nil)
	require.Equal(t, http.StatusOK, w.Code)
	orders := decode[ordersView](t, w)
	assert.Len(t, orders.Limit, 1)
	assert.Empty(t, orders.Dca)

	w = f.do(http.MethodGet, "/v1/orders/dca/"+key.String(), "manager-key", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = f.do(http.MethodGet, "/v1/orders/limit/nope", "manager-key", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAdminPostPrice(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodPost, "/v1/admin/prices", "", gin.H{"feed": feedA, "price": "1.5", "conf": "0.001"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	acc := decode[model.PriceAccount](t, w)
	assert.Equal(t, model.PriceAccount{Key: feedA, Owner: oracleProgram, Price: 1_500, Conf: 1, Expo: -3, PublishTime: startTime}, acc)

	w = f.do(http.MethodPost, "/v1/admin/prices", "", gin.H{"feed": feedA, "price": "-1", "conf": "0"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = f.do(http.MethodPost, "/v1/admin/prices", "", gin.H{"price": "1", "conf": "0"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAdminCredit(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodPost, "/v1/admin/credits", "", gin.H{"owner": investor, "mint": mintA, "amount": 7})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode[map[string]any](t, w)
	assert.Equal(t, float64(7), body["balance"])
	assert.Equal(t, model.AssociatedKey(investor, mintA).String(), body["account"])

	w = f.do(http.MethodPost, "/v1/admin/credits", "", gin.H{"owner": investor, "amount": 0})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPrincipalAdministration(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodGet, "/v1/admin/principals", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[[]principalPublic](t, w)
	require.Len(t, list, 2)
	assert.Equal(t, "investor", list[0].ID)
	assert.Equal(t, "inve...-key", list[0].KeyPreview)
	assert.NotContains(t, w.Body.String(), "investor-key")

	keeper := model.NamedKey("keeper")
	w = f.do(http.MethodPost, "/v1/admin/principals", "", gin.H{"id": "keeper", "api_key": "keeper-key-1", "identity": keeper})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode[principalPublic](t, w)
	assert.Equal(t, keeper, created.Identity)
	assert.Equal(t, float64(service.DefaultPrincipalQPS), created.Rate.QPS)

	w = f.do(http.MethodPost, "/v1/admin/principals", "", gin.H{"id": "other", "api_key": "keeper-key-1", "identity": keeper})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(http.MethodGet, "/v1/funds", "keeper-key-1", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = f.do(http.MethodDelete, "/v1/admin/principals/keeper", "", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = f.do(http.MethodGet, "/v1/funds", "keeper-key-1", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	w = f.do(http.MethodDelete, "/v1/admin/principals/keeper", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAuditListIsScopedToPrincipal(t *testing.T) {
	f := newFixture(t)
	f.audit.Log(&model.AuditLog{ID: "a", PrincipalID: "manager", CreatedAt: time.Unix(startTime, 0)})
	f.audit.Log(&model.AuditLog{ID: "b", PrincipalID: "investor", CreatedAt: time.Unix(startTime, 0)})

	w := f.do(http.MethodGet, "/v1/audit?to="+time.Unix(startTime+1, 0).UTC().Format(time.RFC3339), "investor-key", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	logs := decode[[]model.AuditLog](t, w)
	require.Len(t, logs, 1)
	assert.Equal(t, "b", logs[0].ID)

	w = f.do(http.MethodGet, "/v1/audit?from=yesterday", "investor-key", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAuditListFiltersByBatch(t *testing.T) {
	f := newFixture(t)
	f.credit(investor, 500_000_000)

	w := f.do(http.MethodPost, "/v1/batches", "investor-key", gin.H{
		"id":          "dep-1",
		"ops":         []gin.H{depositOp(f.fund, 200_000_000)},
		"fill_basket": true,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	w = f.do(http.MethodPost, "/v1/batches", "investor-key", gin.H{
		"id":          "dep-2",
		"ops":         []gin.H{depositOp(f.fund, 1)},
		"fill_basket": true,
	})
	require.Equal(t, http.StatusUnprocessableEntity, w.Code, w.Body.String())

	w = f.do(http.MethodGet, "/v1/audit?batch_id=dep-1", "investor-key", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	logs := decode[[]model.AuditLog](t, w)
	require.Len(t, logs, 1)
	assert.Equal(t, "/v1/batches", logs[0].Path)
	assert.Equal(t, ledger.StatusCommitted, logs[0].Context[model.AuditBatchStatus])
	assert.Equal(t, []string{ledger.OpDeposit}, logs[0].BatchOps())

	w = f.do(http.MethodGet, "/v1/audit?op="+ledger.OpDeposit, "investor-key", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	logs = decode[[]model.AuditLog](t, w)
	require.Len(t, logs, 2)
	assert.Equal(t, "dep-2", logs[0].BatchID())
	assert.Equal(t, float64(0), logs[0].Context[model.AuditFailedOp])

	w = f.do(http.MethodGet, "/v1/audit?op="+ledger.OpSwap, "investor-key", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode[[]model.AuditLog](t, w))

	w = f.do(http.MethodGet, "/v1/audit?batch_id=dep-1", "manager-key", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode[[]model.AuditLog](t, w))

	w = f.do(http.MethodGet, "/v1/audit?op=mint_everything", "investor-key", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMaskSecret(t *testing.T) {
	assert.Equal(t, "", maskSecret("  "))
	assert.Equal(t, "****", maskSecret("short"))
	assert.Equal(t, "abcd...6789", maskSecret("abcdef0123456789"))
}
