package ledger

import (
	"testing"

	"github.com/GoPolymarket/fundgate/internal/model"
	"github.com/GoPolymarket/fundgate/internal/pkg/apperrors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitializeFundSeedsShares(t *testing.T) {
	h := newHarness(t)
	h.setupFund(model.FundTypeTrading)

	f := h.fundRecord()
	assert.Equal(t, manager, f.Manager)
	assert.Equal(t, seedShares, f.TotalShares)
	assert.Equal(t, uint16(100), f.ManagerFeeBps)
	assert.Equal(t, int64(3_600), f.WithdrawTimelock)
	assert.Equal(t, startTime, f.CreatedAt)

	assert.Equal(t, seedShares, h.balance(h.vault()))
	assert.Equal(t, seedShares, h.balance(model.AssociatedKey(manager, f.ShareMint)))
	assert.Equal(t, uint64(5_000_000), h.balance(treasury))
	assert.Equal(t, 9*seedDeposit, h.balance(manager))

	lock := h.state().Locks[model.TradingLockKey(h.fund)]
	require.NotNil(t, lock)
	assert.False(t, lock.Locked)
	h.assertSharesConserved()
}

func TestInitializeFundValidation(t *testing.T) {
	base := InitializeFund{
		ConfigID:           1,
		FundID:             1,
		FundType:           model.FundTypeTrading,
		InitialDeposit:     seedDeposit,
		ManagerFeeBps:      100,
		MinInvestorDeposit: 1,
		WithdrawTimelock:   0,
	}
	tests := []struct {
		name   string
		signer model.Key
		mutate func(*InitializeFund)
		code   apperrors.Code
	}{
		{"unknown config", manager, func(op *InitializeFund) { op.ConfigID = 9 }, apperrors.CodeAccountNotFound},
		{"unsigned", model.NullKey, func(*InitializeFund) {}, apperrors.CodeUnauthorized},
		{"unknown fund type", manager, func(op *InitializeFund) { op.FundType = model.FundType(5) }, apperrors.CodeInvalidFundType},
		{"timelock above range", manager, func(op *InitializeFund) { op.WithdrawTimelock = 86_401 }, apperrors.CodeInvalidTimelock},
		{"manager fee above cap", manager, func(op *InitializeFund) { op.ManagerFeeBps = 2_001 }, apperrors.CodeInvalidFeeBps},
		{"seed below minimum", manager, func(op *InitializeFund) { op.InitialDeposit = seedDeposit - 1 }, apperrors.CodeDepositTooSmall},
		{"manager without funds", stranger, func(*InitializeFund) {}, apperrors.CodeInsufficientFunds},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.setupConfig()
			h.credit(manager, model.NativeMint, 10*seedDeposit)
			op := base
			tt.mutate(&op)
			h.fail(tt.code, tt.signer, &op)
			assert.Empty(t, h.state().Funds)
		})
	}
}

func TestInitializeFundRejectsDuplicate(t *testing.T) {
	h := newHarness(t)
	h.setupFund(model.FundTypeTrading)
	h.fail(apperrors.CodeAlreadyInitialized, manager, &InitializeFund{
		ConfigID:       1,
		FundID:         1,
		InitialDeposit: seedDeposit,
	})
	assert.Equal(t, 9*seedDeposit, h.balance(manager))
}

func TestDepositIntoBaseOnlyFund(t *testing.T) {
	h := newHarness(t)
	h.setupFund(model.FundTypeTrading)
	h.credit(investor, model.NativeMint, 2*seedDeposit)

	receipt := h.exec(investor, &Deposit{Fund: h.fund, Amount: seedDeposit})
	require.Len(t, receipt.Events, 1)
	assert.Equal(t, OpDeposit, receipt.Events[0].Op)

	f := h.fundRecord()
	assert.Equal(t, 2*seedShares, f.TotalShares)
	assert.Equal(t, seedShares, h.balance(model.AssociatedKey(investor, f.ShareMint)))
	assert.Equal(t, 2*seedShares, h.balance(h.vault()))
	assert.Equal(t, seedDeposit, h.balance(investor))
	assert.Equal(t, uint64(10_000_000), h.balance(treasury))
	h.assertSharesConserved()
}

func TestFillBasketsSeesEarlierOps(t *testing.T) {
	h := newHarness(t)
	h.setupFund(model.FundTypeTrading)
	addA := &AddToken{Scope: model.ScopeFund, Fund: h.fund, Mint: mintA, Feed: feedA}

	// a basket taken before the batch misses the token the batch adds
	stale := &Deposit{Fund: h.fund, Amount: 100_000_000}
	require.NoError(t, FillBasket(h.state(), stale))
	require.Empty(t, stale.Basket)
	h.fail(apperrors.CodeInvalidRemainingAccounts, manager, addA, stale)

	deposit := &Deposit{Fund: h.fund, Amount: 100_000_000}
	receipt, err := h.engine.Execute(h.ctx, Batch{Signer: manager, Ops: []Operation{addA, deposit}, FillBaskets: true})
	require.NoError(t, err)
	assert.Equal(t, StatusCommitted, receipt.Status)
	require.Len(t, deposit.Basket, 1)
	assert.Equal(t, h.tokenVault(mintA), deposit.Basket[0].Vault)
	assert.Equal(t, uint64(seedShares+99_500_000), h.fundRecord().TotalShares)
	h.assertSharesConserved()
}

func TestDepositPricesSharesAtPreDepositNav(t *testing.T) {
	h := newHarness(t)
	h.setupFund(model.FundTypeTrading, mintA)
	// 150 A at 1.00 against a base price of 150.00 is worth one full base unit.
	h.credit(h.fund, mintA, 150_000_000)
	h.credit(investor, model.NativeMint, 2*seedDeposit)

	nav, err := h.engine.NAV(h.ctx, h.fund)
	require.NoError(t, err)
	assert.Equal(t, uint64(1_995_000_000), nav.Nav)
	assert.Equal(t, seedShares, nav.Base)
	require.Len(t, nav.Holdings, 1)
	assert.Equal(t, uint64(1_000_000_000), nav.Holdings[0].Value)

	op := &Deposit{Fund: h.fund, Amount: 2 * seedDeposit}
	require.NoError(t, FillBasket(h.state(), op))
	assert.Equal(t, baseFeed, op.BaseOracle)
	require.Len(t, op.Basket, 1)
	h.exec(investor, op)

	// fee 10_000_000, net 1_990_000_000 priced at 1_995_000_000 / 995_000_000
	f := h.fundRecord()
	assert.Equal(t, uint64(992_506_265), h.balance(model.AssociatedKey(investor, f.ShareMint)))
	assert.Equal(t, seedShares+992_506_265, f.TotalShares)
	assert.Equal(t, seedShares+1_990_000_000, h.balance(h.vault()))
	assert.Equal(t, uint64(15_000_000), h.balance(treasury))
	h.assertSharesConserved()
}

func TestDepositRejections(t *testing.T) {
	h := newHarness(t)
	h.setupFund(model.FundTypeTrading)
	h.credit(investor, model.NativeMint, 50_000_000)

	h.fail(apperrors.CodeDepositTooSmall, investor, &Deposit{Fund: h.fund, Amount: 99_999_999})
	h.fail(apperrors.CodeInsufficientFunds, investor, &Deposit{Fund: h.fund, Amount: 100_000_000})
	h.fail(apperrors.CodeInsufficientFunds, stranger, &Deposit{Fund: h.fund, Amount: 100_000_000})
	h.fail(apperrors.CodeUnauthorized, model.NullKey, &Deposit{Fund: h.fund, Amount: 100_000_000})
	h.fail(apperrors.CodeAccountNotFound, investor, &Deposit{Fund: model.NamedKey("nope"), Amount: 100_000_000})

	basket := []BasketEntry{{Whitelist: model.FundWhitelistKey(h.fund, mintA), Vault: h.tokenVault(mintA), Oracle: feedA}}
	h.fail(apperrors.CodeInvalidRemainingAccounts, investor, &Deposit{Fund: h.fund, Amount: 100_000_000, BaseOracle: baseFeed, Basket: basket})
	assert.Equal(t, seedShares, h.fundRecord().TotalShares)
}

func TestDepositBasketIntegrity(t *testing.T) {
	h := newHarness(t)
	h.setupFund(model.FundTypeTrading, mintA, mintB)
	h.credit(investor, model.NativeMint, 2*seedDeposit)
	lo, hi := orderedMints()
	feeds := map[model.Key]model.Key{mintA: feedA, mintB: feedB}
	entry := func(mint model.Key) BasketEntry {
		return BasketEntry{Whitelist: model.FundWhitelistKey(h.fund, mint), Vault: h.tokenVault(mint), Oracle: feeds[mint]}
	}
	deposit := func(baseOracle model.Key, basket ...BasketEntry) *Deposit {
		return &Deposit{Fund: h.fund, Amount: seedDeposit, BaseOracle: baseOracle, Basket: basket}
	}

	wrongVault := entry(hi)
	wrongVault.Vault = h.tokenVault(lo)
	wrongOracle := entry(hi)
	wrongOracle.Oracle = feeds[lo]
	foreign := entry(hi)
	foreign.Whitelist = model.GlobalWhitelistKey(model.ConfigKey(1), hi)

	tests := []struct {
		name string
		op   *Deposit
		code apperrors.Code
	}{
		{"missing entry", deposit(baseFeed, entry(lo)), apperrors.CodeInvalidRemainingAccounts},
		{"extra entry", deposit(baseFeed, entry(lo), entry(hi), entry(hi)), apperrors.CodeInvalidRemainingAccounts},
		{"descending", deposit(baseFeed, entry(hi), entry(lo)), apperrors.CodeInvalidWhitelistOrder},
		{"duplicate", deposit(baseFeed, entry(lo), entry(lo)), apperrors.CodeInvalidWhitelistOrder},
		{"global entry", deposit(baseFeed, entry(lo), foreign), apperrors.CodeInvalidRemainingAccounts},
		{"wrong vault", deposit(baseFeed, entry(lo), wrongVault), apperrors.CodeInvalidTokenVault},
		{"wrong oracle", deposit(baseFeed, entry(lo), wrongOracle), apperrors.CodeInvalidOracle},
		{"wrong base oracle", deposit(feedA, entry(lo), entry(hi)), apperrors.CodeInvalidOracle},
	}
	for _, tt := range tests {
		_, err := h.engine.Execute(h.ctx, Batch{Signer: investor, Ops: []Operation{tt.op}})
		assert.Equal(t, tt.code, apperrors.CodeOf(err), tt.name)
	}

	h.exec(investor, deposit(baseFeed, entry(lo), entry(hi)))
	h.assertSharesConserved()
}

func TestDepositOracleFreshness(t *testing.T) {
	h := newHarness(t)
	h.setupFund(model.FundTypeTrading, mintA)
	h.credit(investor, model.NativeMint, 2*seedDeposit)
	op := func() *Deposit {
		d := &Deposit{Fund: h.fund, Amount: seedDeposit}
		require.NoError(t, FillBasket(h.state(), d))
		return d
	}

	h.advance(61)
	h.fail(apperrors.CodeStaleOracle, investor, op())

	h.postPrices()
	// 2% of 1.00 is the widest confidence interval accepted.
	h.post(feedA, 1_000_000, 20_001, -6)
	h.fail(apperrors.CodeInvalidOracleConfidence, investor, op())

	h.post(feedA, 1_000_000, 20_000, -6)
	h.exec(investor, op())
}

func TestDepositRejectsForeignOracleOwner(t *testing.T) {
	h := newHarness(t)
	h.setupFund(model.FundTypeTrading, mintA)
	h.credit(investor, model.NativeMint, 2*seedDeposit)
	require.NoError(t, h.engine.PostPrice(h.ctx, model.PriceAccount{
		Key:         feedA,
		Owner:       stranger,
		Price:       1_000_000,
		Expo:        -6,
		PublishTime: h.now + 1,
	}))
	h.advance(1)

	op := &Deposit{Fund: h.fund, Amount: seedDeposit}
	require.NoError(t, FillBasket(h.state(), op))
	h.fail(apperrors.CodeInvalidOracle, investor, op)
}
