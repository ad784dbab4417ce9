package ledger

import (
	"fmt"
	"testing"

	"github.com/GoPolymarket/fundgate/internal/model"
	"github.com/GoPolymarket/fundgate/internal/pkg/apperrors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitializeConfig(t *testing.T) {
	h := newHarness(t)
	h.exec(admin, &InitializeConfig{ConfigID: 1, Keeper: keeper, ConfigParams: defaultParams()})

	cfg := h.state().Configs[model.ConfigKey(1)]
	require.NotNil(t, cfg)
	assert.Equal(t, admin, cfg.Admin)
	assert.Equal(t, keeper, cfg.Keeper)
	assert.Equal(t, uint16(50), cfg.DepositFeeBps)
	assert.Equal(t, int64(86_400), cfg.MaxWithdrawTimelock)

	h.fail(apperrors.CodeAlreadyInitialized, admin, &InitializeConfig{ConfigID: 1, Keeper: keeper, ConfigParams: defaultParams()})
}

func TestInitializeConfigValidation(t *testing.T) {
	tests := []struct {
		name   string
		signer model.Key
		mutate func(*ConfigParams)
		code   apperrors.Code
	}{
		{"unsigned", model.NullKey, func(*ConfigParams) {}, apperrors.CodeUnauthorized},
		{"deposit fee above 100%", admin, func(p *ConfigParams) { p.DepositFeeBps = 10_001 }, apperrors.CodeInvalidFeeBps},
		{"slippage above 100%", admin, func(p *ConfigParams) { p.MaxSlippageBps = 10_001 }, apperrors.CodeInvalidFeeBps},
		{"negative timelock", admin, func(p *ConfigParams) { p.MinWithdrawTimelock = -1 }, apperrors.CodeInvalidTimelock},
		{"inverted timelock range", admin, func(p *ConfigParams) { p.MinWithdrawTimelock = 100; p.MaxWithdrawTimelock = 99 }, apperrors.CodeInvalidTimelock},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			params := defaultParams()
			tt.mutate(&params)
			h.fail(tt.code, tt.signer, &InitializeConfig{ConfigID: 1, Keeper: keeper, ConfigParams: params})
			assert.Empty(t, h.state().Configs)
		})
	}
}

func TestUpdateConfig(t *testing.T) {
	h := newHarness(t)
	h.setupConfig()

	params := defaultParams()
	params.DepositFeeBps = 25
	h.fail(apperrors.CodeUnauthorized, stranger, &UpdateConfig{ConfigID: 1, ConfigParams: params})
	h.fail(apperrors.CodeAccountNotFound, admin, &UpdateConfig{ConfigID: 2, ConfigParams: params})

	h.exec(admin, &UpdateConfig{ConfigID: 1, ConfigParams: params})
	assert.Equal(t, uint16(25), h.state().Configs[model.ConfigKey(1)].DepositFeeBps)

	params.WithdrawFeeBps = 20_000
	h.fail(apperrors.CodeInvalidFeeBps, admin, &UpdateConfig{ConfigID: 1, ConfigParams: params})
	assert.Equal(t, uint16(100), h.state().Configs[model.ConfigKey(1)].WithdrawFeeBps)
}

func TestKeeperRotation(t *testing.T) {
	h := newHarness(t)
	h.setupFund(model.FundTypeStrategy)
	sweep := &SweepWsol{Fund: h.fund}

	h.exec(keeper, sweep)
	h.fail(apperrors.CodeUnauthorized, stranger, sweep)
	h.fail(apperrors.CodeInvalidKeeper, admin, &SetKeeper{ConfigID: 1, Keeper: model.NullKey})
	h.fail(apperrors.CodeUnauthorized, keeper, &SetKeeper{ConfigID: 1, Keeper: keeper})

	h.exec(admin, &RevokeKeeper{ConfigID: 1})
	assert.True(t, h.state().Configs[model.ConfigKey(1)].Keeper.IsZero())
	h.fail(apperrors.CodeUnauthorized, keeper, sweep)
	h.fail(apperrors.CodeUnauthorized, model.NullKey, sweep)

	next := model.NamedKey("keeper-2")
	h.exec(admin, &SetKeeper{ConfigID: 1, Keeper: next})
	h.fail(apperrors.CodeUnauthorized, keeper, sweep)
	h.exec(next, sweep)
}

func TestAddTokenGlobal(t *testing.T) {
	h := newHarness(t)
	h.setupConfig()

	mintC := model.NamedKey("mint/c")
	h.fail(apperrors.CodeUnauthorized, stranger, &AddToken{Scope: model.ScopeGlobal, ConfigID: 1, Mint: mintC, Decimals: 6, Feed: feedA})
	h.fail(apperrors.CodeInvalidOracle, admin, &AddToken{Scope: model.ScopeGlobal, ConfigID: 1, Mint: mintC, Decimals: 6})
	h.fail(apperrors.CodeAlreadyInitialized, admin, &AddToken{Scope: model.ScopeGlobal, ConfigID: 1, Mint: mintA, Decimals: 6, Feed: feedA})
	h.fail(apperrors.CodeInvalidScope, admin, &AddToken{Scope: model.WhitelistScope(7), ConfigID: 1, Mint: mintC, Decimals: 6, Feed: feedA})

	entry := h.state().Whitelist[model.GlobalWhitelistKey(model.ConfigKey(1), mintA)]
	require.NotNil(t, entry)
	assert.True(t, entry.Enabled)
	assert.Equal(t, feedA, entry.Feed)
	assert.Equal(t, uint8(6), entry.Decimals)

	h.exec(admin, &RemoveToken{Scope: model.ScopeGlobal, ConfigID: 1, Mint: mintA})
	assert.NotContains(t, h.state().Whitelist, model.GlobalWhitelistKey(model.ConfigKey(1), mintA))
	h.fail(apperrors.CodeInvalidTokenVault, admin, &RemoveToken{Scope: model.ScopeGlobal, ConfigID: 1, Mint: mintA})
}

func TestAddTokenFund(t *testing.T) {
	h := newHarness(t)
	h.setupFund(model.FundTypeTrading)

	mintC := model.NamedKey("mint/c")
	h.fail(apperrors.CodeUnauthorized, stranger, &AddToken{Scope: model.ScopeFund, Fund: h.fund, Mint: mintA, Feed: feedA})
	h.fail(apperrors.CodeInvalidTokenVault, manager, &AddToken{Scope: model.ScopeFund, Fund: h.fund, Mint: mintC, Feed: feedA})
	h.fail(apperrors.CodeInvalidOracle, manager, &AddToken{Scope: model.ScopeFund, Fund: h.fund, Mint: mintA, Feed: feedB})

	h.exec(manager, &AddToken{Scope: model.ScopeFund, Fund: h.fund, Mint: mintA, Feed: feedA})
	h.fail(apperrors.CodeAlreadyInitialized, manager, &AddToken{Scope: model.ScopeFund, Fund: h.fund, Mint: mintA, Feed: feedA})

	st := h.state()
	assert.Equal(t, uint16(1), st.Funds[h.fund].EnabledTokenCount)
	entry := st.Whitelist[model.FundWhitelistKey(h.fund, mintA)]
	require.NotNil(t, entry)
	assert.Equal(t, h.tokenVault(mintA), entry.Vault)
	assert.Equal(t, uint8(6), entry.Decimals)
	vault := st.Accounts[h.tokenVault(mintA)]
	require.NotNil(t, vault)
	assert.Equal(t, h.fund, vault.Owner)
	assert.Equal(t, mintA, vault.Mint)
}

func TestAddTokenFundCapsStrategyTokens(t *testing.T) {
	h := newHarness(t)
	h.setupFund(model.FundTypeStrategy, mintA, mintB)

	for i := 2; i <= model.MaxStrategyTokens; i++ {
		mint := model.NamedKey(fmt.Sprintf("mint/extra/%d", i))
		feed := model.NamedKey(fmt.Sprintf("feed/extra/%d", i))
		h.exec(admin, &AddToken{Scope: model.ScopeGlobal, ConfigID: 1, Mint: mint, Decimals: 6, Feed: feed})
		add := &AddToken{Scope: model.ScopeFund, Fund: h.fund, Mint: mint, Feed: feed}
		if i < model.MaxStrategyTokens {
			h.exec(manager, add)
			continue
		}
		h.fail(apperrors.CodeInvalidStrategyConfig, manager, add)
	}
	assert.Equal(t, uint16(model.MaxStrategyTokens), h.fundRecord().EnabledTokenCount)
}

func TestRemoveTokenFundRequiresEmptyVault(t *testing.T) {
	h := newHarness(t)
	h.setupFund(model.FundTypeTrading, mintA)
	h.credit(h.fund, mintA, 10)

	remove := &RemoveToken{Scope: model.ScopeFund, Fund: h.fund, Mint: mintA}
	h.fail(apperrors.CodeUnauthorized, stranger, remove)
	h.fail(apperrors.CodeTokenVaultNotEmpty, manager, remove)
	assert.Equal(t, uint16(1), h.fundRecord().EnabledTokenCount)

	h.fail(apperrors.CodeInvalidTokenVault, manager, &RemoveToken{Scope: model.ScopeFund, Fund: h.fund, Mint: mintB})
}

func TestRemoveTokenFund(t *testing.T) {
	h := newHarness(t)
	h.setupFund(model.FundTypeTrading, mintA, mintB)

	h.exec(manager, &RemoveToken{Scope: model.ScopeFund, Fund: h.fund, Mint: mintA})

	st := h.state()
	assert.Equal(t, uint16(1), st.Funds[h.fund].EnabledTokenCount)
	assert.NotContains(t, st.Whitelist, model.FundWhitelistKey(h.fund, mintA))
	assert.NotContains(t, st.Accounts, h.tokenVault(mintA))
	assert.Len(t, h.basket(), 1)
}

func TestBatchIsAtomic(t *testing.T) {
	h := newHarness(t)
	receipt := h.fail(apperrors.CodeInvalidOracle, admin,
		&InitializeConfig{ConfigID: 1, Keeper: keeper, ConfigParams: defaultParams()},
		&AddToken{Scope: model.ScopeGlobal, ConfigID: 1, Mint: mintA, Decimals: 6},
	)
	assert.Equal(t, 1, receipt.FailedOp)
	assert.Empty(t, receipt.Events)
	assert.Empty(t, h.state().Configs)
}
