package ledger

import (
	"github.com/GoPolymarket/fundgate/internal/model"
	"github.com/GoPolymarket/fundgate/internal/pkg/apperrors"
)

// AddToken whitelists a mint globally (admin) or for one fund (manager).
type AddToken struct {
	Scope    model.WhitelistScope `json:"scope"`
	ConfigID uint64               `json:"config_id"`
	Fund     model.Key            `json:"fund,omitempty"`
	Mint     model.Key            `json:"mint"`
	Decimals uint8                `json:"decimals"`
	Feed     model.Key            `json:"feed"`
}

func (op *AddToken) Name() string { return OpAddToken }

func (op *AddToken) apply(t *txn) error {
	switch op.Scope {
	case model.ScopeGlobal:
		return op.addGlobal(t)
	case model.ScopeFund:
		return op.addFund(t)
	default:
		return apperrors.Rejectf(apperrors.CodeInvalidScope, "unknown whitelist scope %d", op.Scope)
	}
}

func (op *AddToken) addGlobal(t *txn) error {
	cfg, err := t.config(model.ConfigKey(op.ConfigID))
	if err != nil {
		return err
	}
	if err := t.requireSigner(cfg.Admin, "config admin"); err != nil {
		return err
	}
	if op.Feed.IsZero() {
		return apperrors.Reject(apperrors.CodeInvalidOracle, "price feed must not be null")
	}
	key := model.GlobalWhitelistKey(cfg.Key, op.Mint)
	if _, exists := t.st.Whitelist[key]; exists {
		return apperrors.Rejectf(apperrors.CodeAlreadyInitialized, "mint %s is already whitelisted", op.Mint)
	}
	t.st.Whitelist[key] = &model.WhitelistEntry{
		Key:      key,
		Scope:    model.ScopeGlobal,
		Owner:    cfg.Key,
		Mint:     op.Mint,
		Decimals: op.Decimals,
		Feed:     op.Feed,
		Enabled:  true,
	}
	t.emit(op.Name(), map[string]any{"scope": "global", "config": cfg.Key, "mint": op.Mint})
	return nil
}

func (op *AddToken) addFund(t *txn) error {
	f, cfg, err := t.unlockedFund(op.Fund)
	if err != nil {
		return err
	}
	if err := t.requireSigner(f.Manager, "fund manager"); err != nil {
		return err
	}
	global, ok := t.st.Whitelist[model.GlobalWhitelistKey(cfg.Key, op.Mint)]
	if !ok || !global.Enabled || global.Mint != op.Mint {
		return apperrors.Rejectf(apperrors.CodeInvalidTokenVault, "mint %s is not globally whitelisted", op.Mint)
	}
	if global.Feed != op.Feed {
		return apperrors.Reject(apperrors.CodeInvalidOracle, "price feed differs from the global whitelist")
	}
	key := model.FundWhitelistKey(f.Key, op.Mint)
	if _, exists := t.st.Whitelist[key]; exists {
		return apperrors.Rejectf(apperrors.CodeAlreadyInitialized, "mint %s is already a fund asset", op.Mint)
	}
	// a strategy needs one allocation per enabled token
	if f.FundType == model.FundTypeStrategy && f.EnabledTokenCount >= model.MaxStrategyTokens {
		return apperrors.Rejectf(apperrors.CodeInvalidStrategyConfig, "strategy fund already holds %d tokens", f.EnabledTokenCount)
	}
	if err := increment(&f.EnabledTokenCount, "enabled token"); err != nil {
		return err
	}

	vault := model.TokenVaultKey(f.Key, op.Mint)
	t.st.OpenAccount(vault, f.Key, op.Mint)
	t.st.Whitelist[key] = &model.WhitelistEntry{
		Key:      key,
		Scope:    model.ScopeFund,
		Owner:    f.Key,
		Mint:     op.Mint,
		Decimals: global.Decimals,
		Feed:     op.Feed,
		Enabled:  true,
		Vault:    vault,
	}
	t.emit(op.Name(), map[string]any{"scope": "fund", "fund": f.Key, "mint": op.Mint, "vault": vault})
	return nil
}

// RemoveToken closes a whitelist entry. A fund entry can only go once its
// token vault is empty.
type RemoveToken struct {
	Scope    model.WhitelistScope `json:"scope"`
	ConfigID uint64               `json:"config_id"`
	Fund     model.Key            `json:"fund,omitempty"`
	Mint     model.Key            `json:"mint"`
}

func (op *RemoveToken) Name() string { return OpRemoveToken }

func (op *RemoveToken) apply(t *txn) error {
	switch op.Scope {
	case model.ScopeGlobal:
		cfg, err := t.config(model.ConfigKey(op.ConfigID))
		if err != nil {
			return err
		}
		if err := t.requireSigner(cfg.Admin, "config admin"); err != nil {
			return err
		}
		key := model.GlobalWhitelistKey(cfg.Key, op.Mint)
		if _, ok := t.st.Whitelist[key]; !ok {
			return apperrors.Rejectf(apperrors.CodeInvalidTokenVault, "mint %s is not whitelisted", op.Mint)
		}
		delete(t.st.Whitelist, key)
		t.emit(op.Name(), map[string]any{"scope": "global", "config": cfg.Key, "mint": op.Mint})
		return nil
	case model.ScopeFund:
		return op.removeFund(t)
	default:
		return apperrors.Rejectf(apperrors.CodeInvalidScope, "unknown whitelist scope %d", op.Scope)
	}
}

func (op *RemoveToken) removeFund(t *txn) error {
	f, _, err := t.unlockedFund(op.Fund)
	if err != nil {
		return err
	}
	if err := t.requireSigner(f.Manager, "fund manager"); err != nil {
		return err
	}
	key := model.FundWhitelistKey(f.Key, op.Mint)
	wl, ok := t.st.Whitelist[key]
	if !ok || wl.Owner != f.Key {
		return apperrors.Rejectf(apperrors.CodeInvalidTokenVault, "mint %s is not a fund asset", op.Mint)
	}
	if bal := t.st.Balance(wl.Vault); bal != 0 {
		return apperrors.Rejectf(apperrors.CodeTokenVaultNotEmpty, "token vault still holds %d", bal)
	}
	if wl.Enabled {
		if err := decrement(&f.EnabledTokenCount, "enabled token"); err != nil {
			return err
		}
	}
	t.st.CloseAccount(wl.Vault)
	delete(t.st.Whitelist, key)
	t.emit(op.Name(), map[string]any{"scope": "fund", "fund": f.Key, "mint": op.Mint})
	return nil
}
