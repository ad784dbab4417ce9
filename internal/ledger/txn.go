package ledger

import (
	"context"
	"errors"

	"github.com/GoPolymarket/fundgate/internal/model"
	"github.com/GoPolymarket/fundgate/internal/oracle"
	"github.com/GoPolymarket/fundgate/internal/pkg/apperrors"
	"github.com/GoPolymarket/fundgate/internal/pkg/fixedpoint"
	"github.com/GoPolymarket/fundgate/internal/venue"
)

// txn is the view of one batch while it is being applied.
type txn struct {
	ctx    context.Context
	e      *Engine
	st     *State
	signer model.Key
	now    int64
	ops    []Operation
	index  int
	events []Event
}

func (t *txn) emit(op string, fields map[string]any) {
	t.events = append(t.events, Event{Index: t.index, Op: op, Fields: fields})
}

// later returns the operations after the one being applied.
func (t *txn) later() []Operation {
	return t.ops[t.index+1:]
}

func (t *txn) config(key model.Key) (*model.ProtocolConfig, error) {
	cfg, ok := t.st.Configs[key]
	if !ok {
		return nil, apperrors.Rejectf(apperrors.CodeAccountNotFound, "config %s not found", key)
	}
	return cfg, nil
}

func (t *txn) fund(key model.Key) (*model.Fund, *model.ProtocolConfig, error) {
	f, ok := t.st.Funds[key]
	if !ok {
		return nil, nil, apperrors.Rejectf(apperrors.CodeAccountNotFound, "fund %s not found", key)
	}
	cfg, err := t.config(f.Config)
	if err != nil {
		return nil, nil, err
	}
	return f, cfg, nil
}

func (t *txn) requireSigner(expected model.Key, role string) error {
	if expected.IsZero() || t.signer != expected {
		return apperrors.Rejectf(apperrors.CodeUnauthorized, "signer is not the %s", role)
	}
	return nil
}

// requireKeeper fails for everyone while the keeper is revoked.
func (t *txn) requireKeeper(cfg *model.ProtocolConfig) error {
	return t.requireSigner(cfg.Keeper, "keeper")
}

func requireTrading(f *model.Fund) error {
	if f.FundType != model.FundTypeTrading {
		return apperrors.Reject(apperrors.CodeInvalidFundType, "operation requires a trading fund")
	}
	return nil
}

// fundAsset returns the enabled fund whitelist entry for mint together with
// its custody vault.
func (t *txn) fundAsset(f *model.Fund, mint model.Key) (*model.WhitelistEntry, *model.TokenAccount, error) {
	wl, ok := t.st.Whitelist[model.FundWhitelistKey(f.Key, mint)]
	if !ok || wl.Scope != model.ScopeFund || wl.Owner != f.Key || wl.Mint != mint || !wl.Enabled {
		return nil, nil, apperrors.Rejectf(apperrors.CodeInvalidTokenVault, "mint %s is not an enabled fund asset", mint)
	}
	vault, ok := t.st.Accounts[wl.Vault]
	if !ok || vault.Mint != mint || vault.Owner != f.Key {
		return nil, nil, apperrors.Rejectf(apperrors.CodeInvalidTokenVault, "token vault for %s is invalid", mint)
	}
	return wl, vault, nil
}

// price loads the price account at key and checks it against the bound feed.
func (t *txn) price(key, feed, program model.Key) (oracle.Price, error) {
	return t.e.oracle.Check(t.st.Prices[key], feed, program, t.now)
}

func (t *txn) basePrice(cfg *model.ProtocolConfig, key model.Key) (oracle.Price, error) {
	return t.price(key, cfg.BaseFeed, cfg.OracleProgram)
}

// move transfers between ledger accounts, reporting a shortfall as short.
func (t *txn) move(from, to model.Key, amount uint64, short apperrors.Code) error {
	return ledgerErr(t.st.Transfer(from, to, amount), short)
}

func (t *txn) venue(name string) (venue.Venue, error) {
	v, ok := t.e.venues[name]
	if !ok {
		return nil, apperrors.Rejectf(apperrors.CodeInvalidSwapProgram, "unknown swap venue %q", name)
	}
	return v, nil
}

func (t *txn) swap(v venue.Venue, req venue.Request) error {
	if _, err := v.Swap(t.ctx, t.st, req); err != nil {
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) {
			return appErr
		}
		if errors.Is(err, ErrInsufficientBalance) {
			return apperrors.RejectWrap(apperrors.CodeInsufficientLiquidity, "swap venue lacks liquidity", err)
		}
		return apperrors.RejectWrap(apperrors.CodeInvalidSwapProgram, "swap venue rejected the route", err)
	}
	return nil
}

func ledgerErr(err error, short apperrors.Code) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrInsufficientBalance):
		return apperrors.RejectWrap(short, "insufficient balance", err)
	case errors.Is(err, ErrMintMismatch):
		return apperrors.RejectWrap(apperrors.CodeInvalidTokenVault, "account mint mismatch", err)
	case errors.Is(err, ErrAccountMissing):
		return apperrors.RejectWrap(apperrors.CodeAccountNotFound, "account not found", err)
	default:
		return mathErr(err)
	}
}

func mathErr(err error) error {
	if err == nil {
		return nil
	}
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return apperrors.RejectWrap(apperrors.CodeMathOverflow, "arithmetic overflow", err)
}

func bps(amount uint64, b uint16) (uint64, error) {
	v, err := fixedpoint.Bps(amount, b)
	return v, mathErr(err)
}

func mulDiv(a, b, d uint64) (uint64, error) {
	v, err := fixedpoint.MulDiv(a, b, d)
	return v, mathErr(err)
}

func sub(a, b uint64) (uint64, error) {
	v, err := fixedpoint.SubChecked(a, b)
	return v, mathErr(err)
}

func add(a, b uint64) (uint64, error) {
	v, err := fixedpoint.AddChecked(a, b)
	return v, mathErr(err)
}

// wallet opens owner's account for mint when missing and returns its key.
func (t *txn) wallet(owner, mint model.Key) model.Key {
	key := model.WalletAccount(owner, mint)
	t.st.OpenAccount(key, owner, mint)
	return key
}
