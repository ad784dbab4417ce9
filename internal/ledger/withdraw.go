package ledger

import (
	"github.com/GoPolymarket/fundgate/internal/model"
	"github.com/GoPolymarket/fundgate/internal/pkg/apperrors"
)

// RequestWithdraw starts the timelock on a redemption. An investor holds at
// most one live request per fund.
type RequestWithdraw struct {
	Fund   model.Key `json:"fund"`
	Shares uint64    `json:"shares"`
}

func (op *RequestWithdraw) Name() string { return OpRequestWithdraw }

func (op *RequestWithdraw) apply(t *txn) error {
	f, _, err := t.unlockedFund(op.Fund)
	if err != nil {
		return err
	}
	if t.signer.IsZero() {
		return apperrors.Reject(apperrors.CodeUnauthorized, "investor must sign")
	}
	if op.Shares == 0 {
		return apperrors.Reject(apperrors.CodeInvalidWithdrawal, "withdrawal must redeem at least one share")
	}
	if held := t.st.Balance(model.AssociatedKey(t.signer, f.ShareMint)); held < op.Shares {
		return apperrors.Rejectf(apperrors.CodeInsufficientShares, "investor holds %d shares, requested %d", held, op.Shares)
	}
	key := model.WithdrawRequestKey(f.Key, t.signer)
	if _, exists := t.st.Withdrawals[key]; exists {
		return apperrors.Reject(apperrors.CodeInvalidWithdrawal, "a withdrawal request is already pending")
	}
	t.st.Withdrawals[key] = &model.WithdrawRequest{
		Key:       key,
		Fund:      f.Key,
		Investor:  t.signer,
		Shares:    op.Shares,
		CreatedAt: t.now,
	}
	t.emit(op.Name(), map[string]any{"fund": f.Key, "investor": t.signer, "shares": op.Shares, "unlocks_at": t.now + f.WithdrawTimelock})
	return nil
}

type CancelWithdraw struct {
	Fund model.Key `json:"fund"`
}

func (op *CancelWithdraw) Name() string { return OpCancelWithdraw }

func (op *CancelWithdraw) apply(t *txn) error {
	req, err := t.withdrawal(op.Fund)
	if err != nil {
		return err
	}
	delete(t.st.Withdrawals, req.Key)
	t.emit(op.Name(), map[string]any{"fund": req.Fund, "investor": req.Investor})
	return nil
}

func (t *txn) withdrawal(fund model.Key) (*model.WithdrawRequest, error) {
	if _, _, err := t.unlockedFund(fund); err != nil {
		return nil, err
	}
	req, ok := t.st.Withdrawals[model.WithdrawRequestKey(fund, t.signer)]
	if !ok {
		return nil, apperrors.Reject(apperrors.CodeInvalidWithdrawal, "no pending withdrawal request")
	}
	if req.Fund != fund {
		return nil, apperrors.Reject(apperrors.CodeInvalidWithdrawal, "withdrawal request belongs to another fund")
	}
	if err := t.requireSigner(req.Investor, "investor"); err != nil {
		return nil, err
	}
	return req, nil
}

// ExecuteWithdraw redeems the pending request at the current NAV once its
// timelock has elapsed.
type ExecuteWithdraw struct {
	Fund       model.Key     `json:"fund"`
	BaseOracle model.Key     `json:"base_oracle"`
	Basket     []BasketEntry `json:"basket"`
}

func (op *ExecuteWithdraw) Name() string { return OpExecuteWithdraw }

func (op *ExecuteWithdraw) BasketFund() model.Key { return op.Fund }

func (op *ExecuteWithdraw) SetBasket(baseOracle model.Key, basket []BasketEntry) {
	op.BaseOracle = baseOracle
	op.Basket = basket
}

func (op *ExecuteWithdraw) apply(t *txn) error {
	f, cfg, err := t.unlockedFund(op.Fund)
	if err != nil {
		return err
	}
	req, err := t.withdrawal(f.Key)
	if err != nil {
		return err
	}
	unlock, err := addTime(req.CreatedAt, f.WithdrawTimelock)
	if err != nil {
		return err
	}
	if t.now < unlock {
		return apperrors.Rejectf(apperrors.CodeWithdrawTimelock, "withdrawal unlocks at %d", unlock)
	}
	if f.TotalShares < req.Shares {
		return apperrors.Reject(apperrors.CodeMathOverflow, "request exceeds outstanding shares")
	}
	if held := t.st.Balance(model.AssociatedKey(req.Investor, f.ShareMint)); held < req.Shares {
		return apperrors.Rejectf(apperrors.CodeInsufficientShares, "investor holds %d shares, request is for %d", held, req.Shares)
	}

	v, err := t.value(f, cfg, op.BaseOracle, op.Basket)
	if err != nil {
		return err
	}
	if v.nav == 0 {
		return apperrors.Reject(apperrors.CodeInvalidNav, "fund NAV is zero")
	}
	gross, err := mulDiv(req.Shares, v.nav, f.TotalShares)
	if err != nil {
		return err
	}
	fee, err := bps(gross, cfg.WithdrawFeeBps)
	if err != nil {
		return err
	}
	net, err := sub(gross, fee)
	if err != nil {
		return err
	}
	if v.base < gross {
		return apperrors.Rejectf(apperrors.CodeInsufficientLiquidity, "vault holds %d, withdrawal needs %d", v.base, gross)
	}

	if err := t.burnShares(f, req.Investor, req.Shares); err != nil {
		return err
	}
	if err := t.move(f.Vault, t.wallet(req.Investor, model.NativeMint), net, apperrors.CodeInsufficientLiquidity); err != nil {
		return err
	}
	if fee > 0 {
		if err := t.move(f.Vault, t.wallet(cfg.FeeTreasury, model.NativeMint), fee, apperrors.CodeInsufficientLiquidity); err != nil {
			return err
		}
	}
	delete(t.st.Withdrawals, req.Key)
	t.emit(op.Name(), map[string]any{"fund": f.Key, "investor": req.Investor, "shares": req.Shares, "gross": gross, "fee": fee, "net": net, "nav": v.nav})
	return nil
}

func addTime(ts, delta int64) (int64, error) {
	sum := ts + delta
	if (delta > 0 && sum < ts) || (delta < 0 && sum > ts) {
		return 0, apperrors.Reject(apperrors.CodeMathOverflow, "timestamp overflow")
	}
	return sum, nil
}
