package ledger

import (
	"github.com/GoPolymarket/fundgate/internal/model"
	"github.com/GoPolymarket/fundgate/internal/pkg/apperrors"
)

// InitializeFund creates a fund managed by the signer and seeds it with the
// manager's first deposit. The seed mints shares one to one.
type InitializeFund struct {
	ConfigID           uint64         `json:"config_id"`
	FundID             uint64         `json:"fund_id"`
	FundType           model.FundType `json:"fund_type"`
	InitialDeposit     uint64         `json:"initial_deposit"`
	ManagerFeeBps      uint16         `json:"manager_fee_bps"`
	MinInvestorDeposit uint64         `json:"min_investor_deposit"`
	WithdrawTimelock   int64          `json:"withdraw_timelock"`
}

func (op *InitializeFund) Name() string { return OpInitializeFund }

func (op *InitializeFund) apply(t *txn) error {
	cfg, err := t.config(model.ConfigKey(op.ConfigID))
	if err != nil {
		return err
	}
	if t.signer.IsZero() {
		return apperrors.Reject(apperrors.CodeUnauthorized, "fund manager must sign")
	}
	if op.FundType != model.FundTypeTrading && op.FundType != model.FundTypeStrategy {
		return apperrors.Rejectf(apperrors.CodeInvalidFundType, "unknown fund type %d", op.FundType)
	}
	if op.WithdrawTimelock < cfg.MinWithdrawTimelock || op.WithdrawTimelock > cfg.MaxWithdrawTimelock {
		return apperrors.Rejectf(apperrors.CodeInvalidTimelock, "withdraw timelock %d outside [%d, %d]",
			op.WithdrawTimelock, cfg.MinWithdrawTimelock, cfg.MaxWithdrawTimelock)
	}
	if op.ManagerFeeBps > cfg.MaxManagerFeeBps {
		return apperrors.Rejectf(apperrors.CodeInvalidFeeBps, "manager fee %d bps exceeds %d", op.ManagerFeeBps, cfg.MaxManagerFeeBps)
	}
	if op.InitialDeposit < cfg.MinManagerDeposit {
		return apperrors.Rejectf(apperrors.CodeDepositTooSmall, "initial deposit %d below %d", op.InitialDeposit, cfg.MinManagerDeposit)
	}

	key := model.FundKey(cfg.Key, t.signer, op.FundID)
	if _, exists := t.st.Funds[key]; exists {
		return apperrors.Rejectf(apperrors.CodeAlreadyInitialized, "fund %d already exists", op.FundID)
	}

	fee, err := bps(op.InitialDeposit, cfg.DepositFeeBps)
	if err != nil {
		return err
	}
	net, err := sub(op.InitialDeposit, fee)
	if err != nil {
		return err
	}
	if net == 0 {
		return apperrors.Reject(apperrors.CodeZeroShares, "initial deposit leaves nothing after fees")
	}

	f := &model.Fund{
		Key:                key,
		Config:             cfg.Key,
		Manager:            t.signer,
		FundID:             op.FundID,
		FundType:           op.FundType,
		ShareMint:          model.ShareMintKey(key),
		Vault:              model.VaultKey(key),
		ManagerFeeBps:      op.ManagerFeeBps,
		MinInvestorDeposit: op.MinInvestorDeposit,
		WithdrawTimelock:   op.WithdrawTimelock,
		CreatedAt:          t.now,
	}
	t.st.Funds[key] = f
	lockKey := model.TradingLockKey(key)
	t.st.Locks[lockKey] = &model.TradingLock{Key: lockKey, Fund: key}
	t.st.OpenAccount(f.Vault, key, model.NativeMint)

	source := model.WalletAccount(t.signer, model.NativeMint)
	if err := t.collect(cfg, source, f.Vault, fee, net); err != nil {
		return err
	}
	if err := t.mintShares(f, t.signer, net); err != nil {
		return err
	}
	t.emit(op.Name(), map[string]any{"fund": key, "manager": t.signer, "fund_type": op.FundType.String(), "shares": net, "fee": fee})
	return nil
}

// collect pays fee to the treasury and net into dest, both out of source.
func (t *txn) collect(cfg *model.ProtocolConfig, source, dest model.Key, fee, net uint64) error {
	if _, ok := t.st.Accounts[source]; !ok {
		return apperrors.Reject(apperrors.CodeInsufficientFunds, "payer holds no base currency")
	}
	total, err := add(fee, net)
	if err != nil {
		return err
	}
	if bal := t.st.Balance(source); bal < total {
		return apperrors.Rejectf(apperrors.CodeInsufficientFunds, "payer holds %d, needs %d", bal, total)
	}
	if fee > 0 {
		if err := t.move(source, t.wallet(cfg.FeeTreasury, model.NativeMint), fee, apperrors.CodeInsufficientFunds); err != nil {
			return err
		}
	}
	return t.move(source, dest, net, apperrors.CodeInsufficientFunds)
}

func (t *txn) mintShares(f *model.Fund, owner model.Key, shares uint64) error {
	total, err := add(f.TotalShares, shares)
	if err != nil {
		return err
	}
	account := model.AssociatedKey(owner, f.ShareMint)
	t.st.OpenAccount(account, owner, f.ShareMint)
	if err := t.st.Mint(account, shares); err != nil {
		return mathErr(err)
	}
	f.TotalShares = total
	return nil
}

func (t *txn) burnShares(f *model.Fund, owner model.Key, shares uint64) error {
	total, err := sub(f.TotalShares, shares)
	if err != nil {
		return err
	}
	if err := ledgerErr(t.st.Burn(model.AssociatedKey(owner, f.ShareMint), shares), apperrors.CodeInsufficientShares); err != nil {
		return err
	}
	f.TotalShares = total
	return nil
}

// Deposit buys shares at the NAV observed before the deposit lands.
type Deposit struct {
	Fund       model.Key     `json:"fund"`
	Amount     uint64        `json:"amount"`
	BaseOracle model.Key     `json:"base_oracle"`
	Basket     []BasketEntry `json:"basket"`
}

func (op *Deposit) Name() string { return OpDeposit }

func (op *Deposit) BasketFund() model.Key { return op.Fund }

func (op *Deposit) SetBasket(baseOracle model.Key, basket []BasketEntry) {
	op.BaseOracle = baseOracle
	op.Basket = basket
}

func (op *Deposit) apply(t *txn) error {
	f, cfg, err := t.unlockedFund(op.Fund)
	if err != nil {
		return err
	}
	if t.signer.IsZero() {
		return apperrors.Reject(apperrors.CodeUnauthorized, "investor must sign")
	}
	if op.Amount < f.MinInvestorDeposit {
		return apperrors.Rejectf(apperrors.CodeDepositTooSmall, "deposit %d below %d", op.Amount, f.MinInvestorDeposit)
	}
	fee, err := bps(op.Amount, cfg.DepositFeeBps)
	if err != nil {
		return err
	}
	net, err := sub(op.Amount, fee)
	if err != nil {
		return err
	}

	v, err := t.value(f, cfg, op.BaseOracle, op.Basket)
	if err != nil {
		return err
	}
	minted, err := sharesFor(net, f.TotalShares, v.nav)
	if err != nil {
		return err
	}

	if err := t.collect(cfg, model.WalletAccount(t.signer, model.NativeMint), f.Vault, fee, net); err != nil {
		return err
	}
	if err := t.mintShares(f, t.signer, minted); err != nil {
		return err
	}
	t.emit(op.Name(), map[string]any{"fund": f.Key, "investor": t.signer, "amount": op.Amount, "fee": fee, "shares": minted, "nav": v.nav})
	return nil
}

// sharesFor prices net base units against nav. The first deposit into an
// empty fund mints one share per unit.
func sharesFor(net, totalShares, nav uint64) (uint64, error) {
	var minted uint64
	if totalShares == 0 {
		minted = net
	} else {
		if nav == 0 {
			return 0, apperrors.Reject(apperrors.CodeInvalidNav, "fund has outstanding shares but zero NAV")
		}
		var err error
		if minted, err = mulDiv(net, totalShares, nav); err != nil {
			return 0, err
		}
	}
	if minted == 0 {
		return 0, apperrors.Reject(apperrors.CodeZeroShares, "deposit is too small to mint a share")
	}
	return minted, nil
}
