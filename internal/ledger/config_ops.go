package ledger

import (
	"github.com/GoPolymarket/fundgate/internal/model"
	"github.com/GoPolymarket/fundgate/internal/pkg/apperrors"
)

// ConfigParams are the admin tunable fields of a protocol config.
type ConfigParams struct {
	FeeTreasury         model.Key `json:"fee_treasury"`
	BaseFeed            model.Key `json:"base_feed"`
	OracleProgram       model.Key `json:"oracle_program"`
	DepositFeeBps       uint16    `json:"deposit_fee_bps"`
	WithdrawFeeBps      uint16    `json:"withdraw_fee_bps"`
	TradeFeeBps         uint16    `json:"trade_fee_bps"`
	MaxManagerFeeBps    uint16    `json:"max_manager_fee_bps"`
	MaxSlippageBps      uint16    `json:"max_slippage_bps"`
	MinManagerDeposit   uint64    `json:"min_manager_deposit"`
	MinWithdrawTimelock int64     `json:"min_withdraw_timelock"`
	MaxWithdrawTimelock int64     `json:"max_withdraw_timelock"`
}

func (p ConfigParams) validate() error {
	for _, b := range []uint16{p.DepositFeeBps, p.WithdrawFeeBps, p.TradeFeeBps, p.MaxManagerFeeBps, p.MaxSlippageBps} {
		if b > model.BpsDenominator {
			return apperrors.Rejectf(apperrors.CodeInvalidFeeBps, "fee %d bps exceeds %d", b, model.BpsDenominator)
		}
	}
	if p.MinWithdrawTimelock < 0 || p.MaxWithdrawTimelock < p.MinWithdrawTimelock {
		return apperrors.Rejectf(apperrors.CodeInvalidTimelock, "withdraw timelock range [%d, %d] is invalid",
			p.MinWithdrawTimelock, p.MaxWithdrawTimelock)
	}
	return nil
}

func (p ConfigParams) applyTo(cfg *model.ProtocolConfig) {
	cfg.FeeTreasury = p.FeeTreasury
	cfg.BaseFeed = p.BaseFeed
	cfg.OracleProgram = p.OracleProgram
	cfg.DepositFeeBps = p.DepositFeeBps
	cfg.WithdrawFeeBps = p.WithdrawFeeBps
	cfg.TradeFeeBps = p.TradeFeeBps
	cfg.MaxManagerFeeBps = p.MaxManagerFeeBps
	cfg.MaxSlippageBps = p.MaxSlippageBps
	cfg.MinManagerDeposit = p.MinManagerDeposit
	cfg.MinWithdrawTimelock = p.MinWithdrawTimelock
	cfg.MaxWithdrawTimelock = p.MaxWithdrawTimelock
}

// InitializeConfig creates a protocol config administered by the signer.
type InitializeConfig struct {
	ConfigID uint64    `json:"config_id"`
	Keeper   model.Key `json:"keeper"`
	ConfigParams
}

func (op *InitializeConfig) Name() string { return OpInitializeConfig }

func (op *InitializeConfig) apply(t *txn) error {
	if t.signer.IsZero() {
		return apperrors.Reject(apperrors.CodeUnauthorized, "config admin must sign")
	}
	if err := op.validate(); err != nil {
		return err
	}
	key := model.ConfigKey(op.ConfigID)
	if _, exists := t.st.Configs[key]; exists {
		return apperrors.Rejectf(apperrors.CodeAlreadyInitialized, "config %d already exists", op.ConfigID)
	}
	cfg := &model.ProtocolConfig{Key: key, ConfigID: op.ConfigID, Admin: t.signer, Keeper: op.Keeper}
	op.applyTo(cfg)
	t.st.Configs[key] = cfg
	t.emit(op.Name(), map[string]any{"config": key, "admin": t.signer})
	return nil
}

type UpdateConfig struct {
	ConfigID uint64 `json:"config_id"`
	ConfigParams
}

func (op *UpdateConfig) Name() string { return OpUpdateConfig }

func (op *UpdateConfig) apply(t *txn) error {
	cfg, err := t.config(model.ConfigKey(op.ConfigID))
	if err != nil {
		return err
	}
	if err := t.requireSigner(cfg.Admin, "config admin"); err != nil {
		return err
	}
	if err := op.validate(); err != nil {
		return err
	}
	op.applyTo(cfg)
	t.emit(op.Name(), map[string]any{"config": cfg.Key})
	return nil
}

type SetKeeper struct {
	ConfigID uint64    `json:"config_id"`
	Keeper   model.Key `json:"keeper"`
}

func (op *SetKeeper) Name() string { return OpSetKeeper }

func (op *SetKeeper) apply(t *txn) error {
	cfg, err := t.config(model.ConfigKey(op.ConfigID))
	if err != nil {
		return err
	}
	if err := t.requireSigner(cfg.Admin, "config admin"); err != nil {
		return err
	}
	if op.Keeper.IsZero() {
		return apperrors.Reject(apperrors.CodeInvalidKeeper, "keeper identity must not be null")
	}
	cfg.Keeper = op.Keeper
	t.emit(op.Name(), map[string]any{"config": cfg.Key, "keeper": op.Keeper})
	return nil
}

// RevokeKeeper clears the keeper, which halts every keeper gated operation
// until a new keeper is set.
type RevokeKeeper struct {
	ConfigID uint64 `json:"config_id"`
}

func (op *RevokeKeeper) Name() string { return OpRevokeKeeper }

func (op *RevokeKeeper) apply(t *txn) error {
	cfg, err := t.config(model.ConfigKey(op.ConfigID))
	if err != nil {
		return err
	}
	if err := t.requireSigner(cfg.Admin, "config admin"); err != nil {
		return err
	}
	cfg.Keeper = model.NullKey
	t.emit(op.Name(), map[string]any{"config": cfg.Key})
	return nil
}
