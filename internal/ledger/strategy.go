package ledger

import (
	"github.com/GoPolymarket/fundgate/internal/model"
	"github.com/GoPolymarket/fundgate/internal/oracle"
	"github.com/GoPolymarket/fundgate/internal/pkg/apperrors"
	"github.com/GoPolymarket/fundgate/internal/pkg/fixedpoint"
	"github.com/GoPolymarket/fundgate/internal/venue"
)

// SetStrategy installs the target weights of a strategy fund. A nil threshold
// takes the engine default.
type SetStrategy struct {
	Fund                  model.Key          `json:"fund"`
	Allocations           []model.Allocation `json:"allocations"`
	RebalanceThresholdBps *uint16            `json:"rebalance_threshold_bps,omitempty"`
	SlippageBps           uint16             `json:"slippage_bps"`
	CooldownSecs          int64              `json:"cooldown_secs"`
}

func (op *SetStrategy) Name() string { return OpSetStrategy }

func (op *SetStrategy) apply(t *txn) error {
	f, cfg, err := t.unlockedFund(op.Fund)
	if err != nil {
		return err
	}
	if err := t.requireSigner(f.Manager, "fund manager"); err != nil {
		return err
	}
	if f.FundType != model.FundTypeStrategy {
		return apperrors.Reject(apperrors.CodeInvalidFundType, "strategies apply to strategy funds only")
	}
	threshold := t.e.defaultThreshold
	if op.RebalanceThresholdBps != nil {
		threshold = *op.RebalanceThresholdBps
	}
	if err := op.validate(t, f, cfg, threshold); err != nil {
		return err
	}

	key := model.StrategyKey(f.Key)
	s, ok := t.st.Strategies[key]
	if !ok {
		s = &model.Strategy{Key: key, Fund: f.Key}
		t.st.Strategies[key] = s
	}
	s.Allocations = append([]model.Allocation(nil), op.Allocations...)
	s.RebalanceThresholdBps = threshold
	s.SlippageBps = op.SlippageBps
	s.CooldownSecs = op.CooldownSecs
	t.emit(op.Name(), map[string]any{"fund": f.Key, "allocations": len(op.Allocations), "threshold_bps": threshold})
	return nil
}

func (op *SetStrategy) validate(t *txn, f *model.Fund, cfg *model.ProtocolConfig, threshold uint16) error {
	invalid := func(format string, args ...any) error {
		return apperrors.Rejectf(apperrors.CodeInvalidStrategyConfig, format, args...)
	}
	n := len(op.Allocations)
	if n == 0 || n > model.MaxStrategyTokens {
		return invalid("strategy needs 1 to %d allocations, got %d", model.MaxStrategyTokens, n)
	}
	if n != int(f.EnabledTokenCount) {
		return invalid("strategy lists %d allocations, fund has %d enabled tokens", n, f.EnabledTokenCount)
	}
	if threshold > model.BpsDenominator {
		return invalid("rebalance threshold %d bps exceeds %d", threshold, model.BpsDenominator)
	}
	if op.SlippageBps > cfg.MaxSlippageBps {
		return invalid("slippage %d bps exceeds %d", op.SlippageBps, cfg.MaxSlippageBps)
	}
	if op.CooldownSecs <= 0 {
		return invalid("cooldown must be positive")
	}
	var sum uint32
	seen := make(map[model.Key]struct{}, n)
	for _, a := range op.Allocations {
		if a.WeightBps == 0 {
			return invalid("allocation for %s has zero weight", a.Mint)
		}
		if _, dup := seen[a.Mint]; dup {
			return invalid("mint %s is allocated twice", a.Mint)
		}
		seen[a.Mint] = struct{}{}
		sum += uint32(a.WeightBps)
		wl, ok := t.st.Whitelist[model.FundWhitelistKey(f.Key, a.Mint)]
		if !ok || !wl.Enabled || wl.Owner != f.Key {
			return invalid("mint %s is not an enabled fund asset", a.Mint)
		}
	}
	if sum != model.BpsDenominator {
		return invalid("weights sum to %d, expected %d", sum, model.BpsDenominator)
	}
	return nil
}

// RebalanceStrategy trades one asset toward its target weight through a
// venue. Only a deviation beyond the threshold is acted on.
type RebalanceStrategy struct {
	Fund       model.Key     `json:"fund"`
	Mint       model.Key     `json:"mint"`
	MinOut     uint64        `json:"min_out"`
	Venue      string        `json:"venue"`
	BaseOracle model.Key     `json:"base_oracle"`
	Basket     []BasketEntry `json:"basket"`
}

func (op *RebalanceStrategy) Name() string { return OpRebalanceStrategy }

func (op *RebalanceStrategy) BasketFund() model.Key { return op.Fund }

func (op *RebalanceStrategy) SetBasket(baseOracle model.Key, basket []BasketEntry) {
	op.BaseOracle = baseOracle
	op.Basket = basket
}

func (op *RebalanceStrategy) apply(t *txn) error {
	f, cfg, err := t.unlockedFund(op.Fund)
	if err != nil {
		return err
	}
	if err := t.requireKeeper(cfg); err != nil {
		return err
	}
	if op.MinOut == 0 {
		return apperrors.Reject(apperrors.CodeInvalidMinOut, "minimum output must be positive")
	}
	if f.FundType != model.FundTypeStrategy {
		return apperrors.Reject(apperrors.CodeInvalidFundType, "rebalancing applies to strategy funds only")
	}
	s, ok := t.st.Strategies[model.StrategyKey(f.Key)]
	if !ok || len(s.Allocations) == 0 || len(s.Allocations) != int(f.EnabledTokenCount) || s.CooldownSecs <= 0 {
		return apperrors.Reject(apperrors.CodeInvalidStrategyConfig, "fund has no usable strategy")
	}
	if bal := t.st.Balance(model.WsolVaultKey(f.Key)); bal != 0 {
		return apperrors.Rejectf(apperrors.CodeWsolNotCleared, "wrapped native account holds %d", bal)
	}
	next, err := addTime(s.LastRebalanceTs, s.CooldownSecs)
	if err != nil {
		return err
	}
	if t.now < next {
		return apperrors.Rejectf(apperrors.CodeRebalanceNotNeeded, "cooldown runs until %d", next)
	}
	var weight uint16
	for _, a := range s.Allocations {
		if a.Mint == op.Mint {
			weight = a.WeightBps
		}
	}
	if weight == 0 {
		return apperrors.Rejectf(apperrors.CodeInvalidStrategyConfig, "mint %s is not part of the strategy", op.Mint)
	}
	v, err := t.venue(op.Venue)
	if err != nil {
		return err
	}

	val, err := t.value(f, cfg, op.BaseOracle, op.Basket)
	if err != nil {
		return err
	}
	if val.nav == 0 {
		return apperrors.Reject(apperrors.CodeInvalidNav, "fund NAV is zero")
	}
	h, ok := val.holding(op.Mint)
	if !ok {
		return apperrors.Rejectf(apperrors.CodeInvalidStrategyConfig, "mint %s is missing from the basket", op.Mint)
	}
	target, err := bps(val.nav, weight)
	if err != nil {
		return err
	}
	threshold, err := bps(val.nav, s.RebalanceThresholdBps)
	if err != nil {
		return err
	}
	under := h.value < target
	deviation := h.value - target
	if under {
		deviation = target - h.value
	}
	if deviation <= threshold {
		return apperrors.Rejectf(apperrors.CodeRebalanceNotNeeded, "deviation %d within threshold %d", deviation, threshold)
	}

	r := rebalance{t: t, fund: f, asset: h.entry, tokenPrice: h.price, basePrice: val.basePrice, slippage: s.SlippageBps, minOut: op.MinOut, venue: v}
	var fields map[string]any
	if under {
		fields, err = r.buy(deviation)
	} else {
		fields, err = r.sell(deviation, h.amount)
	}
	if err != nil {
		return err
	}
	s.LastRebalanceTs = t.now
	fields["fund"] = f.Key
	fields["mint"] = op.Mint
	fields["nav"] = val.nav
	fields["target"] = target
	fields["actual"] = h.value
	t.emit(op.Name(), fields)
	return nil
}

type rebalance struct {
	t          *txn
	fund       *model.Fund
	asset      *model.WhitelistEntry
	tokenPrice oracle.Price
	basePrice  oracle.Price
	slippage   uint16
	minOut     uint64
	venue      venue.Venue
}

func (r rebalance) check(received, expected uint64) error {
	floor, err := fixedpoint.ApplySlippage(expected, r.slippage)
	if err != nil {
		return mathErr(err)
	}
	if received < floor {
		return apperrors.Rejectf(apperrors.CodeInvalidMinOut, "received %d, oracle floor is %d", received, floor)
	}
	if received < r.minOut {
		return apperrors.Rejectf(apperrors.CodeInvalidMinOut, "received %d, minimum is %d", received, r.minOut)
	}
	return nil
}

// buy wraps spend base units and swaps them into the asset vault.
func (r rebalance) buy(spend uint64) (map[string]any, error) {
	t := r.t
	if bal := t.st.Balance(r.fund.Vault); bal < spend {
		return nil, apperrors.Rejectf(apperrors.CodeInsufficientLiquidity, "vault holds %d, rebalance needs %d", bal, spend)
	}
	wsol, err := t.wrap(r.fund, spend)
	if err != nil {
		return nil, err
	}
	before := t.st.Balance(r.asset.Vault)
	req := venue.Request{Source: wsol, Destination: r.asset.Vault, InMint: model.WrappedNativeMint, OutMint: r.asset.Mint, AmountIn: spend}
	if err := t.swap(r.venue, req); err != nil {
		return nil, err
	}
	received := delta(t.st.Balance(r.asset.Vault), before)
	expected, err := oracle.ExpectedTokenOut(spend, r.asset.Decimals, r.tokenPrice, r.basePrice)
	if err != nil {
		return nil, err
	}
	if err := r.check(received, expected); err != nil {
		return nil, err
	}
	return map[string]any{"direction": "buy", "spent": spend, "received": received}, nil
}

// sell swaps enough of the asset to release the base value of excess.
func (r rebalance) sell(excess, held uint64) (map[string]any, error) {
	t := r.t
	amount, err := oracle.ExpectedTokenOut(excess, r.asset.Decimals, r.tokenPrice, r.basePrice)
	if err != nil {
		return nil, err
	}
	amount = min(amount, held)
	if amount == 0 {
		return nil, apperrors.Reject(apperrors.CodeInvalidStrategyConfig, "nothing to sell at the current price")
	}
	tokenBefore := t.st.Balance(r.asset.Vault)
	baseBefore := t.st.Balance(r.fund.Vault)
	req := venue.Request{Source: r.asset.Vault, Destination: r.fund.Vault, InMint: r.asset.Mint, OutMint: model.NativeMint, AmountIn: amount}
	if err := t.swap(r.venue, req); err != nil {
		return nil, err
	}
	tokenAfter := t.st.Balance(r.asset.Vault)
	if tokenAfter > tokenBefore {
		return nil, apperrors.Reject(apperrors.CodeInvalidTokenVault, "asset vault grew during a sell")
	}
	sold := tokenBefore - tokenAfter
	ceiling, err := add(amount, SellDustTolerance)
	if err != nil {
		return nil, err
	}
	if sold == 0 || sold > ceiling {
		return nil, apperrors.Rejectf(apperrors.CodeInvalidTokenVault, "sold %d, allowed at most %d", sold, ceiling)
	}
	received := delta(t.st.Balance(r.fund.Vault), baseBefore)
	expected, err := oracle.ExpectedBaseOut(sold, r.asset.Decimals, r.tokenPrice, r.basePrice)
	if err != nil {
		return nil, err
	}
	if err := r.check(received, expected); err != nil {
		return nil, err
	}
	return map[string]any{"direction": "sell", "sold": sold, "received": received}, nil
}

// wrap converts base units in the vault into the fund's wrapped native
// account.
func (t *txn) wrap(f *model.Fund, amount uint64) (model.Key, error) {
	wsol := model.WsolVaultKey(f.Key)
	t.st.OpenAccount(wsol, f.Key, model.WrappedNativeMint)
	if err := ledgerErr(t.st.Burn(f.Vault, amount), apperrors.CodeInsufficientLiquidity); err != nil {
		return model.NullKey, err
	}
	if err := t.st.Mint(wsol, amount); err != nil {
		return model.NullKey, mathErr(err)
	}
	return wsol, nil
}

// SweepWsol unwraps whatever the fund's wrapped native account holds back
// into the vault and closes it.
type SweepWsol struct {
	Fund    model.Key `json:"fund"`
	Account model.Key `json:"account,omitempty"`
}

func (op *SweepWsol) Name() string { return OpSweepWsol }

func (op *SweepWsol) apply(t *txn) error {
	f, cfg, err := t.unlockedFund(op.Fund)
	if err != nil {
		return err
	}
	if err := t.requireKeeper(cfg); err != nil {
		return err
	}
	wsol := model.WsolVaultKey(f.Key)
	if !op.Account.IsZero() && op.Account != wsol {
		return apperrors.Reject(apperrors.CodeInvalidOrderVault, "account is not the fund's wrapped native account")
	}
	acc, ok := t.st.Accounts[wsol]
	if !ok || acc.Amount == 0 {
		t.emit(op.Name(), map[string]any{"fund": f.Key, "swept": uint64(0)})
		return nil
	}
	if acc.Mint != model.WrappedNativeMint || acc.Owner != f.Key {
		return apperrors.Reject(apperrors.CodeInvalidTokenVault, "wrapped native account is malformed")
	}
	amount := acc.Amount
	if err := t.st.Mint(f.Vault, amount); err != nil {
		return mathErr(err)
	}
	t.st.CloseAccount(wsol)
	t.emit(op.Name(), map[string]any{"fund": f.Key, "swept": amount})
	return nil
}
