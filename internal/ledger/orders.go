package ledger

import (
	"github.com/GoPolymarket/fundgate/internal/model"
	"github.com/GoPolymarket/fundgate/internal/oracle"
	"github.com/GoPolymarket/fundgate/internal/pkg/apperrors"
	"github.com/GoPolymarket/fundgate/internal/pkg/fixedpoint"
	"github.com/GoPolymarket/fundgate/internal/venue"
)

// escrowTags names the derivation domains of one order kind.
type escrowTags struct {
	authority string
	base      string
}

var (
	limitEscrow = escrowTags{authority: model.TagLimitOrderVaultAuth, base: model.TagLimitOrderBaseVault}
	dcaEscrow   = escrowTags{authority: model.TagDcaOrderVaultAuth, base: model.TagDcaOrderBaseVault}
)

// escrow is the keyless custody of an order: a base account for buys, the
// authority's token account for sells.
type escrow struct {
	authority model.Key
	account   model.Key
	mint      model.Key
}

func orderEscrow(order model.Key, side model.Side, mint model.Key, tags escrowTags) escrow {
	auth := model.EscrowAuthority(order, tags.authority)
	if side == model.SideBuy {
		return escrow{authority: auth, account: model.EscrowBaseVault(order, tags.base), mint: model.NativeMint}
	}
	return escrow{authority: auth, account: model.AssociatedKey(auth, mint), mint: mint}
}

// LimitEscrowAccount is the account holding a limit order's unfilled input.
func LimitEscrowAccount(o *model.LimitOrder) model.Key {
	return orderEscrow(o.Key, o.Side, o.Mint, limitEscrow).account
}

// DcaEscrowAccount is the account holding a DCA order's remaining input.
func DcaEscrowAccount(o *model.DcaOrder) model.Key {
	return orderEscrow(o.Key, o.Side, o.Mint, dcaEscrow).account
}

// legs returns the fund account an order spends from and the one its
// proceeds land in.
func legs(f *model.Fund, side model.Side, tokenVault model.Key) (source, proceeds model.Key) {
	if side == model.SideBuy {
		return f.Vault, tokenVault
	}
	return tokenVault, f.Vault
}

// orderParams are the fields shared by limit and DCA order creation.
type orderParams struct {
	side           model.Side
	mint           model.Key
	amount         uint64
	minOut         uint64
	maxSlippageBps uint16
}

func (p orderParams) validate(cfg *model.ProtocolConfig) error {
	if !p.side.Valid() {
		return apperrors.Rejectf(apperrors.CodeInvalidOrderSide, "unknown order side %d", p.side)
	}
	if p.amount == 0 {
		return apperrors.Reject(apperrors.CodeMathOverflow, "order amount must be positive")
	}
	if p.minOut == 0 {
		return apperrors.Reject(apperrors.CodeInvalidMinOut, "minimum output must be positive")
	}
	if p.maxSlippageBps > cfg.MaxSlippageBps {
		return apperrors.Rejectf(apperrors.CodeInvalidFeeBps, "slippage %d bps exceeds %d", p.maxSlippageBps, cfg.MaxSlippageBps)
	}
	return nil
}

// fundEscrow moves amount from the fund's spending account into the order
// escrow, opening it.
func (t *txn) fundEscrow(f *model.Fund, vault model.Key, side model.Side, es escrow, amount uint64) error {
	source, _ := legs(f, side, vault)
	if bal := t.st.Balance(source); bal < amount {
		return apperrors.Rejectf(apperrors.CodeInsufficientLiquidity, "fund holds %d, order needs %d", bal, amount)
	}
	t.st.OpenAccount(es.account, es.authority, es.mint)
	return t.move(source, es.account, amount, apperrors.CodeInsufficientLiquidity)
}

// refundEscrow returns whatever the escrow still holds to the fund and
// closes it.
func (t *txn) refundEscrow(f *model.Fund, vault model.Key, side model.Side, es escrow) (uint64, error) {
	source, _ := legs(f, side, vault)
	t.st.OpenAccount(source, f.Key, es.mint)
	left := t.st.Balance(es.account)
	if _, ok := t.st.Accounts[es.account]; ok && left > 0 {
		if err := t.move(es.account, source, left, apperrors.CodeInvalidOrderVault); err != nil {
			return 0, err
		}
	}
	t.st.CloseAccount(es.account)
	return left, nil
}

// execution carries what a keeper fill needs once the order is validated.
type execution struct {
	fund       *model.Fund
	asset      *model.WhitelistEntry
	side       model.Side
	escrow     escrow
	amount     uint64
	minOut     uint64
	slippage   uint16
	tokenPrice oracle.Price
	basePrice  oracle.Price
	venue      venue.Venue
}

// fill swaps amount out of the escrow into the fund and checks the output
// against the oracle quote and the order floor.
func (t *txn) fill(x execution) (uint64, error) {
	if bal := t.st.Balance(x.escrow.account); bal < x.amount {
		return 0, apperrors.Rejectf(apperrors.CodeInvalidOrderVault, "escrow holds %d, fill needs %d", bal, x.amount)
	}
	_, proceeds := legs(x.fund, x.side, x.asset.Vault)
	outMint := x.asset.Mint
	var expected uint64
	var err error
	if x.side == model.SideBuy {
		expected, err = oracle.ExpectedTokenOut(x.amount, x.asset.Decimals, x.tokenPrice, x.basePrice)
	} else {
		outMint = model.NativeMint
		expected, err = oracle.ExpectedBaseOut(x.amount, x.asset.Decimals, x.tokenPrice, x.basePrice)
	}
	if err != nil {
		return 0, err
	}
	floor, err := fixedpoint.ApplySlippage(expected, x.slippage)
	if err != nil {
		return 0, mathErr(err)
	}

	before := t.st.Balance(proceeds)
	req := venue.Request{Source: x.escrow.account, Destination: proceeds, InMint: x.escrow.mint, OutMint: outMint, AmountIn: x.amount}
	if err := t.swap(x.venue, req); err != nil {
		return 0, err
	}
	received := delta(t.st.Balance(proceeds), before)
	if received < x.minOut {
		return 0, apperrors.Rejectf(apperrors.CodeInvalidMinOut, "received %d, order minimum is %d", received, x.minOut)
	}
	if received < floor {
		return 0, apperrors.Rejectf(apperrors.CodeInvalidMinOut, "received %d, oracle floor is %d", received, floor)
	}
	return received, nil
}

// orderPrices loads the asset and base prices for a keeper fill. A zero
// oracle key means the bound feed.
func (t *txn) orderPrices(cfg *model.ProtocolConfig, asset *model.WhitelistEntry, feed, program, tokenOracle, baseOracle model.Key) (oracle.Price, oracle.Price, error) {
	if asset.Feed != feed {
		return oracle.Price{}, oracle.Price{}, apperrors.Reject(apperrors.CodeInvalidOracle, "asset feed changed since the order was placed")
	}
	if tokenOracle.IsZero() {
		tokenOracle = feed
	}
	if baseOracle.IsZero() {
		baseOracle = cfg.BaseFeed
	}
	tokenPrice, err := t.price(tokenOracle, feed, program)
	if err != nil {
		return oracle.Price{}, oracle.Price{}, err
	}
	basePrice, err := t.basePrice(cfg, baseOracle)
	if err != nil {
		return oracle.Price{}, oracle.Price{}, err
	}
	return tokenPrice, basePrice, nil
}

func expired(expiry, now int64) bool {
	return expiry != 0 && now > expiry
}

func delta(after, before uint64) uint64 {
	if after < before {
		return 0
	}
	return after - before
}

func decrement(count *uint16, what string) error {
	if *count == 0 {
		return apperrors.Rejectf(apperrors.CodeMathOverflow, "%s count underflow", what)
	}
	*count--
	return nil
}

func increment(count *uint16, what string) error {
	if *count == ^uint16(0) {
		return apperrors.Rejectf(apperrors.CodeMathOverflow, "%s count overflow", what)
	}
	*count++
	return nil
}

func nextOrderID(f *model.Fund) (uint64, error) {
	id := f.NextOrderID
	next, err := add(id, 1)
	if err != nil {
		return 0, err
	}
	f.NextOrderID = next
	return id, nil
}
