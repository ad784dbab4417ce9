package ledger

import (
	"github.com/GoPolymarket/fundgate/internal/model"
	"github.com/GoPolymarket/fundgate/internal/oracle"
	"github.com/GoPolymarket/fundgate/internal/pkg/apperrors"
	"github.com/holiman/uint256"
)

// CreateLimitOrder rests an order that a keeper fills once the oracle price
// crosses the limit. A buy escrows base currency, a sell escrows the asset.
type CreateLimitOrder struct {
	Fund           model.Key  `json:"fund"`
	Side           model.Side `json:"side"`
	Mint           model.Key  `json:"mint"`
	AmountIn       uint64     `json:"amount_in"`
	MinOut         uint64     `json:"min_out"`
	LimitPrice     int64      `json:"limit_price"`
	PriceExpo      int32      `json:"price_expo"`
	MaxSlippageBps uint16     `json:"max_slippage_bps"`
	Expiry         int64      `json:"expiry"`
}

func (op *CreateLimitOrder) Name() string { return OpCreateLimitOrder }

func (op *CreateLimitOrder) apply(t *txn) error {
	f, cfg, err := t.unlockedFund(op.Fund)
	if err != nil {
		return err
	}
	if err := t.requireSigner(f.Manager, "fund manager"); err != nil {
		return err
	}
	if err := requireTrading(f); err != nil {
		return err
	}
	params := orderParams{side: op.Side, mint: op.Mint, amount: op.AmountIn, minOut: op.MinOut, maxSlippageBps: op.MaxSlippageBps}
	if err := params.validate(cfg); err != nil {
		return err
	}
	if op.LimitPrice <= 0 {
		return apperrors.Reject(apperrors.CodeInvalidOracle, "limit price must be positive")
	}
	asset, vault, err := t.fundAsset(f, op.Mint)
	if err != nil {
		return err
	}

	id, err := nextOrderID(f)
	if err != nil {
		return err
	}
	key := model.LimitOrderKey(f.Key, id)
	es := orderEscrow(key, op.Side, op.Mint, limitEscrow)
	if err := t.fundEscrow(f, vault.Key, op.Side, es, op.AmountIn); err != nil {
		return err
	}
	if err := increment(&f.ActiveLimitCount, "active limit order"); err != nil {
		return err
	}
	t.st.LimitOrders[key] = &model.LimitOrder{
		Key:            key,
		Fund:           f.Key,
		OrderID:        id,
		Side:           op.Side,
		Mint:           op.Mint,
		AmountIn:       op.AmountIn,
		MinOut:         op.MinOut,
		LimitPrice:     op.LimitPrice,
		PriceExpo:      op.PriceExpo,
		MaxSlippageBps: op.MaxSlippageBps,
		PriceFeed:      asset.Feed,
		OracleProgram:  cfg.OracleProgram,
		CreatedAt:      t.now,
		Expiry:         op.Expiry,
		Status:         model.OrderStatusOpen,
	}
	t.emit(op.Name(), map[string]any{"fund": f.Key, "order": key, "order_id": id, "side": op.Side.String(), "amount_in": op.AmountIn, "escrow": es.account})
	return nil
}

type ExecuteLimitOrder struct {
	Order      model.Key `json:"order"`
	Venue      string    `json:"venue"`
	Oracle     model.Key `json:"oracle,omitempty"`
	BaseOracle model.Key `json:"base_oracle,omitempty"`
}

func (op *ExecuteLimitOrder) Name() string { return OpExecuteLimitOrder }

func (op *ExecuteLimitOrder) apply(t *txn) error {
	order, ok := t.st.LimitOrders[op.Order]
	if !ok {
		return apperrors.Rejectf(apperrors.CodeAccountNotFound, "limit order %s not found", op.Order)
	}
	f, cfg, err := t.unlockedFund(order.Fund)
	if err != nil {
		return err
	}
	if err := t.requireKeeper(cfg); err != nil {
		return err
	}
	if err := requireTrading(f); err != nil {
		return err
	}
	if order.Status != model.OrderStatusOpen {
		return apperrors.Rejectf(apperrors.CodeOrderNotOpen, "order is %s", order.Status)
	}
	if expired(order.Expiry, t.now) {
		return apperrors.Rejectf(apperrors.CodeOrderExpired, "order expired at %d", order.Expiry)
	}
	if !order.Side.Valid() {
		return apperrors.Rejectf(apperrors.CodeInvalidOrderSide, "unknown order side %d", order.Side)
	}
	asset, _, err := t.fundAsset(f, order.Mint)
	if err != nil {
		return err
	}
	tokenPrice, basePrice, err := t.orderPrices(cfg, asset, order.PriceFeed, order.OracleProgram, op.Oracle, op.BaseOracle)
	if err != nil {
		return err
	}
	if err := triggered(order, tokenPrice); err != nil {
		return err
	}
	v, err := t.venue(op.Venue)
	if err != nil {
		return err
	}

	es := orderEscrow(order.Key, order.Side, order.Mint, limitEscrow)
	received, err := t.fill(execution{
		fund:       f,
		asset:      asset,
		side:       order.Side,
		escrow:     es,
		amount:     order.AmountIn,
		minOut:     order.MinOut,
		slippage:   order.MaxSlippageBps,
		tokenPrice: tokenPrice,
		basePrice:  basePrice,
		venue:      v,
	})
	if err != nil {
		return err
	}
	if left := t.st.Balance(es.account); left != 0 {
		return apperrors.Rejectf(apperrors.CodeInvalidOrderVault, "escrow still holds %d after the fill", left)
	}
	t.st.CloseAccount(es.account)
	order.Status = model.OrderStatusExecuted
	if err := decrement(&f.ActiveLimitCount, "active limit order"); err != nil {
		return err
	}
	t.emit(op.Name(), map[string]any{"fund": f.Key, "order": order.Key, "received": received, "price": tokenPrice.Value, "expo": tokenPrice.Expo})
	return nil
}

// triggered compares the oracle price at the order's exponent with its limit.
func triggered(order *model.LimitOrder, p oracle.Price) error {
	scaled, err := oracle.ScalePrice(p.Value, p.Expo, order.PriceExpo)
	if err != nil {
		return err
	}
	cmp := scaled.Cmp(uint256.NewInt(uint64(order.LimitPrice)))
	switch order.Side {
	case model.SideBuy:
		if cmp > 0 {
			return apperrors.Rejectf(apperrors.CodeOrderNotTriggered, "price %s above buy limit %d", scaled.Dec(), order.LimitPrice)
		}
	case model.SideSell:
		if cmp < 0 {
			return apperrors.Rejectf(apperrors.CodeOrderNotTriggered, "price %s below sell limit %d", scaled.Dec(), order.LimitPrice)
		}
	default:
		return apperrors.Rejectf(apperrors.CodeInvalidOrderSide, "unknown order side %d", order.Side)
	}
	return nil
}

type CancelLimitOrder struct {
	Order model.Key `json:"order"`
}

func (op *CancelLimitOrder) Name() string { return OpCancelLimitOrder }

func (op *CancelLimitOrder) apply(t *txn) error {
	order, ok := t.st.LimitOrders[op.Order]
	if !ok {
		return apperrors.Rejectf(apperrors.CodeAccountNotFound, "limit order %s not found", op.Order)
	}
	f, _, err := t.unlockedFund(order.Fund)
	if err != nil {
		return err
	}
	if err := t.requireSigner(f.Manager, "fund manager"); err != nil {
		return err
	}
	if order.Status != model.OrderStatusOpen {
		return apperrors.Rejectf(apperrors.CodeOrderNotOpen, "order is %s", order.Status)
	}
	refunded, err := t.refundEscrow(f, model.TokenVaultKey(f.Key, order.Mint), order.Side, orderEscrow(order.Key, order.Side, order.Mint, limitEscrow))
	if err != nil {
		return err
	}
	order.Status = model.OrderStatusCancelled
	if err := decrement(&f.ActiveLimitCount, "active limit order"); err != nil {
		return err
	}
	t.emit(op.Name(), map[string]any{"fund": f.Key, "order": order.Key, "refunded": refunded})
	return nil
}
