package ledger

import (
	"github.com/GoPolymarket/fundgate/internal/model"
	"github.com/GoPolymarket/fundgate/internal/pkg/apperrors"
)

// CreateDcaOrder escrows the full total up front and lets a keeper spend it
// one slice per interval.
type CreateDcaOrder struct {
	Fund           model.Key  `json:"fund"`
	Side           model.Side `json:"side"`
	Mint           model.Key  `json:"mint"`
	TotalAmount    uint64     `json:"total_amount"`
	SliceAmount    uint64     `json:"slice_amount"`
	IntervalSecs   int64      `json:"interval_secs"`
	MinOut         uint64     `json:"min_out"`
	MaxSlippageBps uint16     `json:"max_slippage_bps"`
	Expiry         int64      `json:"expiry"`
}

func (op *CreateDcaOrder) Name() string { return OpCreateDcaOrder }

func (op *CreateDcaOrder) apply(t *txn) error {
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
	params := orderParams{side: op.Side, mint: op.Mint, amount: op.TotalAmount, minOut: op.MinOut, maxSlippageBps: op.MaxSlippageBps}
	if err := params.validate(cfg); err != nil {
		return err
	}
	if op.IntervalSecs <= 0 {
		return apperrors.Reject(apperrors.CodeInvalidDcaInterval, "interval must be positive")
	}
	if op.SliceAmount == 0 || op.SliceAmount > op.TotalAmount {
		return apperrors.Rejectf(apperrors.CodeInvalidDcaSlice, "slice %d must be within (0, %d]", op.SliceAmount, op.TotalAmount)
	}
	if f.ActiveDcaCount >= t.e.maxActiveDca {
		return apperrors.Rejectf(apperrors.CodeMaxActiveDca, "fund already runs %d DCA orders", f.ActiveDcaCount)
	}
	asset, vault, err := t.fundAsset(f, op.Mint)
	if err != nil {
		return err
	}

	id, err := nextOrderID(f)
	if err != nil {
		return err
	}
	key := model.DcaOrderKey(f.Key, id)
	es := orderEscrow(key, op.Side, op.Mint, dcaEscrow)
	if err := t.fundEscrow(f, vault.Key, op.Side, es, op.TotalAmount); err != nil {
		return err
	}
	f.ActiveDcaCount++
	t.st.DcaOrders[key] = &model.DcaOrder{
		Key:             key,
		Fund:            f.Key,
		OrderID:         id,
		Side:            op.Side,
		Mint:            op.Mint,
		TotalAmount:     op.TotalAmount,
		SliceAmount:     op.SliceAmount,
		RemainingAmount: op.TotalAmount,
		IntervalSecs:    op.IntervalSecs,
		LastExecTs:      t.now,
		MinOut:          op.MinOut,
		MaxSlippageBps:  op.MaxSlippageBps,
		PriceFeed:       asset.Feed,
		OracleProgram:   cfg.OracleProgram,
		Expiry:          op.Expiry,
		Status:          model.OrderStatusOpen,
	}
	t.emit(op.Name(), map[string]any{"fund": f.Key, "order": key, "order_id": id, "side": op.Side.String(), "total": op.TotalAmount, "slice": op.SliceAmount})
	return nil
}

type ExecuteDcaOrder struct {
	Order      model.Key `json:"order"`
	Venue      string    `json:"venue"`
	Oracle     model.Key `json:"oracle,omitempty"`
	BaseOracle model.Key `json:"base_oracle,omitempty"`
}

func (op *ExecuteDcaOrder) Name() string { return OpExecuteDcaOrder }

func (op *ExecuteDcaOrder) apply(t *txn) error {
	order, ok := t.st.DcaOrders[op.Order]
	if !ok {
		return apperrors.Rejectf(apperrors.CodeAccountNotFound, "DCA order %s not found", op.Order)
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
	ready, err := addTime(order.LastExecTs, order.IntervalSecs)
	if err != nil {
		return err
	}
	if t.now < ready {
		return apperrors.Rejectf(apperrors.CodeDcaNotReady, "next slice is due at %d", ready)
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
	slice := min(order.SliceAmount, order.RemainingAmount)
	if slice == 0 {
		return apperrors.Reject(apperrors.CodeDcaCompleted, "order has nothing left to execute")
	}
	v, err := t.venue(op.Venue)
	if err != nil {
		return err
	}

	es := orderEscrow(order.Key, order.Side, order.Mint, dcaEscrow)
	received, err := t.fill(execution{
		fund:       f,
		asset:      asset,
		side:       order.Side,
		escrow:     es,
		amount:     slice,
		minOut:     order.MinOut,
		slippage:   order.MaxSlippageBps,
		tokenPrice: tokenPrice,
		basePrice:  basePrice,
		venue:      v,
	})
	if err != nil {
		return err
	}
	order.RemainingAmount -= slice
	order.LastExecTs = t.now

	fields := map[string]any{"fund": f.Key, "order": order.Key, "slice": slice, "received": received, "remaining": order.RemainingAmount}
	if order.RemainingAmount == 0 {
		swept, err := t.refundEscrow(f, asset.Vault, order.Side, es)
		if err != nil {
			return err
		}
		order.Status = model.OrderStatusCompleted
		if err := decrement(&f.ActiveDcaCount, "active DCA order"); err != nil {
			return err
		}
		fields["swept"] = swept
		fields["status"] = order.Status.String()
	}
	t.emit(op.Name(), fields)
	return nil
}

type CancelDcaOrder struct {
	Order model.Key `json:"order"`
}

func (op *CancelDcaOrder) Name() string { return OpCancelDcaOrder }

func (op *CancelDcaOrder) apply(t *txn) error {
	order, ok := t.st.DcaOrders[op.Order]
	if !ok {
		return apperrors.Rejectf(apperrors.CodeAccountNotFound, "DCA order %s not found", op.Order)
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
	refunded, err := t.refundEscrow(f, model.TokenVaultKey(f.Key, order.Mint), order.Side, orderEscrow(order.Key, order.Side, order.Mint, dcaEscrow))
	if err != nil {
		return err
	}
	order.Status = model.OrderStatusCancelled
	if err := decrement(&f.ActiveDcaCount, "active DCA order"); err != nil {
		return err
	}
	t.emit(op.Name(), map[string]any{"fund": f.Key, "order": order.Key, "refunded": refunded, "remaining": order.RemainingAmount})
	return nil
}
