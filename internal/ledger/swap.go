package ledger

import (
	"github.com/GoPolymarket/fundgate/internal/model"
	"github.com/GoPolymarket/fundgate/internal/pkg/apperrors"
	"github.com/GoPolymarket/fundgate/internal/venue"
)

// BorrowForSwap lends base currency out of the vault to the manager. The same
// batch must settle it later with a matching SettleSwap.
type BorrowForSwap struct {
	Fund       model.Key `json:"fund"`
	AmountIn   uint64    `json:"amount_in"`
	MinOut     uint64    `json:"min_out"`
	OutputMint model.Key `json:"output_mint"`
	Receiver   model.Key `json:"receiver"`
}

func (op *BorrowForSwap) Name() string { return OpBorrowForSwap }

func (op *BorrowForSwap) apply(t *txn) error {
	f, _, err := t.fund(op.Fund)
	if err != nil {
		return err
	}
	if err := t.requireSigner(f.Manager, "fund manager"); err != nil {
		return err
	}
	if err := requireTrading(f); err != nil {
		return err
	}
	lock, err := t.lock(f)
	if err != nil {
		return err
	}
	if lock.Locked {
		return apperrors.Reject(apperrors.CodeFundLocked, "fund already has a swap in flight")
	}
	if op.AmountIn == 0 {
		return apperrors.Reject(apperrors.CodeMathOverflow, "borrow amount must be positive")
	}
	if op.MinOut == 0 {
		return apperrors.Reject(apperrors.CodeInvalidMinOut, "minimum output must be positive")
	}
	if op.Receiver != f.Manager {
		return apperrors.Reject(apperrors.CodeInvalidReceiver, "borrowed funds can only go to the manager")
	}
	vaultBefore := t.st.Balance(f.Vault)
	if op.AmountIn > vaultBefore {
		return apperrors.Rejectf(apperrors.CodeInsufficientLiquidity, "vault holds %d, borrow needs %d", vaultBefore, op.AmountIn)
	}
	_, outVault, err := t.fundAsset(f, op.OutputMint)
	if err != nil {
		return err
	}
	if err := op.findSettle(t); err != nil {
		return err
	}

	lock.Locked = true
	lock.Borrowed = op.AmountIn
	lock.ExpectedMinOut = op.MinOut
	lock.SnapshotBase = vaultBefore
	lock.SnapshotOutput = outVault.Amount
	lock.OutputMint = op.OutputMint
	if err := t.move(f.Vault, t.wallet(f.Manager, model.NativeMint), op.AmountIn, apperrors.CodeInsufficientLiquidity); err != nil {
		return err
	}
	t.emit(op.Name(), map[string]any{"fund": f.Key, "amount_in": op.AmountIn, "min_out": op.MinOut, "output_mint": op.OutputMint})
	return nil
}

// findSettle checks the first SettleSwap later in the batch.
func (op *BorrowForSwap) findSettle(t *txn) error {
	for _, next := range t.later() {
		settle, ok := next.(*SettleSwap)
		if !ok {
			continue
		}
		if settle.Fund != op.Fund || settle.OutputMint != op.OutputMint {
			return apperrors.Reject(apperrors.CodeInvalidSettleInstruction, "settle instruction targets another fund or mint")
		}
		return nil
	}
	return apperrors.Reject(apperrors.CodeMissingSettleInstruction, "batch has no settle instruction after the borrow")
}

func (t *txn) lock(f *model.Fund) (*model.TradingLock, error) {
	lock, ok := t.st.Locks[model.TradingLockKey(f.Key)]
	if !ok {
		return nil, apperrors.Rejectf(apperrors.CodeAccountNotFound, "trading lock of fund %s not found", f.Key)
	}
	return lock, nil
}

// unlockedFund loads a fund that must not have a swap in flight.
// Between a borrow and its settle only the venue swap may touch the fund, so
// nothing else can feed the output vault the settle measures.
func (t *txn) unlockedFund(key model.Key) (*model.Fund, *model.ProtocolConfig, error) {
	f, cfg, err := t.fund(key)
	if err != nil {
		return nil, nil, err
	}
	if lock, ok := t.st.Locks[model.TradingLockKey(f.Key)]; ok && lock.Locked {
		return nil, nil, apperrors.Rejectf(apperrors.CodeFundLocked, "fund %s has a swap in flight", f.Key)
	}
	return f, cfg, nil
}

// SettleSwap closes the borrow opened earlier in the batch and checks what
// the manager delivered into the output vault.
type SettleSwap struct {
	Fund       model.Key `json:"fund"`
	OutputMint model.Key `json:"output_mint"`
}

func (op *SettleSwap) Name() string { return OpSettleSwap }

func (op *SettleSwap) apply(t *txn) error {
	f, _, err := t.fund(op.Fund)
	if err != nil {
		return err
	}
	lock, err := t.lock(f)
	if err != nil {
		return err
	}
	if !lock.Locked {
		return apperrors.Reject(apperrors.CodeFundNotLocked, "no swap in flight")
	}
	if err := requireTrading(f); err != nil {
		return err
	}
	if err := t.requireSigner(f.Manager, "fund manager"); err != nil {
		return err
	}
	if op.OutputMint != lock.OutputMint {
		return apperrors.Reject(apperrors.CodeInvalidTokenVault, "output mint differs from the borrow")
	}
	expectedBase, err := sub(lock.SnapshotBase, lock.Borrowed)
	if err != nil {
		return err
	}
	if bal := t.st.Balance(f.Vault); bal != expectedBase {
		return apperrors.Rejectf(apperrors.CodeInvalidTokenVault, "vault holds %d, expected %d after the borrow", bal, expectedBase)
	}
	_, outVault, err := t.fundAsset(f, op.OutputMint)
	if err != nil {
		return err
	}
	if outVault.Amount < lock.SnapshotOutput {
		return apperrors.Reject(apperrors.CodeInvalidTokenVault, "output vault shrank during the swap")
	}
	received := outVault.Amount - lock.SnapshotOutput
	if received < lock.ExpectedMinOut {
		return apperrors.Rejectf(apperrors.CodeInvalidTokenVault, "received %d, minimum is %d", received, lock.ExpectedMinOut)
	}

	borrowed := lock.Borrowed
	*lock = model.TradingLock{Key: lock.Key, Fund: lock.Fund}
	t.emit(op.Name(), map[string]any{"fund": f.Key, "borrowed": borrowed, "received": received, "output_mint": op.OutputMint})
	return nil
}

// Swap routes the signer's own balance through a venue. Destination defaults
// to the signer's wallet for the output mint.
type Swap struct {
	Venue       string    `json:"venue"`
	InMint      model.Key `json:"in_mint"`
	OutMint     model.Key `json:"out_mint"`
	AmountIn    uint64    `json:"amount_in"`
	Destination model.Key `json:"destination,omitempty"`
}

func (op *Swap) Name() string { return OpSwap }

func (op *Swap) apply(t *txn) error {
	if t.signer.IsZero() {
		return apperrors.Reject(apperrors.CodeUnauthorized, "swap must be signed")
	}
	v, err := t.venue(op.Venue)
	if err != nil {
		return err
	}
	source := model.WalletAccount(t.signer, op.InMint)
	if bal := t.st.Balance(source); bal < op.AmountIn {
		return apperrors.Rejectf(apperrors.CodeInsufficientFunds, "wallet holds %d, swap needs %d", bal, op.AmountIn)
	}
	dest := op.Destination
	if dest.IsZero() {
		dest = t.wallet(t.signer, op.OutMint)
	}
	before := t.st.Balance(dest)
	if err := t.swap(v, venue.Request{Source: source, Destination: dest, InMint: op.InMint, OutMint: op.OutMint, AmountIn: op.AmountIn}); err != nil {
		return err
	}
	t.emit(op.Name(), map[string]any{"venue": op.Venue, "amount_in": op.AmountIn, "received": t.st.Balance(dest) - before, "destination": dest})
	return nil
}
