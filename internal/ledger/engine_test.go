package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/GoPolymarket/fundgate/internal/model"
	"github.com/GoPolymarket/fundgate/internal/pkg/apperrors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingJournal struct {
	mu       sync.Mutex
	receipts []*Receipt
}

func (j *recordingJournal) Record(_ context.Context, receipt *Receipt) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.receipts = append(j.receipts, receipt)
	return nil
}

func TestEngineJournalsEveryBatch(t *testing.T) {
	journal := &recordingJournal{}
	engine := NewEngine(NewMemoryStore(), Options{Journal: journal})
	ctx := context.Background()

	ok, err := engine.Execute(ctx, Batch{ID: "batch-1", Signer: admin, Ops: []Operation{
		&InitializeConfig{ConfigID: 1, Keeper: keeper, ConfigParams: defaultParams()},
	}})
	require.NoError(t, err)
	assert.Equal(t, "batch-1", ok.BatchID)
	assert.Equal(t, -1, ok.FailedOp)
	assert.Equal(t, []string{OpInitializeConfig}, ok.Ops)

	rejected, err := engine.Execute(ctx, Batch{Signer: stranger, Ops: []Operation{&RevokeKeeper{ConfigID: 1}}})
	require.Error(t, err)
	assert.NotEmpty(t, rejected.BatchID)
	assert.Equal(t, apperrors.CodeUnauthorized, rejected.Reason)
	assert.NotEmpty(t, rejected.Error)

	require.Len(t, journal.receipts, 2)
	assert.Equal(t, StatusCommitted, journal.receipts[0].Status)
	assert.Equal(t, StatusRejected, journal.receipts[1].Status)
}

func TestEngineRejectsEmptyBatch(t *testing.T) {
	engine := NewEngine(NewMemoryStore(), Options{})
	receipt, err := engine.Execute(context.Background(), Batch{Signer: admin})
	require.Error(t, err)
	assert.Equal(t, StatusRejected, receipt.Status)
	assert.Equal(t, -1, receipt.FailedOp)
	assert.Empty(t, receipt.Reason)
}

func TestEngineHonoursCancelledContext(t *testing.T) {
	engine := NewEngine(NewMemoryStore(), Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := engine.Execute(ctx, Batch{Signer: admin, Ops: []Operation{
		&InitializeConfig{ConfigID: 1, ConfigParams: defaultParams()},
	}})
	require.ErrorIs(t, err, context.Canceled)
}

func TestEngineCustomDcaCap(t *testing.T) {
	h := tradingFund(t)
	h.engine.maxActiveDca = 2
	h.exec(manager, h.dcaBuy(1_000_000, 1_000_000), h.dcaBuy(1_000_000, 1_000_000))
	h.fail(apperrors.CodeMaxActiveDca, manager, h.dcaBuy(1_000_000, 1_000_000))
}

func TestPostPriceKeepsNewest(t *testing.T) {
	h := newHarness(t)
	h.post(feedA, 1_000_000, 0, -6)
	require.NoError(t, h.engine.PostPrice(h.ctx, model.PriceAccount{Key: feedA, Owner: oracleProgram, Price: 5, PublishTime: h.now - 1}))
	assert.Equal(t, int64(1_000_000), h.state().Prices[feedA].Price)

	require.Error(t, h.engine.PostPrice(h.ctx, model.PriceAccount{Price: 5}))
}

func TestCreditRejectsInvalidInput(t *testing.T) {
	h := newHarness(t)
	_, err := h.engine.Credit(h.ctx, model.NullKey, model.NativeMint, 1)
	require.Error(t, err)
	_, err = h.engine.Credit(h.ctx, investor, model.NativeMint, 0)
	require.Error(t, err)

	balance, err := h.engine.Credit(h.ctx, investor, mintA, 7)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), balance)
	balance, err = h.engine.Credit(h.ctx, investor, mintA, 3)
	require.NoError(t, err)
	assert.Equal(t, uint64(10), balance)
}

func TestMemoryStoreSharesCommittedState(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	var first, second *State
	require.NoError(t, store.View(ctx, func(st *State) error { first = st; return nil }))
	require.NoError(t, store.View(ctx, func(st *State) error { second = st; return nil }))
	assert.Same(t, first, second)

	require.NoError(t, store.Update(ctx, func(st *State) error {
		st.OpenAccount(investor, investor, model.NativeMint)
		return nil
	}))
	var third *State
	require.NoError(t, store.View(ctx, func(st *State) error { third = st; return nil }))
	assert.NotSame(t, first, third)
	assert.NotContains(t, first.Accounts, investor)
	assert.Contains(t, third.Accounts, investor)
}

func TestMemoryStoreRollsBackFailedUpdate(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	err := store.Update(ctx, func(st *State) error {
		st.OpenAccount(investor, investor, model.NativeMint)
		return errors.New("abort")
	})
	require.Error(t, err)
	require.NoError(t, store.View(ctx, func(st *State) error {
		assert.NotContains(t, st.Accounts, investor)
		return nil
	}))
}

func TestStateRecordsRestore(t *testing.T) {
	h := tradingFund(t)
	h.exec(manager, h.limitBuy(100_000_000, 1_000_000))
	st := h.state()

	records, err := st.Records()
	require.NoError(t, err)
	restored := NewState()
	kinds := RecordKinds()
	for id, body := range records {
		assert.Contains(t, kinds, id.Kind)
		require.NoError(t, restored.Put(id, body))
	}
	assert.Equal(t, st, restored)
	assert.Error(t, restored.Put(RecordID{Kind: "bogus"}, []byte("{}")))
}

func TestDecodeOperation(t *testing.T) {
	op, err := DecodeOperation(OpCreateLimitOrder, json.RawMessage(`{"fund":"`+mintA.String()+`","side":"sell","amount_in":5}`))
	require.NoError(t, err)
	limit, ok := op.(*CreateLimitOrder)
	require.True(t, ok)
	assert.Equal(t, model.SideSell, limit.Side)
	assert.Equal(t, mintA, limit.Fund)
	assert.Equal(t, uint64(5), limit.AmountIn)

	op, err = DecodeOperation(OpInitializeConfig, json.RawMessage(`{"config_id":3,"deposit_fee_bps":40}`))
	require.NoError(t, err)
	assert.Equal(t, uint16(40), op.(*InitializeConfig).DepositFeeBps)

	op, err = DecodeOperation(OpSweepWsol, nil)
	require.NoError(t, err)
	assert.Equal(t, OpSweepWsol, op.Name())

	_, err = DecodeOperation("mint_everything", nil)
	require.Error(t, err)
	_, err = DecodeOperation(OpDeposit, json.RawMessage(`{"amount":1,"bonus":2}`))
	require.Error(t, err)
	_, err = DecodeOperation(OpCreateDcaOrder, json.RawMessage(`{"side":1}`))
	require.Error(t, err)
}

func TestOperationNames(t *testing.T) {
	names := OperationNames()
	assert.Len(t, names, 23)
	assert.IsNonDecreasing(t, names)
	for _, name := range names {
		op, err := DecodeOperation(name, nil)
		require.NoError(t, err)
		assert.Equal(t, name, op.Name())
	}
}

func TestOperationsListArgs(t *testing.T) {
	infos := Operations()
	require.Len(t, infos, len(OperationNames()))
	byName := make(map[string]OperationInfo, len(infos))
	for _, info := range infos {
		byName[info.Name] = info
	}

	deposit := byName[OpDeposit]
	assert.Equal(t, []string{"fund", "amount", "base_oracle", "basket"}, deposit.Args)
	assert.True(t, deposit.Basketed)

	initConfig := byName[OpInitializeConfig]
	assert.Equal(t, []string{"config_id", "keeper"}, initConfig.Args[:2])
	assert.Contains(t, initConfig.Args, "deposit_fee_bps")
	assert.False(t, initConfig.Basketed)

	assert.NotNil(t, byName[OpSweepWsol].Args)
	assert.True(t, byName[OpRebalanceStrategy].Basketed)
}
