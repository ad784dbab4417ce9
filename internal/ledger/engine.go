package ledger

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/GoPolymarket/fundgate/internal/model"
	"github.com/GoPolymarket/fundgate/internal/oracle"
	"github.com/GoPolymarket/fundgate/internal/pkg/apperrors"
	"github.com/GoPolymarket/fundgate/internal/pkg/logger"
	"github.com/GoPolymarket/fundgate/internal/pkg/metrics"
	"github.com/GoPolymarket/fundgate/internal/venue"
	"github.com/google/uuid"
)

const (
	DefaultMaxActiveDca                 = 20
	DefaultRebalanceThresholdBps        = 100
	SellDustTolerance            uint64 = 2
)

const (
	StatusCommitted = "committed"
	StatusRejected  = "rejected"
)

// Journal receives the receipt of every batch, committed or rejected.
type Journal interface {
	Record(ctx context.Context, receipt *Receipt) error
}

type Options struct {
	Venues                       []venue.Venue
	Oracle                       oracle.Validator
	MaxActiveDca                 uint16
	DefaultRebalanceThresholdBps uint16
	Clock                        func() time.Time
	Journal                      Journal
}

// Engine applies batches of operations to the ledger. A batch commits only
// if every operation in it succeeds.
type Engine struct {
	store            Store
	venues           map[string]venue.Venue
	oracle           oracle.Validator
	maxActiveDca     uint16
	defaultThreshold uint16
	clock            func() time.Time
	journal          Journal
	log              *slog.Logger
}

func NewEngine(store Store, opts Options) *Engine {
	e := &Engine{
		store:            store,
		venues:           make(map[string]venue.Venue),
		oracle:           opts.Oracle,
		maxActiveDca:     opts.MaxActiveDca,
		defaultThreshold: opts.DefaultRebalanceThresholdBps,
		clock:            opts.Clock,
		journal:          opts.Journal,
		log:              logger.With("component", "ledger"),
	}
	for _, v := range opts.Venues {
		e.venues[v.Name()] = v
	}
	if e.oracle.MaxAgeSeconds == 0 {
		e.oracle = oracle.NewValidator(0, 0)
	}
	if e.maxActiveDca == 0 {
		e.maxActiveDca = DefaultMaxActiveDca
	}
	if e.defaultThreshold == 0 {
		e.defaultThreshold = DefaultRebalanceThresholdBps
	}
	if e.clock == nil {
		e.clock = time.Now
	}
	return e
}

type Batch struct {
	ID     string
	Signer model.Key
	Ops    []Operation
	// FillBaskets completes every basketed operation from the ledger as it
	// stands when that operation runs, after the earlier ops of the batch.
	FillBaskets bool
}

type Event struct {
	Index  int            `json:"index"`
	Op     string         `json:"op"`
	Fields map[string]any `json:"fields,omitempty"`
}

type Receipt struct {
	BatchID   string         `json:"batch_id"`
	Signer    model.Key      `json:"signer"`
	Timestamp int64          `json:"timestamp"`
	Status    string         `json:"status"`
	Ops       []string       `json:"ops"`
	Events    []Event        `json:"events,omitempty"`
	Reason    apperrors.Code `json:"reason,omitempty"`
	FailedOp  int            `json:"failed_op"`
	Error     string         `json:"error,omitempty"`
}

// opError remembers which operation of the batch failed.
type opError struct {
	index int
	err   error
}

func (e *opError) Error() string { return e.err.Error() }
func (e *opError) Unwrap() error { return e.err }

// Execute applies batch atomically against the current ledger time.
func (e *Engine) Execute(ctx context.Context, batch Batch) (*Receipt, error) {
	if batch.ID == "" {
		batch.ID = uuid.NewString()
	}
	now := e.clock().Unix()
	receipt := &Receipt{
		BatchID:   batch.ID,
		Signer:    batch.Signer,
		Timestamp: now,
		Ops:       make([]string, len(batch.Ops)),
		FailedOp:  -1,
	}
	for i, op := range batch.Ops {
		receipt.Ops[i] = op.Name()
	}

	var err error
	if len(batch.Ops) == 0 {
		err = apperrors.NewInvalidRequest("batch has no operations")
	} else {
		err = e.store.Update(ctx, func(st *State) error {
			t := &txn{ctx: ctx, e: e, st: st, signer: batch.Signer, now: now, ops: batch.Ops}
			for i, op := range batch.Ops {
				t.index = i
				if b, ok := op.(Basketed); ok && batch.FillBaskets {
					if fillErr := FillBasket(st, b); fillErr != nil {
						return &opError{index: i, err: fillErr}
					}
				}
				if opErr := op.apply(t); opErr != nil {
					return &opError{index: i, err: opErr}
				}
			}
			receipt.Events = t.events
			return nil
		})
	}

	if err != nil {
		receipt.Status = StatusRejected
		receipt.Events = nil
		receipt.Error = err.Error()
		receipt.Reason = apperrors.CodeOf(err)
		var oe *opError
		if errors.As(err, &oe) {
			receipt.FailedOp = oe.index
			err = oe.err
		}
		reason := string(receipt.Reason)
		if reason == "" {
			reason = "internal"
		}
		metrics.BatchesTotal.WithLabelValues(StatusRejected).Inc()
		metrics.LedgerRejects.WithLabelValues(reason).Inc()
		e.log.Warn("batch rejected", "batch_id", batch.ID, "signer", batch.Signer.String(),
			"ops", receipt.Ops, "failed_op", receipt.FailedOp, "reason", reason, "error", receipt.Error)
		e.record(ctx, receipt)
		return receipt, err
	}

	receipt.Status = StatusCommitted
	metrics.BatchesTotal.WithLabelValues(StatusCommitted).Inc()
	for _, name := range receipt.Ops {
		metrics.OperationsTotal.WithLabelValues(name).Inc()
	}
	e.log.Info("batch committed", "batch_id", batch.ID, "signer", batch.Signer.String(), "ops", receipt.Ops)
	e.record(ctx, receipt)
	return receipt, nil
}

func (e *Engine) record(ctx context.Context, receipt *Receipt) {
	if e.journal == nil {
		return
	}
	if err := e.journal.Record(ctx, receipt); err != nil {
		logger.LogError(ctx, err, "failed to journal batch", "batch_id", receipt.BatchID)
	}
}

// View exposes a read-only snapshot of the ledger.
func (e *Engine) View(ctx context.Context, fn func(*State) error) error {
	return e.store.View(ctx, fn)
}

// Now is the current ledger timestamp.
func (e *Engine) Now() int64 {
	return e.clock().Unix()
}

// PostPrice stores an oracle observation. Older observations never replace
// newer ones.
func (e *Engine) PostPrice(ctx context.Context, acc model.PriceAccount) error {
	if acc.Key.IsZero() {
		return apperrors.NewInvalidRequest("price account key is required")
	}
	stale := false
	if err := e.store.View(ctx, func(st *State) error {
		cur, ok := st.Prices[acc.Key]
		stale = ok && cur.PublishTime > acc.PublishTime
		return nil
	}); err != nil {
		return err
	}
	if stale {
		return nil
	}
	return e.store.Update(ctx, func(st *State) error {
		if cur, ok := st.Prices[acc.Key]; ok && cur.PublishTime > acc.PublishTime {
			return nil
		}
		p := acc
		st.Prices[acc.Key] = &p
		return nil
	})
}

// Credit funds owner's wallet from outside the ledger.
func (e *Engine) Credit(ctx context.Context, owner, mint model.Key, amount uint64) (uint64, error) {
	if owner.IsZero() || amount == 0 {
		return 0, apperrors.NewInvalidRequest("owner and a positive amount are required")
	}
	var balance uint64
	err := e.store.Update(ctx, func(st *State) error {
		key := model.WalletAccount(owner, mint)
		acc := st.OpenAccount(key, owner, mint)
		if acc.Mint != mint {
			return apperrors.Reject(apperrors.CodeInvalidTokenVault, "wallet account holds a different mint")
		}
		if err := st.Mint(key, amount); err != nil {
			return apperrors.RejectWrap(apperrors.CodeMathOverflow, "wallet balance overflows", err)
		}
		balance = acc.Amount
		return nil
	})
	return balance, err
}
