package repository

import (
	"context"
	"sync"

	"github.com/GoPolymarket/fundgate/internal/ledger"
)

// MemoryJournal keeps the most recent receipts in a ring buffer.
type MemoryJournal struct {
	mu        sync.Mutex
	maxSize   int
	receipts  []*ledger.Receipt
	nextIndex int
}

func NewMemoryJournal(maxSize int) *MemoryJournal {
	if maxSize <= 0 {
		maxSize = 1000
	}
	return &MemoryJournal{
		maxSize:  maxSize,
		receipts: make([]*ledger.Receipt, 0, maxSize),
	}
}

func (j *MemoryJournal) Record(_ context.Context, receipt *ledger.Receipt) error {
	if receipt == nil {
		return nil
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	if len(j.receipts) < j.maxSize {
		j.receipts = append(j.receipts, receipt)
		return nil
	}
	j.receipts[j.nextIndex] = receipt
	j.nextIndex = (j.nextIndex + 1) % j.maxSize
	return nil
}

func (j *MemoryJournal) List(_ context.Context, filter ledger.JournalFilter) ([]*ledger.Receipt, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	limit := filter.Limit
	if limit <= 0 || limit > j.maxSize {
		limit = j.maxSize
	}
	total := len(j.receipts)
	out := make([]*ledger.Receipt, 0, min(limit, total))
	for i := 0; i < total && len(out) < limit; i++ {
		r := j.receipts[(j.nextIndex+total-1-i)%total]
		if filter.Matches(r) {
			out = append(out, r)
		}
	}
	return out, nil
}
