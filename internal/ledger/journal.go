package ledger

import (
	"context"

	"github.com/GoPolymarket/fundgate/internal/model"
)

// JournalFilter selects receipts. Zero fields match everything.
type JournalFilter struct {
	Signer model.Key
	Status string
	Limit  int
}

// JournalReader lists journalled receipts, newest first.
type JournalReader interface {
	List(ctx context.Context, filter JournalFilter) ([]*Receipt, error)
}

// Matches reports whether r passes every set field of f.
func (f JournalFilter) Matches(r *Receipt) bool {
	if !f.Signer.IsZero() && r.Signer != f.Signer {
		return false
	}
	if f.Status != "" && r.Status != f.Status {
		return false
	}
	return true
}
