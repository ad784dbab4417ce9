package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/GoPolymarket/fundgate/internal/ledger"
	"github.com/GoPolymarket/fundgate/internal/model"
	"github.com/GoPolymarket/fundgate/internal/pkg/apperrors"
	"github.com/jmoiron/sqlx"
)

// PostgresJournalRepo persists the receipt of every batch.
type PostgresJournalRepo struct {
	db *sqlx.DB
}

func NewPostgresJournalRepo(db *sqlx.DB) *PostgresJournalRepo {
	repo := &PostgresJournalRepo{db: db}
	_ = repo.ensureSchema(context.Background())
	return repo
}

type journalRow struct {
	BatchID   string    `db:"batch_id"`
	Signer    string    `db:"signer"`
	Status    string    `db:"status"`
	Reason    string    `db:"reason"`
	FailedOp  int       `db:"failed_op"`
	Ops       []byte    `db:"ops"`
	Events    []byte    `db:"events"`
	Error     string    `db:"error"`
	Timestamp int64     `db:"ledger_ts"`
	CreatedAt time.Time `db:"created_at"`
}

func (r *PostgresJournalRepo) Record(ctx context.Context, receipt *ledger.Receipt) error {
	if receipt == nil {
		return nil
	}
	ops, err := json.Marshal(receipt.Ops)
	if err != nil {
		return err
	}
	events, err := json.Marshal(receipt.Events)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO batch_journal (
			batch_id, signer, status, reason, failed_op,
			ops, events, error, ledger_ts, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		ON CONFLICT (batch_id) DO NOTHING
	`, receipt.BatchID, receipt.Signer.String(), receipt.Status, string(receipt.Reason), receipt.FailedOp,
		ops, events, receipt.Error, receipt.Timestamp, time.Now().UTC())
	return err
}

func (r *PostgresJournalRepo) List(ctx context.Context, filter ledger.JournalFilter) ([]*ledger.Receipt, error) {
	limit := filter.Limit
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	var f whereClause
	if !filter.Signer.IsZero() {
		f.add("signer", "=", filter.Signer.String())
	}
	if filter.Status != "" {
		f.add("status", "=", filter.Status)
	}
	query, args := f.build(`SELECT batch_id, signer, status, reason, failed_op, ops, events, error, ledger_ts, created_at FROM batch_journal`, "created_at", limit)

	var rows []journalRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	receipts := make([]*ledger.Receipt, 0, len(rows))
	for i := range rows {
		receipt, err := rows[i].toDomain()
		if err != nil {
			return nil, err
		}
		receipts = append(receipts, receipt)
	}
	return receipts, nil
}

func (row *journalRow) toDomain() (*ledger.Receipt, error) {
	signer, err := model.ParseKey(row.Signer)
	if err != nil {
		return nil, err
	}
	receipt := &ledger.Receipt{
		BatchID:   row.BatchID,
		Signer:    signer,
		Timestamp: row.Timestamp,
		Status:    row.Status,
		Reason:    apperrors.Code(row.Reason),
		FailedOp:  row.FailedOp,
		Error:     row.Error,
	}
	if err := json.Unmarshal(row.Ops, &receipt.Ops); err != nil {
		return nil, err
	}
	if len(row.Events) > 0 {
		if err := json.Unmarshal(row.Events, &receipt.Events); err != nil {
			return nil, err
		}
	}
	return receipt, nil
}

func (r *PostgresJournalRepo) ensureSchema(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS batch_journal (
			batch_id TEXT PRIMARY KEY,
			signer TEXT NOT NULL,
			status TEXT NOT NULL,
			reason TEXT,
			failed_op INTEGER NOT NULL DEFAULT -1,
			ops JSONB,
			events JSONB,
			error TEXT,
			ledger_ts BIGINT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`)
	if err != nil {
		return err
	}
	_, _ = r.db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_batch_journal_signer ON batch_journal(signer, created_at DESC)`)
	return nil
}

func (r *PostgresJournalRepo) Cleanup(ctx context.Context, olderThan time.Duration) error {
	return pruneOlderThan(ctx, r.db, "batch_journal", "created_at", olderThan)
}
