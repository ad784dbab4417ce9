package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/GoPolymarket/fundgate/internal/model"
	"github.com/jmoiron/sqlx"
)

// PostgresAuditRepo stores audited requests. The batch id a handler attaches
// to the entry context gets its own column so a batch can be traced back to
// the request that submitted it.
type PostgresAuditRepo struct {
	db *sqlx.DB
}

func NewPostgresAuditRepo(db *sqlx.DB) *PostgresAuditRepo {
	repo := &PostgresAuditRepo{db: db}
	_ = repo.ensureSchema(context.Background())
	return repo
}

type auditRow struct {
	ID            string    `db:"id"`
	PrincipalID   string    `db:"principal_id"`
	BatchID       string    `db:"batch_id"`
	Method        string    `db:"method"`
	Path          string    `db:"path"`
	IP            string    `db:"ip"`
	UserAgent     string    `db:"user_agent"`
	RequestBody   string    `db:"request_body"`
	RequestHeader string    `db:"request_header"`
	StatusCode    int       `db:"status_code"`
	ResponseBody  string    `db:"response_body"`
	LatencyMs     int64     `db:"latency_ms"`
	Context       []byte    `db:"context"`
	CreatedAt     time.Time `db:"created_at"`
}

func newAuditRow(entry *model.AuditLog) (*auditRow, error) {
	row := &auditRow{
		ID:            entry.ID,
		PrincipalID:   entry.PrincipalID,
		Method:        entry.Method,
		Path:          entry.Path,
		IP:            entry.IP,
		UserAgent:     entry.UserAgent,
		RequestBody:   entry.RequestBody,
		RequestHeader: entry.RequestHeader,
		StatusCode:    entry.StatusCode,
		ResponseBody:  entry.ResponseBody,
		LatencyMs:     entry.LatencyMs,
		CreatedAt:     entry.CreatedAt,
	}
	row.BatchID = entry.BatchID()
	ctxJSON, err := json.Marshal(entry.Context)
	if err != nil {
		return nil, err
	}
	row.Context = ctxJSON
	return row, nil
}

func (row *auditRow) toDomain() *model.AuditLog {
	entry := &model.AuditLog{
		ID:            row.ID,
		PrincipalID:   row.PrincipalID,
		Method:        row.Method,
		Path:          row.Path,
		IP:            row.IP,
		UserAgent:     row.UserAgent,
		RequestBody:   row.RequestBody,
		RequestHeader: row.RequestHeader,
		StatusCode:    row.StatusCode,
		ResponseBody:  row.ResponseBody,
		LatencyMs:     row.LatencyMs,
		CreatedAt:     row.CreatedAt,
	}
	if len(row.Context) == 0 || json.Unmarshal(row.Context, &entry.Context) != nil {
		entry.Context = map[string]interface{}{}
	}
	return entry
}

func (r *PostgresAuditRepo) Insert(ctx context.Context, entry *model.AuditLog) error {
	if entry == nil {
		return nil
	}
	row, err := newAuditRow(entry)
	if err != nil {
		return err
	}
	_, err = r.db.NamedExecContext(ctx, `
		INSERT INTO audit_logs (
			id, principal_id, batch_id, method, path, ip, user_agent,
			request_body, request_header, status_code, response_body,
			latency_ms, context, created_at
		) VALUES (
			:id, :principal_id, :batch_id, :method, :path, :ip, :user_agent,
			:request_body, :request_header, :status_code, :response_body,
			:latency_ms, :context, :created_at
		)
		ON CONFLICT (id) DO NOTHING
	`, row)
	return err
}

func (r *PostgresAuditRepo) List(ctx context.Context, filter model.AuditFilter) ([]*model.AuditLog, error) {
	limit := filter.Limit
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	var f whereClause
	if filter.PrincipalID != "" {
		f.add("principal_id", "=", filter.PrincipalID)
	}
	if filter.BatchID != "" {
		f.add("batch_id", "=", filter.BatchID)
	}
	if filter.Op != "" {
		// jsonb ? tests membership in the ops array
		f.add("context->'"+model.AuditBatchOps+"'", "?", filter.Op)
	}
	if filter.From != nil {
		f.add("created_at", ">=", *filter.From)
	}
	if filter.To != nil {
		f.add("created_at", "<=", *filter.To)
	}
	query, args := f.build(`SELECT id, principal_id, COALESCE(batch_id, '') AS batch_id, method, path, ip, user_agent, request_body, request_header, status_code, response_body, latency_ms, context, created_at FROM audit_logs`, "created_at", limit)

	var rows []auditRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	records := make([]*model.AuditLog, 0, len(rows))
	for i := range rows {
		records = append(records, rows[i].toDomain())
	}
	return records, nil
}

func (r *PostgresAuditRepo) ensureSchema(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS audit_logs (
			id TEXT PRIMARY KEY,
			principal_id TEXT,
			batch_id TEXT,
			method TEXT,
			path TEXT,
			ip TEXT,
			user_agent TEXT,
			request_body TEXT,
			request_header TEXT,
			status_code INTEGER,
			response_body TEXT,
			latency_ms BIGINT,
			context JSONB,
			created_at TIMESTAMPTZ
		)
	`)
	if err != nil {
		return err
	}
	_, _ = r.db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_audit_logs_principal ON audit_logs(principal_id, created_at DESC)`)
	_, _ = r.db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_audit_logs_batch ON audit_logs(batch_id) WHERE batch_id <> ''`)
	return nil
}

func (r *PostgresAuditRepo) Cleanup(ctx context.Context, olderThan time.Duration) error {
	return pruneOlderThan(ctx, r.db, "audit_logs", "created_at", olderThan)
}
