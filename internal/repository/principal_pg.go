package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/GoPolymarket/fundgate/internal/model"
	"github.com/jmoiron/sqlx"
)

var ErrPrincipalNotFound = errors.New("principal not found")

// PostgresPrincipalRepo stores principals provisioned outside the config
// file.
type PostgresPrincipalRepo struct {
	db *sqlx.DB
}

func NewPostgresPrincipalRepo(db *sqlx.DB) *PostgresPrincipalRepo {
	repo := &PostgresPrincipalRepo{db: db}
	_ = repo.ensureSchema(context.Background())
	return repo
}

type principalRow struct {
	ID       string  `db:"id"`
	APIKey   string  `db:"api_key"`
	Identity string  `db:"identity"`
	QPS      float64 `db:"rate_qps"`
	Burst    int     `db:"rate_burst"`
}

func (r *PostgresPrincipalRepo) GetByAPIKey(ctx context.Context, apiKey string) (*model.Principal, error) {
	var row principalRow
	err := r.db.GetContext(ctx, &row, `SELECT id, api_key, identity, rate_qps, rate_burst FROM principals WHERE api_key = $1 LIMIT 1`, apiKey)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPrincipalNotFound
		}
		return nil, err
	}
	identity, err := model.ParseKey(row.Identity)
	if err != nil {
		return nil, err
	}
	return &model.Principal{
		ID:       row.ID,
		APIKey:   row.APIKey,
		Identity: identity,
		Rate:     model.RateLimitConfig{QPS: row.QPS, Burst: row.Burst},
	}, nil
}

func (r *PostgresPrincipalRepo) Create(ctx context.Context, p *model.Principal) error {
	now := time.Now().UTC()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO principals (id, api_key, identity, rate_qps, rate_burst, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$6)
		ON CONFLICT (id) DO UPDATE SET api_key = EXCLUDED.api_key, identity = EXCLUDED.identity,
			rate_qps = EXCLUDED.rate_qps, rate_burst = EXCLUDED.rate_burst, updated_at = EXCLUDED.updated_at
	`, p.ID, p.APIKey, p.Identity.String(), p.Rate.QPS, p.Rate.Burst, now)
	return err
}

func (r *PostgresPrincipalRepo) ensureSchema(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS principals (
			id TEXT PRIMARY KEY,
			api_key TEXT UNIQUE NOT NULL,
			identity TEXT NOT NULL,
			rate_qps DOUBLE PRECISION NOT NULL DEFAULT 0,
			rate_burst INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ,
			updated_at TIMESTAMPTZ
		)
	`)
	return err
}
