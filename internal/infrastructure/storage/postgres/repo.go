package postgres

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"polyticker/internal/application/port"
	"polyticker/internal/domain"
	"polyticker/internal/infrastructure/storage"
)

type Repo struct {
	db *sql.DB
}

func New(dsn string) (*Repo, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	r := &Repo{db: db}
	if err := r.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return r, nil
}

func (r *Repo) Close() error { return r.db.Close() }

func (r *Repo) migrate(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS quotes (
  asset_id TEXT PRIMARY KEY,
  label TEXT NOT NULL,
  mid DOUBLE PRECISION,
  bid DOUBLE PRECISION,
  ask DOUBLE PRECISION,
  change_pct DOUBLE PRECISION,
  ts_ms BIGINT NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_quotes_ts ON quotes(ts_ms);
`)
	return err
}

func (r *Repo) UpsertQuote(ctx context.Context, q domain.Quote) error {
	rec := storage.RecordOf(q)
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO quotes(asset_id, label, mid, bid, ask, change_pct, ts_ms, updated_at)
		VALUES($1, $2, $3, $4, $5, $6, $7, now())
		ON CONFLICT(asset_id) DO UPDATE SET
		label=EXCLUDED.label, mid=EXCLUDED.mid, bid=EXCLUDED.bid, ask=EXCLUDED.ask,
		change_pct=EXCLUDED.change_pct, ts_ms=EXCLUDED.ts_ms, updated_at=now()
	`, rec.AssetID, rec.Label, rec.Mid, rec.Bid, rec.Ask, rec.ChangePct, rec.TsMs)
	return err
}

var _ port.Repository = (*Repo)(nil)
