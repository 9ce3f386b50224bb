package sqlite

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"polyticker/internal/application/port"
	"polyticker/internal/domain"
	"polyticker/internal/infrastructure/storage"
)

type Repo struct {
	db *sql.DB
}

func New(path string) (*Repo, error) {
	// ensure directory exists
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		_ = os.MkdirAll(dir, 0o755)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	r := &Repo{db: db}
	if err := r.migrate(context.Background()); err != nil {
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
  mid REAL,
  bid REAL,
  ask REAL,
  change_pct REAL,
  ts_ms INTEGER NOT NULL,
  updated_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_quotes_ts ON quotes(ts_ms);
`)
	return err
}

// UpsertQuote replaces the stored row for the asset; one row per asset.
func (r *Repo) UpsertQuote(ctx context.Context, q domain.Quote) error {
	rec := storage.RecordOf(q)
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO quotes(asset_id, label, mid, bid, ask, change_pct, ts_ms, updated_at)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(asset_id) DO UPDATE SET
		label=excluded.label, mid=excluded.mid, bid=excluded.bid, ask=excluded.ask,
		change_pct=excluded.change_pct, ts_ms=excluded.ts_ms, updated_at=excluded.updated_at
	`, rec.AssetID, rec.Label, rec.Mid, rec.Bid, rec.Ask, rec.ChangePct, rec.TsMs, time.Now().UnixMilli())
	return err
}

// Get reads back the stored record for an asset.
func (r *Repo) Get(ctx context.Context, assetID string) (storage.Record, error) {
	var (
		rec           storage.Record
		mid, bid, ask sql.NullFloat64
		change        sql.NullFloat64
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT asset_id, label, mid, bid, ask, change_pct, ts_ms FROM quotes WHERE asset_id=?`, assetID).
		Scan(&rec.AssetID, &rec.Label, &mid, &bid, &ask, &change, &rec.TsMs)
	if err != nil {
		return storage.Record{}, err
	}
	rec.Mid, rec.Bid, rec.Ask, rec.ChangePct = nullable(mid), nullable(bid), nullable(ask), nullable(change)
	return rec, nil
}

func nullable(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

var _ port.Repository = (*Repo)(nil)
