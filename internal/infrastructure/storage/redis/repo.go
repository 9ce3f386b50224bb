package redis

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"polyticker/internal/application/port"
	"polyticker/internal/domain"
	"polyticker/internal/infrastructure/storage"
)

// Repo keeps the latest quote per asset in one hash and publishes every
// update on a pub/sub channel for downstream consumers.
type Repo struct {
	rdb       *redis.Client
	ttl       time.Duration
	keyLatest string // prefix + ":latest"
	channel   string
}

func New(rdb *redis.Client, prefix string, ttl time.Duration, channel string) *Repo {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "polyticker"
	}
	if strings.TrimSpace(channel) == "" {
		channel = prefix + ":quotes"
	}
	return &Repo{
		rdb:       rdb,
		ttl:       ttl,
		keyLatest: prefix + ":latest",
		channel:   channel,
	}
}

func (r *Repo) UpsertQuote(ctx context.Context, q domain.Quote) error {
	b, err := json.Marshal(storage.RecordOf(q))
	if err != nil {
		return err
	}

	// Hash: field = asset id -> json
	pipe := r.rdb.Pipeline()
	pipe.HSet(ctx, r.keyLatest, q.AssetID, string(b))
	if r.ttl > 0 {
		pipe.Expire(ctx, r.keyLatest, r.ttl)
	}
	pipe.Publish(ctx, r.channel, string(b))
	_, err = pipe.Exec(ctx)
	return err
}

// Get reads the latest record for an asset.
func (r *Repo) Get(ctx context.Context, assetID string) (storage.Record, error) {
	var rec storage.Record
	s, err := r.rdb.HGet(ctx, r.keyLatest, assetID).Result()
	if err != nil {
		return rec, err
	}
	err = json.Unmarshal([]byte(s), &rec)
	return rec, err
}

// Close is a no-op; the client is owned by whoever created it.
func (r *Repo) Close() error { return nil }

var _ port.Repository = (*Repo)(nil)
