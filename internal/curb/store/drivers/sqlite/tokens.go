package sqlite

import (
	"context"
	"time"

	"github.com/aussiebroadwan/curb/internal/curb/store"
)

type tokensRepo struct {
	db dbtx
}

func (r *tokensRepo) GetToken(ctx context.Context, key string) (store.CachedToken, error) {
	var (
		t         store.CachedToken
		sealed    int64
		updatedAt int64
	)

	err := r.db.QueryRowContext(ctx,
		`SELECT cache_key, payload, sealed, updated_at FROM cached_tokens WHERE cache_key = ?`,
		key,
	).Scan(&t.Key, &t.Payload, &sealed, &updatedAt)
	if err != nil {
		return store.CachedToken{}, mapNotFound(err)
	}

	t.Sealed = sealed != 0
	t.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return t, nil
}

func (r *tokensRepo) PutToken(ctx context.Context, t store.CachedToken) error {
	updatedAt := t.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO cached_tokens (cache_key, payload, sealed, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (cache_key) DO UPDATE SET
		   payload = excluded.payload,
		   sealed = excluded.sealed,
		   updated_at = excluded.updated_at`,
		t.Key, t.Payload, boolToInt(t.Sealed), updatedAt.Unix(),
	)
	return err
}

func (r *tokensRepo) DeleteToken(ctx context.Context, key string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM cached_tokens WHERE cache_key = ?`, key)
	return err
}

func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
