package repo

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"ananse-reader/internal/domain"
	"ananse-reader/internal/infra/metrics"
)

func (p *Postgres) ListSiteSettings(ctx context.Context) ([]domain.SiteSetting, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()
	start := time.Now()
	rows, err := p.pool.Query(ctx, `SELECT key, value, updated_at FROM site_settings ORDER BY key`)
	metrics.ObserveNetworkRequest("postgres", "list_site_settings", "site_settings", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]domain.SiteSetting, 0)
	for rows.Next() {
		var s domain.SiteSetting
		if err := rows.Scan(&s.Key, &s.Value, &s.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// UpsertSiteSettings writes all values in one transaction.
func (p *Postgres) UpsertSiteSettings(ctx context.Context, values map[string]string) error {
	if len(values) == 0 {
		return nil
	}
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()
	now := p.now()
	return p.inTx(ctx, "site_settings", func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for key, value := range values {
			batch.Queue(`
INSERT INTO site_settings (key, value, updated_at) VALUES ($1, $2, $3)
ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`, key, value, now)
		}
		start := time.Now()
		err := tx.SendBatch(ctx, batch).Close()
		metrics.ObserveNetworkRequest("postgres", "upsert_site_settings", "site_settings", start, err)
		return err
	})
}
