package repo

import (
	"context"
	"time"

	"ananse-reader/internal/domain"
	"ananse-reader/internal/infra/metrics"
)

const chapterColumns = `id, slug, title, excerpt, content, "order", status, read_time, published_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanChapter(row rowScanner) (domain.Chapter, error) {
	var c domain.Chapter
	err := row.Scan(&c.ID, &c.Slug, &c.Title, &c.Excerpt, &c.Content, &c.Order, &c.Status,
		&c.ReadTime, &c.PublishedAt, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

// ListChapters returns chapters ordered by their display order.
func (p *Postgres) ListChapters(ctx context.Context, publishedOnly bool) ([]domain.Chapter, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	query := `SELECT ` + chapterColumns + ` FROM chapters`
	if publishedOnly {
		query += ` WHERE status = 'published'`
	}
	query += ` ORDER BY "order" ASC, created_at ASC`

	start := time.Now()
	rows, err := p.pool.Query(ctx, query)
	metrics.ObserveNetworkRequest("postgres", "list_chapters", "chapters", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	chapters := make([]domain.Chapter, 0)
	for rows.Next() {
		c, err := scanChapter(rows)
		if err != nil {
			return nil, err
		}
		chapters = append(chapters, c)
	}
	return chapters, rows.Err()
}

func (p *Postgres) GetChapterBySlug(ctx context.Context, slug string) (domain.Chapter, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()
	start := time.Now()
	c, err := scanChapter(p.pool.QueryRow(ctx, `SELECT `+chapterColumns+` FROM chapters WHERE slug = $1`, slug))
	metrics.ObserveNetworkRequest("postgres", "get_chapter_by_slug", "chapters", start, ignoreNoRows(err))
	return c, mapPgError(err)
}

func (p *Postgres) GetChapterByID(ctx context.Context, id string) (domain.Chapter, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()
	start := time.Now()
	c, err := scanChapter(p.pool.QueryRow(ctx, `SELECT `+chapterColumns+` FROM chapters WHERE id = $1`, id))
	metrics.ObserveNetworkRequest("postgres", "get_chapter_by_id", "chapters", start, ignoreNoRows(err))
	return c, mapPgError(err)
}

func (p *Postgres) CreateChapter(ctx context.Context, in domain.ChapterInput) (domain.Chapter, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()
	now := p.now()
	start := time.Now()
	c, err := scanChapter(p.pool.QueryRow(ctx, `
INSERT INTO chapters (id, slug, title, excerpt, content, "order", status, read_time, published_at, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)
RETURNING `+chapterColumns,
		newID(), in.Slug, in.Title, in.Excerpt, in.Content, in.Order, in.Status, in.ReadTime, in.PublishedAt, now))
	metrics.ObserveNetworkRequest("postgres", "create_chapter", "chapters", start, err)
	return c, mapPgError(err)
}

func (p *Postgres) UpdateChapter(ctx context.Context, c domain.Chapter) (domain.Chapter, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()
	start := time.Now()
	updated, err := scanChapter(p.pool.QueryRow(ctx, `
UPDATE chapters
SET slug = $2, title = $3, excerpt = $4, content = $5, "order" = $6, status = $7,
    read_time = $8, published_at = $9, updated_at = $10
WHERE id = $1
RETURNING `+chapterColumns,
		c.ID, c.Slug, c.Title, c.Excerpt, c.Content, c.Order, c.Status, c.ReadTime, c.PublishedAt, p.now()))
	metrics.ObserveNetworkRequest("postgres", "update_chapter", "chapters", start, ignoreNoRows(err))
	return updated, mapPgError(err)
}

// DeleteChapter removes the chapter; progress, bookmarks and likes go with it.
func (p *Postgres) DeleteChapter(ctx context.Context, id string) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()
	start := time.Now()
	tag, err := p.pool.Exec(ctx, `DELETE FROM chapters WHERE id = $1`, id)
	metrics.ObserveNetworkRequest("postgres", "delete_chapter", "chapters", start, err)
	if err != nil {
		return mapPgError(err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// UpsertChapterBySlug reports true when a new row was inserted.
func (p *Postgres) UpsertChapterBySlug(ctx context.Context, in domain.ChapterInput) (domain.Chapter, bool, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()
	now := p.now()
	var (
		c        domain.Chapter
		inserted bool
	)
	start := time.Now()
	err := p.pool.QueryRow(ctx, `
INSERT INTO chapters (id, slug, title, excerpt, content, "order", status, read_time, published_at, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)
ON CONFLICT (slug) DO UPDATE
SET title = EXCLUDED.title, excerpt = EXCLUDED.excerpt, content = EXCLUDED.content,
    "order" = EXCLUDED."order", status = EXCLUDED.status, read_time = EXCLUDED.read_time,
    published_at = COALESCE(chapters.published_at, EXCLUDED.published_at), updated_at = EXCLUDED.updated_at
RETURNING `+chapterColumns+`, (xmax = 0)`,
		newID(), in.Slug, in.Title, in.Excerpt, in.Content, in.Order, in.Status, in.ReadTime, in.PublishedAt, now,
	).Scan(&c.ID, &c.Slug, &c.Title, &c.Excerpt, &c.Content, &c.Order, &c.Status,
		&c.ReadTime, &c.PublishedAt, &c.CreatedAt, &c.UpdatedAt, &inserted)
	metrics.ObserveNetworkRequest("postgres", "upsert_chapter", "chapters", start, err)
	if err != nil {
		return domain.Chapter{}, false, mapPgError(err)
	}
	return c, inserted, nil
}
