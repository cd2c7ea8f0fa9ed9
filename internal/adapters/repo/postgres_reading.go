package repo

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"ananse-reader/internal/domain"
	"ananse-reader/internal/infra/metrics"
)

const progressColumns = `id, user_id, chapter_id, scroll_position, completed, updated_at`

func scanProgress(row rowScanner) (domain.ReadingProgress, error) {
	var rp domain.ReadingProgress
	err := row.Scan(&rp.ID, &rp.UserID, &rp.ChapterID, &rp.ScrollPosition, &rp.Completed, &rp.UpdatedAt)
	return rp, err
}

// UpsertProgress overwrites position, completion and timestamp on conflict, never the key.
func (p *Postgres) UpsertProgress(ctx context.Context, userID, chapterID string, scrollPosition float64, completed bool) (domain.ReadingProgress, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()
	start := time.Now()
	rp, err := scanProgress(p.pool.QueryRow(ctx, `
INSERT INTO reading_progress (id, user_id, chapter_id, scroll_position, completed, updated_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (user_id, chapter_id) DO UPDATE
SET scroll_position = EXCLUDED.scroll_position,
    completed = EXCLUDED.completed,
    updated_at = EXCLUDED.updated_at
RETURNING `+progressColumns, newID(), userID, chapterID, scrollPosition, completed, p.now()))
	metrics.ObserveNetworkRequest("postgres", "upsert_progress", "reading_progress", start, err)
	return rp, mapPgError(err)
}

func (p *Postgres) GetProgress(ctx context.Context, userID, chapterID string) (domain.ReadingProgress, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()
	start := time.Now()
	rp, err := scanProgress(p.pool.QueryRow(ctx, `
SELECT `+progressColumns+` FROM reading_progress WHERE user_id = $1 AND chapter_id = $2`, userID, chapterID))
	metrics.ObserveNetworkRequest("postgres", "get_progress", "reading_progress", start, ignoreNoRows(err))
	return rp, mapPgError(err)
}

func (p *Postgres) ListProgress(ctx context.Context, userID string) ([]domain.ReadingProgress, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()
	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT `+progressColumns+` FROM reading_progress WHERE user_id = $1 ORDER BY updated_at DESC`, userID)
	metrics.ObserveNetworkRequest("postgres", "list_progress", "reading_progress", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]domain.ReadingProgress, 0)
	for rows.Next() {
		rp, err := scanProgress(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rp)
	}
	return out, rows.Err()
}

// LastProgress returns the most recently updated row, or domain.ErrNotFound.
func (p *Postgres) LastProgress(ctx context.Context, userID string) (domain.ReadingProgress, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()
	start := time.Now()
	rp, err := scanProgress(p.pool.QueryRow(ctx, `
SELECT `+progressColumns+` FROM reading_progress WHERE user_id = $1 ORDER BY updated_at DESC LIMIT 1`, userID))
	metrics.ObserveNetworkRequest("postgres", "last_progress", "reading_progress", start, ignoreNoRows(err))
	return rp, mapPgError(err)
}

const bookmarkColumns = `id, user_id, chapter_id, text_snippet, paragraph_index, note, created_at`

func scanBookmark(row rowScanner) (domain.Bookmark, error) {
	var b domain.Bookmark
	err := row.Scan(&b.ID, &b.UserID, &b.ChapterID, &b.TextSnippet, &b.ParagraphIndex, &b.Note, &b.CreatedAt)
	return b, err
}

func (p *Postgres) queryBookmarks(ctx context.Context, operation, query string, args ...any) ([]domain.Bookmark, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()
	start := time.Now()
	rows, err := p.pool.Query(ctx, query, args...)
	metrics.ObserveNetworkRequest("postgres", operation, "bookmarks", start, err)
	if err != nil {
		return nil, mapPgError(err)
	}
	defer rows.Close()
	out := make([]domain.Bookmark, 0)
	for rows.Next() {
		b, err := scanBookmark(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, mapPgError(rows.Err())
}

// ListBookmarks returns the user's bookmarks, newest first.
func (p *Postgres) ListBookmarks(ctx context.Context, userID string) ([]domain.Bookmark, error) {
	return p.queryBookmarks(ctx, "list_bookmarks", `
SELECT `+bookmarkColumns+` FROM bookmarks WHERE user_id = $1 ORDER BY created_at DESC`, userID)
}

// ListChapterBookmarks returns the user's bookmarks of one chapter in paragraph order.
func (p *Postgres) ListChapterBookmarks(ctx context.Context, userID, chapterID string) ([]domain.Bookmark, error) {
	return p.queryBookmarks(ctx, "list_chapter_bookmarks", `
SELECT `+bookmarkColumns+` FROM bookmarks WHERE user_id = $1 AND chapter_id = $2
ORDER BY paragraph_index ASC, created_at ASC`, userID, chapterID)
}

func (p *Postgres) CreateBookmark(ctx context.Context, userID string, in domain.BookmarkInput) (domain.Bookmark, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()
	start := time.Now()
	b, err := scanBookmark(p.pool.QueryRow(ctx, `
INSERT INTO bookmarks (id, user_id, chapter_id, text_snippet, paragraph_index, note, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING `+bookmarkColumns, newID(), userID, in.ChapterID, in.TextSnippet, in.ParagraphIndex, in.Note, p.now()))
	metrics.ObserveNetworkRequest("postgres", "create_bookmark", "bookmarks", start, err)
	return b, mapPgError(err)
}

func (p *Postgres) DeleteBookmark(ctx context.Context, userID, id string) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()
	start := time.Now()
	tag, err := p.pool.Exec(ctx, `DELETE FROM bookmarks WHERE id = $1 AND user_id = $2`, id, userID)
	metrics.ObserveNetworkRequest("postgres", "delete_bookmark", "bookmarks", start, err)
	if err != nil {
		return mapPgError(err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (p *Postgres) LikeState(ctx context.Context, userID, chapterID string) (domain.LikeState, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()
	var state domain.LikeState
	start := time.Now()
	err := p.pool.QueryRow(ctx, `
SELECT count(*), COALESCE(bool_or(user_id = $2), false)
FROM likes WHERE chapter_id = $1`, chapterID, userID).Scan(&state.Count, &state.Liked)
	metrics.ObserveNetworkRequest("postgres", "like_state", "likes", start, err)
	if err != nil {
		return domain.LikeState{}, mapPgError(err)
	}
	if userID == "" {
		state.Liked = false
	}
	return state, nil
}

// ToggleLike flips the like of (user, chapter) and recounts inside one transaction.
func (p *Postgres) ToggleLike(ctx context.Context, userID, chapterID string) (domain.LikeState, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()
	var state domain.LikeState
	err := p.inTx(ctx, "likes", func(tx pgx.Tx) error {
		start := time.Now()
		tag, err := tx.Exec(ctx, `DELETE FROM likes WHERE user_id = $1 AND chapter_id = $2`, userID, chapterID)
		metrics.ObserveNetworkRequest("postgres", "unlike", "likes", start, err)
		if err != nil {
			return mapPgError(err)
		}
		if tag.RowsAffected() == 0 {
			start = time.Now()
			_, err = tx.Exec(ctx, `
INSERT INTO likes (id, user_id, chapter_id, created_at) VALUES ($1, $2, $3, $4)
ON CONFLICT (user_id, chapter_id) DO NOTHING`, newID(), userID, chapterID, p.now())
			metrics.ObserveNetworkRequest("postgres", "like", "likes", start, err)
			if err != nil {
				return mapPgError(err)
			}
			state.Liked = true
		}
		start = time.Now()
		err = tx.QueryRow(ctx, `SELECT count(*) FROM likes WHERE chapter_id = $1`, chapterID).Scan(&state.Count)
		metrics.ObserveNetworkRequest("postgres", "count_likes", "likes", start, err)
		return err
	})
	if err != nil {
		return domain.LikeState{}, err
	}
	return state, nil
}
