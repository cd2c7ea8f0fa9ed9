package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/mattn/go-sqlite3"

	"ananse-reader/internal/domain"
	"ananse-reader/internal/infra/metrics"
)

// SQLite implements the storage layer on a local SQLite file.
type SQLite struct {
	db  *sql.DB
	now func() time.Time
}

var _ domain.Store = (*SQLite)(nil)

// SQLiteOption configures the SQLite adapter.
type SQLiteOption func(*SQLite)

// WithClock replaces the clock used for createdAt and updatedAt.
func WithClock(now func() time.Time) SQLiteOption {
	return func(s *SQLite) {
		s.now = now
	}
}

// NewSQLite wraps an opened database; see db.OpenSQLite.
func NewSQLite(db *sql.DB, opts ...SQLiteOption) *SQLite {
	s := &SQLite{db: db, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *SQLite) timestamp() time.Time {
	return s.now().UTC()
}

func mapSQLiteError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrNotFound
	}
	var sqErr sqlite3.Error
	if errors.As(err, &sqErr) && sqErr.Code == sqlite3.ErrConstraint {
		switch sqErr.ExtendedCode {
		case sqlite3.ErrConstraintUnique, sqlite3.ErrConstraintPrimaryKey:
			return errors.Join(domain.ErrConflict, err)
		case sqlite3.ErrConstraintForeignKey:
			return errors.Join(domain.ErrNotFound, err)
		}
	}
	return err
}

func ignoreNoSQLRows(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	return err
}

type sqlQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func chapterByID(ctx context.Context, q sqlQuerier, id string) (domain.Chapter, error) {
	return scanChapter(q.QueryRowContext(ctx, `SELECT `+chapterColumns+` FROM chapters WHERE id = ?`, id))
}

func profileByUser(ctx context.Context, q sqlQuerier, userID string) (domain.Profile, error) {
	return scanProfile(q.QueryRowContext(ctx, `SELECT `+profileColumns+` FROM profiles WHERE user_id = ?`, userID))
}

const insertChapterSQLite = `
INSERT INTO chapters (id, slug, title, excerpt, content, "order", status, read_time, published_at, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

func insertChapter(ctx context.Context, q sqlQuerier, in domain.ChapterInput, now time.Time) (string, error) {
	id := newID()
	_, err := q.ExecContext(ctx, insertChapterSQLite,
		id, in.Slug, in.Title, in.Excerpt, in.Content, in.Order, string(in.Status), in.ReadTime, utcPtr(in.PublishedAt), now, now)
	return id, err
}

func (s *SQLite) inTx(ctx context.Context, target string, fn func(*sql.Tx) error) error {
	start := time.Now()
	tx, err := s.db.BeginTx(ctx, nil)
	metrics.ObserveNetworkRequest("sqlite", "begin_tx", target, start, err)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLite) ListChapters(ctx context.Context, publishedOnly bool) ([]domain.Chapter, error) {
	query := `SELECT ` + chapterColumns + ` FROM chapters`
	if publishedOnly {
		query += ` WHERE status = 'published'`
	}
	query += ` ORDER BY "order" ASC, created_at ASC`
	start := time.Now()
	rows, err := s.db.QueryContext(ctx, query)
	metrics.ObserveNetworkRequest("sqlite", "list_chapters", "chapters", start, err)
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

func (s *SQLite) GetChapterBySlug(ctx context.Context, slug string) (domain.Chapter, error) {
	start := time.Now()
	c, err := scanChapter(s.db.QueryRowContext(ctx, `SELECT `+chapterColumns+` FROM chapters WHERE slug = ?`, slug))
	metrics.ObserveNetworkRequest("sqlite", "get_chapter_by_slug", "chapters", start, ignoreNoSQLRows(err))
	return c, mapSQLiteError(err)
}

func (s *SQLite) GetChapterByID(ctx context.Context, id string) (domain.Chapter, error) {
	start := time.Now()
	c, err := chapterByID(ctx, s.db, id)
	metrics.ObserveNetworkRequest("sqlite", "get_chapter_by_id", "chapters", start, ignoreNoSQLRows(err))
	return c, mapSQLiteError(err)
}

func (s *SQLite) CreateChapter(ctx context.Context, in domain.ChapterInput) (domain.Chapter, error) {
	var c domain.Chapter
	start := time.Now()
	err := s.inTx(ctx, "chapters", func(tx *sql.Tx) error {
		id, err := insertChapter(ctx, tx, in, s.timestamp())
		if err != nil {
			return err
		}
		c, err = chapterByID(ctx, tx, id)
		return err
	})
	metrics.ObserveNetworkRequest("sqlite", "create_chapter", "chapters", start, err)
	return c, mapSQLiteError(err)
}

func (s *SQLite) UpdateChapter(ctx context.Context, c domain.Chapter) (domain.Chapter, error) {
	var updated domain.Chapter
	start := time.Now()
	err := s.inTx(ctx, "chapters", func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
UPDATE chapters
SET slug = ?, title = ?, excerpt = ?, content = ?, "order" = ?, status = ?, read_time = ?, published_at = ?, updated_at = ?
WHERE id = ?`,
			c.Slug, c.Title, c.Excerpt, c.Content, c.Order, string(c.Status), c.ReadTime, utcPtr(c.PublishedAt), s.timestamp(), c.ID)
		if err != nil {
			return err
		}
		if err := requireAffected(res); err != nil {
			return err
		}
		updated, err = chapterByID(ctx, tx, c.ID)
		return err
	})
	metrics.ObserveNetworkRequest("sqlite", "update_chapter", "chapters", start, ignoreNotFound(err))
	return updated, mapSQLiteError(err)
}

func (s *SQLite) DeleteChapter(ctx context.Context, id string) error {
	start := time.Now()
	res, err := s.db.ExecContext(ctx, `DELETE FROM chapters WHERE id = ?`, id)
	metrics.ObserveNetworkRequest("sqlite", "delete_chapter", "chapters", start, err)
	if err != nil {
		return mapSQLiteError(err)
	}
	return requireAffected(res)
}

func (s *SQLite) UpsertChapterBySlug(ctx context.Context, in domain.ChapterInput) (domain.Chapter, bool, error) {
	var (
		out      domain.Chapter
		inserted bool
	)
	start := time.Now()
	err := s.inTx(ctx, "chapters", func(tx *sql.Tx) error {
		existing, err := scanChapter(tx.QueryRowContext(ctx, `SELECT `+chapterColumns+` FROM chapters WHERE slug = ?`, in.Slug))
		now := s.timestamp()
		id := existing.ID
		switch {
		case errors.Is(err, sql.ErrNoRows):
			inserted = true
			if id, err = insertChapter(ctx, tx, in, now); err != nil {
				return err
			}
		case err != nil:
			return err
		default:
			publishedAt := existing.PublishedAt
			if publishedAt == nil {
				publishedAt = in.PublishedAt
			}
			if _, err := tx.ExecContext(ctx, `
UPDATE chapters
SET title = ?, excerpt = ?, content = ?, "order" = ?, status = ?, read_time = ?, published_at = ?, updated_at = ?
WHERE id = ?`,
				in.Title, in.Excerpt, in.Content, in.Order, string(in.Status), in.ReadTime, utcPtr(publishedAt), now, id); err != nil {
				return err
			}
		}
		out, err = chapterByID(ctx, tx, id)
		return err
	})
	metrics.ObserveNetworkRequest("sqlite", "upsert_chapter", "chapters", start, err)
	if err != nil {
		return domain.Chapter{}, false, mapSQLiteError(err)
	}
	return out, inserted, nil
}

func (s *SQLite) GetProfile(ctx context.Context, userID string) (domain.Profile, error) {
	start := time.Now()
	pr, err := profileByUser(ctx, s.db, userID)
	metrics.ObserveNetworkRequest("sqlite", "get_profile", "profiles", start, ignoreNoSQLRows(err))
	return pr, mapSQLiteError(err)
}

func (s *SQLite) CreateProfile(ctx context.Context, userID string, role domain.Role, displayName *string) (domain.Profile, error) {
	now := s.timestamp()
	return s.writeProfile(ctx, "create_profile", userID, `
INSERT INTO profiles (id, user_id, role, display_name, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?)`, newID(), userID, string(role), displayName, now, now)
}

func (s *SQLite) UpdateDisplayName(ctx context.Context, userID string, displayName *string) (domain.Profile, error) {
	return s.writeProfile(ctx, "update_profile", userID, `
UPDATE profiles SET display_name = ?, updated_at = ? WHERE user_id = ?`, displayName, s.timestamp(), userID)
}

func (s *SQLite) SetRole(ctx context.Context, userID string, role domain.Role, displayName *string) (domain.Profile, error) {
	now := s.timestamp()
	return s.writeProfile(ctx, "set_role", userID, `
INSERT INTO profiles (id, user_id, role, display_name, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT (user_id) DO UPDATE
SET role = excluded.role,
    display_name = COALESCE(excluded.display_name, profiles.display_name),
    updated_at = excluded.updated_at`, newID(), userID, string(role), displayName, now, now)
}

// writeProfile runs one statement and re-reads the profile of userID.
func (s *SQLite) writeProfile(ctx context.Context, operation, userID, query string, args ...any) (domain.Profile, error) {
	var pr domain.Profile
	start := time.Now()
	err := s.inTx(ctx, "profiles", func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return err
		}
		var err error
		pr, err = profileByUser(ctx, tx, userID)
		return err
	})
	metrics.ObserveNetworkRequest("sqlite", operation, "profiles", start, ignoreNotFound(mapSQLiteError(err)))
	return pr, mapSQLiteError(err)
}

func (s *SQLite) ListProfiles(ctx context.Context) ([]domain.Profile, error) {
	start := time.Now()
	rows, err := s.db.QueryContext(ctx, `SELECT `+profileColumns+` FROM profiles ORDER BY created_at ASC`)
	metrics.ObserveNetworkRequest("sqlite", "list_profiles", "profiles", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]domain.Profile, 0)
	for rows.Next() {
		pr, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, pr)
	}
	return out, rows.Err()
}

func (s *SQLite) UpsertProgress(ctx context.Context, userID, chapterID string, scrollPosition float64, completed bool) (domain.ReadingProgress, error) {
	var rp domain.ReadingProgress
	start := time.Now()
	err := s.inTx(ctx, "reading_progress", func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO reading_progress (id, user_id, chapter_id, scroll_position, completed, updated_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT (user_id, chapter_id) DO UPDATE
SET scroll_position = excluded.scroll_position,
    completed = excluded.completed,
    updated_at = excluded.updated_at`, newID(), userID, chapterID, scrollPosition, completed, s.timestamp()); err != nil {
			return err
		}
		var err error
		rp, err = scanProgress(tx.QueryRowContext(ctx, `
SELECT `+progressColumns+` FROM reading_progress WHERE user_id = ? AND chapter_id = ?`, userID, chapterID))
		return err
	})
	metrics.ObserveNetworkRequest("sqlite", "upsert_progress", "reading_progress", start, err)
	return rp, mapSQLiteError(err)
}

func (s *SQLite) GetProgress(ctx context.Context, userID, chapterID string) (domain.ReadingProgress, error) {
	start := time.Now()
	rp, err := scanProgress(s.db.QueryRowContext(ctx, `
SELECT `+progressColumns+` FROM reading_progress WHERE user_id = ? AND chapter_id = ?`, userID, chapterID))
	metrics.ObserveNetworkRequest("sqlite", "get_progress", "reading_progress", start, ignoreNoSQLRows(err))
	return rp, mapSQLiteError(err)
}

func (s *SQLite) ListProgress(ctx context.Context, userID string) ([]domain.ReadingProgress, error) {
	start := time.Now()
	rows, err := s.db.QueryContext(ctx, `
SELECT `+progressColumns+` FROM reading_progress WHERE user_id = ? ORDER BY updated_at DESC`, userID)
	metrics.ObserveNetworkRequest("sqlite", "list_progress", "reading_progress", start, err)
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

func (s *SQLite) LastProgress(ctx context.Context, userID string) (domain.ReadingProgress, error) {
	start := time.Now()
	rp, err := scanProgress(s.db.QueryRowContext(ctx, `
SELECT `+progressColumns+` FROM reading_progress WHERE user_id = ? ORDER BY updated_at DESC LIMIT 1`, userID))
	metrics.ObserveNetworkRequest("sqlite", "last_progress", "reading_progress", start, ignoreNoSQLRows(err))
	return rp, mapSQLiteError(err)
}

func (s *SQLite) queryBookmarks(ctx context.Context, operation, query string, args ...any) ([]domain.Bookmark, error) {
	start := time.Now()
	rows, err := s.db.QueryContext(ctx, query, args...)
	metrics.ObserveNetworkRequest("sqlite", operation, "bookmarks", start, err)
	if err != nil {
		return nil, err
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
	return out, rows.Err()
}

func (s *SQLite) ListBookmarks(ctx context.Context, userID string) ([]domain.Bookmark, error) {
	return s.queryBookmarks(ctx, "list_bookmarks", `
SELECT `+bookmarkColumns+` FROM bookmarks WHERE user_id = ? ORDER BY created_at DESC`, userID)
}

func (s *SQLite) ListChapterBookmarks(ctx context.Context, userID, chapterID string) ([]domain.Bookmark, error) {
	return s.queryBookmarks(ctx, "list_chapter_bookmarks", `
SELECT `+bookmarkColumns+` FROM bookmarks WHERE user_id = ? AND chapter_id = ?
ORDER BY paragraph_index ASC, created_at ASC`, userID, chapterID)
}

func (s *SQLite) CreateBookmark(ctx context.Context, userID string, in domain.BookmarkInput) (domain.Bookmark, error) {
	var b domain.Bookmark
	start := time.Now()
	err := s.inTx(ctx, "bookmarks", func(tx *sql.Tx) error {
		id := newID()
		if _, err := tx.ExecContext(ctx, `
INSERT INTO bookmarks (id, user_id, chapter_id, text_snippet, paragraph_index, note, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)`, id, userID, in.ChapterID, in.TextSnippet, in.ParagraphIndex, in.Note, s.timestamp()); err != nil {
			return err
		}
		var err error
		b, err = scanBookmark(tx.QueryRowContext(ctx, `SELECT `+bookmarkColumns+` FROM bookmarks WHERE id = ?`, id))
		return err
	})
	metrics.ObserveNetworkRequest("sqlite", "create_bookmark", "bookmarks", start, err)
	return b, mapSQLiteError(err)
}

func (s *SQLite) DeleteBookmark(ctx context.Context, userID, id string) error {
	start := time.Now()
	res, err := s.db.ExecContext(ctx, `DELETE FROM bookmarks WHERE id = ? AND user_id = ?`, id, userID)
	metrics.ObserveNetworkRequest("sqlite", "delete_bookmark", "bookmarks", start, err)
	if err != nil {
		return mapSQLiteError(err)
	}
	return requireAffected(res)
}

func (s *SQLite) LikeState(ctx context.Context, userID, chapterID string) (domain.LikeState, error) {
	var (
		state domain.LikeState
		mine  int
	)
	start := time.Now()
	err := s.db.QueryRowContext(ctx, `
SELECT count(*), COALESCE(SUM(CASE WHEN user_id = ? THEN 1 ELSE 0 END), 0)
FROM likes WHERE chapter_id = ?`, userID, chapterID).Scan(&state.Count, &mine)
	metrics.ObserveNetworkRequest("sqlite", "like_state", "likes", start, err)
	if err != nil {
		return domain.LikeState{}, err
	}
	state.Liked = userID != "" && mine > 0
	return state, nil
}

func (s *SQLite) ToggleLike(ctx context.Context, userID, chapterID string) (domain.LikeState, error) {
	var state domain.LikeState
	err := s.inTx(ctx, "likes", func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM likes WHERE user_id = ? AND chapter_id = ?`, userID, chapterID)
		if err != nil {
			return err
		}
		removed, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if removed == 0 {
			if _, err := tx.ExecContext(ctx, `
INSERT INTO likes (id, user_id, chapter_id, created_at) VALUES (?, ?, ?, ?)
ON CONFLICT (user_id, chapter_id) DO NOTHING`, newID(), userID, chapterID, s.timestamp()); err != nil {
				return err
			}
			state.Liked = true
		}
		return tx.QueryRowContext(ctx, `SELECT count(*) FROM likes WHERE chapter_id = ?`, chapterID).Scan(&state.Count)
	})
	if err != nil {
		return domain.LikeState{}, mapSQLiteError(err)
	}
	return state, nil
}

func (s *SQLite) ListSiteSettings(ctx context.Context) ([]domain.SiteSetting, error) {
	start := time.Now()
	rows, err := s.db.QueryContext(ctx, `SELECT key, value, updated_at FROM site_settings ORDER BY key`)
	metrics.ObserveNetworkRequest("sqlite", "list_site_settings", "site_settings", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]domain.SiteSetting, 0)
	for rows.Next() {
		var st domain.SiteSetting
		if err := rows.Scan(&st.Key, &st.Value, &st.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

func (s *SQLite) UpsertSiteSettings(ctx context.Context, values map[string]string) error {
	if len(values) == 0 {
		return nil
	}
	now := s.timestamp()
	return s.inTx(ctx, "site_settings", func(tx *sql.Tx) error {
		for key, value := range values {
			if _, err := tx.ExecContext(ctx, `
INSERT INTO site_settings (key, value, updated_at) VALUES (?, ?, ?)
ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`, key, value, now); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *SQLite) RecordBusinessMetric(ctx context.Context, metric domain.BusinessMetric) error {
	if metric.Event == "" {
		return nil
	}
	if metric.OccurredAt.IsZero() {
		metric.OccurredAt = s.timestamp()
	}
	var payload sql.NullString
	if metric.Metadata != nil {
		if data, err := json.Marshal(metric.Metadata); err == nil {
			payload = sql.NullString{String: string(data), Valid: true}
		}
	}
	start := time.Now()
	_, err := s.db.ExecContext(ctx, `
INSERT INTO business_metrics (event, user_id, chapter_id, metadata, occurred_at)
VALUES (?, NULLIF(?, ''), NULLIF(?, ''), ?, ?)`, metric.Event, metric.UserID, metric.ChapterID, payload, metric.OccurredAt.UTC())
	metrics.ObserveNetworkRequest("sqlite", "business_metrics_insert", "business_metrics", start, err)
	return err
}

func ignoreNotFound(err error) error {
	if errors.Is(err, domain.ErrNotFound) {
		return nil
	}
	return err
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
