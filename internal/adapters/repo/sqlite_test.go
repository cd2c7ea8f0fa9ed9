package repo

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"ananse-reader/internal/domain"
	"ananse-reader/internal/infra/db"
)

type tickingClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *tickingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

func newTestStore(t *testing.T) *SQLite {
	t.Helper()
	conn, err := db.OpenSQLite(filepath.Join(t.TempDir(), "reader.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := db.MigrateSQLite(context.Background(), conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	clock := &tickingClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	return NewSQLite(conn, WithClock(clock.Now))
}

func mustCreateChapter(t *testing.T, s *SQLite, slug string, order int, status domain.ChapterStatus) domain.Chapter {
	t.Helper()
	c, err := s.CreateChapter(context.Background(), domain.ChapterInput{
		Slug:     slug,
		Title:    "Chapter " + slug,
		Content:  "# " + slug + "\n\nOnce upon a time.",
		Order:    order,
		Status:   status,
		ReadTime: 3,
	})
	if err != nil {
		t.Fatalf("create chapter %s: %v", slug, err)
	}
	return c
}

func TestSQLiteChaptersOrderedAndFiltered(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	mustCreateChapter(t, s, "ch-3", 3, domain.ChapterStatusPublished)
	draft := mustCreateChapter(t, s, "ch-4", 4, domain.ChapterStatusDraft)
	mustCreateChapter(t, s, "ch-1", 1, domain.ChapterStatusPublished)

	published, err := s.ListChapters(ctx, true)
	if err != nil {
		t.Fatalf("list published: %v", err)
	}
	if len(published) != 2 || published[0].Slug != "ch-1" || published[1].Slug != "ch-3" {
		t.Fatalf("unexpected published list: %+v", published)
	}

	all, err := s.ListChapters(ctx, false)
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 3 || all[2].ID != draft.ID {
		t.Fatalf("unexpected full list: %+v", all)
	}

	draft.Status = domain.ChapterStatusPublished
	if _, err := s.UpdateChapter(ctx, draft); err != nil {
		t.Fatalf("publish: %v", err)
	}
	published, _ = s.ListChapters(ctx, true)
	if len(published) != 3 || published[2].Slug != "ch-4" {
		t.Fatalf("published chapter not placed by order: %+v", published)
	}
}

func TestSQLiteChapterSlugConflict(t *testing.T) {
	s := newTestStore(t)
	mustCreateChapter(t, s, "prologue", 0, domain.ChapterStatusDraft)
	_, err := s.CreateChapter(context.Background(), domain.ChapterInput{
		Slug: "prologue", Title: "again", Content: "x", Status: domain.ChapterStatusDraft,
	})
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestSQLiteChapterRoundTripOptionalFields(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	excerpt := "A short teaser"
	published := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	c, err := s.CreateChapter(ctx, domain.ChapterInput{
		Slug: "ch-9", Title: "Nine", Excerpt: &excerpt, Content: "body", Order: 9,
		Status: domain.ChapterStatusPublished, ReadTime: 2, PublishedAt: &published,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	got, err := s.GetChapterBySlug(ctx, "ch-9")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.ID != c.ID || got.Excerpt == nil || *got.Excerpt != excerpt {
		t.Fatalf("unexpected chapter: %+v", got)
	}
	if got.PublishedAt == nil || !got.PublishedAt.Equal(published) {
		t.Fatalf("published at = %v", got.PublishedAt)
	}
	if _, err := s.GetChapterBySlug(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := s.UpdateChapter(ctx, domain.Chapter{ID: "missing", Slug: "zz", Status: domain.ChapterStatusDraft}); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found on update, got %v", err)
	}
}

func TestSQLiteUpsertChapterBySlug(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	in := domain.ChapterInput{Slug: "ch-1", Title: "One", Content: "v1", Order: 1, Status: domain.ChapterStatusDraft, ReadTime: 1}
	first, inserted, err := s.UpsertChapterBySlug(ctx, in)
	if err != nil || !inserted {
		t.Fatalf("first upsert: inserted=%v err=%v", inserted, err)
	}
	in.Content = "v2"
	second, inserted, err := s.UpsertChapterBySlug(ctx, in)
	if err != nil || inserted {
		t.Fatalf("second upsert: inserted=%v err=%v", inserted, err)
	}
	if second.ID != first.ID || second.Content != "v2" {
		t.Fatalf("upsert did not update in place: %+v", second)
	}
}

func TestSQLiteProgressUpsertKeepsSingleRow(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	c := mustCreateChapter(t, s, "ch-1", 1, domain.ChapterStatusPublished)

	first, err := s.UpsertProgress(ctx, "user-1", c.ID, 0.4, false)
	if err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	second, err := s.UpsertProgress(ctx, "user-1", c.ID, 0.97, true)
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("key changed on conflict: %s vs %s", first.ID, second.ID)
	}
	rows, err := s.ListProgress(ctx, "user-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rows) != 1 || rows[0].ScrollPosition != 0.97 || !rows[0].Completed {
		t.Fatalf("unexpected rows: %+v", rows)
	}
	if !rows[0].UpdatedAt.After(first.UpdatedAt) {
		t.Fatalf("updatedAt not advanced: %v vs %v", rows[0].UpdatedAt, first.UpdatedAt)
	}
}

func TestSQLiteProgressUnknownChapter(t *testing.T) {
	s := newTestStore(t)
	_, err := s.UpsertProgress(context.Background(), "user-1", "no-such-chapter", 0.2, false)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestSQLiteLastProgress(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	if _, err := s.LastProgress(ctx, "user-1"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found for fresh user, got %v", err)
	}
	c1 := mustCreateChapter(t, s, "ch-1", 1, domain.ChapterStatusPublished)
	c2 := mustCreateChapter(t, s, "ch-2", 2, domain.ChapterStatusPublished)

	if _, err := s.UpsertProgress(ctx, "user-1", c2.ID, 0.1, false); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if _, err := s.UpsertProgress(ctx, "user-1", c1.ID, 0.5, false); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if _, err := s.UpsertProgress(ctx, "user-2", c2.ID, 0.9, false); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	last, err := s.LastProgress(ctx, "user-1")
	if err != nil {
		t.Fatalf("last: %v", err)
	}
	if last.ChapterID != c1.ID {
		t.Fatalf("last chapter = %s, want %s", last.ChapterID, c1.ID)
	}
}

func TestSQLiteLikeToggleTwiceRestoresState(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	c := mustCreateChapter(t, s, "ch-1", 1, domain.ChapterStatusPublished)
	if _, err := s.ToggleLike(ctx, "other", c.ID); err != nil {
		t.Fatalf("seed like: %v", err)
	}

	before, err := s.LikeState(ctx, "user-1", c.ID)
	if err != nil {
		t.Fatalf("state: %v", err)
	}
	if before.Liked || before.Count != 1 {
		t.Fatalf("unexpected initial state: %+v", before)
	}

	on, err := s.ToggleLike(ctx, "user-1", c.ID)
	if err != nil {
		t.Fatalf("toggle on: %v", err)
	}
	if !on.Liked || on.Count != 2 {
		t.Fatalf("unexpected state after like: %+v", on)
	}
	off, err := s.ToggleLike(ctx, "user-1", c.ID)
	if err != nil {
		t.Fatalf("toggle off: %v", err)
	}
	if off != before {
		t.Fatalf("double toggle changed state: %+v vs %+v", off, before)
	}

	anon, err := s.LikeState(ctx, "", c.ID)
	if err != nil {
		t.Fatalf("anonymous state: %v", err)
	}
	if anon.Liked || anon.Count != 1 {
		t.Fatalf("unexpected anonymous state: %+v", anon)
	}
}

func TestSQLiteDeleteChapterCascades(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	c := mustCreateChapter(t, s, "ch-1", 1, domain.ChapterStatusPublished)

	if _, err := s.UpsertProgress(ctx, "user-1", c.ID, 0.3, false); err != nil {
		t.Fatalf("progress: %v", err)
	}
	if _, err := s.CreateBookmark(ctx, "user-1", domain.BookmarkInput{ChapterID: c.ID, TextSnippet: "Once", ParagraphIndex: 0}); err != nil {
		t.Fatalf("bookmark: %v", err)
	}
	if _, err := s.ToggleLike(ctx, "user-1", c.ID); err != nil {
		t.Fatalf("like: %v", err)
	}

	if err := s.DeleteChapter(ctx, c.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := s.DeleteChapter(ctx, c.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("second delete: expected not found, got %v", err)
	}

	progress, _ := s.ListProgress(ctx, "user-1")
	bookmarks, _ := s.ListBookmarks(ctx, "user-1")
	likes, _ := s.LikeState(ctx, "user-1", c.ID)
	if len(progress) != 0 || len(bookmarks) != 0 || likes.Count != 0 {
		t.Fatalf("cascade incomplete: progress=%d bookmarks=%d likes=%d", len(progress), len(bookmarks), likes.Count)
	}
}

func TestSQLiteBookmarksScopedAndOrdered(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	c := mustCreateChapter(t, s, "ch-1", 1, domain.ChapterStatusPublished)

	late, err := s.CreateBookmark(ctx, "user-1", domain.BookmarkInput{ChapterID: c.ID, TextSnippet: "late", ParagraphIndex: 9})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	note := "remember this"
	early, err := s.CreateBookmark(ctx, "user-1", domain.BookmarkInput{ChapterID: c.ID, TextSnippet: "early", ParagraphIndex: 2, Note: &note})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	byChapter, err := s.ListChapterBookmarks(ctx, "user-1", c.ID)
	if err != nil {
		t.Fatalf("list chapter: %v", err)
	}
	if len(byChapter) != 2 || byChapter[0].ID != early.ID || byChapter[1].ID != late.ID {
		t.Fatalf("chapter bookmarks not in paragraph order: %+v", byChapter)
	}
	if byChapter[0].Note == nil || *byChapter[0].Note != note {
		t.Fatalf("note lost: %+v", byChapter[0])
	}

	recent, err := s.ListBookmarks(ctx, "user-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(recent) != 2 || recent[0].ID != early.ID {
		t.Fatalf("bookmarks not newest first: %+v", recent)
	}

	if err := s.DeleteBookmark(ctx, "intruder", early.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("foreign delete: expected not found, got %v", err)
	}
	if err := s.DeleteBookmark(ctx, "user-1", early.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.CreateBookmark(ctx, "user-1", domain.BookmarkInput{ChapterID: "missing", TextSnippet: "x"}); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("unknown chapter: expected not found, got %v", err)
	}
}

func TestSQLiteProfiles(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	if _, err := s.GetProfile(ctx, "user-1"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	created, err := s.CreateProfile(ctx, "user-1", domain.RoleReader, nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.Role != domain.RoleReader || created.DisplayName != nil {
		t.Fatalf("unexpected profile: %+v", created)
	}
	if _, err := s.CreateProfile(ctx, "user-1", domain.RoleReader, nil); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}

	name := "Kwame"
	updated, err := s.UpdateDisplayName(ctx, "user-1", &name)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.DisplayName == nil || *updated.DisplayName != name {
		t.Fatalf("display name not stored: %+v", updated)
	}

	promoted, err := s.SetRole(ctx, "user-1", domain.RoleAdmin, nil)
	if err != nil {
		t.Fatalf("set role: %v", err)
	}
	if promoted.ID != created.ID || !promoted.IsAdmin() || promoted.DisplayName == nil || *promoted.DisplayName != name {
		t.Fatalf("unexpected promoted profile: %+v", promoted)
	}

	fresh, err := s.SetRole(ctx, "user-2", domain.RoleAdmin, &name)
	if err != nil {
		t.Fatalf("set role for new user: %v", err)
	}
	if !fresh.IsAdmin() {
		t.Fatalf("expected admin: %+v", fresh)
	}

	all, err := s.ListProfiles(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 profiles, got %d", len(all))
	}
}

func TestSQLiteSiteSettingsUpsert(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	if err := s.UpsertSiteSettings(ctx, map[string]string{"hero.title": "Ananse", "hero.tagline": "Stories"}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := s.UpsertSiteSettings(ctx, map[string]string{"hero.title": "Ananse Tales"}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	settings, err := s.ListSiteSettings(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	got := map[string]string{}
	for _, st := range settings {
		got[st.Key] = st.Value
	}
	if len(got) != 2 || got["hero.title"] != "Ananse Tales" || got["hero.tagline"] != "Stories" {
		t.Fatalf("unexpected settings: %v", got)
	}
}

func TestSQLiteRecordBusinessMetric(t *testing.T) {
	s := newTestStore(t)
	err := s.RecordBusinessMetric(context.Background(), domain.BusinessMetric{
		Event:    domain.BusinessMetricEventChapterLiked,
		UserID:   "user-1",
		Metadata: map[string]any{"source": "test"},
	})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := s.RecordBusinessMetric(context.Background(), domain.BusinessMetric{}); err != nil {
		t.Fatalf("empty event should be ignored: %v", err)
	}
}
