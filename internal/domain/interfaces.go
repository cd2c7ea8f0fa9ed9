package domain

import (
	"context"
	"time"
)

// ChapterRepo persists chapters.
type ChapterRepo interface {
	ListChapters(ctx context.Context, publishedOnly bool) ([]Chapter, error)
	GetChapterBySlug(ctx context.Context, slug string) (Chapter, error)
	GetChapterByID(ctx context.Context, id string) (Chapter, error)
	CreateChapter(ctx context.Context, in ChapterInput) (Chapter, error)
	// UpdateChapter stores every field of c except id and createdAt.
	UpdateChapter(ctx context.Context, c Chapter) (Chapter, error)
	DeleteChapter(ctx context.Context, id string) error
	// UpsertChapterBySlug inserts or replaces the chapter with the same slug.
	UpsertChapterBySlug(ctx context.Context, in ChapterInput) (Chapter, bool, error)
}

// ProfileRepo persists profiles.
type ProfileRepo interface {
	GetProfile(ctx context.Context, userID string) (Profile, error)
	// CreateProfile returns ErrConflict if the user already has a profile.
	CreateProfile(ctx context.Context, userID string, role Role, displayName *string) (Profile, error)
	UpdateDisplayName(ctx context.Context, userID string, displayName *string) (Profile, error)
	// SetRole creates the profile when missing.
	SetRole(ctx context.Context, userID string, role Role, displayName *string) (Profile, error)
	ListProfiles(ctx context.Context) ([]Profile, error)
}

// ProgressRepo persists reading progress.
type ProgressRepo interface {
	// UpsertProgress returns ErrNotFound when the chapter does not exist.
	UpsertProgress(ctx context.Context, userID, chapterID string, scrollPosition float64, completed bool) (ReadingProgress, error)
	GetProgress(ctx context.Context, userID, chapterID string) (ReadingProgress, error)
	ListProgress(ctx context.Context, userID string) ([]ReadingProgress, error)
	LastProgress(ctx context.Context, userID string) (ReadingProgress, error)
}

// BookmarkRepo persists bookmarks.
type BookmarkRepo interface {
	ListBookmarks(ctx context.Context, userID string) ([]Bookmark, error)
	ListChapterBookmarks(ctx context.Context, userID, chapterID string) ([]Bookmark, error)
	CreateBookmark(ctx context.Context, userID string, in BookmarkInput) (Bookmark, error)
	// DeleteBookmark only removes bookmarks owned by userID.
	DeleteBookmark(ctx context.Context, userID, id string) error
}

// LikeRepo persists likes.
type LikeRepo interface {
	// LikeState reports the like count; Liked is false when userID is empty.
	LikeState(ctx context.Context, userID, chapterID string) (LikeState, error)
	ToggleLike(ctx context.Context, userID, chapterID string) (LikeState, error)
}

// SiteSettingRepo persists site settings.
type SiteSettingRepo interface {
	ListSiteSettings(ctx context.Context) ([]SiteSetting, error)
	UpsertSiteSettings(ctx context.Context, values map[string]string) error
}

// Store is the whole storage layer.
type Store interface {
	ChapterRepo
	ProfileRepo
	ProgressRepo
	BookmarkRepo
	LikeRepo
	SiteSettingRepo
	BusinessMetricRepo
}

// Cache stores opaque values with a TTL.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// TokenVerifier checks identity tokens issued by the identity provider.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (Identity, error)
}
