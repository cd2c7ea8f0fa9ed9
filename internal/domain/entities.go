package domain

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// ChapterStatus describes whether a chapter is visible to readers.
type ChapterStatus string

const (
	ChapterStatusDraft     ChapterStatus = "draft"
	ChapterStatusPublished ChapterStatus = "published"
)

// ParseChapterStatus validates a raw status value.
func ParseChapterStatus(raw string) (ChapterStatus, error) {
	switch ChapterStatus(strings.ToLower(strings.TrimSpace(raw))) {
	case ChapterStatusDraft:
		return ChapterStatusDraft, nil
	case ChapterStatusPublished:
		return ChapterStatusPublished, nil
	default:
		return "", fmt.Errorf("unknown chapter status %q", raw)
	}
}

// Chapter is one unit of serialized content.
type Chapter struct {
	ID          string        `json:"id"`
	Slug        string        `json:"slug"`
	Title       string        `json:"title"`
	Excerpt     *string       `json:"excerpt"`
	Content     string        `json:"content"`
	Order       int           `json:"order"`
	Status      ChapterStatus `json:"status"`
	ReadTime    int           `json:"readTime"`
	PublishedAt *time.Time    `json:"publishedAt"`
	CreatedAt   time.Time     `json:"createdAt"`
	UpdatedAt   time.Time     `json:"updatedAt"`
}

// Published reports whether readers may see the chapter.
func (c Chapter) Published() bool {
	return c.Status == ChapterStatusPublished
}

// ChapterInput carries the fields of a new chapter.
type ChapterInput struct {
	Slug        string
	Title       string
	Excerpt     *string
	Content     string
	Order       int
	Status      ChapterStatus
	ReadTime    int
	PublishedAt *time.Time
}

// ChapterPatch is a partial chapter update; nil fields stay untouched.
// Excerpt and PublishedAt are nullable, so an explicit null clears them.
type ChapterPatch struct {
	Slug        *string
	Title       *string
	Excerpt     Optional[string]
	Content     *string
	Order       *int
	Status      *ChapterStatus
	ReadTime    *int
	PublishedAt Optional[time.Time]
}

// Apply returns a copy of c with the patch applied.
func (p ChapterPatch) Apply(c Chapter) Chapter {
	if p.Slug != nil {
		c.Slug = *p.Slug
	}
	if p.Title != nil {
		c.Title = *p.Title
	}
	if p.Excerpt.Set {
		c.Excerpt = nil
		if p.Excerpt.Value != nil {
			excerpt := *p.Excerpt.Value
			c.Excerpt = &excerpt
		}
	}
	if p.Content != nil {
		c.Content = *p.Content
	}
	if p.Order != nil {
		c.Order = *p.Order
	}
	if p.Status != nil {
		c.Status = *p.Status
	}
	if p.ReadTime != nil {
		c.ReadTime = *p.ReadTime
	}
	if p.PublishedAt.Set {
		c.PublishedAt = nil
		if p.PublishedAt.Value != nil {
			published := *p.PublishedAt.Value
			c.PublishedAt = &published
		}
	}
	return c
}

// Page is one slice of a chapter's content as served to the reader view.
type Page struct {
	ChapterID  string `json:"chapterId"`
	Slug       string `json:"slug"`
	Title      string `json:"title"`
	Page       int    `json:"page"`
	TotalPages int    `json:"totalPages"`
	Content    string `json:"content"`
}

// Profile stores per-user role and display data.
type Profile struct {
	ID          string    `json:"id"`
	UserID      string    `json:"userId"`
	Role        Role      `json:"role"`
	DisplayName *string   `json:"displayName"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// ReadingProgress is the scroll position of one user in one chapter.
type ReadingProgress struct {
	ID             string    `json:"id"`
	UserID         string    `json:"userId"`
	ChapterID      string    `json:"chapterId"`
	ScrollPosition float64   `json:"scrollPosition"`
	Completed      bool      `json:"completed"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// Bookmark marks a paragraph inside a chapter.
type Bookmark struct {
	ID             string    `json:"id"`
	UserID         string    `json:"userId"`
	ChapterID      string    `json:"chapterId"`
	TextSnippet    string    `json:"textSnippet"`
	ParagraphIndex int       `json:"paragraphIndex"`
	Note           *string   `json:"note"`
	CreatedAt      time.Time `json:"createdAt"`
}

// BookmarkInput carries the fields of a new bookmark.
type BookmarkInput struct {
	ChapterID      string
	TextSnippet    string
	ParagraphIndex int
	Note           *string
}

// LikeState is the like status of a chapter as seen by one caller.
type LikeState struct {
	Liked bool `json:"liked"`
	Count int  `json:"count"`
}

// SiteSetting is one entry of the landing-page copy store.
type SiteSetting struct {
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Identity holds the verified claims of the caller for one request.
type Identity struct {
	UID   string
	Email string
	Name  string
}

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

// ValidSlug reports whether s is a lower-case, dash separated slug.
func ValidSlug(s string) bool {
	return len(s) <= 128 && slugPattern.MatchString(s)
}
