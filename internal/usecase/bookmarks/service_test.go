package bookmarks

import (
	"context"
	"errors"
	"strings"
	"testing"

	"ananse-reader/internal/domain"
)

type stubRepo struct {
	items    []domain.Bookmark
	chapters map[string]bool
}

func (r *stubRepo) ListBookmarks(_ context.Context, userID string) ([]domain.Bookmark, error) {
	var out []domain.Bookmark
	for i := len(r.items) - 1; i >= 0; i-- {
		if r.items[i].UserID == userID {
			out = append(out, r.items[i])
		}
	}
	return out, nil
}

func (r *stubRepo) ListChapterBookmarks(_ context.Context, userID, chapterID string) ([]domain.Bookmark, error) {
	var out []domain.Bookmark
	for _, b := range r.items {
		if b.UserID == userID && b.ChapterID == chapterID {
			out = append(out, b)
		}
	}
	return out, nil
}

func (r *stubRepo) CreateBookmark(_ context.Context, userID string, in domain.BookmarkInput) (domain.Bookmark, error) {
	if !r.chapters[in.ChapterID] {
		return domain.Bookmark{}, domain.ErrNotFound
	}
	b := domain.Bookmark{
		ID: "b" + strings.Repeat("1", len(r.items)+1), UserID: userID, ChapterID: in.ChapterID,
		TextSnippet: in.TextSnippet, ParagraphIndex: in.ParagraphIndex, Note: in.Note,
	}
	r.items = append(r.items, b)
	return b, nil
}

func (r *stubRepo) DeleteBookmark(_ context.Context, userID, id string) error {
	for i, b := range r.items {
		if b.ID == id && b.UserID == userID {
			r.items = append(r.items[:i], r.items[i+1:]...)
			return nil
		}
	}
	return domain.ErrNotFound
}

func TestCreateNormalizesAndValidates(t *testing.T) {
	svc := NewService(&stubRepo{chapters: map[string]bool{"ch": true}})
	ctx := context.Background()

	blank := "   "
	b, err := svc.Create(ctx, "u", domain.BookmarkInput{ChapterID: "ch", TextSnippet: "  It was night. ", ParagraphIndex: 3, Note: &blank})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if b.TextSnippet != "It was night." || b.Note != nil {
		t.Fatalf("input not normalized: %+v", b)
	}

	_, err = svc.Create(ctx, "u", domain.BookmarkInput{ChapterID: "", TextSnippet: "", ParagraphIndex: -1})
	verr, ok := domain.AsValidationError(err)
	if !ok || len(verr.Violations) != 3 {
		t.Fatalf("expected three violations, got %v", err)
	}

	_, err = svc.Create(ctx, "u", domain.BookmarkInput{ChapterID: "ch", TextSnippet: strings.Repeat("s", MaxSnippetLength+1)})
	if _, ok := domain.AsValidationError(err); !ok {
		t.Fatalf("expected snippet length violation, got %v", err)
	}

	if _, err := svc.Create(ctx, "u", domain.BookmarkInput{ChapterID: "gone", TextSnippet: "x"}); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found for unknown chapter, got %v", err)
	}
}

func TestDeleteIsOwnerScoped(t *testing.T) {
	repo := &stubRepo{chapters: map[string]bool{"ch": true}}
	svc := NewService(repo)
	ctx := context.Background()

	b, err := svc.Create(ctx, "owner", domain.BookmarkInput{ChapterID: "ch", TextSnippet: "line"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := svc.Delete(ctx, "intruder", b.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found for foreign delete, got %v", err)
	}
	if err := svc.Delete(ctx, "owner", b.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	left, _ := svc.List(ctx, "owner")
	if len(left) != 0 {
		t.Fatalf("bookmark not deleted")
	}
}
