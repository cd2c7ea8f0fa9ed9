package bookmarks

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"ananse-reader/internal/domain"
)

const (
	MaxSnippetLength = 1000
	MaxNoteLength    = 2000
)

type Service struct {
	repo domain.BookmarkRepo
}

func NewService(repo domain.BookmarkRepo) *Service {
	return &Service{repo: repo}
}

// List returns the caller's bookmarks, newest first.
func (s *Service) List(ctx context.Context, userID string) ([]domain.Bookmark, error) {
	out, err := s.repo.ListBookmarks(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list bookmarks: %w", err)
	}
	return out, nil
}

// ListChapter returns the caller's bookmarks in one chapter, in paragraph order.
func (s *Service) ListChapter(ctx context.Context, userID, chapterID string) ([]domain.Bookmark, error) {
	out, err := s.repo.ListChapterBookmarks(ctx, userID, chapterID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return []domain.Bookmark{}, nil
		}
		return nil, fmt.Errorf("list chapter bookmarks: %w", err)
	}
	return out, nil
}

func (s *Service) Create(ctx context.Context, userID string, in domain.BookmarkInput) (domain.Bookmark, error) {
	in.TextSnippet = strings.TrimSpace(in.TextSnippet)
	if in.Note != nil {
		note := strings.TrimSpace(*in.Note)
		in.Note = &note
		if note == "" {
			in.Note = nil
		}
	}
	if err := validate(in); err != nil {
		return domain.Bookmark{}, err
	}
	b, err := s.repo.CreateBookmark(ctx, userID, in)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Bookmark{}, domain.ErrNotFound
		}
		return domain.Bookmark{}, fmt.Errorf("create bookmark: %w", err)
	}
	return b, nil
}

// Delete removes a bookmark owned by userID; others' bookmarks are not found.
func (s *Service) Delete(ctx context.Context, userID, id string) error {
	if err := s.repo.DeleteBookmark(ctx, userID, id); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.ErrNotFound
		}
		return fmt.Errorf("delete bookmark: %w", err)
	}
	return nil
}

func validate(in domain.BookmarkInput) error {
	verr := &domain.ValidationError{}
	if strings.TrimSpace(in.ChapterID) == "" {
		verr.Violations = append(verr.Violations, domain.FieldViolation{Field: "chapterId", Message: "is required"})
	}
	if in.TextSnippet == "" {
		verr.Violations = append(verr.Violations, domain.FieldViolation{Field: "textSnippet", Message: "is required"})
	} else if utf8.RuneCountInString(in.TextSnippet) > MaxSnippetLength {
		verr.Violations = append(verr.Violations, domain.FieldViolation{Field: "textSnippet", Message: fmt.Sprintf("must be at most %d characters", MaxSnippetLength)})
	}
	if in.ParagraphIndex < 0 {
		verr.Violations = append(verr.Violations, domain.FieldViolation{Field: "paragraphIndex", Message: "must not be negative"})
	}
	if in.Note != nil && utf8.RuneCountInString(*in.Note) > MaxNoteLength {
		verr.Violations = append(verr.Violations, domain.FieldViolation{Field: "note", Message: fmt.Sprintf("must be at most %d characters", MaxNoteLength)})
	}
	if len(verr.Violations) > 0 {
		return verr
	}
	return nil
}
