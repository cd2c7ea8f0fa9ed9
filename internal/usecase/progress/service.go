package progress

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/rs/zerolog"

	"ananse-reader/internal/domain"
	"ananse-reader/internal/infra/metrics"
)

// Service records how far each reader got in each chapter.
type Service struct {
	repo     domain.ProgressRepo
	business domain.BusinessMetricRepo
	log      zerolog.Logger
}

func NewService(repo domain.ProgressRepo, business domain.BusinessMetricRepo, log zerolog.Logger) *Service {
	if business == nil {
		business = domain.NopBusinessMetrics{}
	}
	return &Service{repo: repo, business: business, log: log}
}

// Save upserts the caller's position in a chapter. Completion is derived from
// the position, so concurrent writers converge on last-write-wins.
func (s *Service) Save(ctx context.Context, userID, chapterID string, scrollPosition float64) (domain.ReadingProgress, error) {
	if strings.TrimSpace(chapterID) == "" {
		return domain.ReadingProgress{}, domain.NewValidationError("chapterId", "is required")
	}
	if math.IsNaN(scrollPosition) || scrollPosition < 0 || scrollPosition > 1 {
		return domain.ReadingProgress{}, domain.NewValidationError("scrollPosition", "must be between 0 and 1")
	}
	completed := domain.IsCompleted(scrollPosition)

	wasCompleted := false
	if prev, err := s.repo.GetProgress(ctx, userID, chapterID); err == nil {
		wasCompleted = prev.Completed
	} else if !errors.Is(err, domain.ErrNotFound) {
		return domain.ReadingProgress{}, fmt.Errorf("get progress: %w", err)
	}

	rp, err := s.repo.UpsertProgress(ctx, userID, chapterID, scrollPosition, completed)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.ReadingProgress{}, domain.ErrNotFound
		}
		return domain.ReadingProgress{}, fmt.Errorf("upsert progress: %w", err)
	}
	metrics.IncProgressWrite(completed)

	if completed && !wasCompleted {
		if err := s.business.RecordBusinessMetric(ctx, domain.BusinessMetric{
			Event:     domain.BusinessMetricEventChapterCompleted,
			UserID:    userID,
			ChapterID: chapterID,
		}); err != nil {
			s.log.Warn().Err(err).Str("chapter_id", chapterID).Msg("failed to record chapter_completed metric")
		}
	}
	return rp, nil
}

func (s *Service) List(ctx context.Context, userID string) ([]domain.ReadingProgress, error) {
	rows, err := s.repo.ListProgress(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list progress: %w", err)
	}
	return rows, nil
}

// Last returns the most recently updated progress row, or nil when the user has none.
func (s *Service) Last(ctx context.Context, userID string) (*domain.ReadingProgress, error) {
	rp, err := s.repo.LastProgress(ctx, userID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("last progress: %w", err)
	}
	return &rp, nil
}
