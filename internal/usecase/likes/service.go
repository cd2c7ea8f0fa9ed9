package likes

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"ananse-reader/internal/domain"
	"ananse-reader/internal/infra/metrics"
)

type Service struct {
	repo     domain.LikeRepo
	business domain.BusinessMetricRepo
	log      zerolog.Logger
}

func NewService(repo domain.LikeRepo, business domain.BusinessMetricRepo, log zerolog.Logger) *Service {
	if business == nil {
		business = domain.NopBusinessMetrics{}
	}
	return &Service{repo: repo, business: business, log: log}
}

// Status reports the like count; anonymous callers pass an empty userID.
func (s *Service) Status(ctx context.Context, userID, chapterID string) (domain.LikeState, error) {
	state, err := s.repo.LikeState(ctx, userID, chapterID)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.LikeState{}, nil
	}
	if err != nil {
		return domain.LikeState{}, fmt.Errorf("like state: %w", err)
	}
	return state, nil
}

// Toggle likes the chapter if the caller has not, and unlikes it otherwise.
func (s *Service) Toggle(ctx context.Context, userID, chapterID string) (domain.LikeState, error) {
	state, err := s.repo.ToggleLike(ctx, userID, chapterID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.LikeState{}, domain.ErrNotFound
		}
		return domain.LikeState{}, fmt.Errorf("toggle like: %w", err)
	}
	metrics.IncLikeToggle(state.Liked)
	if state.Liked {
		if err := s.business.RecordBusinessMetric(ctx, domain.BusinessMetric{
			Event:     domain.BusinessMetricEventChapterLiked,
			UserID:    userID,
			ChapterID: chapterID,
		}); err != nil {
			s.log.Warn().Err(err).Str("chapter_id", chapterID).Msg("failed to record chapter_liked metric")
		}
	}
	return state, nil
}
