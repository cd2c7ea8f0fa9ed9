package profiles

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"ananse-reader/internal/domain"
)

// MaxDisplayNameLength limits display names, in runes.
const MaxDisplayNameLength = 80

// Service manages profiles and answers role checks.
type Service struct {
	repo     domain.ProfileRepo
	business domain.BusinessMetricRepo
	log      zerolog.Logger
}

func NewService(repo domain.ProfileRepo, business domain.BusinessMetricRepo, log zerolog.Logger) *Service {
	if business == nil {
		business = domain.NopBusinessMetrics{}
	}
	return &Service{repo: repo, business: business, log: log}
}

// Ensure returns the caller's profile, creating a reader profile on first use.
// A concurrent creation loses on the unique constraint and re-reads.
func (s *Service) Ensure(ctx context.Context, userID string) (domain.Profile, error) {
	p, err := s.repo.GetProfile(ctx, userID)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return domain.Profile{}, fmt.Errorf("get profile: %w", err)
	}

	p, err = s.repo.CreateProfile(ctx, userID, domain.RoleReader, nil)
	if errors.Is(err, domain.ErrConflict) {
		p, err = s.repo.GetProfile(ctx, userID)
		if err != nil {
			return domain.Profile{}, fmt.Errorf("re-read profile after conflict: %w", err)
		}
		return p, nil
	}
	if err != nil {
		return domain.Profile{}, fmt.Errorf("create profile: %w", err)
	}

	if err := s.business.RecordBusinessMetric(ctx, domain.BusinessMetric{
		Event:  domain.BusinessMetricEventProfileCreated,
		UserID: userID,
	}); err != nil {
		s.log.Warn().Err(err).Str("user_id", userID).Msg("failed to record profile_created metric")
	}
	s.log.Info().Str("user_id", userID).Msg("profile created")
	return p, nil
}

// Role returns the stored role, or reader when the user has no profile yet.
func (s *Service) Role(ctx context.Context, userID string) (domain.Role, error) {
	p, err := s.repo.GetProfile(ctx, userID)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.RoleReader, nil
	}
	if err != nil {
		return "", fmt.Errorf("get profile: %w", err)
	}
	return domain.RoleOrDefault(&p), nil
}

// IsAdmin reports whether a profile exists for userID with the admin role.
func (s *Service) IsAdmin(ctx context.Context, userID string) (bool, error) {
	role, err := s.Role(ctx, userID)
	if err != nil {
		return false, err
	}
	return role == domain.RoleAdmin, nil
}

// UpdateDisplayName changes the display name only. An absent name leaves the
// profile untouched; null or a blank name clears it.
func (s *Service) UpdateDisplayName(ctx context.Context, userID string, displayName domain.Optional[string]) (domain.Profile, error) {
	name, err := normalizeDisplayName(displayName.Value)
	if err != nil {
		return domain.Profile{}, err
	}
	current, err := s.Ensure(ctx, userID)
	if err != nil {
		return domain.Profile{}, err
	}
	if !displayName.Set {
		return current, nil
	}
	p, err := s.repo.UpdateDisplayName(ctx, userID, name)
	if err != nil {
		return domain.Profile{}, fmt.Errorf("update profile: %w", err)
	}
	return p, nil
}

// Promote grants the admin role, creating the profile when missing.
func (s *Service) Promote(ctx context.Context, userID string, displayName *string) (domain.Profile, error) {
	if strings.TrimSpace(userID) == "" {
		return domain.Profile{}, domain.NewValidationError("uid", "is required")
	}
	name, err := normalizeDisplayName(displayName)
	if err != nil {
		return domain.Profile{}, err
	}
	p, err := s.repo.SetRole(ctx, userID, domain.RoleAdmin, name)
	if err != nil {
		return domain.Profile{}, fmt.Errorf("promote %s: %w", userID, err)
	}
	s.log.Info().Str("user_id", userID).Msg("profile promoted to admin")
	return p, nil
}

func (s *Service) List(ctx context.Context) ([]domain.Profile, error) {
	profiles, err := s.repo.ListProfiles(ctx)
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	return profiles, nil
}

func normalizeDisplayName(raw *string) (*string, error) {
	if raw == nil {
		return nil, nil
	}
	name := strings.TrimSpace(*raw)
	if name == "" {
		return nil, nil
	}
	if utf8.RuneCountInString(name) > MaxDisplayNameLength {
		return nil, domain.NewValidationError("displayName", fmt.Sprintf("must be at most %d characters", MaxDisplayNameLength))
	}
	return &name, nil
}
