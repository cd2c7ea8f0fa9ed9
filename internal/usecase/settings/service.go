package settings

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"unicode/utf8"

	"ananse-reader/internal/domain"
)

// MaxValueLength limits a single setting value, in runes.
const MaxValueLength = 10000

var keyPattern = regexp.MustCompile(`^[a-zA-Z0-9_.-]{1,64}$`)

// Service exposes the landing-page copy store.
type Service struct {
	repo domain.SiteSettingRepo
}

func NewService(repo domain.SiteSettingRepo) *Service {
	return &Service{repo: repo}
}

// Map returns all settings as key/value pairs.
func (s *Service) Map(ctx context.Context) (map[string]string, error) {
	rows, err := s.repo.ListSiteSettings(ctx)
	if err != nil {
		return nil, fmt.Errorf("list site settings: %w", err)
	}
	out := make(map[string]string, len(rows))
	for _, r := range rows {
		out[r.Key] = r.Value
	}
	return out, nil
}

// Update upserts the given keys and returns the full map afterwards.
func (s *Service) Update(ctx context.Context, values map[string]string) (map[string]string, error) {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	verr := &domain.ValidationError{}
	for _, k := range keys {
		if !keyPattern.MatchString(k) {
			verr.Violations = append(verr.Violations, domain.FieldViolation{Field: k, Message: "key must be 1-64 letters, digits, dots, dashes or underscores"})
			continue
		}
		if utf8.RuneCountInString(values[k]) > MaxValueLength {
			verr.Violations = append(verr.Violations, domain.FieldViolation{Field: k, Message: fmt.Sprintf("value must be at most %d characters", MaxValueLength)})
		}
	}
	if len(verr.Violations) > 0 {
		return nil, verr
	}

	if err := s.repo.UpsertSiteSettings(ctx, values); err != nil {
		return nil, fmt.Errorf("upsert site settings: %w", err)
	}
	return s.Map(ctx)
}
