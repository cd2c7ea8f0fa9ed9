package chapters

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"ananse-reader/internal/domain"
	"ananse-reader/internal/infra/metrics"
)

// MaxExcerptLength limits excerpts, in runes.
const MaxExcerptLength = 1000

const (
	publishedListKey = "chapters:published"
	slugKeyPrefix    = "chapters:slug:"
)

// Service serves chapters to readers and manages them for admins.
type Service struct {
	repo      domain.ChapterRepo
	cache     domain.Cache
	cacheTTL  time.Duration
	business  domain.BusinessMetricRepo
	log       zerolog.Logger
	pageRunes int
	now       func() time.Time
}

type Option func(*Service)

// WithCache enables caching of published chapters.
func WithCache(cache domain.Cache, ttl time.Duration) Option {
	return func(s *Service) {
		s.cache = cache
		s.cacheTTL = ttl
	}
}

func WithLogger(log zerolog.Logger) Option {
	return func(s *Service) {
		s.log = log
	}
}

func WithBusinessMetrics(repo domain.BusinessMetricRepo) Option {
	return func(s *Service) {
		if repo != nil {
			s.business = repo
		}
	}
}

// WithPageRunes sets the page budget used by Page.
func WithPageRunes(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.pageRunes = n
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

func NewService(repo domain.ChapterRepo, opts ...Option) *Service {
	s := &Service{
		repo:      repo,
		business:  domain.NopBusinessMetrics{},
		log:       zerolog.Nop(),
		pageRunes: DefaultPageRunes,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ListPublished returns published chapters in display order.
func (s *Service) ListPublished(ctx context.Context) ([]domain.Chapter, error) {
	var cached []domain.Chapter
	if s.cacheGet(ctx, publishedListKey, &cached) {
		return cached, nil
	}
	chapters, err := s.repo.ListChapters(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("list published chapters: %w", err)
	}
	s.cacheSet(ctx, publishedListKey, chapters)
	return chapters, nil
}

// ListAll returns every chapter, drafts included.
func (s *Service) ListAll(ctx context.Context) ([]domain.Chapter, error) {
	chapters, err := s.repo.ListChapters(ctx, false)
	if err != nil {
		return nil, fmt.Errorf("list chapters: %w", err)
	}
	return chapters, nil
}

// GetForReader returns the chapter by slug. Unpublished chapters are
// reported as domain.ErrNotFound unless the caller is an admin.
func (s *Service) GetForReader(ctx context.Context, slug string, isAdmin bool) (domain.Chapter, error) {
	if !isAdmin {
		var cached domain.Chapter
		if s.cacheGet(ctx, slugKeyPrefix+slug, &cached) {
			return cached, nil
		}
	}
	c, err := s.repo.GetChapterBySlug(ctx, slug)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Chapter{}, domain.ErrNotFound
		}
		return domain.Chapter{}, fmt.Errorf("get chapter %q: %w", slug, err)
	}
	if !c.Published() {
		if !isAdmin {
			return domain.Chapter{}, domain.ErrNotFound
		}
		return c, nil
	}
	s.cacheSet(ctx, slugKeyPrefix+slug, c)
	return c, nil
}

// Page returns one 1-based page of the chapter content.
func (s *Service) Page(ctx context.Context, slug string, isAdmin bool, page int) (domain.Page, error) {
	c, err := s.GetForReader(ctx, slug, isAdmin)
	if err != nil {
		return domain.Page{}, err
	}
	pages := Paginate(c.Content, s.pageRunes)
	if page < 1 || page > len(pages) {
		return domain.Page{}, domain.ErrNotFound
	}
	return domain.Page{
		ChapterID:  c.ID,
		Slug:       c.Slug,
		Title:      c.Title,
		Page:       page,
		TotalPages: len(pages),
		Content:    pages[page-1],
	}, nil
}

// Create stores a new chapter.
func (s *Service) Create(ctx context.Context, in domain.ChapterInput) (domain.Chapter, error) {
	in = s.normalize(in)
	if err := validateInput(in); err != nil {
		return domain.Chapter{}, err
	}
	c, err := s.repo.CreateChapter(ctx, in)
	if err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return domain.Chapter{}, slugTaken()
		}
		return domain.Chapter{}, fmt.Errorf("create chapter: %w", err)
	}
	s.invalidate(ctx, c.Slug)
	if c.Published() {
		s.recordPublished(ctx, c)
	}
	s.log.Info().Str("chapter_id", c.ID).Str("slug", c.Slug).Str("status", string(c.Status)).Msg("chapter created")
	return c, nil
}

// Update applies a partial update.
func (s *Service) Update(ctx context.Context, id string, patch domain.ChapterPatch) (domain.Chapter, error) {
	current, err := s.repo.GetChapterByID(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Chapter{}, domain.ErrNotFound
		}
		return domain.Chapter{}, fmt.Errorf("load chapter %s: %w", id, err)
	}

	next := patch.Apply(current)
	if next.ReadTime <= 0 {
		next.ReadTime = domain.EstimateReadTime(next.Content)
	}
	if next.Published() && next.PublishedAt == nil {
		now := s.now().UTC()
		next.PublishedAt = &now
	}
	if err := validateInput(chapterInput(next)); err != nil {
		return domain.Chapter{}, err
	}

	updated, err := s.repo.UpdateChapter(ctx, next)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrConflict):
			return domain.Chapter{}, slugTaken()
		case errors.Is(err, domain.ErrNotFound):
			return domain.Chapter{}, domain.ErrNotFound
		}
		return domain.Chapter{}, fmt.Errorf("update chapter %s: %w", id, err)
	}
	s.invalidate(ctx, current.Slug, updated.Slug)
	if updated.Published() && !current.Published() {
		s.recordPublished(ctx, updated)
	}
	s.log.Info().Str("chapter_id", id).Str("slug", updated.Slug).Str("status", string(updated.Status)).Msg("chapter updated")
	return updated, nil
}

// Delete removes a chapter together with its progress, bookmarks and likes.
func (s *Service) Delete(ctx context.Context, id string) error {
	current, err := s.repo.GetChapterByID(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.ErrNotFound
		}
		return fmt.Errorf("load chapter %s: %w", id, err)
	}
	if err := s.repo.DeleteChapter(ctx, id); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.ErrNotFound
		}
		return fmt.Errorf("delete chapter %s: %w", id, err)
	}
	s.invalidate(ctx, current.Slug)
	s.log.Info().Str("chapter_id", id).Str("slug", current.Slug).Msg("chapter deleted")
	return nil
}

// Import inserts the chapter or replaces the one with the same slug.
func (s *Service) Import(ctx context.Context, in domain.ChapterInput) (domain.Chapter, bool, error) {
	in = s.normalize(in)
	if err := validateInput(in); err != nil {
		return domain.Chapter{}, false, err
	}
	c, inserted, err := s.repo.UpsertChapterBySlug(ctx, in)
	if err != nil {
		return domain.Chapter{}, false, fmt.Errorf("import chapter %q: %w", in.Slug, err)
	}
	s.invalidate(ctx, c.Slug)
	return c, inserted, nil
}

func (s *Service) normalize(in domain.ChapterInput) domain.ChapterInput {
	in.Slug = strings.TrimSpace(in.Slug)
	in.Title = strings.TrimSpace(in.Title)
	if in.Status == "" {
		in.Status = domain.ChapterStatusDraft
	}
	if in.ReadTime <= 0 {
		in.ReadTime = domain.EstimateReadTime(in.Content)
	}
	if in.Status == domain.ChapterStatusPublished && in.PublishedAt == nil {
		now := s.now().UTC()
		in.PublishedAt = &now
	}
	return in
}

func chapterInput(c domain.Chapter) domain.ChapterInput {
	return domain.ChapterInput{
		Slug:        c.Slug,
		Title:       c.Title,
		Excerpt:     c.Excerpt,
		Content:     c.Content,
		Order:       c.Order,
		Status:      c.Status,
		ReadTime:    c.ReadTime,
		PublishedAt: c.PublishedAt,
	}
}

func validateInput(in domain.ChapterInput) error {
	verr := &domain.ValidationError{}
	if !domain.ValidSlug(in.Slug) {
		verr.Violations = append(verr.Violations, domain.FieldViolation{Field: "slug", Message: "must be lower-case letters, digits and dashes"})
	}
	if strings.TrimSpace(in.Title) == "" {
		verr.Violations = append(verr.Violations, domain.FieldViolation{Field: "title", Message: "is required"})
	}
	if strings.TrimSpace(in.Content) == "" {
		verr.Violations = append(verr.Violations, domain.FieldViolation{Field: "content", Message: "is required"})
	}
	if in.Excerpt != nil && utf8.RuneCountInString(*in.Excerpt) > MaxExcerptLength {
		verr.Violations = append(verr.Violations, domain.FieldViolation{Field: "excerpt", Message: fmt.Sprintf("must be at most %d characters", MaxExcerptLength)})
	}
	if in.Order < 0 {
		verr.Violations = append(verr.Violations, domain.FieldViolation{Field: "order", Message: "must not be negative"})
	}
	if _, err := domain.ParseChapterStatus(string(in.Status)); err != nil {
		verr.Violations = append(verr.Violations, domain.FieldViolation{Field: "status", Message: "must be draft or published"})
	}
	if len(verr.Violations) > 0 {
		return verr
	}
	return nil
}

func slugTaken() error {
	return fmt.Errorf("%w: %w", domain.ErrConflict, domain.NewValidationError("slug", "is already taken"))
}

func (s *Service) recordPublished(ctx context.Context, c domain.Chapter) {
	metrics.IncChapterPublished()
	err := s.business.RecordBusinessMetric(ctx, domain.BusinessMetric{
		Event:     domain.BusinessMetricEventChapterPublished,
		ChapterID: c.ID,
		Metadata:  map[string]any{"slug": c.Slug, "order": c.Order},
	})
	if err != nil {
		s.log.Warn().Err(err).Str("chapter_id", c.ID).Msg("failed to record chapter_published metric")
	}
}

func (s *Service) invalidate(ctx context.Context, slugs ...string) {
	if s.cache == nil {
		return
	}
	keys := []string{publishedListKey}
	for _, slug := range slugs {
		if slug != "" {
			keys = append(keys, slugKeyPrefix+slug)
		}
	}
	if err := s.cache.Delete(ctx, keys...); err != nil {
		s.log.Warn().Err(err).Strs("keys", keys).Msg("chapter cache invalidation failed")
	}
}

func (s *Service) cacheGet(ctx context.Context, key string, out any) bool {
	if s.cache == nil {
		return false
	}
	data, err := s.cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, domain.ErrCacheMiss) {
			s.log.Warn().Err(err).Str("key", key).Msg("chapter cache read failed")
		}
		return false
	}
	if err := json.Unmarshal(data, out); err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("chapter cache entry is corrupt")
		return false
	}
	return true
}

func (s *Service) cacheSet(ctx context.Context, key string, v any) {
	if s.cache == nil {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, key, data, s.cacheTTL); err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("chapter cache write failed")
	}
}
