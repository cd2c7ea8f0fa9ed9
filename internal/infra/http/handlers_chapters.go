package http

import (
	"net/http"
	"strconv"
	"time"

	chi "github.com/go-chi/chi/v5"

	"ananse-reader/internal/domain"
)

type createChapterRequest struct {
	Slug        string     `json:"slug" validate:"required,slug"`
	Title       string     `json:"title" validate:"required,max=300"`
	Excerpt     *string    `json:"excerpt" validate:"omitempty,max=1000"`
	Content     string     `json:"content" validate:"required"`
	Order       *int       `json:"order" validate:"required,min=0"`
	Status      string     `json:"status" validate:"omitempty,oneof=draft published"`
	ReadTime    int        `json:"readTime" validate:"min=0"`
	PublishedAt *time.Time `json:"publishedAt"`
}

type updateChapterRequest struct {
	Slug        *string                    `json:"slug" validate:"omitempty,slug"`
	Title       *string                    `json:"title" validate:"omitempty,min=1,max=300"`
	Excerpt     domain.Optional[string]    `json:"excerpt"`
	Content     *string                    `json:"content" validate:"omitempty,min=1"`
	Order       *int                       `json:"order" validate:"omitempty,min=0"`
	Status      *string                    `json:"status" validate:"omitempty,oneof=draft published"`
	ReadTime    *int                       `json:"readTime" validate:"omitempty,min=1"`
	PublishedAt domain.Optional[time.Time] `json:"publishedAt"`
}

func (req createChapterRequest) input() domain.ChapterInput {
	return domain.ChapterInput{
		Slug:        req.Slug,
		Title:       req.Title,
		Excerpt:     req.Excerpt,
		Content:     req.Content,
		Order:       *req.Order,
		Status:      domain.ChapterStatus(req.Status),
		ReadTime:    req.ReadTime,
		PublishedAt: req.PublishedAt,
	}
}

func (req updateChapterRequest) patch() domain.ChapterPatch {
	p := domain.ChapterPatch{
		Slug:        req.Slug,
		Title:       req.Title,
		Excerpt:     req.Excerpt,
		Content:     req.Content,
		Order:       req.Order,
		ReadTime:    req.ReadTime,
		PublishedAt: req.PublishedAt,
	}
	if req.Status != nil {
		status := domain.ChapterStatus(*req.Status)
		p.Status = &status
	}
	return p
}

func (s *Server) handleListChapters(w http.ResponseWriter, r *http.Request) {
	list, err := s.svc.Chapters.ListPublished(r.Context())
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(list))
}

func (s *Server) handleGetChapter(w http.ResponseWriter, r *http.Request) {
	admin, err := s.callerIsAdmin(r.Context())
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	c, err := s.svc.Chapters.GetForReader(r.Context(), chi.URLParam(r, "slug"), admin)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleGetChapterPage(w http.ResponseWriter, r *http.Request) {
	page, err := strconv.Atoi(chi.URLParam(r, "page"))
	if err != nil || page < 1 {
		s.respondError(w, r, domain.NewValidationError("page", "must be a positive integer"))
		return
	}
	admin, err := s.callerIsAdmin(r.Context())
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	p, err := s.svc.Chapters.Page(r.Context(), chi.URLParam(r, "slug"), admin, page)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleAdminListChapters(w http.ResponseWriter, r *http.Request) {
	list, err := s.svc.Chapters.ListAll(r.Context())
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(list))
}

func (s *Server) handleCreateChapter(w http.ResponseWriter, r *http.Request) {
	var req createChapterRequest
	if err := s.decodeJSON(r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	c, err := s.svc.Chapters.Create(r.Context(), req.input())
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (s *Server) handleUpdateChapter(w http.ResponseWriter, r *http.Request) {
	var req updateChapterRequest
	if err := s.decodeJSON(r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	c, err := s.svc.Chapters.Update(r.Context(), chi.URLParam(r, "id"), req.patch())
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleDeleteChapter(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Chapters.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// nonNil keeps empty lists encoded as [] rather than null.
func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
