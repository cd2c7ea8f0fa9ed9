package http

import (
	"net/http"

	chi "github.com/go-chi/chi/v5"

	"ananse-reader/internal/domain"
)

type meResponse struct {
	Authenticated bool        `json:"authenticated"`
	UID           string      `json:"uid,omitempty"`
	Email         string      `json:"email,omitempty"`
	Name          string      `json:"name,omitempty"`
	Role          domain.Role `json:"role,omitempty"`
}

type updateProfileRequest struct {
	DisplayName domain.Optional[string] `json:"displayName"`
}

type saveProgressRequest struct {
	ChapterID      string   `json:"chapterId" validate:"required"`
	ScrollPosition *float64 `json:"scrollPosition" validate:"required,gte=0,lte=1"`
	// Completed is accepted for compatibility and ignored; it is derived from the position.
	Completed *bool `json:"completed"`
}

type createBookmarkRequest struct {
	ChapterID      string  `json:"chapterId" validate:"required"`
	TextSnippet    string  `json:"textSnippet" validate:"required,max=1000"`
	ParagraphIndex *int    `json:"paragraphIndex" validate:"required,min=0"`
	Note           *string `json:"note" validate:"omitempty,max=2000"`
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	id, ok := IdentityFrom(r.Context())
	if !ok {
		writeJSON(w, http.StatusOK, meResponse{})
		return
	}
	role, err := s.svc.Profiles.Role(r.Context(), id.UID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, meResponse{
		Authenticated: true,
		UID:           id.UID,
		Email:         id.Email,
		Name:          id.Name,
		Role:          role,
	})
}

func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFrom(r.Context())
	p, err := s.svc.Profiles.Ensure(r.Context(), id.UID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req updateProfileRequest
	if err := s.decodeJSON(r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	id, _ := IdentityFrom(r.Context())
	p, err := s.svc.Profiles.UpdateDisplayName(r.Context(), id.UID, req.DisplayName)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleListProgress(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFrom(r.Context())
	rows, err := s.svc.Progress.List(r.Context(), id.UID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(rows))
}

func (s *Server) handleLastProgress(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFrom(r.Context())
	last, err := s.svc.Progress.Last(r.Context(), id.UID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, last)
}

func (s *Server) handleSaveProgress(w http.ResponseWriter, r *http.Request) {
	var req saveProgressRequest
	if err := s.decodeJSON(r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	id, _ := IdentityFrom(r.Context())
	rp, err := s.svc.Progress.Save(r.Context(), id.UID, req.ChapterID, *req.ScrollPosition)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rp)
}

func (s *Server) handleListBookmarks(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFrom(r.Context())
	list, err := s.svc.Bookmarks.List(r.Context(), id.UID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(list))
}

func (s *Server) handleListChapterBookmarks(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFrom(r.Context())
	list, err := s.svc.Bookmarks.ListChapter(r.Context(), id.UID, chi.URLParam(r, "chapterId"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(list))
}

func (s *Server) handleCreateBookmark(w http.ResponseWriter, r *http.Request) {
	var req createBookmarkRequest
	if err := s.decodeJSON(r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	id, _ := IdentityFrom(r.Context())
	b, err := s.svc.Bookmarks.Create(r.Context(), id.UID, domain.BookmarkInput{
		ChapterID:      req.ChapterID,
		TextSnippet:    req.TextSnippet,
		ParagraphIndex: *req.ParagraphIndex,
		Note:           req.Note,
	})
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

func (s *Server) handleDeleteBookmark(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFrom(r.Context())
	if err := s.svc.Bookmarks.Delete(r.Context(), id.UID, chi.URLParam(r, "id")); err != nil {
		s.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleLikeStatus(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFrom(r.Context())
	state, err := s.svc.Likes.Status(r.Context(), id.UID, chi.URLParam(r, "chapterId"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (s *Server) handleToggleLike(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFrom(r.Context())
	state, err := s.svc.Likes.Toggle(r.Context(), id.UID, chi.URLParam(r, "chapterId"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (s *Server) handleGetSiteSettings(w http.ResponseWriter, r *http.Request) {
	values, err := s.svc.Settings.Map(r.Context())
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, values)
}

func (s *Server) handleUpdateSiteSettings(w http.ResponseWriter, r *http.Request) {
	var req map[string]string
	if err := s.decodeJSON(r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	values, err := s.svc.Settings.Update(r.Context(), req)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, values)
}
