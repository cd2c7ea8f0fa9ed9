package http

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"

	"ananse-reader/internal/domain"
)

type ctxKey int

const authKey ctxKey = iota

type authState struct {
	identity domain.Identity
	ok       bool
	err      error
}

// IdentityFrom returns the verified caller, if any.
func IdentityFrom(ctx context.Context) (domain.Identity, bool) {
	st, _ := ctx.Value(authKey).(authState)
	return st.identity, st.ok
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// identify verifies the bearer token when present. An invalid token leaves the
// request anonymous; requireAuth turns that into 401.
func (s *Server) identify(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			next.ServeHTTP(w, r)
			return
		}
		var st authState
		id, err := s.verifier.Verify(r.Context(), token)
		if err != nil {
			st.err = err
			ev := s.log.Debug()
			if !errors.Is(err, domain.ErrUnauthenticated) {
				ev = s.log.Warn()
			}
			ev.Err(err).Str("request_id", middleware.GetReqID(r.Context())).Msg("token verification failed")
		} else {
			st.identity, st.ok = id, true
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), authKey, st)))
	})
}

func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		st, _ := r.Context().Value(authKey).(authState)
		if !st.ok {
			if st.err != nil && !errors.Is(st.err, domain.ErrUnauthenticated) {
				writeError(w, http.StatusServiceUnavailable, "identity_unavailable", "identity provider unavailable")
				return
			}
			writeError(w, http.StatusUnauthorized, "unauthenticated", "authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, _ := IdentityFrom(r.Context())
		admin, err := s.svc.Profiles.IsAdmin(r.Context(), id.UID)
		if err != nil {
			s.respondError(w, r, err)
			return
		}
		if !admin {
			writeError(w, http.StatusForbidden, "forbidden", "admin role required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// callerIsAdmin is used by routes where admins see more than anonymous readers.
func (s *Server) callerIsAdmin(ctx context.Context) (bool, error) {
	id, ok := IdentityFrom(ctx)
	if !ok {
		return false, nil
	}
	return s.svc.Profiles.IsAdmin(ctx, id.UID)
}
