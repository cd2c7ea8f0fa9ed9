package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"ananse-reader/internal/adapters/readerclient"
	"ananse-reader/internal/domain"
	"ananse-reader/internal/usecase/reading"
)

type fakeAPI struct {
	mu       sync.Mutex
	chapters []domain.Chapter
	pages    map[string][]string
	saved    []map[string]any
	last     *domain.ReadingProgress
	liked    bool
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		chapters: []domain.Chapter{
			{ID: "c2", Slug: "the-trap", Title: "The Trap", Order: 2, ReadTime: 4},
			{ID: "c1", Slug: "the-web", Title: "The Web", Order: 1, ReadTime: 3},
		},
		pages: map[string][]string{
			"the-web":  {"Ananse spun a web.", "It caught the moon."},
			"the-trap": {"Tiger walked in."},
		},
	}
}

func (f *fakeAPI) handler() http.Handler {
	mux := http.NewServeMux()
	writeJSON := func(w http.ResponseWriter, status int, v any) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(v)
	}
	mux.HandleFunc("GET /api/chapters", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, f.chapters)
	})
	mux.HandleFunc("GET /api/chapters/{slug}", func(w http.ResponseWriter, r *http.Request) {
		for _, c := range f.chapters {
			if c.Slug == r.PathValue("slug") {
				writeJSON(w, http.StatusOK, c)
				return
			}
		}
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found", "code": "not_found"})
	})
	mux.HandleFunc("GET /api/chapters/{slug}/pages/{page}", func(w http.ResponseWriter, r *http.Request) {
		pages := f.pages[r.PathValue("slug")]
		n, _ := strconv.Atoi(r.PathValue("page"))
		if n < 1 || n > len(pages) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found", "code": "not_found"})
			return
		}
		var id string
		for _, c := range f.chapters {
			if c.Slug == r.PathValue("slug") {
				id = c.ID
			}
		}
		writeJSON(w, http.StatusOK, domain.Page{ChapterID: id, Slug: r.PathValue("slug"), Page: n, TotalPages: len(pages), Content: pages[n-1]})
	})
	mux.HandleFunc("GET /api/progress", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, []domain.ReadingProgress{{ChapterID: "c1", ScrollPosition: 0.5}})
	})
	mux.HandleFunc("GET /api/progress/last", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		writeJSON(w, http.StatusOK, f.last)
	})
	mux.HandleFunc("POST /api/progress", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthenticated", "code": "unauthenticated"})
			return
		}
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.mu.Lock()
		f.saved = append(f.saved, body)
		f.mu.Unlock()
		writeJSON(w, http.StatusOK, domain.ReadingProgress{ChapterID: body["chapterId"].(string)})
	})
	mux.HandleFunc("POST /api/likes/{id}", func(w http.ResponseWriter, r *http.Request) {
		known := false
		for _, c := range f.chapters {
			known = known || c.ID == r.PathValue("id")
		}
		if !known {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found", "code": "not_found"})
			return
		}
		f.mu.Lock()
		f.liked = !f.liked
		state := domain.LikeState{Liked: f.liked}
		if f.liked {
			state.Count = 1
		}
		f.mu.Unlock()
		writeJSON(w, http.StatusOK, state)
	})
	mux.HandleFunc("GET /api/bookmarks", func(w http.ResponseWriter, r *http.Request) {
		note := "remember this"
		writeJSON(w, http.StatusOK, []domain.Bookmark{{ID: "b1", ChapterID: "c1", TextSnippet: "caught the moon", ParagraphIndex: 1, Note: &note, CreatedAt: time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)}})
	})
	return mux
}

func (f *fakeAPI) setLast(rp *domain.ReadingProgress) {
	f.mu.Lock()
	f.last = rp
	f.mu.Unlock()
}

func (f *fakeAPI) savedPositions() []map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]map[string]any(nil), f.saved...)
}

func newTestReader(t *testing.T, api *fakeAPI, token string, input string) (*reader, *bytes.Buffer) {
	t.Helper()
	srv := httptest.NewServer(api.handler())
	t.Cleanup(srv.Close)
	client, err := readerclient.New(srv.URL, readerclient.WithToken(token))
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	var out bytes.Buffer
	return &reader{
		api:      client,
		prefs:    reading.NewPreferencesStore(filepath.Join(t.TempDir(), "prefs.json")),
		in:       strings.NewReader(input),
		out:      &out,
		log:      zerolog.Nop(),
		debounce: time.Hour,
	}, &out
}

func TestTocShowsProgress(t *testing.T) {
	r, out := newTestReader(t, newFakeAPI(), "token", "")
	if err := r.run(context.Background(), []string{"toc"}); err != nil {
		t.Fatalf("toc: %v", err)
	}
	if !strings.Contains(out.String(), "The Web") || !strings.Contains(out.String(), "50%") {
		t.Fatalf("unexpected toc: %q", out.String())
	}
}

func TestReadInteractiveFlushesLastPosition(t *testing.T) {
	api := newFakeAPI()
	r, out := newTestReader(t, api, "token", "\n")

	if err := r.run(context.Background(), []string{"read", "the-web", "-i"}); err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(out.String(), "It caught the moon.") || !strings.Contains(out.String(), "next: The Trap") {
		t.Fatalf("unexpected output: %q", out.String())
	}
	saved := api.savedPositions()
	if len(saved) != 1 {
		t.Fatalf("expected one debounced write, got %v", saved)
	}
	if saved[0]["chapterId"] != "c1" || saved[0]["scrollPosition"] != 1.0 {
		t.Fatalf("unexpected write: %v", saved[0])
	}
}

func TestReadAnonymousDoesNotSaveProgress(t *testing.T) {
	api := newFakeAPI()
	r, _ := newTestReader(t, api, "", "")
	if err := r.run(context.Background(), []string{"read", "the-web", "-page", "2"}); err != nil {
		t.Fatalf("read: %v", err)
	}
	if saved := api.savedPositions(); len(saved) != 0 {
		t.Fatalf("anonymous read must not save progress, got %v", saved)
	}
	if err := r.run(context.Background(), []string{"read", "the-web", "-page", "9"}); err == nil {
		t.Fatalf("expected missing page error")
	}
}

func TestResume(t *testing.T) {
	api := newFakeAPI()
	r, out := newTestReader(t, api, "token", "")

	if err := r.run(context.Background(), []string{"resume"}); err != nil {
		t.Fatalf("resume: %v", err)
	}
	if !strings.Contains(out.String(), "Nothing read yet") {
		t.Fatalf("unexpected output: %q", out.String())
	}

	api.setLast(&domain.ReadingProgress{ChapterID: "c1", ScrollPosition: 0.6})
	out.Reset()
	if err := r.run(context.Background(), []string{"resume"}); err != nil {
		t.Fatalf("resume: %v", err)
	}
	if !strings.Contains(out.String(), "page 2/2") {
		t.Fatalf("expected to resume on page 2: %q", out.String())
	}

	api.setLast(&domain.ReadingProgress{ChapterID: "c1", ScrollPosition: 1, Completed: true})
	out.Reset()
	if err := r.run(context.Background(), []string{"resume"}); err != nil {
		t.Fatalf("resume: %v", err)
	}
	if !strings.Contains(out.String(), "Tiger walked in.") {
		t.Fatalf("expected the next chapter: %q", out.String())
	}
}

func TestLikeAndBookmarks(t *testing.T) {
	r, out := newTestReader(t, newFakeAPI(), "token", "")
	if err := r.run(context.Background(), []string{"like", "the-web"}); err != nil {
		t.Fatalf("like: %v", err)
	}
	if !strings.Contains(out.String(), `Liked "The Web" (1 like(s))`) {
		t.Fatalf("unexpected output: %q", out.String())
	}
	out.Reset()
	if err := r.run(context.Background(), []string{"like", "c1"}); err != nil {
		t.Fatalf("like by id: %v", err)
	}
	if !strings.Contains(out.String(), `Unliked "c1" (0 like(s))`) {
		t.Fatalf("unexpected output: %q", out.String())
	}
	if err := r.run(context.Background(), []string{"like", "nope"}); err == nil {
		t.Fatalf("expected unknown chapter error")
	}

	out.Reset()
	if err := r.run(context.Background(), []string{"bookmarks"}); err != nil {
		t.Fatalf("bookmarks: %v", err)
	}
	if !strings.Contains(out.String(), "The Web, paragraph 2") || !strings.Contains(out.String(), "note: remember this") {
		t.Fatalf("unexpected bookmarks: %q", out.String())
	}
}

func TestPreferences(t *testing.T) {
	r, out := newTestReader(t, newFakeAPI(), "", "")
	if err := r.run(context.Background(), []string{"prefs", "-theme", "sepia", "-font", "150"}); err != nil {
		t.Fatalf("prefs: %v", err)
	}
	out.Reset()
	if err := r.run(context.Background(), []string{"prefs"}); err != nil {
		t.Fatalf("prefs: %v", err)
	}
	if !strings.Contains(out.String(), "theme: sepia") || !strings.Contains(out.String(), "150%") {
		t.Fatalf("unexpected prefs: %q", out.String())
	}
	if err := r.run(context.Background(), []string{"prefs", "-font", "400"}); err == nil {
		t.Fatalf("expected out of range font size to fail")
	}
	if err := r.run(context.Background(), []string{"prefs", "-theme", "neon"}); err == nil {
		t.Fatalf("expected unknown theme to fail")
	}
}

func TestWrap(t *testing.T) {
	lines := wrap("one two three four", 10)
	if len(lines) != 2 || lines[0] != "one two" || lines[1] != "three four" {
		t.Fatalf("unexpected wrap: %q", lines)
	}
	if lineWidth(200) != 40 || lineWidth(50) != 160 {
		t.Fatalf("unexpected widths %d %d", lineWidth(200), lineWidth(50))
	}
}
