package readerclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"ananse-reader/internal/domain"
)

// Client talks to the reader API.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	token      func(ctx context.Context) (string, error)
}

type Option func(*Client)

func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if c.httpClient == nil {
			c.httpClient = &http.Client{}
		}
		c.httpClient.Timeout = timeout
	}
}

// WithToken sends a fixed ID token with every request.
func WithToken(token string) Option {
	return func(c *Client) {
		if token == "" {
			c.token = nil
			return
		}
		c.token = func(context.Context) (string, error) { return token, nil }
	}
}

// WithTokenSource resolves the ID token per request, e.g. to refresh it.
func WithTokenSource(source func(ctx context.Context) (string, error)) Option {
	return func(c *Client) {
		c.token = source
	}
}

// Me is the caller as seen by the API.
type Me struct {
	Authenticated bool        `json:"authenticated"`
	UID           string      `json:"uid,omitempty"`
	Email         string      `json:"email,omitempty"`
	Name          string      `json:"name,omitempty"`
	Role          domain.Role `json:"role,omitempty"`
}

// ChapterRequest is the body of an admin chapter create.
type ChapterRequest struct {
	Slug        string     `json:"slug"`
	Title       string     `json:"title"`
	Excerpt     *string    `json:"excerpt,omitempty"`
	Content     string     `json:"content"`
	Order       int        `json:"order"`
	Status      string     `json:"status,omitempty"`
	ReadTime    int        `json:"readTime,omitempty"`
	PublishedAt *time.Time `json:"publishedAt,omitempty"`
}

func (p ChapterPatch) MarshalJSON() ([]byte, error) {
	type fields ChapterPatch
	raw, err := json.Marshal(fields(p))
	if err != nil || (!p.ClearExcerpt && !p.ClearPublishedAt) {
		return raw, err
	}
	body := map[string]json.RawMessage{}
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, err
	}
	if p.ClearExcerpt {
		body["excerpt"] = json.RawMessage("null")
	}
	if p.ClearPublishedAt {
		body["publishedAt"] = json.RawMessage("null")
	}
	return json.Marshal(body)
}

// ChapterPatch is the body of an admin chapter update; nil fields are left out.
type ChapterPatch struct {
	Slug        *string    `json:"slug,omitempty"`
	Title       *string    `json:"title,omitempty"`
	Excerpt     *string    `json:"excerpt,omitempty"`
	Content     *string    `json:"content,omitempty"`
	Order       *int       `json:"order,omitempty"`
	Status      *string    `json:"status,omitempty"`
	ReadTime    *int       `json:"readTime,omitempty"`
	PublishedAt *time.Time `json:"publishedAt,omitempty"`

	// ClearExcerpt and ClearPublishedAt send an explicit null for the field.
	ClearExcerpt     bool `json:"-"`
	ClearPublishedAt bool `json:"-"`
}

type apiError struct {
	Error   string                  `json:"error"`
	Code    string                  `json:"code"`
	Details []domain.FieldViolation `json:"details"`
}

func New(baseURL string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("baseURL is required")
	}
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if parsed.Scheme == "" {
		parsed.Scheme = "http"
	}
	client := &Client{
		baseURL:    parsed,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// Authenticated reports whether the client sends a token.
func (c *Client) Authenticated() bool {
	return c.token != nil
}

func (c *Client) Me(ctx context.Context) (Me, error) {
	var me Me
	err := c.get(ctx, "/api/me", &me)
	return me, err
}

func (c *Client) ListChapters(ctx context.Context) ([]domain.Chapter, error) {
	var out []domain.Chapter
	err := c.get(ctx, "/api/chapters", &out)
	return out, err
}

func (c *Client) Chapter(ctx context.Context, slug string) (domain.Chapter, error) {
	var out domain.Chapter
	err := c.get(ctx, "/api/chapters/"+url.PathEscape(slug), &out)
	return out, err
}

func (c *Client) ChapterPage(ctx context.Context, slug string, page int) (domain.Page, error) {
	var out domain.Page
	err := c.get(ctx, "/api/chapters/"+url.PathEscape(slug)+"/pages/"+strconv.Itoa(page), &out)
	return out, err
}

func (c *Client) AdminListChapters(ctx context.Context) ([]domain.Chapter, error) {
	var out []domain.Chapter
	err := c.get(ctx, "/api/admin/chapters", &out)
	return out, err
}

func (c *Client) CreateChapter(ctx context.Context, req ChapterRequest) (domain.Chapter, error) {
	var out domain.Chapter
	err := c.send(ctx, http.MethodPost, "/api/admin/chapters", req, &out)
	return out, err
}

func (c *Client) UpdateChapter(ctx context.Context, id string, patch ChapterPatch) (domain.Chapter, error) {
	var out domain.Chapter
	err := c.send(ctx, http.MethodPatch, "/api/admin/chapters/"+url.PathEscape(id), patch, &out)
	return out, err
}

func (c *Client) DeleteChapter(ctx context.Context, id string) error {
	return c.send(ctx, http.MethodDelete, "/api/admin/chapters/"+url.PathEscape(id), nil, nil)
}

func (c *Client) Profile(ctx context.Context) (domain.Profile, error) {
	var out domain.Profile
	err := c.get(ctx, "/api/profile", &out)
	return out, err
}

func (c *Client) UpdateDisplayName(ctx context.Context, displayName string) (domain.Profile, error) {
	var out domain.Profile
	err := c.send(ctx, http.MethodPatch, "/api/profile", map[string]string{"displayName": displayName}, &out)
	return out, err
}

func (c *Client) ListProgress(ctx context.Context) ([]domain.ReadingProgress, error) {
	var out []domain.ReadingProgress
	err := c.get(ctx, "/api/progress", &out)
	return out, err
}

// LastProgress returns nil when the caller has not read anything yet.
func (c *Client) LastProgress(ctx context.Context) (*domain.ReadingProgress, error) {
	var out *domain.ReadingProgress
	err := c.get(ctx, "/api/progress/last", &out)
	return out, err
}

func (c *Client) SaveProgress(ctx context.Context, chapterID string, scrollPosition float64) (domain.ReadingProgress, error) {
	var out domain.ReadingProgress
	body := map[string]any{"chapterId": chapterID, "scrollPosition": scrollPosition}
	err := c.send(ctx, http.MethodPost, "/api/progress", body, &out)
	return out, err
}

func (c *Client) Bookmarks(ctx context.Context) ([]domain.Bookmark, error) {
	var out []domain.Bookmark
	err := c.get(ctx, "/api/bookmarks", &out)
	return out, err
}

func (c *Client) ChapterBookmarks(ctx context.Context, chapterID string) ([]domain.Bookmark, error) {
	var out []domain.Bookmark
	err := c.get(ctx, "/api/bookmarks/chapter/"+url.PathEscape(chapterID), &out)
	return out, err
}

func (c *Client) CreateBookmark(ctx context.Context, in domain.BookmarkInput) (domain.Bookmark, error) {
	var out domain.Bookmark
	body := map[string]any{
		"chapterId":      in.ChapterID,
		"textSnippet":    in.TextSnippet,
		"paragraphIndex": in.ParagraphIndex,
	}
	if in.Note != nil {
		body["note"] = *in.Note
	}
	err := c.send(ctx, http.MethodPost, "/api/bookmarks", body, &out)
	return out, err
}

func (c *Client) DeleteBookmark(ctx context.Context, id string) error {
	return c.send(ctx, http.MethodDelete, "/api/bookmarks/"+url.PathEscape(id), nil, nil)
}

func (c *Client) LikeState(ctx context.Context, chapterID string) (domain.LikeState, error) {
	var out domain.LikeState
	err := c.get(ctx, "/api/likes/"+url.PathEscape(chapterID), &out)
	return out, err
}

func (c *Client) ToggleLike(ctx context.Context, chapterID string) (domain.LikeState, error) {
	var out domain.LikeState
	err := c.send(ctx, http.MethodPost, "/api/likes/"+url.PathEscape(chapterID), nil, &out)
	return out, err
}

func (c *Client) SiteSettings(ctx context.Context) (map[string]string, error) {
	out := map[string]string{}
	err := c.get(ctx, "/api/site-settings", &out)
	return out, err
}

func (c *Client) UpdateSiteSettings(ctx context.Context, values map[string]string) (map[string]string, error) {
	out := map[string]string{}
	err := c.send(ctx, http.MethodPatch, "/api/admin/site-settings", values, &out)
	return out, err
}

func (c *Client) get(ctx context.Context, endpoint string, out any) error {
	return c.send(ctx, http.MethodGet, endpoint, nil, out)
}

func (c *Client) send(ctx context.Context, method, endpoint string, body any, out any) error {
	req, err := c.newRequest(ctx, method, endpoint, body)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) newRequest(ctx context.Context, method, endpoint string, body any) (*http.Request, error) {
	resolved := *c.baseURL
	basePath := strings.TrimSuffix(c.baseURL.Path, "/")
	resolved.Path = path.Clean(basePath + endpoint)
	var buf io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		buf = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, resolved.String(), buf)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-Id", uuid.NewString())
	if c.token != nil {
		token, err := c.token(ctx)
		if err != nil {
			return nil, fmt.Errorf("resolve token: %w", err)
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}
	return req, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("reader api request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var apiErr apiError
		data, readErr := io.ReadAll(resp.Body)
		if readErr == nil && len(data) > 0 {
			_ = json.Unmarshal(data, &apiErr)
		}
		if apiErr.Error == "" {
			apiErr.Error = strings.TrimSpace(string(data))
		}
		return mapAPIError(resp.StatusCode, apiErr)
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func mapAPIError(status int, err apiError) error {
	switch {
	case err.Code == "validation_failed":
		return &domain.ValidationError{Violations: err.Details}
	case status == http.StatusNotFound:
		return domain.ErrNotFound
	case status == http.StatusUnauthorized:
		return domain.ErrUnauthenticated
	case status == http.StatusForbidden:
		return domain.ErrForbidden
	case status == http.StatusConflict:
		return fmt.Errorf("%w: %s", domain.ErrConflict, err.Error)
	case err.Code == "":
		return fmt.Errorf("reader api error: status=%d message=%s", status, err.Error)
	default:
		return fmt.Errorf("reader api error [%s]: %s", err.Code, err.Error)
	}
}
