package identity

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v4"
	gocache "github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"ananse-reader/internal/domain"
	"ananse-reader/internal/infra/metrics"
)

const (
	defaultKeysTTL     = time.Hour
	minRefreshInterval = 30 * time.Second
	keySetCacheKey     = "jwks"
)

var tracer = otel.Tracer("identity")

// Verifier checks ID tokens issued by the external identity provider.
type Verifier struct {
	jwksURL    string
	issuer     string
	audience   string
	httpClient *http.Client
	keys       *gocache.Cache
	log        zerolog.Logger
	now        func() time.Time

	mu          sync.Mutex
	lastFetched time.Time
}

var _ domain.TokenVerifier = (*Verifier)(nil)

type Option func(*Verifier)

func WithHTTPClient(client *http.Client) Option {
	return func(v *Verifier) {
		if client != nil {
			v.httpClient = client
		}
	}
}

func WithTimeout(timeout time.Duration) Option {
	return func(v *Verifier) {
		if timeout > 0 {
			v.httpClient.Timeout = timeout
		}
	}
}

func WithLogger(log zerolog.Logger) Option {
	return func(v *Verifier) { v.log = log }
}

func WithClock(now func() time.Time) Option {
	return func(v *Verifier) {
		if now != nil {
			v.now = now
		}
	}
}

// NewVerifier builds a verifier accepting RS256 tokens for the given audience.
func NewVerifier(jwksURL, issuer, audience string, opts ...Option) (*Verifier, error) {
	if jwksURL == "" {
		return nil, fmt.Errorf("jwks url is required")
	}
	if audience == "" {
		return nil, fmt.Errorf("audience is required")
	}
	v := &Verifier{
		jwksURL:    jwksURL,
		issuer:     issuer,
		audience:   audience,
		httpClient: &http.Client{Timeout: 5 * time.Second},
		keys:       gocache.New(defaultKeysTTL, 10*time.Minute),
		log:        zerolog.Nop(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

type tokenClaims struct {
	Email string `json:"email"`
	Name  string `json:"name"`
	jwt.RegisteredClaims
}

// Verify validates signature and claims, returning the caller's identity.
// Every rejection wraps domain.ErrUnauthenticated.
func (v *Verifier) Verify(ctx context.Context, raw string) (domain.Identity, error) {
	ctx, span := tracer.Start(ctx, "identity.Verify")
	defer span.End()

	raw = strings.TrimSpace(raw)
	if raw == "" {
		return domain.Identity{}, v.reject(span, "missing", errors.New("empty token"))
	}

	var claims tokenClaims
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}), jwt.WithoutClaimsValidation())
	var keyErr error
	_, err := parser.ParseWithClaims(raw, &claims, func(tok *jwt.Token) (any, error) {
		kid, _ := tok.Header["kid"].(string)
		if kid == "" {
			return nil, errors.New("token has no kid")
		}
		key, err := v.key(ctx, kid)
		if err != nil {
			keyErr = err
			return nil, err
		}
		return key, nil
	})
	if keyErr != nil && !errors.Is(keyErr, errUnknownKid) {
		span.RecordError(keyErr)
		span.SetStatus(codes.Error, "signing keys unavailable")
		metrics.IncTokenVerifyFailure("keys_unavailable")
		return domain.Identity{}, fmt.Errorf("load signing keys: %w", keyErr)
	}
	if err != nil {
		reason := "invalid"
		if errors.Is(keyErr, errUnknownKid) {
			reason = "unknown_kid"
		} else if errors.Is(err, jwt.ErrTokenSignatureInvalid) {
			reason = "signature"
		}
		return domain.Identity{}, v.reject(span, reason, err)
	}

	if reason, err := v.checkClaims(&claims); err != nil {
		return domain.Identity{}, v.reject(span, reason, err)
	}
	span.SetAttributes(attribute.String("identity.uid", claims.Subject))
	return domain.Identity{UID: claims.Subject, Email: claims.Email, Name: claims.Name}, nil
}

func (v *Verifier) checkClaims(c *tokenClaims) (string, error) {
	now := v.now()
	if !c.VerifyExpiresAt(now, true) {
		return "expired", errors.New("token is expired")
	}
	if !c.VerifyIssuedAt(now.Add(time.Minute), false) {
		return "invalid_claims", errors.New("token issued in the future")
	}
	if !c.VerifyNotBefore(now.Add(time.Minute), false) {
		return "invalid_claims", errors.New("token not valid yet")
	}
	if !c.VerifyAudience(v.audience, true) {
		return "invalid_claims", errors.New("unexpected audience")
	}
	if v.issuer != "" && !c.VerifyIssuer(v.issuer, true) {
		return "invalid_claims", errors.New("unexpected issuer")
	}
	if strings.TrimSpace(c.Subject) == "" {
		return "invalid_claims", errors.New("token has no subject")
	}
	return "", nil
}

func (v *Verifier) reject(span trace.Span, reason string, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, reason)
	metrics.IncTokenVerifyFailure(reason)
	v.log.Debug().Err(err).Str("reason", reason).Msg("token rejected")
	return fmt.Errorf("%w: %s: %v", domain.ErrUnauthenticated, reason, err)
}

var errUnknownKid = errors.New("unknown key id")

// key returns the signing key for kid, refetching the key set once when the kid is new.
func (v *Verifier) key(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	if cached, ok := v.keys.Get(keySetCacheKey); ok {
		if key, ok := cached.(keySet)[kid]; ok {
			return key, nil
		}
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if cached, ok := v.keys.Get(keySetCacheKey); ok {
		if key, ok := cached.(keySet)[kid]; ok {
			return key, nil
		}
		if v.now().Sub(v.lastFetched) < minRefreshInterval {
			return nil, errUnknownKid
		}
	}

	keys, err := v.fetch(ctx)
	if err != nil {
		return nil, err
	}
	if key, ok := keys[kid]; ok {
		return key, nil
	}
	return nil, errUnknownKid
}

func (v *Verifier) fetch(ctx context.Context) (keys keySet, err error) {
	ctx, span := tracer.Start(ctx, "identity.fetchKeys")
	start := time.Now()
	defer func() {
		metrics.ObserveNetworkRequest("identity", "fetch_jwks", v.jwksURL, start, err)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "fetch jwks")
		}
		span.End()
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.jwksURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create jwks request: %w", err)
	}
	resp, err := v.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("jwks request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read jwks: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("jwks endpoint returned %d", resp.StatusCode)
	}
	keys, err = parseKeySet(data)
	if err != nil {
		return nil, err
	}

	ttl := maxAge(resp.Header.Get("Cache-Control"), defaultKeysTTL)
	v.keys.Set(keySetCacheKey, keys, ttl)
	v.lastFetched = v.now()
	v.log.Debug().Int("keys", len(keys)).Dur("ttl", ttl).Msg("signing keys refreshed")
	return keys, nil
}
