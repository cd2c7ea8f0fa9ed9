package profiles

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"ananse-reader/internal/domain"
)

type stubRepo struct {
	profiles map[string]domain.Profile
	// raceOnCreate simulates another request creating the profile first.
	raceOnCreate bool
	creates      int
}

func newStubRepo() *stubRepo {
	return &stubRepo{profiles: map[string]domain.Profile{}}
}

func (r *stubRepo) GetProfile(_ context.Context, userID string) (domain.Profile, error) {
	p, ok := r.profiles[userID]
	if !ok {
		return domain.Profile{}, domain.ErrNotFound
	}
	return p, nil
}

func (r *stubRepo) CreateProfile(_ context.Context, userID string, role domain.Role, displayName *string) (domain.Profile, error) {
	r.creates++
	if r.raceOnCreate {
		r.profiles[userID] = domain.Profile{ID: "winner", UserID: userID, Role: domain.RoleReader}
		return domain.Profile{}, domain.ErrConflict
	}
	if _, ok := r.profiles[userID]; ok {
		return domain.Profile{}, domain.ErrConflict
	}
	p := domain.Profile{ID: "p-" + userID, UserID: userID, Role: role, DisplayName: displayName}
	r.profiles[userID] = p
	return p, nil
}

func (r *stubRepo) UpdateDisplayName(_ context.Context, userID string, displayName *string) (domain.Profile, error) {
	p, ok := r.profiles[userID]
	if !ok {
		return domain.Profile{}, domain.ErrNotFound
	}
	p.DisplayName = displayName
	r.profiles[userID] = p
	return p, nil
}

func (r *stubRepo) SetRole(_ context.Context, userID string, role domain.Role, displayName *string) (domain.Profile, error) {
	p, ok := r.profiles[userID]
	if !ok {
		p = domain.Profile{ID: "p-" + userID, UserID: userID}
	}
	p.Role = role
	if displayName != nil {
		p.DisplayName = displayName
	}
	r.profiles[userID] = p
	return p, nil
}

func (r *stubRepo) ListProfiles(context.Context) ([]domain.Profile, error) {
	out := make([]domain.Profile, 0, len(r.profiles))
	for _, p := range r.profiles {
		out = append(out, p)
	}
	return out, nil
}

type countingMetrics struct{ n int }

func (m *countingMetrics) RecordBusinessMetric(context.Context, domain.BusinessMetric) error {
	m.n++
	return nil
}

func TestEnsureCreatesReaderOnce(t *testing.T) {
	repo := newStubRepo()
	business := &countingMetrics{}
	svc := NewService(repo, business, zerolog.Nop())
	ctx := context.Background()

	first, err := svc.Ensure(ctx, "uid-1")
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if first.Role != domain.RoleReader || first.DisplayName != nil {
		t.Fatalf("unexpected new profile: %+v", first)
	}
	second, err := svc.Ensure(ctx, "uid-1")
	if err != nil {
		t.Fatalf("second ensure: %v", err)
	}
	if second.ID != first.ID || repo.creates != 1 || business.n != 1 {
		t.Fatalf("profile created twice: creates=%d metrics=%d", repo.creates, business.n)
	}
}

func TestEnsureRereadsAfterConflict(t *testing.T) {
	repo := newStubRepo()
	repo.raceOnCreate = true
	business := &countingMetrics{}
	svc := NewService(repo, business, zerolog.Nop())

	p, err := svc.Ensure(context.Background(), "uid-1")
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if p.ID != "winner" {
		t.Fatalf("expected the concurrently created profile, got %+v", p)
	}
	if business.n != 0 {
		t.Fatalf("losing request must not record profile_created")
	}
}

func TestRoleAndIsAdmin(t *testing.T) {
	repo := newStubRepo()
	svc := NewService(repo, nil, zerolog.Nop())
	ctx := context.Background()

	role, err := svc.Role(ctx, "fresh")
	if err != nil || role != domain.RoleReader {
		t.Fatalf("fresh user role = %v, %v", role, err)
	}
	if _, ok := repo.profiles["fresh"]; ok {
		t.Fatalf("role lookup must not create a profile")
	}

	if _, err := svc.Promote(ctx, "boss", nil); err != nil {
		t.Fatalf("promote: %v", err)
	}
	admin, err := svc.IsAdmin(ctx, "boss")
	if err != nil || !admin {
		t.Fatalf("expected admin: %v %v", admin, err)
	}
	admin, err = svc.IsAdmin(ctx, "fresh")
	if err != nil || admin {
		t.Fatalf("fresh user must not be admin")
	}
}

func TestUpdateDisplayName(t *testing.T) {
	repo := newStubRepo()
	svc := NewService(repo, nil, zerolog.Nop())
	ctx := context.Background()

	name := "  Ama  "
	p, err := svc.UpdateDisplayName(ctx, "uid-1", domain.Some(name))
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if p.DisplayName == nil || *p.DisplayName != "Ama" || p.Role != domain.RoleReader {
		t.Fatalf("unexpected profile: %+v", p)
	}

	blank := "   "
	p, err = svc.UpdateDisplayName(ctx, "uid-1", domain.Some(blank))
	if err != nil || p.DisplayName != nil {
		t.Fatalf("blank name should clear: %+v %v", p, err)
	}

	if _, err := svc.UpdateDisplayName(ctx, "uid-1", domain.Some("Ama")); err != nil {
		t.Fatalf("update: %v", err)
	}
	p, err = svc.UpdateDisplayName(ctx, "uid-1", domain.Optional[string]{})
	if err != nil || p.DisplayName == nil || *p.DisplayName != "Ama" {
		t.Fatalf("absent name must leave the profile untouched: %+v %v", p, err)
	}
	p, err = svc.UpdateDisplayName(ctx, "uid-1", domain.Null[string]())
	if err != nil || p.DisplayName != nil {
		t.Fatalf("null name should clear: %+v %v", p, err)
	}

	long := strings.Repeat("n", MaxDisplayNameLength+1)
	_, err = svc.UpdateDisplayName(ctx, "uid-1", domain.Some(long))
	var verr *domain.ValidationError
	if !errors.As(err, &verr) || verr.Violations[0].Field != "displayName" {
		t.Fatalf("expected displayName violation, got %v", err)
	}
}

func TestPromoteRequiresUID(t *testing.T) {
	svc := NewService(newStubRepo(), nil, zerolog.Nop())
	if _, err := svc.Promote(context.Background(), " ", nil); err == nil {
		t.Fatalf("expected validation error")
	}
}
