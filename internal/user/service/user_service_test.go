package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"saas-control-plane/backend/internal/events"
	"saas-control-plane/backend/internal/platform/apperr"
	userdomain "saas-control-plane/backend/internal/user/domain"
)

type memUserRepo struct {
	mu      sync.Mutex
	byID    map[string]*userdomain.User
	byEmail map[string]*userdomain.User
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{byID: map[string]*userdomain.User{}, byEmail: map[string]*userdomain.User{}}
}

func (r *memUserRepo) GetByID(ctx context.Context, id string) (*userdomain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.byID[id], nil
}

func (r *memUserRepo) GetByEmail(ctx context.Context, email string) (*userdomain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.byEmail[email], nil
}

func (r *memUserRepo) Create(ctx context.Context, u *userdomain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[u.ID] = u
	r.byEmail[u.Email] = u
	return nil
}

type directTx struct{}

func (directTx) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error { return fn(ctx) }

type recordingBus struct {
	events []events.Event
}

func (b *recordingBus) Publish(_ context.Context, e events.Event) error {
	b.events = append(b.events, e)
	return nil
}

func TestRegister(t *testing.T) {
	repo := newMemUserRepo()
	bus := &recordingBus{}
	svc := NewUserService(repo, directTx{}, bus)

	u, err := svc.Register(context.Background(), "", "  Alice@Example.com ", " Alice ")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if u.Email != "alice@example.com" || u.Name != "Alice" || u.Status != userdomain.UserStatusActive {
		t.Errorf("user = %+v", u)
	}
	if len(bus.events) != 1 || bus.events[0].Name != events.UserCreated || bus.events[0].ActorID != u.ID {
		t.Fatalf("events = %+v", bus.events)
	}

	if _, err := svc.Register(context.Background(), "", "alice@example.com", ""); !errors.Is(err, apperr.ErrConflict) {
		t.Errorf("duplicate Register = %v, want Conflict", err)
	}
	if len(bus.events) != 1 {
		t.Error("failed registration must not publish")
	}
}

func TestRegister_InvalidEmail(t *testing.T) {
	svc := NewUserService(newMemUserRepo(), directTx{}, &recordingBus{})
	for _, email := range []string{"", "not-an-email", "a@b"} {
		if _, err := svc.Register(context.Background(), "", email, ""); !errors.Is(err, apperr.ErrBadRequest) {
			t.Errorf("Register(%q) = %v, want BadRequest", email, err)
		}
	}
}

func TestGet_Missing(t *testing.T) {
	svc := NewUserService(newMemUserRepo(), directTx{}, &recordingBus{})
	if _, err := svc.Get(context.Background(), "nope"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("Get = %v, want NotFound", err)
	}
}
