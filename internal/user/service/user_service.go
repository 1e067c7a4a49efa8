package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"saas-control-plane/backend/internal/events"
	"saas-control-plane/backend/internal/platform/apperr"
	userdomain "saas-control-plane/backend/internal/user/domain"
)

// UserRepo is the minimal user repository needed by the user service.
type UserRepo interface {
	GetByID(ctx context.Context, id string) (*userdomain.User, error)
	GetByEmail(ctx context.Context, email string) (*userdomain.User, error)
	Create(ctx context.Context, u *userdomain.User) error
}

// TxRunner runs fn inside a transaction carried on ctx.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Publisher publishes domain events.
type Publisher interface {
	Publish(ctx context.Context, e events.Event) error
}

// UserService registers and looks up users. Credentials are owned by the identity layer.
type UserService struct {
	users UserRepo
	tx    TxRunner
	bus   Publisher
}

// NewUserService returns a UserService with the given dependencies.
func NewUserService(users UserRepo, tx TxRunner, bus Publisher) *UserService {
	return &UserService{users: users, tx: tx, bus: bus}
}

// Register creates an active user and publishes user.created. actorID is empty for self-service signup.
func (s *UserService) Register(ctx context.Context, actorID, email, name string) (*userdomain.User, error) {
	now := time.Now().UTC()
	u := &userdomain.User{
		ID:        uuid.New().String(),
		Email:     email,
		Name:      strings.TrimSpace(name),
		Status:    userdomain.UserStatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := u.Validate(); err != nil {
		return nil, apperr.BadRequest(err.Error())
	}
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		existing, err := s.users.GetByEmail(ctx, u.Email)
		if err != nil {
			return err
		}
		if existing != nil {
			return apperr.Conflict("email already registered")
		}
		if err := s.users.Create(ctx, u); err != nil {
			return err
		}
		if actorID == "" {
			actorID = u.ID
		}
		return s.bus.Publish(ctx, events.New(actorID, "", events.UserCreatedPayload{
			UserID: u.ID, Email: u.Email, Name: u.Name,
		}))
	})
	if err != nil {
		return nil, err
	}
	return u, nil
}

// Get returns the user or NotFound.
func (s *UserService) Get(ctx context.Context, id string) (*userdomain.User, error) {
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, apperr.NotFound("user not found")
	}
	return u, nil
}
