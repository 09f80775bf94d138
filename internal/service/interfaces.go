package service

import (
	"context"

	"github.com/bvc-digitalhub/digitalhub-api/internal/domain"
	"github.com/bvc-digitalhub/digitalhub-api/internal/repository"
)

type AuthServiceInterface interface {
	BeginEnrollment(ctx context.Context, email string) error
	VerifyEnrollmentCode(ctx context.Context, email, code string) error
	CompleteEnrollment(ctx context.Context, in EnrollmentInput) (*AuthResult, error)
	Login(ctx context.Context, email, password string) (*AuthResult, error)
}

type AccountServiceInterface interface {
	Get(ctx context.Context, id string) (*domain.Account, error)
	UpdateProfile(ctx context.Context, id string, in ProfileInput) (*domain.Account, error)
}

type ProjectServiceInterface interface {
	ToggleLike(ctx context.Context, projectID, actorID string) ([]string, error)
	Create(ctx context.Context, ownerID string, in ProjectInput) (*domain.Project, error)
	Get(ctx context.Context, id string) (*domain.Project, error)
	List(ctx context.Context, req repository.PageRequest) (repository.PageResult[domain.Project], error)
	ListByOwner(ctx context.Context, ownerID string, req repository.PageRequest) (repository.PageResult[domain.Project], error)
	Update(ctx context.Context, actorID, id string, in ProjectInput) (*domain.Project, error)
	Delete(ctx context.Context, actorID, id string) error
}

// Notifier dispatches a message without reporting delivery to the caller.
type Notifier interface {
	Notify(ctx context.Context, msg Message)
}
