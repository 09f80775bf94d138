package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/bvc-digitalhub/digitalhub-api/internal/domain"
	"github.com/bvc-digitalhub/digitalhub-api/internal/observability"
	"github.com/bvc-digitalhub/digitalhub-api/internal/repository"
)

const maxDisplayNameLen = 100

// ProfileInput is what onboarding submits. Onboarded defaults to true so the
// first profile save finishes onboarding.
type ProfileInput struct {
	Name      string
	Onboarded *bool
}

type AccountService struct {
	accounts repository.AccountRepository
}

func NewAccountService(accounts repository.AccountRepository) *AccountService {
	return &AccountService{accounts: accounts}
}

func (s *AccountService) Get(ctx context.Context, id string) (*domain.Account, error) {
	if id == "" {
		return nil, ErrUnauthorized
	}
	account, err := s.accounts.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return account, nil
}

func (s *AccountService) UpdateProfile(ctx context.Context, id string, in ProfileInput) (*domain.Account, error) {
	if id == "" {
		return nil, ErrUnauthorized
	}
	name := strings.TrimSpace(in.Name)
	switch {
	case name == "":
		return nil, fmt.Errorf("%w: name is required", ErrValidation)
	case utf8.RuneCountInString(name) > maxDisplayNameLen:
		return nil, fmt.Errorf("%w: name must be at most %d characters", ErrValidation, maxDisplayNameLen)
	}
	onboarded := true
	if in.Onboarded != nil {
		onboarded = *in.Onboarded
	}

	account, err := s.accounts.UpdateProfile(ctx, id, name, onboarded)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	observability.NewLogger().InfoContext(ctx, "account profile updated", "account_id", id, "onboarded", onboarded)
	return account, nil
}
