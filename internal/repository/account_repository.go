package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/bvc-digitalhub/digitalhub-api/internal/domain"
	"github.com/bvc-digitalhub/digitalhub-api/internal/observability"
)

type AccountRepository interface {
	Create(ctx context.Context, account *domain.Account) error
	FindByID(ctx context.Context, id string) (*domain.Account, error)
	FindByEmail(ctx context.Context, email string) (*domain.Account, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	UpdateProfile(ctx context.Context, id, name string, onboarded bool) (*domain.Account, error)
}

type GormAccountRepository struct{ db *gorm.DB }

func NewAccountRepository(db *gorm.DB) AccountRepository {
	return &GormAccountRepository{db: db}
}

// Create inserts the account. The unique email index turns a concurrent second
// insert into ErrDuplicateAccount.
func (r *GormAccountRepository) Create(ctx context.Context, account *domain.Account) error {
	if err := r.db.WithContext(ctx).Create(account).Error; err != nil {
		if isUniqueViolation(err) {
			observability.RecordRepositoryOperation(ctx, "account", "create", "duplicate")
			return ErrDuplicateAccount
		}
		observability.RecordRepositoryOperation(ctx, "account", "create", "error")
		return err
	}
	observability.RecordRepositoryOperation(ctx, "account", "create", "success")
	return nil
}

func (r *GormAccountRepository) FindByID(ctx context.Context, id string) (*domain.Account, error) {
	return r.findOne(ctx, "find_by_id", "id = ?", id)
}

func (r *GormAccountRepository) FindByEmail(ctx context.Context, email string) (*domain.Account, error) {
	return r.findOne(ctx, "find_by_email", "email = ?", email)
}

func (r *GormAccountRepository) findOne(ctx context.Context, op, query string, arg any) (*domain.Account, error) {
	var account domain.Account
	if err := r.db.WithContext(ctx).Where(query, arg).First(&account).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			observability.RecordRepositoryOperation(ctx, "account", op, "not_found")
			return nil, ErrAccountNotFound
		}
		observability.RecordRepositoryOperation(ctx, "account", op, "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(ctx, "account", op, "success")
	return &account, nil
}

func (r *GormAccountRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&domain.Account{}).Where("email = ?", email).Count(&count).Error; err != nil {
		observability.RecordRepositoryOperation(ctx, "account", "exists_by_email", "error")
		return false, err
	}
	observability.RecordRepositoryOperation(ctx, "account", "exists_by_email", "success")
	return count > 0, nil
}

// UpdateProfile rewrites the display name and onboarding flag and returns the
// stored account.
func (r *GormAccountRepository) UpdateProfile(ctx context.Context, id, name string, onboarded bool) (*domain.Account, error) {
	res := r.db.WithContext(ctx).Model(&domain.Account{}).Where("id = ?", id).Updates(map[string]any{
		"name":         name,
		"is_onboarded": onboarded,
	})
	if res.Error != nil {
		observability.RecordRepositoryOperation(ctx, "account", "update_profile", "error")
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		observability.RecordRepositoryOperation(ctx, "account", "update_profile", "not_found")
		return nil, ErrAccountNotFound
	}
	observability.RecordRepositoryOperation(ctx, "account", "update_profile", "success")
	return r.FindByID(ctx, id)
}
