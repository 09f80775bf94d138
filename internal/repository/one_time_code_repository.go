package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/bvc-digitalhub/digitalhub-api/internal/domain"
	"github.com/bvc-digitalhub/digitalhub-api/internal/observability"
)

// OneTimeCodeRepository holds at most one outstanding code per email.
type OneTimeCodeRepository interface {
	Upsert(ctx context.Context, email, code string, createdAt time.Time) error
	Find(ctx context.Context, email string) (*domain.OneTimeCode, error)
	Delete(ctx context.Context, email string) error
}

type GormOneTimeCodeRepository struct{ db *gorm.DB }

func NewOneTimeCodeRepository(db *gorm.DB) OneTimeCodeRepository {
	return &GormOneTimeCodeRepository{db: db}
}

// Upsert replaces both the code and its timestamp in one statement, so a reader
// never observes a new code paired with an old timestamp.
func (r *GormOneTimeCodeRepository) Upsert(ctx context.Context, email, code string, createdAt time.Time) error {
	row := domain.OneTimeCode{Email: email, Code: code, CreatedAt: createdAt.UTC()}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "email"}},
		DoUpdates: clause.AssignmentColumns([]string{"code", "created_at"}),
	}).Create(&row).Error
	if err != nil {
		observability.RecordRepositoryOperation(ctx, "one_time_code", "upsert", "error")
		return err
	}
	observability.RecordRepositoryOperation(ctx, "one_time_code", "upsert", "success")
	return nil
}

func (r *GormOneTimeCodeRepository) Find(ctx context.Context, email string) (*domain.OneTimeCode, error) {
	var row domain.OneTimeCode
	if err := r.db.WithContext(ctx).Where("email = ?", email).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			observability.RecordRepositoryOperation(ctx, "one_time_code", "find", "not_found")
			return nil, ErrCodeNotFound
		}
		observability.RecordRepositoryOperation(ctx, "one_time_code", "find", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(ctx, "one_time_code", "find", "success")
	return &row, nil
}

// Delete is idempotent: removing a missing code is not an error.
func (r *GormOneTimeCodeRepository) Delete(ctx context.Context, email string) error {
	if err := r.db.WithContext(ctx).Where("email = ?", email).Delete(&domain.OneTimeCode{}).Error; err != nil {
		observability.RecordRepositoryOperation(ctx, "one_time_code", "delete", "error")
		return err
	}
	observability.RecordRepositoryOperation(ctx, "one_time_code", "delete", "success")
	return nil
}
