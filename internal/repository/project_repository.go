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

type ProjectListFilter struct {
	OwnerID string
}

// ToggleResult reports the direction of a toggle and the liker set after it.
type ToggleResult struct {
	Liked  bool
	Likers []string
}

type ProjectRepository interface {
	Create(ctx context.Context, project *domain.Project) error
	FindByID(ctx context.Context, id string) (*domain.Project, error)
	ListPaged(ctx context.Context, filter ProjectListFilter, req PageRequest) (PageResult[domain.Project], error)
	Update(ctx context.Context, id string, updates map[string]any) error
	DeleteByID(ctx context.Context, id string) error
	ToggleLike(ctx context.Context, projectID, accountID string) (ToggleResult, error)
}

type GormProjectRepository struct {
	db  *gorm.DB
	now func() time.Time
}

func NewProjectRepository(db *gorm.DB) ProjectRepository {
	return &GormProjectRepository{db: db, now: time.Now}
}

func orderedLikes(db *gorm.DB) *gorm.DB {
	return db.Order("created_at asc, account_id asc")
}

func (r *GormProjectRepository) withRelations(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Preload("Owner").Preload("Likes", orderedLikes)
}

func fillLikedBy(p *domain.Project) {
	p.LikedBy = make([]string, 0, len(p.Likes))
	for _, l := range p.Likes {
		p.LikedBy = append(p.LikedBy, l.AccountID)
	}
}

func (r *GormProjectRepository) Create(ctx context.Context, project *domain.Project) error {
	if err := r.db.WithContext(ctx).Omit("Owner", "Likes").Create(project).Error; err != nil {
		observability.RecordRepositoryOperation(ctx, "project", "create", "error")
		return err
	}
	project.LikedBy = []string{}
	observability.RecordRepositoryOperation(ctx, "project", "create", "success")
	return nil
}

func (r *GormProjectRepository) FindByID(ctx context.Context, id string) (*domain.Project, error) {
	var project domain.Project
	if err := r.withRelations(ctx).Where("id = ?", id).First(&project).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			observability.RecordRepositoryOperation(ctx, "project", "find_by_id", "not_found")
			return nil, ErrProjectNotFound
		}
		observability.RecordRepositoryOperation(ctx, "project", "find_by_id", "error")
		return nil, err
	}
	fillLikedBy(&project)
	observability.RecordRepositoryOperation(ctx, "project", "find_by_id", "success")
	return &project, nil
}

func (r *GormProjectRepository) ListPaged(ctx context.Context, filter ProjectListFilter, req PageRequest) (PageResult[domain.Project], error) {
	normalized := req.Normalized()
	result := emptyPage[domain.Project](normalized)

	scope := func(db *gorm.DB) *gorm.DB {
		if filter.OwnerID != "" {
			return db.Where("owner_id = ?", filter.OwnerID)
		}
		return db
	}

	var total int64
	if err := r.db.WithContext(ctx).Model(&domain.Project{}).Scopes(scope).Count(&total).Error; err != nil {
		observability.RecordRepositoryOperation(ctx, "project", "list_paged", "error")
		return PageResult[domain.Project]{}, err
	}
	err := r.withRelations(ctx).Scopes(scope).
		Order("created_at desc, id desc").
		Offset(normalized.offset()).
		Limit(normalized.PageSize).
		Find(&result.Items).Error
	if err != nil {
		observability.RecordRepositoryOperation(ctx, "project", "list_paged", "error")
		return PageResult[domain.Project]{}, err
	}
	for i := range result.Items {
		fillLikedBy(&result.Items[i])
	}
	result.withTotal(total)
	observability.RecordRepositoryOperation(ctx, "project", "list_paged", "success")
	return result, nil
}

func (r *GormProjectRepository) Update(ctx context.Context, id string, updates map[string]any) error {
	res := r.db.WithContext(ctx).Model(&domain.Project{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		observability.RecordRepositoryOperation(ctx, "project", "update", "error")
		return res.Error
	}
	if res.RowsAffected == 0 {
		observability.RecordRepositoryOperation(ctx, "project", "update", "not_found")
		return ErrProjectNotFound
	}
	observability.RecordRepositoryOperation(ctx, "project", "update", "success")
	return nil
}

// DeleteByID removes the project and its likes together. It takes the same
// row lock as ToggleLike first, so a toggle cannot insert a like between the
// two deletes.
func (r *GormProjectRepository) DeleteByID(ctx context.Context, id string) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var project domain.Project
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Select("id").
			Where("id = ?", id).
			First(&project).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrProjectNotFound
			}
			return err
		}
		if err := tx.Where("project_id = ?", id).Delete(&domain.ProjectLike{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).Delete(&domain.Project{}).Error
	})
	switch {
	case errors.Is(err, ErrProjectNotFound):
		observability.RecordRepositoryOperation(ctx, "project", "delete_by_id", "not_found")
	case err != nil:
		observability.RecordRepositoryOperation(ctx, "project", "delete_by_id", "error")
	default:
		observability.RecordRepositoryOperation(ctx, "project", "delete_by_id", "success")
	}
	return err
}

// ToggleLike adds the account's like if absent, removes it if present, and
// returns the resulting liker set. The project row is locked for the duration
// of the transaction so concurrent toggles on one project serialize.
func (r *GormProjectRepository) ToggleLike(ctx context.Context, projectID, accountID string) (ToggleResult, error) {
	var result ToggleResult
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var project domain.Project
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Select("id").
			Where("id = ?", projectID).
			First(&project).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrProjectNotFound
			}
			return err
		}

		removed := tx.Where("project_id = ? AND account_id = ?", projectID, accountID).Delete(&domain.ProjectLike{})
		if removed.Error != nil {
			return removed.Error
		}
		if removed.RowsAffected == 0 {
			like := domain.ProjectLike{ProjectID: projectID, AccountID: accountID, CreatedAt: r.now().UTC()}
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&like).Error; err != nil {
				return err
			}
			result.Liked = true
		}

		likers := []string{}
		if err := orderedLikes(tx.Model(&domain.ProjectLike{})).
			Where("project_id = ?", projectID).
			Pluck("account_id", &likers).Error; err != nil {
			return err
		}
		result.Likers = likers
		return nil
	})
	switch {
	case errors.Is(err, ErrProjectNotFound):
		observability.RecordRepositoryOperation(ctx, "project", "toggle_like", "not_found")
		return ToggleResult{}, err
	case err != nil:
		observability.RecordRepositoryOperation(ctx, "project", "toggle_like", "error")
		return ToggleResult{}, err
	}
	observability.RecordRepositoryOperation(ctx, "project", "toggle_like", "success")
	return result, nil
}
