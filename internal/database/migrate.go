package database

import (
	"context"
	"time"

	"github.com/bvc-digitalhub/digitalhub-api/internal/domain"
	"github.com/bvc-digitalhub/digitalhub-api/internal/observability"

	"gorm.io/gorm"
)

func models() []any {
	return []any{
		&domain.Account{},
		&domain.OneTimeCode{},
		&domain.Project{},
		&domain.ProjectLike{},
		&domain.IdempotencyRecord{},
	}
}

// ModelTables lists the tables Migrate manages, in migration order.
func ModelTables(db *gorm.DB) []string {
	out := make([]string, 0, len(models()))
	for _, m := range models() {
		stmt := &gorm.Statement{DB: db}
		if err := stmt.Parse(m); err != nil {
			continue
		}
		out = append(out, stmt.Schema.Table)
	}
	return out
}

func Migrate(db *gorm.DB) error {
	start := time.Now()
	ctx := context.Background()
	defer func() {
		observability.RecordDatabaseStartupDuration(ctx, "migrate", time.Since(start))
	}()

	if err := db.AutoMigrate(models()...); err != nil {
		observability.RecordDatabaseStartupEvent(ctx, "migrate", "error")
		return err
	}
	observability.RecordDatabaseStartupEvent(ctx, "migrate", "success")
	return nil
}
