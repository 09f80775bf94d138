package repository

import (
	"fmt"
	"strings"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/bvc-digitalhub/digitalhub-api/internal/domain"
)

func newRepositoryDBForTest(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	// one connection serializes transactions the way row locks do on postgres
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := db.AutoMigrate(
		&domain.Account{},
		&domain.OneTimeCode{},
		&domain.Project{},
		&domain.ProjectLike{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func createAccountForTest(t *testing.T, db *gorm.DB, email string) *domain.Account {
	t.Helper()
	acc := &domain.Account{Name: strings.Split(email, "@")[0], Email: email, PasswordHash: "hash", IsVerified: true}
	if err := db.Create(acc).Error; err != nil {
		t.Fatalf("create account %s: %v", email, err)
	}
	return acc
}

func createProjectForTest(t *testing.T, db *gorm.DB, ownerID, title string) *domain.Project {
	t.Helper()
	p := &domain.Project{OwnerID: ownerID, Title: title, TechStack: domain.StringList{"Go"}}
	if err := db.Create(p).Error; err != nil {
		t.Fatalf("create project %s: %v", title, err)
	}
	return p
}
