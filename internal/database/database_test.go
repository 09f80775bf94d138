package database

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/bvc-digitalhub/digitalhub-api/internal/config"
	"github.com/bvc-digitalhub/digitalhub-api/internal/domain"
	"github.com/bvc-digitalhub/digitalhub-api/internal/security"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newSQLiteDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func closedDB(t *testing.T) *gorm.DB {
	t.Helper()
	db := newSQLiteDB(t)
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db.DB: %v", err)
	}
	if err := sqlDB.Close(); err != nil {
		t.Fatalf("close sql db: %v", err)
	}
	return db
}

func TestOpenInvalidDSN(t *testing.T) {
	if _, err := Open(&config.Config{DatabaseURL: "%"}); err == nil {
		t.Fatal("expected postgres open error for invalid DSN")
	}
}

func TestOpenSQLiteScheme(t *testing.T) {
	db, err := Open(&config.Config{DatabaseURL: "sqlite://file:open_sqlite_scheme?mode=memory&cache=shared"})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if db.Dialector.Name() != "sqlite" {
		t.Fatalf("expected sqlite dialector, got %s", db.Dialector.Name())
	}
}

func TestMigrateCreatesTables(t *testing.T) {
	db := newSQLiteDB(t)
	if err := Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	for _, model := range []any{&domain.Account{}, &domain.OneTimeCode{}, &domain.Project{}, &domain.ProjectLike{}, &domain.IdempotencyRecord{}} {
		if !db.Migrator().HasTable(model) {
			t.Fatalf("expected table for %T", model)
		}
	}
	tables := ModelTables(db)
	if len(tables) != 5 || tables[0] != "accounts" {
		t.Fatalf("unexpected model tables: %v", tables)
	}
}

func TestMigrateFailureWhenDBClosed(t *testing.T) {
	if err := Migrate(closedDB(t)); err == nil {
		t.Fatal("expected migrate error on closed database")
	}
}

func TestSeedDemoCreatesDataAndNoopOnSecondRun(t *testing.T) {
	db := newSQLiteDB(t)
	if err := Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	first, err := SeedDemo(db)
	if err != nil {
		t.Fatalf("seed first run: %v", err)
	}
	if first.Noop || first.CreatedAccounts != len(demoAccounts) || first.CreatedProjects != len(demoProjects) {
		t.Fatalf("unexpected first report: %+v", first)
	}

	second, err := SeedDemo(db)
	if err != nil {
		t.Fatalf("seed second run: %v", err)
	}
	if !second.Noop {
		t.Fatalf("expected noop on second run: %+v", second)
	}

	var acc domain.Account
	if err := db.Where("email = ?", demoAccounts[0].Email).First(&acc).Error; err != nil {
		t.Fatalf("load seeded account: %v", err)
	}
	if ok, _ := security.VerifyPassword(acc.PasswordHash, DemoPassword); !acc.IsVerified || !ok {
		t.Fatalf("expected verified account with demo password: %+v", acc)
	}
	if len(DemoPlan()) != len(demoAccounts)+len(demoProjects) {
		t.Fatalf("unexpected demo plan: %v", DemoPlan())
	}
}

func TestSeedDemoFailureWhenDBClosed(t *testing.T) {
	if _, err := SeedDemo(closedDB(t)); err == nil {
		t.Fatal("expected seed error on closed database")
	}
}

func TestVerifyAccount(t *testing.T) {
	db := newSQLiteDB(t)
	if err := Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	if err := VerifyAccount(db, "  "); err == nil {
		t.Fatal("expected email required error")
	}
	if err := VerifyAccount(db, "missing@example.com"); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("expected record not found, got %v", err)
	}

	acc := domain.Account{Name: "Pending", Email: "pending@example.com", PasswordHash: "hash"}
	if err := db.Create(&acc).Error; err != nil {
		t.Fatalf("create account: %v", err)
	}
	if err := VerifyAccount(db, " Pending@Example.com "); err != nil {
		t.Fatalf("verify account: %v", err)
	}
	var got domain.Account
	if err := db.First(&got, "id = ?", acc.ID).Error; err != nil {
		t.Fatalf("reload: %v", err)
	}
	if !got.IsVerified {
		t.Fatal("expected account to be verified")
	}
}
