package migrate

import (
	"context"
	"strings"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/bvc-digitalhub/digitalhub-api/internal/database"
)

func TestTableStatusReportsPendingTables(t *testing.T) {
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	details, missing, err := tableStatus(context.Background(), db)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if missing != len(database.ModelTables(db)) || missing == 0 {
		t.Fatalf("expected every table pending, got %d of %v", missing, details)
	}

	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	details, missing, err = tableStatus(context.Background(), db)
	if err != nil || missing != 0 {
		t.Fatalf("expected no pending tables, got %d err=%v", missing, err)
	}
	for _, d := range details {
		if !strings.HasSuffix(d, ": present") {
			t.Fatalf("unexpected status line %q", d)
		}
	}
}

func TestRootCommandRegistersSubcommands(t *testing.T) {
	cmd := NewRootCommand()
	for _, name := range []string{"up", "status", "plan"} {
		if sub, _, err := cmd.Find([]string{name}); err != nil || sub.Name() != name {
			t.Fatalf("expected subcommand %s, err=%v", name, err)
		}
	}
}
