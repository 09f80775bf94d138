package migrate

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/bvc-digitalhub/digitalhub-api/internal/config"
	"github.com/bvc-digitalhub/digitalhub-api/internal/database"
	"github.com/bvc-digitalhub/digitalhub-api/internal/di"
	"github.com/bvc-digitalhub/digitalhub-api/internal/tools/common"
)

const exitCode = 3

type options struct {
	envFile string
	timeout time.Duration
	ci      bool
}

func NewRootCommand() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Database migration tooling",
	}
	cmd.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "path to env file")
	cmd.PersistentFlags().DurationVar(&opts.timeout, "timeout", 30*time.Second, "operation timeout")
	cmd.PersistentFlags().BoolVar(&opts.ci, "ci", false, "non-interactive machine-readable output")

	cmd.AddCommand(
		newUpCommand(opts),
		newStatusCommand(opts),
		newPlanCommand(opts),
	)
	return cmd
}

func (o *options) invocation(command string) common.Invocation {
	return common.Invocation{Tool: "migrate", Command: command, CI: o.ci, Timeout: o.timeout}
}

func newUpCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Apply schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			err := common.Execute(opts.invocation("up"), func(ctx context.Context) ([]string, error) {
				if err := common.LoadEnvFile(opts.envFile); err != nil {
					return nil, err
				}
				runner, err := di.InitializeMigrationRunner()
				if err != nil {
					return nil, err
				}
				defer func() { _ = runner.Close() }()
				tables, err := runner.Run(ctx)
				if err != nil {
					return nil, err
				}
				details := []string{"schema migration applied"}
				for _, t := range tables {
					details = append(details, "table: "+t)
				}
				return details, nil
			})
			common.ExitOnError(err, exitCode)
			return nil
		},
	}
}

func newStatusCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Report which managed tables exist",
		RunE: func(cmd *cobra.Command, args []string) error {
			err := common.Execute(opts.invocation("status"), func(ctx context.Context) ([]string, error) {
				db, closeDB, err := loadConfigDB(opts.envFile)
				if err != nil {
					return nil, err
				}
				defer closeDB()
				details, missing, err := tableStatus(ctx, db)
				if err != nil {
					return nil, err
				}
				if missing > 0 {
					return details, fmt.Errorf("%d table(s) missing, run migrate up", missing)
				}
				return details, nil
			})
			common.ExitOnError(err, exitCode)
			return nil
		},
	}
}

func newPlanCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "plan",
		Short: "Show migration plan (dry-run)",
		RunE: func(cmd *cobra.Command, args []string) error {
			err := common.Execute(opts.invocation("plan"), func(ctx context.Context) ([]string, error) {
				db, closeDB, err := loadConfigDB(opts.envFile)
				if err != nil {
					return nil, err
				}
				defer closeDB()
				details, _, err := tableStatus(ctx, db)
				if err != nil {
					return nil, err
				}
				return append(details, "no mutation executed in plan mode"), nil
			})
			common.ExitOnError(err, exitCode)
			return nil
		},
	}
}

// tableStatus pings the database and reports each managed table as present or
// pending creation.
func tableStatus(ctx context.Context, db *gorm.DB) ([]string, int, error) {
	sqlDB, err := db.DB()
	if err != nil {
		return nil, 0, err
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, 0, fmt.Errorf("db ping: %w", err)
	}
	migrator := db.WithContext(ctx).Migrator()
	var (
		details []string
		missing int
	)
	for _, table := range database.ModelTables(db) {
		state := "present"
		if !migrator.HasTable(table) {
			state = "would create"
			missing++
		}
		details = append(details, fmt.Sprintf("%s: %s", table, state))
	}
	return details, missing, nil
}

func loadConfigDB(envFile string) (*gorm.DB, func(), error) {
	if err := common.LoadEnvFile(envFile); err != nil {
		return nil, nil, err
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	db, err := database.Open(cfg)
	if err != nil {
		return nil, nil, err
	}
	closeDB := func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	return db, closeDB, nil
}
