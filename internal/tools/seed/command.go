package seed

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/bvc-digitalhub/digitalhub-api/internal/config"
	"github.com/bvc-digitalhub/digitalhub-api/internal/database"
	"github.com/bvc-digitalhub/digitalhub-api/internal/tools/common"
)

const exitCode = 3

type options struct {
	envFile string
	migrate bool
	ci      bool
}

func NewRootCommand() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{Use: "seed", Short: "Demo data tooling"}
	cmd.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "path to env file")
	cmd.PersistentFlags().BoolVar(&opts.ci, "ci", false, "non-interactive machine-readable output")
	cmd.AddCommand(newApplyCommand(opts), newDryRunCommand(opts), newVerifyAccountCommand(opts))
	return cmd
}

func (o *options) invocation(command string) common.Invocation {
	return common.Invocation{Tool: "seed", Command: command, CI: o.ci}
}

func newApplyCommand(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Create demo accounts and projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			err := common.Execute(opts.invocation("apply"), func(ctx context.Context) ([]string, error) {
				db, closeDB, err := openDB(opts.envFile)
				if err != nil {
					return nil, err
				}
				defer closeDB()
				if opts.migrate {
					if err := database.Migrate(db); err != nil {
						return nil, err
					}
				}
				report, err := database.SeedDemo(db.WithContext(ctx))
				if err != nil {
					return nil, err
				}
				return []string{
					fmt.Sprintf("created_accounts=%d", report.CreatedAccounts),
					fmt.Sprintf("created_projects=%d", report.CreatedProjects),
					fmt.Sprintf("noop=%t", report.Noop),
					"demo password: " + database.DemoPassword,
				}, nil
			})
			common.ExitOnError(err, exitCode)
			return nil
		},
	}
	cmd.Flags().BoolVar(&opts.migrate, "migrate", false, "apply schema migrations first")
	return cmd
}

func newDryRunCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "dry-run",
		Short: "Show what seeding would do",
		RunE: func(cmd *cobra.Command, args []string) error {
			err := common.Execute(opts.invocation("dry-run"), func(ctx context.Context) ([]string, error) {
				details := make([]string, 0, len(database.DemoPlan())+1)
				for _, line := range database.DemoPlan() {
					details = append(details, "would ensure "+line)
				}
				return append(details, "existing rows are left untouched"), nil
			})
			common.ExitOnError(err, exitCode)
			return nil
		},
	}
}

func newVerifyAccountCommand(opts *options) *cobra.Command {
	var email string
	cmd := &cobra.Command{
		Use:   "verify-account",
		Short: "Mark an account as verified",
		RunE: func(cmd *cobra.Command, args []string) error {
			err := common.Execute(opts.invocation("verify-account"), func(ctx context.Context) ([]string, error) {
				if strings.TrimSpace(email) == "" {
					return nil, fmt.Errorf("email is required")
				}
				db, closeDB, err := openDB(opts.envFile)
				if err != nil {
					return nil, err
				}
				defer closeDB()
				if err := database.VerifyAccount(db.WithContext(ctx), email); err != nil {
					return nil, err
				}
				return []string{"marked account verified: " + strings.TrimSpace(strings.ToLower(email))}, nil
			})
			common.ExitOnError(err, exitCode)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "email of the account to verify")
	return cmd
}

func openDB(envFile string) (*gorm.DB, func(), error) {
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
	return db, func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}, nil
}
