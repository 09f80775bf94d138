package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bvc-digitalhub/digitalhub-api/internal/domain"
	"github.com/bvc-digitalhub/digitalhub-api/internal/observability"
	"github.com/bvc-digitalhub/digitalhub-api/internal/security"

	"gorm.io/gorm"
)

// DemoPassword is the password every seeded demo account signs in with.
const DemoPassword = "digitalhub-demo"

type demoAccount struct {
	Name  string
	Email string
}

type demoProject struct {
	OwnerEmail  string
	Title       string
	Description string
	TechStack   []string
	RepoLink    string
}

var demoAccounts = []demoAccount{
	{Name: "Ada Student", Email: "ada@demo.bvc.local"},
	{Name: "Grace Student", Email: "grace@demo.bvc.local"},
}

var demoProjects = []demoProject{
	{
		OwnerEmail:  "ada@demo.bvc.local",
		Title:       "Campus Events Board",
		Description: "Shared calendar of club events with RSVP tracking.",
		TechStack:   []string{"React", "Node.js"},
		RepoLink:    "https://github.com/example/campus-events",
	},
	{
		OwnerEmail:  "grace@demo.bvc.local",
		Title:       "Study Buddy Matcher",
		Description: "Pairs students taking the same course for study sessions.",
		TechStack:   []string{"Go", "PostgreSQL"},
		RepoLink:    "https://github.com/example/study-buddy",
	},
}

type SeedReport struct {
	CreatedAccounts int  `json:"created_accounts"`
	CreatedProjects int  `json:"created_projects"`
	Noop            bool `json:"noop"`
}

// DemoAccountEmails lists the seeded demo sign-ins.
func DemoAccountEmails() []string {
	out := make([]string, 0, len(demoAccounts))
	for _, a := range demoAccounts {
		out = append(out, a.Email)
	}
	return out
}

// DemoPlan describes what SeedDemo would create, for dry runs.
func DemoPlan() []string {
	out := make([]string, 0, len(demoAccounts)+len(demoProjects))
	for _, a := range demoAccounts {
		out = append(out, "account: "+a.Email)
	}
	for _, p := range demoProjects {
		out = append(out, fmt.Sprintf("project: %q owned by %s", p.Title, p.OwnerEmail))
	}
	return out
}

// SeedDemo creates verified demo accounts with one project each. Re-running is a no-op.
func SeedDemo(db *gorm.DB) (*SeedReport, error) {
	ctx := context.Background()
	start := time.Now()
	defer func() {
		observability.RecordDatabaseStartupDuration(ctx, "seed", time.Since(start))
	}()

	report := &SeedReport{}
	err := db.Transaction(func(tx *gorm.DB) error {
		hash, err := security.HashPassword(DemoPassword)
		if err != nil {
			return err
		}
		owners := make(map[string]string, len(demoAccounts))
		for _, a := range demoAccounts {
			acc := domain.Account{Name: a.Name, Email: a.Email, PasswordHash: hash, IsVerified: true, IsOnboarded: true}
			res := tx.Where("email = ?", a.Email).FirstOrCreate(&acc)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected > 0 {
				report.CreatedAccounts++
			}
			owners[a.Email] = acc.ID
		}
		for _, p := range demoProjects {
			proj := domain.Project{
				OwnerID:     owners[p.OwnerEmail],
				Title:       p.Title,
				Description: p.Description,
				TechStack:   domain.StringList(p.TechStack),
				RepoLink:    p.RepoLink,
			}
			res := tx.Where("owner_id = ? AND title = ?", proj.OwnerID, proj.Title).FirstOrCreate(&proj)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected > 0 {
				report.CreatedProjects++
			}
		}
		return nil
	})
	if err != nil {
		observability.RecordDatabaseStartupEvent(ctx, "seed", "error")
		return nil, err
	}

	report.Noop = report.CreatedAccounts == 0 && report.CreatedProjects == 0
	observability.RecordDatabaseStartupEvent(ctx, "seed", "success")
	return report, nil
}

// VerifyAccount marks an existing account as verified, for operators unblocking a stuck signup.
func VerifyAccount(db *gorm.DB, email string) error {
	normalized := strings.TrimSpace(strings.ToLower(email))
	if normalized == "" {
		return errors.New("email is required")
	}
	tx := db.Model(&domain.Account{}).Where("email = ?", normalized).Update("is_verified", true)
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
