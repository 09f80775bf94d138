package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Project struct {
	ID          string        `gorm:"primaryKey;size:36" json:"id"`
	OwnerID     string        `gorm:"size:36;not null;index" json:"owner_id"`
	Owner       *Account      `gorm:"foreignKey:OwnerID" json:"owner,omitempty"`
	Title       string        `gorm:"size:200;not null" json:"title"`
	Description string        `gorm:"size:5000" json:"description"`
	TechStack   StringList    `gorm:"type:text" json:"tech_stack"`
	RepoLink    string        `gorm:"size:1024" json:"repo_link"`
	LiveLink    string        `gorm:"size:1024" json:"live_link"`
	Likes       []ProjectLike `gorm:"foreignKey:ProjectID" json:"-"`
	LikedBy     []string      `gorm:"-" json:"likes"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

func (p *Project) BeforeCreate(*gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return nil
}

// ProjectLike is one account's mark on one project. The composite key keeps
// the mark set free of duplicates.
type ProjectLike struct {
	ProjectID string    `gorm:"primaryKey;size:36" json:"project_id"`
	AccountID string    `gorm:"primaryKey;size:36;index" json:"account_id"`
	CreatedAt time.Time `json:"created_at"`
}

// StringList stores a list of strings as JSON text. Legacy rows holding a
// comma separated string are accepted on read.
type StringList []string

func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]string(l))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (l *StringList) Scan(src any) error {
	var raw string
	switch v := src.(type) {
	case nil:
		*l = StringList{}
		return nil
	case string:
		raw = v
	case []byte:
		raw = string(v)
	default:
		return fmt.Errorf("scan string list: unsupported type %T", src)
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		*l = StringList{}
		return nil
	}
	if strings.HasPrefix(raw, "[") {
		var out []string
		if err := json.Unmarshal([]byte(raw), &out); err != nil {
			return fmt.Errorf("scan string list: %w", err)
		}
		*l = out
		return nil
	}
	out := StringList{}
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	*l = out
	return nil
}
