package domain

import (
	"strings"
	"time"
)

const (
	IdempotencyStatusPending   = "pending"
	IdempotencyStatusCompleted = "completed"
)

// IdempotencyRecord remembers the first successful response to a keyed
// request. Cookies holds the Set-Cookie lines, newline separated.
type IdempotencyRecord struct {
	Scope          string    `gorm:"primaryKey;size:64"`
	Key            string    `gorm:"primaryKey;column:idempotency_key;size:128"`
	Fingerprint    string    `gorm:"size:64;not null"`
	Status         string    `gorm:"size:16;not null"`
	ResponseStatus int       `gorm:"not null;default:0"`
	ContentType    string    `gorm:"size:128"`
	Cookies        string    `gorm:"type:text"`
	ExpiresAt      time.Time `gorm:"not null;index"`
	ResponseBody   []byte
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (IdempotencyRecord) TableName() string { return "idempotency_records" }

func (r *IdempotencyRecord) Expired(now time.Time) bool {
	return !r.ExpiresAt.After(now)
}

func (r *IdempotencyRecord) CookieLines() []string {
	if r.Cookies == "" {
		return nil
	}
	return strings.Split(r.Cookies, "\n")
}
