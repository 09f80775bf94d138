package domain

import "time"

// OneTimeCode is the single outstanding enrollment challenge for an email.
type OneTimeCode struct {
	ID        uint      `gorm:"primaryKey" json:"-"`
	Email     string    `gorm:"uniqueIndex;size:255;not null" json:"email"`
	Code      string    `gorm:"size:16;not null" json:"-"`
	CreatedAt time.Time `gorm:"not null;index" json:"created_at"`
}

func (c *OneTimeCode) ExpiredAt(now time.Time, ttl time.Duration) bool {
	if ttl <= 0 {
		return false
	}
	return now.Sub(c.CreatedAt) > ttl
}
