package model

import "time"

// Link describes a short link owned by a user and stored in Postgres.
type Link struct {
	ID           uint64    `db:"id" json:"id" gorm:"primaryKey;autoIncrement"`
	UserID       uint64    `db:"user_id" json:"user_id" gorm:"not null;index"`
	OriginalURL  string    `db:"original_url" json:"original_url" gorm:"type:text;not null"`
	ShortCode    string    `db:"short_code" json:"short_code" gorm:"size:10;not null;uniqueIndex"`
	CustomDomain *string   `db:"custom_domain" json:"custom_domain,omitempty" gorm:"size:253"`
	Clicks       int64     `db:"clicks" json:"clicks" gorm:"not null;default:0;check:clicks >= 0"`
	CreatedAt    time.Time `db:"created_at" json:"created_at" gorm:"autoCreateTime;index"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at" gorm:"autoUpdateTime"`
}

// Domain returns the custom domain or an empty string.
func (l *Link) Domain() string {
	if l.CustomDomain == nil {
		return ""
	}
	return *l.CustomDomain
}
