package model

import "time"

// User owns links and authenticates with a username and password.
type User struct {
	ID           uint64    `db:"id" json:"id" gorm:"primaryKey;autoIncrement"`
	Username     string    `db:"username" json:"username" gorm:"size:64;not null;uniqueIndex"`
	Email        string    `db:"email" json:"email" gorm:"size:255;not null;uniqueIndex"`
	PasswordHash string    `db:"password_hash" json:"-" gorm:"size:255;not null"`
	CreatedAt    time.Time `db:"created_at" json:"created_at" gorm:"autoCreateTime"`
}
