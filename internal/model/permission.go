package model

import "time"

// Permission grants one level on one document to one user.
// The table is not unique on (user, document): historical duplicates exist and are
// resolved by taking the highest level.
type Permission struct {
	ID         string    `gorm:"primaryKey;uuid;not null;"`
	UserID     string    `gorm:"uuid;not null;index:idx_permissions_user_document,priority:1"`
	DocumentID string    `gorm:"uuid;not null;index:idx_permissions_user_document,priority:2;index"`
	Level      Level     `gorm:"size:20;not null"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
