package model

import "time"

// PendingArtifact records a backing file whose removal failed during a cascade delete.
// The artifact janitor keeps retrying until the blob store confirms the removal.
type PendingArtifact struct {
	Location   string `gorm:"primaryKey;size:500"`
	DocumentID string `gorm:"uuid;not null;index"`
	Attempts   int    `gorm:"not null;default:0"`
	LastError  string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (PendingArtifact) TableName() string {
	return "pending_artifacts"
}
