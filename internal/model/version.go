package model

import (
	"encoding/json"
	"time"
)

const (
	// FirstVersionLabel is the label of the version created together with its document.
	FirstVersionLabel = "v1.0"
	// MimeTypePDF is the content type of every converted artifact.
	MimeTypePDF = "application/pdf"
)

// Version is an immutable snapshot of a document. Versions are only ever appended,
// and removed together with their document.
type Version struct {
	ID         string    `gorm:"primaryKey;uuid;not null;"`
	DocumentID string    `gorm:"uuid;not null;index:idx_versions_document_latest,priority:1"`
	Label      string    `gorm:"size:40;not null"`
	Location   string    `gorm:"size:500;not null;uniqueIndex"`
	Size       int64     `gorm:"not null"`
	MimeType   string    `gorm:"size:100"`
	IsLatest   bool      `gorm:"not null;default:false;index:idx_versions_document_latest,priority:2"`
	CreatedAt  time.Time `gorm:"index"`
}

func (v *Version) MarshalBinary() ([]byte, error) {
	return json.Marshal(v)
}

func (v *Version) UnmarshalBinary(data []byte) error {
	return json.Unmarshal(data, v)
}
