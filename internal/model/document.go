package model

import (
	"encoding/json"
	"time"
)

// Document is a named container for a chain of versions.
// CreatedBy is kept for display; ownership is decided by the permission rows only.
type Document struct {
	ID          string        `gorm:"primaryKey;uuid;not null;"`
	Name        string        `gorm:"size:255;not null"`
	CreatedBy   string        `gorm:"uuid;not null;index"`
	CreatedAt   time.Time     `gorm:"index"`
	Versions    []*Version    `gorm:"foreignKey:DocumentID;constraint:OnDelete:CASCADE" json:",omitempty"`
	Permissions []*Permission `gorm:"foreignKey:DocumentID;constraint:OnDelete:CASCADE" json:",omitempty"`
}

func (d *Document) MarshalBinary() ([]byte, error) {
	return json.Marshal(d)
}
