// Package v1 holds the wire types of the /v1 HTTP API.
package v1

import "time"

type VersionResponse struct {
	ID         string    `json:"id"`
	DocumentID string    `json:"document_id"`
	Label      string    `json:"label"`
	Size       int64     `json:"size"`
	MimeType   string    `json:"mime_type"`
	IsLatest   bool      `json:"is_latest"`
	CreatedAt  time.Time `json:"created_at"`
}

type DocumentResponse struct {
	ID            string           `json:"id"`
	Name          string           `json:"name"`
	CreatedBy     string           `json:"created_by"`
	CreatedAt     time.Time        `json:"created_at"`
	Permission    string           `json:"permission,omitempty"`
	IsOwner       bool             `json:"is_owner"`
	Shared        bool             `json:"shared_with_others"`
	LatestVersion *VersionResponse `json:"latest_version,omitempty"`
}

type ShareRequest struct {
	UserID string `json:"user_id"`
	Level  string `json:"level"`
}

type ShareResponse struct {
	DocumentID string `json:"document_id"`
	UserID     string `json:"user_id"`
	Level      string `json:"level"`
}

type AccessResponse struct {
	DocumentID string `json:"document_id"`
	Level      string `json:"level,omitempty"`
	HasAccess  bool   `json:"has_access"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
