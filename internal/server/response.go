package server

import (
	v1 "github.com/emrgen/docvault/apis/v1"
	"github.com/emrgen/docvault/internal/model"
	"github.com/emrgen/docvault/internal/service"
)

func newVersionResponse(v *model.Version) *v1.VersionResponse {
	if v == nil {
		return nil
	}

	return &v1.VersionResponse{
		ID:         v.ID,
		DocumentID: v.DocumentID,
		Label:      v.Label,
		Size:       v.Size,
		MimeType:   v.MimeType,
		IsLatest:   v.IsLatest,
		CreatedAt:  v.CreatedAt,
	}
}

func newDocumentResponse(view *service.DocumentView) *v1.DocumentResponse {
	return &v1.DocumentResponse{
		ID:            view.Document.ID,
		Name:          view.Document.Name,
		CreatedBy:     view.Document.CreatedBy,
		CreatedAt:     view.Document.CreatedAt,
		Permission:    view.Level.String(),
		IsOwner:       view.IsOwner,
		Shared:        view.Shared,
		LatestVersion: newVersionResponse(view.Latest),
	}
}
