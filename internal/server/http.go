package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gobuffalo/packr"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	v1 "github.com/emrgen/docvault/apis/v1"
	"github.com/emrgen/docvault/internal/blob"
	"github.com/emrgen/docvault/internal/convert"
	"github.com/emrgen/docvault/internal/model"
	"github.com/emrgen/docvault/internal/service"
)

// Handler serves the /v1 document API.
type Handler struct {
	docs      *service.DocumentService
	blobs     blob.Store
	converter convert.Converter
	maxUpload int64
}

func NewHandler(docs *service.DocumentService, blobs blob.Store, converter convert.Converter, maxUpload int64) *Handler {
	if maxUpload <= 0 {
		maxUpload = 50 << 20
	}

	return &Handler{
		docs:      docs,
		blobs:     blobs,
		converter: converter,
		maxUpload: maxUpload,
	}
}

type RouterOptions struct {
	Auth        Authenticator
	Limiter     *RateLimiter
	CORSOrigins []string
	// Health reports whether the service can take traffic.
	Health func(ctx context.Context) error
}

func NewRouter(h *Handler, opts RouterOptions) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(RequestLogger)
	r.Use(Metrics)
	if len(opts.CORSOrigins) > 0 {
		r.Use(CORS(opts.CORSOrigins))
	}

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if opts.Health != nil {
			if err := opts.Health(r.Context()); err != nil {
				logrus.Errorf("health check failed: %v", err)
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	openapiDocs := packr.NewBox("../../docs/v1")
	docsPath := "/v1/docs/"
	r.Handle(docsPath+"*", http.StripPrefix(docsPath, http.FileServer(openapiDocs)))

	r.Route("/v1", func(r chi.Router) {
		r.Use(Authenticate(opts.Auth))
		if opts.Limiter != nil {
			r.Use(opts.Limiter.Middleware)
		}

		r.Post("/documents", h.createDocument)
		r.Get("/documents", h.listDocuments)
		r.Get("/documents/{documentID}", h.getDocument)
		r.Delete("/documents/{documentID}", h.deleteDocument)
		r.Get("/documents/{documentID}/versions", h.listVersions)
		r.Post("/documents/{documentID}/versions", h.createVersion)
		r.Post("/documents/{documentID}/share", h.share)
		r.Get("/documents/{documentID}/access", h.access)
		r.Get("/versions/{versionID}/download", h.download)
	})

	return r
}

func pathID(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: malformed %s", service.ErrInvalidArgument, name)
	}
	return id, nil
}

func mustUser(r *http.Request) uuid.UUID {
	userID, ok := UserFromContext(r.Context())
	if !ok {
		panic("handler mounted without authentication")
	}
	return userID
}

// storeUpload converts the uploaded file to pdf and stores it in the blob store.
// It returns the artifact and the name of the uploaded file.
func (h *Handler) storeUpload(w http.ResponseWriter, r *http.Request) (service.Artifact, string, error) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	file, header, err := r.FormFile("file")
	if err != nil {
		return service.Artifact{}, "", fmt.Errorf("%w: multipart field file is required", service.ErrInvalidArgument)
	}
	defer file.Close()

	pdfPath, cleanup, err := h.convertUpload(r.Context(), file, header)
	defer cleanup()
	if err != nil {
		return service.Artifact{}, "", err
	}

	pdf, err := os.Open(pdfPath)
	if err != nil {
		return service.Artifact{}, "", err
	}
	defer pdf.Close()

	obj, err := h.blobs.Put(r.Context(), pdf, ".pdf")
	if err != nil {
		return service.Artifact{}, "", fmt.Errorf("%w: %v", service.ErrStorage, err)
	}

	return service.Artifact{Location: obj.Location, Size: obj.Size, MimeType: model.MimeTypePDF}, header.Filename, nil
}

// convertUpload writes the upload into a scratch directory and converts it there.
func (h *Handler) convertUpload(ctx context.Context, file multipart.File, header *multipart.FileHeader) (string, func(), error) {
	dir, err := os.MkdirTemp("", "docvault-upload-*")
	if err != nil {
		return "", func() {}, err
	}
	cleanup := func() {
		if err := os.RemoveAll(dir); err != nil {
			logrus.Warnf("failed to remove upload scratch dir %s: %v", dir, err)
		}
	}

	ext := convert.Ext(header.Filename)
	source := filepath.Join(dir, "upload"+ext)
	out, err := os.Create(source)
	if err != nil {
		return "", cleanup, err
	}
	if _, err := io.Copy(out, file); err != nil {
		out.Close()
		return "", cleanup, fmt.Errorf("%w: upload interrupted: %v", service.ErrInvalidArgument, err)
	}
	if err := out.Close(); err != nil {
		return "", cleanup, err
	}

	pdfPath, err := h.converter.Convert(ctx, source)
	return pdfPath, cleanup, err
}

func displayName(filename string) string {
	base := filepath.Base(filename)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	if stem == "" || stem == "." || stem == "/" {
		return ""
	}
	return stem + ".pdf"
}

func (h *Handler) createDocument(w http.ResponseWriter, r *http.Request) {
	userID := mustUser(r)

	artifact, filename, err := h.storeUpload(w, r)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	name := r.FormValue("name")
	if strings.TrimSpace(name) == "" {
		name = displayName(filename)
	}

	doc, version, err := h.docs.CreateDocument(r.Context(), userID, name, artifact)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, newDocumentResponse(&service.DocumentView{
		Document: doc,
		Level:    model.LevelOwner,
		IsOwner:  true,
		Latest:   version,
	}))
}

func (h *Handler) listDocuments(w http.ResponseWriter, r *http.Request) {
	views, err := h.docs.ListDocuments(r.Context(), mustUser(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	res := make([]*v1.DocumentResponse, 0, len(views))
	for _, view := range views {
		res = append(res, newDocumentResponse(view))
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) getDocument(w http.ResponseWriter, r *http.Request) {
	docID, err := pathID(r, "documentID")
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	view, err := h.docs.GetDocument(r.Context(), mustUser(r), docID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newDocumentResponse(view))
}

func (h *Handler) deleteDocument(w http.ResponseWriter, r *http.Request) {
	docID, err := pathID(r, "documentID")
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	if err := h.docs.DeleteDocument(r.Context(), mustUser(r), docID); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listVersions(w http.ResponseWriter, r *http.Request) {
	docID, err := pathID(r, "documentID")
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	versions, err := h.docs.ListVersions(r.Context(), mustUser(r), docID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	res := make([]*v1.VersionResponse, 0, len(versions))
	for _, v := range versions {
		res = append(res, newVersionResponse(v))
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) createVersion(w http.ResponseWriter, r *http.Request) {
	userID := mustUser(r)
	docID, err := pathID(r, "documentID")
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	suffix, ok := model.SuffixForKind(r.URL.Query().Get("kind"))
	if !ok {
		writeError(w, http.StatusBadRequest, "kind must be upload, signed or annotated")
		return
	}

	// reject before spending a conversion on a caller who may not write
	if _, err := h.docs.Authority().AuthorizeOperation(r.Context(), userID, docID, model.OperationForSuffix(suffix)); err != nil {
		writeServiceError(w, r, err)
		return
	}

	artifact, _, err := h.storeUpload(w, r)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	version, err := h.docs.CreateNewVersionForExisting(r.Context(), userID, docID, artifact, suffix)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newVersionResponse(version))
}

func (h *Handler) share(w http.ResponseWriter, r *http.Request) {
	docID, err := pathID(r, "documentID")
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	var req v1.ShareRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<16)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	targetID, err := uuid.Parse(req.UserID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "user_id must be a uuid")
		return
	}

	level, _ := model.ParseLevel(req.Level)
	if err := h.docs.Share(r.Context(), mustUser(r), docID, targetID, level); err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, v1.ShareResponse{
		DocumentID: docID.String(),
		UserID:     targetID.String(),
		Level:      level.String(),
	})
}

func (h *Handler) access(w http.ResponseWriter, r *http.Request) {
	docID, err := pathID(r, "documentID")
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	level, ok, err := h.docs.Access(r.Context(), mustUser(r), docID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	res := v1.AccessResponse{DocumentID: docID.String(), HasAccess: ok}
	if ok {
		res.Level = level.String()
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) download(w http.ResponseWriter, r *http.Request) {
	versionID, err := pathID(r, "versionID")
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	dl, err := h.docs.OpenVersion(r.Context(), mustUser(r), versionID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	defer dl.Content.Close()

	mimeType := dl.Version.MimeType
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", mimeType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": dl.Document.Name}))
	w.WriteHeader(http.StatusOK)

	if _, err := io.Copy(w, dl.Content); err != nil && !errors.Is(err, context.Canceled) {
		logrus.Warnf("download of version %s interrupted: %v", versionID, err)
	}
}
