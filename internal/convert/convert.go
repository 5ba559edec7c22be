package convert

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

var (
	ErrUnsupported = errors.New("unsupported file type")
	ErrConversion  = errors.New("conversion failed")
)

// Converter turns an uploaded file into a PDF.
type Converter interface {
	// Convert writes a PDF next to sourcePath and returns its path.
	Convert(ctx context.Context, sourcePath string) (string, error)
}

// OfficeExtensions are the source formats handed to the office converter.
var OfficeExtensions = []string{".doc", ".docx", ".odt", ".rtf", ".xls", ".xlsx", ".ods", ".ppt", ".pptx", ".odp"}

// PassThrough accepts files that are already PDFs.
type PassThrough struct{}

func (PassThrough) Convert(ctx context.Context, sourcePath string) (string, error) {
	if Ext(sourcePath) != ".pdf" {
		return "", fmt.Errorf("%w: %s", ErrUnsupported, Ext(sourcePath))
	}

	return sourcePath, nil
}

// Router picks a converter by file extension.
type Router struct {
	byExt map[string]Converter
}

func NewRouter() *Router {
	r := &Router{byExt: make(map[string]Converter)}
	r.Register(PassThrough{}, ".pdf")
	return r
}

// NewDefault handles PDFs and the office formats.
func NewDefault(office *Office) *Router {
	r := NewRouter()
	if office != nil {
		r.Register(office, OfficeExtensions...)
	}
	return r
}

func (r *Router) Register(c Converter, exts ...string) {
	for _, ext := range exts {
		r.byExt[strings.ToLower(ext)] = c
	}
}

func (r *Router) Supports(name string) bool {
	_, ok := r.byExt[Ext(name)]
	return ok
}

func (r *Router) Convert(ctx context.Context, sourcePath string) (string, error) {
	c, ok := r.byExt[Ext(sourcePath)]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupported, Ext(sourcePath))
	}

	return c.Convert(ctx, sourcePath)
}

func Ext(name string) string {
	return strings.ToLower(filepath.Ext(name))
}
