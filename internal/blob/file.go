package blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/emrgen/docvault/internal/compress"
	"github.com/sirupsen/logrus"
)

var _ Store = (*FileStore)(nil)

// FileStore keeps artifacts as files in a single upload directory.
type FileStore struct {
	dir   string
	codec compress.Compress
}

func NewFileStore(dir string, codec compress.Compress) (*FileStore, error) {
	if codec == nil {
		codec = compress.NewNop()
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}

	return &FileStore{dir: dir, codec: codec}, nil
}

func (f *FileStore) Dir() string {
	return f.dir
}

func (f *FileStore) path(location string) (string, error) {
	if location == "" || location != filepath.Base(location) || strings.HasPrefix(location, ".") {
		return "", fmt.Errorf("invalid artifact location %q", location)
	}

	return filepath.Join(f.dir, location), nil
}

func (f *FileStore) Put(ctx context.Context, r io.Reader, ext string) (Object, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Object{}, err
	}

	encoded, err := f.codec.Encode(data)
	if err != nil {
		return Object{}, fmt.Errorf("encode artifact: %w", err)
	}

	location := newLocation(ext)
	target, err := f.path(location)
	if err != nil {
		return Object{}, err
	}

	tmp, err := os.CreateTemp(f.dir, ".upload-*")
	if err != nil {
		return Object{}, err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(encoded); err != nil {
		tmp.Close()
		return Object{}, err
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return Object{}, err
	}

	if err := tmp.Close(); err != nil {
		return Object{}, err
	}

	if err := os.Rename(tmp.Name(), target); err != nil {
		return Object{}, err
	}

	logrus.Debugf("stored artifact %s (%d bytes, %s)", location, len(data), f.codec.Name())

	return Object{Location: location, Size: int64(len(data))}, nil
}

func (f *FileStore) Open(ctx context.Context, location string) (io.ReadCloser, error) {
	p, err := f.path(location)
	if err != nil {
		return nil, err
	}

	encoded, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	data, err := f.codec.Decode(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode artifact: %w", err)
	}

	return io.NopCloser(bytes.NewReader(data)), nil
}

func (f *FileStore) Delete(ctx context.Context, location string) error {
	p, err := f.path(location)
	if err != nil {
		return err
	}

	err = os.Remove(p)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}

	return nil
}

func (f *FileStore) Exists(ctx context.Context, location string) (bool, error) {
	p, err := f.path(location)
	if err != nil {
		return false, err
	}

	_, err = os.Stat(p)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}

	return false, err
}
