package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/gosimple/slug"
	"github.com/oklog/ulid/v2"
	"github.com/smallbiznis/procura/internal/apperror"
	"github.com/smallbiznis/procura/internal/config"
	"go.uber.org/zap"
)

// LocalStorage writes files below a root directory and serves them from a
// public base URL.
type LocalStorage struct {
	root    string
	baseURL string
	log     *zap.Logger
}

func NewLocal(cfg config.Config, log *zap.Logger) *LocalStorage {
	return &LocalStorage{
		root:    cfg.Storage.Dir,
		baseURL: strings.TrimRight(cfg.Storage.PublicURL, "/"),
		log:     log.Named("storage.local"),
	}
}

func (s *LocalStorage) Store(ctx context.Context, file File, folder string) (string, error) {
	if len(file.Data) == 0 {
		return "", ErrEmptyFile
	}
	if err := ctx.Err(); err != nil {
		return "", apperror.Upload("Failed to upload file", err)
	}

	name := uniqueName(file.Filename)
	rel := path.Join(cleanFolder(folder), name)
	full := filepath.Join(s.root, filepath.FromSlash(rel))

	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		s.log.Error("failed to create upload folder", zap.String("folder", folder), zap.Error(err))
		return "", apperror.Upload("Failed to upload file", err)
	}
	if err := os.WriteFile(full, file.Data, 0o644); err != nil {
		s.log.Error("failed to write upload", zap.String("path", rel), zap.Error(err))
		return "", apperror.Upload("Failed to upload file", err)
	}

	return s.baseURL + "/" + rel, nil
}

func (s *LocalStorage) Open(ctx context.Context, url string) (io.ReadCloser, error) {
	rel, ok := strings.CutPrefix(url, s.baseURL+"/")
	if !ok {
		return nil, apperror.NotFound("File not found")
	}
	rel = path.Clean("/" + rel)[1:]
	data, err := os.ReadFile(filepath.Join(s.root, filepath.FromSlash(rel)))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apperror.NotFound("File not found")
		}
		return nil, fmt.Errorf("read %s: %w", rel, err)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// uniqueName keeps the original stem readable and prefixes a ulid so two
// uploads with the same name never collide.
func uniqueName(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	stem := slug.Make(strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename)))
	if stem == "" {
		stem = "file"
	}
	return ulid.Make().String() + "-" + stem + ext
}

func cleanFolder(folder string) string {
	cleaned := path.Clean("/" + strings.TrimSpace(folder))
	return strings.TrimPrefix(cleaned, "/")
}
