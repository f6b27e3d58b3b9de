package storage

import (
	"context"
	"io"

	"github.com/smallbiznis/procura/internal/apperror"
)

var (
	ErrEmptyFile = apperror.Validation("File is required")
	ErrUpload    = apperror.New(apperror.KindUpload, "Failed to upload file")
)

// File is an uploaded document held in memory.
type File struct {
	Filename    string
	ContentType string
	Data        []byte
}

func (f File) Size() int64 {
	return int64(len(f.Data))
}

// Storage persists uploaded files and returns their public URL.
type Storage interface {
	Store(ctx context.Context, file File, folder string) (string, error)
	Open(ctx context.Context, url string) (io.ReadCloser, error)
}
