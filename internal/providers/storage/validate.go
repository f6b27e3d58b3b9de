package storage

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/smallbiznis/procura/internal/apperror"
	"github.com/smallbiznis/procura/internal/config"
)

var allowedExtensions = map[string]struct{}{
	".pdf":  {},
	".jpg":  {},
	".jpeg": {},
	".png":  {},
	".webp": {},
}

// Validate checks an upload against the configured MIME allowlist, the
// extension allowlist and the size limit. The MIME type is sniffed from the
// content; the declared content type is not trusted.
func Validate(file File, cfg config.UploadConfig) error {
	if len(file.Data) == 0 {
		return ErrEmptyFile
	}

	detected := mimetype.Detect(file.Data)
	if !mimeAllowed(detected, cfg.AllowedTypes) {
		return apperror.Validation(fmt.Sprintf(
			"File type %s not allowed. Allowed types: %s",
			detected.String(), strings.Join(cfg.AllowedTypes, ", "),
		))
	}

	ext := strings.ToLower(filepath.Ext(file.Filename))
	if _, ok := allowedExtensions[ext]; !ok {
		return apperror.Validation(fmt.Sprintf("File extension %s not allowed", extLabel(ext)))
	}

	if cfg.MaxSizeBytes > 0 && file.Size() > cfg.MaxSizeBytes {
		return apperror.Validation(fmt.Sprintf("File size exceeds %dMB limit", cfg.MaxSizeBytes/(1024*1024)))
	}
	return nil
}

func mimeAllowed(detected *mimetype.MIME, allowed []string) bool {
	for _, t := range allowed {
		if detected.Is(t) {
			return true
		}
		// image/jpg is a common alias
		if t == "image/jpg" && detected.Is("image/jpeg") {
			return true
		}
	}
	return false
}

func extLabel(ext string) string {
	if ext == "" {
		return "."
	}
	return ext
}
