package server

import (
	"io"
	"math"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/procura/internal/providers/storage"
	"go.uber.org/zap"
)

const uploadField = "file"

// readUpload loads the multipart file into memory. At most one byte past the
// configured limit is read so the size check downstream still fails.
func (s *Server) readUpload(c *gin.Context) (storage.File, error) {
	header, err := c.FormFile(uploadField)
	if err != nil {
		return storage.File{}, storage.ErrEmptyFile
	}

	src, err := header.Open()
	if err != nil {
		return storage.File{}, storage.ErrEmptyFile
	}
	defer src.Close()

	limit := s.workflow.Get().Upload.MaxSizeBytes
	data, err := io.ReadAll(io.LimitReader(src, limit+1))
	if err != nil {
		return storage.File{}, err
	}

	return storage.File{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}

// uploadRateLimit throttles document uploads per user. Limiter failures let
// the request through.
func (s *Server) uploadRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.uploadLimiter == nil {
			c.Next()
			return
		}
		principal, ok := mustPrincipal(c)
		if !ok {
			return
		}

		res, err := s.uploadLimiter.Allow(c.Request.Context(), "upload:"+principal.UserID.String())
		if err != nil {
			s.log.Warn("upload rate limiter unavailable", zap.Error(err))
			c.Next()
			return
		}
		c.Header("X-RateLimit-Limit", strconv.Itoa(res.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
		if !res.Allowed {
			seconds := int(math.Ceil(res.RetryAfter.Seconds()))
			if seconds < 1 {
				seconds = 1
			}
			c.Header("Retry-After", strconv.Itoa(seconds))
			AbortWithError(c, ErrRateLimited)
			return
		}
		c.Next()
	}
}
