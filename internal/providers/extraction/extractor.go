// Package extraction turns stored proforma and receipt files into structured
// payloads by calling an external extraction service.
package extraction

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/smallbiznis/procura/internal/apperror"
	"github.com/smallbiznis/procura/internal/config"
	docdomain "github.com/smallbiznis/procura/internal/document/domain"
	"github.com/smallbiznis/procura/internal/providers/storage"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("providers.extraction",
	fx.Provide(NewFromConfig),
)

const (
	kindProforma = "proforma"
	kindReceipt  = "receipt"

	maxResponseBytes = 4 << 20
)

type Extractor interface {
	ExtractProforma(ctx context.Context, fileURL string) (docdomain.ProformaData, error)
	ExtractReceipt(ctx context.Context, fileURL string) (docdomain.ReceiptData, error)
}

var ErrNotConfigured = apperror.New(apperror.KindExtraction, "Document extraction is not configured")

func NewFromConfig(cfg config.Config, files storage.Storage, log *zap.Logger) Extractor {
	if cfg.Extraction.URL == "" {
		log.Named("providers.extraction").Warn("EXTRACTION_URL not set, document extraction disabled")
		return disabled{}
	}
	return NewHTTPExtractor(cfg.Extraction, files, &http.Client{Timeout: cfg.Extraction.Timeout}, log)
}

type disabled struct{}

func (disabled) ExtractProforma(context.Context, string) (docdomain.ProformaData, error) {
	return docdomain.ProformaData{}, ErrNotConfigured
}

func (disabled) ExtractReceipt(context.Context, string) (docdomain.ReceiptData, error) {
	return docdomain.ReceiptData{}, ErrNotConfigured
}

// HTTPExtractor posts the file content to the extraction endpoint and expects
// the structured payload back as the JSON response body.
type HTTPExtractor struct {
	cfg    config.ExtractionConfig
	files  storage.Storage
	client *http.Client
	log    *zap.Logger
}

func NewHTTPExtractor(cfg config.ExtractionConfig, files storage.Storage, client *http.Client, log *zap.Logger) *HTTPExtractor {
	return &HTTPExtractor{
		cfg:    cfg,
		files:  files,
		client: client,
		log:    log.Named("providers.extraction"),
	}
}

type extractRequest struct {
	Model        string `json:"model,omitempty"`
	DocumentType string `json:"document_type"`
	FileURL      string `json:"file_url"`
	MimeType     string `json:"mime_type"`
	Content      string `json:"content"`
}

func (e *HTTPExtractor) ExtractProforma(ctx context.Context, fileURL string) (docdomain.ProformaData, error) {
	var out docdomain.ProformaData
	if err := e.extract(ctx, kindProforma, fileURL, &out); err != nil {
		return docdomain.ProformaData{}, err
	}
	return out, nil
}

func (e *HTTPExtractor) ExtractReceipt(ctx context.Context, fileURL string) (docdomain.ReceiptData, error) {
	var out docdomain.ReceiptData
	if err := e.extract(ctx, kindReceipt, fileURL, &out); err != nil {
		return docdomain.ReceiptData{}, err
	}
	return out, nil
}

func (e *HTTPExtractor) extract(ctx context.Context, kind, fileURL string, out any) error {
	reason := fmt.Sprintf("Failed to extract %s data", kind)

	content, err := e.read(ctx, fileURL)
	if err != nil {
		return apperror.Extraction(reason, err)
	}

	body, err := json.Marshal(extractRequest{
		Model:        e.cfg.Model,
		DocumentType: kind,
		FileURL:      fileURL,
		MimeType:     mimetype.Detect(content).String(),
		Content:      base64.StdEncoding.EncodeToString(content),
	})
	if err != nil {
		return apperror.Extraction(reason, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return apperror.Extraction(reason, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if e.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.cfg.APIKey)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return apperror.Extraction(reason, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return apperror.Extraction(reason, err)
	}
	if resp.StatusCode/100 != 2 {
		e.log.Warn("extraction service returned an error",
			zap.String("document_type", kind),
			zap.Int("status", resp.StatusCode),
		)
		return apperror.Extraction(reason, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw))))
	}

	if err := json.Unmarshal(stripFence(raw), out); err != nil {
		return apperror.Extraction(reason, err)
	}
	return nil
}

func (e *HTTPExtractor) read(ctx context.Context, fileURL string) ([]byte, error) {
	rc, err := e.files.Open(ctx, fileURL)
	if err == nil {
		defer rc.Close()
		return io.ReadAll(rc)
	}
	if !strings.HasPrefix(fileURL, "http://") && !strings.HasPrefix(fileURL, "https://") {
		return nil, err
	}

	// Not one of ours; fetch it directly.
	req, reqErr := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if reqErr != nil {
		return nil, reqErr
	}
	resp, getErr := e.client.Do(req)
	if getErr != nil {
		return nil, getErr
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("download %s: status %d", fileURL, resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// stripFence removes a markdown code fence that model-backed services
// sometimes wrap around JSON.
func stripFence(raw []byte) []byte {
	s := strings.TrimSpace(string(raw))
	if !strings.HasPrefix(s, "```") {
		return raw
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return []byte(strings.TrimSpace(s))
}
