package extraction

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/procura/internal/apperror"
	"github.com/smallbiznis/procura/internal/config"
	"github.com/smallbiznis/procura/internal/providers/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var samplePDF = []byte("%PDF-1.4\n1 0 obj\n<<>>\nendobj\ntrailer\n<<>>\n%%EOF\n")

func newStorage(t *testing.T) *storage.LocalStorage {
	t.Helper()
	return storage.NewLocal(config.Config{
		Storage: config.StorageConfig{Dir: t.TempDir(), PublicURL: "http://files.test"},
	}, zap.NewNop())
}

func TestExtractReceiptPostsStoredFile(t *testing.T) {
	files := newStorage(t)
	url, err := files.Store(context.Background(), storage.File{Filename: "receipt.pdf", Data: samplePDF}, "receipts")
	require.NoError(t, err)

	var got extractRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte("```json\n" + `{
			"seller_name": "Acme Ltd",
			"items": [{"description": "Laptop", "quantity": 2, "unit_price": 500, "total": 1000}],
			"total_amount": 1000,
			"currency": "USD"
		}` + "\n```"))
	}))
	defer srv.Close()

	ex := NewHTTPExtractor(config.ExtractionConfig{URL: srv.URL, APIKey: "secret", Model: "m"}, files, srv.Client(), zap.NewNop())
	receipt, err := ex.ExtractReceipt(context.Background(), url)
	require.NoError(t, err)

	assert.Equal(t, "receipt", got.DocumentType)
	assert.Equal(t, "application/pdf", got.MimeType)
	decoded, err := base64.StdEncoding.DecodeString(got.Content)
	require.NoError(t, err)
	assert.Equal(t, samplePDF, decoded)

	assert.Equal(t, "Acme Ltd", receipt.SellerName)
	require.Len(t, receipt.Items, 1)
	assert.True(t, receipt.Items[0].UnitPrice.Equal(decimal.NewFromInt(500)))
	assert.True(t, receipt.TotalAmount.Equal(decimal.NewFromInt(1000)))
}

func TestExtractFailuresAreExtractionErrors(t *testing.T) {
	files := newStorage(t)
	url, err := files.Store(context.Background(), storage.File{Filename: "p.pdf", Data: samplePDF}, "proformas")
	require.NoError(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/bad-json":
			_, _ = w.Write([]byte("not json"))
		default:
			http.Error(w, "quota exceeded", http.StatusTooManyRequests)
		}
	}))
	defer srv.Close()

	cases := map[string]string{
		"status":   srv.URL,
		"bad json": srv.URL + "/bad-json",
	}
	for name, endpoint := range cases {
		t.Run(name, func(t *testing.T) {
			ex := NewHTTPExtractor(config.ExtractionConfig{URL: endpoint, Timeout: time.Second}, files, srv.Client(), zap.NewNop())
			_, err := ex.ExtractProforma(context.Background(), url)
			assert.ErrorIs(t, err, apperror.ErrExtraction)
			assert.Equal(t, "Failed to extract proforma data", apperror.Reason(err))
		})
	}
}

func TestDisabledExtractor(t *testing.T) {
	ex := NewFromConfig(config.Config{}, newStorage(t), zap.NewNop())
	_, err := ex.ExtractReceipt(context.Background(), "http://files.test/x.pdf")
	assert.ErrorIs(t, err, ErrNotConfigured)
}
