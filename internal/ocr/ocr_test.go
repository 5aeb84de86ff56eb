package ocr

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fxsettle/confirm-cli/internal/config"
	"github.com/fxsettle/confirm-cli/internal/resilience"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func TestCountPages(t *testing.T) {
	tests := []struct {
		name string
		text string
		want int
	}{
		{name: "empty", text: "", want: 0},
		{name: "single page", text: "page one", want: 1},
		{name: "two pages", text: "page one\fpage two", want: 2},
		{name: "trailing form feed", text: "page one\fpage two\f", want: 2},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, countPages(tc.text))
		})
	}
}

func TestNewExtractor(t *testing.T) {
	ex, err := NewExtractor(config.OCRConfig{Provider: "local"})
	require.NoError(t, err)
	assert.IsType(t, &PdfToText{}, ex)

	ex, err = NewExtractor(config.OCRConfig{Provider: "mistral", MistralKey: "k"})
	require.NoError(t, err)
	assert.IsType(t, &MistralOCR{}, ex)

	_, err = NewExtractor(config.OCRConfig{Provider: "mistral"})
	assert.Error(t, err, "mistral without an API key must fail")

	_, err = NewExtractor(config.OCRConfig{Provider: "tesseract"})
	assert.Error(t, err)
}

func TestPdfToText_MissingFile(t *testing.T) {
	p := NewPdfToText("")
	_, err := p.Extract(context.Background(), filepath.Join(t.TempDir(), "nope.pdf"))
	assert.Error(t, err)
}

func TestMistralOCR_Extract(t *testing.T) {
	pdfPath := filepath.Join(t.TempDir(), "conf.pdf")
	require.NoError(t, os.WriteFile(pdfPath, []byte("%PDF-1.4 fake"), 0o644))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req mistralOCRRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "document_url", req.Document.Type)
		assert.Contains(t, req.Document.DocumentURL, "data:application/pdf;base64,")

		resp := mistralOCRResponse{Pages: []mistralOCRPage{
			{Index: 0, Markdown: "# Confirmation"},
			{Index: 1, Markdown: "USD 1,000,000"},
		}}
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	defer srv.Close()

	m := NewMistralOCR("test-key", "")
	m.endpoint = srv.URL

	res, err := m.Extract(context.Background(), pdfPath)
	require.NoError(t, err)
	assert.Equal(t, "# Confirmation\n\nUSD 1,000,000", res.Text)
	assert.Equal(t, 2, res.PageCount)
	assert.Equal(t, int64(len("%PDF-1.4 fake")), res.ByteSize)
}

func TestMistralOCR_RetriesTransientStatus(t *testing.T) {
	pdfPath := filepath.Join(t.TempDir(), "conf.pdf")
	require.NoError(t, os.WriteFile(pdfPath, []byte("%PDF"), 0o644))

	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		resp := mistralOCRResponse{Pages: []mistralOCRPage{{Markdown: "ok"}}}
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	defer srv.Close()

	m := NewMistralOCR("test-key", "")
	m.endpoint = srv.URL
	m.retry = resilience.RetryConfig{MaxAttempts: 2, InitialBackoff: time.Millisecond}

	res, err := m.Extract(context.Background(), pdfPath)
	require.NoError(t, err)
	assert.Equal(t, "ok", res.Text)
	assert.Equal(t, 2, calls)
}

func TestMistralOCR_PermanentStatusNotRetried(t *testing.T) {
	pdfPath := filepath.Join(t.TempDir(), "conf.pdf")
	require.NoError(t, os.WriteFile(pdfPath, []byte("%PDF"), 0o644))

	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	m := NewMistralOCR("bad-key", "")
	m.endpoint = srv.URL

	_, err := m.Extract(context.Background(), pdfPath)
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}
