// Package ocr extracts text from confirmation PDFs. It is a replaceable
// collaborator: the pipeline only sees the Extractor interface.
package ocr

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/fxsettle/confirm-cli/internal/config"
)

// Result is the outcome of a successful extraction.
type Result struct {
	Text      string `json:"text"`
	PageCount int    `json:"page_count"`
	ByteSize  int64  `json:"byte_size"`
}

// Extractor extracts text content from PDF files.
type Extractor interface {
	Extract(ctx context.Context, pdfPath string) (*Result, error)
}

// NewExtractor creates an Extractor based on config.
func NewExtractor(cfg config.OCRConfig) (Extractor, error) {
	switch cfg.Provider {
	case "local", "":
		return NewPdfToText(cfg.PdfToTextPath), nil
	case "mistral":
		if cfg.MistralKey == "" {
			return nil, eris.New("ocr: mistral provider requires mistral_api_key")
		}
		return NewMistralOCR(cfg.MistralKey, cfg.MistralModel), nil
	default:
		return nil, eris.Errorf("ocr: unknown provider %q", cfg.Provider)
	}
}
