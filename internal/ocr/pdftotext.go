package ocr

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"strings"

	"github.com/rotisserie/eris"
)

// PdfToText extracts text from PDFs using the pdftotext CLI tool.
type PdfToText struct {
	binPath string
}

// NewPdfToText creates a PdfToText extractor. If binPath is empty,
// "pdftotext" is used.
func NewPdfToText(binPath string) *PdfToText {
	if binPath == "" {
		binPath = "pdftotext"
	}
	return &PdfToText{binPath: binPath}
}

// Extract runs pdftotext -layout on the given PDF and returns its text.
// pdftotext separates pages with form feeds, which gives the page count
// without a second tool invocation.
func (p *PdfToText) Extract(ctx context.Context, pdfPath string) (*Result, error) {
	info, err := os.Stat(pdfPath)
	if err != nil {
		return nil, eris.Wrapf(err, "ocr: stat %s", pdfPath)
	}

	cmd := exec.CommandContext(ctx, p.binPath, "-layout", pdfPath, "-")

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, eris.Wrapf(err, "ocr: pdftotext failed for %s: %s", pdfPath, stderr.String())
	}

	text := stdout.String()
	return &Result{
		Text:      text,
		PageCount: countPages(text),
		ByteSize:  info.Size(),
	}, nil
}

// countPages counts the form-feed page separators pdftotext emits.
func countPages(text string) int {
	if text == "" {
		return 0
	}
	return strings.Count(strings.TrimRight(text, "\f"), "\f") + 1
}
