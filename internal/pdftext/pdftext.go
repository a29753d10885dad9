// Package pdftext extracts plain text from PDF documents.
package pdftext

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"
)

// FailedPlaceholder is stored as the extracted text when extraction fails.
const FailedPlaceholder = "[Text extraction failed]"

// Extract returns the text of every page, trimmed.
func Extract(data []byte) (text string, err error) {
	// The parser panics on some malformed inputs.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("malformed pdf: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("failed to open pdf: %w", err)
	}
	plain, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("failed to read text: %w", err)
	}
	out, err := io.ReadAll(plain)
	if err != nil {
		return "", fmt.Errorf("failed to read text: %w", err)
	}
	return strings.TrimSpace(string(out)), nil
}

// Extractor adapts Extract to the documents service.
type Extractor struct{}

// Extract implements the documents text extractor.
func (Extractor) Extract(data []byte) (string, error) { return Extract(data) }
