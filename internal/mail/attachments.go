// Package mail prepares inbound email content for analysis. Suppliers
// frequently ship the actual price list as a PDF attachment with a one-line
// body, so attachment text is appended to the body before the billable
// stages see it.
package mail

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gen2brain/go-fitz"
	"go.uber.org/zap"
)

// AttachmentReader extracts text from PDF attachments
type AttachmentReader struct {
	maxPages int
	logger   *zap.Logger
}

// NewAttachmentReader creates an attachment reader. maxPages bounds how
// much of each PDF is read; price lists past that point rarely change the
// extraction and the text would blow the token budget anyway.
func NewAttachmentReader(maxPages int, logger *zap.Logger) *AttachmentReader {
	if maxPages <= 0 {
		maxPages = 5
	}
	return &AttachmentReader{maxPages: maxPages, logger: logger}
}

// ExtractText returns the text content of a PDF attachment
func (r *AttachmentReader) ExtractText(path string) (string, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return "", fmt.Errorf("attachment not found: %s", path)
	}
	if strings.ToLower(filepath.Ext(path)) != ".pdf" {
		return "", fmt.Errorf("unsupported attachment type: %s", filepath.Ext(path))
	}

	doc, err := fitz.New(path)
	if err != nil {
		return "", fmt.Errorf("failed to open PDF: %w", err)
	}
	defer doc.Close()

	pages := doc.NumPage()
	if pages > r.maxPages {
		pages = r.maxPages
	}

	var sb strings.Builder
	for i := 0; i < pages; i++ {
		text, err := doc.Text(i)
		if err != nil {
			r.logger.Warn("Failed to read PDF page",
				zap.String("path", path),
				zap.Int("page", i),
				zap.Error(err))
			continue
		}
		sb.WriteString(text)
		sb.WriteString("\n")
	}

	return sb.String(), nil
}

// BuildAnalysisBody concatenates the email body with the text of every
// readable PDF attachment. Unreadable attachments are skipped, not fatal:
// the body alone is often enough for detection.
func (r *AttachmentReader) BuildAnalysisBody(body string, attachmentPaths []string) string {
	if len(attachmentPaths) == 0 {
		return body
	}

	var sb strings.Builder
	sb.WriteString(body)
	for _, path := range attachmentPaths {
		text, err := r.ExtractText(path)
		if err != nil {
			r.logger.Warn("Skipping attachment",
				zap.String("path", path),
				zap.Error(err))
			continue
		}
		sb.WriteString("\n\n--- attachment: ")
		sb.WriteString(filepath.Base(path))
		sb.WriteString(" ---\n")
		sb.WriteString(text)
	}
	return sb.String()
}
