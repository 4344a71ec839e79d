// Package extract converts uploaded document files into plain text for
// downstream transformation. Supported formats: pdf, docx, xlsx, csv, txt.
package extract

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// Result holds the text extracted from a document file.
type Result struct {
	Text     string
	Format   string            // normalized format: pdf, docx, xlsx, csv, txt
	Metadata map[string]string // format-specific details (page count, sheet names)

	// Structure is a per-format layout census: page/paragraph/row counts,
	// heading levels, sheet dimensions, plus an estimated document kind.
	Structure map[string]interface{}
}

// Extract converts a document file into plain text, dispatching on the file
// format. The format is inferred from the filename extension first, then from
// content magic bytes when the extension is missing or unknown.
// Parameters:
//   - filename: original filename, used for extension-based dispatch.
//   - data: raw file content.
// Returns:
//   - *Result: extracted text plus format and metadata.
//   - error: non-nil if the file cannot be parsed as the detected format.
func Extract(filename string, data []byte) (*Result, error) {
	format := DetectFormat(filename, data)

	switch format {
	case "pdf":
		return extractPDF(data)
	case "docx":
		return extractDocx(data)
	case "xlsx":
		return extractXLSX(data)
	case "csv":
		return extractCSV(data)
	default:
		return extractPlain(data)
	}
}

// DetectFormat determines the document format from the filename extension,
// falling back to content sniffing for unknown extensions.
// Parameters:
//   - filename: original filename.
//   - data: raw file content, used when the extension is inconclusive.
// Returns:
//   - string: one of pdf, docx, xlsx, csv, txt.
func DetectFormat(filename string, data []byte) string {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
	switch ext {
	case "pdf", "docx", "xlsx", "csv", "txt":
		return ext
	case "doc":
		return "docx"
	case "text", "md", "log":
		return "txt"
	}
	return sniffFormat(data)
}

// sniffFormat inspects content magic bytes to guess the format.
func sniffFormat(data []byte) string {
	if bytes.HasPrefix(data, []byte("%PDF")) {
		return "pdf"
	}
	// ZIP container: docx and xlsx both start with PK\x03\x04. Without an
	// extension we assume docx, the more common upload.
	if bytes.HasPrefix(data, []byte("PK\x03\x04")) {
		return "docx"
	}
	if looksLikeCSV(data) {
		return "csv"
	}
	return "txt"
}

// looksLikeCSV checks whether the first lines contain comma-separated values.
func looksLikeCSV(data []byte) bool {
	sample := data
	if len(sample) > 4096 {
		sample = sample[:4096]
	}
	if !utf8.Valid(sample) {
		return false
	}
	nl := bytes.IndexByte(sample, '\n')
	if nl <= 0 {
		return false
	}
	firstLine := sample[:nl]
	return bytes.Count(firstLine, []byte(",")) >= 1
}

// extractPlain decodes the file as UTF-8 text, replacing invalid bytes.
func extractPlain(data []byte) (*Result, error) {
	text := string(data)
	if !utf8.ValidString(text) {
		text = strings.ToValidUTF8(text, "�")
	}
	return &Result{
		Text:   text,
		Format: "txt",
		Metadata: map[string]string{
			"bytes": fmt.Sprintf("%d", len(data)),
		},
		Structure: map[string]interface{}{
			"file_type":      "txt",
			"line_count":     strings.Count(text, "\n") + 1,
			"estimated_type": EstimateType(text),
		},
	}, nil
}
