package extract

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"
)

// extractDocx parses docx content by reading word/document.xml from the
// ZIP archive. Paragraphs become lines, table cells are joined with tabs.
func extractDocx(data []byte) (*Result, error) {
	r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open zip: %w", err)
	}

	var docFile *zip.File
	for _, f := range r.File {
		if f.Name == "word/document.xml" {
			docFile = f
			break
		}
	}
	if docFile == nil {
		return nil, fmt.Errorf("word/document.xml not found in archive")
	}

	rc, err := docFile.Open()
	if err != nil {
		return nil, fmt.Errorf("open document.xml: %w", err)
	}
	defer rc.Close()

	decoder := xml.NewDecoder(rc)
	var paragraphs []string
	var currentText strings.Builder
	var inParagraph, inText, inCell bool
	var cellTexts []string

	paragraphCount := 0
	tableCount := 0
	headings := map[string]int{}

	flushParagraph := func() {
		text := strings.TrimSpace(currentText.String())
		currentText.Reset()
		if text == "" {
			return
		}
		if inCell {
			cellTexts = append(cellTexts, text)
		} else {
			paragraphs = append(paragraphs, text)
		}
	}

	for {
		tok, err := decoder.Token()
		if err != nil {
			break
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "p":
				inParagraph = true
				paragraphCount++
				currentText.Reset()
			case "pStyle":
				// Heading styles carry names like "Heading1" or "Heading 1".
				for _, attr := range t.Attr {
					if attr.Name.Local != "val" {
						continue
					}
					level := strings.TrimSpace(strings.TrimPrefix(attr.Value, "Heading"))
					if attr.Value != level && isDigits(level) {
						headings["heading_"+level]++
					}
				}
			case "tbl":
				tableCount++
			case "t":
				inText = inParagraph
			case "tc":
				inCell = true
			case "tab":
				if inParagraph {
					currentText.WriteByte('\t')
				}
			case "br":
				if inParagraph {
					currentText.WriteByte('\n')
				}
			}

		case xml.CharData:
			if inText {
				currentText.Write(t)
			}

		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				if inParagraph {
					inParagraph = false
					flushParagraph()
				}
			case "tc":
				inCell = false
			case "tr":
				// Row done: emit the accumulated cells as one tab-joined line.
				if len(cellTexts) > 0 {
					paragraphs = append(paragraphs, strings.Join(cellTexts, "\t"))
					cellTexts = nil
				}
			}
		}
	}

	if len(paragraphs) == 0 {
		return nil, fmt.Errorf("no text content found in docx")
	}
	text := strings.Join(paragraphs, "\n")

	return &Result{
		Text:   text,
		Format: "docx",
		Metadata: map[string]string{
			"paragraphs": strconv.Itoa(len(paragraphs)),
		},
		Structure: map[string]interface{}{
			"file_type":       "docx",
			"paragraph_count": paragraphCount,
			"table_count":     tableCount,
			"headings":        headings,
			"estimated_type":  EstimateType(text),
		},
	}, nil
}

// isDigits reports whether s is a non-empty run of ASCII digits.
func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
