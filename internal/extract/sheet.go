package extract

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

// extractXLSX converts workbook content to CSV text, one block per sheet.
// Multi-sheet workbooks separate sheets with a "--- Sheet: name ---" marker.
func extractXLSX(data []byte) (*Result, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("workbook has no sheets")
	}

	var sb strings.Builder
	rowCount := 0
	sheetInfo := map[string]interface{}{}

	for _, sheet := range sheets {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
		}

		columnCount := 0
		for _, row := range rows {
			if len(row) > columnCount {
				columnCount = len(row)
			}
		}
		sheetInfo[sheet] = map[string]interface{}{
			"row_count":    len(rows),
			"column_count": columnCount,
		}

		if len(rows) == 0 {
			continue
		}

		if len(sheets) > 1 {
			if sb.Len() > 0 {
				sb.WriteByte('\n')
			}
			fmt.Fprintf(&sb, "--- Sheet: %s ---\n", sheet)
		}

		w := csv.NewWriter(&sb)
		for _, row := range rows {
			if err := w.Write(row); err != nil {
				return nil, fmt.Errorf("serialize sheet %q: %w", sheet, err)
			}
			rowCount++
		}
		w.Flush()
		if err := w.Error(); err != nil {
			return nil, fmt.Errorf("serialize sheet %q: %w", sheet, err)
		}
	}

	if rowCount == 0 {
		return nil, fmt.Errorf("no data found in workbook")
	}

	return &Result{
		Text:   strings.TrimRight(sb.String(), "\n"),
		Format: "xlsx",
		Metadata: map[string]string{
			"sheets": strconv.Itoa(len(sheets)),
			"rows":   strconv.Itoa(rowCount),
		},
		Structure: map[string]interface{}{
			"file_type":   "xlsx",
			"sheet_count": len(sheets),
			"sheet_names": sheets,
			"sheets":      sheetInfo,
		},
	}, nil
}

// extractCSV validates and normalizes CSV content. Ragged rows are accepted.
// Content that fails CSV parsing degrades to plain text.
func extractCSV(data []byte) (*Result, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	records, err := r.ReadAll()
	if err != nil || len(records) == 0 {
		res, perr := extractPlain(data)
		if perr != nil {
			return nil, perr
		}
		res.Format = "csv"
		res.Structure["file_type"] = "csv"
		return res, nil
	}

	var sb strings.Builder
	w := csv.NewWriter(&sb)
	for _, rec := range records {
		if err := w.Write(rec); err != nil {
			return nil, fmt.Errorf("serialize csv: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("serialize csv: %w", err)
	}

	return &Result{
		Text:   strings.TrimRight(sb.String(), "\n"),
		Format: "csv",
		Metadata: map[string]string{
			"rows": strconv.Itoa(len(records)),
		},
		Structure: map[string]interface{}{
			"file_type":    "csv",
			"row_count":    len(records),
			"column_count": len(records[0]),
			"columns":      records[0],
		},
	}, nil
}
