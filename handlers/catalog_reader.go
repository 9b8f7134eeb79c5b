package handlers

import (
	"encoding/csv"
	"io"
	"log"
	"path/filepath"
	"sort"
	"strings"

	"github.com/xuri/excelize/v2"
)

// CatalogReader extracts dropdown vocabularies from an uploaded tabular
// file. Two formats are supported, dispatched on the filename extension:
// .xlsx workbooks (first worksheet) and .csv delimited text. Every read is
// best effort: an absent, corrupt or unreadable file yields empty results,
// never an error, because a broken catalog must not break the forms that
// reference it.
type CatalogReader struct{}

// NewCatalogReader creates a new catalog reader
func NewCatalogReader() *CatalogReader {
	return &CatalogReader{}
}

// ListHeaders returns the column names found in the file's first row,
// trimmed, in order, skipping empty cells.
func (cr *CatalogReader) ListHeaders(r io.ReadSeeker, filename string) []string {
	rows := cr.readRows(r, filename, 1)
	if len(rows) == 0 {
		return []string{}
	}
	headers := make([]string, 0, len(rows[0]))
	for _, cell := range rows[0] {
		if v := strings.TrimSpace(cell); v != "" {
			headers = append(headers, v)
		}
	}
	return headers
}

// ListDistinctValues returns the sorted, deduplicated non-empty values of
// the named column. The column is matched against the header row by exact
// trimmed, case-sensitive comparison; an unknown column yields an empty
// list. Rows shorter than the header are tolerated.
func (cr *CatalogReader) ListDistinctValues(r io.ReadSeeker, filename, column string) []string {
	rows := cr.readRows(r, filename, 0)
	if len(rows) == 0 {
		return []string{}
	}

	col := -1
	for i, cell := range rows[0] {
		if strings.TrimSpace(cell) == column {
			col = i
			break
		}
	}
	if col < 0 {
		return []string{}
	}

	seen := make(map[string]struct{})
	for _, row := range rows[1:] {
		if col >= len(row) {
			continue
		}
		if v := strings.TrimSpace(row[col]); v != "" {
			seen[v] = struct{}{}
		}
	}

	values := make([]string, 0, len(seen))
	for v := range seen {
		values = append(values, v)
	}
	sort.Strings(values)
	return values
}

// readRows loads up to limit rows (0 = all) from the file, rewinding the
// stream first so repeated reads of one upload handle all work.
func (cr *CatalogReader) readRows(r io.ReadSeeker, filename string, limit int) [][]string {
	if r == nil {
		return nil
	}
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		log.Printf("catalog: rewind failed: %v", err)
		return nil
	}

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".xlsx":
		return cr.readExcelRows(r, limit)
	case ".csv":
		return cr.readCSVRows(r, limit)
	default:
		log.Printf("catalog: unsupported file type %q", filename)
		return nil
	}
}

func (cr *CatalogReader) readExcelRows(r io.Reader, limit int) [][]string {
	f, err := excelize.OpenReader(r)
	if err != nil {
		log.Printf("catalog: open workbook failed: %v", err)
		return nil
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		log.Printf("catalog: read worksheet failed: %v", err)
		return nil
	}
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	return rows
}

func (cr *CatalogReader) readCSVRows(r io.Reader, limit int) [][]string {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1 // tolerate ragged rows

	var rows [][]string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			log.Printf("catalog: read csv failed: %v", err)
			return nil
		}
		rows = append(rows, record)
		if limit > 0 && len(rows) == limit {
			break
		}
	}
	return rows
}
