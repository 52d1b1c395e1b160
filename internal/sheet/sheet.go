// Package sheet reads worksheets exported from the desk's spreadsheets.
package sheet

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pbnjay/grate"
	_ "github.com/pbnjay/grate/xls"
	_ "github.com/pbnjay/grate/xlsx"

	"deskquant/derivs/internal/types"
)

var ErrSheetNotFound = fmt.Errorf("sheet not found")

// Workbook is an open xls or xlsx file.
type Workbook struct {
	src grate.Source
}

func Open(path string) (*Workbook, error) {
	src, err := grate.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook %s: %w", path, err)
	}
	return &Workbook{src: src}, nil
}

func (w *Workbook) Close() error {
	return w.src.Close()
}

func (w *Workbook) Sheets() ([]string, error) {
	return w.src.List()
}

// Rows reads every row of the named sheet as strings.
func (w *Workbook) Rows(name string) ([][]string, error) {
	names, err := w.src.List()
	if err != nil {
		return nil, err
	}

	found := false
	for _, n := range names {
		if n == name {
			found = true
			break
		}
	}
	if !found {
		return nil, fmt.Errorf("%w: %q", ErrSheetNotFound, name)
	}

	sheet, err := w.src.Get(name)
	if err != nil {
		return nil, err
	}

	var rows [][]string
	for sheet.Next() {
		row := sheet.Strings()
		rows = append(rows, append([]string(nil), row...))
	}
	if err := sheet.Err(); err != nil {
		return nil, fmt.Errorf("failed to read sheet %q: %w", name, err)
	}
	return rows, nil
}

// ReadFile reads one sheet of the workbook at path. An empty name reads
// the first sheet.
func ReadFile(path, name string) ([][]string, error) {
	wb, err := Open(path)
	if err != nil {
		return nil, err
	}
	defer wb.Close()

	if name == "" {
		names, err := wb.Sheets()
		if err != nil {
			return nil, err
		}
		if len(names) == 0 {
			return nil, fmt.Errorf("%w: workbook %s is empty", ErrSheetNotFound, path)
		}
		name = names[0]
	}
	return wb.Rows(name)
}

// Cell returns the trimmed cell or an empty string when the row is short.
func Cell(row []string, col int) string {
	if col < 0 || col >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[col])
}

// Float parses a numeric cell, allowing thousands separators.
func Float(row []string, col int) (float64, error) {
	s := strings.ReplaceAll(Cell(row, col), ",", "")
	if s == "" {
		return 0, fmt.Errorf("%w: column %d", types.ErrMissingField, col)
	}
	return strconv.ParseFloat(s, 64)
}

// Header maps column names in the first row to their index.
func Header(rows [][]string) map[string]int {
	h := map[string]int{}
	if len(rows) == 0 {
		return h
	}
	for i, name := range rows[0] {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" {
			continue
		}
		if _, ok := h[name]; !ok {
			h[name] = i
		}
	}
	return h
}
