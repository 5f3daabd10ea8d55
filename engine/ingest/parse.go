package ingest

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/AesBiarenti/STAJ22001/engine/domain"
	"github.com/xuri/excelize/v2"
)

// Spreadsheet column names.
const (
	ColName       = "isim"
	ColTotalHours = "toplam_mesai"
	ColDateRange  = "tarih_araligi"
	ColDailyHours = "gunluk_mesai"
)

// RequiredColumns lists the header cells every upload must carry.
var RequiredColumns = []string{ColName, ColTotalHours, ColDateRange, ColDailyHours}

// Row is one validated spreadsheet row.
type Row struct {
	Line       int
	Name       string
	DateRange  string
	TotalHours float64
	DailyHours map[string]float64
}

// ParseFile parses an .xlsx or .csv file by extension.
func ParseFile(path string) ([]Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("ingest: open %s: %w", path, err)
	}
	defer f.Close()
	return Parse(filepath.Base(path), f)
}

// Parse reads a spreadsheet whose format is chosen from the file name.
// Anything that is not .csv is read as xlsx.
func Parse(filename string, r io.Reader) ([]Row, error) {
	if strings.EqualFold(filepath.Ext(filename), ".csv") {
		return ParseCSV(r)
	}
	return ParseXLSX(r)
}

// ParseXLSX reads the first sheet of a workbook.
func ParseXLSX(r io.Reader) ([]Row, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("ingest: open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("ingest: workbook has no sheets")
	}
	table, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("ingest: read sheet %q: %w", sheets[0], err)
	}
	return parseTable(table)
}

// ParseCSV reads a comma separated file with a header row.
func ParseCSV(r io.Reader) ([]Row, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	table, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("ingest: read csv: %w", err)
	}
	return parseTable(table)
}

func parseTable(table [][]string) ([]Row, error) {
	if len(table) == 0 {
		return nil, domain.NewValidationError("columns", strings.Join(RequiredColumns, ","), domain.ErrMissingColumn)
	}
	idx := make(map[string]int, len(table[0]))
	for i, h := range table[0] {
		idx[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))] = i
	}
	var missing []string
	for _, c := range RequiredColumns {
		if _, ok := idx[c]; !ok {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return nil, domain.NewValidationError("columns", strings.Join(missing, ","), domain.ErrMissingColumn)
	}

	rows := make([]Row, 0, len(table)-1)
	for i, cells := range table[1:] {
		line := i + 2
		cell := func(col string) string {
			if j := idx[col]; j < len(cells) {
				return strings.TrimSpace(cells[j])
			}
			return ""
		}
		if blank(cells) {
			continue
		}
		row, err := parseRow(line, cell)
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func parseRow(line int, cell func(string) string) (Row, error) {
	field := func(col string) string { return fmt.Sprintf("satır %d: %s", line, col) }

	name := domain.NormalizeName(cell(ColName))
	if name == "" {
		return Row{}, domain.NewValidationError(field(ColName), "", domain.ErrEmptyCell)
	}
	rawHours := cell(ColTotalHours)
	if rawHours == "" {
		return Row{}, domain.NewValidationError(field(ColTotalHours), "", domain.ErrEmptyCell)
	}
	hours, err := strconv.ParseFloat(strings.ReplaceAll(rawHours, ",", "."), 64)
	if err != nil {
		return Row{}, domain.NewValidationError(field(ColTotalHours), rawHours, domain.ErrInvalidNumber)
	}
	if hours < 0 {
		return Row{}, domain.NewValidationError(field(ColTotalHours), rawHours, domain.ErrNegativeHours)
	}
	dates := NormalizeDateRange(cell(ColDateRange))
	if dates == "" {
		return Row{}, domain.NewValidationError(field(ColDateRange), "", domain.ErrEmptyCell)
	}
	return Row{
		Line:       line,
		Name:       name,
		DateRange:  dates,
		TotalHours: hours,
		DailyHours: ParseDailyHours(cell(ColDailyHours)),
	}, nil
}

func blank(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// ParseDailyHours decodes a per-day hours map written either as JSON or as a
// single-quoted dict literal. Anything else yields an empty map.
func ParseDailyHours(s string) map[string]float64 {
	out := map[string]float64{}
	s = strings.TrimSpace(s)
	if s == "" {
		return out
	}
	var raw map[string]any
	if err := json.Unmarshal([]byte(s), &raw); err != nil {
		if err := json.Unmarshal([]byte(strings.ReplaceAll(s, "'", `"`)), &raw); err != nil {
			return out
		}
	}
	for day, v := range raw {
		switch n := v.(type) {
		case float64:
			out[day] = n
		case string:
			if f, err := strconv.ParseFloat(strings.ReplaceAll(n, ",", "."), 64); err == nil {
				out[day] = f
			}
		}
	}
	return out
}
