// Package stats writes the flat record export consumed by the stats endpoint
// and aggregates it.
package stats

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"

	"github.com/AesBiarenti/STAJ22001/engine/domain"
)

// ErrNoExport is returned by Load when no export has been written yet.
var ErrNoExport = errors.New("stats: no export")

// Stats is the aggregate over an export.
type Stats struct {
	TotalEmployees int     `json:"totalEmployees"`
	TotalRecords   int     `json:"totalRecords"`
	AvgWorkHours   float64 `json:"avgWorkHours"`
	TotalWorkHours float64 `json:"totalWorkHours"`
}

// Export writes records to path atomically: a temp file in the same
// directory is renamed over the target.
func Export(path string, records []domain.EmployeeRecord) error {
	if records == nil {
		records = []domain.EmployeeRecord{}
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("stats: encode export: %w", err)
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("stats: export dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".export-*.json")
	if err != nil {
		return fmt.Errorf("stats: export temp: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("stats: write export: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("stats: write export: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("stats: replace export: %w", err)
	}
	return nil
}

// Load reads an export written by Export.
func Load(path string) ([]domain.EmployeeRecord, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNoExport
	}
	if err != nil {
		return nil, fmt.Errorf("stats: read export: %w", err)
	}
	var records []domain.EmployeeRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("stats: decode export: %w", err)
	}
	return records, nil
}

// Compute aggregates records. AvgWorkHours is the mean hours per period,
// rounded to two decimals, and zero when there are no periods.
func Compute(records []domain.EmployeeRecord) Stats {
	var s Stats
	s.TotalEmployees = len(records)
	for _, r := range records {
		s.TotalRecords += len(r.Periods)
		s.TotalWorkHours += r.TotalHours()
	}
	if s.TotalRecords > 0 {
		s.AvgWorkHours = math.Round(s.TotalWorkHours/float64(s.TotalRecords)*100) / 100
	}
	return s
}
