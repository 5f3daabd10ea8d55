// Package domain defines the employee work-hour record, its wire and payload
// encodings, field-level merge, id allocation and the error taxonomy shared by
// the engine packages.
package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Period is one reporting period of an employee: a date range, the hours
// worked in it and the per-day breakdown.
type Period struct {
	DateRange  string             `json:"tarih_araligi"`
	TotalHours float64            `json:"toplam_mesai"`
	DailyHours map[string]float64 `json:"gunluk_mesai"`
}

// EmployeeRecord is the unit stored in the vector store. Periods are kept in
// the order they were reported.
type EmployeeRecord struct {
	ID      uint64
	Name    string
	Periods []Period
	Vector  []float32
}

// SearchResult is a retrieved record. Score is set only by similarity search.
type SearchResult struct {
	EmployeeRecord
	Score *float32
}

// flexList decodes either a JSON list or a single scalar into a slice.
// Single-period records written by older clients store scalars.
type flexList[T any] []T

func (l *flexList[T]) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*l = nil
		return nil
	}
	if b[0] == '[' {
		var v []T
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*l = v
		return nil
	}
	var v T
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*l = flexList[T]{v}
	return nil
}

// recordWire is the column-oriented layout used both for API JSON and for
// the vector store payload.
type recordWire struct {
	ID         uint64                       `json:"id,omitempty"`
	Name       string                       `json:"isim"`
	TotalHours flexList[float64]            `json:"toplam_mesai"`
	DateRanges flexList[string]             `json:"tarih_araligi"`
	DailyHours flexList[map[string]float64] `json:"gunluk_mesai"`
	Score      *float32                     `json:"score,omitempty"`
}

// columns splits periods into the three parallel lists.
func columns(periods []Period) (hours []float64, ranges []string, daily []map[string]float64) {
	hours = make([]float64, len(periods))
	ranges = make([]string, len(periods))
	daily = make([]map[string]float64, len(periods))
	for i, p := range periods {
		hours[i] = p.TotalHours
		ranges[i] = p.DateRange
		daily[i] = p.DailyHours
		if daily[i] == nil {
			daily[i] = map[string]float64{}
		}
	}
	return hours, ranges, daily
}

// zipPeriods rebuilds periods from parallel lists. The longest list wins;
// missing cells are left at their zero value.
func zipPeriods(hours []float64, ranges []string, daily []map[string]float64) []Period {
	n := max(len(hours), len(ranges), len(daily))
	if n == 0 {
		return nil
	}
	out := make([]Period, n)
	for i := range out {
		if i < len(hours) {
			out[i].TotalHours = hours[i]
		}
		if i < len(ranges) {
			out[i].DateRange = ranges[i]
		}
		if i < len(daily) && daily[i] != nil {
			out[i].DailyHours = daily[i]
		} else {
			out[i].DailyHours = map[string]float64{}
		}
	}
	return out
}

func (r EmployeeRecord) wire() recordWire {
	hours, ranges, daily := columns(r.Periods)
	return recordWire{
		ID:         r.ID,
		Name:       r.Name,
		TotalHours: hours,
		DateRanges: ranges,
		DailyHours: daily,
	}
}

func (w recordWire) record() EmployeeRecord {
	return EmployeeRecord{
		ID:      w.ID,
		Name:    w.Name,
		Periods: zipPeriods(w.TotalHours, w.DateRanges, w.DailyHours),
	}
}

// MarshalJSON renders the record in column layout. The vector is omitted.
func (r EmployeeRecord) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.wire())
}

// UnmarshalJSON accepts the column layout with list or scalar cells.
func (r *EmployeeRecord) UnmarshalJSON(b []byte) error {
	var w recordWire
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	*r = w.record()
	return nil
}

// MarshalJSON renders the record and, when present, its similarity score.
func (s SearchResult) MarshalJSON() ([]byte, error) {
	w := s.EmployeeRecord.wire()
	w.Score = s.Score
	return json.Marshal(w)
}

// TotalHours sums the hours of every period.
func (r EmployeeRecord) TotalHours() float64 {
	var sum float64
	for _, p := range r.Periods {
		sum += p.TotalHours
	}
	return sum
}

// Payload returns the vector store payload of the record.
func (r EmployeeRecord) Payload() map[string]any {
	hours, ranges, daily := columns(r.Periods)
	hs := make([]any, len(hours))
	for i, h := range hours {
		hs[i] = h
	}
	rs := make([]any, len(ranges))
	for i, s := range ranges {
		rs[i] = s
	}
	ds := make([]any, len(daily))
	for i, d := range daily {
		m := make(map[string]any, len(d))
		for k, v := range d {
			m[k] = v
		}
		ds[i] = m
	}
	return map[string]any{
		"isim":          r.Name,
		"toplam_mesai":  hs,
		"tarih_araligi": rs,
		"gunluk_mesai":  ds,
	}
}

// RecordFromPayload decodes a vector store payload. Numeric cells may arrive
// as integers or doubles; both are accepted.
func RecordFromPayload(id uint64, payload map[string]any) (EmployeeRecord, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return EmployeeRecord{}, fmt.Errorf("domain: encode payload %d: %w", id, err)
	}
	var w recordWire
	if err := json.Unmarshal(b, &w); err != nil {
		return EmployeeRecord{}, fmt.Errorf("domain: decode payload %d: %w", id, err)
	}
	w.ID = id
	return w.record(), nil
}
