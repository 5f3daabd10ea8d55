package domain

import "encoding/json"

// EmployeePatch carries the fields of an update. A nil field leaves the
// stored value untouched; the period columns are merged independently.
type EmployeePatch struct {
	Name       *string
	TotalHours []float64
	DateRanges []string
	DailyHours []map[string]float64
}

type patchWire struct {
	Name       *string                      `json:"isim"`
	TotalHours flexList[float64]            `json:"toplam_mesai"`
	DateRanges flexList[string]             `json:"tarih_araligi"`
	DailyHours flexList[map[string]float64] `json:"gunluk_mesai"`
}

// UnmarshalJSON accepts the same layout as EmployeeRecord. Absent or null
// keys stay nil.
func (p *EmployeePatch) UnmarshalJSON(b []byte) error {
	var w patchWire
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	*p = EmployeePatch{
		Name:       w.Name,
		TotalHours: w.TotalHours,
		DateRanges: w.DateRanges,
		DailyHours: w.DailyHours,
	}
	return nil
}

// IsEmpty reports whether the patch changes nothing.
func (p EmployeePatch) IsEmpty() bool {
	return p.Name == nil && p.TotalHours == nil && p.DateRanges == nil && p.DailyHours == nil
}

// Merge applies the non-nil fields of patch to base. Id and vector are kept.
func Merge(base EmployeeRecord, patch EmployeePatch) EmployeeRecord {
	out := base
	if patch.Name != nil {
		out.Name = *patch.Name
	}
	if patch.TotalHours == nil && patch.DateRanges == nil && patch.DailyHours == nil {
		return out
	}
	hours, ranges, daily := columns(base.Periods)
	if patch.TotalHours != nil {
		hours = patch.TotalHours
	}
	if patch.DateRanges != nil {
		ranges = patch.DateRanges
	}
	if patch.DailyHours != nil {
		daily = patch.DailyHours
	}
	out.Periods = zipPeriods(hours, ranges, daily)
	return out
}
