package domain

import (
	"fmt"
	"math"
	"strings"
)

// NormalizeName trims and lowercases an employee name. Grouping and keyword
// search both compare normalized names.
func NormalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// ValidateRecord checks a record before it is embedded and stored.
func ValidateRecord(r EmployeeRecord) error {
	if strings.TrimSpace(r.Name) == "" {
		return NewValidationError("isim", r.Name, ErrEmptyName)
	}
	if len(r.Periods) == 0 {
		return NewValidationError("tarih_araligi", "", ErrNoPeriods)
	}
	for i, p := range r.Periods {
		if err := validatePeriod(i, p); err != nil {
			return err
		}
	}
	return nil
}

func validatePeriod(i int, p Period) error {
	if strings.TrimSpace(p.DateRange) == "" {
		return NewValidationError(fmt.Sprintf("tarih_araligi[%d]", i), p.DateRange, ErrEmptyRange)
	}
	if p.TotalHours < 0 || math.IsNaN(p.TotalHours) {
		return NewValidationError(fmt.Sprintf("toplam_mesai[%d]", i), fmt.Sprint(p.TotalHours), ErrNegativeHours)
	}
	for day, h := range p.DailyHours {
		if h < 0 || math.IsNaN(h) {
			return NewValidationError(fmt.Sprintf("gunluk_mesai[%d].%s", i, day), fmt.Sprint(h), ErrNegativeHours)
		}
	}
	return nil
}

// ValidatePatch checks the fields a patch would overwrite.
func ValidatePatch(p EmployeePatch) error {
	if p.Name != nil && strings.TrimSpace(*p.Name) == "" {
		return NewValidationError("isim", *p.Name, ErrEmptyName)
	}
	for i, h := range p.TotalHours {
		if h < 0 || math.IsNaN(h) {
			return NewValidationError(fmt.Sprintf("toplam_mesai[%d]", i), fmt.Sprint(h), ErrNegativeHours)
		}
	}
	return nil
}
