package ingest

import (
	"github.com/AesBiarenti/STAJ22001/engine/domain"
	"github.com/AesBiarenti/STAJ22001/pkg/fn"
)

func (r Row) period() domain.Period {
	return domain.Period{DateRange: r.DateRange, TotalHours: r.TotalHours, DailyHours: r.DailyHours}
}

// Group merges rows with the same normalized name into one record. Records
// follow the order in which names first appear; periods keep row order.
func Group(rows []Row) []domain.EmployeeRecord {
	name := func(r Row) string { return r.Name }
	byName := fn.GroupBy(rows, name)
	return fn.Map(fn.Unique(fn.Map(rows, name)), func(n string) domain.EmployeeRecord {
		return domain.EmployeeRecord{Name: n, Periods: fn.Map(byName[n], Row.period)}
	})
}
