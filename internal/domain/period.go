package domain

import (
	"fmt"
	"time"
)

// Period is a reporting interval. Day is 0 for monthly periods.
type Period struct {
	Year  int `json:"year"`
	Month int `json:"month"`
	Day   int `json:"day,omitempty"`
}

// MonthlyPeriod returns the period for a calendar month
func MonthlyPeriod(year, month int) Period {
	return Period{Year: year, Month: month}
}

// DailyPeriod returns the period for a calendar date
func DailyPeriod(date time.Time) Period {
	return Period{Year: date.Year(), Month: int(date.Month()), Day: date.Day()}
}

// IsDaily reports whether the period is keyed by calendar date
func (p Period) IsDaily() bool {
	return p.Day > 0
}

// Previous returns the period immediately before p.
// January rolls back to December of the previous year; daily periods step back one calendar day.
func (p Period) Previous() Period {
	if p.IsDaily() {
		d := time.Date(p.Year, time.Month(p.Month), p.Day, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -1)
		return DailyPeriod(d)
	}
	if p.Month == 1 {
		return Period{Year: p.Year - 1, Month: 12}
	}
	return Period{Year: p.Year, Month: p.Month - 1}
}

// Validate checks the period against calendar rules and the supported year window
func (p Period) Validate(minYear, maxYear int) error {
	if p.Month < 1 || p.Month > 12 {
		return fmt.Errorf("month must be between 1 and 12, got %d", p.Month)
	}
	if p.Year < minYear || p.Year > maxYear {
		return fmt.Errorf("year must be between %d and %d, got %d", minYear, maxYear, p.Year)
	}
	if p.Day < 0 {
		return fmt.Errorf("day must not be negative, got %d", p.Day)
	}
	if p.IsDaily() {
		d := time.Date(p.Year, time.Month(p.Month), p.Day, 0, 0, 0, 0, time.UTC)
		if d.Day() != p.Day {
			return fmt.Errorf("day %d does not exist in %04d-%02d", p.Day, p.Year, p.Month)
		}
	}
	return nil
}

func (p Period) String() string {
	if p.IsDaily() {
		return fmt.Sprintf("%04d-%02d-%02d", p.Year, p.Month, p.Day)
	}
	return fmt.Sprintf("%04d-%02d", p.Year, p.Month)
}
