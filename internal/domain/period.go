package domain

import (
	"strconv"
	"time"
)

var spanishMonths = [12]string{
	"Enero", "Febrero", "Marzo", "Abril", "Mayo", "Junio",
	"Julio", "Agosto", "Septiembre", "Octubre", "Noviembre", "Diciembre",
}

// MonthName returns the capitalized Spanish month name, or an empty
// string for an out-of-range month.
func MonthName(month int) string {
	if month < 1 || month > 12 {
		return ""
	}
	return spanishMonths[month-1]
}

// PeriodsBack returns the billing periods from the month containing now
// going back monthsBack additional months, most recent first.
func PeriodsBack(now time.Time, monthsBack int) []Period {
	if monthsBack < 0 {
		monthsBack = 0
	}

	periods := make([]Period, 0, monthsBack+1)
	cursor := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	for i := 0; i <= monthsBack; i++ {
		periods = append(periods, Period{Month: int(cursor.Month()), Year: cursor.Year()})
		cursor = cursor.AddDate(0, -1, 0)
	}
	return periods
}

// Name returns the human form of the period, e.g. "Julio 2026".
func (p Period) Name() string {
	name := MonthName(p.Month)
	if name == "" {
		return ""
	}
	return name + " " + strconv.Itoa(p.Year)
}
