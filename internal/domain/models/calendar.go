package models

import "time"

const (
	// DateLayout is the canonical day identifier (dd/mm/yyyy).
	DateLayout = "02/01/2006"
	// TimeLayout stamps slot confirmations (HH:mm).
	TimeLayout = "15:04"
)

var weekdaysPT = [...]string{
	time.Sunday:    "Domingo",
	time.Monday:    "Segunda-feira",
	time.Tuesday:   "Terça-feira",
	time.Wednesday: "Quarta-feira",
	time.Thursday:  "Quinta-feira",
	time.Friday:    "Sexta-feira",
	time.Saturday:  "Sábado",
}

// FormatDate renders the day identifier of t.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// FormatTime renders the time of day of t.
func FormatTime(t time.Time) string {
	return t.Format(TimeLayout)
}

// FormatWeekday renders the capitalised Portuguese weekday of t.
func FormatWeekday(t time.Time) string {
	return weekdaysPT[t.Weekday()]
}

// StampDay sets the map's date and weekday to the day of t.
func (m *ProductionMap) StampDay(t time.Time) {
	m.Date = FormatDate(t)
	m.Weekday = FormatWeekday(t)
}
