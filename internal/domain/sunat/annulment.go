package sunat

import "time"

// AnnulmentWindowDays días calendario desde la emisión en que SUNAT acepta la anulación.
const AnnulmentWindowDays = 3

// Lima zona horaria de referencia para fechas de emisión.
var Lima = loadLima()

func loadLima() *time.Location {
	loc, err := time.LoadLocation("America/Lima")
	if err != nil {
		return time.FixedZone("PET", -5*60*60)
	}
	return loc
}

// ElapsedDays días calendario (hora de Lima) entre la emisión y now.
func ElapsedDays(emission, now time.Time) int {
	return int(DateOnly(now).Sub(DateOnly(emission)).Hours() / 24)
}

// WithinAnnulmentWindow indica si aún puede anularse ante SUNAT.
func WithinAnnulmentWindow(emission, now time.Time) bool {
	return ElapsedDays(emission, now) <= AnnulmentWindowDays
}

// DateOnly fecha calendario de t en Lima, a medianoche UTC.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.In(Lima).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// SameDate indica si dos instantes caen en la misma fecha de Lima.
func SameDate(a, b time.Time) bool {
	return DateOnly(a).Equal(DateOnly(b))
}
