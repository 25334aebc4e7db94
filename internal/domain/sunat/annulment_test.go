package sunat_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/jhoicas/facturacion-sunat-api/internal/domain/sunat"
)

func TestWithinAnnulmentWindow(t *testing.T) {
	emision := time.Date(2025, 1, 10, 10, 0, 0, 0, sunat.Lima)

	tests := []struct {
		name string
		now  time.Time
		want bool
		days int
	}{
		{"mismo día", time.Date(2025, 1, 10, 23, 59, 0, 0, sunat.Lima), true, 0},
		{"tres días al final del día", time.Date(2025, 1, 13, 23, 0, 0, 0, sunat.Lima), true, 3},
		{"cuatro días apenas iniciado", time.Date(2025, 1, 14, 0, 30, 0, 0, sunat.Lima), false, 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.days, sunat.ElapsedDays(emision, tt.now))
			assert.Equal(t, tt.want, sunat.WithinAnnulmentWindow(emision, tt.now))
		})
	}
}

func TestElapsedDays_UsaCalendarioDeLima(t *testing.T) {
	// 2025-01-11 03:00 UTC es todavía 2025-01-10 en Lima.
	emision := time.Date(2025, 1, 11, 3, 0, 0, 0, time.UTC)
	now := time.Date(2025, 1, 14, 4, 0, 0, 0, time.UTC) // 2025-01-13 23:00 Lima

	assert.Equal(t, 3, sunat.ElapsedDays(emision, now))
	assert.True(t, sunat.SameDate(emision, time.Date(2025, 1, 10, 8, 0, 0, 0, sunat.Lima)))
}
