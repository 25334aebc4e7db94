package sunat

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jhoicas/facturacion-sunat-api/internal/domain"
	catalog "github.com/jhoicas/facturacion-sunat-api/pkg/sunat"
)

// PadWidth dígitos del correlativo según la familia del documento.
// Resúmenes y bajas no se rellenan (SUNAT admite hasta 5 dígitos sin ceros).
func PadWidth(tipoDocumento string) int {
	switch tipoDocumento {
	case catalog.DocNotaVenta:
		return 6
	case catalog.DocResumenDiario, catalog.DocComunicacionBaja:
		return 0
	default:
		return 8
	}
}

// FormatNumber serie + "-" + correlativo con ceros a la izquierda.
func FormatNumber(tipoDocumento, serie string, n int64) string {
	width := PadWidth(tipoDocumento)
	if width == 0 {
		return serie + "-" + strconv.FormatInt(n, 10)
	}
	return fmt.Sprintf("%s-%0*d", serie, width, n)
}

// SummarySeries serie diaria de resúmenes y bajas: "RC-20250131".
func SummarySeries(tipoDocumento string, fecha time.Time) string {
	return tipoDocumento + "-" + DateOnly(fecha).Format("20060102")
}

// ValidateSeries verifica el formato SUNAT de la serie (4 caracteres) y su letra inicial.
// Para notas, family indica la familia del comprobante afectado.
func ValidateSeries(tipoDocumento, serie, family string) error {
	if len(serie) != 4 {
		return fmt.Errorf("%w: la serie debe tener 4 caracteres", domain.ErrUnknownSeries)
	}
	first := strings.ToUpper(serie[:1])
	var want string
	switch tipoDocumento {
	case catalog.DocFactura:
		want = "F"
	case catalog.DocBoleta:
		want = "B"
	case catalog.DocNotaCredito, catalog.DocNotaDebito:
		want = "F"
		if family == "boleta" {
			want = "B"
		}
	case catalog.DocGuiaRemision:
		want = "T"
	case catalog.DocRetencion:
		want = "R"
	default:
		return nil
	}
	if first != want {
		return fmt.Errorf("%w: la serie %s debe empezar con %s", domain.ErrUnknownSeries, serie, want)
	}
	return nil
}

// ParseNumber separa "F001-00000123" en serie y correlativo.
func ParseNumber(numero string) (serie string, correlativo int64, err error) {
	i := strings.LastIndex(numero, "-")
	if i <= 0 || i == len(numero)-1 {
		return "", 0, fmt.Errorf("%w: número de comprobante %q", domain.ErrInvalidInput, numero)
	}
	n, err := strconv.ParseInt(numero[i+1:], 10, 64)
	if err != nil || n <= 0 {
		return "", 0, fmt.Errorf("%w: correlativo de %q", domain.ErrInvalidInput, numero)
	}
	return strings.ToUpper(numero[:i]), n, nil
}
