package sunat

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/jhoicas/facturacion-sunat-api/internal/domain"
	"github.com/jhoicas/facturacion-sunat-api/internal/domain/entity"
	catalog "github.com/jhoicas/facturacion-sunat-api/pkg/sunat"
)

// BankarizationThresholds umbral por moneda a partir del cual el pago debe bancarizarse.
type BankarizationThresholds map[string]decimal.Decimal

// DefaultBankarizationThresholds S/ 2,000 y US$ 500 (Ley 28194).
func DefaultBankarizationThresholds() BankarizationThresholds {
	return BankarizationThresholds{
		catalog.CurrencyPEN: decimal.NewFromInt(2000),
		catalog.CurrencyUSD: decimal.NewFromInt(500),
	}
}

// BankarizationResult resultado informativo; nunca bloquea la emisión.
type BankarizationResult struct {
	Applies   bool
	Threshold decimal.Decimal
	Warning   string
}

// EvaluateBankarization marca la obligación cuando total >= umbral de la moneda y advierte
// si no hay un medio de pago bancarizado (catálogo 59). Monedas sin umbral no aplican.
func EvaluateBankarization(total decimal.Decimal, currency string, hasValidPaymentMethod bool, th BankarizationThresholds) BankarizationResult {
	threshold, ok := th[currency]
	if !ok || total.LessThan(threshold) {
		return BankarizationResult{Threshold: threshold}
	}
	res := BankarizationResult{Applies: true, Threshold: threshold}
	if !hasValidPaymentMethod {
		res.Warning = fmt.Sprintf("operación de %s %s sujeta a bancarización sin medio de pago válido", currency, total.StringFixed(2))
	}
	return res
}

// CalculateDetraction aplica la tasa del catálogo 54: monto = round(total × tasa / 100, 2).
func CalculateDetraction(total, rate decimal.Decimal) (amount, netPayable decimal.Decimal) {
	amount = total.Mul(rate).Div(hundred).Round(2)
	return amount, total.Sub(amount)
}

// EvaluateDetraction completa los campos de detracción del comprobante.
func EvaluateDetraction(doc *entity.Document, code entity.DetractionCode) {
	amount, net := CalculateDetraction(doc.MtoImpVenta, code.Rate)
	doc.DetraccionCodigo = code.Code
	doc.DetraccionPorcentaje = code.Rate
	doc.MtoDetraccion = amount
	doc.MtoNetoPagar = net
	if doc.TipoOperacion == "" || doc.TipoOperacion == catalog.OperacionVentaInterna {
		doc.TipoOperacion = catalog.OperacionDetraccion
	}
}

// CalculatePerception aplica la tasa de percepción: monto = round(total × tasa / 100, 2).
func CalculatePerception(total, rate decimal.Decimal) (amount, totalWithPerception decimal.Decimal) {
	amount = total.Mul(rate).Div(hundred).Round(2)
	return amount, total.Add(amount)
}

// EvaluatePerception aplica el régimen de percepción del catálogo 53 al comprobante.
func EvaluatePerception(doc *entity.Document, code string) error {
	rate, ok := PerceptionRate(code)
	if !ok {
		return fmt.Errorf("%w: percepción %q", domain.ErrUnknownCatalogCode, code)
	}
	amount, total := CalculatePerception(doc.MtoImpVenta, rate)
	doc.PercepcionCodigo = code
	doc.PercepcionPorcentaje = rate
	doc.MtoPercepcion = amount
	doc.MtoTotalConPercepcion = total
	return nil
}

// PerceptionRate devuelve la tasa del régimen (catálogo 53).
func PerceptionRate(code string) (decimal.Decimal, bool) {
	s, ok := catalog.PerceptionRates[code]
	if !ok {
		return decimal.Zero, false
	}
	return decimal.RequireFromString(s), true
}

// CalculateRetention completa los importes retenidos de cada comprobante pagado.
func CalculateRetention(data *entity.RetentionData) error {
	s, ok := catalog.RetentionRegimes[data.Regimen]
	if !ok {
		return fmt.Errorf("régimen de retención %q desconocido", data.Regimen)
	}
	data.Tasa = decimal.RequireFromString(s)
	data.ImporteTotalRetenido = decimal.Zero
	data.ImporteTotalPagado = decimal.Zero
	for i := range data.Items {
		it := &data.Items[i]
		it.ImporteRetenido = it.ImportePagado.Mul(data.Tasa).Div(hundred).Round(2)
		it.ImporteNetoPagado = it.ImportePagado.Sub(it.ImporteRetenido)
		data.ImporteTotalRetenido = data.ImporteTotalRetenido.Add(it.ImporteRetenido)
		data.ImporteTotalPagado = data.ImporteTotalPagado.Add(it.ImporteNetoPagado)
	}
	return nil
}
