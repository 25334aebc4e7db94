// Package sunat reúne los cálculos tributarios y reglas de negocio puros de los
// comprobantes electrónicos peruanos: IGV, ISC, ICBPER, bancarización, detracción,
// percepción, retención, numeración y plazos de anulación.
package sunat

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/jhoicas/facturacion-sunat-api/internal/domain"
	"github.com/jhoicas/facturacion-sunat-api/internal/domain/entity"
	catalog "github.com/jhoicas/facturacion-sunat-api/pkg/sunat"
)

var (
	hundred  = decimal.NewFromInt(100)
	ivapRate = decimal.NewFromInt(4)
)

// TaxRates tasas vigentes aplicadas cuando la línea no trae la suya.
type TaxRates struct {
	IGV          decimal.Decimal // porcentaje
	ICBPERFactor decimal.Decimal // soles por bolsa
}

// DefaultTaxRates IGV 18% e ICBPER S/ 0.50.
func DefaultTaxRates() TaxRates {
	return TaxRates{
		IGV:          decimal.NewFromInt(18),
		ICBPERFactor: decimal.RequireFromString("0.50"),
	}
}

// CalculateLine completa los importes calculados de una línea según el catálogo 07.
// Las operaciones de exportación (0200) fuerzan afectación 40 sin IGV.
// No redondea: el redondeo se aplica solo a los totales.
func CalculateLine(line entity.DocumentLine, tipoOperacion string, rates TaxRates) (entity.DocumentLine, error) {
	if tipoOperacion == catalog.OperacionExportacion {
		line.TipAfeIgv = catalog.AfectacionExportacion
	}
	if line.TipAfeIgv == "" {
		line.TipAfeIgv = catalog.AfectacionGravado
	}
	group, ok := catalog.Affectations[line.TipAfeIgv]
	if !ok {
		return line, fmt.Errorf("%w: %q", domain.ErrInvalidAffectation, line.TipAfeIgv)
	}
	if !line.Cantidad.IsPositive() || line.MtoValorUnitario.IsNegative() {
		return line, fmt.Errorf("%w: cantidad y valor unitario deben ser positivos", domain.ErrInvalidInput)
	}
	if line.Unidad == "" {
		line.Unidad = "NIU"
	}

	gravado := group == catalog.GroupGravado || catalog.IsGravadoGratuito(line.TipAfeIgv)
	switch {
	case !gravado:
		line.PorcentajeIgv = decimal.Zero
	case line.TipAfeIgv == catalog.AfectacionIVAP && line.PorcentajeIgv.IsZero():
		line.PorcentajeIgv = ivapRate
	case line.PorcentajeIgv.IsZero():
		line.PorcentajeIgv = rates.IGV
	}

	valorVenta := line.Cantidad.Mul(line.MtoValorUnitario)
	line.MtoValorVenta = valorVenta

	line.MtoBaseIsc = decimal.Zero
	line.Isc = decimal.Zero
	if line.PorcentajeIsc.IsPositive() && group != catalog.GroupExportacion {
		line.MtoBaseIsc = valorVenta
		line.Isc = valorVenta.Mul(line.PorcentajeIsc).Div(hundred)
		if line.TipSisIsc == "" {
			line.TipSisIsc = "01"
		}
	}

	line.MtoBaseIgv = valorVenta.Add(line.Isc)
	line.Igv = decimal.Zero
	if gravado {
		line.Igv = line.MtoBaseIgv.Mul(line.PorcentajeIgv).Div(hundred)
	}

	line.Icbper = decimal.Zero
	if line.CantidadBolsas.IsPositive() {
		if line.FactorIcbper.IsZero() {
			line.FactorIcbper = rates.ICBPERFactor
		}
		line.Icbper = line.CantidadBolsas.Mul(line.FactorIcbper)
	}

	line.TotalImpuestos = line.Igv.Add(line.Isc).Add(line.Icbper)
	line.MtoPrecioUnitario = valorVenta.Add(line.Isc).Add(line.Igv).Div(line.Cantidad)

	line.MtoValorGratuito = decimal.Zero
	if group == catalog.GroupGratuito {
		line.MtoValorGratuito = valorVenta
	}
	return line, nil
}

// CalculateLines calcula todas las líneas; se detiene en la primera inválida.
func CalculateLines(lines []entity.DocumentLine, tipoOperacion string, rates TaxRates) ([]entity.DocumentLine, error) {
	out := make([]entity.DocumentLine, len(lines))
	for i, l := range lines {
		c, err := CalculateLine(l, tipoOperacion, rates)
		if err != nil {
			return nil, fmt.Errorf("línea %d: %w", i+1, err)
		}
		out[i] = c
	}
	return out, nil
}

// Totals totales del comprobante redondeados a 2 decimales.
type Totals struct {
	Gravadas       decimal.Decimal
	Exoneradas     decimal.Decimal
	Inafectas      decimal.Decimal
	Exportacion    decimal.Decimal
	Gratuitas      decimal.Decimal
	IGV            decimal.Decimal
	IGVGratuitas   decimal.Decimal
	ISC            decimal.Decimal
	ICBPER         decimal.Decimal
	TotalImpuestos decimal.Decimal
	ValorVenta     decimal.Decimal
	SubTotal       decimal.Decimal
	Total          decimal.Decimal
}

// CalculateTotals agrega las líneas ya calculadas por grupo de afectación.
// Las transferencias gratuitas no suman al total a pagar.
func CalculateTotals(lines []entity.DocumentLine) Totals {
	var t Totals
	for _, l := range lines {
		group := catalog.Affectations[l.TipAfeIgv]
		switch group {
		case catalog.GroupGravado:
			t.Gravadas = t.Gravadas.Add(l.MtoValorVenta)
			t.IGV = t.IGV.Add(l.Igv)
			t.ISC = t.ISC.Add(l.Isc)
		case catalog.GroupExonerado:
			t.Exoneradas = t.Exoneradas.Add(l.MtoValorVenta)
			t.ISC = t.ISC.Add(l.Isc)
		case catalog.GroupInafecto:
			t.Inafectas = t.Inafectas.Add(l.MtoValorVenta)
			t.ISC = t.ISC.Add(l.Isc)
		case catalog.GroupExportacion:
			t.Exportacion = t.Exportacion.Add(l.MtoValorVenta)
		case catalog.GroupGratuito:
			t.Gratuitas = t.Gratuitas.Add(l.MtoValorVenta)
			t.IGVGratuitas = t.IGVGratuitas.Add(l.Igv)
		}
		t.ICBPER = t.ICBPER.Add(l.Icbper)
	}

	t.Gravadas = t.Gravadas.Round(2)
	t.Exoneradas = t.Exoneradas.Round(2)
	t.Inafectas = t.Inafectas.Round(2)
	t.Exportacion = t.Exportacion.Round(2)
	t.Gratuitas = t.Gratuitas.Round(2)
	t.IGV = t.IGV.Round(2)
	t.IGVGratuitas = t.IGVGratuitas.Round(2)
	t.ISC = t.ISC.Round(2)
	t.ICBPER = t.ICBPER.Round(2)

	t.ValorVenta = t.Gravadas.Add(t.Exoneradas).Add(t.Inafectas).Add(t.Exportacion)
	t.TotalImpuestos = t.IGV.Add(t.ISC).Add(t.ICBPER)
	t.SubTotal = t.ValorVenta.Add(t.TotalImpuestos)
	t.Total = t.SubTotal
	return t
}

// ApplyTotals copia los totales al comprobante.
func ApplyTotals(doc *entity.Document, t Totals) {
	doc.MtoOperGravadas = t.Gravadas
	doc.MtoOperExoneradas = t.Exoneradas
	doc.MtoOperInafectas = t.Inafectas
	doc.MtoOperExportacion = t.Exportacion
	doc.MtoOperGratuitas = t.Gratuitas
	doc.MtoIGV = t.IGV
	doc.MtoIGVGratuitas = t.IGVGratuitas
	doc.MtoISC = t.ISC
	doc.MtoICBPER = t.ICBPER
	doc.TotalImpuestos = t.TotalImpuestos
	doc.ValorVenta = t.ValorVenta
	doc.SubTotal = t.SubTotal
	doc.MtoImpVenta = t.Total
}
