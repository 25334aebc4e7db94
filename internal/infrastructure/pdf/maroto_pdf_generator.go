// Package pdf genera la representación impresa de los comprobantes electrónicos SUNAT.
//
// Layout de la página A4:
//
//	┌─────────────────────────────────────────────────────────────┐
//	│  HEADER: Razón Social + dirección │ RUC + tipo + número      │
//	│  ─────────────────────────────────────────────────────────  │
//	│  ADQUIRIENTE: Nombre + documento + fecha / moneda            │
//	│  ─────────────────────────────────────────────────────────  │
//	│  TABLA: Cant | Unid | Descripción | V.Unit | Importe         │
//	│  ─────────────────────────────────────────────────────────  │
//	│  TOTALES: Gravadas / Exoneradas / IGV / ICBPER / TOTAL       │
//	│  ─────────────────────────────────────────────────────────  │
//	│  FOOTER: QR + hash + leyendas de detracción/percepción       │
//	└─────────────────────────────────────────────────────────────┘
package pdf

import (
	"fmt"
	"strings"

	maroto "github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/code"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/line"
	"github.com/johnfercher/maroto/v2/pkg/components/row"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/consts/pagesize"
	"github.com/johnfercher/maroto/v2/pkg/core"
	"github.com/johnfercher/maroto/v2/pkg/props"
	"github.com/shopspring/decimal"

	"github.com/jhoicas/facturacion-sunat-api/internal/application/billing"
	"github.com/jhoicas/facturacion-sunat-api/internal/domain/entity"
	domsunat "github.com/jhoicas/facturacion-sunat-api/internal/domain/sunat"
	"github.com/jhoicas/facturacion-sunat-api/pkg/sunat"
)

// ── Paleta de colores ─────────────────────────────────────────────────────────

var (
	colorPrimary = &props.Color{Red: 150, Green: 20, Blue: 30}
	colorGray    = &props.Color{Red: 100, Green: 100, Blue: 100}
)

var titles = map[entity.DocumentKind]string{
	entity.KindInvoice:       "FACTURA ELECTRÓNICA",
	entity.KindBoleta:        "BOLETA DE VENTA ELECTRÓNICA",
	entity.KindCreditNote:    "NOTA DE CRÉDITO ELECTRÓNICA",
	entity.KindDebitNote:     "NOTA DE DÉBITO ELECTRÓNICA",
	entity.KindDispatchGuide: "GUÍA DE REMISIÓN REMITENTE ELECTRÓNICA",
	entity.KindRetention:     "COMPROBANTE DE RETENCIÓN ELECTRÓNICO",
	entity.KindSalesNote:     "NOTA DE VENTA",
}

// ── Generator ─────────────────────────────────────────────────────────────────

// MarotoPDFGenerator implementa billing.PDFGenerator usando Maroto v2.
type MarotoPDFGenerator struct{}

// NewMarotoPDFGenerator construye el generador.
func NewMarotoPDFGenerator() *MarotoPDFGenerator { return &MarotoPDFGenerator{} }

var _ billing.PDFGenerator = (*MarotoPDFGenerator)(nil)

// GenerateDocumentPDF genera el PDF y devuelve sus bytes. Resúmenes y bajas no tienen representación impresa.
func (g *MarotoPDFGenerator) GenerateDocumentPDF(doc *entity.Document, company *entity.Company, branch *entity.Branch) ([]byte, error) {
	title, ok := titles[doc.Kind]
	if !ok {
		return nil, fmt.Errorf("pdf: la clase %q no tiene representación impresa", doc.Kind)
	}
	cfg := config.NewBuilder().
		WithPageSize(pagesize.A4).
		WithLeftMargin(10).WithRightMargin(10).
		WithTopMargin(10).WithBottomMargin(10).
		WithDefaultFont(&props.Font{Family: "helvetica", Size: 9}).
		WithTitle(title+" "+doc.Numero, true).
		WithAuthor(company.RazonSocial, true).
		Build()

	m := maroto.New(cfg)

	m.AddRows(headerRow(doc, company, branch, title))
	m.AddRows(line.NewRow(1, props.Line{Color: colorPrimary, Thickness: 0.5}))
	m.AddRows(clientRow(doc))
	if doc.Note != nil {
		m.AddRows(noteRow(doc.Note))
	}
	m.AddRows(line.NewRow(1, props.Line{Color: colorPrimary, Thickness: 0.3}))

	m.AddRows(tableHeaderRow())
	for _, r := range tableDetailRows(doc) {
		m.AddRows(r)
	}

	if doc.Kind.HasMonetaryLines() {
		m.AddRows(line.NewRow(1, props.Line{Color: colorPrimary, Thickness: 0.3}))
		m.AddRows(totalsRow(doc))
	}

	m.AddRows(line.NewRow(3))
	m.AddRows(line.NewRow(1, props.Line{Color: colorGray, Thickness: 0.3}))
	for _, r := range footerRows(doc, company) {
		m.AddRows(r)
	}

	out, err := m.Generate()
	if err != nil {
		return nil, fmt.Errorf("pdf: generar documento: %w", err)
	}
	return out.GetBytes(), nil
}

// ── Secciones ─────────────────────────────────────────────────────────────────

// headerRow: emisor (izq) y recuadro RUC / tipo / número (der).
func headerRow(doc *entity.Document, company *entity.Company, branch *entity.Branch, title string) core.Row {
	direccion := company.Direccion
	if branch != nil && branch.Direccion != "" {
		direccion = branch.Direccion
	}
	return row.New(22).Add(
		col.New(7).Add(
			text.New(company.RazonSocial, props.Text{
				Style: fontstyle.Bold, Size: 13, Color: colorPrimary, Top: 1,
			}),
			text.New(company.NombreComercial, props.Text{
				Size: 9, Top: 8,
			}),
			text.New(nonEmpty(direccion, "—"), props.Text{
				Size: 8, Top: 14, Color: colorGray,
			}),
		),
		col.New(5).Add(
			text.New("RUC: "+company.RUC, props.Text{
				Style: fontstyle.Bold, Size: 10, Align: align.Center, Top: 1,
			}),
			text.New(title, props.Text{
				Style: fontstyle.Bold, Size: 8, Align: align.Center, Color: colorPrimary, Top: 8,
			}),
			text.New(doc.Numero, props.Text{
				Style: fontstyle.Bold, Size: 12, Align: align.Center, Top: 14,
			}),
		),
	)
}

func clientRow(doc *entity.Document) core.Row {
	name, ident := "CLIENTES VARIOS", "—"
	if c := doc.Client; c != nil {
		name = c.RazonSocial
		ident = identityLabel(c.TipoDocumento) + ": " + c.NumeroDocumento
	}
	fecha := doc.FechaEmision.In(domsunat.Lima).Format("02/01/2006")
	return row.New(16).Add(
		col.New(8).Add(
			text.New("ADQUIRIENTE", props.Text{
				Style: fontstyle.Bold, Size: 8, Color: colorPrimary, Top: 1,
			}),
			text.New(name, props.Text{Style: fontstyle.Bold, Size: 10, Top: 6}),
			text.New(ident, props.Text{Size: 8, Top: 12, Color: colorGray}),
		),
		col.New(4).Add(
			text.New("Fecha de emisión: "+fecha, props.Text{Size: 8, Align: align.Right, Top: 1}),
			text.New("Moneda: "+nonEmpty(doc.Moneda, sunat.CurrencyPEN), props.Text{Size: 8, Align: align.Right, Top: 6}),
			text.New(doc.FormaPago, props.Text{Size: 8, Align: align.Right, Top: 11}),
		),
	)
}

func noteRow(n *entity.NoteData) core.Row {
	return row.New(10).Add(col.New(12).Add(
		text.New(fmt.Sprintf("Documento afectado: %s   |   Motivo: %s - %s", n.NumDocAfectado, n.CodMotivo, n.DesMotivo),
			props.Text{Size: 8, Top: 2, Color: colorGray}),
	))
}

func tableHeaderRow() core.Row {
	h := func(label string, size int, a align.Type) core.Col {
		return col.New(size).Add(text.New(label, props.Text{
			Style: fontstyle.Bold, Size: 8, Align: a,
			Color: colorPrimary, Top: 2, Left: 1, Right: 1,
		}))
	}
	return row.New(8).Add(
		h("Cant.", 1, align.Center),
		h("Unid.", 1, align.Center),
		h("Descripción", 6, align.Left),
		h("V. Unit.", 2, align.Right),
		h("Importe", 2, align.Right),
	)
}

func tableDetailRows(doc *entity.Document) []core.Row {
	result := make([]core.Row, 0, len(doc.Lines))
	for _, l := range doc.Lines {
		result = append(result, row.New(7).Add(
			col.New(1).Add(text.New(l.Cantidad.String(), props.Text{Size: 8, Align: align.Center, Top: 1})),
			col.New(1).Add(text.New(l.Unidad, props.Text{Size: 8, Align: align.Center, Top: 1})),
			col.New(6).Add(text.New(l.Descripcion, props.Text{Size: 8, Align: align.Left, Top: 1, Left: 1})),
			col.New(2).Add(text.New(formatMoney(l.MtoValorUnitario), props.Text{Size: 8, Align: align.Right, Top: 1, Right: 1})),
			col.New(2).Add(text.New(formatMoney(l.MtoValorVenta), props.Text{Size: 8, Align: align.Right, Top: 1, Right: 1})),
		))
	}
	return result
}

// totalsRow: sólo se imprimen las bases con importe.
func totalsRow(doc *entity.Document) core.Row {
	symbol := currencySymbol(doc.Moneda)
	type total struct {
		label string
		value decimal.Decimal
	}
	items := []total{
		{"Op. gravadas:", doc.MtoOperGravadas},
		{"Op. exoneradas:", doc.MtoOperExoneradas},
		{"Op. inafectas:", doc.MtoOperInafectas},
		{"Exportación:", doc.MtoOperExportacion},
		{"Op. gratuitas:", doc.MtoOperGratuitas},
		{"ISC:", doc.MtoISC},
		{"IGV:", doc.MtoIGV},
		{"ICBPER:", doc.MtoICBPER},
	}
	labels := col.New(3)
	values := col.New(3)
	top := 0.0
	for _, it := range items {
		if it.value.IsZero() {
			continue
		}
		labels.Add(text.New(it.label, props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right, Right: 2, Top: top}))
		values.Add(text.New(symbol+" "+formatMoney(it.value), props.Text{Size: 9, Align: align.Right, Right: 1, Top: top}))
		top += 5
	}
	labels.Add(text.New("IMPORTE TOTAL:", props.Text{
		Style: fontstyle.Bold, Size: 10, Align: align.Right, Color: colorPrimary, Right: 2, Top: top,
	}))
	values.Add(text.New(symbol+" "+formatMoney(doc.MtoImpVenta), props.Text{
		Style: fontstyle.Bold, Size: 10, Align: align.Right, Color: colorPrimary, Right: 1, Top: top,
	}))

	return row.New(top+10).Add(col.New(6), labels, values)
}

// footerRows: QR con los datos de consulta, hash y leyendas.
func footerRows(doc *entity.Document, company *entity.Company) []core.Row {
	var rows []core.Row
	if doc.Kind == entity.KindSalesNote {
		return append(rows, row.New(10).Add(col.New(12).Add(
			text.New("Documento interno sin valor tributario.", props.Text{
				Style: fontstyle.Bold, Size: 9, Align: align.Center, Color: colorPrimary, Top: 2,
			}),
		)))
	}

	legend := []string{"Representación impresa de la " + strings.ToLower(titles[doc.Kind]) + "."}
	if doc.DetraccionCodigo != "" {
		legend = append(legend, fmt.Sprintf("Operación sujeta al SPOT (%s): detracción %s %s en la cuenta %s.",
			doc.DetraccionCodigo, currencySymbol(sunat.CurrencyPEN), formatMoney(doc.MtoDetraccion), nonEmpty(doc.DetraccionCuenta, "—")))
	}
	if doc.PercepcionCodigo != "" {
		legend = append(legend, fmt.Sprintf("Percepción %s%%: %s %s. Total a cobrar %s %s.",
			doc.PercepcionPorcentaje.String(), currencySymbol(sunat.CurrencyPEN), formatMoney(doc.MtoPercepcion),
			currencySymbol(sunat.CurrencyPEN), formatMoney(doc.MtoTotalConPercepcion)))
	}
	if doc.BancarizacionAdvertencia != "" {
		legend = append(legend, doc.BancarizacionAdvertencia)
	}
	if doc.HashCPE != "" {
		legend = append(legend, "Hash: "+doc.HashCPE)
	}

	legendCol := col.New(8)
	for i, l := range legend {
		legendCol.Add(text.New(l, props.Text{Size: 7.5, Top: float64(2 + i*6), Left: 3, Color: colorGray}))
	}
	rows = append(rows, row.New(40).Add(
		col.New(4).Add(code.NewQr(QRData(doc, company), props.Rect{Percent: 95, Center: true})),
		legendCol,
	))
	return rows
}

// QRData cadena del código QR: RUC|TIPO|SERIE|NUMERO|IGV|TOTAL|FECHA|TIPODOC|NUMDOC|HASH|
func QRData(doc *entity.Document, company *entity.Company) string {
	tipoCli, numCli := "", ""
	if doc.Client != nil {
		tipoCli, numCli = doc.Client.TipoDocumento, doc.Client.NumeroDocumento
	}
	parts := []string{
		company.RUC,
		doc.TipoDocumento,
		doc.Serie,
		fmt.Sprintf("%d", doc.Correlativo),
		doc.MtoIGV.StringFixed(2),
		doc.MtoImpVenta.StringFixed(2),
		doc.FechaEmision.In(domsunat.Lima).Format("2006-01-02"),
		tipoCli,
		numCli,
		doc.HashCPE,
	}
	return strings.Join(parts, "|") + "|"
}

// ── helpers ───────────────────────────────────────────────────────────────────

func nonEmpty(s, fallback string) string {
	if s != "" {
		return s
	}
	return fallback
}

func currencySymbol(moneda string) string {
	switch moneda {
	case sunat.CurrencyUSD:
		return "US$"
	case sunat.CurrencyEUR:
		return "€"
	}
	return "S/"
}

func identityLabel(tipo string) string {
	switch tipo {
	case sunat.IdentityRUC:
		return "RUC"
	case sunat.IdentityDNI:
		return "DNI"
	case sunat.IdentityCarnetExt:
		return "CE"
	case sunat.IdentityPasaporte:
		return "PAS"
	}
	return "DOC"
}

// formatMoney dos decimales con separador de miles: 1234567.5 → "1,234,567.50".
func formatMoney(d decimal.Decimal) string {
	s := d.Abs().StringFixed(2)
	intPart, frac := s[:len(s)-3], s[len(s)-3:]
	n := len(intPart)
	buf := make([]byte, 0, n+n/3)
	for i, c := range []byte(intPart) {
		if i > 0 && (n-i)%3 == 0 {
			buf = append(buf, ',')
		}
		buf = append(buf, c)
	}
	if d.IsNegative() {
		return "-" + string(buf) + frac
	}
	return string(buf) + frac
}
