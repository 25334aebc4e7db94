package sunat

import (
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/jhoicas/facturacion-sunat-api/internal/application/billing"
	"github.com/jhoicas/facturacion-sunat-api/internal/domain/entity"
	"github.com/jhoicas/facturacion-sunat-api/pkg/sunat"
)

// Leyendas (catálogo 52).
const (
	leyendaDetraccion = "2006"
	leyendaPercepcion = "2000"
)

// writeInvoice factura (01) y boleta (03).
func (s *XMLBuilderService) writeInvoice(w *ublWriter, ctx *billing.XMLContext) error {
	doc := ctx.Document
	if len(doc.Lines) == 0 {
		return fmt.Errorf("sunat: el comprobante %s no tiene líneas", doc.Numero)
	}
	tipoOperacion := doc.TipoOperacion
	if tipoOperacion == "" {
		tipoOperacion = sunat.OperacionVentaInterna
	}

	w.root("Invoice", NsInvoice)
	w.extensions()
	w.elem("cbc:UBLVersionID", "2.1")
	w.elem("cbc:CustomizationID", "2.0")
	w.elem("cbc:ID", doc.Numero)
	w.elem("cbc:IssueDate", formatDate(doc.FechaEmision))
	w.elem("cbc:IssueTime", formatTime(doc.FechaEmision))
	if doc.FechaVencimiento != nil {
		w.elem("cbc:DueDate", formatDate(*doc.FechaVencimiento))
	}
	w.elem("cbc:InvoiceTypeCode", doc.TipoDocumento, "listID", tipoOperacion)
	writeLegends(w, doc)
	w.elem("cbc:DocumentCurrencyCode", doc.Moneda)
	w.signatureRef(ctx.Company)
	w.supplier("cac:AccountingSupplierParty", ctx.Company, ctx.Branch)
	w.customer("cac:AccountingCustomerParty", doc.Client)

	if doc.DetraccionCodigo != "" {
		w.start("cac:PaymentMeans")
		w.elem("cbc:ID", "Detraccion")
		w.elem("cbc:PaymentMeansCode", paymentMeansOrDefault(doc.MedioPago))
		if doc.DetraccionCuenta != "" {
			w.start("cac:PayeeFinancialAccount")
			w.elem("cbc:ID", doc.DetraccionCuenta)
			w.end("cac:PayeeFinancialAccount")
		}
		w.end("cac:PaymentMeans")

		w.start("cac:PaymentTerms")
		w.elem("cbc:ID", "Detraccion")
		w.elem("cbc:PaymentMeansID", doc.DetraccionCodigo)
		w.elem("cbc:PaymentPercent", formatPercent(doc.DetraccionPorcentaje))
		w.amount("cbc:Amount", doc.MtoDetraccion, sunat.CurrencyPEN)
		w.end("cac:PaymentTerms")
	}
	if doc.TipoDocumento == sunat.DocFactura {
		forma := doc.FormaPago
		if forma == "" {
			forma = "Contado"
		}
		w.start("cac:PaymentTerms")
		w.elem("cbc:ID", "FormaPago")
		w.elem("cbc:PaymentMeansID", forma)
		if forma == "Credito" {
			w.amount("cbc:Amount", payableAfterDetraction(doc), doc.Moneda)
		}
		w.end("cac:PaymentTerms")
		if forma == "Credito" && doc.FechaVencimiento != nil {
			w.start("cac:PaymentTerms")
			w.elem("cbc:ID", "FormaPago")
			w.elem("cbc:PaymentMeansID", "Cuota001")
			w.amount("cbc:Amount", payableAfterDetraction(doc), doc.Moneda)
			w.elem("cbc:PaymentDueDate", formatDate(*doc.FechaVencimiento))
			w.end("cac:PaymentTerms")
		}
	}
	if doc.PercepcionCodigo != "" {
		w.start("cac:AllowanceCharge")
		w.elem("cbc:ChargeIndicator", "true")
		w.elem("cbc:AllowanceChargeReasonCode", doc.PercepcionCodigo)
		w.elem("cbc:MultiplierFactorNumeric", doc.PercepcionPorcentaje.Div(decimal.NewFromInt(100)).String())
		w.amount("cbc:Amount", doc.MtoPercepcion, sunat.CurrencyPEN)
		w.amount("cbc:BaseAmount", doc.MtoImpVenta, sunat.CurrencyPEN)
		w.end("cac:AllowanceCharge")
	}

	writeDocumentTaxTotal(w, doc)
	writeMonetaryTotal(w, "cac:LegalMonetaryTotal", doc)
	for i, line := range doc.Lines {
		writeLine(w, "cac:InvoiceLine", "cbc:InvoicedQuantity", i+1, line, doc.Moneda)
	}
	w.end("Invoice")
	return nil
}

// writeNote nota de crédito (07) y débito (08).
func (s *XMLBuilderService) writeNote(w *ublWriter, ctx *billing.XMLContext) error {
	doc := ctx.Document
	if doc.Note == nil {
		return fmt.Errorf("sunat: la nota %s no referencia un comprobante", doc.Numero)
	}
	if len(doc.Lines) == 0 {
		return fmt.Errorf("sunat: la nota %s no tiene líneas", doc.Numero)
	}
	root, ns, lineTag, qtyTag, totalTag := "CreditNote", NsCreditNote, "cac:CreditNoteLine", "cbc:CreditedQuantity", "cac:LegalMonetaryTotal"
	if doc.Kind == entity.KindDebitNote {
		root, ns, lineTag, qtyTag, totalTag = "DebitNote", NsDebitNote, "cac:DebitNoteLine", "cbc:DebitedQuantity", "cac:RequestedMonetaryTotal"
	}

	w.root(root, ns)
	w.extensions()
	w.elem("cbc:UBLVersionID", "2.1")
	w.elem("cbc:CustomizationID", "2.0")
	w.elem("cbc:ID", doc.Numero)
	w.elem("cbc:IssueDate", formatDate(doc.FechaEmision))
	w.elem("cbc:IssueTime", formatTime(doc.FechaEmision))
	writeLegends(w, doc)
	w.elem("cbc:DocumentCurrencyCode", doc.Moneda)

	w.start("cac:DiscrepancyResponse")
	w.elem("cbc:ReferenceID", doc.Note.NumDocAfectado)
	w.elem("cbc:ResponseCode", doc.Note.CodMotivo)
	w.elem("cbc:Description", doc.Note.DesMotivo)
	w.end("cac:DiscrepancyResponse")

	w.start("cac:BillingReference")
	w.start("cac:InvoiceDocumentReference")
	w.elem("cbc:ID", doc.Note.NumDocAfectado)
	w.elem("cbc:DocumentTypeCode", doc.Note.TipoDocAfectado)
	w.end("cac:InvoiceDocumentReference")
	w.end("cac:BillingReference")

	w.signatureRef(ctx.Company)
	w.supplier("cac:AccountingSupplierParty", ctx.Company, ctx.Branch)
	w.customer("cac:AccountingCustomerParty", doc.Client)

	writeDocumentTaxTotal(w, doc)
	writeMonetaryTotal(w, totalTag, doc)
	for i, line := range doc.Lines {
		writeLine(w, lineTag, qtyTag, i+1, line, doc.Moneda)
	}
	w.end(root)
	return nil
}

func writeLegends(w *ublWriter, doc *entity.Document) {
	if doc.DetraccionCodigo != "" {
		w.elem("cbc:Note", "Operación sujeta a detracción", "languageLocaleID", leyendaDetraccion)
	}
	if doc.PercepcionCodigo != "" {
		w.elem("cbc:Note", "Comprobante de percepción", "languageLocaleID", leyendaPercepcion)
	}
	if doc.Observacion != "" {
		w.elem("cbc:Note", doc.Observacion)
	}
}

func paymentMeansOrDefault(code string) string {
	if code == "" {
		return "001"
	}
	return code
}

func payableAfterDetraction(doc *entity.Document) decimal.Decimal {
	if doc.DetraccionCodigo != "" && doc.MtoNetoPagar.IsPositive() {
		return doc.MtoNetoPagar
	}
	return doc.MtoImpVenta
}

// writeDocumentTaxTotal cac:TaxTotal global: un subtotal por base con importe.
func writeDocumentTaxTotal(w *ublWriter, doc *entity.Document) {
	cur := doc.Moneda
	w.start("cac:TaxTotal")
	w.amount("cbc:TaxAmount", doc.TotalImpuestos, cur)

	if doc.MtoISC.IsPositive() {
		baseISC := decimal.Zero
		for _, l := range doc.Lines {
			baseISC = baseISC.Add(l.MtoBaseIsc)
		}
		w.taxSubtotal(baseISC, doc.MtoISC, cur, sunat.TributoISC)
	}
	wrote := false
	if doc.MtoOperGravadas.IsPositive() {
		w.taxSubtotal(doc.MtoOperGravadas, doc.MtoIGV, cur, sunat.TributoIGV)
		wrote = true
	}
	if doc.MtoOperExoneradas.IsPositive() {
		w.taxSubtotal(doc.MtoOperExoneradas, decimal.Zero, cur, sunat.TributoExonerado)
		wrote = true
	}
	if doc.MtoOperInafectas.IsPositive() {
		w.taxSubtotal(doc.MtoOperInafectas, decimal.Zero, cur, sunat.TributoInafecto)
		wrote = true
	}
	if doc.MtoOperExportacion.IsPositive() {
		w.taxSubtotal(doc.MtoOperExportacion, decimal.Zero, cur, sunat.TributoExport)
		wrote = true
	}
	if doc.MtoOperGratuitas.IsPositive() {
		w.taxSubtotal(doc.MtoOperGratuitas, doc.MtoIGVGratuitas, cur, sunat.TributoGratuito)
		wrote = true
	}
	if !wrote {
		w.taxSubtotal(decimal.Zero, decimal.Zero, cur, sunat.TributoIGV)
	}
	if doc.MtoICBPER.IsPositive() {
		w.start("cac:TaxSubtotal")
		w.amount("cbc:TaxAmount", doc.MtoICBPER, cur)
		w.start("cac:TaxCategory")
		w.taxScheme(sunat.TributoICBPER)
		w.end("cac:TaxCategory")
		w.end("cac:TaxSubtotal")
	}
	w.end("cac:TaxTotal")
}

func writeMonetaryTotal(w *ublWriter, tag string, doc *entity.Document) {
	w.start(tag)
	w.amount("cbc:LineExtensionAmount", doc.ValorVenta, doc.Moneda)
	w.amount("cbc:TaxInclusiveAmount", doc.SubTotal, doc.Moneda)
	w.amount("cbc:PayableAmount", doc.MtoImpVenta, doc.Moneda)
	w.end(tag)
}

// writeLine línea de detalle con precio de referencia y tributos.
func writeLine(w *ublWriter, tag, qtyTag string, n int, line entity.DocumentLine, cur string) {
	group := sunat.Affectations[line.TipAfeIgv]
	gratuito := group == sunat.GroupGratuito

	w.start(tag)
	w.elem("cbc:ID", strconv.Itoa(n))
	w.elem(qtyTag, formatQuantity(line.Cantidad), "unitCode", line.Unidad)
	w.amount("cbc:LineExtensionAmount", line.MtoValorVenta, cur)

	w.start("cac:PricingReference")
	w.start("cac:AlternativeConditionPrice")
	if gratuito {
		w.elem("cbc:PriceAmount", formatQuantity(line.MtoValorUnitario), "currencyID", cur)
		w.elem("cbc:PriceTypeCode", "02")
	} else {
		w.elem("cbc:PriceAmount", formatQuantity(line.MtoPrecioUnitario), "currencyID", cur)
		w.elem("cbc:PriceTypeCode", "01")
	}
	w.end("cac:AlternativeConditionPrice")
	w.end("cac:PricingReference")

	w.start("cac:TaxTotal")
	w.amount("cbc:TaxAmount", line.TotalImpuestos, cur)
	if line.Isc.IsPositive() {
		w.start("cac:TaxSubtotal")
		w.amount("cbc:TaxableAmount", line.MtoBaseIsc, cur)
		w.amount("cbc:TaxAmount", line.Isc, cur)
		w.start("cac:TaxCategory")
		w.elem("cbc:Percent", formatPercent(line.PorcentajeIsc))
		if line.TipSisIsc != "" {
			w.elem("cbc:TierRange", line.TipSisIsc)
		}
		w.taxScheme(sunat.TributoISC)
		w.end("cac:TaxCategory")
		w.end("cac:TaxSubtotal")
	}
	w.start("cac:TaxSubtotal")
	w.amount("cbc:TaxableAmount", line.MtoBaseIgv, cur)
	w.amount("cbc:TaxAmount", line.Igv, cur)
	w.start("cac:TaxCategory")
	w.elem("cbc:Percent", formatPercent(line.PorcentajeIgv))
	w.elem("cbc:TaxExemptionReasonCode", line.TipAfeIgv)
	w.taxScheme(lineScheme(line.TipAfeIgv, group))
	w.end("cac:TaxCategory")
	w.end("cac:TaxSubtotal")
	if line.Icbper.IsPositive() {
		w.start("cac:TaxSubtotal")
		w.amount("cbc:TaxAmount", line.Icbper, cur)
		w.elem("cbc:BaseUnitMeasure", formatQuantity(line.CantidadBolsas), "unitCode", "NIU")
		w.start("cac:TaxCategory")
		w.elem("cbc:PerUnitAmount", formatAmount(line.FactorIcbper), "currencyID", cur)
		w.taxScheme(sunat.TributoICBPER)
		w.end("cac:TaxCategory")
		w.end("cac:TaxSubtotal")
	}
	w.end("cac:TaxTotal")

	w.start("cac:Item")
	w.elem("cbc:Description", line.Descripcion)
	if line.Codigo != "" {
		w.start("cac:SellersItemIdentification")
		w.elem("cbc:ID", line.Codigo)
		w.end("cac:SellersItemIdentification")
	}
	if line.CodigoSunat != "" {
		w.start("cac:CommodityClassification")
		w.elem("cbc:ItemClassificationCode", line.CodigoSunat)
		w.end("cac:CommodityClassification")
	}
	w.end("cac:Item")

	w.start("cac:Price")
	price := line.MtoValorUnitario
	if gratuito {
		price = decimal.Zero
	}
	w.elem("cbc:PriceAmount", formatQuantity(price), "currencyID", cur)
	w.end("cac:Price")
	w.end(tag)
}

func lineScheme(code string, group sunat.AffectationGroup) sunat.TaxScheme {
	if code == sunat.AfectacionIVAP {
		return sunat.TributoIVAP
	}
	return sunat.TaxSchemeForGroup(group)
}
