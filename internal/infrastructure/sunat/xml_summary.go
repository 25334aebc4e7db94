package sunat

import (
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/jhoicas/facturacion-sunat-api/internal/application/billing"
	"github.com/jhoicas/facturacion-sunat-api/internal/domain/entity"
	"github.com/jhoicas/facturacion-sunat-api/pkg/sunat"
)

// Instrucciones de pago del resumen diario por base imponible.
const (
	instructionGravado     = "01"
	instructionExonerado   = "02"
	instructionInafecto    = "03"
	instructionExportacion = "04"
	instructionGratuito    = "05"
)

// writeSummary resumen diario de boletas (RC).
func (s *XMLBuilderService) writeSummary(w *ublWriter, ctx *billing.XMLContext) error {
	doc := ctx.Document
	if doc.Summary == nil || len(doc.Summary.Items) == 0 {
		return fmt.Errorf("sunat: el resumen %s no tiene ítems", doc.Numero)
	}

	w.root("SummaryDocuments", NsSummary, "xmlns:sac", NsSac)
	w.extensions()
	w.elem("cbc:UBLVersionID", "2.0")
	w.elem("cbc:CustomizationID", "1.1")
	w.elem("cbc:ID", doc.Numero)
	w.elem("cbc:ReferenceDate", formatDate(doc.Summary.FechaReferencia))
	w.elem("cbc:IssueDate", formatDate(doc.FechaEmision))
	w.signatureRef(ctx.Company)
	writeLegacySupplier(w, ctx.Company)

	for i, item := range doc.Summary.Items {
		cur := item.Moneda
		if cur == "" {
			cur = sunat.CurrencyPEN
		}
		w.start("sac:SummaryDocumentsLine")
		w.elem("cbc:LineID", strconv.Itoa(i+1))
		w.elem("cbc:DocumentTypeCode", item.TipoDocumento)
		w.elem("cbc:ID", item.SerieNumero)
		if item.ClienteNumDoc != "" {
			w.start("cac:AccountingCustomerParty")
			w.elem("cbc:CustomerAssignedAccountID", item.ClienteNumDoc)
			w.elem("cbc:AdditionalAccountID", item.ClienteTipoDoc)
			w.end("cac:AccountingCustomerParty")
		}
		if item.DocReferencia != "" {
			w.start("cac:BillingReference")
			w.start("cac:InvoiceDocumentReference")
			w.elem("cbc:ID", item.DocReferencia)
			w.elem("cbc:DocumentTypeCode", item.TipoDocReferencia)
			w.end("cac:InvoiceDocumentReference")
			w.end("cac:BillingReference")
		}
		w.start("cac:Status")
		w.elem("cbc:ConditionCode", item.Estado)
		w.end("cac:Status")
		w.amount("sac:TotalAmount", item.Total, cur)

		writeBillingPayment(w, item.MtoOperGravadas, instructionGravado, cur)
		writeBillingPayment(w, item.MtoOperExoneradas, instructionExonerado, cur)
		writeBillingPayment(w, item.MtoOperInafectas, instructionInafecto, cur)
		writeBillingPayment(w, item.MtoOperExportacion, instructionExportacion, cur)
		writeBillingPayment(w, item.MtoOperGratuitas, instructionGratuito, cur)

		if item.MtoISC.IsPositive() {
			writeSummaryTax(w, item.MtoISC, cur, sunat.TributoISC)
		}
		writeSummaryTax(w, item.MtoIGV, cur, sunat.TributoIGV)
		if item.MtoICBPER.IsPositive() {
			writeSummaryTax(w, item.MtoICBPER, cur, sunat.TributoICBPER)
		}
		w.end("sac:SummaryDocumentsLine")
	}
	w.end("SummaryDocuments")
	return nil
}

func writeBillingPayment(w *ublWriter, amount decimal.Decimal, instruction, cur string) {
	if !amount.IsPositive() {
		return
	}
	w.start("sac:BillingPayment")
	w.amount("cbc:PaidAmount", amount, cur)
	w.elem("cbc:InstructionID", instruction)
	w.end("sac:BillingPayment")
}

func writeSummaryTax(w *ublWriter, amount decimal.Decimal, cur string, scheme sunat.TaxScheme) {
	w.start("cac:TaxTotal")
	w.amount("cbc:TaxAmount", amount, cur)
	w.start("cac:TaxSubtotal")
	w.amount("cbc:TaxAmount", amount, cur)
	w.start("cac:TaxCategory")
	w.taxScheme(scheme)
	w.end("cac:TaxCategory")
	w.end("cac:TaxSubtotal")
	w.end("cac:TaxTotal")
}

// writeVoided comunicación de baja (RA).
func (s *XMLBuilderService) writeVoided(w *ublWriter, ctx *billing.XMLContext) error {
	doc := ctx.Document
	if doc.Voided == nil || len(doc.Voided.Items) == 0 {
		return fmt.Errorf("sunat: la comunicación de baja %s no tiene ítems", doc.Numero)
	}

	w.root("VoidedDocuments", NsVoided, "xmlns:sac", NsSac)
	w.extensions()
	w.elem("cbc:UBLVersionID", "2.0")
	w.elem("cbc:CustomizationID", "1.0")
	w.elem("cbc:ID", doc.Numero)
	w.elem("cbc:ReferenceDate", formatDate(doc.Voided.FechaReferencia))
	w.elem("cbc:IssueDate", formatDate(doc.FechaEmision))
	w.signatureRef(ctx.Company)
	writeLegacySupplier(w, ctx.Company)

	for i, item := range doc.Voided.Items {
		w.start("sac:VoidedDocumentsLine")
		w.elem("cbc:LineID", strconv.Itoa(i+1))
		w.elem("cbc:DocumentTypeCode", item.TipoDocumento)
		w.elem("sac:DocumentSerialID", item.Serie)
		w.elem("sac:DocumentNumberID", strconv.FormatInt(item.Correlativo, 10))
		w.elem("sac:VoidReasonDescription", item.Motivo)
		w.end("sac:VoidedDocumentsLine")
	}
	w.end("VoidedDocuments")
	return nil
}

// writeLegacySupplier emisor en el formato UBL 2.0 de resúmenes y bajas.
func writeLegacySupplier(w *ublWriter, company *entity.Company) {
	w.start("cac:AccountingSupplierParty")
	w.elem("cbc:CustomerAssignedAccountID", company.RUC)
	w.elem("cbc:AdditionalAccountID", sunat.IdentityRUC)
	w.start("cac:Party")
	w.start("cac:PartyLegalEntity")
	w.elem("cbc:RegistrationName", company.RazonSocial)
	w.end("cac:PartyLegalEntity")
	w.end("cac:Party")
	w.end("cac:AccountingSupplierParty")
}
