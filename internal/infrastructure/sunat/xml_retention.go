package sunat

import (
	"fmt"
	"strconv"

	"github.com/jhoicas/facturacion-sunat-api/internal/application/billing"
	"github.com/jhoicas/facturacion-sunat-api/pkg/sunat"
)

// writeRetention comprobante de retención (20).
func (s *XMLBuilderService) writeRetention(w *ublWriter, ctx *billing.XMLContext) error {
	doc := ctx.Document
	r := doc.Retention
	if r == nil || len(r.Items) == 0 {
		return fmt.Errorf("sunat: la retención %s no tiene comprobantes relacionados", doc.Numero)
	}
	if doc.Client == nil {
		return fmt.Errorf("sunat: la retención %s no tiene proveedor", doc.Numero)
	}
	cur := sunat.CurrencyPEN

	w.root("Retention", NsRetention, "xmlns:sac", NsSac)
	w.extensions()
	w.elem("cbc:UBLVersionID", "2.0")
	w.elem("cbc:CustomizationID", "1.0")
	w.signatureRef(ctx.Company)
	w.elem("cbc:ID", doc.Numero)
	w.elem("cbc:IssueDate", formatDate(doc.FechaEmision))
	w.elem("cbc:IssueTime", formatTime(doc.FechaEmision))

	w.start("cac:AgentParty")
	w.party(sunat.IdentityRUC, ctx.Company.RUC, ctx.Company.NombreComercial, ctx.Company.RazonSocial, nil, "")
	w.end("cac:AgentParty")
	w.start("cac:ReceiverParty")
	w.party(doc.Client.TipoDocumento, doc.Client.NumeroDocumento, "", doc.Client.RazonSocial, nil, "")
	w.end("cac:ReceiverParty")

	w.elem("sac:SUNATRetentionSystemCode", r.Regimen)
	w.elem("sac:SUNATRetentionPercent", formatPercent(r.Tasa))
	if doc.Observacion != "" {
		w.elem("cbc:Note", doc.Observacion)
	}
	w.amount("cbc:TotalInvoiceAmount", r.ImporteTotalRetenido, cur)
	w.amount("sac:SUNATTotalPaid", r.ImporteTotalPagado, cur)

	for i, item := range r.Items {
		w.start("sac:SUNATRetentionDocumentReference")
		w.elem("cbc:ID", item.NumeroDocumento, "schemeID", item.TipoDocumento)
		w.elem("cbc:IssueDate", formatDate(item.FechaEmision))
		w.amount("cbc:TotalInvoiceAmount", item.ImporteTotal, item.Moneda)
		w.start("cac:Payment")
		w.elem("cbc:ID", strconv.Itoa(i+1))
		w.amount("cbc:PaidAmount", item.ImportePagado, item.Moneda)
		w.elem("cbc:PaidDate", formatDate(item.FechaPago))
		w.end("cac:Payment")
		w.start("sac:SUNATRetentionInformation")
		w.amount("sac:SUNATRetentionAmount", item.ImporteRetenido, cur)
		w.elem("sac:SUNATRetentionDate", formatDate(item.FechaPago))
		w.amount("sac:SUNATNetTotalPaid", item.ImporteNetoPagado, cur)
		w.end("sac:SUNATRetentionInformation")
		w.end("sac:SUNATRetentionDocumentReference")
	}
	w.end("Retention")
	return nil
}
