package billing

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/jhoicas/facturacion-sunat-api/internal/domain/entity"
	"github.com/jhoicas/facturacion-sunat-api/pkg/logger"
)

// DocumentEvent datos del comprobante enviados a los webhooks.
type DocumentEvent struct {
	DocumentID      string          `json:"document_id"`
	Kind            string          `json:"kind"`
	TipoDocumento   string          `json:"tipo_documento"`
	Numero          string          `json:"numero"`
	Serie           string          `json:"serie"`
	Correlativo     int64           `json:"correlativo"`
	Moneda          string          `json:"moneda,omitempty"`
	MtoImpVenta     decimal.Decimal `json:"mto_imp_venta"`
	SunatStatus     string          `json:"sunat_status"`
	SunatCode       string          `json:"sunat_code,omitempty"`
	SunatMessage    string          `json:"sunat_message,omitempty"`
	EstadoAnulacion string          `json:"estado_anulacion,omitempty"`
	Client          *EventClient    `json:"client,omitempty"`
}

// EventClient resumen del adquiriente.
type EventClient struct {
	TipoDoc     string `json:"tipo_doc"`
	NumDoc      string `json:"num_doc"`
	RazonSocial string `json:"razon_social"`
}

// NewDocumentEvent arma el payload a partir del comprobante.
func NewDocumentEvent(doc *entity.Document) DocumentEvent {
	ev := DocumentEvent{
		DocumentID:      doc.ID,
		Kind:            string(doc.Kind),
		TipoDocumento:   doc.TipoDocumento,
		Numero:          doc.Numero,
		Serie:           doc.Serie,
		Correlativo:     doc.Correlativo,
		Moneda:          doc.Moneda,
		MtoImpVenta:     doc.MtoImpVenta,
		SunatStatus:     doc.SunatStatus,
		SunatCode:       doc.SunatCode,
		SunatMessage:    doc.SunatMessage,
		EstadoAnulacion: doc.EstadoAnulacion,
	}
	if doc.Client != nil {
		ev.Client = &EventClient{
			TipoDoc:     doc.Client.TipoDocumento,
			NumDoc:      doc.Client.NumeroDocumento,
			RazonSocial: doc.Client.RazonSocial,
		}
	}
	return ev
}

// notifier publica eventos sin propagar errores al flujo de facturación.
type notifier struct {
	events EventPublisher
	log    *logger.Logger
}

func (n notifier) publish(ctx context.Context, event string, doc *entity.Document) {
	if n.events == nil || doc == nil {
		return
	}
	if err := n.events.Trigger(ctx, doc.CompanyID, event, NewDocumentEvent(doc)); err != nil {
		n.log.Warn().Err(err).
			Str("event", event).Str("document_id", doc.ID).Str("company_id", doc.CompanyID).
			Msg("no se pudo encolar el webhook")
	}
}

// publishOutcome emite el evento que corresponde al estado SUNAT final.
func (n notifier) publishOutcome(ctx context.Context, doc *entity.Document) {
	switch doc.SunatStatus {
	case entity.SunatAceptado:
		n.publish(ctx, entity.EventDocumentAccepted, doc)
	case entity.SunatRechazado:
		n.publish(ctx, entity.EventDocumentRejected, doc)
	default:
		return
	}
	if doc.Kind == entity.KindDailySummary || doc.Kind == entity.KindVoided {
		n.publish(ctx, entity.EventSummaryProcessed, doc)
	}
}
