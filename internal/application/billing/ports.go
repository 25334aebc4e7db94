package billing

import (
	"context"

	"github.com/jhoicas/facturacion-sunat-api/internal/domain/entity"
	"github.com/jhoicas/facturacion-sunat-api/internal/domain/repository"
)

// BillingTxRunner ejecuta una función dentro de una transacción que incluye el contador
// de correlativos y los comprobantes. Si fn retorna error se hace rollback.
type BillingTxRunner interface {
	RunBilling(ctx context.Context, fn func(
		correlativeRepo repository.CorrelativeRepository,
		documentRepo repository.DocumentRepository,
	) error) error
}

// XMLContext datos necesarios para serializar un comprobante en UBL 2.1.
type XMLContext struct {
	Document *entity.Document
	Company  *entity.Company
	Branch   *entity.Branch
}

// XMLBuilder construye el XML UBL 2.1 sin firmar del comprobante.
type XMLBuilder interface {
	Build(ctx *XMLContext) ([]byte, error)
}

// Credentials clave SOL del emisor para los servicios de SUNAT.
type Credentials struct {
	RUC      string
	User     string // usuario secundario sin RUC
	Password string
}

// SendRequest paquete ZIP listo para enviar.
type SendRequest struct {
	Credentials   Credentials
	TipoDocumento string
	FileName      string // nombre sin extensión: RUC-TIPO-SERIE-CORRELATIVO
	Zip           []byte
}

// CDRResponse resultado de un envío síncrono o de una consulta de ticket terminada.
// Fault indica un SOAP fault (rechazo sin CDR); no es un error de conexión.
type CDRResponse struct {
	Code        string
	Description string
	Notes       []string
	CDRZip      []byte
	Fault       bool
	Raw         []byte
}

// TicketResponse resultado de un envío asíncrono.
type TicketResponse struct {
	Ticket string
}

// StatusResponse resultado de getStatus: 0 procesado, 98 en proceso, 99 procesado con errores.
type StatusResponse struct {
	StatusCode string
	CDR        *CDRResponse
}

// SunatClient servicios web de SUNAT. Las fallas de red se devuelven como
// *domain.ConnectionError; los rechazos viajan en la respuesta.
type SunatClient interface {
	SendBill(ctx context.Context, req SendRequest) (*CDRResponse, error)
	SendSummary(ctx context.Context, req SendRequest) (*TicketResponse, error)
	SendDispatch(ctx context.Context, req SendRequest) (*TicketResponse, error)
	GetStatus(ctx context.Context, creds Credentials, ticket string) (*StatusResponse, error)
	GetDispatchStatus(ctx context.Context, creds Credentials, ticket string) (*StatusResponse, error)
}

// ArtifactStorage guarda XML firmados, CDR y PDF. Put devuelve la clave almacenada.
type ArtifactStorage interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
	Get(ctx context.Context, key string) ([]byte, error)
}

// PDFGenerator representación impresa del comprobante.
type PDFGenerator interface {
	GenerateDocumentPDF(doc *entity.Document, company *entity.Company, branch *entity.Branch) ([]byte, error)
}

// EventPublisher publica eventos de comprobantes a los suscriptores de la empresa.
// Los errores de notificación nunca deben alterar el flujo de facturación.
type EventPublisher interface {
	Trigger(ctx context.Context, companyID, event string, payload interface{}) error
}
