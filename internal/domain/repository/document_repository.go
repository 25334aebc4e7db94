package repository

import (
	"context"
	"time"

	"github.com/jhoicas/facturacion-sunat-api/internal/domain/entity"
)

// DocumentRepository define el puerto de persistencia de comprobantes.
type DocumentRepository interface {
	Create(ctx context.Context, doc *entity.Document) error
	// GetByID devuelve nil, nil si no existe.
	GetByID(ctx context.Context, id string) (*entity.Document, error)
	GetByNumber(ctx context.Context, companyID, tipoDocumento, serie string, correlativo int64) (*entity.Document, error)
	ListByIDs(ctx context.Context, companyID string, ids []string) ([]*entity.Document, error)

	// UpdateSunatResult persiste el resultado de un envío o consulta solo si el estado
	// SUNAT sigue siendo expectedStatus; si otro proceso lo cambió devuelve domain.ErrConflict.
	// No modifica totales, líneas ni adquiriente.
	UpdateSunatResult(ctx context.Context, doc *entity.Document, expectedStatus string) error
	// UpdateAnnulment persiste las columnas del eje de anulación de un comprobante.
	UpdateAnnulment(ctx context.Context, doc *entity.Document) error

	// MarkAnnulmentPending pasa a pendiente_anulacion los comprobantes ACEPTADO y sin_anular
	// indicados; si alguno no cumple devuelve domain.ErrConflict.
	MarkAnnulmentPending(ctx context.Context, ids []string, anulacionDocumentID, motivo string, at time.Time) error
	// BulkUpdateSunatStatus fija el estado SUNAT de varios comprobantes.
	BulkUpdateSunatStatus(ctx context.Context, ids []string, status, code, message string) (int64, error)
	// BulkUpdateAnnulment fija el estado de anulación; con sin_anular también limpia el vínculo.
	BulkUpdateAnnulment(ctx context.Context, ids []string, estado string) (int64, error)

	// ListPendingForSummary boletas (y sus notas) de la fecha aún no informadas en un resumen.
	ListPendingForSummary(ctx context.Context, branchID string, fecha time.Time) ([]*entity.Document, error)
	// LinkToSummary vincula (o desvincula con summaryID vacío) boletas a un resumen diario.
	LinkToSummary(ctx context.Context, ids []string, summaryID string) error

	// ClaimQueued toma hasta limit comprobantes EN_COLA con un lease exclusivo.
	ClaimQueued(ctx context.Context, limit int, lease time.Duration) ([]*entity.Document, error)
	// ClaimProcessing toma hasta limit comprobantes PROCESANDO con ticket para consultar su estado.
	ClaimProcessing(ctx context.Context, limit int, lease time.Duration) ([]*entity.Document, error)
}
