package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jhoicas/facturacion-sunat-api/internal/application/dto"
	"github.com/jhoicas/facturacion-sunat-api/internal/domain"
	"github.com/jhoicas/facturacion-sunat-api/internal/domain/entity"
	"github.com/jhoicas/facturacion-sunat-api/internal/domain/repository"
	"github.com/jhoicas/facturacion-sunat-api/internal/domain/sunat"
	"github.com/jhoicas/facturacion-sunat-api/pkg/logger"
	catalog "github.com/jhoicas/facturacion-sunat-api/pkg/sunat"
)

// maxSummaryItems límite de líneas por resumen diario o comunicación de baja.
const maxSummaryItems = 500

// SummaryBuilder arma resúmenes diarios (RC) y comunicaciones de baja (RA).
type SummaryBuilder struct {
	allocator    *CorrelativeAllocator
	branchRepo   repository.BranchRepository
	documentRepo repository.DocumentRepository
	notifier     notifier
	log          *logger.Logger
	now          func() time.Time
}

// NewSummaryBuilder construye el builder de resúmenes.
func NewSummaryBuilder(
	allocator *CorrelativeAllocator,
	branchRepo repository.BranchRepository,
	documentRepo repository.DocumentRepository,
	events EventPublisher,
	log *logger.Logger,
) *SummaryBuilder {
	l := log.Named("summary_builder")
	return &SummaryBuilder{
		allocator:    allocator,
		branchRepo:   branchRepo,
		documentRepo: documentRepo,
		notifier:     notifier{events: events, log: l},
		log:          l,
		now:          time.Now,
	}
}

// SetClock reemplaza el reloj (tests).
func (b *SummaryBuilder) SetClock(now func() time.Time) { b.now = now }

// CreateDailySummary informa las boletas (y sus notas) de la fecha que aún no están en un resumen.
func (b *SummaryBuilder) CreateDailySummary(ctx context.Context, companyID string, in dto.CreateSummaryRequest) (*entity.Document, error) {
	branch, err := b.branchRepo.GetByID(ctx, in.BranchID)
	if err != nil {
		return nil, fmt.Errorf("obtener sucursal: %w", err)
	}
	if branch == nil || branch.CompanyID != companyID {
		return nil, domain.ErrUnknownBranch
	}
	// La fecha de referencia llega como fecha calendario; no se convierte de zona.
	y, m, d := in.FechaReferencia.Date()
	fecha := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)

	pending, err := b.documentRepo.ListPendingForSummary(ctx, branch.ID, fecha)
	if err != nil {
		return nil, fmt.Errorf("listar boletas pendientes: %w", err)
	}
	if len(pending) == 0 {
		return nil, domain.ErrNothingToSummarize
	}
	if len(pending) > maxSummaryItems {
		pending = pending[:maxSummaryItems]
	}

	items := make([]entity.SummaryItem, len(pending))
	ids := make([]string, len(pending))
	for i, d := range pending {
		items[i] = summaryItem(d, catalog.SummaryStateAdd)
		ids[i] = d.ID
	}
	doc := b.newBatch(companyID, branch.ID, entity.KindDailySummary)
	doc.Summary = &entity.SummaryData{FechaReferencia: fecha, Items: items}
	doc.Moneda = catalog.CurrencyPEN

	err = b.persist(ctx, doc, func(documentRepo repository.DocumentRepository) error {
		return documentRepo.LinkToSummary(ctx, ids, doc.ID)
	})
	if err != nil {
		return nil, err
	}
	b.log.Info().Str("document_id", doc.ID).Str("company_id", companyID).
		Str("numero", doc.Numero).Int("items", len(items)).Msg("resumen diario creado")
	b.notifier.publish(ctx, entity.EventDocumentCreated, doc)
	return doc, nil
}

// createAnnulmentSummary resumen con estado 3 para boletas aceptadas; en la misma transacción
// las pasa a pendiente_anulacion vinculadas al resumen.
func (b *SummaryBuilder) createAnnulmentSummary(ctx context.Context, companyID, branchID string, targets []*entity.Document, motivo string) (*entity.Document, error) {
	items := make([]entity.SummaryItem, len(targets))
	ids := make([]string, len(targets))
	for i, t := range targets {
		items[i] = summaryItem(t, catalog.SummaryStateAnnul)
		ids[i] = t.ID
	}
	doc := b.newBatch(companyID, branchID, entity.KindDailySummary)
	doc.Summary = &entity.SummaryData{FechaReferencia: sunat.DateOnly(targets[0].FechaEmision), Items: items}
	doc.Moneda = catalog.CurrencyPEN
	doc.Observacion = motivo

	err := b.persist(ctx, doc, func(documentRepo repository.DocumentRepository) error {
		return documentRepo.MarkAnnulmentPending(ctx, ids, doc.ID, motivo, doc.CreatedAt)
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// createVoidedCommunication comunicación de baja (RA) para facturas y sus notas.
func (b *SummaryBuilder) createVoidedCommunication(ctx context.Context, companyID, branchID string, targets []*entity.Document, motivos map[string]string) (*entity.Document, error) {
	items := make([]entity.VoidedItem, len(targets))
	ids := make([]string, len(targets))
	for i, t := range targets {
		items[i] = entity.VoidedItem{
			DocumentID:    t.ID,
			TipoDocumento: t.TipoDocumento,
			Serie:         t.Serie,
			Correlativo:   t.Correlativo,
			Motivo:        motivos[t.ID],
		}
		ids[i] = t.ID
	}
	doc := b.newBatch(companyID, branchID, entity.KindVoided)
	doc.Voided = &entity.VoidedData{FechaReferencia: sunat.DateOnly(targets[0].FechaEmision), Items: items}

	err := b.persist(ctx, doc, func(documentRepo repository.DocumentRepository) error {
		for _, t := range targets {
			if err := documentRepo.MarkAnnulmentPending(ctx, []string{t.ID}, doc.ID, motivos[t.ID], doc.CreatedAt); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

func (b *SummaryBuilder) newBatch(companyID, branchID string, kind entity.DocumentKind) *entity.Document {
	now := b.now()
	return &entity.Document{
		ID:              uuid.New().String(),
		CompanyID:       companyID,
		BranchID:        branchID,
		Kind:            kind,
		TipoDocumento:   kind.TipoDocumento(),
		Serie:           sunat.SummarySeries(kind.TipoDocumento(), now),
		FechaEmision:    now,
		SunatStatus:     entity.SunatPendiente,
		EstadoProceso:   entity.ProcesoGenerado,
		EstadoAnulacion: entity.AnulacionNinguna,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// persist numera el lote por día (serie RC-YYYYMMDD) e inserta junto con after.
func (b *SummaryBuilder) persist(ctx context.Context, doc *entity.Document, after func(repository.DocumentRepository) error) error {
	_, err := b.allocator.Allocate(ctx, doc.BranchID, doc.TipoDocumento, doc.Serie, 0,
		func(n int64, documentRepo repository.DocumentRepository) error {
			doc.Correlativo = n
			doc.Numero = sunat.FormatNumber(doc.TipoDocumento, doc.Serie, n)
			if err := documentRepo.Create(ctx, doc); err != nil {
				return err
			}
			return after(documentRepo)
		})
	if err != nil {
		return fmt.Errorf("guardar %s: %w", doc.Kind, err)
	}
	return nil
}

func summaryItem(d *entity.Document, estado string) entity.SummaryItem {
	it := entity.SummaryItem{
		DocumentID:         d.ID,
		TipoDocumento:      d.TipoDocumento,
		SerieNumero:        d.Numero,
		Estado:             estado,
		ClienteTipoDoc:     catalog.IdentitySinDocumento,
		ClienteNumDoc:      "-",
		Moneda:             d.Moneda,
		MtoOperGravadas:    d.MtoOperGravadas,
		MtoOperExoneradas:  d.MtoOperExoneradas,
		MtoOperInafectas:   d.MtoOperInafectas,
		MtoOperExportacion: d.MtoOperExportacion,
		MtoOperGratuitas:   d.MtoOperGratuitas,
		MtoIGV:             d.MtoIGV,
		MtoISC:             d.MtoISC,
		MtoICBPER:          d.MtoICBPER,
		Total:              d.MtoImpVenta,
	}
	if d.Client != nil {
		it.ClienteTipoDoc = d.Client.TipoDocumento
		it.ClienteNumDoc = d.Client.NumeroDocumento
	}
	if d.Note != nil {
		it.DocReferencia = d.Note.NumDocAfectado
		it.TipoDocReferencia = d.Note.TipoDocAfectado
	}
	return it
}
