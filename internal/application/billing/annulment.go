package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/jhoicas/facturacion-sunat-api/internal/application/dto"
	"github.com/jhoicas/facturacion-sunat-api/internal/domain"
	"github.com/jhoicas/facturacion-sunat-api/internal/domain/entity"
	"github.com/jhoicas/facturacion-sunat-api/internal/domain/repository"
	"github.com/jhoicas/facturacion-sunat-api/internal/domain/sunat"
	"github.com/jhoicas/facturacion-sunat-api/pkg/logger"
)

// Reglas reportadas en RuleError.
const (
	RuleKind          = "tipo_documento"
	RuleExists        = "existencia"
	RuleLocalVoid     = "anulacion_local"
	RuleAnnulment     = "estado_anulacion"
	RuleAccepted      = "estado_sunat"
	RuleWindow        = "plazo_anulacion"
	RuleEmissionDate  = "fecha_emision"
	RuleFamily        = "familia"
	RuleBranch        = "sucursal"
	RuleSummaryLinked = "resumen_diario"
	RuleRejectedBatch = "lote_rechazado"
)

// OfficialAnnulment documento de anulación (RC con estado 3 o RA) y comprobantes afectados.
type OfficialAnnulment struct {
	Annulment *entity.Document
	Targets   []*entity.Document
}

// AnnulmentWorkflow anulación local (sin SUNAT, terminal) y anulación oficial ante SUNAT.
type AnnulmentWorkflow struct {
	documentRepo repository.DocumentRepository
	summaries    *SummaryBuilder
	notifier     notifier
	log          *logger.Logger
	now          func() time.Time
}

// NewAnnulmentWorkflow construye el flujo de anulación.
func NewAnnulmentWorkflow(documentRepo repository.DocumentRepository, summaries *SummaryBuilder, events EventPublisher, log *logger.Logger) *AnnulmentWorkflow {
	l := log.Named("annulment")
	return &AnnulmentWorkflow{
		documentRepo: documentRepo,
		summaries:    summaries,
		notifier:     notifier{events: events, log: l},
		log:          l,
		now:          time.Now,
	}
}

// SetClock reemplaza el reloj (tests).
func (w *AnnulmentWorkflow) SetClock(now func() time.Time) { w.now = now }

// AnnulLocally anula sin pasar por SUNAT un comprobante no aceptado (factura, boleta o nota de venta).
func (w *AnnulmentWorkflow) AnnulLocally(ctx context.Context, companyID, documentID, motivo string) (*entity.Document, error) {
	doc, err := w.documentRepo.GetByID(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("obtener comprobante: %w", err)
	}
	if doc == nil || doc.CompanyID != companyID {
		return nil, domain.ErrNotFound
	}
	switch doc.Kind {
	case entity.KindInvoice, entity.KindBoleta, entity.KindSalesNote:
	default:
		return nil, domain.NewRuleError(RuleKind, doc.ID, fmt.Errorf("%w: solo facturas, boletas y notas de venta", domain.ErrInvalidInput))
	}
	switch {
	case doc.AnuladaLocalmente:
		return nil, domain.NewRuleError(RuleLocalVoid, doc.ID, domain.ErrAlreadyVoidedLocally)
	case doc.SunatStatus == entity.SunatAceptado:
		return nil, domain.NewRuleError(RuleAccepted, doc.ID, domain.ErrNotLocallyAnnullable)
	case doc.EstadoAnulacion != entity.AnulacionNinguna:
		return nil, domain.NewRuleError(RuleAnnulment, doc.ID, domain.ErrAlreadyInAnnulment)
	case doc.SunatStatus != entity.SunatPendiente && doc.SunatStatus != entity.SunatRechazado:
		return nil, domain.NewRuleError(RuleAccepted, doc.ID, fmt.Errorf("%w: comprobante en %s", domain.ErrConflict, doc.SunatStatus))
	case doc.ResumenID != "" && doc.SunatStatus == entity.SunatPendiente:
		return nil, domain.NewRuleError(RuleSummaryLinked, doc.ID, fmt.Errorf("%w: la boleta ya fue informada en un resumen diario", domain.ErrConflict))
	}

	now := w.now()
	doc.AnuladaLocalmente = true
	doc.MotivoAnulacion = motivo
	doc.FechaAnulacion = &now
	doc.UpdatedAt = now
	if err := w.documentRepo.UpdateAnnulment(ctx, doc); err != nil {
		return nil, fmt.Errorf("anular localmente: %w", err)
	}
	w.log.Info().Str("document_id", doc.ID).Str("company_id", companyID).Str("numero", doc.Numero).Msg("comprobante anulado localmente")
	w.notifier.publish(ctx, entity.EventDocumentVoided, doc)
	return doc, nil
}

// AnnulOfficially valida todos los comprobantes antes de escribir y crea el documento que los
// anula ante SUNAT: resumen diario con estado 3 para boletas o comunicación de baja para facturas.
// Los comprobantes quedan en pendiente_anulacion hasta que el ticket sea conciliado.
func (w *AnnulmentWorkflow) AnnulOfficially(ctx context.Context, companyID string, documentIDs []string, motivo string) (*OfficialAnnulment, error) {
	motivos := make(map[string]string, len(documentIDs))
	for _, id := range documentIDs {
		motivos[id] = motivo
	}
	return w.annul(ctx, companyID, "", "", documentIDs, motivos)
}

// CreateVoidedCommunication comunicación de baja explícita para facturas y sus notas.
func (w *AnnulmentWorkflow) CreateVoidedCommunication(ctx context.Context, companyID string, in dto.CreateVoidedRequest) (*OfficialAnnulment, error) {
	ids := make([]string, len(in.Items))
	motivos := make(map[string]string, len(in.Items))
	for i, it := range in.Items {
		ids[i] = it.DocumentID
		motivos[it.DocumentID] = it.Motivo
	}
	return w.annul(ctx, companyID, in.BranchID, entity.FamilyFactura, ids, motivos)
}

func (w *AnnulmentWorkflow) annul(ctx context.Context, companyID, branchID, family string, ids []string, motivos map[string]string) (*OfficialAnnulment, error) {
	ids = uniqueIDs(ids)
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: sin comprobantes a anular", domain.ErrInvalidInput)
	}
	if len(ids) > maxSummaryItems {
		return nil, fmt.Errorf("%w: máximo %d comprobantes por solicitud", domain.ErrInvalidInput, maxSummaryItems)
	}
	docs, err := w.documentRepo.ListByIDs(ctx, companyID, ids)
	if err != nil {
		return nil, fmt.Errorf("obtener comprobantes: %w", err)
	}
	byID := make(map[string]*entity.Document, len(docs))
	for _, d := range docs {
		byID[d.ID] = d
	}
	targets := make([]*entity.Document, 0, len(ids))
	for _, id := range ids {
		d, ok := byID[id]
		if !ok {
			return nil, domain.NewRuleError(RuleExists, id, domain.ErrNotFound)
		}
		targets = append(targets, d)
	}

	if err := ValidateOfficialAnnulment(targets, w.now()); err != nil {
		return nil, err
	}
	first := targets[0]
	if family != "" && first.Family() != family {
		return nil, domain.NewRuleError(RuleFamily, first.ID,
			fmt.Errorf("%w: las boletas se anulan mediante resumen diario", domain.ErrMixedFamilies))
	}
	if branchID != "" && first.BranchID != branchID {
		return nil, domain.NewRuleError(RuleBranch, first.ID, fmt.Errorf("%w: el comprobante pertenece a otra sucursal", domain.ErrInvalidInput))
	}

	var annulment *entity.Document
	if first.Family() == entity.FamilyBoleta {
		annulment, err = w.summaries.createAnnulmentSummary(ctx, companyID, first.BranchID, targets, motivos[first.ID])
	} else {
		annulment, err = w.summaries.createVoidedCommunication(ctx, companyID, first.BranchID, targets, motivos)
	}
	if err != nil {
		return nil, err
	}

	now := w.now()
	for _, t := range targets {
		t.EstadoAnulacion = entity.AnulacionPendiente
		t.AnulacionDocumentID = annulment.ID
		t.MotivoAnulacion = motivos[t.ID]
		t.UpdatedAt = now
	}
	w.log.Info().Str("document_id", annulment.ID).Str("company_id", companyID).
		Str("numero", annulment.Numero).Int("targets", len(targets)).Msg("anulación oficial registrada")
	w.notifier.publish(ctx, entity.EventDocumentCreated, annulment)
	return &OfficialAnnulment{Annulment: annulment, Targets: targets}, nil
}

// ValidateOfficialAnnulment aplica todas las reglas antes de cualquier escritura; falla con
// un *domain.RuleError que indica el comprobante y la regla incumplida.
func ValidateOfficialAnnulment(targets []*entity.Document, now time.Time) error {
	if len(targets) == 0 {
		return fmt.Errorf("%w: sin comprobantes a anular", domain.ErrInvalidInput)
	}
	first := targets[0]
	for _, d := range targets {
		switch d.Kind {
		case entity.KindInvoice, entity.KindBoleta, entity.KindCreditNote, entity.KindDebitNote:
		default:
			return domain.NewRuleError(RuleKind, d.ID, fmt.Errorf("%w: %s no admite anulación ante SUNAT", domain.ErrInvalidInput, d.Kind))
		}
		switch {
		case d.AnuladaLocalmente:
			return domain.NewRuleError(RuleLocalVoid, d.ID, domain.ErrAlreadyVoidedLocally)
		case d.EstadoAnulacion != entity.AnulacionNinguna:
			return domain.NewRuleError(RuleAnnulment, d.ID, domain.ErrAlreadyInAnnulment)
		case d.SunatStatus != entity.SunatAceptado:
			return domain.NewRuleError(RuleAccepted, d.ID, domain.ErrNotAccepted)
		case !sunat.WithinAnnulmentWindow(d.FechaEmision, now):
			return domain.NewRuleError(RuleWindow, d.ID, fmt.Errorf("%w (%d días desde la emisión)",
				domain.ErrAnnulmentWindowExpired, sunat.ElapsedDays(d.FechaEmision, now)))
		case !sunat.SameDate(d.FechaEmision, first.FechaEmision):
			return domain.NewRuleError(RuleEmissionDate, d.ID, domain.ErrMixedEmissionDates)
		case d.Family() != first.Family():
			return domain.NewRuleError(RuleFamily, d.ID, domain.ErrMixedFamilies)
		case d.BranchID != first.BranchID:
			return domain.NewRuleError(RuleBranch, d.ID, fmt.Errorf("%w: comprobantes de distintas sucursales", domain.ErrInvalidInput))
		}
	}
	return nil
}

func uniqueIDs(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
