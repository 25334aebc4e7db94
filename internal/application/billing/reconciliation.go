package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jhoicas/facturacion-sunat-api/internal/domain"
	"github.com/jhoicas/facturacion-sunat-api/internal/domain/entity"
	"github.com/jhoicas/facturacion-sunat-api/internal/domain/repository"
	"github.com/jhoicas/facturacion-sunat-api/pkg/logger"
	pkgsunat "github.com/jhoicas/facturacion-sunat-api/pkg/sunat"
)

// ReconcileResult resultado de consultar un ticket.
type ReconcileResult struct {
	Outcome          Outcome
	Document         *entity.Document
	BoletasUpdated   int64
	AlreadyProcessed bool
	Err              error
}

// StatusReconciler cierra los comprobantes asíncronos (RC, RA, guías) consultando su ticket.
type StatusReconciler struct {
	txRunner     BillingTxRunner
	documentRepo repository.DocumentRepository
	companyRepo  repository.CompanyRepository
	client       SunatClient
	storage      ArtifactStorage
	notifier     notifier
	cfg          GatewayConfig
	log          *logger.Logger
	now          func() time.Time
}

// NewStatusReconciler construye el reconciliador.
func NewStatusReconciler(
	txRunner BillingTxRunner,
	documentRepo repository.DocumentRepository,
	companyRepo repository.CompanyRepository,
	client SunatClient,
	storage ArtifactStorage,
	events EventPublisher,
	cfg GatewayConfig,
	log *logger.Logger,
) *StatusReconciler {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	l := log.Named("reconciler")
	return &StatusReconciler{
		txRunner:     txRunner,
		documentRepo: documentRepo,
		companyRepo:  companyRepo,
		client:       client,
		storage:      storage,
		notifier:     notifier{events: events, log: l},
		cfg:          cfg,
		log:          l,
		now:          time.Now,
	}
}

// SetClock reemplaza el reloj (tests).
func (r *StatusReconciler) SetClock(now func() time.Time) { r.now = now }

// CheckStatus consulta el ticket y, si SUNAT terminó, fija el estado final y propaga el
// resultado a las boletas del resumen o a los comprobantes dados de baja.
func (r *StatusReconciler) CheckStatus(ctx context.Context, in *entity.Document) ReconcileResult {
	if in == nil {
		return ReconcileResult{Outcome: OutcomeFailed, Err: domain.ErrNotFound}
	}
	doc := *in
	if !doc.Kind.Async() {
		return ReconcileResult{Outcome: OutcomeFailed, Document: &doc, Err: domain.ErrNotAsync}
	}
	if doc.Ticket == "" {
		return ReconcileResult{Outcome: OutcomeFailed, Document: &doc, Err: domain.ErrMissingTicket}
	}
	if doc.IsTerminal() {
		out := OutcomeAccepted
		if doc.SunatStatus == entity.SunatRechazado {
			out = OutcomeRejected
		}
		return ReconcileResult{Outcome: out, Document: &doc, AlreadyProcessed: true}
	}

	company, err := r.companyRepo.GetByID(ctx, doc.CompanyID)
	if err != nil || company == nil {
		return ReconcileResult{Outcome: OutcomeFailed, Document: &doc, Err: fmt.Errorf("empresa %s no encontrada: %v", doc.CompanyID, err)}
	}
	creds := companyCredentials(company, r.cfg)

	callCtx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()
	var st *StatusResponse
	if doc.Kind == entity.KindDispatchGuide {
		st, err = r.client.GetDispatchStatus(callCtx, creds, doc.Ticket)
	} else {
		st, err = r.client.GetStatus(callCtx, creds, doc.Ticket)
	}
	if err != nil {
		if domain.IsConnectionError(err) || errors.Is(err, context.DeadlineExceeded) {
			r.log.Warn().Err(err).Str("document_id", doc.ID).Str("ticket", doc.Ticket).Msg("consulta de ticket sin conexión")
			return ReconcileResult{Outcome: OutcomeConnectionError, Document: &doc, Err: &domain.ConnectionError{Op: "getStatus", Err: err}}
		}
		r.log.Critical().Err(err).Str("document_id", doc.ID).Str("ticket", doc.Ticket).Msg("error consultando ticket")
		return ReconcileResult{Outcome: OutcomeFailed, Document: &doc, Err: err}
	}

	switch st.StatusCode {
	case pkgsunat.TicketInProcess:
		return ReconcileResult{Outcome: OutcomePending, Document: &doc}
	case pkgsunat.TicketProcessed, pkgsunat.TicketProcessedErrors:
	default:
		return ReconcileResult{Outcome: OutcomeFailed, Document: &doc, Err: fmt.Errorf("código de ticket desconocido %q", st.StatusCode)}
	}

	cdr := st.CDR
	if cdr == nil {
		cdr = &CDRResponse{Code: st.StatusCode}
	}
	doc.SunatStatus = StatusFromCDR(cdr)
	if st.StatusCode == pkgsunat.TicketProcessedErrors {
		doc.SunatStatus = entity.SunatRechazado
	}
	doc.SunatCode = cdr.Code
	doc.SunatMessage = cdr.Description
	doc.SunatNotes = cdr.Notes
	doc.LastError = ""
	doc.EstadoProceso = entity.ProcesoProcesado
	if doc.SunatStatus == entity.SunatRechazado {
		doc.EstadoProceso = entity.ProcesoError
	}
	if raw, err := json.Marshal(map[string]interface{}{
		"status_code": st.StatusCode,
		"code":        cdr.Code,
		"description": cdr.Description,
		"notes":       cdr.Notes,
	}); err == nil {
		doc.SunatResponse = raw
	}
	if len(cdr.CDRZip) > 0 {
		fileName := pkgsunat.FileName(company.RUC, doc.TipoDocumento, doc.Numero)
		if key, err := r.storage.Put(ctx, artifactKey(&doc, "R-"+fileName+".zip"), cdr.CDRZip, "application/zip"); err == nil {
			doc.CDRPath = key
		} else {
			r.log.Warn().Err(err).Str("document_id", doc.ID).Msg("no se pudo guardar el CDR")
		}
	}
	doc.UpdatedAt = r.now()

	var updated int64
	var informed, annulled []string
	err = r.txRunner.RunBilling(ctx, func(_ repository.CorrelativeRepository, documentRepo repository.DocumentRepository) error {
		if err := documentRepo.UpdateSunatResult(ctx, &doc, entity.SunatProcesando); err != nil {
			return err
		}
		var cerr error
		updated, informed, annulled, cerr = cascade(ctx, documentRepo, &doc)
		return cerr
	})
	if err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return ReconcileResult{Outcome: OutcomeFailed, Document: in, Err: err}
		}
		r.log.Critical().Err(err).Str("document_id", doc.ID).Str("company_id", doc.CompanyID).Msg("no se pudo persistir la conciliación")
		return ReconcileResult{Outcome: OutcomeFailed, Document: &doc, Err: err}
	}

	r.log.Info().
		Str("document_id", doc.ID).Str("ticket", doc.Ticket).Str("status", doc.SunatStatus).
		Int64("boletas_updated", updated).Msg("ticket conciliado")

	r.notifier.publishOutcome(ctx, &doc)
	r.publishCascade(ctx, &doc, informed, annulled)

	out := OutcomeAccepted
	if doc.SunatStatus == entity.SunatRechazado {
		out = OutcomeRejected
	}
	return ReconcileResult{Outcome: out, Document: &doc, BoletasUpdated: updated}
}

// cascade propaga el resultado del resumen o de la baja a los comprobantes que contiene.
//
//	resumen aceptado:  estado 1/2 → ACEPTADO      estado 3 → anulada
//	resumen rechazado: estado 1/2 → RECHAZADO     estado 3 → sin_anular
//	baja aceptada:     anulada                    baja rechazada: sin_anular
func cascade(ctx context.Context, repo repository.DocumentRepository, doc *entity.Document) (int64, []string, []string, error) {
	accepted := doc.SunatStatus == entity.SunatAceptado
	var informed, annulled []string
	switch {
	case doc.Kind == entity.KindDailySummary && doc.Summary != nil:
		for _, it := range doc.Summary.Items {
			if it.DocumentID == "" {
				continue
			}
			if it.Estado == pkgsunat.SummaryStateAnnul {
				annulled = append(annulled, it.DocumentID)
			} else {
				informed = append(informed, it.DocumentID)
			}
		}
	case doc.Kind == entity.KindVoided && doc.Voided != nil:
		for _, it := range doc.Voided.Items {
			if it.DocumentID != "" {
				annulled = append(annulled, it.DocumentID)
			}
		}
	default:
		return 0, nil, nil, nil
	}

	var total int64
	if len(informed) > 0 {
		status, code, msg := entity.SunatAceptado, "0", "Informado en "+doc.Numero
		if !accepted {
			status, code, msg = entity.SunatRechazado, doc.SunatCode, doc.SunatMessage
		}
		n, err := repo.BulkUpdateSunatStatus(ctx, informed, status, code, msg)
		if err != nil {
			return 0, nil, nil, fmt.Errorf("actualizar boletas del resumen: %w", err)
		}
		total += n
		if !accepted {
			if err := repo.LinkToSummary(ctx, informed, ""); err != nil {
				return 0, nil, nil, fmt.Errorf("desvincular boletas del resumen: %w", err)
			}
		}
	}
	if len(annulled) > 0 {
		estado := entity.AnulacionAnulada
		if !accepted {
			estado = entity.AnulacionNinguna
		}
		n, err := repo.BulkUpdateAnnulment(ctx, annulled, estado)
		if err != nil {
			return 0, nil, nil, fmt.Errorf("actualizar anulaciones: %w", err)
		}
		total += n
	}
	if !accepted {
		annulled = nil
	}
	return total, informed, annulled, nil
}

// publishCascade notifica cada comprobante afectado por el resumen o la baja.
func (r *StatusReconciler) publishCascade(ctx context.Context, doc *entity.Document, informed, annulled []string) {
	if r.notifier.events == nil || len(informed)+len(annulled) == 0 {
		return
	}
	ids := append(append([]string{}, informed...), annulled...)
	docs, err := r.documentRepo.ListByIDs(ctx, doc.CompanyID, ids)
	if err != nil {
		r.log.Warn().Err(err).Str("document_id", doc.ID).Msg("no se pudieron notificar los comprobantes del resumen")
		return
	}
	for _, d := range docs {
		switch {
		case d.EstadoAnulacion == entity.AnulacionAnulada:
			r.notifier.publish(ctx, entity.EventDocumentVoided, d)
		case d.SunatStatus == entity.SunatAceptado:
			r.notifier.publish(ctx, entity.EventDocumentAccepted, d)
		case d.SunatStatus == entity.SunatRechazado:
			r.notifier.publish(ctx, entity.EventDocumentRejected, d)
		}
	}
}
