package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/jhoicas/facturacion-sunat-api/internal/application/dto"
	"github.com/jhoicas/facturacion-sunat-api/internal/domain"
	"github.com/jhoicas/facturacion-sunat-api/internal/domain/entity"
	"github.com/jhoicas/facturacion-sunat-api/internal/domain/repository"
	"github.com/jhoicas/facturacion-sunat-api/pkg/logger"
)

// DocumentService fachada que usan los handlers HTTP: crea, consulta, envía y descarga comprobantes.
type DocumentService struct {
	documentRepo repository.DocumentRepository
	builder      *DocumentBuilder
	summaries    *SummaryBuilder
	annulments   *AnnulmentWorkflow
	gateway      *SubmissionGateway
	reconciler   *StatusReconciler
	downloads    *DownloadUseCase
	notifier     notifier
	log          *logger.Logger
	now          func() time.Time
}

// NewDocumentService construye la fachada.
func NewDocumentService(
	documentRepo repository.DocumentRepository,
	builder *DocumentBuilder,
	summaries *SummaryBuilder,
	annulments *AnnulmentWorkflow,
	gateway *SubmissionGateway,
	reconciler *StatusReconciler,
	downloads *DownloadUseCase,
	events EventPublisher,
	log *logger.Logger,
) *DocumentService {
	l := log.Named("document_service")
	return &DocumentService{
		documentRepo: documentRepo,
		builder:      builder,
		summaries:    summaries,
		annulments:   annulments,
		gateway:      gateway,
		reconciler:   reconciler,
		downloads:    downloads,
		notifier:     notifier{events: events, log: l},
		log:          l,
		now:          time.Now,
	}
}

// SetClock reemplaza el reloj (tests).
func (s *DocumentService) SetClock(now func() time.Time) { s.now = now }

// Create delega en el DocumentBuilder.
func (s *DocumentService) Create(ctx context.Context, companyID string, kind entity.DocumentKind, in dto.CreateDocumentRequest) (*dto.DocumentResult, error) {
	res, err := s.builder.Create(ctx, companyID, kind, in)
	if err != nil {
		return nil, err
	}
	return &dto.DocumentResult{Document: res.Document, Warnings: res.Warnings}, nil
}

// CreateDailySummary arma el resumen diario de boletas de una sucursal.
func (s *DocumentService) CreateDailySummary(ctx context.Context, companyID string, in dto.CreateSummaryRequest) (*entity.Document, error) {
	return s.summaries.CreateDailySummary(ctx, companyID, in)
}

// CreateVoidedCommunication comunicación de baja explícita.
func (s *DocumentService) CreateVoidedCommunication(ctx context.Context, companyID string, in dto.CreateVoidedRequest) (*dto.OfficialAnnulmentResult, error) {
	res, err := s.annulments.CreateVoidedCommunication(ctx, companyID, in)
	if err != nil {
		return nil, err
	}
	return &dto.OfficialAnnulmentResult{Annulment: res.Annulment, Targets: res.Targets}, nil
}

// AnnulLocally anulación sin SUNAT.
func (s *DocumentService) AnnulLocally(ctx context.Context, companyID string, in dto.LocalAnnulmentRequest) (*entity.Document, error) {
	return s.annulments.AnnulLocally(ctx, companyID, in.DocumentID, in.Motivo)
}

// AnnulOfficially crea el RC o RA de anulación y, si se pide, lo envía de inmediato.
// Un fallo en el envío no deshace la anulación registrada: se informa en Send.
func (s *DocumentService) AnnulOfficially(ctx context.Context, companyID string, in dto.OfficialAnnulmentRequest) (*dto.OfficialAnnulmentResult, error) {
	res, err := s.annulments.AnnulOfficially(ctx, companyID, in.DocumentIDs, in.Motivo)
	if err != nil {
		return nil, err
	}
	out := &dto.OfficialAnnulmentResult{Annulment: res.Annulment, Targets: res.Targets}
	if !in.Send {
		return out, nil
	}
	sr := s.gateway.Send(ctx, res.Annulment)
	out.Send = toSendResult(sr)
	if sr.Document != nil {
		out.Annulment = sr.Document
	}
	if sr.Err != nil {
		s.log.Warn().Err(sr.Err).Str("document_id", res.Annulment.ID).Msg("anulación registrada sin envío a SUNAT")
	}
	return out, nil
}

// Get devuelve el comprobante si pertenece a la empresa y a la clase pedida.
func (s *DocumentService) Get(ctx context.Context, companyID string, kind entity.DocumentKind, id string) (*entity.Document, error) {
	doc, err := s.documentRepo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("obtener comprobante: %w", err)
	}
	if doc == nil || doc.CompanyID != companyID || (kind != "" && doc.Kind != kind) {
		return nil, domain.ErrNotFound
	}
	return doc, nil
}

// SendToSunat envía el comprobante. Con async solo lo deja EN_COLA para el worker.
//
// Errores:
//   - domain.ErrAlreadyAccepted si ya está ACEPTADO (no se contacta a SUNAT).
//   - *domain.RuleError         si es un RC o RA rechazado (hay que generar otro lote).
//   - domain.ErrNotSubmittable  para notas de venta.
//   - *domain.ConnectionError   si SUNAT no responde; el estado no cambia.
func (s *DocumentService) SendToSunat(ctx context.Context, companyID string, kind entity.DocumentKind, id string, async bool) (*dto.SendResult, error) {
	doc, err := s.Get(ctx, companyID, kind, id)
	if err != nil {
		return nil, err
	}
	if !doc.Kind.Submittable() {
		return nil, domain.ErrNotSubmittable
	}
	if doc.SunatStatus == entity.SunatAceptado {
		return nil, domain.ErrAlreadyAccepted
	}
	if err := rejectedBatch(doc); err != nil {
		return nil, err
	}
	// EN_COLA pertenece al worker y PROCESANDO espera su ticket: no se contacta a SUNAT.
	switch doc.SunatStatus {
	case entity.SunatEnCola, entity.SunatProcesando:
		return &dto.SendResult{Outcome: string(OutcomePending), Document: doc, Ticket: doc.Ticket}, nil
	}

	if async {
		if doc.ResumenID != "" && doc.SunatStatus != entity.SunatRechazado {
			return nil, fmt.Errorf("%w: el comprobante ya fue informado en un resumen diario", domain.ErrConflict)
		}
		prev := doc.SunatStatus
		doc.SunatStatus = entity.SunatEnCola
		doc.LastError = ""
		doc.UpdatedAt = s.now()
		if err := s.documentRepo.UpdateSunatResult(ctx, doc, prev); err != nil {
			return nil, fmt.Errorf("encolar envío: %w", err)
		}
		s.log.Info().Str("document_id", doc.ID).Str("company_id", companyID).Msg("comprobante encolado para envío")
		return &dto.SendResult{Outcome: string(OutcomePending), Document: doc}, nil
	}

	res := s.gateway.Send(ctx, doc)
	switch res.Outcome {
	case OutcomeConnectionError, OutcomeFailed:
		return nil, res.Err
	}
	s.notifier.publishOutcome(ctx, res.Document)
	return toSendResult(res), nil
}

// CheckStatus consulta el ticket de un resumen, baja o guía.
func (s *DocumentService) CheckStatus(ctx context.Context, companyID string, kind entity.DocumentKind, id string) (*dto.StatusResult, error) {
	doc, err := s.Get(ctx, companyID, kind, id)
	if err != nil {
		return nil, err
	}
	res := s.reconciler.CheckStatus(ctx, doc)
	switch res.Outcome {
	case OutcomeConnectionError, OutcomeFailed:
		return nil, res.Err
	}
	return &dto.StatusResult{
		Outcome:          string(res.Outcome),
		Document:         res.Document,
		BoletasUpdated:   res.BoletasUpdated,
		AlreadyProcessed: res.AlreadyProcessed,
	}, nil
}

// Download XML, CDR o PDF del comprobante.
func (s *DocumentService) Download(ctx context.Context, companyID string, kind entity.DocumentKind, id, format string) (*Artifact, error) {
	doc, err := s.Get(ctx, companyID, kind, id)
	if err != nil {
		return nil, err
	}
	return s.downloads.Download(ctx, doc, format)
}

func toSendResult(r SubmissionResult) *dto.SendResult {
	return &dto.SendResult{
		Outcome:  string(r.Outcome),
		Document: r.Document,
		Ticket:   r.Ticket,
		Code:     r.Code,
		Message:  r.Message,
		Notes:    r.Notes,
	}
}
