package billing

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/jhoicas/facturacion-sunat-api/internal/domain"
	"github.com/jhoicas/facturacion-sunat-api/internal/domain/entity"
	"github.com/jhoicas/facturacion-sunat-api/internal/domain/repository"
	"github.com/jhoicas/facturacion-sunat-api/pkg/logger"
	pkgsunat "github.com/jhoicas/facturacion-sunat-api/pkg/sunat"
)

// Outcome resultado de una interacción con SUNAT.
type Outcome string

const (
	OutcomeAccepted        Outcome = "accepted"
	OutcomeRejected        Outcome = "rejected"
	OutcomePending         Outcome = "pending"
	OutcomeConnectionError Outcome = "connection_error"
	OutcomeFailed          Outcome = "failed"
)

// SubmissionResult resultado explícito de Send. Un rechazo de SUNAT no es un error:
// Err solo se completa en OutcomeConnectionError (reintentable) y OutcomeFailed.
type SubmissionResult struct {
	Outcome  Outcome
	Document *entity.Document
	Ticket   string
	Code     string
	Message  string
	Notes    []string
	Err      error
}

// GatewayConfig credenciales SOL por defecto y timeout de las llamadas a SUNAT.
type GatewayConfig struct {
	SolUser     string
	SolPassword string
	Timeout     time.Duration
}

// SubmissionGateway orquesta el envío a SUNAT:
//
//	XML UBL 2.1 → firma → ZIP → almacenamiento → servicio SUNAT → update optimista
//
// Es seguro llamarlo repetidamente: un comprobante ACEPTADO o con ticket en
// PROCESANDO no se reenvía.
type SubmissionGateway struct {
	documentRepo repository.DocumentRepository
	companyRepo  repository.CompanyRepository
	branchRepo   repository.BranchRepository
	xmlBuilder   XMLBuilder
	signer       pkgsunat.Signer
	cert         tls.Certificate
	client       SunatClient
	storage      ArtifactStorage
	cfg          GatewayConfig
	log          *logger.Logger
	now          func() time.Time
}

// NewSubmissionGateway construye el gateway. Con un certificado vacío el XML no se firma
// (solo válido contra el cliente simulado).
func NewSubmissionGateway(
	documentRepo repository.DocumentRepository,
	companyRepo repository.CompanyRepository,
	branchRepo repository.BranchRepository,
	xmlBuilder XMLBuilder,
	signer pkgsunat.Signer,
	cert tls.Certificate,
	client SunatClient,
	storage ArtifactStorage,
	cfg GatewayConfig,
	log *logger.Logger,
) *SubmissionGateway {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &SubmissionGateway{
		documentRepo: documentRepo,
		companyRepo:  companyRepo,
		branchRepo:   branchRepo,
		xmlBuilder:   xmlBuilder,
		signer:       signer,
		cert:         cert,
		client:       client,
		storage:      storage,
		cfg:          cfg,
		log:          log.Named("sunat_gateway"),
		now:          time.Now,
	}
}

// Send envía el comprobante y persiste el resultado. Trabaja sobre una copia: en error
// de conexión el comprobante conserva su estado previo y solo registra LastError.
func (g *SubmissionGateway) Send(ctx context.Context, in *entity.Document) SubmissionResult {
	if in == nil {
		return SubmissionResult{Outcome: OutcomeFailed, Err: domain.ErrNotFound}
	}
	doc := *in

	if !doc.Kind.Submittable() {
		return SubmissionResult{Outcome: OutcomeFailed, Document: &doc, Err: domain.ErrNotSubmittable}
	}
	if err := rejectedBatch(&doc); err != nil {
		return SubmissionResult{Outcome: OutcomeFailed, Document: &doc, Err: err}
	}
	switch {
	case doc.SunatStatus == entity.SunatAceptado:
		return SubmissionResult{Outcome: OutcomeAccepted, Document: &doc, Code: doc.SunatCode, Message: doc.SunatMessage, Notes: doc.SunatNotes}
	case doc.SunatStatus == entity.SunatProcesando && doc.Ticket != "":
		return SubmissionResult{Outcome: OutcomePending, Document: &doc, Ticket: doc.Ticket}
	case doc.ResumenID != "" && doc.SunatStatus != entity.SunatRechazado:
		return SubmissionResult{Outcome: OutcomeFailed, Document: &doc,
			Err: fmt.Errorf("%w: el comprobante ya fue informado en un resumen diario", domain.ErrConflict)}
	}
	prevStatus := doc.SunatStatus

	l := g.log.With().Str("document_id", doc.ID).Str("company_id", doc.CompanyID).
		Str("kind", string(doc.Kind)).Str("numero", doc.Numero).Logger()

	company, err := g.companyRepo.GetByID(ctx, doc.CompanyID)
	if err != nil || company == nil {
		return g.fail(&doc, "fetch-company", fmt.Errorf("empresa %s no encontrada: %v", doc.CompanyID, err))
	}
	branch, err := g.branchRepo.GetByID(ctx, doc.BranchID)
	if err != nil || branch == nil {
		return g.fail(&doc, "fetch-branch", fmt.Errorf("sucursal %s no encontrada: %v", doc.BranchID, err))
	}

	// ═══ 1. XML UBL 2.1 ═══════════════════════════════════════════════════════
	xmlBytes, err := g.xmlBuilder.Build(&XMLContext{Document: &doc, Company: company, Branch: branch})
	if err != nil {
		return g.fail(&doc, "xml-build", err)
	}

	// ═══ 2. Firma digital ═════════════════════════════════════════════════════
	if len(g.cert.Certificate) > 0 && g.cert.PrivateKey != nil {
		signed, digest, err := g.signer.Sign(xmlBytes, g.cert)
		if err != nil {
			return g.fail(&doc, "xml-sign", err)
		}
		xmlBytes = signed
		doc.HashCPE = digest
	}

	// ═══ 3. ZIP + almacenamiento del XML ══════════════════════════════════════
	fileName := pkgsunat.FileName(company.RUC, doc.TipoDocumento, doc.Numero)
	zipBytes, err := pkgsunat.CompressXMLToZip(xmlBytes, fileName+".xml")
	if err != nil {
		return g.fail(&doc, "zip", err)
	}
	xmlKey, err := g.storage.Put(ctx, artifactKey(&doc, fileName+".xml"), xmlBytes, "application/xml")
	if err != nil {
		return g.fail(&doc, "storage-xml", err)
	}
	doc.XMLPath = xmlKey

	// ═══ 4. Servicio SUNAT con timeout ════════════════════════════════════════
	req := SendRequest{
		Credentials:   g.credentials(company),
		TipoDocumento: doc.TipoDocumento,
		FileName:      fileName,
		Zip:           zipBytes,
	}
	callCtx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	doc.SendAttempts++
	var res SubmissionResult
	switch doc.Kind {
	case entity.KindDailySummary, entity.KindVoided, entity.KindDispatchGuide:
		var ticket *TicketResponse
		if doc.Kind == entity.KindDispatchGuide {
			ticket, err = g.client.SendDispatch(callCtx, req)
		} else {
			ticket, err = g.client.SendSummary(callCtx, req)
		}
		if err != nil {
			return g.callError(ctx, &doc, prevStatus, err)
		}
		if ticket == nil || ticket.Ticket == "" {
			return g.fail(&doc, "ticket", errors.New("SUNAT no devolvió ticket"))
		}
		doc.SunatStatus = entity.SunatProcesando
		doc.EstadoProceso = entity.ProcesoEnviado
		doc.Ticket = ticket.Ticket
		doc.LastError = ""
		res = SubmissionResult{Outcome: OutcomePending, Ticket: ticket.Ticket}

	default:
		cdr, err := g.client.SendBill(callCtx, req)
		if err != nil {
			return g.callError(ctx, &doc, prevStatus, err)
		}
		if cdr == nil {
			return g.fail(&doc, "cdr", errors.New("SUNAT no devolvió CDR"))
		}
		g.applyCDR(ctx, &doc, fileName, cdr)
		res = SubmissionResult{Outcome: OutcomeAccepted, Code: doc.SunatCode, Message: doc.SunatMessage, Notes: doc.SunatNotes}
		if doc.SunatStatus == entity.SunatRechazado {
			res.Outcome = OutcomeRejected
		}
	}

	// ═══ 5. Persistir con verificación de estado ══════════════════════════════
	doc.UpdatedAt = g.now()
	if err := g.documentRepo.UpdateSunatResult(ctx, &doc, prevStatus); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			l.Warn().Msg("el comprobante cambió de estado durante el envío")
			return SubmissionResult{Outcome: OutcomeFailed, Document: in, Err: err}
		}
		l.Error().Bool("critical", true).Err(err).Str("status", doc.SunatStatus).Msg("no se pudo persistir el resultado SUNAT")
		return SubmissionResult{Outcome: OutcomeFailed, Document: &doc, Err: err}
	}

	res.Document = &doc
	l.Info().Str("status", doc.SunatStatus).Str("code", doc.SunatCode).Str("ticket", doc.Ticket).Msg("envío SUNAT procesado")
	return res
}

// applyCDR mapea la constancia: código 0 o ≥ 4000 (observaciones) es ACEPTADO; fault o 100-3999 es RECHAZADO.
func (g *SubmissionGateway) applyCDR(ctx context.Context, doc *entity.Document, fileName string, cdr *CDRResponse) {
	doc.SunatStatus = StatusFromCDR(cdr)
	doc.SunatCode = cdr.Code
	doc.SunatMessage = cdr.Description
	doc.SunatNotes = cdr.Notes
	doc.LastError = ""
	if raw, err := json.Marshal(map[string]interface{}{
		"code":        cdr.Code,
		"description": cdr.Description,
		"notes":       cdr.Notes,
		"fault":       cdr.Fault,
	}); err == nil {
		doc.SunatResponse = raw
	}
	if len(cdr.CDRZip) > 0 {
		key, err := g.storage.Put(ctx, artifactKey(doc, "R-"+fileName+".zip"), cdr.CDRZip, "application/zip")
		if err != nil {
			g.log.Warn().Err(err).Str("document_id", doc.ID).Msg("no se pudo guardar el CDR")
		} else {
			doc.CDRPath = key
		}
	}
}

// StatusFromCDR estado SUNAT que corresponde a una constancia.
func StatusFromCDR(cdr *CDRResponse) string {
	if cdr.Fault {
		return entity.SunatRechazado
	}
	code, err := strconv.Atoi(strings.TrimSpace(cdr.Code))
	if err != nil {
		return entity.SunatRechazado
	}
	if code == 0 || code >= 4000 {
		return entity.SunatAceptado
	}
	return entity.SunatRechazado
}

// callError distingue fallas de conexión (reintentables, sin cambio de estado) de errores internos.
func (g *SubmissionGateway) callError(ctx context.Context, doc *entity.Document, prevStatus string, err error) SubmissionResult {
	if !domain.IsConnectionError(err) && (errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)) {
		err = &domain.ConnectionError{Op: "sunat", Err: err}
	}
	doc.SunatStatus = prevStatus
	doc.LastError = err.Error()
	doc.UpdatedAt = g.now()
	if perr := g.documentRepo.UpdateSunatResult(ctx, doc, prevStatus); perr != nil {
		g.log.Warn().Err(perr).Str("document_id", doc.ID).Msg("no se pudo registrar el último error")
	}
	if domain.IsConnectionError(err) {
		g.log.Warn().Err(err).Str("document_id", doc.ID).Str("company_id", doc.CompanyID).Msg("SUNAT no disponible")
		return SubmissionResult{Outcome: OutcomeConnectionError, Document: doc, Err: err}
	}
	g.log.Critical().Err(err).Str("document_id", doc.ID).Str("company_id", doc.CompanyID).Msg("error en llamada SUNAT")
	return SubmissionResult{Outcome: OutcomeFailed, Document: doc, Err: err}
}

func (g *SubmissionGateway) fail(doc *entity.Document, step string, err error) SubmissionResult {
	g.log.Critical().Err(err).
		Str("document_id", doc.ID).Str("company_id", doc.CompanyID).Str("step", step).
		Msg("envío SUNAT interrumpido")
	return SubmissionResult{Outcome: OutcomeFailed, Document: doc, Err: fmt.Errorf("%s: %w", step, err)}
}

func (g *SubmissionGateway) credentials(company *entity.Company) Credentials {
	return companyCredentials(company, g.cfg)
}

func companyCredentials(company *entity.Company, cfg GatewayConfig) Credentials {
	c := Credentials{RUC: company.RUC, User: company.SolUser, Password: company.SolPassword}
	if c.User == "" {
		c.User = cfg.SolUser
		c.Password = cfg.SolPassword
	}
	return c
}

// rejectedBatch un RC o RA rechazado no se reenvía: al conciliar el rechazo sus comprobantes
// quedaron libres y pueden estar ya en otro lote.
func rejectedBatch(doc *entity.Document) error {
	if doc.SunatStatus != entity.SunatRechazado {
		return nil
	}
	switch doc.Kind {
	case entity.KindDailySummary, entity.KindVoided:
		return domain.NewRuleError(RuleRejectedBatch, doc.ID, domain.ErrRejectedBatch)
	}
	return nil
}

func artifactKey(doc *entity.Document, name string) string {
	return path.Join(doc.CompanyID, doc.TipoDocumento, name)
}
