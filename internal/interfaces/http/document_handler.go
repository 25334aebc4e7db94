package http

import (
	"context"
	"fmt"

	"github.com/gofiber/fiber/v2"

	"github.com/jhoicas/facturacion-sunat-api/internal/application/billing"
	"github.com/jhoicas/facturacion-sunat-api/internal/application/dto"
	"github.com/jhoicas/facturacion-sunat-api/internal/domain"
	"github.com/jhoicas/facturacion-sunat-api/internal/domain/entity"
)

// DocumentAPI operaciones de comprobantes que consumen los handlers.
// *billing.DocumentService la implementa.
type DocumentAPI interface {
	Create(ctx context.Context, companyID string, kind entity.DocumentKind, in dto.CreateDocumentRequest) (*dto.DocumentResult, error)
	CreateDailySummary(ctx context.Context, companyID string, in dto.CreateSummaryRequest) (*entity.Document, error)
	CreateVoidedCommunication(ctx context.Context, companyID string, in dto.CreateVoidedRequest) (*dto.OfficialAnnulmentResult, error)
	AnnulLocally(ctx context.Context, companyID string, in dto.LocalAnnulmentRequest) (*entity.Document, error)
	AnnulOfficially(ctx context.Context, companyID string, in dto.OfficialAnnulmentRequest) (*dto.OfficialAnnulmentResult, error)
	Get(ctx context.Context, companyID string, kind entity.DocumentKind, id string) (*entity.Document, error)
	SendToSunat(ctx context.Context, companyID string, kind entity.DocumentKind, id string, async bool) (*dto.SendResult, error)
	CheckStatus(ctx context.Context, companyID string, kind entity.DocumentKind, id string) (*dto.StatusResult, error)
	Download(ctx context.Context, companyID string, kind entity.DocumentKind, id, format string) (*billing.Artifact, error)
}

// Slugs de ruta por tipo de comprobante.
var kindSlugs = []struct {
	Slug string
	Kind entity.DocumentKind
}{
	{"invoices", entity.KindInvoice},
	{"boletas", entity.KindBoleta},
	{"credit-notes", entity.KindCreditNote},
	{"debit-notes", entity.KindDebitNote},
	{"dispatch-guides", entity.KindDispatchGuide},
	{"retentions", entity.KindRetention},
	{"sales-notes", entity.KindSalesNote},
	{"daily-summaries", entity.KindDailySummary},
	{"voided-documents", entity.KindVoided},
}

// DocumentHandler maneja las rutas de un tipo de comprobante (protegido).
type DocumentHandler struct {
	svc  DocumentAPI
	kind entity.DocumentKind
}

// NewDocumentHandler construye el handler para un tipo.
func NewDocumentHandler(svc DocumentAPI, kind entity.DocumentKind) *DocumentHandler {
	return &DocumentHandler{svc: svc, kind: kind}
}

func requireCompany(c *fiber.Ctx) (string, error) {
	companyID := GetCompanyID(c)
	if companyID == "" {
		return "", domain.ErrUnauthorized
	}
	return companyID, nil
}

// Create emite un comprobante del tipo del handler.
// POST /api/{slug}
func (h *DocumentHandler) Create(c *fiber.Ctx) error {
	companyID, err := requireCompany(c)
	if err != nil {
		return err
	}
	switch h.kind {
	case entity.KindDailySummary:
		var in dto.CreateSummaryRequest
		if err := bindAndValidate(c, &in); err != nil {
			return err
		}
		doc, err := h.svc.CreateDailySummary(c.UserContext(), companyID, in)
		if err != nil {
			return err
		}
		return ok(c, fiber.StatusCreated, doc, "resumen diario creado")
	case entity.KindVoided:
		var in dto.CreateVoidedRequest
		if err := bindAndValidate(c, &in); err != nil {
			return err
		}
		res, err := h.svc.CreateVoidedCommunication(c.UserContext(), companyID, in)
		if err != nil {
			return err
		}
		return ok(c, fiber.StatusCreated, res, "comunicación de baja creada")
	}
	var in dto.CreateDocumentRequest
	if err := bindAndValidate(c, &in); err != nil {
		return err
	}
	res, err := h.svc.Create(c.UserContext(), companyID, h.kind, in)
	if err != nil {
		return err
	}
	return ok(c, fiber.StatusCreated, res, "comprobante creado")
}

// GetByID devuelve el comprobante.
// GET /api/{slug}/:id
func (h *DocumentHandler) GetByID(c *fiber.Ctx) error {
	companyID, err := requireCompany(c)
	if err != nil {
		return err
	}
	doc, err := h.svc.Get(c.UserContext(), companyID, h.kind, c.Params("id"))
	if err != nil {
		return err
	}
	return ok(c, fiber.StatusOK, doc, "")
}

// Send envía el comprobante a SUNAT; con ?async=true solo lo encola.
// POST /api/{slug}/:id/send-sunat
func (h *DocumentHandler) Send(c *fiber.Ctx) error {
	companyID, err := requireCompany(c)
	if err != nil {
		return err
	}
	async := c.QueryBool("async", false)
	res, err := h.svc.SendToSunat(c.UserContext(), companyID, h.kind, c.Params("id"), async)
	if err != nil {
		return err
	}
	status := fiber.StatusOK
	if async {
		status = fiber.StatusAccepted
	}
	return ok(c, status, res, res.Message)
}

// CheckStatus consulta el ticket pendiente en SUNAT.
// GET /api/{slug}/:id/check-status
func (h *DocumentHandler) CheckStatus(c *fiber.Ctx) error {
	companyID, err := requireCompany(c)
	if err != nil {
		return err
	}
	res, err := h.svc.CheckStatus(c.UserContext(), companyID, h.kind, c.Params("id"))
	if err != nil {
		return err
	}
	return ok(c, fiber.StatusOK, res, "")
}

// Download entrega xml, cdr o pdf como adjunto.
// GET /api/{slug}/:id/download-{format}
func (h *DocumentHandler) Download(format string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		companyID, err := requireCompany(c)
		if err != nil {
			return err
		}
		art, err := h.svc.Download(c.UserContext(), companyID, h.kind, c.Params("id"), format)
		if err != nil {
			return err
		}
		c.Set(fiber.HeaderContentType, art.ContentType)
		c.Set(fiber.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", art.FileName))
		return c.Status(fiber.StatusOK).Send(art.Data)
	}
}

// AnnulmentHandler anulación local y oficial (protegido).
type AnnulmentHandler struct {
	svc DocumentAPI
}

// NewAnnulmentHandler construye el handler.
func NewAnnulmentHandler(svc DocumentAPI) *AnnulmentHandler {
	return &AnnulmentHandler{svc: svc}
}

// Local anula un comprobante no aceptado sin comunicarlo a SUNAT.
// POST /api/annulments/local
func (h *AnnulmentHandler) Local(c *fiber.Ctx) error {
	companyID, err := requireCompany(c)
	if err != nil {
		return err
	}
	var in dto.LocalAnnulmentRequest
	if err := bindAndValidate(c, &in); err != nil {
		return err
	}
	doc, err := h.svc.AnnulLocally(c.UserContext(), companyID, in)
	if err != nil {
		return err
	}
	return ok(c, fiber.StatusOK, doc, "comprobante anulado localmente")
}

// Official genera la comunicación de baja o el resumen con estado 3.
// POST /api/annulments/official
func (h *AnnulmentHandler) Official(c *fiber.Ctx) error {
	companyID, err := requireCompany(c)
	if err != nil {
		return err
	}
	var in dto.OfficialAnnulmentRequest
	if err := bindAndValidate(c, &in); err != nil {
		return err
	}
	res, err := h.svc.AnnulOfficially(c.UserContext(), companyID, in)
	if err != nil {
		return err
	}
	return ok(c, fiber.StatusCreated, res, "anulación registrada")
}
