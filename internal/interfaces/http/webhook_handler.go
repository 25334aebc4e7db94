package http

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"github.com/jhoicas/facturacion-sunat-api/internal/application/dto"
	"github.com/jhoicas/facturacion-sunat-api/internal/domain/entity"
)

// WebhookAPI registro y consulta de webhooks.
type WebhookAPI interface {
	Register(ctx context.Context, companyID string, in dto.CreateWebhookRequest) (*dto.WebhookCreated, error)
	List(ctx context.Context, companyID string) ([]*entity.Webhook, error)
	Delete(ctx context.Context, companyID, id string) error
	ListDeliveries(ctx context.Context, companyID, webhookID string, page dto.PageRequest) ([]*entity.WebhookDelivery, error)
}

// DeliveryAPI drenado y reintento de entregas.
type DeliveryAPI interface {
	ProcessPendingDeliveries(ctx context.Context) (dto.ProcessResult, error)
	RetryDelivery(ctx context.Context, companyID, deliveryID string) (*entity.WebhookDelivery, error)
}

// WebhookHandler maneja /api/webhooks (protegido, solo admin).
type WebhookHandler struct {
	svc        WebhookAPI
	dispatcher DeliveryAPI
}

// NewWebhookHandler construye el handler.
func NewWebhookHandler(svc WebhookAPI, dispatcher DeliveryAPI) *WebhookHandler {
	return &WebhookHandler{svc: svc, dispatcher: dispatcher}
}

// Create registra un webhook. El secreto solo se devuelve aquí.
// POST /api/webhooks
func (h *WebhookHandler) Create(c *fiber.Ctx) error {
	companyID, err := requireCompany(c)
	if err != nil {
		return err
	}
	var in dto.CreateWebhookRequest
	if err := bindAndValidate(c, &in); err != nil {
		return err
	}
	res, err := h.svc.Register(c.UserContext(), companyID, in)
	if err != nil {
		return err
	}
	return ok(c, fiber.StatusCreated, res, "webhook registrado")
}

// List GET /api/webhooks
func (h *WebhookHandler) List(c *fiber.Ctx) error {
	companyID, err := requireCompany(c)
	if err != nil {
		return err
	}
	list, err := h.svc.List(c.UserContext(), companyID)
	if err != nil {
		return err
	}
	return ok(c, fiber.StatusOK, list, "")
}

// Delete DELETE /api/webhooks/:id
func (h *WebhookHandler) Delete(c *fiber.Ctx) error {
	companyID, err := requireCompany(c)
	if err != nil {
		return err
	}
	if err := h.svc.Delete(c.UserContext(), companyID, c.Params("id")); err != nil {
		return err
	}
	return ok(c, fiber.StatusOK, nil, "webhook eliminado")
}

// Deliveries lista el historial de entregas.
// GET /api/webhooks/:id/deliveries?limit=&offset=
func (h *WebhookHandler) Deliveries(c *fiber.Ctx) error {
	companyID, err := requireCompany(c)
	if err != nil {
		return err
	}
	var page dto.PageRequest
	if err := c.QueryParser(&page); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "parámetros de paginación inválidos")
	}
	if err := validate.Struct(page); err != nil {
		return err
	}
	page.DefaultPage()
	list, err := h.svc.ListDeliveries(c.UserContext(), companyID, c.Params("id"), page)
	if err != nil {
		return err
	}
	return ok(c, fiber.StatusOK, fiber.Map{
		"items": list,
		"page":  dto.PageResponse{Limit: page.Limit, Offset: page.Offset},
	}, "")
}

// Retry reprograma una entrega fallida.
// POST /api/webhooks/deliveries/:id/retry
func (h *WebhookHandler) Retry(c *fiber.Ctx) error {
	companyID, err := requireCompany(c)
	if err != nil {
		return err
	}
	del, err := h.dispatcher.RetryDelivery(c.UserContext(), companyID, c.Params("id"))
	if err != nil {
		return err
	}
	return ok(c, fiber.StatusOK, del, "entrega reprogramada")
}

// Process drena manualmente las entregas pendientes.
// POST /api/webhooks/process
func (h *WebhookHandler) Process(c *fiber.Ctx) error {
	res, err := h.dispatcher.ProcessPendingDeliveries(c.UserContext())
	if err != nil {
		return err
	}
	return ok(c, fiber.StatusOK, res, "entregas procesadas")
}
