package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/jhoicas/facturacion-sunat-api/internal/application/billing"
	"github.com/jhoicas/facturacion-sunat-api/internal/application/webhook"
	"github.com/jhoicas/facturacion-sunat-api/internal/domain/entity"
	"github.com/jhoicas/facturacion-sunat-api/pkg/jwt"
)

var (
	_ DocumentAPI = (*billing.DocumentService)(nil)
	_ WebhookAPI  = (*webhook.Service)(nil)
	_ DeliveryAPI = (*webhook.Dispatcher)(nil)
)

// RouterDeps dependencias para el router.
type RouterDeps struct {
	Documents  DocumentAPI
	Webhooks   WebhookAPI
	Deliveries DeliveryAPI
	JWTSecret  string
}

// Router registra las rutas de la API. Todas requieren Bearer Token.
func Router(app *fiber.App, deps RouterDeps) {
	api := app.Group("/api", AuthMiddleware(deps.JWTSecret))

	readers := RequireRole(jwt.RoleAdmin, jwt.RoleFacturador, jwt.RoleConsulta)
	writers := RequireRole(jwt.RoleAdmin, jwt.RoleFacturador)

	// Comprobantes, un grupo por tipo
	for _, ks := range kindSlugs {
		h := NewDocumentHandler(deps.Documents, ks.Kind)
		g := api.Group("/" + ks.Slug)
		g.Post("/", writers, h.Create)
		g.Get("/:id", readers, h.GetByID)
		if ks.Kind.Submittable() {
			g.Post("/:id/send-sunat", writers, h.Send)
		}
		if ks.Kind.Async() {
			g.Get("/:id/check-status", readers, h.CheckStatus)
		}
		if ks.Kind.Submittable() {
			g.Get("/:id/download-xml", readers, h.Download(billing.FormatXML))
			g.Get("/:id/download-cdr", readers, h.Download(billing.FormatCDR))
		}
		if ks.Kind != entity.KindDailySummary && ks.Kind != entity.KindVoided {
			g.Get("/:id/download-pdf", readers, h.Download(billing.FormatPDF))
		}
	}

	// Anulaciones
	annulments := api.Group("/annulments", writers)
	annulmentHandler := NewAnnulmentHandler(deps.Documents)
	annulments.Post("/local", annulmentHandler.Local)
	annulments.Post("/official", annulmentHandler.Official)

	// Webhooks (solo admin)
	webhooks := api.Group("/webhooks", RequireRole(jwt.RoleAdmin))
	webhookHandler := NewWebhookHandler(deps.Webhooks, deps.Deliveries)
	webhooks.Post("/process", webhookHandler.Process)
	webhooks.Post("/deliveries/:id/retry", webhookHandler.Retry)
	webhooks.Post("/", webhookHandler.Create)
	webhooks.Get("/", webhookHandler.List)
	webhooks.Get("/:id/deliveries", webhookHandler.Deliveries)
	webhooks.Delete("/:id", webhookHandler.Delete)
}
