package repository

import (
	"context"
	"time"

	"github.com/jhoicas/facturacion-sunat-api/internal/domain/entity"
)

// WebhookRepository suscripciones de webhooks por empresa.
type WebhookRepository interface {
	Create(ctx context.Context, w *entity.Webhook) error
	GetByID(ctx context.Context, companyID, id string) (*entity.Webhook, error)
	ListByCompany(ctx context.Context, companyID string) ([]*entity.Webhook, error)
	// ListActiveByEvent webhooks activos de la empresa suscritos al evento (o a "*").
	ListActiveByEvent(ctx context.Context, companyID, event string) ([]*entity.Webhook, error)
	Delete(ctx context.Context, companyID, id string) error
}

// WebhookDeliveryRepository entregas pendientes e históricas.
type WebhookDeliveryRepository interface {
	CreateBatch(ctx context.Context, deliveries []*entity.WebhookDelivery) error
	// ClaimDue toma entregas pending con next_retry_at vencido y las reserva por lease,
	// de modo que dos drenados simultáneos no envían la misma entrega.
	ClaimDue(ctx context.Context, limit int, lease time.Duration) ([]*entity.WebhookDelivery, error)
	Update(ctx context.Context, d *entity.WebhookDelivery) error
	GetByID(ctx context.Context, companyID, id string) (*entity.WebhookDelivery, error)
	ListByWebhook(ctx context.Context, companyID, webhookID string, limit, offset int) ([]*entity.WebhookDelivery, error)
	// ResetForRetry vuelve la entrega a pending con intentos en cero.
	ResetForRetry(ctx context.Context, companyID, id string, at time.Time) error
}
