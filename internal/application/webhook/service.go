package webhook

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jhoicas/facturacion-sunat-api/internal/application/dto"
	"github.com/jhoicas/facturacion-sunat-api/internal/domain"
	"github.com/jhoicas/facturacion-sunat-api/internal/domain/entity"
	"github.com/jhoicas/facturacion-sunat-api/internal/domain/repository"
	"github.com/jhoicas/facturacion-sunat-api/pkg/logger"
)

// Defaults valores aplicados cuando el registro no los indica.
type Defaults struct {
	MaxRetries        int
	MaxRetriesCeiling int
	RetryDelay        time.Duration
	Timeout           time.Duration
}

// Service alta, consulta y baja de suscripciones.
type Service struct {
	webhookRepo  repository.WebhookRepository
	deliveryRepo repository.WebhookDeliveryRepository
	defaults     Defaults
	log          *logger.Logger
}

// NewService construye el servicio de webhooks.
func NewService(webhookRepo repository.WebhookRepository, deliveryRepo repository.WebhookDeliveryRepository, defaults Defaults, log *logger.Logger) *Service {
	if defaults.MaxRetries <= 0 {
		defaults.MaxRetries = 5
	}
	if defaults.MaxRetriesCeiling <= 0 {
		defaults.MaxRetriesCeiling = 10
	}
	if defaults.RetryDelay <= 0 {
		defaults.RetryDelay = time.Minute
	}
	if defaults.Timeout <= 0 {
		defaults.Timeout = 10 * time.Second
	}
	return &Service{
		webhookRepo:  webhookRepo,
		deliveryRepo: deliveryRepo,
		defaults:     defaults,
		log:          log.Named("webhook_service"),
	}
}

// Register crea la suscripción. Sin secreto se genera uno de 32 bytes; se devuelve una sola vez.
func (s *Service) Register(ctx context.Context, companyID string, in dto.CreateWebhookRequest) (*dto.WebhookCreated, error) {
	secret := in.Secret
	if secret == "" {
		buf := make([]byte, 32)
		if _, err := rand.Read(buf); err != nil {
			return nil, fmt.Errorf("generar secreto: %w", err)
		}
		secret = hex.EncodeToString(buf)
	}

	maxRetries := s.defaults.MaxRetries
	if in.MaxRetries != nil {
		maxRetries = *in.MaxRetries
	}
	if maxRetries > s.defaults.MaxRetriesCeiling {
		return nil, fmt.Errorf("%w: max_retries no puede superar %d", domain.ErrInvalidInput, s.defaults.MaxRetriesCeiling)
	}
	if maxRetries < 1 {
		maxRetries = 1
	}

	now := time.Now()
	w := &entity.Webhook{
		ID:         uuid.New().String(),
		CompanyID:  companyID,
		Name:       strings.TrimSpace(in.Name),
		URL:        in.URL,
		Method:     strings.ToUpper(in.Method),
		Secret:     secret,
		Events:     in.Events,
		Headers:    in.Headers,
		Active:     true,
		MaxRetries: maxRetries,
		RetryDelay: s.defaults.RetryDelay,
		Timeout:    s.defaults.Timeout,
		Backoff:    in.Backoff,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if w.Method == "" {
		w.Method = "POST"
	}
	if w.Backoff == "" {
		w.Backoff = entity.BackoffLinear
	}
	if in.RetryDelaySeconds > 0 {
		w.RetryDelay = time.Duration(in.RetryDelaySeconds) * time.Second
	}
	if in.TimeoutSeconds > 0 {
		w.Timeout = time.Duration(in.TimeoutSeconds) * time.Second
	}

	if err := s.webhookRepo.Create(ctx, w); err != nil {
		return nil, fmt.Errorf("crear webhook: %w", err)
	}
	s.log.Info().Str("webhook_id", w.ID).Str("company_id", companyID).Strs("events", w.Events).Msg("webhook registrado")
	return &dto.WebhookCreated{Webhook: w, Secret: secret}, nil
}

// List webhooks de la empresa.
func (s *Service) List(ctx context.Context, companyID string) ([]*entity.Webhook, error) {
	return s.webhookRepo.ListByCompany(ctx, companyID)
}

// Delete elimina la suscripción; las entregas pendientes terminan en failed.
func (s *Service) Delete(ctx context.Context, companyID, id string) error {
	w, err := s.webhookRepo.GetByID(ctx, companyID, id)
	if err != nil {
		return fmt.Errorf("obtener webhook: %w", err)
	}
	if w == nil {
		return domain.ErrNotFound
	}
	return s.webhookRepo.Delete(ctx, companyID, id)
}

// ListDeliveries historial de entregas de un webhook.
func (s *Service) ListDeliveries(ctx context.Context, companyID, webhookID string, page dto.PageRequest) ([]*entity.WebhookDelivery, error) {
	w, err := s.webhookRepo.GetByID(ctx, companyID, webhookID)
	if err != nil {
		return nil, fmt.Errorf("obtener webhook: %w", err)
	}
	if w == nil {
		return nil, domain.ErrNotFound
	}
	page.DefaultPage()
	return s.deliveryRepo.ListByWebhook(ctx, companyID, webhookID, page.Limit, page.Offset)
}
