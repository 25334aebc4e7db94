package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/jhoicas/facturacion-sunat-api/internal/application/dto"
	"github.com/jhoicas/facturacion-sunat-api/internal/domain"
	"github.com/jhoicas/facturacion-sunat-api/internal/domain/entity"
	"github.com/jhoicas/facturacion-sunat-api/internal/domain/repository"
	"github.com/jhoicas/facturacion-sunat-api/pkg/logger"
)

const maxErrorLen = 500

// Config parámetros del despachador.
type Config struct {
	BatchSize   int
	Concurrency int
	Lease       time.Duration
	// InlineDrain dispara un drenado en segundo plano tras cada Trigger.
	InlineDrain bool
}

// Envelope cuerpo JSON enviado a los suscriptores.
type Envelope struct {
	Event      string          `json:"event"`
	OccurredAt time.Time       `json:"occurred_at"`
	Data       json.RawMessage `json:"data"`
}

// Dispatcher encola y entrega eventos a los webhooks de cada empresa.
type Dispatcher struct {
	webhookRepo  repository.WebhookRepository
	deliveryRepo repository.WebhookDeliveryRepository
	sender       Sender
	cfg          Config
	log          *logger.Logger
	now          func() time.Time
}

// NewDispatcher construye el despachador.
func NewDispatcher(webhookRepo repository.WebhookRepository, deliveryRepo repository.WebhookDeliveryRepository, sender Sender, cfg Config, log *logger.Logger) *Dispatcher {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.Lease <= 0 {
		cfg.Lease = 2 * time.Minute
	}
	return &Dispatcher{
		webhookRepo:  webhookRepo,
		deliveryRepo: deliveryRepo,
		sender:       sender,
		cfg:          cfg,
		log:          log.Named("webhook_dispatcher"),
		now:          time.Now,
	}
}

// SetClock reemplaza el reloj (tests).
func (d *Dispatcher) SetClock(now func() time.Time) { d.now = now }

// Trigger crea una entrega pending por cada webhook activo de la empresa suscrito al evento.
func (d *Dispatcher) Trigger(ctx context.Context, companyID, event string, payload interface{}) error {
	hooks, err := d.webhookRepo.ListActiveByEvent(ctx, companyID, event)
	if err != nil {
		return fmt.Errorf("listar webhooks: %w", err)
	}
	if len(hooks) == 0 {
		return nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("serializar payload: %w", err)
	}
	now := d.now()
	body, err := json.Marshal(Envelope{Event: event, OccurredAt: now.UTC(), Data: data})
	if err != nil {
		return fmt.Errorf("serializar evento: %w", err)
	}

	deliveries := make([]*entity.WebhookDelivery, 0, len(hooks))
	for _, h := range hooks {
		deliveries = append(deliveries, &entity.WebhookDelivery{
			ID:          uuid.New().String(),
			WebhookID:   h.ID,
			CompanyID:   companyID,
			Event:       event,
			Payload:     body,
			Status:      entity.DeliveryPending,
			NextRetryAt: now,
			CreatedAt:   now,
			UpdatedAt:   now,
		})
	}
	if err := d.deliveryRepo.CreateBatch(ctx, deliveries); err != nil {
		return fmt.Errorf("crear entregas: %w", err)
	}
	d.log.Debug().Str("company_id", companyID).Str("event", event).Int("deliveries", len(deliveries)).Msg("evento encolado")

	if d.cfg.InlineDrain {
		go func() {
			drainCtx, cancel := context.WithTimeout(context.Background(), d.cfg.Lease)
			defer cancel()
			if _, err := d.ProcessPendingDeliveries(drainCtx); err != nil {
				d.log.Warn().Err(err).Msg("drenado inmediato fallido")
			}
		}()
	}
	return nil
}

// ProcessPendingDeliveries toma las entregas vencidas y las envía; cada una se procesa de
// forma independiente y con concurrencia acotada. Puede invocarse en paralelo: el lease del
// repositorio impide que la misma entrega salga dos veces.
func (d *Dispatcher) ProcessPendingDeliveries(ctx context.Context) (dto.ProcessResult, error) {
	var res dto.ProcessResult
	deliveries, err := d.deliveryRepo.ClaimDue(ctx, d.cfg.BatchSize, d.cfg.Lease)
	if err != nil {
		return res, fmt.Errorf("reservar entregas: %w", err)
	}
	res.Claimed = len(deliveries)
	if len(deliveries) == 0 {
		return res, nil
	}

	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		sem = make(chan struct{}, d.cfg.Concurrency)
	)
	for _, del := range deliveries {
		del := del
		sem <- struct{}{}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			status := d.deliver(ctx, del)
			mu.Lock()
			defer mu.Unlock()
			switch status {
			case entity.DeliverySuccess:
				res.Delivered++
			case entity.DeliveryFailed:
				res.Failed++
			default:
				res.Retrying++
			}
		}()
	}
	wg.Wait()
	return res, nil
}

// deliver hace un intento y persiste el resultado; devuelve el nuevo estado.
func (d *Dispatcher) deliver(ctx context.Context, del *entity.WebhookDelivery) string {
	l := d.log.With().Str("delivery_id", del.ID).Str("webhook_id", del.WebhookID).
		Str("company_id", del.CompanyID).Str("event", del.Event).Logger()

	hook, err := d.webhookRepo.GetByID(ctx, del.CompanyID, del.WebhookID)
	if err != nil {
		l.Warn().Err(err).Msg("no se pudo leer el webhook")
		return entity.DeliveryPending
	}
	now := d.now()
	if hook == nil || !hook.Active {
		del.Status = entity.DeliveryFailed
		del.LastError = "webhook eliminado o inactivo"
		del.UpdatedAt = now
		d.save(ctx, del)
		return del.Status
	}

	resp, sendErr := d.sender.Send(ctx, Request{
		URL:        hook.URL,
		Method:     hook.Method,
		Headers:    hook.Headers,
		Body:       del.Payload,
		Secret:     hook.Secret,
		Event:      del.Event,
		DeliveryID: del.ID,
		Timestamp:  now,
		Timeout:    hook.Timeout,
	})
	now = d.now()
	del.Attempts++
	del.UpdatedAt = now
	if resp != nil {
		del.ResponseCode = resp.StatusCode
	}

	switch {
	case sendErr == nil && resp != nil && resp.StatusCode >= 200 && resp.StatusCode < 300:
		del.Status = entity.DeliverySuccess
		del.LastError = ""
		del.DeliveredAt = &now
	default:
		msg := "respuesta vacía"
		switch {
		case sendErr != nil:
			msg = sendErr.Error()
		case resp != nil:
			msg = fmt.Sprintf("HTTP %d: %s", resp.StatusCode, resp.Body)
		}
		del.LastError = truncate(msg, maxErrorLen)
		if del.Attempts >= hook.MaxRetries {
			del.Status = entity.DeliveryFailed
		} else {
			del.Status = entity.DeliveryPending
			del.NextRetryAt = hook.NextRetryAt(now, del.Attempts)
		}
	}

	d.save(ctx, del)
	ev := l.Info()
	if del.Status != entity.DeliverySuccess {
		ev = l.Warn()
	}
	ev.Str("status", del.Status).Int("attempts", del.Attempts).Int("response_code", del.ResponseCode).
		Str("last_error", del.LastError).Msg("entrega de webhook")
	return del.Status
}

func (d *Dispatcher) save(ctx context.Context, del *entity.WebhookDelivery) {
	if err := d.deliveryRepo.Update(ctx, del); err != nil {
		d.log.Error().Err(err).Str("delivery_id", del.ID).Msg("no se pudo actualizar la entrega")
	}
}

// RetryDelivery reinicia los intentos de una entrega y la vuelve a encolar para ya.
func (d *Dispatcher) RetryDelivery(ctx context.Context, companyID, deliveryID string) (*entity.WebhookDelivery, error) {
	del, err := d.deliveryRepo.GetByID(ctx, companyID, deliveryID)
	if err != nil {
		return nil, fmt.Errorf("obtener entrega: %w", err)
	}
	if del == nil {
		return nil, domain.ErrNotFound
	}
	now := d.now()
	if err := d.deliveryRepo.ResetForRetry(ctx, companyID, deliveryID, now); err != nil {
		return nil, fmt.Errorf("reencolar entrega: %w", err)
	}
	del.Status = entity.DeliveryPending
	del.Attempts = 0
	del.NextRetryAt = now
	del.LastError = ""
	del.UpdatedAt = now
	d.log.Info().Str("delivery_id", del.ID).Str("company_id", companyID).Msg("entrega reencolada manualmente")
	return del, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
