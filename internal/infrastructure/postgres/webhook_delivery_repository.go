package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jhoicas/facturacion-sunat-api/internal/domain"
	"github.com/jhoicas/facturacion-sunat-api/internal/domain/entity"
	"github.com/jhoicas/facturacion-sunat-api/internal/domain/repository"
)

var _ repository.WebhookDeliveryRepository = (*WebhookDeliveryRepo)(nil)

// WebhookDeliveryRepo cola persistente de entregas.
type WebhookDeliveryRepo struct {
	pool *pgxpool.Pool
}

// NewWebhookDeliveryRepository construye el adaptador.
func NewWebhookDeliveryRepository(pool *pgxpool.Pool) *WebhookDeliveryRepo {
	return &WebhookDeliveryRepo{pool: pool}
}

const deliveryColumns = `id, webhook_id, company_id, event, payload, status, attempts, next_retry_at,
	last_error, response_code, delivered_at, created_at, updated_at`

// CreateBatch inserta las entregas de un evento en una sola ida al servidor.
func (r *WebhookDeliveryRepo) CreateBatch(ctx context.Context, deliveries []*entity.WebhookDelivery) error {
	if len(deliveries) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, d := range deliveries {
		batch.Queue(`INSERT INTO webhook_deliveries (`+deliveryColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
			d.ID, d.WebhookID, d.CompanyID, d.Event, []byte(d.Payload), d.Status, d.Attempts, d.NextRetryAt,
			d.LastError, d.ResponseCode, d.DeliveredAt, d.CreatedAt, d.UpdatedAt,
		)
	}
	if err := r.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert webhook deliveries: %w", err)
	}
	return nil
}

// ClaimDue reserva entregas pending vencidas con SKIP LOCKED y un lease.
func (r *WebhookDeliveryRepo) ClaimDue(ctx context.Context, limit int, lease time.Duration) ([]*entity.WebhookDelivery, error) {
	query := `
		UPDATE webhook_deliveries
		SET locked_until = now() + make_interval(secs => $2)
		WHERE id IN (
			SELECT id FROM webhook_deliveries
			WHERE status = 'pending' AND next_retry_at <= now()
			  AND (locked_until IS NULL OR locked_until < now())
			ORDER BY next_retry_at
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + deliveryColumns
	rows, err := r.pool.Query(ctx, query, limit, lease.Seconds())
	if err != nil {
		return nil, fmt.Errorf("claim webhook deliveries: %w", err)
	}
	return collectDeliveries(rows)
}

// Update persiste el resultado del intento y libera el lease.
func (r *WebhookDeliveryRepo) Update(ctx context.Context, d *entity.WebhookDelivery) error {
	query := `
		UPDATE webhook_deliveries
		SET status = $2, attempts = $3, next_retry_at = $4, last_error = $5,
		    response_code = $6, delivered_at = $7, locked_until = NULL, updated_at = $8
		WHERE id = $1`
	tag, err := r.pool.Exec(ctx, query,
		d.ID, d.Status, d.Attempts, d.NextRetryAt, d.LastError, d.ResponseCode, d.DeliveredAt, d.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update webhook delivery: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// GetByID entrega de la empresa o nil.
func (r *WebhookDeliveryRepo) GetByID(ctx context.Context, companyID, id string) (*entity.WebhookDelivery, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+deliveryColumns+` FROM webhook_deliveries WHERE id = $1 AND company_id = $2`, id, companyID)
	if err != nil {
		return nil, fmt.Errorf("get webhook delivery: %w", err)
	}
	list, err := collectDeliveries(rows)
	if err != nil || len(list) == 0 {
		return nil, err
	}
	return list[0], nil
}

// ListByWebhook historial paginado, más reciente primero.
func (r *WebhookDeliveryRepo) ListByWebhook(ctx context.Context, companyID, webhookID string, limit, offset int) ([]*entity.WebhookDelivery, error) {
	query := `SELECT ` + deliveryColumns + ` FROM webhook_deliveries
		WHERE company_id = $1 AND webhook_id = $2
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4`
	rows, err := r.pool.Query(ctx, query, companyID, webhookID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list webhook deliveries: %w", err)
	}
	return collectDeliveries(rows)
}

// ResetForRetry vuelve la entrega a pending con intentos en cero.
func (r *WebhookDeliveryRepo) ResetForRetry(ctx context.Context, companyID, id string, at time.Time) error {
	query := `
		UPDATE webhook_deliveries
		SET status = 'pending', attempts = 0, next_retry_at = $3, last_error = '',
		    locked_until = NULL, updated_at = $3
		WHERE id = $1 AND company_id = $2`
	tag, err := r.pool.Exec(ctx, query, id, companyID, at)
	if err != nil {
		return fmt.Errorf("reset webhook delivery: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func collectDeliveries(rows pgx.Rows) ([]*entity.WebhookDelivery, error) {
	list, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*entity.WebhookDelivery, error) {
		var d entity.WebhookDelivery
		var payload []byte
		err := row.Scan(
			&d.ID, &d.WebhookID, &d.CompanyID, &d.Event, &payload, &d.Status, &d.Attempts, &d.NextRetryAt,
			&d.LastError, &d.ResponseCode, &d.DeliveredAt, &d.CreatedAt, &d.UpdatedAt,
		)
		d.Payload = payload
		return &d, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan webhook delivery: %w", err)
	}
	return list, nil
}
