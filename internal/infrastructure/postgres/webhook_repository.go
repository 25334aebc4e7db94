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

var _ repository.WebhookRepository = (*WebhookRepo)(nil)

// WebhookRepo suscripciones por empresa. Los eventos van en TEXT[] y las cabeceras en JSONB.
type WebhookRepo struct {
	pool *pgxpool.Pool
}

// NewWebhookRepository construye el adaptador.
func NewWebhookRepository(pool *pgxpool.Pool) *WebhookRepo {
	return &WebhookRepo{pool: pool}
}

const webhookColumns = `id, company_id, name, url, method, secret, events, headers, active,
	max_retries, retry_delay_seconds, timeout_seconds, backoff, created_at, updated_at`

// Create persiste la suscripción.
func (r *WebhookRepo) Create(ctx context.Context, w *entity.Webhook) error {
	headers, err := toJSON(w.Headers)
	if err != nil {
		return fmt.Errorf("serializar cabeceras: %w", err)
	}
	query := `INSERT INTO webhooks (` + webhookColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`
	_, err = r.pool.Exec(ctx, query,
		w.ID, w.CompanyID, w.Name, w.URL, w.Method, w.Secret, w.Events, headers, w.Active,
		w.MaxRetries, int(w.RetryDelay/time.Second), int(w.Timeout/time.Second), w.Backoff,
		w.CreatedAt, w.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: webhook %s", domain.ErrDuplicate, w.ID)
		}
		return fmt.Errorf("insert webhook: %w", err)
	}
	return nil
}

// GetByID webhook de la empresa o nil.
func (r *WebhookRepo) GetByID(ctx context.Context, companyID, id string) (*entity.Webhook, error) {
	query := `SELECT ` + webhookColumns + ` FROM webhooks WHERE id = $1 AND company_id = $2`
	w, err := scanWebhook(r.pool.QueryRow(ctx, query, id, companyID))
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get webhook: %w", err)
	}
	return w, nil
}

// ListByCompany webhooks de la empresa.
func (r *WebhookRepo) ListByCompany(ctx context.Context, companyID string) ([]*entity.Webhook, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+webhookColumns+` FROM webhooks WHERE company_id = $1 ORDER BY created_at`, companyID)
	if err != nil {
		return nil, fmt.Errorf("list webhooks: %w", err)
	}
	return collectWebhooks(rows)
}

// ListActiveByEvent webhooks activos suscritos al evento o a "*".
func (r *WebhookRepo) ListActiveByEvent(ctx context.Context, companyID, event string) ([]*entity.Webhook, error) {
	query := `SELECT ` + webhookColumns + ` FROM webhooks
		WHERE company_id = $1 AND active AND ($2 = ANY(events) OR '*' = ANY(events))
		ORDER BY created_at`
	rows, err := r.pool.Query(ctx, query, companyID, event)
	if err != nil {
		return nil, fmt.Errorf("list webhooks by event: %w", err)
	}
	return collectWebhooks(rows)
}

// Delete elimina la suscripción y da por fallidas sus entregas pendientes.
func (r *WebhookRepo) Delete(ctx context.Context, companyID, id string) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `DELETE FROM webhooks WHERE id = $1 AND company_id = $2`, id, companyID)
		if err != nil {
			return fmt.Errorf("delete webhook: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return domain.ErrNotFound
		}
		_, err = tx.Exec(ctx, `
			UPDATE webhook_deliveries
			SET status = 'failed', last_error = 'webhook eliminado', locked_until = NULL, updated_at = now()
			WHERE webhook_id = $1 AND status = 'pending'`, id)
		if err != nil {
			return fmt.Errorf("fail pending deliveries: %w", err)
		}
		return nil
	})
}

func collectWebhooks(rows pgx.Rows) ([]*entity.Webhook, error) {
	defer rows.Close()
	var list []*entity.Webhook
	for rows.Next() {
		w, err := scanWebhook(rows)
		if err != nil {
			return nil, fmt.Errorf("scan webhook: %w", err)
		}
		list = append(list, w)
	}
	return list, rows.Err()
}

func scanWebhook(row pgx.Row) (*entity.Webhook, error) {
	var w entity.Webhook
	var headers []byte
	var delaySeconds, timeoutSeconds int
	err := row.Scan(
		&w.ID, &w.CompanyID, &w.Name, &w.URL, &w.Method, &w.Secret, &w.Events, &headers, &w.Active,
		&w.MaxRetries, &delaySeconds, &timeoutSeconds, &w.Backoff, &w.CreatedAt, &w.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	w.RetryDelay = time.Duration(delaySeconds) * time.Second
	w.Timeout = time.Duration(timeoutSeconds) * time.Second
	if err := fromJSON(headers, &w.Headers); err != nil {
		return nil, fmt.Errorf("decodificar cabeceras: %w", err)
	}
	return &w, nil
}
