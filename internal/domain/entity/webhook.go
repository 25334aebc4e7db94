package entity

import (
	"encoding/json"
	"time"
)

// Estados de una entrega de webhook.
const (
	DeliveryPending = "pending"
	DeliverySuccess = "success"
	DeliveryFailed  = "failed"
)

// Estrategias de espera entre reintentos.
const (
	BackoffLinear = "linear" // delay × intento
	BackoffFixed  = "fixed"
)

// Eventos publicados a los suscriptores.
const (
	EventDocumentCreated  = "document.created"
	EventDocumentAccepted = "document.accepted"
	EventDocumentRejected = "document.rejected"
	EventDocumentVoided   = "document.voided"
	EventSummaryProcessed = "summary.processed"
	EventAll              = "*"
)

// Webhook suscripción de una empresa a eventos de comprobantes.
type Webhook struct {
	ID         string            `json:"id"`
	CompanyID  string            `json:"company_id"`
	Name       string            `json:"name"`
	URL        string            `json:"url"`
	Method     string            `json:"method"`
	Secret     string            `json:"-"`
	Events     []string          `json:"events"`
	Headers    map[string]string `json:"headers,omitempty"`
	Active     bool              `json:"active"`
	MaxRetries int               `json:"max_retries"`
	RetryDelay time.Duration     `json:"retry_delay"`
	Timeout    time.Duration     `json:"timeout"`
	Backoff    string            `json:"backoff"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

// Subscribes indica si el webhook escucha el evento.
func (w *Webhook) Subscribes(event string) bool {
	for _, e := range w.Events {
		if e == EventAll || e == event {
			return true
		}
	}
	return false
}

// NextRetryAt calcula el próximo intento tras attempts intentos fallidos.
func (w *Webhook) NextRetryAt(now time.Time, attempts int) time.Time {
	if w.Backoff == BackoffFixed || attempts < 1 {
		return now.Add(w.RetryDelay)
	}
	return now.Add(w.RetryDelay * time.Duration(attempts))
}

// WebhookDelivery intento de notificación de un evento a un webhook.
type WebhookDelivery struct {
	ID           string          `json:"id"`
	WebhookID    string          `json:"webhook_id"`
	CompanyID    string          `json:"company_id"`
	Event        string          `json:"event"`
	Payload      json.RawMessage `json:"payload"`
	Status       string          `json:"status"`
	Attempts     int             `json:"attempts"`
	NextRetryAt  time.Time       `json:"next_retry_at"`
	LastError    string          `json:"last_error,omitempty"`
	ResponseCode int             `json:"response_code,omitempty"`
	DeliveredAt  *time.Time      `json:"delivered_at,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}
