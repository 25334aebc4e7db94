package dto

import "github.com/jhoicas/facturacion-sunat-api/internal/domain/entity"

// CreateWebhookRequest body para POST /api/webhooks.
type CreateWebhookRequest struct {
	Name              string            `json:"name" validate:"required,max=100"`
	URL               string            `json:"url" validate:"required,url"`
	Method            string            `json:"method,omitempty" validate:"omitempty,oneof=POST PUT PATCH"`
	Secret            string            `json:"secret,omitempty" validate:"omitempty,min=16"`
	Events            []string          `json:"events" validate:"required,min=1,dive,oneof=* document.created document.accepted document.rejected document.voided summary.processed"`
	Headers           map[string]string `json:"headers,omitempty"`
	MaxRetries        *int              `json:"max_retries,omitempty" validate:"omitempty,min=0"`
	RetryDelaySeconds int               `json:"retry_delay_seconds,omitempty" validate:"omitempty,min=1,max=86400"`
	TimeoutSeconds    int               `json:"timeout_seconds,omitempty" validate:"omitempty,min=1,max=60"`
	Backoff           string            `json:"backoff,omitempty" validate:"omitempty,oneof=linear fixed"`
}

// WebhookCreated incluye el secreto generado; solo se muestra al registrar.
type WebhookCreated struct {
	Webhook *entity.Webhook `json:"webhook"`
	Secret  string          `json:"secret"`
}

// ProcessResult resumen de un drenado de entregas.
type ProcessResult struct {
	Claimed   int `json:"claimed"`
	Delivered int `json:"delivered"`
	Retrying  int `json:"retrying"`
	Failed    int `json:"failed"`
}
