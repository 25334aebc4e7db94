package webhook

import (
	"context"
	"time"
)

// Cabeceras de cada entrega.
const (
	HeaderSignature = "X-Webhook-Signature"
	HeaderEvent     = "X-Webhook-Event"
	HeaderDelivery  = "X-Webhook-Delivery"
	HeaderTimestamp = "X-Webhook-Timestamp"
)

// Request entrega lista para salir: cuerpo, cabeceras propias y secreto para firmar.
type Request struct {
	URL        string
	Method     string
	Headers    map[string]string
	Body       []byte
	Secret     string
	Event      string
	DeliveryID string
	Timestamp  time.Time
	Timeout    time.Duration
}

// Response código HTTP y un extracto del cuerpo devuelto por el suscriptor.
type Response struct {
	StatusCode int
	Body       string
}

// Sender hace la llamada HTTP firmada. Devuelve error solo ante fallas de red o timeout;
// una respuesta no 2xx viaja en Response.
type Sender interface {
	Send(ctx context.Context, req Request) (*Response, error)
}
