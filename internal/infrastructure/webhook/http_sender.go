// Package webhook implementa el envío HTTP firmado de los webhooks de los suscriptores.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/jhoicas/facturacion-sunat-api/internal/application/webhook"
	"github.com/jhoicas/facturacion-sunat-api/internal/domain"
)

const (
	userAgent       = "facturacion-sunat-webhooks/1.0"
	maxBodyExcerpt  = 1024
	fallbackTimeout = 10 * time.Second
)

// HTTPSender implementa webhook.Sender con net/http.
type HTTPSender struct {
	client *http.Client
}

var _ webhook.Sender = (*HTTPSender)(nil)

// NewHTTPSender construye el sender. El timeout de cada entrega lo fija el webhook.
func NewHTTPSender() *HTTPSender {
	return &HTTPSender{client: &http.Client{
		CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse },
	}}
}

// Sign calcula la firma "sha256=<hex>" de HMAC-SHA256(secret, "<unix>.<body>").
func Sign(secret string, ts time.Time, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(ts.Unix(), 10)))
	mac.Write([]byte("."))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func (s *HTTPSender) Send(ctx context.Context, req webhook.Request) (*webhook.Response, error) {
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = fallbackTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	method := strings.ToUpper(req.Method)
	if method == "" {
		method = http.MethodPost
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, bytes.NewReader(req.Body))
	if err != nil {
		return nil, fmt.Errorf("webhook: crear request: %w", err)
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("User-Agent", userAgent)
	httpReq.Header.Set(webhook.HeaderEvent, req.Event)
	httpReq.Header.Set(webhook.HeaderDelivery, req.DeliveryID)
	httpReq.Header.Set(webhook.HeaderTimestamp, strconv.FormatInt(req.Timestamp.Unix(), 10))
	if req.Secret != "" {
		httpReq.Header.Set(webhook.HeaderSignature, Sign(req.Secret, req.Timestamp, req.Body))
	}

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return nil, &domain.ConnectionError{Op: "webhook." + strings.ToLower(method), Err: err}
	}
	defer resp.Body.Close()
	excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, maxBodyExcerpt))
	return &webhook.Response{StatusCode: resp.StatusCode, Body: string(excerpt)}, nil
}
