package webhook_test

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jhoicas/facturacion-sunat-api/internal/domain"
	"github.com/jhoicas/facturacion-sunat-api/internal/domain/entity"
)

// ── Webhooks en memoria ──────────────────────────────────────────────────────

type memWebhooks struct {
	mu    sync.Mutex
	hooks map[string]*entity.Webhook
}

func newMemWebhooks(hooks ...*entity.Webhook) *memWebhooks {
	r := &memWebhooks{hooks: map[string]*entity.Webhook{}}
	for _, h := range hooks {
		r.hooks[h.ID] = h
	}
	return r
}

func (r *memWebhooks) Create(_ context.Context, w *entity.Webhook) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.hooks[w.ID]; ok {
		return domain.ErrDuplicate
	}
	c := *w
	r.hooks[w.ID] = &c
	return nil
}

func (r *memWebhooks) GetByID(_ context.Context, companyID, id string) (*entity.Webhook, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.hooks[id]
	if !ok || w.CompanyID != companyID {
		return nil, nil
	}
	c := *w
	return &c, nil
}

func (r *memWebhooks) ListByCompany(_ context.Context, companyID string) ([]*entity.Webhook, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entity.Webhook
	for _, w := range r.hooks {
		if w.CompanyID == companyID {
			c := *w
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memWebhooks) ListActiveByEvent(_ context.Context, companyID, event string) ([]*entity.Webhook, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entity.Webhook
	for _, w := range r.hooks {
		if w.CompanyID == companyID && w.Active && w.Subscribes(event) {
			c := *w
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memWebhooks) Delete(_ context.Context, companyID, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.hooks[id]
	if !ok || w.CompanyID != companyID {
		return domain.ErrNotFound
	}
	delete(r.hooks, id)
	return nil
}

// ── Entregas en memoria ──────────────────────────────────────────────────────

type memDeliveries struct {
	mu     sync.Mutex
	now    func() time.Time
	items  map[string]*entity.WebhookDelivery
	leased map[string]time.Time
}

func newMemDeliveries(now func() time.Time) *memDeliveries {
	return &memDeliveries{now: now, items: map[string]*entity.WebhookDelivery{}, leased: map[string]time.Time{}}
}

func (r *memDeliveries) CreateBatch(_ context.Context, ds []*entity.WebhookDelivery) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range ds {
		c := *d
		r.items[d.ID] = &c
	}
	return nil
}

func (r *memDeliveries) ClaimDue(_ context.Context, limit int, lease time.Duration) ([]*entity.WebhookDelivery, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	var out []*entity.WebhookDelivery
	for id, d := range r.items {
		if len(out) >= limit {
			break
		}
		if d.Status != entity.DeliveryPending || d.NextRetryAt.After(now) {
			continue
		}
		if until, ok := r.leased[id]; ok && until.After(now) {
			continue
		}
		r.leased[id] = now.Add(lease)
		c := *d
		out = append(out, &c)
	}
	return out, nil
}

func (r *memDeliveries) Update(_ context.Context, d *entity.WebhookDelivery) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[d.ID]; !ok {
		return domain.ErrNotFound
	}
	c := *d
	r.items[d.ID] = &c
	delete(r.leased, d.ID)
	return nil
}

func (r *memDeliveries) GetByID(_ context.Context, companyID, id string) (*entity.WebhookDelivery, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.items[id]
	if !ok || d.CompanyID != companyID {
		return nil, nil
	}
	c := *d
	return &c, nil
}

func (r *memDeliveries) ListByWebhook(_ context.Context, companyID, webhookID string, limit, offset int) ([]*entity.WebhookDelivery, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entity.WebhookDelivery
	for _, d := range r.items {
		if d.CompanyID == companyID && d.WebhookID == webhookID {
			c := *d
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (r *memDeliveries) ResetForRetry(_ context.Context, companyID, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.items[id]
	if !ok || d.CompanyID != companyID {
		return domain.ErrNotFound
	}
	d.Status = entity.DeliveryPending
	d.Attempts = 0
	d.NextRetryAt = at
	d.LastError = ""
	return nil
}

func (r *memDeliveries) all() []*entity.WebhookDelivery {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entity.WebhookDelivery
	for _, d := range r.items {
		c := *d
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].WebhookID < out[j].WebhookID })
	return out
}
