package webhook_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/facturacion-sunat-api/internal/application/webhook"
	"github.com/jhoicas/facturacion-sunat-api/internal/domain"
	"github.com/jhoicas/facturacion-sunat-api/internal/domain/entity"
	"github.com/jhoicas/facturacion-sunat-api/internal/mocks"
	"github.com/jhoicas/facturacion-sunat-api/pkg/logger"
)

const companyID = "company-1"

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newHook(id string, events ...string) *entity.Webhook {
	return &entity.Webhook{
		ID: id, CompanyID: companyID, Name: id, URL: "https://erp.example.com/hooks/" + id,
		Method: "POST", Secret: "s3cr3t-" + id, Events: events, Active: true,
		MaxRetries: 3, RetryDelay: time.Minute, Timeout: 5 * time.Second, Backoff: entity.BackoffLinear,
	}
}

type dispatcherFixture struct {
	clock      *fakeClock
	hooks      *memWebhooks
	deliveries *memDeliveries
	sender     *mocks.MockWebhookSender
	dispatcher *webhook.Dispatcher
}

func newDispatcherFixture(hooks ...*entity.Webhook) *dispatcherFixture {
	f := &dispatcherFixture{
		clock:  &fakeClock{t: time.Date(2025, 1, 13, 15, 0, 0, 0, time.UTC)},
		hooks:  newMemWebhooks(hooks...),
		sender: new(mocks.MockWebhookSender),
	}
	f.deliveries = newMemDeliveries(f.clock.now)
	f.dispatcher = webhook.NewDispatcher(f.hooks, f.deliveries, f.sender, webhook.Config{BatchSize: 10, Concurrency: 2}, logger.Nop())
	f.dispatcher.SetClock(f.clock.now)
	return f
}

// ──────────────────────────────────────────────────────────────────────────────
// Trigger: una entrega por webhook suscrito, con el envelope del evento.
// ──────────────────────────────────────────────────────────────────────────────
func TestTrigger_CreaEntregaPorSuscriptor(t *testing.T) {
	f := newDispatcherFixture(
		newHook("wh-a", entity.EventDocumentAccepted),
		newHook("wh-b", entity.EventAll),
		newHook("wh-c", entity.EventDocumentRejected),
	)
	inactive := newHook("wh-d", entity.EventAll)
	inactive.Active = false
	require.NoError(t, f.hooks.Create(context.Background(), inactive))

	err := f.dispatcher.Trigger(context.Background(), companyID, entity.EventDocumentAccepted, map[string]string{"numero": "F001-00000001"})
	require.NoError(t, err)

	ds := f.deliveries.all()
	require.Len(t, ds, 2)
	assert.Equal(t, "wh-a", ds[0].WebhookID)
	assert.Equal(t, "wh-b", ds[1].WebhookID)
	for _, d := range ds {
		assert.Equal(t, entity.DeliveryPending, d.Status)
		assert.Equal(t, f.clock.now(), d.NextRetryAt)
		var env webhook.Envelope
		require.NoError(t, json.Unmarshal(d.Payload, &env))
		assert.Equal(t, entity.EventDocumentAccepted, env.Event)
		assert.JSONEq(t, `{"numero":"F001-00000001"}`, string(env.Data))
	}
}

func TestTrigger_SinSuscriptoresNoCreaEntregas(t *testing.T) {
	f := newDispatcherFixture(newHook("wh-a", entity.EventDocumentRejected))

	require.NoError(t, f.dispatcher.Trigger(context.Background(), companyID, entity.EventDocumentCreated, struct{}{}))
	require.NoError(t, f.dispatcher.Trigger(context.Background(), "otra", entity.EventDocumentRejected, struct{}{}))

	assert.Empty(t, f.deliveries.all())
}

// ──────────────────────────────────────────────────────────────────────────────
// Entrega: 2xx marca success; un destino inalcanzable termina en failed tras
// max_retries intentos espaciados con backoff lineal.
// ──────────────────────────────────────────────────────────────────────────────
func TestProcessPendingDeliveries_Exito(t *testing.T) {
	f := newDispatcherFixture(newHook("wh-a", entity.EventAll))
	require.NoError(t, f.dispatcher.Trigger(context.Background(), companyID, entity.EventDocumentCreated, map[string]int{"n": 1}))
	f.sender.On("Send", mock.Anything, mock.MatchedBy(func(r webhook.Request) bool {
		return r.URL == "https://erp.example.com/hooks/wh-a" && r.Secret == "s3cr3t-wh-a" &&
			r.Event == entity.EventDocumentCreated && r.DeliveryID != "" && r.Method == "POST"
	})).Return(&webhook.Response{StatusCode: 204}, nil).Once()

	res, err := f.dispatcher.ProcessPendingDeliveries(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, res.Claimed)
	assert.Equal(t, 1, res.Delivered)
	d := f.deliveries.all()[0]
	assert.Equal(t, entity.DeliverySuccess, d.Status)
	assert.Equal(t, 1, d.Attempts)
	assert.Equal(t, 204, d.ResponseCode)
	require.NotNil(t, d.DeliveredAt)
	f.sender.AssertExpectations(t)
}

func TestProcessPendingDeliveries_DestinoInalcanzable(t *testing.T) {
	f := newDispatcherFixture(newHook("wh-a", entity.EventAll))
	ctx := context.Background()
	require.NoError(t, f.dispatcher.Trigger(ctx, companyID, entity.EventDocumentCreated, struct{}{}))
	f.sender.On("Send", mock.Anything, mock.Anything).
		Return(nil, &domain.ConnectionError{Op: "webhook", Err: errors.New("dial tcp: connection refused")})
	start := f.clock.now()

	res, err := f.dispatcher.ProcessPendingDeliveries(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Retrying)
	d := f.deliveries.all()[0]
	assert.Equal(t, entity.DeliveryPending, d.Status)
	assert.Equal(t, 1, d.Attempts)
	assert.Equal(t, start.Add(time.Minute), d.NextRetryAt)
	assert.Contains(t, d.LastError, "connection refused")

	// antes del próximo intento no se reserva nada
	res, err = f.dispatcher.ProcessPendingDeliveries(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Claimed)

	f.clock.advance(time.Minute)
	_, err = f.dispatcher.ProcessPendingDeliveries(ctx)
	require.NoError(t, err)
	d = f.deliveries.all()[0]
	assert.Equal(t, 2, d.Attempts)
	assert.Equal(t, f.clock.now().Add(2*time.Minute), d.NextRetryAt)

	f.clock.advance(2 * time.Minute)
	res, err = f.dispatcher.ProcessPendingDeliveries(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)
	d = f.deliveries.all()[0]
	assert.Equal(t, entity.DeliveryFailed, d.Status)
	assert.Equal(t, 3, d.Attempts)

	f.clock.advance(time.Hour)
	res, err = f.dispatcher.ProcessPendingDeliveries(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Claimed)
	f.sender.AssertNumberOfCalls(t, "Send", 3)
}

func TestProcessPendingDeliveries_RespuestaNo2xx(t *testing.T) {
	hook := newHook("wh-a", entity.EventAll)
	hook.Backoff = entity.BackoffFixed
	f := newDispatcherFixture(hook)
	require.NoError(t, f.dispatcher.Trigger(context.Background(), companyID, entity.EventDocumentVoided, struct{}{}))
	f.sender.On("Send", mock.Anything, mock.Anything).
		Return(&webhook.Response{StatusCode: 500, Body: strings.Repeat("é", 400)}, nil).Once()

	_, err := f.dispatcher.ProcessPendingDeliveries(context.Background())
	require.NoError(t, err)

	d := f.deliveries.all()[0]
	assert.Equal(t, 500, d.ResponseCode)
	assert.True(t, strings.HasPrefix(d.LastError, "HTTP 500"))
	assert.LessOrEqual(t, len(d.LastError), 500)
	assert.True(t, strings.ToValidUTF8(d.LastError, "?") == d.LastError, "no corta runas a la mitad")
	assert.Equal(t, f.clock.now().Add(time.Minute), d.NextRetryAt)
}

func TestProcessPendingDeliveries_WebhookEliminado(t *testing.T) {
	f := newDispatcherFixture(newHook("wh-a", entity.EventAll))
	require.NoError(t, f.dispatcher.Trigger(context.Background(), companyID, entity.EventDocumentCreated, struct{}{}))
	require.NoError(t, f.hooks.Delete(context.Background(), companyID, "wh-a"))

	res, err := f.dispatcher.ProcessPendingDeliveries(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, res.Failed)
	f.sender.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
}

func TestRetryDelivery(t *testing.T) {
	hook := newHook("wh-a", entity.EventAll)
	hook.MaxRetries = 1
	f := newDispatcherFixture(hook)
	ctx := context.Background()
	require.NoError(t, f.dispatcher.Trigger(ctx, companyID, entity.EventDocumentCreated, struct{}{}))
	f.sender.On("Send", mock.Anything, mock.Anything).Return(&webhook.Response{StatusCode: 503}, nil).Once()
	_, err := f.dispatcher.ProcessPendingDeliveries(ctx)
	require.NoError(t, err)
	failed := f.deliveries.all()[0]
	require.Equal(t, entity.DeliveryFailed, failed.Status)

	del, err := f.dispatcher.RetryDelivery(ctx, companyID, failed.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.DeliveryPending, del.Status)
	assert.Equal(t, 0, del.Attempts)

	f.sender.On("Send", mock.Anything, mock.Anything).Return(&webhook.Response{StatusCode: 200}, nil).Once()
	res, err := f.dispatcher.ProcessPendingDeliveries(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Delivered)

	_, err = f.dispatcher.RetryDelivery(ctx, "otra", failed.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
