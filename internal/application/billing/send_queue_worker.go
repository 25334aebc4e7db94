package billing

import (
	"context"
	"sync"
	"time"

	"github.com/jhoicas/facturacion-sunat-api/internal/domain/entity"
	"github.com/jhoicas/facturacion-sunat-api/internal/domain/repository"
	"github.com/jhoicas/facturacion-sunat-api/pkg/logger"
)

// SendQueueConfig parámetros del worker de envíos encolados.
type SendQueueConfig struct {
	PollInterval    time.Duration
	Concurrency     int
	MaxSendAttempts int
	Lease           time.Duration
}

// SendQueueWorker toma comprobantes EN_COLA y los envía a SUNAT.
type SendQueueWorker struct {
	documentRepo repository.DocumentRepository
	gateway      *SubmissionGateway
	notifier     notifier
	cfg          SendQueueConfig
	log          *logger.Logger
	wg           sync.WaitGroup
}

// NewSendQueueWorker construye el worker.
func NewSendQueueWorker(documentRepo repository.DocumentRepository, gateway *SubmissionGateway, events EventPublisher, cfg SendQueueConfig, log *logger.Logger) *SendQueueWorker {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.Lease <= 0 {
		cfg.Lease = 2 * time.Minute
	}
	l := log.Named("send_queue")
	return &SendQueueWorker{
		documentRepo: documentRepo,
		gateway:      gateway,
		notifier:     notifier{events: events, log: l},
		cfg:          cfg,
		log:          l,
	}
}

// Start corre el ciclo de sondeo hasta que ctx se cancela y espera los envíos en curso.
func (w *SendQueueWorker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	sem := make(chan struct{}, w.cfg.Concurrency)
	w.log.Info().Dur("poll", w.cfg.PollInterval).Int("concurrency", w.cfg.Concurrency).
		Int("max_attempts", w.cfg.MaxSendAttempts).Msg("worker iniciado")

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("apagando, esperando envíos en curso")
			w.wg.Wait()
			return
		case <-ticker.C:
			available := w.cfg.Concurrency - len(sem)
			if available <= 0 {
				continue
			}
			docs, err := w.documentRepo.ClaimQueued(ctx, available, w.cfg.Lease)
			if err != nil {
				if ctx.Err() != nil {
					continue
				}
				w.log.Error().Err(err).Msg("ClaimQueued falló")
				continue
			}
			for _, doc := range docs {
				doc := doc
				sem <- struct{}{}
				w.wg.Add(1)
				go func() {
					defer w.wg.Done()
					defer func() { <-sem }()
					// Contexto propio: un envío en curso termina aunque se apague el servidor.
					sendCtx, cancel := context.WithTimeout(context.Background(), w.cfg.Lease)
					defer cancel()
					w.Process(sendCtx, doc)
				}()
			}
		}
	}
}

// Process envía un comprobante reservado. Agotados los intentos por fallas de conexión
// vuelve a PENDIENTE conservando el último error.
func (w *SendQueueWorker) Process(ctx context.Context, doc *entity.Document) SubmissionResult {
	res := w.gateway.Send(ctx, doc)
	switch res.Outcome {
	case OutcomeAccepted, OutcomeRejected:
		w.notifier.publishOutcome(ctx, res.Document)
	case OutcomeConnectionError:
		d := res.Document
		if w.cfg.MaxSendAttempts > 0 && d != nil && d.SendAttempts >= w.cfg.MaxSendAttempts && d.SunatStatus == entity.SunatEnCola {
			d.SunatStatus = entity.SunatPendiente
			if err := w.documentRepo.UpdateSunatResult(ctx, d, entity.SunatEnCola); err != nil {
				w.log.Warn().Err(err).Str("document_id", d.ID).Msg("no se pudo sacar de la cola")
			} else {
				w.log.Warn().Str("document_id", d.ID).Int("attempts", d.SendAttempts).
					Str("last_error", d.LastError).Msg("intentos agotados, comprobante devuelto a PENDIENTE")
			}
		}
	case OutcomeFailed:
		w.log.Error().Err(res.Err).Str("document_id", doc.ID).Msg("envío encolado fallido")
	}
	return res
}
