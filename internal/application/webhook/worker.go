package webhook

import (
	"context"
	"time"

	"github.com/jhoicas/facturacion-sunat-api/pkg/logger"
)

// Worker drena periódicamente las entregas pendientes.
type Worker struct {
	dispatcher *Dispatcher
	interval   time.Duration
	log        *logger.Logger
}

// NewWorker construye el worker.
func NewWorker(dispatcher *Dispatcher, interval time.Duration, log *logger.Logger) *Worker {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &Worker{dispatcher: dispatcher, interval: interval, log: log.Named("webhook_worker")}
}

// Start corre hasta que ctx se cancela.
func (w *Worker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	w.log.Info().Dur("poll", w.interval).Msg("worker iniciado")
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			res, err := w.dispatcher.ProcessPendingDeliveries(ctx)
			if err != nil {
				if ctx.Err() == nil {
					w.log.Error().Err(err).Msg("drenado de webhooks fallido")
				}
				continue
			}
			if res.Claimed > 0 {
				w.log.Debug().Int("claimed", res.Claimed).Int("delivered", res.Delivered).
					Int("retrying", res.Retrying).Int("failed", res.Failed).Msg("drenado de webhooks")
			}
		}
	}
}
