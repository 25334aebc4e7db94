package billing

import (
	"context"
	"time"

	"github.com/jhoicas/facturacion-sunat-api/internal/domain/repository"
	"github.com/jhoicas/facturacion-sunat-api/pkg/logger"
)

// ReconcileConfig parámetros del worker de conciliación.
type ReconcileConfig struct {
	PollInterval time.Duration
	BatchSize    int
	Lease        time.Duration
}

// ReconciliationWorker consulta periódicamente los tickets de comprobantes en PROCESANDO.
type ReconciliationWorker struct {
	documentRepo repository.DocumentRepository
	reconciler   *StatusReconciler
	cfg          ReconcileConfig
	log          *logger.Logger
}

// NewReconciliationWorker construye el worker.
func NewReconciliationWorker(documentRepo repository.DocumentRepository, reconciler *StatusReconciler, cfg ReconcileConfig, log *logger.Logger) *ReconciliationWorker {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Minute
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 20
	}
	if cfg.Lease <= 0 {
		cfg.Lease = 2 * time.Minute
	}
	return &ReconciliationWorker{
		documentRepo: documentRepo,
		reconciler:   reconciler,
		cfg:          cfg,
		log:          log.Named("reconcile_worker"),
	}
}

// Start corre hasta que ctx se cancela.
func (w *ReconciliationWorker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()
	w.log.Info().Dur("poll", w.cfg.PollInterval).Int("batch", w.cfg.BatchSize).Msg("worker iniciado")
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.RunOnce(ctx)
		}
	}
}

// RunOnce procesa un lote y devuelve cuántos tickets quedaron con resultado final.
func (w *ReconciliationWorker) RunOnce(ctx context.Context) int {
	docs, err := w.documentRepo.ClaimProcessing(ctx, w.cfg.BatchSize, w.cfg.Lease)
	if err != nil {
		if ctx.Err() == nil {
			w.log.Error().Err(err).Msg("ClaimProcessing falló")
		}
		return 0
	}
	done := 0
	for _, doc := range docs {
		if ctx.Err() != nil {
			break
		}
		res := w.reconciler.CheckStatus(ctx, doc)
		switch res.Outcome {
		case OutcomeAccepted, OutcomeRejected:
			done++
		case OutcomeConnectionError:
			w.log.Warn().Err(res.Err).Str("document_id", doc.ID).Msg("SUNAT no disponible, se reintentará")
		case OutcomeFailed:
			w.log.Error().Err(res.Err).Str("document_id", doc.ID).Str("ticket", doc.Ticket).Msg("consulta de ticket fallida")
		}
	}
	return done
}
