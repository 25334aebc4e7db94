package billing

import (
	"context"
	"errors"
	"fmt"

	"github.com/jhoicas/facturacion-sunat-api/internal/domain"
	"github.com/jhoicas/facturacion-sunat-api/internal/domain/repository"
	"github.com/jhoicas/facturacion-sunat-api/pkg/logger"
)

const maxAllocationAttempts = 3

// PersistFunc guarda el comprobante numerado dentro de la transacción del correlativo.
type PersistFunc func(n int64, documentRepo repository.DocumentRepository) error

// CorrelativeAllocator asigna números por (sucursal, tipo, serie). El incremento y el
// insert del comprobante comparten transacción: un rollback devuelve el número.
type CorrelativeAllocator struct {
	txRunner BillingTxRunner
	log      *logger.Logger
}

// NewCorrelativeAllocator construye el asignador.
func NewCorrelativeAllocator(txRunner BillingTxRunner, log *logger.Logger) *CorrelativeAllocator {
	return &CorrelativeAllocator{txRunner: txRunner, log: log.Named("correlative")}
}

// NextNumber reserva el siguiente número en su propia transacción.
func (a *CorrelativeAllocator) NextNumber(ctx context.Context, branchID, tipoDocumento, serie string, initial int64) (int64, error) {
	return a.Allocate(ctx, branchID, tipoDocumento, serie, initial, nil)
}

// Allocate incrementa el contador y ejecuta persist con el número obtenido en la misma
// transacción. Ante conflictos de serialización reintenta la transacción completa.
func (a *CorrelativeAllocator) Allocate(ctx context.Context, branchID, tipoDocumento, serie string, initial int64, persist PersistFunc) (int64, error) {
	var lastErr error
	for attempt := 1; attempt <= maxAllocationAttempts; attempt++ {
		var n int64
		err := a.txRunner.RunBilling(ctx, func(correlativeRepo repository.CorrelativeRepository, documentRepo repository.DocumentRepository) error {
			next, err := correlativeRepo.Next(ctx, branchID, tipoDocumento, serie, initial)
			if err != nil {
				return err
			}
			if persist != nil {
				if err := persist(next, documentRepo); err != nil {
					return err
				}
			}
			n = next
			return nil
		})
		if err == nil {
			return n, nil
		}
		if !errors.Is(err, domain.ErrTransient) || ctx.Err() != nil {
			return 0, err
		}
		lastErr = err
		a.log.Warn().Err(err).
			Str("branch_id", branchID).Str("serie", serie).Int("attempt", attempt).
			Msg("conflicto al asignar correlativo, reintentando")
	}
	return 0, fmt.Errorf("asignar correlativo %s %s: %w", tipoDocumento, serie, lastErr)
}
