package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jhoicas/facturacion-sunat-api/internal/application/billing"
	"github.com/jhoicas/facturacion-sunat-api/internal/domain/repository"
)

var _ billing.BillingTxRunner = (*TxRunner)(nil)

// TxRunner ejecuta callbacks dentro de una transacción PostgreSQL.
type TxRunner struct {
	pool *pgxpool.Pool
}

// NewTxRunner construye el runner con el pool.
func NewTxRunner(pool *pgxpool.Pool) *TxRunner {
	return &TxRunner{pool: pool}
}

// RunBilling inicia una transacción con el contador de correlativos y los comprobantes
// atados a ella y hace Commit o Rollback. Serialización y deadlock se devuelven como
// domain.ErrTransient para que el llamador reintente la transacción completa.
func (r *TxRunner) RunBilling(ctx context.Context, fn func(
	correlativeRepo repository.CorrelativeRepository,
	documentRepo repository.DocumentRepository,
) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(NewCorrelativeRepository(tx), NewDocumentRepository(tx)); err != nil {
		if isTransient(err) {
			return wrapTransient("transaction", err)
		}
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return wrapTransient("commit transaction", err)
	}
	return nil
}
