package postgres

import (
	"context"

	"github.com/jhoicas/facturacion-sunat-api/internal/domain/repository"
)

var _ repository.CorrelativeRepository = (*CorrelativeRepo)(nil)

// CorrelativeRepo contador por (sucursal, tipo, serie). El upsert toma el bloqueo de fila,
// de modo que dos transacciones concurrentes obtienen números consecutivos.
type CorrelativeRepo struct {
	q Querier
}

// NewCorrelativeRepository construye el adaptador. Debe recibir la tx del comprobante.
func NewCorrelativeRepository(q Querier) *CorrelativeRepo {
	return &CorrelativeRepo{q: q}
}

// Next incrementa y devuelve el siguiente número; la primera vez parte de initial+1.
func (r *CorrelativeRepo) Next(ctx context.Context, branchID, tipoDocumento, serie string, initial int64) (int64, error) {
	const query = `
		INSERT INTO correlatives (branch_id, tipo_documento, serie, current, updated_at)
		VALUES ($1, $2, $3, $4 + 1, now())
		ON CONFLICT (branch_id, tipo_documento, serie)
		DO UPDATE SET current = correlatives.current + 1, updated_at = now()
		RETURNING current`
	var n int64
	if err := r.q.QueryRow(ctx, query, branchID, tipoDocumento, serie, initial).Scan(&n); err != nil {
		return 0, wrapTransient("next correlative", err)
	}
	return n, nil
}

// Current último número asignado (0 si la serie aún no tiene contador).
func (r *CorrelativeRepo) Current(ctx context.Context, branchID, tipoDocumento, serie string) (int64, error) {
	const query = `SELECT current FROM correlatives WHERE branch_id = $1 AND tipo_documento = $2 AND serie = $3`
	var n int64
	err := r.q.QueryRow(ctx, query, branchID, tipoDocumento, serie).Scan(&n)
	if err != nil {
		if isNoRows(err) {
			return 0, nil
		}
		return 0, wrapTransient("current correlative", err)
	}
	return n, nil
}
