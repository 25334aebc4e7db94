package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jhoicas/facturacion-sunat-api/internal/domain/entity"
	"github.com/jhoicas/facturacion-sunat-api/internal/domain/repository"
)

var _ repository.CatalogRepository = (*CatalogRepo)(nil)

// CatalogRepo catálogos SUNAT sembrados por migración o por cmd/seed_sunat.
type CatalogRepo struct {
	pool *pgxpool.Pool
}

// NewCatalogRepository construye el adaptador.
func NewCatalogRepository(pool *pgxpool.Pool) *CatalogRepo {
	return &CatalogRepo{pool: pool}
}

// GetDetractionCode código del catálogo 54 o nil si no existe.
func (r *CatalogRepo) GetDetractionCode(ctx context.Context, code string) (*entity.DetractionCode, error) {
	var d entity.DetractionCode
	err := r.pool.QueryRow(ctx,
		`SELECT code, description, rate, active FROM detraction_codes WHERE code = $1`, code,
	).Scan(&d.Code, &d.Description, &d.Rate, &d.Active)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get detraction code: %w", err)
	}
	return &d, nil
}

// GetPaymentMethod medio de pago del catálogo 59 o nil si no existe.
func (r *CatalogRepo) GetPaymentMethod(ctx context.Context, code string) (*entity.PaymentMethod, error) {
	var p entity.PaymentMethod
	err := r.pool.QueryRow(ctx,
		`SELECT code, description, bankarized FROM payment_methods WHERE code = $1`, code,
	).Scan(&p.Code, &p.Description, &p.Bankarized)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get payment method: %w", err)
	}
	return &p, nil
}

// ListVoidedReasons motivos de baja tipificados.
func (r *CatalogRepo) ListVoidedReasons(ctx context.Context) ([]*entity.VoidedReason, error) {
	rows, err := r.pool.Query(ctx, `SELECT code, category, description FROM voided_reasons ORDER BY code`)
	if err != nil {
		return nil, fmt.Errorf("list voided reasons: %w", err)
	}
	list, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*entity.VoidedReason, error) {
		var v entity.VoidedReason
		err := row.Scan(&v.Code, &v.Category, &v.Description)
		return &v, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan voided reason: %w", err)
	}
	return list, nil
}
