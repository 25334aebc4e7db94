package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jhoicas/facturacion-sunat-api/internal/domain/entity"
	"github.com/jhoicas/facturacion-sunat-api/internal/domain/repository"
)

var _ repository.ClientRepository = (*ClientRepo)(nil)

// ClientRepo adquirientes por empresa.
type ClientRepo struct {
	pool *pgxpool.Pool
}

// NewClientRepository construye el adaptador.
func NewClientRepository(pool *pgxpool.Pool) *ClientRepo {
	return &ClientRepo{pool: pool}
}

// GetByID obtiene un cliente de la empresa; nil si no existe o es de otra empresa.
func (r *ClientRepo) GetByID(ctx context.Context, companyID, id string) (*entity.Client, error) {
	query := `
		SELECT id, company_id, tipo_documento, numero_documento, razon_social,
		       direccion, email, created_at, updated_at
		FROM clients WHERE id = $1 AND company_id = $2`
	var c entity.Client
	err := r.pool.QueryRow(ctx, query, id, companyID).Scan(
		&c.ID, &c.CompanyID, &c.TipoDocumento, &c.NumeroDocumento, &c.RazonSocial,
		&c.Direccion, &c.Email, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get client: %w", err)
	}
	return &c, nil
}
