package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jhoicas/facturacion-sunat-api/internal/domain/entity"
	"github.com/jhoicas/facturacion-sunat-api/internal/domain/repository"
)

// Asegura que CompanyRepo y BranchRepo implementan los puertos.
var (
	_ repository.CompanyRepository = (*CompanyRepo)(nil)
	_ repository.BranchRepository  = (*BranchRepo)(nil)
)

// CompanyRepo implementación del puerto CompanyRepository sobre PostgreSQL.
type CompanyRepo struct {
	pool *pgxpool.Pool
}

// NewCompanyRepository construye el adaptador de persistencia para empresas.
func NewCompanyRepository(pool *pgxpool.Pool) *CompanyRepo {
	return &CompanyRepo{pool: pool}
}

// GetByID obtiene una empresa por ID.
func (r *CompanyRepo) GetByID(ctx context.Context, id string) (*entity.Company, error) {
	query := `
		SELECT id, ruc, razon_social, nombre_comercial, direccion, ubigeo, email,
		       sol_user, sol_password, status, created_at, updated_at
		FROM companies WHERE id = $1`
	var c entity.Company
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&c.ID, &c.RUC, &c.RazonSocial, &c.NombreComercial, &c.Direccion, &c.Ubigeo, &c.Email,
		&c.SolUser, &c.SolPassword, &c.Status, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get company: %w", err)
	}
	return &c, nil
}

// BranchRepo sucursales y series habilitadas.
type BranchRepo struct {
	pool *pgxpool.Pool
}

// NewBranchRepository construye el adaptador de sucursales.
func NewBranchRepository(pool *pgxpool.Pool) *BranchRepo {
	return &BranchRepo{pool: pool}
}

// GetByID obtiene una sucursal por ID.
func (r *BranchRepo) GetByID(ctx context.Context, id string) (*entity.Branch, error) {
	query := `
		SELECT id, company_id, code, name, direccion, ubigeo, active, created_at
		FROM branches WHERE id = $1`
	var b entity.Branch
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&b.ID, &b.CompanyID, &b.Code, &b.Name, &b.Direccion, &b.Ubigeo, &b.Active, &b.CreatedAt,
	)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get branch: %w", err)
	}
	return &b, nil
}

// GetSeries serie activa de la sucursal o nil, nil.
func (r *BranchRepo) GetSeries(ctx context.Context, branchID, tipoDocumento, serie string) (*entity.BranchSeries, error) {
	query := `
		SELECT id, branch_id, tipo_documento, serie, correlativo_inicial, active
		FROM branch_series
		WHERE branch_id = $1 AND tipo_documento = $2 AND serie = $3 AND active`
	var s entity.BranchSeries
	err := r.pool.QueryRow(ctx, query, branchID, tipoDocumento, serie).Scan(
		&s.ID, &s.BranchID, &s.TipoDocumento, &s.Serie, &s.CorrelativoInicial, &s.Active,
	)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get branch series: %w", err)
	}
	return &s, nil
}
