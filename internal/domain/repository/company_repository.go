package repository

import (
	"context"

	"github.com/jhoicas/facturacion-sunat-api/internal/domain/entity"
)

// CompanyRepository lectura de emisores.
type CompanyRepository interface {
	GetByID(ctx context.Context, id string) (*entity.Company, error)
}

// BranchRepository lectura de sucursales y sus series habilitadas.
type BranchRepository interface {
	GetByID(ctx context.Context, id string) (*entity.Branch, error)
	// GetSeries devuelve la serie activa o nil, nil si no está registrada.
	GetSeries(ctx context.Context, branchID, tipoDocumento, serie string) (*entity.BranchSeries, error)
}

// ClientRepository lectura de adquirientes.
type ClientRepository interface {
	GetByID(ctx context.Context, companyID, id string) (*entity.Client, error)
}
