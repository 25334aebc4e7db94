package repository

import (
	"context"

	"github.com/jhoicas/facturacion-sunat-api/internal/domain/entity"
)

// CatalogRepository catálogos SUNAT de solo lectura.
type CatalogRepository interface {
	GetDetractionCode(ctx context.Context, code string) (*entity.DetractionCode, error)
	GetPaymentMethod(ctx context.Context, code string) (*entity.PaymentMethod, error)
	ListVoidedReasons(ctx context.Context) ([]*entity.VoidedReason, error)
}
