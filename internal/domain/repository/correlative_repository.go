package repository

import "context"

// CorrelativeRepository contador persistente por (sucursal, tipo de documento, serie).
type CorrelativeRepository interface {
	// Next incrementa y devuelve el siguiente número. Si la clave no existe la crea con
	// initial+1. Debe ejecutarse en la misma transacción que inserta el comprobante.
	Next(ctx context.Context, branchID, tipoDocumento, serie string, initial int64) (int64, error)
	// Current devuelve el último número asignado (0 si la clave no existe).
	Current(ctx context.Context, branchID, tipoDocumento, serie string) (int64, error)
}
