package entity

import "time"

// Correlative contador monotónico por (sucursal, tipo de documento, serie). Nunca se elimina.
type Correlative struct {
	BranchID      string
	TipoDocumento string
	Serie         string
	Current       int64
	UpdatedAt     time.Time
}
