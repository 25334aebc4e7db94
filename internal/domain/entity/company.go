package entity

import "time"

// Company emisor electrónico (tenant). Cada empresa tiene un RUC y credenciales SOL.
type Company struct {
	ID              string    `json:"id"`
	RUC             string    `json:"ruc"`
	RazonSocial     string    `json:"razon_social"`
	NombreComercial string    `json:"nombre_comercial,omitempty"`
	Direccion       string    `json:"direccion,omitempty"`
	Ubigeo          string    `json:"ubigeo,omitempty"`
	Email           string    `json:"email,omitempty"`
	SolUser         string    `json:"-"` // usuario secundario SOL; vacío = el de configuración
	SolPassword     string    `json:"-"`
	Status          string    `json:"status"` // active, suspended
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Branch establecimiento anexo de la empresa (código SUNAT de 4 dígitos, "0000" = domicilio fiscal).
type Branch struct {
	ID        string    `json:"id"`
	CompanyID string    `json:"company_id"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	Direccion string    `json:"direccion"`
	Ubigeo    string    `json:"ubigeo"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// BranchSeries serie habilitada en una sucursal para un tipo de documento.
type BranchSeries struct {
	ID                 string `json:"id"`
	BranchID           string `json:"branch_id"`
	TipoDocumento      string `json:"tipo_documento"`
	Serie              string `json:"serie"`
	CorrelativoInicial int64  `json:"correlativo_inicial"` // último número emitido fuera del sistema
	Active             bool   `json:"active"`
}
