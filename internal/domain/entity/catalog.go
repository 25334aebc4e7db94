package entity

import "github.com/shopspring/decimal"

// DetractionCode bien o servicio sujeto a detracción (catálogo 54).
type DetractionCode struct {
	Code        string          `json:"code"`
	Description string          `json:"description"`
	Rate        decimal.Decimal `json:"rate"` // porcentaje
	Active      bool            `json:"active"`
}

// PaymentMethod medio de pago (catálogo 59), requerido por la bancarización.
type PaymentMethod struct {
	Code        string `json:"code"`
	Description string `json:"description"`
	Bankarized  bool   `json:"bankarized"` // medio válido para bancarización
}

// VoidedReason motivo de baja tipificado.
type VoidedReason struct {
	Code        string `json:"code"`
	Category    string `json:"category"`
	Description string `json:"description"`
}
