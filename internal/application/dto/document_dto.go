package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/jhoicas/facturacion-sunat-api/internal/domain/entity"
)

// CreateDocumentRequest body común para POST /api/{invoices|boletas|credit-notes|...}.
// Los bloques Note, Dispatch y Retention solo aplican a su clase de comprobante.
type CreateDocumentRequest struct {
	BranchID         string            `json:"branch_id" validate:"required"`
	Serie            string            `json:"serie" validate:"required,len=4,alphanum"`
	ClientID         string            `json:"client_id,omitempty"`
	Client           *ClientInput      `json:"client,omitempty" validate:"omitempty"`
	TipoOperacion    string            `json:"tipo_operacion,omitempty" validate:"omitempty,len=4,numeric"`
	Moneda           string            `json:"moneda,omitempty" validate:"omitempty,len=3"`
	FechaEmision     *time.Time        `json:"fecha_emision,omitempty"`
	FechaVencimiento *time.Time        `json:"fecha_vencimiento,omitempty"`
	FormaPago        string            `json:"forma_pago,omitempty" validate:"omitempty,oneof=Contado Credito"`
	Observacion      string            `json:"observacion,omitempty" validate:"max=500"`
	MedioPago        string            `json:"medio_pago,omitempty" validate:"omitempty,len=3,numeric"`
	DetraccionCodigo string            `json:"detraccion_codigo,omitempty" validate:"omitempty,len=3"`
	DetraccionCuenta string            `json:"detraccion_cuenta,omitempty"`
	PercepcionCodigo string            `json:"percepcion_codigo,omitempty" validate:"omitempty,len=2"`
	Items            []LineRequest     `json:"items" validate:"dive"`
	Note             *NoteRequest      `json:"note,omitempty" validate:"omitempty"`
	Dispatch         *DispatchRequest  `json:"dispatch,omitempty" validate:"omitempty"`
	Retention        *RetentionRequest `json:"retention,omitempty" validate:"omitempty"`
}

// ClientInput adquiriente sin registrar (boletas y notas de venta).
type ClientInput struct {
	TipoDocumento   string `json:"tipo_documento" validate:"required,max=1"`
	NumeroDocumento string `json:"numero_documento" validate:"required,max=15"`
	RazonSocial     string `json:"razon_social" validate:"required,max=200"`
	Direccion       string `json:"direccion,omitempty"`
	Email           string `json:"email,omitempty" validate:"omitempty,email"`
}

// ToRef convierte a la referencia embebida en el comprobante.
func (c *ClientInput) ToRef() *entity.ClientRef {
	if c == nil {
		return nil
	}
	return &entity.ClientRef{
		TipoDocumento:   c.TipoDocumento,
		NumeroDocumento: c.NumeroDocumento,
		RazonSocial:     c.RazonSocial,
		Direccion:       c.Direccion,
		Email:           c.Email,
	}
}

// LineRequest línea de detalle (valores unitarios sin impuestos).
type LineRequest struct {
	Codigo           string          `json:"codigo,omitempty" validate:"max=30"`
	CodigoSunat      string          `json:"codigo_sunat,omitempty" validate:"max=8"`
	Descripcion      string          `json:"descripcion" validate:"required,max=500"`
	Unidad           string          `json:"unidad,omitempty" validate:"max=3"`
	Cantidad         decimal.Decimal `json:"cantidad"`
	MtoValorUnitario decimal.Decimal `json:"mto_valor_unitario"`
	TipAfeIgv        string          `json:"tip_afe_igv,omitempty" validate:"omitempty,len=2,numeric"`
	PorcentajeIgv    decimal.Decimal `json:"porcentaje_igv"`
	PorcentajeIsc    decimal.Decimal `json:"porcentaje_isc"`
	TipSisIsc        string          `json:"tip_sis_isc,omitempty" validate:"omitempty,len=2"`
	CantidadBolsas   decimal.Decimal `json:"cantidad_bolsas"`
}

// ToEntity línea sin importes calculados.
func (l LineRequest) ToEntity() entity.DocumentLine {
	return entity.DocumentLine{
		Codigo:           l.Codigo,
		CodigoSunat:      l.CodigoSunat,
		Descripcion:      l.Descripcion,
		Unidad:           l.Unidad,
		Cantidad:         l.Cantidad,
		MtoValorUnitario: l.MtoValorUnitario,
		TipAfeIgv:        l.TipAfeIgv,
		PorcentajeIgv:    l.PorcentajeIgv,
		PorcentajeIsc:    l.PorcentajeIsc,
		TipSisIsc:        l.TipSisIsc,
		CantidadBolsas:   l.CantidadBolsas,
	}
}

// NoteRequest referencia al comprobante afectado por una nota de crédito o débito.
type NoteRequest struct {
	TipoDocAfectado string `json:"tipo_doc_afectado" validate:"required,oneof=01 03"`
	NumDocAfectado  string `json:"num_doc_afectado" validate:"required,max=13"`
	CodMotivo       string `json:"cod_motivo" validate:"required,len=2"`
	DesMotivo       string `json:"des_motivo,omitempty" validate:"max=250"`
}

// AddressRequest punto de partida o llegada.
type AddressRequest struct {
	Ubigeo    string `json:"ubigeo" validate:"required,len=6,numeric"`
	Direccion string `json:"direccion" validate:"required,max=200"`
}

// CarrierRequest transportista (modalidad 01).
type CarrierRequest struct {
	TipoDocumento   string `json:"tipo_documento" validate:"required"`
	NumeroDocumento string `json:"numero_documento" validate:"required"`
	RazonSocial     string `json:"razon_social" validate:"required"`
	NroMTC          string `json:"nro_mtc,omitempty"`
}

// DriverRequest conductor y vehículo (modalidad 02).
type DriverRequest struct {
	TipoDocumento   string `json:"tipo_documento" validate:"required"`
	NumeroDocumento string `json:"numero_documento" validate:"required"`
	Nombres         string `json:"nombres" validate:"required"`
	Apellidos       string `json:"apellidos" validate:"required"`
	Licencia        string `json:"licencia" validate:"required"`
	Placa           string `json:"placa" validate:"required"`
}

// DispatchRequest datos de traslado de la guía de remisión remitente.
type DispatchRequest struct {
	FechaTraslado     time.Time       `json:"fecha_traslado" validate:"required"`
	MotivoTraslado    string          `json:"motivo_traslado" validate:"required,len=2"`
	DesTraslado       string          `json:"des_traslado,omitempty"`
	ModalidadTraslado string          `json:"modalidad_traslado" validate:"required,oneof=01 02"`
	PesoTotal         decimal.Decimal `json:"peso_total"`
	UnidadPeso        string          `json:"unidad_peso,omitempty"`
	NumeroBultos      int             `json:"numero_bultos,omitempty" validate:"min=0"`
	Partida           AddressRequest  `json:"partida" validate:"required"`
	Llegada           AddressRequest  `json:"llegada" validate:"required"`
	Transportista     *CarrierRequest `json:"transportista,omitempty" validate:"omitempty"`
	Conductor         *DriverRequest  `json:"conductor,omitempty" validate:"omitempty"`
}

// RetentionItemRequest comprobante del proveedor pagado.
type RetentionItemRequest struct {
	TipoDocumento   string          `json:"tipo_documento" validate:"required,len=2"`
	NumeroDocumento string          `json:"numero_documento" validate:"required"`
	FechaEmision    time.Time       `json:"fecha_emision" validate:"required"`
	Moneda          string          `json:"moneda,omitempty"`
	ImporteTotal    decimal.Decimal `json:"importe_total"`
	FechaPago       time.Time       `json:"fecha_pago" validate:"required"`
	ImportePagado   decimal.Decimal `json:"importe_pagado"`
}

// RetentionRequest régimen y comprobantes del comprobante de retención.
type RetentionRequest struct {
	Regimen string                 `json:"regimen" validate:"required,oneof=01 02"`
	Items   []RetentionItemRequest `json:"items" validate:"required,min=1,dive"`
}

// CreateSummaryRequest body para POST /api/daily-summaries.
type CreateSummaryRequest struct {
	BranchID        string    `json:"branch_id" validate:"required"`
	FechaReferencia time.Time `json:"fecha_referencia" validate:"required"`
}

// VoidedItemRequest comprobante a comunicar de baja.
type VoidedItemRequest struct {
	DocumentID string `json:"document_id" validate:"required"`
	Motivo     string `json:"motivo" validate:"required,max=100"`
}

// CreateVoidedRequest body para POST /api/voided-documents.
type CreateVoidedRequest struct {
	BranchID        string              `json:"branch_id" validate:"required"`
	FechaReferencia time.Time           `json:"fecha_referencia" validate:"required"`
	Items           []VoidedItemRequest `json:"items" validate:"required,min=1,dive"`
}

// DocumentResult comprobante creado más advertencias no bloqueantes (bancarización).
type DocumentResult struct {
	Document *entity.Document `json:"document"`
	Warnings []string         `json:"warnings,omitempty"`
}

// SendResult respuesta de POST /api/{slug}/:id/send-sunat.
type SendResult struct {
	Outcome  string           `json:"outcome"`
	Document *entity.Document `json:"document"`
	Ticket   string           `json:"ticket,omitempty"`
	Code     string           `json:"code,omitempty"`
	Message  string           `json:"message,omitempty"`
	Notes    []string         `json:"notes,omitempty"`
}

// StatusResult respuesta de GET /api/{slug}/:id/check-status.
type StatusResult struct {
	Outcome          string           `json:"outcome"`
	Document         *entity.Document `json:"document"`
	BoletasUpdated   int64            `json:"boletas_updated"`
	AlreadyProcessed bool             `json:"already_processed"`
}
