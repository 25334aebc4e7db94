package entity

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DocumentKind clase de comprobante. Determina el tipo de documento SUNAT y el canal de envío.
type DocumentKind string

const (
	KindInvoice       DocumentKind = "invoice"
	KindBoleta        DocumentKind = "boleta"
	KindCreditNote    DocumentKind = "credit_note"
	KindDebitNote     DocumentKind = "debit_note"
	KindDispatchGuide DocumentKind = "dispatch_guide"
	KindRetention     DocumentKind = "retention"
	KindDailySummary  DocumentKind = "daily_summary"
	KindVoided        DocumentKind = "voided"
	KindSalesNote     DocumentKind = "sales_note"
)

var kindTipoDocumento = map[DocumentKind]string{
	KindInvoice:       "01",
	KindBoleta:        "03",
	KindCreditNote:    "07",
	KindDebitNote:     "08",
	KindDispatchGuide: "09",
	KindRetention:     "20",
	KindDailySummary:  "RC",
	KindVoided:        "RA",
	KindSalesNote:     "NV",
}

// Valid indica si la clase es conocida.
func (k DocumentKind) Valid() bool {
	_, ok := kindTipoDocumento[k]
	return ok
}

// TipoDocumento código del catálogo 01 (o RC/RA/NV).
func (k DocumentKind) TipoDocumento() string {
	return kindTipoDocumento[k]
}

// Async indica si SUNAT responde con ticket en lugar de CDR inmediato.
func (k DocumentKind) Async() bool {
	return k == KindDailySummary || k == KindVoided || k == KindDispatchGuide
}

// Submittable indica si el comprobante se envía a SUNAT.
func (k DocumentKind) Submittable() bool {
	return k.Valid() && k != KindSalesNote
}

// HasMonetaryLines indica si el comprobante lleva líneas con impuestos.
func (k DocumentKind) HasMonetaryLines() bool {
	switch k {
	case KindInvoice, KindBoleta, KindCreditNote, KindDebitNote, KindSalesNote:
		return true
	}
	return false
}

// Estados SUNAT del comprobante.
const (
	SunatPendiente  = "PENDIENTE"  // creado, aún no enviado
	SunatEnCola     = "EN_COLA"    // encolado para envío asíncrono
	SunatProcesando = "PROCESANDO" // enviado con ticket, esperando resultado
	SunatAceptado   = "ACEPTADO"
	SunatRechazado  = "RECHAZADO"
)

// Estados de proceso para resúmenes, bajas y guías (entrega, no resultado).
const (
	ProcesoGenerado  = "GENERADO"
	ProcesoEnviado   = "ENVIADO"
	ProcesoProcesado = "PROCESADO"
	ProcesoError     = "ERROR"
)

// Estados del eje de anulación.
const (
	AnulacionNinguna   = "sin_anular"
	AnulacionPendiente = "pendiente_anulacion"
	AnulacionAnulada   = "anulada"
)

// Familias de comprobantes según la serie.
const (
	FamilyFactura = "factura"
	FamilyBoleta  = "boleta"
)

// Document comprobante electrónico. Los datos propios de cada clase viajan en los satélites opcionales.
type Document struct {
	ID            string       `json:"id"`
	CompanyID     string       `json:"company_id"`
	BranchID      string       `json:"branch_id"`
	ClientID      string       `json:"client_id,omitempty"`
	Kind          DocumentKind `json:"kind"`
	TipoDocumento string       `json:"tipo_documento"`
	Serie         string       `json:"serie"`
	Correlativo   int64        `json:"correlativo"`
	Numero        string       `json:"numero"` // serie-correlativo formateado

	TipoOperacion    string     `json:"tipo_operacion,omitempty"`
	Moneda           string     `json:"moneda,omitempty"`
	FechaEmision     time.Time  `json:"fecha_emision"`
	FechaVencimiento *time.Time `json:"fecha_vencimiento,omitempty"`
	FormaPago        string     `json:"forma_pago,omitempty"`
	Observacion      string     `json:"observacion,omitempty"`
	Client           *ClientRef `json:"client,omitempty"`

	MtoOperGravadas    decimal.Decimal `json:"mto_oper_gravadas"`
	MtoOperExoneradas  decimal.Decimal `json:"mto_oper_exoneradas"`
	MtoOperInafectas   decimal.Decimal `json:"mto_oper_inafectas"`
	MtoOperExportacion decimal.Decimal `json:"mto_oper_exportacion"`
	MtoOperGratuitas   decimal.Decimal `json:"mto_oper_gratuitas"`
	MtoIGV             decimal.Decimal `json:"mto_igv"`
	MtoIGVGratuitas    decimal.Decimal `json:"mto_igv_gratuitas"`
	MtoISC             decimal.Decimal `json:"mto_isc"`
	MtoICBPER          decimal.Decimal `json:"mto_icbper"`
	TotalImpuestos     decimal.Decimal `json:"total_impuestos"`
	ValorVenta         decimal.Decimal `json:"valor_venta"`
	SubTotal           decimal.Decimal `json:"sub_total"`
	MtoImpVenta        decimal.Decimal `json:"mto_imp_venta"`

	DetraccionCodigo     string          `json:"detraccion_codigo,omitempty"`
	DetraccionPorcentaje decimal.Decimal `json:"detraccion_porcentaje"`
	DetraccionCuenta     string          `json:"detraccion_cuenta,omitempty"`
	MtoDetraccion        decimal.Decimal `json:"mto_detraccion"`
	MtoNetoPagar         decimal.Decimal `json:"mto_neto_pagar"`

	PercepcionCodigo      string          `json:"percepcion_codigo,omitempty"`
	PercepcionPorcentaje  decimal.Decimal `json:"percepcion_porcentaje"`
	MtoPercepcion         decimal.Decimal `json:"mto_percepcion"`
	MtoTotalConPercepcion decimal.Decimal `json:"mto_total_con_percepcion"`

	BancarizacionAplica      bool            `json:"bancarizacion_aplica"`
	BancarizacionUmbral      decimal.Decimal `json:"bancarizacion_umbral"`
	MedioPago                string          `json:"medio_pago,omitempty"`
	BancarizacionAdvertencia string          `json:"bancarizacion_advertencia,omitempty"`

	SunatStatus   string          `json:"sunat_status"`
	EstadoProceso string          `json:"estado_proceso,omitempty"`
	Ticket        string          `json:"ticket,omitempty"`
	SunatCode     string          `json:"sunat_code,omitempty"`
	SunatMessage  string          `json:"sunat_message,omitempty"`
	SunatNotes    []string        `json:"sunat_notes,omitempty"`
	SunatResponse json.RawMessage `json:"sunat_response,omitempty"`
	SendAttempts  int             `json:"send_attempts"`
	LastError     string          `json:"last_error,omitempty"`
	HashCPE       string          `json:"hash_cpe,omitempty"`
	XMLPath       string          `json:"xml_path,omitempty"`
	CDRPath       string          `json:"cdr_path,omitempty"`
	PDFPath       string          `json:"pdf_path,omitempty"`

	EstadoAnulacion     string     `json:"estado_anulacion"`
	AnuladaLocalmente   bool       `json:"anulada_localmente"`
	MotivoAnulacion     string     `json:"motivo_anulacion,omitempty"`
	FechaAnulacion      *time.Time `json:"fecha_anulacion,omitempty"`
	AnulacionDocumentID string     `json:"anulacion_document_id,omitempty"`
	ResumenID           string     `json:"resumen_id,omitempty"` // resumen diario que informa la boleta

	Lines     []DocumentLine `json:"lines,omitempty"`
	Note      *NoteData      `json:"note,omitempty"`
	Dispatch  *DispatchData  `json:"dispatch,omitempty"`
	Summary   *SummaryData   `json:"summary,omitempty"`
	Voided    *VoidedData    `json:"voided,omitempty"`
	Retention *RetentionData `json:"retention,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Family devuelve la familia (factura o boleta) según la primera letra de la serie.
func (d *Document) Family() string {
	if strings.HasPrefix(strings.ToUpper(d.Serie), "B") {
		return FamilyBoleta
	}
	return FamilyFactura
}

// IsTerminal indica si SUNAT ya emitió un resultado definitivo.
func (d *Document) IsTerminal() bool {
	return d.SunatStatus == SunatAceptado || d.SunatStatus == SunatRechazado
}

// DocumentLine línea de detalle. Los campos calculados se completan al construir el comprobante.
type DocumentLine struct {
	Codigo           string          `json:"codigo,omitempty"`
	CodigoSunat      string          `json:"codigo_sunat,omitempty"`
	Descripcion      string          `json:"descripcion"`
	Unidad           string          `json:"unidad"` // catálogo 03
	Cantidad         decimal.Decimal `json:"cantidad"`
	MtoValorUnitario decimal.Decimal `json:"mto_valor_unitario"` // sin impuestos
	TipAfeIgv        string          `json:"tip_afe_igv,omitempty"`
	PorcentajeIgv    decimal.Decimal `json:"porcentaje_igv"`
	PorcentajeIsc    decimal.Decimal `json:"porcentaje_isc"`
	TipSisIsc        string          `json:"tip_sis_isc,omitempty"`
	CantidadBolsas   decimal.Decimal `json:"cantidad_bolsas"`
	FactorIcbper     decimal.Decimal `json:"factor_icbper"`

	MtoValorVenta     decimal.Decimal `json:"mto_valor_venta"`
	MtoBaseIgv        decimal.Decimal `json:"mto_base_igv"`
	Igv               decimal.Decimal `json:"igv"`
	MtoBaseIsc        decimal.Decimal `json:"mto_base_isc"`
	Isc               decimal.Decimal `json:"isc"`
	Icbper            decimal.Decimal `json:"icbper"`
	TotalImpuestos    decimal.Decimal `json:"total_impuestos"`
	MtoPrecioUnitario decimal.Decimal `json:"mto_precio_unitario"`
	MtoValorGratuito  decimal.Decimal `json:"mto_valor_gratuito"`
}

// NoteData referencia de una nota de crédito o débito.
type NoteData struct {
	TipoDocAfectado string `json:"tipo_doc_afectado"`
	NumDocAfectado  string `json:"num_doc_afectado"` // serie-correlativo
	DocAfectadoID   string `json:"doc_afectado_id,omitempty"`
	CodMotivo       string `json:"cod_motivo"`
	DesMotivo       string `json:"des_motivo"`
}

// Address punto de partida o llegada de un traslado.
type Address struct {
	Ubigeo    string `json:"ubigeo"`
	Direccion string `json:"direccion"`
}

// Carrier transportista (modalidad pública).
type Carrier struct {
	TipoDocumento   string `json:"tipo_documento"`
	NumeroDocumento string `json:"numero_documento"`
	RazonSocial     string `json:"razon_social"`
	NroMTC          string `json:"nro_mtc,omitempty"`
}

// Driver conductor y vehículo (modalidad privada).
type Driver struct {
	TipoDocumento   string `json:"tipo_documento"`
	NumeroDocumento string `json:"numero_documento"`
	Nombres         string `json:"nombres"`
	Apellidos       string `json:"apellidos"`
	Licencia        string `json:"licencia"`
	Placa           string `json:"placa"`
}

// DispatchData datos de la guía de remisión remitente.
type DispatchData struct {
	FechaTraslado     time.Time       `json:"fecha_traslado"`
	MotivoTraslado    string          `json:"motivo_traslado"` // catálogo 20
	DesTraslado       string          `json:"des_traslado,omitempty"`
	ModalidadTraslado string          `json:"modalidad_traslado"` // catálogo 18
	PesoTotal         decimal.Decimal `json:"peso_total"`
	UnidadPeso        string          `json:"unidad_peso"`
	NumeroBultos      int             `json:"numero_bultos,omitempty"`
	Partida           Address         `json:"partida"`
	Llegada           Address         `json:"llegada"`
	Transportista     *Carrier        `json:"transportista,omitempty"`
	Conductor         *Driver         `json:"conductor,omitempty"`
}

// SummaryItem línea del resumen diario: una boleta (o nota asociada) con su estado.
type SummaryItem struct {
	DocumentID         string          `json:"document_id"`
	TipoDocumento      string          `json:"tipo_documento"`
	SerieNumero        string          `json:"serie_numero"`
	Estado             string          `json:"estado"` // catálogo 19
	ClienteTipoDoc     string          `json:"cliente_tipo_doc"`
	ClienteNumDoc      string          `json:"cliente_num_doc"`
	Moneda             string          `json:"moneda"`
	MtoOperGravadas    decimal.Decimal `json:"mto_oper_gravadas"`
	MtoOperExoneradas  decimal.Decimal `json:"mto_oper_exoneradas"`
	MtoOperInafectas   decimal.Decimal `json:"mto_oper_inafectas"`
	MtoOperExportacion decimal.Decimal `json:"mto_oper_exportacion"`
	MtoOperGratuitas   decimal.Decimal `json:"mto_oper_gratuitas"`
	MtoIGV             decimal.Decimal `json:"mto_igv"`
	MtoISC             decimal.Decimal `json:"mto_isc"`
	MtoICBPER          decimal.Decimal `json:"mto_icbper"`
	Total              decimal.Decimal `json:"total"`
	DocReferencia      string          `json:"doc_referencia,omitempty"`
	TipoDocReferencia  string          `json:"tipo_doc_referencia,omitempty"`
}

// SummaryData contenido del resumen diario de boletas.
type SummaryData struct {
	FechaReferencia time.Time     `json:"fecha_referencia"`
	Items           []SummaryItem `json:"items"`
}

// VoidedItem comprobante comunicado de baja.
type VoidedItem struct {
	DocumentID    string `json:"document_id"`
	TipoDocumento string `json:"tipo_documento"`
	Serie         string `json:"serie"`
	Correlativo   int64  `json:"correlativo"`
	Motivo        string `json:"motivo"`
}

// VoidedData contenido de la comunicación de baja.
type VoidedData struct {
	FechaReferencia time.Time    `json:"fecha_referencia"`
	Items           []VoidedItem `json:"items"`
}

// RetentionItem comprobante del proveedor sobre el que se retiene.
type RetentionItem struct {
	TipoDocumento     string          `json:"tipo_documento"`
	NumeroDocumento   string          `json:"numero_documento"`
	FechaEmision      time.Time       `json:"fecha_emision"`
	Moneda            string          `json:"moneda"`
	ImporteTotal      decimal.Decimal `json:"importe_total"`
	FechaPago         time.Time       `json:"fecha_pago"`
	ImportePagado     decimal.Decimal `json:"importe_pagado"`
	ImporteRetenido   decimal.Decimal `json:"importe_retenido"`
	ImporteNetoPagado decimal.Decimal `json:"importe_neto_pagado"`
}

// RetentionData contenido del comprobante de retención.
type RetentionData struct {
	Regimen              string          `json:"regimen"` // catálogo 23
	Tasa                 decimal.Decimal `json:"tasa"`
	ImporteTotalRetenido decimal.Decimal `json:"importe_total_retenido"`
	ImporteTotalPagado   decimal.Decimal `json:"importe_total_pagado"`
	Items                []RetentionItem `json:"items"`
}
