// Package sunat contiene catálogos y validaciones alineados a la normativa de
// comprobantes de pago electrónicos de SUNAT (Perú), UBL 2.1.
package sunat

// =============================================================================
// Catálogo 01 - Tipo de documento
// =============================================================================

const (
	DocFactura          = "01"
	DocBoleta           = "03"
	DocNotaCredito      = "07"
	DocNotaDebito       = "08"
	DocGuiaRemision     = "09"
	DocRetencion        = "20"
	DocResumenDiario    = "RC"
	DocComunicacionBaja = "RA"
	DocNotaVenta        = "NV" // documento interno, no se envía a SUNAT
)

// =============================================================================
// Catálogo 06 - Tipo de documento de identidad
// =============================================================================

const (
	IdentitySinDocumento = "0"
	IdentityDNI          = "1"
	IdentityCarnetExt    = "4"
	IdentityRUC          = "6"
	IdentityPasaporte    = "7"
)

// =============================================================================
// Catálogo 02 - Monedas admitidas por la plataforma
// =============================================================================

const (
	CurrencyPEN = "PEN"
	CurrencyUSD = "USD"
	CurrencyEUR = "EUR"
)

// ValidCurrencies monedas aceptadas para emitir comprobantes.
var ValidCurrencies = map[string]bool{
	CurrencyPEN: true,
	CurrencyUSD: true,
	CurrencyEUR: true,
}

// =============================================================================
// Catálogo 07 - Tipo de afectación del IGV
// =============================================================================

const (
	AfectacionGravado                 = "10"
	AfectacionGravadoRetiroPremio     = "11"
	AfectacionGravadoRetiroDonacion   = "12"
	AfectacionGravadoRetiro           = "13"
	AfectacionGravadoRetiroPublicidad = "14"
	AfectacionGravadoBonificacion     = "15"
	AfectacionGravadoRetiroTrabajo    = "16"
	AfectacionIVAP                    = "17"
	AfectacionExonerado               = "20"
	AfectacionExoneradoGratuito       = "21"
	AfectacionInafecto                = "30"
	AfectacionInafectoBonificacion    = "31"
	AfectacionInafectoRetiro          = "32"
	AfectacionInafectoMuestras        = "33"
	AfectacionInafectoConvenio        = "34"
	AfectacionInafectoPremio          = "35"
	AfectacionInafectoPublicidad      = "36"
	AfectacionExportacion             = "40"
)

// AffectationGroup agrupa los códigos del catálogo 07 por base de totalización.
type AffectationGroup string

const (
	GroupGravado     AffectationGroup = "gravado"
	GroupExonerado   AffectationGroup = "exonerado"
	GroupInafecto    AffectationGroup = "inafecto"
	GroupExportacion AffectationGroup = "exportacion"
	GroupGratuito    AffectationGroup = "gratuito"
)

// Affectations mapea cada código del catálogo 07 a su grupo.
var Affectations = map[string]AffectationGroup{
	AfectacionGravado:                 GroupGravado,
	AfectacionIVAP:                    GroupGravado,
	AfectacionGravadoRetiroPremio:     GroupGratuito,
	AfectacionGravadoRetiroDonacion:   GroupGratuito,
	AfectacionGravadoRetiro:           GroupGratuito,
	AfectacionGravadoRetiroPublicidad: GroupGratuito,
	AfectacionGravadoBonificacion:     GroupGratuito,
	AfectacionGravadoRetiroTrabajo:    GroupGratuito,
	AfectacionExonerado:               GroupExonerado,
	AfectacionExoneradoGratuito:       GroupGratuito,
	AfectacionInafecto:                GroupInafecto,
	AfectacionInafectoBonificacion:    GroupGratuito,
	AfectacionInafectoRetiro:          GroupGratuito,
	AfectacionInafectoMuestras:        GroupGratuito,
	AfectacionInafectoConvenio:        GroupGratuito,
	AfectacionInafectoPremio:          GroupGratuito,
	AfectacionInafectoPublicidad:      GroupGratuito,
	AfectacionExportacion:             GroupExportacion,
}

// IsGravadoGratuito indica si el código es una transferencia gratuita gravada (11-16),
// donde el IGV se calcula pero no se cobra.
func IsGravadoGratuito(code string) bool {
	return len(code) == 2 && code[0] == '1' && code != AfectacionGravado && code != AfectacionIVAP
}

// =============================================================================
// Catálogo 05 - Códigos de tributos
// =============================================================================

type TaxScheme struct {
	ID       string
	Name     string
	TypeCode string
}

var (
	TributoIGV       = TaxScheme{ID: "1000", Name: "IGV", TypeCode: "VAT"}
	TributoIVAP      = TaxScheme{ID: "1016", Name: "IVAP", TypeCode: "VAT"}
	TributoISC       = TaxScheme{ID: "2000", Name: "ISC", TypeCode: "EXC"}
	TributoICBPER    = TaxScheme{ID: "7152", Name: "ICBPER", TypeCode: "OTH"}
	TributoExport    = TaxScheme{ID: "9995", Name: "EXP", TypeCode: "FRE"}
	TributoGratuito  = TaxScheme{ID: "9996", Name: "GRA", TypeCode: "FRE"}
	TributoExonerado = TaxScheme{ID: "9997", Name: "EXO", TypeCode: "VAT"}
	TributoInafecto  = TaxScheme{ID: "9998", Name: "INA", TypeCode: "FRE"}
)

// TaxSchemeForGroup devuelve el tributo con que se informa la base de un grupo de afectación.
func TaxSchemeForGroup(g AffectationGroup) TaxScheme {
	switch g {
	case GroupExonerado:
		return TributoExonerado
	case GroupInafecto:
		return TributoInafecto
	case GroupExportacion:
		return TributoExport
	case GroupGratuito:
		return TributoGratuito
	default:
		return TributoIGV
	}
}

// =============================================================================
// Catálogo 51 - Tipo de operación
// =============================================================================

const (
	OperacionVentaInterna = "0101"
	OperacionExportacion  = "0200"
	OperacionDetraccion   = "1001"
	OperacionPercepcion   = "2001"
)

// =============================================================================
// Catálogo 09 / 10 - Motivos de notas de crédito y débito
// =============================================================================

var CreditNoteReasons = map[string]string{
	"01": "Anulación de la operación",
	"02": "Anulación por error en el RUC",
	"03": "Corrección por error en la descripción",
	"04": "Descuento global",
	"05": "Descuento por ítem",
	"06": "Devolución total",
	"07": "Devolución por ítem",
	"08": "Bonificación",
	"09": "Disminución en el valor",
	"10": "Otros conceptos",
	"11": "Ajustes de operaciones de exportación",
	"12": "Ajustes afectos al IVAP",
	"13": "Corrección del monto neto pendiente de pago y/o fechas de vencimiento",
}

var DebitNoteReasons = map[string]string{
	"01": "Intereses por mora",
	"02": "Aumento en el valor",
	"03": "Penalidades / otros conceptos",
	"11": "Ajustes de operaciones de exportación",
	"12": "Ajustes afectos al IVAP",
}

// =============================================================================
// Catálogo 53 - Percepciones (régimen y tasa)
// =============================================================================

var PerceptionRates = map[string]string{
	"51": "2",   // venta interna
	"52": "1",   // adquisición de combustible
	"53": "0.5", // agente de percepción con tasa especial
}

// =============================================================================
// Catálogo 23 - Régimen de retención
// =============================================================================

var RetentionRegimes = map[string]string{
	"01": "3", // tasa 3%
	"02": "6", // tasa 6%
}

// =============================================================================
// Catálogo 18 / 20 - Guía de remisión
// =============================================================================

const (
	ModalidadTransportePublico = "01"
	ModalidadTransportePrivado = "02"
)

var MotivosTraslado = map[string]string{
	"01": "Venta",
	"02": "Compra",
	"04": "Traslado entre establecimientos de la misma empresa",
	"08": "Importación",
	"09": "Exportación",
	"13": "Otros",
	"14": "Venta sujeta a confirmación del comprador",
	"18": "Traslado emisor itinerante CP",
}

// =============================================================================
// Catálogo 19 - Estado del ítem en el resumen diario
// =============================================================================

const (
	SummaryStateAdd    = "1"
	SummaryStateModify = "2"
	SummaryStateAnnul  = "3"
)

// =============================================================================
// Códigos de estado de getStatus (consulta de ticket)
// =============================================================================

const (
	TicketProcessed       = "0"
	TicketInProcess       = "98"
	TicketProcessedErrors = "99"
)
