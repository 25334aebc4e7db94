package domain

import (
	"errors"
	"fmt"
)

// Errores de dominio (sin dependencias externas).
var (
	ErrNotFound     = errors.New("recurso no encontrado")
	ErrInvalidInput = errors.New("entrada inválida")
	ErrDuplicate    = errors.New("recurso duplicado")
	ErrUnauthorized = errors.New("no autorizado")
	ErrForbidden    = errors.New("acceso denegado")
	ErrConflict     = errors.New("conflicto con el estado actual")
)

// ErrTransient conflicto de serialización o deadlock; la transacción completa puede reintentarse.
var ErrTransient = errors.New("conflicto transitorio de concurrencia")

// Validación de documentos.
var (
	ErrUnknownBranch      = errors.New("sucursal no encontrada para la empresa")
	ErrUnknownSeries      = errors.New("serie no registrada o inactiva para la sucursal")
	ErrInvalidCurrency    = errors.New("moneda no soportada")
	ErrInvalidAffectation = errors.New("tipo de afectación IGV desconocido")
	ErrUnknownCatalogCode = errors.New("código de catálogo SUNAT desconocido")
	ErrClientRequired     = errors.New("el comprobante requiere un cliente")
	ErrNoLines            = errors.New("el comprobante no tiene líneas de detalle")
)

// Reglas de negocio del ciclo SUNAT.
var (
	ErrAlreadyAccepted        = errors.New("el comprobante ya fue aceptado por SUNAT")
	ErrNotSubmittable         = errors.New("el tipo de comprobante no se envía a SUNAT")
	ErrMissingTicket          = errors.New("el comprobante no tiene ticket de SUNAT")
	ErrNotAsync               = errors.New("el tipo de comprobante no se consulta por ticket")
	ErrNotAccepted            = errors.New("el comprobante no está aceptado por SUNAT")
	ErrAnnulmentWindowExpired = errors.New("plazo de anulación ante SUNAT vencido; use la anulación local")
	ErrMixedEmissionDates     = errors.New("los comprobantes a anular tienen distinta fecha de emisión")
	ErrMixedFamilies          = errors.New("no se pueden anular boletas y facturas en la misma solicitud")
	ErrAlreadyInAnnulment     = errors.New("el comprobante ya está en proceso de anulación o anulado")
	ErrAlreadyVoidedLocally   = errors.New("el comprobante ya fue anulado localmente")
	ErrNotLocallyAnnullable   = errors.New("el comprobante aceptado solo puede anularse ante SUNAT")
	ErrNothingToSummarize     = errors.New("no hay boletas pendientes para el resumen diario")
	ErrRejectedBatch          = errors.New("el lote fue rechazado por SUNAT y sus comprobantes ya se liberaron; genere uno nuevo")
)

// RuleError identifica la regla violada y el documento que la viola.
type RuleError struct {
	Rule       string
	DocumentID string
	Err        error
}

func (e *RuleError) Error() string {
	if e.DocumentID == "" {
		return fmt.Sprintf("%s: %v", e.Rule, e.Err)
	}
	return fmt.Sprintf("%s (documento %s): %v", e.Rule, e.DocumentID, e.Err)
}

func (e *RuleError) Unwrap() error { return e.Err }

// NewRuleError construye un RuleError.
func NewRuleError(rule, documentID string, err error) *RuleError {
	return &RuleError{Rule: rule, DocumentID: documentID, Err: err}
}

// ConnectionError falla de red, DNS, TLS o timeout al hablar con un servicio externo.
// Es reintentable y no debe alterar el estado del comprobante.
type ConnectionError struct {
	Op  string
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("conexión %s: %v", e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// IsConnectionError indica si err (o alguno que envuelva) es un ConnectionError.
func IsConnectionError(err error) bool {
	var ce *ConnectionError
	return errors.As(err, &ce)
}
