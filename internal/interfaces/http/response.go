package http

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/jhoicas/facturacion-sunat-api/internal/application/dto"
	"github.com/jhoicas/facturacion-sunat-api/internal/domain"
	"github.com/jhoicas/facturacion-sunat-api/pkg/logger"
)

func ok(c *fiber.Ctx, status int, data interface{}, msg string) error {
	return c.Status(status).JSON(dto.Response{Success: true, Data: data, Message: msg})
}

// Errores de validación y reglas de negocio: 400.
var badRequestErrors = []error{
	domain.ErrInvalidInput,
	domain.ErrUnknownBranch,
	domain.ErrUnknownSeries,
	domain.ErrInvalidCurrency,
	domain.ErrInvalidAffectation,
	domain.ErrUnknownCatalogCode,
	domain.ErrClientRequired,
	domain.ErrNoLines,
	domain.ErrAlreadyAccepted,
	domain.ErrNotSubmittable,
	domain.ErrMissingTicket,
	domain.ErrNotAsync,
	domain.ErrNotAccepted,
	domain.ErrAnnulmentWindowExpired,
	domain.ErrMixedEmissionDates,
	domain.ErrMixedFamilies,
	domain.ErrAlreadyInAnnulment,
	domain.ErrAlreadyVoidedLocally,
	domain.ErrNotLocallyAnnullable,
	domain.ErrNothingToSummarize,
}

// apiError resultado de mapear un error a HTTP.
type apiError struct {
	status  int
	code    string
	message string
	details *dto.ErrorDetail
}

func classify(err error) apiError {
	var ve validator.ValidationErrors
	if errors.As(err, &ve) {
		return apiError{
			status: fiber.StatusUnprocessableEntity, code: "VALIDATION", message: "el request no cumple el formato esperado",
			details: &dto.ErrorDetail{Fields: fieldErrors(ve)},
		}
	}
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return apiError{status: fe.Code, code: "HTTP_" + httpCode(fe.Code), message: fe.Message}
	}
	var ce *domain.ConnectionError
	if errors.As(err, &ce) {
		return apiError{
			status: fiber.StatusBadGateway, code: "SUNAT_UNAVAILABLE", message: "no se pudo contactar al servicio externo; intente nuevamente",
			details: &dto.ErrorDetail{Retryable: true},
		}
	}
	var re *domain.RuleError
	if errors.As(err, &re) {
		e := apiError{
			status: fiber.StatusBadRequest, code: "BUSINESS_RULE", message: err.Error(),
			details: &dto.ErrorDetail{Rule: re.Rule, DocumentID: re.DocumentID},
		}
		// Una regla sobre un comprobante inexistente sigue siendo un 404.
		if errors.Is(err, domain.ErrNotFound) {
			e.status, e.code = fiber.StatusNotFound, "NOT_FOUND"
		}
		return e
	}
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return apiError{status: fiber.StatusNotFound, code: "NOT_FOUND", message: "recurso no encontrado"}
	case errors.Is(err, domain.ErrConflict), errors.Is(err, domain.ErrDuplicate), errors.Is(err, domain.ErrTransient):
		return apiError{status: fiber.StatusConflict, code: "CONFLICT", message: err.Error(), details: &dto.ErrorDetail{Retryable: errors.Is(err, domain.ErrTransient)}}
	case errors.Is(err, domain.ErrUnauthorized):
		return apiError{status: fiber.StatusUnauthorized, code: "UNAUTHORIZED", message: "no autorizado"}
	case errors.Is(err, domain.ErrForbidden):
		return apiError{status: fiber.StatusForbidden, code: "FORBIDDEN", message: "acceso denegado"}
	}
	for _, target := range badRequestErrors {
		if errors.Is(err, target) {
			return apiError{status: fiber.StatusBadRequest, code: "VALIDATION", message: err.Error()}
		}
	}
	return apiError{status: fiber.StatusInternalServerError, code: "INTERNAL", message: "error interno del servidor"}
}

func httpCode(status int) string {
	switch status {
	case fiber.StatusBadRequest:
		return "BAD_REQUEST"
	case fiber.StatusNotFound:
		return "NOT_FOUND"
	case fiber.StatusMethodNotAllowed:
		return "METHOD_NOT_ALLOWED"
	case fiber.StatusRequestEntityTooLarge:
		return "BODY_TOO_LARGE"
	}
	return "ERROR"
}

// ErrorHandler centraliza las respuestas de error con el sobre {success,data,message,error}.
// Los 500 se registran con el detalle; el cliente solo ve un mensaje genérico.
func ErrorHandler(log *logger.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		e := classify(err)
		switch {
		case e.status >= fiber.StatusInternalServerError && e.status != fiber.StatusBadGateway:
			log.Error().Err(err).Str("path", c.Path()).Str("method", c.Method()).
				Str("company_id", GetCompanyID(c)).Msg("error interno en request")
		case e.status == fiber.StatusBadGateway:
			log.Warn().Err(err).Str("path", c.Path()).Str("company_id", GetCompanyID(c)).Msg("servicio externo no disponible")
		}
		return c.Status(e.status).JSON(dto.Response{
			Success: false,
			Message: e.message,
			Error:   e.code,
			Details: e.details,
		})
	}
}
