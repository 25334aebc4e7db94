package dto

// PageRequest paginación para listados.
type PageRequest struct {
	Limit  int `query:"limit" validate:"omitempty,min=1,max=100"`
	Offset int `query:"offset" validate:"omitempty,min=0"`
}

// DefaultPage aplica valores por defecto si Limit/Offset son cero.
func (p *PageRequest) DefaultPage() {
	if p.Limit <= 0 {
		p.Limit = 20
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
}

// PageResponse metadatos de página en respuestas.
type PageResponse struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
	Total  int `json:"total,omitempty"`
}

// Response sobre común de todas las respuestas JSON de la API.
// Error lleva el código corto; Details el detalle estructurado.
type Response struct {
	Success bool         `json:"success"`
	Data    interface{}  `json:"data"`
	Message string       `json:"message"`
	Error   string       `json:"error,omitempty"`
	Details *ErrorDetail `json:"details,omitempty"`
}

// ErrorDetail detalle del error; Rule y DocumentID vienen de reglas de negocio.
type ErrorDetail struct {
	Rule       string       `json:"rule,omitempty"`
	DocumentID string       `json:"document_id,omitempty"`
	Retryable  bool         `json:"retryable,omitempty"`
	Fields     []FieldError `json:"fields,omitempty"`
}

// FieldError error de validación de un campo del request.
type FieldError struct {
	Field string `json:"field"`
	Tag   string `json:"tag"`
	Param string `json:"param,omitempty"`
}
