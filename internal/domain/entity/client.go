package entity

import "time"

// Client adquiriente o usuario de los comprobantes de la empresa.
type Client struct {
	ID              string    `json:"id"`
	CompanyID       string    `json:"company_id"`
	TipoDocumento   string    `json:"tipo_documento"` // catálogo 06
	NumeroDocumento string    `json:"numero_documento"`
	RazonSocial     string    `json:"razon_social"`
	Direccion       string    `json:"direccion,omitempty"`
	Email           string    `json:"email,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// ClientRef copia del adquiriente que viaja dentro del comprobante.
type ClientRef struct {
	TipoDocumento   string `json:"tipo_documento"`
	NumeroDocumento string `json:"numero_documento"`
	RazonSocial     string `json:"razon_social"`
	Direccion       string `json:"direccion,omitempty"`
	Email           string `json:"email,omitempty"`
}

// Ref construye la copia embebible del cliente.
func (c *Client) Ref() *ClientRef {
	if c == nil {
		return nil
	}
	return &ClientRef{
		TipoDocumento:   c.TipoDocumento,
		NumeroDocumento: c.NumeroDocumento,
		RazonSocial:     c.RazonSocial,
		Direccion:       c.Direccion,
		Email:           c.Email,
	}
}
