package dto

import "github.com/jhoicas/facturacion-sunat-api/internal/domain/entity"

// LocalAnnulmentRequest body para POST /api/annulments/local.
type LocalAnnulmentRequest struct {
	DocumentID string `json:"document_id" validate:"required"`
	Motivo     string `json:"motivo" validate:"required,max=250"`
}

// OfficialAnnulmentRequest body para POST /api/annulments/official.
// Send envía el resumen o la baja a SUNAT inmediatamente tras crearlo.
type OfficialAnnulmentRequest struct {
	DocumentIDs []string `json:"document_ids" validate:"required,min=1,max=500,dive,required"`
	Motivo      string   `json:"motivo" validate:"required,max=100"`
	Send        bool     `json:"send"`
}

// OfficialAnnulmentResult documento de anulación creado y comprobantes afectados.
type OfficialAnnulmentResult struct {
	Annulment *entity.Document   `json:"annulment"`
	Targets   []*entity.Document `json:"targets"`
	Send      *SendResult        `json:"send,omitempty"`
}
