package billing_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/facturacion-sunat-api/internal/application/billing"
	"github.com/jhoicas/facturacion-sunat-api/internal/application/dto"
	"github.com/jhoicas/facturacion-sunat-api/internal/domain"
	"github.com/jhoicas/facturacion-sunat-api/internal/domain/entity"
)

// ──────────────────────────────────────────────────────────────────────────────
// Anulación oficial: 3 días desde la emisión aún es válido; 4 días se rechaza
// indicando el comprobante y la regla, sin escribir nada.
// ──────────────────────────────────────────────────────────────────────────────
func TestAnnulOfficially_BoletaDentroDelPlazo(t *testing.T) {
	h := newHarness(t)
	h.seedDoc("b-1", entity.KindBoleta, "B001", 1, entity.SunatAceptado, daysAgo(3))

	res, err := h.annulments.AnnulOfficially(context.Background(), testCompanyID, []string{"b-1"}, "Error en el importe")
	require.NoError(t, err)

	rc := res.Annulment
	assert.Equal(t, entity.KindDailySummary, rc.Kind)
	assert.Equal(t, "RC-20250113-1", rc.Numero)
	require.Len(t, rc.Summary.Items, 1)
	assert.Equal(t, "3", rc.Summary.Items[0].Estado)
	assert.Equal(t, "B001-00000001", rc.Summary.Items[0].SerieNumero)

	b := h.db.get("b-1")
	assert.Equal(t, entity.AnulacionPendiente, b.EstadoAnulacion)
	assert.Equal(t, rc.ID, b.AnulacionDocumentID)
	assert.Equal(t, entity.SunatAceptado, b.SunatStatus, "el estado SUNAT no cambia al solicitar la anulación")
	assert.Empty(t, b.ResumenID)
}

func TestAnnulOfficially_FueraDelPlazo(t *testing.T) {
	h := newHarness(t)
	h.seedDoc("b-1", entity.KindBoleta, "B001", 1, entity.SunatAceptado, daysAgo(4))

	_, err := h.annulments.AnnulOfficially(context.Background(), testCompanyID, []string{"b-1"}, "Error")

	var rerr *domain.RuleError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, billing.RuleWindow, rerr.Rule)
	assert.Equal(t, "b-1", rerr.DocumentID)
	assert.ErrorIs(t, err, domain.ErrAnnulmentWindowExpired)
	assert.Equal(t, 1, h.db.count(), "no se crea el resumen")
	assert.Equal(t, entity.AnulacionNinguna, h.db.get("b-1").EstadoAnulacion)
}

func TestAnnulOfficially_FacturaGeneraComunicacionDeBaja(t *testing.T) {
	h := newHarness(t)
	h.seedDoc("f-1", entity.KindInvoice, "F001", 1, entity.SunatAceptado, daysAgo(2))
	h.seedDoc("f-2", entity.KindInvoice, "F001", 2, entity.SunatAceptado, daysAgo(2))

	res, err := h.annulments.AnnulOfficially(context.Background(), testCompanyID, []string{"f-1", "f-2", "f-1"}, "Operación no realizada")
	require.NoError(t, err)

	ra := res.Annulment
	assert.Equal(t, entity.KindVoided, ra.Kind)
	assert.Equal(t, "RA-20250113-1", ra.Numero)
	require.Len(t, ra.Voided.Items, 2)
	assert.Equal(t, "Operación no realizada", ra.Voided.Items[0].Motivo)
	assert.Len(t, res.Targets, 2)
	assert.Equal(t, entity.AnulacionPendiente, h.db.get("f-2").EstadoAnulacion)
}

func TestAnnulOfficially_ReglasTodoONada(t *testing.T) {
	tests := []struct {
		name    string
		seed    func(h *harness)
		ids     []string
		rule    string
		failing string
		wantErr error
	}{
		{
			name: "fechas de emisión distintas",
			seed: func(h *harness) {
				h.seedDoc("b-1", entity.KindBoleta, "B001", 1, entity.SunatAceptado, daysAgo(1))
				h.seedDoc("b-2", entity.KindBoleta, "B001", 2, entity.SunatAceptado, daysAgo(2))
			},
			ids: []string{"b-1", "b-2"}, rule: billing.RuleEmissionDate, failing: "b-2", wantErr: domain.ErrMixedEmissionDates,
		},
		{
			name: "boletas y facturas mezcladas",
			seed: func(h *harness) {
				h.seedDoc("b-1", entity.KindBoleta, "B001", 1, entity.SunatAceptado, daysAgo(1))
				h.seedDoc("f-1", entity.KindInvoice, "F001", 1, entity.SunatAceptado, daysAgo(1))
			},
			ids: []string{"b-1", "f-1"}, rule: billing.RuleFamily, failing: "f-1", wantErr: domain.ErrMixedFamilies,
		},
		{
			name: "no aceptado",
			seed: func(h *harness) {
				h.seedDoc("b-1", entity.KindBoleta, "B001", 1, entity.SunatAceptado, daysAgo(1))
				h.seedDoc("b-2", entity.KindBoleta, "B001", 2, entity.SunatPendiente, daysAgo(1))
			},
			ids: []string{"b-1", "b-2"}, rule: billing.RuleAccepted, failing: "b-2", wantErr: domain.ErrNotAccepted,
		},
		{
			name: "ya en anulación",
			seed: func(h *harness) {
				d := h.seedDoc("b-1", entity.KindBoleta, "B001", 1, entity.SunatAceptado, daysAgo(1))
				d.EstadoAnulacion = entity.AnulacionPendiente
				h.db.put(d)
			},
			ids: []string{"b-1"}, rule: billing.RuleAnnulment, failing: "b-1", wantErr: domain.ErrAlreadyInAnnulment,
		},
		{
			name: "inexistente",
			seed: func(h *harness) {
				h.seedDoc("b-1", entity.KindBoleta, "B001", 1, entity.SunatAceptado, daysAgo(1))
			},
			ids: []string{"b-1", "nope"}, rule: billing.RuleExists, failing: "nope", wantErr: domain.ErrNotFound,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			tt.seed(h)
			before := h.db.count()

			_, err := h.annulments.AnnulOfficially(context.Background(), testCompanyID, tt.ids, "motivo")

			var rerr *domain.RuleError
			require.ErrorAs(t, err, &rerr)
			assert.Equal(t, tt.rule, rerr.Rule)
			assert.Equal(t, tt.failing, rerr.DocumentID)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, before, h.db.count())
			if d := h.db.get("b-1"); d != nil && tt.rule != billing.RuleAnnulment {
				assert.Equal(t, entity.AnulacionNinguna, d.EstadoAnulacion)
			}
		})
	}
}

func TestCreateVoidedCommunication_RechazaBoletas(t *testing.T) {
	h := newHarness(t)
	h.seedDoc("b-1", entity.KindBoleta, "B001", 1, entity.SunatAceptado, daysAgo(1))

	_, err := h.annulments.CreateVoidedCommunication(context.Background(), testCompanyID, dto.CreateVoidedRequest{
		BranchID:        testBranchID,
		FechaReferencia: daysAgo(1),
		Items:           []dto.VoidedItemRequest{{DocumentID: "b-1", Motivo: "Error"}},
	})

	assert.ErrorIs(t, err, domain.ErrMixedFamilies)
	assert.Equal(t, 1, h.db.count())
}

func TestAnnulLocally(t *testing.T) {
	h := newHarness(t)
	h.seedDoc("b-1", entity.KindBoleta, "B001", 1, entity.SunatPendiente, daysAgo(10))
	h.seedDoc("f-ok", entity.KindInvoice, "F001", 1, entity.SunatAceptado, daysAgo(10))
	h.seedDoc("gr-1", entity.KindDispatchGuide, "T001", 1, entity.SunatPendiente, daysAgo(1))
	ctx := context.Background()

	doc, err := h.annulments.AnnulLocally(ctx, testCompanyID, "b-1", "Venta cancelada")
	require.NoError(t, err)
	assert.True(t, doc.AnuladaLocalmente)
	stored := h.db.get("b-1")
	assert.True(t, stored.AnuladaLocalmente)
	assert.Equal(t, "Venta cancelada", stored.MotivoAnulacion)
	require.NotNil(t, stored.FechaAnulacion)
	assert.Contains(t, h.events.names(), entity.EventDocumentVoided)

	_, err = h.annulments.AnnulLocally(ctx, testCompanyID, "b-1", "otra vez")
	assert.ErrorIs(t, err, domain.ErrAlreadyVoidedLocally)

	_, err = h.annulments.AnnulLocally(ctx, testCompanyID, "f-ok", "tarde")
	assert.ErrorIs(t, err, domain.ErrNotLocallyAnnullable)

	_, err = h.annulments.AnnulLocally(ctx, testCompanyID, "gr-1", "no aplica")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = h.annulments.AnnulLocally(ctx, "otra", "b-1", "x")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestAnnulOfficially_AnuladaLocalmenteNoSeAnulaAnteSunat(t *testing.T) {
	h := newHarness(t)
	d := h.seedDoc("b-1", entity.KindBoleta, "B001", 1, entity.SunatAceptado, daysAgo(1))
	d.AnuladaLocalmente = true
	h.db.put(d)

	_, err := h.annulments.AnnulOfficially(context.Background(), testCompanyID, []string{"b-1"}, "x")
	assert.ErrorIs(t, err, domain.ErrAlreadyVoidedLocally)
}
