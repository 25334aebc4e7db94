package billing_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/facturacion-sunat-api/internal/application/billing"
	"github.com/jhoicas/facturacion-sunat-api/internal/application/dto"
	"github.com/jhoicas/facturacion-sunat-api/internal/domain"
	"github.com/jhoicas/facturacion-sunat-api/internal/domain/entity"
	"github.com/jhoicas/facturacion-sunat-api/pkg/logger"
)

func summaryRequest(fecha time.Time) dto.CreateSummaryRequest {
	return dto.CreateSummaryRequest{BranchID: testBranchID, FechaReferencia: fecha}
}

func TestCreateDailySummary_InformaBoletasDeLaFecha(t *testing.T) {
	h := newHarness(t)
	h.seedDoc("b-1", entity.KindBoleta, "B001", 1, entity.SunatPendiente, daysAgo(1))
	h.seedDoc("b-2", entity.KindBoleta, "B001", 2, entity.SunatPendiente, daysAgo(1))
	h.seedDoc("b-otro-dia", entity.KindBoleta, "B001", 3, entity.SunatPendiente, daysAgo(2))
	h.seedDoc("f-1", entity.KindInvoice, "F001", 1, entity.SunatPendiente, daysAgo(1))

	rc, err := h.summaries.CreateDailySummary(context.Background(), testCompanyID, summaryRequest(daysAgo(1)))
	require.NoError(t, err)

	assert.Equal(t, entity.KindDailySummary, rc.Kind)
	assert.Equal(t, "RC-20250113", rc.Serie)
	assert.Equal(t, "RC-20250113-1", rc.Numero)
	assert.Equal(t, entity.ProcesoGenerado, rc.EstadoProceso)
	require.Len(t, rc.Summary.Items, 2)
	for _, it := range rc.Summary.Items {
		assert.Equal(t, "1", it.Estado)
	}
	assert.Equal(t, rc.ID, h.db.get("b-1").ResumenID)
	assert.Equal(t, rc.ID, h.db.get("b-2").ResumenID)
	assert.Empty(t, h.db.get("b-otro-dia").ResumenID)
}

func TestCreateDailySummary_SinPendientes(t *testing.T) {
	h := newHarness(t)

	_, err := h.summaries.CreateDailySummary(context.Background(), testCompanyID, summaryRequest(daysAgo(1)))
	assert.ErrorIs(t, err, domain.ErrNothingToSummarize)
}

func TestCreateDailySummary_NumeraPorDia(t *testing.T) {
	h := newHarness(t)
	h.seedDoc("b-1", entity.KindBoleta, "B001", 1, entity.SunatPendiente, daysAgo(1))
	first, err := h.summaries.CreateDailySummary(context.Background(), testCompanyID, summaryRequest(daysAgo(1)))
	require.NoError(t, err)

	h.seedDoc("b-2", entity.KindBoleta, "B001", 2, entity.SunatPendiente, daysAgo(1))
	second, err := h.summaries.CreateDailySummary(context.Background(), testCompanyID, summaryRequest(daysAgo(1)))
	require.NoError(t, err)

	assert.Equal(t, "RC-20250113-1", first.Numero)
	assert.Equal(t, "RC-20250113-2", second.Numero)
	require.Len(t, second.Summary.Items, 1)
	assert.Equal(t, "b-2", second.Summary.Items[0].DocumentID)
}

// staleSummaryList devuelve una lectura de boletas pendientes tomada antes de que otro
// resumen las vinculara.
type staleSummaryList struct {
	*memDocuments
	pending []*entity.Document
}

func (s staleSummaryList) ListPendingForSummary(context.Context, string, time.Time) ([]*entity.Document, error) {
	return s.pending, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Dos resúmenes simultáneos de la misma fecha: el segundo no puede robar las
// boletas que el primero ya vinculó.
// ──────────────────────────────────────────────────────────────────────────────
func TestCreateDailySummary_ConcurrenteNoDuplicaBoletas(t *testing.T) {
	h := newHarness(t)
	h.seedDoc("b-1", entity.KindBoleta, "B001", 1, entity.SunatPendiente, daysAgo(1))
	ctx := context.Background()

	pending, err := h.docs.ListPendingForSummary(ctx, testBranchID, daysAgo(1))
	require.NoError(t, err)
	require.Len(t, pending, 1)

	first, err := h.summaries.CreateDailySummary(ctx, testCompanyID, summaryRequest(daysAgo(1)))
	require.NoError(t, err)
	docsBefore := h.db.count()

	late := billing.NewSummaryBuilder(h.allocator, memBranches{db: h.db}, staleSummaryList{memDocuments: h.docs, pending: pending}, h.events, logger.Nop())
	late.SetClock(clock)
	_, err = late.CreateDailySummary(ctx, testCompanyID, summaryRequest(daysAgo(1)))

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrConflict)
	assert.Equal(t, first.ID, h.db.get("b-1").ResumenID)
	assert.Equal(t, docsBefore, h.db.count(), "el segundo resumen no debe persistirse")
}

func TestGateway_BoletaInformadaNoSeEnviaSola(t *testing.T) {
	h := newHarness(t)
	b := h.seedDoc("b-1", entity.KindBoleta, "B001", 1, entity.SunatPendiente, daysAgo(1))
	_, err := h.summaries.CreateDailySummary(context.Background(), testCompanyID, summaryRequest(daysAgo(1)))
	require.NoError(t, err)

	b = h.db.get(b.ID)
	res := h.gateway.Send(context.Background(), b)

	assert.Equal(t, billing.OutcomeFailed, res.Outcome)
	assert.ErrorIs(t, res.Err, domain.ErrConflict)
	h.client.AssertNotCalled(t, "SendBill", mock.Anything, mock.Anything)
}
