package billing_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/facturacion-sunat-api/internal/application/billing"
	"github.com/jhoicas/facturacion-sunat-api/internal/domain"
	"github.com/jhoicas/facturacion-sunat-api/internal/domain/entity"
)

// ──────────────────────────────────────────────────────────────────────────────
// Reenviar un comprobante ACEPTADO se rechaza sin contactar a SUNAT.
// ──────────────────────────────────────────────────────────────────────────────
func TestSendToSunat_AceptadoNoSeReenvia(t *testing.T) {
	h := newHarness(t)
	h.seedDoc("f-1", entity.KindInvoice, "F001", 1, entity.SunatAceptado, daysAgo(0))

	_, err := h.service.SendToSunat(context.Background(), testCompanyID, entity.KindInvoice, "f-1", false)

	assert.ErrorIs(t, err, domain.ErrAlreadyAccepted)
	h.client.AssertNotCalled(t, "SendBill", mock.Anything, mock.Anything)
	assert.Equal(t, entity.SunatAceptado, h.db.get("f-1").SunatStatus)
}

func TestSendToSunat_Aceptado(t *testing.T) {
	h := newHarness(t)
	h.seedDoc("f-1", entity.KindInvoice, "F001", 1, entity.SunatPendiente, daysAgo(0))
	h.client.On("SendBill", mock.Anything, mock.MatchedBy(func(r billing.SendRequest) bool {
		return r.FileName == testRUC+"-01-F001-00000001" && r.Credentials.User == "MODDATOS" && len(r.Zip) > 0
	})).Return(&billing.CDRResponse{Code: "0", Description: "La Factura numero F001-00000001, ha sido aceptada", CDRZip: []byte("PK")}, nil).Once()

	res, err := h.service.SendToSunat(context.Background(), testCompanyID, entity.KindInvoice, "f-1", false)
	require.NoError(t, err)

	assert.Equal(t, string(billing.OutcomeAccepted), res.Outcome)
	stored := h.db.get("f-1")
	assert.Equal(t, entity.SunatAceptado, stored.SunatStatus)
	assert.Equal(t, "0", stored.SunatCode)
	assert.Equal(t, 1, stored.SendAttempts)
	assert.NotEmpty(t, stored.XMLPath)
	assert.NotEmpty(t, stored.CDRPath)
	assert.Contains(t, h.events.names(), entity.EventDocumentAccepted)
	h.client.AssertExpectations(t)
}

func TestSendToSunat_ObservacionesSonAceptadas(t *testing.T) {
	h := newHarness(t)
	h.seedDoc("f-1", entity.KindInvoice, "F001", 1, entity.SunatPendiente, daysAgo(0))
	h.client.On("SendBill", mock.Anything, mock.Anything).
		Return(&billing.CDRResponse{Code: "4287", Description: "aceptada con observaciones", Notes: []string{"4287 - observación"}}, nil).Once()

	res, err := h.service.SendToSunat(context.Background(), testCompanyID, entity.KindInvoice, "f-1", false)
	require.NoError(t, err)

	assert.Equal(t, string(billing.OutcomeAccepted), res.Outcome)
	assert.Equal(t, []string{"4287 - observación"}, res.Notes)
	assert.Equal(t, entity.SunatAceptado, h.db.get("f-1").SunatStatus)
}

func TestSendToSunat_RechazoNoEsError(t *testing.T) {
	h := newHarness(t)
	h.seedDoc("f-1", entity.KindInvoice, "F001", 1, entity.SunatPendiente, daysAgo(0))
	h.client.On("SendBill", mock.Anything, mock.Anything).
		Return(&billing.CDRResponse{Code: "2800", Description: "El dato ingresado en el tipo de documento de identidad no es válido"}, nil).Once()

	res, err := h.service.SendToSunat(context.Background(), testCompanyID, entity.KindInvoice, "f-1", false)
	require.NoError(t, err)

	assert.Equal(t, string(billing.OutcomeRejected), res.Outcome)
	assert.Equal(t, entity.SunatRechazado, h.db.get("f-1").SunatStatus)
	assert.Contains(t, h.events.names(), entity.EventDocumentRejected)
}

func TestSendToSunat_FaultEsRechazo(t *testing.T) {
	h := newHarness(t)
	h.seedDoc("f-1", entity.KindInvoice, "F001", 1, entity.SunatPendiente, daysAgo(0))
	h.client.On("SendBill", mock.Anything, mock.Anything).
		Return(&billing.CDRResponse{Code: "0306", Description: "No se puede leer (parsear) el archivo XML", Fault: true}, nil).Once()

	res, err := h.service.SendToSunat(context.Background(), testCompanyID, entity.KindInvoice, "f-1", false)
	require.NoError(t, err)
	assert.Equal(t, string(billing.OutcomeRejected), res.Outcome)
}

func TestSendToSunat_ErrorDeConexionNoCambiaEstado(t *testing.T) {
	h := newHarness(t)
	h.seedDoc("f-1", entity.KindInvoice, "F001", 1, entity.SunatPendiente, daysAgo(0))
	h.client.On("SendBill", mock.Anything, mock.Anything).
		Return(nil, &domain.ConnectionError{Op: "sendBill", Err: errors.New("dial tcp: i/o timeout")}).Once()

	_, err := h.service.SendToSunat(context.Background(), testCompanyID, entity.KindInvoice, "f-1", false)

	require.Error(t, err)
	assert.True(t, domain.IsConnectionError(err))
	stored := h.db.get("f-1")
	assert.Equal(t, entity.SunatPendiente, stored.SunatStatus)
	assert.Contains(t, stored.LastError, "i/o timeout")
	assert.Empty(t, h.events.names())
}

func TestSendToSunat_AsincronoEncola(t *testing.T) {
	h := newHarness(t)
	h.seedDoc("f-1", entity.KindInvoice, "F001", 1, entity.SunatPendiente, daysAgo(0))

	res, err := h.service.SendToSunat(context.Background(), testCompanyID, entity.KindInvoice, "f-1", true)
	require.NoError(t, err)

	assert.Equal(t, string(billing.OutcomePending), res.Outcome)
	assert.Equal(t, entity.SunatEnCola, h.db.get("f-1").SunatStatus)
	h.client.AssertNotCalled(t, "SendBill", mock.Anything, mock.Anything)
}

func TestSendToSunat_NotaDeVentaNoSeEnvia(t *testing.T) {
	h := newHarness(t)
	h.seedDoc("nv-1", entity.KindSalesNote, "NV01", 1, entity.SunatPendiente, daysAgo(0))

	_, err := h.service.SendToSunat(context.Background(), testCompanyID, entity.KindSalesNote, "nv-1", false)
	assert.ErrorIs(t, err, domain.ErrNotSubmittable)
}

func TestGet_OtraEmpresaOClaseEsNoEncontrado(t *testing.T) {
	h := newHarness(t)
	h.seedDoc("f-1", entity.KindInvoice, "F001", 1, entity.SunatPendiente, daysAgo(0))

	_, err := h.service.Get(context.Background(), "otra-empresa", entity.KindInvoice, "f-1")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = h.service.Get(context.Background(), testCompanyID, entity.KindBoleta, "f-1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSendToSunat_ResumenEnviaConTicket(t *testing.T) {
	h := newHarness(t)
	h.seedDoc("b-1", entity.KindBoleta, "B001", 1, entity.SunatPendiente, daysAgo(1))
	rc, err := h.service.CreateDailySummary(context.Background(), testCompanyID, summaryRequest(daysAgo(1)))
	require.NoError(t, err)

	h.client.On("SendSummary", mock.Anything, mock.MatchedBy(func(r billing.SendRequest) bool {
		return r.FileName == testRUC+"-"+rc.Numero
	})).Return(&billing.TicketResponse{Ticket: "1736780000123"}, nil).Once()

	res, err := h.service.SendToSunat(context.Background(), testCompanyID, entity.KindDailySummary, rc.ID, false)
	require.NoError(t, err)

	assert.Equal(t, string(billing.OutcomePending), res.Outcome)
	assert.Equal(t, "1736780000123", res.Ticket)
	stored := h.db.get(rc.ID)
	assert.Equal(t, entity.SunatProcesando, stored.SunatStatus)
	assert.Equal(t, entity.ProcesoEnviado, stored.EstadoProceso)
}

func TestDownload_XMLYFormatoInvalido(t *testing.T) {
	h := newHarness(t)
	h.seedDoc("f-1", entity.KindInvoice, "F001", 1, entity.SunatPendiente, daysAgo(0))
	h.client.On("SendBill", mock.Anything, mock.Anything).Return(&billing.CDRResponse{Code: "0"}, nil).Once()
	_, err := h.service.SendToSunat(context.Background(), testCompanyID, entity.KindInvoice, "f-1", false)
	require.NoError(t, err)

	art, err := h.service.Download(context.Background(), testCompanyID, entity.KindInvoice, "f-1", billing.FormatXML)
	require.NoError(t, err)
	assert.Equal(t, "application/xml", art.ContentType)
	assert.Equal(t, testRUC+"-01-F001-00000001.xml", art.FileName)

	_, err = h.service.Download(context.Background(), testCompanyID, entity.KindInvoice, "f-1", billing.FormatCDR)
	assert.ErrorIs(t, err, domain.ErrNotFound, "sin CDR zip no hay constancia")

	_, err = h.service.Download(context.Background(), testCompanyID, entity.KindInvoice, "f-1", "docx")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}
