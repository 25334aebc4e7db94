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
	"github.com/jhoicas/facturacion-sunat-api/internal/mocks"
	"github.com/jhoicas/facturacion-sunat-api/pkg/logger"
)

type stubPDF struct{ data []byte }

func (g stubPDF) GenerateDocumentPDF(*entity.Document, *entity.Company, *entity.Branch) ([]byte, error) {
	return g.data, nil
}

func newDownloads(h *harness, storage billing.ArtifactStorage, gen billing.PDFGenerator) *billing.DownloadUseCase {
	return billing.NewDownloadUseCase(h.docs, memCompanies{db: h.db}, memBranches{db: h.db}, storage, gen, logger.Nop())
}

// ──────────────────────────────────────────────────────────────────────────────
// XML y CDR
// ──────────────────────────────────────────────────────────────────────────────

func TestDownload_XMLDesdeAlmacenamiento(t *testing.T) {
	h := newHarness(t)
	doc := h.seedDoc("f-1", entity.KindInvoice, "F001", 1, entity.SunatAceptado, daysAgo(1))
	doc.XMLPath = "company-1/01/20123456789-01-F001-00000001.xml"

	storage := new(mocks.MockArtifactStorage)
	storage.On("Get", mock.Anything, doc.XMLPath).Return([]byte("<Invoice/>"), nil).Once()

	art, err := newDownloads(h, storage, nil).Download(context.Background(), doc, billing.FormatXML)
	require.NoError(t, err)
	assert.Equal(t, []byte("<Invoice/>"), art.Data)
	assert.Equal(t, "application/xml", art.ContentType)
	assert.Equal(t, "20123456789-01-F001-00000001.xml", art.FileName)
	storage.AssertExpectations(t)
}

func TestDownload_SinCDR_NotFound(t *testing.T) {
	h := newHarness(t)
	doc := h.seedDoc("f-1", entity.KindInvoice, "F001", 1, entity.SunatPendiente, daysAgo(1))
	storage := new(mocks.MockArtifactStorage)

	_, err := newDownloads(h, storage, nil).Download(context.Background(), doc, billing.FormatCDR)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	storage.AssertNotCalled(t, "Get", mock.Anything, mock.Anything)
}

func TestDownload_FalloDeAlmacenamientoSePropaga(t *testing.T) {
	h := newHarness(t)
	doc := h.seedDoc("f-1", entity.KindInvoice, "F001", 1, entity.SunatAceptado, daysAgo(1))
	doc.CDRPath = "company-1/01/R-20123456789-01-F001-00000001.zip"

	storage := new(mocks.MockArtifactStorage)
	storage.On("Get", mock.Anything, doc.CDRPath).Return(nil, errors.New("s3: timeout")).Once()

	_, err := newDownloads(h, storage, nil).Download(context.Background(), doc, billing.FormatCDR)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "s3: timeout")
	assert.NotErrorIs(t, err, domain.ErrNotFound)
}

// ──────────────────────────────────────────────────────────────────────────────
// PDF
// ──────────────────────────────────────────────────────────────────────────────

func TestDownload_PDFSeGuardaLaPrimeraVez(t *testing.T) {
	h := newHarness(t)
	doc := h.seedDoc("b-1", entity.KindBoleta, "B001", 7, entity.SunatPendiente, daysAgo(1))

	storage := new(mocks.MockArtifactStorage)
	storage.On("Put", mock.Anything, "company-1/03/"+testRUC+"-03-B001-00000007.pdf", []byte("%PDF"), "application/pdf").
		Return("company-1/03/"+testRUC+"-03-B001-00000007.pdf", nil).Once()

	art, err := newDownloads(h, storage, stubPDF{data: []byte("%PDF")}).Download(context.Background(), doc, billing.FormatPDF)
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", art.ContentType)
	assert.Equal(t, testRUC+"-03-B001-00000007.pdf", art.FileName)
	assert.Equal(t, "company-1/03/"+testRUC+"-03-B001-00000007.pdf", doc.PDFPath)
	storage.AssertExpectations(t)
}

func TestDownload_PDFFalloAlGuardarNoImpideDescarga(t *testing.T) {
	h := newHarness(t)
	doc := h.seedDoc("b-1", entity.KindBoleta, "B001", 7, entity.SunatPendiente, daysAgo(1))

	storage := new(mocks.MockArtifactStorage)
	storage.On("Put", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return("", errors.New("disco lleno")).Once()

	art, err := newDownloads(h, storage, stubPDF{data: []byte("%PDF")}).Download(context.Background(), doc, billing.FormatPDF)
	require.NoError(t, err)
	assert.Equal(t, []byte("%PDF"), art.Data)
	assert.Empty(t, doc.PDFPath)
}

func TestDownload_PDFSinGenerador_NotFound(t *testing.T) {
	h := newHarness(t)
	doc := h.seedDoc("b-1", entity.KindBoleta, "B001", 7, entity.SunatPendiente, daysAgo(1))

	_, err := newDownloads(h, new(mocks.MockArtifactStorage), nil).Download(context.Background(), doc, billing.FormatPDF)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

// ──────────────────────────────────────────────────────────────────────────────
// El evento document.created lleva montos y resumen del adquiriente.
// ──────────────────────────────────────────────────────────────────────────────
func TestCreate_EventoLlevaResumenDelComprobante(t *testing.T) {
	h := newHarness(t)
	events := new(mocks.MockEventPublisher)
	events.On("Trigger", mock.Anything, testCompanyID, entity.EventDocumentCreated, mock.AnythingOfType("billing.DocumentEvent")).
		Return(nil).Once()

	builder := billing.NewDocumentBuilder(h.allocator, memBranches{db: h.db}, memClients{db: h.db}, memCatalog{db: h.db},
		h.docs, events, billing.DefaultBuilderConfig(), logger.Nop())
	builder.SetClock(clock)

	res, err := builder.Create(context.Background(), testCompanyID, entity.KindInvoice, invoiceRequest(item(1, 50, "10")))
	require.NoError(t, err)
	events.AssertExpectations(t)

	payload := events.Calls[0].Arguments.Get(3).(billing.DocumentEvent)
	assert.Equal(t, res.Document.ID, payload.DocumentID)
	assert.Equal(t, "F001-00000001", payload.Numero)
	assert.Equal(t, "01", payload.TipoDocumento)
	assert.Equal(t, entity.SunatPendiente, payload.SunatStatus)
	assert.Equal(t, "59", payload.MtoImpVenta.StringFixed(0))
	require.NotNil(t, payload.Client)
	assert.Equal(t, "6", payload.Client.TipoDoc)
	assert.Equal(t, "20601030013", payload.Client.NumDoc)
}
