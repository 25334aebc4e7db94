package billing_test

import (
	"crypto/tls"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"

	"github.com/jhoicas/facturacion-sunat-api/internal/application/billing"
	"github.com/jhoicas/facturacion-sunat-api/internal/application/dto"
	"github.com/jhoicas/facturacion-sunat-api/internal/domain/entity"
	"github.com/jhoicas/facturacion-sunat-api/internal/mocks"
	"github.com/jhoicas/facturacion-sunat-api/pkg/logger"
)

// fixedNow lunes 13/01/2025 10:00 en Lima.
var fixedNow = time.Date(2025, 1, 13, 15, 0, 0, 0, time.UTC)

func clock() time.Time { return fixedNow }

// daysAgo misma hora de Lima, n días calendario antes de fixedNow.
func daysAgo(n int) time.Time { return fixedNow.AddDate(0, 0, -n) }

type harness struct {
	db      *memDB
	docs    *memDocuments
	events  *recordingPublisher
	client  *mocks.MockSunatClient
	xml     *mocks.MockXMLBuilder
	storage *memStorage

	allocator  *billing.CorrelativeAllocator
	builder    *billing.DocumentBuilder
	summaries  *billing.SummaryBuilder
	annulments *billing.AnnulmentWorkflow
	gateway    *billing.SubmissionGateway
	reconciler *billing.StatusReconciler
	service    *billing.DocumentService
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	log := logger.Nop()
	h := &harness{
		db:      newMemDB(),
		events:  &recordingPublisher{},
		client:  new(mocks.MockSunatClient),
		xml:     new(mocks.MockXMLBuilder),
		storage: newMemStorage(),
	}
	h.docs = &memDocuments{db: h.db}
	h.xml.On("Build", mock.Anything).Return([]byte(`<?xml version="1.0" encoding="UTF-8"?><Invoice/>`), nil).Maybe()

	companies := memCompanies{db: h.db}
	branches := memBranches{db: h.db}
	cfg := billing.GatewayConfig{SolUser: "MODDATOS", SolPassword: "moddatos", Timeout: 5 * time.Second}

	h.allocator = billing.NewCorrelativeAllocator(h.db, log)
	h.builder = billing.NewDocumentBuilder(h.allocator, branches, memClients{db: h.db}, memCatalog{db: h.db}, h.docs, h.events, billing.DefaultBuilderConfig(), log)
	h.builder.SetClock(clock)
	h.summaries = billing.NewSummaryBuilder(h.allocator, branches, h.docs, h.events, log)
	h.summaries.SetClock(clock)
	h.annulments = billing.NewAnnulmentWorkflow(h.docs, h.summaries, h.events, log)
	h.annulments.SetClock(clock)
	h.gateway = billing.NewSubmissionGateway(h.docs, companies, branches, h.xml, nil, tls.Certificate{}, h.client, h.storage, cfg, log)
	h.reconciler = billing.NewStatusReconciler(h.db, h.docs, companies, h.client, h.storage, h.events, cfg, log)
	h.reconciler.SetClock(clock)
	downloads := billing.NewDownloadUseCase(h.docs, companies, branches, h.storage, nil, log)
	h.service = billing.NewDocumentService(h.docs, h.builder, h.summaries, h.annulments, h.gateway, h.reconciler, downloads, h.events, log)
	h.service.SetClock(clock)
	return h
}

// seedDoc inserta un comprobante ya emitido con los valores mínimos para el flujo SUNAT.
func (h *harness) seedDoc(id string, kind entity.DocumentKind, serie string, n int64, status string, fecha time.Time) *entity.Document {
	tipo := kind.TipoDocumento()
	d := &entity.Document{
		ID:              id,
		CompanyID:       testCompanyID,
		BranchID:        testBranchID,
		Kind:            kind,
		TipoDocumento:   tipo,
		Serie:           serie,
		Correlativo:     n,
		Numero:          serie + "-" + padNumber(n),
		Moneda:          "PEN",
		FechaEmision:    fecha,
		MtoOperGravadas: decimal.NewFromInt(100),
		MtoIGV:          decimal.NewFromInt(18),
		MtoImpVenta:     decimal.NewFromInt(118),
		SunatStatus:     status,
		EstadoAnulacion: entity.AnulacionNinguna,
		Client:          &entity.ClientRef{TipoDocumento: "1", NumeroDocumento: "46027897", RazonSocial: "JUAN PEREZ"},
		CreatedAt:       fecha,
		UpdatedAt:       fecha,
	}
	h.db.put(d)
	return d
}

func padNumber(n int64) string {
	s := decimal.NewFromInt(n).String()
	for len(s) < 8 {
		s = "0" + s
	}
	return s
}

func item(qty, unit int64, afectacion string) dto.LineRequest {
	return dto.LineRequest{
		Descripcion:      "Producto de prueba",
		Cantidad:         decimal.NewFromInt(qty),
		MtoValorUnitario: decimal.NewFromInt(unit),
		TipAfeIgv:        afectacion,
	}
}
