package http_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/facturacion-sunat-api/internal/application/billing"
	"github.com/jhoicas/facturacion-sunat-api/internal/application/dto"
	"github.com/jhoicas/facturacion-sunat-api/internal/domain"
	"github.com/jhoicas/facturacion-sunat-api/internal/domain/entity"
	apphttp "github.com/jhoicas/facturacion-sunat-api/internal/interfaces/http"
	pkgjwt "github.com/jhoicas/facturacion-sunat-api/pkg/jwt"
	"github.com/jhoicas/facturacion-sunat-api/pkg/logger"
)

// ──────────────────────────────────────────────────────────────────────────────
// Fakes
// ──────────────────────────────────────────────────────────────────────────────

type fakeDocuments struct {
	createKind  entity.DocumentKind
	createIn    dto.CreateDocumentRequest
	createErr   error
	getErr      error
	sendAsync   bool
	sendErr     error
	downloadFmt string
	official    dto.OfficialAnnulmentRequest
	officialErr error
	summaryIn   dto.CreateSummaryRequest
}

func (f *fakeDocuments) Create(_ context.Context, companyID string, kind entity.DocumentKind, in dto.CreateDocumentRequest) (*dto.DocumentResult, error) {
	f.createKind, f.createIn = kind, in
	if f.createErr != nil {
		return nil, f.createErr
	}
	return &dto.DocumentResult{Document: &entity.Document{ID: "doc-1", CompanyID: companyID, Kind: kind, Serie: in.Serie, Correlativo: 1}}, nil
}

func (f *fakeDocuments) CreateDailySummary(_ context.Context, companyID string, in dto.CreateSummaryRequest) (*entity.Document, error) {
	f.summaryIn = in
	return &entity.Document{ID: "rc-1", CompanyID: companyID, Kind: entity.KindDailySummary}, nil
}

func (f *fakeDocuments) CreateVoidedCommunication(context.Context, string, dto.CreateVoidedRequest) (*dto.OfficialAnnulmentResult, error) {
	return &dto.OfficialAnnulmentResult{Annulment: &entity.Document{ID: "ra-1", Kind: entity.KindVoided}}, nil
}

func (f *fakeDocuments) AnnulLocally(_ context.Context, _ string, in dto.LocalAnnulmentRequest) (*entity.Document, error) {
	return &entity.Document{ID: in.DocumentID, EstadoAnulacion: entity.AnulacionAnulada}, nil
}

func (f *fakeDocuments) AnnulOfficially(_ context.Context, _ string, in dto.OfficialAnnulmentRequest) (*dto.OfficialAnnulmentResult, error) {
	f.official = in
	if f.officialErr != nil {
		return nil, f.officialErr
	}
	return nil, domain.NewRuleError("ventana_anulacion", in.DocumentIDs[0], domain.ErrAnnulmentWindowExpired)
}

func (f *fakeDocuments) Get(_ context.Context, companyID string, kind entity.DocumentKind, id string) (*entity.Document, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return &entity.Document{ID: id, CompanyID: companyID, Kind: kind}, nil
}

func (f *fakeDocuments) SendToSunat(_ context.Context, _ string, _ entity.DocumentKind, id string, async bool) (*dto.SendResult, error) {
	f.sendAsync = async
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	return &dto.SendResult{Outcome: "accepted", Document: &entity.Document{ID: id}, Code: "0", Message: "aceptado"}, nil
}

func (f *fakeDocuments) CheckStatus(_ context.Context, _ string, _ entity.DocumentKind, id string) (*dto.StatusResult, error) {
	return &dto.StatusResult{Outcome: "pending", Document: &entity.Document{ID: id}}, nil
}

func (f *fakeDocuments) Download(_ context.Context, _ string, _ entity.DocumentKind, id, format string) (*billing.Artifact, error) {
	f.downloadFmt = format
	return &billing.Artifact{Data: []byte("<Invoice/>"), ContentType: "application/xml", FileName: "20123456789-01-F001-1.xml"}, nil
}

type fakeWebhooks struct{}

func (fakeWebhooks) Register(_ context.Context, companyID string, in dto.CreateWebhookRequest) (*dto.WebhookCreated, error) {
	return &dto.WebhookCreated{Webhook: &entity.Webhook{ID: "wh-1", CompanyID: companyID, Name: in.Name, URL: in.URL}, Secret: "s3cr3t"}, nil
}

func (fakeWebhooks) List(context.Context, string) ([]*entity.Webhook, error) { return nil, nil }

func (fakeWebhooks) Delete(context.Context, string, string) error { return domain.ErrNotFound }

func (fakeWebhooks) ListDeliveries(context.Context, string, string, dto.PageRequest) ([]*entity.WebhookDelivery, error) {
	return []*entity.WebhookDelivery{}, nil
}

type fakeDeliveries struct{ processed int }

func (f *fakeDeliveries) ProcessPendingDeliveries(context.Context) (dto.ProcessResult, error) {
	f.processed++
	return dto.ProcessResult{Claimed: 2, Delivered: 2}, nil
}

func (f *fakeDeliveries) RetryDelivery(context.Context, string, string) (*entity.WebhookDelivery, error) {
	return nil, fmt.Errorf("%w: la entrega no está fallida", domain.ErrConflict)
}

// ──────────────────────────────────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────────────────────────────────

type envelope struct {
	Success bool             `json:"success"`
	Data    json.RawMessage  `json:"data"`
	Message string           `json:"message"`
	Error   string           `json:"error"`
	Details *dto.ErrorDetail `json:"details"`
}

func newAPI(docs *fakeDocuments, deliveries *fakeDeliveries) *fiber.App {
	app := fiber.New(fiber.Config{ErrorHandler: apphttp.ErrorHandler(logger.Nop())})
	apphttp.Router(app, apphttp.RouterDeps{
		Documents:  docs,
		Webhooks:   fakeWebhooks{},
		Deliveries: deliveries,
		JWTSecret:  testJWTSecret,
	})
	return app
}

func call(t *testing.T, app *fiber.App, method, path, role, body string) (*http.Response, envelope) {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	if role != "" {
		req.Header.Set("Authorization", tokenForRole(t, role))
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	resp.Body.Close()
	var env envelope
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(raw, &env), string(raw))
	}
	return resp, env
}

const invoiceBody = `{"branch_id":"br-1","serie":"F001","client_id":"cl-1",
	"items":[{"descripcion":"Servicio","cantidad":"2","mto_valor_unitario":"100","porcentaje_igv":"18"}]}`

// ──────────────────────────────────────────────────────────────────────────────
// Comprobantes
// ──────────────────────────────────────────────────────────────────────────────

func TestCrearFactura_201ConSobre(t *testing.T) {
	docs := &fakeDocuments{}
	resp, env := call(t, newAPI(docs, &fakeDeliveries{}), http.MethodPost, "/api/invoices", pkgjwt.RoleFacturador, invoiceBody)

	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.True(t, env.Success)
	assert.Equal(t, entity.KindInvoice, docs.createKind)
	assert.Equal(t, "F001", docs.createIn.Serie)
	require.Len(t, docs.createIn.Items, 1)
	assert.Equal(t, "200", docs.createIn.Items[0].Cantidad.Mul(docs.createIn.Items[0].MtoValorUnitario).String())

	var res dto.DocumentResult
	require.NoError(t, json.Unmarshal(env.Data, &res))
	assert.Equal(t, testCompanyID, res.Document.CompanyID)
}

func TestCrear_RolConsultaProhibido(t *testing.T) {
	resp, env := call(t, newAPI(&fakeDocuments{}, &fakeDeliveries{}), http.MethodPost, "/api/boletas", pkgjwt.RoleConsulta, invoiceBody)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "FORBIDDEN", env.Error)
}

func TestCrear_SinToken401(t *testing.T) {
	resp, env := call(t, newAPI(&fakeDocuments{}, &fakeDeliveries{}), http.MethodPost, "/api/invoices", "", invoiceBody)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.False(t, env.Success)
	assert.Equal(t, "MISSING_TOKEN", env.Error)
}

func TestCrear_FormatoInvalido422ConCampos(t *testing.T) {
	resp, env := call(t, newAPI(&fakeDocuments{}, &fakeDeliveries{}), http.MethodPost, "/api/invoices", pkgjwt.RoleAdmin,
		`{"serie":"F1","items":[{"cantidad":"1"}]}`)

	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	require.NotNil(t, env.Details)
	fields := map[string]string{}
	for _, f := range env.Details.Fields {
		fields[f.Field] = f.Tag
	}
	assert.Equal(t, "required", fields["branch_id"])
	assert.Equal(t, "len", fields["serie"])
	assert.Equal(t, "required", fields["items[0].descripcion"])
}

func TestCrear_JSONIlegible400(t *testing.T) {
	resp, env := call(t, newAPI(&fakeDocuments{}, &fakeDeliveries{}), http.MethodPost, "/api/invoices", pkgjwt.RoleAdmin, `{"serie":`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.False(t, env.Success)
}

func TestCrear_ErroresDeNegocio(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"serie desconocida", fmt.Errorf("%w: F009", domain.ErrUnknownSeries), http.StatusBadRequest, "VALIDATION"},
		{"cliente requerido", domain.ErrClientRequired, http.StatusBadRequest, "VALIDATION"},
		{"conflicto de numeración", fmt.Errorf("%w: correlativo", domain.ErrConflict), http.StatusConflict, "CONFLICT"},
		{"sucursal ajena", domain.ErrNotFound, http.StatusNotFound, "NOT_FOUND"},
		{"fallo inesperado", fmt.Errorf("pq: relation does not exist"), http.StatusInternalServerError, "INTERNAL"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			docs := &fakeDocuments{createErr: tc.err}
			resp, env := call(t, newAPI(docs, &fakeDeliveries{}), http.MethodPost, "/api/invoices", pkgjwt.RoleAdmin, invoiceBody)
			assert.Equal(t, tc.status, resp.StatusCode)
			assert.Equal(t, tc.code, env.Error)
			assert.False(t, env.Success)
		})
	}
}

func TestError500_NoExponeDetalleInterno(t *testing.T) {
	docs := &fakeDocuments{getErr: fmt.Errorf("dial tcp 10.0.0.5:5432: password=secreta")}
	resp, env := call(t, newAPI(docs, &fakeDeliveries{}), http.MethodGet, "/api/invoices/doc-1", pkgjwt.RoleConsulta, "")
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.NotContains(t, env.Message, "secreta")
}

func TestResumenDiario_UsaBodyPropio(t *testing.T) {
	docs := &fakeDocuments{}
	resp, env := call(t, newAPI(docs, &fakeDeliveries{}), http.MethodPost, "/api/daily-summaries", pkgjwt.RoleFacturador,
		`{"branch_id":"br-1","fecha_referencia":"2025-01-13T12:00:00Z"}`)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.True(t, env.Success)
	assert.Equal(t, "br-1", docs.summaryIn.BranchID)
	assert.Equal(t, 13, docs.summaryIn.FechaReferencia.Day())
}

func TestEnviarSunat_SyncYAsync(t *testing.T) {
	docs := &fakeDocuments{}
	app := newAPI(docs, &fakeDeliveries{})

	resp, env := call(t, app, http.MethodPost, "/api/invoices/doc-1/send-sunat", pkgjwt.RoleFacturador, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.False(t, docs.sendAsync)
	assert.Equal(t, "aceptado", env.Message)

	resp, _ = call(t, app, http.MethodPost, "/api/invoices/doc-1/send-sunat?async=true", pkgjwt.RoleFacturador, "")
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.True(t, docs.sendAsync)
}

func TestEnviarSunat_SunatCaido502Reintentable(t *testing.T) {
	docs := &fakeDocuments{sendErr: &domain.ConnectionError{Op: "sendBill", Err: fmt.Errorf("timeout")}}
	resp, env := call(t, newAPI(docs, &fakeDeliveries{}), http.MethodPost, "/api/invoices/doc-1/send-sunat", pkgjwt.RoleAdmin, "")
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	require.NotNil(t, env.Details)
	assert.True(t, env.Details.Retryable)
}

func TestRutasPorTipo(t *testing.T) {
	app := newAPI(&fakeDocuments{}, &fakeDeliveries{})

	// check-status solo para tipos asíncronos
	resp, _ := call(t, app, http.MethodGet, "/api/daily-summaries/rc-1/check-status", pkgjwt.RoleConsulta, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = call(t, app, http.MethodGet, "/api/invoices/doc-1/check-status", pkgjwt.RoleConsulta, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	// la nota de venta no se envía a SUNAT
	resp, _ = call(t, app, http.MethodPost, "/api/sales-notes/nv-1/send-sunat", pkgjwt.RoleAdmin, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestDescargaXML_Adjunto(t *testing.T) {
	docs := &fakeDocuments{}
	resp, _ := call(t, newAPI(docs, &fakeDeliveries{}), http.MethodGet, "/api/invoices/doc-1/download-xml", pkgjwt.RoleConsulta, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, billing.FormatXML, docs.downloadFmt)
	assert.Equal(t, "application/xml", resp.Header.Get("Content-Type"))
	assert.Contains(t, resp.Header.Get("Content-Disposition"), `filename="20123456789-01-F001-1.xml"`)
}

// ──────────────────────────────────────────────────────────────────────────────
// Anulaciones
// ──────────────────────────────────────────────────────────────────────────────

func TestAnulacionOficial_ReglaDevuelve400ConDetalle(t *testing.T) {
	docs := &fakeDocuments{}
	resp, env := call(t, newAPI(docs, &fakeDeliveries{}), http.MethodPost, "/api/annulments/official", pkgjwt.RoleFacturador,
		`{"document_ids":["doc-9"],"motivo":"Error en RUC"}`)

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "BUSINESS_RULE", env.Error)
	require.NotNil(t, env.Details)
	assert.Equal(t, "ventana_anulacion", env.Details.Rule)
	assert.Equal(t, "doc-9", env.Details.DocumentID)
	assert.Equal(t, "Error en RUC", docs.official.Motivo)
}

func TestAnulacionOficial_ComprobanteInexistenteEs404(t *testing.T) {
	docs := &fakeDocuments{officialErr: domain.NewRuleError("existencia", "doc-x", domain.ErrNotFound)}
	resp, env := call(t, newAPI(docs, &fakeDeliveries{}), http.MethodPost, "/api/annulments/official", pkgjwt.RoleFacturador,
		`{"document_ids":["doc-x"],"motivo":"Error en RUC"}`)

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "NOT_FOUND", env.Error)
	require.NotNil(t, env.Details)
	assert.Equal(t, "existencia", env.Details.Rule)
	assert.Equal(t, "doc-x", env.Details.DocumentID)
}

func TestAnulacionLocal_OK(t *testing.T) {
	resp, env := call(t, newAPI(&fakeDocuments{}, &fakeDeliveries{}), http.MethodPost, "/api/annulments/local", pkgjwt.RoleAdmin,
		`{"document_id":"doc-3","motivo":"duplicado"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, env.Success)
}

// ──────────────────────────────────────────────────────────────────────────────
// Webhooks
// ──────────────────────────────────────────────────────────────────────────────

func TestWebhooks_SoloAdmin(t *testing.T) {
	app := newAPI(&fakeDocuments{}, &fakeDeliveries{})
	body := `{"name":"erp","url":"https://erp.example.com/hook","events":["document.accepted"]}`

	resp, _ := call(t, app, http.MethodPost, "/api/webhooks", pkgjwt.RoleFacturador, body)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, env := call(t, app, http.MethodPost, "/api/webhooks", pkgjwt.RoleAdmin, body)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	var created dto.WebhookCreated
	require.NoError(t, json.Unmarshal(env.Data, &created))
	assert.Equal(t, "s3cr3t", created.Secret)
}

func TestWebhooks_EventoDesconocido422(t *testing.T) {
	resp, _ := call(t, newAPI(&fakeDocuments{}, &fakeDeliveries{}), http.MethodPost, "/api/webhooks", pkgjwt.RoleAdmin,
		`{"name":"erp","url":"https://erp.example.com/hook","events":["invoice.paid"]}`)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestWebhooks_ProcesarReintentarEliminar(t *testing.T) {
	deliveries := &fakeDeliveries{}
	app := newAPI(&fakeDocuments{}, deliveries)

	resp, env := call(t, app, http.MethodPost, "/api/webhooks/process", pkgjwt.RoleAdmin, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, deliveries.processed)
	var pr dto.ProcessResult
	require.NoError(t, json.Unmarshal(env.Data, &pr))
	assert.Equal(t, 2, pr.Delivered)

	resp, _ = call(t, app, http.MethodPost, "/api/webhooks/deliveries/del-1/retry", pkgjwt.RoleAdmin, "")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, _ = call(t, app, http.MethodDelete, "/api/webhooks/wh-404", pkgjwt.RoleAdmin, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = call(t, app, http.MethodGet, "/api/webhooks/wh-1/deliveries?limit=500", pkgjwt.RoleAdmin, "")
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}
