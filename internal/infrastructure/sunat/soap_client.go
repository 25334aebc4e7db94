package sunat

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jhoicas/facturacion-sunat-api/internal/application/billing"
	"github.com/jhoicas/facturacion-sunat-api/internal/domain"
	"github.com/jhoicas/facturacion-sunat-api/pkg/sunat"
)

// ── Endpoints ─────────────────────────────────────────────────────────────────

const (
	billURLBeta      = "https://e-beta.sunat.gob.pe/ol-ti-itcpfegem-beta/billService"
	billURLProd      = "https://e-factura.sunat.gob.pe/ol-ti-itcpfegem/billService"
	retentionURLBeta = "https://e-beta.sunat.gob.pe/ol-ti-itemision-otroscpe-gem-beta/billService"
	retentionURLProd = "https://e-factura.sunat.gob.pe/ol-ti-itemision-otroscpe-gem/billService"

	soapNS = "http://schemas.xmlsoap.org/soap/envelope/"
	serNS  = "http://service.sunat.gob.pe"
	wsseNS = "http://docs.oasis-open.org/wss/2004/01/oasis-200401-wss-wssecurity-secext-1.0.xsd"

	maxResponseBytes = 10 << 20
)

// SOAPClient cliente del billService de SUNAT (sendBill, sendSummary, getStatus).
type SOAPClient struct {
	httpClient   *http.Client
	billURL      string
	retentionURL string
}

// NewSOAPClient construye el cliente. El timeout efectivo lo fija el contexto de cada llamada.
func NewSOAPClient(billURL, retentionURL string, timeout time.Duration) *SOAPClient {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &SOAPClient{
		httpClient:   &http.Client{Timeout: timeout},
		billURL:      billURL,
		retentionURL: retentionURL,
	}
}

// ── Estructuras SOAP ──────────────────────────────────────────────────────────

type soapEnvelope struct {
	XMLName   xml.Name   `xml:"soapenv:Envelope"`
	XmlnsSoap string     `xml:"xmlns:soapenv,attr"`
	XmlnsSer  string     `xml:"xmlns:ser,attr"`
	XmlnsWsse string     `xml:"xmlns:wsse,attr"`
	Header    soapHeader `xml:"soapenv:Header"`
	Body      soapBody   `xml:"soapenv:Body"`
}

type soapHeader struct {
	Security wsseSecurity `xml:"wsse:Security"`
}

type wsseSecurity struct {
	UsernameToken wsseUsernameToken `xml:"wsse:UsernameToken"`
}

type wsseUsernameToken struct {
	Username string `xml:"wsse:Username"`
	Password string `xml:"wsse:Password"`
}

type soapBody struct {
	Content interface{}
}

func (b soapBody) MarshalXML(e *xml.Encoder, start xml.StartElement) error {
	if err := e.EncodeToken(start); err != nil {
		return err
	}
	if err := e.Encode(b.Content); err != nil {
		return err
	}
	return e.EncodeToken(start.End())
}

type sendFileBody struct {
	XMLName     xml.Name
	FileName    string `xml:"fileName"`
	ContentFile string `xml:"contentFile"`
}

type getStatusBody struct {
	XMLName xml.Name `xml:"ser:getStatus"`
	Ticket  string   `xml:"ticket"`
}

type soapResponseEnvelope struct {
	Body soapResponseBody `xml:"Body"`
}

type soapResponseBody struct {
	SendBill    *sendBillResponse    `xml:"sendBillResponse"`
	SendSummary *sendSummaryResponse `xml:"sendSummaryResponse"`
	GetStatus   *getStatusResponse   `xml:"getStatusResponse"`
	Fault       *soapFault           `xml:"Fault"`
}

type sendBillResponse struct {
	ApplicationResponse string `xml:"applicationResponse"`
}

type sendSummaryResponse struct {
	Ticket string `xml:"ticket"`
}

type getStatusResponse struct {
	Status struct {
		StatusCode string `xml:"statusCode"`
		Content    string `xml:"content"`
	} `xml:"status"`
}

type soapFault struct {
	FaultCode   string `xml:"faultcode"`
	FaultString string `xml:"faultstring"`
}

// code devuelve el código numérico SUNAT del fault (soap-env:Client.0306 → 0306).
func (f *soapFault) code() string {
	c := f.FaultCode
	if i := strings.LastIndexAny(c, ".:"); i >= 0 {
		c = c[i+1:]
	}
	if isDigits(c) {
		return c
	}
	if s := strings.TrimSpace(f.FaultString); isDigits(s) {
		return s
	}
	return c
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// ── Operaciones ───────────────────────────────────────────────────────────────

// SendBill envía un comprobante síncrono y devuelve el CDR. Un fault es un rechazo, no un error.
func (c *SOAPClient) SendBill(ctx context.Context, req billing.SendRequest) (*billing.CDRResponse, error) {
	url := c.billURL
	if req.TipoDocumento == sunat.DocRetencion {
		url = c.retentionURL
	}
	body := &sendFileBody{
		XMLName:     xml.Name{Local: "ser:sendBill"},
		FileName:    req.FileName + ".zip",
		ContentFile: base64.StdEncoding.EncodeToString(req.Zip),
	}
	resp, raw, err := c.call(ctx, url, "sendBill", req.Credentials, body)
	if err != nil {
		return nil, err
	}
	if resp.Fault != nil {
		return &billing.CDRResponse{Code: resp.Fault.code(), Description: resp.Fault.FaultString, Fault: true, Raw: raw}, nil
	}
	if resp.SendBill == nil || resp.SendBill.ApplicationResponse == "" {
		return nil, fmt.Errorf("sunat: respuesta sendBill sin applicationResponse")
	}
	zipBytes, err := base64.StdEncoding.DecodeString(strings.TrimSpace(resp.SendBill.ApplicationResponse))
	if err != nil {
		return nil, fmt.Errorf("sunat: decodificar CDR: %w", err)
	}
	return ParseCDR(zipBytes)
}

// SendSummary envía un resumen diario o comunicación de baja y devuelve el ticket.
func (c *SOAPClient) SendSummary(ctx context.Context, req billing.SendRequest) (*billing.TicketResponse, error) {
	body := &sendFileBody{
		XMLName:     xml.Name{Local: "ser:sendSummary"},
		FileName:    req.FileName + ".zip",
		ContentFile: base64.StdEncoding.EncodeToString(req.Zip),
	}
	resp, _, err := c.call(ctx, c.billURL, "sendSummary", req.Credentials, body)
	if err != nil {
		return nil, err
	}
	if resp.Fault != nil {
		return nil, fmt.Errorf("sunat: sendSummary rechazado [%s]: %s", resp.Fault.code(), resp.Fault.FaultString)
	}
	if resp.SendSummary == nil || resp.SendSummary.Ticket == "" {
		return nil, fmt.Errorf("sunat: respuesta sendSummary sin ticket")
	}
	return &billing.TicketResponse{Ticket: strings.TrimSpace(resp.SendSummary.Ticket)}, nil
}

// GetStatus consulta un ticket de resumen o baja.
func (c *SOAPClient) GetStatus(ctx context.Context, creds billing.Credentials, ticket string) (*billing.StatusResponse, error) {
	resp, _, err := c.call(ctx, c.billURL, "getStatus", creds, &getStatusBody{Ticket: ticket})
	if err != nil {
		return nil, err
	}
	if resp.Fault != nil {
		return nil, fmt.Errorf("sunat: getStatus [%s]: %s", resp.Fault.code(), resp.Fault.FaultString)
	}
	if resp.GetStatus == nil {
		return nil, fmt.Errorf("sunat: respuesta getStatus vacía")
	}
	out := &billing.StatusResponse{StatusCode: strings.TrimSpace(resp.GetStatus.Status.StatusCode)}
	if content := strings.TrimSpace(resp.GetStatus.Status.Content); content != "" && out.StatusCode != sunat.TicketInProcess {
		zipBytes, err := base64.StdEncoding.DecodeString(content)
		if err != nil {
			return nil, fmt.Errorf("sunat: decodificar CDR del ticket: %w", err)
		}
		cdr, err := ParseCDR(zipBytes)
		if err != nil {
			return nil, err
		}
		out.CDR = cdr
	}
	return out, nil
}

// call serializa el envelope con WS-Security y devuelve la respuesta parseada.
// Fallas de red, timeout o 5xx sin SOAP se devuelven como *domain.ConnectionError.
func (c *SOAPClient) call(ctx context.Context, url, op string, creds billing.Credentials, content interface{}) (*soapResponseBody, []byte, error) {
	envelope := soapEnvelope{
		XmlnsSoap: soapNS,
		XmlnsSer:  serNS,
		XmlnsWsse: wsseNS,
		Header: soapHeader{Security: wsseSecurity{UsernameToken: wsseUsernameToken{
			Username: creds.RUC + creds.User,
			Password: creds.Password,
		}}},
		Body: soapBody{Content: content},
	}
	payload, err := xml.Marshal(envelope)
	if err != nil {
		return nil, nil, fmt.Errorf("soap: serializar envelope: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, nil, fmt.Errorf("soap: crear request: %w", err)
	}
	req.Header.Set("Content-Type", "text/xml; charset=utf-8")
	req.Header.Set("SOAPAction", "urn:"+op)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			err = ctx.Err()
		}
		return nil, nil, &domain.ConnectionError{Op: "sunat." + op, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, nil, &domain.ConnectionError{Op: "sunat." + op, Err: fmt.Errorf("leer respuesta: %w", err)}
	}

	var env soapResponseEnvelope
	if err := xml.Unmarshal(raw, &env); err != nil {
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return nil, nil, &domain.ConnectionError{Op: "sunat." + op, Err: fmt.Errorf("HTTP %d", resp.StatusCode)}
		}
		return nil, nil, fmt.Errorf("soap: respuesta no interpretable (HTTP %d): %s", resp.StatusCode, truncate(string(raw), 300))
	}
	if env.Body.Fault == nil && resp.StatusCode >= 500 {
		return nil, nil, &domain.ConnectionError{Op: "sunat." + op, Err: fmt.Errorf("HTTP %d", resp.StatusCode)}
	}
	return &env.Body, raw, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}

// errNotConfigured se devuelve cuando falta la configuración de un servicio.
var errNotConfigured = errors.New("servicio SUNAT no configurado")
