package sunat

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jhoicas/facturacion-sunat-api/internal/application/billing"
	"github.com/jhoicas/facturacion-sunat-api/pkg/config"
	"github.com/jhoicas/facturacion-sunat-api/pkg/logger"
	"github.com/jhoicas/facturacion-sunat-api/pkg/sunat"
)

// Client reúne el billService SOAP y la API de guías en un solo billing.SunatClient.
type Client struct {
	soap *SOAPClient
	gre  *GREClient
}

var _ billing.SunatClient = (*Client)(nil)

func (c *Client) SendBill(ctx context.Context, req billing.SendRequest) (*billing.CDRResponse, error) {
	return c.soap.SendBill(ctx, req)
}

func (c *Client) SendSummary(ctx context.Context, req billing.SendRequest) (*billing.TicketResponse, error) {
	return c.soap.SendSummary(ctx, req)
}

func (c *Client) GetStatus(ctx context.Context, creds billing.Credentials, ticket string) (*billing.StatusResponse, error) {
	return c.soap.GetStatus(ctx, creds, ticket)
}

func (c *Client) SendDispatch(ctx context.Context, req billing.SendRequest) (*billing.TicketResponse, error) {
	return c.gre.SendDispatch(ctx, req)
}

func (c *Client) GetDispatchStatus(ctx context.Context, creds billing.Credentials, ticket string) (*billing.StatusResponse, error) {
	return c.gre.GetDispatchStatus(ctx, creds, ticket)
}

// NewClient elige la implementación según SUNAT_ENV: dev usa el cliente simulado.
func NewClient(cfg config.SUNATConfig, log *logger.Logger) billing.SunatClient {
	if cfg.IsDev() {
		log.Warn().Msg("SUNAT_ENV=dev: los comprobantes no se envían a SUNAT (respuestas simuladas)")
		return NewSimulatedClient()
	}
	billURL, retentionURL := billURLBeta, retentionURLBeta
	if cfg.Environment == config.SunatEnvProd {
		billURL, retentionURL = billURLProd, retentionURLProd
	}
	if cfg.BillServiceURL != "" {
		billURL = cfg.BillServiceURL
	}
	if cfg.RetentionServiceURL != "" {
		retentionURL = cfg.RetentionServiceURL
	}
	log.Info().Str("env", cfg.Environment).Str("bill_service", billURL).Msg("cliente SUNAT configurado")
	return &Client{
		soap: NewSOAPClient(billURL, retentionURL, cfg.Timeout),
		gre:  NewGREClient(cfg.GRETokenURL, cfg.GREAPIURL, cfg.GREClientID, cfg.GREClientSecret, cfg.Timeout),
	}
}

// ── Cliente simulado ──────────────────────────────────────────────────────────

// SimulatedClient acepta todo sin contactar a SUNAT. Los tickets se resuelven en la primera consulta.
type SimulatedClient struct {
	seq     atomic.Int64
	mu      sync.Mutex
	tickets map[string]string // ticket → nombre de archivo
	now     func() time.Time
}

// NewSimulatedClient crea el cliente de desarrollo.
func NewSimulatedClient() *SimulatedClient {
	return &SimulatedClient{tickets: make(map[string]string), now: time.Now}
}

var _ billing.SunatClient = (*SimulatedClient)(nil)

func (c *SimulatedClient) SendBill(_ context.Context, req billing.SendRequest) (*billing.CDRResponse, error) {
	desc := fmt.Sprintf("El comprobante %s ha sido aceptado", strings.TrimPrefix(req.FileName, req.Credentials.RUC+"-"))
	zipBytes, err := buildCDR(req.FileName, "0", desc)
	if err != nil {
		return nil, err
	}
	return &billing.CDRResponse{Code: "0", Description: desc, CDRZip: zipBytes}, nil
}

func (c *SimulatedClient) SendSummary(_ context.Context, req billing.SendRequest) (*billing.TicketResponse, error) {
	return c.ticket(req.FileName), nil
}

func (c *SimulatedClient) SendDispatch(_ context.Context, req billing.SendRequest) (*billing.TicketResponse, error) {
	return c.ticket(req.FileName), nil
}

func (c *SimulatedClient) GetStatus(_ context.Context, _ billing.Credentials, ticket string) (*billing.StatusResponse, error) {
	return c.status(ticket)
}

func (c *SimulatedClient) GetDispatchStatus(_ context.Context, _ billing.Credentials, ticket string) (*billing.StatusResponse, error) {
	return c.status(ticket)
}

func (c *SimulatedClient) ticket(fileName string) *billing.TicketResponse {
	t := fmt.Sprintf("%s%04d", c.now().Format("20060102150405"), c.seq.Add(1))
	c.mu.Lock()
	c.tickets[t] = fileName
	c.mu.Unlock()
	return &billing.TicketResponse{Ticket: t}
}

func (c *SimulatedClient) status(ticket string) (*billing.StatusResponse, error) {
	c.mu.Lock()
	fileName, ok := c.tickets[ticket]
	c.mu.Unlock()
	if !ok {
		fileName = ticket
	}
	desc := fmt.Sprintf("El documento %s ha sido aceptado", fileName)
	zipBytes, err := buildCDR(fileName, "0", desc)
	if err != nil {
		return nil, err
	}
	return &billing.StatusResponse{
		StatusCode: sunat.TicketProcessed,
		CDR:        &billing.CDRResponse{Code: "0", Description: desc, CDRZip: zipBytes},
	}, nil
}
