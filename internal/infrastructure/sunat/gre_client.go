package sunat

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/jhoicas/facturacion-sunat-api/internal/application/billing"
	"github.com/jhoicas/facturacion-sunat-api/internal/domain"
)

const (
	greTokenURLDefault = "https://api-seguridad.sunat.gob.pe/v1/clientessol/%s/oauth2/token/"
	greAPIURLDefault   = "https://api-cpe.sunat.gob.pe/v1/contribuyente/gem"
	greScope           = "https://api-cpe.sunat.gob.pe"
)

// GREClient cliente de la API REST de guías de remisión electrónicas (OAuth2 password grant).
type GREClient struct {
	httpClient   *http.Client
	tokenURL     string
	apiURL       string
	clientID     string
	clientSecret string

	mu     sync.Mutex
	tokens map[string]greToken // por usuario SOL
	now    func() time.Time
}

type greToken struct {
	value     string
	expiresAt time.Time
}

// NewGREClient construye el cliente. tokenURL acepta %s para el client_id.
func NewGREClient(tokenURL, apiURL, clientID, clientSecret string, timeout time.Duration) *GREClient {
	if tokenURL == "" {
		tokenURL = greTokenURLDefault
	}
	if apiURL == "" {
		apiURL = greAPIURLDefault
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &GREClient{
		httpClient:   &http.Client{Timeout: timeout},
		tokenURL:     tokenURL,
		apiURL:       strings.TrimRight(apiURL, "/"),
		clientID:     clientID,
		clientSecret: clientSecret,
		tokens:       make(map[string]greToken),
		now:          time.Now,
	}
}

type greTokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

type greSendRequest struct {
	Archivo greArchivo `json:"archivo"`
}

type greArchivo struct {
	NomArchivo string `json:"nomArchivo"`
	ArcGreZip  string `json:"arcGreZip"`
	HashZip    string `json:"hashZip"`
}

type greSendResponse struct {
	NumTicket    string `json:"numTicket"`
	FecRecepcion string `json:"fecRecepcion"`
}

type greStatusResponse struct {
	CodRespuesta   string    `json:"codRespuesta"`
	Error          *greError `json:"error,omitempty"`
	ArcCdr         string    `json:"arcCdr,omitempty"`
	IndCdrGenerado string    `json:"indCdrGenerado,omitempty"`
}

type greError struct {
	NumError string `json:"numError"`
	DesError string `json:"desError"`
}

// SendDispatch envía la guía y devuelve el ticket.
func (c *GREClient) SendDispatch(ctx context.Context, req billing.SendRequest) (*billing.TicketResponse, error) {
	token, err := c.token(ctx, req.Credentials)
	if err != nil {
		return nil, err
	}
	sum := sha256.Sum256(req.Zip)
	payload, err := json.Marshal(greSendRequest{Archivo: greArchivo{
		NomArchivo: req.FileName + ".zip",
		ArcGreZip:  base64.StdEncoding.EncodeToString(req.Zip),
		HashZip:    hex.EncodeToString(sum[:]),
	}})
	if err != nil {
		return nil, fmt.Errorf("gre: serializar envío: %w", err)
	}
	var out greSendResponse
	if err := c.do(ctx, http.MethodPost, c.apiURL+"/comprobantes/"+url.PathEscape(req.FileName), token, payload, &out); err != nil {
		return nil, err
	}
	if out.NumTicket == "" {
		return nil, fmt.Errorf("gre: respuesta sin numTicket")
	}
	return &billing.TicketResponse{Ticket: out.NumTicket}, nil
}

// GetDispatchStatus consulta el ticket de una guía.
func (c *GREClient) GetDispatchStatus(ctx context.Context, creds billing.Credentials, ticket string) (*billing.StatusResponse, error) {
	token, err := c.token(ctx, creds)
	if err != nil {
		return nil, err
	}
	var out greStatusResponse
	if err := c.do(ctx, http.MethodGet, c.apiURL+"/comprobantes/envios/"+url.PathEscape(ticket), token, nil, &out); err != nil {
		return nil, err
	}
	res := &billing.StatusResponse{StatusCode: out.CodRespuesta}
	if out.ArcCdr != "" {
		zipBytes, err := base64.StdEncoding.DecodeString(out.ArcCdr)
		if err != nil {
			return nil, fmt.Errorf("gre: decodificar CDR: %w", err)
		}
		cdr, err := ParseCDR(zipBytes)
		if err != nil {
			return nil, err
		}
		res.CDR = cdr
	} else if out.Error != nil {
		res.CDR = &billing.CDRResponse{Code: out.Error.NumError, Description: out.Error.DesError}
	}
	return res, nil
}

// token obtiene (o reutiliza) el access token del usuario SOL.
func (c *GREClient) token(ctx context.Context, creds billing.Credentials) (string, error) {
	if c.clientID == "" || c.clientSecret == "" {
		return "", fmt.Errorf("gre: %w (client_id/client_secret)", errNotConfigured)
	}
	user := creds.RUC + creds.User
	c.mu.Lock()
	if t, ok := c.tokens[user]; ok && c.now().Before(t.expiresAt) {
		c.mu.Unlock()
		return t.value, nil
	}
	c.mu.Unlock()

	form := url.Values{
		"grant_type":    {"password"},
		"scope":         {greScope},
		"client_id":     {c.clientID},
		"client_secret": {c.clientSecret},
		"username":      {user},
		"password":      {creds.Password},
	}
	tokenURL := c.tokenURL
	if strings.Contains(tokenURL, "%s") {
		tokenURL = fmt.Sprintf(tokenURL, url.PathEscape(c.clientID))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("gre: crear request de token: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var out greTokenResponse
	if err := c.send(ctx, req, "gre.token", &out); err != nil {
		return "", err
	}
	if out.AccessToken == "" {
		return "", fmt.Errorf("gre: SUNAT no devolvió access_token")
	}
	ttl := time.Duration(out.ExpiresIn) * time.Second
	if ttl <= 0 {
		ttl = time.Hour
	}
	c.mu.Lock()
	c.tokens[user] = greToken{value: out.AccessToken, expiresAt: c.now().Add(ttl - time.Minute)}
	c.mu.Unlock()
	return out.AccessToken, nil
}

func (c *GREClient) do(ctx context.Context, method, endpoint, token string, body []byte, out interface{}) error {
	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, r)
	if err != nil {
		return fmt.Errorf("gre: crear request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.send(ctx, req, "gre."+strings.ToLower(method), out)
}

// send ejecuta la petición: red y 5xx son ConnectionError; 4xx es error de negocio.
func (c *GREClient) send(ctx context.Context, req *http.Request, op string, out interface{}) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			err = ctx.Err()
		}
		return &domain.ConnectionError{Op: op, Err: err}
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return &domain.ConnectionError{Op: op, Err: fmt.Errorf("leer respuesta: %w", err)}
	}
	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return &domain.ConnectionError{Op: op, Err: fmt.Errorf("HTTP %d", resp.StatusCode)}
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("%s: HTTP %d: %s", op, resp.StatusCode, truncate(string(raw), 300))
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%s: decodificar respuesta: %w", op, err)
	}
	return nil
}
