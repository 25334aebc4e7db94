// Package sunat implementa los adaptadores hacia SUNAT: XML UBL 2.1, firma,
// servicios SOAP (billService), API REST de guías (GRE) y lectura de CDR.
package sunat

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jhoicas/facturacion-sunat-api/internal/application/billing"
	"github.com/jhoicas/facturacion-sunat-api/internal/domain/entity"
	domsunat "github.com/jhoicas/facturacion-sunat-api/internal/domain/sunat"
	"github.com/jhoicas/facturacion-sunat-api/pkg/sunat"
)

// Namespaces UBL 2.1 y extensiones SUNAT.
const (
	NsInvoice    = "urn:oasis:names:specification:ubl:schema:xsd:Invoice-2"
	NsCreditNote = "urn:oasis:names:specification:ubl:schema:xsd:CreditNote-2"
	NsDebitNote  = "urn:oasis:names:specification:ubl:schema:xsd:DebitNote-2"
	NsDespatch   = "urn:oasis:names:specification:ubl:schema:xsd:DespatchAdvice-2"
	NsSummary    = "urn:sunat:names:specification:ubl:peru:schema:xsd:SummaryDocuments-1"
	NsVoided     = "urn:sunat:names:specification:ubl:peru:schema:xsd:VoidedDocuments-1"
	NsRetention  = "urn:sunat:names:specification:ubl:peru:schema:xsd:Retention-1"

	NsCac = "urn:oasis:names:specification:ubl:schema:xsd:CommonAggregateComponents-2"
	NsCbc = "urn:oasis:names:specification:ubl:schema:xsd:CommonBasicComponents-2"
	NsExt = "urn:oasis:names:specification:ubl:schema:xsd:CommonExtensionComponents-2"
	NsSac = "urn:sunat:names:specification:ubl:peru:schema:xsd:SunatAggregateComponents-1"
	NsDs  = "http://www.w3.org/2000/09/xmldsig#"
)

// SignatureID identificador de la firma referenciado desde cac:Signature.
const SignatureID = "SignSUNAT"

// XMLBuilderService construye el XML UBL 2.1 sin firmar de cada clase de comprobante.
type XMLBuilderService struct{}

// NewXMLBuilderService crea el servicio.
func NewXMLBuilderService() *XMLBuilderService {
	return &XMLBuilderService{}
}

var _ billing.XMLBuilder = (*XMLBuilderService)(nil)

// Build genera el XML según la clase del comprobante.
func (s *XMLBuilderService) Build(ctx *billing.XMLContext) ([]byte, error) {
	if ctx == nil || ctx.Document == nil || ctx.Company == nil {
		return nil, fmt.Errorf("sunat: faltan documento o empresa en el contexto")
	}
	w := newUBLWriter()
	var err error
	switch ctx.Document.Kind {
	case entity.KindInvoice, entity.KindBoleta:
		err = s.writeInvoice(w, ctx)
	case entity.KindCreditNote, entity.KindDebitNote:
		err = s.writeNote(w, ctx)
	case entity.KindDailySummary:
		err = s.writeSummary(w, ctx)
	case entity.KindVoided:
		err = s.writeVoided(w, ctx)
	case entity.KindDispatchGuide:
		err = s.writeDespatch(w, ctx)
	case entity.KindRetention:
		err = s.writeRetention(w, ctx)
	default:
		return nil, fmt.Errorf("sunat: la clase %q no tiene representación XML", ctx.Document.Kind)
	}
	if err != nil {
		return nil, err
	}
	return w.bytes()
}

// ── Escritura por tokens ──────────────────────────────────────────────────────

// ublWriter envuelve xml.Encoder; los nombres llevan el prefijo (cbc:, cac:) declarado en la raíz.
type ublWriter struct {
	buf bytes.Buffer
	enc *xml.Encoder
	err error
}

func newUBLWriter() *ublWriter {
	w := &ublWriter{}
	w.buf.WriteString(xml.Header)
	w.enc = xml.NewEncoder(&w.buf)
	w.enc.Indent("", "  ")
	return w
}

func (w *ublWriter) token(t xml.Token) {
	if w.err != nil {
		return
	}
	w.err = w.enc.EncodeToken(t)
}

func (w *ublWriter) start(name string, attrs ...string) {
	se := xml.StartElement{Name: xml.Name{Local: name}}
	for i := 0; i+1 < len(attrs); i += 2 {
		se.Attr = append(se.Attr, xml.Attr{Name: xml.Name{Local: attrs[i]}, Value: attrs[i+1]})
	}
	w.token(se)
}

func (w *ublWriter) end(name string) {
	w.token(xml.EndElement{Name: xml.Name{Local: name}})
}

// elem escribe <name attrs...>value</name>.
func (w *ublWriter) elem(name, value string, attrs ...string) {
	w.start(name, attrs...)
	w.token(xml.CharData(value))
	w.end(name)
}

func (w *ublWriter) amount(name string, v decimal.Decimal, currency string) {
	w.elem(name, formatAmount(v), "currencyID", currency)
}

func (w *ublWriter) bytes() ([]byte, error) {
	if w.err != nil {
		return nil, fmt.Errorf("sunat: serializar XML: %w", w.err)
	}
	if err := w.enc.Flush(); err != nil {
		return nil, fmt.Errorf("sunat: serializar XML: %w", err)
	}
	return w.buf.Bytes(), nil
}

// root abre el elemento raíz con los namespaces comunes más los extra indicados.
func (w *ublWriter) root(name, ns string, extra ...string) {
	attrs := []string{
		"xmlns", ns,
		"xmlns:cac", NsCac,
		"xmlns:cbc", NsCbc,
		"xmlns:ds", NsDs,
		"xmlns:ext", NsExt,
	}
	attrs = append(attrs, extra...)
	w.start(name, attrs...)
}

// extensions deja ext:ExtensionContent vacío como primer hijo; el firmador inyecta ahí ds:Signature.
func (w *ublWriter) extensions() {
	w.start("ext:UBLExtensions")
	w.start("ext:UBLExtension")
	w.start("ext:ExtensionContent")
	w.end("ext:ExtensionContent")
	w.end("ext:UBLExtension")
	w.end("ext:UBLExtensions")
}

// signatureRef bloque cac:Signature que enlaza al emisor con la firma.
func (w *ublWriter) signatureRef(company *entity.Company) {
	w.start("cac:Signature")
	w.elem("cbc:ID", SignatureID)
	w.start("cac:SignatoryParty")
	w.start("cac:PartyIdentification")
	w.elem("cbc:ID", company.RUC)
	w.end("cac:PartyIdentification")
	w.start("cac:PartyName")
	w.elem("cbc:Name", company.RazonSocial)
	w.end("cac:PartyName")
	w.end("cac:SignatoryParty")
	w.start("cac:DigitalSignatureAttachment")
	w.start("cac:ExternalReference")
	w.elem("cbc:URI", "#"+SignatureID)
	w.end("cac:ExternalReference")
	w.end("cac:DigitalSignatureAttachment")
	w.end("cac:Signature")
}

// party escribe cac:Party con identificación, nombre comercial y razón social.
func (w *ublWriter) party(schemeID, number, tradeName, legalName string, addr *entity.Address, establishment string) {
	w.start("cac:Party")
	w.start("cac:PartyIdentification")
	w.elem("cbc:ID", number, "schemeID", schemeID)
	w.end("cac:PartyIdentification")
	if tradeName != "" {
		w.start("cac:PartyName")
		w.elem("cbc:Name", tradeName)
		w.end("cac:PartyName")
	}
	w.start("cac:PartyLegalEntity")
	w.elem("cbc:RegistrationName", legalName)
	if addr != nil || establishment != "" {
		w.start("cac:RegistrationAddress")
		if addr != nil && addr.Ubigeo != "" {
			w.elem("cbc:ID", addr.Ubigeo)
		}
		if establishment != "" {
			w.elem("cbc:AddressTypeCode", establishment)
		}
		if addr != nil && addr.Direccion != "" {
			w.start("cac:AddressLine")
			w.elem("cbc:Line", addr.Direccion)
			w.end("cac:AddressLine")
		}
		w.end("cac:RegistrationAddress")
	}
	w.end("cac:PartyLegalEntity")
	w.end("cac:Party")
}

// supplier emisor: RUC, nombre comercial, razón social y establecimiento anexo.
func (w *ublWriter) supplier(tag string, company *entity.Company, branch *entity.Branch) {
	addr := &entity.Address{Ubigeo: company.Ubigeo, Direccion: company.Direccion}
	establishment := "0000"
	if branch != nil {
		if branch.Code != "" {
			establishment = branch.Code
		}
		if branch.Ubigeo != "" {
			addr = &entity.Address{Ubigeo: branch.Ubigeo, Direccion: branch.Direccion}
		}
	}
	w.start(tag)
	w.party(sunat.IdentityRUC, company.RUC, company.NombreComercial, company.RazonSocial, addr, establishment)
	w.end(tag)
}

func (w *ublWriter) customer(tag string, c *entity.ClientRef) {
	if c == nil {
		c = &entity.ClientRef{TipoDocumento: sunat.IdentitySinDocumento, NumeroDocumento: "-", RazonSocial: "CLIENTES VARIOS"}
	}
	var addr *entity.Address
	if c.Direccion != "" {
		addr = &entity.Address{Direccion: c.Direccion}
	}
	w.start(tag)
	w.party(c.TipoDocumento, c.NumeroDocumento, "", c.RazonSocial, addr, "")
	w.end(tag)
}

// taxSubtotal escribe un cac:TaxSubtotal con su categoría.
func (w *ublWriter) taxSubtotal(base, tax decimal.Decimal, currency string, scheme sunat.TaxScheme) {
	w.start("cac:TaxSubtotal")
	w.amount("cbc:TaxableAmount", base, currency)
	w.amount("cbc:TaxAmount", tax, currency)
	w.start("cac:TaxCategory")
	w.taxScheme(scheme)
	w.end("cac:TaxCategory")
	w.end("cac:TaxSubtotal")
}

func (w *ublWriter) taxScheme(scheme sunat.TaxScheme) {
	w.start("cac:TaxScheme")
	w.elem("cbc:ID", scheme.ID)
	w.elem("cbc:Name", scheme.Name)
	w.elem("cbc:TaxTypeCode", scheme.TypeCode)
	w.end("cac:TaxScheme")
}

// ── Formatos ──────────────────────────────────────────────────────────────────

func formatAmount(d decimal.Decimal) string {
	return d.Round(2).StringFixed(2)
}

// formatQuantity hasta 10 decimales sin ceros a la derecha.
func formatQuantity(d decimal.Decimal) string {
	return d.Round(10).String()
}

func formatPercent(d decimal.Decimal) string {
	return d.Round(2).StringFixed(2)
}

func formatDate(t time.Time) string {
	return t.In(domsunat.Lima).Format("2006-01-02")
}

func formatTime(t time.Time) string {
	return t.In(domsunat.Lima).Format("15:04:05")
}
