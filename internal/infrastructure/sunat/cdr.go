package sunat

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/beevik/etree"
	"golang.org/x/text/encoding/charmap"

	"github.com/jhoicas/facturacion-sunat-api/internal/application/billing"
	"github.com/jhoicas/facturacion-sunat-api/pkg/sunat"
)

// ParseCDR lee la constancia de recepción (ApplicationResponse) contenida en el ZIP de SUNAT.
func ParseCDR(zipBytes []byte) (*billing.CDRResponse, error) {
	xmlBytes, err := sunat.ExtractXMLFromZip(zipBytes)
	if err != nil {
		return nil, fmt.Errorf("cdr: %w", err)
	}
	cdr, err := ParseCDRXML(xmlBytes)
	if err != nil {
		return nil, err
	}
	cdr.CDRZip = zipBytes
	return cdr, nil
}

// ParseCDRXML extrae código, descripción y observaciones del ApplicationResponse.
// Acepta XML en UTF-8 o ISO-8859-1.
func ParseCDRXML(xmlBytes []byte) (*billing.CDRResponse, error) {
	doc := etree.NewDocument()
	doc.ReadSettings.CharsetReader = charsetReader
	if err := doc.ReadFromBytes(xmlBytes); err != nil {
		return nil, fmt.Errorf("cdr: parsear XML: %w", err)
	}
	resp := doc.FindElement("//DocumentResponse/Response")
	if resp == nil {
		return nil, fmt.Errorf("cdr: falta cac:DocumentResponse/cac:Response")
	}
	out := &billing.CDRResponse{Raw: xmlBytes}
	if el := resp.FindElement("ResponseCode"); el != nil {
		out.Code = strings.TrimSpace(el.Text())
	}
	if el := resp.FindElement("Description"); el != nil {
		out.Description = strings.TrimSpace(el.Text())
	}
	if out.Code == "" {
		return nil, fmt.Errorf("cdr: sin cbc:ResponseCode")
	}
	if root := doc.Root(); root != nil {
		for _, n := range root.SelectElements("Note") {
			if t := strings.TrimSpace(n.Text()); t != "" {
				out.Notes = append(out.Notes, t)
			}
		}
	}
	return out, nil
}

func charsetReader(label string, input io.Reader) (io.Reader, error) {
	switch strings.ToLower(label) {
	case "iso-8859-1", "latin1", "latin-1":
		return charmap.ISO8859_1.NewDecoder().Reader(input), nil
	case "windows-1252", "cp1252":
		return charmap.Windows1252.NewDecoder().Reader(input), nil
	case "utf-8", "utf8", "":
		return input, nil
	}
	return nil, fmt.Errorf("cdr: charset no soportado %q", label)
}

// buildCDR arma un ApplicationResponse mínimo; lo usa el cliente simulado.
func buildCDR(fileName, code, description string) ([]byte, error) {
	var b bytes.Buffer
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n")
	b.WriteString(`<ar:ApplicationResponse xmlns:ar="urn:oasis:names:specification:ubl:schema:xsd:ApplicationResponse-2" xmlns:cac="` + NsCac + `" xmlns:cbc="` + NsCbc + `">`)
	b.WriteString(`<cbc:UBLVersionID>2.0</cbc:UBLVersionID><cbc:CustomizationID>1.0</cbc:CustomizationID>`)
	b.WriteString(`<cbc:ID>` + escapeXML(fileName) + `</cbc:ID>`)
	b.WriteString(`<cac:DocumentResponse><cac:Response>`)
	b.WriteString(`<cbc:ReferenceID>` + escapeXML(fileName) + `</cbc:ReferenceID>`)
	b.WriteString(`<cbc:ResponseCode>` + escapeXML(code) + `</cbc:ResponseCode>`)
	b.WriteString(`<cbc:Description>` + escapeXML(description) + `</cbc:Description>`)
	b.WriteString(`</cac:Response></cac:DocumentResponse></ar:ApplicationResponse>`)
	return sunat.CompressXMLToZip(b.Bytes(), "R-"+fileName+".xml")
}
