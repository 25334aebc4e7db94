package sunat

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"strings"
)

// FileName nombre base exigido por SUNAT: {RUC}-{TIPO}-{SERIE}-{CORRELATIVO}.
// Para resúmenes y bajas numero ya incluye el tipo: {RUC}-RC-20250110-1.
func FileName(ruc, tipoDocumento, numero string) string {
	if tipoDocumento == DocResumenDiario || tipoDocumento == DocComunicacionBaja {
		return ruc + "-" + numero
	}
	return ruc + "-" + tipoDocumento + "-" + numero
}

// CompressXMLToZip empaqueta el XML firmado en un ZIP en memoria con una única entrada.
func CompressXMLToZip(xmlBytes []byte, xmlFilename string) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	fw, err := zw.Create(xmlFilename)
	if err != nil {
		return nil, fmt.Errorf("zip: crear entrada %s: %w", xmlFilename, err)
	}
	if _, err := fw.Write(xmlBytes); err != nil {
		return nil, fmt.Errorf("zip: escribir XML: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("zip: cerrar archivo: %w", err)
	}
	return buf.Bytes(), nil
}

// ExtractXMLFromZip devuelve el primer .xml del ZIP (el CDR viene como R-{nombre}.xml).
func ExtractXMLFromZip(zipBytes []byte) ([]byte, error) {
	zr, err := zip.NewReader(bytes.NewReader(zipBytes), int64(len(zipBytes)))
	if err != nil {
		return nil, fmt.Errorf("zip: leer: %w", err)
	}
	for _, f := range zr.File {
		if f.FileInfo().IsDir() || !strings.HasSuffix(strings.ToLower(f.Name), ".xml") {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("zip: abrir %s: %w", f.Name, err)
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("zip: leer %s: %w", f.Name, err)
		}
		return data, nil
	}
	return nil, fmt.Errorf("zip: no contiene XML")
}
