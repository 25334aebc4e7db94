// seed_sunat genera scripts SQL para actualizar catálogos SUNAT a partir de los CSV
// publicados por SUNAT (exportados desde el anexo de catálogos, codificación ISO-8859-1).
//
// Uso: go run ./cmd/seed_sunat <catalogo> <archivo.csv>
//
//	catalogo 54: código;descripción;porcentaje      -> detraction_codes
//	catalogo 59: código;descripción;bancarizado(S/N) -> payment_methods
//
// Escribe: db/seeds/catalogo_<n>.sql
package main

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"
)

type fila struct {
	codigo      string
	descripcion string
	extra       string
}

func main() {
	if len(os.Args) < 3 {
		fmt.Fprintln(os.Stderr, "Uso: seed_sunat <54|59> <archivo.csv>")
		os.Exit(1)
	}
	catalogo, csvPath := os.Args[1], os.Args[2]
	if catalogo != "54" && catalogo != "59" {
		fmt.Fprintf(os.Stderr, "Catálogo no soportado: %s\n", catalogo)
		os.Exit(1)
	}

	raw, err := os.ReadFile(csvPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Abrir CSV: %v\n", err)
		os.Exit(1)
	}
	filas, err := leerCSV(raw)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Leer CSV: %v\n", err)
		os.Exit(1)
	}

	outPath := filepath.Join(findModuleRoot(), "db", "seeds", "catalogo_"+catalogo+".sql")
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "Crear directorio: %v\n", err)
		os.Exit(1)
	}
	out, err := os.Create(outPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Crear archivo: %v\n", err)
		os.Exit(1)
	}
	defer out.Close()

	w := bufio.NewWriter(out)
	var n int
	switch catalogo {
	case "54":
		n, err = escribirDetracciones(w, filas)
	case "59":
		n, err = escribirMediosPago(w, filas)
	}
	if err == nil {
		err = w.Flush()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Generar SQL: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Generado %s: %d registros\n", outPath, n)
}

// leerCSV acepta UTF-8 o ISO-8859-1, separador ';' y cabecera opcional.
func leerCSV(raw []byte) ([]fila, error) {
	var src io.Reader = strings.NewReader(string(raw))
	if !utf8.Valid(raw) {
		src = transform.NewReader(strings.NewReader(string(raw)), charmap.ISO8859_1.NewDecoder())
	}
	r := csv.NewReader(src)
	r.Comma = ';'
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	registros, err := r.ReadAll()
	if err != nil {
		return nil, err
	}
	var filas []fila
	for i, rec := range registros {
		if len(rec) < 3 {
			continue
		}
		codigo := strings.TrimSpace(rec[0])
		if i == 0 && !esCodigo(codigo) {
			continue // cabecera
		}
		if !esCodigo(codigo) {
			return nil, fmt.Errorf("línea %d: código %q inválido", i+1, codigo)
		}
		filas = append(filas, fila{
			codigo:      fmt.Sprintf("%03s", codigo),
			descripcion: strings.TrimSpace(rec[1]),
			extra:       strings.TrimSpace(rec[2]),
		})
	}
	sort.Slice(filas, func(i, j int) bool { return filas[i].codigo < filas[j].codigo })
	return filas, nil
}

func esCodigo(s string) bool {
	if s == "" || len(s) > 3 {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func escribirDetracciones(w io.Writer, filas []fila) (int, error) {
	fmt.Fprintln(w, "-- Catálogo 54: códigos de bienes y servicios sujetos a detracción")
	fmt.Fprintln(w, "-- Generado por cmd/seed_sunat")
	fmt.Fprintln(w)
	for _, f := range filas {
		rate, err := decimal.NewFromString(strings.TrimSuffix(strings.ReplaceAll(f.extra, ",", "."), "%"))
		if err != nil {
			return 0, fmt.Errorf("código %s: porcentaje %q inválido", f.codigo, f.extra)
		}
		fmt.Fprintf(w, "INSERT INTO detraction_codes (code, description, rate) VALUES ('%s', '%s', %s)\n",
			f.codigo, escapeSQL(f.descripcion), rate.StringFixed(2))
		fmt.Fprintln(w, "ON CONFLICT (code) DO UPDATE SET description = EXCLUDED.description, rate = EXCLUDED.rate, active = TRUE;")
	}
	return len(filas), nil
}

func escribirMediosPago(w io.Writer, filas []fila) (int, error) {
	fmt.Fprintln(w, "-- Catálogo 59: medios de pago")
	fmt.Fprintln(w, "-- Generado por cmd/seed_sunat")
	fmt.Fprintln(w)
	for _, f := range filas {
		var bancarizado bool
		switch strings.ToUpper(f.extra) {
		case "S", "SI", "SÍ", "1", "TRUE":
			bancarizado = true
		case "N", "NO", "0", "FALSE":
		default:
			return 0, fmt.Errorf("código %s: indicador de bancarización %q inválido", f.codigo, f.extra)
		}
		fmt.Fprintf(w, "INSERT INTO payment_methods (code, description, bankarized) VALUES ('%s', '%s', %t)\n",
			f.codigo, escapeSQL(f.descripcion), bancarizado)
		fmt.Fprintln(w, "ON CONFLICT (code) DO UPDATE SET description = EXCLUDED.description, bankarized = EXCLUDED.bankarized;")
	}
	return len(filas), nil
}

func escapeSQL(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}

func findModuleRoot() string {
	dir, _ := os.Getwd()
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return dir
		}
		dir = parent
	}
}
