// check_cert valida el certificado digital configurado (SUNAT_CERT_*) antes de emitir:
// que el archivo exista, que la contraseña abra el PKCS#12 y que no esté vencido.
// Con un XML como argumento lo firma y muestra el hash CPE; si ya viene firmado solo lo muestra.
//
// Uso: go run ./cmd/check_cert [archivo.xml]
package main

import (
	"fmt"
	"os"
	"time"

	infrasunat "github.com/jhoicas/facturacion-sunat-api/internal/infrastructure/sunat"
	"github.com/jhoicas/facturacion-sunat-api/pkg/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	sc := cfg.SUNAT

	fmt.Println("DIAGNÓSTICO DE CERTIFICADO SUNAT")
	fmt.Println("--------------------------------")
	if sc.CertPath == "" {
		fmt.Println("SUNAT_CERT_PATH vacío: la aplicación no firmará (solo válido con SUNAT_ENV=dev).")
		os.Exit(1)
	}
	fmt.Printf("Archivo: %s\n", sc.CertPath)
	if _, err := os.Stat(sc.CertPath); err != nil {
		fmt.Printf("\nERROR DE ARCHIVO: %v\n", err)
		os.Exit(1)
	}

	cert, err := infrasunat.LoadCertificate(sc.CertPath, sc.CertKeyPath, sc.CertPassword)
	if err != nil {
		fmt.Printf("\nERROR DE CONTRASEÑA O FORMATO: %v\n", err)
		os.Exit(1)
	}
	info, err := infrasunat.Describe(cert)
	if err != nil {
		fmt.Printf("\nCERTIFICADO ILEGIBLE: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Sujeto:   %s\n", info.Subject)
	fmt.Printf("Emisor:   %s\n", info.Issuer)
	fmt.Printf("Serie:    %s\n", info.Serial)
	fmt.Printf("Llave:    %s\n", info.KeyType)
	fmt.Printf("Vigencia: %s -> %s\n", info.NotBefore.Format(time.DateOnly), info.NotAfter.Format(time.DateOnly))

	now := time.Now()
	switch {
	case now.After(info.NotAfter):
		fmt.Println("\nCERTIFICADO VENCIDO: SUNAT rechazará los comprobantes firmados.")
		os.Exit(1)
	case now.Before(info.NotBefore):
		fmt.Println("\nCERTIFICADO AÚN NO VIGENTE.")
		os.Exit(1)
	case info.NotAfter.Sub(now) < 30*24*time.Hour:
		fmt.Printf("\nATENCIÓN: vence en %d días.\n", int(info.NotAfter.Sub(now).Hours()/24))
	}

	if len(os.Args) > 1 {
		xml, err := os.ReadFile(os.Args[1])
		if err != nil {
			fmt.Printf("\nNo se pudo leer %s: %v\n", os.Args[1], err)
			os.Exit(1)
		}
		if digest := infrasunat.DigestValue(xml); digest != "" {
			fmt.Printf("\nEl XML ya está firmado. Hash CPE: %s\n", digest)
		} else {
			signed, digest, err := infrasunat.NewDigitalSignatureService().Sign(xml, cert)
			if err != nil {
				fmt.Printf("\nFIRMA FALLIDA: %v\n", err)
				os.Exit(1)
			}
			fmt.Printf("\nXML firmado (%d bytes). Hash CPE: %s\n", len(signed), digest)
		}
	}

	fmt.Println("\nCertificado correcto.")
}
