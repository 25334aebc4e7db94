package sunat

import (
	"fmt"
	"unicode"
)

// pesos del módulo 11 aplicados a los 10 primeros dígitos del RUC.
var rucWeights = [10]int{5, 4, 3, 2, 7, 6, 5, 4, 3, 2}

// ValidateRUC valida longitud, prefijo y dígito verificador de un RUC.
func ValidateRUC(ruc string) error {
	digits := extractDigits(ruc)
	if len(digits) != 11 || len(digits) != len(ruc) {
		return fmt.Errorf("sunat: el RUC debe tener 11 dígitos")
	}
	switch string(digits[:2]) {
	case "10", "15", "16", "17", "20":
	default:
		return fmt.Errorf("sunat: prefijo de RUC inválido %q", string(digits[:2]))
	}
	expected := ComputeRUCCheckDigit(digits[:10])
	if digits[10] != expected {
		return fmt.Errorf("sunat: dígito verificador del RUC inválido: esperado %c, recibido %c", expected, digits[10])
	}
	return nil
}

// ComputeRUCCheckDigit calcula el dígito verificador para los 10 primeros dígitos.
func ComputeRUCCheckDigit(base []byte) byte {
	var sum int
	for i := 0; i < 10 && i < len(base); i++ {
		sum += int(base[i]-'0') * rucWeights[i]
	}
	d := 11 - sum%11
	switch d {
	case 10:
		d = 0
	case 11:
		d = 1
	}
	return byte('0' + d)
}

// ValidateIdentity valida el número según el tipo de documento de identidad (catálogo 06).
func ValidateIdentity(tipoDoc, numero string) error {
	switch tipoDoc {
	case IdentityRUC:
		return ValidateRUC(numero)
	case IdentityDNI:
		if d := extractDigits(numero); len(d) != 8 || len(d) != len(numero) {
			return fmt.Errorf("sunat: el DNI debe tener 8 dígitos")
		}
		return nil
	case IdentitySinDocumento, IdentityCarnetExt, IdentityPasaporte:
		if len(numero) > 15 {
			return fmt.Errorf("sunat: número de documento demasiado largo")
		}
		return nil
	default:
		return fmt.Errorf("sunat: tipo de documento de identidad desconocido %q", tipoDoc)
	}
}

func extractDigits(s string) []byte {
	var out []byte
	for _, r := range s {
		if unicode.IsDigit(r) {
			out = append(out, byte(r))
		}
	}
	return out
}
