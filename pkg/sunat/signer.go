package sunat

import "crypto/tls"

// Signer firma un XML UBL y devuelve el XML con ds:Signature dentro de ext:ExtensionContent.
type Signer interface {
	// Sign retorna el XML firmado y el DigestValue (hash CPE que se imprime en la representación impresa).
	Sign(xmlBytes []byte, cert tls.Certificate) (signed []byte, digest string, err error)
}
