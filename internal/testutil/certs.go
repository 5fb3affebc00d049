package testutil

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// KeyFormat selects how the generated private key is PEM encoded.
type KeyFormat int

const (
	// KeyPKCS8 writes a "PRIVATE KEY" block.
	KeyPKCS8 KeyFormat = iota

	// KeyPKCS1 writes an "RSA PRIVATE KEY" block.
	KeyPKCS1

	// KeyEC writes an "EC PRIVATE KEY" block, which the edge does not accept.
	KeyEC
)

// TLSFiles are PEM files written for a test.
type TLSFiles struct {
	CertFile string
	KeyFile  string
	Pool     *x509.CertPool
}

// WriteSelfSigned writes a self-signed certificate for localhost/127.0.0.1
// and its private key into a temporary directory.
func WriteSelfSigned(t *testing.T, format KeyFormat) TLSFiles {
	t.Helper()

	var (
		pub    any
		signer any
		keyPEM *pem.Block
	)

	switch format {
	case KeyEC:
		key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
		if err != nil {
			t.Fatalf("generate ec key: %v", err)
		}
		der, err := x509.MarshalECPrivateKey(key)
		if err != nil {
			t.Fatalf("marshal ec key: %v", err)
		}
		pub, signer = &key.PublicKey, key
		keyPEM = &pem.Block{Type: "EC PRIVATE KEY", Bytes: der}
	default:
		key, err := rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			t.Fatalf("generate rsa key: %v", err)
		}
		pub, signer = &key.PublicKey, key
		if format == KeyPKCS1 {
			keyPEM = &pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)}
		} else {
			der, err := x509.MarshalPKCS8PrivateKey(key)
			if err != nil {
				t.Fatalf("marshal pkcs8 key: %v", err)
			}
			keyPEM = &pem.Block{Type: "PRIVATE KEY", Bytes: der}
		}
	}

	tmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(time.Now().UnixNano()),
		Subject:               pkix.Name{CommonName: "localhost"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(24 * time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		IsCA:                  true,
		DNSNames:              []string{"localhost"},
		IPAddresses:           []net.IP{net.ParseIP("127.0.0.1")},
	}

	certDER, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, pub, signer)
	if err != nil {
		t.Fatalf("create certificate: %v", err)
	}
	cert, err := x509.ParseCertificate(certDER)
	if err != nil {
		t.Fatalf("parse certificate: %v", err)
	}

	dir := t.TempDir()
	files := TLSFiles{
		CertFile: filepath.Join(dir, "cert.pem"),
		KeyFile:  filepath.Join(dir, "key.pem"),
		Pool:     x509.NewCertPool(),
	}
	files.Pool.AddCert(cert)

	writePEM(t, files.CertFile, &pem.Block{Type: "CERTIFICATE", Bytes: certDER})
	writePEM(t, files.KeyFile, keyPEM)

	return files
}

func writePEM(t *testing.T, path string, block *pem.Block) {
	t.Helper()
	if err := os.WriteFile(path, pem.EncodeToMemory(block), 0o600); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
