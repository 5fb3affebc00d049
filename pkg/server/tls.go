package server

import (
	"crypto"
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
)

// DefaultALPN is the protocol preference advertised during the handshake.
var DefaultALPN = []string{"h2", "http/1.1"}

var (
	// ErrNoCertificates indicates a certificate file without CERTIFICATE blocks.
	ErrNoCertificates = errors.New("no certificates found")

	// ErrNoPrivateKey indicates a key file without a usable PKCS#8 or PKCS#1 key.
	ErrNoPrivateKey = errors.New("no usable private key found")

	// ErrKeyMismatch indicates a key that does not belong to the leaf certificate.
	ErrKeyMismatch = errors.New("private key does not match certificate")
)

// LoadTLS reads a PEM certificate chain and private key and returns a server
// TLS configuration advertising alpn (DefaultALPN when empty). Keys are tried
// as PKCS#8 first, then as PKCS#1 RSA; the first usable key wins.
func LoadTLS(certFile, keyFile string, alpn []string) (*tls.Config, error) {
	chain, err := loadCertificates(certFile)
	if err != nil {
		return nil, err
	}

	key, err := loadPrivateKey(keyFile)
	if err != nil {
		return nil, err
	}

	leaf, err := x509.ParseCertificate(chain[0])
	if err != nil {
		return nil, fmt.Errorf("parse leaf certificate %s: %w", certFile, err)
	}
	if pub, ok := leaf.PublicKey.(interface{ Equal(crypto.PublicKey) bool }); !ok || !pub.Equal(key.Public()) {
		return nil, fmt.Errorf("%s and %s: %w", certFile, keyFile, ErrKeyMismatch)
	}

	if len(alpn) == 0 {
		alpn = DefaultALPN
	}

	return &tls.Config{
		Certificates: []tls.Certificate{{
			Certificate: chain,
			PrivateKey:  key,
			Leaf:        leaf,
		}},
		NextProtos: append([]string(nil), alpn...),
		MinVersion: tls.VersionTLS12,
	}, nil
}

func loadCertificates(path string) ([][]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read certificate file: %w", err)
	}

	var chain [][]byte
	for {
		var block *pem.Block
		block, data = pem.Decode(data)
		if block == nil {
			break
		}
		if block.Type == "CERTIFICATE" {
			chain = append(chain, block.Bytes)
		}
	}

	if len(chain) == 0 {
		return nil, fmt.Errorf("%s: %w", path, ErrNoCertificates)
	}
	return chain, nil
}

func loadPrivateKey(path string) (crypto.Signer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read key file: %w", err)
	}

	for {
		var block *pem.Block
		block, data = pem.Decode(data)
		if block == nil {
			break
		}

		if key, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
			if signer, ok := key.(crypto.Signer); ok {
				return signer, nil
			}
		}
		if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
			return key, nil
		}
	}

	return nil, fmt.Errorf("%s: %w", path, ErrNoPrivateKey)
}
