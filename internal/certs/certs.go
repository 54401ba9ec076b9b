// Package certs generates the throwaway certificate material a local run
// bakes into the cage image: a provisioner root CA, a server and client pair
// signed by it, and a self-signed pair for the mock crypto service.
package certs

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/melih/cage-verify/internal/core/domain"
)

const validity = 24 * time.Hour

// Bundle holds PEM encoded certificates and keys.
type Bundle struct {
	RootCert   []byte
	RootKey    []byte
	ServerCert []byte
	ServerKey  []byte
	ClientCert []byte
	ClientKey  []byte
	CryptoCert []byte
	CryptoKey  []byte
}

// Generate creates a fresh bundle. hosts become the SANs of the server and
// mock crypto certificates.
func Generate(hosts []string) (*Bundle, error) {
	if len(hosts) == 0 {
		hosts = []string{"localhost", "127.0.0.1"}
	}

	rootKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate root key: %w", err)
	}
	rootTmpl := template("cage-verify test root", nil)
	rootTmpl.IsCA = true
	rootTmpl.BasicConstraintsValid = true
	rootTmpl.KeyUsage = x509.KeyUsageCertSign | x509.KeyUsageCRLSign | x509.KeyUsageDigitalSignature
	rootDER, err := x509.CreateCertificate(rand.Reader, rootTmpl, rootTmpl, &rootKey.PublicKey, rootKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create root certificate: %w", err)
	}
	root, err := x509.ParseCertificate(rootDER)
	if err != nil {
		return nil, fmt.Errorf("failed to parse root certificate: %w", err)
	}

	b := &Bundle{RootCert: encodeCert(rootDER)}
	if b.RootKey, err = encodeKey(rootKey); err != nil {
		return nil, err
	}

	serverTmpl := template("cage-verify provisioner", hosts)
	serverTmpl.ExtKeyUsage = []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth}
	if b.ServerCert, b.ServerKey, err = issue(serverTmpl, root, rootKey); err != nil {
		return nil, fmt.Errorf("failed to issue server certificate: %w", err)
	}

	clientTmpl := template("cage-verify client", nil)
	clientTmpl.ExtKeyUsage = []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth}
	if b.ClientCert, b.ClientKey, err = issue(clientTmpl, root, rootKey); err != nil {
		return nil, fmt.Errorf("failed to issue client certificate: %w", err)
	}

	cryptoTmpl := template("cage-verify mock crypto", hosts)
	cryptoTmpl.ExtKeyUsage = []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth}
	if b.CryptoCert, b.CryptoKey, err = issue(cryptoTmpl, nil, nil); err != nil {
		return nil, fmt.Errorf("failed to issue mock crypto certificate: %w", err)
	}
	return b, nil
}

// Secrets maps the bundle onto the build secret names.
func (b *Bundle) Secrets() map[string]string {
	return map[string]string{
		domain.SecretMockCryptoCert:        string(b.CryptoCert),
		domain.SecretMockCryptoKey:         string(b.CryptoKey),
		domain.SecretProvisionerClientCert: string(b.ClientCert),
		domain.SecretProvisionerClientKey:  string(b.ClientKey),
		domain.SecretProvisionerRootCert:   string(b.RootCert),
		domain.SecretProvisionerServerKey:  string(b.ServerKey),
		domain.SecretProvisionerServerCert: string(b.ServerCert),
	}
}

// WriteDir stores the bundle as PEM files in dir. Keys are written 0600.
func (b *Bundle) WriteDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create certs dir: %w", err)
	}
	files := []struct {
		name string
		data []byte
		mode os.FileMode
	}{
		{"root.crt", b.RootCert, 0o644},
		{"root.key", b.RootKey, 0o600},
		{"server.crt", b.ServerCert, 0o644},
		{"server.key", b.ServerKey, 0o600},
		{"client.crt", b.ClientCert, 0o644},
		{"client.key", b.ClientKey, 0o600},
		{"mock-crypto.crt", b.CryptoCert, 0o644},
		{"mock-crypto.key", b.CryptoKey, 0o600},
	}
	for _, f := range files {
		if err := os.WriteFile(filepath.Join(dir, f.name), f.data, f.mode); err != nil {
			return fmt.Errorf("failed to write %s: %w", f.name, err)
		}
	}
	return nil
}

func template(cn string, hosts []string) *x509.Certificate {
	serial, _ := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 62))
	t := &x509.Certificate{
		SerialNumber: serial,
		Subject:      pkix.Name{CommonName: cn, Organization: []string{"cage-verify"}},
		NotBefore:    time.Now().Add(-time.Minute),
		NotAfter:     time.Now().Add(validity),
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
	}
	for _, h := range hosts {
		if ip := net.ParseIP(h); ip != nil {
			t.IPAddresses = append(t.IPAddresses, ip)
		} else {
			t.DNSNames = append(t.DNSNames, h)
		}
	}
	return t
}

// issue signs tmpl with parent, or self-signs when parent is nil.
func issue(tmpl, parent *x509.Certificate, parentKey crypto.Signer) ([]byte, []byte, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, nil, err
	}
	if parent == nil {
		parent, parentKey = tmpl, key
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, parent, &key.PublicKey, parentKey)
	if err != nil {
		return nil, nil, err
	}
	keyPEM, err := encodeKey(key)
	if err != nil {
		return nil, nil, err
	}
	return encodeCert(der), keyPEM, nil
}

func encodeCert(der []byte) []byte {
	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
}

func encodeKey(key *ecdsa.PrivateKey) ([]byte, error) {
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal key: %w", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}), nil
}
