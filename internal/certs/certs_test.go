package certs

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/melih/cage-verify/internal/core/domain"
)

func parse(t *testing.T, data []byte) *x509.Certificate {
	t.Helper()
	block, _ := pem.Decode(data)
	require.NotNil(t, block)
	cert, err := x509.ParseCertificate(block.Bytes)
	require.NoError(t, err)
	return cert
}

func TestGenerate_ChainsToRoot(t *testing.T) {
	b, err := Generate([]string{"localhost", "127.0.0.1"})
	require.NoError(t, err)

	roots := x509.NewCertPool()
	require.True(t, roots.AppendCertsFromPEM(b.RootCert))

	server := parse(t, b.ServerCert)
	_, err = server.Verify(x509.VerifyOptions{DNSName: "localhost", Roots: roots})
	require.NoError(t, err)
	assert.Contains(t, server.IPAddresses[0].String(), "127.0.0.1")

	client := parse(t, b.ClientCert)
	_, err = client.Verify(x509.VerifyOptions{
		Roots:     roots,
		KeyUsages: []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth},
	})
	require.NoError(t, err)

	// The mock crypto pair is self-signed and does not chain to the root.
	cryptoCert := parse(t, b.CryptoCert)
	_, err = cryptoCert.Verify(x509.VerifyOptions{DNSName: "localhost", Roots: roots})
	assert.Error(t, err)
}

func TestGenerate_KeyPairsMatch(t *testing.T) {
	b, err := Generate(nil)
	require.NoError(t, err)

	for name, pair := range map[string][2][]byte{
		"server": {b.ServerCert, b.ServerKey},
		"client": {b.ClientCert, b.ClientKey},
		"crypto": {b.CryptoCert, b.CryptoKey},
	} {
		_, err := tls.X509KeyPair(pair[0], pair[1])
		assert.NoError(t, err, name)
	}
}

func TestSecrets_CoversEveryBuildSecret(t *testing.T) {
	b, err := Generate(nil)
	require.NoError(t, err)

	secrets := b.Secrets()
	for _, name := range domain.SecretNames {
		assert.NotEmpty(t, secrets[name], name)
	}
	assert.Equal(t, string(b.RootCert), secrets[domain.SecretProvisionerRootCert])
}

func TestWriteDir(t *testing.T) {
	b, err := Generate(nil)
	require.NoError(t, err)
	dir := filepath.Join(t.TempDir(), "certs")

	require.NoError(t, b.WriteDir(dir))

	data, err := os.ReadFile(filepath.Join(dir, "root.crt"))
	require.NoError(t, err)
	assert.Equal(t, b.RootCert, data)

	info, err := os.Stat(filepath.Join(dir, "server.key"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}
