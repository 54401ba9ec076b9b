package domain

// Build secrets injected into the cage image as build arguments.
const (
	SecretMockCryptoCert        = "MOCK_CRYPTO_CERT"
	SecretMockCryptoKey         = "MOCK_CRYPTO_KEY"
	SecretProvisionerClientCert = "MOCK_CERT_PROVISIONER_CLIENT_CERT"
	SecretProvisionerClientKey  = "MOCK_CERT_PROVISIONER_CLIENT_KEY"
	SecretProvisionerRootCert   = "MOCK_CERT_PROVISIONER_ROOT_CERT"
	SecretProvisionerServerKey  = "MOCK_CERT_PROVISIONER_SERVER_KEY"
	SecretProvisionerServerCert = "MOCK_CERT_PROVISIONER_SERVER_CERT"
)

// SecretNames lists every build secret the cage image expects.
var SecretNames = []string{
	SecretMockCryptoCert,
	SecretMockCryptoKey,
	SecretProvisionerClientCert,
	SecretProvisionerClientKey,
	SecretProvisionerRootCert,
	SecretProvisionerServerKey,
	SecretProvisionerServerCert,
}
