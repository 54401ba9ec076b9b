// Package tlscheck verifies the certificate chain presented by the cage ingress.
package tlscheck

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"net"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/melih/cage-verify/internal/core/domain"
)

// Verifier dials the ingress port trusting only the supplied root.
type Verifier struct {
	// ServerName overrides the name checked against the leaf. Empty uses the host.
	ServerName string
	Timeout    time.Duration
	logger     zerolog.Logger
}

func NewVerifier(serverName string, logger zerolog.Logger) *Verifier {
	return &Verifier{
		ServerName: serverName,
		Timeout:    10 * time.Second,
		logger:     logger.With().Str("component", "trust").Logger(),
	}
}

// VerifyChain succeeds only if the handshake produced a chain ending at rootCA.
func (v *Verifier) VerifyChain(ctx context.Context, host string, port int, rootCA []byte) error {
	addr := net.JoinHostPort(host, strconv.Itoa(port))
	fail := func(err error) error { return &domain.TrustError{Addr: addr, Err: err} }

	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(rootCA) {
		return fail(errors.New("root certificate is not valid PEM"))
	}

	serverName := v.ServerName
	if serverName == "" {
		serverName = host
	}

	dialer := &tls.Dialer{
		NetDialer: &net.Dialer{Timeout: v.Timeout},
		Config: &tls.Config{
			RootCAs:    pool,
			ServerName: serverName,
			MinVersion: tls.VersionTLS12,
		},
	}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fail(err)
	}
	defer conn.Close()

	state := conn.(*tls.Conn).ConnectionState()
	if !state.HandshakeComplete || len(state.VerifiedChains) == 0 {
		return fail(errors.New("handshake did not report a verified chain"))
	}

	chain := state.VerifiedChains[0]
	v.logger.Info().
		Str("addr", addr).
		Str("leaf", chain[0].Subject.CommonName).
		Str("root", chain[len(chain)-1].Subject.CommonName).
		Int("depth", len(chain)).
		Msg("verification: OK")
	return nil
}
