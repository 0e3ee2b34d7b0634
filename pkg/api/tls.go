package api

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"log/slog"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"time"
)

const (
	certFile = "cert.pem"
	keyFile  = "key.pem"
)

// loadOrCreateCert returns the key pair kept in dir, generating and
// persisting a self-signed one when none loads. With an empty dir the
// certificate lives only in memory. Failing to persist is logged; the
// generated certificate is still returned.
func loadOrCreateCert(dir string) (tls.Certificate, error) {
	if dir != "" {
		cert, err := tls.LoadX509KeyPair(filepath.Join(dir, certFile), filepath.Join(dir, keyFile))
		if err == nil {
			slog.Debug("loaded TLS certificate", "dir", dir)
			return cert, nil
		}
		if !os.IsNotExist(err) {
			slog.Warn("replacing unreadable TLS certificate", "dir", dir, "err", err)
		}
	}

	certPEM, keyPEM, err := selfSignedPEM()
	if err != nil {
		return tls.Certificate{}, err
	}
	if dir != "" {
		if err := persistCert(dir, certPEM, keyPEM); err != nil {
			slog.Warn("cannot persist TLS certificate", "dir", dir, "err", err)
		} else {
			slog.Info("generated self-signed TLS certificate", "dir", dir)
		}
	}
	return tls.X509KeyPair(certPEM, keyPEM)
}

// selfSignedPEM creates an ECDSA P-256 certificate for this host and
// localhost, valid for ten years.
func selfSignedPEM() (certPEM, keyPEM []byte, err error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, nil, fmt.Errorf("generate key: %w", err)
	}
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 62))
	if err != nil {
		return nil, nil, fmt.Errorf("generate serial: %w", err)
	}

	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "erscraped"
	}
	now := time.Now()
	template := &x509.Certificate{
		SerialNumber: serial,
		Subject:      pkix.Name{CommonName: hostname, Organization: []string{"erscraped"}},
		DNSNames:     []string{hostname, "localhost"},
		IPAddresses:  []net.IP{net.IPv4(127, 0, 0, 1), net.IPv6loopback},
		NotBefore:    now.Add(-time.Hour),
		NotAfter:     now.AddDate(10, 0, 0),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		return nil, nil, fmt.Errorf("create certificate: %w", err)
	}
	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal key: %w", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}),
		pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER}),
		nil
}

// persistCert writes the key before the certificate so a crash never
// leaves a certificate without its key.
func persistCert(dir string, certPEM, keyPEM []byte) error {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, keyFile), keyPEM, 0600); err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, certFile), certPEM, 0644); err != nil {
		return err
	}
	return nil
}
