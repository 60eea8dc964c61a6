// Package tlscert manages the proxy's self-signed certificate authority
// (spec.md §6, SUPPLEMENTED FEATURE 3): a CA persisted under the user's
// config directory, reused across restarts, and a wildcard leaf minted
// from it for the configured base URL. Grounded on caddytls's
// newSelfSignedCertificate (caddyserver/caddy), adapted to mint a CA plus
// a leaf instead of one bare self-signed leaf, and to persist/reload that
// CA instead of minting fresh on every start.
package tlscert

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/theCapypara/riptide-proxy/internal/riptideproxy/rplog"
)

// Validity is the CA's lifetime (spec.md §6: "valid for 364 days").
const Validity = 364 * 24 * time.Hour

const (
	caCertFile = "ca.pem"
	caKeyFile  = "ca-key.pem"
)

// CA is a loaded or freshly minted certificate authority.
type CA struct {
	Cert    *x509.Certificate
	CertDER []byte
	Key     *ecdsa.PrivateKey
}

// Store manages the on-disk CA under Dir (spec.md §6: "a directory under
// the user's configuration root").
type Store struct {
	Dir string
}

// NewStore returns a Store rooted at dir, creating dir if necessary.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("creating CA directory %s: %w", dir, err)
	}
	return &Store{Dir: dir}, nil
}

// LoadOrCreateCA returns the persisted CA if it exists and is still
// within its validity window, otherwise mints a new one and persists it.
// A regeneration past expiry is logged with a re-import notice (spec.md
// §6: "On expiry the CA is regenerated and the user advised to
// re-import.").
func (s *Store) LoadOrCreateCA() (*CA, error) {
	ca, err := s.load()
	if err == nil {
		if time.Now().Before(ca.Cert.NotAfter) {
			return ca, nil
		}
		rplog.Named("tlscert").Sugar().Warnf(
			"CA at %s expired on %s; regenerating - please re-import the new CA into your trust store",
			s.certPath(), ca.Cert.NotAfter)
	} else if !os.IsNotExist(err) {
		rplog.Named("tlscert").Sugar().Warnf("could not load existing CA, regenerating: %v", err)
	}

	ca, err = generateCA()
	if err != nil {
		return nil, err
	}
	if err := s.persist(ca); err != nil {
		return nil, err
	}
	return ca, nil
}

// LeafForWildcard mints a leaf certificate signed by ca, valid for the
// given base URL and its `*.` wildcard (spec.md §6's hostname grammar:
// every project/service subdomain falls under one wildcard). The leaf
// shares the CA's validity window rather than tracking its own, so a
// single rotation point covers both.
func (s *Store) LeafForWildcard(ca *CA, baseURL string) (*tls.Certificate, error) {
	leafKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generating leaf key: %w", err)
	}

	serial, err := randomSerial()
	if err != nil {
		return nil, err
	}

	leaf := &x509.Certificate{
		SerialNumber: serial,
		Subject:      pkix.Name{Organization: []string{"riptide-proxy"}},
		NotBefore:    time.Now(),
		NotAfter:     ca.Cert.NotAfter,
		KeyUsage:     x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		DNSNames:     []string{strings.ToLower(baseURL), "*." + strings.ToLower(baseURL)},
	}

	derBytes, err := x509.CreateCertificate(rand.Reader, leaf, ca.Cert, &leafKey.PublicKey, ca.Key)
	if err != nil {
		return nil, fmt.Errorf("signing leaf certificate: %w", err)
	}

	return &tls.Certificate{
		Certificate: [][]byte{derBytes, ca.CertDER},
		PrivateKey:  leafKey,
		Leaf:        leaf,
	}, nil
}

func generateCA() (*CA, error) {
	return generateCAWithExpiry(time.Now().Add(Validity))
}

// generateCAWithExpiry builds a fresh CA with an explicit NotAfter, so
// tests can exercise the expiry-triggered regeneration path without
// waiting 364 days.
func generateCAWithExpiry(notAfter time.Time) (*CA, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generating CA key: %w", err)
	}

	serial, err := randomSerial()
	if err != nil {
		return nil, err
	}

	cert := &x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{Organization: []string{"riptide-proxy Self-Signed CA"}},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              notAfter,
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign | x509.KeyUsageDigitalSignature,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}

	derBytes, err := x509.CreateCertificate(rand.Reader, cert, cert, &key.PublicKey, key)
	if err != nil {
		return nil, fmt.Errorf("creating CA certificate: %w", err)
	}
	parsed, err := x509.ParseCertificate(derBytes)
	if err != nil {
		return nil, fmt.Errorf("parsing freshly created CA certificate: %w", err)
	}

	return &CA{Cert: parsed, CertDER: derBytes, Key: key}, nil
}

func randomSerial() (*big.Int, error) {
	limit := new(big.Int).Lsh(big.NewInt(1), 128)
	serial, err := rand.Int(rand.Reader, limit)
	if err != nil {
		return nil, fmt.Errorf("generating serial number: %w", err)
	}
	return serial, nil
}

func (s *Store) certPath() string { return filepath.Join(s.Dir, caCertFile) }
func (s *Store) keyPath() string  { return filepath.Join(s.Dir, caKeyFile) }

func (s *Store) load() (*CA, error) {
	certPEM, err := os.ReadFile(s.certPath())
	if err != nil {
		return nil, err
	}
	keyPEM, err := os.ReadFile(s.keyPath())
	if err != nil {
		return nil, err
	}

	certBlock, _ := pem.Decode(certPEM)
	if certBlock == nil {
		return nil, fmt.Errorf("no PEM block found in %s", s.certPath())
	}
	cert, err := x509.ParseCertificate(certBlock.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parsing CA certificate: %w", err)
	}

	keyBlock, _ := pem.Decode(keyPEM)
	if keyBlock == nil {
		return nil, fmt.Errorf("no PEM block found in %s", s.keyPath())
	}
	key, err := x509.ParseECPrivateKey(keyBlock.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parsing CA key: %w", err)
	}

	return &CA{Cert: cert, CertDER: certBlock.Bytes, Key: key}, nil
}

func (s *Store) persist(ca *CA) error {
	certOut := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: ca.CertDER})
	if err := os.WriteFile(s.certPath(), certOut, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", s.certPath(), err)
	}

	keyDER, err := x509.MarshalECPrivateKey(ca.Key)
	if err != nil {
		return fmt.Errorf("marshaling CA key: %w", err)
	}
	keyOut := pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER})
	if err := os.WriteFile(s.keyPath(), keyOut, 0o600); err != nil {
		return fmt.Errorf("writing %s: %w", s.keyPath(), err)
	}
	return nil
}
