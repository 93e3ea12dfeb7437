package acme

import (
	"context"
	"crypto/x509"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-acme/lego/v4/certcrypto"

	"github.com/ksyq12/nascert/internal/errors"
)

// Artifact file names.
const (
	CertFile      = "cert.pem"
	KeyFile       = "privkey.pem"
	FullchainFile = "fullchain.pem"
)

// Request describes a certificate to obtain.
type Request struct {
	// Domain is the base domain; its wildcard is always requested too.
	Domain  string
	Account string
	// Provider is the acme.sh DNS hook name, e.g. dns_cf.
	Provider    string
	Credentials map[string]string
	// PropagationDelay is the wait between publishing the TXT record and validation.
	PropagationDelay time.Duration
	Server           string
	// OutputDir receives the bundle artifacts.
	OutputDir string
}

// Names returns the domain names on the certificate.
func (r Request) Names() []string {
	return []string{r.Domain, "*." + r.Domain}
}

// Acquirer obtains certificate bundles.
type Acquirer interface {
	// Name identifies the implementation.
	Name() string

	// Requirements lists binaries that must be on PATH.
	Requirements() []string

	// Prepare installs or verifies the acquisition tool.
	Prepare(ctx context.Context) error

	// Acquire obtains a bundle for req.
	Acquire(ctx context.Context, req Request) (*Bundle, error)

	// Clean removes the tool installation.
	Clean(ctx context.Context) error
}

// Bundle is the set of artifacts for one certificate.
type Bundle struct {
	Domain        string
	Dir           string
	CertPath      string
	KeyPath       string
	FullchainPath string
}

// NewBundle returns the bundle layout for domain inside dir.
func NewBundle(domain, dir string) *Bundle {
	return &Bundle{
		Domain:        domain,
		Dir:           dir,
		CertPath:      filepath.Join(dir, CertFile),
		KeyPath:       filepath.Join(dir, KeyFile),
		FullchainPath: filepath.Join(dir, FullchainFile),
	}
}

// Files maps each artifact file name to its path.
func (b *Bundle) Files() map[string]string {
	return map[string]string{
		CertFile:      b.CertPath,
		KeyFile:       b.KeyPath,
		FullchainFile: b.FullchainPath,
	}
}

// Validate checks that every artifact is present and non-empty and that the
// certificate parses. Failures are reported as IssuanceFailed.
func (b *Bundle) Validate() error {
	for _, path := range []string{b.CertPath, b.KeyPath, b.FullchainPath} {
		info, err := os.Stat(path)
		if err != nil {
			return errors.WrapDomain(errors.ErrCodeIssuance, b.Domain,
				fmt.Sprintf("missing artifact %s", filepath.Base(path)), err)
		}
		if info.Size() == 0 {
			return errors.WrapDomain(errors.ErrCodeIssuance, b.Domain,
				fmt.Sprintf("artifact %s is empty", filepath.Base(path)), nil)
		}
	}

	if _, err := b.Certificate(); err != nil {
		return errors.WrapDomain(errors.ErrCodeIssuance, b.Domain, "certificate is not valid PEM", err)
	}
	return nil
}

// Expiry returns the NotAfter time of the leaf certificate.
func (b *Bundle) Expiry() (time.Time, error) {
	cert, err := b.Certificate()
	if err != nil {
		return time.Time{}, err
	}
	return cert.NotAfter, nil
}

// Certificate parses the leaf certificate.
func (b *Bundle) Certificate() (*x509.Certificate, error) {
	data, err := os.ReadFile(b.CertPath)
	if err != nil {
		return nil, err
	}
	return certcrypto.ParsePEMCertificate(data)
}
