package cli

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"io"
	"io/fs"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"

	"github.com/ksyq12/nascert/internal/acme"
	"github.com/ksyq12/nascert/internal/config"
	"github.com/ksyq12/nascert/internal/logger"
	"github.com/ksyq12/nascert/internal/output"
	"github.com/ksyq12/nascert/internal/service"
)

const testInfo = `{"AbCdEf": {"services": [
  {"subscriber": "system", "service": "default", "display_name": "DSM", "isPkg": false},
  {"subscriber": "WebDAVServer", "service": "webdav", "display_name": "WebDAV", "isPkg": true}
]}}`

// cliEnv is a throwaway NAS layout wired into mock dependencies
type cliEnv struct {
	cfg      *config.Config
	out      *bytes.Buffer
	acquirer *acme.MockAcquirer
	nginx    *service.MockService
	deps     *Dependencies
	notAfter time.Time
}

func setupCLI(t *testing.T) *cliEnv {
	t.Helper()
	base := t.TempDir()

	cfg := &config.Config{
		Account:    "admin@example.com",
		Domain:     "example.com",
		DNS:        config.ProviderCloudflare,
		CertServer: "letsencrypt",
		Client:     config.ClientAcmeSh,
		AcmeHome:   filepath.Join(base, "work", "acme.sh"),
		CertDir:    filepath.Join(base, "syno"),
		PkgCertDir: filepath.Join(base, "pkg"),
		BackupRoot: filepath.Join(base, "work", "backup"),
		WorkDir:    filepath.Join(base, "work"),
		Credentials: map[string]string{
			"CF_Token": "token",
		},
		Path: filepath.Join(base, "work", "config"),
	}

	writeFiles(t, cfg.CertDir, map[string]string{
		"_archive/DEFAULT":             "AbCdEf",
		"_archive/INFO":                testInfo,
		"_archive/AbCdEf/cert.pem":     "OLD CERT",
		"_archive/AbCdEf/privkey.pem":  "OLD KEY",
		"system/default/cert.pem":      "OLD CERT",
		"system/default/privkey.pem":   "OLD KEY",
		"system/default/fullchain.pem": "OLD CHAIN",
	})
	writeFiles(t, cfg.PkgCertDir, map[string]string{
		"WebDAVServer/webdav/cert.pem": "OLD CERT",
	})

	e := &cliEnv{
		cfg:      cfg,
		out:      &bytes.Buffer{},
		nginx:    service.NewMockService("nginx"),
		notAfter: time.Now().Add(90 * 24 * time.Hour).Truncate(time.Second),
	}
	certPEM, keyPEM := testCertificate(t, e.notAfter)
	e.acquirer = &acme.MockAcquirer{
		NameValue: "acme.sh",
		AcquireFunc: func(ctx context.Context, req acme.Request) (*acme.Bundle, error) {
			writeFiles(t, req.OutputDir, map[string]string{
				acme.CertFile:      string(certPEM),
				acme.KeyFile:       string(keyPEM),
				acme.FullchainFile: string(certPEM),
			})
			return acme.NewBundle(req.Domain, req.OutputDir), nil
		},
	}

	e.deps = NewMockDeps().
		WithConfig(cfg).
		WithAcquirer(e.acquirer).
		WithServices(e.nginx).
		Build()

	oldDeps := deps
	SetDeps(e.deps)
	output.SetWriter(e.out)
	logger.SetOutput(io.Discard)
	jsonOutput = false
	configPath = config.DefaultFile

	t.Cleanup(func() {
		SetDeps(oldDeps)
		output.SetWriter(os.Stdout)
		logger.SetOutput(os.Stderr)
		jsonOutput = false
	})
	return e
}

// live returns the contents of both certificate stores
func (e *cliEnv) live(t *testing.T) map[string]string {
	t.Helper()
	files := readFiles(t, e.cfg.CertDir)
	for k, v := range readFiles(t, e.cfg.PkgCertDir) {
		files["pkg/"+k] = v
	}
	return files
}

func testCommand() *cobra.Command {
	cmd := &cobra.Command{}
	cmd.SetContext(context.Background())
	return cmd
}

func writeFiles(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0600); err != nil {
			t.Fatal(err)
		}
	}
}

func readFiles(t *testing.T, dir string) map[string]string {
	t.Helper()
	files := make(map[string]string)
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		rel, _ := filepath.Rel(dir, path)
		files[rel] = string(data)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	return files
}

func testCertificate(t *testing.T, notAfter time.Time) (certPEM, keyPEM []byte) {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(7),
		Subject:      pkix.Name{CommonName: "example.com"},
		DNSNames:     []string{"example.com", "*.example.com"},
		NotBefore:    notAfter.Add(-90 * 24 * time.Hour),
		NotAfter:     notAfter,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatal(err)
	}
	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		t.Fatal(err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}),
		pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER})
}
