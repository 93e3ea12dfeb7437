package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/ksyq12/nascert/internal/errors"
)

// DefaultFile is the config file name looked up in the working directory.
const DefaultFile = "config"

// Acquisition clients.
const (
	ClientAcmeSh = "acme.sh"
	ClientLego   = "lego"
)

// Config represents the renewal configuration
type Config struct {
	Account  string `env:"ACCOUNT,required,notEmpty"`
	Domain   string `env:"DOMAIN,required,notEmpty"`
	DNS      string `env:"DNS,required,notEmpty"`
	DNSSleep int    `env:"DNS_SLEEP,required,notEmpty"`

	CertServer     string `env:"CERT_SERVER" envDefault:"letsencrypt"`
	Client         string `env:"ACME_CLIENT" envDefault:"acme.sh"`
	AcmeHome       string `env:"ACME_HOME" envDefault:"acme.sh"`
	AcmeVersion    string `env:"ACME_VERSION" envDefault:"3.1.1"`
	AcmeArchiveURL string `env:"ACME_ARCHIVE_URL"`

	CertDir    string `env:"CERT_DIR" envDefault:"/usr/syno/etc/certificate"`
	PkgCertDir string `env:"PKG_CERT_DIR" envDefault:"/usr/local/etc/certificate"`
	BackupRoot string `env:"BACKUP_ROOT" envDefault:"backup"`
	WorkDir    string `env:"WORK_DIR"`

	MetricsFile   string `env:"METRICS_FILE"`
	KeepSnapshots int    `env:"KEEP_SNAPSHOTS" envDefault:"0"`

	// Credentials holds the selected provider's keys exactly as written.
	Credentials map[string]string `env:"-"`
	// Path is the file the config was loaded from.
	Path string `env:"-"`
}

// Load reads the config file at path
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultFile
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, errors.Validationf("config file %s not found", path)
	}

	values, err := godotenv.Read(path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeConfig, "failed to parse config", err)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeConfig, "failed to resolve config path", err)
	}

	cfg, err := Parse(values, filepath.Dir(abs))
	if err != nil {
		return nil, err
	}
	cfg.Path = abs
	return cfg, nil
}

// Parse binds values to a Config and validates it. Relative paths are
// resolved against baseDir.
func Parse(values map[string]string, baseDir string) (*Config, error) {
	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, env.Options{Environment: values}); err != nil {
		return nil, errors.Wrap(errors.ErrCodeValidation, "invalid config", err)
	}

	cfg.Domain = strings.TrimPrefix(strings.TrimSpace(cfg.Domain), "*.")
	cfg.Credentials = make(map[string]string)
	if p, ok := LookupProvider(cfg.DNS); ok {
		for _, k := range p.Keys() {
			if v, ok := values[k]; ok && v != "" {
				cfg.Credentials[k] = v
			}
		}
	}

	if cfg.WorkDir == "" {
		cfg.WorkDir = baseDir
	}
	cfg.WorkDir = resolve(baseDir, cfg.WorkDir)
	cfg.BackupRoot = resolve(cfg.WorkDir, cfg.BackupRoot)
	cfg.AcmeHome = resolve(cfg.WorkDir, cfg.AcmeHome)
	if cfg.MetricsFile != "" {
		cfg.MetricsFile = resolve(cfg.WorkDir, cfg.MetricsFile)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func resolve(base, p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(base, p)
}

// Validate checks field values that struct tags cannot express
func (c *Config) Validate() error {
	if err := validateDomain(c.Domain); err != nil {
		return err
	}
	if !strings.Contains(c.Account, "@") {
		return errors.Validationf("ACCOUNT must be an email address, got %q", c.Account)
	}
	if c.DNSSleep < 0 {
		return errors.Validationf("DNS_SLEEP must not be negative, got %d", c.DNSSleep)
	}
	if c.KeepSnapshots < 0 {
		return errors.Validationf("KEEP_SNAPSHOTS must not be negative, got %d", c.KeepSnapshots)
	}

	p, ok := LookupProvider(c.DNS)
	if !ok {
		return errors.Validationf("unsupported DNS provider %q (supported: %s)", c.DNS, strings.Join(Providers(), ", "))
	}
	if !p.Satisfied(c.Credentials) {
		sets := make([]string, 0, len(p.CredentialSets))
		for _, set := range p.CredentialSets {
			sets = append(sets, strings.Join(set, "+"))
		}
		return errors.Validationf("%s credentials missing: set %s", p.Name, strings.Join(sets, " or "))
	}

	switch c.Client {
	case ClientAcmeSh:
	case ClientLego:
		if !p.Lego {
			return errors.Validationf("%s is not supported by ACME_CLIENT=%s, use %s", c.DNS, ClientLego, ClientAcmeSh)
		}
	default:
		return errors.Validationf("ACME_CLIENT must be %s or %s, got %q", ClientAcmeSh, ClientLego, c.Client)
	}

	if !filepath.IsAbs(c.CertDir) || !filepath.IsAbs(c.PkgCertDir) {
		return errors.Validation("CERT_DIR and PKG_CERT_DIR must be absolute paths")
	}
	for _, store := range []string{c.CertDir, c.PkgCertDir} {
		if within(c.BackupRoot, store) {
			return errors.Validationf("BACKUP_ROOT %s must not be inside certificate store %s", c.BackupRoot, store)
		}
	}
	return nil
}

// within reports whether path is dir or below it.
func within(path, dir string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel == "." || (!strings.HasPrefix(rel, "..") && !filepath.IsAbs(rel))
}

func validateDomain(domain string) error {
	if domain == "" {
		return errors.Validation("DOMAIN cannot be empty")
	}
	if strings.ContainsAny(domain, " /\\*") {
		return errors.Validationf("DOMAIN %q contains invalid characters", domain)
	}
	if strings.HasPrefix(domain, "-") || strings.HasSuffix(domain, "-") || strings.HasPrefix(domain, ".") {
		return errors.Validationf("DOMAIN %q cannot start or end with a hyphen or start with a dot", domain)
	}
	if !strings.Contains(domain, ".") {
		return errors.Validationf("DOMAIN %q is not a fully qualified name", domain)
	}
	return nil
}

// Provider returns the selected DNS provider schema
func (c *Config) Provider() DNSProvider {
	p, _ := LookupProvider(c.DNS)
	return p
}

// PropagationDelay returns DNS_SLEEP as a duration
func (c *Config) PropagationDelay() time.Duration {
	return time.Duration(c.DNSSleep) * time.Second
}

// ArchiveURL returns the acme.sh source archive to install from
func (c *Config) ArchiveURL() string {
	if c.AcmeArchiveURL != "" {
		return c.AcmeArchiveURL
	}
	if c.AcmeVersion == "master" {
		return "https://github.com/acmesh-official/acme.sh/archive/master.tar.gz"
	}
	return fmt.Sprintf("https://github.com/acmesh-official/acme.sh/archive/refs/tags/%s.tar.gz", c.AcmeVersion)
}
