package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ksyq12/nascert/internal/errors"
)

func validValues() map[string]string {
	return map[string]string{
		"ACCOUNT":   "admin@example.com",
		"DOMAIN":    "example.com",
		"DNS":       "dns_cf",
		"DNS_SLEEP": "120",
		"CF_Token":  "token",
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config")
	content := `# renewal settings
ACCOUNT=admin@example.com
DOMAIN=example.com
DNS=dns_ali
DNS_SLEEP=60
Ali_Key="key"
Ali_Secret='secret'
CF_Token=ignored
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "example.com", cfg.Domain)
	assert.Equal(t, "dns_ali", cfg.DNS)
	assert.Equal(t, 60*time.Second, cfg.PropagationDelay())
	assert.Equal(t, map[string]string{"Ali_Key": "key", "Ali_Secret": "secret"}, cfg.Credentials)
	assert.Equal(t, path, cfg.Path)

	// Defaults resolve against the config directory
	assert.Equal(t, filepath.Join(dir, "backup"), cfg.BackupRoot)
	assert.Equal(t, filepath.Join(dir, "acme.sh"), cfg.AcmeHome)
	assert.Equal(t, dir, cfg.WorkDir)
	assert.Equal(t, "/usr/syno/etc/certificate", cfg.CertDir)
	assert.Equal(t, "/usr/local/etc/certificate", cfg.PkgCertDir)
	assert.Equal(t, ClientAcmeSh, cfg.Client)
	assert.Equal(t, "letsencrypt", cfg.CertServer)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrValidation))
}

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(v map[string]string)
		wantErr string
	}{
		{"valid", func(v map[string]string) {}, ""},
		{"missing account", func(v map[string]string) { delete(v, "ACCOUNT") }, "ACCOUNT"},
		{"missing domain", func(v map[string]string) { delete(v, "DOMAIN") }, "DOMAIN"},
		{"empty domain", func(v map[string]string) { v["DOMAIN"] = "" }, "DOMAIN"},
		{"missing dns", func(v map[string]string) { delete(v, "DNS") }, "DNS"},
		{"missing dns sleep", func(v map[string]string) { delete(v, "DNS_SLEEP") }, "DNS_SLEEP"},
		{"non numeric dns sleep", func(v map[string]string) { v["DNS_SLEEP"] = "soon" }, "DNSSleep"},
		{"negative dns sleep", func(v map[string]string) { v["DNS_SLEEP"] = "-1" }, "DNS_SLEEP"},
		{"account not email", func(v map[string]string) { v["ACCOUNT"] = "admin" }, "ACCOUNT"},
		{"unknown provider", func(v map[string]string) { v["DNS"] = "dns_unknown" }, "unsupported DNS provider"},
		{"missing credentials", func(v map[string]string) { delete(v, "CF_Token") }, "Cloudflare credentials missing"},
		{"alternative credential set", func(v map[string]string) {
			delete(v, "CF_Token")
			v["CF_Key"] = "key"
			v["CF_Email"] = "admin@example.com"
		}, ""},
		{"incomplete alternative set", func(v map[string]string) {
			delete(v, "CF_Token")
			v["CF_Key"] = "key"
		}, "CF_Key+CF_Email"},
		{"bad client", func(v map[string]string) { v["ACME_CLIENT"] = "certbot" }, "ACME_CLIENT"},
		{"lego client", func(v map[string]string) { v["ACME_CLIENT"] = "lego" }, ""},
		{"lego client without provider support", func(v map[string]string) {
			v["ACME_CLIENT"] = "lego"
			v["DNS"] = "dns_ali"
			v["Ali_Key"] = "key"
			v["Ali_Secret"] = "secret"
		}, "not supported by ACME_CLIENT=lego"},
		{"relative cert dir", func(v map[string]string) { v["CERT_DIR"] = "certs" }, "absolute"},
		{"backup inside store", func(v map[string]string) { v["BACKUP_ROOT"] = "/usr/syno/etc/certificate/backup" }, "must not be inside"},
		{"domain with space", func(v map[string]string) { v["DOMAIN"] = "exa mple.com" }, "invalid characters"},
		{"single label domain", func(v map[string]string) { v["DOMAIN"] = "localhost" }, "fully qualified"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			values := validValues()
			tt.mutate(values)

			cfg, err := Parse(values, "/volume1/nascert")
			if tt.wantErr == "" {
				require.NoError(t, err)
				require.NotNil(t, cfg)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
			assert.True(t, errors.Is(err, errors.ErrValidation), "expected validation error, got %v", err)
		})
	}
}

func TestParseWildcardDomain(t *testing.T) {
	values := validValues()
	values["DOMAIN"] = "*.example.com"

	cfg, err := Parse(values, "/volume1/nascert")
	require.NoError(t, err)
	assert.Equal(t, "example.com", cfg.Domain)
}

func TestParsePaths(t *testing.T) {
	values := validValues()
	values["WORK_DIR"] = "state"
	values["BACKUP_ROOT"] = "/volume1/backups/certs"
	values["METRICS_FILE"] = "nascert.prom"

	cfg, err := Parse(values, "/volume1/nascert")
	require.NoError(t, err)
	assert.Equal(t, "/volume1/nascert/state", cfg.WorkDir)
	assert.Equal(t, "/volume1/backups/certs", cfg.BackupRoot)
	assert.Equal(t, "/volume1/nascert/state/acme.sh", cfg.AcmeHome)
	assert.Equal(t, "/volume1/nascert/state/nascert.prom", cfg.MetricsFile)
}

func TestArchiveURL(t *testing.T) {
	cfg := &Config{AcmeVersion: "3.1.1"}
	assert.Equal(t, "https://github.com/acmesh-official/acme.sh/archive/refs/tags/3.1.1.tar.gz", cfg.ArchiveURL())

	cfg.AcmeVersion = "master"
	assert.Equal(t, "https://github.com/acmesh-official/acme.sh/archive/master.tar.gz", cfg.ArchiveURL())

	cfg.AcmeArchiveURL = "https://mirror.example.com/acme.sh.tar.gz"
	assert.Equal(t, "https://mirror.example.com/acme.sh.tar.gz", cfg.ArchiveURL())
}

func TestProviders(t *testing.T) {
	assert.Equal(t, []string{"dns_ali", "dns_cf", "dns_dp", "dns_gd"}, Providers())

	cf, ok := LookupProvider(ProviderCloudflare)
	require.True(t, ok)
	assert.Equal(t, []string{"CF_Account_ID", "CF_Email", "CF_Key", "CF_Token", "CF_Zone_ID"}, cf.Keys())
	assert.True(t, cf.Satisfied(map[string]string{"CF_Token": "t"}))
	assert.False(t, cf.Satisfied(map[string]string{"CF_Token": "  "}))
	assert.False(t, cf.Satisfied(map[string]string{"CF_Email": "a@b.c"}))

	_, ok = LookupProvider("dns_none")
	assert.False(t, ok)
}
