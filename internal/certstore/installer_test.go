package certstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ksyq12/nascert/internal/acme"
	"github.com/ksyq12/nascert/internal/errors"
)

const testInfo = `{
  "AbCdEf": {
    "desc": "example.com",
    "services": [
      {"subscriber": "system", "service": "default", "display_name": "DSM Desktop Service", "isPkg": false},
      {"subscriber": "WebDAVServer", "service": "webdav", "display_name": "WebDAV Server", "isPkg": true}
    ]
  },
  "XyZ123": {"desc": "other", "services": []}
}`

type stores struct {
	primary string
	pkg     string
}

func setup(t *testing.T, defaultID, info string) (*Installer, stores) {
	t.Helper()
	base := t.TempDir()
	s := stores{
		primary: filepath.Join(base, "syno"),
		pkg:     filepath.Join(base, "pkg"),
	}
	archive := filepath.Join(s.primary, "_archive")
	require.NoError(t, os.MkdirAll(filepath.Join(archive, "AbCdEf"), 0700))
	require.NoError(t, os.MkdirAll(s.pkg, 0755))
	if defaultID != "" {
		require.NoError(t, os.WriteFile(filepath.Join(archive, "DEFAULT"), []byte(defaultID+"\n"), 0600))
	}
	if info != "" {
		require.NoError(t, os.WriteFile(filepath.Join(archive, "INFO"), []byte(info), 0600))
	}
	return NewInstaller(s.primary, s.pkg), s
}

func newBundle(t *testing.T) *acme.Bundle {
	t.Helper()
	b := acme.NewBundle("example.com", t.TempDir())
	require.NoError(t, os.WriteFile(b.CertPath, []byte("CERT"), 0644))
	require.NoError(t, os.WriteFile(b.KeyPath, []byte("KEY"), 0600))
	require.NoError(t, os.WriteFile(b.FullchainPath, []byte("CHAIN"), 0644))
	return b
}

func assertArtifacts(t *testing.T, dir string) {
	t.Helper()
	for name, want := range map[string]string{
		"cert.pem":      "CERT",
		"privkey.pem":   "KEY",
		"fullchain.pem": "CHAIN",
	} {
		got, err := os.ReadFile(filepath.Join(dir, name))
		require.NoError(t, err, name)
		assert.Equal(t, want, string(got), name)
	}
}

func TestInstall(t *testing.T) {
	inst, s := setup(t, "AbCdEf", testInfo)

	// an existing key keeps its restrictive mode
	existing := filepath.Join(s.primary, "_archive", "AbCdEf", "privkey.pem")
	require.NoError(t, os.WriteFile(existing, []byte("OLD"), 0400))

	result, err := inst.Install(context.Background(), newBundle(t))
	require.NoError(t, err)
	assert.Equal(t, "AbCdEf", result.Archive)
	assert.Equal(t, []string{
		filepath.Join(s.primary, "_archive", "AbCdEf"),
		filepath.Join(s.primary, "system", "default"),
		filepath.Join(s.pkg, "WebDAVServer", "webdav"),
	}, result.Targets)

	for _, dir := range result.Targets {
		assertArtifacts(t, dir)
	}

	info, err := os.Stat(existing)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0400), info.Mode().Perm())
}

func TestInstallFailures(t *testing.T) {
	tests := []struct {
		name      string
		defaultID string
		info      string
		wantErr   string
	}{
		{"no default", "", testInfo, "cannot locate default certificate"},
		{"no info", "AbCdEf", "", "cannot load service bindings"},
		{"invalid info", "AbCdEf", "{not json", "invalid JSON"},
		{"default not in info", "Missing", testInfo, "not found"},
		{"unsafe default", "..", testInfo, "invalid default certificate id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inst, _ := setup(t, tt.defaultID, tt.info)

			_, err := inst.Install(context.Background(), newBundle(t))
			require.Error(t, err)
			assert.True(t, errors.Is(err, errors.ErrInstallFailed))
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestInstallContinuesAfterFailure(t *testing.T) {
	info := `{"AbCdEf": {"services": [
      {"subscriber": "../escape", "service": "x", "isPkg": false},
      {"subscriber": "system", "service": "default", "isPkg": false}
    ]}}`
	inst, s := setup(t, "AbCdEf", info)

	result, err := inst.Install(context.Background(), newBundle(t))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInstallFailed))
	assert.Contains(t, err.Error(), "1 of 3 targets failed")

	// the valid service was still installed
	assert.Len(t, result.Targets, 2)
	assertArtifacts(t, filepath.Join(s.primary, "system", "default"))
}

func TestInstallMissingArtifact(t *testing.T) {
	inst, _ := setup(t, "AbCdEf", testInfo)
	b := newBundle(t)
	require.NoError(t, os.Remove(b.FullchainPath))

	_, err := inst.Install(context.Background(), b)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInstallFailed))
	assert.Contains(t, err.Error(), "3 of 3 targets failed")
}

func TestServices(t *testing.T) {
	inst, _ := setup(t, "AbCdEf", testInfo)

	services, err := inst.Services("AbCdEf")
	require.NoError(t, err)
	require.Len(t, services, 2)
	assert.Equal(t, ServiceEntry{
		Subscriber:  "WebDAVServer",
		Service:     "webdav",
		DisplayName: "WebDAV Server",
		IsPkg:       true,
	}, services[1])

	services, err = inst.Services("XyZ123")
	require.NoError(t, err)
	assert.Empty(t, services)
}
