package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ksyq12/nascert/internal/acme"
	"github.com/ksyq12/nascert/internal/errors"
	"github.com/ksyq12/nascert/internal/executor"
	"github.com/ksyq12/nascert/internal/snapshot"
)

func TestRunUpdate(t *testing.T) {
	e := setupCLI(t)
	before := e.live(t)

	if err := runUpdate(testCommand(), nil); err != nil {
		t.Fatalf("runUpdate failed: %v", err)
	}

	// backup/<id>/ holds the pre-run stores and backup/latest holds exactly <id>
	latest, err := os.ReadFile(filepath.Join(e.cfg.BackupRoot, "latest"))
	if err != nil {
		t.Fatalf("latest pointer missing: %v", err)
	}
	id := string(latest)
	if strings.TrimSpace(id) != id || id == "" {
		t.Fatalf("latest must hold exactly the id, got %q", id)
	}
	saved := readFiles(t, filepath.Join(e.cfg.BackupRoot, id, storeSystem))
	if saved["system/default/cert.pem"] != before["system/default/cert.pem"] {
		t.Error("snapshot should hold the pre-run certificate")
	}

	after := e.live(t)
	if !strings.Contains(after["system/default/cert.pem"], "BEGIN CERTIFICATE") {
		t.Error("new certificate not installed")
	}
	if !strings.Contains(after["pkg/WebDAVServer/webdav/cert.pem"], "BEGIN CERTIFICATE") {
		t.Error("new certificate not installed into the package store")
	}

	if len(e.acquirer.Requests) != 1 {
		t.Fatalf("expected 1 acquisition, got %d", len(e.acquirer.Requests))
	}
	req := e.acquirer.Requests[0]
	if req.Domain != "example.com" || req.Provider != "dns_cf" || req.Credentials["CF_Token"] != "token" {
		t.Errorf("unexpected request: %+v", req)
	}
	if want := filepath.Join(e.cfg.WorkDir, "certs", "example.com"); req.OutputDir != want {
		t.Errorf("OutputDir = %s, want %s", req.OutputDir, want)
	}
	if e.nginx.ReloadCalls != 1 {
		t.Errorf("expected 1 reload, got %d", e.nginx.ReloadCalls)
	}
	for _, want := range []string{"[1/5] Certificate stores backed up", "[5/5] Services reloaded", "Certificate for example.com installed"} {
		if !strings.Contains(e.out.String(), want) {
			t.Errorf("output should contain %q:\n%s", want, e.out.String())
		}
	}
}

func TestRunUpdateJSON(t *testing.T) {
	e := setupCLI(t)
	jsonOutput = true

	if err := runUpdate(testCommand(), nil); err != nil {
		t.Fatalf("runUpdate failed: %v", err)
	}

	var result RunResult
	if err := json.Unmarshal(e.out.Bytes(), &result); err != nil {
		t.Fatalf("invalid JSON output: %v\n%s", err, e.out.String())
	}
	if !result.Success || result.State != "done" || result.Snapshot == "" {
		t.Errorf("unexpected result: %+v", result)
	}
	if result.Expiry != e.notAfter.UTC().Format("2006-01-02T15:04:05Z") {
		t.Errorf("Expiry = %s, want %s", result.Expiry, e.notAfter.UTC())
	}
}

func TestRunUpdateEmptyCertificate(t *testing.T) {
	e := setupCLI(t)
	before := e.live(t)

	e.acquirer.AcquireFunc = func(ctx context.Context, req acme.Request) (*acme.Bundle, error) {
		writeFiles(t, req.OutputDir, map[string]string{
			acme.CertFile:      "",
			acme.KeyFile:       "KEY",
			acme.FullchainFile: "CHAIN",
		})
		return acme.NewBundle(req.Domain, req.OutputDir), nil
	}

	err := runUpdate(testCommand(), nil)
	if !errors.Is(err, errors.ErrIssuanceFailed) {
		t.Fatalf("expected IssuanceFailed, got %v", err)
	}

	after := e.live(t)
	if len(after) != len(before) {
		t.Fatalf("store contents changed: %v", after)
	}
	for k, v := range before {
		if after[k] != v {
			t.Errorf("%s changed after rollback", k)
		}
	}
	if e.nginx.ReloadCalls != 1 {
		t.Errorf("services should be reloaded after the restore, got %d reloads", e.nginx.ReloadCalls)
	}
	if !strings.Contains(e.out.String(), "restored") {
		t.Errorf("output should report the restore: %s", e.out.String())
	}
}

func TestRunUpdateValidation(t *testing.T) {
	tests := []struct {
		name        string
		setup       func(e *cliEnv)
		errContains string
	}{
		{
			name: "not root",
			setup: func(e *cliEnv) {
				e.deps.RootChecker = &MockRootChecker{IsRoot: false}
			},
			errContains: "root",
		},
		{
			name: "config missing",
			setup: func(e *cliEnv) {
				e.deps.ConfigLoader = &MockConfigLoader{LoadErr: errors.Validation("config file config not found")}
			},
			errContains: "not found",
		},
		{
			name: "certificate directory missing",
			setup: func(e *cliEnv) {
				e.cfg.CertDir = filepath.Join(e.cfg.WorkDir, "missing")
			},
			errContains: "certificate directory",
		},
		{
			name: "executable missing",
			setup: func(e *cliEnv) {
				e.acquirer.Required = []string{"curl", "openssl"}
				e.deps.Executor = &executor.MockExecutor{
					LookPathFunc: func(file string) (string, error) {
						if file == "openssl" {
							return "", os.ErrNotExist
						}
						return "/usr/bin/" + file, nil
					},
				}
			},
			errContains: "openssl",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := setupCLI(t)
			tt.setup(e)

			err := runUpdate(testCommand(), nil)
			if !errors.Is(err, errors.ErrValidation) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.errContains) {
				t.Errorf("error %q should contain %q", err, tt.errContains)
			}
			if _, statErr := os.Stat(e.cfg.BackupRoot); !os.IsNotExist(statErr) {
				t.Error("no snapshot may be taken when validation fails")
			}
			if e.acquirer.PrepareCalls != 0 {
				t.Error("acquirer must not run when validation fails")
			}
		})
	}
}

func TestRunUpdatePrunesAndWritesMetrics(t *testing.T) {
	e := setupCLI(t)
	e.cfg.KeepSnapshots = 1
	e.cfg.MetricsFile = filepath.Join(e.cfg.WorkDir, "textfile", "nascert.prom")

	for i := 0; i < 2; i++ {
		if err := runUpdate(testCommand(), nil); err != nil {
			t.Fatalf("runUpdate %d failed: %v", i, err)
		}
	}

	snaps, err := snapshot.NewManager(e.cfg.BackupRoot, nil).List()
	if err != nil {
		t.Fatal(err)
	}
	if len(snaps) != 1 {
		t.Errorf("expected 1 snapshot after pruning, got %d", len(snaps))
	}

	data, err := os.ReadFile(e.cfg.MetricsFile)
	if err != nil {
		t.Fatalf("metrics file not written: %v", err)
	}
	if !strings.Contains(string(data), `nascert_last_run_success{domain="example.com"} 1`) {
		t.Errorf("unexpected metrics:\n%s", data)
	}
}

func TestRunUpdateFailureMetrics(t *testing.T) {
	tests := []struct {
		name       string
		wantExpiry bool
	}{
		{
			name:       "unreadable installed certificate",
			wantExpiry: false,
		},
		{
			name:       "restored certificate expiry",
			wantExpiry: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := setupCLI(t)
			e.cfg.MetricsFile = filepath.Join(e.cfg.WorkDir, "textfile", "nascert.prom")

			oldExpiry := time.Now().Add(10 * 24 * time.Hour).Truncate(time.Second)
			if tt.wantExpiry {
				certPEM, _ := testCertificate(t, oldExpiry)
				writeFiles(t, e.cfg.CertDir, map[string]string{"_archive/AbCdEf/cert.pem": string(certPEM)})
			}
			e.acquirer.AcquireFunc = func(ctx context.Context, req acme.Request) (*acme.Bundle, error) {
				return nil, fmt.Errorf("dns timeout")
			}

			if err := runUpdate(testCommand(), nil); err == nil {
				t.Fatal("expected update to fail")
			}

			data, err := os.ReadFile(e.cfg.MetricsFile)
			if err != nil {
				t.Fatalf("metrics file not written: %v", err)
			}
			text := string(data)
			if !strings.Contains(text, `nascert_last_run_success{domain="example.com"} 0`) {
				t.Errorf("unexpected metrics:\n%s", text)
			}
			if strings.Contains(text, `nascert_certificate_expiry_timestamp_seconds{domain="example.com"} 0`) {
				t.Errorf("a failed run must not export a zero expiry:\n%s", text)
			}
			hasExpiry := strings.Contains(text, "nascert_certificate_expiry_timestamp_seconds")
			if hasExpiry != tt.wantExpiry {
				t.Errorf("expiry exported = %v, want %v:\n%s", hasExpiry, tt.wantExpiry, text)
			}
		})
	}
}
