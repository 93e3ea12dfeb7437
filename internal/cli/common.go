package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ksyq12/nascert/internal/acme"
	"github.com/ksyq12/nascert/internal/certstore"
	"github.com/ksyq12/nascert/internal/config"
	"github.com/ksyq12/nascert/internal/errors"
	"github.com/ksyq12/nascert/internal/lifecycle"
	"github.com/ksyq12/nascert/internal/logger"
	"github.com/ksyq12/nascert/internal/output"
	"github.com/ksyq12/nascert/internal/platform"
	"github.com/ksyq12/nascert/internal/service"
	"github.com/ksyq12/nascert/internal/snapshot"
)

// Snapshot store names
const (
	storeSystem  = "system"
	storePackage = "package"
)

// app wires the collaborators of one command run
type app struct {
	cfg       *config.Config
	info      *platform.Info
	snapshots *snapshot.Manager
	acquirer  acme.Acquirer
	installer *certstore.Installer
	notifier  *service.Notifier
}

// requirer is implemented by collaborators that shell out
type requirer interface {
	Requirements() []string
}

// requireRoot fails with a validation error when not running as root
func requireRoot() error {
	if err := deps.RootChecker.RequireRoot(); err != nil {
		return errors.Wrap(errors.ErrCodeValidation, "this command must be run as root", err)
	}
	return nil
}

// loadConfig loads the config file named by --config
func loadConfig() (*config.Config, error) {
	cfg, err := deps.ConfigLoader.Load(configPath)
	if err != nil {
		return nil, err
	}
	logger.DebugFields("Config loaded", map[string]interface{}{
		"domain": cfg.Domain,
		"dns":    cfg.DNS,
		"client": cfg.Client,
	})
	return cfg, nil
}

// newSnapshotManager returns the manager for the stores named in cfg
func newSnapshotManager(cfg *config.Config) *snapshot.Manager {
	return snapshot.NewManager(cfg.BackupRoot, []snapshot.Store{
		{Name: storeSystem, Path: cfg.CertDir},
		{Name: storePackage, Path: cfg.PkgCertDir, Optional: true},
	}, snapshot.WithDomain(cfg.Domain))
}

// buildApp validates the environment and wires the collaborators. Every
// check runs before anything is changed on disk. withAcquirer adds the
// acquisition tool requirements to the check.
func buildApp(withAcquirer bool) (*app, error) {
	if err := requireRoot(); err != nil {
		return nil, err
	}

	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	info, err := deps.PlatformDetector.Detect()
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeValidation, "failed to detect platform", err)
	}
	logger.Debug("Platform: %s", info)

	a := &app{
		cfg:       cfg,
		info:      info,
		snapshots: newSnapshotManager(cfg),
		installer: certstore.NewInstaller(cfg.CertDir, cfg.PkgCertDir),
		notifier:  deps.NotifierFactory.Create(info, deps.Executor),
	}

	var bins []string
	for _, svc := range a.notifier.Services() {
		if r, ok := svc.(requirer); ok {
			bins = append(bins, r.Requirements()...)
		}
	}
	if withAcquirer {
		a.acquirer, err = deps.AcquirerFactory.Create(cfg, deps.Executor)
		if err != nil {
			return nil, err
		}
		bins = append(bins, a.acquirer.Requirements()...)
	}

	if err := validateEnvironment(cfg, bins); err != nil {
		return nil, err
	}
	return a, nil
}

// validateEnvironment checks the certificate store and required executables
func validateEnvironment(cfg *config.Config, bins []string) error {
	if st, err := os.Stat(cfg.CertDir); err != nil || !st.IsDir() {
		return errors.Validationf("certificate directory %s not found", cfg.CertDir)
	}

	var missing []string
	seen := make(map[string]bool)
	for _, bin := range bins {
		if seen[bin] {
			continue
		}
		seen[bin] = true
		if _, err := deps.Executor.LookPath(bin); err != nil {
			missing = append(missing, bin)
		}
	}
	if len(missing) > 0 {
		return errors.Validationf("required executables not found: %v", missing)
	}
	return nil
}

// request builds the acquisition request for cfg
func request(cfg *config.Config) acme.Request {
	return acme.Request{
		Domain:           cfg.Domain,
		Account:          cfg.Account,
		Provider:         cfg.DNS,
		Credentials:      cfg.Credentials,
		PropagationDelay: cfg.PropagationDelay(),
		Server:           cfg.CertServer,
		OutputDir:        filepath.Join(cfg.WorkDir, "certs", cfg.Domain),
	}
}

// orchestrator returns the lifecycle orchestrator for a
func (a *app) orchestrator() *lifecycle.Orchestrator {
	return lifecycle.New(a.snapshots, a.acquirer, a.installer, a.notifier)
}

// outputResult handles JSON or human-readable output
func outputResult(data interface{}, successMsg string, args ...interface{}) error {
	if jsonOutput {
		return output.JSON(data)
	}
	output.Success(successMsg, args...)
	return nil
}

// reportFailure prints the outcome of a failed run
func reportFailure(out *lifecycle.Outcome, backupRoot string) {
	switch out.State {
	case lifecycle.StateReverted:
		output.Warn("Previous certificate restored from snapshot %s", snapshotID(out))
	case lifecycle.StateFailed:
		output.Error("Rollback failed, the certificate stores may be inconsistent")
		if out.Snapshot != nil {
			output.Error("Restore by hand from %s", filepath.Join(backupRoot, out.Snapshot.ID))
		}
	}
	if out.ReloadErr != nil {
		output.Warn("Some services did not reload: %v", out.ReloadErr)
	}
}

func snapshotID(out *lifecycle.Outcome) string {
	if out.Snapshot == nil {
		return ""
	}
	return out.Snapshot.ID
}

// formatTime renders t for tables, "-" when unset
func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format("2006-01-02 15:04:05")
}

// RunResult is the JSON result of update and revert
type RunResult struct {
	Success     bool     `json:"success"`
	Domain      string   `json:"domain,omitempty"`
	State       string   `json:"state"`
	Snapshot    string   `json:"snapshot,omitempty"`
	Expiry      string   `json:"expiry,omitempty"`
	Transitions []string `json:"transitions"`
	Error       string   `json:"error,omitempty"`
	Code        string   `json:"code,omitempty"`
}

func newRunResult(domain string, out *lifecycle.Outcome) RunResult {
	r := RunResult{
		Success:     out.Err == nil,
		Domain:      domain,
		State:       out.State,
		Snapshot:    snapshotID(out),
		Transitions: out.Transitions,
	}
	if !out.Expiry.IsZero() {
		r.Expiry = out.Expiry.UTC().Format("2006-01-02T15:04:05Z")
	}
	if out.Err != nil {
		r.Error = out.Err.Error()
		r.Code = string(errors.CodeOf(out.Err))
	}
	return r
}

// describe returns a one-line summary of snap's stores
func describe(snap *snapshot.Snapshot) string {
	s := ""
	for _, rec := range snap.Stores {
		if s != "" {
			s += ", "
		}
		if !rec.Present {
			s += rec.Name + " (absent)"
			continue
		}
		s += fmt.Sprintf("%s (%d files)", rec.Name, rec.Files)
	}
	return s
}
