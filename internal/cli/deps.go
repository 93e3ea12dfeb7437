package cli

import (
	"os"

	"github.com/ksyq12/nascert/internal/acme"
	"github.com/ksyq12/nascert/internal/config"
	"github.com/ksyq12/nascert/internal/errors"
	"github.com/ksyq12/nascert/internal/executor"
	"github.com/ksyq12/nascert/internal/input"
	"github.com/ksyq12/nascert/internal/platform"
	"github.com/ksyq12/nascert/internal/service"
)

// Dependencies aggregates all CLI external dependencies for testability
type Dependencies struct {
	ConfigLoader     ConfigLoader
	PlatformDetector PlatformDetector
	RootChecker      RootChecker
	Executor         executor.CommandExecutor
	AcquirerFactory  AcquirerFactory
	NotifierFactory  NotifierFactory
	StdinReader      input.Reader
}

// ConfigLoader handles configuration loading
type ConfigLoader interface {
	Load(path string) (*config.Config, error)
}

// PlatformDetector identifies the host
type PlatformDetector interface {
	Detect() (*platform.Info, error)
}

// RootChecker checks root privileges
type RootChecker interface {
	RequireRoot() error
}

// AcquirerFactory creates the certificate acquirer selected by the config
type AcquirerFactory interface {
	Create(cfg *config.Config, exec executor.CommandExecutor) (acme.Acquirer, error)
}

// NotifierFactory creates the services to reload after a certificate change
type NotifierFactory interface {
	Create(info *platform.Info, exec executor.CommandExecutor) *service.Notifier
}

// Package-level dependencies (can be overridden for testing)
var deps = &Dependencies{
	ConfigLoader:     &realConfigLoader{},
	PlatformDetector: &realPlatformDetector{},
	RootChecker:      &realRootChecker{},
	Executor:         executor.NewSystemExecutor(),
	AcquirerFactory:  &realAcquirerFactory{},
	NotifierFactory:  &realNotifierFactory{},
	StdinReader:      input.NewStdinReader(),
}

// SetDeps replaces the package dependencies (for testing)
func SetDeps(d *Dependencies) {
	deps = d
}

// GetDeps returns the current dependencies (for testing)
func GetDeps() *Dependencies {
	return deps
}

// Real implementations that delegate to existing functions

type realConfigLoader struct{}

func (r *realConfigLoader) Load(path string) (*config.Config, error) {
	return config.Load(path)
}

type realPlatformDetector struct{}

func (r *realPlatformDetector) Detect() (*platform.Info, error) {
	return platform.Detect()
}

type realRootChecker struct{}

func (r *realRootChecker) RequireRoot() error {
	if os.Geteuid() != 0 {
		return errors.ErrRootRequired
	}
	return nil
}

type realAcquirerFactory struct{}

func (r *realAcquirerFactory) Create(cfg *config.Config, exec executor.CommandExecutor) (acme.Acquirer, error) {
	switch cfg.Client {
	case config.ClientLego:
		return acme.NewLego(), nil
	case config.ClientAcmeSh, "":
		return acme.NewAcmeSh(cfg.AcmeHome, cfg.ArchiveURL(), cfg.WorkDir, exec), nil
	}
	return nil, errors.Validationf("unknown ACME client %q", cfg.Client)
}

type realNotifierFactory struct{}

func (r *realNotifierFactory) Create(info *platform.Info, exec executor.CommandExecutor) *service.Notifier {
	return service.Synology(info, exec)
}
