package cli

import (
	"errors"

	"github.com/ksyq12/nascert/internal/acme"
	"github.com/ksyq12/nascert/internal/config"
	"github.com/ksyq12/nascert/internal/executor"
	"github.com/ksyq12/nascert/internal/input"
	"github.com/ksyq12/nascert/internal/platform"
	"github.com/ksyq12/nascert/internal/service"
)

// MockConfigLoader is a test double for ConfigLoader
type MockConfigLoader struct {
	Cfg     *config.Config
	LoadErr error
	Paths   []string
}

func (m *MockConfigLoader) Load(path string) (*config.Config, error) {
	m.Paths = append(m.Paths, path)
	if m.LoadErr != nil {
		return nil, m.LoadErr
	}
	return m.Cfg, nil
}

// MockPlatformDetector is a test double for PlatformDetector
type MockPlatformDetector struct {
	Info *platform.Info
	Err  error
}

func (m *MockPlatformDetector) Detect() (*platform.Info, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	if m.Info != nil {
		return m.Info, nil
	}
	return &platform.Info{Synology: true, DSMMajor: 7, DSMMinor: 2, OS: "linux", Arch: "amd64"}, nil
}

// MockRootChecker is a test double for RootChecker
type MockRootChecker struct {
	IsRoot bool
	Calls  int
}

func (m *MockRootChecker) RequireRoot() error {
	m.Calls++
	if !m.IsRoot {
		return errors.New("root privileges required")
	}
	return nil
}

// MockAcquirerFactory is a test double for AcquirerFactory
type MockAcquirerFactory struct {
	Acquirer acme.Acquirer
	Err      error
}

func (m *MockAcquirerFactory) Create(cfg *config.Config, exec executor.CommandExecutor) (acme.Acquirer, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	if m.Acquirer == nil {
		m.Acquirer = &acme.MockAcquirer{}
	}
	return m.Acquirer, nil
}

// MockNotifierFactory is a test double for NotifierFactory
type MockNotifierFactory struct {
	Services []service.Service
}

func (m *MockNotifierFactory) Create(info *platform.Info, exec executor.CommandExecutor) *service.Notifier {
	return service.NewNotifier(m.Services...)
}

// MockDependenciesBuilder helps create mock dependencies for tests
type MockDependenciesBuilder struct {
	deps *Dependencies
}

// NewMockDeps creates a new MockDependenciesBuilder with sensible defaults
func NewMockDeps() *MockDependenciesBuilder {
	return &MockDependenciesBuilder{
		deps: &Dependencies{
			ConfigLoader:     &MockConfigLoader{},
			PlatformDetector: &MockPlatformDetector{},
			RootChecker:      &MockRootChecker{IsRoot: true},
			Executor:         &executor.MockExecutor{},
			AcquirerFactory:  &MockAcquirerFactory{},
			NotifierFactory:  &MockNotifierFactory{},
			StdinReader:      input.NewStringReader("y\n"),
		},
	}
}

// WithConfig sets the config for the mock
func (b *MockDependenciesBuilder) WithConfig(cfg *config.Config) *MockDependenciesBuilder {
	b.deps.ConfigLoader = &MockConfigLoader{Cfg: cfg}
	return b
}

// WithConfigLoader sets a custom config loader
func (b *MockDependenciesBuilder) WithConfigLoader(loader ConfigLoader) *MockDependenciesBuilder {
	b.deps.ConfigLoader = loader
	return b
}

// WithAcquirer sets the acquirer returned by the factory
func (b *MockDependenciesBuilder) WithAcquirer(a acme.Acquirer) *MockDependenciesBuilder {
	b.deps.AcquirerFactory = &MockAcquirerFactory{Acquirer: a}
	return b
}

// WithServices sets the services reloaded by the notifier
func (b *MockDependenciesBuilder) WithServices(services ...service.Service) *MockDependenciesBuilder {
	b.deps.NotifierFactory = &MockNotifierFactory{Services: services}
	return b
}

// WithExecutor sets the command executor
func (b *MockDependenciesBuilder) WithExecutor(exec executor.CommandExecutor) *MockDependenciesBuilder {
	b.deps.Executor = exec
	return b
}

// WithRootAccess sets whether root access is available
func (b *MockDependenciesBuilder) WithRootAccess(isRoot bool) *MockDependenciesBuilder {
	b.deps.RootChecker = &MockRootChecker{IsRoot: isRoot}
	return b
}

// WithStdinInput sets the stdin answers for the mock
func (b *MockDependenciesBuilder) WithStdinInput(inputs ...string) *MockDependenciesBuilder {
	b.deps.StdinReader = input.NewStringReader(inputs...)
	return b
}

// WithPlatform sets the detected platform
func (b *MockDependenciesBuilder) WithPlatform(info *platform.Info) *MockDependenciesBuilder {
	b.deps.PlatformDetector = &MockPlatformDetector{Info: info}
	return b
}

// WithPlatformError sets an error for platform detection
func (b *MockDependenciesBuilder) WithPlatformError(err error) *MockDependenciesBuilder {
	b.deps.PlatformDetector = &MockPlatformDetector{Err: err}
	return b
}

// Build returns the configured Dependencies
func (b *MockDependenciesBuilder) Build() *Dependencies {
	return b.deps
}
