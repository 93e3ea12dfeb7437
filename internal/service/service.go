package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/ksyq12/nascert/internal/errors"
	"github.com/ksyq12/nascert/internal/executor"
	"github.com/ksyq12/nascert/internal/logger"
)

// Service is a consumer of the installed certificate
type Service interface {
	// Name returns a display name
	Name() string

	// Reload makes the service pick up the current certificate files
	Reload(ctx context.Context) error
}

// CommandService reloads a service by running commands.
// Commands are alternatives tried in order; the first that succeeds wins.
type CommandService struct {
	name     string
	exec     executor.CommandExecutor
	commands [][]string
	precheck []string
}

// NewCommandService creates a service reloaded by the given commands
func NewCommandService(name string, exec executor.CommandExecutor, commands ...[]string) *CommandService {
	return &CommandService{
		name:     name,
		exec:     exec,
		commands: commands,
	}
}

// WithPrecheck sets a command that must succeed for the service to be
// reloaded. A failing precheck skips the service instead of failing it.
func (s *CommandService) WithPrecheck(cmd ...string) *CommandService {
	s.precheck = cmd
	return s
}

// Name returns the service name
func (s *CommandService) Name() string {
	return s.name
}

// Requirements returns the binaries of the primary reload command and the precheck
func (s *CommandService) Requirements() []string {
	var bins []string
	if len(s.commands) > 0 && len(s.commands[0]) > 0 {
		bins = append(bins, s.commands[0][0])
	}
	if len(s.precheck) > 0 && (len(bins) == 0 || s.precheck[0] != bins[0]) {
		bins = append(bins, s.precheck[0])
	}
	return bins
}

// Reload runs the reload commands until one succeeds
func (s *CommandService) Reload(ctx context.Context) error {
	if len(s.precheck) > 0 {
		if output, err := s.exec.Execute(ctx, s.precheck[0], s.precheck[1:]...); err != nil {
			logger.Info("Skipping %s: %s", s.name, firstLine(output, err))
			return nil
		}
	}

	if len(s.commands) == 0 {
		return fmt.Errorf("no reload command configured for %s", s.name)
	}

	var failures []string
	for _, cmd := range s.commands {
		output, err := s.exec.Execute(ctx, cmd[0], cmd[1:]...)
		if err == nil {
			logger.Debug("%s reloaded with %s", s.name, strings.Join(cmd, " "))
			return nil
		}
		failures = append(failures, fmt.Sprintf("%s: %s", strings.Join(cmd, " "), firstLine(output, err)))
	}
	return fmt.Errorf("failed to reload %s: %s", s.name, strings.Join(failures, "; "))
}

func firstLine(output []byte, err error) string {
	msg := strings.TrimSpace(string(output))
	if i := strings.IndexByte(msg, '\n'); i >= 0 {
		msg = msg[:i]
	}
	if msg == "" {
		return err.Error()
	}
	return msg
}

// Notifier reloads services in order
type Notifier struct {
	services []Service
}

// NewNotifier creates a Notifier for services, reloaded in the given order
func NewNotifier(services ...Service) *Notifier {
	return &Notifier{services: services}
}

// Services returns the services in reload order
func (n *Notifier) Services() []Service {
	return n.services
}

// Reload reloads every service. Failures are logged and do not stop later
// services; they are returned joined as ServiceReloadFailed.
func (n *Notifier) Reload(ctx context.Context) error {
	var errs []error
	for _, svc := range n.services {
		logger.Debug("Reloading %s", svc.Name())
		if err := svc.Reload(ctx); err != nil {
			logger.Error("Reload of %s failed: %v", svc.Name(), err)
			errs = append(errs, fmt.Errorf("%s: %w", svc.Name(), err))
		}
	}

	if len(errs) > 0 {
		return errors.Wrap(errors.ErrCodeServiceReload,
			fmt.Sprintf("%d of %d services failed to reload", len(errs), len(n.services)),
			errors.Join(errs...))
	}
	return nil
}
