package service

import (
	"github.com/ksyq12/nascert/internal/executor"
	"github.com/ksyq12/nascert/internal/platform"
)

// Synology service names.
const (
	NameRegistry = "certificate registry"
	NameNginx    = "nginx"
	NameWebDAV   = "WebDAV"
)

// NewRegistry regenerates the DSM web service configuration from the
// certificate registry
func NewRegistry(exec executor.CommandExecutor) *CommandService {
	return NewCommandService(NameRegistry, exec,
		[]string{platform.SynoW3Tool, "--gen-all"},
	)
}

// NewNginx reloads nginx the way the DSM release expects, falling back to
// signalling nginx directly
func NewNginx(info *platform.Info, exec executor.CommandExecutor) *CommandService {
	primary := []string{platform.NginxSysVScript, "reload"}
	if info.DSM7() {
		primary = []string{platform.SynoSystemctl, "restart", "nginx"}
	}
	return NewCommandService(NameNginx, exec,
		primary,
		[]string{"nginx", "-s", "reload"},
	)
}

// NewPackage restarts a DSM package. Packages that are not installed are skipped.
func NewPackage(name, pkg string, exec executor.CommandExecutor) *CommandService {
	return NewCommandService(name, exec,
		[]string{platform.SynoPkg, "restart", pkg},
	).WithPrecheck(platform.SynoPkg, "status", pkg)
}

// Synology returns the notifier for a DSM host: registry regeneration,
// then nginx, then WebDAV
func Synology(info *platform.Info, exec executor.CommandExecutor) *Notifier {
	return NewNotifier(
		NewRegistry(exec),
		NewNginx(info, exec),
		NewPackage(NameWebDAV, "WebDAVServer", exec),
	)
}
