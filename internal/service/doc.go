// Package service reloads the NAS services that serve the certificate.
//
// A Service is anything that can be told to pick up new certificate files.
// The Notifier runs an ordered list of services and keeps going when one of
// them fails, so a broken package never prevents the web server from
// reloading:
//
//	n := service.Synology(info, executor.NewSystemExecutor())
//	if err := n.Reload(ctx); err != nil {
//	    // err matches errors.ErrServiceReloadFailed
//	}
//
// On Synology the order is fixed: the certificate registry is regenerated
// first, then nginx is reloaded, then dependent packages such as WebDAV are
// restarted.
//
// # Testing
//
// MockService counts calls and lets tests inject failures:
//
//	svc := service.NewMockService("nginx")
//	svc.ReloadFunc = func(ctx context.Context) error { return errors.New("boom") }
package service
