// Package certstore installs certificate bundles into the DSM certificate
// stores.
//
// DSM keeps every certificate under _archive/<id>/ in the primary store.
// _archive/DEFAULT names the default certificate and _archive/INFO lists,
// per archive id, the services that use it. Each service reads its own copy
// of the artifacts from <store>/<subscriber>/<service>/, where store is the
// package store for package services and the primary store otherwise.
package certstore

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ksyq12/nascert/internal/acme"
	"github.com/ksyq12/nascert/internal/errors"
	"github.com/ksyq12/nascert/internal/logger"
)

const (
	archiveDir  = "_archive"
	defaultFile = "DEFAULT"
	infoFile    = "INFO"
)

// artifacts are installed in this order.
var artifacts = []string{acme.CertFile, acme.KeyFile, acme.FullchainFile}

// ServiceEntry is one service bound to an archived certificate.
type ServiceEntry struct {
	Subscriber  string `json:"subscriber"`
	Service     string `json:"service"`
	DisplayName string `json:"display_name"`
	IsPkg       bool   `json:"isPkg"`
}

type archiveInfo struct {
	Desc     string         `json:"desc"`
	Services []ServiceEntry `json:"services"`
}

// Result lists what an install touched.
type Result struct {
	Archive string
	Targets []string
}

// Installer copies bundles into the primary and package stores.
type Installer struct {
	certDir    string
	pkgCertDir string
}

// NewInstaller returns an Installer for the given stores.
func NewInstaller(certDir, pkgCertDir string) *Installer {
	return &Installer{certDir: certDir, pkgCertDir: pkgCertDir}
}

func (i *Installer) archivePath(parts ...string) string {
	return filepath.Join(append([]string{i.certDir, archiveDir}, parts...)...)
}

// ArchiveDir returns the archive directory of certificate id.
func (i *Installer) ArchiveDir(id string) string {
	return i.archivePath(id)
}

// DefaultArchive returns the id of the DSM default certificate.
func (i *Installer) DefaultArchive() (string, error) {
	data, err := os.ReadFile(i.archivePath(defaultFile))
	if err != nil {
		return "", fmt.Errorf("read default certificate id: %w", err)
	}
	id := strings.TrimSpace(string(data))
	if id == "" || !safeSegment(id) {
		return "", fmt.Errorf("invalid default certificate id %q", id)
	}
	return id, nil
}

// Services returns the services bound to the archived certificate id.
func (i *Installer) Services(id string) ([]ServiceEntry, error) {
	path := i.archivePath(infoFile)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}

	var info map[string]archiveInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("load %s: invalid JSON: %w", path, err)
	}

	entry, ok := info[id]
	if !ok {
		return nil, fmt.Errorf("certificate %s not found in %s", id, path)
	}
	return entry.Services, nil
}

// Install copies the bundle over the default certificate and into every
// service that uses it. All services are attempted; any failure is reported
// as InstallFailed.
func (i *Installer) Install(ctx context.Context, b *acme.Bundle) (*Result, error) {
	id, err := i.DefaultArchive()
	if err != nil {
		return nil, errors.WrapDomain(errors.ErrCodeInstall, b.Domain, "cannot locate default certificate", err)
	}

	services, err := i.Services(id)
	if err != nil {
		return nil, errors.WrapDomain(errors.ErrCodeInstall, b.Domain, "cannot load service bindings", err)
	}

	result := &Result{Archive: id}
	src := b.Files()

	var errs []error
	copyTo := func(dir string) {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			return
		}
		if err := installArtifacts(src, dir); err != nil {
			errs = append(errs, err)
			return
		}
		result.Targets = append(result.Targets, dir)
	}

	copyTo(i.archivePath(id))

	for _, svc := range services {
		if !safeSegment(svc.Subscriber) || !safeSegment(svc.Service) {
			errs = append(errs, fmt.Errorf("invalid service entry %s/%s", svc.Subscriber, svc.Service))
			continue
		}
		base := i.certDir
		if svc.IsPkg {
			base = i.pkgCertDir
		}
		logger.Info("Copy cert for %s", displayName(svc))
		copyTo(filepath.Join(base, svc.Subscriber, svc.Service))
	}

	if len(errs) > 0 {
		return result, errors.WrapDomain(errors.ErrCodeInstall, b.Domain,
			fmt.Sprintf("%d of %d targets failed", len(errs), len(services)+1), errors.Join(errs...))
	}

	logger.InfoFields("Certificate installed", map[string]interface{}{
		"archive": id,
		"targets": len(result.Targets),
	})
	return result, nil
}

func displayName(svc ServiceEntry) string {
	if svc.DisplayName != "" {
		return svc.DisplayName
	}
	return svc.Subscriber + "/" + svc.Service
}

// safeSegment reports whether s is a single path element.
func safeSegment(s string) bool {
	return s != "" && s != "." && s != ".." && !strings.ContainsAny(s, `/\`)
}

// installArtifacts copies every artifact into dir.
func installArtifacts(src map[string]string, dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}

	var errs []error
	for _, name := range artifacts {
		from, to := src[name], filepath.Join(dir, name)
		if err := replaceFile(from, to); err != nil {
			logger.Warn("copy from %s to %s fail: %v", from, to, err)
			errs = append(errs, fmt.Errorf("copy %s: %w", to, err))
		}
	}
	return errors.Join(errs...)
}

// replaceFile copies src over dst through a temp file in dst's directory.
// The existing file's mode is kept; new files get src's mode.
func replaceFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}
	mode := info.Mode().Perm()
	if existing, err := os.Stat(dst); err == nil {
		mode = existing.Mode().Perm()
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".tmp-*")
	if err != nil {
		return err
	}
	name := tmp.Name()

	if _, err := io.Copy(tmp, in); err != nil {
		tmp.Close()
		os.Remove(name)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(name)
		return err
	}
	if err := os.Chmod(name, mode); err != nil {
		os.Remove(name)
		return err
	}
	if err := os.Rename(name, dst); err != nil {
		os.Remove(name)
		return err
	}
	return nil
}
