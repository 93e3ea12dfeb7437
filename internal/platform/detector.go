// Package platform detects the NAS operating system and the locations of the
// tools nascert drives.
package platform

import (
	"fmt"
	"os"
	"runtime"
	"strconv"

	"github.com/joho/godotenv"
)

// VersionFile is the DSM release descriptor.
const VersionFile = "/etc.defaults/VERSION"

// Synology binaries and scripts.
const (
	SynoW3Tool        = "/usr/syno/bin/synow3tool"
	SynoSystemctl     = "/usr/syno/bin/synosystemctl"
	SynoPkg           = "/usr/syno/bin/synopkg"
	NginxSysVScript   = "/usr/syno/etc/rc.sysv/nginx.sh"
	DefaultCertDir    = "/usr/syno/etc/certificate"
	DefaultPkgCertDir = "/usr/local/etc/certificate"
)

// Info describes the detected system.
type Info struct {
	// Synology is true when a DSM version file was found.
	Synology       bool
	DSMMajor       int
	DSMMinor       int
	ProductVersion string
	BuildNumber    string
	OS             string
	Arch           string
}

// Detect inspects the running system.
func Detect() (*Info, error) {
	return DetectFrom(VersionFile)
}

// DetectFrom reads the DSM version from versionFile. A missing file is not an
// error: the result describes a generic Linux host.
func DetectFrom(versionFile string) (*Info, error) {
	info := &Info{OS: runtime.GOOS, Arch: runtime.GOARCH}

	if !pathExists(versionFile) {
		return info, nil
	}

	values, err := godotenv.Read(versionFile)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", versionFile, err)
	}

	info.Synology = true
	info.ProductVersion = values["productversion"]
	info.BuildNumber = values["buildnumber"]

	if v, ok := values["majorversion"]; ok {
		major, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid majorversion %q in %s", v, versionFile)
		}
		info.DSMMajor = major
	}
	if v, ok := values["minorversion"]; ok {
		if minor, err := strconv.Atoi(v); err == nil {
			info.DSMMinor = minor
		}
	}
	return info, nil
}

// DSM7 reports whether the system runs DSM 7 or later.
func (i *Info) DSM7() bool {
	return i.Synology && i.DSMMajor >= 7
}

// String returns a short description such as "DSM 7.2 (linux/amd64)".
func (i *Info) String() string {
	if !i.Synology {
		return fmt.Sprintf("%s/%s", i.OS, i.Arch)
	}
	version := i.ProductVersion
	if version == "" {
		version = fmt.Sprintf("%d.%d", i.DSMMajor, i.DSMMinor)
	}
	return fmt.Sprintf("DSM %s (%s/%s)", version, i.OS, i.Arch)
}

// pathExists checks if a path exists on the filesystem.
func pathExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
