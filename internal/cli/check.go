package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ksyq12/nascert/internal/acme"
	"github.com/ksyq12/nascert/internal/certstore"
	"github.com/ksyq12/nascert/internal/config"
	"github.com/ksyq12/nascert/internal/errors"
	"github.com/ksyq12/nascert/internal/output"
	"github.com/ksyq12/nascert/internal/platform"
)

// renewWindow is how close to expiry the installed certificate is flagged
const renewWindow = 30 * 24 * time.Hour

var checkCmd = &cobra.Command{
	Use:     "check",
	Aliases: []string{"doctor"},
	Short:   "Check the environment and the installed certificate",
	Long: `Run the checks update performs before changing anything, and report on
the installed certificate and the snapshots.

Checks:
  - Root privileges and DSM version
  - Config file and DNS provider credentials
  - Certificate stores and required executables
  - Installed default certificate and its expiry
  - Latest snapshot

Examples:
  nascert check
  nascert check --json`,
	Args: cobra.NoArgs,
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

// Check statuses
const (
	statusSuccess = "success"
	statusWarning = "warning"
	statusError   = "error"
)

// CheckResult represents a single diagnostic check result
type CheckResult struct {
	Status  string `json:"status"` // "success", "warning", "error"
	Message string `json:"message"`
}

// CheckReport contains all diagnostic results
type CheckReport struct {
	System        []CheckResult `json:"system"`
	Configuration []CheckResult `json:"configuration"`
	Certificate   []CheckResult `json:"certificate"`
	Snapshots     []CheckResult `json:"snapshots"`
}

// Errors counts the failed checks
func (r *CheckReport) Errors() int {
	n := 0
	for _, section := range [][]CheckResult{r.System, r.Configuration, r.Certificate, r.Snapshots} {
		for _, c := range section {
			if c.Status == statusError {
				n++
			}
		}
	}
	return n
}

func success(format string, args ...interface{}) CheckResult {
	return CheckResult{Status: statusSuccess, Message: fmt.Sprintf(format, args...)}
}

func warning(format string, args ...interface{}) CheckResult {
	return CheckResult{Status: statusWarning, Message: fmt.Sprintf(format, args...)}
}

func failure(format string, args ...interface{}) CheckResult {
	return CheckResult{Status: statusError, Message: fmt.Sprintf(format, args...)}
}

func runCheck(cmd *cobra.Command, args []string) error {
	report := &CheckReport{}

	info, err := deps.PlatformDetector.Detect()
	if err != nil {
		report.System = append(report.System, failure("Platform detection failed: %v", err))
		info = &platform.Info{}
	}
	report.System = append(report.System, checkSystem(info)...)

	cfg, err := loadConfig()
	if err != nil {
		report.Configuration = append(report.Configuration, failure("%v", err))
	} else {
		report.Configuration = checkConfiguration(cfg, info)
		report.Certificate = checkCertificate(cfg)
		report.Snapshots = checkSnapshots(cfg)
	}

	if jsonOutput {
		if err := output.JSON(report); err != nil {
			return err
		}
	} else {
		displayCheckResults(report)
	}

	if n := report.Errors(); n > 0 {
		return errors.Validationf("%d checks failed", n)
	}
	return nil
}

func checkSystem(info *platform.Info) []CheckResult {
	results := []CheckResult{}

	if err := deps.RootChecker.RequireRoot(); err != nil {
		results = append(results, failure("Not running as root"))
	} else {
		results = append(results, success("Running as root"))
	}

	if info.Synology {
		results = append(results, success("%s", info))
	} else {
		results = append(results, warning("Not a Synology DSM host (%s)", info))
	}
	return results
}

func checkConfiguration(cfg *config.Config, info *platform.Info) []CheckResult {
	results := []CheckResult{
		success("Config file valid (%s)", cfg.Path),
		success("%s credentials set for %s", cfg.Provider().Name, cfg.Domain),
	}

	if st, err := os.Stat(cfg.CertDir); err == nil && st.IsDir() {
		results = append(results, success("Certificate store %s", cfg.CertDir))
	} else {
		results = append(results, failure("Certificate store %s not found", cfg.CertDir))
	}
	if st, err := os.Stat(cfg.PkgCertDir); err == nil && st.IsDir() {
		results = append(results, success("Package certificate store %s", cfg.PkgCertDir))
	} else {
		results = append(results, warning("Package certificate store %s not found (optional)", cfg.PkgCertDir))
	}

	var bins []string
	notifier := deps.NotifierFactory.Create(info, deps.Executor)
	for _, svc := range notifier.Services() {
		if r, ok := svc.(requirer); ok {
			bins = append(bins, r.Requirements()...)
		}
	}
	if acquirer, err := deps.AcquirerFactory.Create(cfg, deps.Executor); err == nil {
		bins = append(bins, acquirer.Requirements()...)
	} else {
		results = append(results, failure("%v", err))
	}

	seen := make(map[string]bool)
	for _, bin := range bins {
		if seen[bin] {
			continue
		}
		seen[bin] = true
		if path, err := deps.Executor.LookPath(bin); err == nil {
			results = append(results, success("%s found (%s)", bin, path))
		} else {
			results = append(results, failure("%s not found", bin))
		}
	}
	return results
}

func checkCertificate(cfg *config.Config) []CheckResult {
	inst := certstore.NewInstaller(cfg.CertDir, cfg.PkgCertDir)
	id, err := inst.DefaultArchive()
	if err != nil {
		return []CheckResult{failure("No default certificate: %v", err)}
	}

	results := []CheckResult{}
	if services, err := inst.Services(id); err == nil {
		results = append(results, success("Default certificate %s used by %d services", id, len(services)))
	} else {
		results = append(results, warning("Default certificate %s: %v", id, err))
	}

	cert, err := acme.NewBundle(cfg.Domain, inst.ArchiveDir(id)).Certificate()
	if err != nil {
		return append(results, failure("Installed certificate unreadable: %v", err))
	}
	if err := cert.VerifyHostname(cfg.Domain); err != nil {
		results = append(results, warning("Installed certificate does not cover %s", cfg.Domain))
	}

	left := time.Until(cert.NotAfter)
	switch {
	case left <= 0:
		results = append(results, failure("Certificate expired on %s", formatTime(cert.NotAfter)))
	case left < renewWindow:
		results = append(results, warning("Certificate expires in %d days", int(left.Hours()/24)))
	default:
		results = append(results, success("Certificate valid until %s", formatTime(cert.NotAfter)))
	}
	return results
}

func checkSnapshots(cfg *config.Config) []CheckResult {
	mgr := newSnapshotManager(cfg)
	snaps, err := mgr.List()
	if err != nil {
		return []CheckResult{failure("Cannot read %s: %v", cfg.BackupRoot, err)}
	}

	latest, err := mgr.Latest()
	if err != nil {
		return []CheckResult{warning("No snapshot yet, revert is not possible until the first update")}
	}
	return []CheckResult{success("%d snapshots, latest %s", len(snaps), latest)}
}

func displayCheckResults(report *CheckReport) {
	sections := []struct {
		title   string
		results []CheckResult
	}{
		{"Checking system...", report.System},
		{"Checking configuration...", report.Configuration},
		{"Checking installed certificate...", report.Certificate},
		{"Checking snapshots...", report.Snapshots},
	}

	for _, s := range sections {
		if len(s.results) == 0 {
			continue
		}
		output.Print("%s", s.title)
		for _, check := range s.results {
			displayCheck(check)
		}
		output.Print("")
	}
}

func displayCheck(check CheckResult) {
	switch check.Status {
	case statusSuccess:
		output.Success("%s", check.Message)
	case statusWarning:
		output.Warn("%s", check.Message)
	case statusError:
		output.Error("%s", check.Message)
	}
}
