package acme

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ksyq12/nascert/internal/errors"
	"github.com/ksyq12/nascert/internal/executor"
	"github.com/ksyq12/nascert/internal/logger"
)

const (
	acmeShScript = "acme.sh"
	acmeShLog    = "acme.sh.log"
	// acme.sh exits 2 when the certificate is not due for renewal.
	exitSkipped = 2
)

// AcmeSh acquires certificates with the acme.sh client.
type AcmeSh struct {
	home       string
	archiveURL string
	workDir    string
	exec       executor.CommandExecutor
	client     *http.Client
}

// AcmeShOption configures AcmeSh.
type AcmeShOption func(*AcmeSh)

// WithHTTPClient sets the client used to download the archive.
func WithHTTPClient(c *http.Client) AcmeShOption {
	return func(a *AcmeSh) {
		a.client = c
	}
}

// NewAcmeSh returns an acquirer that installs acme.sh into home from
// archiveURL. Diagnostics are copied into workDir on failure.
func NewAcmeSh(home, archiveURL, workDir string, exec executor.CommandExecutor, opts ...AcmeShOption) *AcmeSh {
	a := &AcmeSh{
		home:       home,
		archiveURL: archiveURL,
		workDir:    workDir,
		exec:       exec,
		client:     &http.Client{Timeout: 5 * time.Minute},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Name returns "acme.sh"
func (a *AcmeSh) Name() string {
	return "acme.sh"
}

// Requirements returns the binaries acme.sh shells out to
func (a *AcmeSh) Requirements() []string {
	return []string{"curl", "openssl"}
}

// Home returns the installation directory
func (a *AcmeSh) Home() string {
	return a.home
}

// Script returns the path of the installed acme.sh script
func (a *AcmeSh) Script() string {
	return filepath.Join(a.home, acmeShScript)
}

// IsInstalled checks if acme.sh is installed in the home directory
func (a *AcmeSh) IsInstalled() bool {
	info, err := os.Stat(a.Script())
	return err == nil && !info.IsDir()
}

// Prepare downloads and installs acme.sh unless it is already installed
func (a *AcmeSh) Prepare(ctx context.Context) error {
	if a.IsInstalled() {
		logger.Debug("acme.sh already installed in %s", a.home)
		return nil
	}

	logger.Info("Installing acme.sh from %s", a.archiveURL)

	tmp, err := os.MkdirTemp("", "nascert-acme-*")
	if err != nil {
		return errors.Wrap(errors.ErrCodeIssuance, "failed to create temp dir", err)
	}
	defer os.RemoveAll(tmp)

	archive := filepath.Join(tmp, "acme.sh.tar.gz")
	if err := a.fetch(ctx, archive); err != nil {
		return errors.Wrap(errors.ErrCodeIssuance, "failed to download acme.sh", err)
	}

	f, err := os.Open(archive)
	if err != nil {
		return errors.Wrap(errors.ErrCodeIssuance, "failed to open acme.sh archive", err)
	}
	src, err := extractTarGz(f, filepath.Join(tmp, "src"))
	f.Close()
	if err != nil {
		return errors.Wrap(errors.ErrCodeIssuance, "failed to extract acme.sh archive", err)
	}

	if err := os.MkdirAll(a.home, 0700); err != nil {
		return errors.Wrap(errors.ErrCodeIssuance, "failed to create acme.sh home", err)
	}

	cmd := executor.Command{
		Name: "sh",
		Args: append([]string{"./" + acmeShScript, "--install", "--nocron", "--no-profile"}, a.homeArgs()...),
		Dir:  src,
	}
	if output, err := a.exec.Run(ctx, cmd); err != nil {
		return errors.Wrap(errors.ErrCodeIssuance,
			fmt.Sprintf("acme.sh install failed: %s", strings.TrimSpace(string(output))), err)
	}

	if !a.IsInstalled() {
		return errors.Wrap(errors.ErrCodeIssuance,
			fmt.Sprintf("acme.sh install did not create %s", a.Script()), nil)
	}
	return nil
}

func (a *AcmeSh) fetch(ctx context.Context, dst string) error {
	f, err := os.Create(dst)
	if err != nil {
		return err
	}
	if err := download(ctx, a.client, a.archiveURL, f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// homeArgs pins every acme.sh state directory under home.
func (a *AcmeSh) homeArgs() []string {
	return []string{
		"--home", a.home,
		"--config-home", filepath.Join(a.home, "data"),
		"--cert-home", filepath.Join(a.home, "certs"),
	}
}

// Acquire issues a certificate for the domain and its wildcard and
// installs the artifacts into req.OutputDir
func (a *AcmeSh) Acquire(ctx context.Context, req Request) (*Bundle, error) {
	if !a.IsInstalled() {
		return nil, errors.WrapDomain(errors.ErrCodeIssuance, req.Domain, "acme.sh is not installed", nil)
	}
	if err := os.MkdirAll(req.OutputDir, 0700); err != nil {
		return nil, errors.WrapDomain(errors.ErrCodeIssuance, req.Domain, "failed to create output directory", err)
	}

	env := credentialEnv(req.Credentials)

	if err := a.run(ctx, env, a.registerArgs(req)); err != nil {
		a.saveLog()
		return nil, errors.WrapDomain(errors.ErrCodeIssuance, req.Domain, "account registration failed", err)
	}

	err := a.run(ctx, env, a.issueArgs(req))
	switch code := executor.ExitCode(err); {
	case err == nil:
	case code == exitSkipped:
		logger.Info("Certificate for %s is not due for renewal, reinstalling the current one", req.Domain)
	default:
		a.saveLog()
		return nil, errors.WrapDomain(errors.ErrCodeIssuance, req.Domain, "acme.sh --issue failed", err)
	}

	bundle := NewBundle(req.Domain, req.OutputDir)
	if err := a.run(ctx, env, a.installArgs(req, bundle)); err != nil {
		a.saveLog()
		return nil, errors.WrapDomain(errors.ErrCodeIssuance, req.Domain, "acme.sh --install-cert failed", err)
	}

	return bundle, nil
}

func (a *AcmeSh) registerArgs(req Request) []string {
	args := []string{"--register-account", "-m", req.Account, "--server", req.Server}
	return append(args, a.homeArgs()...)
}

func (a *AcmeSh) issueArgs(req Request) []string {
	args := []string{"--issue", "--dns", req.Provider}
	for _, name := range req.Names() {
		args = append(args, "-d", name)
	}
	args = append(args,
		"--dnssleep", strconv.Itoa(int(req.PropagationDelay/time.Second)),
		"--server", req.Server,
		"--keylength", "ec-256",
		"--log", a.logPath(),
	)
	return append(args, a.homeArgs()...)
}

func (a *AcmeSh) installArgs(req Request, b *Bundle) []string {
	args := []string{
		"--install-cert", "--ecc",
		"-d", req.Domain,
		"--cert-file", b.CertPath,
		"--key-file", b.KeyPath,
		"--fullchain-file", b.FullchainPath,
	}
	return append(args, a.homeArgs()...)
}

// run executes the installed script. The output is logged at debug level
// and folded into the returned error.
func (a *AcmeSh) run(ctx context.Context, env, args []string) error {
	cmd := executor.Command{Name: a.Script(), Args: args, Env: env}
	logger.Debug("Running %s", cmd)

	output, err := a.exec.Run(ctx, cmd)
	if len(output) > 0 {
		logger.Debug("acme.sh output:\n%s", strings.TrimSpace(string(output)))
	}
	if err != nil {
		if msg := lastLine(output); msg != "" {
			return fmt.Errorf("%w: %s", err, msg)
		}
		return err
	}
	return nil
}

func (a *AcmeSh) logPath() string {
	return filepath.Join(a.home, acmeShLog)
}

// saveLog copies the acme.sh log into the working directory.
func (a *AcmeSh) saveLog() {
	if a.workDir == "" {
		return
	}
	src, err := os.Open(a.logPath())
	if err != nil {
		return
	}
	defer src.Close()

	dst := filepath.Join(a.workDir, acmeShLog)
	out, err := os.Create(dst)
	if err != nil {
		logger.Warn("Failed to save acme.sh log: %v", err)
		return
	}
	defer out.Close()

	if _, err := io.Copy(out, src); err != nil {
		logger.Warn("Failed to save acme.sh log: %v", err)
		return
	}
	logger.Info("acme.sh log saved to %s", dst)
}

// Clean removes the acme.sh installation
func (a *AcmeSh) Clean(ctx context.Context) error {
	if err := os.RemoveAll(a.home); err != nil {
		return fmt.Errorf("failed to remove %s: %w", a.home, err)
	}
	return nil
}

// credentialEnv renders credentials as KEY=VALUE pairs, sorted by key.
func credentialEnv(creds map[string]string) []string {
	keys := make([]string, 0, len(creds))
	for k := range creds {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	env := make([]string, 0, len(keys))
	for _, k := range keys {
		env = append(env, k+"="+creds[k])
	}
	return env
}

func lastLine(output []byte) string {
	lines := strings.Split(strings.TrimSpace(string(output)), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}
