package acme

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/pem"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-acme/lego/v4/certcrypto"
	"github.com/go-acme/lego/v4/certificate"
	"github.com/go-acme/lego/v4/challenge"
	"github.com/go-acme/lego/v4/challenge/dns01"
	"github.com/go-acme/lego/v4/lego"
	legolog "github.com/go-acme/lego/v4/log"
	"github.com/go-acme/lego/v4/providers/dns/cloudflare"
	"github.com/go-acme/lego/v4/providers/dns/dnspod"
	"github.com/go-acme/lego/v4/providers/dns/godaddy"
	"github.com/go-acme/lego/v4/registration"
	"go.uber.org/zap"

	"github.com/ksyq12/nascert/internal/errors"
	"github.com/ksyq12/nascert/internal/logger"
)

// CA directory URLs for the acme.sh server short names.
var serverURLs = map[string]string{
	"letsencrypt":      lego.LEDirectoryProduction,
	"letsencrypt_test": lego.LEDirectoryStaging,
	"zerossl":          "https://acme.zerossl.com/v2/DV90",
	"buypass":          "https://api.buypass.com/acme/directory",
	"buypass_test":     "https://api.test4.buypass.no/acme/directory",
	"google":           "https://dv.acme-v02.api.pki.goog/directory",
	"googletest":       "https://dv.acme-v02.test-api.pki.goog/directory",
}

// DirectoryURL resolves an acme.sh server name or URL to a CA directory URL.
func DirectoryURL(server string) (string, error) {
	if server == "" {
		return lego.LEDirectoryProduction, nil
	}
	if strings.HasPrefix(server, "https://") {
		return server, nil
	}
	if url, ok := serverURLs[strings.ToLower(server)]; ok {
		return url, nil
	}
	return "", fmt.Errorf("unknown CA server %q", server)
}

// Lego acquires certificates in-process with go-acme/lego.
type Lego struct {
	clientFactory   clientFactory
	providerFactory func(id string, creds map[string]string) (challenge.Provider, error)
	accountKeyMaker func() (crypto.PrivateKey, error)
}

// NewLego returns a lego based acquirer
func NewLego() *Lego {
	return &Lego{
		clientFactory:   defaultClientFactory,
		providerFactory: NewDNSProvider,
		accountKeyMaker: func() (crypto.PrivateKey, error) {
			return ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
		},
	}
}

// Name returns "lego"
func (l *Lego) Name() string {
	return "lego"
}

// Requirements returns nil; lego runs in-process
func (l *Lego) Requirements() []string {
	return nil
}

// Prepare is a no-op; there is no tool to install
func (l *Lego) Prepare(ctx context.Context) error {
	return ctx.Err()
}

// Clean is a no-op; lego keeps no state on disk
func (l *Lego) Clean(ctx context.Context) error {
	return nil
}

// Acquire registers an ephemeral account, solves DNS-01 for the domain and
// its wildcard and writes the bundle artifacts
func (l *Lego) Acquire(ctx context.Context, req Request) (*Bundle, error) {
	fail := func(msg string, err error) (*Bundle, error) {
		return nil, errors.WrapDomain(errors.ErrCodeIssuance, req.Domain, msg, err)
	}

	if err := ctx.Err(); err != nil {
		return fail("acquisition cancelled", err)
	}

	// lego's progress lines are info level, shown with --verbose
	legolog.Logger = zap.NewStdLog(logger.Zap())

	dirURL, err := DirectoryURL(req.Server)
	if err != nil {
		return fail("invalid CA server", err)
	}

	accountKey, err := l.accountKeyMaker()
	if err != nil {
		return fail("generate account key", err)
	}
	user := &accountUser{email: req.Account, key: accountKey}

	cfg := lego.NewConfig(user)
	cfg.CADirURL = dirURL
	cfg.Certificate.KeyType = certcrypto.EC256

	client, err := l.clientFactory(cfg)
	if err != nil {
		return fail("create acme client", err)
	}

	provider, err := l.providerFactory(req.Provider, req.Credentials)
	if err != nil {
		return fail("configure DNS provider", err)
	}

	opts := []dns01.ChallengeOption{dns01.AddDNSTimeout(10 * time.Minute)}
	if req.PropagationDelay > 0 {
		opts = append(opts, dns01.PropagationWait(req.PropagationDelay, true))
	}
	if err := client.SetDNS01Provider(provider, opts...); err != nil {
		return fail("configure dns-01 challenge", err)
	}

	reg, err := client.Register(registration.RegisterOptions{TermsOfServiceAgreed: true})
	if err != nil {
		return fail("register account", err)
	}
	user.registration = reg

	if err := ctx.Err(); err != nil {
		return fail("acquisition cancelled", err)
	}

	logger.Debug("Obtaining certificate for %s from %s", strings.Join(req.Names(), ", "), dirURL)
	res, err := client.Obtain(certificate.ObtainRequest{
		Domains: req.Names(),
		Bundle:  true,
	})
	if err != nil {
		return fail("obtain certificate", err)
	}

	bundle, err := writeResource(req, res)
	if err != nil {
		return fail("write certificate", err)
	}
	return bundle, nil
}

// writeResource splits the bundled certificate into leaf and chain files.
func writeResource(req Request, res *certificate.Resource) (*Bundle, error) {
	if res == nil || len(res.Certificate) == 0 {
		return nil, fmt.Errorf("empty certificate payload received from ACME server")
	}
	if len(res.PrivateKey) == 0 {
		return nil, fmt.Errorf("empty private key received from ACME server")
	}

	leaf, _ := pem.Decode(res.Certificate)
	if leaf == nil {
		return nil, fmt.Errorf("certificate payload is not PEM")
	}

	if err := os.MkdirAll(req.OutputDir, 0700); err != nil {
		return nil, err
	}

	b := NewBundle(req.Domain, req.OutputDir)
	if err := os.WriteFile(b.KeyPath, res.PrivateKey, 0600); err != nil {
		return nil, err
	}
	if err := os.WriteFile(b.CertPath, pem.EncodeToMemory(leaf), 0644); err != nil {
		return nil, err
	}
	if err := os.WriteFile(b.FullchainPath, res.Certificate, 0644); err != nil {
		return nil, err
	}
	return b, nil
}

// NewDNSProvider maps an acme.sh DNS hook and its credentials onto the
// equivalent lego provider.
func NewDNSProvider(id string, creds map[string]string) (challenge.Provider, error) {
	switch id {
	case "dns_cf":
		cfg := cloudflare.NewDefaultConfig()
		cfg.AuthToken = creds["CF_Token"]
		cfg.AuthKey = creds["CF_Key"]
		cfg.AuthEmail = creds["CF_Email"]
		return cloudflare.NewDNSProviderConfig(cfg)
	case "dns_dp":
		cfg := dnspod.NewDefaultConfig()
		cfg.LoginToken = creds["DP_Id"] + "," + creds["DP_Key"]
		return dnspod.NewDNSProviderConfig(cfg)
	case "dns_gd":
		cfg := godaddy.NewDefaultConfig()
		cfg.APIKey = creds["GD_Key"]
		cfg.APISecret = creds["GD_Secret"]
		return godaddy.NewDNSProviderConfig(cfg)
	default:
		return nil, fmt.Errorf("DNS provider %q is not supported by lego", id)
	}
}

type clientFactory func(*lego.Config) (acmeClient, error)

type acmeClient interface {
	Register(options registration.RegisterOptions) (*registration.Resource, error)
	SetDNS01Provider(provider challenge.Provider, opts ...dns01.ChallengeOption) error
	Obtain(request certificate.ObtainRequest) (*certificate.Resource, error)
}

func defaultClientFactory(cfg *lego.Config) (acmeClient, error) {
	client, err := lego.NewClient(cfg)
	if err != nil {
		return nil, err
	}
	return &legoClientAdapter{client: client}, nil
}

type legoClientAdapter struct {
	client *lego.Client
}

func (l *legoClientAdapter) Register(options registration.RegisterOptions) (*registration.Resource, error) {
	return l.client.Registration.Register(options)
}

func (l *legoClientAdapter) SetDNS01Provider(provider challenge.Provider, opts ...dns01.ChallengeOption) error {
	return l.client.Challenge.SetDNS01Provider(provider, opts...)
}

func (l *legoClientAdapter) Obtain(request certificate.ObtainRequest) (*certificate.Resource, error) {
	return l.client.Certificate.Obtain(request)
}

type accountUser struct {
	email        string
	registration *registration.Resource
	key          crypto.PrivateKey
}

func (u *accountUser) GetEmail() string {
	return u.email
}

func (u *accountUser) GetRegistration() *registration.Resource {
	return u.registration
}

func (u *accountUser) GetPrivateKey() crypto.PrivateKey {
	return u.key
}
