// Package acme obtains certificate bundles from an ACME certificate authority.
//
// Acquisition is hidden behind the Acquirer interface so the renewal
// lifecycle never depends on how a certificate is obtained. Two
// implementations are provided:
//
//   - AcmeSh drives the acme.sh shell client through the command executor.
//     The client is downloaded from its release archive and installed into a
//     private home directory on first use.
//   - Lego obtains the certificate in-process with go-acme/lego.
//
// Both solve the DNS-01 challenge for the domain and its wildcard and write
// the artifacts the NAS expects:
//
//	cert.pem       leaf certificate
//	privkey.pem    private key
//	fullchain.pem  leaf followed by the issuer chain
//
// # Testing
//
// MockAcquirer records calls and returns canned bundles:
//
//	acq := &acme.MockAcquirer{
//	    AcquireFunc: func(ctx context.Context, req acme.Request) (*acme.Bundle, error) {
//	        return nil, errors.New("rate limited")
//	    },
//	}
package acme
