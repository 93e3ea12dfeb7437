package config

import (
	"sort"
	"strings"
)

// DNSProvider describes the credential schema of one acme.sh DNS API.
type DNSProvider struct {
	// ID is the acme.sh hook name used in DNS=...
	ID string
	// Name is a display name.
	Name string
	// CredentialSets lists alternative complete sets of keys; one must be fully present.
	CredentialSets [][]string
	// Optional keys are forwarded when present.
	Optional []string
	// Lego reports whether the in-process lego client can drive the provider.
	Lego bool
}

// Keys returns every credential key the provider understands, sorted.
func (p DNSProvider) Keys() []string {
	seen := make(map[string]bool)
	var keys []string
	add := func(k string) {
		if !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}
	for _, set := range p.CredentialSets {
		for _, k := range set {
			add(k)
		}
	}
	for _, k := range p.Optional {
		add(k)
	}
	sort.Strings(keys)
	return keys
}

// Satisfied reports whether creds contains a complete credential set.
func (p DNSProvider) Satisfied(creds map[string]string) bool {
	for _, set := range p.CredentialSets {
		complete := true
		for _, k := range set {
			if strings.TrimSpace(creds[k]) == "" {
				complete = false
				break
			}
		}
		if complete {
			return true
		}
	}
	return false
}

// DNS provider ids.
const (
	ProviderCloudflare = "dns_cf"
	ProviderAliyun     = "dns_ali"
	ProviderDNSPod     = "dns_dp"
	ProviderGoDaddy    = "dns_gd"
)

var providers = map[string]DNSProvider{
	ProviderCloudflare: {
		ID:   ProviderCloudflare,
		Name: "Cloudflare",
		CredentialSets: [][]string{
			{"CF_Token"},
			{"CF_Key", "CF_Email"},
		},
		Optional: []string{"CF_Account_ID", "CF_Zone_ID"},
		Lego:     true,
	},
	ProviderAliyun: {
		ID:             ProviderAliyun,
		Name:           "Aliyun",
		CredentialSets: [][]string{{"Ali_Key", "Ali_Secret"}},
	},
	ProviderDNSPod: {
		ID:             ProviderDNSPod,
		Name:           "DNSPod",
		CredentialSets: [][]string{{"DP_Id", "DP_Key"}},
		Lego:           true,
	},
	ProviderGoDaddy: {
		ID:             ProviderGoDaddy,
		Name:           "GoDaddy",
		CredentialSets: [][]string{{"GD_Key", "GD_Secret"}},
		Lego:           true,
	},
}

// LookupProvider returns the provider registered under id.
func LookupProvider(id string) (DNSProvider, bool) {
	p, ok := providers[id]
	return p, ok
}

// Providers returns the supported provider ids, sorted.
func Providers() []string {
	ids := make([]string, 0, len(providers))
	for id := range providers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
