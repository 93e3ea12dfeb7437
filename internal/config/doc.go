// Package config loads the nascert renewal configuration.
//
// The configuration is a shell-style KEY=VALUE file, the same format the
// acme.sh ecosystem uses, so an existing config can be reused as is:
//
//	ACCOUNT=admin@example.com
//	DOMAIN=example.com
//	DNS=dns_cf
//	DNS_SLEEP=120
//	CF_Token=xxxxxxxx
//	CF_Account_ID=yyyyyyyy
//
// The file is parsed with godotenv and bound to Config with caarlos0/env.
// ACCOUNT, DOMAIN, DNS and DNS_SLEEP are required. DNS selects one of the
// supported DNS provider schemas (see Providers); only that provider's
// credential keys are read, and at least one complete credential set must
// be present.
//
// Relative paths (BACKUP_ROOT, ACME_HOME, WORK_DIR, METRICS_FILE) are
// resolved against the directory holding the config file.
package config
