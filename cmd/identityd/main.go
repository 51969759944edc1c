// Command identityd serves the identity API and manages its schema.
//
//	identityd serve --config /etc/identity/config.yaml
//	identityd migrate up
//
// Every setting can be overridden with an IDENTITY_ environment variable,
// e.g. IDENTITY_POSTGRES_URI or IDENTITY_WEBHOOK_SECRET.
package main

import (
	"os"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
