package engine

import "time"

// Config holds the tunables of an analysis run.
type Config struct {
	// TrackedPermissions lists the Permissions-Policy permissions whose
	// explicit disabling is counted as a header-policy deviation.
	TrackedPermissions []string

	// BaselineReferrerPolicy is the browser-default Referrer-Policy value;
	// responses declaring anything else count as a deviation.
	BaselineReferrerPolicy string

	// HighEntropyHints lists the Accept-CH tokens considered
	// privacy-sensitive. Matching is case-insensitive.
	HighEntropyHints []string

	// DNS configures alias-chain resolution.
	DNS DNSOptions
}

// DNSOptions configures the DNS alias cache.
type DNSOptions struct {
	// Resolver is the recursive resolver address as host:port.
	Resolver string

	// Timeout bounds a single alias-chain resolution.
	Timeout time.Duration

	// Concurrency caps the number of in-flight resolutions.
	Concurrency int

	// MaxAliasDepth caps how many CNAME links are followed.
	MaxAliasDepth int
}

// DefaultConfig provides sensible defaults for an analysis run.
func DefaultConfig() Config {
	return Config{
		TrackedPermissions: []string{
			"interest-cohort",
			"browsing-topics",
			"join-ad-interest-group",
			"run-ad-auction",
			"attribution-reporting",
			"geolocation",
			"camera",
			"microphone",
		},
		BaselineReferrerPolicy: "strict-origin-when-cross-origin",
		HighEntropyHints: []string{
			"sec-ch-ua-full-version",
			"sec-ch-ua-full-version-list",
			"sec-ch-ua-platform-version",
			"sec-ch-ua-model",
			"sec-ch-ua-arch",
			"sec-ch-ua-bitness",
			"device-memory",
			"dpr",
			"viewport-width",
			"downlink",
			"ect",
			"rtt",
		},
		DNS: DNSOptions{
			Resolver:      "8.8.8.8:53",
			Timeout:       5 * time.Second,
			Concurrency:   16,
			MaxAliasDepth: 10,
		},
	}
}
