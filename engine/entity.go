package engine

import (
	"sort"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/net/publicsuffix"

	"github.com/harlytics/harlytics/logging"
)

// Category is a tracking category declared by the ownership map.
type Category string

const (
	CategoryAdvertising            Category = "Advertising"
	CategoryAnalytics              Category = "Analytics"
	CategorySocial                 Category = "Social"
	CategoryFingerprintingInvasive Category = "FingerprintingInvasive"
	CategoryFingerprintingGeneral  Category = "FingerprintingGeneral"
)

// Categories lists the known tracking categories in canonical order.
func Categories() []Category {
	return []Category{
		CategoryAdvertising,
		CategoryAnalytics,
		CategorySocial,
		CategoryFingerprintingInvasive,
		CategoryFingerprintingGeneral,
	}
}

// Entity is an organization owning one or more tracking domains. Entities
// with no categories are either self-owned long-tail domains or the unknown
// sentinel for unparseable hostnames.
type Entity struct {
	// Name of the owning organization, or the registrable domain itself
	// for domains absent from the ownership map.
	Name string

	// Categories holds the declared tracking categories, sorted.
	Categories []Category

	// Unknown marks the sentinel entity for unparseable hostnames.
	Unknown bool
}

// IsTracker reports whether the entity declares at least one category.
func (e Entity) IsTracker() bool {
	return len(e.Categories) > 0
}

// HasCategory reports whether the entity declares the given category.
func (e Entity) HasCategory(c Category) bool {
	for _, have := range e.Categories {
		if have == c {
			return true
		}
	}
	return false
}

// DomainOwner describes the ownership-map record for one domain.
type DomainOwner struct {
	Entity     string
	Categories []Category
}

// EntityMap resolves hostnames to owning entities using a static ownership
// map. Built once per run and shared read-only across all visit analyses.
type EntityMap struct {
	owners map[string]DomainOwner
	logger *zap.Logger
}

// NewEntityMap builds an EntityMap from domain ownership records. Keys are
// canonicalized to lower case. The logger may be nil.
func NewEntityMap(owners map[string]DomainOwner, logger *zap.Logger) *EntityMap {
	if logger == nil {
		logger = zap.NewNop()
	}
	canonical := make(map[string]DomainOwner, len(owners))
	for domain, owner := range owners {
		key := canonicalHost(domain)
		if key == "" {
			continue
		}
		sorted := append([]Category(nil), owner.Categories...)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
		canonical[key] = DomainOwner{Entity: owner.Entity, Categories: sorted}
	}
	return &EntityMap{
		owners: canonical,
		logger: logger.With(logging.Component("entities")),
	}
}

// Len returns the number of mapped domains.
func (m *EntityMap) Len() int {
	return len(m.owners)
}

// Resolve maps a hostname to its owning entity. Domains absent from the
// ownership map resolve to a self-owned entity with no categories. An
// empty or unparseable hostname resolves to the unknown sentinel so that
// aggregate counts stay well-defined.
func (m *EntityMap) Resolve(hostname string) Entity {
	host := canonicalHost(hostname)
	if host == "" {
		m.logger.Debug("unresolvable hostname", logging.Host(hostname))
		return Entity{Name: "unknown", Unknown: true}
	}

	// Walk label suffixes so subdomain-scoped map entries win over the
	// registrable domain (the ownership map may list both).
	labels := strings.Split(host, ".")
	for i := 0; i < len(labels)-1; i++ {
		candidate := strings.Join(labels[i:], ".")
		if owner, ok := m.owners[candidate]; ok {
			return Entity{Name: owner.Entity, Categories: owner.Categories}
		}
	}

	return Entity{Name: RegistrableDomain(host)}
}

// IsThirdParty reports whether the request hostname belongs to a different
// registrable domain than the visited site.
func (m *EntityMap) IsThirdParty(requestHost, siteDomain string) bool {
	req := RegistrableDomain(requestHost)
	site := RegistrableDomain(siteDomain)
	if req == "" || site == "" {
		return false
	}
	return req != site
}

// RegistrableDomain reduces a hostname to its eTLD+1. Hostnames that do not
// carry a registrable suffix (bare TLDs, IP addresses, single labels) are
// returned canonicalized as-is; "" stays "".
func RegistrableDomain(hostname string) string {
	host := canonicalHost(hostname)
	if host == "" {
		return ""
	}
	etld1, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return host
	}
	return etld1
}

func canonicalHost(hostname string) string {
	host := strings.ToLower(strings.TrimSpace(hostname))
	host = strings.TrimSuffix(host, ".")
	return host
}
