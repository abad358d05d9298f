package engine

import (
	"context"
	"sort"

	"github.com/harlytics/harlytics/engine/model"
)

// CloakingFinding records a first-party-looking hostname that aliases, via
// CNAME, to a hostname owned by a known tracking entity.
type CloakingFinding struct {
	// VisitID references the visit the hostname was observed in.
	VisitID string

	// Site is the visited site's domain.
	Site string

	// Hostname is the first-party-looking hostname used in the visit.
	Hostname string

	// Alias is the offending canonical name in the chain.
	Alias string

	// Entity names the tracking entity the alias resolves to.
	Entity string

	// Categories holds the entity's declared tracking categories.
	Categories []Category
}

// DetectCloaking scans a visit for hostnames that look first-party in URL
// form but alias to a tracking entity. Hostnames whose DNS resolution is
// unresolved produce no finding, only a resolution fault: absence of
// evidence is not evidence of cloaking. At most one finding is emitted per
// hostname, naming the first offending alias in the chain. The fault log
// may be nil.
func DetectCloaking(ctx context.Context, visit *model.Visit, resolver *AliasResolver, entities *EntityMap, faults *FaultLog) []CloakingFinding {
	siteDomain := RegistrableDomain(visit.SiteDomain)
	if siteDomain == "" {
		return nil
	}

	candidates := make(map[string]bool)
	for i := range visit.Requests {
		host := visit.Requests[i].Host
		if host == "" {
			continue
		}
		if RegistrableDomain(host) == siteDomain {
			candidates[canonicalHost(host)] = true
		}
	}

	hosts := make([]string, 0, len(candidates))
	for host := range candidates {
		hosts = append(hosts, host)
	}
	sort.Strings(hosts)

	var findings []CloakingFinding
	for _, host := range hosts {
		record := resolver.ResolveAliasChain(ctx, host)
		if record.Unresolved {
			if faults != nil {
				faults.Record(FaultResolution, visit.ID, "unresolved first-party hostname "+host)
			}
			continue
		}
		for _, alias := range record.Aliases {
			// An alias staying within the site's own registrable
			// domain is ordinary first-party DNS, not cloaking.
			if RegistrableDomain(alias) == siteDomain {
				continue
			}
			entity := entities.Resolve(alias)
			if !entity.IsTracker() {
				continue
			}
			findings = append(findings, CloakingFinding{
				VisitID:    visit.ID,
				Site:       visit.SiteDomain,
				Hostname:   host,
				Alias:      alias,
				Entity:     entity.Name,
				Categories: entity.Categories,
			})
			break
		}
	}

	return findings
}
