package engine

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/harlytics/harlytics/engine/model"
	"github.com/harlytics/harlytics/logging"
)

// Metric names used for the Undetermined marker and the summary table.
const (
	MetricTotalRequests      = "total_requests"
	MetricFirstParty         = "first_party_requests"
	MetricThirdParty         = "third_party_requests"
	MetricThirdPartyDomains  = "third_party_domains"
	MetricThirdPartyEntities = "third_party_entities"
	MetricCookieHeader       = "cookies_set_cookie"
	MetricCookieScript       = "cookies_script"
	MetricPermissionsPolicy  = "permissions_policy_deviations"
	MetricReferrerPolicy     = "referrer_policy_deviations"
	MetricServerIPs          = "server_ips"
	MetricBlockedRequests    = "blocked_requests"
	MetricErrorResponses     = "error_responses"
	MetricCrossEntityChains  = "cross_entity_chains"
	MetricCloakedHosts       = "cloaked_hosts"
)

// MetricRow is the aggregated record for one visit of one (site, mode)
// pair. Rows for retried visits are kept distinct; summary statistics are
// computed over them separately. Recomputation from the same visit set is
// deterministic.
type MetricRow struct {
	Site    string
	Mode    model.CrawlMode
	VisitID string
	Country string

	TotalRequests      int
	FirstPartyRequests int
	ThirdPartyRequests int
	ThirdPartyDomains  int
	ThirdPartyEntities int

	// CategoryPresence is true per category iff any third-party request
	// resolved to an entity declaring it.
	CategoryPresence map[Category]bool

	// CategoryRequests counts requests per category across the visit.
	CategoryRequests map[Category]int

	// EntityRequests counts third-party requests per resolved entity.
	EntityRequests map[string]int

	CookieHeaderCount int
	CookieScriptCount int

	// PermissionsPolicyCount counts responses whose Permissions-Policy
	// disables at least one tracked permission.
	PermissionsPolicyCount int

	// ReferrerPolicyCount counts responses declaring a Referrer-Policy
	// other than the configured baseline.
	ReferrerPolicyCount int

	// AcceptCHTokens maps each observed high-entropy Accept-CH token to
	// its response frequency.
	AcceptCHTokens map[string]int

	ServerIPCount   int
	BlockedRequests int
	ErrorResponses  int
	TotalLatencyMS  float64
	TotalBodyBytes  int64

	CrossEntityChains int
	CloakedHosts      int

	// Undetermined names metrics that could not be computed for this
	// visit because of data faults, as opposed to being genuinely zero.
	Undetermined []string
}

// IsUndetermined reports whether the named metric was marked undetermined.
func (r *MetricRow) IsUndetermined(metric string) bool {
	for _, name := range r.Undetermined {
		if name == metric {
			return true
		}
	}
	return false
}

// VisitAnalysis bundles everything derived from one visit.
type VisitAnalysis struct {
	Row      MetricRow
	Chains   []RedirectChain
	Cloaking []CloakingFinding
}

// RunResult holds the full output of an analysis run.
type RunResult struct {
	// Rows holds one MetricRow per visit, ordered by (site, mode, visit).
	Rows []MetricRow

	// Chains holds every redirect chain of length > 1 plus every faulted
	// chain, across all visits.
	Chains []RedirectChain

	// Cloaking holds all cloaking findings across all visits.
	Cloaking []CloakingFinding

	// Cookies holds all cookie observations across all visits.
	Cookies []model.CookieObservation

	// DomainFrequency counts third-party domain occurrences per mode.
	DomainFrequency map[model.CrawlMode]map[string]int

	// Faults holds the per-visit diagnostics collected during the run.
	Faults []Fault
}

// Analyzer derives metrics from visits using the shared reference data.
// All fields are read-only during a run, so visits can be analyzed in
// parallel.
type Analyzer struct {
	cfg      Config
	entities *EntityMap
	resolver *AliasResolver
	logger   *zap.Logger
}

// NewAnalyzer creates an analyzer over the given reference data. The
// logger may be nil.
func NewAnalyzer(cfg Config, entities *EntityMap, resolver *AliasResolver, logger *zap.Logger) *Analyzer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Analyzer{
		cfg:      cfg,
		entities: entities,
		resolver: resolver,
		logger:   logger.With(logging.Component("analyzer")),
	}
}

// Run analyzes the whole corpus and assembles the run result. Visits are
// processed in parallel; the output ordering is deterministic regardless
// of scheduling. Cancelling the context aborts the run and discards any
// partially computed rows.
func (a *Analyzer) Run(ctx context.Context, visits []*model.Visit) (*RunResult, error) {
	analyses := make([]VisitAnalysis, len(visits))
	faults := &FaultLog{}

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(runtime.NumCPU())

	for i, visit := range visits {
		i, visit := i, visit
		group.Go(func() error {
			if err := groupCtx.Err(); err != nil {
				return err
			}
			analyses[i] = a.AnalyzeVisit(groupCtx, visit, faults)
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, fmt.Errorf("analysis aborted: %w", err)
	}

	result := &RunResult{
		DomainFrequency: make(map[model.CrawlMode]map[string]int),
	}
	for _, visit := range visits {
		result.Cookies = append(result.Cookies, visit.Cookies...)
	}
	for _, analysis := range analyses {
		result.Rows = append(result.Rows, analysis.Row)
		result.Cloaking = append(result.Cloaking, analysis.Cloaking...)
		for _, chain := range analysis.Chains {
			if chain.Length() > 1 || chain.State != ChainComplete {
				result.Chains = append(result.Chains, chain)
			}
		}
	}

	for _, visit := range visits {
		freq := result.DomainFrequency[visit.Mode]
		if freq == nil {
			freq = make(map[string]int)
			result.DomainFrequency[visit.Mode] = freq
		}
		for domain, count := range thirdPartyDomainCounts(visit, a.entities) {
			freq[domain] += count
		}
	}

	sort.SliceStable(result.Rows, func(i, j int) bool {
		a, b := result.Rows[i], result.Rows[j]
		if a.Site != b.Site {
			return a.Site < b.Site
		}
		if a.Mode != b.Mode {
			return a.Mode < b.Mode
		}
		return a.VisitID < b.VisitID
	})

	result.Faults = faults.Faults()
	a.logger.Info("run complete",
		logging.Count(len(result.Rows)),
		zap.Int("chains", len(result.Chains)),
		zap.Int("cloaking_findings", len(result.Cloaking)),
		zap.Int("faults", len(result.Faults)))
	return result, nil
}

// AnalyzeVisit computes all per-visit results. The visit is only read,
// never mutated.
func (a *Analyzer) AnalyzeVisit(ctx context.Context, visit *model.Visit, faults *FaultLog) VisitAnalysis {
	row := MetricRow{
		Site:             visit.SiteDomain,
		Mode:             visit.Mode,
		VisitID:          visit.ID,
		Country:          visit.Country,
		CategoryPresence: make(map[Category]bool),
		CategoryRequests: make(map[Category]int),
		EntityRequests:   make(map[string]int),
		AcceptCHTokens:   make(map[string]int),
	}
	for _, category := range Categories() {
		row.CategoryPresence[category] = false
	}

	thirdPartyDomains := make(map[string]bool)
	thirdPartyEntities := make(map[string]bool)
	serverIPs := make(map[string]bool)
	hostFault := false

	for i := range visit.Requests {
		req := &visit.Requests[i]
		row.TotalRequests++
		row.TotalLatencyMS += req.DurationMS
		row.TotalBodyBytes += req.BodyBytes

		if req.Blocked {
			row.BlockedRequests++
		}
		if req.Status >= 400 {
			row.ErrorResponses++
		}
		if req.ServerIP != "" {
			serverIPs[req.ServerIP] = true
		}

		a.countHeaderPolicies(req, &row)

		if req.Host == "" {
			hostFault = true
			faults.Record(FaultData, visit.ID, fmt.Sprintf("unparseable request URL %q", req.URL))
			continue
		}

		entity := a.entities.Resolve(req.Host)
		for _, category := range entity.Categories {
			row.CategoryRequests[category]++
		}

		if !a.entities.IsThirdParty(req.Host, visit.SiteDomain) {
			row.FirstPartyRequests++
			continue
		}
		row.ThirdPartyRequests++
		thirdPartyDomains[RegistrableDomain(req.Host)] = true
		thirdPartyEntities[entity.Name] = true
		row.EntityRequests[entity.Name]++
		for _, category := range entity.Categories {
			row.CategoryPresence[category] = true
		}
	}

	row.ThirdPartyDomains = len(thirdPartyDomains)
	row.ThirdPartyEntities = len(thirdPartyEntities)
	row.ServerIPCount = len(serverIPs)

	for _, cookie := range visit.Cookies {
		switch cookie.Origin {
		case model.CookieFromHeader:
			row.CookieHeaderCount++
		case model.CookieFromScript:
			row.CookieScriptCount++
		}
	}

	chains := BuildChains(visit, a.entities)
	cyclic := false
	for i := range chains {
		if chains[i].State == ChainCyclic {
			cyclic = true
			faults.Record(FaultData, visit.ID,
				fmt.Sprintf("cyclic redirect chain starting at %s", chains[i].Hops[0].URL))
		}
		if chains[i].CrossEntity {
			row.CrossEntityChains++
		}
	}

	cloaking := DetectCloaking(ctx, visit, a.resolver, a.entities, faults)
	row.CloakedHosts = len(cloaking)

	// Data faults leave the affected metrics undetermined rather than
	// silently undercounted.
	if hostFault {
		row.Undetermined = append(row.Undetermined,
			MetricThirdParty, MetricThirdPartyDomains, MetricThirdPartyEntities)
	}
	if cyclic {
		row.Undetermined = append(row.Undetermined, MetricCrossEntityChains)
	}

	return VisitAnalysis{Row: row, Chains: chains, Cloaking: cloaking}
}

// countHeaderPolicies inspects one response's security headers and updates
// the row's policy deviation counts.
func (a *Analyzer) countHeaderPolicies(req *model.Request, row *MetricRow) {
	if value := req.Headers.Get("Permissions-Policy"); value != "" {
		if disablesAny(value, a.cfg.TrackedPermissions) {
			row.PermissionsPolicyCount++
		}
	}

	if value := req.Headers.Get("Referrer-Policy"); value != "" {
		policy := strings.ToLower(strings.TrimSpace(value))
		if policy != strings.ToLower(a.cfg.BaselineReferrerPolicy) {
			row.ReferrerPolicyCount++
		}
	}

	for _, value := range req.Headers.Values("Accept-CH") {
		for _, token := range strings.Split(value, ",") {
			token = strings.ToLower(strings.TrimSpace(token))
			if token == "" {
				continue
			}
			for _, hint := range a.cfg.HighEntropyHints {
				if token == strings.ToLower(hint) {
					row.AcceptCHTokens[token]++
					break
				}
			}
		}
	}
}

// disablesAny reports whether a Permissions-Policy value disables one of
// the tracked permissions, i.e. declares it with an empty allowlist.
func disablesAny(value string, tracked []string) bool {
	for _, directive := range strings.Split(value, ",") {
		name, allowlist, ok := strings.Cut(strings.TrimSpace(directive), "=")
		if !ok {
			continue
		}
		if strings.TrimSpace(allowlist) != "()" {
			continue
		}
		name = strings.ToLower(strings.TrimSpace(name))
		for _, permission := range tracked {
			if name == strings.ToLower(permission) {
				return true
			}
		}
	}
	return false
}

// thirdPartyDomainCounts tallies third-party request counts per registrable
// domain for one visit.
func thirdPartyDomainCounts(visit *model.Visit, entities *EntityMap) map[string]int {
	counts := make(map[string]int)
	for i := range visit.Requests {
		host := visit.Requests[i].Host
		if host == "" || !entities.IsThirdParty(host, visit.SiteDomain) {
			continue
		}
		counts[RegistrableDomain(host)]++
	}
	return counts
}
