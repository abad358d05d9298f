package engine

import (
	"sort"

	"github.com/harlytics/harlytics/engine/model"
)

// RankEntry is one leaderboard row: a name and the value it is ranked by.
type RankEntry struct {
	Name  string
	Value float64
}

// TopN orders entries descending by value, breaking ties by ascending name
// for reproducibility, and returns at most n entries. Fewer than n
// candidates are returned as-is.
func TopN(entries []RankEntry, n int) []RankEntry {
	ranked := append([]RankEntry(nil), entries...)
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Value != ranked[j].Value {
			return ranked[i].Value > ranked[j].Value
		}
		return ranked[i].Name < ranked[j].Name
	})
	if n >= 0 && len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked
}

// TopDomains builds the per-mode third-party domain leaderboard from the
// run's domain frequency counts.
func TopDomains(result *RunResult, mode model.CrawlMode, n int) []RankEntry {
	var entries []RankEntry
	for domain, count := range result.DomainFrequency[mode] {
		entries = append(entries, RankEntry{Name: domain, Value: float64(count)})
	}
	return TopN(entries, n)
}

// TopSites ranks sites by a per-row metric, taking the maximum value over
// a site's rows so retried visits cannot rank a site twice.
func TopSites(rows []MetricRow, metric func(*MetricRow) float64, n int) []RankEntry {
	best := make(map[string]float64)
	for i := range rows {
		value := metric(&rows[i])
		if have, ok := best[rows[i].Site]; !ok || value > have {
			best[rows[i].Site] = value
		}
	}
	var entries []RankEntry
	for site, value := range best {
		entries = append(entries, RankEntry{Name: site, Value: value})
	}
	return TopN(entries, n)
}

// Summary holds min/median/max statistics over a group of values.
type Summary struct {
	Min    float64
	Median float64
	Max    float64
}

// Summarize computes min/median/max over values. The median of an
// even-sized group is the mean of the two middle values. The second return
// is false for an empty group.
func Summarize(values []float64) (Summary, bool) {
	if len(values) == 0 {
		return Summary{}, false
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	var median float64
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		median = (sorted[mid-1] + sorted[mid]) / 2
	} else {
		median = sorted[mid]
	}

	return Summary{
		Min:    sorted[0],
		Median: median,
		Max:    sorted[len(sorted)-1],
	}, true
}

// SummaryRow carries the summary statistics of one metric over the visits
// of one (site, mode) group.
type SummaryRow struct {
	Site   string
	Mode   model.CrawlMode
	Metric string
	Visits int
	Summary
}

// summaryMetrics maps metric names to row extractors, in output order.
var summaryMetrics = []struct {
	name    string
	extract func(*MetricRow) float64
}{
	{MetricTotalRequests, func(r *MetricRow) float64 { return float64(r.TotalRequests) }},
	{MetricFirstParty, func(r *MetricRow) float64 { return float64(r.FirstPartyRequests) }},
	{MetricThirdParty, func(r *MetricRow) float64 { return float64(r.ThirdPartyRequests) }},
	{MetricThirdPartyDomains, func(r *MetricRow) float64 { return float64(r.ThirdPartyDomains) }},
	{MetricThirdPartyEntities, func(r *MetricRow) float64 { return float64(r.ThirdPartyEntities) }},
	{MetricCookieHeader, func(r *MetricRow) float64 { return float64(r.CookieHeaderCount) }},
	{MetricCookieScript, func(r *MetricRow) float64 { return float64(r.CookieScriptCount) }},
	{MetricPermissionsPolicy, func(r *MetricRow) float64 { return float64(r.PermissionsPolicyCount) }},
	{MetricReferrerPolicy, func(r *MetricRow) float64 { return float64(r.ReferrerPolicyCount) }},
	{MetricServerIPs, func(r *MetricRow) float64 { return float64(r.ServerIPCount) }},
	{MetricBlockedRequests, func(r *MetricRow) float64 { return float64(r.BlockedRequests) }},
	{MetricErrorResponses, func(r *MetricRow) float64 { return float64(r.ErrorResponses) }},
	{MetricCrossEntityChains, func(r *MetricRow) float64 { return float64(r.CrossEntityChains) }},
	{MetricCloakedHosts, func(r *MetricRow) float64 { return float64(r.CloakedHosts) }},
}

// SummarizeRows groups rows by (site, mode) and computes min/median/max for
// every numeric metric over each group's per-visit values. Rows with a
// metric marked undetermined are excluded from that metric's group. Output
// is ordered by (site, mode, metric declaration order).
func SummarizeRows(rows []MetricRow) []SummaryRow {
	type groupKey struct {
		site string
		mode model.CrawlMode
	}
	groups := make(map[groupKey][]*MetricRow)
	var order []groupKey
	for i := range rows {
		key := groupKey{rows[i].Site, rows[i].Mode}
		if _, seen := groups[key]; !seen {
			order = append(order, key)
		}
		groups[key] = append(groups[key], &rows[i])
	}
	sort.Slice(order, func(i, j int) bool {
		if order[i].site != order[j].site {
			return order[i].site < order[j].site
		}
		return order[i].mode < order[j].mode
	})

	var out []SummaryRow
	for _, key := range order {
		for _, metric := range summaryMetrics {
			var values []float64
			for _, row := range groups[key] {
				if row.IsUndetermined(metric.name) {
					continue
				}
				values = append(values, metric.extract(row))
			}
			summary, ok := Summarize(values)
			if !ok {
				continue
			}
			out = append(out, SummaryRow{
				Site:    key.site,
				Mode:    key.mode,
				Metric:  metric.name,
				Visits:  len(values),
				Summary: summary,
			})
		}
	}
	return out
}
