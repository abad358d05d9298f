// Package report writes the analysis results as flat row-oriented tables
// suitable for direct plotting. Column names are stable; one file per
// table.
package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/harlytics/harlytics/engine"
	"github.com/harlytics/harlytics/engine/model"
)

// Options controls which tables are written and how deep the leaderboards
// go.
type Options struct {
	// TopN is the leaderboard depth for the ranking tables.
	TopN int
}

// DefaultOptions provides the report defaults.
func DefaultOptions() Options {
	return Options{TopN: 10}
}

// WriteAll writes every result table into dir, creating it if needed.
func WriteAll(dir string, result *engine.RunResult, opts Options) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create report dir: %w", err)
	}

	writers := []struct {
		name  string
		write func(path string) error
	}{
		{"metric_rows.csv", func(p string) error { return writeMetricRows(p, result.Rows) }},
		{"summary_stats.csv", func(p string) error { return writeSummaryStats(p, engine.SummarizeRows(result.Rows)) }},
		{"top_domains.csv", func(p string) error { return writeTopDomains(p, result, opts.TopN) }},
		{"top_sites_third_party.csv", func(p string) error {
			return writeTopSites(p, result.Rows, func(r *engine.MetricRow) float64 { return float64(r.ThirdPartyDomains) }, opts.TopN)
		}},
		{"top_sites_server_ips.csv", func(p string) error {
			return writeTopSites(p, result.Rows, func(r *engine.MetricRow) float64 { return float64(r.ServerIPCount) }, opts.TopN)
		}},
		{"category_presence.csv", func(p string) error { return writeCategoryPresence(p, result.Rows) }},
		{"header_policy.csv", func(p string) error { return writeHeaderPolicy(p, result.Rows) }},
		{"accept_ch_tokens.csv", func(p string) error { return writeAcceptCH(p, result.Rows) }},
		{"cross_entity_chains.csv", func(p string) error { return writeChains(p, result.Chains) }},
		{"cloaking_findings.csv", func(p string) error { return writeCloaking(p, result.Cloaking) }},
		{"cookie_observations.csv", func(p string) error { return writeCookies(p, result.Cookies) }},
		{"faults.csv", func(p string) error { return writeFaults(p, result.Faults) }},
		{"visits.jsonl", func(p string) error { return writeVisitsJSONL(p, result.Rows) }},
	}
	for _, table := range writers {
		if err := table.write(filepath.Join(dir, table.name)); err != nil {
			return fmt.Errorf("write %s: %w", table.name, err)
		}
	}
	return nil
}

func writeCSV(path string, header []string, rows [][]string) error {
	handle, err := os.Create(path)
	if err != nil {
		return err
	}
	defer handle.Close()

	writer := csv.NewWriter(handle)
	if err := writer.Write(header); err != nil {
		return err
	}
	for _, row := range rows {
		if err := writer.Write(row); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// undeterminedOr renders a metric value, or the undetermined marker when
// the row could not compute it.
func undeterminedOr(row *engine.MetricRow, metric string, value int) string {
	if row.IsUndetermined(metric) {
		return "undetermined"
	}
	return strconv.Itoa(value)
}

func writeMetricRows(path string, rows []engine.MetricRow) error {
	header := []string{
		"site", "mode", "visit_id", "country",
		"total_requests", "first_party_requests", "third_party_requests",
		"third_party_domains", "third_party_entities",
		"cookies_set_cookie", "cookies_script",
		"permissions_policy_deviations", "referrer_policy_deviations",
		"server_ips", "blocked_requests", "error_responses",
		"total_latency_ms", "total_body_bytes",
		"cross_entity_chains", "cloaked_hosts",
	}
	records := make([][]string, 0, len(rows))
	for i := range rows {
		row := &rows[i]
		records = append(records, []string{
			row.Site, string(row.Mode), row.VisitID, row.Country,
			strconv.Itoa(row.TotalRequests),
			strconv.Itoa(row.FirstPartyRequests),
			undeterminedOr(row, engine.MetricThirdParty, row.ThirdPartyRequests),
			undeterminedOr(row, engine.MetricThirdPartyDomains, row.ThirdPartyDomains),
			undeterminedOr(row, engine.MetricThirdPartyEntities, row.ThirdPartyEntities),
			strconv.Itoa(row.CookieHeaderCount),
			strconv.Itoa(row.CookieScriptCount),
			strconv.Itoa(row.PermissionsPolicyCount),
			strconv.Itoa(row.ReferrerPolicyCount),
			strconv.Itoa(row.ServerIPCount),
			strconv.Itoa(row.BlockedRequests),
			strconv.Itoa(row.ErrorResponses),
			strconv.FormatFloat(row.TotalLatencyMS, 'f', 3, 64),
			strconv.FormatInt(row.TotalBodyBytes, 10),
			undeterminedOr(row, engine.MetricCrossEntityChains, row.CrossEntityChains),
			strconv.Itoa(row.CloakedHosts),
		})
	}
	return writeCSV(path, header, records)
}

func writeSummaryStats(path string, rows []engine.SummaryRow) error {
	header := []string{"site", "mode", "metric", "visits", "min", "median", "max"}
	records := make([][]string, 0, len(rows))
	for _, row := range rows {
		records = append(records, []string{
			row.Site, string(row.Mode), row.Metric,
			strconv.Itoa(row.Visits),
			formatFloat(row.Min), formatFloat(row.Median), formatFloat(row.Max),
		})
	}
	return writeCSV(path, header, records)
}

func writeTopDomains(path string, result *engine.RunResult, n int) error {
	header := []string{"mode", "rank", "domain", "requests"}
	var records [][]string
	for _, mode := range model.Modes() {
		for rank, entry := range engine.TopDomains(result, mode, n) {
			records = append(records, []string{
				string(mode), strconv.Itoa(rank + 1), entry.Name, formatFloat(entry.Value),
			})
		}
	}
	return writeCSV(path, header, records)
}

func writeTopSites(path string, rows []engine.MetricRow, metric func(*engine.MetricRow) float64, n int) error {
	header := []string{"mode", "rank", "site", "value"}
	var records [][]string
	for _, mode := range model.Modes() {
		var modeRows []engine.MetricRow
		for _, row := range rows {
			if row.Mode == mode {
				modeRows = append(modeRows, row)
			}
		}
		for rank, entry := range engine.TopSites(modeRows, metric, n) {
			records = append(records, []string{
				string(mode), strconv.Itoa(rank + 1), entry.Name, formatFloat(entry.Value),
			})
		}
	}
	return writeCSV(path, header, records)
}

func writeCategoryPresence(path string, rows []engine.MetricRow) error {
	header := []string{"site", "mode", "visit_id", "category", "present", "requests"}
	var records [][]string
	for i := range rows {
		row := &rows[i]
		for _, category := range engine.Categories() {
			records = append(records, []string{
				row.Site, string(row.Mode), row.VisitID, string(category),
				strconv.FormatBool(row.CategoryPresence[category]),
				strconv.Itoa(row.CategoryRequests[category]),
			})
		}
	}
	return writeCSV(path, header, records)
}

func writeHeaderPolicy(path string, rows []engine.MetricRow) error {
	header := []string{"site", "mode", "visit_id", "permissions_policy_deviations", "referrer_policy_deviations"}
	records := make([][]string, 0, len(rows))
	for i := range rows {
		row := &rows[i]
		records = append(records, []string{
			row.Site, string(row.Mode), row.VisitID,
			strconv.Itoa(row.PermissionsPolicyCount),
			strconv.Itoa(row.ReferrerPolicyCount),
		})
	}
	return writeCSV(path, header, records)
}

func writeAcceptCH(path string, rows []engine.MetricRow) error {
	header := []string{"mode", "token", "responses"}
	totals := make(map[model.CrawlMode]map[string]int)
	for i := range rows {
		row := &rows[i]
		if totals[row.Mode] == nil {
			totals[row.Mode] = make(map[string]int)
		}
		for token, count := range row.AcceptCHTokens {
			totals[row.Mode][token] += count
		}
	}

	var records [][]string
	for _, mode := range model.Modes() {
		tokens := make([]string, 0, len(totals[mode]))
		for token := range totals[mode] {
			tokens = append(tokens, token)
		}
		sort.Strings(tokens)
		for _, token := range tokens {
			records = append(records, []string{
				string(mode), token, strconv.Itoa(totals[mode][token]),
			})
		}
	}
	return writeCSV(path, header, records)
}

func writeChains(path string, chains []engine.RedirectChain) error {
	header := []string{"visit_id", "length", "state", "cross_entity", "first_entity", "last_entity", "hops"}
	records := make([][]string, 0, len(chains))
	for i := range chains {
		chain := &chains[i]
		hops := make([]string, 0, len(chain.Hops))
		for _, hop := range chain.Hops {
			hops = append(hops, hop.URL)
		}
		records = append(records, []string{
			chain.VisitID,
			strconv.Itoa(chain.Length()),
			string(chain.State),
			strconv.FormatBool(chain.CrossEntity),
			chain.FirstEntity,
			chain.LastEntity,
			strings.Join(hops, " -> "),
		})
	}
	return writeCSV(path, header, records)
}

func writeCloaking(path string, findings []engine.CloakingFinding) error {
	header := []string{"visit_id", "site", "hostname", "alias", "entity", "categories"}
	records := make([][]string, 0, len(findings))
	for _, finding := range findings {
		categories := make([]string, 0, len(finding.Categories))
		for _, category := range finding.Categories {
			categories = append(categories, string(category))
		}
		records = append(records, []string{
			finding.VisitID, finding.Site, finding.Hostname,
			finding.Alias, finding.Entity, strings.Join(categories, ";"),
		})
	}
	return writeCSV(path, header, records)
}

func writeCookies(path string, cookies []model.CookieObservation) error {
	header := []string{"visit_id", "host", "name", "origin"}
	records := make([][]string, 0, len(cookies))
	for _, cookie := range cookies {
		records = append(records, []string{
			cookie.VisitID, cookie.Host, cookie.Name, string(cookie.Origin),
		})
	}
	return writeCSV(path, header, records)
}

func writeFaults(path string, faults []engine.Fault) error {
	header := []string{"kind", "visit_id", "detail"}
	records := make([][]string, 0, len(faults))
	for _, fault := range faults {
		records = append(records, []string{string(fault.Kind), fault.VisitID, fault.Detail})
	}
	return writeCSV(path, header, records)
}

// writeVisitsJSONL emits the per-visit rows as JSON lines, the shape the
// plotting side ingests directly.
func writeVisitsJSONL(path string, rows []engine.MetricRow) error {
	handle, err := os.Create(path)
	if err != nil {
		return err
	}
	defer handle.Close()

	encoder := json.NewEncoder(handle)
	for i := range rows {
		if err := encoder.Encode(jsonlRow(&rows[i])); err != nil {
			return err
		}
	}
	return nil
}

func jsonlRow(row *engine.MetricRow) map[string]interface{} {
	categories := make(map[string]bool, len(row.CategoryPresence))
	for category, present := range row.CategoryPresence {
		categories[string(category)] = present
	}
	return map[string]interface{}{
		"site":                 row.Site,
		"crawl_mode":           string(row.Mode),
		"consent_action":       row.Mode.ConsentAction(),
		"visit_id":             row.VisitID,
		"country":              row.Country,
		"total_requests":       row.TotalRequests,
		"first_party_requests": row.FirstPartyRequests,
		"third_party_requests": row.ThirdPartyRequests,
		"third_party_domains":  row.ThirdPartyDomains,
		"third_party_entities": row.ThirdPartyEntities,
		"category_presence":    categories,
		"entity_requests":      row.EntityRequests,
		"accept_ch_tokens":     row.AcceptCHTokens,
		"server_ips":           row.ServerIPCount,
		"blocked_requests":     row.BlockedRequests,
		"error_responses":      row.ErrorResponses,
		"total_latency_ms":     row.TotalLatencyMS,
		"total_body_bytes":     row.TotalBodyBytes,
		"cross_entity_chains":  row.CrossEntityChains,
		"cloaked_hosts":        row.CloakedHosts,
		"undetermined":         row.Undetermined,
	}
}

func formatFloat(value float64) string {
	return strconv.FormatFloat(value, 'f', -1, 64)
}
