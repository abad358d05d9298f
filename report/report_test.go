package report

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harlytics/harlytics/engine"
	"github.com/harlytics/harlytics/engine/model"
)

func testResult() *engine.RunResult {
	rows := []engine.MetricRow{
		{
			Site: "alpha.com", Mode: model.ModeAccept, VisitID: "alpha.com",
			TotalRequests: 10, FirstPartyRequests: 4, ThirdPartyRequests: 6,
			ThirdPartyDomains: 3, ThirdPartyEntities: 2,
			CategoryPresence: map[engine.Category]bool{engine.CategoryAdvertising: true},
			CategoryRequests: map[engine.Category]int{engine.CategoryAdvertising: 5},
			EntityRequests:   map[string]int{"AdNetwork Inc": 5},
			AcceptCHTokens:   map[string]int{"sec-ch-ua-model": 2},
			ServerIPCount:    4,
		},
		{
			Site: "beta.com", Mode: model.ModeAccept, VisitID: "beta.com",
			TotalRequests:    7,
			CategoryPresence: map[engine.Category]bool{},
			CategoryRequests: map[engine.Category]int{},
			EntityRequests:   map[string]int{},
			AcceptCHTokens:   map[string]int{},
			Undetermined:     []string{engine.MetricThirdParty},
		},
	}
	return &engine.RunResult{
		Rows: rows,
		DomainFrequency: map[model.CrawlMode]map[string]int{
			model.ModeAccept: {"adnetwork.com": 6, "metrics.io": 2},
		},
		Cookies: []model.CookieObservation{
			{VisitID: "alpha.com", Host: "alpha.com", Name: "session", Origin: model.CookieFromHeader},
		},
		Faults: []engine.Fault{
			{Kind: engine.FaultData, VisitID: "beta.com", Detail: "unparseable request URL"},
		},
	}
}

func TestWriteAll_CreatesEveryTable(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "results")
	require.NoError(t, WriteAll(dir, testResult(), DefaultOptions()))

	expected := []string{
		"metric_rows.csv", "summary_stats.csv", "top_domains.csv",
		"top_sites_third_party.csv", "top_sites_server_ips.csv",
		"category_presence.csv", "header_policy.csv", "accept_ch_tokens.csv",
		"cross_entity_chains.csv", "cloaking_findings.csv",
		"cookie_observations.csv", "faults.csv", "visits.jsonl",
	}
	for _, name := range expected {
		_, err := os.Stat(filepath.Join(dir, name))
		assert.NoErrorf(t, err, "table %s missing", name)
	}
}

func TestWriteAll_MetricRowsRenderUndetermined(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "results")
	require.NoError(t, WriteAll(dir, testResult(), DefaultOptions()))

	handle, err := os.Open(filepath.Join(dir, "metric_rows.csv"))
	require.NoError(t, err)
	defer handle.Close()

	records, err := csv.NewReader(handle).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3, "header plus two rows")

	header := records[0]
	colIdx := -1
	for i, name := range header {
		if name == "third_party_requests" {
			colIdx = i
		}
	}
	require.GreaterOrEqual(t, colIdx, 0)

	assert.Equal(t, "6", records[1][colIdx])
	assert.Equal(t, "undetermined", records[2][colIdx])
}

func TestWriteAll_TopDomainsRankedAndCapped(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "results")
	opts := DefaultOptions()
	opts.TopN = 1
	require.NoError(t, WriteAll(dir, testResult(), opts))

	handle, err := os.Open(filepath.Join(dir, "top_domains.csv"))
	require.NoError(t, err)
	defer handle.Close()

	records, err := csv.NewReader(handle).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2, "header plus one capped row")
	assert.Equal(t, []string{"accept", "1", "adnetwork.com", "6"}, records[1])
}
