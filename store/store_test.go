package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harlytics/harlytics/engine"
	"github.com/harlytics/harlytics/engine/model"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "results.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpen_AppliesMigrations(t *testing.T) {
	s := openTestStore(t)

	count, err := s.CountMetricRows()
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestOpen_IsIdempotent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "results.db")

	first, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second, err := Open(path)
	require.NoError(t, err)
	defer second.Close()

	count, err := second.CountMetricRows()
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestSaveRun(t *testing.T) {
	s := openTestStore(t)

	hop := model.Request{URL: "https://sitea.com/go", Host: "sitea.com", Status: 302}
	result := &engine.RunResult{
		Rows: []engine.MetricRow{
			{Site: "sitea.com", Mode: model.ModeAccept, VisitID: "sitea.com", TotalRequests: 3},
			{Site: "siteb.com", Mode: model.ModeReject, VisitID: "siteb.com", TotalRequests: 5,
				Undetermined: []string{engine.MetricThirdParty}},
		},
		Chains: []engine.RedirectChain{
			{VisitID: "sitea.com", Hops: []*model.Request{&hop}, State: engine.ChainIncomplete,
				FirstEntity: "sitea.com", LastEntity: "sitea.com"},
		},
		Cloaking: []engine.CloakingFinding{
			{VisitID: "sitea.com", Site: "sitea.com", Hostname: "t.sitea.com",
				Alias: "track.adnetwork.com", Entity: "AdNetwork Inc",
				Categories: []engine.Category{engine.CategoryAdvertising}},
		},
		Cookies: []model.CookieObservation{
			{VisitID: "sitea.com", Host: "sitea.com", Name: "session", Origin: model.CookieFromHeader},
		},
		Faults: []engine.Fault{
			{Kind: engine.FaultData, VisitID: "siteb.com", Detail: "unparseable request URL"},
		},
	}

	require.NoError(t, s.SaveRun(result))

	count, err := s.CountMetricRows()
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}
