package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harlytics/harlytics/engine/model"
)

func TestTopN_FewerCandidatesThanN(t *testing.T) {
	entries := []RankEntry{
		{Name: "a", Value: 5},
		{Name: "b", Value: 5},
		{Name: "c", Value: 3},
	}

	ranked := TopN(entries, 5)
	require.Len(t, ranked, 3)
	assert.Equal(t, "a", ranked[0].Name)
	assert.Equal(t, "b", ranked[1].Name)
	assert.Equal(t, "c", ranked[2].Name)
}

func TestTopN_DescendingWithAlphabeticalTieBreak(t *testing.T) {
	entries := []RankEntry{
		{Name: "zeta.com", Value: 10},
		{Name: "alpha.com", Value: 10},
		{Name: "mid.com", Value: 20},
	}

	ranked := TopN(entries, 2)
	require.Len(t, ranked, 2)
	assert.Equal(t, "mid.com", ranked[0].Name)
	assert.Equal(t, "alpha.com", ranked[1].Name)
}

func TestTopN_DoesNotMutateInput(t *testing.T) {
	entries := []RankEntry{{Name: "b", Value: 1}, {Name: "a", Value: 2}}
	TopN(entries, 1)
	assert.Equal(t, "b", entries[0].Name)
}

func TestSummarize_EvenGroupMedianIsMeanOfMiddleTwo(t *testing.T) {
	summary, ok := Summarize([]float64{2, 4, 6, 8})
	require.True(t, ok)
	assert.Equal(t, 5.0, summary.Median)
	assert.Equal(t, 2.0, summary.Min)
	assert.Equal(t, 8.0, summary.Max)
}

func TestSummarize_OddGroupMedianIsMiddleValue(t *testing.T) {
	summary, ok := Summarize([]float64{9, 3, 7})
	require.True(t, ok)
	assert.Equal(t, 7.0, summary.Median)
}

func TestSummarize_EmptyGroup(t *testing.T) {
	_, ok := Summarize(nil)
	assert.False(t, ok)
}

func TestTopSites_TakesMaxOverRetriedVisits(t *testing.T) {
	rows := []MetricRow{
		{Site: "a.com", Mode: model.ModeAccept, VisitID: "a-1", ThirdPartyDomains: 4},
		{Site: "a.com", Mode: model.ModeAccept, VisitID: "a-2", ThirdPartyDomains: 9},
		{Site: "b.com", Mode: model.ModeAccept, VisitID: "b-1", ThirdPartyDomains: 6},
	}

	ranked := TopSites(rows, func(r *MetricRow) float64 { return float64(r.ThirdPartyDomains) }, 10)
	require.Len(t, ranked, 2)
	assert.Equal(t, RankEntry{Name: "a.com", Value: 9}, ranked[0])
	assert.Equal(t, RankEntry{Name: "b.com", Value: 6}, ranked[1])
}

func TestSummarizeRows_GroupsPerSiteAndMode(t *testing.T) {
	rows := []MetricRow{
		{Site: "a.com", Mode: model.ModeAccept, VisitID: "1", TotalRequests: 2},
		{Site: "a.com", Mode: model.ModeAccept, VisitID: "2", TotalRequests: 4},
		{Site: "a.com", Mode: model.ModeAccept, VisitID: "3", TotalRequests: 6},
		{Site: "a.com", Mode: model.ModeAccept, VisitID: "4", TotalRequests: 8},
		{Site: "a.com", Mode: model.ModeReject, VisitID: "5", TotalRequests: 1},
	}

	summaries := SummarizeRows(rows)

	var accept *SummaryRow
	for i := range summaries {
		if summaries[i].Site == "a.com" && summaries[i].Mode == model.ModeAccept && summaries[i].Metric == MetricTotalRequests {
			accept = &summaries[i]
		}
	}
	require.NotNil(t, accept)
	assert.Equal(t, 4, accept.Visits)
	assert.Equal(t, 2.0, accept.Min)
	assert.Equal(t, 5.0, accept.Median)
	assert.Equal(t, 8.0, accept.Max)
}

func TestSummarizeRows_ExcludesUndeterminedValues(t *testing.T) {
	rows := []MetricRow{
		{Site: "a.com", Mode: model.ModeAccept, VisitID: "1", ThirdPartyRequests: 3},
		{Site: "a.com", Mode: model.ModeAccept, VisitID: "2", ThirdPartyRequests: 0,
			Undetermined: []string{MetricThirdParty}},
	}

	summaries := SummarizeRows(rows)
	for _, summary := range summaries {
		if summary.Metric == MetricThirdParty {
			assert.Equal(t, 1, summary.Visits)
			assert.Equal(t, 3.0, summary.Min)
		}
	}
}
