package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testEntityMap(t *testing.T) *EntityMap {
	t.Helper()
	return NewEntityMap(map[string]DomainOwner{
		"adnetwork.com": {Entity: "AdNetwork Inc", Categories: []Category{CategoryAdvertising}},
		"metrics.io":    {Entity: "Metrics", Categories: []Category{CategoryAnalytics, CategoryFingerprintingGeneral}},
		"partner.com":   {Entity: "Partner Org"},
	}, nil)
}

func TestResolve_MappedDomain(t *testing.T) {
	entities := testEntityMap(t)

	entity := entities.Resolve("adnetwork.com")
	assert.Equal(t, "AdNetwork Inc", entity.Name)
	assert.True(t, entity.IsTracker())
	assert.True(t, entity.HasCategory(CategoryAdvertising))
}

func TestResolve_SubdomainWalksToMappedSuffix(t *testing.T) {
	entities := testEntityMap(t)

	entity := entities.Resolve("track.eu.adnetwork.com")
	assert.Equal(t, "AdNetwork Inc", entity.Name)
}

func TestResolve_UnmappedDomainIsSelfOwned(t *testing.T) {
	entities := testEntityMap(t)

	entity := entities.Resolve("cdn.longtail-news.org")
	assert.Equal(t, "longtail-news.org", entity.Name)
	assert.False(t, entity.IsTracker())
	assert.False(t, entity.Unknown)
}

func TestResolve_EmptyHostnameYieldsUnknownSentinel(t *testing.T) {
	entities := testEntityMap(t)

	entity := entities.Resolve("")
	assert.True(t, entity.Unknown)
	assert.False(t, entity.IsTracker())
}

func TestResolve_IsPure(t *testing.T) {
	entities := testEntityMap(t)

	first := entities.Resolve("a.metrics.io")
	second := entities.Resolve("a.metrics.io")
	assert.Equal(t, first, second)
}

func TestResolve_CaseAndTrailingDotInsensitive(t *testing.T) {
	entities := testEntityMap(t)

	assert.Equal(t, "Metrics", entities.Resolve("METRICS.IO.").Name)
}

func TestIsThirdParty(t *testing.T) {
	entities := testEntityMap(t)

	tests := []struct {
		name        string
		requestHost string
		siteDomain  string
		want        bool
	}{
		{"same host", "news.example.com", "news.example.com", false},
		{"subdomain of site", "static.news-site.com", "news-site.com", false},
		{"different registrable domain", "cdn.adnetwork.com", "news-site.com", true},
		{"site never third-party to itself", "adnetwork.com", "adnetwork.com", false},
		{"empty request host", "", "news-site.com", false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, entities.IsThirdParty(tc.requestHost, tc.siteDomain))
		})
	}
}

func TestRegistrableDomain(t *testing.T) {
	require.Equal(t, "example.com", RegistrableDomain("a.b.example.com"))
	require.Equal(t, "example.co.uk", RegistrableDomain("shop.example.co.uk"))
	require.Equal(t, "example.com", RegistrableDomain("EXAMPLE.COM."))
	require.Equal(t, "", RegistrableDomain(""))
}
