package refdata

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadSiteList(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "sites.csv",
		"domain,url,country\n"+
			"news-site.com,https://news-site.com,US\n"+
			"www.zeitung.de,https://zeitung.de,de\n"+
			",,\n")

	sites, err := LoadSiteList(path)
	require.NoError(t, err)
	require.Len(t, sites, 2)

	assert.Equal(t, "US", sites["news-site.com"].Country)
	// The www prefix is normalized away and country codes are upper-cased.
	assert.Equal(t, "DE", sites["zeitung.de"].Country)
}

func TestLoadSiteList_FlexibleHeader(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "sites.csv",
		"site,country\nexample.org,FR\n")

	sites, err := LoadSiteList(path)
	require.NoError(t, err)
	assert.Equal(t, "FR", sites["example.org"].Country)
}

func TestLoadSiteList_MissingFileIsFatal(t *testing.T) {
	_, err := LoadSiteList(filepath.Join(t.TempDir(), "absent.csv"))
	assert.Error(t, err)
}

func TestLoadSiteList_NoDomainColumnIsFatal(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "sites.csv", "name,country\nfoo,US\n")

	_, err := LoadSiteList(path)
	assert.Error(t, err)
}
