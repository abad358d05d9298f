package refdata

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harlytics/harlytics/engine"
)

const testBlocklist = `{
  "categories": {
    "Advertising": [
      {"AdNetwork Inc": {"https://adnetwork.com/": ["adnetwork.com", "adnet-cdn.com"]}}
    ],
    "Analytics": [
      {"Metrics": {"https://metrics.io/": ["metrics.io"]}}
    ],
    "FingerprintingInvasive": [
      {"Printy": {"https://printy.example.com/": ["printy-tracker.com"]}}
    ]
  }
}`

const testEntities = `{
  "entities": {
    "AdNetwork Holdings": {
      "properties": ["adnetwork.com"],
      "resources": ["adnet-cdn.com", "adnet-extra.com"]
    }
  }
}`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadEntityMap_BlocklistCategories(t *testing.T) {
	dir := t.TempDir()
	blocklist := writeFile(t, dir, "blocklist.json", testBlocklist)

	entities, err := LoadEntityMap(blocklist, "", nil)
	require.NoError(t, err)

	ad := entities.Resolve("sub.adnetwork.com")
	assert.True(t, ad.HasCategory(engine.CategoryAdvertising))
	assert.Equal(t, "AdNetwork Inc", ad.Name)

	metrics := entities.Resolve("metrics.io")
	assert.True(t, metrics.HasCategory(engine.CategoryAnalytics))

	printy := entities.Resolve("printy-tracker.com")
	assert.True(t, printy.HasCategory(engine.CategoryFingerprintingInvasive))
}

func TestLoadEntityMap_EntityFileRefinesNames(t *testing.T) {
	dir := t.TempDir()
	blocklist := writeFile(t, dir, "blocklist.json", testBlocklist)
	entityFile := writeFile(t, dir, "entities.json", testEntities)

	entities, err := LoadEntityMap(blocklist, entityFile, nil)
	require.NoError(t, err)

	// The entities file wins for organization names and still keeps the
	// blocklist's category tags.
	ad := entities.Resolve("adnetwork.com")
	assert.Equal(t, "AdNetwork Holdings", ad.Name)
	assert.True(t, ad.HasCategory(engine.CategoryAdvertising))

	// Domains only in the entities file resolve by name with no tags.
	extra := entities.Resolve("adnet-extra.com")
	assert.Equal(t, "AdNetwork Holdings", extra.Name)
	assert.False(t, extra.IsTracker())
}

func TestLoadEntityMap_MissingBlocklistIsFatal(t *testing.T) {
	_, err := LoadEntityMap(filepath.Join(t.TempDir(), "absent.json"), "", nil)
	assert.Error(t, err)
}

func TestLoadEntityMap_MalformedBlocklistIsFatal(t *testing.T) {
	dir := t.TempDir()
	blocklist := writeFile(t, dir, "broken.json", `{"categories": "nope"`)

	_, err := LoadEntityMap(blocklist, "", nil)
	assert.Error(t, err)
}

func TestLoadEntityMap_EmptyCategoriesIsFatal(t *testing.T) {
	dir := t.TempDir()
	blocklist := writeFile(t, dir, "empty.json", `{"categories": {}}`)

	_, err := LoadEntityMap(blocklist, "", nil)
	assert.Error(t, err)
}

func TestNormalizeDomain(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Example.COM", "example.com"},
		{"https://www.example.com/path", "example.com"},
		{"www.example.com", "example.com"},
		{"AdNetwork Inc", ""},
		{"", ""},
		{"no-dots", ""},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, normalizeDomain(tc.in), "input %q", tc.in)
	}
}
