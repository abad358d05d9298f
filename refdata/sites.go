package refdata

import (
	"encoding/csv"
	"fmt"
	"os"
	"strings"
)

// Site is one site-list row: the visited domain and its metadata.
type Site struct {
	Domain  string
	URL     string
	Country string
}

// LoadSiteList reads the site list CSV, keyed by normalized domain. The
// header row is matched flexibly: the domain may appear under "domain",
// "site", "url" or "homepage", the country under "country". An unreadable
// or headerless file is a fatal configuration error; a site absent from
// the returned map simply has an unknown country.
func LoadSiteList(path string) (map[string]Site, error) {
	handle, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open site list %s: %w", path, err)
	}
	defer handle.Close()

	reader := csv.NewReader(handle)
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse site list %s: %w", path, err)
	}
	if len(rows) < 1 {
		return nil, fmt.Errorf("site list %s is empty", path)
	}

	header := rows[0]
	domainCol, countryCol, urlCol := -1, -1, -1
	for i, name := range header {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "domain", "site":
			if domainCol < 0 {
				domainCol = i
			}
		case "url", "homepage":
			if urlCol < 0 {
				urlCol = i
			}
		case "country":
			countryCol = i
		}
	}
	if domainCol < 0 && urlCol < 0 {
		return nil, fmt.Errorf("site list %s has no domain column", path)
	}

	sites := make(map[string]Site, len(rows)-1)
	for _, row := range rows[1:] {
		raw := ""
		if domainCol >= 0 && domainCol < len(row) {
			raw = row[domainCol]
		}
		if raw == "" && urlCol >= 0 && urlCol < len(row) {
			raw = row[urlCol]
		}
		domain := normalizeDomain(raw)
		if domain == "" {
			continue
		}

		site := Site{Domain: domain}
		if urlCol >= 0 && urlCol < len(row) {
			site.URL = strings.TrimSpace(row[urlCol])
		}
		if countryCol >= 0 && countryCol < len(row) {
			site.Country = strings.ToUpper(strings.TrimSpace(row[countryCol]))
		}
		sites[domain] = site
	}
	return sites, nil
}
