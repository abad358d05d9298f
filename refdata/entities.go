// Package refdata loads the static reference data an analysis run depends
// on: the domain ownership map and the site list. Missing or malformed
// reference data is fatal at run start; all downstream metrics depend on it.
package refdata

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/harlytics/harlytics/engine"
)

// blocklist mirrors the Disconnect blocklist shape: categories mapping to
// lists of entities, each entity mapping its homepage URL to owned domains.
// The nesting varies across blocklist versions, so the values are walked
// generically.
type blocklist struct {
	Categories map[string]json.RawMessage `json:"categories"`
}

// entityFile mirrors the Disconnect entities shape: entity names mapping
// to their owned domains, properties and resources.
type entityFile struct {
	Entities map[string]struct {
		Domains    []string `json:"domains"`
		Properties []string `json:"properties"`
		Resources  []string `json:"resources"`
	} `json:"entities"`
}

// LoadEntityMap builds the domain ownership map from a Disconnect-format
// blocklist file and an optional entities file. The blocklist provides
// category tags, the entities file refines organization names. An
// unreadable or malformed blocklist is a fatal configuration error.
func LoadEntityMap(blocklistPath, entitiesPath string, logger *zap.Logger) (*engine.EntityMap, error) {
	raw, err := os.ReadFile(blocklistPath)
	if err != nil {
		return nil, fmt.Errorf("read blocklist %s: %w", blocklistPath, err)
	}

	var list blocklist
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, fmt.Errorf("parse blocklist %s: %w", blocklistPath, err)
	}
	if len(list.Categories) == 0 {
		return nil, fmt.Errorf("blocklist %s declares no categories", blocklistPath)
	}

	owners := make(map[string]engine.DomainOwner)
	for category, payload := range list.Categories {
		var decoded interface{}
		if err := json.Unmarshal(payload, &decoded); err != nil {
			return nil, fmt.Errorf("parse blocklist category %s: %w", category, err)
		}
		walkCategory(decoded, engine.Category(category), "", owners)
	}

	if entitiesPath != "" {
		if err := applyEntityNames(entitiesPath, owners); err != nil {
			return nil, err
		}
	}

	return engine.NewEntityMap(owners, logger), nil
}

// walkCategory registers every domain found in a category payload. The
// current entity name is carried down from the nearest enclosing map key
// that is not itself a domain or URL.
func walkCategory(payload interface{}, category engine.Category, entity string, owners map[string]engine.DomainOwner) {
	switch value := payload.(type) {
	case string:
		register(owners, value, entity, category)
	case []interface{}:
		for _, item := range value {
			walkCategory(item, category, entity, owners)
		}
	case map[string]interface{}:
		for key, nested := range value {
			childEntity := entity
			if domain := normalizeDomain(key); domain != "" {
				register(owners, key, entity, category)
			} else if entity == "" {
				childEntity = key
			}
			walkCategory(nested, category, childEntity, owners)
		}
	}
}

// applyEntityNames overlays organization names from the entities file onto
// the ownership map, adding records for domains the blocklist omitted.
func applyEntityNames(path string, owners map[string]engine.DomainOwner) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read entities %s: %w", path, err)
	}

	var file entityFile
	if err := json.Unmarshal(raw, &file); err != nil {
		return fmt.Errorf("parse entities %s: %w", path, err)
	}

	for name, entity := range file.Entities {
		for _, group := range [][]string{entity.Domains, entity.Properties, entity.Resources} {
			for _, item := range group {
				domain := normalizeDomain(item)
				if domain == "" {
					continue
				}
				owner := owners[domain]
				owner.Entity = name
				owners[domain] = owner
			}
		}
	}
	return nil
}

func register(owners map[string]engine.DomainOwner, raw, entity string, category engine.Category) {
	domain := normalizeDomain(raw)
	if domain == "" {
		return
	}
	owner := owners[domain]
	if owner.Entity == "" {
		owner.Entity = entity
	}
	if owner.Entity == "" {
		owner.Entity = domain
	}
	if !hasCategory(owner.Categories, category) {
		owner.Categories = append(owner.Categories, category)
	}
	owners[domain] = owner
}

func hasCategory(categories []engine.Category, category engine.Category) bool {
	for _, have := range categories {
		if have == category {
			return true
		}
	}
	return false
}

// normalizeDomain lowers a raw domain or URL to a bare hostname without a
// www prefix. Strings that do not look like domains yield "".
func normalizeDomain(raw string) string {
	candidate := strings.ToLower(strings.TrimSpace(raw))
	if candidate == "" {
		return ""
	}
	if strings.Contains(candidate, "://") {
		parsed, err := url.Parse(candidate)
		if err != nil || parsed.Hostname() == "" {
			return ""
		}
		candidate = parsed.Hostname()
	}
	candidate = strings.TrimPrefix(candidate, "www.")
	candidate = strings.TrimSuffix(candidate, ".")
	if !strings.Contains(candidate, ".") || strings.ContainsAny(candidate, " /\\") {
		return ""
	}
	return candidate
}
