// Package store persists analysis results to SQLite so downstream tooling
// can query them without re-running the engine.
package store

import (
	"database/sql"
	"embed"
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/harlytics/harlytics/engine"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store wraps the results database.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the results database and applies pending
// migrations.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA synchronous=NORMAL;",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("exec pragma %q: %w", pragma, err)
		}
	}

	if err := applyMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply migrations: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func applyMigrations(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		applied_at INTEGER NOT NULL
	)`)
	if err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	var migrations []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			migrations = append(migrations, e.Name())
		}
	}
	sort.Strings(migrations)

	for _, name := range migrations {
		version, err := parseVersion(name)
		if err != nil {
			return fmt.Errorf("parse version from %s: %w", name, err)
		}

		var count int
		err = db.QueryRow("SELECT COUNT(*) FROM schema_migrations WHERE version = ?", version).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %d: %w", version, err)
		}
		if count > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile(filepath.Join("migrations", name))
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}

		if _, err := db.Exec(string(content)); err != nil {
			return fmt.Errorf("exec migration %s: %w", name, err)
		}

		if _, err := db.Exec("INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)",
			version, time.Now().Unix()); err != nil {
			return fmt.Errorf("record migration %d: %w", version, err)
		}
	}

	return nil
}

func parseVersion(name string) (int, error) {
	base := strings.TrimSuffix(name, ".sql")
	prefix, _, _ := strings.Cut(base, "_")
	return strconv.Atoi(prefix)
}

// SaveRun writes a full run result in one transaction.
func (s *Store) SaveRun(result *engine.RunResult) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	for i := range result.Rows {
		row := &result.Rows[i]
		_, err := tx.Exec(`INSERT INTO metric_rows (
			site, mode, visit_id, country,
			total_requests, first_party_requests, third_party_requests,
			third_party_domains, third_party_entities,
			cookies_set_cookie, cookies_script,
			permissions_policy_deviations, referrer_policy_deviations,
			server_ips, blocked_requests, error_responses,
			total_latency_ms, total_body_bytes,
			cross_entity_chains, cloaked_hosts, undetermined
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			row.Site, string(row.Mode), row.VisitID, row.Country,
			row.TotalRequests, row.FirstPartyRequests, row.ThirdPartyRequests,
			row.ThirdPartyDomains, row.ThirdPartyEntities,
			row.CookieHeaderCount, row.CookieScriptCount,
			row.PermissionsPolicyCount, row.ReferrerPolicyCount,
			row.ServerIPCount, row.BlockedRequests, row.ErrorResponses,
			row.TotalLatencyMS, row.TotalBodyBytes,
			row.CrossEntityChains, row.CloakedHosts,
			strings.Join(row.Undetermined, ";"))
		if err != nil {
			return fmt.Errorf("insert metric row: %w", err)
		}
	}

	for i := range result.Chains {
		chain := &result.Chains[i]
		hops := make([]string, 0, len(chain.Hops))
		for _, hop := range chain.Hops {
			hops = append(hops, hop.URL)
		}
		_, err := tx.Exec(`INSERT INTO redirect_chains (
			visit_id, length, state, cross_entity, first_entity, last_entity, hops
		) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			chain.VisitID, chain.Length(), string(chain.State),
			boolToInt(chain.CrossEntity), chain.FirstEntity, chain.LastEntity,
			strings.Join(hops, " -> "))
		if err != nil {
			return fmt.Errorf("insert chain: %w", err)
		}
	}

	for _, finding := range result.Cloaking {
		categories := make([]string, 0, len(finding.Categories))
		for _, category := range finding.Categories {
			categories = append(categories, string(category))
		}
		_, err := tx.Exec(`INSERT INTO cloaking_findings (
			visit_id, site, hostname, alias, entity, categories
		) VALUES (?, ?, ?, ?, ?, ?)`,
			finding.VisitID, finding.Site, finding.Hostname,
			finding.Alias, finding.Entity, strings.Join(categories, ";"))
		if err != nil {
			return fmt.Errorf("insert cloaking finding: %w", err)
		}
	}

	for _, cookie := range result.Cookies {
		_, err := tx.Exec(`INSERT INTO cookie_observations (visit_id, host, name, origin)
			VALUES (?, ?, ?, ?)`,
			cookie.VisitID, cookie.Host, cookie.Name, string(cookie.Origin))
		if err != nil {
			return fmt.Errorf("insert cookie observation: %w", err)
		}
	}

	for _, fault := range result.Faults {
		_, err := tx.Exec(`INSERT INTO faults (kind, visit_id, detail) VALUES (?, ?, ?)`,
			string(fault.Kind), fault.VisitID, fault.Detail)
		if err != nil {
			return fmt.Errorf("insert fault: %w", err)
		}
	}

	return tx.Commit()
}

// CountMetricRows returns the number of persisted metric rows.
func (s *Store) CountMetricRows() (int, error) {
	var count int
	err := s.db.QueryRow("SELECT COUNT(*) FROM metric_rows").Scan(&count)
	return count, err
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
