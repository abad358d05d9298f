// Package corpus loads normalized visit records from directories of
// captured HAR files, one file per visit. The directory layout identifies
// the crawl mode: files under crawl_data_accept were captured under the
// accept strategy, and likewise for reject and block.
package corpus

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/pb33f/harhar"
	"go.uber.org/zap"

	"github.com/harlytics/harlytics/engine/model"
	"github.com/harlytics/harlytics/logging"
	"github.com/harlytics/harlytics/refdata"
)

// Loader turns HAR capture files into immutable visit records.
type Loader struct {
	sites  map[string]refdata.Site
	logger *zap.Logger
	intern *Interner
}

// NewLoader creates a loader. The site map stratifies visits by country
// and may be nil; the logger may be nil.
func NewLoader(sites map[string]refdata.Site, logger *zap.Logger) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{
		sites:  sites,
		logger: logger.With(logging.Component("corpus")),
		intern: NewInterner(),
	}
}

// LoadRoots loads every *.har file under the given roots, sorted by path
// for reproducibility. Malformed captures are logged and skipped so a
// single corrupted file cannot block the rest of the corpus; loading only
// fails when no visit could be read at all.
func (l *Loader) LoadRoots(roots []string) ([]*model.Visit, error) {
	var paths []string
	for _, root := range roots {
		found, err := findHARFiles(root)
		if err != nil {
			l.logger.Warn("skipping capture root", logging.Path(root), zap.Error(err))
			continue
		}
		paths = append(paths, found...)
	}
	sort.Strings(paths)

	var visits []*model.Visit
	for _, path := range paths {
		visit, err := l.LoadFile(path)
		if err != nil {
			l.logger.Warn("skipping malformed capture", logging.Path(path), zap.Error(err))
			continue
		}
		visits = append(visits, visit)
	}
	if len(visits) == 0 {
		return nil, fmt.Errorf("no readable HAR captures under %s", strings.Join(roots, ", "))
	}

	l.logger.Info("corpus loaded",
		logging.Count(len(visits)),
		zap.Int("interned_strings", l.intern.Size()))
	return visits, nil
}

// LoadFile loads a single HAR capture into a visit record.
func (l *Loader) LoadFile(path string) (*model.Visit, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read capture: %w", err)
	}

	var archive harhar.HAR
	if err := json.Unmarshal(raw, &archive); err != nil {
		return nil, fmt.Errorf("parse capture: %w", err)
	}

	visitID := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	site := normalizeSite(visitID)

	visit := &model.Visit{
		ID:         visitID,
		SiteDomain: site,
		Mode:       detectMode(path),
	}
	if meta, ok := l.sites[site]; ok {
		visit.Country = meta.Country
	}

	responseCookies := make(map[string]bool)
	requestCookies := make(map[string]string) // name -> host first seen on
	seenCookies := make(map[string]bool)

	for i := range archive.Log.Entries {
		entry := &archive.Log.Entries[i]
		request := l.convertEntry(entry)
		visit.Requests = append(visit.Requests, request)

		if !request.StartedAt.IsZero() {
			if visit.StartedAt.IsZero() || request.StartedAt.Before(visit.StartedAt) {
				visit.StartedAt = request.StartedAt
			}
			finished := request.StartedAt.Add(time.Duration(request.DurationMS * float64(time.Millisecond)))
			if finished.After(visit.FinishedAt) {
				visit.FinishedAt = finished
			}
		}

		for _, cookie := range entry.Response.Cookies {
			if cookie.Name == "" {
				continue
			}
			responseCookies[cookie.Name] = true
			key := request.Host + "\x00" + cookie.Name + "\x00h"
			if seenCookies[key] {
				continue
			}
			seenCookies[key] = true
			visit.Cookies = append(visit.Cookies, model.CookieObservation{
				VisitID: visitID,
				Host:    request.Host,
				Name:    l.intern.Intern(cookie.Name),
				Origin:  model.CookieFromHeader,
			})
		}
		for _, cookie := range entry.Request.Cookies {
			if cookie.Name == "" {
				continue
			}
			if _, ok := requestCookies[cookie.Name]; !ok {
				requestCookies[cookie.Name] = request.Host
			}
		}
	}

	// Cookies only ever seen outbound were written by script, not by a
	// Set-Cookie response.
	names := make([]string, 0, len(requestCookies))
	for name := range requestCookies {
		if !responseCookies[name] {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	for _, name := range names {
		visit.Cookies = append(visit.Cookies, model.CookieObservation{
			VisitID: visitID,
			Host:    requestCookies[name],
			Name:    l.intern.Intern(name),
			Origin:  model.CookieFromScript,
		})
	}

	return visit, nil
}

func (l *Loader) convertEntry(entry *harhar.Entry) model.Request {
	request := model.Request{
		URL:        entry.Request.URL,
		Method:     l.intern.Intern(entry.Request.Method),
		Status:     entry.Response.StatusCode,
		StatusText: l.intern.Intern(entry.Response.StatusText),
		ServerIP:   l.intern.Intern(entry.ServerIP),
		DurationMS: entry.Time,
		BodyBytes:  int64(entry.Response.BodySize),
		Headers:    model.NewHeader(),
	}

	if parsed, err := url.Parse(entry.Request.URL); err == nil {
		request.Host = l.intern.Intern(strings.ToLower(parsed.Hostname()))
	}

	if entry.Start != "" {
		if t, err := time.Parse(time.RFC3339, entry.Start); err == nil {
			request.StartedAt = t
		}
	}

	for _, header := range entry.Response.Headers {
		request.Headers.Add(l.intern.Intern(strings.ToLower(header.Name)), header.Value)
	}

	if request.Status >= 300 && request.Status < 400 {
		target := entry.Response.RedirectURL
		if target == "" {
			target = request.Headers.Get("Location")
		}
		request.RedirectTarget = resolveTarget(entry.Request.URL, target)
	}

	request.Blocked = isBlocked(request.Status, request.StatusText)
	return request
}

// resolveTarget turns a possibly relative redirect target into an absolute
// URL against the redirecting request.
func resolveTarget(base, target string) string {
	if target == "" {
		return ""
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return target
	}
	targetURL, err := url.Parse(target)
	if err != nil {
		return target
	}
	return baseURL.ResolveReference(targetURL).String()
}

// isBlocked applies the capture-layer heuristics for aborted or
// client-blocked requests.
func isBlocked(status int, statusText string) bool {
	if status <= 0 {
		return true
	}
	switch strings.ToLower(statusText) {
	case "failed", "aborted", "blocked", "net::err_aborted", "net::err_blocked_by_client":
		return true
	}
	return false
}

// detectMode derives the crawl mode from the capture path layout.
func detectMode(path string) model.CrawlMode {
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		part = strings.ToLower(part)
		for _, mode := range model.Modes() {
			if part == "crawl_data_"+string(mode) {
				return mode
			}
		}
	}
	return model.ModeUnknown
}

// normalizeSite reduces a visit identifier (the capture file stem) to the
// visited site's domain.
func normalizeSite(stem string) string {
	site := strings.ToLower(strings.TrimSpace(stem))
	site = strings.TrimPrefix(site, "www.")
	return site
}

func findHARFiles(root string) ([]string, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		if strings.HasSuffix(root, ".har") {
			return []string{root}, nil
		}
		return nil, fmt.Errorf("%s is neither a directory nor a HAR file", root)
	}

	var paths []string
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(d.Name(), ".har") {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return paths, nil
}
