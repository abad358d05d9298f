package model

import "time"

// CrawlMode identifies the consent-interaction strategy applied before capture.
type CrawlMode string

const (
	// ModeAccept accepted the consent dialog before capture.
	ModeAccept CrawlMode = "accept"

	// ModeReject rejected the consent dialog before capture.
	ModeReject CrawlMode = "reject"

	// ModeBlock crawled with a tracker blocklist active.
	ModeBlock CrawlMode = "block"

	// ModeUnknown is used when the capture layout does not identify a mode.
	ModeUnknown CrawlMode = "unknown"
)

// Modes lists the known crawl modes in canonical order.
func Modes() []CrawlMode {
	return []CrawlMode{ModeAccept, ModeReject, ModeBlock}
}

// ConsentAction returns the consent-handling label recorded by the crawler
// for this mode, or "" for unknown modes.
func (m CrawlMode) ConsentAction() string {
	switch m {
	case ModeAccept:
		return "accept_all"
	case ModeReject:
		return "reject_all"
	case ModeBlock:
		return "disconnect_blocklist"
	}
	return ""
}

// Visit represents one automated browsing session against a site under one
// crawl mode. A Visit is immutable once loaded; analysis components only
// read it and record their results elsewhere.
type Visit struct {
	// ID identifies the visit, derived from the capture file name.
	ID string

	// SiteDomain is the normalized domain of the visited site.
	SiteDomain string

	// Mode is the consent strategy this visit was captured under.
	Mode CrawlMode

	// Country is the ISO code of the site per the site list, "" if unknown.
	Country string

	// StartedAt is the earliest request start observed in the visit.
	StartedAt time.Time

	// FinishedAt is the latest request start plus duration observed.
	FinishedAt time.Time

	// Requests holds every captured request in capture order.
	Requests []Request

	// Cookies holds the cookie observations collected across the visit.
	Cookies []CookieObservation
}

// Request is one captured request/response pair within a Visit.
type Request struct {
	// URL of the request, absolute.
	URL string

	// Host is the hostname parsed from URL, "" when the URL is unparseable.
	Host string

	// Method of the HTTP request, in caps.
	Method string

	// Status of the response, 0 when the request never completed.
	Status int

	// StatusText describes the response status.
	StatusText string

	// Headers holds the response headers with case-insensitive lookup.
	Headers Header

	// ServerIP is the connected server address, "" when not captured.
	ServerIP string

	// StartedAt is the request start time.
	StartedAt time.Time

	// DurationMS is the total round-trip time in milliseconds.
	DurationMS float64

	// BodyBytes is the response body size as sent.
	BodyBytes int64

	// RedirectTarget is the absolute URL from the redirect response,
	// "" when the response was not a redirect.
	RedirectTarget string

	// Blocked is true when the request was aborted or blocked client-side.
	Blocked bool
}

// IsRedirect reports whether the response redirects to another URL.
func (r *Request) IsRedirect() bool {
	return r.Status >= 300 && r.Status < 400 && r.RedirectTarget != ""
}

// CookieOrigin describes how a cookie came to exist.
type CookieOrigin string

const (
	// CookieFromHeader marks cookies issued via a Set-Cookie response header.
	CookieFromHeader CookieOrigin = "set-cookie"

	// CookieFromScript marks cookies only ever seen on outgoing requests,
	// i.e. written by script rather than a server response.
	CookieFromScript CookieOrigin = "script"
)

// CookieObservation records one cookie seen during a Visit.
type CookieObservation struct {
	// VisitID references the owning visit.
	VisitID string

	// Host is the hostname the cookie was observed against.
	Host string

	// Name of the cookie.
	Name string

	// Origin describes whether the cookie arrived via header or script.
	Origin CookieOrigin
}
