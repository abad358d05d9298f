package engine

import (
	"context"
	"strings"
	"sync"

	"github.com/miekg/dns"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/harlytics/harlytics/logging"
)

// DNSRecord is the authoritative alias-chain resolution for one hostname
// within a run. Re-resolving the same hostname yields the same record.
type DNSRecord struct {
	// Hostname is the canonicalized queried hostname.
	Hostname string

	// Aliases is the CNAME chain in resolution order, excluding the
	// queried hostname itself.
	Aliases []string

	// IPs holds the resolved A/AAAA addresses.
	IPs []string

	// Unresolved marks hostnames that timed out or returned no data.
	// Unresolved records carry empty Aliases and IPs.
	Unresolved bool
}

// exchanger abstracts the DNS wire exchange so tests can stub resolution.
type exchanger interface {
	exchange(ctx context.Context, msg *dns.Msg) (*dns.Msg, error)
}

type wireExchanger struct {
	client *dns.Client
	server string
}

func (w *wireExchanger) exchange(ctx context.Context, msg *dns.Msg) (*dns.Msg, error) {
	reply, _, err := w.client.ExchangeContext(ctx, msg, w.server)
	return reply, err
}

// AliasResolver resolves hostnames to their canonical-name chains and final
// IP sets, memoized per run. Lookups for distinct hostnames run concurrently
// up to the configured limit; concurrent lookups for the same hostname are
// collapsed into a single resolution.
type AliasResolver struct {
	exch   exchanger
	opts   DNSOptions
	logger *zap.Logger

	mu    sync.RWMutex
	cache map[string]DNSRecord
	group singleflight.Group
	sem   chan struct{}
}

// NewAliasResolver creates an alias resolver backed by the configured
// recursive resolver. The logger may be nil.
func NewAliasResolver(opts DNSOptions, logger *zap.Logger) *AliasResolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.MaxAliasDepth <= 0 {
		opts.MaxAliasDepth = 10
	}
	return &AliasResolver{
		exch: &wireExchanger{
			client: &dns.Client{Timeout: opts.Timeout},
			server: opts.Resolver,
		},
		opts:   opts,
		logger: logger.With(logging.Component("dns")),
		cache:  make(map[string]DNSRecord),
		sem:    make(chan struct{}, opts.Concurrency),
	}
}

// ResolveAliasChain resolves the hostname's full alias chain and IP set.
// Failures never propagate: timeouts and NXDOMAIN yield an Unresolved
// record so absent DNS data cannot abort the run.
func (r *AliasResolver) ResolveAliasChain(ctx context.Context, hostname string) DNSRecord {
	key := canonicalHost(hostname)
	if key == "" {
		return DNSRecord{Hostname: hostname, Unresolved: true}
	}

	r.mu.RLock()
	record, ok := r.cache[key]
	r.mu.RUnlock()
	if ok {
		return record
	}

	result, _, _ := r.group.Do(key, func() (interface{}, error) {
		// Re-check under singleflight; a prior flight may have landed.
		r.mu.RLock()
		cached, hit := r.cache[key]
		r.mu.RUnlock()
		if hit {
			return cached, nil
		}

		r.sem <- struct{}{}
		record := r.resolve(ctx, key)
		<-r.sem

		r.mu.Lock()
		r.cache[key] = record
		r.mu.Unlock()
		return record, nil
	})

	return result.(DNSRecord)
}

// CacheSize returns the number of memoized hostnames.
func (r *AliasResolver) CacheSize() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.cache)
}

func (r *AliasResolver) resolve(ctx context.Context, host string) DNSRecord {
	if r.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.opts.Timeout)
		defer cancel()
	}

	record := DNSRecord{Hostname: host}
	seen := map[string]bool{host: true}

	for _, qtype := range []uint16{dns.TypeA, dns.TypeAAAA} {
		msg := new(dns.Msg)
		msg.SetQuestion(dns.Fqdn(host), qtype)
		msg.RecursionDesired = true

		reply, err := r.exch.exchange(ctx, msg)
		if err != nil {
			r.logger.Debug("dns exchange failed", logging.Host(host), zap.Error(err))
			continue
		}
		if reply.Rcode != dns.RcodeSuccess {
			continue
		}

		// Recursive resolvers return the full CNAME chain in the answer
		// section; order it by following owner -> target links.
		current := dns.Fqdn(host)
		for depth := 0; depth < r.opts.MaxAliasDepth; depth++ {
			next := ""
			for _, rr := range reply.Answer {
				cname, ok := rr.(*dns.CNAME)
				if !ok || !strings.EqualFold(rr.Header().Name, current) {
					continue
				}
				next = cname.Target
				break
			}
			if next == "" {
				break
			}
			alias := canonicalHost(next)
			if seen[alias] {
				break
			}
			seen[alias] = true
			record.Aliases = appendUnique(record.Aliases, alias)
			current = next
		}

		for _, rr := range reply.Answer {
			switch addr := rr.(type) {
			case *dns.A:
				record.IPs = appendUnique(record.IPs, addr.A.String())
			case *dns.AAAA:
				record.IPs = appendUnique(record.IPs, addr.AAAA.String())
			}
		}
	}

	if len(record.Aliases) == 0 && len(record.IPs) == 0 {
		return DNSRecord{Hostname: host, Unresolved: true}
	}
	return record
}

func appendUnique(values []string, value string) []string {
	for _, have := range values {
		if have == value {
			return values
		}
	}
	return append(values, value)
}
