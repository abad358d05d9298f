package engine

import "sync"

// FaultKind places a per-visit fault in the error taxonomy.
type FaultKind string

const (
	// FaultData marks malformed visit data: unparseable URLs or
	// hostnames, cyclic redirect chains.
	FaultData FaultKind = "data"

	// FaultResolution marks expected resolution misses: DNS timeouts,
	// NXDOMAIN, unknown entity domains.
	FaultResolution FaultKind = "resolution"
)

// Fault records one non-fatal problem encountered while analyzing a visit.
// Faults never abort the run; they are collected into the run diagnostics
// so a single corrupted capture cannot invalidate the corpus.
type Fault struct {
	Kind    FaultKind
	VisitID string
	Detail  string
}

// FaultLog collects faults from concurrent visit analyses.
type FaultLog struct {
	mu     sync.Mutex
	faults []Fault
}

// Record appends a fault to the log.
func (l *FaultLog) Record(kind FaultKind, visitID, detail string) {
	l.mu.Lock()
	l.faults = append(l.faults, Fault{Kind: kind, VisitID: visitID, Detail: detail})
	l.mu.Unlock()
}

// Faults returns a copy of the collected faults.
func (l *FaultLog) Faults() []Fault {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Fault(nil), l.faults...)
}

// Len returns the number of collected faults.
func (l *FaultLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.faults)
}
