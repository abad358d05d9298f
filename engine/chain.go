package engine

import "github.com/harlytics/harlytics/engine/model"

// ChainState classifies a redirect chain. The classification is exhaustive:
// every chain is complete, incomplete, or cyclic.
type ChainState string

const (
	// ChainComplete ends at a terminal non-redirect response.
	ChainComplete ChainState = "complete"

	// ChainIncomplete ends at a redirect whose target was never observed
	// as a subsequent request, e.g. because it was blocked or aborted.
	ChainIncomplete ChainState = "incomplete"

	// ChainCyclic would revisit a request already in the chain. Treated
	// as a data-quality fault, never expanded.
	ChainCyclic ChainState = "cyclic"
)

// RedirectChain is an ordered sequence of requests within one visit linked
// by redirect targets.
type RedirectChain struct {
	// VisitID references the owning visit.
	VisitID string

	// Hops holds the chained requests, origin first. Never empty.
	Hops []*model.Request

	// State classifies how the chain terminated.
	State ChainState

	// FirstEntity and LastEntity name the entities resolved for the first
	// and last hop hostnames.
	FirstEntity string
	LastEntity  string

	// CrossEntity is true when the first and last hop resolve to
	// different entities. Set once per chain regardless of hop count.
	CrossEntity bool
}

// Length returns the number of hops in the chain.
func (c *RedirectChain) Length() int {
	return len(c.Hops)
}

// BuildChains partitions a visit's requests into redirect chains. A request
// starts a new chain unless a prior redirecting request already claimed it
// as its target; chains are linked by matching a redirect's declared target
// URL against the URL of a later request in the same visit. Every request
// belongs to exactly one chain.
func BuildChains(visit *model.Visit, entities *EntityMap) []RedirectChain {
	requests := visit.Requests
	claimed := make([]bool, len(requests))
	var chains []RedirectChain

	for start := range requests {
		if claimed[start] {
			continue
		}

		chain := RedirectChain{VisitID: visit.ID, State: ChainComplete}
		inChain := make(map[int]bool)

		current := start
		for {
			claimed[current] = true
			inChain[current] = true
			chain.Hops = append(chain.Hops, &requests[current])

			req := &requests[current]
			if !req.IsRedirect() {
				break
			}

			next, cyclic := findTarget(requests, current, req.RedirectTarget, claimed, inChain)
			if cyclic {
				chain.State = ChainCyclic
				break
			}
			if next < 0 {
				chain.State = ChainIncomplete
				break
			}
			current = next
		}

		first := chain.Hops[0]
		last := chain.Hops[len(chain.Hops)-1]
		chain.FirstEntity = entities.Resolve(first.Host).Name
		chain.LastEntity = entities.Resolve(last.Host).Name
		chain.CrossEntity = len(chain.Hops) > 1 && chain.FirstEntity != chain.LastEntity

		chains = append(chains, chain)
	}

	return chains
}

// findTarget locates the request a redirect points at. It scans forward of
// the redirecting request, skipping requests already claimed by another
// chain.
func findTarget(requests []model.Request, from int, target string, claimed []bool, inChain map[int]bool) (int, bool) {
	for j := from + 1; j < len(requests); j++ {
		if requests[j].URL != target || claimed[j] {
			continue
		}
		return j, false
	}
	// The target may also match a request earlier in the current chain
	// (e.g. A -> B -> A): classify as cyclic rather than incomplete.
	for idx := range inChain {
		if requests[idx].URL == target {
			return -1, true
		}
	}
	return -1, false
}
