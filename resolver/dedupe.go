package resolver

import (
	"sync"
	"time"
)

// maxFlightLifetime bounds how long a leader may hold a gate key. An
// entry older than this is considered stuck and may be taken over.
var maxFlightLifetime = 30 * time.Second

// queryGate is a process-wide keyed try-lock admitting at most one
// in-flight resolution per query key. Acquisition never blocks:
// callers that do not win leadership proceed as followers.
type queryGate struct {
	lock    sync.Mutex
	flights map[string]*flight
}

type flight struct {
	started time.Time
}

var dupGate = &queryGate{flights: make(map[string]*flight)}

// tryLead attempts to take leadership for key. On success it returns
// ok=true and a release function that must be called exactly once, on
// every exit path, to keep the flight table bounded.
func (g *queryGate) tryLead(key string) (release func(), ok bool) {
	g.lock.Lock()
	defer g.lock.Unlock()

	if current, exists := g.flights[key]; exists {
		if time.Since(current.started) < maxFlightLifetime {
			return nil, false
		}
		// Stuck leader, take over. The release below is bound to the
		// flight value so a late release by the old leader cannot drop
		// the new entry.
	}

	f := &flight{started: time.Now()}
	g.flights[key] = f

	return func() {
		g.lock.Lock()
		defer g.lock.Unlock()
		if g.flights[key] == f {
			delete(g.flights, key)
		}
	}, true
}

func (g *queryGate) size() int {
	g.lock.Lock()
	defer g.lock.Unlock()
	return len(g.flights)
}
