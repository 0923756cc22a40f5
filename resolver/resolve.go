package resolver

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/rs/zerolog"
)

var (
	// ErrNoAnswers is returned when every resolution stage was
	// exhausted without a valid result.
	ErrNoAnswers = errors.New("no answers found")
	// ErrMissingName is returned when the caller omitted the query name.
	ErrMissingName = errors.New("missing query name")
	// ErrNoClient is returned when the resolver was created without a
	// DNS client.
	ErrNoClient = errors.New("resolver has no dns client")
	// ErrNoNameservers is returned when no nameservers are configured.
	ErrNoNameservers = errors.New("no nameservers configured")
)

var log = zerolog.Nop()

// SetLogger replaces the package logger. The default discards all
// output.
func SetLogger(logger zerolog.Logger) {
	log = logger
}

// UpstreamProvider supplies statically configured backend-group peers
// in "host:port" form for bare service names.
type UpstreamProvider interface {
	GetPrimaryPeers(name string) ([]string, error)
}

// Resolver orchestrates resolutions for one request context. Create
// one per request. Phases that cannot safely allocate a fresh resolver
// reuse a pinned one via WithResolver/FromContext instead of sharing
// instances ambiently.
type Resolver struct {
	Client    Client
	Cache     Cache
	Upstreams UpstreamProvider
	Options   QueryOptions
}

type resolverCtxKey struct{}

// WithResolver pins a resolver to the context for reuse across phase
// boundaries.
func WithResolver(ctx context.Context, r *Resolver) context.Context {
	return context.WithValue(ctx, resolverCtxKey{}, r)
}

// FromContext returns the resolver pinned to the context, if any.
func FromContext(ctx context.Context) (*Resolver, bool) {
	r, ok := ctx.Value(resolverCtxKey{}).(*Resolver)
	return r, ok
}

// GetServers resolves qname into server records. A positive
// overridePort takes precedence over per-answer ports.
//
// Concurrent calls for the same name and query type are collapsed:
// one caller leads and may query DNS, the others are restricted to
// (possibly stale) cache data and never wait for the leader. The
// returned list is always usable, also when an error is reported.
func (r *Resolver) GetServers(ctx context.Context, qname string, overridePort int) (*ServerList, error) {
	if qname == "" {
		return &ServerList{}, ErrMissingName
	}
	if r.Client == nil {
		return &ServerList{QName: qname}, ErrNoClient
	}

	key := cacheKey(qname, r.Options.qtype())
	release, leader := dupGate.tryLead(key)
	if leader {
		defer release()
	} else {
		metricDedupFollowers.Inc()
	}

	set, err := r.lookup(ctx, qname, !leader)
	if err != nil {
		return &ServerList{QName: qname}, err
	}
	if !set.Valid() {
		return &ServerList{QName: qname, Answers: set}, ErrNoAnswers
	}
	return convertAnswers(set, qname, overridePort), nil
}

// lookup runs the staged resolution chain. Each stage short-circuits
// on a valid answer set; stage errors are swallowed while a later
// fallback exists, only the final stage's error reaches the caller.
//
// allowStale marks a follower lookup: expired cache rows are accepted
// and no fresh DNS query is issued, as the leader's in-flight query
// covers that.
func (r *Resolver) lookup(ctx context.Context, qname string, allowStale bool) (*AnswerSet, error) {
	// Literal IPv4 addresses resolve to themselves, with no cache or
	// DNS interaction.
	if isIPv4Literal(qname) {
		metricLiteralAnswers.Inc()
		return &AnswerSet{
			Answers: []Answer{{Address: qname, TTL: TTLNeverExpire}},
		}, nil
	}

	qtype := r.Options.qtype()

	// Local answer cache.
	if r.Cache != nil {
		set, err := r.Cache.Get(cacheKey(qname, qtype), allowStale)
		switch {
		case err == nil && set.Valid():
			metricCacheHits.Inc()
			return set, nil
		case err != nil && !errors.Is(err, ErrCacheMiss):
			log.Warn().Err(err).Str("qname", qname).Msg("cache read failed")
		}
		metricCacheMisses.Inc()
	}

	// Bare service names may match a configured backend group.
	// Operator-declared topology beats external DNS and bypasses the
	// cache entirely.
	if r.Upstreams != nil && !strings.Contains(qname, ".") {
		peers, err := r.Upstreams.GetPrimaryPeers(qname)
		if err != nil {
			log.Debug().Err(err).Str("qname", qname).Msg("no backend group match")
		} else if set := answersFromPeers(peers); set.Valid() {
			return set, nil
		}
	}

	if allowStale {
		// Follower without data: report the gap instead of waiting for
		// the leader or racing it with another query.
		return nil, nil
	}

	// DNS with search-domain expansion. The first valid candidate wins
	// and is cached under the canonical query name, not the expanded
	// candidate.
	var lastErr error
	for _, candidate := range searchList(SearchDomains(), qname) {
		metricDNSQueries.Inc()
		set, err := r.Client.Query(ctx, candidate, r.Options)
		if err != nil {
			lastErr = err
			log.Debug().Err(err).Str("candidate", candidate).Msg("dns query failed")
			continue
		}
		if !set.Valid() {
			continue
		}

		if r.Cache != nil {
			if err := r.Cache.Save(qname, qtype, set); err != nil {
				log.Warn().Err(err).Str("qname", qname).Msg("failed to cache answers")
			}
		}
		return set, nil
	}
	return nil, lastErr
}

// isIPv4Literal reports whether qname is a dotted-quad IPv4 address.
func isIPv4Literal(qname string) bool {
	if strings.Contains(qname, ":") {
		return false
	}
	ip := net.ParseIP(qname)
	return ip != nil && ip.To4() != nil
}
