package resolver

import (
	"context"
	"strings"
	"time"

	"github.com/miekg/dns"
)

var defaultRequestTimeout = 3 * time.Second

// QueryOptions carry per-resolver query parameters.
type QueryOptions struct {
	// QType is the DNS record type to query for, dns.TypeA when unset.
	QType uint16
}

func (opts QueryOptions) qtype() uint16 {
	if opts.QType == 0 {
		return dns.TypeA
	}
	return opts.QType
}

// cacheKey composes the canonical key shared by the cache and the
// dedup gate. Both must use identical composition to stay consistent.
func cacheKey(qname string, qtype uint16) string {
	return qname + ":" + dns.Type(qtype).String()
}

// Client issues a single DNS query for an already fully expanded name.
// Timeout and retry behavior is owned by the client; failures surface
// as ordinary errors.
type Client interface {
	Query(ctx context.Context, name string, opts QueryOptions) (*AnswerSet, error)
}

// PlainClient queries the configured nameservers in order using plain
// DNS over UDP, retrying over TCP when a response is truncated.
type PlainClient struct {
	udp *dns.Client
	tcp *dns.Client
}

// NewPlainClient returns a plain DNS client with default timeouts.
func NewPlainClient() *PlainClient {
	return &PlainClient{
		udp: &dns.Client{Net: "udp", Timeout: defaultRequestTimeout},
		tcp: &dns.Client{Net: "tcp", Timeout: defaultRequestTimeout},
	}
}

// Query implements Client.
func (pc *PlainClient) Query(ctx context.Context, name string, opts QueryOptions) (*AnswerSet, error) {
	nameservers := Nameservers()
	if len(nameservers) == 0 {
		return nil, ErrNoNameservers
	}

	query := new(dns.Msg)
	query.SetQuestion(dns.Fqdn(name), opts.qtype())

	var lastErr error
	for _, ns := range nameservers {
		started := time.Now()
		reply, _, err := pc.udp.ExchangeContext(ctx, query, ns.String())
		if err == nil && reply.Truncated {
			reply, _, err = pc.tcp.ExchangeContext(ctx, query, ns.String())
		}
		if err != nil {
			log.Debug().Err(err).Stringer("nameserver", ns).Str("name", name).Msg("dns exchange failed")
			lastErr = err
			continue
		}

		log.Debug().
			Stringer("nameserver", ns).
			Str("name", name).
			Dur("took", time.Since(started)).
			Msg("dns exchange done")
		return answerSetFromMsg(reply), nil
	}
	return nil, lastErr
}

func answerSetFromMsg(reply *dns.Msg) *AnswerSet {
	set := &AnswerSet{RCode: reply.Rcode}
	set.Answers = answersFromRRs(reply.Answer)
	// Address records in the additional section become the structured
	// payload accompanying SRV-style answers.
	if extra := answersFromRRs(reply.Extra); len(extra) > 0 {
		set.Addresses = extra
	}
	return set
}

func answersFromRRs(rrs []dns.RR) (answers []Answer) {
	for _, rr := range rrs {
		ttl := int64(rr.Header().Ttl)
		switch record := rr.(type) {
		case *dns.A:
			answers = append(answers, Answer{Address: record.A.String(), TTL: ttl})
		case *dns.AAAA:
			answers = append(answers, Answer{Address: record.AAAA.String(), TTL: ttl})
		case *dns.SRV:
			answers = append(answers, Answer{
				Address: strings.TrimSuffix(record.Target, "."),
				TTL:     ttl,
				Port:    int(record.Port),
			})
		}
	}
	return
}
