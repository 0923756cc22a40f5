package resolver

import (
	"fmt"
	"net"
	"strconv"
)

// TTLNeverExpire marks answers that are not time-bounded, such as
// synthesized literal-IP answers and statically configured peers.
// Cache logic must never treat it as expired.
const TTLNeverExpire = -1

// Answer is a single resolved address, usually derived from one DNS
// resource record. Port is 0 when the record carries no port.
type Answer struct {
	Address string
	TTL     int64
	Port    int
}

// AnswerSet is the result of one DNS query or cache read.
//
// Answers holds the records of the answer section. Addresses is an
// optional structured payload: address records from the additional
// section that accompany SRV-style answers. RCode is the DNS response
// code, 0 for success.
type AnswerSet struct {
	Answers   []Answer
	Addresses []Answer
	RCode     int
}

// Valid reports whether the answer set is usable: it must exist, carry
// no error code and have at least one answer. If the structured
// Addresses payload is present, it must be non-empty as well.
func (set *AnswerSet) Valid() bool {
	switch {
	case set == nil:
		return false
	case set.RCode != 0:
		return false
	case len(set.Answers) == 0:
		return false
	case set.Addresses != nil && len(set.Addresses) == 0:
		return false
	default:
		return true
	}
}

// Server is a backend address/port pair ready for use by the hosting
// proxy layer.
type Server struct {
	Address string
	TTL     int64
	Port    int
}

func (s Server) String() string {
	if ip := net.ParseIP(s.Address); ip != nil && ip.To4() == nil {
		return fmt.Sprintf("[%s]:%d", s.Address, s.Port)
	}
	return fmt.Sprintf("%s:%d", s.Address, s.Port)
}

// ServerList is the ordered result of a resolution. It keeps the
// originating answer set and query name for introspection by callers.
type ServerList struct {
	Servers []Server
	Answers *AnswerSet
	QName   string
}

// convertAnswers maps raw answers to server records. overridePort, if
// positive, takes precedence over per-answer ports. Answers without an
// address are dropped without error.
func convertAnswers(set *AnswerSet, qname string, overridePort int) *ServerList {
	list := &ServerList{
		Answers: set,
		QName:   qname,
	}
	if set == nil {
		return list
	}

	for _, answer := range set.Answers {
		if answer.Address == "" {
			continue
		}
		port := answer.Port
		if overridePort > 0 {
			port = overridePort
		}
		list.Servers = append(list.Servers, Server{
			Address: answer.Address,
			TTL:     answer.TTL,
			Port:    port,
		})
	}
	return list
}

// answersFromPeers splits statically configured "host:port" peers into
// answers. Peers that do not split cleanly are skipped.
func answersFromPeers(peers []string) *AnswerSet {
	set := &AnswerSet{}
	for _, peer := range peers {
		host, portStr, err := net.SplitHostPort(peer)
		if err != nil {
			log.Warn().Str("peer", peer).Err(err).Msg("skipping malformed peer")
			continue
		}
		port, err := strconv.Atoi(portStr)
		if err != nil {
			log.Warn().Str("peer", peer).Err(err).Msg("skipping peer with bad port")
			continue
		}
		set.Answers = append(set.Answers, Answer{
			Address: host,
			TTL:     TTLNeverExpire,
			Port:    port,
		})
	}
	return set
}
