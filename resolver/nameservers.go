package resolver

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/hashicorp/go-multierror"
	"github.com/tevino/abool"
	"golang.org/x/net/publicsuffix"
)

const (
	defaultNameserverPort = 53

	// maxSearchDomains caps the search list to mitigate exploitation
	// via a malicious resolver config.
	maxSearchDomains = 100
)

// ResolverEnvVar names the environment variable that may supply an
// additional nameserver address. A valid value is inserted before any
// file-derived nameservers.
const ResolverEnvVar = "RESOLVER"

// DefaultConfigFile is the resolver config read on lazy initialization.
const DefaultConfigFile = "/etc/resolv.conf"

// ErrInvalidResolverAddress is returned for nameserver addresses that
// are neither IPv4 nor IPv6 literals with an optional port.
var ErrInvalidResolverAddress = errors.New("invalid resolver address")

// Nameserver is a DNS server endpoint. Host is a dotted-quad IPv4
// literal or a bracketed IPv6 literal.
type Nameserver struct {
	Host string
	Port uint16
}

func (ns Nameserver) String() string {
	return fmt.Sprintf("%s:%d", ns.Host, ns.Port)
}

func bracketHost(ip net.IP) string {
	if ip.To4() != nil {
		return ip.String()
	}
	return "[" + ip.String() + "]"
}

// parseResolverAddress parses a nameserver address string. Accepted
// forms: IPv4 dotted-quad, bracketed IPv6, either with an optional
// ":port" suffix, and bare IPv6 (bracketed internally). The default
// port is 53. Errors carry the original string so callers can log and
// continue.
func parseResolverAddress(address string) (Nameserver, error) {
	if host, portStr, err := net.SplitHostPort(address); err == nil {
		ip := net.ParseIP(host)
		port, portErr := strconv.ParseUint(portStr, 10, 16)
		if ip == nil || portErr != nil {
			return Nameserver{}, fmt.Errorf("%w: %q", ErrInvalidResolverAddress, address)
		}
		return Nameserver{Host: bracketHost(ip), Port: uint16(port)}, nil
	}

	if ip := net.ParseIP(strings.Trim(address, "[]")); ip != nil {
		return Nameserver{Host: bracketHost(ip), Port: defaultNameserverPort}, nil
	}

	return Nameserver{}, fmt.Errorf("%w: %q", ErrInvalidResolverAddress, address)
}

// ResolverConfig is the process-wide nameserver and search-domain
// configuration. A published config is never mutated; re-initializing
// replaces it entirely.
type ResolverConfig struct {
	Nameservers []Nameserver
	Search      []string
}

var (
	resolverConfig     atomic.Pointer[ResolverConfig]
	initializingConfig = abool.New()
)

// Nameservers returns the configured nameservers, lazily initializing
// the process-wide configuration on first use.
func Nameservers() []Nameserver {
	return getResolverConfig().Nameservers
}

// SearchDomains returns the configured search domains. The list always
// ends with the empty string, which stands for the bare query name.
func SearchDomains() []string {
	return getResolverConfig().Search
}

func getResolverConfig() *ResolverConfig {
	if conf := resolverConfig.Load(); conf != nil {
		return conf
	}

	// First caller initializes. Contenders read whatever is currently
	// published instead of blocking on the initializer.
	if initializingConfig.SetToIf(false, true) {
		if resolverConfig.Load() == nil {
			if err := InitNameservers(DefaultConfigFile); err != nil {
				log.Warn().Err(err).Msg("nameserver initialization finished with errors")
			}
		}
		initializingConfig.UnSet()
	}

	if conf := resolverConfig.Load(); conf != nil {
		return conf
	}
	return &ResolverConfig{Search: []string{""}}
}

// InitNameservers parses the given resolver config file together with
// the RESOLVER environment override and replaces the process-wide
// configuration. Parse failures are aggregated and returned, but the
// configuration is still replaced with whatever sources succeeded. An
// unreadable config file is not fatal either.
func InitNameservers(configFile string) error {
	var text string
	data, err := os.ReadFile(configFile)
	if err != nil {
		log.Warn().Err(err).Str("file", configFile).Msg("cannot read resolver config, continuing with environment override only")
	} else {
		text = string(data)
	}

	conf, parseErr := parseResolverConfig(text, os.Getenv(ResolverEnvVar))
	conf.Search = append(conf.Search, "")
	resolverConfig.Store(conf)

	for _, ns := range conf.Nameservers {
		log.Debug().Stringer("nameserver", ns).Msg("loaded nameserver")
	}
	return parseErr
}

// parseResolverConfig reads standard Unix resolver config text, lines
// of `nameserver <addr>` and `search <domain>...`. A token starting
// with `#` ends token scanning for its line. A valid override address
// becomes the first nameserver; a file entry textually equivalent to
// the override at the default port is elided.
func parseResolverConfig(text, override string) (*ResolverConfig, error) {
	conf := &ResolverConfig{}
	var merr *multierror.Error

	var overrideAtDefaultPort string
	if override != "" {
		ns, err := parseResolverAddress(override)
		if err != nil {
			log.Warn().Err(err).Msg("ignoring invalid RESOLVER override")
			merr = multierror.Append(merr, err)
		} else {
			conf.Nameservers = append(conf.Nameservers, ns)
			overrideAtDefaultPort = fmt.Sprintf("%s:%d", override, defaultNameserverPort)
		}
	}

	for _, line := range strings.Split(text, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}

		switch fields[0] {
		case "nameserver":
			if strings.HasPrefix(fields[1], "#") {
				continue
			}
			ns, err := parseResolverAddress(fields[1])
			if err != nil {
				log.Warn().Err(err).Msg("ignoring invalid nameserver line")
				merr = multierror.Append(merr, err)
				continue
			}
			if overrideAtDefaultPort != "" && ns.String() == overrideAtDefaultPort {
				// Duplicate of the override under its default port.
				continue
			}
			conf.Nameservers = append(conf.Nameservers, ns)

		case "search":
			for _, domain := range fields[1:] {
				if strings.HasPrefix(domain, "#") {
					break
				}
				if !checkSearchScope(domain) {
					log.Warn().Str("domain", domain).Msg("ignoring out-of-scope search domain")
					continue
				}
				conf.Search = append(conf.Search, domain)
			}
		}
	}

	if len(conf.Search) > maxSearchDomains {
		conf.Search = conf.Search[:maxSearchDomains]
	}
	return conf, merr.ErrorOrNil()
}

// searchList expands a query name into ordered fully-qualified
// candidates. A trailing dot marks the name as already qualified and
// suppresses expansion; otherwise each search domain produces one
// candidate, with the empty domain standing for the bare name. The
// input order defines the query precedence.
func searchList(search []string, qname string) []string {
	if strings.HasSuffix(qname, ".") {
		return []string{strings.TrimSuffix(qname, ".")}
	}

	names := make([]string, 0, len(search))
	for _, domain := range search {
		if domain == "" {
			names = append(names, qname)
			continue
		}
		names = append(names, qname+"."+domain)
	}
	return names
}

// checkSearchScope refuses search domains that sit at or above a
// public suffix, so that an unqualified name can never be expanded
// into someone else's zone. Custom single-label suffixes (.internal,
// .consul, ...) are allowed.
func checkSearchScope(domain string) bool {
	if len(domain) == 0 || domain[0] == '.' || domain[len(domain)-1] == '.' {
		return false
	}

	// Pad with subdomains so PublicSuffix always has something to
	// split off.
	probe := "*.*.*.*.*." + domain

	suffix, icann := publicsuffix.PublicSuffix(probe)
	if len(suffix) == 0 {
		return false
	}
	if !icann && !strings.Contains(suffix, ".") {
		return true
	}

	split := len(probe) - len(suffix) - 1
	eTLDplus1 := probe[1+strings.LastIndex(probe[:split], "."):]
	return !strings.Contains(eTLDplus1, "*")
}
