package ldap

import "strings"

// LogMode controls chattiness and how much of a DN survives into the log.
type LogMode int

const (
	// LogOff suppresses chatty logs; only warnings and errors are emitted.
	LogOff LogMode = iota

	// LogOn enables chatty logs without network payload detail.
	LogOn

	// LogNetwork enables network-level logs with credentials stripped and
	// sensitive RDN values redacted.
	LogNetwork

	// LogNetworkUnsafe enables network-level logs with DNs intact.
	// Passwords are still never logged.
	LogNetworkUnsafe
)

// ParseLogMode maps the configuration value onto a LogMode. Unknown values
// fall back to LogOff.
func ParseLogMode(s string) LogMode {
	switch s {
	case "true":
		return LogOn
	case "network":
		return LogNetwork
	case "network_unsafe":
		return LogNetworkUnsafe
	default:
		return LogOff
	}
}

// Chatty reports whether informational logs should be emitted at all.
func (m LogMode) Chatty() bool { return m != LogOff }

// sensitive RDN types whose values are redacted under LogNetwork.
var sensitiveRDN = map[string]bool{
	"cn":  true,
	"dc":  true,
	"ou":  true,
	"uid": true,
}

const redacted = "xxxx"

// Scrubber is the single chokepoint sensitive strings pass through before
// they are handed to the log sink. Scrubbing is idempotent.
type Scrubber struct {
	mode LogMode
}

// NewScrubber builds a scrubber for the given mode.
func NewScrubber(mode LogMode) *Scrubber {
	return &Scrubber{mode: mode}
}

// Mode returns the scrubber's log mode.
func (s *Scrubber) Mode() LogMode { return s.mode }

// DN redacts the values of cn, dc, ou and uid components under LogNetwork.
// Other RDN types are kept verbatim, as is the whole DN under any other
// mode. Non-DN sentinels such as "unknown" pass through untouched.
func (s *Scrubber) DN(dn string) string {
	if s.mode != LogNetwork {
		return dn
	}
	rdns := strings.Split(dn, ",")
	for i, rdn := range rdns {
		parts := strings.Split(rdn, "+")
		for j, part := range parts {
			eq := strings.Index(part, "=")
			if eq < 0 {
				continue
			}
			attr := strings.TrimSpace(part[:eq])
			if sensitiveRDN[strings.ToLower(attr)] {
				parts[j] = part[:eq+1] + redacted
			}
		}
		rdns[i] = strings.Join(parts, "+")
	}
	return strings.Join(rdns, ",")
}
