package ip

import (
	"strings"

	"github.com/pkg/errors"
)

// Protocol is the wire format a provider answers with.
type Protocol int

const (
	PlainHTTP Protocol = iota
	JSONHTTP
	DNS
)

func (p Protocol) String() string {
	switch p {
	case PlainHTTP:
		return "HttpPlane"
	case JSONHTTP:
		return "HttpJson"
	case DNS:
		return "Dns"
	default:
		return "unknown"
	}
}

// ParseProtocol accepts the protocol selectors of provider tables.
func ParseProtocol(s string) (Protocol, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "plane", "httpplane", "plain", "httpplain":
		return PlainHTTP, nil
	case "json", "httpjson":
		return JSONHTTP, nil
	case "dns":
		return DNS, nil
	}
	return PlainHTTP, errors.Errorf("unknown protocol %q", s)
}

// Descriptor describes one external address provider.
type Descriptor struct {
	Name     string
	Family   Family
	Protocol Protocol
	// Endpoint is a URL, or "query@resolver" for DNS providers.
	Endpoint string
	JSONPath []string
	Padding  string
	// Record overrides the DNS record type: A, AAAA or TXT.
	Record string
}

// Validate checks the protocol specific invariants of d.
func (d Descriptor) Validate() error {
	if d.Endpoint == "" {
		return errors.Errorf("provider %q: empty url", d.Name)
	}
	switch d.Protocol {
	case JSONHTTP:
		if len(d.JSONPath) == 0 {
			return errors.Errorf("provider %q: json provider needs a key", d.Name)
		}
	case DNS:
		if _, _, err := splitDNSEndpoint(d.Endpoint); err != nil {
			return err
		}
		switch strings.ToUpper(d.Record) {
		case "", "A", "AAAA", "TXT":
		default:
			return errors.Errorf("provider %q: unsupported dns record %q", d.Name, d.Record)
		}
	case PlainHTTP:
	default:
		return errors.Errorf("provider %q: unknown protocol %d", d.Name, d.Protocol)
	}
	return nil
}

func splitDNSEndpoint(endpoint string) (query, resolver string, err error) {
	if strings.Count(endpoint, "@") != 1 {
		return "", "", &DNSParseError{Endpoint: endpoint}
	}
	query, resolver, _ = strings.Cut(endpoint, "@")
	if query == "" || resolver == "" {
		return "", "", &DNSParseError{Endpoint: endpoint}
	}
	return query, resolver, nil
}
