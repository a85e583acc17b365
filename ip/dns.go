package ip

import (
	"context"
	"net"
	"net/netip"
	"strings"
	"time"

	"github.com/miekg/dns"
	"github.com/pkg/errors"
)

// dnsAdapter asks a pinned resolver for the record that carries the caller's address.
// Proxies do not apply to DNS lookups.
type dnsAdapter struct {
	port string
	// lookup resolves the resolver host; net.DefaultResolver when nil.
	lookup func(ctx context.Context, network, host string) ([]netip.Addr, error)
}

func (r *dnsAdapter) Attempt(ctx context.Context, d Descriptor, opts Options) (Address, error) {
	started := time.Now()
	query, host, err := splitDNSEndpoint(d.Endpoint)
	if err != nil {
		return Address{}, err
	}

	server, err := r.resolverAddr(ctx, d.Family, host)
	if err != nil {
		return Address{}, &ConnectionFailedError{Endpoint: d.Endpoint, Err: err}
	}

	qtype := recordType(d)
	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(query), qtype)
	msg.RecursionDesired = true

	network := "udp4"
	if server.Addr().Is6() {
		network = "udp6"
	}
	client := &dns.Client{Net: network, Timeout: transportDeadline(opts.Timeout)}
	in, _, err := client.ExchangeContext(ctx, msg, server.String())
	if err != nil {
		return Address{}, &ConnectionFailedError{Endpoint: d.Endpoint, Err: err}
	}
	if in.Rcode != dns.RcodeSuccess {
		return Address{}, &ConnectionFailedError{Endpoint: d.Endpoint, Err: errors.Errorf("rcode %s", dns.RcodeToString[in.Rcode])}
	}

	raw, ok := firstRecord(in.Answer, qtype)
	if !ok {
		return Address{}, &ConnectionFailedError{Endpoint: d.Endpoint, Err: errors.Errorf("no %s record for %s", dns.TypeToString[qtype], query)}
	}
	if qtype == dns.TypeTXT {
		if raw, err = extractAddr(raw); err != nil {
			return Address{}, err
		}
	}
	addr, err := parseAddr(d.Family, raw)
	if err != nil {
		return Address{}, err
	}
	return newAddress(d, addr, started), nil
}

// resolverAddr resolves host with the system resolver, preferring the family of the descriptor
// so that the query leaves through the matching stack.
func (r *dnsAdapter) resolverAddr(ctx context.Context, family Family, host string) (netip.AddrPort, error) {
	lookup := r.lookup
	if lookup == nil {
		lookup = net.DefaultResolver.LookupNetIP
	}
	network := "ip4"
	if family == V6 {
		network = "ip6"
	}
	addrs, err := lookup(ctx, network, host)
	if err != nil || len(addrs) == 0 {
		addrs, err = lookup(ctx, "ip", host)
	}
	if err != nil {
		return netip.AddrPort{}, errors.Wrapf(err, "resolve %s", host)
	}
	if len(addrs) == 0 {
		return netip.AddrPort{}, errors.Errorf("resolve %s: no address", host)
	}
	port := r.port
	if port == "" {
		port = "53"
	}
	return netip.ParseAddrPort(net.JoinHostPort(addrs[0].Unmap().String(), port))
}

func recordType(d Descriptor) uint16 {
	switch strings.ToUpper(d.Record) {
	case "TXT":
		return dns.TypeTXT
	case "A":
		return dns.TypeA
	case "AAAA":
		return dns.TypeAAAA
	}
	if d.Family == V6 {
		return dns.TypeAAAA
	}
	return dns.TypeA
}

func firstRecord(answer []dns.RR, qtype uint16) (string, bool) {
	for _, rr := range answer {
		switch rec := rr.(type) {
		case *dns.A:
			if qtype == dns.TypeA {
				return rec.A.String(), true
			}
		case *dns.AAAA:
			if qtype == dns.TypeAAAA {
				return rec.AAAA.String(), true
			}
		case *dns.TXT:
			if qtype == dns.TypeTXT && len(rec.Txt) > 0 {
				return strings.Join(rec.Txt, ""), true
			}
		}
	}
	return "", false
}
