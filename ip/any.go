package ip

import (
	"context"
	"time"

	"github.com/pion/randutil"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/xid"
	"github.com/rs/zerolog/log"
	"go.uber.org/multierr"
)

// DefaultTimeout is the per provider timeout used until SetTimeout is called.
const DefaultTimeout = 1000 * time.Millisecond

type member struct {
	desc    Descriptor
	adapter Adapter
}

// Entry is one provider as reported by List.
type Entry struct {
	Name     string
	Family   Family
	Protocol Protocol
}

// Any tries the providers of one address family in random order until one answers.
//
// SetTimeout, SetProxy and ClearProxy must not run concurrently with Resolve.
type Any struct {
	members []member
	timeout time.Duration
	proxy   *Proxy
	rand    randutil.MathRandomGenerator
	metrics *metrics
}

// Option configures an Any at construction.
type Option func(*settings)

type settings struct {
	timeout  time.Duration
	proxy    *Proxy
	adapters map[Protocol]Adapter
	reg      prometheus.Registerer
	rand     randutil.MathRandomGenerator
}

// WithTimeout sets the initial per provider timeout.
func WithTimeout(d time.Duration) Option {
	return func(s *settings) { s.timeout = d }
}

// WithProxy sets the initial HTTP proxy.
func WithProxy(host string, port uint16) Option {
	return func(s *settings) { s.proxy = &Proxy{Host: host, Port: port} }
}

// WithAdapter replaces the adapter used for every provider of protocol p.
func WithAdapter(p Protocol, a Adapter) Option {
	return func(s *settings) { s.adapters[p] = a }
}

// WithRegisterer registers attempt metrics on reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(s *settings) { s.reg = reg }
}

// WithRand sets the source used to order providers.
func WithRand(r randutil.MathRandomGenerator) Option {
	return func(s *settings) { s.rand = r }
}

// New validates descriptors and binds each one to the adapter of its protocol.
func New(descriptors []Descriptor, opts ...Option) (*Any, error) {
	s := &settings{
		timeout:  DefaultTimeout,
		adapters: defaultAdapters(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.rand == nil {
		s.rand = randutil.NewMathRandomGenerator()
	}

	members := make([]member, 0, len(descriptors))
	for _, d := range descriptors {
		if err := d.Validate(); err != nil {
			return nil, &ConfigError{Err: err}
		}
		adapter, ok := s.adapters[d.Protocol]
		if !ok || adapter == nil {
			return nil, &ConfigError{Err: errors.Errorf("provider %q: no adapter for %s", d.Name, d.Protocol)}
		}
		members = append(members, member{desc: d, adapter: adapter})
	}

	var m *metrics
	if s.reg != nil {
		m = newMetrics(s.reg)
	}
	return &Any{
		members: members,
		timeout: s.timeout,
		proxy:   s.proxy,
		rand:    s.rand,
		metrics: m,
	}, nil
}

// SetTimeout sets the timeout applied to every provider on the next Resolve.
func (a *Any) SetTimeout(d time.Duration) {
	a.timeout = d
}

// Timeout returns the per provider timeout.
func (a *Any) Timeout() time.Duration {
	return a.timeout
}

// SetProxy routes every HTTP provider through host:port on the next Resolve.
func (a *Any) SetProxy(host string, port uint16) {
	a.proxy = &Proxy{Host: host, Port: port}
}

// ClearProxy removes the proxy set by SetProxy.
func (a *Any) ClearProxy() {
	a.proxy = nil
}

// List returns the configured providers in configuration order.
func (a *Any) List() []Entry {
	entries := make([]Entry, 0, len(a.members))
	for _, m := range a.members {
		entries = append(entries, Entry{Name: m.desc.Name, Family: m.desc.Family, Protocol: m.desc.Protocol})
	}
	return entries
}

// Resolve returns the address reported by the first provider of family that succeeds.
// When every provider fails, or none serves family, it returns *AllProvidersFailedError.
func (a *Any) Resolve(ctx context.Context, family Family) (Address, error) {
	id := xid.New().String()
	candidates := a.shuffled(family)
	log.Debug().Str("resolveId", id).Str("family", family.String()).Int("providers", len(candidates)).Msg("Begin to resolve address")

	opts := Options{Timeout: a.timeout, Proxy: a.proxy}
	var errs error
	for _, m := range candidates {
		started := time.Now()
		addr, err := Execute(ctx, m.adapter, m.desc, opts)
		a.metrics.observe(m.desc, time.Since(started), err)
		if err == nil {
			log.Debug().Str("resolveId", id).Str("provider", m.desc.Name).Str("address", addr.String()).Dur("latency", addr.Latency).Msg("Address resolved")
			return addr, nil
		}
		log.Debug().Str("resolveId", id).Str("provider", m.desc.Name).Str("endpoint", m.desc.Endpoint).Err(err).Msg("Provider failed")
		errs = multierr.Append(errs, err)
		if ctx.Err() != nil {
			break
		}
	}
	return Address{}, &AllProvidersFailedError{Errors: multierr.Errors(errs)}
}

// shuffled returns the members of family in a uniformly random order.
func (a *Any) shuffled(family Family) []member {
	var out []member
	for _, m := range a.members {
		if m.desc.Family == family {
			out = append(out, m)
		}
	}
	for i := len(out) - 1; i > 0; i-- {
		j := a.rand.Intn(i + 1)
		out[i], out[j] = out[j], out[i]
	}
	return out
}
