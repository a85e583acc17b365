package turn

import (
	"net"
	"net/netip"
	"strings"
	"sync"

	"github.com/gip/gip/config"
	"github.com/pion/randutil"
	"github.com/pion/transport/v2/stdnet"
	"github.com/pion/turn/v2"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Server is a running TURN relay that advertises the public address of this host.
type Server struct {
	srv    *turn.Server
	public netip.Addr

	lock   sync.RWMutex
	lookup map[string][]byte
}

// Start starts a TURN relay on c.RelayAddress. Allocations are advertised with public as the relay address,
// which must be IPv4.
func Start(c *config.Config, public netip.Addr) (*Server, error) {
	if !public.IsValid() {
		return nil, errors.New("turn: invalid public address")
	}
	if public.Unmap().Is6() {
		return nil, errors.Errorf("turn: relay sockets are IPv4 only, cannot advertise %s", public)
	}
	users, err := parseUsers(c.RelayUsers)
	if err != nil {
		return nil, err
	}
	s := &Server{public: public, lookup: map[string][]byte{}}
	for name, pass := range users {
		s.lookup[name] = turn.GenerateAuthKey(name, c.RelayRealm, pass)
	}
	log.Debug().Int("users", len(s.lookup)).Msg("Loaded relay users")

	gen, err := relayAddressGenerator(c, public)
	if err != nil {
		log.Error().Err(err).Msg("Failed to create relay address generator")
		return nil, err
	}

	udpl, err := net.ListenPacket("udp", c.RelayAddress)
	if err != nil {
		return nil, errors.Wrap(err, "turn: listen udp")
	}
	log.Debug().Str("address", udpl.LocalAddr().String()).Msg("UDP is listening on TURN")
	tcpl, err := net.Listen("tcp", c.RelayAddress)
	if err != nil {
		_ = udpl.Close()
		return nil, errors.Wrap(err, "turn: listen tcp")
	}
	log.Debug().Str("address", tcpl.Addr().String()).Msg("TCP is listening on TURN")

	s.srv, err = turn.NewServer(turn.ServerConfig{
		Realm:       c.RelayRealm,
		AuthHandler: s.authenticate,
		ListenerConfigs: []turn.ListenerConfig{
			{Listener: tcpl, RelayAddressGenerator: gen},
		},
		PacketConnConfigs: []turn.PacketConnConfig{
			{PacketConn: udpl, RelayAddressGenerator: gen},
		},
	})
	if err != nil {
		_ = udpl.Close()
		_ = tcpl.Close()
		log.Error().Err(err).Msg("Failed to start TURN server")
		return nil, err
	}
	log.Info().Str("address", c.RelayAddress).Str("relay", public.String()).Msg("Started TURN server")
	return s, nil
}

// PublicAddr returns the relay address advertised to clients.
func (s *Server) PublicAddr() netip.Addr {
	return s.public
}

// Close stops the relay and closes its listeners.
func (s *Server) Close() error {
	return s.srv.Close()
}

// Ban removes username, so later allocations by that user are refused.
func (s *Server) Ban(username string) {
	s.lock.Lock()
	defer s.lock.Unlock()
	delete(s.lookup, username)
}

func (s *Server) authenticate(username, realm string, addr net.Addr) ([]byte, bool) {
	s.lock.RLock()
	defer s.lock.RUnlock()
	key, ok := s.lookup[username]
	if !ok {
		log.Info().Str("username", username).Str("realm", realm).Str("address", addr.String()).Msg("Unauthorized")
		return nil, false
	}
	return key, true
}

// relayAddressGenerator allocates relay sockets on the wildcard address, from the configured port range
// when there is one.
func relayAddressGenerator(c *config.Config, public netip.Addr) (turn.RelayAddressGenerator, error) {
	nt, err := stdnet.NewNet()
	if err != nil {
		return nil, err
	}
	relay := net.IP(public.Unmap().AsSlice())
	if minport, maxport, ok := c.PortRange(); ok {
		log.Debug().Uint16("min", minport).Uint16("max", maxport).Msg("Relay ports limited to range")
		return &turn.RelayAddressGeneratorPortRange{
			RelayAddress: relay,
			MinPort:      minport,
			MaxPort:      maxport,
			Rand:         randutil.NewMathRandomGenerator(),
			Address:      "0.0.0.0",
			Net:          nt,
		}, nil
	}
	return &turn.RelayAddressGeneratorStatic{
		RelayAddress: relay,
		Address:      "0.0.0.0",
		Net:          nt,
	}, nil
}

// parseUsers parses "name:pass" entries. Blank entries and entries starting with '#' are skipped.
func parseUsers(entries []string) (map[string]string, error) {
	users := map[string]string{}
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" || strings.HasPrefix(entry, "#") {
			continue
		}
		name, pass, ok := strings.Cut(entry, ":")
		name = strings.TrimSpace(name)
		if !ok || name == "" || pass == "" {
			return nil, errors.Errorf("turn: malformed relay user %q", entry)
		}
		users[name] = pass
	}
	return users, nil
}
