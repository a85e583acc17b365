package router

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"time"

	"github.com/gip/gip/config"
	"github.com/gip/gip/ip"
	"github.com/gip/gip/ui"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/grafana/regexp"
	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/hlog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

var (
	json = jsoniter.ConfigCompatibleWithStandardLibrary

	callbackName = regexp.MustCompile(`^[a-zA-Z_$][0-9a-zA-Z_$.]*$`)
)

// PublicAddress is the body of /public/{family}.
type PublicAddress struct {
	IP         string    `json:"ip"`
	Family     string    `json:"family"`
	Provider   string    `json:"provider"`
	ObservedAt time.Time `json:"observed_at"`
	LatencyMs  int64     `json:"latency_ms"`
}

// Provider is one element of the /providers body.
type Provider struct {
	Name     string `json:"name"`
	Family   string `json:"family"`
	Protocol string `json:"protocol"`
}

// Response is the body of every error reply.
type Response struct {
	Message string   `json:"message"`
	Errors  []string `json:"errors,omitempty"`
}

func responseLogger(r *http.Request, status, size int, duration time.Duration) {
	log.Info().Str("host", r.Host).Str("method", r.Method).Str("path", r.URL.Path).Str("ip", r.RemoteAddr).Int("status", status).Int("size", size).Dur("duration", duration).Msg("response")
}

type handler struct {
	providers *ip.Any
	group     singleflight.Group
}

// Router serves the caller's own address, this host's public address resolved through providers, and the
// metrics gathered by gatherer.
func Router(config config.Config, providers *ip.Any, gatherer prometheus.Gatherer) *mux.Router {
	router := mux.NewRouter()
	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		responseLogger(r, http.StatusNotFound, 0, 0)
		w.WriteHeader(http.StatusNotFound)
	})

	if config.TrustProxyHeaders {
		router.Use(handlers.ProxyHeaders)
	}
	router.Use(handlers.CORS(handlers.AllowedMethods([]string{"GET"}), handlers.AllowedOriginValidator(config.CheckOrigin)))
	router.Use(hlog.NewHandler(log.Logger))
	router.Use(hlog.AccessHandler(responseLogger))

	h := &handler{providers: providers}
	router.Methods("GET").Path("/ip").HandlerFunc(h.plain)
	router.Methods("GET").Path("/json").HandlerFunc(h.jsonAddr)
	router.Methods("GET").Path("/public/{family:v4|v6}").HandlerFunc(h.public)
	router.Methods("GET").Path("/providers").HandlerFunc(h.list)
	router.Methods("GET").Path("/metrics").Handler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	ui.Register(router)
	return router
}

// plain writes the requester address followed by a line break.
func (h *handler) plain(w http.ResponseWriter, r *http.Request) {
	addr, err := remoteAddr(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = fmt.Fprintln(w, addr)
}

// jsonAddr writes {"ip": addr}, wrapped in callback(...) when the callback query parameter is present.
func (h *handler) jsonAddr(w http.ResponseWriter, r *http.Request) {
	addr, err := remoteAddr(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	body, err := json.Marshal(map[string]string{"ip": addr.String()})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	callback := r.URL.Query().Get("callback")
	if callback == "" {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(body)
		return
	}
	if !callbackName.MatchString(callback) {
		writeError(w, http.StatusBadRequest, errors.Errorf("invalid callback %q", callback))
		return
	}
	w.Header().Set("Content-Type", "application/javascript")
	_, _ = fmt.Fprintf(w, "%s(%s)", callback, body)
}

// public resolves this host's public address. Concurrent requests for one family share a resolution.
func (h *handler) public(w http.ResponseWriter, r *http.Request) {
	family, err := ip.ParseFamily(mux.Vars(r)["family"])
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	ctx := context.WithoutCancel(r.Context())
	v, err, shared := h.group.Do(family.String(), func() (interface{}, error) {
		return h.providers.Resolve(ctx, family)
	})
	hlog.FromRequest(r).Debug().Bool("shared", shared).Str("family", family.String()).Msg("Public address requested")
	if err != nil {
		resp := Response{Message: err.Error()}
		var all *ip.AllProvidersFailedError
		if errors.As(err, &all) {
			for _, cause := range all.Errors {
				resp.Errors = append(resp.Errors, cause.Error())
			}
		}
		writeJSON(w, http.StatusBadGateway, resp)
		return
	}

	addr := v.(ip.Address)
	writeJSON(w, http.StatusOK, &PublicAddress{
		IP:         addr.String(),
		Family:     addr.Family.String(),
		Provider:   addr.Provider,
		ObservedAt: addr.ObservedAt,
		LatencyMs:  addr.Latency.Milliseconds(),
	})
}

func (h *handler) list(w http.ResponseWriter, _ *http.Request) {
	entries := h.providers.List()
	providers := make([]Provider, 0, len(entries))
	for _, e := range entries {
		providers = append(providers, Provider{Name: e.Name, Family: e.Family.String(), Protocol: e.Protocol.String()})
	}
	writeJSON(w, http.StatusOK, providers)
}

// remoteAddr returns the requester address. RemoteAddr is a bare address when set from forwarding headers.
func remoteAddr(r *http.Request) (netip.Addr, error) {
	host := r.RemoteAddr
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return netip.Addr{}, errors.Wrapf(err, "parse remote address %q", r.RemoteAddr)
	}
	return addr.Unmap().WithZone(""), nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to write response")
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, &Response{Message: err.Error()})
}
