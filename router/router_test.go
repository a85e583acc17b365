package router

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gip/gip/config"
	"github.com/gip/gip/ip"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newServer(t *testing.T, c config.Config, providers []ip.Descriptor, reg *prometheus.Registry) *httptest.Server {
	t.Helper()
	set, err := ip.New(providers, ip.WithTimeout(2*time.Second), ip.WithRegisterer(reg))
	require.NoError(t, err)
	srv := httptest.NewServer(Router(c, set, reg))
	t.Cleanup(srv.Close)
	return srv
}

func get(t *testing.T, url string, header map[string]string) (*http.Response, string) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	require.NoError(t, err)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

func TestPlain(t *testing.T) {
	srv := newServer(t, config.Config{}, nil, prometheus.NewRegistry())

	resp, body := get(t, srv.URL+"/ip", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "127.0.0.1\n", body)

	_, body = get(t, srv.URL+"/ip", map[string]string{"X-Forwarded-For": "198.51.100.4"})
	assert.Equal(t, "127.0.0.1\n", body, "forwarding headers are ignored by default")
}

func TestPlainTrustProxyHeaders(t *testing.T) {
	srv := newServer(t, config.Config{TrustProxyHeaders: true}, nil, prometheus.NewRegistry())

	_, body := get(t, srv.URL+"/ip", map[string]string{"X-Forwarded-For": "198.51.100.4"})
	assert.Equal(t, "198.51.100.4\n", body)

	_, body = get(t, srv.URL+"/json", map[string]string{"X-Real-IP": "2001:db8::4"})
	assert.JSONEq(t, `{"ip":"2001:db8::4"}`, body)
}

func TestJSON(t *testing.T) {
	srv := newServer(t, config.Config{}, nil, prometheus.NewRegistry())

	resp, body := get(t, srv.URL+"/json", nil)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	assert.JSONEq(t, `{"ip":"127.0.0.1"}`, body)

	resp, body = get(t, srv.URL+"/json?callback=cb", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, `cb({"ip":"127.0.0.1"})`, body)

	resp, _ = get(t, srv.URL+"/json?callback=alert(1)", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAdaptersAgainstEcho(t *testing.T) {
	echo := newServer(t, config.Config{}, nil, prometheus.NewRegistry())

	for _, d := range []ip.Descriptor{
		{Name: "plain", Family: ip.V4, Protocol: ip.PlainHTTP, Endpoint: echo.URL + "/ip"},
		{Name: "json", Family: ip.V4, Protocol: ip.JSONHTTP, Endpoint: echo.URL + "/json", JSONPath: []string{"ip"}},
		{Name: "jsonp", Family: ip.V4, Protocol: ip.JSONHTTP, Endpoint: echo.URL + "/json?callback=callback", JSONPath: []string{"ip"}, Padding: "callback"},
	} {
		t.Run(d.Name, func(t *testing.T) {
			set, err := ip.New([]ip.Descriptor{d})
			require.NoError(t, err)
			addr, err := set.Resolve(context.Background(), ip.V4)
			require.NoError(t, err)
			assert.Equal(t, "127.0.0.1", addr.String())
			assert.Equal(t, d.Name, addr.Provider)
		})
	}
}

func TestPublic(t *testing.T) {
	echo := newServer(t, config.Config{}, nil, prometheus.NewRegistry())
	reg := prometheus.NewRegistry()
	srv := newServer(t, config.Config{}, []ip.Descriptor{
		{Name: "echo", Family: ip.V4, Protocol: ip.PlainHTTP, Endpoint: echo.URL + "/ip"},
	}, reg)

	resp, body := get(t, srv.URL+"/public/v4", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	var public PublicAddress
	require.NoError(t, json.Unmarshal([]byte(body), &public))
	assert.Equal(t, "127.0.0.1", public.IP)
	assert.Equal(t, "IPv4", public.Family)
	assert.Equal(t, "echo", public.Provider)
	assert.False(t, public.ObservedAt.IsZero())

	resp, body = get(t, srv.URL+"/public/v6", nil)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	var failure Response
	require.NoError(t, json.Unmarshal([]byte(body), &failure))
	assert.NotEmpty(t, failure.Message)
	assert.Empty(t, failure.Errors)

	resp, _ = get(t, srv.URL+"/public/v5", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	_, body = get(t, srv.URL+"/metrics", nil)
	assert.Contains(t, body, `gip_provider_attempts_total{family="IPv4",provider="echo",result="success"} 1`)
}

func TestPublicFailure(t *testing.T) {
	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer broken.Close()
	srv := newServer(t, config.Config{}, []ip.Descriptor{
		{Name: "broken", Family: ip.V4, Protocol: ip.PlainHTTP, Endpoint: broken.URL},
	}, prometheus.NewRegistry())

	resp, body := get(t, srv.URL+"/public/v4", nil)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	var failure Response
	require.NoError(t, json.Unmarshal([]byte(body), &failure))
	assert.Len(t, failure.Errors, 1)
}

func TestProviders(t *testing.T) {
	srv := newServer(t, config.Config{}, []ip.Descriptor{
		{Name: "ident.me", Family: ip.V6, Protocol: ip.PlainHTTP, Endpoint: "http://v6.ident.me/"},
		{Name: "opendns.com", Family: ip.V4, Protocol: ip.DNS, Endpoint: "myip.opendns.com@resolver1.opendns.com"},
	}, prometheus.NewRegistry())

	_, body := get(t, srv.URL+"/providers", nil)
	assert.JSONEq(t, `[
		{"name":"ident.me","family":"IPv6","protocol":"HttpPlane"},
		{"name":"opendns.com","family":"IPv4","protocol":"Dns"}
	]`, body)
}

func TestCORS(t *testing.T) {
	srv := newServer(t, config.Config{CorsAllowedOrigins: []string{"https://allowed.example"}}, nil, prometheus.NewRegistry())

	resp, _ := get(t, srv.URL+"/ip", map[string]string{"Origin": "https://allowed.example"})
	assert.Equal(t, "https://allowed.example", resp.Header.Get("Access-Control-Allow-Origin"))

	resp, _ = get(t, srv.URL+"/ip", map[string]string{"Origin": "https://denied.example"})
	assert.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestIndex(t *testing.T) {
	srv := newServer(t, config.Config{}, nil, prometheus.NewRegistry())

	resp, body := get(t, srv.URL+"/", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")
	assert.Contains(t, body, "/json")
}
