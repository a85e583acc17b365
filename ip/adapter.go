package ip

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/grafana/regexp"
	"github.com/pkg/errors"
)

const maxBodySize = 64 << 10

var addrRun = regexp.MustCompile(`[0-9a-zA-Z.:]+`)

// Proxy is an HTTP proxy used by the HTTP adapters.
type Proxy struct {
	Host string
	Port uint16
}

func (p Proxy) String() string {
	return net.JoinHostPort(p.Host, strconv.Itoa(int(p.Port)))
}

// Options are the per attempt settings shared by the whole provider set.
type Options struct {
	Timeout time.Duration
	Proxy   *Proxy
}

// Adapter performs one round trip to a provider and extracts its address.
type Adapter interface {
	Attempt(ctx context.Context, d Descriptor, opts Options) (Address, error)
}

// AdapterFunc adapts a function to the Adapter interface.
type AdapterFunc func(ctx context.Context, d Descriptor, opts Options) (Address, error)

func (f AdapterFunc) Attempt(ctx context.Context, d Descriptor, opts Options) (Address, error) {
	return f(ctx, d, opts)
}

// defaultAdapters returns the built-in adapter for every protocol.
func defaultAdapters() map[Protocol]Adapter {
	return map[Protocol]Adapter{
		PlainHTTP: &plainAdapter{},
		JSONHTTP:  &jsonAdapter{},
		DNS:       &dnsAdapter{port: "53"},
	}
}

// httpGet fetches endpoint through the optional proxy and returns its body.
func httpGet(ctx context.Context, endpoint string, opts Options) ([]byte, error) {
	transport := &http.Transport{
		Proxy:             http.ProxyFromEnvironment,
		DisableKeepAlives: true,
	}
	if opts.Proxy != nil {
		transport.Proxy = http.ProxyURL(&url.URL{Scheme: "http", Host: opts.Proxy.String()})
	}
	client := &http.Client{Transport: transport, Timeout: transportDeadline(opts.Timeout)}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, &ConnectionFailedError{Endpoint: endpoint, Err: err}
	}
	req.Header.Set("User-Agent", "gip")
	resp, err := client.Do(req)
	if err != nil {
		return nil, &ConnectionFailedError{Endpoint: endpoint, Err: err}
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &ConnectionFailedError{Endpoint: endpoint, Err: errors.Errorf("unexpected status %s", resp.Status)}
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, &ConnectionFailedError{Endpoint: endpoint, Err: errors.Wrap(err, "read body")}
	}
	return body, nil
}

// extractAddr parses the first run of address characters in s.
func extractAddr(s string) (string, error) {
	run := addrRun.FindString(s)
	if run == "" {
		return "", &AddrParseError{Raw: s}
	}
	return run, nil
}
