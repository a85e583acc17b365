package ip

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

var testDescriptor = Descriptor{Name: "fake", Family: V4, Protocol: PlainHTTP, Endpoint: "http://fake.invalid/"}

func TestExecuteReturnsResult(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	want := netip.MustParseAddr("203.0.113.7")
	adapter := AdapterFunc(func(ctx context.Context, d Descriptor, opts Options) (Address, error) {
		return Address{Family: d.Family, Addr: want, Provider: d.Name}, nil
	})

	start := time.Now()
	addr, err := Execute(context.Background(), adapter, testDescriptor, Options{Timeout: time.Second})
	require.NoError(t, err)
	assert.Equal(t, want, addr.Addr)
	assert.Less(t, time.Since(start), PollInterval, "a finished attempt must not wait for the next poll")
}

func TestExecuteReturnsError(t *testing.T) {
	adapter := AdapterFunc(func(ctx context.Context, d Descriptor, opts Options) (Address, error) {
		return Address{}, &ConnectionFailedError{Endpoint: d.Endpoint}
	})

	_, err := Execute(context.Background(), adapter, testDescriptor, Options{Timeout: time.Second})
	var connErr *ConnectionFailedError
	require.True(t, errors.As(err, &connErr), "got %v", err)
}

func TestExecuteTimeout(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	for _, timeout := range []time.Duration{0, 150 * time.Millisecond, 300 * time.Millisecond} {
		adapter := AdapterFunc(func(ctx context.Context, d Descriptor, opts Options) (Address, error) {
			<-ctx.Done()
			return Address{}, ctx.Err()
		})

		start := time.Now()
		_, err := Execute(context.Background(), adapter, testDescriptor, Options{Timeout: timeout})
		elapsed := time.Since(start)

		var timeoutErr *TimeoutError
		require.True(t, errors.As(err, &timeoutErr), "got %v", err)
		assert.Equal(t, testDescriptor.Endpoint, timeoutErr.Endpoint)
		assert.Equal(t, timeout, timeoutErr.Timeout)
		assert.GreaterOrEqual(t, elapsed, timeout)
		assert.Less(t, elapsed, timeout+PollInterval+schedulingSlack)
	}
}

// schedulingSlack absorbs goroutine and ticker scheduling delays on a loaded machine.
const schedulingSlack = 50 * time.Millisecond

func TestExecuteUnansweredProviders(t *testing.T) {
	stop := make(chan struct{})
	hanging := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-stop:
		}
	}))
	defer hanging.Close()
	defer close(stop)

	silent, err := net.ListenPacket("udp4", "127.0.0.1:0")
	require.NoError(t, err)
	defer silent.Close()
	_, port, err := net.SplitHostPort(silent.LocalAddr().String())
	require.NoError(t, err)
	loopback := func(ctx context.Context, network, host string) ([]netip.Addr, error) {
		return []netip.Addr{netip.MustParseAddr("127.0.0.1")}, nil
	}

	cases := []struct {
		name    string
		adapter Adapter
		desc    Descriptor
	}{
		{"plain", &plainAdapter{}, Descriptor{Name: "hanging", Family: V4, Protocol: PlainHTTP, Endpoint: hanging.URL}},
		{"json", &jsonAdapter{}, Descriptor{Name: "hanging", Family: V4, Protocol: JSONHTTP, Endpoint: hanging.URL, JSONPath: []string{"ip"}}},
		{"dns", &dnsAdapter{port: port, lookup: loopback}, Descriptor{Name: "silent", Family: V4, Protocol: DNS, Endpoint: "myip.example@resolver.test"}},
	}
	for _, c := range cases {
		for _, timeout := range []time.Duration{250 * time.Millisecond, 300 * time.Millisecond} {
			t.Run(fmt.Sprintf("%s/%s", c.name, timeout), func(t *testing.T) {
				start := time.Now()
				_, err := Execute(context.Background(), c.adapter, c.desc, Options{Timeout: timeout})
				elapsed := time.Since(start)

				var timeoutErr *TimeoutError
				require.True(t, errors.As(err, &timeoutErr), "got %v", err)
				assert.Equal(t, c.desc.Endpoint, timeoutErr.Endpoint)
				assert.Equal(t, timeout, timeoutErr.Timeout)
				assert.GreaterOrEqual(t, elapsed, timeout)
				assert.Less(t, elapsed, timeout+PollInterval+schedulingSlack)
			})
		}
	}
}

func TestTransportDeadline(t *testing.T) {
	for _, timeout := range []time.Duration{0, 250 * time.Millisecond, 300 * time.Millisecond, time.Second} {
		budget := time.Duration(polls(timeout)) * PollInterval
		assert.Equal(t, budget+PollInterval, transportDeadline(timeout), timeout)
	}
}

func TestExecuteDropsLateResult(t *testing.T) {
	var delivered atomic.Int32
	release := make(chan struct{})
	adapter := AdapterFunc(func(ctx context.Context, d Descriptor, opts Options) (Address, error) {
		// ignores cancellation on purpose
		<-release
		delivered.Add(1)
		return Address{Addr: netip.MustParseAddr("203.0.113.7")}, nil
	})

	_, err := Execute(context.Background(), adapter, testDescriptor, Options{Timeout: 100 * time.Millisecond})
	var timeoutErr *TimeoutError
	require.True(t, errors.As(err, &timeoutErr), "got %v", err)

	close(release)
	assert.Eventually(t, func() bool { return delivered.Load() == 1 }, time.Second, 10*time.Millisecond)
}

func TestExecuteCallerCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	adapter := AdapterFunc(func(ctx context.Context, d Descriptor, opts Options) (Address, error) {
		<-ctx.Done()
		return Address{}, ctx.Err()
	})

	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()
	start := time.Now()
	_, err := Execute(ctx, adapter, testDescriptor, Options{Timeout: 10 * time.Second})
	assert.Error(t, err)
	assert.Less(t, time.Since(start), time.Second)
}

func TestPolls(t *testing.T) {
	assert.Equal(t, 1, polls(0))
	assert.Equal(t, 1, polls(50*time.Millisecond))
	assert.Equal(t, 1, polls(100*time.Millisecond))
	assert.Equal(t, 2, polls(101*time.Millisecond))
	assert.Equal(t, 10, polls(time.Second))
}
