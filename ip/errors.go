package ip

import (
	"fmt"
	"strings"
	"time"
)

// ConfigError reports a malformed provider table.
type ConfigError struct {
	Err error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid provider config: %s", e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// ConnectionFailedError reports a transport level failure.
type ConnectionFailedError struct {
	Endpoint string
	Err      error
}

func (e *ConnectionFailedError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("failed to connect (%s)", e.Endpoint)
	}
	return fmt.Sprintf("failed to connect (%s): %s", e.Endpoint, e.Err)
}

func (e *ConnectionFailedError) Unwrap() error {
	return e.Err
}

// TimeoutError is returned when an attempt did not finish within its poll budget.
type TimeoutError struct {
	Endpoint string
	Timeout  time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("failed by timeout to %s (%dms)", e.Endpoint, e.Timeout.Milliseconds())
}

// AddrParseError reports a response without an address literal of the expected family.
type AddrParseError struct {
	Raw string
}

func (e *AddrParseError) Error() string {
	return fmt.Sprintf("failed to parse address (%s)", e.Raw)
}

// JSONError reports a JSON response that could not be navigated to an address string.
type JSONError struct {
	Endpoint string
	Reason   string
	Err      error
}

func (e *JSONError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("invalid json from %s: %s", e.Endpoint, e.Reason)
	}
	return fmt.Sprintf("invalid json from %s: %s: %s", e.Endpoint, e.Reason, e.Err)
}

func (e *JSONError) Unwrap() error {
	return e.Err
}

// DNSParseError reports an endpoint that is not of the form query@resolver.
type DNSParseError struct {
	Endpoint string
}

func (e *DNSParseError) Error() string {
	return fmt.Sprintf("failed to parse dns endpoint (%s): must be \"query@resolver\"", e.Endpoint)
}

// AllProvidersFailedError carries every per-provider failure in attempt order.
type AllProvidersFailedError struct {
	Errors []error
}

func (e *AllProvidersFailedError) Error() string {
	if len(e.Errors) == 0 {
		return "all providers failed to get address: no provider available"
	}
	msgs := make([]string, 0, len(e.Errors))
	for _, err := range e.Errors {
		msgs = append(msgs, err.Error())
	}
	return fmt.Sprintf("all providers failed to get address: %s", strings.Join(msgs, "; "))
}

func (e *AllProvidersFailedError) Unwrap() []error {
	return e.Errors
}
