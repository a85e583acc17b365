package ip

import (
	"context"
	"strings"
	"time"
)

// plainAdapter reads a bare address literal from an HTTP body.
type plainAdapter struct{}

func (p *plainAdapter) Attempt(ctx context.Context, d Descriptor, opts Options) (Address, error) {
	started := time.Now()
	body, err := httpGet(ctx, d.Endpoint, opts)
	if err != nil {
		return Address{}, err
	}
	addr, err := parseAddr(d.Family, strings.TrimSpace(string(body)))
	if err != nil {
		return Address{}, &AddrParseError{Raw: string(body)}
	}
	return newAddress(d, addr, started), nil
}
