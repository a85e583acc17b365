package config

import (
	"net"
	"strconv"

	"github.com/pkg/errors"
)

// ParseProxy splits a "host:port" proxy string and validates the port.
func ParseProxy(proxy string) (string, uint16, error) {
	host, port, err := net.SplitHostPort(proxy)
	if err != nil {
		return "", 0, errors.Wrapf(err, "proxy format error: %s ( must be \"host:port\" format )", proxy)
	}
	if host == "" {
		return "", 0, errors.Errorf("proxy format error: %s ( empty host )", proxy)
	}

	port64, err := strconv.ParseUint(port, 10, 16)
	if err != nil {
		return "", 0, errors.Wrap(err, "invalid proxy port")
	}
	if port64 == 0 {
		return "", 0, errors.New("invalid proxy port: 0")
	}
	return host, uint16(port64), nil
}
