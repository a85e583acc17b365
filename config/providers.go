package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/gip/gip/ip"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// userFiles are looked up in the home directory when no providers file is configured.
var userFiles = []string{".gip.toml", ".gip.yaml", ".gip.yml"}

// LoadProviders builds the provider set from the configured providers file, the first user file found
// in the home directory, or the built-in table. Timeout and proxy of c are applied to the set.
func LoadProviders(c *Config, opts ...ip.Option) (*ip.Any, error) {
	path, err := providersFile(c)
	if err != nil {
		return nil, err
	}

	opts = append([]ip.Option{ip.WithTimeout(c.TimeoutDuration())}, opts...)
	if c.ProxyHost != "" {
		opts = append(opts, ip.WithProxy(c.ProxyHost, c.ProxyPort))
	}

	if path == "" {
		log.Debug().Msg("Use built-in providers")
		return ip.Default(opts...)
	}

	text, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read providers file %s", path)
	}
	log.Debug().Str("file", path).Msg("Providers file loaded")
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return ip.FromYAML(string(text), opts...)
	default:
		return ip.FromTOML(string(text), opts...)
	}
}

// providersFile returns the providers file to load, or "" for the built-in table.
func providersFile(c *Config) (string, error) {
	if c.ProvidersFile != "" {
		if _, err := os.Stat(c.ProvidersFile); err != nil {
			return "", errors.Wrap(err, "providers file")
		}
		return c.ProvidersFile, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		log.Debug().Err(err).Msg("No home dir, skip user providers file")
		return "", nil
	}
	for _, name := range userFiles {
		path := filepath.Join(home, name)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
		log.Debug().Str("file", path).Msg("Providers file not exist")
	}
	return "", nil
}
