package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gip/gip/ip"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

var (
	prefix = "gip"
	files  = []string{"gip.config.development", "gip.config"}
)

type Config struct {
	Timeout       int    `default:"1000"`
	Proxy         string
	ProvidersFile string `split_words:"true"`
	Family        string `default:"IPv4"`
	JSONKey       string `default:"ip" split_words:"true"`
	LogLevel      string `default:"warn" split_words:"true"`

	ServeAddress       string   `default:":5050" split_words:"true"`
	TLSCertFile        string   `split_words:"true"`
	TLSKeyFile         string   `split_words:"true"`
	CorsAllowedOrigins []string `split_words:"true"`
	TrustProxyHeaders  bool     `split_words:"true"`

	RelayAddress   string   `default:":3478" split_words:"true"`
	RelayRealm     string   `default:"gip" split_words:"true"`
	RelayUsers     []string `split_words:"true"`
	RelayPortRange string   `split_words:"true"`

	AddressFamily ip.Family `ignored:"true"`
	ProxyHost     string    `ignored:"true"`
	ProxyPort     uint16    `ignored:"true"`
}

// LoadConfig firstly load config file to environment variables, then parse environment variables to generate Config.
func LoadConfig() (*Config, error) {
	dir, err := configDir()
	if err != nil {
		return nil, err
	}
	file, err := loadConfigFile(dir)
	if err != nil {
		return nil, err
	}
	if file == "" {
		log.Debug().Str("dir", dir).Msg("No config file, environment only")
	} else {
		log.Debug().Str("file", file).Msg("Config file loaded")
	}

	log.Debug().Msg("Begin to process env config")
	config := &Config{}
	if err := envconfig.Process(prefix, config); err != nil {
		return nil, errors.Wrap(err, "process env config")
	}
	log.Debug().Msg("Env config processed")

	if config.Timeout < 0 {
		return nil, errors.Errorf("invalid timeout: %d", config.Timeout)
	}
	family, err := ip.ParseFamily(config.Family)
	if err != nil {
		return nil, err
	}
	config.AddressFamily = family

	if config.Proxy != "" {
		host, port, err := ParseProxy(config.Proxy)
		if err != nil {
			return nil, err
		}
		config.ProxyHost, config.ProxyPort = host, port
	}

	if config.RelayPortRange != "" {
		log.Debug().Msg("Begin to parse port range")
		minport, maxport, err := config.parsePortRange()
		if err != nil {
			return nil, err
		} else if minport == 0 || maxport == 0 || minport > maxport {
			return nil, errors.New("invalid port range")
		}
		log.Debug().Msg("Port range parsed")
	}

	log.Debug().Msg("All config loaded")
	return config, nil
}

// TimeoutDuration returns the per provider timeout.
func (c *Config) TimeoutDuration() time.Duration {
	return time.Duration(c.Timeout) * time.Millisecond
}

// CheckOrigin reports whether origin is allowed by CorsAllowedOrigins. Every origin is allowed when
// the list is empty.
func (c *Config) CheckOrigin(origin string) bool {
	if len(c.CorsAllowedOrigins) == 0 || origin == "" {
		return true
	}
	for _, allowed := range c.CorsAllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}

// parsePortRange parses the relay port range "min:max".
func (c *Config) parsePortRange() (uint16, uint16, error) {
	parts := strings.Split(c.RelayPortRange, ":")
	if len(parts) != 2 {
		return 0, 0, errors.New("port range must include one colon")
	}

	min64, err := strconv.ParseUint(parts[0], 10, 16)
	if err != nil {
		return 0, 0, errors.Wrap(err, "invalid min")
	}
	max64, err := strconv.ParseUint(parts[1], 10, 16)
	if err != nil {
		return 0, 0, errors.Wrap(err, "invalid max")
	}
	return uint16(min64), uint16(max64), nil
}

// PortRange returns the relay port range and whether one is configured.
func (c *Config) PortRange() (uint16, uint16, bool) {
	if c.RelayPortRange == "" {
		return 0, 0, false
	}
	minport, maxport, err := c.parsePortRange()
	return minport, maxport, err == nil && minport != 0 && maxport != 0 && minport <= maxport
}

// configDir is the directory searched for gip.config files: the work dir in Dev mode, the directory of
// the gip binary in Prod mode.
func configDir() (string, error) {
	if CurrentMode() == Dev {
		dir, err := os.Getwd()
		return dir, errors.Wrap(err, "locate work dir")
	}
	bin, err := os.Executable()
	if err != nil {
		return "", errors.Wrap(err, "locate gip binary")
	}
	return filepath.Dir(bin), nil
}

// loadConfigFile exports the first of files found in dir into the environment. Variables already set
// win over the file. It returns the loaded path, or "" when dir holds none.
func loadConfigFile(dir string) (string, error) {
	for _, name := range files {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			return "", errors.Wrapf(err, "load %s", path)
		}
		return path, nil
	}
	return "", nil
}
