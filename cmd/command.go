package cmd

import (
	"os"
	"strings"

	"github.com/gip/gip/config"
	"github.com/gip/gip/ip"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli"
)

// Version is overridden at build time with -ldflags "-X github.com/gip/gip/cmd.Version=...".
var Version = "0.7.0"

func Run() {
	err := NewApp().Run(os.Args)
	if err != nil {
		log.Fatal().Err(err).Msg("app error")
	}
}

// NewApp builds the gip command line application.
func NewApp() *cli.App {
	zerolog.SetGlobalLevel(zerolog.WarnLevel)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	app := cli.NewApp()
	app.Name = "gip"
	app.Usage = "show global ip address"
	app.Version = Version
	app.Flags = []cli.Flag{
		cli.BoolFlag{Name: "plane, p", Usage: "Show by plane text ( default )"},
		cli.BoolFlag{Name: "string, s", Usage: "Show by plane text without line break"},
		cli.BoolFlag{Name: "json, j", Usage: "Show by JSON"},
		cli.IntFlag{Name: "timeout", Usage: "Timeout per each provider by milliseconds", Value: 1000},
		cli.StringFlag{Name: "json-key", Usage: "Key string of JSON format", Value: "ip"},
		cli.StringFlag{Name: "proxy", Usage: "Proxy for HTTP access ( \"host:port\" )"},
		cli.StringFlag{Name: "providers", Usage: "Provider table file ( TOML or YAML )"},
		cli.BoolFlag{Name: "v4, 4", Usage: "Show IPv4 address ( default )"},
		cli.BoolFlag{Name: "v6, 6", Usage: "Show IPv6 address"},
		cli.BoolFlag{Name: "list, l", Usage: "Show provider list"},
		cli.BoolFlag{Name: "verbose, V", Usage: "Show verbose message"},
	}
	app.Before = before
	app.Action = Resolve
	app.Commands = []cli.Command{
		{
			Name:    "serve",
			Usage:   "Serve the caller address and this host's public address over HTTP",
			Aliases: []string{"s"},
			Flags: []cli.Flag{
				cli.StringFlag{Name: "address", Usage: "Listen address"},
				cli.BoolFlag{Name: "trust-proxy-headers", Usage: "Take the requester address from X-Forwarded-For / X-Real-IP"},
			},
			Action: Serve,
		},
		{
			Name:  "relay",
			Usage: "Start a TURN relay advertising this host's public address",
			Flags: []cli.Flag{
				cli.StringFlag{Name: "address", Usage: "Listen address"},
				cli.StringFlag{Name: "realm", Usage: "TURN realm"},
				cli.StringSliceFlag{Name: "user", Usage: "Relay user as \"name:pass\""},
			},
			Action: Relay,
		},
	}
	return app
}

// before loads the environment config and applies the global flags to it.
func before(c *cli.Context) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Error().Err(err).Msg("Failed to load config")
		return cli.NewExitError(err.Error(), 2)
	}
	applyFlags(c, cfg)

	level, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil {
		return cli.NewExitError(errors.Wrap(err, "invalid log level").Error(), 2)
	}
	if c.GlobalBool("verbose") {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)

	if c.App.Metadata == nil {
		c.App.Metadata = map[string]interface{}{}
	}
	c.App.Metadata["config"] = cfg
	return nil
}

// applyFlags overrides cfg with the global flags given on the command line.
func applyFlags(c *cli.Context, cfg *config.Config) {
	if c.GlobalIsSet("timeout") {
		cfg.Timeout = c.GlobalInt("timeout")
	}
	if c.GlobalIsSet("json-key") {
		cfg.JSONKey = c.GlobalString("json-key")
	}
	if c.GlobalIsSet("providers") {
		cfg.ProvidersFile = c.GlobalString("providers")
	}
	if c.GlobalBool("v6") {
		cfg.AddressFamily = ip.V6
	} else if c.GlobalBool("v4") {
		cfg.AddressFamily = ip.V4
	}
	if c.GlobalIsSet("proxy") {
		host, port, err := config.ParseProxy(c.GlobalString("proxy"))
		if err != nil {
			log.Warn().Err(err).Msg("Ignore proxy")
			return
		}
		cfg.Proxy = c.GlobalString("proxy")
		cfg.ProxyHost, cfg.ProxyPort = host, port
	}
}

func appConfig(c *cli.Context) *config.Config {
	cfg, _ := c.App.Metadata["config"].(*config.Config)
	return cfg
}
