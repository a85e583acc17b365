package cmd

import (
	"github.com/gip/gip/config"
	"github.com/gip/gip/ip"
	"github.com/gip/gip/router"
	"github.com/gip/gip/server"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli"
)

// Serve runs the HTTP endpoints until interrupted.
func Serve(c *cli.Context) error {
	cfg := appConfig(c)
	if c.IsSet("address") {
		cfg.ServeAddress = c.String("address")
	}
	if c.Bool("trust-proxy-headers") {
		cfg.TrustProxyHeaders = true
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	providers, err := config.LoadProviders(cfg, ip.WithRegisterer(reg))
	if err != nil {
		log.Error().Err(err).Msg("Failed to load providers")
		return cli.NewExitError(err.Error(), 2)
	}

	r := router.Router(*cfg, providers, reg)
	log.Info().Str("address", cfg.ServeAddress).Int("providers", len(providers.List())).Msg("gip serve started")
	if err := server.Start(r, cfg.ServeAddress, cfg.TLSCertFile, cfg.TLSKeyFile); err != nil {
		log.Error().Err(err).Msg("Failed to start http server")
		return cli.NewExitError(err.Error(), 1)
	}
	return nil
}
