package cmd

import (
	"context"
	"os"
	"os/signal"

	"github.com/gip/gip/config"
	"github.com/gip/gip/ip"
	"github.com/gip/gip/turn"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli"
)

// Relay resolves the public address and runs a TURN relay advertising it until interrupted.
func Relay(c *cli.Context) error {
	cfg := appConfig(c)
	if c.IsSet("address") {
		cfg.RelayAddress = c.String("address")
	}
	if c.IsSet("realm") {
		cfg.RelayRealm = c.String("realm")
	}
	if users := c.StringSlice("user"); len(users) > 0 {
		cfg.RelayUsers = users
	}

	if cfg.AddressFamily != ip.V4 {
		return cli.NewExitError("relay advertises IPv4 addresses only", 1)
	}

	providers, err := config.LoadProviders(cfg)
	if err != nil {
		log.Error().Err(err).Msg("Failed to load providers")
		return cli.NewExitError(err.Error(), 2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	addr, err := providers.Resolve(ctx, cfg.AddressFamily)
	if err != nil {
		logFailure(err)
		return cli.NewExitError("could not resolve public address", 1)
	}
	log.Info().Str("address", addr.String()).Str("provider", addr.Provider).Msg("Public address resolved")

	srv, err := turn.Start(cfg, addr.Addr)
	if err != nil {
		log.Error().Err(err).Msg("Could not start turn server")
		return cli.NewExitError(err.Error(), 1)
	}

	<-ctx.Done()
	log.Info().Msg("Received interrupt signal, shutting down")
	return srv.Close()
}
