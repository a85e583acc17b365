package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/rs/zerolog/log"
)

// Start starts the http/https server and blocks until it is shut down by an interrupt.
func Start(handler http.Handler, address, cert, key string) error {
	listener, err := net.Listen("tcp", address)
	if err != nil {
		log.Error().Err(err).Msg("Failed to create a TCP listener")
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	return Serve(ctx, listener, handler, cert, key)
}

// Serve serves handler on listener until ctx is done, then shuts the server down gracefully.
func Serve(ctx context.Context, listener net.Listener, handler http.Handler, cert, key string) error {
	srv := &http.Server{
		Addr:              listener.Addr().String(),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	shutdown := make(chan error, 2)
	go func() {
		shutdown <- serve(srv, listener, cert, key)
	}()

	go func() {
		<-ctx.Done()
		log.Info().Msg("Received interrupt signal, shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			shutdown <- err
		}
	}()

	err := <-shutdown
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func serve(srv *http.Server, listener net.Listener, cert, key string) error {
	if cert != "" && key != "" {
		log.Debug().Str("address", srv.Addr).Msg("Started HTTPS server")
		return srv.ServeTLS(listener, cert, key)
	}
	log.Debug().Str("address", srv.Addr).Msg("Started HTTP server")
	return srv.Serve(listener)
}
