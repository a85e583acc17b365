package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"text/tabwriter"
	"time"

	"github.com/gip/gip/config"
	"github.com/gip/gip/ip"
	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli"
)

const failed = "Failed"

// Resolve prints the global address, or the provider list with --list.
func Resolve(c *cli.Context) error {
	cfg := appConfig(c)
	providers, err := config.LoadProviders(cfg)
	if err != nil {
		log.Error().Err(err).Msg("Failed to load providers")
		return cli.NewExitError(err.Error(), 2)
	}

	if c.GlobalBool("list") {
		return printList(c.App.Writer, providers.List())
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	addr, err := providers.Resolve(ctx, cfg.AddressFamily)
	f := format(c)
	if err != nil {
		logFailure(err)
		_ = f.print(c.App.Writer, cfg.JSONKey, nil)
		return cli.NewExitError("", 1)
	}
	return f.print(c.App.Writer, cfg.JSONKey, &addr)
}

type outputFormat int

const (
	plane outputFormat = iota
	unbroken
	jsonLine
	verbose
)

func format(c *cli.Context) outputFormat {
	switch {
	case c.GlobalBool("verbose"):
		return verbose
	case c.GlobalBool("string"):
		return unbroken
	case c.GlobalBool("json"):
		return jsonLine
	default:
		return plane
	}
}

// print writes addr in format f, or the failure marker when addr is nil.
func (f outputFormat) print(w io.Writer, jsonKey string, addr *ip.Address) error {
	text := failed
	if addr != nil {
		text = addr.String()
	}

	var err error
	switch f {
	case verbose:
		provider, checked, latency := "-", "-", "-"
		if addr != nil {
			provider = addr.Provider
			checked = addr.ObservedAt.Format(time.RFC1123Z)
			latency = addr.Latency.Round(time.Millisecond).String()
		}
		_, err = fmt.Fprintf(w, "IP Address: %s\nProvider  : %s\nCheck Time: %s\nLatency   : %s\n", text, provider, checked, latency)
	case unbroken:
		_, err = fmt.Fprint(w, text)
	case jsonLine:
		var line []byte
		line, err = jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(map[string]string{jsonKey: text})
		if err == nil {
			_, err = fmt.Fprintf(w, "%s\n", line)
		}
	default:
		_, err = fmt.Fprintln(w, text)
	}
	return errors.Wrap(err, "write output")
}

func printList(w io.Writer, entries []ip.Entry) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, e := range entries {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\n", e.Name, e.Family, e.Protocol)
	}
	return errors.Wrap(tw.Flush(), "write provider list")
}

func logFailure(err error) {
	var all *ip.AllProvidersFailedError
	if !errors.As(err, &all) {
		log.Error().Err(err).Msg("Failed to resolve address")
		return
	}
	if len(all.Errors) == 0 {
		log.Warn().Msg("No provider for the requested address family")
		return
	}
	for _, cause := range all.Errors {
		log.Warn().Err(cause).Msg("Provider failed")
	}
}
