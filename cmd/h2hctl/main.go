// h2hctl is a diagnostic utility for the host-to-host link protocol.
package main

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/fluxkit/h2h-go/h2h"
	"github.com/fluxkit/h2h-go/transport"
)

var (
	flagAddr    string
	flagConfig  string
	flagType    string
	flagTimeout time.Duration
	flagVerbose bool
)

func main() {
	root := &cobra.Command{
		Use:           "h2hctl",
		Short:         "talk to a device over the host-to-host link",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flagAddr, "addr", "", "device address (tcp://, unix://, ws://, quic://)")
	root.PersistentFlags().StringVar(&flagConfig, "config", "", "TOML config file")
	root.PersistentFlags().StringVar(&flagType, "type", "", "channel type to open")
	root.PersistentFlags().DurationVar(&flagTimeout, "timeout", 0, "per-operation timeout")
	root.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "debug logging")

	root.AddCommand(infoCmd())
	root.AddCommand(callCmd())
	root.AddCommand(pushCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "h2hctl:", err)
		os.Exit(1)
	}
}

// newApp resolves flags against the optional config file.
func newApp() (*app, error) {
	cfg, err := loadConfig(flagConfig)
	if err != nil {
		return nil, err
	}
	if flagAddr != "" {
		cfg.Addr = flagAddr
	}
	if flagType != "" {
		cfg.Type = flagType
	}
	if flagTimeout != 0 {
		cfg.Timeout = flagTimeout
	}
	if cfg.Addr == "" {
		return nil, fmt.Errorf("no device address (--addr or config file)")
	}

	level := zerolog.WarnLevel
	if flagVerbose || cfg.Verbose {
		level = zerolog.DebugLevel
	}
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(level).With().Timestamp().Logger()

	return &app{cfg: cfg, log: log}, nil
}

type app struct {
	cfg config
	log zerolog.Logger
}

func (a *app) connect() (*h2h.Connection, error) {
	tr, err := dial(a.cfg.Addr)
	if err != nil {
		return nil, err
	}
	return h2h.Connect(tr, h2h.WithLogger(a.log))
}

func dial(addr string) (transport.Transport, error) {
	u, err := url.Parse(addr)
	if err != nil {
		return nil, err
	}
	switch u.Scheme {
	case "tcp":
		return transport.DialTCP(u.Host)
	case "unix":
		return transport.DialUnix(u.Path)
	case "ws":
		return transport.DialWS(u.Host)
	case "quic":
		return transport.DialQUIC(context.Background(), u.Host, nil)
	default:
		return nil, fmt.Errorf("unsupported address scheme %q", u.Scheme)
	}
}
