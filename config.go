/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	bind              string
	clientTimeout     time.Duration
	heartbeatInterval time.Duration
	logFile           string
	metrics           bool
	port              int
	prefix            string
	profile           bool
	roomAttempts      int
	sendBuffer        int
	tlsCert           string
	tlsKey            string
	verbose           bool
	version           bool
}

func (c *Config) validate() error {
	if (c.tlsCert == "") != (c.tlsKey == "") {
		return errors.New("both --tls-cert and --tls-key must be provided together")
	}
	if c.port < 1 || c.port > 65535 {
		return fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.port)
	}
	if c.heartbeatInterval <= 0 {
		return fmt.Errorf("invalid heartbeat interval (must be positive): %s", c.heartbeatInterval)
	}
	if c.clientTimeout <= c.heartbeatInterval {
		return fmt.Errorf("invalid client timeout (must be longer than heartbeat interval %s): %s", c.heartbeatInterval, c.clientTimeout)
	}
	if c.sendBuffer < 1 {
		return fmt.Errorf("invalid send buffer (must be at least 1): %d", c.sendBuffer)
	}
	if c.roomAttempts < 1 {
		return fmt.Errorf("invalid room attempts (must be at least 1): %d", c.roomAttempts)
	}
	return nil
}

func (c *Config) scheme() string {
	if c.tlsCert != "" && c.tlsKey != "" {
		return "https"
	}
	return "http"
}

func newCmd(cfg *Config) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("AVALON")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:           "avalon",
		Short:         "Deals hidden Avalon roles to players gathered in websocket rooms.",
		Args:          cobra.ExactArgs(0),
		SilenceErrors: true,
		Version:       releaseVersion,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.validate(); err != nil {
				return err
			}

			logger := newLogger(cfg)
			defer func() { _ = logger.Sync() }()

			return ServePage(cmd.Context(), cfg, logger)
		},
	}

	fs := cmd.Flags()

	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.StringVarP(&cfg.bind, "bind", "b", "0.0.0.0", "address to bind to (env: AVALON_BIND)")
	fs.DurationVar(&cfg.clientTimeout, "client-timeout", 10*time.Second, "time without a pong before a client is dropped (env: AVALON_CLIENT_TIMEOUT)")
	fs.DurationVar(&cfg.heartbeatInterval, "heartbeat-interval", 5*time.Second, "time between pings sent to each client (env: AVALON_HEARTBEAT_INTERVAL)")
	fs.StringVar(&cfg.logFile, "log-file", "", "also write logs to this file, rotated by size (env: AVALON_LOG_FILE)")
	fs.BoolVar(&cfg.metrics, "metrics", false, "serve prometheus metrics at /metrics (env: AVALON_METRICS)")
	fs.IntVarP(&cfg.port, "port", "p", 8080, "port to listen on (env: AVALON_PORT)")
	fs.StringVar(&cfg.prefix, "prefix", "", "path to prepend to all URLs, for use behind reverse proxy (env: AVALON_PREFIX)")
	fs.BoolVar(&cfg.profile, "profile", false, "register net/http/pprof handlers (env: AVALON_PROFILE)")
	fs.IntVar(&cfg.roomAttempts, "room-attempts", 10, "random room numbers tried before a create fails (env: AVALON_ROOM_ATTEMPTS)")
	fs.IntVar(&cfg.sendBuffer, "send-buffer", 64, "lines queued per client before messages are dropped (env: AVALON_SEND_BUFFER)")
	fs.StringVar(&cfg.tlsCert, "tls-cert", "", "path to tls certificate (env: AVALON_TLS_CERT)")
	fs.StringVar(&cfg.tlsKey, "tls-key", "", "path to tls keyfile (env: AVALON_TLS_KEY)")
	fs.BoolVarP(&cfg.verbose, "verbose", "v", false, "display additional output (env: AVALON_VERBOSE)")
	fs.BoolVarP(&cfg.version, "version", "V", false, "display version and exit (env: AVALON_VERSION)")

	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})

	cmd.AddCommand(newDealCmd())

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("avalon v{{.Version}}\n")

	cmd.SilenceErrors = true
	cmd.SilenceUsage = true

	return cmd
}
