// Command zframe-relay runs ROUTER/DEALER brokers and XSUB/XPUB proxies as
// a standalone process with an HTTP admin endpoint.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/multifrost/zframe"
)

type globalFlags struct {
	logLevel  string
	console   bool
	adminAddr string
	interval  time.Duration
	noReg     bool
}

func main() {
	var gf globalFlags

	rootCmd := &cobra.Command{
		Use:   "zframe-relay",
		Short: "Run zframe brokers and proxies",
		Long: `zframe-relay binds message relays and keeps them running until
interrupted.

  broker   ROUTER/DEALER request broker
  proxy    XSUB/XPUB publish/subscribe proxy
  run      every relay listed in a TOML file`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&gf.logLevel, "log-level", "info", "trace, debug, info, warn, error or off")
	rootCmd.PersistentFlags().BoolVar(&gf.console, "console", false, "human readable log output")
	rootCmd.PersistentFlags().StringVar(&gf.adminAddr, "admin", zframe.DefaultAdminListenAddr, "admin HTTP listen address, empty to disable")
	rootCmd.PersistentFlags().DurationVar(&gf.interval, "interval", zframe.DefaultPollInterval, "pause between relay iterations")
	rootCmd.PersistentFlags().BoolVar(&gf.noReg, "no-register", false, "do not record relays in the relay registry")

	rootCmd.AddCommand(
		brokerCmd(&gf),
		proxyCmd(&gf),
		runCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func (gf *globalFlags) config() zframe.RelayConfig {
	cfg := zframe.DefaultRelayConfig()
	cfg.Log.Level = gf.logLevel
	cfg.Log.Console = gf.console
	cfg.AdminListenAddr = gf.adminAddr
	cfg.PollInterval = gf.interval
	cfg.Register = !gf.noReg
	return cfg
}

func brokerCmd(gf *globalFlags) *cobra.Command {
	var name, frontend, backend string

	cmd := &cobra.Command{
		Use:   "broker",
		Short: "Relay requests between a ROUTER and a DEALER",
		Example: `  zframe-relay broker --frontend tcp://*:5559 --backend tcp://*:5560
  zframe-relay broker --name jobs --frontend ipc:///tmp/jobs.front --backend ipc:///tmp/jobs.back`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := gf.config()
			cfg.Brokers = []zframe.BrokerConfig{{Name: name, Frontend: frontend, Backend: backend}}
			return serve(cfg)
		},
	}
	cmd.Flags().StringVar(&name, "name", "broker", "relay name")
	cmd.Flags().StringVar(&frontend, "frontend", "tcp://*:5559", "ROUTER endpoint, clients connect here")
	cmd.Flags().StringVar(&backend, "backend", "tcp://*:5560", "DEALER endpoint, workers connect here")
	return cmd
}

func proxyCmd(gf *globalFlags) *cobra.Command {
	var name, publish, subscribe string

	cmd := &cobra.Command{
		Use:     "proxy",
		Short:   "Forward published messages from an XSUB to an XPUB",
		Example: `  zframe-relay proxy --subscribe tcp://*:6000 --publish tcp://*:6001`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := gf.config()
			cfg.Proxies = []zframe.ProxyConfig{{Name: name, Publish: publish, Subscribe: subscribe}}
			return serve(cfg)
		},
	}
	cmd.Flags().StringVar(&name, "name", "proxy", "relay name")
	cmd.Flags().StringVar(&publish, "publish", "tcp://*:6001", "XPUB endpoint, subscribers connect here")
	cmd.Flags().StringVar(&subscribe, "subscribe", "tcp://*:6000", "XSUB endpoint, publishers connect here")
	return cmd
}

func runCmd() *cobra.Command {
	var path string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run every relay in a config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := zframe.LoadRelayConfig(path)
			if err != nil {
				return err
			}
			return serve(cfg)
		},
	}
	cmd.Flags().StringVarP(&path, "config", "c", "zframe-relay.toml", "TOML config file")
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("zframe-relay", zframe.Version)
		},
	}
}

// serve runs the relays in cfg until SIGINT or SIGTERM.
func serve(cfg zframe.RelayConfig) error {
	if err := zframe.ValidateRelayConfig(cfg); err != nil {
		return err
	}
	zframe.ConfigureLogging(cfg.Log)
	logger := zframe.Logger()

	sup, err := startRelays(cfg)
	if err != nil {
		return err
	}

	var srv *http.Server
	if cfg.AdminListenAddr != "" {
		handler, err := newAdminRouter(sup)
		if err != nil {
			return errors.Join(err, sup.stop())
		}
		srv = &http.Server{
			Addr:              cfg.AdminListenAddr,
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			logger.Info().Str("addr", cfg.AdminListenAddr).Msg("admin listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error().Err(err).Msg("admin server failed")
			}
		}()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	logger.Info().Str("signal", sig.String()).Msg("shutting down")

	var errs []error
	if srv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		errs = append(errs, srv.Shutdown(ctx))
		cancel()
	}
	errs = append(errs, sup.stop())
	return errors.Join(errs...)
}
