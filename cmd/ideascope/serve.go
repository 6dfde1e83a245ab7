package main

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/mohammad-safakhou/ideascope/config"
	srv "github.com/mohammad-safakhou/ideascope/internal/server"
	"github.com/spf13/cobra"
)

func serveCMD() *cobra.Command {
	var serveAddr string
	var cfgPath string
	var serve = &cobra.Command{
		Use:   "serve",
		Short: "Run HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return err
			}
			if serveAddr == "" {
				serveAddr = cfg.Server.Address
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			opts := []srv.RunsOption{
				srv.WithRecorder(a.tel),
				srv.WithLogger(a.logger("[RUNS] ")),
				srv.WithRetention(cfg.Server.RunRetention),
			}
			if a.pg != nil {
				opts = append(opts, srv.WithBundleStore(a.pg))
			}
			s := srv.New(srv.NewRunsHandler(a.service, opts...), a.tel)

			if cfg.Telemetry.Enabled && cfg.Telemetry.MetricsPort > 0 {
				metricsAddr := fmt.Sprintf(":%d", cfg.Telemetry.MetricsPort)
				go func() {
					if err := http.ListenAndServe(metricsAddr, a.tel.Handler()); err != nil && !errors.Is(err, http.ErrServerClosed) {
						log.Printf("metrics listener: %v", err)
					}
				}()
			}
			return s.Run(ctx, serveAddr)
		},
	}
	serve.Flags().StringVar(&serveAddr, "addr", "", "listen address (default server.address)")
	serve.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is .)")

	return serve
}
