package app

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/trufnetwork/creddigest/internal/httpapi"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the registry over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("listen") {
				opts.cfg.ListenAddr = listen
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServer(ctx, opts)
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "listen address (overrides listen_addr)")
	return cmd
}

func runServer(ctx context.Context, opts *rootOptions) error {
	registry, closeStore, err := opts.openRegistry(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeStore(); err != nil {
			opts.logger.Warn("failed to close registry store", zap.Error(err))
		}
	}()

	var promRegistry *prometheus.Registry
	if opts.cfg.MetricsEnabled {
		promRegistry = prometheus.NewRegistry()
		promRegistry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	logger := opts.logger.Named("httpapi")
	router := httpapi.NewRouter(httpapi.NewHandler(registry, logger), promRegistry)
	return httpapi.NewServer(opts.cfg.ListenAddr, router, logger).Run(ctx)
}
