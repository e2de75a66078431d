package app

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/trufnetwork/creddigest/cmd/version"
	"github.com/trufnetwork/creddigest/extensions/tn_creddigest"
	"github.com/trufnetwork/creddigest/extensions/tn_creddigest/metrics"
)

// rootOptions carries the persistent flags and what PersistentPreRunE derives
// from them.
type rootOptions struct {
	configPath string
	dbPath     string
	logLevel   string

	cfg    tn_creddigest.Config
	logger *zap.Logger
}

// RootCmd creates the creddigestd command tree.
func RootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "creddigestd",
		Short:         "Verifiable credential digest registry",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.load(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if opts.logger != nil {
				_ = opts.logger.Sync()
			}
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "YAML configuration file")
	flags.StringVar(&opts.dbPath, "db", "", "SQLite registry file (empty keeps the registry in memory)")
	flags.StringVar(&opts.logLevel, "log-level", "", "log level (debug, info, warn, error)")

	cmd.AddCommand(
		newVerifyCmd(opts),
		newAddressCmd(opts, "attester"),
		newAddressCmd(opts, "holder"),
		newStatusCmd(opts),
		newRecordsCmd(opts),
		newSignCmd(),
		newKeygenCmd(),
		newInspectCmd(),
		newServeCmd(opts),
		version.NewVersionCmd(),
	)

	return cmd
}

// load resolves configuration: file and environment first, then explicitly set
// flags.
func (o *rootOptions) load(cmd *cobra.Command) error {
	cfg, err := tn_creddigest.LoadConfig(o.configPath)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("db") {
		cfg.DBPath = o.dbPath
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = o.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	zap.ReplaceGlobals(logger)

	o.cfg = cfg
	o.logger = logger
	return nil
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(strings.TrimSpace(level))
	if err != nil {
		return nil, errors.Wrapf(err, "parse log level %q", level)
	}

	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(lvl)
	// stdout carries command output
	zcfg.OutputPaths = []string{"stderr"}
	logger, err := zcfg.Build()
	if err != nil {
		return nil, errors.Wrap(err, "build logger")
	}
	return logger, nil
}

// openRegistry builds a registry over the configured store. The returned close
// function releases the store.
func (o *rootOptions) openRegistry(ctx context.Context) (*tn_creddigest.Registry, func() error, error) {
	logger := o.logger
	if logger == nil {
		logger = zap.NewNop()
	}

	var store tn_creddigest.Store
	if o.cfg.DBPath == "" {
		logger.Debug("using in-memory registry store")
		store = tn_creddigest.NewMemoryStore()
	} else {
		s, err := tn_creddigest.OpenSQLiteStore(ctx, o.cfg.DBPath,
			tn_creddigest.WithSQLiteLogger(logger),
			tn_creddigest.WithBusyTimeout(o.cfg.BusyTimeout))
		if err != nil {
			return nil, nil, errors.Wrapf(err, "open registry store %s", o.cfg.DBPath)
		}
		store = s
	}

	regOpts := []tn_creddigest.Option{
		tn_creddigest.WithLogger(logger),
		tn_creddigest.WithNotifier(tn_creddigest.NewLogNotifier(logger.Named("notifications"))),
	}
	if o.cfg.MetricsEnabled {
		regOpts = append(regOpts, tn_creddigest.WithMetrics(metrics.NewMetricsRecorder(logger)))
	}

	registry, err := tn_creddigest.NewRegistry(store, regOpts...)
	if err != nil {
		_ = store.Close()
		return nil, nil, err
	}
	return registry, store.Close, nil
}
