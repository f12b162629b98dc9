package lancer

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/louisbranch/lancer-system/internal/platform/config"
	"github.com/louisbranch/lancer-system/internal/platform/i18n/catalog"
	"github.com/louisbranch/lancer-system/internal/platform/logging"
	platformotel "github.com/louisbranch/lancer-system/internal/platform/otel"
	"github.com/louisbranch/lancer-system/internal/platform/timeouts"
	"github.com/louisbranch/lancer-system/internal/systems/lancer/migration"
	"github.com/louisbranch/lancer-system/internal/systems/lancer/reference"
	"github.com/louisbranch/lancer-system/internal/systems/lancer/storage/sqlite"
)

const serviceName = "lancer"

// app is the state shared by every subcommand of one invocation.
type app struct {
	cfg    Config
	out    io.Writer
	logger *zap.Logger

	// setupTracing defaults to platformotel.Setup.
	setupTracing    func(context.Context, platformotel.Config) (func(context.Context) error, error)
	shutdownTracing func(context.Context) error
}

// Execute runs the lancer command line with args.
func Execute(ctx context.Context, cfg Config, out io.Writer, args []string) error {
	return (&app{cfg: cfg, out: out}).execute(ctx, args)
}

// execute runs the command tree and always tears down what setup started,
// including when the command fails.
func (a *app) execute(ctx context.Context, args []string) error {
	root := newRootCommand(a)
	root.SetArgs(args)
	defer a.teardown(ctx)
	return root.ExecuteContext(ctx)
}

func newRootCommand(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "lancer",
		Short:         "Maintain Lancer world data",
		Long:          "Migrate, inspect and repair the documents of a Lancer world store.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd.Context())
		},
	}
	root.SetOut(a.out)

	flags := root.PersistentFlags()
	flags.StringVar(&a.cfg.DBPath, "db", a.cfg.DBPath, "Path to the world store")
	flags.StringVar(&a.cfg.SystemVersion, "system-version", a.cfg.SystemVersion, "Running system version")
	flags.StringVar(&a.cfg.Locale, "locale", a.cfg.Locale, "Locale for notices and labels")
	flags.StringVar(&a.cfg.LogLevel, "log-level", a.cfg.LogLevel, "Log level (debug, info, warn, error)")
	flags.BoolVar(&a.cfg.LogJSON, "log-json", a.cfg.LogJSON, "Write logs as JSON")

	root.AddCommand(
		newMigrateCommand(a),
		newCompendiumCommand(a),
		newReferenceCommand(a),
		newWorldCommand(a),
		newStatusesCommand(a),
		newRenderCommand(a),
		newEffectsCommand(a),
		newVersionCommand(a),
	)
	return root
}

func (a *app) setup(ctx context.Context) error {
	if a.logger == nil {
		logger, err := logging.New(a.cfg.LogLevel, a.cfg.LogJSON)
		if err != nil {
			return err
		}
		a.logger = logger
	}
	setupTracing := a.setupTracing
	if setupTracing == nil {
		setupTracing = platformotel.Setup
	}
	shutdown, err := setupTracing(ctx, platformotel.Config{
		ServiceName:    serviceName,
		ServiceVersion: a.cfg.SystemVersion,
		Endpoint:       a.cfg.OTelEndpoint,
		Enabled:        a.cfg.OTelEnabled,
	})
	if err != nil {
		return fmt.Errorf("setup tracing: %w", err)
	}
	a.shutdownTracing = shutdown
	return nil
}

func (a *app) teardown(ctx context.Context) {
	logger := logging.OrNop(a.logger)
	if a.shutdownTracing != nil {
		flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeouts.TraceFlush)
		defer cancel()
		if err := a.shutdownTracing(flushCtx); err != nil {
			logger.Warn("flush traces", zap.Error(err))
		}
		a.shutdownTracing = nil
	}
	_ = logger.Sync()
}

func (a *app) localizer() *catalog.Localizer {
	return catalog.Default().Localizer(a.cfg.Locale)
}

// withStore opens the world store for the duration of fn.
func (a *app) withStore(fn func(store *sqlite.Store) error) (err error) {
	store, err := sqlite.Open(a.cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open world store: %w", err)
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("close world store: %w", closeErr)
		}
	}()
	return fn(store)
}

func (a *app) migrator(store *sqlite.Store) (*migration.Migrator, error) {
	ds, err := reference.Embedded()
	if err != nil {
		return nil, err
	}
	rebuilder := reference.NewRebuilder(store, ds)
	rebuilder.Logger = a.logger

	m := migration.New(store, a.cfg.SystemVersion)
	m.Reference = rebuilder
	m.Logger = a.logger
	m.Localizer = a.localizer()
	m.Notifier = notifier{w: a.out}
	return m, nil
}

// notifier prints operator notices on the command output.
type notifier struct {
	w io.Writer
}

func (n notifier) Notify(_ context.Context, notice migration.Notice) {
	prefix := strings.ToUpper(notice.Level.String())
	if notice.Sticky {
		prefix += "*"
	}
	fmt.Fprintf(n.w, "[%s] %s\n", prefix, notice.Message)
}

// Fatal reports err on stderr and exits.
func Fatal(err error) {
	config.Exitf("Error: %v", err)
}
