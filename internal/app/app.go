package app

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"phase-gap-alerts/internal/alerting"
	"phase-gap-alerts/internal/config"
	"phase-gap-alerts/internal/ingest"
	"phase-gap-alerts/internal/mesh"
	"phase-gap-alerts/internal/scheduler"
	"phase-gap-alerts/internal/service"
	"phase-gap-alerts/internal/storage"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) newFetchers() (ingest.SampleFetcher, ingest.ClarityFetcher) {
	sample := ingest.NewSample(ingest.SampleOptions{
		URL:       a.Config.Ingest.SampleURL,
		Timeout:   a.Config.Ingest.RequestTimeout,
		UserAgent: a.Config.Ingest.UserAgent,
	}, a.Logger)

	clarity := ingest.NewClarity(ingest.ClarityOptions{
		URL:       a.Config.Ingest.ClarityURL,
		Timeout:   a.Config.Ingest.RequestTimeout,
		UserAgent: a.Config.Ingest.UserAgent,
	}, a.Logger)

	return sample, clarity
}

func (a *App) newNotifier() alerting.Notifier {
	if a.Config.Alerting.Telegram.Enabled {
		cfg := a.Config.Alerting.Telegram
		return alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, 10*time.Second, a.Logger)
	}
	return nil
}

func (a *App) newMeshMonitor() *mesh.Monitor {
	var peers []mesh.Peer
	for _, url := range a.Config.Mesh.HTTPPeers {
		peers = append(peers, mesh.NewHTTPPeer(url, a.Config.Mesh.RequestTimeout))
	}
	if a.Config.Mesh.EthRPCURL != "" {
		peers = append(peers, mesh.NewEthPeer(a.Config.Mesh.EthRPCURL, a.Config.Mesh.RequestTimeout))
	}
	return mesh.NewMonitor(peers, a.Logger)
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool)
	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

func (a *App) newService(store *storage.Store, sched *scheduler.Scheduler, notifier alerting.Notifier) *service.Service {
	sample, clarity := a.newFetchers()

	var stores service.Stores
	if store != nil {
		stores = service.Stores{
			Samples:   store,
			Estimates: store,
			Events:    store,
			States:    store,
		}
	}

	return service.New(a.Config, sched, sample, clarity, stores, notifier, a.Logger)
}

// Run executes the long-running convergence watch service.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		a.Logger.Warn().Msg("database.dsn not configured; persistence disabled")
	}
	if closeStore != nil {
		defer closeStore()
	}

	sched := scheduler.New(scheduler.Options{
		Interval:     a.Config.Scheduler.Interval,
		AlignToStart: a.Config.Scheduler.AlignToBucket,
		StartupDelay: a.Config.Scheduler.StartupDelay,
	}, a.Logger)

	svc := a.newService(store, sched, a.newNotifier())

	a.Logger.Info().Msg("starting convergence watch service")
	err = svc.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("convergence watch service stopped")
	return nil
}

// ExportOptions hold parameters for exporting historical samples.
type ExportOptions struct {
	From      *time.Time
	To        *time.Time
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit  int
	Events bool
}

// ReplayOptions configure the replay job.
type ReplayOptions struct {
	From   time.Time
	To     time.Time
	DryRun bool
}

// SimulateOptions configure the synthetic convergence run.
type SimulateOptions struct {
	StartDeg   float64
	RatePerDay float64
	Days       int
	Clarity    float64
}
