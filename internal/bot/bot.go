// Package bot wires the Discord session, the interaction handlers, the
// activity tracker and the maintenance jobs into one process.
package bot

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/guildkeep/guildkeep/internal/application"
	"github.com/guildkeep/guildkeep/internal/bus"
	"github.com/guildkeep/guildkeep/internal/config"
	"github.com/guildkeep/guildkeep/internal/cron"
	"github.com/guildkeep/guildkeep/internal/discord"
	"github.com/guildkeep/guildkeep/internal/ledger"
	"github.com/guildkeep/guildkeep/internal/logging"
	"github.com/guildkeep/guildkeep/internal/stats"
	"github.com/guildkeep/guildkeep/internal/store"
)

const (
	JobCheckpoint     = "stats-checkpoint"
	JobPruneCooldowns = "prune-cooldowns"

	jobTimeout      = time.Minute
	shutdownTimeout = 10 * time.Second
)

// API is the REST client every handler shares. *discordgo.Session
// implements it.
type API interface {
	discord.Interactor
	ledger.Messenger
	application.Platform
}

// Options replace the real Discord connection and process signals (for
// testing).
type Options struct {
	Logger     *zap.Logger
	Gateway    discord.Gateway
	API        API // required with Gateway
	SignalChan chan os.Signal
}

type Bot struct {
	cfg        *config.Config
	log        *zap.Logger
	store      *store.Store
	bus        *bus.Bus
	session    *discord.Session
	router     *discord.Router
	tracker    *stats.Tracker
	cron       *cron.Service
	signalChan chan os.Signal

	shutdownOnce sync.Once
	shutdownErr  error
}

// New creates a Bot connected to Discord with the configured token.
func New(cfg *config.Config) (*Bot, error) {
	return NewWithOptions(cfg, Options{})
}

func NewWithOptions(cfg *config.Config, opts Options) (*Bot, error) {
	log := opts.Logger
	if log == nil {
		var err error
		if log, err = logging.New(cfg.Log); err != nil {
			return nil, fmt.Errorf("create logger: %w", err)
		}
	}
	if opts.Gateway != nil && opts.API == nil {
		return nil, errors.New("options: API is required with a custom gateway")
	}

	registry := ledger.DefaultRegistry()
	if path := cfg.Ledger.CategoriesFile; path != "" {
		var err error
		if registry, err = ledger.LoadRegistryFile(path); err != nil {
			return nil, fmt.Errorf("load categories: %w", err)
		}
	}

	st, err := store.Open(cfg.StorePath())
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	b := &Bot{
		cfg:        cfg,
		log:        log.Named("bot"),
		store:      st,
		bus:        bus.New(bus.DefaultBufSize, log),
		signalChan: opts.SignalChan,
	}

	var api API
	if opts.Gateway != nil {
		b.session = discord.NewWithGateway(opts.Gateway, b.bus, log)
		api = opts.API
	} else {
		if b.session, err = discord.New(cfg.Discord, b.bus, log); err != nil {
			_ = st.Close()
			return nil, err
		}
		api = b.session.API()
	}

	b.router = discord.NewRouter(api, cfg.Discord.InteractionTimeout, log)

	updaterOpts := []ledger.UpdaterOption{ledger.WithThreadName(cfg.Ledger.ThreadName)}
	if cfg.Ledger.AllowConcurrentUpdates {
		updaterOpts = append(updaterOpts, ledger.WithoutSerialization())
	}
	updater := ledger.NewUpdater(api, registry, log, updaterOpts...)
	ledger.NewHandlers(updater, api, log).Register(b.router)

	b.tracker = stats.NewTracker(st, cfg.Stats.GameKeywords, log)
	stats.NewHandlers(b.tracker, st, cfg.Stats, log).Register(b.router)

	application.NewHandlers(api, st, cfg.Applications, log).Register(b.router)

	b.session.SetRouter(b.router)

	b.cron = cron.NewService(log, jobTimeout)
	if err := b.addJobs(); err != nil {
		_ = st.Close()
		return nil, err
	}
	return b, nil
}

func (b *Bot) addJobs() error {
	if err := b.cron.AddJob(JobCheckpoint, b.cfg.Stats.CheckpointSchedule, func(ctx context.Context) (string, error) {
		return "", b.tracker.Checkpoint(ctx)
	}); err != nil {
		return err
	}
	return b.cron.AddJob(JobPruneCooldowns, b.cfg.Stats.PruneSchedule, func(ctx context.Context) (string, error) {
		n, err := b.store.PruneCooldowns(ctx, time.Now())
		return fmt.Sprintf("pruned %d", n), err
	})
}

func (b *Bot) Router() *discord.Router { return b.router }

func (b *Bot) Jobs() []cron.JobState { return b.cron.Jobs() }

// Run connects to Discord and serves until ctx is done or a termination
// signal arrives, then shuts down.
func (b *Bot) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := b.session.Open(); err != nil {
		return errors.Join(err, b.Shutdown())
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		b.tracker.Run(gctx, b.bus)
		return nil
	})
	if err := b.cron.Start(gctx); err != nil {
		b.log.Warn("cron start", zap.Error(err))
	}
	// Cooldowns that ran out while the bot was down would otherwise wait
	// for the next scheduled prune.
	if err := b.cron.RunNow(JobPruneCooldowns); err != nil {
		b.log.Warn("startup prune", zap.Error(err))
	}

	// Use injected signal channel for testing, or create default
	sigCh := b.signalChan
	if sigCh == nil {
		sigCh = make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigCh)
	}
	g.Go(func() error {
		select {
		case sig := <-sigCh:
			b.log.Info("signal received", zap.Stringer("signal", sig))
		case <-gctx.Done():
		}
		cancel()
		return nil
	})

	b.log.Info("running",
		zap.Int("commands", len(discord.Commands())),
		zap.Int("jobs", len(b.cron.Jobs())))

	err := g.Wait()
	b.log.Info("shutting down")
	return errors.Join(err, b.Shutdown())
}

// Shutdown stops intake first, then lets in-flight interactions finish
// before the store closes. Safe to call more than once.
func (b *Bot) Shutdown() error {
	b.shutdownOnce.Do(func() {
		var errs []error
		b.cron.Stop()
		if err := b.session.Close(); err != nil {
			errs = append(errs, err)
		}
		b.router.Wait()

		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := b.tracker.Close(ctx); err != nil {
			errs = append(errs, err)
		}
		if dropped := b.bus.Dropped(); dropped > 0 {
			b.log.Warn("activity events dropped during run", zap.Int64("dropped", dropped))
		}
		if err := b.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close store: %w", err))
		}
		b.shutdownErr = errors.Join(errs...)
		b.log.Info("shutdown complete")
	})
	return b.shutdownErr
}
