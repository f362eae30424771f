package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	stdhttp "net/http"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/vovakirdan/linechat/internal/admin"
	"github.com/vovakirdan/linechat/internal/auth"
	"github.com/vovakirdan/linechat/internal/chat"
	"github.com/vovakirdan/linechat/internal/config"
	"github.com/vovakirdan/linechat/internal/core"
	"github.com/vovakirdan/linechat/internal/metrics"
	"github.com/vovakirdan/linechat/internal/monitor"
	"github.com/vovakirdan/linechat/internal/store"
	"github.com/vovakirdan/linechat/internal/store/sqlite"
	transporthttp "github.com/vovakirdan/linechat/internal/transport/http"
	"github.com/vovakirdan/linechat/internal/transport/tcp"
)

const startupTimeout = 10 * time.Second

// App wires together core and transport layers.
type App struct {
	cfg       *config.Config
	store     store.Store
	registry  *core.Registry
	processor *admin.Processor
	tcp       *tcp.Server
	http      *stdhttp.Server
	console   *admin.Console
	monitor   *monitor.Monitor
	log       *zerolog.Logger

	stopOnce sync.Once
	stopCh   chan struct{}
}

// New constructs the application with provided configuration.
func New(cfg *config.Config, logger *zerolog.Logger) (*App, error) {
	st, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}
	logger.Info().Str("db_path", cfg.DatabasePath).Msg("database initialized")

	ctx, cancel := context.WithTimeout(context.Background(), startupTimeout)
	defer cancel()

	jwtConfig := &auth.JWTConfig{
		Secret:   []byte(cfg.JWTSecret),
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		TTL:      cfg.JWTTTL,
	}
	authService := auth.NewService(st, jwtConfig)
	if err := bootstrapAdmin(ctx, authService, cfg, logger); err != nil {
		_ = st.Close()
		return nil, err
	}

	registry := core.NewRegistry()
	if err := restoreModeration(ctx, st, registry, logger); err != nil {
		_ = st.Close()
		return nil, err
	}

	m := metrics.New()
	m.RegisterOnline(registry.Count)

	broadcaster := core.NewBroadcaster(registry, logger, m)
	processor := admin.NewProcessor(registry, broadcaster, st, logger, m)

	a := &App{
		cfg:       cfg,
		store:     st,
		registry:  registry,
		processor: processor,
		log:       logger,
		stopCh:    make(chan struct{}),
	}

	handler := chat.NewHandler(registry, broadcaster, processor, authService, chat.Options{
		IdleTimeout:  cfg.IdleTimeout,
		MaxLineBytes: cfg.MaxLineBytes,
		RateLimit:    cfg.RateLimit,
		RateWindow:   cfg.RateWindow,
		Session: core.SessionOptions{
			OutboxSize:   cfg.OutboxSize,
			WriteTimeout: cfg.WriteTimeout,
		},
	}, logger)
	handler.MessageLog = st
	handler.Metrics = m
	handler.OnShutdown = a.Stop

	a.tcp = tcp.NewServer(cfg.Addr, handler, logger)
	if cfg.HTTPAddr != "" {
		a.http = transporthttp.NewServer(transporthttp.Deps{
			Chat:       handler,
			Auth:       authService,
			Processor:  processor,
			Metrics:    m,
			OnShutdown: a.Stop,
		}, cfg, logger)
	}
	if cfg.Console {
		a.console = admin.NewConsole(processor, broadcaster, os.Stdin, os.Stdout, logger)
		a.console.OnShutdown = a.Stop
	}
	a.monitor = monitor.New(cfg.MonitorInterval, monitor.HostSampler, registry.Count, m, logger)

	return a, nil
}

// Stop asks a running App to shut down. Safe to call more than once.
func (a *App) Stop() {
	a.stopOnce.Do(func() { close(a.stopCh) })
}

// TCPAddr returns the bound chat address once Run is listening.
func (a *App) TCPAddr() net.Addr {
	return a.tcp.Addr()
}

// Run serves until ctx is cancelled, Stop is called or a component fails.
func (a *App) Run(ctx context.Context) error {
	serveCtx, stopServing := context.WithCancel(context.Background())
	defer stopServing()
	g, gctx := errgroup.WithContext(serveCtx)

	g.Go(func() error {
		if err := a.tcp.Run(gctx); err != nil {
			return fmt.Errorf("tcp server: %w", err)
		}
		return nil
	})
	if a.http != nil {
		g.Go(func() error {
			a.log.Info().Str("addr", a.http.Addr).Msg("http server listening")
			if err := a.http.ListenAndServe(); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
	}
	if a.console != nil {
		g.Go(func() error { return a.console.Run(gctx) })
	}
	g.Go(func() error { return a.monitor.Run(gctx) })

	g.Go(func() error {
		select {
		case <-ctx.Done():
		case <-a.stopCh:
		case <-gctx.Done():
		}
		a.shutdown()
		stopServing()
		return nil
	})

	err := g.Wait()
	a.cleanup()
	return err
}

// shutdown notifies every session, waits for the notices to flush and stops
// the HTTP server. The TCP acceptor stops when the serve context ends.
func (a *App) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()

	sessions := a.registry.Sessions()
	a.processor.ShutdownAll()
	for _, s := range sessions {
		select {
		case <-s.Done():
		case <-ctx.Done():
		}
	}

	if a.http != nil {
		a.log.Info().Msg("shutting down http server")
		if err := a.http.Shutdown(ctx); err != nil {
			a.log.Warn().Err(err).Msg("http shutdown")
		}
	}
}

// cleanup closes database and other resources.
func (a *App) cleanup() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close store")
		} else {
			a.log.Info().Msg("store closed")
		}
	}
}

func bootstrapAdmin(ctx context.Context, svc *auth.Service, cfg *config.Config, logger *zerolog.Logger) error {
	if cfg.AdminPassword == "" {
		return nil
	}
	created, err := svc.EnsureUser(ctx, cfg.AdminUsername, cfg.AdminPassword, true)
	if err != nil {
		return fmt.Errorf("bootstrap admin: %w", err)
	}
	if created {
		logger.Info().Str("user", cfg.AdminUsername).Msg("admin account created")
	}
	return nil
}

func restoreModeration(ctx context.Context, st store.ModerationStore, registry *core.Registry, logger *zerolog.Logger) error {
	journal, err := st.LoadModeration(ctx)
	if err != nil {
		return fmt.Errorf("load moderation: %w", err)
	}

	m := core.Moderation{
		Banned:   journal.Banned,
		Muted:    journal.Muted,
		Warnings: make(map[string][]core.Warning),
	}
	for _, w := range journal.Warnings {
		m.Warnings[w.Username] = append(m.Warnings[w.Username], core.Warning{Reason: w.Reason, At: w.CreatedAt})
	}
	registry.Restore(m)

	logger.Info().
		Int("banned", len(m.Banned)).
		Int("muted", len(m.Muted)).
		Int("warnings", len(journal.Warnings)).
		Msg("moderation state restored")
	return nil
}
