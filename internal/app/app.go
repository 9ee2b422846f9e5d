package app

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"orctorrent/internal/api"
	"orctorrent/internal/config"
	"orctorrent/internal/core"
	"orctorrent/internal/engine"
	"orctorrent/internal/engine/native"
	"orctorrent/internal/event"
	"orctorrent/internal/geoip"
	"orctorrent/internal/logger"
	"orctorrent/internal/poller"
	"orctorrent/internal/service"
	"orctorrent/internal/store"
	"orctorrent/internal/vpn"

	"go.uber.org/zap"
)

const shutdownTimeout = 5 * time.Second

type App struct {
	version string
	config  *config.Config
	logger  *zap.Logger
	store   *store.DB
	bus     *event.Bus
	geo     *geoip.Resolver

	engine *native.NativeEngine
	state  *core.State
	poller *poller.Poller

	torrentService *service.TorrentService
	policyService  *service.PolicyService

	httpServer *http.Server

	ctx    context.Context
	cancel context.CancelFunc
}

func New(ctx context.Context, version string) (*App, error) {
	cfg := config.Load()
	if err := cfg.LoadFile(); err != nil {
		return nil, err
	}

	l := logger.New(cfg.LogLevel, cfg.LogDev)

	warnings, err := cfg.Validate()
	if err != nil {
		return nil, err
	}
	for _, w := range warnings {
		l.Warn("configuration warning", zap.String("warning", w))
	}

	db, err := store.New(cfg.DataDir)
	if err != nil {
		return nil, err
	}

	bus := event.NewBus()

	eng := native.NewNativeEngine(native.Options{
		MetadataDir:       filepath.Join(cfg.DataDir, "engine"),
		DownloadDir:       cfg.DownloadDir,
		ListenPort:        cfg.File.ListenPort,
		NoUPnP:            cfg.NoUPnP,
		NoDHT:             cfg.NoDHT,
		DownloadRateLimit: cfg.DownloadRateLimit,
		UploadRateLimit:   cfg.UploadRateLimit,
	}, l)

	guarded := engine.NewGuarded(eng, engine.DefaultBreakerThreshold, engine.DefaultBreakerReset)
	detector := vpn.NewDetector(l)

	opts := core.Options{Engine: guarded, Detector: detector, Logger: l}
	var geo *geoip.Resolver
	if cfg.GeoIPPath != "" {
		geo, err = geoip.Open(cfg.GeoIPPath)
		if err != nil {
			l.Warn("geoip database unavailable, peer countries disabled",
				zap.String("path", cfg.GeoIPPath), zap.Error(err))
		} else {
			opts.GeoIP = geo
		}
	}
	state := core.New(opts)

	ts := service.NewTorrentService(state, guarded, db, bus, service.TorrentOptions{
		DownloadDir:     cfg.DownloadDir,
		MetadataTimeout: cfg.MetadataTimeout,
	}, l)
	ps := service.NewPolicyService(state, guarded, detector, db, bus, l)

	appCtx, cancel := context.WithCancel(ctx)

	router := api.NewRouter(api.RouterOptions{
		AdminToken: cfg.AdminToken,
		RateLimit:  cfg.APIRateLimit,
		RateBurst:  cfg.APIRateBurst,
		Logger:     l,
	})
	router.MountV1(router.V1(api.Handlers{
		Torrents: api.NewTorrentHandler(ts),
		Policy:   api.NewPolicyHandler(ps),
		System:   api.NewSystemHandler(state, guarded, version, cancel),
		Events:   api.NewEventHandler(bus),
		WS:       api.NewWSHandler(bus, l),
	}))

	return &App{
		version:        version,
		config:         cfg,
		logger:         l,
		store:          db,
		bus:            bus,
		geo:            geo,
		engine:         eng,
		state:          state,
		poller:         poller.New(state, bus, poller.DefaultInterval, l),
		torrentService: ts,
		policyService:  ps,
		httpServer: &http.Server{
			Addr:              cfg.Bind,
			Handler:           router.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		},
		ctx:    appCtx,
		cancel: cancel,
	}, nil
}

func (a *App) Events() *event.Bus {
	return a.bus
}

func (a *App) Start() error {
	if err := a.StartEngine(); err != nil {
		return err
	}
	return a.StartServer()
}

// StartEngine starts the transfer engine, restores persisted settings and
// torrents, then begins reconciling.
func (a *App) StartEngine() error {
	if err := a.engine.Start(a.ctx); err != nil {
		return err
	}

	if err := a.policyService.RestoreSettings(a.ctx); err != nil {
		a.logger.Warn("failed to restore settings", zap.Error(err))
	}

	n, err := a.torrentService.Restore(a.ctx)
	if err != nil {
		a.logger.Warn("failed to restore session", zap.Error(err))
	} else if n > 0 {
		a.logger.Info("session restored", zap.Int("torrents", n))
	}

	go a.poller.Run(a.ctx)
	return nil
}

func (a *App) StartServer() error {
	go func() {
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server failed", zap.Error(err))
			a.cancel()
		}
	}()

	logger.PrintBanner(logger.StartupInfo{
		Version:     a.version,
		Addr:        a.httpServer.Addr,
		DataDir:     a.config.DataDir,
		DownloadDir: a.config.DownloadDir,
		ListenPort:  a.config.File.ListenPort,
		LogLevel:    a.config.LogLevel,
		AuthEnabled: a.config.AdminToken != "",
	})
	return nil
}

func (a *App) Stop() {
	a.logger.Info("shutting down")
	a.cancel()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Warn("http shutdown", zap.Error(err))
	}

	if err := a.engine.Stop(); err != nil {
		a.logger.Warn("engine stop", zap.Error(err))
	}
	if a.geo != nil {
		a.geo.Close()
	}
	a.store.Close()
	a.logger.Sync()
}

// Run blocks until SIGINT, SIGTERM or an admin shutdown request.
func (a *App) Run() error {
	if err := a.Start(); err != nil {
		return err
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case <-quit:
	case <-a.ctx.Done():
	}

	a.Stop()
	return nil
}
