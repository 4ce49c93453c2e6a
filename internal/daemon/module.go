// Package daemon composes the messaging daemon: store, hub, relay and the
// HTTP surface, wired together with fx and torn down in reverse order on
// shutdown.
package daemon

import (
	"context"
	"os"

	"github.com/creatorhub/messaging/internal/api"
	"github.com/creatorhub/messaging/internal/auth"
	"github.com/creatorhub/messaging/internal/bus"
	"github.com/creatorhub/messaging/internal/chat"
	"github.com/creatorhub/messaging/internal/config"
	"github.com/creatorhub/messaging/internal/hub"
	"github.com/creatorhub/messaging/internal/lock"
	"github.com/creatorhub/messaging/internal/logging"
	"github.com/creatorhub/messaging/internal/outbox"
	"github.com/creatorhub/messaging/internal/store"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Params holds the resolved configuration passed to the fx module.
type Params struct {
	Config *config.Config
}

// Module returns the fx module for the daemon, composing all providers and
// lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideLogger,
			provideBus,
			provideLock,
			provideStore,
			provideVerifier,
			provideHub,
			provideChatService,
			provideHubHandler,
			provideRelay,
			provideAPIHandler,
			NewServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideLogger(p Params) (*zap.Logger, error) {
	return logging.New(p.Config.Server.LogPath(), "messagingd")
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	dataDir := p.Config.Server.DataDir
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, err
	}
	logger.Info("acquiring data dir lock", zap.String("dir", dataDir))
	l, err := lock.Acquire(dataDir)
	if err != nil {
		return nil, err
	}
	logger.Info("data dir lock acquired")
	return l, nil
}

func provideStore(p Params, logger *zap.Logger) (*store.DB, error) {
	dbPath := p.Config.Server.DBPath()
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, err
	}
	result, err := db.Migrate()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if result.Changed {
		logger.Info("migrations applied", zap.Uint("version", result.Version))
	} else {
		logger.Info("migrations up to date", zap.Uint("version", result.Version))
	}
	logger.Info("store initialized", zap.String("path", dbPath))
	return db, nil
}

func provideVerifier(p Params) *auth.Verifier {
	return auth.NewVerifier(p.Config.Server.JWTSecret)
}

func provideHub(b *bus.Bus, logger *zap.Logger) *hub.Hub {
	return hub.New(b, logger)
}

func provideChatService(db *store.DB, b *bus.Bus, logger *zap.Logger) *chat.Service {
	return chat.NewService(db, b, logger)
}

func provideHubHandler(p Params, h *hub.Hub, verifier *auth.Verifier, svc *chat.Service, logger *zap.Logger) *hub.Handler {
	ws := p.Config.WS
	timings := hub.Timings{
		WriteWait:      ws.WriteWait.Duration,
		PongWait:       ws.PongWait.Duration,
		PingInterval:   ws.PingInterval.Duration,
		MaxMessageSize: ws.MaxMessageSize,
	}
	return hub.NewHandler(h, verifier, svc, timings, logger)
}

func provideRelay(db *store.DB, h *hub.Hub, b *bus.Bus, logger *zap.Logger) *outbox.Relay {
	return outbox.NewRelay(db, h, b, logger)
}

func provideAPIHandler(svc *chat.Service, logger *zap.Logger) *api.Handler {
	return api.NewHandler(svc, logger)
}

func registerLifecycle(lc fx.Lifecycle, srv *Server, lk *lock.Lock, relay *outbox.Relay, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			relay.Start(context.Background())

			go func() {
				if err := srv.Start(); err != nil {
					logger.Error("http server error", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			relay.Stop()
			srv.Stop(ctx)
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			return nil
		},
	})
}
