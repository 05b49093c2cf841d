// Package app composes the daemon from its parts via fx.
package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/pigeonmsg/pigeon/internal/bus"
	"github.com/pigeonmsg/pigeon/internal/convo"
	"github.com/pigeonmsg/pigeon/internal/httpapi"
	"github.com/pigeonmsg/pigeon/internal/lock"
	"github.com/pigeonmsg/pigeon/internal/logging"
	"github.com/pigeonmsg/pigeon/internal/message"
	"github.com/pigeonmsg/pigeon/internal/presence"
	"github.com/pigeonmsg/pigeon/internal/session"
	"github.com/pigeonmsg/pigeon/internal/store"
	"github.com/pigeonmsg/pigeon/internal/summary"
	"github.com/pigeonmsg/pigeon/internal/typing"
)

// Params holds the resolved startup configuration passed to the fx module.
type Params struct {
	SessionName string
	UserID      string
	ListenAddr  string
}

// Module returns the fx module for the daemon, composing all providers and
// lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("pigeond",
		fx.Supply(p),
		fx.Provide(
			provideLogger,
			provideBus,
			provideLock,
			provideStore,
			provideSession,
			provideConvoService,
			provideMessageService,
			provideTypingManager,
			providePresenceTracker,
			provideSummaryAggregator,
			provideServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideLogger(p Params) (*zap.Logger, error) {
	return logging.New(session.LogPath(p.SessionName), p.SessionName)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := session.EnsureDir(p.SessionName); err != nil {
		return nil, err
	}
	logger.Info("acquiring session lock", zap.String("session", p.SessionName))
	l, err := lock.Acquire(session.Dir(p.SessionName))
	if err != nil {
		return nil, err
	}
	logger.Info("session lock acquired")
	return l, nil
}

func provideStore(p Params, logger *zap.Logger) (*store.DB, error) {
	dbPath := session.DBPath(p.SessionName)
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

func provideSession(p Params) *session.Session {
	return session.New(p.UserID)
}

func provideConvoService(db *store.DB, b *bus.Bus, logger *zap.Logger) *convo.Service {
	return convo.NewService(db, b, logger)
}

func provideMessageService(db *store.DB, b *bus.Bus, logger *zap.Logger) *message.Service {
	return message.NewService(db, b, logger)
}

func provideTypingManager(db *store.DB, b *bus.Bus, logger *zap.Logger) *typing.Manager {
	return typing.NewManager(db, b, logger)
}

func providePresenceTracker(db *store.DB, b *bus.Bus, logger *zap.Logger) *presence.Tracker {
	return presence.NewTracker(db, b, logger)
}

func provideSummaryAggregator(db *store.DB, b *bus.Bus, logger *zap.Logger) *summary.Aggregator {
	return summary.NewAggregator(db, b, logger)
}

func provideServer(logger *zap.Logger, sess *session.Session, db *store.DB, convos *convo.Service, messages *message.Service, typingMgr *typing.Manager, tracker *presence.Tracker, summaries *summary.Aggregator) *httpapi.Server {
	return httpapi.New(logger, sess, db, convos, messages, typingMgr, tracker, summaries)
}

func registerLifecycle(lc fx.Lifecycle, p Params, srv *httpapi.Server, tracker *presence.Tracker, sess *session.Session, db *store.DB, lk *lock.Lock, logger *zap.Logger) {
	httpServer := &http.Server{
		Addr:    p.ListenAddr,
		Handler: srv.Router(),
	}

	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			if userID, err := sess.UserID(); err == nil {
				if err := tracker.SetOnline(userID); err != nil {
					logger.Warn("presence online failed", zap.Error(err))
				}
			}

			go func() {
				logger.Info("http server listening", zap.String("addr", p.ListenAddr))
				if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("http server error", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			srv.CloseComposers()

			// Best effort: stamp last_seen before the store goes away.
			if userID, err := sess.UserID(); err == nil {
				if err := tracker.SetOffline(userID); err != nil {
					logger.Warn("presence offline failed", zap.Error(err))
				}
			}

			shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				logger.Warn("http server shutdown", zap.Error(err))
			}
			if err := db.Close(); err != nil {
				logger.Warn("error closing store", zap.Error(err))
			}
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			return nil
		},
	})
}
