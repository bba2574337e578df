package application

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/playcaro/caro-backend/internal/config"
	"github.com/playcaro/caro-backend/internal/dispatch"
	"github.com/playcaro/caro-backend/internal/repository"
	"github.com/playcaro/caro-backend/internal/repository/storage"
	"github.com/playcaro/caro-backend/internal/repository/storage/sqlite"
	"github.com/playcaro/caro-backend/internal/service"
	"github.com/playcaro/caro-backend/internal/transport"
	"github.com/playcaro/caro-backend/internal/transport/tcp"
	"github.com/playcaro/caro-backend/internal/transport/websocket"
)

// RunApp - runs the application.
func RunApp(logger *slog.Logger, conf *config.Config) error {
	log := logger.With("component", "app")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigs
		log.Info("Received signal, shutting down", "signal", sig)
		cancel()
	}()

	users, closeStorage, err := newUserRepository(ctx, conf)
	if err != nil {
		return fmt.Errorf("could not set up profile store: %w", err)
	}
	defer func() {
		if err = closeStorage(); err != nil {
			log.Error("could not close profile store", "error", err)
		}
	}()

	table := dispatch.NewTable(logger)
	sessions := service.NewRegistry(logger, users)
	rooms := service.NewRoomManager(logger, sessions, table, conf.Game.BoardSize, conf.Game.DefaultTimeLimit())
	director := service.NewDirector(logger, rooms, sessions, users, table,
		conf.Game.SweepInterval(), conf.Game.InactivityTimeout())
	router := transport.NewRouter(logger, sessions, rooms, director, table)

	go director.RunSweeps(ctx)

	var tlsConfig *tls.Config
	if conf.TLS.Enabled() {
		cert, certErr := tls.LoadX509KeyPair(conf.TLS.CertFile, conf.TLS.KeyFile)
		if certErr != nil {
			return fmt.Errorf("could not load TLS keypair: %w", certErr)
		}
		tlsConfig = &tls.Config{Certificates: []tls.Certificate{cert}}
	}

	// run TCP stream server
	tcpErrCh := make(chan error, 1)
	go func() {
		log.Info("Starting TCP server", "port", conf.SocketPort, "tls", tlsConfig != nil)
		tcpServer := tcp.New(logger, router, table, tlsConfig)
		if tcpErr := tcpServer.Start(ctx, conf.SocketPort); tcpErr != nil {
			log.Error("TCP server error", "error", tcpErr)
			tcpErrCh <- tcpErr
		}
	}()

	// run websocket server when configured
	wsErrCh := make(chan error, 1)
	if conf.WebSocketPort != "" {
		go func() {
			log.Info("Starting WebSocket server", "port", conf.WebSocketPort)
			wsServer := websocket.New(logger, router, table)
			if wsErr := wsServer.Start(ctx, conf.WebSocketPort); wsErr != nil {
				log.Error("WebSocket server error", "error", wsErr)
				wsErrCh <- wsErr
			}
		}()
	}

	select {
	case err = <-tcpErrCh:
		return fmt.Errorf("TCP server error: %w", err)
	case err = <-wsErrCh:
		return fmt.Errorf("WebSocket server error: %w", err)
	case <-ctx.Done():
		log.Info("Application context canceled, shutting down")
		return nil
	}
}

// newUserRepository builds the configured profile store backend and returns
// it together with its close function.
func newUserRepository(ctx context.Context, conf *config.Config) (repository.UserRepository, func() error, error) {
	switch conf.Storage.Backend {
	case "redis":
		redisStorage, err := storage.New(ctx, conf.Storage.Redis.GetRedisAddr())
		if err != nil {
			return nil, nil, fmt.Errorf("could not connect to redis storage: %w", err)
		}

		return repository.NewRedisUserRepository(redisStorage.Connection), redisStorage.Close, nil

	case "sqlite":
		sqliteStorage, err := sqlite.New(conf.Storage.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("could not open sqlite storage: %w", err)
		}

		if err = sqliteStorage.Init(ctx); err != nil {
			return nil, nil, fmt.Errorf("could not init sqlite storage: %w", err)
		}

		return repository.NewSQLiteUserRepository(sqliteStorage.Connection), sqliteStorage.Close, nil

	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", conf.Storage.Backend)
	}
}
