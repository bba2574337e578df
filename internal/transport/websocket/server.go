package websocket

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/playcaro/caro-backend/internal/dispatch"
	"github.com/playcaro/caro-backend/internal/transport"
)

// Server exposes the same envelope protocol over websocket for browser
// clients. Each text message carries exactly one envelope, so no stream
// framing is needed here; everything downstream of the router is shared
// with the TCP transport.
type Server struct {
	logger   *slog.Logger
	router   *transport.Router
	table    *dispatch.Table
	upgrader websocket.Upgrader
}

func New(logger *slog.Logger, router *transport.Router, table *dispatch.Table) *Server {
	return &Server{
		logger: logger.With("component", "websocket"),
		router: router,
		table:  table,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// Start serves the /ws endpoint until the context is cancelled.
func (that *Server) Start(ctx context.Context, port string) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		that.serveConn(ctx, w, r)
	})

	srv := &http.Server{
		Addr:        ":" + port,
		Handler:     mux,
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 30 * time.Second,
	}

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}

func (that *Server) serveConn(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	conn, err := that.upgrader.Upgrade(w, r, nil)
	if err != nil {
		that.logger.Error("failed to upgrade connection", "error", err)
		return
	}

	sink := &wsSink{conn: conn}
	connID := that.table.Attach(sink)

	log := that.logger.With("conn_id", connID, "remote", conn.RemoteAddr().String())
	log.Info("websocket connection established")

	that.router.HandleConnect(connID)

	defer func() {
		that.table.Detach(connID)
		that.router.HandleDisconnect(connID)
		_ = conn.Close()
		log.Info("websocket connection closed")
	}()

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			log.Debug("read loop ended", "error", err)
			return
		}

		if messageType != websocket.TextMessage {
			continue
		}

		that.router.HandleEnvelope(ctx, connID, data)
	}
}

// wsSink is the outbound half of one websocket connection.
type wsSink struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (that *wsSink) WriteEnvelope(data []byte) error {
	that.mu.Lock()
	defer that.mu.Unlock()

	if err := that.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("failed to write envelope: %w", err)
	}

	return nil
}

func (that *wsSink) Close() error {
	if err := that.conn.Close(); err != nil {
		return fmt.Errorf("failed to close connection: %w", err)
	}

	return nil
}
