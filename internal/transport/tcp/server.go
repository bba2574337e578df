package tcp

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"github.com/playcaro/caro-backend/internal/dispatch"
	"github.com/playcaro/caro-backend/internal/protocol"
	"github.com/playcaro/caro-backend/internal/transport"
)

const readBufferSize = 4096

// Server accepts persistent stream connections and drives one read loop
// per connection: raw bytes through the framer, then one envelope at a
// time into the router, fully synchronously before reading more.
type Server struct {
	logger *slog.Logger
	router *transport.Router
	table  *dispatch.Table

	// tlsConfig, when set, wraps the accept boundary. Orthogonal to
	// everything above it.
	tlsConfig *tls.Config
}

func New(logger *slog.Logger, router *transport.Router, table *dispatch.Table, tlsConfig *tls.Config) *Server {
	return &Server{
		logger:    logger.With("component", "tcp"),
		router:    router,
		table:     table,
		tlsConfig: tlsConfig,
	}
}

// Start listens on the port and serves until the context is cancelled.
func (that *Server) Start(ctx context.Context, port string) error {
	listener, err := net.Listen("tcp", ":"+port)
	if err != nil {
		return fmt.Errorf("failed to listen on port %s: %w", port, err)
	}

	if that.tlsConfig != nil {
		listener = tls.NewListener(listener, that.tlsConfig)
	}

	go func() {
		<-ctx.Done()
		_ = listener.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("failed to accept connection: %w", err)
		}

		go that.handleConn(ctx, conn)
	}
}

func (that *Server) handleConn(ctx context.Context, conn net.Conn) {
	sink := &connSink{conn: conn}
	connID := that.table.Attach(sink)

	log := that.logger.With("conn_id", connID, "remote", conn.RemoteAddr().String())
	log.Info("connection established")

	that.router.HandleConnect(connID)

	defer func() {
		that.table.Detach(connID)
		that.router.HandleDisconnect(connID)
		_ = conn.Close()
		log.Info("connection closed")
	}()

	framer := &protocol.Framer{}
	buf := make([]byte, readBufferSize)

	for {
		n, err := conn.Read(buf)
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				log.Debug("read loop ended", "error", err)
			}
			return
		}

		for _, frame := range framer.Feed(buf[:n]) {
			that.router.HandleEnvelope(ctx, connID, frame)
		}
	}
}

// connSink is the outbound half of one TCP connection. Writes are
// serialized by a mutex so concurrent pushes never interleave envelopes.
type connSink struct {
	mu   sync.Mutex
	conn net.Conn
}

func (that *connSink) WriteEnvelope(data []byte) error {
	that.mu.Lock()
	defer that.mu.Unlock()

	if _, err := that.conn.Write(data); err != nil {
		return fmt.Errorf("failed to write envelope: %w", err)
	}

	return nil
}

func (that *connSink) Close() error {
	if err := that.conn.Close(); err != nil {
		return fmt.Errorf("failed to close connection: %w", err)
	}

	return nil
}
