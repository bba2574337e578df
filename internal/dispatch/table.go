package dispatch

import (
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Sink is one attached connection's outbound half. WriteEnvelope must be
// safe for concurrent use; implementations serialize writes themselves.
type Sink interface {
	WriteEnvelope(data []byte) error
	Close() error
}

// Table routes outbound envelopes to one or many connections. Sends are
// fire-and-forget: a failed send is logged and swallowed, surfacing only
// through the liveness sweep or the connection's own read failure.
type Table struct {
	logger *slog.Logger

	mu    sync.RWMutex
	conns map[int64]Sink

	nextID atomic.Int64
}

func NewTable(logger *slog.Logger) *Table {
	return &Table{
		logger: logger.With("component", "dispatch"),
		conns:  make(map[int64]Sink),
	}
}

// Attach registers a connection and allocates its id.
func (that *Table) Attach(sink Sink) int64 {
	id := that.nextID.Add(1)

	that.mu.Lock()
	that.conns[id] = sink
	that.mu.Unlock()

	return id
}

func (that *Table) Detach(id int64) {
	that.mu.Lock()
	delete(that.conns, id)
	that.mu.Unlock()
}

// Push marshals env and delivers it to one connection, best effort.
func (that *Table) Push(id int64, env any) {
	data, err := json.Marshal(env)
	if err != nil {
		that.logger.Error("failed to marshal envelope", "error", err)
		return
	}

	that.push(id, data)
}

// PushAll delivers one envelope to every listed connection.
func (that *Table) PushAll(ids []int64, env any) {
	data, err := json.Marshal(env)
	if err != nil {
		that.logger.Error("failed to marshal envelope", "error", err)
		return
	}

	for _, id := range ids {
		that.push(id, data)
	}
}

// CloseConn closes the underlying connection, which terminates its read
// loop and triggers the normal disconnect path.
func (that *Table) CloseConn(id int64) {
	that.mu.RLock()
	sink, ok := that.conns[id]
	that.mu.RUnlock()

	if !ok {
		return
	}

	if err := sink.Close(); err != nil {
		that.logger.Debug("failed to close connection", "conn_id", id, "error", err)
	}
}

func (that *Table) push(id int64, data []byte) {
	that.mu.RLock()
	sink, ok := that.conns[id]
	that.mu.RUnlock()

	if !ok {
		return
	}

	if err := sink.WriteEnvelope(data); err != nil {
		that.logger.Debug("failed to send envelope", "conn_id", id, "error", err)
	}
}
