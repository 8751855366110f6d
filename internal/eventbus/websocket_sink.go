package eventbus

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// WebSocketSink is an Observer that fans out every event as a JSON frame to
// a set of connected watchers - a GUI, a CLI tail, anything external per
// spec §1's "external collaborators" - while keeping the dispatch contract
// itself (the Bus) entirely in-process. Grounded on the teacher's
// internal/network/websocket_server.go connection-registry idiom and on
// internal/concurrency's ID-keyed-map-under-RWMutex bookkeeping.
type WebSocketSink struct {
	mu          sync.RWMutex
	conns       map[int]*websocket.Conn
	nextID      int
	sendTimeout time.Duration
}

// NewWebSocketSink builds a sink whose per-connection writes are bounded by
// sendTimeout, so one stalled watcher cannot stall the engine beyond that
// bound (spec §5: a blocking observer still stalls the engine, but this
// sink turns an unbounded stall into a configured one).
func NewWebSocketSink(sendTimeout time.Duration) *WebSocketSink {
	if sendTimeout <= 0 {
		sendTimeout = 2 * time.Second
	}
	return &WebSocketSink{conns: make(map[int]*websocket.Conn), sendTimeout: sendTimeout}
}

// Add registers a new watcher connection and returns a handle for Remove.
func (w *WebSocketSink) Add(conn *websocket.Conn) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	id := w.nextID
	w.nextID++
	w.conns[id] = conn
	return id
}

// Remove closes and forgets a watcher connection.
func (w *WebSocketSink) Remove(handle int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if c, ok := w.conns[handle]; ok {
		c.Close()
		delete(w.conns, handle)
	}
}

// OnEvent implements Observer by broadcasting ev to every connected watcher.
func (w *WebSocketSink) OnEvent(ev Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return
	}
	w.mu.RLock()
	defer w.mu.RUnlock()
	for _, c := range w.conns {
		c.SetWriteDeadline(time.Now().Add(w.sendTimeout))
		_ = c.WriteMessage(websocket.TextMessage, payload)
	}
}

// Count reports the number of connected watchers.
func (w *WebSocketSink) Count() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.conns)
}
