// Package enginetest runs a scripted stand-in for the engine's websocket API
// in tests.
package enginetest

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Handler maps one inbound frame to the frames sent back, in order.
type Handler func(frame []byte) [][]byte

// Engine is an httptest server speaking binary websocket frames.
type Engine struct {
	srv      *httptest.Server
	handler  Handler
	upgrader websocket.Upgrader

	mu       sync.Mutex
	conns    []*websocket.Conn
	received [][]byte
	connects int
}

// New starts an engine serving on /sc2api.
func New(h Handler) *Engine {
	e := &Engine{
		handler: h,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/sc2api", e.serve)
	e.srv = httptest.NewServer(mux)
	return e
}

// URL is the websocket url of the API endpoint.
func (e *Engine) URL() string {
	return "ws" + strings.TrimPrefix(e.srv.URL, "http") + "/sc2api"
}

func (e *Engine) Close() {
	e.mu.Lock()
	for _, c := range e.conns {
		_ = c.Close()
	}
	e.mu.Unlock()
	e.srv.Close()
}

// Received returns copies of every frame read so far.
func (e *Engine) Received() [][]byte {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([][]byte, len(e.received))
	copy(out, e.received)
	return out
}

// Connects counts accepted websocket sessions.
func (e *Engine) Connects() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.connects
}

// Push writes frames to every connected session, unsolicited.
func (e *Engine) Push(frames ...[]byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, c := range e.conns {
		for _, f := range frames {
			_ = c.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := c.WriteMessage(websocket.BinaryMessage, f); err != nil {
				return err
			}
		}
	}
	return nil
}

// Hangup closes every session from the engine side.
func (e *Engine) Hangup() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, c := range e.conns {
		_ = c.Close()
	}
	e.conns = nil
}

func (e *Engine) serve(rw http.ResponseWriter, r *http.Request) {
	conn, err := e.upgrader.Upgrade(rw, r, nil)
	if err != nil {
		return
	}
	e.mu.Lock()
	e.conns = append(e.conns, conn)
	e.connects++
	e.mu.Unlock()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		e.mu.Lock()
		e.received = append(e.received, msg)
		e.mu.Unlock()
		if e.handler == nil {
			continue
		}
		for _, out := range e.handler(msg) {
			e.mu.Lock()
			_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			err := conn.WriteMessage(websocket.BinaryMessage, out)
			e.mu.Unlock()
			if err != nil {
				return
			}
		}
	}
}
