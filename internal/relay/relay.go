// Package relay sits between a bot and the engine: it forwards every frame
// unmodified in both directions and taps engine responses for local
// consumers.
package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"sc2tap.ai/internal/engineclient"
	"sc2tap.ai/internal/protocol"
)

var (
	// ErrUpstreamUnavailable means every upstream connect attempt failed.
	ErrUpstreamUnavailable = engineclient.ErrUnavailable
	// ErrSessionBusy is the answer to a second bot while a session is active.
	ErrSessionBusy = errors.New("relay: session already active")
	// ErrReused is returned when Run is called on a relay that already ran.
	ErrReused = errors.New("relay: instance already used")
)

// State is the session lifecycle. It only moves forward.
type State int32

const (
	StateIdle State = iota
	StateConnectingUpstream
	StateWaitingForClient
	StateBridging
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnectingUpstream:
		return "connecting_upstream"
	case StateWaitingForClient:
		return "waiting_for_client"
	case StateBridging:
		return "bridging"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Direction tags a frame by the way it travels.
type Direction string

const (
	// Upstream frames go bot -> engine.
	Upstream Direction = "up"
	// Downstream frames go engine -> bot.
	Downstream Direction = "down"
)

func (d Direction) Label() string {
	if d == Upstream {
		return "bot->engine"
	}
	return "engine->bot"
}

// FrameSink receives a copy of every forwarded frame. It must not block.
type FrameSink interface {
	RecordFrame(dir Direction, frame []byte)
}

type Config struct {
	ListenAddr      string
	UpstreamURL     string
	ConnectAttempts int
	ConnectDelay    time.Duration
}

const (
	writeWait = 10 * time.Second
	// Log the first decode failure per direction, then every Nth.
	decodeLogEvery = 100
)

// Stats is a point-in-time copy of the relay counters.
type Stats struct {
	State          State
	FramesUp       uint64
	FramesDown     uint64
	DecodeFailures uint64
	Published      uint64
	Dropped        uint64
	Subscribers    int
}

// Relay handles exactly one bot session. A new session needs a new Relay.
type Relay struct {
	cfg  Config
	log  *log.Logger
	id   string
	hub  *Hub
	sink FrameSink

	onResponse  func(protocol.Response)
	callbackBuf int

	state   atomic.Int32
	ready   chan struct{}
	addrMu  sync.Mutex
	addr    string
	claimed atomic.Bool
	closing atomic.Bool

	framesUp       atomic.Uint64
	framesDown     atomic.Uint64
	decodeFailUp   atomic.Uint64
	decodeFailDown atomic.Uint64
	requestKinds   [protocol.KindMapCommand + 1]atomic.Uint64

	upgrader websocket.Upgrader
}

func New(cfg Config, logger *log.Logger) *Relay {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	if cfg.ConnectAttempts <= 0 {
		cfg.ConnectAttempts = engineclient.DefaultAttempts
	}
	return &Relay{
		cfg:   cfg,
		log:   logger,
		id:    uuid.NewString(),
		hub:   NewHub(),
		ready: make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// ID is the session id, unique per Relay.
func (r *Relay) ID() string { return r.id }

func (r *Relay) State() State { return State(r.state.Load()) }

// Ready is closed once the downstream listener is bound.
func (r *Relay) Ready() <-chan struct{} { return r.ready }

// Addr is the bound listen address, valid after Ready.
func (r *Relay) Addr() string {
	r.addrMu.Lock()
	defer r.addrMu.Unlock()
	return r.addr
}

// Subscribe adds a fan-out subscriber. Responses arrive in upstream order;
// a full buffer drops. The channel closes when the session ends.
func (r *Relay) Subscribe(buf int) (<-chan protocol.Response, func()) {
	return r.hub.Subscribe(buf)
}

// OnResponse registers a single callback invoked once per decoded response,
// in upstream order, from one goroutine. Run waits for it to drain before
// returning. It must be called before Run.
func (r *Relay) OnResponse(buf int, fn func(protocol.Response)) {
	r.onResponse = fn
	r.callbackBuf = buf
}

// SetFrameSink installs a raw frame tap. It must be called before Run.
func (r *Relay) SetFrameSink(s FrameSink) { r.sink = s }

func (r *Relay) Stats() Stats {
	return Stats{
		State:          r.State(),
		FramesUp:       r.framesUp.Load(),
		FramesDown:     r.framesDown.Load(),
		DecodeFailures: r.decodeFailUp.Load() + r.decodeFailDown.Load(),
		Published:      r.hub.Published(),
		Dropped:        r.hub.Dropped(),
		Subscribers:    r.hub.Len(),
	}
}

// RequestCount reports how many bot requests of kind k were seen.
func (r *Relay) RequestCount(k protocol.Kind) uint64 {
	if k < 0 || int(k) >= len(r.requestKinds) {
		return 0
	}
	return r.requestKinds[k].Load()
}

func (r *Relay) setState(s State) { r.state.Store(int32(s)) }

// Run drives the session to completion: connect upstream, wait for one bot,
// bridge until either side goes away. A clean close by either peer returns
// nil; retry exhaustion returns an error wrapping ErrUpstreamUnavailable.
func (r *Relay) Run(ctx context.Context) error {
	if !r.state.CompareAndSwap(int32(StateIdle), int32(StateConnectingUpstream)) {
		return ErrReused
	}

	var cbDone chan struct{}
	if r.onResponse != nil {
		ch, _ := r.hub.Subscribe(r.callbackBuf)
		cbDone = make(chan struct{})
		fn := r.onResponse
		go func() {
			defer close(cbDone)
			for resp := range ch {
				fn(resp)
			}
		}()
	}
	defer func() {
		r.hub.Close()
		if cbDone != nil {
			<-cbDone
		}
		r.setState(StateClosed)
	}()

	r.log.Printf("session %s: connecting to %s", r.id, r.cfg.UpstreamURL)
	up, err := engineclient.DialConn(ctx, r.cfg.UpstreamURL, r.cfg.ConnectAttempts, r.cfg.ConnectDelay, r.log)
	if err != nil {
		return err
	}

	ln, err := net.Listen("tcp", r.cfg.ListenAddr)
	if err != nil {
		_ = up.Close()
		return fmt.Errorf("listen %s: %w", r.cfg.ListenAddr, err)
	}
	r.addrMu.Lock()
	r.addr = ln.Addr().String()
	r.addrMu.Unlock()
	r.setState(StateWaitingForClient)
	close(r.ready)
	r.log.Printf("session %s: waiting for bot on %s", r.id, r.Addr())

	accepted := make(chan *websocket.Conn, 1)
	srv := &http.Server{
		Handler:           r.acceptHandler(accepted),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() { _ = srv.Serve(ln) }()
	defer func() { _ = srv.Close() }()

	var bot *websocket.Conn
	select {
	case <-ctx.Done():
		_ = up.Close()
		select {
		case c := <-accepted:
			_ = c.Close()
		default:
		}
		return ctx.Err()
	case bot = <-accepted:
	}

	r.setState(StateBridging)
	r.log.Printf("session %s: bridging %s <-> %s", r.id, bot.RemoteAddr(), r.cfg.UpstreamURL)
	err = r.bridge(ctx, bot, up)
	r.log.Printf("session %s: closed (up=%d down=%d frames)", r.id, r.framesUp.Load(), r.framesDown.Load())
	return err
}

// acceptHandler upgrades the first bot and rejects every later one.
func (r *Relay) acceptHandler(accepted chan<- *websocket.Conn) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, req *http.Request) {
		if !r.claimed.CompareAndSwap(false, true) {
			r.log.Printf("session %s: rejecting %s: %v", r.id, req.RemoteAddr, ErrSessionBusy)
			http.Error(rw, ErrSessionBusy.Error(), http.StatusServiceUnavailable)
			return
		}
		conn, err := r.upgrader.Upgrade(rw, req, nil)
		if err != nil {
			r.claimed.Store(false)
			return
		}
		conn.SetReadLimit(64 << 20)
		accepted <- conn
	})
}

// bridge runs both forwarding loops. When either ends, both connections
// are closed and the other loop is awaited.
func (r *Relay) bridge(ctx context.Context, bot, up *websocket.Conn) error {
	var once sync.Once
	teardown := func() {
		once.Do(func() {
			r.closing.Store(true)
			closeConn(bot)
			closeConn(up)
		})
	}
	defer teardown()
	stop := context.AfterFunc(ctx, teardown)
	defer stop()

	errc := make(chan error, 2)
	go func() { errc <- r.pump(Upstream, bot, up, r.tapRequest) }()
	go func() { errc <- r.pump(Downstream, up, bot, r.tapResponse) }()

	first := <-errc
	teardown()
	<-errc
	if ctx.Err() != nil {
		return nil
	}
	return first
}

func (r *Relay) pump(dir Direction, src, dst *websocket.Conn, tap func([]byte)) error {
	count := &r.framesUp
	if dir == Downstream {
		count = &r.framesDown
	}
	for {
		mt, msg, err := src.ReadMessage()
		if err != nil {
			return r.loopErr(dir, "read", err)
		}
		_ = dst.SetWriteDeadline(time.Now().Add(writeWait))
		if err := dst.WriteMessage(mt, msg); err != nil {
			return r.loopErr(dir, "write", err)
		}
		count.Add(1)
		if r.sink != nil {
			r.sink.RecordFrame(dir, msg)
		}
		tap(msg)
	}
}

// loopErr turns a transport error into the loop result. Normal closes and
// errors caused by our own teardown are not errors.
func (r *Relay) loopErr(dir Direction, op string, err error) error {
	if r.closing.Load() {
		return nil
	}
	if isNormalClose(err) {
		r.log.Printf("session %s: %s closed", r.id, dir.Label())
		return nil
	}
	r.log.Printf("session %s: %s %s: %v", r.id, dir.Label(), op, err)
	return fmt.Errorf("%s %s: %w", dir.Label(), op, err)
}

func (r *Relay) tapRequest(b []byte) {
	req, err := protocol.DecodeRequest(b)
	if err != nil {
		r.decodeFailed(Upstream, &r.decodeFailUp, err)
		return
	}
	if req.Kind >= 0 && int(req.Kind) < len(r.requestKinds) {
		r.requestKinds[req.Kind].Add(1)
	}
	switch req.Kind {
	case protocol.KindCreateGame, protocol.KindJoinGame, protocol.KindLeaveGame, protocol.KindQuit:
		r.log.Printf("session %s: bot request %s id=%d", r.id, req.Kind, req.ID)
	}
}

func (r *Relay) tapResponse(b []byte) {
	resp, err := protocol.DecodeResponse(b)
	if err != nil {
		r.decodeFailed(Downstream, &r.decodeFailDown, err)
		return
	}
	r.hub.Publish(resp)
}

func (r *Relay) decodeFailed(dir Direction, counter *atomic.Uint64, err error) {
	n := counter.Add(1)
	if n == 1 || n%decodeLogEvery == 0 {
		r.log.Printf("session %s: %s decode failed (%d total): %v", r.id, dir.Label(), n, err)
	}
}

func closeConn(c *websocket.Conn) {
	_ = c.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session ended"), time.Now().Add(time.Second))
	_ = c.Close()
}

func isNormalClose(err error) bool {
	// A peer that vanishes without a close frame (1006) still just ended
	// the session.
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived, websocket.CloseAbnormalClosure) {
		return true
	}
	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, net.ErrClosed)
}
