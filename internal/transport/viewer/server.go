package viewer

import (
	"encoding/json"
	"io"
	"log"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"sc2tap.ai/internal/catalog"
	"sc2tap.ai/internal/entities"
	"sc2tap.ai/internal/protocol"
	"sc2tap.ai/internal/terrain"
	"sc2tap.ai/internal/tracker"
	"sc2tap.ai/internal/viewerproto"
)

// QueueSize bounds each viewer's outbound queue. A full queue drops the
// message for that viewer only.
const QueueSize = 256

type Stats struct {
	Viewers  int
	Sent     uint64
	Dropped  uint64
	GameLoop uint32
}

// Server streams tracker output to loopback websocket viewers. It is a
// tracker.Sink.
type Server struct {
	reg *entities.Registry
	cat *catalog.Catalog
	log *log.Logger

	upgrader websocket.Upgrader
	nextID   atomic.Uint64

	mu       sync.Mutex
	viewers  map[uint64]*viewerConn
	hello    *viewerproto.HelloMsg
	helloRaw []byte
	terrain  []byte
	gameLoop uint32

	sent    atomic.Uint64
	dropped atomic.Uint64
}

type viewerConn struct {
	out         chan []byte
	skipTerrain bool
}

var _ tracker.Sink = (*Server)(nil)

func NewServer(reg *entities.Registry, cat *catalog.Catalog, logger *log.Logger) *Server {
	if cat == nil {
		cat = catalog.Empty()
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Server{
		reg:     reg,
		cat:     cat,
		log:     logger,
		viewers: make(map[uint64]*viewerConn),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // loopback only anyway
		},
	}
}

func (s *Server) Stats() Stats {
	s.mu.Lock()
	n, loop := len(s.viewers), s.gameLoop
	s.mu.Unlock()
	return Stats{Viewers: n, Sent: s.sent.Load(), Dropped: s.dropped.Load(), GameLoop: loop}
}

func (s *Server) OnGameInfo(info tracker.GameInfo) {
	msg := viewerproto.HelloMsg{
		Type:            "HELLO",
		ProtocolVersion: viewerproto.Version,
		SessionID:       info.SessionID,
		MapName:         info.MapName,
		MapSize:         [2]int{info.Width, info.Height},
		TileSize:        info.TileSize,
		PlayableArea: [2][2]int32{
			{info.PlayableArea.P0.X, info.PlayableArea.P0.Y},
			{info.PlayableArea.P1.X, info.PlayableArea.P1.Y},
		},
	}
	for _, p := range info.StartLocations {
		msg.StartLocations = append(msg.StartLocations, [2]float32{p.X, p.Y})
	}
	b, err := json.Marshal(msg)
	if err != nil {
		s.log.Printf("viewer: hello: %v", err)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hello = &msg
	s.helloRaw = b
	s.terrain = nil
	s.broadcastLocked(b, false)
}

func (s *Server) OnTerrain(frame tracker.TerrainFrame) {
	b, err := EncodeTerrain(frame)
	if err != nil {
		s.log.Printf("viewer: terrain: %v", err)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.terrain = b
	s.broadcastLocked(b, true)
}

func (s *Server) OnEntities(gameLoop uint32, effects []entities.Effect) {
	msg := viewerproto.EntitiesMsg{
		Type:            "ENTITIES",
		ProtocolVersion: viewerproto.Version,
		GameLoop:        gameLoop,
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range effects {
		switch e.Kind {
		case entities.EffectUpsert:
			st := s.entityState(e.Entity)
			st.Created = e.Created
			st.Completed = e.Completed
			msg.Upserts = append(msg.Upserts, st)
		case entities.EffectRemove:
			msg.Removes = append(msg.Removes, e.Tag)
		}
	}
	b, err := json.Marshal(msg)
	if err != nil {
		s.log.Printf("viewer: entities: %v", err)
		return
	}
	s.gameLoop = gameLoop
	s.broadcastLocked(b, false)
}

func (s *Server) OnGameEnd(gameLoop uint32, results []protocol.PlayerResult) {
	msg := viewerproto.GameEndMsg{
		Type:            "GAME_END",
		ProtocolVersion: viewerproto.Version,
		GameLoop:        gameLoop,
	}
	for _, r := range results {
		msg.Results = append(msg.Results, viewerproto.PlayerResult{PlayerID: r.PlayerID, Result: r.Result.String()})
	}
	b, err := json.Marshal(msg)
	if err != nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.broadcastLocked(b, false)
}

// EncodeTerrain renders a terrain frame as a TERRAIN message.
func EncodeTerrain(frame tracker.TerrainFrame) ([]byte, error) {
	palette, ids, err := terrain.Palettize(frame.Colors)
	if err != nil {
		return nil, err
	}
	return json.Marshal(viewerproto.TerrainMsg{
		Type:            "TERRAIN",
		ProtocolVersion: viewerproto.Version,
		GameLoop:        frame.GameLoop,
		Width:           frame.Colors.Width,
		Height:          frame.Colors.Height,
		Encoding:        viewerproto.EncodingPalRLE,
		Palette:         palette,
		Data:            terrain.EncodeRLE(ids),
	})
}

// entityState needs s.mu held.
func (s *Server) entityState(e entities.Entity) viewerproto.EntityState {
	tile := float32(16)
	if s.hello != nil && s.hello.TileSize > 0 {
		tile = s.hello.TileSize
	}
	st := viewerproto.EntityState{
		Tag:           e.Tag,
		TypeID:        e.TypeID,
		Name:          s.cat.UnitName(e.TypeID),
		Alliance:      e.Alliance.String(),
		Owner:         e.Owner,
		Pos:           [2]float32{e.Pos.X, e.Pos.Y},
		Facing:        e.Facing,
		Size:          s.cat.DisplaySize(e.TypeID, e.Radius, tile),
		Health:        e.Health,
		HealthMax:     e.HealthMax,
		Shield:        e.Shield,
		ShieldMax:     e.ShieldMax,
		Energy:        e.Energy,
		EnergyMax:     e.EnergyMax,
		BuildProgress: e.BuildProgress,
		Flying:        e.Flying,
	}
	if e.HasOrder {
		st.Order = s.cat.AbilityName(e.OrderAbility)
	}
	return st
}

func (s *Server) broadcastLocked(b []byte, isTerrain bool) {
	for _, v := range s.viewers {
		if isTerrain && v.skipTerrain {
			continue
		}
		s.enqueue(v, b)
	}
}

func (s *Server) enqueue(v *viewerConn, b []byte) {
	select {
	case v.out <- b:
		s.sent.Add(1)
	default:
		s.dropped.Add(1)
	}
}

// join registers a viewer and queues the current state for it: hello,
// terrain and a full entity snapshot.
func (s *Server) join(skipTerrain bool) (uint64, *viewerConn) {
	v := &viewerConn{out: make(chan []byte, QueueSize), skipTerrain: skipTerrain}
	id := s.nextID.Add(1)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.helloRaw != nil {
		s.enqueue(v, s.helloRaw)
	}
	if s.terrain != nil && !skipTerrain {
		s.enqueue(v, s.terrain)
	}
	snap := viewerproto.EntitiesMsg{
		Type:            "ENTITIES",
		ProtocolVersion: viewerproto.Version,
		GameLoop:        s.gameLoop,
		Full:            true,
	}
	if s.reg != nil {
		for _, e := range s.reg.Snapshot() {
			snap.Upserts = append(snap.Upserts, s.entityState(e))
		}
	}
	if b, err := json.Marshal(snap); err == nil {
		s.enqueue(v, b)
	}
	s.viewers[id] = v
	return id, v
}

func (s *Server) leave(id uint64) {
	s.mu.Lock()
	delete(s.viewers, id)
	s.mu.Unlock()
}

func (s *Server) BootstrapHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}

		resp := viewerproto.BootstrapResponse{
			ProtocolVersion: viewerproto.Version,
			CatalogDigest:   s.cat.Digest,
		}
		s.mu.Lock()
		if s.hello != nil {
			resp.SessionID = s.hello.SessionID
			resp.MapName = s.hello.MapName
			resp.MapSize = s.hello.MapSize
			resp.TileSize = s.hello.TileSize
		}
		resp.GameLoop = s.gameLoop
		s.mu.Unlock()
		if s.reg != nil {
			resp.Entities = s.reg.Len()
		}

		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(resp)
	}
}

func (s *Server) WSHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}

		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		// Handshake: must send SUBSCRIBE first.
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var sub viewerproto.SubscribeMsg
		if err := json.Unmarshal(msg, &sub); err != nil {
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "bad subscribe"), time.Now().Add(time.Second))
			return
		}
		if sub.Type != "SUBSCRIBE" || sub.ProtocolVersion != viewerproto.Version {
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected SUBSCRIBE"), time.Now().Add(time.Second))
			return
		}

		id, v := s.join(sub.SkipTerrain)
		defer s.leave(id)
		s.log.Printf("viewer V%d connected from %s", id, r.RemoteAddr)

		done := make(chan struct{})
		writeErr := make(chan error, 1)
		go func() {
			for {
				select {
				case <-done:
					writeErr <- nil
					return
				case b := <-v.out:
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						writeErr <- err
						return
					}
				}
			}
		}()

		// Reader loop: viewers only send keepalives; anything else is ignored.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}

		close(done)
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))

		select {
		case <-writeErr:
		case <-time.After(500 * time.Millisecond):
		}
		s.log.Printf("viewer V%d disconnected", id)
	}
}

// Handler serves the bootstrap and stream endpoints under /viewer/.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/viewer/bootstrap", s.BootstrapHandler())
	mux.HandleFunc("/viewer/ws", s.WSHandler())
	return mux
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
