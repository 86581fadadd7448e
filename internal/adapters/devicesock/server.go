// Package devicesock is the socket surface remote devices connect to. It
// only moves opaque sealed envelopes: a device announces its public key on
// join, everything after that is ciphertext relayed to and from the
// signaling channel. It also answers reverse IP lookups by socket id.
package devicesock

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/okhramov/glimpse/internal/adapters/signal"
	"github.com/okhramov/glimpse/internal/domain"
)

var ErrUnknownSocket = errors.New("unknown socket id")

// frame is the plaintext wrapper on the device socket; the application
// payload inside ENCRYPTED_MESSAGE stays sealed.
type frame struct {
	Type      string `json:"type"`
	PublicKey string `json:"publicKey,omitempty"`
	Payload   []byte `json:"payload,omitempty"`
}

type sock struct {
	id     string
	roomID domain.RoomID
	ip     string
	conn   *websocket.Conn

	mu sync.Mutex
}

func (s *sock) writeFrame(f frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteJSON(f)
}

// Server tracks connected device sockets by id and room.
type Server struct {
	mu           sync.RWMutex
	socks        map[string]*sock
	byRoom       map[domain.RoomID]map[string]*sock
	onEnvelope   func(domain.RoomID, signal.Envelope)
	onPartnerKey func(domain.RoomID, string)
}

func NewServer() *Server {
	return &Server{
		socks:  make(map[string]*sock),
		byRoom: make(map[domain.RoomID]map[string]*sock),
	}
}

// OnEnvelope registers the sink for inbound sealed envelopes.
func (s *Server) OnEnvelope(fn func(domain.RoomID, signal.Envelope)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onEnvelope = fn
}

// OnPartnerKey registers the sink for device public-key announcements.
func (s *Server) OnPartnerKey(fn func(domain.RoomID, string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onPartnerKey = fn
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleDevice upgrades a device connection for GET /ws/room/:roomID.
func (s *Server) HandleDevice(c *gin.Context) {
	roomID := domain.RoomID(c.Param("roomID"))
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "devicesock").Msg("ws upgrade")
		return
	}

	ip, _, err := net.SplitHostPort(c.Request.RemoteAddr)
	if err != nil {
		ip = c.Request.RemoteAddr
	}
	sk := &sock{
		id:     uuid.NewString(),
		roomID: roomID,
		ip:     ip,
		conn:   ws,
	}
	s.add(sk)
	log.Info().Str("module", "devicesock").Str("socket_id", sk.id).Str("room", string(roomID)).Str("ip", ip).Msg("device socket open")

	go s.readLoop(sk)
}

func (s *Server) readLoop(sk *sock) {
	defer func() {
		s.remove(sk)
		_ = sk.conn.Close()
		log.Info().Str("module", "devicesock").Str("socket_id", sk.id).Msg("device socket closed")
	}()

	for {
		_, data, err := sk.conn.ReadMessage()
		if err != nil {
			return
		}
		var f frame
		if err := json.Unmarshal(data, &f); err != nil {
			log.Error().Err(err).Str("module", "devicesock").Msg("bad frame json")
			continue
		}
		switch f.Type {
		case "JOIN":
			s.mu.RLock()
			fn := s.onPartnerKey
			s.mu.RUnlock()
			if fn != nil && f.PublicKey != "" {
				fn(sk.roomID, f.PublicKey)
			}
		case "ENCRYPTED_MESSAGE":
			s.mu.RLock()
			fn := s.onEnvelope
			s.mu.RUnlock()
			if fn != nil {
				fn(sk.roomID, signal.Envelope{Payload: f.Payload, FromSocketID: sk.id})
			}
		default:
			log.Warn().Str("module", "devicesock").Str("type", f.Type).Msg("unknown frame, ignored")
		}
	}
}

// Close shuts every tracked device socket, unblocking their read loops.
// The loops untrack themselves as they exit.
func (s *Server) Close() {
	s.mu.RLock()
	socks := make([]*sock, 0, len(s.socks))
	for _, sk := range s.socks {
		socks = append(socks, sk)
	}
	s.mu.RUnlock()
	for _, sk := range socks {
		_ = sk.conn.Close()
	}
}

// LookupIP implements the reverse lookup the signaling channel performs on
// DEVICE_DETAILS.
func (s *Server) LookupIP(socketID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sk, ok := s.socks[socketID]
	if !ok {
		return "", ErrUnknownSocket
	}
	return sk.ip, nil
}

// Sender returns the outbound writer for a room: sealed bytes fan out to
// the room's sockets (a single device in practice).
func (s *Server) Sender(roomID domain.RoomID) signal.Sender {
	return func(sealed []byte) error {
		s.mu.RLock()
		room := make([]*sock, 0, 1)
		for _, sk := range s.byRoom[roomID] {
			room = append(room, sk)
		}
		s.mu.RUnlock()
		if len(room) == 0 {
			return errors.New("no device socket in room")
		}
		for _, sk := range room {
			if err := sk.writeFrame(frame{Type: "ENCRYPTED_MESSAGE", Payload: sealed}); err != nil {
				return err
			}
		}
		return nil
	}
}

func (s *Server) add(sk *sock) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.socks[sk.id] = sk
	if s.byRoom[sk.roomID] == nil {
		s.byRoom[sk.roomID] = make(map[string]*sock)
	}
	s.byRoom[sk.roomID][sk.id] = sk
}

func (s *Server) remove(sk *sock) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.socks, sk.id)
	if room := s.byRoom[sk.roomID]; room != nil {
		delete(room, sk.id)
		if len(room) == 0 {
			delete(s.byRoom, sk.roomID)
		}
	}
}
