// Package control is the helper side of the host<->helper messaging link:
// named events over a websocket, dispatched to the active peer connection.
package control

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/okhramov/glimpse/internal/adapters/signal"
	"github.com/okhramov/glimpse/internal/app"
	"github.com/okhramov/glimpse/internal/core"
	"github.com/okhramov/glimpse/internal/devices"
	"github.com/okhramov/glimpse/internal/domain"
)

var ErrBackpressure = errors.New("backpressure")

// TransportFactory builds the opaque connection transport for one session.
type TransportFactory func(sid domain.SessionID) (core.PeerTransport, error)

// SenderFactory builds the raw outbound writer toward the remote device's
// socket for one room.
type SenderFactory func(roomID domain.RoomID) signal.Sender

// Controller owns the control websocket and the single active peer.
type Controller struct {
	Registry   *app.Registry
	Devices    *devices.Tracker
	Host       core.HostEnvironment
	Crypto     core.Cryptor
	Transports TransportFactory
	Senders    SenderFactory

	// HostState, when set, absorbs the values carried by theme/language
	// change events before the device is notified.
	HostState *app.HostState

	mu      sync.Mutex
	started bool
	peer    *app.Peer
}

type Conn struct {
	conn *websocket.Conn
	send chan []byte

	mu     sync.Mutex
	closed bool
}

// NewConn wraps an upgraded websocket with a bounded send queue.
func NewConn(ws *websocket.Conn, buffer int) *Conn {
	return &Conn{conn: ws, send: make(chan []byte, buffer)}
}

func (c *Conn) TrySend(b []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.New("connection closed")
	}
	select {
	case c.send <- b:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *Conn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleControl upgrades the host's control connection and starts the
// pumps.
func (ctl *Controller) HandleControl(ctx context.Context, c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "control").Msg("ws upgrade")
		return
	}
	conn := NewConn(ws, 32)
	log.Info().Str("module", "control").Str("client", c.GetString("client_token")).Msg("host connected")

	ctx, cancel := context.WithCancel(ctx)
	go ctl.writePump(ctx, conn)
	go ctl.readPump(ctx, cancel, conn)
}

func (ctl *Controller) writePump(ctx context.Context, c *Conn) {
	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
				log.Error().Err(err).Str("module", "control").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "control").Msg("writePump write error")
				return
			}
		}
	}
}

func (ctl *Controller) readPump(ctx context.Context, cancel context.CancelFunc, c *Conn) {
	defer func() {
		log.Info().Str("module", "control").Msg("readPump closing")
		cancel()
		c.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				log.Error().Err(err).Str("module", "control").Msg("readPump read error")
				return
			}
			ctl.Handle(c, data)
		}
	}
}

// Handle dispatches one control event.
func (ctl *Controller) Handle(c *Conn, data []byte) {
	var ev event
	if err := json.Unmarshal(data, &ev); err != nil {
		log.Error().Err(err).Str("module", "control").Msg("bad event json")
		return
	}

	switch ev.Type {
	case EventStartPeerConnection:
		ctl.handleStart()
	case EventCreatePeerConnection:
		ctl.handleCreatePeer(c, ev.Payload)
	case EventSetDesktopCapturerID:
		ctl.handleSetSourceID(ev.Payload)
	case EventCallPeer:
		ctl.handleCallPeer()
	case EventDisconnectByHostUser:
		ctl.handleDisconnect(ev.Payload)
	case EventDenyConnection:
		ctl.withPeer(func(p *app.Peer) { p.DenyConnectionForPartner() })
	case EventSendUserAllowed:
		ctl.withPeer(func(p *app.Peer) {
			if err := p.SendUserAllowedToConnect(); err != nil {
				log.Error().Err(err).Str("module", "control").Msg("send user allowed")
			}
		})
	case EventAppColorThemeChanged:
		ctl.absorbTheme(ev.Payload)
		ctl.withPeer(func(p *app.Peer) {
			if err := p.NotifyThemeChanged(); err != nil {
				log.Error().Err(err).Str("module", "control").Msg("notify theme change")
			}
		})
	case EventAppLanguageChanged:
		ctl.absorbLanguage(ev.Payload)
		ctl.withPeer(func(p *app.Peer) {
			if err := p.NotifyLanguageChanged(); err != nil {
				log.Error().Err(err).Str("module", "control").Msg("notify language change")
			}
		})
	case EventEncryptedMessage:
		ctl.handleEncryptedMessage(ev.Payload)
	default:
		log.Warn().Str("module", "control").Str("type", ev.Type).Msg("unknown control event")
	}
}

// handleStart arms the controller: the next create event binds the peer.
func (ctl *Controller) handleStart() {
	ctl.mu.Lock()
	defer ctl.mu.Unlock()
	ctl.started = true
	log.Info().Str("module", "control").Msg("peer connection slot armed")
}

func (ctl *Controller) handleCreatePeer(c *Conn, raw json.RawMessage) {
	ctl.mu.Lock()
	started := ctl.started
	ctl.mu.Unlock()
	if !started {
		log.Warn().Str("module", "control").Msg("create before start-peer-connection, ignored")
		return
	}

	var p createPeerPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		log.Error().Err(err).Str("module", "control").Msg("bad create payload")
		return
	}

	sess, ok := ctl.Registry.GetSession(p.SharingSessionID)
	if !ok {
		log.Error().Str("module", "control").Str("sid", string(p.SharingSessionID)).Msg("unknown sharing session")
		return
	}

	transport, err := ctl.Transports(sess.ID())
	if err != nil {
		log.Error().Err(err).Str("module", "control").Msg("build transport")
		return
	}

	peer := app.NewPeer(
		ctl.Registry,
		ctl.Devices,
		ctl.Host,
		ctl.Crypto,
		sess,
		transport,
		ctl.Senders(p.RoomID),
		func(d *domain.DeviceDescriptor) { ctl.emitPeerConnected(c, d) },
	)

	ctl.mu.Lock()
	ctl.peer = peer
	ctl.mu.Unlock()
	log.Info().Str("module", "control").Str("sid", string(sess.ID())).Str("room", string(p.RoomID)).Msg("peer connection created")
}

func (ctl *Controller) handleSetSourceID(raw json.RawMessage) {
	var p sourceIDPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		log.Error().Err(err).Str("module", "control").Msg("bad source id payload")
		return
	}
	ctl.withPeer(func(peer *app.Peer) { peer.SetDesktopCapturerSourceID(p.ID) })
}

func (ctl *Controller) handleCallPeer() {
	ctl.withPeer(func(peer *app.Peer) {
		if err := peer.CallPeer(); err != nil {
			log.Error().Err(err).Str("module", "control").Msg("call peer")
		}
	})
}

func (ctl *Controller) handleDisconnect(raw json.RawMessage) {
	var p disconnectPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		log.Error().Err(err).Str("module", "control").Msg("bad disconnect payload")
		return
	}
	ctl.withPeer(func(peer *app.Peer) { peer.DisconnectByHostMachineUser(p.DeviceID) })
}

func (ctl *Controller) handleEncryptedMessage(raw json.RawMessage) {
	var p encryptedMessagePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		log.Error().Err(err).Str("module", "control").Msg("bad encrypted message payload")
		return
	}
	ctl.withPeer(func(peer *app.Peer) {
		peer.HandleEncryptedMessage(signal.Envelope{Payload: p.Payload, FromSocketID: p.FromSocketID})
	})
}

func (ctl *Controller) emitPeerConnected(c *Conn, d *domain.DeviceDescriptor) {
	b, err := json.Marshal(peerConnectedPayload{DeviceData: d})
	if err != nil {
		log.Error().Err(err).Str("module", "control").Msg("marshal peer-connected")
		return
	}
	out, err := json.Marshal(event{Type: EventPeerConnected, Payload: b})
	if err != nil {
		log.Error().Err(err).Str("module", "control").Msg("marshal peer-connected event")
		return
	}
	if err := c.TrySend(out); err != nil {
		log.Error().Err(err).Str("module", "control").Msg("emit peer-connected")
	}
}

func (ctl *Controller) absorbTheme(raw json.RawMessage) {
	if ctl.HostState == nil || len(raw) == 0 {
		return
	}
	var p struct {
		Value bool `json:"value"`
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		log.Error().Err(err).Str("module", "control").Msg("bad theme payload")
		return
	}
	ctl.HostState.SetDarkTheme(p.Value)
}

func (ctl *Controller) absorbLanguage(raw json.RawMessage) {
	if ctl.HostState == nil || len(raw) == 0 {
		return
	}
	var p struct {
		Value string `json:"value"`
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		log.Error().Err(err).Str("module", "control").Msg("bad language payload")
		return
	}
	ctl.HostState.SetLanguage(p.Value)
}

// Peer returns the active peer connection, nil before create.
func (ctl *Controller) Peer() *app.Peer {
	ctl.mu.Lock()
	defer ctl.mu.Unlock()
	return ctl.peer
}

func (ctl *Controller) withPeer(fn func(*app.Peer)) {
	ctl.mu.Lock()
	peer := ctl.peer
	ctl.mu.Unlock()
	if peer == nil {
		log.Warn().Str("module", "control").Msg("no active peer connection")
		return
	}
	fn(peer)
}
