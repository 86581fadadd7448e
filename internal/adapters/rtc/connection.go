// Package rtc adapts pion/webrtc to the core.PeerTransport capability: the
// host side creates the offer, the remote device answers through the
// encrypted signaling channel.
package rtc

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/okhramov/glimpse/internal/domain"
)

// Resolver maps a remote socket id to the IP the signaling transport
// observed for it.
type Resolver func(socketID string) (string, error)

// signalBlob is the opaque negotiation unit relayed through the encrypted
// channel: either a session description or a single ICE candidate.
type signalBlob struct {
	Type      string                   `json:"type,omitempty"`
	SDP       string                   `json:"sdp,omitempty"`
	Candidate *webrtc.ICECandidateInit `json:"candidate,omitempty"`
}

type Transport struct {
	pc      *webrtc.PeerConnection
	sid     domain.SessionID
	resolve Resolver

	mu       sync.Mutex
	onSignal func([]byte)
	sourceID string
	closed   bool
}

func DefaultConfig(stunURLs []string) webrtc.Configuration {
	if len(stunURLs) == 0 {
		stunURLs = []string{"stun:stun.l.google.com:19302"}
	}
	return webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{{URLs: stunURLs}},
	}
}

func NewTransport(cfg webrtc.Configuration, sid domain.SessionID, resolve Resolver) (*Transport, error) {
	pc, err := webrtc.NewPeerConnection(cfg)
	if err != nil {
		return nil, err
	}
	t := &Transport{pc: pc, sid: sid, resolve: resolve}

	pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand == nil {
			return
		}
		ci := cand.ToJSON()
		t.emit(signalBlob{Candidate: &ci})
	})

	pc.OnICEConnectionStateChange(func(s webrtc.ICEConnectionState) {
		log.Info().Str("module", "rtc").Str("sid", string(sid)).Str("ice_state", s.String()).Msg("ICE state")
	})
	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		log.Info().Str("module", "rtc").Str("sid", string(sid)).Str("peer_connection_state", s.String()).Msg("peer state")
	})

	return t, nil
}

// Call creates the local offer and hands it to the OnSignal relay; the
// remote side's CALL_ACCEPTED brings the answer back through Signal.
func (t *Transport) Call() error {
	offer, err := t.pc.CreateOffer(nil)
	if err != nil {
		return fmt.Errorf("create offer: %w", err)
	}
	if err := t.pc.SetLocalDescription(offer); err != nil {
		return fmt.Errorf("set local description: %w", err)
	}
	t.emit(signalBlob{Type: offer.Type.String(), SDP: offer.SDP})
	return nil
}

// Signal applies one opaque negotiation blob from the remote side.
func (t *Transport) Signal(blob []byte) error {
	var s signalBlob
	if err := json.Unmarshal(blob, &s); err != nil {
		return fmt.Errorf("decode signal blob: %w", err)
	}
	switch {
	case s.Candidate != nil:
		return t.pc.AddICECandidate(*s.Candidate)
	case s.SDP != "":
		sdpType := webrtc.NewSDPType(s.Type)
		return t.pc.SetRemoteDescription(webrtc.SessionDescription{Type: sdpType, SDP: s.SDP})
	default:
		return fmt.Errorf("empty signal blob")
	}
}

func (t *Transport) OnSignal(fn func(blob []byte)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onSignal = fn
}

// SetSourceID records the desktop-capturer source selected by the host;
// the capture pipeline picks it up when attaching tracks.
func (t *Transport) SetSourceID(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sourceID = id
}

func (t *Transport) SourceID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sourceID
}

func (t *Transport) LookupIP(socketID string) (string, error) {
	return t.resolve(socketID)
}

func (t *Transport) Close() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	t.mu.Unlock()

	if err := t.pc.Close(); err != nil {
		log.Error().Err(err).Str("module", "rtc").Str("sid", string(t.sid)).Msg("close error")
		return
	}
	log.Info().Str("module", "rtc").Str("sid", string(t.sid)).Msg("closed")
}

func (t *Transport) emit(s signalBlob) {
	t.mu.Lock()
	fn := t.onSignal
	t.mu.Unlock()
	if fn == nil {
		return
	}
	b, err := json.Marshal(s)
	if err != nil {
		log.Error().Err(err).Str("module", "rtc").Msg("marshal signal blob")
		return
	}
	fn(b)
}
