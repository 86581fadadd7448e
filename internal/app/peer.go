package app

import (
	"github.com/rs/zerolog/log"

	"github.com/okhramov/glimpse/internal/adapters/signal"
	"github.com/okhramov/glimpse/internal/core"
	"github.com/okhramov/glimpse/internal/devices"
	"github.com/okhramov/glimpse/internal/domain"
)

// Peer drives one peer connection end to end: it owns the transport and
// the encrypted channel for a single session and executes the host user's
// commands against them.
type Peer struct {
	registry  *Registry
	devices   *devices.Tracker
	session   *core.Session
	transport core.PeerTransport
	channel   *signal.Channel
}

// NewPeer binds a session to its transport and channel. emit is called
// once the partner descriptor is established, with the device data to
// forward to the host process.
func NewPeer(
	registry *Registry,
	tracker *devices.Tracker,
	host core.HostEnvironment,
	crypto core.Cryptor,
	session *core.Session,
	transport core.PeerTransport,
	send signal.Sender,
	emit func(*domain.DeviceDescriptor),
) *Peer {
	p := &Peer{
		registry:  registry,
		devices:   tracker,
		session:   session,
		transport: transport,
		channel:   signal.NewChannel(session, session.User(), transport, host, crypto, send),
	}

	// Our own negotiation blobs travel to the device inside the encrypted
	// channel, same as its CALL_ACCEPTED travels to us.
	transport.OnSignal(func(blob []byte) {
		if err := p.channel.SendEncrypted(signal.KindCallUser, signal.SignalDataPayload{SignalData: blob}); err != nil {
			log.Error().Err(err).Str("module", "app.peer").Str("sid", string(session.ID())).Msg("relay local signal")
		}
	})

	p.channel.OnDeviceConnected(func(d *domain.DeviceDescriptor) {
		tracker.SetConnected(d)
		emit(d)
	})

	return p
}

// Channel exposes the encrypted pump for the socket adapter feeding
// inbound envelopes.
func (p *Peer) Channel() *signal.Channel { return p.channel }

func (p *Peer) Session() *core.Session { return p.session }

// HandleEncryptedMessage forwards one inbound envelope to the channel.
func (p *Peer) HandleEncryptedMessage(env signal.Envelope) {
	p.channel.HandleEncrypted(env)
}

// CallPeer starts connection negotiation from the host side.
func (p *Peer) CallPeer() error {
	return p.transport.Call()
}

func (p *Peer) SetDesktopCapturerSourceID(id string) {
	p.transport.SetSourceID(id)
}

// DisconnectByHostMachineUser tears the connection down on the host
// user's request: the device is told, the slot freed, the session
// destroyed.
func (p *Peer) DisconnectByHostMachineUser(deviceID string) {
	if err := p.channel.SendEncrypted(signal.KindDisconnectByHost, struct{}{}); err != nil {
		log.Warn().Err(err).Str("module", "app.peer").Msg("notify device of disconnect")
	}
	p.devices.RemoveConnected(deviceID)
	p.teardown()
}

// DenyConnectionForPartner refuses the pending device and tears the
// session down.
func (p *Peer) DenyConnectionForPartner() {
	if err := p.channel.SendEncrypted(signal.KindDenyToConnect, struct{}{}); err != nil {
		log.Warn().Err(err).Str("module", "app.peer").Msg("notify device of denial")
	}
	p.teardown()
}

// SendUserAllowedToConnect tells the device the host user approved it.
func (p *Peer) SendUserAllowedToConnect() error {
	return p.channel.SendEncrypted(signal.KindAllowedToConnect, struct{}{})
}

func (p *Peer) NotifyThemeChanged() error {
	return p.channel.NotifyTheme()
}

func (p *Peer) NotifyLanguageChanged() error {
	return p.channel.NotifyLanguage()
}

func (p *Peer) teardown() {
	if err := p.session.Destroy(); err != nil {
		log.Warn().Err(err).Str("module", "app.peer").Str("sid", string(p.session.ID())).Msg("destroy session")
	}
	p.registry.ReleaseRoom(p.session.RoomID())
	p.registry.ClearPending()
	p.transport.Close()
}
