// Package signal implements the per-connection encrypted message pump
// between the local host and one remote peer. Inbound envelopes are
// decrypted with the LocalUser's private key and dispatched by kind;
// every outbound payload is encrypted before transmission.
package signal

import (
	"errors"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/okhramov/glimpse/internal/core"
	"github.com/okhramov/glimpse/internal/domain"
)

var ErrNoPartnerKey = errors.New("partner public key not known yet")

// Sender pushes raw (already encrypted) bytes to the remote peer's socket.
type Sender func([]byte) error

// Channel is bound to exactly one session and one remote peer. It mutates
// only that session. Per-message decode and dispatch errors are contained:
// they are logged, the message is dropped and the channel stays open.
type Channel struct {
	session   *core.Session
	user      *domain.LocalUser
	transport core.PeerTransport
	host      core.HostEnvironment
	crypto    core.Cryptor
	send      Sender

	// VerifyDeviceIP, when set, cross-checks the transport-observed IP
	// against the self-reported device details. Nil by default: the
	// self-reported values are accepted unchecked.
	VerifyDeviceIP func(observedIP string, details DeviceDetailsPayload) error

	mu                sync.Mutex
	partnerKey        string
	onDeviceConnected func(*domain.DeviceDescriptor)
}

func NewChannel(
	session *core.Session,
	user *domain.LocalUser,
	transport core.PeerTransport,
	host core.HostEnvironment,
	crypto core.Cryptor,
	send Sender,
) *Channel {
	return &Channel{
		session:   session,
		user:      user,
		transport: transport,
		host:      host,
		crypto:    crypto,
		send:      send,
	}
}

// OnDeviceConnected registers the observer fired once when the partner
// descriptor is established.
func (ch *Channel) OnDeviceConnected(fn func(*domain.DeviceDescriptor)) {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	ch.onDeviceConnected = fn
}

// SetPartnerPublicKey installs the remote device's exported public key for
// outbound encryption.
func (ch *Channel) SetPartnerPublicKey(key string) {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	ch.partnerKey = key
}

// HandleEncrypted processes one inbound envelope. Decryption failure is
// non-fatal: the message is dropped and the channel remains open.
func (ch *Channel) HandleEncrypted(env Envelope) {
	plain, err := ch.crypto.Decrypt(ch.user.PrivateKey, env.Payload)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Str("sid", string(ch.session.ID())).Msg("failed to decrypt incoming message, dropped")
		return
	}
	msg, err := decodeMessage(plain)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Str("sid", string(ch.session.ID())).Msg("bad message json, dropped")
		return
	}

	switch msg.Type {
	case KindCallAccepted:
		ch.handleCallAccepted(msg)
	case KindDeviceDetails:
		ch.handleDeviceDetails(msg, env.FromSocketID)
	case KindGetAppTheme:
		ch.handleGetAppTheme()
	case KindGetAppLanguage:
		ch.handleGetAppLanguage()
	default:
		log.Warn().Str("module", "signal").Str("type", string(msg.Type)).Msg("unknown message kind, ignored")
	}
}

// SendEncrypted seals a payload for the partner and pushes it out. The
// channel never sends plaintext.
func (ch *Channel) SendEncrypted(kind Kind, payload any) error {
	ch.mu.Lock()
	key := ch.partnerKey
	ch.mu.Unlock()
	if key == "" {
		return ErrNoPartnerKey
	}

	plain, err := encodeMessage(kind, payload)
	if err != nil {
		return err
	}
	sealed, err := ch.crypto.Encrypt(key, plain)
	if err != nil {
		return err
	}
	return ch.send(sealed)
}
