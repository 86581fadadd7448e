package control

import (
	"encoding/json"

	"github.com/okhramov/glimpse/internal/domain"
)

// Control-link event names, shared with the host process.
const (
	EventStartPeerConnection  = "start-peer-connection"
	EventCreatePeerConnection = "create-peer-connection-with-data"
	EventSetDesktopCapturerID = "set-desktop-capturer-source-id"
	EventCallPeer             = "call-peer"
	EventDisconnectByHostUser = "disconnect-by-host-machine-user"
	EventDenyConnection       = "deny-connection-for-partner"
	EventSendUserAllowed      = "send-user-allowed-to-connect"
	EventAppColorThemeChanged = "app-color-theme-changed"
	EventAppLanguageChanged   = "app-language-changed"
	EventEncryptedMessage     = "encrypted-message"
	EventPeerConnected        = "peer-connected"
)

// event is the wire unit on the control link: a name plus an event-specific
// payload.
type event struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// createPeerPayload identifies the session to bind; the identity comes
// from the registry, not the wire.
type createPeerPayload struct {
	RoomID           domain.RoomID    `json:"roomID"`
	SharingSessionID domain.SessionID `json:"sharingSessionID"`
}

type sourceIDPayload struct {
	ID string `json:"id"`
}

type disconnectPayload struct {
	DeviceID string `json:"deviceId"`
}

// encryptedMessagePayload relays one envelope from the device socket: the
// sealed bytes plus the origin socket id, base64 keeping the ciphertext
// JSON-safe.
type encryptedMessagePayload struct {
	Payload      []byte `json:"payload"`
	FromSocketID string `json:"fromSocketID"`
}

type peerConnectedPayload struct {
	DeviceData *domain.DeviceDescriptor `json:"deviceData"`
}
