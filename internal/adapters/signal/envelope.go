package signal

import (
	"encoding/json"
	"fmt"
)

// Kind discriminates the messages exchanged over the encrypted channel.
type Kind string

const (
	// Inbound from the remote device.
	KindCallAccepted   Kind = "CALL_ACCEPTED"
	KindDeviceDetails  Kind = "DEVICE_DETAILS"
	KindGetAppTheme    Kind = "GET_APP_THEME"
	KindGetAppLanguage Kind = "GET_APP_LANGUAGE"

	// Outbound to the remote device.
	KindCallUser         Kind = "CALL_USER"
	KindAppTheme         Kind = "APP_THEME"
	KindAppLanguage      Kind = "APP_LANGUAGE"
	KindDenyToConnect    Kind = "DENY_TO_CONNECT"
	KindAllowedToConnect Kind = "ALLOWED_TO_CONNECT"
	KindDisconnectByHost Kind = "DISCONNECT_BY_HOST_MACHINE_USER"
)

// Envelope is one wire unit handed to the channel by the socket transport:
// the encrypted payload plus the out-of-band origin socket id used for the
// reverse IP lookup. Never persisted.
type Envelope struct {
	Payload      []byte
	FromSocketID string
}

// message is the decrypted plaintext: a type tag plus a kind-specific
// payload.
type message struct {
	Type    Kind            `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type CallAcceptedPayload struct {
	SignalData json.RawMessage `json:"signalData"`
}

type DeviceDetailsPayload struct {
	DeviceType         string `json:"deviceType"`
	OS                 string `json:"os"`
	Browser            string `json:"browser"`
	DeviceScreenWidth  int    `json:"deviceScreenWidth"`
	DeviceScreenHeight int    `json:"deviceScreenHeight"`
}

// ValuePayload carries the APP_THEME (bool) and APP_LANGUAGE (string)
// reply values.
type ValuePayload struct {
	Value any `json:"value"`
}

type SignalDataPayload struct {
	SignalData json.RawMessage `json:"signalData"`
}

func decodeMessage(plain []byte) (message, error) {
	var m message
	if err := json.Unmarshal(plain, &m); err != nil {
		return message{}, fmt.Errorf("decode message: %w", err)
	}
	return m, nil
}

func encodeMessage(kind Kind, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", kind, err)
	}
	return json.Marshal(message{Type: kind, Payload: raw})
}
