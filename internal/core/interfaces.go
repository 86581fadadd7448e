package core

import "github.com/okhramov/glimpse/internal/domain"

// KeyPair is an asymmetric key pair in exported, transportable form.
type KeyPair struct {
	PrivateKey string
	PublicKey  string
}

// Cryptor is the crypto-provider capability consumed by this core.
// Implemented by internal/crypto; faked in tests.
type Cryptor interface {
	GenerateKeyPair() (KeyPair, error)
	Encrypt(publicKey string, plaintext []byte) ([]byte, error)
	Decrypt(privateKey string, ciphertext []byte) ([]byte, error)
}

// RoomIDService allocates human-shareable room identifiers and tracks
// which ones are taken.
type RoomIDService interface {
	NextAvailable() (domain.RoomID, error)
	MarkTaken(domain.RoomID)
	Release(domain.RoomID)
	IsTaken(domain.RoomID) bool
}

// SlotTracker reports whether the single connection slot is free.
type SlotTracker interface {
	SlotAvailable() bool
}

// PeerTransport is the opaque connection transport: it performs the actual
// NAT traversal and media negotiation. Call starts negotiation from our
// side, Signal feeds it the remote side's opaque blob, OnSignal delivers
// our own blobs for the channel to relay, LookupIP resolves a remote
// socket id to the IP the transport observed for it.
type PeerTransport interface {
	Call() error
	Signal(blob []byte) error
	OnSignal(fn func(blob []byte))
	SetSourceID(id string)
	LookupIP(socketID string) (string, error)
	Close()
}

// HostEnvironment answers live UI-state queries from the host process.
type HostEnvironment interface {
	IsDarkTheme() bool
	AppLanguage() string
}
