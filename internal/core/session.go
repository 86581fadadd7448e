package core

import (
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/okhramov/glimpse/internal/domain"
)

// Session is one sharing engagement. Status moves
// WAITING_FOR_CONNECTION -> CONNECTED -> {ERROR | DESTROYED}; the waiting
// state may also jump straight to a terminal one. Terminal states are
// never left.
type Session struct {
	id     domain.SessionID
	roomID domain.RoomID
	user   *domain.LocalUser

	mu     sync.RWMutex
	status domain.SessionStatus
	device *domain.DeviceDescriptor
}

func NewSession(roomID domain.RoomID, user *domain.LocalUser) *Session {
	return &Session{
		id:     domain.SessionID(uuid.NewString()),
		roomID: roomID,
		user:   user,
		status: domain.StatusWaitingForConnection,
	}
}

func (s *Session) ID() domain.SessionID { return s.id }

func (s *Session) RoomID() domain.RoomID { return s.roomID }

func (s *Session) User() *domain.LocalUser { return s.user }

func (s *Session) Status() domain.SessionStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// Device returns the partner descriptor, nil until the first handshake.
func (s *Session) Device() *domain.DeviceDescriptor {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.device
}

// Connect records the partner device and moves the session to CONNECTED.
// The descriptor is set exactly once.
func (s *Session) Connect(device *domain.DeviceDescriptor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status.Terminal() {
		return ErrTerminalStatus
	}
	if s.device != nil {
		return ErrDeviceAlreadySet
	}
	s.device = device
	s.status = domain.StatusConnected
	log.Info().Str("module", "core.session").Str("sid", string(s.id)).Str("room", string(s.roomID)).Str("device_ip", device.IP).Msg("partner connected")
	return nil
}

// Fail marks the session ERROR on negotiation failure, spoofing detection
// or transport fault.
func (s *Session) Fail() error {
	return s.terminate(domain.StatusError)
}

// Destroy marks the session DESTROYED on explicit teardown by the host
// user (disconnect/deny).
func (s *Session) Destroy() error {
	return s.terminate(domain.StatusDestroyed)
}

func (s *Session) terminate(to domain.SessionStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status.Terminal() {
		return ErrTerminalStatus
	}
	s.status = to
	log.Info().Str("module", "core.session").Str("sid", string(s.id)).Str("status", to.String()).Msg("session terminated")
	return nil
}
