// Package devices tracks the single remote device a host may have
// connected at a time: the capacity gate for new pending sessions plus the
// allow/deny staging area.
package devices

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/okhramov/glimpse/internal/domain"
)

// Tracker implements core.SlotTracker. The slot is free while no device is
// connected.
type Tracker struct {
	mu        sync.RWMutex
	connected *domain.DeviceDescriptor
	pending   *domain.DeviceDescriptor
	listeners []func(*domain.DeviceDescriptor)
}

func NewTracker() *Tracker {
	return &Tracker{}
}

func (t *Tracker) SlotAvailable() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.connected == nil
}

// SetPending stages a device awaiting the host user's allow/deny decision.
func (t *Tracker) SetPending(d *domain.DeviceDescriptor) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pending = d
	log.Info().Str("module", "devices").Str("device_ip", d.IP).Str("device_type", d.Type).Msg("device pending approval")
}

func (t *Tracker) Pending() *domain.DeviceDescriptor {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.pending
}

// SetConnected occupies the slot and notifies listeners.
func (t *Tracker) SetConnected(d *domain.DeviceDescriptor) {
	t.mu.Lock()
	t.connected = d
	t.pending = nil
	listeners := make([]func(*domain.DeviceDescriptor), len(t.listeners))
	copy(listeners, t.listeners)
	t.mu.Unlock()

	log.Info().Str("module", "devices").Str("device_ip", d.IP).Str("sid", string(d.SharingSessionID)).Msg("device connected")
	for _, fn := range listeners {
		fn(d)
	}
}

func (t *Tracker) Connected() *domain.DeviceDescriptor {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.connected
}

// RemoveConnected frees the slot. No-op when deviceID does not match the
// occupant.
func (t *Tracker) RemoveConnected(deviceID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.connected == nil || t.connected.ID != deviceID {
		return
	}
	log.Info().Str("module", "devices").Str("device_id", deviceID).Msg("device removed")
	t.connected = nil
}

// OnDeviceConnected registers a listener fired for every SetConnected.
func (t *Tracker) OnDeviceConnected(fn func(*domain.DeviceDescriptor)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.listeners = append(t.listeners, fn)
}
