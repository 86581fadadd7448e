package core

import "errors"

var (
	// ErrSlotUnavailable: a device already occupies the single connection
	// slot, so no new pending session may be created until it disconnects.
	ErrSlotUnavailable = errors.New("unable to create waiting session while a device is connected")

	// ErrSessionUnavailable: an in-flight creation finished without
	// producing a session and without reporting its own error.
	ErrSessionUnavailable = errors.New("waiting sharing session is not available after creation")

	// ErrTerminalStatus: attempted transition out of ERROR or DESTROYED.
	ErrTerminalStatus = errors.New("session status is terminal")

	// ErrDeviceAlreadySet: a second DEVICE_DETAILS arrived for a session
	// that already recorded its partner.
	ErrDeviceAlreadySet = errors.New("partner device already recorded")
)
