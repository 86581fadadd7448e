package domain

// DeviceDescriptor is the partner device's metadata, built once when the
// device announces itself and immutable for the life of the connection.
// IP comes from the transport-side reverse lookup, the rest is
// self-reported by the device.
type DeviceDescriptor struct {
	ID               string    `json:"id"`
	IP               string    `json:"deviceIP"`
	Type             string    `json:"deviceType"`
	OS               string    `json:"deviceOS"`
	Browser          string    `json:"deviceBrowser"`
	ScreenWidth      int       `json:"deviceScreenWidth"`
	ScreenHeight     int       `json:"deviceScreenHeight"`
	SharingSessionID SessionID `json:"sharingSessionID"`
	RoomID           RoomID    `json:"deviceRoomId"`
}
