package signal

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/okhramov/glimpse/internal/core"
	"github.com/okhramov/glimpse/internal/domain"
)

func (ch *Channel) handleCallAccepted(msg message) {
	var p CallAcceptedPayload
	if err := json.Unmarshal(msg.Payload, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad call_accepted payload")
		return
	}
	if err := ch.transport.Signal(p.SignalData); err != nil {
		log.Error().Err(err).Str("module", "signal").Str("sid", string(ch.session.ID())).Msg("forward signal to transport")
		if failErr := ch.session.Fail(); failErr != nil {
			log.Warn().Err(failErr).Str("module", "signal").Msg("session already terminal")
		}
	}
}

func (ch *Channel) handleDeviceDetails(msg message, fromSocketID string) {
	var p DeviceDetailsPayload
	if err := json.Unmarshal(msg.Payload, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad device_details payload")
		return
	}

	// Reverse lookup against the transport; failure skips the descriptor
	// step for this message only.
	ip, err := ch.transport.LookupIP(fromSocketID)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Str("socket_id", fromSocketID).Msg("reverse IP lookup failed, descriptor skipped")
		return
	}

	if ch.VerifyDeviceIP != nil {
		if err := ch.VerifyDeviceIP(ip, p); err != nil {
			log.Error().Err(err).Str("module", "signal").Str("device_ip", ip).Msg("device IP verification failed")
			if failErr := ch.session.Fail(); failErr != nil {
				log.Warn().Err(failErr).Str("module", "signal").Msg("session already terminal")
			}
			return
		}
	}

	device := &domain.DeviceDescriptor{
		ID:               uuid.NewString(),
		IP:               ip,
		Type:             p.DeviceType,
		OS:               p.OS,
		Browser:          p.Browser,
		ScreenWidth:      p.DeviceScreenWidth,
		ScreenHeight:     p.DeviceScreenHeight,
		SharingSessionID: ch.session.ID(),
		RoomID:           ch.session.RoomID(),
	}

	if err := ch.session.Connect(device); err != nil {
		if err == core.ErrDeviceAlreadySet {
			log.Warn().Str("module", "signal").Str("sid", string(ch.session.ID())).Msg("duplicate device_details ignored")
			return
		}
		log.Error().Err(err).Str("module", "signal").Str("sid", string(ch.session.ID())).Msg("record partner device")
		return
	}

	ch.mu.Lock()
	fn := ch.onDeviceConnected
	ch.mu.Unlock()
	if fn != nil {
		fn(device)
	}
}
