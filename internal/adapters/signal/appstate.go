package signal

import "github.com/rs/zerolog/log"

func (ch *Channel) handleGetAppTheme() {
	if err := ch.SendEncrypted(KindAppTheme, ValuePayload{Value: ch.host.IsDarkTheme()}); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("send app_theme reply")
	}
}

func (ch *Channel) handleGetAppLanguage() {
	if err := ch.SendEncrypted(KindAppLanguage, ValuePayload{Value: ch.host.AppLanguage()}); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("send app_language reply")
	}
}

// NotifyTheme pushes the current host theme without being asked, used when
// the host user flips the color scheme mid-session.
func (ch *Channel) NotifyTheme() error {
	return ch.SendEncrypted(KindAppTheme, ValuePayload{Value: ch.host.IsDarkTheme()})
}

// NotifyLanguage pushes the current host language without being asked.
func (ch *Channel) NotifyLanguage() error {
	return ch.SendEncrypted(KindAppLanguage, ValuePayload{Value: ch.host.AppLanguage()})
}
