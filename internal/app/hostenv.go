package app

import "sync"

// HostState is the helper's mirror of the host UI state serviced over the
// signaling channel. Implements core.HostEnvironment.
type HostState struct {
	mu       sync.RWMutex
	dark     bool
	language string
}

func NewHostState(dark bool, language string) *HostState {
	return &HostState{dark: dark, language: language}
}

func (h *HostState) IsDarkTheme() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.dark
}

func (h *HostState) AppLanguage() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.language
}

func (h *HostState) SetDarkTheme(dark bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dark = dark
}

func (h *HostState) SetLanguage(lang string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.language = lang
}
