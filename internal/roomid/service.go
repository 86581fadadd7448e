// Package roomid allocates the short human-shareable codes a remote device
// types to join a session, and remembers which ones are in use.
package roomid

import (
	"fmt"
	"math/rand"
	"strings"
	"sync"

	"github.com/okhramov/glimpse/internal/domain"
)

var adjectives = []string{
	"QUICK", "CALM", "BRAVE", "BRIGHT", "COOL",
	"EAGER", "FAIR", "GENTLE", "GRAND", "GREEN",
	"BOLD", "CLEAR", "CRISP", "DEEP", "FAST",
	"FRESH", "KIND", "LIGHT", "NEAT", "PLAIN",
	"PROUD", "PURE", "SAFE", "SHARP", "SMART",
	"SOFT", "SWEET", "TRUE", "VAST", "WISE",
}

var nouns = []string{
	"FROG", "TIGER", "RIVER", "CLOUD", "STONE",
	"LEAF", "BIRD", "WOLF", "BEAR", "HAWK",
	"DEER", "LION", "EAGLE", "WHALE", "OTTER",
	"TREE", "LAKE", "MOON", "STAR", "WAVE",
	"WIND", "FLAME", "FROST", "PEAK", "DAWN",
	"MIST", "RAIN", "STORM", "RIDGE", "TRAIL",
}

// Service hands out room codes in ADJECTIVE-NOUN-NN form and tracks taken
// ones for the lifetime of their sessions. Implements core.RoomIDService.
type Service struct {
	mu    sync.Mutex
	rng   *rand.Rand
	taken map[domain.RoomID]struct{}
}

func NewService(seed int64) *Service {
	return &Service{
		rng:   rand.New(rand.NewSource(seed)),
		taken: make(map[domain.RoomID]struct{}),
	}
}

// NextAvailable generates a code not currently taken. It does not mark the
// code; the registry does that once the session is actually created.
func (s *Service) NextAvailable() (domain.RoomID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for range 64 {
		id := s.generate()
		if _, ok := s.taken[id]; !ok {
			return id, nil
		}
	}
	return "", fmt.Errorf("room id space exhausted")
}

func (s *Service) MarkTaken(id domain.RoomID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.taken[Normalize(id)] = struct{}{}
}

func (s *Service) Release(id domain.RoomID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.taken, Normalize(id))
}

func (s *Service) IsTaken(id domain.RoomID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.taken[Normalize(id)]
	return ok
}

func (s *Service) generate() domain.RoomID {
	adj := adjectives[s.rng.Intn(len(adjectives))]
	noun := nouns[s.rng.Intn(len(nouns))]
	num := s.rng.Intn(100)
	return domain.RoomID(fmt.Sprintf("%s-%s-%02d", adj, noun, num))
}

// Normalize ensures consistent formatting (uppercase, trimmed).
func Normalize(id domain.RoomID) domain.RoomID {
	return domain.RoomID(strings.ToUpper(strings.TrimSpace(string(id))))
}
