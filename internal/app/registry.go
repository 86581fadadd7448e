package app

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/okhramov/glimpse/internal/core"
	"github.com/okhramov/glimpse/internal/domain"
)

// generation is one single-flight "create pending session" attempt. Every
// caller that arrives while it is open receives the same session or the
// same error once done closes.
type generation struct {
	done chan struct{}
	sess *core.Session
	err  error
}

func (g *generation) finish(sess *core.Session, err error) {
	g.sess = sess
	g.err = err
	close(g.done)
}

func (g *generation) wait(ctx context.Context) (*core.Session, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-g.done:
	}
	if g.err != nil {
		return nil, g.err
	}
	if g.sess == nil {
		return nil, core.ErrSessionUnavailable
	}
	return g.sess, nil
}

// Registry is the single authority for creating, looking up and reaping
// sharing sessions. It owns the LocalUser identity and guarantees at most
// one pending session regardless of caller concurrency.
type Registry struct {
	crypto  core.Cryptor
	roomIDs core.RoomIDService
	slots   core.SlotTracker

	mu       sync.Mutex
	user     *domain.LocalUser
	sessions map[domain.SessionID]*core.Session
	pending  *core.Session
	inflight *generation

	userReady chan struct{}
	readyOnce sync.Once

	reapCancel context.CancelFunc
	reapDone   chan struct{}
}

// NewRegistry wires the registry and starts the background reaper. The
// LocalUser is not created here: the bootstrap either calls InitLocalUser
// (normal run) or SetLocalUser (test run mode).
func NewRegistry(crypto core.Cryptor, roomIDs core.RoomIDService, slots core.SlotTracker, reapInterval time.Duration) *Registry {
	ctx, cancel := context.WithCancel(context.Background())
	r := &Registry{
		crypto:     crypto,
		roomIDs:    roomIDs,
		slots:      slots,
		sessions:   make(map[domain.SessionID]*core.Session),
		userReady:  make(chan struct{}),
		reapCancel: cancel,
		reapDone:   make(chan struct{}),
	}
	go r.reapLoop(ctx, reapInterval)
	return r
}

// Close stops the reaper. Sessions are ephemeral, nothing else to release.
func (r *Registry) Close() {
	r.reapCancel()
	<-r.reapDone
}

// InitLocalUser generates the host identity asynchronously. Session
// creation blocks until it lands.
func (r *Registry) InitLocalUser() {
	go func() {
		for {
			keys, err := r.crypto.GenerateKeyPair()
			if err != nil {
				log.Error().Err(err).Str("module", "app.registry").Msg("key pair generation failed, retrying")
				time.Sleep(time.Second)
				continue
			}
			r.SetLocalUser(domain.NewLocalUser(keys.PrivateKey, keys.PublicKey))
			return
		}
	}()
}

// SetLocalUser installs the identity and releases waiting creators.
// Subsequent calls are ignored; the identity is immutable.
func (r *Registry) SetLocalUser(user *domain.LocalUser) {
	r.readyOnce.Do(func() {
		r.mu.Lock()
		r.user = user
		r.mu.Unlock()
		close(r.userReady)
		log.Info().Str("module", "app.registry").Str("username", user.Username).Msg("local user created")
	})
}

// LocalUser returns the host identity, nil until initialization finishes.
func (r *Registry) LocalUser() *domain.LocalUser {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.user
}

// GetOrCreatePendingSession returns the session awaiting its first
// connection, creating it when none exists. Concurrent callers never
// trigger a second creation: they join the in-flight generation and share
// its outcome, including its error. A free device slot is required before
// a new generation opens.
func (r *Registry) GetOrCreatePendingSession(ctx context.Context, roomID domain.RoomID) (*core.Session, error) {
	r.mu.Lock()
	if g := r.inflight; g != nil {
		r.mu.Unlock()
		return g.wait(ctx)
	}
	if !r.slots.SlotAvailable() {
		r.mu.Unlock()
		return nil, core.ErrSlotUnavailable
	}
	g := &generation{done: make(chan struct{})}
	r.inflight = g
	r.mu.Unlock()

	sess, err := r.createPending(ctx, roomID)

	r.mu.Lock()
	if err == nil {
		r.pending = sess
	}
	r.inflight = nil
	r.mu.Unlock()
	g.finish(sess, err)

	if err != nil {
		return nil, err
	}
	return sess, nil
}

func (r *Registry) createPending(ctx context.Context, roomID domain.RoomID) (*core.Session, error) {
	// Identity creation is the only startup-blocking step.
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-r.userReady:
	}

	r.mu.Lock()
	if r.pending != nil {
		sess := r.pending
		r.mu.Unlock()
		return sess, nil
	}
	r.mu.Unlock()

	return r.CreateSession(roomID)
}

// CreateSession allocates a room id (the supplied one, or a fresh one from
// the room id service), marks it taken and registers a new session bound
// to the LocalUser.
func (r *Registry) CreateSession(roomID domain.RoomID) (*core.Session, error) {
	if roomID == "" {
		id, err := r.roomIDs.NextAvailable()
		if err != nil {
			return nil, err
		}
		roomID = id
	}
	r.roomIDs.MarkTaken(roomID)

	r.mu.Lock()
	defer r.mu.Unlock()
	sess := core.NewSession(roomID, r.user)
	r.sessions[sess.ID()] = sess
	log.Info().Str("module", "app.registry").Str("sid", string(sess.ID())).Str("room", string(roomID)).Msg("session created")
	return sess, nil
}

// GetSession looks a session up by id.
func (r *Registry) GetSession(id domain.SessionID) (*core.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess, ok := r.sessions[id]
	return sess, ok
}

// SessionCount reports the number of registered sessions.
func (r *Registry) SessionCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// PendingSession returns the session awaiting its first connection, if any.
func (r *Registry) PendingSession() *core.Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pending
}

// ClearPending drops the pending reference once the session connected or
// was torn down, so the next request starts a fresh generation.
func (r *Registry) ClearPending() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending = nil
}

// ReleaseRoom frees a room code for reuse once its session was torn down.
func (r *Registry) ReleaseRoom(roomID domain.RoomID) {
	r.roomIDs.Release(roomID)
}

// ReapInactiveSessions removes every session whose status is terminal and
// releases its room id. Non-terminal sessions are untouched.
func (r *Registry) ReapInactiveSessions() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, sess := range r.sessions {
		if !sess.Status().Terminal() {
			continue
		}
		delete(r.sessions, id)
		r.roomIDs.Release(sess.RoomID())
		if r.pending == sess {
			r.pending = nil
		}
		log.Info().Str("module", "app.registry").Str("sid", string(id)).Str("status", sess.Status().String()).Msg("session reaped")
	}
}

func (r *Registry) reapLoop(ctx context.Context, interval time.Duration) {
	defer close(r.reapDone)
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.ReapInactiveSessions()
		}
	}
}
