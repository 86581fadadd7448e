package signal_test

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/okhramov/glimpse/internal/adapters/signal"
	"github.com/okhramov/glimpse/internal/core"
	"github.com/okhramov/glimpse/internal/crypto"
	"github.com/okhramov/glimpse/internal/domain"
)

type fakeTransport struct {
	signaled [][]byte
	signalFn func([]byte) error
	ips      map[string]string
	sourceID string
	closed   bool
}

func (f *fakeTransport) Call() error { return nil }

func (f *fakeTransport) Signal(blob []byte) error {
	if f.signalFn != nil {
		return f.signalFn(blob)
	}
	f.signaled = append(f.signaled, blob)
	return nil
}

func (f *fakeTransport) OnSignal(fn func([]byte)) {}

func (f *fakeTransport) SetSourceID(id string) { f.sourceID = id }

func (f *fakeTransport) LookupIP(socketID string) (string, error) {
	ip, ok := f.ips[socketID]
	if !ok {
		return "", fmt.Errorf("unknown socket %s", socketID)
	}
	return ip, nil
}

func (f *fakeTransport) Close() { f.closed = true }

type fakeHost struct {
	dark bool
	lang string
}

func (f *fakeHost) IsDarkTheme() bool   { return f.dark }
func (f *fakeHost) AppLanguage() string { return f.lang }

type fixture struct {
	channel   *signal.Channel
	session   *core.Session
	transport *fakeTransport
	provider  *crypto.Provider
	hostKeys  core.KeyPair
	partner   core.KeyPair
	sent      *[][]byte
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	provider := crypto.NewProvider()
	hostKeys, err := provider.GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	partner, err := provider.GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}

	user := domain.NewLocalUser(hostKeys.PrivateKey, hostKeys.PublicKey)
	sess := core.NewSession("QUICK-FROG-01", user)
	transport := &fakeTransport{ips: map[string]string{"S1": "10.0.0.5"}}
	host := &fakeHost{dark: true, lang: "en"}

	var sent [][]byte
	ch := signal.NewChannel(sess, user, transport, host, provider, func(b []byte) error {
		sent = append(sent, b)
		return nil
	})
	ch.SetPartnerPublicKey(partner.PublicKey)

	return &fixture{
		channel:   ch,
		session:   sess,
		transport: transport,
		provider:  provider,
		hostKeys:  hostKeys,
		partner:   partner,
		sent:      &sent,
	}
}

// seal builds an inbound envelope the way a remote device would: a typed
// json message encrypted for the host's public key.
func (fx *fixture) seal(t *testing.T, kind signal.Kind, payload any) signal.Envelope {
	t.Helper()
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	plain, err := json.Marshal(map[string]any{"type": kind, "payload": json.RawMessage(raw)})
	if err != nil {
		t.Fatalf("marshal message: %v", err)
	}
	sealed, err := fx.provider.Encrypt(fx.hostKeys.PublicKey, plain)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	return signal.Envelope{Payload: sealed, FromSocketID: "S1"}
}

// openSent decrypts the i-th outbound message with the partner's key.
func (fx *fixture) openSent(t *testing.T, i int) (signal.Kind, json.RawMessage) {
	t.Helper()
	plain, err := fx.provider.Decrypt(fx.partner.PrivateKey, (*fx.sent)[i])
	if err != nil {
		t.Fatalf("Decrypt outbound: %v", err)
	}
	var m struct {
		Type    signal.Kind     `json:"type"`
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(plain, &m); err != nil {
		t.Fatalf("unmarshal outbound: %v", err)
	}
	return m.Type, m.Payload
}

func TestThemeRequestReply(t *testing.T) {
	fx := newFixture(t)
	fx.channel.HandleEncrypted(fx.seal(t, signal.KindGetAppTheme, struct{}{}))

	if len(*fx.sent) != 1 {
		t.Fatalf("sent %d messages, want 1", len(*fx.sent))
	}
	kind, payload := fx.openSent(t, 0)
	if kind != signal.KindAppTheme {
		t.Fatalf("reply kind = %s, want APP_THEME", kind)
	}
	var vp signal.ValuePayload
	if err := json.Unmarshal(payload, &vp); err != nil {
		t.Fatalf("unmarshal value: %v", err)
	}
	if vp.Value != true {
		t.Fatalf("theme value = %v, want true", vp.Value)
	}
}

func TestLanguageRequestReply(t *testing.T) {
	fx := newFixture(t)
	fx.channel.HandleEncrypted(fx.seal(t, signal.KindGetAppLanguage, struct{}{}))

	if len(*fx.sent) != 1 {
		t.Fatalf("sent %d messages, want 1", len(*fx.sent))
	}
	kind, payload := fx.openSent(t, 0)
	if kind != signal.KindAppLanguage {
		t.Fatalf("reply kind = %s, want APP_LANGUAGE", kind)
	}
	var vp signal.ValuePayload
	if err := json.Unmarshal(payload, &vp); err != nil {
		t.Fatalf("unmarshal value: %v", err)
	}
	if vp.Value != "en" {
		t.Fatalf("language value = %v, want en", vp.Value)
	}
}

func TestDeviceDetailsConnectsSession(t *testing.T) {
	fx := newFixture(t)
	var notified []*domain.DeviceDescriptor
	fx.channel.OnDeviceConnected(func(d *domain.DeviceDescriptor) {
		notified = append(notified, d)
	})

	details := signal.DeviceDetailsPayload{
		DeviceType:         "mobile",
		OS:                 "Android",
		Browser:            "Chrome",
		DeviceScreenWidth:  1080,
		DeviceScreenHeight: 2400,
	}
	fx.channel.HandleEncrypted(fx.seal(t, signal.KindDeviceDetails, details))

	if fx.session.Status() != domain.StatusConnected {
		t.Fatalf("status = %s, want CONNECTED", fx.session.Status())
	}
	dev := fx.session.Device()
	if dev == nil {
		t.Fatal("no device recorded")
	}
	if dev.IP != "10.0.0.5" {
		t.Fatalf("device IP = %s, want transport-resolved 10.0.0.5", dev.IP)
	}
	if dev.Type != "mobile" || dev.OS != "Android" || dev.Browser != "Chrome" {
		t.Fatalf("device = %+v", dev)
	}
	if dev.SharingSessionID != fx.session.ID() || dev.RoomID != fx.session.RoomID() {
		t.Fatalf("device binding = %+v", dev)
	}
	if len(notified) != 1 {
		t.Fatalf("observer fired %d times, want 1", len(notified))
	}

	// A duplicate announcement must not refire the observer.
	fx.channel.HandleEncrypted(fx.seal(t, signal.KindDeviceDetails, details))
	if len(notified) != 1 {
		t.Fatalf("observer fired %d times after duplicate, want 1", len(notified))
	}
	if fx.session.Device().ID != dev.ID {
		t.Fatal("duplicate announcement replaced the descriptor")
	}
}

func TestDeviceDetailsUnknownSocketSkipped(t *testing.T) {
	fx := newFixture(t)
	env := fx.seal(t, signal.KindDeviceDetails, signal.DeviceDetailsPayload{DeviceType: "mobile"})
	env.FromSocketID = "unknown"
	fx.channel.HandleEncrypted(env)

	if fx.session.Status() != domain.StatusWaitingForConnection {
		t.Fatalf("status = %s, want WAITING_FOR_CONNECTION", fx.session.Status())
	}
	if fx.session.Device() != nil {
		t.Fatal("descriptor recorded despite failed IP lookup")
	}
}

func TestDeviceIPVerificationFailure(t *testing.T) {
	fx := newFixture(t)
	fx.channel.VerifyDeviceIP = func(observedIP string, details signal.DeviceDetailsPayload) error {
		return errors.New("address mismatch")
	}
	fx.channel.HandleEncrypted(fx.seal(t, signal.KindDeviceDetails, signal.DeviceDetailsPayload{DeviceType: "mobile"}))

	if fx.session.Status() != domain.StatusError {
		t.Fatalf("status = %s, want ERROR", fx.session.Status())
	}
	if fx.session.Device() != nil {
		t.Fatal("descriptor recorded despite failed verification")
	}
}

func TestCallAcceptedForwardsSignal(t *testing.T) {
	fx := newFixture(t)
	sdp := json.RawMessage(`{"type":"answer","sdp":"v=0"}`)
	fx.channel.HandleEncrypted(fx.seal(t, signal.KindCallAccepted, signal.CallAcceptedPayload{SignalData: sdp}))

	if len(fx.transport.signaled) != 1 {
		t.Fatalf("transport received %d blobs, want 1", len(fx.transport.signaled))
	}
	if string(fx.transport.signaled[0]) != string(sdp) {
		t.Fatalf("signal blob = %s", fx.transport.signaled[0])
	}
}

func TestCallAcceptedTransportFailureFailsSession(t *testing.T) {
	fx := newFixture(t)
	fx.transport.signalFn = func([]byte) error { return errors.New("pc closed") }
	fx.channel.HandleEncrypted(fx.seal(t, signal.KindCallAccepted, signal.CallAcceptedPayload{SignalData: json.RawMessage(`{}`)}))

	if fx.session.Status() != domain.StatusError {
		t.Fatalf("status = %s, want ERROR", fx.session.Status())
	}
}

func TestMalformedEnvelopeDropped(t *testing.T) {
	fx := newFixture(t)
	fx.channel.HandleEncrypted(signal.Envelope{Payload: []byte("garbage"), FromSocketID: "S1"})

	if fx.session.Status() != domain.StatusWaitingForConnection {
		t.Fatalf("status = %s after garbage, want WAITING_FOR_CONNECTION", fx.session.Status())
	}
	if len(*fx.sent) != 0 {
		t.Fatalf("garbage produced %d outbound messages", len(*fx.sent))
	}

	// The channel stays usable.
	fx.channel.HandleEncrypted(fx.seal(t, signal.KindGetAppTheme, struct{}{}))
	if len(*fx.sent) != 1 {
		t.Fatal("channel dead after malformed envelope")
	}
}

func TestUnknownKindIgnored(t *testing.T) {
	fx := newFixture(t)
	fx.channel.HandleEncrypted(fx.seal(t, signal.Kind("SOMETHING_NEW"), struct{}{}))
	if len(*fx.sent) != 0 {
		t.Fatal("unknown kind produced output")
	}
	if fx.session.Status() != domain.StatusWaitingForConnection {
		t.Fatalf("status = %s, want WAITING_FOR_CONNECTION", fx.session.Status())
	}
}

func TestSendEncryptedWithoutPartnerKey(t *testing.T) {
	provider := crypto.NewProvider()
	hostKeys, err := provider.GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	user := domain.NewLocalUser(hostKeys.PrivateKey, hostKeys.PublicKey)
	sess := core.NewSession("QUICK-FROG-01", user)
	ch := signal.NewChannel(sess, user, &fakeTransport{}, &fakeHost{}, provider, func([]byte) error { return nil })

	err = ch.SendEncrypted(signal.KindAppTheme, signal.ValuePayload{Value: true})
	if !errors.Is(err, signal.ErrNoPartnerKey) {
		t.Fatalf("expected ErrNoPartnerKey, got %v", err)
	}
}
