package devicesock_test

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/okhramov/glimpse/internal/adapters/devicesock"
	"github.com/okhramov/glimpse/internal/adapters/signal"
	"github.com/okhramov/glimpse/internal/domain"
)

type wireFrame struct {
	Type      string `json:"type"`
	PublicKey string `json:"publicKey,omitempty"`
	Payload   []byte `json:"payload,omitempty"`
}

func dial(t *testing.T, srv *devicesock.Server, roomID string) *websocket.Conn {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/ws/room/:roomID", srv.HandleDevice)
	ts := httptest.NewServer(r)
	t.Cleanup(ts.Close)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/room/" + roomID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestJoinAnnouncesPartnerKey(t *testing.T) {
	srv := devicesock.NewServer()
	keys := make(chan string, 1)
	srv.OnPartnerKey(func(roomID domain.RoomID, key string) {
		if roomID == "QUICK-FROG-01" {
			keys <- key
		}
	})

	conn := dial(t, srv, "QUICK-FROG-01")
	if err := conn.WriteJSON(wireFrame{Type: "JOIN", PublicKey: "device-pub"}); err != nil {
		t.Fatalf("write join: %v", err)
	}

	select {
	case key := <-keys:
		if key != "device-pub" {
			t.Fatalf("key = %s, want device-pub", key)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("partner key never announced")
	}
}

func TestEncryptedMessageRelayedWithSocketID(t *testing.T) {
	srv := devicesock.NewServer()
	envs := make(chan signal.Envelope, 1)
	srv.OnEnvelope(func(roomID domain.RoomID, env signal.Envelope) {
		envs <- env
	})

	conn := dial(t, srv, "QUICK-FROG-01")
	sealed := []byte("sealed-bytes")
	if err := conn.WriteJSON(wireFrame{Type: "ENCRYPTED_MESSAGE", Payload: sealed}); err != nil {
		t.Fatalf("write envelope: %v", err)
	}

	var env signal.Envelope
	select {
	case env = <-envs:
	case <-time.After(2 * time.Second):
		t.Fatal("envelope never relayed")
	}
	if !bytes.Equal(env.Payload, sealed) {
		t.Fatalf("payload = %q, want %q", env.Payload, sealed)
	}
	if env.FromSocketID == "" {
		t.Fatal("no origin socket id")
	}

	// The origin id resolves back to the device's address.
	ip, err := srv.LookupIP(env.FromSocketID)
	if err != nil {
		t.Fatalf("LookupIP: %v", err)
	}
	if ip != "127.0.0.1" {
		t.Fatalf("ip = %s, want 127.0.0.1", ip)
	}
}

func TestSenderDeliversToRoom(t *testing.T) {
	srv := devicesock.NewServer()
	conn := dial(t, srv, "QUICK-FROG-01")

	// The handler registers the socket asynchronously from the dial; a
	// JOIN round trip is not required, only that the upgrade completed.
	deadline := time.Now().Add(2 * time.Second)
	send := srv.Sender("QUICK-FROG-01")
	sealed := []byte("to-device")
	for {
		if err := send(sealed); err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("sender never found the room socket")
		}
		time.Sleep(10 * time.Millisecond)
	}

	if err := conn.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
		t.Fatalf("set deadline: %v", err)
	}
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var f wireFrame
	if err := json.Unmarshal(data, &f); err != nil {
		t.Fatalf("unmarshal frame: %v", err)
	}
	if f.Type != "ENCRYPTED_MESSAGE" {
		t.Fatalf("frame type = %s", f.Type)
	}
	if !bytes.Equal(f.Payload, sealed) {
		t.Fatalf("payload = %q, want %q", f.Payload, sealed)
	}
}

func TestCloseShutsDeviceSockets(t *testing.T) {
	srv := devicesock.NewServer()
	envs := make(chan signal.Envelope, 1)
	srv.OnEnvelope(func(_ domain.RoomID, env signal.Envelope) {
		envs <- env
	})

	conn := dial(t, srv, "QUICK-FROG-01")
	if err := conn.WriteJSON(wireFrame{Type: "ENCRYPTED_MESSAGE", Payload: []byte("x")}); err != nil {
		t.Fatalf("write envelope: %v", err)
	}
	var env signal.Envelope
	select {
	case env = <-envs:
	case <-time.After(2 * time.Second):
		t.Fatal("envelope never relayed")
	}

	srv.Close()

	if err := conn.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
		t.Fatalf("set deadline: %v", err)
	}
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatal("device socket still open after Close")
	}

	// The read loop untracks the socket as it exits.
	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, err := srv.LookupIP(env.FromSocketID); err != nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("socket still tracked after Close")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestSenderEmptyRoom(t *testing.T) {
	srv := devicesock.NewServer()
	if err := srv.Sender("EMPTY-ROOM-00")([]byte("x")); err == nil {
		t.Fatal("expected error for empty room")
	}
}

func TestLookupIPUnknownSocket(t *testing.T) {
	srv := devicesock.NewServer()
	if _, err := srv.LookupIP("nope"); err != devicesock.ErrUnknownSocket {
		t.Fatalf("expected ErrUnknownSocket, got %v", err)
	}
}
