package uiproto

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/agent-dashboard/dashboard/internal/session"
)

func dialTestWS(t *testing.T) (*httptest.Server, *websocket.Conn, *websocket.Conn) {
	t.Helper()
	connCh := make(chan *websocket.Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		connCh <- c
	}))
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	clientConn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		srv.Close()
		t.Fatalf("dial: %v", err)
	}
	select {
	case serverConn := <-connCh:
		return srv, serverConn, clientConn
	case <-time.After(2 * time.Second):
		srv.Close()
		t.Fatal("timed out waiting for server-side connection")
		return nil, nil, nil
	}
}

func TestAddClientSendsLatestSnapshotImmediately(t *testing.T) {
	b := NewBroadcaster(10)
	b.Publish(&session.StateSnapshot{StatusMessage: "first"})

	srv, serverConn, clientConn := dialTestWS(t)
	defer srv.Close()
	defer clientConn.Close()

	if _, err := b.AddClient(serverConn); err != nil {
		t.Fatalf("AddClient: %v", err)
	}

	clientConn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := clientConn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	if !strings.Contains(string(data), `"first"`) {
		t.Fatalf("expected the latest snapshot to be sent immediately, got %s", data)
	}
}

func TestPublishSupersedesOlderSnapshot(t *testing.T) {
	b := NewBroadcaster(10)
	srv, serverConn, clientConn := dialTestWS(t)
	defer srv.Close()
	defer clientConn.Close()

	if _, err := b.AddClient(serverConn); err != nil {
		t.Fatalf("AddClient: %v", err)
	}

	b.Publish(&session.StateSnapshot{StatusMessage: "v1"})
	b.Publish(&session.StateSnapshot{StatusMessage: "v2"})

	clientConn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var lastMsg string
	for i := 0; i < 2; i++ {
		_, data, err := clientConn.ReadMessage()
		if err != nil {
			break
		}
		lastMsg = string(data)
	}
	if !strings.Contains(lastMsg, `"v2"`) {
		t.Fatalf("expected latest read to reflect v2, got %s", lastMsg)
	}
}

func TestAddClientMaxConnections(t *testing.T) {
	const maxConns = 1
	b := NewBroadcaster(maxConns)

	srv1, serverConn1, clientConn1 := dialTestWS(t)
	defer srv1.Close()
	defer clientConn1.Close()
	if _, err := b.AddClient(serverConn1); err != nil {
		t.Fatalf("AddClient[0]: %v", err)
	}

	srv2, serverConn2, clientConn2 := dialTestWS(t)
	defer srv2.Close()
	defer clientConn2.Close()
	if _, err := b.AddClient(serverConn2); !errors.Is(err, ErrTooManyConnections) {
		t.Fatalf("expected ErrTooManyConnections, got %v", err)
	}
}
