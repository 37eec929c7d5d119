package serve

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func dialHub(t *testing.T, srv *httptest.Server, path string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + path
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timeout waiting for %s", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestEventHubBroadcast(t *testing.T) {
	hub := NewEventHub()
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWebSocket))
	defer srv.Close()
	defer hub.Close()

	conn := dialHub(t, srv, "")
	waitFor(t, "subscription", func() bool { return hub.ClientCount() == 1 })

	hub.Started("job-1", "C2040")
	hub.Log("job-1", "C2040", "converting")
	hub.Error("job-1", "C2040", "converter exited")
	hub.Done("job-1", "C2040", "LCSC_C2040")

	want := []Event{
		{Job: "job-1", Part: "C2040", Type: EventStarted},
		{Job: "job-1", Part: "C2040", Type: EventLog, Message: "converting"},
		{Job: "job-1", Part: "C2040", Type: EventError, Message: "converter exited"},
		{Job: "job-1", Part: "C2040", Type: EventDone, Message: "LCSC_C2040"},
	}
	for i, w := range want {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var got Event
		if err := conn.ReadJSON(&got); err != nil {
			t.Fatalf("read event %d: %v", i, err)
		}
		if got != w {
			t.Errorf("event %d = %+v, want %+v", i, got, w)
		}
	}
}

func TestEventHubMultipleSubscribers(t *testing.T) {
	hub := NewEventHub()
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWebSocket))
	defer srv.Close()
	defer hub.Close()

	a := dialHub(t, srv, "")
	b := dialHub(t, srv, "")
	waitFor(t, "both subscriptions", func() bool { return hub.ClientCount() == 2 })

	hub.Started("job-7", "C42")

	for _, conn := range []*websocket.Conn{a, b} {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var got Event
		if err := conn.ReadJSON(&got); err != nil {
			t.Fatalf("read: %v", err)
		}
		if got.Job != "job-7" || got.Type != EventStarted {
			t.Errorf("event = %+v", got)
		}
	}
}

func TestEventHubDropsClosedClients(t *testing.T) {
	hub := NewEventHub()
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWebSocket))
	defer srv.Close()
	defer hub.Close()

	conn := dialHub(t, srv, "")
	waitFor(t, "subscription", func() bool { return hub.ClientCount() == 1 })

	conn.Close()
	waitFor(t, "eviction", func() bool {
		hub.Log("job-1", "C2040", "ping")
		return hub.ClientCount() == 0
	})
}
