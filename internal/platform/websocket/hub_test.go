package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	gorillawebsocket "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

func TestHub_RegisterClient(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	client := NewClient("mount-1")

	hub.Register(client)

	if hub.ClientCount() != 1 {
		t.Fatalf("expected 1 client, got %d", hub.ClientCount())
	}
	if hub.TopicCount("mount-1") != 1 {
		t.Fatalf("expected 1 client on mount-1, got %d", hub.TopicCount("mount-1"))
	}
}

func TestHub_UnregisterClosesChannelAndDone(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	client := NewClient("mount-2")

	hub.Register(client)
	hub.Unregister(client)
	hub.Unregister(client)

	if hub.ClientCount() != 0 || hub.TopicCount("mount-2") != 0 {
		t.Fatalf("expected client removed, got %d clients", hub.ClientCount())
	}
	if _, ok := <-client.Send; ok {
		t.Error("expected Send closed")
	}
	select {
	case <-client.Done():
	default:
		t.Error("expected Done closed")
	}
}

func TestHub_BroadcastToTopic(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	subscriber := NewClient("mount-a")
	other := NewClient("mount-b")
	hub.Register(subscriber)
	hub.Register(other)

	hub.Publish(context.Background(), Event{
		Type:  EventViewState,
		Topic: "mount-a",
		Tag:   "patients",
		Data:  json.RawMessage(`{"status":"Loaded"}`),
	})

	select {
	case msg := <-subscriber.Send:
		var received Event
		if err := json.Unmarshal(msg, &received); err != nil {
			t.Fatalf("failed to unmarshal event: %v", err)
		}
		if received.Type != EventViewState || received.Tag != "patients" {
			t.Errorf("unexpected event %+v", received)
		}
		if received.Timestamp.IsZero() {
			t.Error("expected Publish to stamp the event")
		}
		if string(received.Data) != `{"status":"Loaded"}` {
			t.Errorf("data = %s", received.Data)
		}
	case <-time.After(time.Second):
		t.Fatal("subscriber did not receive event")
	}

	select {
	case <-other.Send:
		t.Fatal("non-subscriber should not have received event")
	default:
	}
}

func TestHub_FullBufferDoesNotBlock(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	client := &Client{ID: "slow", Topics: []string{"t"}, Send: make(chan []byte, 1)}
	hub.Register(client)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 5; i++ {
			hub.Broadcast("t", Event{Type: EventViewState, Topic: "t"})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("broadcast blocked on a full client buffer")
	}
}

func TestHub_ProcessMessage_RespectsAllow(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	client := NewClient("mount-1")
	client.Allow = func(topic string) bool { return strings.HasPrefix(topic, "mount-") }
	hub.Register(client)

	hub.ProcessMessage(client, ClientMessage{Action: "subscribe", Topics: []string{"mount-2", "other"}})
	if hub.TopicCount("mount-2") != 1 {
		t.Error("expected allowed topic subscribed")
	}
	if hub.TopicCount("other") != 0 {
		t.Error("expected rejected topic ignored")
	}

	hub.ProcessMessage(client, ClientMessage{Action: "unsubscribe", Topics: []string{"mount-1"}})
	if hub.TopicCount("mount-1") != 0 {
		t.Error("expected mount-1 unsubscribed")
	}
	if len(client.Topics) != 1 || client.Topics[0] != "mount-2" {
		t.Errorf("topics = %v", client.Topics)
	}
}

func TestHub_ProcessMessage_NotifiesAllowedTopics(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	client := NewClient("mount-1")
	client.Allow = func(topic string) bool { return strings.HasPrefix(topic, "mount-") }
	var got [][]string
	client.OnSubscribe = func(topics []string) { got = append(got, topics) }
	hub.Register(client)

	hub.ProcessMessage(client, ClientMessage{Action: "subscribe", Topics: []string{"other"}})
	hub.ProcessMessage(client, ClientMessage{Action: "subscribe", Topics: []string{"mount-2", "other", "mount-3"}})

	if len(got) != 1 {
		t.Fatalf("OnSubscribe calls = %d, want 1", len(got))
	}
	if strings.Join(got[0], ",") != "mount-2,mount-3" {
		t.Errorf("OnSubscribe topics = %v, want only allowed ones", got[0])
	}
}

func TestHub_ProcessMessage_NilAllowDenies(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	client := NewClient()
	hub.Register(client)

	hub.ProcessMessage(client, ClientMessage{Action: "subscribe", Topics: []string{"mount-9"}})
	if hub.TopicCount("mount-9") != 0 {
		t.Error("expected subscription denied without Allow")
	}
}

func TestHub_ConcurrentRegisterUnregister(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c := NewClient("shared")
			hub.Register(c)
			hub.Broadcast("shared", Event{Type: EventViewState, Topic: "shared"})
			hub.Unregister(c)
		}()
	}
	wg.Wait()

	if hub.ClientCount() != 0 || hub.TopicCount("shared") != 0 {
		t.Errorf("expected empty hub, got %d clients", hub.ClientCount())
	}
}

func TestHandler_ServeDeliversEvents(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	handler := NewHandler(hub, nil)

	registered := make(chan *Client, 1)
	e := echo.New()
	e.GET("/live/:mount", func(c echo.Context) error {
		client, err := handler.Serve(c, []string{c.Param("mount")}, nil, nil)
		if err != nil {
			return err
		}
		registered <- client
		return nil
	})
	srv := httptest.NewServer(e)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/live/m-1"
	conn, _, err := gorillawebsocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	var client *Client
	select {
	case client = <-registered:
	case <-time.After(2 * time.Second):
		t.Fatal("client not registered")
	}

	hub.Publish(context.Background(), Event{Type: EventViewState, Topic: "m-1"})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var evt Event
	if err := json.Unmarshal(msg, &evt); err != nil || evt.Topic != "m-1" {
		t.Fatalf("unexpected message %s (%v)", msg, err)
	}

	conn.Close()
	select {
	case <-client.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("client not unregistered after disconnect")
	}
}

func TestHandler_RejectsForeignOrigin(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	handler := NewHandler(hub, []string{"https://emr.example.org"})

	e := echo.New()
	e.GET("/live/:mount", func(c echo.Context) error {
		_, err := handler.Serve(c, []string{c.Param("mount")}, nil, nil)
		return err
	})
	srv := httptest.NewServer(e)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/live/m-1"

	header := http.Header{"Origin": []string{"https://evil.example.com"}}
	if _, _, err := gorillawebsocket.DefaultDialer.Dial(wsURL, header); err == nil {
		t.Error("expected foreign origin rejected")
	}

	header = http.Header{"Origin": []string{"https://emr.example.org"}}
	conn, _, err := gorillawebsocket.DefaultDialer.Dial(wsURL, header)
	if err != nil {
		t.Fatalf("expected allowed origin accepted: %v", err)
	}
	conn.Close()
}
