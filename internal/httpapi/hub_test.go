package httpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/nodeforge/pipelinecore/internal/domain/pipeline"
	"github.com/nodeforge/pipelinecore/internal/eventbus"
	"github.com/nodeforge/pipelinecore/internal/logging"
)

func TestEventHubBroadcastsSubscribedPayloadTypes(t *testing.T) {
	bus := eventbus.New(nil)
	hub := newEventHub(bus, logging.NewDefault("test"))

	srv := httptest.NewServer(http.HandlerFunc(hub.serveWS))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	// give the server goroutine a moment to register the client before
	// publishing, since registration happens after the upgrade completes.
	time.Sleep(20 * time.Millisecond)

	bus.Publish(context.Background(), pipeline.PipelineStartedPayload{PipelineID: "p1"})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got wireEvent
	require.NoError(t, conn.ReadJSON(&got))
	require.Equal(t, pipeline.EventPipelineStarted, got.Type)
}

func TestEventHubDropsEventsForSlowClientsInsteadOfBlocking(t *testing.T) {
	bus := eventbus.New(nil)
	hub := newEventHub(bus, logging.NewDefault("test"))

	srv := httptest.NewServer(http.HandlerFunc(hub.serveWS))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	time.Sleep(20 * time.Millisecond)

	// publish far more events than the client's buffered channel (64) can
	// hold without the client reading; broadcast must not block on a full
	// channel.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 200; i++ {
			bus.Publish(context.Background(), pipeline.NodeExecutingPayload{NodeID: "n"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("broadcast blocked on a slow client instead of dropping")
	}
}

func TestEventHubRemovesClientOnDisconnect(t *testing.T) {
	bus := eventbus.New(nil)
	hub := newEventHub(bus, logging.NewDefault("test"))

	srv := httptest.NewServer(http.HandlerFunc(hub.serveWS))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)
	hub.mu.Lock()
	require.Len(t, hub.clients, 1)
	hub.mu.Unlock()

	conn.Close()

	require.Eventually(t, func() bool {
		hub.mu.Lock()
		defer hub.mu.Unlock()
		return len(hub.clients) == 0
	}, 2*time.Second, 10*time.Millisecond)
}
