package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nodeforge/pipelinecore/internal/domain/pipeline"
	"github.com/nodeforge/pipelinecore/internal/eventbus"
	"github.com/nodeforge/pipelinecore/internal/logging"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// wireEvent is the JSON envelope streamed to WebSocket clients — "type"
// drives client-side dispatch, matching spec.md §6's WS event shape.
type wireEvent struct {
	Type    pipeline.EventType `json:"type"`
	Payload any                `json:"payload"`
}

// eventHub fans every bus event out to connected WebSocket clients.
type eventHub struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]chan wireEvent
	log     *logging.Logger
}

func newEventHub(bus *eventbus.Bus, log *logging.Logger) *eventHub {
	h := &eventHub{clients: make(map[*websocket.Conn]chan wireEvent), log: log}
	if bus == nil {
		return h
	}

	subscribe := func(sample any, t pipeline.EventType) {
		bus.Subscribe(sample, func(_ context.Context, payload any) {
			h.broadcast(wireEvent{Type: t, Payload: payload})
		})
	}
	subscribe(pipeline.PipelineStartedPayload{}, pipeline.EventPipelineStarted)
	subscribe(pipeline.NodeExecutingPayload{}, pipeline.EventNodeExecuting)
	subscribe(pipeline.NodeCompletedPayload{}, pipeline.EventNodeCompleted)
	subscribe(pipeline.NodeLogPayload{}, pipeline.EventNodeLog)
	subscribe(pipeline.PipelineCompletedPayload{}, pipeline.EventPipelineCompleted)
	subscribe(pipeline.PipelineErrorPayload{}, pipeline.EventPipelineError)
	subscribe(pipeline.DeviceConnectedPayload{}, pipeline.EventDeviceConnected)
	subscribe(pipeline.DeviceDisconnectedPayload{}, pipeline.EventDeviceDisconnected)
	subscribe(pipeline.DeviceErrorPayload{}, pipeline.EventDeviceError)

	return h
}

func (h *eventHub) broadcast(evt wireEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn, ch := range h.clients {
		select {
		case ch <- evt:
		default:
			h.log.WithField("remote", conn.RemoteAddr().String()).Warn("ws client too slow, dropping event")
		}
	}
}

func (h *eventHub) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warnf("websocket upgrade failed: %v", err)
		return
	}

	ch := make(chan wireEvent, 64)
	h.mu.Lock()
	h.clients[conn] = ch
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.clients, conn)
		h.mu.Unlock()
		close(ch)
		conn.Close()
	}()

	go h.drainClientReads(conn)

	for evt := range ch {
		data, err := json.Marshal(evt)
		if err != nil {
			continue
		}
		conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
	}
}

// drainClientReads discards client->server frames so the connection's
// read deadline and control-frame (ping/close) handling stay serviced.
func (h *eventHub) drainClientReads(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// pump is a placeholder lifecycle hook: the hub's subscriptions are
// installed eagerly in newEventHub, so pump only needs to block until
// shutdown to give Server.Run a consistent goroutine to manage.
func (h *eventHub) pump(ctx context.Context) {
	<-ctx.Done()
}
