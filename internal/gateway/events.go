package gateway

import (
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/guestchain/guestchain/internal/coordinator"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// EventStream fans coordinator events out to websocket subscribers, giving
// the presentation layer its status-change notification channel over the wire.
type EventStream struct {
	logger *zap.Logger

	mu      sync.Mutex
	clients map[*websocket.Conn]chan coordinator.Event
}

// NewEventStream creates an EventStream and subscribes it to coord.
func NewEventStream(coord *coordinator.Coordinator, logger *zap.Logger) *EventStream {
	s := &EventStream{
		logger:  logger,
		clients: make(map[*websocket.Conn]chan coordinator.Event),
	}
	coord.Subscribe(s.broadcast)
	return s
}

// Register mounts the websocket endpoint on the given router group.
func (s *EventStream) Register(rg *gin.RouterGroup) {
	rg.GET("/events", s.Handle)
}

// Handle upgrades GET /events to a websocket and streams events until the
// client disconnects.
func (s *EventStream) Handle(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	ch := make(chan coordinator.Event, 32)
	s.mu.Lock()
	s.clients[conn] = ch
	s.mu.Unlock()
	s.logger.Debug("event subscriber connected")

	// Writer: push events until the channel is drained and closed.
	go func() {
		for e := range ch {
			if err := conn.WriteJSON(e); err != nil {
				break
			}
		}
		conn.Close() //nolint:errcheck
	}()

	// Reader: only to detect disconnection; incoming frames are discarded.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	s.drop(conn)
}

// broadcast delivers an event to every connected subscriber. A slow
// subscriber whose buffer is full misses the event rather than stalling
// the coordinator; the view endpoints remain the source of truth.
func (s *EventStream) broadcast(e coordinator.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.clients {
		select {
		case ch <- e:
		default:
		}
	}
}

func (s *EventStream) drop(conn *websocket.Conn) {
	s.mu.Lock()
	ch, ok := s.clients[conn]
	if ok {
		delete(s.clients, conn)
	}
	s.mu.Unlock()
	if ok {
		close(ch)
	}
	s.logger.Debug("event subscriber disconnected")
}
