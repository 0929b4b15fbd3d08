package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"voting-ledger/event"
	"voting-ledger/service"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	maxMessageSize = 512

	sendBufferSize = 16
)

// LiveMessage is pushed to every live client on connect and after each change
type LiveMessage struct {
	Type       string        `json:"type"`
	Reason     string        `json:"reason"`
	Tally      service.Tally `json:"tally"`
	VotingOpen bool          `json:"votingOpen"`
	Timestamp  time.Time     `json:"timestamp"`
}

// LiveHub streams tally snapshots over websockets. It listens on the event bus
// for vote.cast and session.ended and rebroadcasts a fresh tally each time.
type LiveHub struct {
	counter  *service.VoteCountingService
	ledger   *service.VotingService
	eventBus *event.EventBus
	upgrader websocket.Upgrader
	logger   *slog.Logger

	mu      sync.Mutex
	clients map[string]*liveClient
	closed  bool

	castSub  event.EventSubscriberId
	endSub   event.EventSubscriberId
	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

func NewLiveHub(
	counter *service.VoteCountingService,
	ledger *service.VotingService,
	eventBus *event.EventBus,
	logger *slog.Logger,
) *LiveHub {
	h := &LiveHub{
		counter:  counter,
		ledger:   ledger,
		eventBus: eventBus,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		logger:  logger,
		clients: make(map[string]*liveClient),
		done:    make(chan struct{}),
	}
	if eventBus != nil {
		var castCh, endCh <-chan event.Event
		h.castSub, castCh = eventBus.Subscribe(service.VoteCastEventType)
		h.endSub, endCh = eventBus.Subscribe(service.SessionEndedEventType)
		h.wg.Add(1)
		go h.run(castCh, endCh)
	}
	return h
}

func (h *LiveHub) run(castCh, endCh <-chan event.Event) {
	defer h.wg.Done()
	for {
		select {
		case <-h.done:
			return
		case evt, ok := <-castCh:
			if !ok {
				castCh = nil
				continue
			}
			h.Broadcast(string(evt.Type))
		case evt, ok := <-endCh:
			if !ok {
				endCh = nil
				continue
			}
			h.Broadcast(string(evt.Type))
		}
	}
}

func (h *LiveHub) snapshot(reason string) ([]byte, error) {
	return json.Marshal(&LiveMessage{
		Type:       "tally",
		Reason:     reason,
		Tally:      h.counter.Tally(),
		VotingOpen: h.ledger.IsVotingOpen(),
		Timestamp:  time.Now().UTC(),
	})
}

// Broadcast sends a fresh tally to every connected client
func (h *LiveHub) Broadcast(reason string) {
	data, err := h.snapshot(reason)
	if err != nil {
		h.logger.Error("failed to encode live tally", "err", err)
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, c := range h.clients {
		c.enqueue(data)
	}
}

func (h *LiveHub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// ServeHTTP upgrades the request and blocks until the client goes away
func (h *LiveHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", "err", err)
		return
	}

	client := &liveClient{
		id:     uuid.New().String(),
		conn:   conn,
		send:   make(chan []byte, sendBufferSize),
		done:   make(chan struct{}),
		logger: h.logger,
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = conn.Close()
		return
	}
	h.clients[client.id] = client
	h.wg.Add(1)
	h.mu.Unlock()

	h.logger.Debug("live client connected", "clientID", client.id)

	if data, err := h.snapshot("connect"); err == nil {
		client.enqueue(data)
	}

	go func() {
		defer h.wg.Done()
		client.writePump()
	}()
	client.readPump()

	h.mu.Lock()
	delete(h.clients, client.id)
	h.mu.Unlock()
	client.Close()
	h.logger.Debug("live client disconnected", "clientID", client.id)
}

// Close disconnects every client and stops listening for events
func (h *LiveHub) Close() {
	h.stopOnce.Do(func() {
		if h.eventBus != nil {
			h.eventBus.Unsubscribe(service.VoteCastEventType, h.castSub)
			h.eventBus.Unsubscribe(service.SessionEndedEventType, h.endSub)
		}
		close(h.done)

		h.mu.Lock()
		h.closed = true
		clients := make([]*liveClient, 0, len(h.clients))
		for _, c := range h.clients {
			clients = append(clients, c)
		}
		h.mu.Unlock()

		for _, c := range clients {
			c.Close()
		}
		h.wg.Wait()
	})
}

type liveClient struct {
	id     string
	conn   *websocket.Conn
	send   chan []byte
	done   chan struct{}
	logger *slog.Logger
	mu     sync.Mutex
	closed bool
}

func (c *liveClient) enqueue(data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- data:
	default:
		c.logger.Warn("send buffer full, message dropped", "clientID", c.id)
	}
}

func (c *liveClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.done)
	_ = c.conn.Close()
}

// readPump discards client messages and returns once the connection drops
func (c *liveClient) readPump() {
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Debug("websocket read error", "err", err)
			}
			return
		}
	}
}

func (c *liveClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case <-c.done:
			return
		case message := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
