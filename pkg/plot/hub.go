package plot

import (
	"encoding/json"
	"net/http"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/StudioSol/set"
	"github.com/gorilla/websocket"
	"github.com/raykavin/rsdash/pkg/logger"
	"github.com/raykavin/rsdash/pkg/refresh"
)

const writeWait = 10 * time.Second

type client struct {
	sync.Mutex
	conn *websocket.Conn

	// touch is the capability reported by the browser, valid once reported
	touch    atomic.Bool
	reported atomic.Bool
}

func (c *client) write(msg Message) error {
	c.Lock()
	defer c.Unlock()
	return c.writeLocked(msg)
}

// writeLocked expects the client lock to be held
func (c *client) writeLocked(msg Message) error {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(c.adapt(msg))
}

// adapt replaces the zoom hint of chart messages with the one matching the
// client's own input device
func (c *client) adapt(msg Message) Message {
	if msg.Type != MessageChart || !c.reported.Load() {
		return msg
	}

	chart, ok := msg.Payload.(chartPayload)
	if !ok {
		return msg
	}

	chart.Config.Subtitle.Text = refresh.Subtitle(c.touch.Load())
	msg.Payload = chart
	return msg
}

func (c *client) report(touch bool) {
	c.touch.Store(touch)
	c.reported.Store(true)
}

// Hub keeps the connected browsers and fans messages out to them
type Hub struct {
	sync.RWMutex
	nextID    int64
	ids       *set.LinkedHashSetINT64
	clients   map[int64]*client
	upgrader  websocket.Upgrader
	broadcast chan Message
	done      chan struct{}
	closeOnce sync.Once
	onMessage func(id int64, msg clientMessage)
	welcome   func() []Message
	log       logger.Logger
}

// hubOption configures a Hub
type hubOption func(*Hub)

// withMessageHandler sets the callback for messages sent by browsers
func withMessageHandler(handler func(id int64, msg clientMessage)) hubOption {
	return func(h *Hub) {
		h.onMessage = handler
	}
}

// withWelcome sets the messages every new client receives first
func withWelcome(welcome func() []Message) hubOption {
	return func(h *Hub) {
		h.welcome = welcome
	}
}

// NewHub creates a hub and starts its broadcast loop
func NewHub(log logger.Logger, options ...hubOption) *Hub {
	hub := &Hub{
		ids:     set.NewLinkedHashSetINT64(),
		clients: make(map[int64]*client),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(*http.Request) bool {
				return true
			},
		},
		broadcast: make(chan Message, 100),
		done:      make(chan struct{}),
		log:       log,
	}

	for _, option := range options {
		option(hub)
	}

	go hub.run()

	return hub
}

func (h *Hub) run() {
	for {
		select {
		case msg := <-h.broadcast:
			h.send(msg)
		case <-h.done:
			return
		}
	}
}

func (h *Hub) send(msg Message) {
	h.RLock()
	defer h.RUnlock()

	for id := range h.ids.Iter() {
		c, ok := h.clients[id]
		if !ok {
			continue
		}
		if err := c.write(msg); err != nil {
			h.log.WithError(err).WithField("client", id).Warn("websocket write failed")
			// the read loop notices the closed connection and unregisters it
			c.conn.Close()
		}
	}
}

// Broadcast queues msg for every connected client
func (h *Hub) Broadcast(msg Message) {
	select {
	case h.broadcast <- msg:
	case <-h.done:
	}
}

// Clients returns the number of connected clients
func (h *Hub) Clients() int {
	h.RLock()
	defer h.RUnlock()
	return len(h.clients)
}

// ServeHTTP upgrades the request and serves the client until it disconnects
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Error("failed to upgrade connection to websocket")
		return
	}

	c := &client{conn: conn}

	// broadcasts wait on the client lock until the initial state is written,
	// so they always land after it
	c.Lock()
	h.Lock()
	h.nextID++
	id := h.nextID
	h.ids.Add(id)
	h.clients[id] = c
	total := len(h.clients)
	h.Unlock()

	err = h.greet(c)
	c.Unlock()

	h.log.WithFields(map[string]any{"client": id, "total": total}).Info("websocket client connected")
	if err != nil {
		h.log.WithError(err).Warn("failed to send initial state")
	}

	h.listen(id, c)
}

// greet writes the welcome messages of the given types, all of them when
// none is given. The client lock must be held.
func (h *Hub) greet(c *client, types ...string) error {
	if h.welcome == nil {
		return nil
	}

	for _, msg := range h.welcome() {
		if len(types) > 0 && !slices.Contains(types, msg.Type) {
			continue
		}
		if err := c.writeLocked(msg); err != nil {
			return err
		}
	}
	return nil
}

func (h *Hub) listen(id int64, c *client) {
	defer func() {
		h.Lock()
		h.ids.Remove(id)
		delete(h.clients, id)
		remaining := len(h.clients)
		h.Unlock()

		c.conn.Close()
		h.log.WithFields(map[string]any{"client": id, "remaining": remaining}).Info("websocket client disconnected")
	}()

	c.conn.SetPingHandler(func(string) error {
		c.Lock()
		defer c.Unlock()
		return c.conn.WriteControl(websocket.PongMessage, nil, time.Now().Add(writeWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.log.WithError(err).Warn("websocket read error")
			}
			return
		}

		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			h.log.WithError(err).WithField("client", id).Debug("ignoring malformed client message")
			continue
		}

		if msg.Type == MessageDevice {
			// charts already shown carry the hint of another device
			c.report(msg.Touch)
			c.Lock()
			err := h.greet(c, MessageChart)
			c.Unlock()
			if err != nil {
				h.log.WithError(err).WithField("client", id).Warn("failed to resend charts")
			}
		}

		if h.onMessage != nil {
			h.onMessage(id, msg)
		}
	}
}

// Close disconnects every client and stops the broadcast loop
func (h *Hub) Close() {
	h.closeOnce.Do(func() {
		close(h.done)

		h.Lock()
		defer h.Unlock()
		for _, c := range h.clients {
			c.conn.Close()
		}
	})
}
