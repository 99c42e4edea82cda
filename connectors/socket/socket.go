package socket

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	bcd "github.com/cognitedata/bridge-carousel/integrations/bridge_cams_to_display"
	"github.com/cognitedata/bridge-carousel/internal"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

const (
	NotificationSetConfig = "SET_CONFIG"

	defaultWriteWait  = 10 * time.Second
	defaultPongWait   = 60 * time.Second
	maxInboundMessage = 64 * 1024
)

// SessionConfigurator is implemented by the session registry.
type SessionConfigurator interface {
	Configure(config bcd.SessionConfig) (bool, error)
}

// Frame is a single websocket message in either direction.
type Frame struct {
	Notification string          `json:"notification"`
	Payload      json.RawMessage `json:"payload"`
}

// Handler serves the display control channel. Every connected client receives notifications
// of the sessions it configured.
type Handler struct {
	moduleName string
	bus        *internal.EventBus
	sessions   SessionConfigurator
	upgrader   websocket.Upgrader
	clients    int32

	WriteWait time.Duration
	PongWait  time.Duration
}

func NewHandler(moduleName string, bus *internal.EventBus, sessions SessionConfigurator) *Handler {
	return &Handler{
		moduleName: moduleName,
		bus:        bus,
		sessions:   sessions,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// the display is served by another origin than the bridge carousel
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		WriteWait: defaultWriteWait,
		PongWait:  defaultPongWait,
	}
}

// Clients returns the number of connected clients.
func (h *Handler) Clients() int {
	return int(atomic.LoadInt32(&h.clients))
}

type client struct {
	h          *Handler
	conn       *websocket.Conn
	log        *log.Entry
	ch         chan internal.Notification
	subscribed map[string]bool
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warnf("Websocket upgrade failed. Error : %s", err.Error())
		return
	}
	clientID := uuid.New().String()
	// the client id topic keeps the channel subscribed while it has no sessions
	c := &client{
		h:          h,
		conn:       conn,
		log:        log.WithField("client", clientID),
		ch:         h.bus.Sub(clientID),
		subscribed: map[string]bool{},
	}
	atomic.AddInt32(&h.clients, 1)
	defer atomic.AddInt32(&h.clients, -1)
	c.log.Infof("Display client connected from %s", r.RemoteAddr)
	c.run()
	c.log.Info("Display client disconnected")
}

func (c *client) run() {
	defer c.conn.Close()

	err := c.write(c.h.encode(internal.Notification{
		Kind:    internal.NotificationSetMessage,
		Payload: map[string]interface{}{"status": bcd.StateLoading.String()},
	}))
	if err != nil {
		c.log.Debugf("Initial message not delivered. Error : %s", err.Error())
		c.release()
		return
	}

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.writeLoop(done)
	}()

	c.readLoop()
	close(done)
	wg.Wait()
	c.release()
}

// release unsubscribes the client channel, draining it until the bus closes it.
func (c *client) release() {
	go c.h.bus.Unsub(c.ch)
	for range c.ch {
	}
}

func (c *client) readLoop() {
	c.conn.SetReadLimit(maxInboundMessage)
	c.conn.SetReadDeadline(time.Now().Add(c.h.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.h.PongWait))
	})
	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				c.log.Warnf("Websocket read failed. Error : %s", err.Error())
			}
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(c.h.PongWait))
		c.handle(message)
	}
}

func (c *client) handle(message []byte) {
	var f Frame
	if err := json.Unmarshal(message, &f); err != nil {
		c.log.Warnf("Malformed frame ignored. Error : %s", err.Error())
		return
	}
	kind := strings.TrimPrefix(f.Notification, c.h.moduleName+"-")
	switch kind {
	case NotificationSetConfig:
		var config bcd.SessionConfig
		if err := json.Unmarshal(f.Payload, &config); err != nil {
			c.log.Warnf("Malformed SET_CONFIG ignored. Error : %s", err.Error())
			return
		}
		id := strings.TrimSpace(config.ID)
		if id == "" {
			c.log.Warn("SET_CONFIG without id ignored")
			return
		}
		added := !c.subscribed[id]
		if added {
			c.h.bus.AddSub(c.ch, id)
			c.subscribed[id] = true
		}
		created, err := c.h.sessions.Configure(config)
		if err != nil {
			c.log.Errorf("Session %s can't be configured. Error : %s", id, err.Error())
			if added {
				c.h.bus.Unsub(c.ch, id)
				delete(c.subscribed, id)
			}
			return
		}
		c.log.Debugf("SET_CONFIG for session %s, created = %v", id, created)
	default:
		c.log.Debugf("Unknown notification %s ignored", f.Notification)
	}
}

func (c *client) writeLoop(done chan struct{}) {
	ticker := time.NewTicker(c.h.pingPeriod())
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case n, ok := <-c.ch:
			if !ok {
				return
			}
			if err := c.write(c.h.encode(n)); err != nil {
				c.log.Debugf("Notification not delivered. Error : %s", err.Error())
				c.conn.Close()
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.h.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.conn.Close()
				return
			}
		}
	}
}

func (c *client) write(f Frame) error {
	c.conn.SetWriteDeadline(time.Now().Add(c.h.WriteWait))
	return c.conn.WriteJSON(f)
}

func (h *Handler) pingPeriod() time.Duration {
	return h.PongWait * 9 / 10
}

// encode builds an outbound frame, the session id is carried in the payload. An empty id is sent as null.
func (h *Handler) encode(n internal.Notification) Frame {
	payload := make(map[string]interface{}, len(n.Payload)+1)
	for k, v := range n.Payload {
		payload[k] = v
	}
	if n.ID == "" {
		payload["id"] = nil
	} else {
		payload["id"] = n.ID
	}
	body, err := json.Marshal(payload)
	if err != nil {
		log.Errorf("Notification %s can't be encoded. Error : %s", n.Kind, err.Error())
		body = []byte(`{"id":null}`)
	}
	return Frame{Notification: h.moduleName + "-" + n.Kind, Payload: body}
}
