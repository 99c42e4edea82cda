package internal

import (
	"github.com/cskr/pubsub/v2"
)

// Notification kinds sent to display clients.
const (
	NotificationSetMessage     = "SET_MESSAGE"
	NotificationSetCamera      = "SET_CAMERA"
	NotificationReadyState     = "READY_STATE"
	NotificationCamerasUpdated = "CAMERAS_UPDATED"
)

// Notification is a single outbound message tagged with the session it belongs to.
// Payload must be a JSON-serializable object, the session id is added by the transport.
type Notification struct {
	ID      string
	Kind    string
	Payload map[string]interface{}
}

// Notifier is implemented by anything that can deliver notifications to display clients.
type Notifier interface {
	Notify(n Notification)
}

// EventBus distributes notifications to subscribers, topic is the session id.
type EventBus struct {
	ps *pubsub.PubSub[string, Notification]
}

func NewEventBus(capacity int) *EventBus {
	if capacity < 1 {
		capacity = 1
	}
	return &EventBus{ps: pubsub.New[string, Notification](capacity)}
}

// Notify publishes n to all subscribers of n.ID. Blocks while a subscriber buffer is full.
func (eb *EventBus) Notify(n Notification) {
	eb.ps.Pub(n, n.ID)
}

// Sub returns a channel that receives notifications for the given session ids.
func (eb *EventBus) Sub(ids ...string) chan Notification {
	return eb.ps.Sub(ids...)
}

// AddSub subscribes an existing channel to more session ids.
func (eb *EventBus) AddSub(ch chan Notification, ids ...string) {
	eb.ps.AddSub(ch, ids...)
}

// Unsub removes ch from all given ids, or from every topic when ids is empty.
// A channel that had topics is closed once it has none left. Callers must keep draining
// the channel until Unsub returns.
func (eb *EventBus) Unsub(ch chan Notification, ids ...string) {
	eb.ps.Unsub(ch, ids...)
}
