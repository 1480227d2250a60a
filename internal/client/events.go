/*
Package client
File: events.go
Description:
    Render events. The core publishes them through a Notifier; the
    adapter decides how they reach the UI.
*/

package client

import "time"

// EventKind names a render event pushed to the adapter.
type EventKind string

const (
	EventTravel  EventKind = "travel"
	EventBattery EventKind = "battery"
	EventWorld   EventKind = "world"
	EventScene   EventKind = "scene"
	EventPlayer  EventKind = "player"
	EventNotice  EventKind = "notice"
)

// Event is what the core tells the outside world. Payload is one of the view types below.
type Event struct {
	Kind    EventKind `json:"type" msgpack:"type"`
	At      time.Time `json:"at" msgpack:"at"`
	Payload any       `json:"payload" msgpack:"payload"`
}

// Notifier receives events. It is called on the loop goroutine and must not block.
type Notifier interface {
	Notify(Event)
}

// NotifyFunc adapts a function to Notifier.
type NotifyFunc func(Event)

func (f NotifyFunc) Notify(e Event) { f(e) }

type discard struct{}

func (discard) Notify(Event) {}

// TravelStatus is published every travel tick.
type TravelStatus struct {
	State       string  `json:"state" msgpack:"state"`
	RemainingMs int64   `json:"remaining_ms" msgpack:"remaining_ms"`
	TargetX     float64 `json:"target_x" msgpack:"target_x"`
	TargetY     float64 `json:"target_y" msgpack:"target_y"`
}

// BatteryGauge is the displayed battery value.
type BatteryGauge struct {
	Current  int `json:"current" msgpack:"current"`
	Capacity int `json:"capacity" msgpack:"capacity"`
	Percent  int `json:"percent" msgpack:"percent"`
}

// Notice is a user-facing message.
type Notice struct {
	Level   string `json:"level" msgpack:"level"` // "info" or "error"
	Message string `json:"message" msgpack:"message"`
}
