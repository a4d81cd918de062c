package engine

import "time"

// EventType enumerates progress events a deep search emits.
type EventType string

const (
	EventClassified   EventType = "classified"
	EventJobStarted   EventType = "job_started"
	EventJobFinished  EventType = "job_finished"
	EventLaneDisabled EventType = "lane_disabled"
	EventAggregating  EventType = "aggregating"
	EventDone         EventType = "done"
)

// Event is one progress notification. The engine has no UI concerns; the
// front-end subscribes to these over whatever transport the server exposes.
type Event struct {
	Type    EventType `json:"type"`
	RunID   string    `json:"run_id"`
	Domain  string    `json:"domain,omitempty"`
	ChunkID int       `json:"chunk_id,omitempty"`
	Lane    string    `json:"lane,omitempty"`
	Status  string    `json:"status,omitempty"`
	At      time.Time `json:"at"`
}

// emit delivers an event without ever blocking the engine. Slow or absent
// subscribers drop events.
func emit(ch chan<- Event, ev Event) {
	if ch == nil {
		return
	}
	ev.At = time.Now()
	select {
	case ch <- ev:
	default:
	}
}
