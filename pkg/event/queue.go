package event

// EventQueue holds the events derived from the current tick.
// It is last-in-first-out: the most recently pushed event is handled next,
// so follow-up events (order after signal, fill after order) settle before
// anything queued earlier in the same tick.
type EventQueue struct {
	events []Event
}

// NewEventQueue creates a new event queue
func NewEventQueue() *EventQueue {
	return &EventQueue{
		events: make([]Event, 0),
	}
}

// Push adds an event to the top of the queue
func (eq *EventQueue) Push(event Event) {
	if event == nil {
		return
	}
	eq.events = append(eq.events, event)
}

// Pop removes and returns the most recently pushed event.
// ok is false once the queue is exhausted.
func (eq *EventQueue) Pop() (Event, bool) {
	if len(eq.events) == 0 {
		return nil, false
	}

	last := len(eq.events) - 1
	event := eq.events[last]
	eq.events[last] = nil
	eq.events = eq.events[:last]
	return event, true
}

// IsEmpty returns true if the queue is empty
func (eq *EventQueue) IsEmpty() bool {
	return len(eq.events) == 0
}

// Len returns the number of events in the queue
func (eq *EventQueue) Len() int {
	return len(eq.events)
}

// Drain discards everything still queued and returns how many events were dropped
func (eq *EventQueue) Drain() int {
	n := len(eq.events)
	for i := range eq.events {
		eq.events[i] = nil
	}
	eq.events = eq.events[:0]
	return n
}
