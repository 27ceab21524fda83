package core

import (
	"time"

	"github.com/clawcontrol/claw/pkg/models"
)

// Collection is the persistence port the stores write through. It mirrors
// storage.Collection and is defined locally in core to avoid importing storage.
// Callers hold Lock for a whole load, mutate, save cycle.
type Collection[T any] interface {
	LoadAll() (map[string]T, error)
	SaveAll(records map[string]T) error
	Lock() (unlock func() error, err error)
}

// EventLogger appends a domain event to the board's event log. It mirrors
// observability.EventLog without importing it.
type EventLogger interface {
	LogEvent(eventType string, data map[string]any) error
}

// Clock returns the current time. Stores take one so tests can pin time.
type Clock func() time.Time

func systemClock() time.Time {
	return time.Now().UTC()
}

// Recorder receives board counters. observability.PromMetrics implements it;
// NopRecorder is used when metrics are not wired.
type Recorder interface {
	IncTaskEvent(event string)
	IncNotification(outcome string)
	SetLaneCounts(counts map[models.Lane]int)
	SetAgentCounts(counts map[models.AgentStatus]int)
}

// NopRecorder discards everything.
type NopRecorder struct{}

func (NopRecorder) IncTaskEvent(string) {}
func (NopRecorder) IncNotification(string) {}
func (NopRecorder) SetLaneCounts(map[models.Lane]int) {}
func (NopRecorder) SetAgentCounts(map[models.AgentStatus]int) {}

// withLocked runs fn against the loaded records while holding the collection
// lock. When fn reports changed, the records are saved before unlocking.
func withLocked[T any](coll Collection[T], op string, fn func(records map[string]T) (changed bool, err error)) error {
	unlock, err := coll.Lock()
	if err != nil {
		return &PersistenceError{Op: op, Err: err}
	}
	defer func() { _ = unlock() }()

	records, err := coll.LoadAll()
	if err != nil {
		return &PersistenceError{Op: op, Err: err}
	}
	changed, err := fn(records)
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}
	if err := coll.SaveAll(records); err != nil {
		return &PersistenceError{Op: op, Err: err}
	}
	return nil
}
