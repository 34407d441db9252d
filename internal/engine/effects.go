package engine

import (
	"errors"
	"fmt"

	"github.com/thatsimonsguy/automation-presence/internal/model"
)

// Effect is a side effect requested by a transition. Transitions only mutate
// the tree; the Engine executes the effects they return, in order.
type Effect interface {
	effect()
}

// PersistEffect asks for the whole tree to be written out.
type PersistEffect struct{}

// LogEffect carries one structured mutation record.
type LogEffect struct {
	Event model.Event
}

// NotifyEffect pushes a new value for one entity to the presentation side.
type NotifyEffect struct {
	Entity model.EntityRef
	Value  bool
}

// HistoryEffect records a master transition edge.
type HistoryEffect struct {
	Entry model.HistoryEntry
}

func (PersistEffect) effect() {}
func (LogEffect) effect()     {}
func (NotifyEffect) effect()  {}
func (HistoryEffect) effect() {}

var ErrNotFound = errors.New("not found")

// NotFoundError reports an event addressed to a zone or trigger that is not
// part of the current topology. It matches ErrNotFound with errors.Is.
type NotFoundError struct {
	ZoneID    string
	TriggerID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("trigger %q in zone %q: %s", e.TriggerID, e.ZoneID, ErrNotFound)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}
