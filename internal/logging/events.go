package logging

import (
	"sort"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/automation-presence/internal/model"
)

// EventLog writes presence mutations and periodic snapshots as structured
// log lines.
type EventLog struct {
	logger zerolog.Logger
}

// NewEventLog logs through the global logger.
func NewEventLog() *EventLog {
	return &EventLog{logger: log.Logger}
}

// NewEventLogWith logs through the given logger.
func NewEventLogWith(logger zerolog.Logger) *EventLog {
	return &EventLog{logger: logger}
}

// LogEvent emits one line per mutation. Missing ids are written as null.
func (l *EventLog) LogEvent(event model.Event) {
	entry := l.logger.Info().Time("at", event.Timestamp)
	entry = nullableStr(entry, "zoneId", event.ZoneID)
	entry = nullableStr(entry, "triggerId", event.TriggerID)
	entry = entry.Bool("value", event.Value)
	if event.ZoneName != "" {
		entry = entry.Str("zoneName", event.ZoneName)
	}
	if event.TriggerName != "" {
		entry = entry.Str("triggerName", event.TriggerName)
	}
	if event.Master {
		entry = entry.Bool("master", true)
	}
	entry.Msg("presence event")
}

func nullableStr(e *zerolog.Event, key, value string) *zerolog.Event {
	if value == "" {
		return e.Interface(key, nil)
	}
	return e.Str(key, value)
}

// Snapshot writes the whole tree as one line.
func (l *EventLog) Snapshot(st *model.State) {
	if st == nil {
		return
	}

	ids := make([]string, 0, len(st.Zones))
	for id := range st.Zones {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	arr := zerolog.Arr()
	for _, id := range ids {
		zone := st.Zones[id]
		triggers := zerolog.Dict()
		for tid, trigger := range zone.Triggers {
			triggers = triggers.Dict(tid, zerolog.Dict().
				Str("name", trigger.Name).
				Bool("triggered", trigger.Triggered).
				Interface("resetAt", trigger.ResetAt))
		}
		arr = arr.Dict(zerolog.Dict().
			Str("id", zone.ID).
			Str("name", zone.Name).
			Bool("triggered", zone.Triggered).
			Dict("triggers", triggers))
	}

	entry := l.logger.Info().Array("zones", arr)
	if st.Master != nil {
		entry = entry.Dict("master", zerolog.Dict().
			Bool("triggered", st.Master.Triggered).
			Interface("resetAt", st.Master.ResetAt))
	}
	entry.Msg("presence snapshot")
}
