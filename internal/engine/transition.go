package engine

import (
	"sort"
	"time"

	"github.com/thatsimonsguy/automation-presence/internal/model"
)

// TriggerEvent is a new value for one trigger, observed externally or
// synthesised by an expiry.
type TriggerEvent struct {
	ZoneID           string
	TriggerID        string
	Value            bool
	NotifyExternally bool
}

// ApplyTrigger runs the trigger, zone and master cascade for ev. An unknown
// zone or trigger returns a *NotFoundError and leaves st untouched.
func ApplyTrigger(st *model.State, ev TriggerEvent, now time.Time) ([]Effect, error) {
	effects, err := applyTrigger(st, ev, now)
	if err != nil {
		return nil, err
	}
	return append(effects, PersistEffect{}), nil
}

// ApplyMaster recomputes the master from the zones.
func ApplyMaster(st *model.State, now time.Time) []Effect {
	return append(updateMaster(st, now), PersistEffect{})
}

// ExpireMaster turns the master off if its pending switch-off deadline has
// passed. It returns nil when there is nothing to do.
func ExpireMaster(st *model.State, now time.Time) []Effect {
	effects := expireMaster(st, now)
	if len(effects) == 0 {
		return nil
	}
	return append(effects, PersistEffect{})
}

// Sweep resets every trigger whose deadline has passed, oldest deadline
// first, then expires the master. It returns nil when nothing was due.
func Sweep(st *model.State, now time.Time) []Effect {
	effects := sweep(st, now)
	if len(effects) == 0 {
		return nil
	}
	return append(effects, PersistEffect{})
}

// Reconcile brings a freshly merged tree in line with the configuration and
// the current time: trigger deadlines follow their configured reset, the
// master follows the zones, and anything that expired while the process was
// down is swept.
func Reconcile(st *model.State, now time.Time) []Effect {
	for _, zone := range st.Zones {
		for _, trigger := range zone.Triggers {
			switch {
			case !trigger.Triggered || trigger.ResetAfter <= 0:
				trigger.ResetAt = nil
			case trigger.ResetAt == nil:
				trigger.ResetAt = model.TimePtr(now.Add(trigger.ResetAfter))
			}
		}
		zone.Triggered = zone.AnyTriggered()
	}

	var effects []Effect
	// A persisted pending switch-off keeps its deadline unless a zone is on.
	if st.Master.ResetAt == nil || st.AnyZoneTriggered() {
		effects = append(effects, updateMaster(st, now)...)
	}
	effects = append(effects, sweep(st, now)...)
	return append(effects, PersistEffect{})
}

func applyTrigger(st *model.State, ev TriggerEvent, now time.Time) ([]Effect, error) {
	zone, trigger := st.Trigger(ev.ZoneID, ev.TriggerID)
	if trigger == nil {
		return nil, &NotFoundError{ZoneID: ev.ZoneID, TriggerID: ev.TriggerID}
	}

	effects := updateTrigger(zone, trigger, ev, now)
	effects = append(effects, updateZone(zone, now)...)
	effects = append(effects, updateMaster(st, now)...)
	return effects, nil
}

func updateTrigger(zone *model.Zone, trigger *model.Trigger, ev TriggerEvent, now time.Time) []Effect {
	trigger.Triggered = ev.Value
	trigger.LastUpdate = model.TimePtr(now)
	if ev.Value && trigger.ResetAfter > 0 {
		trigger.ResetAt = model.TimePtr(now.Add(trigger.ResetAfter))
	} else {
		trigger.ResetAt = nil
	}

	effects := []Effect{LogEffect{Event: model.Event{
		Timestamp:   now,
		ZoneID:      zone.ID,
		TriggerID:   trigger.ID,
		Value:       ev.Value,
		ZoneName:    zone.Name,
		TriggerName: trigger.Name,
	}}}
	if ev.NotifyExternally {
		effects = append(effects, NotifyEffect{
			Entity: model.TriggerRef(zone.ID, trigger.ID),
			Value:  ev.Value,
		})
	}
	return effects
}

// updateZone always recomputes; only a changed value is logged and pushed.
func updateZone(zone *model.Zone, now time.Time) []Effect {
	previous := zone.Triggered
	zone.Triggered = zone.AnyTriggered()
	zone.LastUpdate = model.TimePtr(now)

	if zone.Triggered == previous {
		return nil
	}
	return []Effect{
		LogEffect{Event: model.Event{
			Timestamp: now,
			ZoneID:    zone.ID,
			Value:     zone.Triggered,
			ZoneName:  zone.Name,
		}},
		NotifyEffect{Entity: model.ZoneRef(zone.ID), Value: zone.Triggered},
	}
}

// updateMaster moves the master between Idle, Armed and PendingOff. It never
// turns the master off; that is left to expireMaster.
func updateMaster(st *model.State, now time.Time) []Effect {
	master := st.Master

	if st.AnyZoneTriggered() {
		master.ResetAt = nil
		if master.Triggered {
			return nil
		}
		master.Triggered = true
		master.LastUpdate = model.TimePtr(now)
		return masterEdge(true, now)
	}

	if master.Triggered {
		// Every call while off extends the window from now.
		master.ResetAt = model.TimePtr(now.Add(master.ResetAfter))
	}
	return nil
}

func expireMaster(st *model.State, now time.Time) []Effect {
	master := st.Master
	if master.ResetAt == nil || now.Before(*master.ResetAt) {
		return nil
	}
	master.Triggered = false
	master.ResetAt = nil
	master.LastUpdate = model.TimePtr(now)
	return masterEdge(false, now)
}

func masterEdge(value bool, now time.Time) []Effect {
	return []Effect{
		LogEffect{Event: model.Event{Timestamp: now, Value: value, Master: true}},
		HistoryEffect{Entry: model.HistoryEntry{Timestamp: now, Status: value}},
		NotifyEffect{Entity: model.MasterRef(), Value: value},
	}
}

type expired struct {
	at        time.Time
	zoneID    string
	triggerID string
}

func sweep(st *model.State, now time.Time) []Effect {
	var due []expired
	for _, zone := range st.Zones {
		for _, trigger := range zone.Triggers {
			if trigger.Triggered && trigger.ResetAt != nil && !now.Before(*trigger.ResetAt) {
				due = append(due, expired{at: *trigger.ResetAt, zoneID: zone.ID, triggerID: trigger.ID})
			}
		}
	}
	sort.Slice(due, func(i, j int) bool {
		if !due[i].at.Equal(due[j].at) {
			return due[i].at.Before(due[j].at)
		}
		if due[i].zoneID != due[j].zoneID {
			return due[i].zoneID < due[j].zoneID
		}
		return due[i].triggerID < due[j].triggerID
	})

	var effects []Effect
	for _, d := range due {
		// The ids were just read from st, so this cannot fail.
		cascade, _ := applyTrigger(st, TriggerEvent{
			ZoneID:           d.zoneID,
			TriggerID:        d.triggerID,
			Value:            false,
			NotifyExternally: true,
		}, now)
		effects = append(effects, cascade...)
	}
	return append(effects, expireMaster(st, now)...)
}
