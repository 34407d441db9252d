package model

import (
	"errors"
	"time"
)

// ErrUnknownEntity is returned by Value when the reference does not resolve.
var ErrUnknownEntity = errors.New("unknown entity")

// Trigger returns the trigger addressed by the ids, or nil.
func (s *State) Trigger(zoneID, triggerID string) (*Zone, *Trigger) {
	if s == nil || zoneID == "" || triggerID == "" {
		return nil, nil
	}
	zone, ok := s.Zones[zoneID]
	if !ok || zone == nil {
		return nil, nil
	}
	trigger, ok := zone.Triggers[triggerID]
	if !ok || trigger == nil {
		return zone, nil
	}
	return zone, trigger
}

// Value is the current boolean of any entity, as the presentation layer
// reads it.
func (s *State) Value(ref EntityRef) (bool, error) {
	switch ref.Kind {
	case KindMaster:
		if s.Master == nil {
			return false, ErrUnknownEntity
		}
		return s.Master.Triggered, nil
	case KindZone:
		zone, ok := s.Zones[ref.ZoneID]
		if !ok {
			return false, ErrUnknownEntity
		}
		return zone.Triggered, nil
	case KindTrigger:
		_, trigger := s.Trigger(ref.ZoneID, ref.TriggerID)
		if trigger == nil {
			return false, ErrUnknownEntity
		}
		return trigger.Triggered, nil
	}
	return false, ErrUnknownEntity
}

// AnyZoneTriggered is the OR over all zones.
func (s *State) AnyZoneTriggered() bool {
	for _, zone := range s.Zones {
		if zone.Triggered {
			return true
		}
	}
	return false
}

// AnyTriggered is the OR over the zone's triggers.
func (z *Zone) AnyTriggered() bool {
	for _, trigger := range z.Triggers {
		if trigger.Triggered {
			return true
		}
	}
	return false
}

// Clone returns a deep copy so callers never share pointers with the live tree.
func (s *State) Clone() *State {
	if s == nil {
		return nil
	}
	out := &State{Zones: make(map[string]*Zone, len(s.Zones))}
	if s.Master != nil {
		m := *s.Master
		m.ResetAt = cloneTime(s.Master.ResetAt)
		m.LastUpdate = cloneTime(s.Master.LastUpdate)
		out.Master = &m
	}
	for id, zone := range s.Zones {
		out.Zones[id] = zone.Clone()
	}
	return out
}

func (z *Zone) Clone() *Zone {
	if z == nil {
		return nil
	}
	out := *z
	out.LastUpdate = cloneTime(z.LastUpdate)
	out.Triggers = make(map[string]*Trigger, len(z.Triggers))
	for id, trigger := range z.Triggers {
		out.Triggers[id] = trigger.Clone()
	}
	return &out
}

func (t *Trigger) Clone() *Trigger {
	if t == nil {
		return nil
	}
	out := *t
	out.ResetAt = cloneTime(t.ResetAt)
	out.LastUpdate = cloneTime(t.LastUpdate)
	return &out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// TimePtr returns a pointer to a copy of t.
func TimePtr(t time.Time) *time.Time {
	return &t
}
