package state

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/thatsimonsguy/automation-presence/internal/config"
	"github.com/thatsimonsguy/automation-presence/internal/model"
)

var (
	ErrEmptyName   = errors.New("empty name")
	ErrDuplicateID = errors.New("duplicate id")
)

// zoneNamespace seeds zone ids. Trigger ids use their zone id as namespace,
// so the same trigger name in two zones yields two ids.
var zoneNamespace = uuid.MustParse("6f1c3b9e-3f0a-4c57-9a7e-5b2d8e4a1c20")

// ZoneID derives a zone id from its configured name, ignoring surrounding
// whitespace.
func ZoneID(name string) string {
	return uuid.NewSHA1(zoneNamespace, []byte(strings.TrimSpace(name))).String()
}

func TriggerID(zoneID, name string) string {
	return uuid.NewSHA1(uuid.MustParse(zoneID), []byte(strings.TrimSpace(name))).String()
}

// NewFromConfig builds the canonical tree for the configured topology with
// every entity off. Names are trimmed before ids are derived.
func NewFromConfig(cfg *config.Config) (*model.State, error) {
	return New(cfg.Zones, cfg.MasterResetAfter())
}

func New(zones []config.Zone, masterResetAfter time.Duration) (*model.State, error) {
	st := &model.State{
		Master: &model.MasterZone{ID: model.MasterID, ResetAfter: masterResetAfter},
		Zones:  make(map[string]*model.Zone, len(zones)),
	}

	for _, zc := range zones {
		zoneName := strings.TrimSpace(zc.Name)
		if zoneName == "" {
			return nil, fmt.Errorf("zone: %w", ErrEmptyName)
		}
		zoneID := ZoneID(zoneName)
		if existing, ok := st.Zones[zoneID]; ok {
			return nil, fmt.Errorf("%w: zone %q collides with %q", ErrDuplicateID, zoneName, existing.Name)
		}

		zone := &model.Zone{
			ID:       zoneID,
			Name:     zoneName,
			Triggers: make(map[string]*model.Trigger, len(zc.Triggers)),
		}
		for _, tc := range zc.Triggers {
			triggerName := strings.TrimSpace(tc.Name)
			if triggerName == "" {
				return nil, fmt.Errorf("trigger in zone %q: %w", zoneName, ErrEmptyName)
			}
			triggerID := TriggerID(zoneID, triggerName)
			if existing, ok := zone.Triggers[triggerID]; ok {
				return nil, fmt.Errorf("%w: trigger %q in zone %q collides with %q", ErrDuplicateID, triggerName, zoneName, existing.Name)
			}
			zone.Triggers[triggerID] = &model.Trigger{
				ID:         triggerID,
				Name:       triggerName,
				ZoneID:     zoneID,
				ResetAfter: tc.ResetAfter,
			}
		}
		st.Zones[zoneID] = zone
	}

	return st, nil
}

// Merge overlays the transient values of persisted onto a copy of fresh.
// The result has exactly fresh's zones and triggers. persisted may be nil.
func Merge(persisted, fresh *model.State) *model.State {
	merged := fresh.Clone()
	if merged.Master == nil {
		merged.Master = &model.MasterZone{ID: model.MasterID}
	}
	if merged.Zones == nil {
		merged.Zones = map[string]*model.Zone{}
	}

	for zoneID, zone := range merged.Zones {
		var old *model.Zone
		if persisted != nil {
			old = persisted.Zones[zoneID]
		}
		if old != nil {
			zone.LastUpdate = copyTime(old.LastUpdate)
		}

		for triggerID, trigger := range zone.Triggers {
			if old == nil {
				continue
			}
			prev, ok := old.Triggers[triggerID]
			if !ok || prev == nil {
				continue
			}
			trigger.Triggered = prev.Triggered
			trigger.LastUpdate = copyTime(prev.LastUpdate)
			if prev.Triggered {
				trigger.ResetAt = copyTime(prev.ResetAt)
			}
		}

		zone.Triggered = zone.AnyTriggered()
	}

	if persisted != nil && persisted.Master != nil {
		merged.Master.Triggered = persisted.Master.Triggered
		merged.Master.LastUpdate = copyTime(persisted.Master.LastUpdate)
		if persisted.Master.Triggered {
			merged.Master.ResetAt = copyTime(persisted.Master.ResetAt)
		}
	}

	return merged
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	return model.TimePtr(*t)
}
