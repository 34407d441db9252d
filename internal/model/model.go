package model

import "time"

// MasterID is the fixed id of the master presence zone.
const MasterID = "master"

type Trigger struct {
	ID         string        `json:"id"`
	Name       string        `json:"name"`
	ZoneID     string        `json:"zoneId"`
	Triggered  bool          `json:"triggered"`
	ResetAfter time.Duration `json:"resetAfter,omitempty"` // zero when not configured
	ResetAt    *time.Time    `json:"resetAt,omitempty"`    // only while triggered with ResetAfter
	LastUpdate *time.Time    `json:"lastUpdate,omitempty"`
}

type Zone struct {
	ID         string              `json:"id"`
	Name       string              `json:"name"`
	Triggered  bool                `json:"triggered"` // OR over Triggers, never set directly
	LastUpdate *time.Time          `json:"lastUpdate,omitempty"`
	Triggers   map[string]*Trigger `json:"triggers"`
}

// MasterZone aggregates every zone. Triggered lags the zones while a
// switch-off is pending: ResetAt is set only in that window.
type MasterZone struct {
	ID         string        `json:"id"`
	Triggered  bool          `json:"triggered"`
	ResetAfter time.Duration `json:"resetAfter"`
	ResetAt    *time.Time    `json:"resetAt,omitempty"`
	LastUpdate *time.Time    `json:"lastUpdate,omitempty"`
}

// State is the root tree owned by the engine and written to the state file.
type State struct {
	Master *MasterZone      `json:"master"`
	Zones  map[string]*Zone `json:"zones"`
}

type EntityKind string

const (
	KindTrigger EntityKind = "trigger"
	KindZone    EntityKind = "zone"
	KindMaster  EntityKind = "master"
)

// EntityRef addresses a trigger, a zone or the master.
type EntityRef struct {
	Kind      EntityKind
	ZoneID    string
	TriggerID string
}

func TriggerRef(zoneID, triggerID string) EntityRef {
	return EntityRef{Kind: KindTrigger, ZoneID: zoneID, TriggerID: triggerID}
}

func ZoneRef(zoneID string) EntityRef {
	return EntityRef{Kind: KindZone, ZoneID: zoneID}
}

func MasterRef() EntityRef {
	return EntityRef{Kind: KindMaster}
}

// Event is the structured record emitted for every mutation. Empty ZoneID or
// TriggerID are logged as null.
type Event struct {
	Timestamp   time.Time
	ZoneID      string
	TriggerID   string
	Value       bool
	ZoneName    string
	TriggerName string
	Master      bool
}

// HistoryEntry is appended on every master transition edge.
type HistoryEntry struct {
	Timestamp time.Time `json:"time"`
	Status    bool      `json:"status"`
}
