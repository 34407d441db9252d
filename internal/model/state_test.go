package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sample() *State {
	at := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	return &State{
		Master: &MasterZone{ID: MasterID, Triggered: true, ResetAt: TimePtr(at)},
		Zones: map[string]*Zone{
			"hall": {ID: "hall", Name: "Hall", Triggered: true, Triggers: map[string]*Trigger{
				"motion": {ID: "motion", Name: "Motion", ZoneID: "hall", Triggered: true, ResetAt: TimePtr(at)},
				"door":   {ID: "door", Name: "Door", ZoneID: "hall"},
			}},
			"kitchen": {ID: "kitchen", Name: "Kitchen", Triggers: map[string]*Trigger{}},
		},
	}
}

func TestValue(t *testing.T) {
	st := sample()

	tests := []struct {
		name    string
		ref     EntityRef
		want    bool
		wantErr bool
	}{
		{"master", MasterRef(), true, false},
		{"zone on", ZoneRef("hall"), true, false},
		{"zone off", ZoneRef("kitchen"), false, false},
		{"trigger on", TriggerRef("hall", "motion"), true, false},
		{"trigger off", TriggerRef("hall", "door"), false, false},
		{"unknown zone", ZoneRef("attic"), false, true},
		{"unknown trigger", TriggerRef("hall", "window"), false, true},
		{"trigger in wrong zone", TriggerRef("kitchen", "motion"), false, true},
		{"empty kind", EntityRef{}, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := st.Value(tt.ref)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnknownEntity)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTriggerLookup(t *testing.T) {
	st := sample()

	zone, trigger := st.Trigger("hall", "motion")
	require.NotNil(t, trigger)
	assert.Equal(t, "Hall", zone.Name)

	zone, trigger = st.Trigger("hall", "window")
	assert.NotNil(t, zone)
	assert.Nil(t, trigger)

	zone, trigger = st.Trigger("", "motion")
	assert.Nil(t, zone)
	assert.Nil(t, trigger)

	var empty *State
	_, trigger = empty.Trigger("hall", "motion")
	assert.Nil(t, trigger)
}

func TestAnyTriggered(t *testing.T) {
	st := sample()
	assert.True(t, st.AnyZoneTriggered())
	assert.True(t, st.Zones["hall"].AnyTriggered())
	assert.False(t, st.Zones["kitchen"].AnyTriggered())

	st.Zones["hall"].Triggered = false
	assert.False(t, st.AnyZoneTriggered())
}

func TestCloneIsDeep(t *testing.T) {
	st := sample()
	clone := st.Clone()
	require.Equal(t, st, clone)

	clone.Master.Triggered = false
	*clone.Master.ResetAt = clone.Master.ResetAt.Add(time.Hour)
	clone.Zones["hall"].Triggers["motion"].Triggered = false
	*clone.Zones["hall"].Triggers["motion"].ResetAt = time.Time{}
	delete(clone.Zones, "kitchen")

	assert.True(t, st.Master.Triggered)
	assert.Equal(t, 9, st.Master.ResetAt.Hour())
	assert.True(t, st.Zones["hall"].Triggers["motion"].Triggered)
	assert.False(t, st.Zones["hall"].Triggers["motion"].ResetAt.IsZero())
	assert.Contains(t, st.Zones, "kitchen")

	var empty *State
	assert.Nil(t, empty.Clone())
}
