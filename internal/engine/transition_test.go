package engine

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thatsimonsguy/automation-presence/internal/config"
	"github.com/thatsimonsguy/automation-presence/internal/model"
	"github.com/thatsimonsguy/automation-presence/internal/state"
)

var t0 = time.Date(2026, 5, 4, 18, 0, 0, 0, time.UTC)

// house has Hall{Motion 30s, Door} and Kitchen{Motion 10s}, master delay 5s.
func house(t *testing.T) *model.State {
	t.Helper()
	st, err := state.New([]config.Zone{
		{Name: "Hall", Triggers: []config.Trigger{
			{Name: "Motion", ResetAfter: 30 * time.Second},
			{Name: "Door"},
		}},
		{Name: "Kitchen", Triggers: []config.Trigger{
			{Name: "Motion", ResetAfter: 10 * time.Second},
		}},
	}, 5*time.Second)
	require.NoError(t, err)
	return st
}

type ids struct {
	hall, hallMotion, hallDoor, kitchen, kitchenMotion string
}

func houseIDs() ids {
	hall, kitchen := state.ZoneID("Hall"), state.ZoneID("Kitchen")
	return ids{
		hall:          hall,
		hallMotion:    state.TriggerID(hall, "Motion"),
		hallDoor:      state.TriggerID(hall, "Door"),
		kitchen:       kitchen,
		kitchenMotion: state.TriggerID(kitchen, "Motion"),
	}
}

func assertInvariants(t *testing.T, st *model.State) {
	t.Helper()
	for _, zone := range st.Zones {
		assert.Equal(t, zone.AnyTriggered(), zone.Triggered, "zone %s disagrees with its triggers", zone.Name)
		for _, trigger := range zone.Triggers {
			if !trigger.Triggered {
				assert.Nil(t, trigger.ResetAt, "idle trigger %s has a deadline", trigger.Name)
			}
		}
	}
	if st.Master.ResetAt != nil {
		assert.True(t, st.Master.Triggered, "pending-off master must still be on")
		assert.False(t, st.AnyZoneTriggered(), "pending-off master with a zone on")
	}
	if st.AnyZoneTriggered() {
		assert.True(t, st.Master.Triggered, "a zone is on but the master is off")
	}
}

func TestApplyTrigger_OnCascade(t *testing.T) {
	st := house(t)
	id := houseIDs()

	effects, err := ApplyTrigger(st, TriggerEvent{ZoneID: id.hall, TriggerID: id.hallMotion, Value: true, NotifyExternally: true}, t0)
	require.NoError(t, err)

	assert.Equal(t, []Effect{
		LogEffect{Event: model.Event{Timestamp: t0, ZoneID: id.hall, TriggerID: id.hallMotion, Value: true, ZoneName: "Hall", TriggerName: "Motion"}},
		NotifyEffect{Entity: model.TriggerRef(id.hall, id.hallMotion), Value: true},
		LogEffect{Event: model.Event{Timestamp: t0, ZoneID: id.hall, Value: true, ZoneName: "Hall"}},
		NotifyEffect{Entity: model.ZoneRef(id.hall), Value: true},
		LogEffect{Event: model.Event{Timestamp: t0, Value: true, Master: true}},
		HistoryEffect{Entry: model.HistoryEntry{Timestamp: t0, Status: true}},
		NotifyEffect{Entity: model.MasterRef(), Value: true},
		PersistEffect{},
	}, effects)

	motion := st.Zones[id.hall].Triggers[id.hallMotion]
	assert.True(t, motion.Triggered)
	require.NotNil(t, motion.ResetAt)
	assert.Equal(t, t0.Add(30*time.Second), *motion.ResetAt)
	assert.Equal(t, t0, *motion.LastUpdate)
	assert.Equal(t, t0, *st.Zones[id.hall].LastUpdate)
	assert.True(t, st.Master.Triggered)
	assert.Nil(t, st.Master.ResetAt)
	assertInvariants(t, st)
}

func TestApplyTrigger_WithoutExternalNotify(t *testing.T) {
	st := house(t)
	id := houseIDs()

	effects, err := ApplyTrigger(st, TriggerEvent{ZoneID: id.hall, TriggerID: id.hallDoor, Value: true}, t0)
	require.NoError(t, err)

	for _, eff := range effects {
		if n, ok := eff.(NotifyEffect); ok {
			assert.NotEqual(t, model.KindTrigger, n.Entity.Kind, "trigger value came from outside")
		}
	}
	assert.Nil(t, st.Zones[id.hall].Triggers[id.hallDoor].ResetAt, "no reset configured")
}

func TestApplyTrigger_UnchangedZoneIsSilent(t *testing.T) {
	st := house(t)
	id := houseIDs()
	_, err := ApplyTrigger(st, TriggerEvent{ZoneID: id.hall, TriggerID: id.hallDoor, Value: true}, t0)
	require.NoError(t, err)

	later := t0.Add(time.Second)
	effects, err := ApplyTrigger(st, TriggerEvent{ZoneID: id.hall, TriggerID: id.hallMotion, Value: true}, later)
	require.NoError(t, err)

	assert.Equal(t, []Effect{
		LogEffect{Event: model.Event{Timestamp: later, ZoneID: id.hall, TriggerID: id.hallMotion, Value: true, ZoneName: "Hall", TriggerName: "Motion"}},
		PersistEffect{},
	}, effects)
	assert.Equal(t, later, *st.Zones[id.hall].LastUpdate, "recompute always touches the zone")
}

func TestApplyTrigger_NotFound(t *testing.T) {
	id := houseIDs()
	tests := []struct {
		name              string
		zoneID, triggerID string
	}{
		{"bogus zone", "bogus-zone", "bogus-trigger"},
		{"bogus trigger", id.hall, "bogus-trigger"},
		{"trigger of another zone", id.kitchen, id.hallMotion},
		{"empty ids", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := house(t)
			before := st.Clone()

			effects, err := ApplyTrigger(st, TriggerEvent{ZoneID: tt.zoneID, TriggerID: tt.triggerID, Value: true}, t0)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrNotFound)

			var nf *NotFoundError
			require.True(t, errors.As(err, &nf))
			assert.Equal(t, tt.zoneID, nf.ZoneID)
			assert.Equal(t, tt.triggerID, nf.TriggerID)

			assert.Nil(t, effects)
			assert.Equal(t, before, st)
		})
	}
}

func TestApplyTrigger_OffArmsPendingOff(t *testing.T) {
	st := house(t)
	id := houseIDs()
	_, err := ApplyTrigger(st, TriggerEvent{ZoneID: id.hall, TriggerID: id.hallDoor, Value: true}, t0)
	require.NoError(t, err)

	off := t0.Add(time.Minute)
	effects, err := ApplyTrigger(st, TriggerEvent{ZoneID: id.hall, TriggerID: id.hallDoor, Value: false}, off)
	require.NoError(t, err)

	assert.True(t, st.Master.Triggered, "master stays on through the window")
	require.NotNil(t, st.Master.ResetAt)
	assert.Equal(t, off.Add(5*time.Second), *st.Master.ResetAt)
	for _, eff := range effects {
		_, isHistory := eff.(HistoryEffect)
		assert.False(t, isHistory, "no master edge yet")
	}
	assertInvariants(t, st)
}

func TestApplyMaster_ExtendsPendingOff(t *testing.T) {
	st := house(t)
	st.Master.Triggered = true

	ApplyMaster(st, t0)
	require.NotNil(t, st.Master.ResetAt)
	assert.Equal(t, t0.Add(5*time.Second), *st.Master.ResetAt)

	ApplyMaster(st, t0.Add(3*time.Second))
	assert.Equal(t, t0.Add(8*time.Second), *st.Master.ResetAt)
}

func TestApplyMaster_IdleStaysIdle(t *testing.T) {
	st := house(t)
	assert.Equal(t, []Effect{PersistEffect{}}, ApplyMaster(st, t0))
	assert.False(t, st.Master.Triggered)
	assert.Nil(t, st.Master.ResetAt)
}

func TestExpireMaster(t *testing.T) {
	st := house(t)
	assert.Nil(t, ExpireMaster(st, t0), "idle master has nothing to expire")

	st.Master.Triggered = true
	st.Master.ResetAt = model.TimePtr(t0.Add(5 * time.Second))
	assert.Nil(t, ExpireMaster(st, t0.Add(4*time.Second)))
	assert.True(t, st.Master.Triggered)

	at := t0.Add(5 * time.Second)
	assert.Equal(t, []Effect{
		LogEffect{Event: model.Event{Timestamp: at, Value: false, Master: true}},
		HistoryEffect{Entry: model.HistoryEntry{Timestamp: at, Status: false}},
		NotifyEffect{Entity: model.MasterRef(), Value: false},
		PersistEffect{},
	}, ExpireMaster(st, at))
	assert.False(t, st.Master.Triggered)
	assert.Nil(t, st.Master.ResetAt)
}

func TestSweep_NothingDue(t *testing.T) {
	st := house(t)
	id := houseIDs()
	_, err := ApplyTrigger(st, TriggerEvent{ZoneID: id.hall, TriggerID: id.hallMotion, Value: true}, t0)
	require.NoError(t, err)

	assert.Nil(t, Sweep(st, t0.Add(29*time.Second)))
	assert.True(t, st.Zones[id.hall].Triggers[id.hallMotion].Triggered)
}

func TestSweep_ExpiresInDeadlineOrder(t *testing.T) {
	st := house(t)
	id := houseIDs()
	// Hall expires at t0+30s, Kitchen at t0+25s.
	_, err := ApplyTrigger(st, TriggerEvent{ZoneID: id.hall, TriggerID: id.hallMotion, Value: true}, t0)
	require.NoError(t, err)
	_, err = ApplyTrigger(st, TriggerEvent{ZoneID: id.kitchen, TriggerID: id.kitchenMotion, Value: true}, t0.Add(15*time.Second))
	require.NoError(t, err)

	now := t0.Add(40 * time.Second)
	effects := Sweep(st, now)
	require.NotEmpty(t, effects)
	assert.Equal(t, PersistEffect{}, effects[len(effects)-1])

	var expiredTriggers []string
	for _, eff := range effects {
		if l, ok := eff.(LogEffect); ok && l.Event.TriggerID != "" {
			assert.False(t, l.Event.Value)
			expiredTriggers = append(expiredTriggers, l.Event.TriggerID)
		}
	}
	assert.Equal(t, []string{id.kitchenMotion, id.hallMotion}, expiredTriggers)

	assert.False(t, st.Zones[id.hall].Triggered)
	assert.False(t, st.Zones[id.kitchen].Triggered)
	assert.True(t, st.Master.Triggered)
	assert.Equal(t, now.Add(5*time.Second), *st.Master.ResetAt)
	assertInvariants(t, st)
}

func TestSweep_ExpiryNotifiesExternally(t *testing.T) {
	st := house(t)
	id := houseIDs()
	_, err := ApplyTrigger(st, TriggerEvent{ZoneID: id.kitchen, TriggerID: id.kitchenMotion, Value: true}, t0)
	require.NoError(t, err)

	effects := Sweep(st, t0.Add(10*time.Second))
	assert.Contains(t, effects, Effect(NotifyEffect{Entity: model.TriggerRef(id.kitchen, id.kitchenMotion), Value: false}))
	assert.Contains(t, effects, Effect(NotifyEffect{Entity: model.ZoneRef(id.kitchen), Value: false}))
}

func TestSweep_ZeroMasterDelayExpiresInSameSweep(t *testing.T) {
	st := house(t)
	st.Master.ResetAfter = 0
	id := houseIDs()
	_, err := ApplyTrigger(st, TriggerEvent{ZoneID: id.kitchen, TriggerID: id.kitchenMotion, Value: true}, t0)
	require.NoError(t, err)

	Sweep(st, t0.Add(10*time.Second))
	assert.False(t, st.Master.Triggered)
	assert.Nil(t, st.Master.ResetAt)
}

func TestReconcile(t *testing.T) {
	id := houseIDs()

	t.Run("master on with no zone arms the switch-off", func(t *testing.T) {
		st := house(t)
		st.Master.Triggered = true

		Reconcile(st, t0)
		assert.True(t, st.Master.Triggered)
		require.NotNil(t, st.Master.ResetAt)
		assert.Equal(t, t0.Add(5*time.Second), *st.Master.ResetAt)
	})

	t.Run("master off with a zone on turns on", func(t *testing.T) {
		st := house(t)
		st.Zones[id.hall].Triggers[id.hallDoor].Triggered = true
		st.Zones[id.hall].Triggered = true

		effects := Reconcile(st, t0)
		assert.True(t, st.Master.Triggered)
		assert.Contains(t, effects, Effect(HistoryEffect{Entry: model.HistoryEntry{Timestamp: t0, Status: true}}))
	})

	t.Run("pending switch-off keeps its deadline", func(t *testing.T) {
		st := house(t)
		st.Master.Triggered = true
		st.Master.ResetAt = model.TimePtr(t0.Add(2 * time.Second))

		Reconcile(st, t0)
		assert.Equal(t, t0.Add(2*time.Second), *st.Master.ResetAt)
	})

	t.Run("elapsed switch-off expires", func(t *testing.T) {
		st := house(t)
		st.Master.Triggered = true
		st.Master.ResetAt = model.TimePtr(t0.Add(-time.Second))

		Reconcile(st, t0)
		assert.False(t, st.Master.Triggered)
		assert.Nil(t, st.Master.ResetAt)
	})

	t.Run("trigger without deadline gets one", func(t *testing.T) {
		st := house(t)
		motion := st.Zones[id.hall].Triggers[id.hallMotion]
		motion.Triggered = true
		st.Zones[id.hall].Triggered = true

		Reconcile(st, t0)
		require.NotNil(t, motion.ResetAt)
		assert.Equal(t, t0.Add(30*time.Second), *motion.ResetAt)
		assertInvariants(t, st)
	})

	t.Run("deadline without configured reset is dropped", func(t *testing.T) {
		st := house(t)
		door := st.Zones[id.hall].Triggers[id.hallDoor]
		door.Triggered = true
		door.ResetAt = model.TimePtr(t0.Add(-time.Minute))
		st.Zones[id.hall].Triggered = true
		st.Master.Triggered = true

		Reconcile(st, t0)
		assert.True(t, door.Triggered)
		assert.Nil(t, door.ResetAt)
		assert.True(t, st.Master.Triggered)
	})

	t.Run("trigger expired while down is swept", func(t *testing.T) {
		st := house(t)
		motion := st.Zones[id.kitchen].Triggers[id.kitchenMotion]
		motion.Triggered = true
		motion.ResetAt = model.TimePtr(t0.Add(-time.Second))
		st.Zones[id.kitchen].Triggered = true
		st.Master.Triggered = true

		effects := Reconcile(st, t0)
		assert.False(t, motion.Triggered)
		assert.True(t, st.Master.Triggered)
		assert.Equal(t, t0.Add(5*time.Second), *st.Master.ResetAt)
		assert.Equal(t, PersistEffect{}, effects[len(effects)-1])
		assertInvariants(t, st)
	})
}
