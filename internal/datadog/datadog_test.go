package datadog

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thatsimonsguy/automation-presence/internal/model"
)

type gaugeCall struct {
	name  string
	value float64
	tags  []string
}

type fakeGauger struct {
	calls  []gaugeCall
	err    error
	closed bool
}

func (f *fakeGauger) Gauge(name string, value float64, tags []string, _ float64) error {
	f.calls = append(f.calls, gaugeCall{name, value, tags})
	return f.err
}

func (f *fakeGauger) Close() error {
	f.closed = true
	return nil
}

func sampleState() *model.State {
	return &model.State{
		Master: &model.MasterZone{ID: model.MasterID, Triggered: true},
		Zones: map[string]*model.Zone{
			"z1": {ID: "z1", Name: "Hall", Triggered: true, Triggers: map[string]*model.Trigger{
				"t1": {ID: "t1", Name: "Motion", Triggered: true},
			}},
		},
	}
}

func TestNotifyEmitsTaggedGauges(t *testing.T) {
	g := &fakeGauger{}
	c := newWith(g)
	c.Describe(sampleState())
	ctx := context.Background()

	require.NoError(t, c.Notify(ctx, model.MasterRef(), true))
	require.NoError(t, c.Notify(ctx, model.ZoneRef("z1"), false))
	require.NoError(t, c.Notify(ctx, model.TriggerRef("z1", "t1"), true))

	assert.Equal(t, []gaugeCall{
		{MetricMaster, 1, nil},
		{MetricZone, 0, []string{"zone_id:z1", "zone:Hall"}},
		{MetricTrigger, 1, []string{"zone_id:z1", "zone:Hall", "trigger_id:t1", "trigger:Motion"}},
	}, g.calls)
}

func TestNotifyErrors(t *testing.T) {
	g := &fakeGauger{err: errors.New("socket closed")}
	c := newWith(g)

	assert.Error(t, c.Notify(context.Background(), model.MasterRef(), true))
	assert.Error(t, c.Notify(context.Background(), model.EntityRef{Kind: "bogus"}, true))
}

func TestSnapshotRefreshesEveryGauge(t *testing.T) {
	g := &fakeGauger{}
	c := newWith(g)

	c.Snapshot(sampleState())
	require.Len(t, g.calls, 3)
	assert.Equal(t, MetricMaster, g.calls[0].name)

	require.NoError(t, c.Close())
	assert.True(t, g.closed)
}
