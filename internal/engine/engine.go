package engine

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/automation-presence/internal/model"
)

// Notifier pushes a changed value for one entity to an external consumer.
// Implementations must not block and must not call back into the Engine.
type Notifier interface {
	Notify(ctx context.Context, entity model.EntityRef, value bool) error
}

// EventLogger receives one record per mutation.
type EventLogger interface {
	LogEvent(event model.Event)
}

// HistoryRecorder receives one entry per master transition edge.
type HistoryRecorder interface {
	AppendHistory(ctx context.Context, entry model.HistoryEntry) error
}

type Persister interface {
	Save(state *model.State) error
}

type Options struct {
	Clock     clockwork.Clock
	Store     Persister
	Events    EventLogger
	Notifiers []Notifier
	History   []HistoryRecorder
}

// Engine owns the presence tree. Every operation holds the lock for the whole
// cascade including its side effects, so operations never interleave.
type Engine struct {
	mu        sync.Mutex
	state     *model.State
	clock     clockwork.Clock
	store     Persister
	events    EventLogger
	notifiers []Notifier
	history   []HistoryRecorder
	deadlines map[string]*deadline
	closed    bool
}

type deadline struct {
	at    time.Time
	timer clockwork.Timer
}

// New takes ownership of st, which must already be merged.
func New(st *model.State, opts Options) *Engine {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if st.Master == nil {
		st.Master = &model.MasterZone{ID: model.MasterID}
	}
	if st.Zones == nil {
		st.Zones = map[string]*model.Zone{}
	}
	return &Engine{
		state:     st,
		clock:     opts.Clock,
		store:     opts.Store,
		events:    opts.Events,
		notifiers: opts.Notifiers,
		history:   opts.History,
		deadlines: map[string]*deadline{},
	}
}

// HandleTriggerEvent sets one trigger and cascades to its zone and the master.
// Unknown ids return a *NotFoundError and change nothing.
func (e *Engine) HandleTriggerEvent(ctx context.Context, zoneID, triggerID string, value, notifyExternally bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	effects, err := ApplyTrigger(e.state, TriggerEvent{
		ZoneID:           zoneID,
		TriggerID:        triggerID,
		Value:            value,
		NotifyExternally: notifyExternally,
	}, e.clock.Now())
	if err != nil {
		log.Warn().Err(err).Str("zone_id", zoneID).Str("trigger_id", triggerID).Msg("Rejected trigger event")
		return err
	}

	e.execute(ctx, effects)
	return nil
}

// SetState is the control surface entry point. The new value is pushed back
// out so remote views stay in sync with a change made elsewhere.
func (e *Engine) SetState(ctx context.Context, zoneID, triggerID string, triggered bool) error {
	return e.HandleTriggerEvent(ctx, zoneID, triggerID, triggered, true)
}

// GetState returns a deep copy of the tree.
func (e *Engine) GetState() *model.State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Clone()
}

// Value is the current boolean of a trigger, zone or the master.
func (e *Engine) Value(ref model.EntityRef) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Value(ref)
}

// Sweep expires every elapsed trigger and master deadline.
func (e *Engine) Sweep(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}

	effects := Sweep(e.state, e.clock.Now())
	if len(effects) == 0 {
		return
	}
	log.Debug().Int("effects", len(effects)).Msg("Expiry sweep applied")
	e.execute(ctx, effects)
}

// Reconcile runs once after startup merge, before any other operation.
func (e *Engine) Reconcile(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.execute(ctx, Reconcile(e.state, e.clock.Now()))
}

// Close cancels every armed deadline timer. Later sweeps are ignored.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	for key, d := range e.deadlines {
		d.timer.Stop()
		delete(e.deadlines, key)
	}
}

// execute runs effects on a context detached from the caller: once the tree
// has changed, its history entry and notifications must go out even if the
// caller has gone away.
func (e *Engine) execute(ctx context.Context, effects []Effect) {
	ctx = context.WithoutCancel(ctx)
	for _, effect := range effects {
		switch eff := effect.(type) {
		case PersistEffect:
			e.persist()
		case LogEffect:
			if e.events != nil {
				e.events.LogEvent(eff.Event)
			}
		case NotifyEffect:
			for _, n := range e.notifiers {
				if err := n.Notify(ctx, eff.Entity, eff.Value); err != nil {
					log.Warn().Err(err).
						Str("kind", string(eff.Entity.Kind)).
						Str("zone_id", eff.Entity.ZoneID).
						Str("trigger_id", eff.Entity.TriggerID).
						Msg("Failed to push presence value")
				}
			}
		case HistoryEffect:
			for _, h := range e.history {
				if err := h.AppendHistory(ctx, eff.Entry); err != nil {
					log.Warn().Err(err).Bool("status", eff.Entry.Status).Msg("Failed to record master history")
				}
			}
		}
	}
	e.syncDeadlines()
}

func (e *Engine) persist() {
	if e.store == nil {
		return
	}
	if err := e.store.Save(e.state); err != nil {
		log.Error().Err(err).Msg("Failed to persist presence state, continuing from memory")
	}
}

// syncDeadlines keeps exactly one timer per armed deadline in the tree. A
// deadline that moved resets its existing timer instead of adding another.
func (e *Engine) syncDeadlines() {
	if e.closed {
		return
	}

	wanted := map[string]time.Time{}
	if e.state.Master.ResetAt != nil {
		wanted[model.MasterID] = *e.state.Master.ResetAt
	}
	for _, zone := range e.state.Zones {
		for _, trigger := range zone.Triggers {
			if trigger.ResetAt != nil {
				wanted[zone.ID+"/"+trigger.ID] = *trigger.ResetAt
			}
		}
	}

	for key, d := range e.deadlines {
		if _, ok := wanted[key]; !ok {
			d.timer.Stop()
			delete(e.deadlines, key)
		}
	}

	now := e.clock.Now()
	for key, at := range wanted {
		wait := at.Sub(now)
		if d, ok := e.deadlines[key]; ok {
			if d.at.Equal(at) {
				continue
			}
			d.at = at
			d.timer.Reset(wait)
			continue
		}
		e.deadlines[key] = &deadline{
			at:    at,
			timer: e.clock.AfterFunc(wait, e.onDeadline),
		}
	}
}

func (e *Engine) onDeadline() {
	e.Sweep(context.Background())
}
