// Package mqtt exposes every presence entity over MQTT: retained state
// topics, a history topic for master edges and set topics for triggers.
package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/automation-presence/internal/model"
)

// MessageHandler receives one inbound message.
type MessageHandler func(topic string, payload []byte)

// Client is the slice of an MQTT client the binding uses. Publish must not
// block on the network.
type Client interface {
	Publish(topic string, retained bool, payload []byte) error
	Subscribe(filter string, handler MessageHandler) error
	// OnConnect registers f to run after every (re)connect.
	OnConnect(f func())
	Close() error
}

// Controller is the part of the engine that inbound commands drive.
type Controller interface {
	GetState() *model.State
	SetState(ctx context.Context, zoneID, triggerID string, triggered bool) error
}

// StatePayload is published retained on every state topic.
type StatePayload struct {
	Value     bool   `json:"value"`
	Timestamp string `json:"timestamp"`
}

type Binding struct {
	client Client
	prefix string
	clock  clockwork.Clock

	mu         sync.Mutex
	controller Controller
}

func NewBinding(client Client, prefix string, clk clockwork.Clock) *Binding {
	if clk == nil {
		clk = clockwork.NewRealClock()
	}
	return &Binding{
		client: client,
		prefix: strings.TrimSuffix(prefix, "/"),
		clock:  clk,
	}
}

// MasterTopic is the retained state topic of the master.
func (b *Binding) MasterTopic() string {
	return b.prefix + "/master/state"
}

func (b *Binding) HistoryTopic() string {
	return b.prefix + "/master/history"
}

func (b *Binding) ZoneTopic(zoneID string) string {
	return fmt.Sprintf("%s/zones/%s/state", b.prefix, zoneID)
}

func (b *Binding) TriggerTopic(zoneID, triggerID string) string {
	return fmt.Sprintf("%s/zones/%s/triggers/%s/state", b.prefix, zoneID, triggerID)
}

func (b *Binding) commandFilter() string {
	return b.prefix + "/zones/+/triggers/+/set"
}

func (b *Binding) stateTopic(ref model.EntityRef) (string, error) {
	switch ref.Kind {
	case model.KindMaster:
		return b.MasterTopic(), nil
	case model.KindZone:
		return b.ZoneTopic(ref.ZoneID), nil
	case model.KindTrigger:
		return b.TriggerTopic(ref.ZoneID, ref.TriggerID), nil
	}
	return "", fmt.Errorf("unknown entity kind %q", ref.Kind)
}

// Notify publishes the new value retained so late subscribers see it.
func (b *Binding) Notify(_ context.Context, ref model.EntityRef, value bool) error {
	topic, err := b.stateTopic(ref)
	if err != nil {
		return err
	}
	return b.publishValue(topic, value)
}

// AppendHistory publishes one master edge. History messages are not retained.
func (b *Binding) AppendHistory(_ context.Context, entry model.HistoryEntry) error {
	payload, err := json.Marshal(struct {
		Time   string `json:"time"`
		Status bool   `json:"status"`
	}{
		Time:   entry.Timestamp.UTC().Format(time.RFC3339),
		Status: entry.Status,
	})
	if err != nil {
		return fmt.Errorf("format history payload: %w", err)
	}
	return b.client.Publish(b.HistoryTopic(), false, payload)
}

func (b *Binding) publishValue(topic string, value bool) error {
	payload, err := json.Marshal(StatePayload{
		Value:     value,
		Timestamp: b.clock.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("format state payload: %w", err)
	}
	return b.client.Publish(topic, true, payload)
}

// Start wires inbound set commands to controller and republishes every value
// on each connect.
func (b *Binding) Start(controller Controller) error {
	b.mu.Lock()
	b.controller = controller
	b.mu.Unlock()

	b.client.OnConnect(b.PublishAll)
	if err := b.client.Subscribe(b.commandFilter(), b.handleSet); err != nil {
		return fmt.Errorf("subscribe %s: %w", b.commandFilter(), err)
	}
	return nil
}

// PublishAll pushes the current value of every entity.
func (b *Binding) PublishAll() {
	controller := b.currentController()
	if controller == nil {
		return
	}
	st := controller.GetState()

	publish := func(topic string, value bool) {
		if err := b.publishValue(topic, value); err != nil {
			log.Warn().Err(err).Str("topic", topic).Msg("Failed to publish presence value")
		}
	}

	publish(b.MasterTopic(), st.Master.Triggered)
	for _, zone := range st.Zones {
		publish(b.ZoneTopic(zone.ID), zone.Triggered)
		for _, trigger := range zone.Triggers {
			publish(b.TriggerTopic(zone.ID, trigger.ID), trigger.Triggered)
		}
	}
	log.Info().Int("zones", len(st.Zones)).Msg("Published presence state to MQTT")
}

func (b *Binding) currentController() Controller {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.controller
}

func (b *Binding) handleSet(topic string, payload []byte) {
	zoneID, triggerID, ok := b.parseCommandTopic(topic)
	if !ok {
		log.Warn().Str("topic", topic).Msg("Ignoring MQTT command on unexpected topic")
		return
	}
	value, err := ParseValue(payload)
	if err != nil {
		log.Warn().Err(err).Str("topic", topic).Msg("Ignoring malformed MQTT command")
		return
	}

	controller := b.currentController()
	if controller == nil {
		return
	}
	if err := controller.SetState(context.Background(), zoneID, triggerID, value); err != nil {
		log.Warn().Err(err).Str("zone_id", zoneID).Str("trigger_id", triggerID).Msg("MQTT command rejected")
		return
	}
	log.Info().Str("zone_id", zoneID).Str("trigger_id", triggerID).Bool("triggered", value).Msg("Trigger state updated via MQTT")
}

func (b *Binding) parseCommandTopic(topic string) (string, string, bool) {
	rest, found := strings.CutPrefix(topic, b.prefix+"/zones/")
	if !found {
		return "", "", false
	}
	parts := strings.Split(rest, "/")
	if len(parts) != 4 || parts[1] != "triggers" || parts[3] != "set" || parts[0] == "" || parts[2] == "" {
		return "", "", false
	}
	return parts[0], parts[2], true
}

// ParseValue accepts true/false, 1/0, on/off or a StatePayload document.
func ParseValue(payload []byte) (bool, error) {
	raw := strings.ToLower(strings.TrimSpace(string(payload)))
	switch raw {
	case "true", "1", "on":
		return true, nil
	case "false", "0", "off":
		return false, nil
	}

	var doc StatePayload
	if strings.HasPrefix(raw, "{") && json.Unmarshal(payload, &doc) == nil {
		return doc.Value, nil
	}
	return false, fmt.Errorf("unrecognised value %q", raw)
}
