package datadog

import (
	"context"
	"fmt"
	"sync"

	"github.com/DataDog/datadog-go/statsd"
	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/automation-presence/internal/model"
)

const (
	MetricMaster  = "presence.master"
	MetricZone    = "presence.zone"
	MetricTrigger = "presence.trigger"
)

type gauger interface {
	Gauge(name string, value float64, tags []string, rate float64) error
	Close() error
}

// Client reports presence values as gauges. It serves both as a Notifier
// and as a snapshot sink that refreshes every gauge.
type Client struct {
	statsd gauger

	mu    sync.RWMutex
	names map[string]string
}

// New connects to the DogStatsD agent at addr.
func New(addr, namespace string, tags []string) (*Client, error) {
	c, err := statsd.New(addr)
	if err != nil {
		return nil, fmt.Errorf("failed to create DogStatsD client: %w", err)
	}
	c.Namespace = namespace
	c.Tags = tags

	log.Info().
		Str("addr", addr).
		Str("namespace", namespace).
		Strs("tags", tags).
		Msg("Datadog metrics initialized")

	return newWith(c), nil
}

func newWith(g gauger) *Client {
	return &Client{statsd: g, names: map[string]string{}}
}

// Describe records entity names so gauges carry readable tags.
func (c *Client) Describe(st *model.State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, zone := range st.Zones {
		c.names[zone.ID] = zone.Name
		for _, trigger := range zone.Triggers {
			c.names[zone.ID+"/"+trigger.ID] = trigger.Name
		}
	}
}

func (c *Client) Notify(_ context.Context, ref model.EntityRef, value bool) error {
	switch ref.Kind {
	case model.KindMaster:
		return c.gauge(MetricMaster, value)
	case model.KindZone:
		return c.gauge(MetricZone, value, c.zoneTags(ref.ZoneID)...)
	case model.KindTrigger:
		tags := append(c.zoneTags(ref.ZoneID),
			"trigger_id:"+ref.TriggerID,
			"trigger:"+c.name(ref.ZoneID+"/"+ref.TriggerID))
		return c.gauge(MetricTrigger, value, tags...)
	}
	return fmt.Errorf("unknown entity kind %q", ref.Kind)
}

// Snapshot re-emits every gauge so dashboards stay populated between edges.
func (c *Client) Snapshot(st *model.State) {
	c.Describe(st)
	ctx := context.Background()
	if err := c.Notify(ctx, model.MasterRef(), st.Master.Triggered); err != nil {
		log.Warn().Err(err).Msg("Failed to emit master gauge")
	}
	for _, zone := range st.Zones {
		if err := c.Notify(ctx, model.ZoneRef(zone.ID), zone.Triggered); err != nil {
			log.Warn().Err(err).Str("zone", zone.Name).Msg("Failed to emit zone gauge")
		}
		for _, trigger := range zone.Triggers {
			if err := c.Notify(ctx, model.TriggerRef(zone.ID, trigger.ID), trigger.Triggered); err != nil {
				log.Warn().Err(err).Str("trigger", trigger.Name).Msg("Failed to emit trigger gauge")
			}
		}
	}
}

func (c *Client) Close() error {
	return c.statsd.Close()
}

func (c *Client) zoneTags(zoneID string) []string {
	return []string{"zone_id:" + zoneID, "zone:" + c.name(zoneID)}
}

func (c *Client) name(key string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.names[key]
}

func (c *Client) gauge(name string, value bool, tags ...string) error {
	v := 0.0
	if value {
		v = 1
	}
	if err := c.statsd.Gauge(name, v, tags, 1); err != nil {
		return fmt.Errorf("emit %s: %w", name, err)
	}
	return nil
}
