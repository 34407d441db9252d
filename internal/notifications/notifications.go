package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/automation-presence/internal/model"
)

// Ntfy pushes master presence edges to an ntfy topic.
type Ntfy struct {
	client *http.Client
	server string
	topic  string
	name   string

	// wait blocks Notify until delivery; tests set it.
	wait bool
}

// New returns nil when topic is empty, which disables notifications.
func New(server, topic, name string) *Ntfy {
	if topic == "" {
		log.Warn().Msg("Ntfy topic not configured - notifications disabled")
		return nil
	}

	log.Info().
		Str("topic", topic).
		Msg("Ntfy notifications initialized")

	return &Ntfy{
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		server: strings.TrimSuffix(server, "/"),
		topic:  topic,
		name:   name,
	}
}

// Notify sends only master changes. Delivery happens in the background so
// the engine never waits on the network.
func (n *Ntfy) Notify(_ context.Context, ref model.EntityRef, value bool) error {
	if ref.Kind != model.KindMaster {
		return nil
	}

	title := fmt.Sprintf("%s: presence detected", n.name)
	message := "Someone is home."
	if !value {
		title = fmt.Sprintf("%s: presence cleared", n.name)
		message = "Everyone has left."
	}

	if n.wait {
		return n.Send(title, message)
	}
	go func() {
		if err := n.Send(title, message); err != nil {
			log.Warn().Err(err).Msg("Failed to send presence notification")
		}
	}()
	return nil
}

// Send posts one notification to the ntfy server.
func (n *Ntfy) Send(title, message string) error {
	url := fmt.Sprintf("%s/%s", n.server, n.topic)

	payload := map[string]interface{}{
		"topic":   n.topic,
		"title":   title,
		"message": message,
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	req, err := http.NewRequest("POST", url, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("ntfy returned non-success status: %d", resp.StatusCode)
	}

	log.Debug().
		Str("title", title).
		Int("status", resp.StatusCode).
		Msg("Notification sent successfully")

	return nil
}
