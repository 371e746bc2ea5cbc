// SPDX-License-Identifier: BUSL-1.1
// Copyright (c) 2026 MuVeraAI Corporation

package eventbus

import (
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// NATSBus publishes governance events as JSON to NATS subjects named
// "governance.cycle.<cycle_id>.<event_kind>", for deployments that run the
// executor or a dashboard out of process. Connection handling mirrors the
// retrieval pack's NATS wiring (named connections, fire-and-forget publish,
// errors logged rather than surfaced to the caller).
type NATSBus struct {
	conn *nats.Conn
	log  zerolog.Logger
}

// NewNATSBus connects to url and returns a ready-to-use NATSBus.
func NewNATSBus(url string, log zerolog.Logger) (*NATSBus, error) {
	conn, err := nats.Connect(url, nats.Name("governance-plane"))
	if err != nil {
		return nil, fmt.Errorf("eventbus: connect to nats at %q: %w", url, err)
	}
	return &NATSBus{conn: conn, log: log}, nil
}

// Close closes the underlying NATS connection without draining it first.
func (b *NATSBus) Close() {
	b.conn.Close()
}

// Publish encodes each event as JSON and publishes it to its subject.
// Publish failures (including an unreachable server) are logged and never
// returned — subscriber delivery is always best-effort, per the event
// boundary contract.
func (b *NATSBus) Publish(events []Event) {
	for _, e := range events {
		subject := fmt.Sprintf("governance.cycle.%d.%s", e.CycleID, e.Kind)
		data, err := json.Marshal(e)
		if err != nil {
			b.log.Error().Err(err).Str("subject", subject).Msg("eventbus: encode event")
			continue
		}
		if err := b.conn.Publish(subject, data); err != nil {
			b.log.Error().Err(err).Str("subject", subject).Msg("eventbus: publish event")
		}
	}
}
