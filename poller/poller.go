// Package poller implements the Message Poller (C1): fetch, dedup against
// the seen-id ring, and mark agent-authored messages processed.
package poller

import (
	"context"
	"fmt"

	supervisor "github.com/kestrelhq/persona-supervisor"
)

// DefaultFetchLimit matches spec §4.1's default fetch_limit.
const DefaultFetchLimit = 100

// Poller is grounded on agent/registry.go's mutex-guarded lookup shape,
// generalized from a role-keyed agent store to a transport-backed message
// fetcher; the only shared state across calls is the caller-owned
// supervisor.SeenIDRing (spec §5: owned exclusively by the run loop).
type Poller struct {
	transport supervisor.ChatTransport
	personas  []supervisor.Persona
	fetchLimit int
}

// New builds a Poller. fetchLimit falls back to DefaultFetchLimit when <= 0.
func New(transport supervisor.ChatTransport, personas []supervisor.Persona, fetchLimit int) *Poller {
	if fetchLimit <= 0 {
		fetchLimit = DefaultFetchLimit
	}
	return &Poller{transport: transport, personas: personas, fetchLimit: fetchLimit}
}

// Poll fetches up to fetchLimit messages and returns those not already in
// ring, newest-first, adding each to ring as it's returned (spec §4.1).
// Agent-authored messages are marked Processed=true before being returned.
func (p *Poller) Poll(ctx context.Context, phone, chatID string, ring *supervisor.SeenIDRing) ([]supervisor.Message, error) {
	messages, err := p.transport.FetchMessages(ctx, phone, chatID, p.fetchLimit)
	if err != nil {
		return nil, fmt.Errorf("poller: fetch messages: %w", err)
	}

	out := make([]supervisor.Message, 0, len(messages))
	for _, m := range messages {
		if ring.Contains(m.MessageID) {
			continue
		}
		ring.Add(m.MessageID)
		if supervisor.IsAgentMessage(p.personas, m) {
			m.Processed = true
		}
		out = append(out, m)
	}
	return out, nil
}
