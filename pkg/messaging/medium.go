package messaging

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// AllAgents subscribes to every message sent through a Medium.
const AllAgents = "*"

// Medium routes messages between agents over a Topology.
// pending is keyed by sender, then receiver, and holds undelivered messages.
// history is an append-only audit log that survives Clear.
type Medium struct {
	topology    *Topology
	pending     map[string]map[string][]*Message
	history     []Message
	nextID      int64
	round       int
	subscribers map[string]chan<- Message
	dropped     int
	now         func() time.Time
	mu          sync.RWMutex
}

// NewMedium creates a new message medium over topology
func NewMedium(topology *Topology) *Medium {
	if topology == nil {
		topology, _ = newTopology("empty", nil)
	}
	return &Medium{
		topology:    topology,
		pending:     make(map[string]map[string][]*Message),
		subscribers: make(map[string]chan<- Message),
		now:         time.Now,
	}
}

func (m *Medium) Topology() *Topology {
	return m.topology
}

// SetRound tags subsequently sent messages with round.
func (m *Medium) SetRound(round int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.round = round
}

// Send stores one message from sender for every receiver and records it in
// the history. Adjacency is not consulted.
func (m *Medium) Send(sender string, receivers []string, content string) (Message, error) {
	if len(receivers) == 0 {
		return Message{}, fmt.Errorf("message from %s has no recipients", sender)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.send(sender, receivers, content), nil
}

func (m *Medium) send(sender string, receivers []string, content string) Message {
	msg := Message{
		ID:        m.nextID,
		From:      sender,
		To:        append([]string(nil), receivers...),
		Content:   content,
		Round:     m.round,
		Timestamp: m.now(),
	}
	m.nextID++

	if m.pending[sender] == nil {
		m.pending[sender] = make(map[string][]*Message)
	}
	for _, to := range receivers {
		stored := msg.clone()
		m.pending[sender][to] = append(m.pending[sender][to], &stored)
		m.notify(to, msg)
	}
	m.notify(AllAgents, msg)
	m.history = append(m.history, msg.clone())
	return msg
}

// notify mirrors msg to a subscriber without blocking. Full channels drop.
func (m *Medium) notify(id string, msg Message) {
	ch, ok := m.subscribers[id]
	if !ok {
		return
	}
	select {
	case ch <- msg.clone():
	default:
		m.dropped++
	}
}

// Broadcast sends content to each of sender's partners, one message per
// partner. A sender outside the topology reaches nobody.
func (m *Medium) Broadcast(sender string, content string) []Message {
	m.mu.Lock()
	defer m.mu.Unlock()

	partners := m.topology.Partners(sender)
	sent := make([]Message, 0, len(partners))
	for _, to := range partners {
		sent = append(sent, m.send(sender, []string{to}, content))
	}
	return sent
}

// PopForAgent removes and returns every pending message addressed to agent,
// grouped by sender and marked delivered. A second call with no sends in
// between returns an empty inbox.
func (m *Medium) PopForAgent(agent string) Inbox {
	m.mu.Lock()
	defer m.mu.Unlock()

	inbox := Inbox{}
	for sender, byReceiver := range m.pending {
		msgs, ok := byReceiver[agent]
		if !ok {
			continue
		}
		for _, msg := range msgs {
			msg.Delivered = true
			inbox[sender] = append(inbox[sender], msg.clone())
		}
		delete(byReceiver, agent)
		if len(byReceiver) == 0 {
			delete(m.pending, sender)
		}
	}
	return inbox
}

// PeekPendingForAgent returns the messages addressed to agent without
// removing them. They are marked delivered, and a later pop still returns them.
func (m *Medium) PeekPendingForAgent(agent string) Inbox {
	m.mu.Lock()
	defer m.mu.Unlock()

	inbox := Inbox{}
	for sender, byReceiver := range m.pending {
		for _, msg := range byReceiver[agent] {
			msg.Delivered = true
			inbox[sender] = append(inbox[sender], msg.clone())
		}
	}
	return inbox
}

// PartnersOf returns the agents the topology lets agent reach.
func (m *Medium) PartnersOf(agent string) []string {
	return m.topology.Partners(agent)
}

// Adjacent reports whether the topology lets from reach to.
func (m *Medium) Adjacent(from, to string) bool {
	return m.topology.Adjacent(from, to)
}

// Clear drops every pending message. History and the sequence counter are
// left untouched.
func (m *Medium) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending = make(map[string]map[string][]*Message)
}

// History returns a copy of every message ever sent, in send order.
func (m *Medium) History() []Message {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Message, len(m.history))
	for i, msg := range m.history {
		out[i] = msg.clone()
	}
	return out
}

// Subscribe mirrors every message addressed to agentID onto ch. Use AllAgents
// to observe all traffic. Delivery never blocks; Dropped counts the misses.
func (m *Medium) Subscribe(agentID string, ch chan<- Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.subscribers[agentID]; exists {
		return fmt.Errorf("agent %s is already subscribed", agentID)
	}

	m.subscribers[agentID] = ch
	return nil
}

// Unsubscribe removes an agent's subscription
func (m *Medium) Unsubscribe(agentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.subscribers[agentID]; !exists {
		return fmt.Errorf("agent %s is not subscribed", agentID)
	}

	delete(m.subscribers, agentID)
	return nil
}

// Dropped returns how many subscriber notifications were dropped.
func (m *Medium) Dropped() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.dropped
}

func sortByID(msgs []Message) {
	sort.Slice(msgs, func(i, j int) bool { return msgs[i].ID < msgs[j].ID })
}
