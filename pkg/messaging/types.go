package messaging

import (
	"time"
)

// Message represents a communication between agents
type Message struct {
	ID        int64     // Sequence id, strictly increasing per Medium
	From      string    // Agent ID of sender
	To        []string  // Agent IDs of recipients
	Content   string    // The actual message content
	Round     int       // Round the message was sent in
	Timestamp time.Time // When the message was sent
	Delivered bool      // Set once the receiver has read the message
}

func (m Message) clone() Message {
	m.To = append([]string(nil), m.To...)
	return m
}

// Inbox groups messages addressed to one agent by sender.
type Inbox map[string][]Message

// Len returns the total number of messages in the inbox.
func (in Inbox) Len() int {
	n := 0
	for _, msgs := range in {
		n += len(msgs)
	}
	return n
}

// Flatten returns every message ordered by sequence id.
func (in Inbox) Flatten() []Message {
	out := make([]Message, 0, in.Len())
	for _, msgs := range in {
		out = append(out, msgs...)
	}
	sortByID(out)
	return out
}
