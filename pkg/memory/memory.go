// Package memory keeps an agent's bounded observation history.
package memory

import "sync"

// Entry is one observation an agent produced.
type Entry struct {
	Round int
	Phase string
	Text  string
}

type Memory struct {
	memoryStream []Entry
	capacity     int
	mu           sync.RWMutex
}

// NewMemory returns a memory holding at most capacity entries; the oldest
// entries are evicted first. A capacity <= 0 keeps everything.
func NewMemory(capacity int) *Memory {
	initial := capacity
	if initial <= 0 {
		initial = 16
	}
	return &Memory{
		memoryStream: make([]Entry, 0, initial),
		capacity:     capacity,
	}
}

// GetAllMessages returns a copy of all observation texts in memory
func (m *Memory) GetAllMessages() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	messages := make([]string, len(m.memoryStream))
	for i, e := range m.memoryStream {
		messages[i] = e.Text
	}
	return messages
}

// Entries returns a copy of all entries in memory
func (m *Memory) Entries() []Entry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Entry(nil), m.memoryStream...)
}

// Last returns the most recent observation text, if any.
func (m *Memory) Last() (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.memoryStream) == 0 {
		return "", false
	}
	return m.memoryStream[len(m.memoryStream)-1].Text, true
}

func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.memoryStream)
}

func (m *Memory) Store(e Entry) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.memoryStream = append(m.memoryStream, e)

	// TODO: evict by token count once LLM agents report prompt sizes
	if m.capacity > 0 && len(m.memoryStream) > m.capacity {
		m.memoryStream = m.memoryStream[len(m.memoryStream)-m.capacity:]
	}
}

// Reset forgets every entry.
func (m *Memory) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.memoryStream = m.memoryStream[:0]
}
