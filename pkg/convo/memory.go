// Package convo implements short conversational memory and the turn
// processor that drives one voice exchange: assemble a bounded prompt,
// call the inference backend with a bounded retry policy, and remember
// the exchange.
package convo

import (
	"github.com/voiceloop/voiceloop/pkg/inference"
)

// Memory is a fixed-capacity ring buffer of conversation messages.
// Capacity is 2x the configured turn count (one user plus one assistant
// message per turn). When full, the oldest message is evicted first.
//
// Memory is not safe for concurrent use; the Processor serializes access.
type Memory struct {
	buf  []inference.Message
	head int // index of the oldest message
	size int
}

// NewMemory creates a Memory holding the last `turns` exchanges.
// A turn count of 0 disables memory entirely.
func NewMemory(turns int) *Memory {
	if turns < 0 {
		turns = 0
	}
	return &Memory{
		buf: make([]inference.Message, 2*turns),
	}
}

// Append inserts a message at the tail, evicting the oldest message
// if the buffer is full. With zero capacity the message is dropped.
func (m *Memory) Append(msg inference.Message) {
	if len(m.buf) == 0 {
		return
	}
	if m.size < len(m.buf) {
		m.buf[(m.head+m.size)%len(m.buf)] = msg
		m.size++
		return
	}
	m.buf[m.head] = msg
	m.head = (m.head + 1) % len(m.buf)
}

// Snapshot returns the remembered messages in insertion order, oldest
// first. The returned slice is a copy; calling Snapshot twice without an
// intervening Append yields identical sequences.
func (m *Memory) Snapshot() []inference.Message {
	out := make([]inference.Message, m.size)
	for i := 0; i < m.size; i++ {
		out[i] = m.buf[(m.head+i)%len(m.buf)]
	}
	return out
}

// Resize changes the capacity to hold `turns` exchanges, keeping the
// most recent messages (still oldest first) up to the new capacity.
func (m *Memory) Resize(turns int) {
	if turns < 0 {
		turns = 0
	}
	kept := m.Snapshot()
	newCap := 2 * turns
	if len(kept) > newCap {
		kept = kept[len(kept)-newCap:]
	}
	m.buf = make([]inference.Message, newCap)
	m.head = 0
	m.size = copy(m.buf, kept)
}

// Len returns the number of remembered messages.
func (m *Memory) Len() int {
	return m.size
}

// Cap returns the maximum number of messages the buffer can hold.
func (m *Memory) Cap() int {
	return len(m.buf)
}
