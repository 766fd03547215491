package mqtt

import (
	"fmt"
	"strings"
	"sync"

	"github.com/benmeehan/telemetry-bridge/internal/constants"
	"github.com/benmeehan/telemetry-bridge/internal/models"
)

// OverflowPolicy decides which message is lost when the buffer is full.
type OverflowPolicy int

const (
	// RejectNew keeps the oldest messages and refuses new ones.
	RejectNew OverflowPolicy = iota
	// DropOldest evicts the oldest message to make room for the new one.
	DropOldest
)

// ParseOverflowPolicy converts a configuration value into an OverflowPolicy.
func ParseOverflowPolicy(s string) (OverflowPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", constants.OverflowRejectNew:
		return RejectNew, nil
	case constants.OverflowDropOldest:
		return DropOldest, nil
	default:
		return RejectNew, fmt.Errorf("unknown overflow policy %q", s)
	}
}

func (p OverflowPolicy) String() string {
	if p == DropOldest {
		return constants.OverflowDropOldest
	}
	return constants.OverflowRejectNew
}

// MessageBuffer is a bounded FIFO of messages waiting for the broker connection.
type MessageBuffer struct {
	mu       sync.Mutex
	items    []models.PublishMessage
	capacity int
	policy   OverflowPolicy
	dropped  uint64
}

// NewMessageBuffer creates a buffer holding at most capacity messages.
func NewMessageBuffer(capacity int, policy OverflowPolicy) *MessageBuffer {
	if capacity < 1 {
		capacity = 1
	}
	return &MessageBuffer{
		items:    make([]models.PublishMessage, 0, capacity),
		capacity: capacity,
		policy:   policy,
	}
}

// Push appends a message. When the buffer is full it applies the overflow policy: RejectNew
// returns ErrBufferFull, DropOldest evicts the head and accepts the message.
func (b *MessageBuffer) Push(msg models.PublishMessage) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.items) >= b.capacity {
		b.dropped++
		if b.policy == RejectNew {
			return ErrBufferFull
		}
		copy(b.items, b.items[1:])
		b.items = b.items[:len(b.items)-1]
	}
	b.items = append(b.items, msg)
	return nil
}

// Drain removes and returns all buffered messages in insertion order.
func (b *MessageBuffer) Drain() []models.PublishMessage {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]models.PublishMessage, len(b.items))
	copy(out, b.items)
	b.items = b.items[:0]
	return out
}

// Len returns the number of buffered messages.
func (b *MessageBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items)
}

// Capacity returns the buffer bound.
func (b *MessageBuffer) Capacity() int {
	return b.capacity
}

// Dropped returns how many messages were lost to the overflow policy.
func (b *MessageBuffer) Dropped() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}
