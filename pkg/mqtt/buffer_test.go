package mqtt

import (
	"fmt"
	"testing"

	"github.com/benmeehan/telemetry-bridge/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func msg(i int) models.PublishMessage {
	return models.PublishMessage{Topic: "t", Payload: []byte(fmt.Sprintf("%d", i)), QoS: 1}
}

func payloads(msgs []models.PublishMessage) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = string(m.Payload)
	}
	return out
}

func TestMessageBuffer_KeepsInsertionOrder(t *testing.T) {
	b := NewMessageBuffer(100, RejectNew)
	for i := 0; i < 5; i++ {
		require.NoError(t, b.Push(msg(i)))
	}

	assert.Equal(t, 5, b.Len())
	assert.Equal(t, []string{"0", "1", "2", "3", "4"}, payloads(b.Drain()))
	assert.Equal(t, 0, b.Len())
}

func TestMessageBuffer_RejectNewKeepsOldest(t *testing.T) {
	b := NewMessageBuffer(3, RejectNew)
	for i := 0; i < 3; i++ {
		require.NoError(t, b.Push(msg(i)))
	}

	err := b.Push(msg(3))
	assert.ErrorIs(t, err, ErrBufferFull)
	assert.Equal(t, uint64(1), b.Dropped())
	assert.Equal(t, []string{"0", "1", "2"}, payloads(b.Drain()))
}

func TestMessageBuffer_DropOldestKeepsNewest(t *testing.T) {
	b := NewMessageBuffer(3, DropOldest)
	for i := 0; i < 5; i++ {
		require.NoError(t, b.Push(msg(i)))
	}

	assert.Equal(t, uint64(2), b.Dropped())
	assert.Equal(t, []string{"2", "3", "4"}, payloads(b.Drain()))
}

func TestMessageBuffer_NeverExceedsCapacity(t *testing.T) {
	for _, policy := range []OverflowPolicy{RejectNew, DropOldest} {
		for _, capacity := range []int{1, 7, 100} {
			b := NewMessageBuffer(capacity, policy)
			for i := 0; i < capacity*3+1; i++ {
				_ = b.Push(msg(i))
				assert.LessOrEqual(t, b.Len(), capacity, "policy=%s capacity=%d", policy, capacity)
			}
			assert.Equal(t, capacity, b.Len())
		}
	}
}

func TestParseOverflowPolicy(t *testing.T) {
	p, err := ParseOverflowPolicy("")
	require.NoError(t, err)
	assert.Equal(t, RejectNew, p)

	p, err = ParseOverflowPolicy("DROP_OLDEST")
	require.NoError(t, err)
	assert.Equal(t, DropOldest, p)

	_, err = ParseOverflowPolicy("block")
	assert.Error(t, err)
}
