package mocks

import (
	"sync"

	"github.com/benmeehan/telemetry-bridge/internal/models"
)

// Publisher records published messages. Err, when set, is returned from every Publish.
type Publisher struct {
	mu       sync.Mutex
	messages []models.PublishMessage
	Err      error
}

func (p *Publisher) Publish(msg models.PublishMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, msg)
	return p.Err
}

// Messages returns a copy of everything published so far.
func (p *Publisher) Messages() []models.PublishMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]models.PublishMessage(nil), p.messages...)
}

// Count returns the number of messages published so far.
func (p *Publisher) Count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.messages)
}
