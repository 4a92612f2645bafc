// Package memory keeps fraud alerts in process when no Pub/Sub topic is
// configured. Payloads are JSON encoded exactly as the Pub/Sub publisher
// sends them.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/JakeFAU/fraud-detection/internal/clock"
)

// DefaultCapacity is the number of alerts retained before the oldest are
// dropped.
const DefaultCapacity = 1024

// Message is one retained alert.
type Message struct {
	ID          string
	Topic       string
	Data        []byte
	PublishedAt time.Time
}

// Decode unmarshals the message body into v.
func (m Message) Decode(v any) error {
	return json.Unmarshal(m.Data, v)
}

// Publisher is a bounded in-memory alert log.
type Publisher struct {
	mu       sync.Mutex
	clock    clock.Clock
	capacity int
	seq      uint64
	dropped  uint64
	messages []Message
}

// Option configures a Publisher.
type Option func(*Publisher)

// WithCapacity bounds how many alerts are kept. Values <= 0 keep the default.
func WithCapacity(n int) Option {
	return func(p *Publisher) {
		if n > 0 {
			p.capacity = n
		}
	}
}

// WithClock overrides the publish timestamp source.
func WithClock(c clock.Clock) Option { return func(p *Publisher) { p.clock = c } }

// New returns an empty Publisher.
func New(opts ...Option) *Publisher {
	p := &Publisher{clock: clock.NewSystem(), capacity: DefaultCapacity}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Publish encodes payload and appends it, evicting the oldest alert when full.
func (p *Publisher) Publish(ctx context.Context, topic string, payload any) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.seq++
	msg := Message{
		ID:          "memory-" + strconv.FormatUint(p.seq, 10),
		Topic:       topic,
		Data:        data,
		PublishedAt: p.clock.Now(),
	}
	if len(p.messages) == p.capacity {
		p.messages = append(p.messages[:0], p.messages[1:]...)
		p.dropped++
	}
	p.messages = append(p.messages, msg)
	return msg.ID, nil
}

// Messages returns a copy of the retained alerts, oldest first.
func (p *Publisher) Messages() []Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Message, len(p.messages))
	copy(out, p.messages)
	return out
}

// Dropped reports how many alerts were evicted.
func (p *Publisher) Dropped() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dropped
}
