package bus

import (
	"context"
	"path"
	"strings"
	"sync"
)

// MemoryBus is an in-process Bus used by tests for authority, pipeline,
// turntimer, botmanager and watcher (spec §9's guidance that test
// doubles for injected collaborators should "record-append calls"
// rather than reach a real broker). Subscriptions are matched against
// AMQP-style topic patterns where "*" matches exactly one dot-delimited
// segment.
type MemoryBus struct {
	mu   sync.Mutex
	subs []memorySub
	// Published records every call to Publish, in order, for assertions.
	Published []PublishedMessage
}

type PublishedMessage struct {
	RoutingKey string
	Payload    []byte
}

type memorySub struct {
	pattern string
	handler Handler
}

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{}
}

func (b *MemoryBus) Publish(ctx context.Context, routingKey string, payload []byte) error {
	b.mu.Lock()
	b.Published = append(b.Published, PublishedMessage{RoutingKey: routingKey, Payload: payload})
	subs := make([]memorySub, len(b.subs))
	copy(subs, b.subs)
	b.mu.Unlock()

	for _, sub := range subs {
		if matchTopic(sub.pattern, routingKey) {
			if err := sub.handler(ctx, routingKey, payload); err != nil {
				return err
			}
		}
	}
	return nil
}

func (b *MemoryBus) Subscribe(ctx context.Context, queueName, pattern string, handler Handler) error {
	b.mu.Lock()
	b.subs = append(b.subs, memorySub{pattern: pattern, handler: handler})
	b.mu.Unlock()
	return nil
}

func (b *MemoryBus) Close() error { return nil }

// matchTopic implements the subset of AMQP topic-exchange matching the
// bus needs: "*" matches exactly one segment, segments split on ".".
// "#" is not supported since no component binds with it.
func matchTopic(pattern, routingKey string) bool {
	pSegs := strings.Split(pattern, ".")
	rSegs := strings.Split(routingKey, ".")
	if len(pSegs) != len(rSegs) {
		return false
	}
	for i, ps := range pSegs {
		if ps == "*" {
			continue
		}
		if ok, _ := path.Match(ps, rSegs[i]); !ok {
			return false
		}
	}
	return true
}

// MemoryProvisioner is the in-memory Provisioner test double.
type MemoryProvisioner struct {
	mu           sync.Mutex
	InputPrefix  string
	OutputPrefix string
	Created      map[string]bool
}

func NewMemoryProvisioner(inputPrefix, outputPrefix string) *MemoryProvisioner {
	return &MemoryProvisioner{InputPrefix: inputPrefix, OutputPrefix: outputPrefix, Created: make(map[string]bool)}
}

func (p *MemoryProvisioner) CreateGameTopics(ctx context.Context, gameID string) (string, string, error) {
	input, output := TopicNames(p.InputPrefix, p.OutputPrefix, gameID)
	p.mu.Lock()
	p.Created[gameID] = true
	p.mu.Unlock()
	return input, output, nil
}

func (p *MemoryProvisioner) DeleteGameTopics(ctx context.Context, gameID string) error {
	p.mu.Lock()
	delete(p.Created, gameID)
	p.mu.Unlock()
	return nil
}
