// Package bus generalizes the teacher's internal/queue (a single named
// RabbitMQ work queue) into the per-game topic mesh spec §4/§6 needs:
// every game gets its own input and output topic, and several
// independent consumer groups (command pipeline, turn timer, bot
// manager, watcher fan-out) each subscribe "by regex" to every game's
// topic. A single AMQP topic exchange with one durable queue per
// subscriber, bound with a wildcard pattern, gives every subscriber its
// own copy of each message the way the spec's per-component regex
// subscriptions require; the per-game Provisioner queues below are the
// lifecycle resource spec §3/§6 calls out separately.
package bus

import (
	"context"
	"fmt"
)

// Handler processes one message. Returning an error nacks-without-requeue
// (spec §7: "message processing errors log and continue (no poison-pill
// stalls)" -- callers are expected to have already converted a
// processing error into a terminal step/log, not to signal for redelivery).
type Handler func(ctx context.Context, routingKey string, payload []byte) error

// Bus is the injectable seam every component programs against (spec §9:
// "dynamic dispatch ... implemented as interfaces injected at
// construction"). Production code gets an *AMQPBus; tests get a
// *MemoryBus that records calls.
type Bus interface {
	// Publish sends payload with the given routing key (topic name).
	Publish(ctx context.Context, routingKey string, payload []byte) error
	// Subscribe creates a durable queue named queueName bound to pattern
	// (an AMQP topic-exchange binding key, e.g. "game.output.*.v1") and
	// delivers every matching message to handler until ctx is canceled.
	Subscribe(ctx context.Context, queueName, pattern string, handler Handler) error
	Close() error
}

// Provisioner creates and deletes the pair of per-game topics (spec §6:
// "<input_prefix>.<game_id>.v1" / "<output_prefix>.<game_id>.v1").
type Provisioner interface {
	CreateGameTopics(ctx context.Context, gameID string) (inputTopic, outputTopic string, err error)
	DeleteGameTopics(ctx context.Context, gameID string) error
}

// TopicNames computes the conventional topic pair for a game id given
// the configured prefixes (spec §6). Defaults are "game.commands" and
// "game.output".
func TopicNames(inputPrefix, outputPrefix, gameID string) (input, output string) {
	return fmt.Sprintf("%s.%s.v1", inputPrefix, gameID), fmt.Sprintf("%s.%s.v1", outputPrefix, gameID)
}

// TopicPattern returns the wildcard binding key that matches every
// game's topic under a prefix, e.g. "game.commands.*.v1".
func TopicPattern(prefix string) string {
	return fmt.Sprintf("%s.*.v1", prefix)
}
