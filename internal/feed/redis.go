package feed

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisTransport subscribes to Redis Pub/Sub channels named
// <prefix>:<table> and <prefix>:<table>:<event id>.
type RedisTransport struct {
	rdb    *redis.Client
	prefix string
}

func NewRedisTransport(rdb *redis.Client, prefix string) *RedisTransport {
	return &RedisTransport{rdb: rdb, prefix: prefix}
}

func (t *RedisTransport) channel(topic Topic) string {
	return redisChannel(t.prefix, topic)
}

func redisChannel(prefix string, topic Topic) string {
	return prefix + ":" + topic.String()
}

// Open subscribes and waits for the server to confirm the subscription so
// that a dead connection is reported here rather than on the first read.
func (t *RedisTransport) Open(ctx context.Context, topic Topic) (Stream, error) {
	ps := t.rdb.Subscribe(ctx, t.channel(topic))
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("redis subscribe %s: %w", t.channel(topic), err)
	}
	return &redisStream{ps: ps}, nil
}

type redisStream struct {
	ps *redis.PubSub
}

func (s *redisStream) Next(ctx context.Context) (Message, error) {
	m, err := s.ps.ReceiveMessage(ctx)
	if err != nil {
		return Message{}, fmt.Errorf("redis receive: %w", err)
	}
	return Unmarshal([]byte(m.Payload))
}

func (s *redisStream) Close() error { return s.ps.Close() }

// RedisPublisher publishes every message on its table channel and, when the
// message carries an event id, on the per-event channel too.
type RedisPublisher struct {
	rdb    *redis.Client
	prefix string
}

func NewRedisPublisher(rdb *redis.Client, prefix string) *RedisPublisher {
	return &RedisPublisher{rdb: rdb, prefix: prefix}
}

func (p *RedisPublisher) Publish(ctx context.Context, m Message) error {
	body, err := json.Marshal(m)
	if err != nil {
		return err
	}
	_, err = p.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Publish(ctx, redisChannel(p.prefix, Topic{Table: m.Table}), body)
		if m.EventID != "" {
			pipe.Publish(ctx, redisChannel(p.prefix, Topic{Table: m.Table, EventID: m.EventID}), body)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis publish %s: %w", m.Table, err)
	}
	return nil
}
