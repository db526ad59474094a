package feed

import (
	"context"
	"errors"
	"sync"
)

var errStreamReset = errors.New("memory stream reset")

// Memory is an in-process Transport and Publisher.  It serves single
// instance deployments (FEED_BACKEND=memory) and tests.
type Memory struct {
	mu      sync.Mutex
	streams map[*memStream]struct{}
}

func NewMemory() *Memory {
	return &Memory{streams: make(map[*memStream]struct{})}
}

func (m *Memory) Open(ctx context.Context, topic Topic) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s := &memStream{hub: m, topic: topic, msgs: make(chan Message, 256), done: make(chan struct{})}
	m.mu.Lock()
	m.streams[s] = struct{}{}
	m.mu.Unlock()
	return s, nil
}

// Publish hands m to every open stream whose topic matches.  It blocks while
// a subscriber's buffer is full.
func (m *Memory) Publish(ctx context.Context, msg Message) error {
	m.mu.Lock()
	targets := make([]*memStream, 0, len(m.streams))
	for s := range m.streams {
		if s.topic.Match(msg) {
			targets = append(targets, s)
		}
	}
	m.mu.Unlock()
	for _, s := range targets {
		select {
		case s.msgs <- msg:
		case <-s.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Reset ends every open stream as a broker restart would.  Subscribers
// reconnect through their listener.
func (m *Memory) Reset() {
	m.mu.Lock()
	streams := m.streams
	m.streams = make(map[*memStream]struct{})
	m.mu.Unlock()
	for s := range streams {
		s.end()
	}
}

// Open streams, for diagnostics.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.streams)
}

type memStream struct {
	hub   *Memory
	topic Topic
	msgs  chan Message
	done  chan struct{}
	once  sync.Once
}

func (s *memStream) end() { s.once.Do(func() { close(s.done) }) }

func (s *memStream) Next(ctx context.Context) (Message, error) {
	select {
	case m := <-s.msgs:
		return m, nil
	case <-s.done:
		return Message{}, errStreamReset
	case <-ctx.Done():
		return Message{}, ctx.Err()
	}
}

func (s *memStream) Close() error {
	s.end()
	s.hub.mu.Lock()
	delete(s.hub.streams, s)
	s.hub.mu.Unlock()
	return nil
}
