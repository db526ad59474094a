package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// DefaultExchange is the topic exchange change messages are published to.
const DefaultExchange = "community.changes"

// AMQPTransport consumes from a RabbitMQ topic exchange.  Routing keys are
// <table>.<event id>; every subscription gets its own exclusive, auto-deleted
// queue bound with <table>.* or <table>.<event id>.
type AMQPTransport struct {
	url      string
	exchange string
}

func NewAMQPTransport(url, exchange string) *AMQPTransport {
	if exchange == "" {
		exchange = DefaultExchange
	}
	return &AMQPTransport{url: url, exchange: exchange}
}

func bindingKey(topic Topic) string {
	if topic.EventID == "" {
		return string(topic.Table) + ".*"
	}
	return string(topic.Table) + "." + topic.EventID
}

func routingKey(m Message) string {
	return string(m.Table) + "." + m.EventID
}

func declareExchange(ch *amqp.Channel, name string) error {
	return ch.ExchangeDeclare(
		name,    // name
		"topic", // kind
		true,    // durable
		false,   // autoDelete
		false,   // internal
		false,   // noWait
		nil,     // args
	)
}

func (t *AMQPTransport) Open(ctx context.Context, topic Topic) (Stream, error) {
	conn, err := amqp.Dial(t.url)
	if err != nil {
		return nil, fmt.Errorf("dial broker: %w", err)
	}
	s, err := t.open(conn, topic)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	return s, nil
}

func (t *AMQPTransport) open(conn *amqp.Connection, topic Topic) (*amqpStream, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("channel open: %w", err)
	}
	if err := declareExchange(ch, t.exchange); err != nil {
		return nil, fmt.Errorf("exchange declare: %w", err)
	}
	q, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		return nil, fmt.Errorf("queue declare: %w", err)
	}
	if err := ch.QueueBind(q.Name, bindingKey(topic), t.exchange, false, nil); err != nil {
		return nil, fmt.Errorf("queue bind: %w", err)
	}
	tag := "feed-" + topic.String() + "-" + uuid.NewString()
	msgs, err := ch.Consume(q.Name, tag, true, true, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("queue consume: %w", err)
	}
	return &amqpStream{conn: conn, ch: ch, msgs: msgs}, nil
}

type amqpStream struct {
	conn *amqp.Connection
	ch   *amqp.Channel
	msgs <-chan amqp.Delivery
}

func (s *amqpStream) Next(ctx context.Context) (Message, error) {
	select {
	case d, ok := <-s.msgs:
		if !ok {
			return Message{}, errors.New("deliveries channel closed")
		}
		return Unmarshal(d.Body)
	case <-ctx.Done():
		return Message{}, ctx.Err()
	}
}

func (s *amqpStream) Close() error {
	_ = s.ch.Close()
	return s.conn.Close()
}

// AMQPPublisher keeps one connection open and redials it after a failure.
type AMQPPublisher struct {
	url      string
	exchange string

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

func NewAMQPPublisher(url, exchange string) *AMQPPublisher {
	if exchange == "" {
		exchange = DefaultExchange
	}
	return &AMQPPublisher{url: url, exchange: exchange}
}

func (p *AMQPPublisher) channel() (*amqp.Channel, error) {
	if p.ch != nil && !p.ch.IsClosed() {
		return p.ch, nil
	}
	p.reset()
	conn, err := amqp.Dial(p.url)
	if err != nil {
		return nil, fmt.Errorf("dial broker: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("channel open: %w", err)
	}
	if err := declareExchange(ch, p.exchange); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("exchange declare: %w", err)
	}
	p.conn, p.ch = conn, ch
	return ch, nil
}

func (p *AMQPPublisher) reset() {
	if p.conn != nil {
		_ = p.conn.Close()
	}
	p.conn, p.ch = nil, nil
}

func (p *AMQPPublisher) Publish(ctx context.Context, m Message) error {
	body, err := json.Marshal(m)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	ch, err := p.channel()
	if err != nil {
		return err
	}
	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Transient, // missed changes are recovered by refetch
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx, p.exchange, routingKey(m), false, false, pub); err != nil {
		p.reset()
		return fmt.Errorf("publish %s: %w", routingKey(m), err)
	}
	return nil
}

// Close releases the publisher's connection.
func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reset()
	return nil
}
