package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
)

// AMQP relays through a fanout exchange. Each instance consumes from its own
// exclusive, auto-deleted queue bound to the exchange.
type AMQP struct {
	exchange string
	conn     *amqp.Connection
	channel  *amqp.Channel
	queue    string

	pubMu     sync.Mutex // amqp channels are not safe for concurrent publish
	startOnce sync.Once
	closeOnce sync.Once
	done      chan struct{}
}

// DialAMQP connects to url and declares the exchange and the instance queue.
func DialAMQP(url, exchange string) (*AMQP, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dialing amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("opening amqp channel: %w", err)
	}

	err = ch.ExchangeDeclare(
		exchange,
		"fanout", // type
		false,    // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,      // arguments
	)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("declaring exchange %s: %w", exchange, err)
	}

	q, err := ch.QueueDeclare(
		"",    // server-named
		false, // durable
		true,  // delete when unused
		true,  // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("declaring queue: %w", err)
	}

	if err := ch.QueueBind(q.Name, "", exchange, false, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("binding queue %s: %w", q.Name, err)
	}

	log.Infof("relay connected to exchange %s (queue %s)", exchange, q.Name)
	return &AMQP{
		exchange: exchange,
		conn:     conn,
		channel:  ch,
		queue:    q.Name,
		done:     make(chan struct{}),
	}, nil
}

func (a *AMQP) Publish(ctx context.Context, env Envelope) error {
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encoding envelope: %w", err)
	}
	a.pubMu.Lock()
	defer a.pubMu.Unlock()
	err = a.channel.PublishWithContext(ctx,
		a.exchange,
		"",
		false,
		false,
		amqp.Publishing{
			ContentType: "application/json",
			Body:        body,
		})
	if err != nil {
		return fmt.Errorf("publishing to %s: %w", a.exchange, err)
	}
	return nil
}

func (a *AMQP) Subscribe(handler func(Envelope)) error {
	var startErr error
	a.startOnce.Do(func() {
		deliveries, err := a.channel.Consume(
			a.queue, // queue
			"",      // consumer
			true,    // autoAck
			true,    // exclusive
			false,   // noLocal
			false,   // noWait
			nil,     // args
		)
		if err != nil {
			startErr = fmt.Errorf("consuming %s: %w", a.queue, err)
			return
		}
		go a.consume(deliveries, handler)
	})
	return startErr
}

func (a *AMQP) consume(deliveries <-chan amqp.Delivery, handler func(Envelope)) {
	for {
		select {
		case <-a.done:
			return
		case d, ok := <-deliveries:
			if !ok {
				log.Warningf("relay deliveries closed")
				return
			}
			var env Envelope
			if err := json.Unmarshal(d.Body, &env); err != nil {
				log.Warningf("discarding malformed relay envelope: %v", err)
				continue
			}
			handler(env)
		}
	}
}

func (a *AMQP) Close() error {
	var err error
	a.closeOnce.Do(func() {
		close(a.done)
		a.channel.Close()
		err = a.conn.Close()
	})
	return err
}
