// Package queue carries enqueue wake-up signals between API instances and
// dispatchers over RabbitMQ. The broker only accelerates pickup of freshly
// enqueued items: claim correctness lives entirely in storage, so a lost or
// duplicated wake-up costs at most one poll interval of latency.
package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/wb-go/wbf/rabbitmq"
	"github.com/wb-go/wbf/retry"
	"github.com/wb-go/wbf/zlog"
)

const (
	ExchangeName  = "notifier-exchange"
	WakeQueueName = "notifier-wake"
	RoutingKey    = "wake"
)

// WakeMessage announces that a notification became ready for dispatch.
type WakeMessage struct {
	ID         uuid.UUID `json:"id"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// WakeQueue publishes and consumes dispatcher wake-up signals.
type WakeQueue struct {
	Publisher *rabbitmq.Publisher
	Consumer  *rabbitmq.Consumer
}

// NewWakeQueue declares the wake exchange and queue on the channel and
// returns a queue bound to them.
func NewWakeQueue(ch *rabbitmq.Channel) (*WakeQueue, error) {
	exchange := rabbitmq.NewExchange(ExchangeName, "direct")
	if err := exchange.BindToChannel(ch); err != nil {
		return nil, fmt.Errorf("failed to bind to exchange: %w", err)
	}

	qm := rabbitmq.NewQueueManager(ch)

	q, err := qm.DeclareQueue(WakeQueueName, rabbitmq.QueueConfig{Durable: true})
	if err != nil {
		return nil, fmt.Errorf("failed to declare wake queue: %w", err)
	}

	if err := ch.QueueBind(q.Name, RoutingKey, exchange.Name(), false, nil); err != nil {
		return nil, fmt.Errorf("failed to bind the exchange to the wake queue: %w", err)
	}

	pub := rabbitmq.NewPublisher(ch, exchange.Name())
	cons := rabbitmq.NewConsumer(ch, rabbitmq.NewConsumerConfig(q.Name))

	return &WakeQueue{Publisher: pub, Consumer: cons}, nil
}

// Publish announces msg to every listening dispatcher.
func (q *WakeQueue) Publish(msg WakeMessage, strategy retry.Strategy) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	return q.Publisher.PublishWithRetry(body, RoutingKey, "application/json", strategy)
}

// Consume forwards wake-up signals into out until the consumer stops.
func (q *WakeQueue) Consume(out chan<- WakeMessage, strategy retry.Strategy) error {
	msgChan := make(chan []byte)

	go func() {
		for m := range msgChan {
			var msg WakeMessage
			if err := json.Unmarshal(m, &msg); err != nil {
				zlog.Logger.Error().Err(err).Msg("failed to unmarshal message")
				continue
			}

			out <- msg
		}
	}()

	return q.Consumer.ConsumeWithRetry(msgChan, strategy)
}
