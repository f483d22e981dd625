package rabbitmq

import (
	"context"
	"encoding/json"
	"log"

	amqp "github.com/rabbitmq/amqp091-go"

	"drill-evaluator/internal/domain/entity"
)

// JobHandler processes one delivered evaluation request to a terminal state.
type JobHandler interface {
	Handle(ctx context.Context, job entity.EvaluationRequest) error
}

// Consumer pulls evaluation jobs one at a time. Prefetch stays at 1 so
// downstream LLM and transcription rate use is predictable; an unacked
// delivery is redelivered if the worker dies mid-job.
type Consumer struct {
	channel     *amqp.Channel
	exchange    string
	routingKey  string
	queue       string
	handler     JobHandler
	prefetchCnt int
}

func NewConsumer(conn *amqp.Connection, exchange, routingKey, queue string, handler JobHandler) (*Consumer, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, err
	}

	consumer := &Consumer{
		channel:     ch,
		exchange:    exchange,
		routingKey:  routingKey,
		queue:       queue,
		handler:     handler,
		prefetchCnt: 1,
	}

	_, err = ch.QueueDeclare(
		queue,
		true, // durable
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return nil, err
	}

	if err := ch.QueueBind(
		queue,
		routingKey,
		exchange,
		false,
		nil,
	); err != nil {
		return nil, err
	}

	if err := ch.Qos(consumer.prefetchCnt, 0, false); err != nil {
		return nil, err
	}

	return consumer, nil
}

func (c *Consumer) Start(ctx context.Context) error {
	msgs, err := c.channel.Consume(
		c.queue,
		"",
		false, // manual ack
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			log.Println("evaluation consumer shutting down")
			return nil
		case msg, ok := <-msgs:
			if !ok {
				log.Println("rabbitmq channel closed")
				return nil
			}

			var job entity.EvaluationRequest
			if err := json.Unmarshal(msg.Body, &job); err != nil {
				log.Println("failed to unmarshal evaluation job:", err)
				msg.Nack(false, false)
				continue
			}

			// The handler owns the retry budget and always reaches a
			// terminal state, so the delivery is acked either way.
			if err := c.handler.Handle(ctx, job); err != nil {
				log.Printf("job %s failed terminally: %v\n", job.RequestID, err)
			}
			msg.Ack(false)
		}
	}
}
