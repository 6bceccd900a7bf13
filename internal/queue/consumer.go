package queue

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Consumer consumes batch jobs from the RabbitMQ queue
type Consumer struct {
	conn      *Connection
	queueName string
	handler   BatchJobHandler
	stopChan  chan struct{}
	doneChan  chan struct{}
}

// BatchJobHandler processes one batch job. A returned error is logged and
// the delivery is acknowledged anyway: batch finalization is idempotent and
// the batch row records the terminal outcome, so redelivering a job that
// already ran would be a no-op at best.
type BatchJobHandler func(job *BatchJob) error

// NewConsumer creates a new consumer and declares the queue.
func NewConsumer(conn *Connection, queueName string, handler BatchJobHandler) (*Consumer, error) {
	if conn == nil {
		return nil, errors.New("connection cannot be nil")
	}
	if queueName == "" {
		return nil, errors.New("queue name cannot be empty")
	}
	if handler == nil {
		return nil, errors.New("handler cannot be nil")
	}

	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to get channel: %w", err)
	}

	// Same settings as the publisher: durable, non-auto-delete.
	_, err = ch.QueueDeclare(
		queueName,
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return nil, fmt.Errorf("failed to declare queue: %w", err)
	}

	return &Consumer{
		conn:      conn,
		queueName: queueName,
		handler:   handler,
		stopChan:  make(chan struct{}),
		doneChan:  make(chan struct{}),
	}, nil
}

// Start starts consuming batch jobs from the queue.
func (c *Consumer) Start() error {
	ch, err := c.conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to get channel: %w", err)
	}

	// One batch at a time: a batch can be thousands of dispatches, so
	// prefetching more only delays other workers.
	err = ch.Qos(
		1,     // prefetch count
		0,     // prefetch size
		false, // global
	)
	if err != nil {
		return fmt.Errorf("failed to set QoS: %w", err)
	}

	msgs, err := ch.Consume(
		c.queueName,
		"",    // consumer tag (auto-generated)
		false, // auto-ack (manual acknowledgement)
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,   // args
	)
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	go func() {
		defer close(c.doneChan)

		for {
			select {
			case <-c.stopChan:
				log.Println("Consumer stopping...")
				return
			case d, ok := <-msgs:
				if !ok {
					log.Println("Delivery channel closed")
					return
				}

				if err := c.processDelivery(d); err != nil {
					log.Printf("Error processing batch job: %v", err)
				}
				d.Ack(false)
			}
		}
	}()

	log.Printf("Consumer started, listening on queue: %s", c.queueName)
	return nil
}

// Stop stops consuming messages gracefully
func (c *Consumer) Stop() error {
	close(c.stopChan)
	<-c.doneChan

	log.Println("Consumer stopped")
	return nil
}

func (c *Consumer) processDelivery(d amqp.Delivery) error {
	var job BatchJob
	if err := json.Unmarshal(d.Body, &job); err != nil {
		return fmt.Errorf("failed to unmarshal batch job: %w", err)
	}

	if err := c.handler(&job); err != nil {
		return fmt.Errorf("handler failed for batch %s: %w", job.BatchID, err)
	}

	return nil
}
