// Package amqp publishes pipeline events to RabbitMQ and feeds the alert
// worker. Publishing is best-effort: ingestion never fails because the broker
// is down.
package amqp

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/rabbitmq/amqp091-go"
)

type Client struct {
	conn         *amqp091.Connection
	channel      *amqp091.Channel
	exchangeName string
}

func NewClient(url, exchangeName string) (*Client, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial AMQP: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	client := &Client{
		conn:         conn,
		channel:      channel,
		exchangeName: exchangeName,
	}

	if err := client.setup(); err != nil {
		client.Close()
		return nil, fmt.Errorf("setup exchange and queues: %w", err)
	}

	return client, nil
}

func (c *Client) setup() error {
	err := c.channel.ExchangeDeclare(
		c.exchangeName, // name
		"direct",       // type
		true,           // durable
		false,          // auto-deleted
		false,          // internal
		false,          // no-wait
		nil,            // arguments
	)
	if err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}

	// One durable queue per routing key, bound with the key as its name.
	for _, key := range []string{RoutingKeyQuarantineAlert, RoutingKeyIngestCompleted} {
		_, err = c.channel.QueueDeclare(
			key,   // name
			true,  // durable
			false, // delete when unused
			false, // exclusive
			false, // no-wait
			nil,   // arguments
		)
		if err != nil {
			return fmt.Errorf("declare queue %s: %w", key, err)
		}

		if err := c.channel.QueueBind(key, key, c.exchangeName, false, nil); err != nil {
			return fmt.Errorf("bind queue %s: %w", key, err)
		}
	}

	return nil
}

func (c *Client) publish(ctx context.Context, routingKey string, body []byte) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err := c.channel.PublishWithContext(
		ctx,
		c.exchangeName, // exchange
		routingKey,     // routing key
		false,          // mandatory
		false,          // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("publish to %s: %w", routingKey, err)
	}
	return nil
}

// PublishQuarantineAlert publishes a quarantine alert. A nil client is a
// no-op so callers can run without a broker configured.
func (c *Client) PublishQuarantineAlert(ctx context.Context, msg *QuarantineAlertMessage) error {
	if c == nil {
		return nil
	}
	body, err := msg.ToJSON()
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	if err := c.publish(ctx, RoutingKeyQuarantineAlert, body); err != nil {
		return err
	}

	slog.InfoContext(ctx, "Published quarantine alert",
		"source", msg.Source,
		"quarantined", msg.Quarantined,
		"exchange", c.exchangeName)
	return nil
}

// PublishIngestCompleted publishes an ingestion summary. Nil client is a no-op.
func (c *Client) PublishIngestCompleted(ctx context.Context, msg *IngestCompletedMessage) error {
	if c == nil {
		return nil
	}
	body, err := msg.ToJSON()
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	if err := c.publish(ctx, RoutingKeyIngestCompleted, body); err != nil {
		return err
	}

	slog.InfoContext(ctx, "Published ingest summary",
		"source", msg.Source,
		"accepted", msg.Accepted,
		"exchange", c.exchangeName)
	return nil
}

// ConsumeQuarantineAlerts consumes quarantine alerts until the context is
// canceled. Messages are acked on successful handling, requeued on handler
// error, and dropped when they cannot be decoded.
func (c *Client) ConsumeQuarantineAlerts(ctx context.Context, handler func(*QuarantineAlertMessage) error) error {
	msgs, err := c.channel.Consume(
		RoutingKeyQuarantineAlert, // queue
		"",                        // consumer
		false,                     // auto-ack (we want manual ack)
		false,                     // exclusive
		false,                     // no-local
		false,                     // no-wait
		nil,                       // args
	)
	if err != nil {
		return fmt.Errorf("start consuming: %w", err)
	}

	slog.InfoContext(ctx, "Started consuming quarantine alerts", "queue", RoutingKeyQuarantineAlert)

	for {
		select {
		case <-ctx.Done():
			slog.InfoContext(ctx, "Stopping message consumption", "reason", ctx.Err())
			return ctx.Err()
		case delivery, ok := <-msgs:
			if !ok {
				return fmt.Errorf("message channel closed")
			}

			msg, err := QuarantineAlertMessageFromJSON(delivery.Body)
			if err != nil {
				slog.ErrorContext(ctx, "Failed to unmarshal message", "error", err)
				delivery.Nack(false, false) // reject and don't requeue
				continue
			}

			if err := handler(msg); err != nil {
				slog.ErrorContext(ctx, "Failed to handle message",
					"error", err,
					"source", msg.Source)
				delivery.Nack(false, true) // reject and requeue
				continue
			}

			delivery.Ack(false)
		}
	}
}

func (c *Client) Close() error {
	if c == nil {
		return nil
	}
	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
