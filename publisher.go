package main

import (
	"encoding/json"
	"log/slog"

	"github.com/streadway/amqp"
)

// Notification is sent when a user nears or exceeds their weekly spending
// limit. A separate consumer turns these into emails or pushes.
type Notification struct {
	UserID            int64  `json:"user_id"`
	Message           string `json:"message"`
	CurrentCentsSpent int64  `json:"current_cents_spent"`
	LimitCents        int64  `json:"limit_cents"`
}

type NotificationPublisher interface {
	Publish(notification Notification) error
}

// RabbitMQPublisher publishes notifications to a durable RabbitMQ queue.
type RabbitMQPublisher struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	queue   amqp.Queue
	logger  *slog.Logger
}

func NewRabbitMQPublisher(rabbitMQURL string, logger *slog.Logger) (*RabbitMQPublisher, error) {
	conn, err := amqp.Dial(rabbitMQURL)
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}

	queue, err := ch.QueueDeclare(
		"expense_notifications",
		true,  // durable, survives broker restarts
		false, // no auto-delete
		false, // not exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}

	return &RabbitMQPublisher{
		conn:    conn,
		channel: ch,
		queue:   queue,
		logger:  logger,
	}, nil
}

func (p *RabbitMQPublisher) Publish(notification Notification) error {
	body, err := json.Marshal(notification)
	if err != nil {
		return err
	}

	err = p.channel.Publish(
		"",           // default exchange routes directly to the queue
		p.queue.Name, // routing key
		false,
		false,
		amqp.Publishing{
			ContentType: "application/json",
			Body:        body,
		},
	)
	if err != nil {
		return err
	}

	p.logger.Info("notification published", "user_id", notification.UserID)
	return nil
}

func (p *RabbitMQPublisher) Close() {
	p.channel.Close()
	p.conn.Close()
}

// LogPublisher is used when no broker is configured; notifications end up in
// the server log instead of a queue.
type LogPublisher struct {
	logger *slog.Logger
}

func (p *LogPublisher) Publish(notification Notification) error {
	p.logger.Info("spending limit notification",
		"user_id", notification.UserID,
		"message", notification.Message,
		"current_cents_spent", notification.CurrentCentsSpent,
		"limit_cents", notification.LimitCents,
	)
	return nil
}
