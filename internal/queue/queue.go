package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/OFFIS-RIT/crosscheck/internal/util"
	"github.com/OFFIS-RIT/crosscheck/pkg/logger"

	"github.com/rabbitmq/amqp091-go"
)

// AnswerAllQueue receives answer-all jobs. Replies go to the ReplyTo queue
// of each job.
const AnswerAllQueue = "answer_all_queue"

// URL returns the broker URL from RABBITMQ_URL or the RABBITMQ_USER,
// RABBITMQ_PASSWORD, RABBITMQ_HOST and RABBITMQ_PORT variables.
func URL() string {
	if u := util.GetEnv("RABBITMQ_URL"); u != "" {
		return u
	}
	return fmt.Sprintf(
		"amqp://%s:%s@%s:%s/",
		util.GetEnvString("RABBITMQ_USER", "guest"),
		util.GetEnvString("RABBITMQ_PASSWORD", "guest"),
		util.GetEnvString("RABBITMQ_HOST", "localhost"),
		util.GetEnvString("RABBITMQ_PORT", "5672"),
	)
}

// Init connects to the broker, retrying while it is starting up.
func Init(ctx context.Context) (*amqp091.Connection, error) {
	var conn *amqp091.Connection
	err := util.RetryErrWithContext(ctx, 10, time.Second, func(ctx context.Context) error {
		var err error
		conn, err = amqp091.Dial(URL())
		if err != nil {
			logger.Warn("[Queue] Failed to connect to RabbitMQ", "err", err)
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}
	return conn, nil
}

// SetupQueues declares every queue together with its dead letter queue and
// a retry queue that routes messages back after ten seconds.
func SetupQueues(ch *amqp091.Channel, queueNames []string) error {
	for _, name := range queueNames {
		_, err := ch.QueueDeclare(
			name,
			true,  // durable
			false, // autoDelete
			false, // exclusive
			false, // noWait
			nil,   // args
		)
		if err != nil {
			return fmt.Errorf("declare %s: %w", name, err)
		}

		dlqName := name + "_dlq"
		_, err = ch.QueueDeclare(
			dlqName,
			true,
			false,
			false,
			false,
			nil,
		)
		if err != nil {
			return fmt.Errorf("declare %s: %w", dlqName, err)
		}

		retryName := name + "_retry"
		_, err = ch.QueueDeclare(
			retryName,
			true,
			false,
			false,
			false,
			amqp091.Table{
				"x-message-ttl":             int32(10000),
				"x-dead-letter-exchange":    "",
				"x-dead-letter-routing-key": name,
			},
		)
		if err != nil {
			return fmt.Errorf("declare %s: %w", retryName, err)
		}
	}

	return nil
}

// Publisher is the publishing side of *amqp091.Channel.
type Publisher interface {
	PublishWithContext(
		ctx context.Context,
		exchange, key string,
		mandatory, immediate bool,
		msg amqp091.Publishing,
	) error
}

// PublishFIFO publishes data persistently to queueName.
func PublishFIFO(ctx context.Context, ch Publisher, queueName string, msg amqp091.Publishing) error {
	msg.DeliveryMode = amqp091.Persistent
	msg.Timestamp = time.Now()
	if msg.ContentType == "" {
		msg.ContentType = "application/json"
	}

	return ch.PublishWithContext(
		ctx,
		"",
		queueName,
		false,
		false,
		msg,
	)
}

// Reply sends body to the ReplyTo queue of d, tagged with its correlation id.
// Deliveries without ReplyTo are fire and forget and get no reply.
func Reply(ctx context.Context, ch Publisher, d amqp091.Delivery, body []byte) error {
	if d.ReplyTo == "" {
		return nil
	}
	return ch.PublishWithContext(
		ctx,
		"",
		d.ReplyTo,
		false,
		false,
		amqp091.Publishing{
			ContentType:   "application/json",
			CorrelationId: d.CorrelationId,
			Body:          body,
			Timestamp:     time.Now(),
		},
	)
}

// RetryOrDeadLetter republishes a failed delivery to the retry queue of
// queueName, or to its dead letter queue once it was retried maxRetries
// times. The original delivery is acked after a successful publish.
func RetryOrDeadLetter(ctx context.Context, ch Publisher, msg amqp091.Delivery, queueName string, maxRetries int) error {
	retries := 0
	if val, ok := msg.Headers["x-retries"]; ok {
		switch v := val.(type) {
		case int32:
			retries = int(v)
		case int64:
			retries = int(v)
		case int:
			retries = v
		}
	}

	target := queueName + "_retry"
	headers := amqp091.Table{}
	for k, v := range msg.Headers {
		headers[k] = v
	}
	if retries >= maxRetries {
		target = queueName + "_dlq"
		logger.Info("[Queue] Sending message to DLQ", "dlq", target)
	} else {
		headers["x-retries"] = int32(retries + 1)
	}

	err := ch.PublishWithContext(ctx, "", target, false, false, amqp091.Publishing{
		ContentType:   msg.ContentType,
		CorrelationId: msg.CorrelationId,
		ReplyTo:       msg.ReplyTo,
		Headers:       headers,
		Body:          msg.Body,
		DeliveryMode:  amqp091.Persistent,
	})
	if err != nil {
		logger.Error("[Queue] Failed to republish message", "queue", target, "err", err)
		return msg.Nack(false, true)
	}
	return msg.Ack(false)
}
