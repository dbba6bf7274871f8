package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/OFFIS-RIT/crosscheck/pkg/common"
	"github.com/OFFIS-RIT/crosscheck/pkg/logger"
	"github.com/OFFIS-RIT/crosscheck/pkg/pipeline"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rabbitmq/amqp091-go"
)

// AnswerAllJob is the message body of an answer-all request. Either Text or
// Source must be set.
type AnswerAllJob struct {
	Text     string   `json:"text,omitempty"`
	Source   string   `json:"source,omitempty"`
	Question string   `json:"question"`
	Backends []string `json:"backends,omitempty"`
	Evidence bool     `json:"evidence,omitempty"`
}

// AnswerAllReply is published to the ReplyTo queue of a job. Exactly one of
// Result and Error is set.
type AnswerAllReply struct {
	Result *pipeline.Consensus `json:"result,omitempty"`
	Error  string              `json:"error,omitempty"`
}

// Answerer is the part of the pipeline the worker needs.
type Answerer interface {
	Load(ctx context.Context, source string) (common.Document, error)
	AnswerAll(ctx context.Context, doc common.Document, question string, opts pipeline.AnswerAllOptions) (pipeline.Consensus, error)
}

// permanent reports whether retrying a job cannot change its outcome.
func permanent(err error) bool {
	return errors.Is(err, common.ErrInvalidConfiguration) ||
		errors.Is(err, common.ErrSourceNotFound) ||
		errors.Is(err, common.ErrSourceForbidden)
}

// RunAnswerAll decodes body and runs the job against p.
func RunAnswerAll(ctx context.Context, p Answerer, body []byte) (pipeline.Consensus, error) {
	var job AnswerAllJob
	if err := json.Unmarshal(body, &job); err != nil {
		return pipeline.Consensus{}, common.InvalidConfiguration("decode job: %v", err)
	}

	var doc common.Document
	switch {
	case strings.TrimSpace(job.Text) != "":
		doc = common.Document{Source: job.Source, Text: job.Text}
	case strings.TrimSpace(job.Source) != "":
		var err error
		doc, err = p.Load(ctx, job.Source)
		if err != nil {
			return pipeline.Consensus{}, err
		}
	default:
		return pipeline.Consensus{}, common.InvalidConfiguration("either text or source is required")
	}

	opts := pipeline.AnswerAllOptions{WithEvidence: job.Evidence}
	for _, b := range job.Backends {
		opts.Backends = append(opts.Backends, common.BackendID(b))
	}
	return p.AnswerAll(ctx, doc, job.Question, opts)
}

// HandleAnswerAll runs the job in msg and replies to its ReplyTo queue.
// Jobs that fail permanently are answered with an error reply. Any other
// error is returned without a reply so the caller can retry the message.
func HandleAnswerAll(ctx context.Context, p Answerer, ch Publisher, msg amqp091.Delivery) error {
	res, err := RunAnswerAll(ctx, p, msg.Body)

	var reply AnswerAllReply
	switch {
	case err == nil:
		reply.Result = &res
		logger.Info("[Queue] answer-all job finished",
			"correlation_id", msg.CorrelationId, "request_id", res.RequestID, "degraded", res.Degraded)
	case permanent(err):
		reply.Error = err.Error()
		logger.Warn("[Queue] answer-all job rejected", "correlation_id", msg.CorrelationId, "err", err)
	default:
		return err
	}

	body, err := json.Marshal(reply)
	if err != nil {
		return fmt.Errorf("encode reply: %w", err)
	}
	if err := Reply(ctx, ch, msg, body); err != nil {
		return fmt.Errorf("publish reply: %w", err)
	}
	return nil
}

// CallAnswerAll publishes job to AnswerAllQueue and waits for the reply on
// an exclusive reply queue.
func CallAnswerAll(ctx context.Context, ch *amqp091.Channel, job AnswerAllJob) (pipeline.Consensus, error) {
	q, err := ch.QueueDeclare(
		"",    // name
		false, // durable
		true,  // autoDelete
		true,  // exclusive
		false, // noWait
		nil,
	)
	if err != nil {
		return pipeline.Consensus{}, fmt.Errorf("declare reply queue: %w", err)
	}

	msgs, err := ch.Consume(q.Name, "", true, true, false, false, nil)
	if err != nil {
		return pipeline.Consensus{}, fmt.Errorf("consume reply queue: %w", err)
	}

	body, err := json.Marshal(job)
	if err != nil {
		return pipeline.Consensus{}, err
	}

	corrID, err := gonanoid.New()
	if err != nil {
		return pipeline.Consensus{}, err
	}

	err = PublishFIFO(ctx, ch, AnswerAllQueue, amqp091.Publishing{
		CorrelationId: corrID,
		ReplyTo:       q.Name,
		Body:          body,
	})
	if err != nil {
		return pipeline.Consensus{}, fmt.Errorf("publish job: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return pipeline.Consensus{}, ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return pipeline.Consensus{}, fmt.Errorf("reply queue closed")
			}
			if d.CorrelationId != corrID {
				continue
			}
			return decodeReply(d.Body)
		}
	}
}

func decodeReply(body []byte) (pipeline.Consensus, error) {
	var reply AnswerAllReply
	if err := json.Unmarshal(body, &reply); err != nil {
		return pipeline.Consensus{}, fmt.Errorf("decode reply: %w", err)
	}
	if reply.Error != "" {
		return pipeline.Consensus{}, errors.New(reply.Error)
	}
	if reply.Result == nil {
		return pipeline.Consensus{}, fmt.Errorf("empty reply")
	}
	return *reply.Result, nil
}
