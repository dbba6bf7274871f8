package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/OFFIS-RIT/crosscheck/internal/app"
	"github.com/OFFIS-RIT/crosscheck/internal/config"
	"github.com/OFFIS-RIT/crosscheck/internal/queue"
	"github.com/OFFIS-RIT/crosscheck/internal/util"
	"github.com/OFFIS-RIT/crosscheck/pkg/logger"
	"github.com/OFFIS-RIT/crosscheck/pkg/logger/console"
)

const maxRetries = 10

func main() {
	util.LoadEnv()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	consoleLogger := console.NewConsoleLogger(console.ConsoleLoggerParams{
		Debug: util.GetEnvBool("DEBUG", false),
		JSON:  util.GetEnvString("LOG_FORMAT", "text") == "json",
	})
	logger.Init(consoleLogger)

	cfg, err := config.LoadFromEnv()
	if err != nil {
		logger.Fatal("[Worker] Failed to load config", "err", err)
	}
	logger.Info("[Worker] Loaded config", "config", cfg.String())

	a, err := app.New(ctx, cfg)
	if err != nil {
		logger.Fatal("[Worker] Failed to build pipeline", "err", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := a.Close(closeCtx); err != nil {
			logger.Error("[Worker] Failed to close app", "err", err)
		}
	}()

	conn, err := queue.Init(ctx)
	if err != nil {
		logger.Fatal("[Worker] Failed to connect to RabbitMQ", "err", err)
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		logger.Fatal("[Worker] Failed to open channel", "err", err)
	}
	defer ch.Close()

	if err := queue.SetupQueues(ch, []string{queue.AnswerAllQueue}); err != nil {
		logger.Fatal("[Worker] Failed to declare queues", "err", err)
	}

	// One unacked message at a time; jobs fan out to every backend already.
	if err := ch.Qos(1, 0, false); err != nil {
		logger.Fatal("[Worker] Failed to set QoS", "err", err)
	}

	msgs, err := ch.Consume(
		queue.AnswerAllQueue,
		queue.AnswerAllQueue+"_consumer",
		false, // autoAck
		false, // exclusive
		false, // noLocal
		false, // noWait
		nil,   // args
	)
	if err != nil {
		logger.Fatal("[Worker] Failed to start consuming", "queue", queue.AnswerAllQueue, "err", err)
	}

	logger.Info("[Worker] Listening for messages", "queue", queue.AnswerAllQueue)

	for {
		select {
		case <-ctx.Done():
			logger.Info("[Worker] Shutdown signal received, exiting...")
			return
		case msg, ok := <-msgs:
			if !ok {
				logger.Info("[Worker] Message channel closed", "queue", queue.AnswerAllQueue)
				return
			}

			start := time.Now()
			logger.Info("[Worker] Received message", "correlation_id", msg.CorrelationId)

			if err := queue.HandleAnswerAll(ctx, a.Pipeline, ch, msg); err != nil {
				logger.Error("[Worker] Error processing message", "correlation_id", msg.CorrelationId, "err", err)
				if err := queue.RetryOrDeadLetter(ctx, ch, msg, queue.AnswerAllQueue, maxRetries); err != nil {
					logger.Error("[Worker] Failed to settle message", "err", err)
				}
				continue
			}

			if err := msg.Ack(false); err != nil {
				logger.Error("[Worker] Failed to ack message", "err", err)
			}
			logger.Info("[Worker] Message processed", "duration", time.Since(start).Round(time.Millisecond).String())
		}
	}
}
