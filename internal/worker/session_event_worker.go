package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/Johnnas12/chatbot-ui-galaxy/internal/events"
	"github.com/Johnnas12/chatbot-ui-galaxy/internal/model"
	"github.com/Johnnas12/chatbot-ui-galaxy/internal/store"
)

// SessionEventWorker is the single consumer of the session change feed. It
// applies each event to the owning user's in-memory store and fans it out
// to live subscribers, keeping race handling in one place.
type SessionEventWorker struct {
	conn      *amqp.Connection
	registry  *store.Registry
	hub       *events.Hub
	queueName string
	logger    *zap.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewSessionEventWorker(
	conn *amqp.Connection,
	registry *store.Registry,
	hub *events.Hub,
	queueName string,
	logger *zap.Logger,
) *SessionEventWorker {
	return &SessionEventWorker{
		conn:      conn,
		registry:  registry,
		hub:       hub,
		queueName: queueName,
		logger:    logger,
	}
}

func (w *SessionEventWorker) Start(ctx context.Context) error {
	if w.cancel != nil {
		return nil
	}

	workerCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	ch, err := w.conn.Channel()
	if err != nil {
		cancel()
		return fmt.Errorf("open worker channel failed: %w", err)
	}

	_, err = ch.QueueDeclare(
		w.queueName,
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("declare worker queue failed: %w", err)
	}

	deliveries, err := ch.Consume(
		w.queueName,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("consume queue failed: %w", err)
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer ch.Close()

		for {
			select {
			case <-workerCtx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					return
				}

				var ev model.SessionEvent
				if err := json.Unmarshal(d.Body, &ev); err != nil {
					w.logger.Warn("decode session event failed", zap.Error(err))
					_ = d.Nack(false, false)
					continue
				}

				w.registry.ForUser(ev.UserID).Apply(ev)
				w.hub.Publish(ev)
				_ = d.Ack(false)
			}
		}
	}()

	return nil
}

func (w *SessionEventWorker) Close() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}
