package mq

import (
	"context"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"stika/config"
)

const (
	// EventsExchange 领域事件交换机
	EventsExchange = "stika.events"

	// 队列与路由键
	PresenceQueue   = "stika.presence.events"
	PresenceRouting = "presence.*"
	SessionQueue    = "stika.session.closed"
	SessionRouting  = "session.closed"
	EarningsQueue   = "stika.earnings.calculated"
	EarningsRouting = "earnings.calculated"
	OutcomeQueue    = "stika.verification.outcome"
	OutcomeRouting  = "verification.outcome"
)

var (
	conn     *amqp.Connection
	connOnce sync.Once
	connErr  error
)

func Init() error {
	connOnce.Do(func() {
		url := config.Cfg.GetRabbitMQURL()
		conn, connErr = amqp.Dial(url)
		if connErr != nil {
			return
		}

		ch, err := conn.Channel()
		if err != nil {
			connErr = err
			return
		}
		defer ch.Close()

		connErr = declareTopology(ch)
	})

	return connErr
}

// declareTopology 声明交换机、队列与绑定，幂等
func declareTopology(ch *amqp.Channel) error {
	if err := ch.ExchangeDeclare(EventsExchange, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare exchange: %w", err)
	}

	bindings := []struct {
		queue   string
		routing string
	}{
		{PresenceQueue, PresenceRouting},
		{SessionQueue, SessionRouting},
		{EarningsQueue, EarningsRouting},
		{OutcomeQueue, OutcomeRouting},
	}

	for _, b := range bindings {
		if _, err := ch.QueueDeclare(b.queue, true, false, false, false, nil); err != nil {
			return fmt.Errorf("failed to declare queue %s: %w", b.queue, err)
		}
		if err := ch.QueueBind(b.queue, b.routing, EventsExchange, false, nil); err != nil {
			return fmt.Errorf("failed to bind queue %s: %w", b.queue, err)
		}
	}

	return nil
}

func Connection() *amqp.Connection {
	return conn
}

func Close(ctx context.Context) error {
	if conn == nil {
		return nil
	}

	done := make(chan error, 1)
	go func() {
		done <- conn.Close()
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		return err
	}
}
