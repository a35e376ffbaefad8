// ABOUTME: NATS JetStream adapter for the mention queue.
// ABOUTME: Explicit acks; handler errors nak so the message is redelivered.

package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

const streamName = "BOTSTER"

// Queue is the JetStream-backed mention source.
type Queue struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	logger *slog.Logger
}

// Connect establishes the NATS connection and ensures the stream covers
// the mention subject.
func Connect(ctx context.Context, url, subject string, logger *slog.Logger) (*Queue, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "queue")

	nc, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream init: %w", err)
	}

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     streamName,
		Subjects: []string{streamRoot(subject) + ".>"},
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream stream create: %w", err)
	}

	logger.Info("queue connected", "url", url, "subject", subject)
	return &Queue{nc: nc, js: js, logger: logger}, nil
}

// streamRoot returns the first token of a subject, the coarsest pattern
// the stream has to capture.
func streamRoot(subject string) string {
	if i := strings.IndexByte(subject, '.'); i > 0 {
		return subject[:i]
	}
	return subject
}

// Subscribe consumes the subject through the given consumer. Returns a
// stop function.
func (q *Queue) Subscribe(ctx context.Context, subject string, consumer *Consumer) (func(), error) {
	jsc, err := q.js.CreateOrUpdateConsumer(ctx, streamName, jetstream.ConsumerConfig{
		FilterSubject: subject,
		AckPolicy:     jetstream.AckExplicitPolicy,
	})
	if err != nil {
		return nil, fmt.Errorf("jetstream consumer create: %w", err)
	}

	cons, err := jsc.Consume(func(msg jetstream.Msg) {
		if err := consumer.Handle(ctx, msg.Data()); err != nil {
			if nakErr := msg.Nak(); nakErr != nil {
				q.logger.Error("nats nak failed", "error", nakErr)
			}
			return
		}
		if ackErr := msg.Ack(); ackErr != nil {
			q.logger.Error("nats ack failed", "error", ackErr)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("jetstream consume: %w", err)
	}

	return cons.Stop, nil
}

// Close shuts the NATS connection down.
func (q *Queue) Close() error {
	q.nc.Close()
	return nil
}
