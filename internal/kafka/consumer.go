package kafka

import (
	"context"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Handler harus return nil hanya jika proses sukses & boleh commit offset.
type Handler func(ctx context.Context, m kafka.Message) error

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Consumer struct {
	r       messageReader
	workers int
	backoff time.Duration
	log     *zap.Logger
}

func NewConsumer(brokers []string, group, topic string, workers int, log *zap.Logger) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		GroupID:        group,
		Topic:          topic,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0, // manual commit
	})
	if log == nil {
		log = zap.NewNop()
	}
	return newConsumer(r, workers, log.Named("consumer").With(zap.String("topic", topic), zap.String("group", group)))
}

func newConsumer(r messageReader, workers int, log *zap.Logger) *Consumer {
	if workers <= 0 {
		workers = 1
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Consumer{r: r, workers: workers, backoff: 200 * time.Millisecond, log: log}
}

// Start dispatches fetched messages to the worker pool until ctx is done.
// A message is committed only after its handler succeeded; failed messages
// stay uncommitted and come back after a rebalance or restart.
func (c *Consumer) Start(ctx context.Context, h Handler) error {
	defer c.r.Close()

	jobs := make(chan kafka.Message, 1024)
	errs := make(chan error, c.workers)
	done := make(chan struct{})

	// workers
	for i := 0; i < c.workers; i++ {
		go func(id int) {
			defer func() { done <- struct{}{} }()
			for m := range jobs {
				if err := h(ctx, m); err != nil {
					c.log.Warn("handler failed",
						zap.Int("worker", id), zap.Int64("offset", m.Offset), zap.Int("partition", m.Partition), zap.Error(err))
					select {
					case errs <- err:
					default:
					}
					continue
				}
				// commit on success
				if err := c.r.CommitMessages(ctx, m); err != nil && ctx.Err() == nil {
					c.log.Error("commit failed", zap.Int64("offset", m.Offset), zap.Error(err))
				}
			}
		}(i)
	}
	wait := func() {
		close(jobs)
		for i := 0; i < c.workers; i++ {
			<-done
		}
	}

	// dispatcher loop
	for {
		m, err := c.r.FetchMessage(ctx)
		if err != nil {
			wait()
			// kecilkan noise saat shutdown
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		select {
		case jobs <- m:
		case <-ctx.Done():
			wait()
			return nil
		}

		// non-blocking drain error agar tidak deadlock
		select {
		case <-errs:
			time.Sleep(c.backoff) // backoff ringan
		default:
		}
	}
}
