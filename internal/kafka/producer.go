package kafka

import (
	"context"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer publishes to one topic from a buffered inbox drained by a single
// goroutine, so Publish never waits on the broker.
type Producer struct {
	w       messageWriter
	topic   string
	log     *zap.Logger
	timeout time.Duration

	mu      sync.RWMutex
	closed  bool
	inbox   chan kafka.Message
	closeCh chan struct{}
	once    sync.Once
}

func NewProducer(brokers []string, topic string, buf int, log *zap.Logger) *Producer {
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
	}
	return newProducer(w, topic, buf, log)
}

func newProducer(w messageWriter, topic string, buf int, log *zap.Logger) *Producer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Producer{
		w:       w,
		topic:   topic,
		log:     log.Named("producer").With(zap.String("topic", topic)),
		timeout: 10 * time.Second,
		inbox:   make(chan kafka.Message, buf),
		closeCh: make(chan struct{}),
	}
}

// Start runs the send loop until Close. Messages still buffered when ctx is
// cancelled are flushed before the writer closes.
func (p *Producer) Start(ctx context.Context) {
	go func() {
		defer close(p.closeCh)
		for m := range p.inbox {
			p.write(m)
		}
		if err := p.w.Close(); err != nil {
			p.log.Warn("writer close failed", zap.Error(err))
		}
	}()
	go func() {
		<-ctx.Done()
		p.Close()
	}()
}

func (p *Producer) write(m kafka.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()
	if err := p.w.WriteMessages(ctx, m); err != nil {
		p.log.Error("publish failed", zap.ByteString("key", m.Key), zap.Error(err))
	}
}

func (p *Producer) Publish(key, value []byte, headers ...kafka.Header) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		p.log.Warn("publish after close dropped", zap.ByteString("key", key))
		return
	}
	p.inbox <- kafka.Message{
		Key:     key,
		Value:   value,
		Time:    time.Now(),
		Headers: headers,
	}
}

// Tutup channel supaya goroutine nge-flush sisa pesan lalu exit rapi.
func (p *Producer) Close() {
	p.once.Do(func() {
		p.mu.Lock()
		p.closed = true
		close(p.inbox)
		p.mu.Unlock()
	})
}

// Tunggu sampai goroutine selesai.
func (p *Producer) WaitClosed() { <-p.closeCh }
