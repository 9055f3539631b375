package broadcaster

import (
	"context"
	"log/slog"
	"time"

	"github.com/IBM/sarama"

	"janus/infra/wal/outbox"
)

// Broadcaster drains the durable outbox to Kafka. Delivery is at least
// once: an entry is marked SENT before publish and ACKED after, so a
// crash between the two replays it on the next scan. Consumers must
// dedupe on trade ID.
type Broadcaster struct {
	out             *outbox.Outbox
	producer        sarama.SyncProducer
	fillTopic       string
	settlementTopic string
	interval        time.Duration
	maxRetries      uint32
	log             *slog.Logger
}

type Config struct {
	Brokers         []string
	FillTopic       string
	SettlementTopic string
	Interval        time.Duration
	MaxRetries      uint32
}

func New(out *outbox.Outbox, cfg Config, log *slog.Logger) (*Broadcaster, error) {
	sc := sarama.NewConfig()
	sc.Producer.Return.Successes = true
	sc.Producer.RequiredAcks = sarama.WaitForAll
	sc.Producer.Retry.Max = 5

	producer, err := sarama.NewSyncProducer(cfg.Brokers, sc)
	if err != nil {
		return nil, err
	}

	if cfg.Interval <= 0 {
		cfg.Interval = 250 * time.Millisecond
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 10
	}
	if log == nil {
		log = slog.Default()
	}
	return &Broadcaster{
		out:             out,
		producer:        producer,
		fillTopic:       cfg.FillTopic,
		settlementTopic: cfg.SettlementTopic,
		interval:        cfg.Interval,
		maxRetries:      cfg.MaxRetries,
		log:             log,
	}, nil
}

func (b *Broadcaster) Start(ctx context.Context) {
	b.log.Info("broadcaster started",
		slog.String("fill_topic", b.fillTopic),
		slog.String("settlement_topic", b.settlementTopic))

	go func() {
		ticker := time.NewTicker(b.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				b.drainOnce()
				b.resendStuck()
			}
		}
	}()
}

// drainOnce publishes every NEW entry in key order.
func (b *Broadcaster) drainOnce() {
	_ = b.out.ScanState(outbox.StateNew, func(kind outbox.Kind, id uint64, e outbox.Entry) error {
		b.publish(kind, id, e)
		return nil
	})
}

// resendStuck replays SENT entries: a crash after SENT but before the
// broker ack leaves them here, and so does a lost ack.
func (b *Broadcaster) resendStuck() {
	cutoff := time.Now().Add(-5 * time.Second).UnixNano()
	_ = b.out.ScanState(outbox.StateSent, func(kind outbox.Kind, id uint64, e outbox.Entry) error {
		if e.LastAttempt > cutoff {
			return nil // still in flight
		}
		if e.Retries >= b.maxRetries {
			_ = b.out.UpdateState(kind, id, outbox.StateFailed, e.Retries)
			b.log.Error("outbox entry failed permanently",
				slog.Uint64("id", id), slog.String("kind", topicName(kind)))
			return nil
		}
		b.publish(kind, id, e)
		return nil
	})
}

func (b *Broadcaster) publish(kind outbox.Kind, id uint64, e outbox.Entry) {
	if err := b.out.UpdateState(kind, id, outbox.StateSent, e.Retries+1); err != nil {
		return
	}

	topic := b.fillTopic
	if kind == outbox.KindSettlement {
		topic = b.settlementTopic
	}
	msg := &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(topicName(kind)),
		Value: sarama.ByteEncoder(e.Payload),
	}
	if _, _, err := b.producer.SendMessage(msg); err != nil {
		return // retried on a later scan
	}

	_ = b.out.UpdateState(kind, id, outbox.StateAcked, e.Retries+1)
}

// Compact deletes ACKED entries. Run occasionally; pebble handles the
// rest.
func (b *Broadcaster) Compact() {
	_ = b.out.ScanState(outbox.StateAcked, func(kind outbox.Kind, id uint64, e outbox.Entry) error {
		return b.out.Delete(kind, id)
	})
}

func (b *Broadcaster) Close() error {
	return b.producer.Close()
}

func topicName(kind outbox.Kind) string {
	if kind == outbox.KindSettlement {
		return "settlement"
	}
	return "fill"
}
