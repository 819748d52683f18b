// Package producer is the franz-go client the mint events are written through.
package producer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
)

// ErrClosed is returned by Produce after Close.
var ErrClosed = errors.New("producer is closed")

const (
	defaultClientID       = "mintgate"
	defaultProduceTimeout = 5 * time.Second
	flushTimeout          = 10 * time.Second
)

// Message is one record to publish. A zero Timestamp lets the client stamp it.
type Message struct {
	Topic     string
	Key       []byte
	Value     []byte
	Headers   map[string]string
	Timestamp time.Time
}

// Config holds producer configuration.
type Config struct {
	Brokers  string
	ClientID string
	// Acks is "0", "1" or anything else for all in-sync replicas.
	Acks            string
	Retries         int
	DeliveryTimeout time.Duration
	// ProduceTimeout bounds one Produce call, so events published after an
	// admission commits cannot hold the HTTP response on a stalled broker.
	ProduceTimeout time.Duration
}

// Producer publishes records synchronously. It is safe for concurrent use.
type Producer struct {
	client         *kgo.Client
	logger         *slog.Logger
	produceTimeout time.Duration

	mu     sync.RWMutex
	closed bool
}

func New(cfg Config, logger *slog.Logger) (*Producer, error) {
	if cfg.Brokers == "" {
		return nil, errors.New("kafka brokers not configured")
	}
	if logger == nil {
		logger = slog.Default()
	}
	clientID := cfg.ClientID
	if clientID == "" {
		clientID = defaultClientID
	}

	acks := parseAcks(cfg.Acks)
	opts := []kgo.Opt{
		kgo.SeedBrokers(splitBrokers(cfg.Brokers)...),
		kgo.ClientID(clientID),
		kgo.RequiredAcks(acks),
		kgo.RecordRetries(cfg.Retries),
		kgo.ProducerLinger(5 * time.Millisecond),
		kgo.AllowAutoTopicCreation(),
	}
	if acks != kgo.AllISRAcks() {
		// Idempotent writes require acks=all.
		opts = append(opts, kgo.DisableIdempotentWrite())
	}
	if cfg.DeliveryTimeout > 0 {
		opts = append(opts, kgo.RecordDeliveryTimeout(cfg.DeliveryTimeout))
	}

	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}

	timeout := cfg.ProduceTimeout
	if timeout <= 0 {
		timeout = defaultProduceTimeout
	}
	return &Producer{client: client, logger: logger, produceTimeout: timeout}, nil
}

func parseAcks(s string) kgo.Acks {
	switch s {
	case "0":
		return kgo.NoAck()
	case "1":
		return kgo.LeaderAck()
	default:
		return kgo.AllISRAcks()
	}
}

func splitBrokers(s string) []string {
	var brokers []string
	for b := range strings.SplitSeq(s, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

// Produce sends msg and waits for the broker ack or the produce timeout.
func (p *Producer) Produce(ctx context.Context, msg *Message) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}

	ctx, cancel := context.WithTimeout(ctx, p.produceTimeout)
	defer cancel()
	if err := p.client.ProduceSync(ctx, toRecord(msg)).FirstErr(); err != nil {
		return fmt.Errorf("produce to %s: %w", msg.Topic, err)
	}
	return nil
}

// toRecord converts msg, ordering headers by key so identical messages
// produce identical records.
func toRecord(msg *Message) *kgo.Record {
	keys := make([]string, 0, len(msg.Headers))
	for k := range msg.Headers {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	headers := make([]kgo.RecordHeader, 0, len(keys))
	for _, k := range keys {
		headers = append(headers, kgo.RecordHeader{Key: k, Value: []byte(msg.Headers[k])})
	}
	return &kgo.Record{
		Topic:     msg.Topic,
		Key:       msg.Key,
		Value:     msg.Value,
		Headers:   headers,
		Timestamp: msg.Timestamp,
	}
}

// Healthy reports whether a broker answers.
func (p *Producer) Healthy(ctx context.Context) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return false
	}
	return p.client.Ping(ctx) == nil
}

// Close flushes buffered records and shuts the client down. Safe to call twice.
func (p *Producer) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()
	if err := p.client.Flush(ctx); err != nil {
		p.logger.Warn("kafka producer closed with unflushed events", "error", err)
	}
	p.client.Close()
	return nil
}
