// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package pubsub implements the best-effort Redpanda/Kafka event publisher
// described in spec §6: one writer per topic class, publish failures are
// logged and dropped, never block or fail ingestion.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/luxfi/runic/internal/domain"
)

const (
	topicSwaps     = "swaps"
	topicLiquidity = "liquidity"
	topicNewPools  = "new_pools"
)

// Publisher best-effort-publishes analytical rows to Redpanda, keyed by
// topic class so a slow consumer on one topic never backs up another.
type Publisher struct {
	prefix  string
	writers map[string]*kafka.Writer
	logger  *zap.Logger
}

// New constructs a Publisher for one chain's broker set, one kafka.Writer
// per topic class, named "<prefix>.<chain_id>.<class>" per spec §6.
func New(chainID uint64, brokers []string, topicPrefix string, logger *zap.Logger) *Publisher {
	p := &Publisher{prefix: topicPrefix, logger: logger, writers: make(map[string]*kafka.Writer)}
	for _, topic := range []string{topicSwaps, topicLiquidity, topicNewPools} {
		p.writers[topic] = &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        fmt.Sprintf("%s.%d.%s", topicPrefix, chainID, topic),
			Balancer:     &kafka.LeastBytes{},
			Async:        true,
			RequiredAcks: kafka.RequireOne,
		}
	}
	return p
}

// Close flushes and closes every writer.
func (p *Publisher) Close() error {
	var firstErr error
	for _, w := range p.writers {
		if err := w.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// PublishEvent best-effort-publishes a swap/mint/burn/collect/
// modify_liquidity row to its topic class.
func (p *Publisher) PublishEvent(ctx context.Context, ev *domain.Event) {
	topic := topicLiquidity
	if ev.EventType == domain.EventSwap {
		topic = topicSwaps
	}
	p.publish(ctx, topic, ev.TxHash.Bytes(), ev)
}

// PublishNewPool best-effort-publishes a pool-discovery row.
func (p *Publisher) PublishNewPool(ctx context.Context, np *domain.NewPoolRecord) {
	p.publish(ctx, topicNewPools, np.TxHash.Bytes(), np)
}

func (p *Publisher) publish(ctx context.Context, topic string, key []byte, v interface{}) {
	w, ok := p.writers[topic]
	if !ok {
		return
	}
	payload, err := json.Marshal(v)
	if err != nil {
		p.logger.Warn("failed to marshal pubsub payload", zap.String("topic", topic), zap.Error(err))
		return
	}
	if err := w.WriteMessages(ctx, kafka.Message{Key: key, Value: payload}); err != nil {
		p.logger.Warn("failed to publish message, dropping", zap.String("topic", topic), zap.Error(err))
	}
}
