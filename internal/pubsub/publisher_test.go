// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package pubsub

import (
	"testing"

	"go.uber.org/zap"
)

func TestNewNamesTopicsByPrefixChainAndClass(t *testing.T) {
	p := New(137, []string{"localhost:9092"}, "runic", zap.NewNop())
	defer p.Close()

	want := map[string]string{
		topicSwaps:     "runic.137.swaps",
		topicLiquidity: "runic.137.liquidity",
		topicNewPools:  "runic.137.new_pools",
	}
	for class, wantTopic := range want {
		w, ok := p.writers[class]
		if !ok {
			t.Fatalf("missing writer for topic class %q", class)
		}
		if w.Topic != wantTopic {
			t.Errorf("writer[%q].Topic = %q, want %q", class, w.Topic, wantTopic)
		}
	}
}

func TestNewBuildsOneWriterPerTopicClass(t *testing.T) {
	p := New(1, []string{"localhost:9092"}, "runic", zap.NewNop())
	defer p.Close()

	if len(p.writers) != 3 {
		t.Errorf("expected 3 writers (swaps, liquidity, new_pools), got %d", len(p.writers))
	}
}

func TestCloseSucceedsOnNeverWrittenPublisher(t *testing.T) {
	p := New(1, []string{"localhost:9092"}, "runic", zap.NewNop())
	if err := p.Close(); err != nil {
		t.Errorf("unexpected error closing a never-written-to publisher: %v", err)
	}
}
