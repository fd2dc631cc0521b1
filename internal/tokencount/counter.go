// Package tokencount tracks live output-token counts for the answer text
// streamed into each generation, so the view can show cost as it accrues.
package tokencount

import (
	"sync"

	"github.com/tiktoken-go/tokenizer"

	"github.com/longrun-ai/dominds-sub008/internal/engine"
)

// Counter counts tokens in streamed text. It prefers a tiktoken codec and
// falls back to a character-ratio estimate for models without one.
type Counter struct {
	mu    sync.Mutex
	codec tokenizer.Codec

	// CharsPerToken drives the fallback estimate when no codec is
	// available. Four characters per token is a reasonable default.
	CharsPerToken float64
}

// NewCounter creates a counter for the given model label. An empty or
// unrecognized model gets the cl100k encoding, which is close enough for
// a live running count.
func NewCounter(model string) *Counter {
	c := &Counter{CharsPerToken: 4.0}
	if model != "" {
		if codec, err := tokenizer.ForModel(tokenizer.Model(model)); err == nil {
			c.codec = codec
			return c
		}
	}
	if codec, err := tokenizer.Get(tokenizer.Cl100kBase); err == nil {
		c.codec = codec
	}
	return c
}

// Count returns the token count of text.
func (c *Counter) Count(text string) int {
	if text == "" {
		return 0
	}
	c.mu.Lock()
	codec := c.codec
	c.mu.Unlock()
	if codec != nil {
		if ids, _, err := codec.Encode(text); err == nil {
			return len(ids)
		}
	}
	return int(float64(len(text)) / c.CharsPerToken)
}

// CountingSink decorates a view sink with per-generation output-token
// accounting over the answer substream. It is driven from the engine's
// single event loop, but Counts may be read from other goroutines (the
// debug surface does), hence the lock.
type CountingSink struct {
	engine.ViewSink

	counter *Counter

	mu     sync.Mutex
	text   map[int]string
	counts map[int]int
}

// NewCountingSink wraps next with token accounting.
func NewCountingSink(next engine.ViewSink, counter *Counter) *CountingSink {
	return &CountingSink{
		ViewSink: next,
		counter:  counter,
		text:     make(map[int]string),
		counts:   make(map[int]int),
	}
}

// AppendSubstream forwards the intent and recounts the answer stream.
// Recounting the whole accumulated text keeps the count exact across token
// boundaries split by chunking.
func (s *CountingSink) AppendSubstream(genseq int, stream engine.StreamKind, id, text string) {
	if stream == engine.StreamAnswer {
		s.mu.Lock()
		s.text[genseq] += text
		s.counts[genseq] = s.counter.Count(s.text[genseq])
		s.mu.Unlock()
	}
	s.ViewSink.AppendSubstream(genseq, stream, id, text)
}

// DiscardGeneration forwards the intent and drops the accounting for the
// discarded generation.
func (s *CountingSink) DiscardGeneration(genseq int) {
	s.mu.Lock()
	delete(s.text, genseq)
	delete(s.counts, genseq)
	s.mu.Unlock()
	s.ViewSink.DiscardGeneration(genseq)
}

// Tokens returns the current output-token count for a generation.
func (s *CountingSink) Tokens(genseq int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts[genseq]
}

// Totals returns a copy of all per-generation counts.
func (s *CountingSink) Totals() map[int]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[int]int, len(s.counts))
	for seq, n := range s.counts {
		out[seq] = n
	}
	return out
}
