// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package primitives

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/r3labs/sse/v2"

	"github.com/lillux/rye/internal/log"
	"github.com/lillux/rye/pkg/expr"
	"go.uber.org/zap"
)

// returnSinkCap bounds how many events the in-memory return sink keeps.
// Older events are dropped once the cap is reached.
const returnSinkCap = 1000

// Sink consumes streamed events. Implementations must be safe for use
// from a single goroutine; the stream primitive serializes writes per
// sink but fans out across sinks concurrently.
type Sink interface {
	Name() string
	Write(event []byte) error
	Close() error
}

// SinkFactory builds a sink from one destination description. Tool-writer
// destinations resolve through this hook so the executor can route them
// back into tool chains.
type SinkFactory func(dest map[string]interface{}, env map[string]string) (Sink, error)

// ReturnSink buffers events in memory for inclusion in the primitive's
// result. Bounded; oldest events drop first.
type ReturnSink struct {
	mu     sync.Mutex
	events []string
}

func (s *ReturnSink) Name() string { return "return" }

func (s *ReturnSink) Write(event []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.events) >= returnSinkCap {
		s.events = s.events[1:]
	}
	s.events = append(s.events, string(event))
	return nil
}

func (s *ReturnSink) Close() error { return nil }

// Events returns the buffered events.
func (s *ReturnSink) Events() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.events))
	copy(out, s.events)
	return out
}

// Stream is the SSE streaming primitive. It subscribes to a server-sent
// event source and fans each event out to the configured sinks.
type Stream struct {
	factory SinkFactory
}

// NewStream creates the streaming primitive. factory may be nil, in which
// case only the built-in return sink is available.
func NewStream(factory SinkFactory) *Stream {
	return &Stream{factory: factory}
}

func (s *Stream) ID() string { return StreamID }

// Execute subscribes to the event stream and runs until the source closes,
// the timeout elapses, or the context is cancelled. Returns the event
// count, the destinations written, and the return sink's buffer if one
// was configured.
func (s *Stream) Execute(ctx context.Context, params map[string]interface{}, env map[string]string) (map[string]interface{}, error) {
	url := expr.ResolveEnv(str(params, "url"), env)
	if url == "" {
		return nil, fmt.Errorf("stream primitive requires a url parameter")
	}
	timeout := time.Duration(num(params, "timeout", 300)) * time.Second

	sinks, returnSink, err := s.buildSinks(params, env)
	if err != nil {
		return nil, err
	}
	defer func() {
		for _, sk := range sinks {
			if cerr := sk.Close(); cerr != nil {
				log.Warn("failed to close stream sink", zap.String("sink", sk.Name()), zap.Error(cerr))
			}
		}
	}()

	client := sse.NewClient(url)
	if raw, ok := params["headers"].(map[string]interface{}); ok {
		for k, v := range raw {
			client.Headers[k] = expr.ResolveEnv(expr.Stringify(v), env)
		}
	}

	sctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// Per-sink channels keep a slow sink from stalling the others.
	chans := make([]chan []byte, len(sinks))
	var wg sync.WaitGroup
	for i, sk := range sinks {
		chans[i] = make(chan []byte, 64)
		wg.Add(1)
		go func(sk Sink, ch <-chan []byte) {
			defer wg.Done()
			for ev := range ch {
				if werr := sk.Write(ev); werr != nil {
					log.Warn("stream sink write failed", zap.String("sink", sk.Name()), zap.Error(werr))
				}
			}
		}(sk, chans[i])
	}

	var count int64
	subErr := client.SubscribeRawWithContext(sctx, func(msg *sse.Event) {
		if len(msg.Data) == 0 {
			return
		}
		count++
		for _, ch := range chans {
			// Copy; the sse client reuses buffers.
			ev := make([]byte, len(msg.Data))
			copy(ev, msg.Data)
			select {
			case ch <- ev:
			default:
				log.Warn("stream sink backlogged, dropping event")
			}
		}
	})
	for _, ch := range chans {
		close(ch)
	}
	wg.Wait()

	// Timeout and cancellation end the stream without failing it.
	if subErr != nil && sctx.Err() == nil {
		return nil, fmt.Errorf("stream subscription failed: %w", subErr)
	}

	dests := make([]string, 0, len(sinks))
	for _, sk := range sinks {
		dests = append(dests, sk.Name())
	}
	result := map[string]interface{}{
		"success":             true,
		"stream_events_count": count,
		"stream_destinations": dests,
	}
	if returnSink != nil {
		result["events"] = returnSink.Events()
	}
	return result, nil
}

func (s *Stream) buildSinks(params map[string]interface{}, env map[string]string) ([]Sink, *ReturnSink, error) {
	rawDests, _ := params["destinations"].([]interface{})
	var sinks []Sink
	var ret *ReturnSink

	if len(rawDests) == 0 {
		ret = &ReturnSink{}
		return []Sink{ret}, ret, nil
	}
	for _, rd := range rawDests {
		dest, ok := rd.(map[string]interface{})
		if !ok {
			return nil, nil, fmt.Errorf("stream destination must be an object, got %T", rd)
		}
		if str(dest, "type") == "return" {
			if ret == nil {
				ret = &ReturnSink{}
				sinks = append(sinks, ret)
			}
			continue
		}
		if s.factory == nil {
			return nil, nil, fmt.Errorf("stream destination %q requires a sink factory", str(dest, "type"))
		}
		sk, err := s.factory(dest, env)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to build stream destination: %w", err)
		}
		sinks = append(sinks, sk)
	}
	return sinks, ret, nil
}
