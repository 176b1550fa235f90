package llmclient

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/cenkalti/backoff/v4"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog"

	"github.com/agentrt/runtime/pkg/types"
)

// ChunkKind is spec.md §4.5's closed set of streamed chunk kinds.
type ChunkKind string

const (
	ChunkDelta    ChunkKind = "delta"
	ChunkToolCall ChunkKind = "tool_call_delta" // payload is a fully coalesced types.ToolCall
	ChunkUsage    ChunkKind = "usage"
	ChunkDone     ChunkKind = "done"
)

// Chunk is one element of the normalized stream Client.Stream yields.
// Only the field matching Kind is populated.
type Chunk struct {
	Kind     ChunkKind
	Delta    string
	ToolCall *types.ToolCall
	Usage    *types.TokenUsage
}

// StreamRequest is the LLM Client's one operation's input: a model
// identifier and message log, with an optional tool manifest.
type StreamRequest struct {
	Model       string // "provider/model"
	Messages    []*types.Message
	Tools       []ToolInfo
	MaxTokens   int
	Temperature float64
}

// Client is the LLM Client of spec.md §4.5.
type Client struct {
	registry *Registry
	retry    RetryPolicy
	breakers *breakerRegistry
	log      zerolog.Logger
}

// New constructs a Client. breakerPolicy may be nil to accept
// DefaultBreakerPolicy.
func New(registry *Registry, retry RetryPolicy, breakerPolicy *BreakerPolicy, log zerolog.Logger) *Client {
	policy := DefaultBreakerPolicy()
	if breakerPolicy != nil {
		policy = *breakerPolicy
	}
	return &Client{registry: registry, retry: retry, breakers: newBreakerRegistry(policy, log), log: log}
}

// Stream resolves req.Model's provider, issues the completion (retried
// with bounded backoff and gated by that provider's circuit breaker), and
// returns a Stream that lazily yields normalized Chunks.
func (c *Client) Stream(ctx context.Context, req StreamRequest) (*Stream, error) {
	providerID, modelID := ParseModelString(req.Model)
	provider, err := c.registry.Get(providerID)
	if err != nil {
		return nil, err
	}

	compReq := &CompletionRequest{
		Model:       modelID,
		Messages:    ConvertToEinoMessages(req.Messages),
		Tools:       ConvertToEinoTools(req.Tools),
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}

	cb := c.breakers.get(providerID)
	compStream, err := cb.Execute(func() (*CompletionStream, error) {
		return c.retryStream(ctx, func() (*CompletionStream, error) {
			return provider.CreateCompletion(ctx, compReq)
		})
	})
	if err != nil {
		return nil, fmt.Errorf("llmclient: %s: %w", providerID, err)
	}

	return &Stream{
		underlying: compStream,
		toolCalls:  make(map[string]*toolCallBuilder),
	}, nil
}

// retryStream retries op with bounded exponential backoff, honoring
// ctx cancellation (which both aborts further retries and propagates to
// the in-flight HTTP call made by op).
func (c *Client) retryStream(ctx context.Context, op func() (*CompletionStream, error)) (*CompletionStream, error) {
	var stream *CompletionStream
	err := backoff.Retry(func() error {
		s, err := op()
		if err != nil {
			return err
		}
		stream = s
		return nil
	}, c.retry.newBackOff(ctx))
	if err != nil {
		return nil, err
	}
	return stream, nil
}

// toolCallBuilder accumulates one tool call's fragmentary deltas (eino
// streams the function name once and the arguments incrementally).
type toolCallBuilder struct {
	id   string
	name string
	args strings.Builder
}

// Stream re-exposes a CompletionStream as spec.md §4.5's normalized
// four-kind Chunk sequence, coalescing tool_call_delta fragments into
// whole types.ToolCall values before they are ever yielded.
type Stream struct {
	underlying *CompletionStream

	accumulatedContent string
	toolCalls          map[string]*toolCallBuilder
	toolOrder          []string

	pending []Chunk
	done    bool
}

// Recv returns the next Chunk, or io.EOF once a ChunkDone chunk has been
// delivered.
func (s *Stream) Recv() (*Chunk, error) {
	if len(s.pending) > 0 {
		c := s.pending[0]
		s.pending = s.pending[1:]
		return &c, nil
	}
	if s.done {
		return nil, io.EOF
	}

	for {
		msg, err := s.underlying.Recv()
		if err == io.EOF {
			s.finalizeToolCalls()
			s.pending = append(s.pending, Chunk{Kind: ChunkDone})
			s.done = true
			return s.Recv()
		}
		if err != nil {
			return nil, err
		}

		var usageChunk *Chunk
		if msg.ResponseMeta != nil && msg.ResponseMeta.Usage != nil {
			usageChunk = &Chunk{Kind: ChunkUsage, Usage: &types.TokenUsage{
				Input:  msg.ResponseMeta.Usage.PromptTokens,
				Output: msg.ResponseMeta.Usage.CompletionTokens,
			}}
		}

		s.accumulateToolCalls(msg.ToolCalls)

		if msg.Content != "" {
			if delta := s.computeDelta(msg.Content); delta != "" {
				if usageChunk != nil {
					s.pending = append(s.pending, *usageChunk)
				}
				return &Chunk{Kind: ChunkDelta, Delta: delta}, nil
			}
		}
		if usageChunk != nil {
			return usageChunk, nil
		}
		// Pure tool-call delta: accumulated above, nothing to yield yet.
	}
}

// Close closes the upstream connection; callers MUST call this when
// abandoning a Stream mid-sequence (spec.md §4.5 cancellation semantics).
func (s *Stream) Close() {
	s.underlying.Close()
}

func (s *Stream) computeDelta(content string) string {
	if s.accumulatedContent == "" {
		s.accumulatedContent = content
		return content
	}
	if strings.HasPrefix(content, s.accumulatedContent) {
		delta := content[len(s.accumulatedContent):]
		s.accumulatedContent = content
		return delta
	}
	s.accumulatedContent += content
	return content
}

// accumulateToolCalls folds one message chunk's tool-call fragments into
// the in-progress builders. eino identifies a tool call across chunks by
// Index when streaming (falling back to ID for providers that don't set
// it): the first fragment carries ID+Function.Name, later fragments carry
// only incremental Function.Arguments.
func (s *Stream) accumulateToolCalls(deltas []schema.ToolCall) {
	for _, tc := range deltas {
		var lookupKey string
		switch {
		case tc.Index != nil:
			lookupKey = fmt.Sprintf("idx:%d", *tc.Index)
		case tc.ID != "":
			lookupKey = tc.ID
		default:
			continue
		}

		b, exists := s.toolCalls[lookupKey]
		if !exists {
			b = &toolCallBuilder{id: tc.ID, name: tc.Function.Name}
			s.toolCalls[lookupKey] = b
			s.toolOrder = append(s.toolOrder, lookupKey)
		}
		if tc.ID != "" {
			b.id = tc.ID
		}
		if tc.Function.Name != "" {
			b.name = tc.Function.Name
		}
		if tc.Function.Arguments != "" {
			b.args.WriteString(tc.Function.Arguments)
		}
	}
}

func (s *Stream) finalizeToolCalls() {
	for _, key := range s.toolOrder {
		b := s.toolCalls[key]
		if b.id == "" && b.name == "" && b.args.Len() == 0 {
			continue
		}
		tc := &types.ToolCall{ID: b.id, Name: b.name, Arguments: b.args.String()}
		s.pending = append(s.pending, Chunk{Kind: ChunkToolCall, ToolCall: tc})
	}
}
