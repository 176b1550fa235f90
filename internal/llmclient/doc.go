// Package llmclient implements the LLM Client (spec.md §4.5): one
// operation, streaming a completion for a list of messages given a model
// identifier and an optional tool manifest, yielding a lazy sequence of
// normalized Chunks (delta / tool_call_delta / usage / done).
//
// Provider-specific quirks are absorbed by a Provider (one per upstream
// API, built on cloudwego/eino and eino-ext's claude/openai chat-model
// adapters) so callers never see eino's schema types. Client wraps
// Provider.CreateCompletion with bounded exponential backoff
// (github.com/cenkalti/backoff/v4) and a per-provider circuit breaker
// (github.com/sony/gobreaker/v2), and coalesces eino's fragmentary
// tool-call deltas into whole types.ToolCall structures before they ever
// reach the orchestrator.
//
//	client := llmclient.New(registry, llmclient.DefaultRetryPolicy(), nil, log)
//	stream, err := client.Stream(ctx, llmclient.StreamRequest{
//	    Model:    "anthropic/claude-sonnet-4-20250514",
//	    Messages: messages,
//	    Tools:    tools,
//	})
//	for {
//	    chunk, err := stream.Recv()
//	    if err == io.EOF {
//	        break
//	    }
//	    ...
//	}
package llmclient
