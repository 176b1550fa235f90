package orchestrator

import (
	"context"
	"encoding/json"
	"io"
	"strings"

	"github.com/agentrt/runtime/internal/agent"
	"github.com/agentrt/runtime/internal/llmclient"
	"github.com/agentrt/runtime/pkg/types"
)

const classificationSystemPrompt = `You are the routing layer of a coding assistant. Read the user's request and decide which specialist agent should handle it.

Respond with ONLY a JSON object of this exact shape, nothing else:
{"is_atomic": true, "agent": "coder", "confidence": 0.9, "reason": "short reason"}

Valid values for "agent": coder, architect, debug, ask, universal.
- coder: writing or editing code, running commands, implementing a change end to end
- architect: designing an approach or writing documentation, without touching source code
- debug: investigating a reported failure
- ask: answering a question about the codebase without changing anything
- universal: anything else, or when you are unsure`

type classification struct {
	IsAtomic   bool    `json:"is_atomic"`
	Agent      string  `json:"agent"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason"`
}

// classify implements spec.md §4.6 step 3: a short JSON-only classification
// call, falling back to keyword heuristics whenever the call fails or its
// response doesn't parse into a known agent.
func classify(ctx context.Context, client *llmclient.Client, registry *agent.Registry, model, userContent string) classification {
	stream, err := client.Stream(ctx, llmclient.StreamRequest{
		Model: model,
		Messages: []*types.Message{
			{Role: types.RoleSystem, Content: classificationSystemPrompt},
			{Role: types.RoleUser, Content: userContent},
		},
		MaxTokens: 200,
	})
	if err != nil {
		return keywordClassify(registry, userContent)
	}
	defer stream.Close()

	var raw strings.Builder
	for {
		chunk, recvErr := stream.Recv()
		if recvErr == io.EOF {
			break
		}
		if recvErr != nil {
			return keywordClassify(registry, userContent)
		}
		if chunk.Kind == llmclient.ChunkDelta {
			raw.WriteString(chunk.Delta)
		}
	}

	var c classification
	if err := json.Unmarshal([]byte(extractJSON(raw.String())), &c); err != nil {
		return keywordClassify(registry, userContent)
	}
	if _, err := registry.Get(c.Agent); err != nil {
		return keywordClassify(registry, userContent)
	}
	return c
}

// extractJSON trims any leading or trailing prose a model adds around the
// JSON object despite being asked for JSON only.
func extractJSON(s string) string {
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start == -1 || end == -1 || end < start {
		return s
	}
	return s[start : end+1]
}

// keywordClassify is the fallback classifier: a small set of
// keyword-to-agent heuristics, used when the LLM's classification response
// is unavailable or fails to parse into a known agent.
func keywordClassify(registry *agent.Registry, userContent string) classification {
	lower := strings.ToLower(userContent)
	var target string
	switch {
	case containsAny(lower, "fix", "bug", "error", "crash", "fails", "debug"):
		target = agent.Debug
	case containsAny(lower, "design", "architecture", "approach", "document"):
		target = agent.Architect
	case containsAny(lower, "what", "why", "how does", "explain", "?"):
		target = agent.Ask
	case containsAny(lower, "write", "implement", "add", "refactor", "edit", "create"):
		target = agent.Coder
	default:
		target = agent.Universal
	}
	if _, err := registry.Get(target); err != nil {
		target = agent.Universal
	}
	return classification{Agent: target, Confidence: 0.4, Reason: "keyword fallback"}
}

func containsAny(s string, needles ...string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}
