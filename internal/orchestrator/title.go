package orchestrator

import (
	"context"
	"io"
	"strings"

	"github.com/agentrt/runtime/internal/llmclient"
	"github.com/agentrt/runtime/internal/store"
	"github.com/agentrt/runtime/pkg/types"
)

const titleSystemPrompt = `You are a title generator. You output ONLY a thread title. Nothing else.

Generate a brief title that would help the user find this conversation later.

Rules:
- A single line, <=50 characters
- No explanations
- Use -ing verbs for actions (Debugging, Implementing, Analyzing)
- Keep exact: technical terms, numbers, filenames
- Remove: the, this, my, a, an
- Always output something meaningful

Examples:
"debug 500 errors in production" -> Debugging production 500 errors
"refactor user service" -> Refactoring user service
"implement rate limiting" -> Implementing rate limiting`

// GenerateTitle derives a short title from a session's first user message
// and records it on the session's AgentContext.Metadata["title"] — spec.md's
// Session entity carries no title field of its own (SPEC_FULL.md §4).
// Fire-and-forget: the caller should run this in its own goroutine and
// ignore its error, since a missing title never blocks the turn it
// accompanies.
func GenerateTitle(ctx context.Context, client *llmclient.Client, sessions *store.Store, sessionID, model, userContent string) error {
	agentCtx, err := sessions.GetContext(ctx, sessionID)
	if err != nil {
		return err
	}
	if agentCtx.Metadata != nil {
		if _, ok := agentCtx.Metadata["title"]; ok {
			return nil
		}
	}

	stream, err := client.Stream(ctx, llmclient.StreamRequest{
		Model: model,
		Messages: []*types.Message{
			{Role: types.RoleSystem, Content: titleSystemPrompt},
			{Role: types.RoleUser, Content: "Generate a title for this conversation:\n\n" + userContent},
		},
		MaxTokens: 50,
	})
	if err != nil {
		return err
	}
	defer stream.Close()

	var title strings.Builder
	for {
		chunk, err := stream.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		if chunk.Kind == llmclient.ChunkDelta {
			title.WriteString(chunk.Delta)
		}
	}

	titleText := cleanTitle(title.String())
	if titleText == "" {
		return nil
	}

	return sessions.SetMetadata(ctx, sessionID, "title", titleText)
}

// cleanTitle trims a raw model response down to a single display-ready line.
func cleanTitle(raw string) string {
	text := strings.TrimSpace(raw)
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			text = line
			break
		}
	}
	if len(text) > 100 {
		text = text[:97] + "..."
	}
	return text
}
