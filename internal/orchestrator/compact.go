package orchestrator

import (
	"context"
	"io"
	"strings"

	"github.com/agentrt/runtime/internal/llmclient"
	"github.com/agentrt/runtime/internal/store"
	"github.com/agentrt/runtime/pkg/types"
)

// Compaction defaults. MaxContextTokens mirrors the teacher's context
// overflow threshold; MinMessagesToKeep and SummaryMaxTokens are carried
// over from its CompactionConfig.
const (
	MaxContextTokens          = 150000
	compactionMinMessagesToKeep = 6
	compactionSummaryMaxTokens  = 2000

	// compactionSummaryMarker tags the synthetic assistant message a
	// compaction produces, so effectiveHistory can find the most recent
	// one and discard everything before it.
	compactionSummaryMarker = "compaction-summary"
)

const compactionSystemPrompt = `You are a conversation summarizer. Create a concise summary of the conversation that preserves key context for continuing the discussion.

Focus on:
1. What was accomplished
2. Current work in progress
3. Files involved
4. Next steps
5. Any key user requests or constraints

Be concise but detailed enough that work can continue seamlessly.`

// shouldCompact reports whether a session's message log has accumulated
// enough tokens to warrant compaction before the next completion request.
func shouldCompact(messages []types.Message) bool {
	total := 0
	for _, msg := range messages {
		if msg.Tokens != nil {
			total += msg.Tokens.Input + msg.Tokens.Output
		}
	}
	return total > MaxContextTokens
}

// effectiveHistory returns the message window a completion request should
// actually include: everything from the most recent compaction summary
// onward, or the full log when no compaction has happened yet. Unlike the
// teacher, which summarized in place and dropped the summarized messages
// from the prompt while keeping them in the Session's Summary.Diffs field,
// this keeps every message in the Store's append-only log and does the
// windowing at read time — the log remains a complete audit trail.
func effectiveHistory(messages []types.Message) []types.Message {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Name == compactionSummaryMarker {
			return messages[i:]
		}
	}
	return messages
}

// Compact summarizes every message before the most recent
// compactionMinMessagesToKeep into a single assistant message tagged
// compactionSummaryMarker, and appends it to the session's log. Later
// calls to effectiveHistory drop everything before that marker, bounding
// context growth regardless of how long a session runs.
func Compact(ctx context.Context, client *llmclient.Client, sessions *store.Store, sessionID, model string) error {
	messages, err := sessions.ListMessages(ctx, sessionID)
	if err != nil {
		return err
	}
	window := effectiveHistory(messages)
	if len(window) <= compactionMinMessagesToKeep {
		return nil
	}
	toSummarize := window[:len(window)-compactionMinMessagesToKeep]

	var prompt strings.Builder
	for _, msg := range toSummarize {
		prompt.WriteString(strings.ToUpper(string(msg.Role)))
		prompt.WriteString(":\n")
		prompt.WriteString(msg.Content)
		prompt.WriteString("\n\n")
	}

	stream, err := client.Stream(ctx, llmclient.StreamRequest{
		Model: model,
		Messages: []*types.Message{
			{Role: types.RoleSystem, Content: compactionSystemPrompt},
			{Role: types.RoleUser, Content: prompt.String()},
		},
		MaxTokens: compactionSummaryMaxTokens,
	})
	if err != nil {
		return err
	}
	defer stream.Close()

	var summary strings.Builder
	for {
		chunk, recvErr := stream.Recv()
		if recvErr == io.EOF {
			break
		}
		if recvErr != nil {
			return recvErr
		}
		if chunk.Kind == llmclient.ChunkDelta {
			summary.WriteString(chunk.Delta)
		}
	}

	_, err = sessions.AppendMessage(ctx, types.Message{
		ID:        newID(),
		SessionID: sessionID,
		Role:      types.RoleAssistant,
		Name:      compactionSummaryMarker,
		Content:   "Summary of earlier conversation:\n\n" + summary.String(),
	})
	return err
}
