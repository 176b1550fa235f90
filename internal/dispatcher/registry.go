package dispatcher

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// RemoteResponse is what the IDE reports back for a forwarded tool call.
type RemoteResponse struct {
	Status   string         `json:"status"` // "success" or "error"
	Title    string         `json:"title,omitempty"`
	Output   string         `json:"output,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
	Error    string         `json:"error,omitempty"`
}

type pendingRemoteCall struct {
	result  chan RemoteResponse
	timeout *time.Timer
}

// RemoteRegistry tracks in-flight tool calls forwarded to an IDE across the
// transport edge (§4.4's "remote handler" path) and the result each is
// waiting on. One Registry instance is shared by the Dispatcher and
// whatever transport-edge handler receives inbound tool_result frames.
type RemoteRegistry struct {
	mu      sync.Mutex
	pending map[string]*pendingRemoteCall
	log     zerolog.Logger
}

// NewRemoteRegistry constructs an empty RemoteRegistry.
func NewRemoteRegistry(log zerolog.Logger) *RemoteRegistry {
	return &RemoteRegistry{pending: make(map[string]*pendingRemoteCall), log: log}
}

// Execute forwards a tool call to the IDE identified by call.SessionID and
// blocks until SubmitResult delivers a matching response, ctx is
// cancelled, or timeout elapses. The transport edge is responsible for
// actually writing the request frame to the IDE; Execute only tracks the
// wait — call a transport edge send before or concurrently with this call.
func (r *RemoteRegistry) Execute(ctx context.Context, call CallContext, toolName string, input map[string]any, timeout time.Duration) (*RemoteResponse, error) {
	resultCh := make(chan RemoteResponse, 1)
	timer := time.NewTimer(timeout)

	r.mu.Lock()
	r.pending[call.CallID] = &pendingRemoteCall{result: resultCh, timeout: timer}
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		delete(r.pending, call.CallID)
		r.mu.Unlock()
	}()

	select {
	case resp, ok := <-resultCh:
		timer.Stop()
		if !ok {
			return nil, context.Canceled
		}
		if resp.Status == "error" {
			return nil, errors.New(resp.Error)
		}
		return &resp, nil
	case <-timer.C:
		return nil, errors.New("remote tool call timed out waiting for tool_result")
	case <-ctx.Done():
		timer.Stop()
		return nil, ctx.Err()
	}
}

// SubmitResult delivers a tool_result frame's payload to the call_id it
// names. Returns false if no call with that id is currently pending — the
// transport edge should log this as an orphan reply (spec.md §4.4).
func (r *RemoteRegistry) SubmitResult(callID string, resp RemoteResponse) bool {
	r.mu.Lock()
	pending, ok := r.pending[callID]
	r.mu.Unlock()
	if !ok {
		return false
	}
	select {
	case pending.result <- resp:
		return true
	default:
		return false
	}
}

// SubmitResultJSON is a convenience wrapper for transport-edge code that
// only has the raw frame bytes on hand.
func (r *RemoteRegistry) SubmitResultJSON(callID string, raw json.RawMessage) error {
	var resp RemoteResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return err
	}
	if !r.SubmitResult(callID, resp) {
		r.log.Warn().Str("callID", callID).Msg("dropped orphan tool_result with no matching pending call")
	}
	return nil
}

// CancelAll fails every pending call, across all sessions, with
// context.Canceled, e.g. when the IDE connection drops.
func (r *RemoteRegistry) CancelAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, p := range r.pending {
		p.timeout.Stop()
		close(p.result)
		delete(r.pending, id)
	}
}
