package store

import (
	"sync"
	"time"

	"github.com/agentrt/runtime/pkg/types"
)

// writer is the persistence strategy a Store delegates durable writes to.
// The Store always calls writeMessage/writeSession; the strategy decides
// whether that happens synchronously (immediateWriter) or is queued and
// flushed later (debouncedWriter).
type writer interface {
	writeMessage(sessionID string, msg types.Message, bypassDebounce bool) error
	writeSession(sess types.Session) error
	flush(sessionID string) error
	close() error
}

// immediateWriter writes every record synchronously. This is the default
// persistence mode (Open Question decision #3).
type immediateWriter struct {
	fs *fileStore
}

func newImmediateWriter(fs *fileStore) *immediateWriter { return &immediateWriter{fs: fs} }

func (w *immediateWriter) writeMessage(sessionID string, msg types.Message, _ bool) error {
	return w.fs.put([]string{"sessions", sessionID, "messages", seqKey(msg.Seq)}, msg)
}

func (w *immediateWriter) writeSession(sess types.Session) error {
	return w.fs.put([]string{"sessions", sess.ID}, sess)
}

func (w *immediateWriter) flush(string) error { return nil }
func (w *immediateWriter) close() error       { return nil }

// debouncedWriter batches message writes per session, flushing after
// DebounceWindow of inactivity or once DebounceMaxBatch messages have
// queued, whichever comes first. Session record writes are never
// debounced — a session's metadata (NextSeq, UpdatedAt) must be visible to
// any reader immediately, since the Tool Dispatcher and Approval Manager
// both read it mid-turn. A message carrying ToolCalls also bypasses the
// queue entirely: the orchestrator's turn loop must be able to assume that
// once it has appended an assistant message with tool calls, that message
// is durable before the corresponding tool reply is processed.
type debouncedWriter struct {
	fs     *fileStore
	window time.Duration
	maxBatch int

	mu      sync.Mutex
	queues  map[string]*sessionQueue
}

type sessionQueue struct {
	mu      sync.Mutex
	pending []types.Message
	timer   *time.Timer
}

func newDebouncedWriter(fs *fileStore, window time.Duration, maxBatch int) *debouncedWriter {
	return &debouncedWriter{fs: fs, window: window, maxBatch: maxBatch, queues: make(map[string]*sessionQueue)}
}

func (w *debouncedWriter) queueFor(sessionID string) *sessionQueue {
	w.mu.Lock()
	defer w.mu.Unlock()
	q, ok := w.queues[sessionID]
	if !ok {
		q = &sessionQueue{}
		w.queues[sessionID] = q
	}
	return q
}

func (w *debouncedWriter) writeMessage(sessionID string, msg types.Message, bypassDebounce bool) error {
	if bypassDebounce {
		if err := w.flush(sessionID); err != nil {
			return err
		}
		return w.fs.put([]string{"sessions", sessionID, "messages", seqKey(msg.Seq)}, msg)
	}

	q := w.queueFor(sessionID)
	q.mu.Lock()
	q.pending = append(q.pending, msg)
	flushNow := len(q.pending) >= w.maxBatch
	if !flushNow {
		if q.timer != nil {
			q.timer.Stop()
		}
		q.timer = time.AfterFunc(w.window, func() { w.flush(sessionID) })
	}
	q.mu.Unlock()

	if flushNow {
		return w.flush(sessionID)
	}
	return nil
}

func (w *debouncedWriter) writeSession(sess types.Session) error {
	return w.fs.put([]string{"sessions", sess.ID}, sess)
}

func (w *debouncedWriter) flush(sessionID string) error {
	q := w.queueFor(sessionID)
	q.mu.Lock()
	batch := q.pending
	q.pending = nil
	if q.timer != nil {
		q.timer.Stop()
		q.timer = nil
	}
	q.mu.Unlock()

	for _, msg := range batch {
		if err := w.fs.put([]string{"sessions", sessionID, "messages", seqKey(msg.Seq)}, msg); err != nil {
			return err
		}
	}
	return nil
}

func (w *debouncedWriter) close() error {
	w.mu.Lock()
	ids := make([]string, 0, len(w.queues))
	for id := range w.queues {
		ids = append(ids, id)
	}
	w.mu.Unlock()

	for _, id := range ids {
		if err := w.flush(id); err != nil {
			return err
		}
	}
	return nil
}

func seqKey(seq int) string {
	// Zero-padded so directory listing sorts in message order.
	const pad = "0000000000"
	s := pad
	digits := []byte{}
	n := seq
	if n == 0 {
		digits = []byte{'0'}
	}
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	return s[:len(s)-len(digits)] + string(digits)
}
