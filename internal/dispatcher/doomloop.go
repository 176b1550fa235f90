package dispatcher

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
)

// doomLoopThreshold is the number of identical consecutive calls before a
// tool call is flagged as a doom loop.
const doomLoopThreshold = 3

// doomLoopHistoryLimit bounds the per-session history so it never grows
// unboundedly across a long-running session.
const doomLoopHistoryLimit = 10

// doomLoopDetector tracks repeated tool calls to detect an agent stuck
// calling the same tool with the same arguments over and over. Supplements
// spec.md's iteration-cap discussion (§4.6) with an earlier, targeted
// signal than "ran out of iterations".
type doomLoopDetector struct {
	mu      sync.Mutex
	history map[string][]string // sessionID -> last N call fingerprints
}

func newDoomLoopDetector() *doomLoopDetector {
	return &doomLoopDetector{history: make(map[string][]string)}
}

// Check records one call and reports whether the last doomLoopThreshold
// calls for sessionID (including this one) are all identical.
func (d *doomLoopDetector) Check(sessionID, toolName, argumentsJSON string) bool {
	hash := fingerprint(toolName, argumentsJSON)

	d.mu.Lock()
	defer d.mu.Unlock()

	history := append(d.history[sessionID], hash)
	if len(history) > doomLoopHistoryLimit {
		history = history[len(history)-doomLoopHistoryLimit:]
	}
	d.history[sessionID] = history

	if len(history) < doomLoopThreshold {
		return false
	}
	tail := history[len(history)-doomLoopThreshold:]
	for _, h := range tail {
		if h != hash {
			return false
		}
	}
	return true
}

// Reset clears the history for a session, e.g. once a different tool call
// breaks a streak or the session ends.
func (d *doomLoopDetector) Reset(sessionID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.history, sessionID)
}

func fingerprint(toolName, argumentsJSON string) string {
	h := sha256.Sum256([]byte(toolName + "\x00" + argumentsJSON))
	return hex.EncodeToString(h[:])
}
