package approval

import (
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/agentrt/runtime/pkg/types"
)

// PolicyStore holds the process-wide ApprovalPolicy and keeps it current
// with its backing file via fsnotify, per spec.md §4.3 ("Policy is
// process-wide, hot-reloadable"). The zero value is not usable; construct
// with LoadPolicyStore.
type PolicyStore struct {
	current atomic.Pointer[types.ApprovalPolicy]
	path    string
	watcher *fsnotify.Watcher
	log     zerolog.Logger
}

// LoadPolicyStore reads path as a YAML ApprovalPolicy and starts watching
// it for changes. If path does not exist, the store starts with a
// default-requires-approval-false policy and no rules — every tool/plan is
// allowed until a policy file is introduced.
func LoadPolicyStore(path string, log zerolog.Logger) (*PolicyStore, error) {
	ps := &PolicyStore{path: path, log: log}

	policy, err := readPolicyFile(path)
	if err != nil {
		return nil, err
	}
	ps.current.Store(policy)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	ps.watcher = watcher
	if err := watcher.Add(path); err != nil {
		// A missing policy file is not fatal — the default policy holds
		// until one is created; but we can't watch a path that doesn't
		// exist, so watch its directory instead and reload on any write or
		// create event there.
		if dirErr := watcher.Add(filepath.Dir(path)); dirErr != nil {
			log.Warn().Err(dirErr).Str("path", path).Msg("cannot watch approval policy directory")
		}
	}
	go ps.watchLoop()

	return ps, nil
}

func readPolicyFile(path string) (*types.ApprovalPolicy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &types.ApprovalPolicy{DefaultRequiresApproval: false}, nil
		}
		return nil, err
	}
	var policy types.ApprovalPolicy
	if err := yaml.Unmarshal(data, &policy); err != nil {
		return nil, err
	}
	return &policy, nil
}

func (ps *PolicyStore) watchLoop() {
	for {
		select {
		case ev, ok := <-ps.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			policy, err := readPolicyFile(ps.path)
			if err != nil {
				ps.log.Warn().Err(err).Str("path", ps.path).Msg("failed to reload approval policy")
				continue
			}
			ps.current.Store(policy)
			ps.log.Info().Str("path", ps.path).Msg("approval policy reloaded")
		case err, ok := <-ps.watcher.Errors:
			if !ok {
				return
			}
			ps.log.Warn().Err(err).Msg("approval policy watcher error")
		}
	}
}

// NewStaticPolicyStore wraps a fixed policy with no file backing or
// hot-reload — for tests and for callers that want to supply a policy
// built in code rather than loaded from YAML.
func NewStaticPolicyStore(policy types.ApprovalPolicy) *PolicyStore {
	ps := &PolicyStore{}
	ps.current.Store(&policy)
	return ps
}

// Current returns the currently-loaded policy.
func (ps *PolicyStore) Current() *types.ApprovalPolicy {
	return ps.current.Load()
}

// Close stops the file watcher.
func (ps *PolicyStore) Close() error {
	if ps.watcher == nil {
		return nil
	}
	return ps.watcher.Close()
}

// Evaluate decides whether an action requires approval: the first rule
// whose RequestType matches and whose SubjectPattern glob-matches subject
// wins; if nothing matches, the policy's DefaultRequiresApproval applies.
// subject matching is case-insensitive for built-in tool names, since glob
// patterns authored by operators commonly differ in case from a tool's
// registered name.
func Evaluate(policy *types.ApprovalPolicy, requestType types.RequestType, subject string) (requires bool, reason string) {
	for _, rule := range policy.Rules {
		if rule.RequestType != requestType {
			continue
		}
		matched, err := doublestar.Match(strings.ToLower(rule.SubjectPattern), strings.ToLower(subject))
		if err != nil {
			continue
		}
		if !matched {
			continue
		}
		return rule.RequiresApproval, rule.Reason
	}
	return policy.DefaultRequiresApproval, ""
}
