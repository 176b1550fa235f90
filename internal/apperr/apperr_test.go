package apperr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_Wrap_UnwrapsCause(t *testing.T) {
	cause := errors.New("disk full")
	err := Wrap(Storage, "store.Put", "failed to write session", cause)

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "disk full")
}

func TestError_Is_MatchesByKind(t *testing.T) {
	err := New(NotFound, "store.Get", "session not found")
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.False(t, errors.Is(err, ErrStorage))
}

func TestKindOf(t *testing.T) {
	err := New(PolicyDenied, "dispatcher.Execute", "bash requires approval")
	kind, ok := KindOf(err)
	assert.True(t, ok)
	assert.Equal(t, PolicyDenied, kind)

	_, ok = KindOf(errors.New("plain error"))
	assert.False(t, ok)
}
