package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noopPre(context.Context, *PreProcessingContext) error { return nil }

func priorities(hooks []Hook) []int {
	out := make([]int, len(hooks))
	for i, h := range hooks {
		out[i] = h.Priority
	}
	return out
}

func TestParseStage(t *testing.T) {
	for _, s := range AllStages {
		got, err := ParseStage(string(s))
		require.NoError(t, err)
		assert.Equal(t, s, got)
	}

	_, err := ParseStage("post-send")
	assert.ErrorIs(t, err, ErrUnknownStage)
	assert.Equal(t, -1, Stage("bogus").Index())
	assert.Equal(t, 3, StagePostProcessing.Index())
}

func TestRegistry_OrdersByPriority(t *testing.T) {
	r := NewRegistry()
	for _, p := range []int{50, 100, 10} {
		require.NoError(t, r.RegisterHook("ext", StagePreProcessing, PreProcessingFunc(noopPre), p))
	}

	assert.Equal(t, []int{10, 50, 100}, priorities(r.Hooks(StagePreProcessing)))
}

func TestRegistry_TiesKeepRegistrationOrder(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.RegisterHook("first", StagePreSend, PreSendFunc(func(context.Context, *PreSendContext) error { return nil }), 100))
	require.NoError(t, r.RegisterHook("early", StagePreSend, PreSendFunc(func(context.Context, *PreSendContext) error { return nil }), -5))
	require.NoError(t, r.RegisterHook("second", StagePreSend, PreSendFunc(func(context.Context, *PreSendContext) error { return nil }), 100))
	require.NoError(t, r.RegisterHook("third", StagePreSend, PreSendFunc(func(context.Context, *PreSendContext) error { return nil }), 100))

	hooks := r.Hooks(StagePreSend)
	require.Len(t, hooks, 4)
	ids := []string{hooks[0].ExtensionID, hooks[1].ExtensionID, hooks[2].ExtensionID, hooks[3].ExtensionID}
	assert.Equal(t, []string{"early", "first", "second", "third"}, ids)
	assert.Less(t, hooks[1].Sequence, hooks[2].Sequence)
}

func TestRegistry_RejectsInvalidRegistrations(t *testing.T) {
	r := NewRegistry()

	err := r.RegisterHook("", StagePreProcessing, PreProcessingFunc(noopPre), 1)
	assert.ErrorIs(t, err, ErrEmptyExtensionID)

	err = r.RegisterHook("ext", Stage("during-send"), PreProcessingFunc(noopPre), 1)
	assert.ErrorIs(t, err, ErrUnknownStage)

	err = r.RegisterHook("ext", StagePostProcessing, PreProcessingFunc(noopPre), 1)
	assert.ErrorIs(t, err, ErrStageMismatch)

	err = r.RegisterHook("ext", StagePreProcessing, nil, 1)
	assert.ErrorIs(t, err, ErrNilHandler)

	var nilFn PreProcessingFunc
	err = r.RegisterHook("ext", StagePreProcessing, nilFn, 1)
	assert.ErrorIs(t, err, ErrNilHandler)

	for _, s := range AllStages {
		assert.Zero(t, r.Count(s))
	}
}

func TestRegistry_UnregisterAllIsIdempotent(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.RegisterHook("a", StagePreProcessing, PreProcessingFunc(noopPre), 1))
	require.NoError(t, r.RegisterHook("a", StagePostProcessing, PostProcessingFunc(func(context.Context, *PostProcessingContext) error { return nil }), 1))
	require.NoError(t, r.RegisterHook("b", StagePreProcessing, PreProcessingFunc(noopPre), 1))

	assert.Equal(t, 2, r.UnregisterAll("a"))
	assert.Equal(t, 0, r.UnregisterAll("a"))
	assert.Equal(t, 0, r.UnregisterAll("never-registered"))

	assert.Equal(t, 1, r.Count(StagePreProcessing))
	assert.Equal(t, 0, r.Count(StagePostProcessing))
	assert.Equal(t, []string{"b"}, r.Extensions())
}

func TestRegistrar_BindsExtensionID(t *testing.T) {
	r := NewRegistry()
	g := r.Registrar("ext-a")

	require.NoError(t, g.Register(PreProcessingFunc(noopPre)))
	require.NoError(t, g.RegisterHook(StagePreProcessing, PreProcessingFunc(noopPre), 5))

	hooks := r.Hooks(StagePreProcessing)
	require.Len(t, hooks, 2)
	assert.Equal(t, 5, hooks[0].Priority)
	assert.Equal(t, DefaultPriority, hooks[1].Priority)
	for _, h := range hooks {
		assert.Equal(t, "ext-a", h.ExtensionID)
	}

	assert.Equal(t, 2, g.UnregisterAll())
	assert.Equal(t, 0, g.UnregisterAll())
	assert.ErrorIs(t, g.Register(nil), ErrNilHandler)
}

func TestRegistry_HooksReturnsSnapshot(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.RegisterHook("ext", StagePreProcessing, PreProcessingFunc(noopPre), 1))

	snap := r.Hooks(StagePreProcessing)
	snap[0].Priority = 999

	assert.Equal(t, 1, r.Hooks(StagePreProcessing)[0].Priority)
}
