package pipeline

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

type recordingSender struct {
	calls int
	got   *RequestState
	resp  *ResponseState
	err   error
}

func (s *recordingSender) send(_ context.Context, req *RequestState) (*ResponseState, error) {
	s.calls++
	s.got = req.Clone()
	if s.err != nil {
		return nil, s.err
	}
	if s.resp != nil {
		return s.resp, nil
	}
	return &ResponseState{Status: 200, StatusText: "OK", Body: `{"ok":true,"items":[1,2]}`}, nil
}

type countingMetrics struct {
	runs, cancelled, failures int
}

func (m *countingMetrics) RecordPipelineRun(c bool) {
	m.runs++
	if c {
		m.cancelled++
	}
}
func (m *countingMetrics) RecordHookFailure() { m.failures++ }

func newDriver(t *testing.T, r *Registry, s *recordingSender, policy FailurePolicy, opts ...Option) *Driver {
	t.Helper()
	opts = append([]Option{WithLogger(zerolog.Nop())}, opts...)
	d, err := NewDriver(r, s.send, policy, opts...)
	require.NoError(t, err)
	return d
}

func newRequest() *RequestState {
	return &RequestState{
		Method:   "POST",
		URL:      "{{BASE_URL}}/users",
		Headers:  []KeyValue{{Key: "Authorization", Value: "Bearer {{TOKEN}}", Enabled: true}},
		Body:     `{"name":"{{USER_NAME}}"}`,
		BodyType: BodyJSON,
	}
}

// =============================================================================
// CONSTRUCTION
// =============================================================================

func TestNewDriver_Validation(t *testing.T) {
	s := &recordingSender{}

	_, err := NewDriver(nil, s.send, FailContinue)
	assert.ErrorIs(t, err, ErrNilRegistry)

	_, err = NewDriver(NewRegistry(), nil, FailContinue)
	assert.ErrorIs(t, err, ErrNilSender)

	_, err = NewDriver(NewRegistry(), s.send, "")
	assert.ErrorIs(t, err, ErrInvalidPolicy)

	d, err := NewDriver(NewRegistry(), s.send, FailSkipStage)
	require.NoError(t, err)
	assert.Equal(t, FailSkipStage, d.Policy())
}

func TestDriver_RunRejectsNilRequest(t *testing.T) {
	d := newDriver(t, NewRegistry(), &recordingSender{}, FailContinue)
	_, err := d.Run(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNilRequest)
}

// =============================================================================
// ORDERING
// =============================================================================

func TestDriver_ExecutesHooksInPriorityOrder(t *testing.T) {
	r := NewRegistry()
	var order []int
	for _, p := range []int{50, 100, 10} {
		p := p
		require.NoError(t, r.RegisterHook("ext", StagePreProcessing, PreProcessingFunc(func(context.Context, *PreProcessingContext) error {
			order = append(order, p)
			return nil
		}), p))
	}

	_, err := newDriver(t, r, &recordingSender{}, FailAbortPipeline).Run(context.Background(), newRequest())
	require.NoError(t, err)
	assert.Equal(t, []int{10, 50, 100}, order)
}

func TestDriver_TiesRunInRegistrationOrder(t *testing.T) {
	r := NewRegistry()
	var order []string
	for _, name := range []string{"a", "b", "c"} {
		name := name
		require.NoError(t, r.RegisterHook(name, StageRequestCompilation, RequestCompilationFunc(func(context.Context, *RequestCompilationContext) error {
			order = append(order, name)
			return nil
		}), DefaultPriority))
	}

	_, err := newDriver(t, r, &recordingSender{}, FailAbortPipeline).Run(context.Background(), newRequest())
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, order)
}

func TestDriver_StagesRunInFixedOrderAndSeePriorMutations(t *testing.T) {
	r := NewRegistry()
	var trace []string

	require.NoError(t, r.RegisterHook("ext", StagePostProcessing, PostProcessingFunc(func(_ context.Context, hc *PostProcessingContext) error {
		trace = append(trace, "post")
		v, _ := hc.Request.Header("X-Trace")
		assert.Equal(t, "compiled", v)
		assert.Equal(t, "pre", hc.Metadata["from"])
		assert.True(t, hc.ResponseField("ok").Bool())
		return nil
	}), 1))
	require.NoError(t, r.RegisterHook("ext", StagePreSend, PreSendFunc(func(_ context.Context, hc *PreSendContext) error {
		trace = append(trace, "pre-send")
		hc.Metadata["sent_by"] = "ext"
		return nil
	}), 1))
	require.NoError(t, r.RegisterHook("ext", StageRequestCompilation, RequestCompilationFunc(func(_ context.Context, hc *RequestCompilationContext) error {
		trace = append(trace, "compile")
		hc.SetHeader("X-Trace", "compiled")
		return nil
	}), 1))
	require.NoError(t, r.RegisterHook("ext", StagePreProcessing, PreProcessingFunc(func(_ context.Context, hc *PreProcessingContext) error {
		trace = append(trace, "pre")
		hc.Metadata["from"] = "pre"
		return nil
	}), 1))

	s := &recordingSender{}
	res, err := newDriver(t, r, s, FailAbortPipeline).Run(context.Background(), newRequest())
	require.NoError(t, err)

	assert.Equal(t, []string{"pre", "compile", "pre-send", "post"}, trace)
	assert.Equal(t, 1, s.calls)
	assert.Equal(t, "ext", res.Metadata["sent_by"])
	require.NotNil(t, res.Response)
	assert.NotEmpty(t, res.RunID)
}

// =============================================================================
// CANCELLATION
// =============================================================================

func TestDriver_PreProcessingCancelStopsLaterStages(t *testing.T) {
	r := NewRegistry()
	laterRan := map[Stage]bool{}
	samePhase := false

	require.NoError(t, r.RegisterHook("guard", StagePreProcessing, PreProcessingFunc(func(_ context.Context, hc *PreProcessingContext) error {
		hc.Cancel("blocked by guard")
		hc.Cancel("second reason is ignored")
		return nil
	}), 1))
	require.NoError(t, r.RegisterHook("other", StagePreProcessing, PreProcessingFunc(func(_ context.Context, hc *PreProcessingContext) error {
		samePhase = true
		cancelled, _ := hc.Cancelled()
		assert.True(t, cancelled)
		return nil
	}), 2))
	require.NoError(t, r.RegisterHook("x", StageRequestCompilation, RequestCompilationFunc(func(context.Context, *RequestCompilationContext) error {
		laterRan[StageRequestCompilation] = true
		return nil
	}), 1))
	require.NoError(t, r.RegisterHook("x", StagePreSend, PreSendFunc(func(context.Context, *PreSendContext) error {
		laterRan[StagePreSend] = true
		return nil
	}), 1))
	require.NoError(t, r.RegisterHook("x", StagePostProcessing, PostProcessingFunc(func(context.Context, *PostProcessingContext) error {
		laterRan[StagePostProcessing] = true
		return nil
	}), 1))

	s := &recordingSender{}
	m := &countingMetrics{}
	res, err := newDriver(t, r, s, FailAbortPipeline, WithMetrics(m)).Run(context.Background(), newRequest())
	require.NoError(t, err)

	assert.True(t, res.Cancelled)
	assert.Equal(t, "blocked by guard", res.CancelReason)
	assert.Nil(t, res.Response)
	assert.True(t, samePhase, "hooks already in the cancelling stage still run")
	assert.Empty(t, laterRan)
	assert.Zero(t, s.calls, "cancelled request must never be sent")
	assert.Equal(t, 1, m.cancelled)
}

func TestDriver_CancelReasonSurvivesAbort(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.RegisterHook("guard", StagePreProcessing, PreProcessingFunc(func(_ context.Context, hc *PreProcessingContext) error {
		hc.Cancel("blocked by guard")
		return nil
	}), 1))
	require.NoError(t, r.RegisterHook("broken", StagePreProcessing, PreProcessingFunc(func(context.Context, *PreProcessingContext) error {
		return errors.New("broken hook")
	}), 2))

	s := &recordingSender{}
	res, err := newDriver(t, r, s, FailAbortPipeline).Run(context.Background(), newRequest())
	require.Error(t, err)

	var herr *HookError
	require.True(t, errors.As(err, &herr))
	assert.Equal(t, "broken", herr.ExtensionID)
	require.NotNil(t, res)
	assert.True(t, res.Cancelled)
	assert.Equal(t, "blocked by guard", res.CancelReason)
	assert.Zero(t, s.calls)
}

// =============================================================================
// FAILURE POLICIES
// =============================================================================

func failingSetup(t *testing.T) (*Registry, *[]string) {
	t.Helper()
	r := NewRegistry()
	var ran []string
	mk := func(name string, fail bool) RequestCompilationFunc {
		return func(context.Context, *RequestCompilationContext) error {
			ran = append(ran, name)
			if fail {
				return fmt.Errorf("%s failed", name)
			}
			return nil
		}
	}
	require.NoError(t, r.RegisterHook("a", StageRequestCompilation, mk("a", true), 1))
	require.NoError(t, r.RegisterHook("b", StageRequestCompilation, mk("b", false), 2))
	require.NoError(t, r.RegisterHook("c", StagePreSend, PreSendFunc(func(context.Context, *PreSendContext) error {
		ran = append(ran, "c")
		return nil
	}), 1))
	return r, &ran
}

func TestDriver_AbortPipelinePolicy(t *testing.T) {
	r, ran := failingSetup(t)
	s := &recordingSender{}
	m := &countingMetrics{}

	res, err := newDriver(t, r, s, FailAbortPipeline, WithMetrics(m)).Run(context.Background(), newRequest())
	require.Error(t, err)

	var herr *HookError
	require.True(t, errors.As(err, &herr))
	assert.Equal(t, "a", herr.ExtensionID)
	assert.Equal(t, StageRequestCompilation, herr.Stage)
	assert.Equal(t, []string{"a"}, *ran)
	assert.Zero(t, s.calls)
	assert.NotNil(t, res)
	assert.Equal(t, 1, m.failures)
}

func TestDriver_SkipStagePolicy(t *testing.T) {
	r, ran := failingSetup(t)
	s := &recordingSender{}

	res, err := newDriver(t, r, s, FailSkipStage).Run(context.Background(), newRequest())
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "c"}, *ran)
	require.Len(t, res.Failures, 1)
	assert.Equal(t, "a", res.Failures[0].ExtensionID)
	assert.Equal(t, 1, s.calls)
}

func TestDriver_ContinuePolicy(t *testing.T) {
	r, ran := failingSetup(t)
	s := &recordingSender{}

	res, err := newDriver(t, r, s, FailContinue).Run(context.Background(), newRequest())
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b", "c"}, *ran)
	assert.Len(t, res.Failures, 1)
}

func TestDriver_PanicIsAFailure(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.RegisterHook("bad", StagePreSend, PreSendFunc(func(context.Context, *PreSendContext) error {
		panic("boom")
	}), 1))

	_, err := newDriver(t, r, &recordingSender{}, FailAbortPipeline).Run(context.Background(), newRequest())
	assert.ErrorIs(t, err, ErrHandlerPanic)

	// The failing extension can still be unregistered.
	assert.Equal(t, 1, r.UnregisterAll("bad"))
	assert.Equal(t, 0, r.UnregisterAll("bad"))
}

func TestParseFailurePolicy(t *testing.T) {
	for _, p := range []string{"abort-pipeline", "skip-stage", "continue"} {
		got, err := ParseFailurePolicy(p)
		require.NoError(t, err)
		assert.Equal(t, FailurePolicy(p), got)
	}
	_, err := ParseFailurePolicy("retry")
	assert.ErrorIs(t, err, ErrInvalidPolicy)
}

// =============================================================================
// SENDING
// =============================================================================

func TestDriver_PlaceholdersReachSenderUnresolved(t *testing.T) {
	s := &recordingSender{}
	_, err := newDriver(t, NewRegistry(), s, FailAbortPipeline).Run(context.Background(), newRequest())
	require.NoError(t, err)

	assert.Equal(t, "{{BASE_URL}}/users", s.got.URL)
	auth, _ := s.got.Header("authorization")
	assert.Equal(t, "Bearer {{TOKEN}}", auth)
	assert.Equal(t, `{"name":"{{USER_NAME}}"}`, s.got.Body)
}

func TestDriver_SendFailureSkipsPostProcessing(t *testing.T) {
	r := NewRegistry()
	postRan := false
	require.NoError(t, r.RegisterHook("x", StagePostProcessing, PostProcessingFunc(func(context.Context, *PostProcessingContext) error {
		postRan = true
		return nil
	}), 1))

	s := &recordingSender{err: errors.New("connection refused")}
	res, err := newDriver(t, r, s, FailContinue).Run(context.Background(), newRequest())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
	assert.Nil(t, res.Response)
	assert.False(t, postRan)
}

func TestDriver_PostProcessingCannotMutateRequest(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.RegisterHook("x", StagePostProcessing, PostProcessingFunc(func(_ context.Context, hc *PostProcessingContext) error {
		headers := hc.Request.Headers()
		headers[0].Value = "tampered"
		hc.Response.Status = 299
		return nil
	}), 1))

	req := newRequest()
	res, err := newDriver(t, r, &recordingSender{}, FailAbortPipeline).Run(context.Background(), req)
	require.NoError(t, err)

	auth, _ := req.Header("Authorization")
	assert.Equal(t, "Bearer {{TOKEN}}", auth)
	assert.Equal(t, 299, res.Response.Status)
}

func TestDriver_ContextCancelledBetweenHooks(t *testing.T) {
	r := NewRegistry()
	ctx, cancel := context.WithCancel(context.Background())
	secondRan := false

	require.NoError(t, r.RegisterHook("x", StagePreProcessing, PreProcessingFunc(func(context.Context, *PreProcessingContext) error {
		cancel()
		return nil
	}), 1))
	require.NoError(t, r.RegisterHook("x", StagePreProcessing, PreProcessingFunc(func(context.Context, *PreProcessingContext) error {
		secondRan = true
		return nil
	}), 2))

	s := &recordingSender{}
	_, err := newDriver(t, r, s, FailContinue).Run(ctx, newRequest())
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, secondRan)
	assert.Zero(t, s.calls)
}
