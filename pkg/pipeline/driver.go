package pipeline

import (
	"context"
	"fmt"
	"runtime/debug"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Sender performs the network call for a compiled request. It is supplied
// by the host and is the only place where placeholders may be resolved.
type Sender func(ctx context.Context, req *RequestState) (*ResponseState, error)

// FailurePolicy decides what a failing hook does to the rest of the run.
type FailurePolicy string

const (
	// FailAbortPipeline stops the whole run at the first failing hook.
	FailAbortPipeline FailurePolicy = "abort-pipeline"
	// FailSkipStage skips the remaining hooks of the failing stage.
	FailSkipStage FailurePolicy = "skip-stage"
	// FailContinue records the failure and runs the next hook.
	FailContinue FailurePolicy = "continue"
)

// ParseFailurePolicy validates a policy name.
func ParseFailurePolicy(s string) (FailurePolicy, error) {
	switch p := FailurePolicy(s); p {
	case FailAbortPipeline, FailSkipStage, FailContinue:
		return p, nil
	}
	return "", fmt.Errorf("%w: %q (must be abort-pipeline, skip-stage or continue)", ErrInvalidPolicy, s)
}

// Metrics receives driver counters. monitoring.MetricsCollector satisfies it.
type Metrics interface {
	RecordPipelineRun(cancelled bool)
	RecordHookFailure()
}

type noopMetrics struct{}

func (noopMetrics) RecordPipelineRun(bool) {}
func (noopMetrics) RecordHookFailure()     {}

// Result describes a finished run.
type Result struct {
	RunID        string
	Cancelled    bool
	CancelReason string
	Request      *RequestState
	Response     *ResponseState // nil when cancelled or when sending failed
	Metadata     Metadata
	Failures     []*HookError // failures tolerated by the policy
}

// Driver executes runs against a Registry. It is the reference host-side
// implementation of the stage ordering contract.
type Driver struct {
	registry *Registry
	send     Sender
	policy   FailurePolicy
	metrics  Metrics
	logger   zerolog.Logger
}

// Option configures a Driver.
type Option func(*Driver)

// WithLogger sets the driver logger. Defaults to the global zerolog logger.
func WithLogger(l zerolog.Logger) Option {
	return func(d *Driver) { d.logger = l }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m Metrics) Option {
	return func(d *Driver) {
		if m != nil {
			d.metrics = m
		}
	}
}

// NewDriver creates a driver. The failure policy has no default and must be
// chosen by the host.
func NewDriver(registry *Registry, send Sender, policy FailurePolicy, opts ...Option) (*Driver, error) {
	if registry == nil {
		return nil, ErrNilRegistry
	}
	if send == nil {
		return nil, ErrNilSender
	}
	if _, err := ParseFailurePolicy(string(policy)); err != nil {
		return nil, err
	}

	d := &Driver{
		registry: registry,
		send:     send,
		policy:   policy,
		metrics:  noopMetrics{},
		logger:   log.Logger,
	}
	for _, o := range opts {
		o(d)
	}
	return d, nil
}

// Policy returns the configured failure policy.
func (d *Driver) Policy() FailurePolicy { return d.policy }

// run holds the per-run contexts, one per stage.
type run struct {
	pre     *PreProcessingContext
	compile *RequestCompilationContext
	preSend *PreSendContext
	post    *PostProcessingContext
}

// Run drives req through every stage. Hooks run one at a time and each
// returns before the next starts. ctx is only checked between hooks.
//
// A non-nil error means the run was aborted (hook failure under
// FailAbortPipeline, sender failure, or ctx done); the returned Result still
// describes how far the run got.
func (d *Driver) Run(ctx context.Context, req *RequestState) (*Result, error) {
	if req == nil {
		return nil, ErrNilRequest
	}

	runID := uuid.New().String()
	meta := Metadata{}
	res := &Result{RunID: runID, Request: req, Metadata: meta}
	logger := d.logger.With().Str("run_id", runID).Logger()

	r := &run{
		pre:     &PreProcessingContext{RunID: runID, Request: req, Metadata: meta},
		compile: &RequestCompilationContext{RunID: runID, Request: req, Metadata: meta},
		preSend: &PreSendContext{RunID: runID, Request: req, Metadata: meta},
	}

	finish := func(err error) (*Result, error) {
		d.metrics.RecordPipelineRun(res.Cancelled)
		if err != nil {
			logger.Warn().Err(err).Msg("pipeline_aborted")
		}
		return res, err
	}

	preErr := d.runStage(ctx, StagePreProcessing, r, res, logger)
	if cancelled, reason := r.pre.Cancelled(); cancelled {
		res.Cancelled = true
		res.CancelReason = reason
		logger.Info().Str("reason", reason).Msg("pipeline_cancelled")
	}
	if preErr != nil || res.Cancelled {
		return finish(preErr)
	}

	for _, stage := range []Stage{StageRequestCompilation, StagePreSend} {
		if err := d.runStage(ctx, stage, r, res, logger); err != nil {
			return finish(err)
		}
	}

	if err := ctx.Err(); err != nil {
		return finish(err)
	}
	resp, err := d.send(ctx, req)
	if err != nil {
		return finish(fmt.Errorf("send request: %w", err))
	}
	if resp == nil {
		return finish(ErrNilResponse)
	}
	res.Response = resp

	r.post = &PostProcessingContext{
		RunID:    runID,
		Request:  NewRequestView(req),
		Response: resp,
		Metadata: meta,
	}
	if err := d.runStage(ctx, StagePostProcessing, r, res, logger); err != nil {
		return finish(err)
	}
	return finish(nil)
}

// runStage invokes the stage's hooks in order and applies the failure policy.
func (d *Driver) runStage(ctx context.Context, stage Stage, r *run, res *Result, logger zerolog.Logger) error {
	for _, h := range d.registry.Hooks(stage) {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := d.invoke(ctx, h, r)
		if err == nil {
			continue
		}

		herr := &HookError{
			RunID:       res.RunID,
			Stage:       stage,
			ExtensionID: h.ExtensionID,
			Priority:    h.Priority,
			Err:         err,
		}
		d.metrics.RecordHookFailure()
		logger.Error().
			Str("stage", string(stage)).
			Str("extension_id", h.ExtensionID).
			Int("priority", h.Priority).
			Err(err).
			Msg("hook_failed")

		switch d.policy {
		case FailAbortPipeline:
			return herr
		case FailSkipStage:
			res.Failures = append(res.Failures, herr)
			return nil
		default:
			res.Failures = append(res.Failures, herr)
		}
	}
	return nil
}

// invoke calls one hook, turning a panic into an error.
func (d *Driver) invoke(ctx context.Context, h Hook, r *run) (err error) {
	defer func() {
		if p := recover(); p != nil {
			d.logger.Error().
				Str("extension_id", h.ExtensionID).
				Interface("panic", p).
				Str("stack", string(debug.Stack())).
				Msg("hook_panic")
			err = fmt.Errorf("%w: %v", ErrHandlerPanic, p)
		}
	}()
	return dispatch(ctx, h.Handler, r)
}

// dispatch routes a handler to the context of its stage.
func dispatch(ctx context.Context, h Handler, r *run) error {
	switch fn := h.(type) {
	case PreProcessingFunc:
		return fn(ctx, r.pre)
	case RequestCompilationFunc:
		return fn(ctx, r.compile)
	case PreSendFunc:
		return fn(ctx, r.preSend)
	case PostProcessingFunc:
		return fn(ctx, r.post)
	default:
		return fmt.Errorf("%w: %T", ErrUnknownHandler, h)
	}
}
