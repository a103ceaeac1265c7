// Package pipeline defines the request pipeline contract between extensions and the host.
//
// DESIGN: A request passes through four fixed stages. Extensions attach hooks
// to a stage; they can order hooks inside a stage (priority) but can never
// reorder, add or skip stages.
//
//	PreProcessing → RequestCompilation → PreSend → [host sends] → PostProcessing
//
// Each stage has its own context type, and handlers are a closed set of
// stage-specific function types, so a post-processing handler cannot be
// registered where it would see pre-send-only state.
//
// SECURITY: Environment placeholders ({{NAME}}) in request fields are never
// resolved in this package. Resolution belongs to the host's Sender, after
// every extension-visible stage that can mutate the request has run.
//
// FILES:
//   - stage.go:    Stage enumeration
//   - state.go:    RequestState, ResponseState, RequestView
//   - context.go:  Per-stage hook contexts
//   - handler.go:  Sealed handler variants
//   - registry.go: Hook registry and per-extension Registrar
//   - driver.go:   Reference driver executing a run
package pipeline

import "fmt"

// Stage identifies one of the four fixed execution points.
type Stage string

const (
	StagePreProcessing      Stage = "pre-processing"
	StageRequestCompilation Stage = "request-compilation"
	StagePreSend            Stage = "pre-send"
	StagePostProcessing     Stage = "post-processing"
)

// AllStages lists the stages in execution order.
var AllStages = []Stage{
	StagePreProcessing,
	StageRequestCompilation,
	StagePreSend,
	StagePostProcessing,
}

// DefaultPriority is the priority used when an extension does not pick one.
const DefaultPriority = 100

// Valid reports whether s is one of the four stages.
func (s Stage) Valid() bool {
	switch s {
	case StagePreProcessing, StageRequestCompilation, StagePreSend, StagePostProcessing:
		return true
	}
	return false
}

// Index returns the execution position of s, or -1 for an unknown stage.
func (s Stage) Index() int {
	for i, st := range AllStages {
		if st == s {
			return i
		}
	}
	return -1
}

// ParseStage converts a stage tag into a Stage.
func ParseStage(tag string) (Stage, error) {
	s := Stage(tag)
	if !s.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownStage, tag)
	}
	return s, nil
}
