package pipeline

import "context"

// Handler is a hook implementation for exactly one stage.
// The set of variants is closed: only the four Func types below implement it.
type Handler interface {
	Stage() Stage
	isHandler()
}

// PreProcessingFunc runs during StagePreProcessing.
type PreProcessingFunc func(ctx context.Context, hc *PreProcessingContext) error

// RequestCompilationFunc runs during StageRequestCompilation.
type RequestCompilationFunc func(ctx context.Context, hc *RequestCompilationContext) error

// PreSendFunc runs during StagePreSend.
type PreSendFunc func(ctx context.Context, hc *PreSendContext) error

// PostProcessingFunc runs during StagePostProcessing.
type PostProcessingFunc func(ctx context.Context, hc *PostProcessingContext) error

func (PreProcessingFunc) Stage() Stage      { return StagePreProcessing }
func (RequestCompilationFunc) Stage() Stage { return StageRequestCompilation }
func (PreSendFunc) Stage() Stage            { return StagePreSend }
func (PostProcessingFunc) Stage() Stage     { return StagePostProcessing }

func (PreProcessingFunc) isHandler()      {}
func (RequestCompilationFunc) isHandler() {}
func (PreSendFunc) isHandler()            {}
func (PostProcessingFunc) isHandler()     {}

// isNil reports whether h is nil or wraps a nil function.
func isNil(h Handler) bool {
	switch fn := h.(type) {
	case nil:
		return true
	case PreProcessingFunc:
		return fn == nil
	case RequestCompilationFunc:
		return fn == nil
	case PreSendFunc:
		return fn == nil
	case PostProcessingFunc:
		return fn == nil
	}
	return false
}
