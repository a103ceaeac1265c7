package pipeline

import (
	"fmt"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Metadata is shared by every stage of a single run and discarded afterwards.
type Metadata map[string]any

// =============================================================================
// PRE-PROCESSING
// =============================================================================

// PreProcessingContext is handed to pre-processing hooks.
// Hooks may mutate the request and may cancel the run.
type PreProcessingContext struct {
	RunID    string
	Request  *RequestState
	Metadata Metadata

	cancelled bool
	reason    string
}

// Cancel stops the run at the end of the pre-processing stage. No later
// stage runs and the request is never sent. The first reason wins.
func (c *PreProcessingContext) Cancel(reason string) {
	if c.cancelled {
		return
	}
	c.cancelled = true
	c.reason = reason
}

// Cancelled reports whether a hook cancelled the run, and why.
func (c *PreProcessingContext) Cancelled() (bool, string) {
	return c.cancelled, c.reason
}

// =============================================================================
// REQUEST COMPILATION
// =============================================================================

// RequestCompilationContext is handed to request-compilation hooks.
// Hooks add headers, parameters and body fields. There is no response yet.
type RequestCompilationContext struct {
	RunID    string
	Request  *RequestState
	Metadata Metadata
}

// SetHeader sets a request header.
func (c *RequestCompilationContext) SetHeader(key, value string) {
	c.Request.SetHeader(key, value)
}

// SetQueryParam sets a query parameter.
func (c *RequestCompilationContext) SetQueryParam(key, value string) {
	c.Request.SetQueryParam(key, value)
}

// BodyField reads a JSON body field by gjson path.
func (c *RequestCompilationContext) BodyField(path string) gjson.Result {
	return gjson.Get(c.Request.Body, path)
}

// SetBodyField writes a JSON body field by sjson path. An empty body (or
// BodyNone) becomes a JSON object; other non-JSON bodies are rejected.
func (c *RequestCompilationContext) SetBodyField(path string, value any) error {
	body := c.Request.Body
	switch c.Request.BodyType {
	case BodyJSON:
	case BodyNone, "":
		if body == "" {
			body = "{}"
		}
	default:
		return fmt.Errorf("set body field %q: body type is %s, not json", path, c.Request.BodyType)
	}

	updated, err := sjson.Set(body, path, value)
	if err != nil {
		return fmt.Errorf("set body field %q: %w", path, err)
	}
	c.Request.Body = updated
	c.Request.BodyType = BodyJSON
	return nil
}

// =============================================================================
// PRE-SEND
// =============================================================================

// PreSendContext is handed to pre-send hooks: the last look at the request
// before the host sends it. No sender is reachable from here.
type PreSendContext struct {
	RunID    string
	Request  *RequestState
	Metadata Metadata
}

// =============================================================================
// POST-PROCESSING
// =============================================================================

// PostProcessingContext is handed to post-processing hooks. The response is
// mutable; the request is a read-only snapshot and the run cannot be cancelled.
type PostProcessingContext struct {
	RunID    string
	Request  RequestView
	Response *ResponseState
	Metadata Metadata
}

// ResponseField reads a JSON response field by gjson path.
func (c *PostProcessingContext) ResponseField(path string) gjson.Result {
	return c.Response.Field(path)
}
