package pipeline

import (
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// BodyType describes how RequestState.Body is encoded.
type BodyType string

const (
	BodyNone BodyType = "none"
	BodyJSON BodyType = "json"
	BodyText BodyType = "text"
	BodyForm BodyType = "form"
)

// KeyValue is an ordered header or query parameter entry.
// Disabled entries are kept so editors can toggle them without losing input.
type KeyValue struct {
	Key     string `json:"key"`
	Value   string `json:"value"`
	Enabled bool   `json:"enabled"`
}

// Auth carries authentication settings. Values may contain {{NAME}}
// placeholders and are forwarded unresolved.
type Auth struct {
	Type   string            `json:"type"` // none, bearer, basic, api-key
	Params map[string]string `json:"params,omitempty"`
}

// =============================================================================
// REQUEST STATE
// =============================================================================

// RequestState is the mutable request a run operates on.
type RequestState struct {
	Method      string     `json:"method"`
	URL         string     `json:"url"`
	Headers     []KeyValue `json:"headers,omitempty"`
	QueryParams []KeyValue `json:"query_params,omitempty"`
	Body        string     `json:"body,omitempty"`
	BodyType    BodyType   `json:"body_type,omitempty"`
	Auth        Auth       `json:"auth"`
}

// Header returns the value of the first enabled header matching key (case-insensitive).
func (r *RequestState) Header(key string) (string, bool) {
	return lookup(r.Headers, key, true)
}

// SetHeader replaces the first header matching key or appends a new one.
func (r *RequestState) SetHeader(key, value string) {
	r.Headers = upsert(r.Headers, key, value, true)
}

// DeleteHeader removes every header matching key.
func (r *RequestState) DeleteHeader(key string) {
	r.Headers = remove(r.Headers, key, true)
}

// QueryParam returns the value of the first enabled query parameter named key.
func (r *RequestState) QueryParam(key string) (string, bool) {
	return lookup(r.QueryParams, key, false)
}

// SetQueryParam replaces the first parameter named key or appends a new one.
func (r *RequestState) SetQueryParam(key, value string) {
	r.QueryParams = upsert(r.QueryParams, key, value, false)
}

// Clone returns a deep copy.
func (r *RequestState) Clone() *RequestState {
	if r == nil {
		return nil
	}
	c := *r
	c.Headers = append([]KeyValue(nil), r.Headers...)
	c.QueryParams = append([]KeyValue(nil), r.QueryParams...)
	if r.Auth.Params != nil {
		c.Auth.Params = make(map[string]string, len(r.Auth.Params))
		for k, v := range r.Auth.Params {
			c.Auth.Params[k] = v
		}
	}
	return &c
}

// =============================================================================
// RESPONSE STATE
// =============================================================================

// ResponseState is the mutable response handed to post-processing hooks.
type ResponseState struct {
	Status     int           `json:"status"`
	StatusText string        `json:"status_text"`
	Headers    []KeyValue    `json:"headers,omitempty"`
	Body       string        `json:"body,omitempty"`
	Duration   time.Duration `json:"duration"`
	Size       int64         `json:"size"`
}

// Header returns the first response header matching key (case-insensitive).
func (r *ResponseState) Header(key string) (string, bool) {
	return lookup(r.Headers, key, true)
}

// SetHeader replaces or appends a response header.
func (r *ResponseState) SetHeader(key, value string) {
	r.Headers = upsert(r.Headers, key, value, true)
}

// Field queries the JSON body with a gjson path.
func (r *ResponseState) Field(path string) gjson.Result {
	return gjson.Get(r.Body, path)
}

// =============================================================================
// READ-ONLY REQUEST VIEW
// =============================================================================

// RequestView is a read-only snapshot of a request, given to
// post-processing hooks. Mutating what it returns never reaches the run.
// The zero value reads as an empty request.
type RequestView struct {
	req *RequestState
}

// NewRequestView snapshots req. A nil req gives an empty view.
func NewRequestView(req *RequestState) RequestView {
	return RequestView{req: req.Clone()}
}

var emptyRequest RequestState

func (v RequestView) state() *RequestState {
	if v.req == nil {
		return &emptyRequest
	}
	return v.req
}

func (v RequestView) Method() string     { return v.state().Method }
func (v RequestView) URL() string        { return v.state().URL }
func (v RequestView) Body() string       { return v.state().Body }
func (v RequestView) BodyType() BodyType { return v.state().BodyType }
func (v RequestView) AuthType() string   { return v.state().Auth.Type }

// Header returns the first enabled header matching key.
func (v RequestView) Header(key string) (string, bool) { return v.state().Header(key) }

// Headers returns a copy of the request headers.
func (v RequestView) Headers() []KeyValue { return append([]KeyValue(nil), v.state().Headers...) }

// QueryParams returns a copy of the query parameters.
func (v RequestView) QueryParams() []KeyValue {
	return append([]KeyValue(nil), v.state().QueryParams...)
}

// BodyField queries the JSON body with a gjson path.
func (v RequestView) BodyField(path string) gjson.Result {
	return gjson.Get(v.state().Body, path)
}

// =============================================================================
// HELPERS
// =============================================================================

func keyEqual(a, b string, fold bool) bool {
	if fold {
		return strings.EqualFold(a, b)
	}
	return a == b
}

func lookup(list []KeyValue, key string, fold bool) (string, bool) {
	for _, kv := range list {
		if kv.Enabled && keyEqual(kv.Key, key, fold) {
			return kv.Value, true
		}
	}
	return "", false
}

func upsert(list []KeyValue, key, value string, fold bool) []KeyValue {
	for i := range list {
		if keyEqual(list[i].Key, key, fold) {
			list[i].Value = value
			list[i].Enabled = true
			return list
		}
	}
	return append(list, KeyValue{Key: key, Value: value, Enabled: true})
}

func remove(list []KeyValue, key string, fold bool) []KeyValue {
	out := list[:0]
	for _, kv := range list {
		if !keyEqual(kv.Key, key, fold) {
			out = append(out, kv)
		}
	}
	return out
}
