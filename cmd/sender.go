package main

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/compresr/extension-sdk/pkg/environment"
	"github.com/compresr/extension-sdk/pkg/pipeline"
)

// maxResponseBody caps how much of a response body is kept in memory.
const maxResponseBody = 10 << 20

// httpSender resolves placeholders against secret values and performs the
// request. It is the only code in the host that sees values.
type httpSender struct {
	client  *http.Client
	secrets func(name string) (string, bool)
}

func newHTTPSender(timeout time.Duration, secrets func(string) (string, bool)) *httpSender {
	if secrets == nil {
		secrets = func(string) (string, bool) { return "", false }
	}
	return &httpSender{
		client:  &http.Client{Timeout: timeout},
		secrets: secrets,
	}
}

// Send implements pipeline.Sender.
func (s *httpSender) Send(ctx context.Context, req *pipeline.RequestState) (*pipeline.ResponseState, error) {
	resolve := func(text string) string { return environment.Resolve(text, s.secrets) }

	u, err := url.Parse(resolve(req.URL))
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}
	q := u.Query()
	for _, p := range req.QueryParams {
		if p.Enabled {
			q.Add(resolve(p.Key), resolve(p.Value))
		}
	}
	u.RawQuery = q.Encode()

	var body io.Reader
	if req.BodyType != pipeline.BodyNone && req.Body != "" {
		body = strings.NewReader(resolve(req.Body))
	}

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	httpReq, err := http.NewRequestWithContext(ctx, strings.ToUpper(method), u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	switch req.BodyType {
	case pipeline.BodyJSON:
		httpReq.Header.Set("Content-Type", "application/json")
	case pipeline.BodyForm:
		httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	case pipeline.BodyText:
		httpReq.Header.Set("Content-Type", "text/plain")
	}
	for _, h := range req.Headers {
		if h.Enabled {
			httpReq.Header.Set(resolve(h.Key), resolve(h.Value))
		}
	}
	applyAuth(httpReq, req.Auth, resolve)

	start := time.Now()
	resp, err := s.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	out := &pipeline.ResponseState{
		Status:     resp.StatusCode,
		StatusText: http.StatusText(resp.StatusCode),
		Body:       string(data),
		Duration:   time.Since(start),
		Size:       int64(len(data)),
	}
	for k, vs := range resp.Header {
		for _, v := range vs {
			out.Headers = append(out.Headers, pipeline.KeyValue{Key: k, Value: v, Enabled: true})
		}
	}
	return out, nil
}

func applyAuth(r *http.Request, auth pipeline.Auth, resolve func(string) string) {
	p := func(key string) string { return resolve(auth.Params[key]) }

	switch auth.Type {
	case "bearer":
		r.Header.Set("Authorization", "Bearer "+p("token"))
	case "basic":
		creds := p("username") + ":" + p("password")
		r.Header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(creds)))
	case "api-key":
		name := auth.Params["key"]
		if name == "" {
			name = "X-API-Key"
		}
		if auth.Params["in"] == "query" {
			q := r.URL.Query()
			q.Set(name, p("value"))
			r.URL.RawQuery = q.Encode()
			return
		}
		r.Header.Set(name, p("value"))
	}
}
