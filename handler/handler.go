// Package handler runs the HTTP router inside AWS Lambda behind API Gateway.
package handler

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/aws/aws-lambda-go/events"
)

type Handler struct {
	next http.Handler
}

func NewHandler(next http.Handler) (*Handler, error) {
	if next == nil {
		return nil, errors.New("handler: http handler must not be nil")
	}
	return &Handler{next: next}, nil
}

// Handle replays an API Gateway proxy event against the router and returns
// whatever it wrote.
func (h *Handler) Handle(ctx context.Context, event events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	req, err := toHTTPRequest(ctx, event)
	if err != nil {
		return events.APIGatewayProxyResponse{
			StatusCode: http.StatusBadRequest,
			Headers:    map[string]string{"Content-Type": "application/json"},
			Body:       `{"error":"INVALID_INPUT","message":"Solicitud inválida."}`,
		}, nil
	}

	w := newResponseWriter()
	h.next.ServeHTTP(w, req)
	return w.proxyResponse(), nil
}

func toHTTPRequest(ctx context.Context, event events.APIGatewayProxyRequest) (*http.Request, error) {
	body := []byte(event.Body)
	if event.IsBase64Encoded {
		decoded, err := base64.StdEncoding.DecodeString(event.Body)
		if err != nil {
			return nil, fmt.Errorf("handler: decode base64 body: %w", err)
		}
		body = decoded
	}

	path := event.Path
	if path == "" {
		path = "/"
	}
	u := url.URL{Path: path, RawQuery: queryString(event)}

	method := event.HTTPMethod
	if method == "" {
		method = http.MethodGet
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("handler: build request: %w", err)
	}
	for k, vs := range event.MultiValueHeaders {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	for k, v := range event.Headers {
		if req.Header.Get(k) == "" {
			req.Header.Set(k, v)
		}
	}
	if ip := strings.TrimSpace(event.RequestContext.Identity.SourceIP); ip != "" {
		req.RemoteAddr = ip + ":0"
	}
	req.ContentLength = int64(len(body))
	return req, nil
}

func queryString(event events.APIGatewayProxyRequest) string {
	q := url.Values{}
	for k, vs := range event.MultiValueQueryStringParameters {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	for k, v := range event.QueryStringParameters {
		if _, ok := q[k]; !ok {
			q.Set(k, v)
		}
	}
	return q.Encode()
}

// responseWriter buffers the router's output for the proxy response.
type responseWriter struct {
	header http.Header
	status int
	body   bytes.Buffer
}

func newResponseWriter() *responseWriter {
	return &responseWriter{header: http.Header{}}
}

func (w *responseWriter) Header() http.Header { return w.header }

func (w *responseWriter) Write(p []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	return w.body.Write(p)
}

func (w *responseWriter) WriteHeader(status int) {
	if w.status == 0 {
		w.status = status
	}
}

func (w *responseWriter) proxyResponse() events.APIGatewayProxyResponse {
	status := w.status
	if status == 0 {
		status = http.StatusOK
	}
	single := make(map[string]string, len(w.header))
	for k, vs := range w.header {
		if len(vs) > 0 {
			single[k] = vs[0]
		}
	}
	return events.APIGatewayProxyResponse{
		StatusCode:        status,
		Headers:           single,
		MultiValueHeaders: map[string][]string(w.header.Clone()),
		Body:              w.body.String(),
	}
}
