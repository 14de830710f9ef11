package expand

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

type internalCallKey struct{}

// WithInternalCall marks a context as belonging to an engine-issued
// internal resolution call. The response interceptor treats the marker as
// a hard stop, which is what prevents recursive re-expansion. Because the
// marker lives in the server-side request context it cannot be forged by
// an external client.
func WithInternalCall(ctx context.Context) context.Context {
	return context.WithValue(ctx, internalCallKey{}, true)
}

// IsInternalCall reports whether the context carries the internal marker.
func IsInternalCall(ctx context.Context) bool {
	flagged, _ := ctx.Value(internalCallKey{}).(bool)
	return flagged
}

// Caller carries the identity material of the original external request.
// Internal resolution calls forward it verbatim so every expanded
// resource is authorization-checked against the original requester.
type Caller struct {
	Authorization string
	TenantID      string
	RequestID     string
}

// CallerFromContext captures the caller identity from an echo request.
func CallerFromContext(c echo.Context) Caller {
	req := c.Request()
	rid, _ := c.Get("request_id").(string)
	return Caller{
		Authorization: req.Header.Get(echo.HeaderAuthorization),
		TenantID:      req.Header.Get("X-Tenant-ID"),
		RequestID:     rid,
	}
}

// Dispatcher issues one in-process call through the application's own
// routing/authorization/handler pipeline and returns the resulting status
// and body, functionally equivalent to an external HTTP round trip but
// without a socket.
//
// Contract: implementations MUST tag the outgoing request context with
// WithInternalCall and MUST NOT attach an expand query parameter.
type Dispatcher interface {
	Dispatch(ctx context.Context, method, path string, caller Caller) (int, []byte, error)
}

// ServerDispatcher re-enters the server's own http.Handler (the echo
// instance) in process.
type ServerDispatcher struct {
	handler http.Handler
}

// NewServerDispatcher creates a dispatcher over the server's root handler.
func NewServerDispatcher(handler http.Handler) *ServerDispatcher {
	return &ServerDispatcher{handler: handler}
}

// Dispatch implements Dispatcher.
func (d *ServerDispatcher) Dispatch(ctx context.Context, method, path string, caller Caller) (int, []byte, error) {
	req, err := http.NewRequestWithContext(WithInternalCall(ctx), method, path, nil)
	if err != nil {
		return 0, nil, fmt.Errorf("build internal request: %w", err)
	}
	req.Header.Set(echo.HeaderAccept, echo.MIMEApplicationJSON)
	if caller.Authorization != "" {
		req.Header.Set(echo.HeaderAuthorization, caller.Authorization)
	}
	if caller.TenantID != "" {
		req.Header.Set("X-Tenant-ID", caller.TenantID)
	}
	if caller.RequestID != "" {
		req.Header.Set("X-Request-ID", caller.RequestID)
	}

	w := &bufferedWriter{header: make(http.Header), status: http.StatusOK}
	d.handler.ServeHTTP(w, req)

	if err := ctx.Err(); err != nil {
		return 0, nil, err
	}
	return w.status, w.body.Bytes(), nil
}

// bufferedWriter collects an in-process response without a socket.
type bufferedWriter struct {
	header http.Header
	body   bytes.Buffer
	status int
}

func (w *bufferedWriter) Header() http.Header { return w.header }

func (w *bufferedWriter) WriteHeader(code int) { w.status = code }

func (w *bufferedWriter) Write(b []byte) (int, error) { return w.body.Write(b) }

// Outcome is the tagged result of one internal resolution attempt: either
// a resolved resource object, or a fallback to the original identifier.
// Resolution never produces a hard failure.
type Outcome struct {
	Resource map[string]interface{}
	ID       string
	Reason   string
}

// Resolved reports whether the resource was fetched successfully.
func (o Outcome) Resolved() bool { return o.Resource != nil }

func fallback(id, reason string) Outcome {
	return Outcome{ID: id, Reason: reason}
}

// Resolver turns one reference identifier into the full referenced
// resource by dispatching an internal call for the operation registered
// in the route index.
type Resolver struct {
	routes     *RouteIndex
	dispatcher Dispatcher
	timeout    time.Duration
	log        zerolog.Logger
}

// DefaultResolveTimeout bounds a single internal resolution call so deep
// or wide expansions cannot hold a request open indefinitely.
const DefaultResolveTimeout = 5 * time.Second

// NewResolver creates a Resolver. A non-positive timeout falls back to
// DefaultResolveTimeout.
func NewResolver(routes *RouteIndex, dispatcher Dispatcher, timeout time.Duration, log zerolog.Logger) *Resolver {
	if timeout <= 0 {
		timeout = DefaultResolveTimeout
	}
	return &Resolver{routes: routes, dispatcher: dispatcher, timeout: timeout, log: log}
}

// Resolve fetches the resource behind one identifier. Every failure mode
// (unknown operation, transport error, non-2xx, unparsable body,
// timeout, parent cancellation) degrades to a fallback outcome.
func (r *Resolver) Resolve(ctx context.Context, operationID, id string, caller Caller) Outcome {
	rt, ok := r.routes.Operation(operationID)
	if !ok {
		r.log.Debug().Str("operation", operationID).Msg("unknown fetch operation")
		return fallback(id, "unknown operation "+operationID)
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	status, body, err := r.dispatcher.Dispatch(ctx, rt.Method, rt.Concrete(url.PathEscape(id)), caller)
	if err != nil {
		r.log.Warn().Str("operation", operationID).Str("id", id).Err(err).
			Msg("internal resolution failed, keeping identifier")
		return fallback(id, err.Error())
	}
	if status < 200 || status >= 300 {
		r.log.Warn().Str("operation", operationID).Str("id", id).Int("status", status).
			Msg("internal resolution returned non-2xx, keeping identifier")
		return fallback(id, fmt.Sprintf("status %d", status))
	}

	var resource map[string]interface{}
	if err := json.Unmarshal(body, &resource); err != nil {
		r.log.Warn().Str("operation", operationID).Str("id", id).Err(err).
			Msg("internal resolution returned unparsable body, keeping identifier")
		return fallback(id, "unparsable resolution body")
	}
	return Outcome{Resource: resource, ID: id}
}

// ResolveMany resolves a batch of identifiers with a single internal call
// against a batch operation whose route template takes a comma-joined
// {ids} placeholder. The response may be a plain JSON array or an
// {items, pagination} envelope; results are matched back to identifiers
// by their "id" field, and identifiers absent from the response fall back
// individually.
//
// The second return value is false when the batch route is unknown or the
// call failed outright; callers should then fall back to per-item
// resolution.
func (r *Resolver) ResolveMany(ctx context.Context, operationID string, ids []string, caller Caller) ([]Outcome, bool) {
	rt, ok := r.routes.Operation(operationID)
	if !ok || len(ids) == 0 {
		return nil, false
	}

	escaped := make([]string, len(ids))
	for i, id := range ids {
		escaped[i] = url.PathEscape(id)
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	status, body, err := r.dispatcher.Dispatch(ctx, rt.Method, rt.Concrete(strings.Join(escaped, ",")), caller)
	if err != nil || status < 200 || status >= 300 {
		r.log.Warn().Str("operation", operationID).Int("ids", len(ids)).Err(err).Int("status", status).
			Msg("batch resolution failed, falling back to per-item calls")
		return nil, false
	}

	items, err := decodeBatchBody(body)
	if err != nil {
		r.log.Warn().Str("operation", operationID).Err(err).
			Msg("batch resolution body unparsable, falling back to per-item calls")
		return nil, false
	}

	byID := make(map[string]map[string]interface{}, len(items))
	for _, item := range items {
		obj, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		if id, ok := obj["id"].(string); ok {
			byID[id] = obj
		}
	}

	outcomes := make([]Outcome, len(ids))
	for i, id := range ids {
		if obj, ok := byID[id]; ok {
			outcomes[i] = Outcome{Resource: obj, ID: id}
		} else {
			outcomes[i] = fallback(id, "missing from batch response")
		}
	}
	return outcomes, true
}

// decodeBatchBody accepts either a JSON array or a paginated envelope.
func decodeBatchBody(body []byte) ([]interface{}, error) {
	var items []interface{}
	if err := json.Unmarshal(body, &items); err == nil {
		return items, nil
	}
	var envelope map[string]interface{}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, err
	}
	items, ok := envelope["items"].([]interface{})
	if !ok {
		return nil, fmt.Errorf("batch response is neither an array nor an envelope")
	}
	return items, nil
}
