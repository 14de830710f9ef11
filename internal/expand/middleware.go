package expand

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// Middleware creates the response interceptor: echo middleware that
// rewrites reference identifiers in JSON responses into full resources
// when the request carries an expand query parameter.
//
// The middleware is a no-op for internal resolution calls and for
// requests without an expand parameter, adding zero overhead to normal
// traffic. Expansion is purely additive: any failure while expanding
// results in the original response being returned byte-identical.
func Middleware(engine *Engine, routes *RouteIndex, logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			// Hard stop for engine-issued calls: this is the
			// anti-recursion guarantee.
			if IsInternalCall(c.Request().Context()) {
				return next(c)
			}

			raw := c.QueryParam("expand")
			if raw == "" {
				return next(c)
			}

			// Capture the response body by wrapping the response writer.
			origWriter := c.Response().Writer
			rec := &responseRecorder{
				ResponseWriter: origWriter,
				body:           &bytes.Buffer{},
				statusCode:     http.StatusOK,
			}
			c.Response().Writer = rec

			if err := next(c); err != nil {
				// Restore the original writer before returning the error
				// so the echo error handler can write directly.
				c.Response().Writer = origWriter
				return err
			}

			if rec.statusCode < 200 || rec.statusCode >= 300 {
				return flushOriginal(origWriter, rec)
			}
			if !isJSONResponse(rec.Header().Get(echo.HeaderContentType)) {
				return flushOriginal(origWriter, rec)
			}

			paths := ParsePaths(raw)
			if len(paths) == 0 {
				return flushOriginal(origWriter, rec)
			}
			if MaxDepth(paths) > MaxExpandDepth {
				logger.Debug().Str("expand", raw).Int("depth", MaxDepth(paths)).
					Msg("expand depth exceeds limit, returning response unexpanded")
				return flushOriginal(origWriter, rec)
			}

			schema, ok := routes.SchemaForRoute(c.Request().Method, c.Path())
			if !ok {
				logger.Debug().Str("method", c.Request().Method).Str("route", c.Path()).
					Msg("no response schema registered for route, skipping expansion")
				return flushOriginal(origWriter, rec)
			}

			expanded, ok := expandBody(c, engine, rec.body.Bytes(), paths, schema, logger)
			if !ok {
				return flushOriginal(origWriter, rec)
			}

			origWriter.Header().Set(echo.HeaderContentType, echo.MIMEApplicationJSONCharsetUTF8)
			origWriter.WriteHeader(rec.statusCode)
			_, writeErr := origWriter.Write(expanded)
			return writeErr
		}
	}
}

// expandBody is the failure boundary around parsing, expansion and
// re-serialization. Any error or panic yields ok=false so the caller
// flushes the original, unmodified response.
func expandBody(c echo.Context, engine *Engine, body []byte, paths []Path, schema string, logger zerolog.Logger) (out []byte, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error().Interface("panic", r).Str("route", c.Path()).
				Msg("panic during expansion, returning original response")
			out, ok = nil, false
		}
	}()

	var data interface{}
	if err := json.Unmarshal(body, &data); err != nil {
		logger.Error().Err(err).Str("route", c.Path()).
			Msg("response body is not valid JSON, skipping expansion")
		return nil, false
	}

	expanded := engine.Apply(c.Request().Context(), data, paths, schema, 0, CallerFromContext(c))

	out, err := json.Marshal(expanded)
	if err != nil {
		logger.Error().Err(err).Str("route", c.Path()).
			Msg("failed to serialize expanded response, returning original")
		return nil, false
	}
	return out, true
}

func isJSONResponse(contentType string) bool {
	return strings.HasPrefix(contentType, echo.MIMEApplicationJSON)
}

// responseRecorder buffers the response body and status code written by
// downstream handlers so the interceptor can inspect and replace the
// output. Headers pass through to the wrapped writer.
type responseRecorder struct {
	http.ResponseWriter
	body       *bytes.Buffer
	statusCode int
	wroteHead  bool
}

func (r *responseRecorder) WriteHeader(code int) {
	r.statusCode = code
	r.wroteHead = true
	// Nothing is forwarded to the underlying writer yet; everything is
	// buffered until the interceptor decides what to emit.
}

func (r *responseRecorder) Write(b []byte) (int, error) {
	if !r.wroteHead {
		r.statusCode = http.StatusOK
		r.wroteHead = true
	}
	return r.body.Write(b)
}

// flushOriginal writes the buffered response unchanged to the original
// http.ResponseWriter.
func flushOriginal(w http.ResponseWriter, rec *responseRecorder) error {
	w.WriteHeader(rec.statusCode)
	_, err := w.Write(rec.body.Bytes())
	return err
}
