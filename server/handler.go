package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/gzhttp"

	"github.com/justapithecus/chartd/artifact"
	"github.com/justapithecus/chartd/iox"
	"github.com/justapithecus/chartd/metrics"
	"github.com/justapithecus/chartd/offload"
	"github.com/justapithecus/chartd/query"
	"github.com/justapithecus/chartd/types"
)

// HeaderRequestID carries the request ID in both directions.
const HeaderRequestID = "X-Request-ID"

type ctxKey struct{}

// RequestID returns the request ID assigned by the middleware, if any.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}

// statusFor maps pipeline errors to HTTP statuses. Validation and render
// failures are the client's query failing, so both are 400.
func statusFor(err error) int {
	switch {
	case types.IsKind(err, types.KindValidation), types.IsKind(err, types.KindRender):
		return http.StatusBadRequest
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// gzipMinSize is the smallest JSON body worth compressing.
const gzipMinSize = 256

func (s *Server) routes() (http.Handler, error) {
	// Images are already compressed; only JSON routes are gzipped.
	gz, err := gzhttp.NewWrapper(gzhttp.MinSize(gzipMinSize))
	if err != nil {
		return nil, fmt.Errorf("gzip middleware: %w", err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/chart", s.handleChart)
	mux.HandleFunc("GET /render", s.handleChart)
	mux.Handle("GET /api/v1/summary", gz(http.HandlerFunc(s.handleSummary)))
	mux.Handle("GET /api/v1/stats", gz(http.HandlerFunc(s.handleStats)))
	mux.HandleFunc("GET /healthz", s.handleHealth)
	return s.middleware(mux), nil
}

func (s *Server) handleChart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	raw := r.URL.Query().Get("query")
	out, err := s.pipeline.Handle(ctx, raw)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}

	rc, err := s.pipeline.Open(ctx, out.Name)
	if errors.Is(err, artifact.ErrNotFound) {
		// Removed after lookup; render it once more.
		s.logger.Warn("artifact vanished before open, re-rendering", map[string]any{
			"request_id": RequestID(ctx),
			"name":       out.Name,
		})
		s.pipeline.Forget(out.Key)
		if out, err = s.pipeline.Handle(ctx, raw); err != nil {
			writeError(w, statusFor(err), err.Error())
			return
		}
		rc, err = s.pipeline.Open(ctx, out.Name)
	}
	if err != nil {
		s.logger.Error("failed to open artifact", map[string]any{
			"request_id": RequestID(ctx),
			"name":       out.Name,
			"error":      err.Error(),
		})
		writeError(w, http.StatusInternalServerError, "artifact unavailable")
		return
	}
	defer iox.DiscardClose(rc)

	cacheStatus := "MISS"
	if out.Hit {
		cacheStatus = "HIT"
	}
	h := w.Header()
	h.Set("Content-Type", s.pipeline.Format().ContentType())
	h.Set("Cache-Control", "public, max-age=31536000, immutable")
	h.Set("X-Chart-Key", out.Key.String())
	h.Set("X-Cache", cacheStatus)
	w.WriteHeader(http.StatusOK)

	if _, err := io.Copy(w, rc); err != nil {
		s.logger.Warn("failed to stream artifact", map[string]any{
			"request_id": RequestID(ctx),
			"name":       out.Name,
			"error":      err.Error(),
		})
		return
	}
	s.logger.Debug("chart served", map[string]any{
		"request_id": RequestID(ctx),
		"key":        out.Key.String(),
		"cache":      cacheStatus,
		"state":      types.StateResponded,
	})
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	q, err := query.Decode(r.URL.Query().Get("query"))
	if err != nil {
		s.collector.IncValidationFailure()
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	summary, err := offload.Summarize(r.Context(), s.pool, q)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// StatsResponse is the body of GET /api/v1/stats.
type StatsResponse struct {
	Version string           `json:"version"`
	Uptime  string           `json:"uptime"`
	Metrics metrics.Snapshot `json:"metrics"`
	Cache   CacheStats       `json:"cache"`
	Offload OffloadPoolStats `json:"offload"`
}

// OffloadPoolStats reports offload pool occupancy.
type OffloadPoolStats struct {
	Workers int `json:"workers"`
	Pending int `json:"pending"`
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, StatsResponse{
		Version: types.Version,
		Uptime:  time.Since(s.started).Truncate(time.Second).String(),
		Metrics: s.collector.Snapshot(),
		Cache:   s.pipeline.CacheStats(),
		Offload: OffloadPoolStats{Workers: s.pool.Workers(), Pending: s.pool.Pending()},
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, "ok")
}

// statusRecorder captures the status code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int64
}

func (r *statusRecorder) WriteHeader(code int) {
	if r.status == 0 {
		r.status = code
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	n, err := r.ResponseWriter.Write(b)
	r.bytes += int64(n)
	return n, err
}

// middleware assigns a request ID, recovers panics and logs each request.
func (s *Server) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		id := r.Header.Get(HeaderRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(HeaderRequestID, id)
		r = r.WithContext(context.WithValue(r.Context(), ctxKey{}, id))

		rec := &statusRecorder{ResponseWriter: w}
		defer func() {
			if p := recover(); p != nil {
				s.logger.Error("handler panicked", map[string]any{
					"request_id": id,
					"panic":      fmt.Sprint(p),
				})
				if rec.status == 0 {
					writeError(rec, http.StatusInternalServerError, "internal error")
				}
			}

			s.logger.Info("request", map[string]any{
				"request_id":  id,
				"method":      r.Method,
				"path":        r.URL.Path,
				"query_bytes": len(r.URL.Query().Get("query")),
				"status":      rec.status,
				"bytes":       rec.bytes,
				"duration_ms": time.Since(start).Milliseconds(),
			})
		}()

		next.ServeHTTP(rec, r)
	})
}
