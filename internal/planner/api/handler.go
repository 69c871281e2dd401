// Package api exposes the confirmation engine over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/La100/vibeplanner-sub001/common/trace"
	"github.com/La100/vibeplanner-sub001/internal/planner/actions"
	"github.com/La100/vibeplanner-sub001/internal/planner/confirm"
	"github.com/La100/vibeplanner-sub001/internal/planner/dispatch"
	"github.com/La100/vibeplanner-sub001/internal/planner/observability"
)

// TraceHeader carries the trace id of a request and its response.
const TraceHeader = "X-Trace-ID"

// Ingester records raw tool calls into the feed of a thread.
type Ingester interface {
	IngestToolCalls(ctx context.Context, threadID string, calls []actions.RawToolCall) ([]actions.RawToolCall, error)
}

// Handler serves the thread and action routes.
type Handler struct {
	engine   *confirm.Engine
	ingester Ingester
	logger   *slog.Logger
	idem     *idempotency
	router   chi.Router
}

// Option configures a Handler.
type Option func(*Handler)

// WithIngester enables POST /threads/{threadID}/tool-calls.
func WithIngester(i Ingester) Option {
	return func(h *Handler) { h.ingester = i }
}

// WithLogger sets the request logger.
func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) { h.logger = l }
}

// WithIdempotencyTTL sets how long responses to keyed requests are replayed.
// Zero disables replay.
func WithIdempotencyTTL(ttl time.Duration) Option {
	return func(h *Handler) { h.idem = newIdempotency(ttl) }
}

// NewHandler builds the router over engine.
func NewHandler(engine *confirm.Engine, opts ...Option) *Handler {
	h := &Handler{
		engine: engine,
		logger: slog.Default(),
		idem:   newIdempotency(60 * time.Second),
	}
	for _, opt := range opts {
		opt(h)
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(h.traced)

	r.Route("/threads/{threadID}", func(r chi.Router) {
		r.Get("/actions", h.listActions)
		r.Group(func(r chi.Router) {
			r.Use(h.idem.middleware)
			r.Post("/actions/confirm-all", h.confirmAll)
			r.Post("/actions/reject-all", h.rejectAll)
			r.Post("/actions/{clientID}/confirm", h.confirmAction)
			r.Post("/actions/{clientID}/reject", h.rejectAction)
			r.Post("/close", h.closeThread)
			r.Post("/tool-calls", h.ingestToolCalls)
		})
	})
	h.router = r
	return h
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

// traced attaches a trace id to the request context and logs the request.
func (h *Handler) traced(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID := r.Header.Get(TraceHeader)
		if traceID == "" {
			traceID = trace.GenerateID()
		}
		ctx := trace.WithTraceID(r.Context(), traceID)
		w.Header().Set(TraceHeader, traceID)

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r.WithContext(ctx))
		observability.From(ctx, h.logger).Debug("http request",
			"method", r.Method, "path", r.URL.Path, "status", ww.Status(),
			"duration", time.Since(start))
	})
}

// ── Views ──

type actionView struct {
	actions.Action
	Summary actions.Summary `json:"summary"`
}

type actionsResponse struct {
	ThreadID  string       `json:"threadId"`
	ProjectID string       `json:"projectId"`
	Pending   int          `json:"pending"`
	Actions   []actionView `json:"actions"`
}

type confirmResponse struct {
	Result dispatch.Result `json:"result"`
	Action actions.Action  `json:"action"`
}

type ingestResponse struct {
	Stored int `json:"stored"`
}

// ── Handlers ──

// errMissingProject rejects an action route called without ?projectId=.
var errMissingProject = errors.New("projectId query parameter is required")

// session opens the thread of r. Reading a thread does not need a project.
func (h *Handler) session(r *http.Request) (*confirm.Session, error) {
	scope := dispatch.Scope{
		ProjectID: r.URL.Query().Get("projectId"),
		ThreadID:  chi.URLParam(r, "threadID"),
	}
	return h.engine.Open(r.Context(), scope)
}

// projectSession opens the thread of r for the project named in the
// query. It fails when the project is missing or differs from the one the
// thread is already open for.
func (h *Handler) projectSession(r *http.Request) (*confirm.Session, error) {
	if strings.TrimSpace(r.URL.Query().Get("projectId")) == "" {
		return nil, errMissingProject
	}
	return h.session(r)
}

func (h *Handler) listActions(w http.ResponseWriter, r *http.Request) {
	s, err := h.session(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	list := s.Actions()
	resp := actionsResponse{
		ThreadID:  s.Scope().ThreadID,
		ProjectID: s.Scope().ProjectID,
		Pending:   len(s.Pending()),
		Actions:   make([]actionView, 0, len(list)),
	}
	for _, a := range list {
		resp.Actions = append(resp.Actions, actionView{Action: a, Summary: actions.Summarize(a)})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) confirmAction(w http.ResponseWriter, r *http.Request) {
	s, err := h.projectSession(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	clientID := chi.URLParam(r, "clientID")
	res, err := s.Confirm(r.Context(), clientID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	a, _ := s.Get(clientID)
	writeJSON(w, http.StatusOK, confirmResponse{Result: res, Action: a})
}

func (h *Handler) rejectAction(w http.ResponseWriter, r *http.Request) {
	s, err := h.projectSession(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	clientID := chi.URLParam(r, "clientID")
	if err := s.Reject(r.Context(), clientID); err != nil {
		h.writeError(w, r, err)
		return
	}
	a, _ := s.Get(clientID)
	writeJSON(w, http.StatusOK, map[string]any{"action": a})
}

func (h *Handler) confirmAll(w http.ResponseWriter, r *http.Request) {
	s, err := h.projectSession(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.ConfirmAll(r.Context()))
}

func (h *Handler) rejectAll(w http.ResponseWriter, r *http.Request) {
	s, err := h.projectSession(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.RejectAll(r.Context()))
}

func (h *Handler) closeThread(w http.ResponseWriter, r *http.Request) {
	out := h.engine.Leave(r.Context(), chi.URLParam(r, "threadID"))
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) ingestToolCalls(w http.ResponseWriter, r *http.Request) {
	if h.ingester == nil {
		writeErr(w, http.StatusNotImplemented, "not_supported", "tool-call ingestion is not enabled")
		return
	}
	var body struct {
		ToolCalls []actions.RawToolCall `json:"toolCalls"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&body); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}
	threadID := chi.URLParam(r, "threadID")
	stored, err := h.ingester.IngestToolCalls(r.Context(), threadID, body.ToolCalls)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.engine.Refresh(r.Context(), threadID); err != nil && !errors.Is(err, confirm.ErrNotFound) {
		observability.From(r.Context(), h.logger).Warn("refresh after ingest failed", "thread_id", threadID, "err", err)
	}
	writeJSON(w, http.StatusAccepted, ingestResponse{Stored: len(stored)})
}
