package httpx

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/splax/stackgen/internal/domain"
	"github.com/splax/stackgen/internal/service/artifact"
	"github.com/splax/stackgen/internal/service/history"
	"github.com/splax/stackgen/internal/ws"
)

// Router wires HTTP endpoints to services.
type Router struct {
	mux        *http.ServeMux
	logger     *slog.Logger
	artifacts  artifact.Service
	history    history.Service
	hub        *ws.Hub
	upgrader   websocket.Upgrader
	limiter    RateLimiter
	authSecret string
	dbHealth   func(context.Context) error
	metrics    *apiMetrics
}

const (
	rateWindowDefault  = time.Minute
	rateWindowRealtime = 30 * time.Second
	rateLimitGenerate  = 20
	rateLimitWrite     = 60
	rateLimitRead      = 120
	rateLimitWebsocket = 30
	healthCheckTimeout = 2 * time.Second
)

// NewRouter assembles routes with dependencies. An empty authSecret leaves
// mutating endpoints open.
func NewRouter(logger *slog.Logger, artifactSvc artifact.Service, historySvc history.Service, hub *ws.Hub, limiter RateLimiter, authSecret string, dbHealth func(context.Context) error) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Router{
		mux:       http.NewServeMux(),
		logger:    logger,
		artifacts: artifactSvc,
		history:   historySvc,
		hub:       hub,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		limiter:    limiter,
		authSecret: strings.TrimSpace(authSecret),
		dbHealth:   dbHealth,
		metrics:    loadMetrics(),
	}
	if r.limiter == nil {
		r.limiter = NewMemoryRateLimiter()
	}
	r.register()
	return r
}

// ServeHTTP delegates to underlying mux.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// Close releases background resources.
func (r *Router) Close() {
	if r.limiter != nil {
		r.limiter.Close()
	}
}

func (r *Router) register() {
	r.mux.HandleFunc("/healthz", r.audit("/healthz", r.handleHealthz))
	r.mux.Handle("/metrics", promhttp.Handler())
	r.mux.HandleFunc("/api/generate", r.audit("/api/generate",
		r.requireAuth(r.withRateLimit(rateRule{"/api/generate", rateLimitGenerate, rateWindowDefault}, r.handleGenerate))))
	r.mux.HandleFunc("/api/gitcommands", r.audit("/api/gitcommands", r.handleHistoryCollection))
	r.mux.HandleFunc("/api/gitcommands/", r.audit("/api/gitcommands/{id}", r.handleHistoryItem))
	r.mux.HandleFunc("/ws/history", r.audit("/ws/history",
		r.withRateLimit(rateRule{"/ws/history", rateLimitWebsocket, rateWindowRealtime}, r.handleHistoryWS)))
}

type generatePayload struct {
	Type    string          `json:"type"`
	Owner   string          `json:"owner"`
	Repo    string          `json:"repo"`
	Token   string          `json:"token"`
	Options json.RawMessage `json:"options"`
	Commit  *bool           `json:"commit"`
}

func (r *Router) handleGenerate(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	var payload generatePayload
	if !decodeJSON(w, req, &payload) {
		return
	}
	username := ""
	if info, ok := authInfoFromContext(req.Context()); ok {
		username = info.Subject
	}

	resp, err := r.artifacts.Execute(req.Context(), artifact.Request{
		Kind:     payload.Type,
		Owner:    payload.Owner,
		Repo:     payload.Repo,
		Token:    payload.Token,
		Options:  payload.Options,
		Commit:   payload.Commit,
		Username: username,
	})
	if err != nil {
		status := statusFor(err)
		body := map[string]any{"success": false, "error": err.Error()}
		if resp.Outcome != nil {
			status = http.StatusInternalServerError
			body["error"] = resp.Outcome.ErrorMessage
			body["file"] = resp.Artifact
			body["output"] = resp.Outcome.Output
			if resp.HistoryID != "" {
				body["historyId"] = resp.HistoryID
			}
		} else if status == http.StatusInternalServerError {
			r.logger.Error("generate failed", "error", err)
			body["error"] = "internal error"
		}
		writeJSON(w, status, body)
		return
	}

	body := map[string]any{
		"success": true,
		"file":    resp.Artifact,
	}
	if resp.HistoryID != "" {
		body["historyId"] = resp.HistoryID
	}
	if resp.Outcome != nil {
		body["message"] = fmt.Sprintf("%s committed to %s/%s", resp.Artifact.FileName, strings.TrimSpace(payload.Owner), strings.TrimSpace(payload.Repo))
		body["githubUrl"] = resp.Outcome.RemoteURL
		body["branch"] = resp.Outcome.Branch
		body["output"] = resp.Outcome.Output
	} else {
		body["message"] = resp.Artifact.FileName + " generated successfully"
	}
	writeJSON(w, http.StatusOK, body)
}

func (r *Router) handleHistoryCollection(w http.ResponseWriter, req *http.Request) {
	switch req.Method {
	case http.MethodGet:
		r.withRateLimit(rateRule{"/api/gitcommands", rateLimitRead, rateWindowDefault}, r.handleHistoryList)(w, req)
	case http.MethodPost:
		r.requireAuth(r.withRateLimit(rateRule{"/api/gitcommands", rateLimitWrite, rateWindowDefault}, r.handleHistoryCreate))(w, req)
	default:
		r.methodNotAllowed(w)
	}
}

func (r *Router) handleHistoryList(w http.ResponseWriter, req *http.Request) {
	query := req.URL.Query()
	filter := domain.HistoryFilter{Owner: query.Get("owner"), Repo: query.Get("repo")}
	if raw := strings.TrimSpace(query.Get("limit")); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		filter.Limit = limit
	}
	records, err := r.history.List(req.Context(), filter)
	if err != nil {
		r.logger.Error("list history failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to fetch commands")
		return
	}
	views := make([]history.View, 0, len(records))
	for _, record := range records {
		views = append(views, history.ToView(record))
	}
	writeJSON(w, http.StatusOK, views)
}

func (r *Router) handleHistoryCreate(w http.ResponseWriter, req *http.Request) {
	var payload struct {
		Username string `json:"username"`
		Token    string `json:"token"`
		Owner    string `json:"owner"`
		Repo     string `json:"repo"`
		Command  string `json:"command"`
		Output   string `json:"output"`
		Status   string `json:"status"`
	}
	if !decodeJSON(w, req, &payload) {
		return
	}
	record, err := r.history.Create(req.Context(), history.CreateInput{
		Username: payload.Username,
		Token:    payload.Token,
		Owner:    payload.Owner,
		Repo:     payload.Repo,
		Command:  payload.Command,
		Output:   payload.Output,
		Status:   payload.Status,
	})
	if err != nil {
		r.writeServiceError(w, "create history", err)
		return
	}
	writeJSON(w, http.StatusCreated, history.ToView(record))
}

func (r *Router) handleHistoryItem(w http.ResponseWriter, req *http.Request) {
	id := strings.Trim(strings.TrimPrefix(req.URL.Path, "/api/gitcommands/"), "/")
	if id == "" || strings.Contains(id, "/") {
		r.notFound(w)
		return
	}
	switch req.Method {
	case http.MethodGet:
		r.withRateLimit(rateRule{"/api/gitcommands/{id}", rateLimitRead, rateWindowDefault}, func(w http.ResponseWriter, req *http.Request) {
			record, err := r.history.Get(req.Context(), id)
			if err != nil {
				r.writeServiceError(w, "get history", err)
				return
			}
			writeJSON(w, http.StatusOK, history.ToView(record))
		})(w, req)
	case http.MethodPut, http.MethodPatch:
		r.requireAuth(r.withRateLimit(rateRule{"/api/gitcommands/{id}", rateLimitWrite, rateWindowDefault}, func(w http.ResponseWriter, req *http.Request) {
			var payload struct {
				Command *string `json:"command"`
				Output  *string `json:"output"`
				Status  *string `json:"status"`
			}
			if !decodeJSON(w, req, &payload) {
				return
			}
			record, err := r.history.Update(req.Context(), id, history.UpdateInput{
				Command: payload.Command,
				Output:  payload.Output,
				Status:  payload.Status,
			})
			if err != nil {
				r.writeServiceError(w, "update history", err)
				return
			}
			writeJSON(w, http.StatusOK, history.ToView(record))
		}))(w, req)
	case http.MethodDelete:
		r.requireAuth(r.withRateLimit(rateRule{"/api/gitcommands/{id}", rateLimitWrite, rateWindowDefault}, func(w http.ResponseWriter, req *http.Request) {
			if err := r.history.Delete(req.Context(), id); err != nil {
				r.writeServiceError(w, "delete history", err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]string{"message": "Command deleted successfully"})
		}))(w, req)
	default:
		r.methodNotAllowed(w)
	}
}

func (r *Router) handleHistoryWS(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	if r.hub == nil {
		writeError(w, http.StatusServiceUnavailable, "history stream unavailable")
		return
	}
	topic := strings.TrimSpace(req.URL.Query().Get("repo"))
	if topic == "" {
		topic = ws.AllTopics
	} else if owner, repo, ok := strings.Cut(topic, "/"); !ok || owner == "" || repo == "" || strings.Contains(repo, "/") {
		writeError(w, http.StatusBadRequest, "repo must be owner/repo")
		return
	}
	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.logger.Error("websocket upgrade failed", "error", err)
		return
	}
	client := ws.NewClient(conn, r.logger)
	r.hub.Register(topic, client)
	r.metrics.streamOpened()
	go func() {
		defer r.metrics.streamClosed()
		defer r.hub.Unregister(topic, client)
		client.Serve()
	}()
}

func (r *Router) handleHealthz(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	components := make(map[string]any)
	status := "ok"
	if r.dbHealth != nil {
		ctx, cancel := context.WithTimeout(req.Context(), healthCheckTimeout)
		defer cancel()
		if err := r.dbHealth(ctx); err != nil {
			status = "degraded"
			components["database"] = map[string]any{"status": "down", "error": err.Error()}
		} else {
			components["database"] = map[string]any{"status": "up"}
		}
	}
	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{
		"status":     status,
		"components": components,
		"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
	})
}

func (r *Router) writeServiceError(w http.ResponseWriter, op string, err error) {
	status := statusFor(err)
	switch status {
	case http.StatusNotFound:
		writeError(w, status, "Command not found")
	case http.StatusInternalServerError:
		r.logger.Error(op+" failed", "error", err)
		writeError(w, status, "internal error")
	default:
		writeError(w, status, err.Error())
	}
}

func (r *Router) audit(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w}
		start := time.Now()
		next(recorder, req)

		status := recorder.status
		if status == 0 {
			status = http.StatusOK
		}
		ctx := recorder.ctx
		if ctx == nil {
			ctx = req.Context()
		}
		duration := time.Since(start)
		r.metrics.observeRequest(req.Method, route, status, duration)

		fields := []any{
			"method", req.Method,
			"path", req.URL.Path,
			"status", status,
			"bytes", recorder.bytes,
			"duration_ms", duration.Milliseconds(),
		}
		if ip := clientIP(req); ip != "" {
			fields = append(fields, "ip", ip)
		}
		if reqID := strings.TrimSpace(req.Header.Get("X-Request-ID")); reqID != "" {
			fields = append(fields, "request_id", reqID)
		}
		if info, ok := authInfoFromContext(ctx); ok {
			fields = append(fields, "subject", info.Subject)
		}

		switch {
		case status >= http.StatusInternalServerError:
			r.logger.Error("http_request", fields...)
		case status >= http.StatusBadRequest:
			r.logger.Warn("http_request", fields...)
		default:
			r.logger.Info("http_request", fields...)
		}
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
	ctx    context.Context
}

func (sr *statusRecorder) WriteHeader(code int) {
	if sr.status == 0 {
		sr.status = code
	}
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	if sr.status == 0 {
		sr.status = http.StatusOK
	}
	n, err := sr.ResponseWriter.Write(b)
	sr.bytes += n
	return n, err
}

func (sr *statusRecorder) SetContext(ctx context.Context) {
	sr.ctx = ctx
}

func (sr *statusRecorder) Flush() {
	if f, ok := sr.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Hijack lets the websocket upgrader take over the connection.
func (sr *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := sr.ResponseWriter.(http.Hijacker); ok {
		sr.status = http.StatusSwitchingProtocols
		return h.Hijack()
	}
	return nil, nil, errors.New("hijacker not supported")
}

func (r *Router) methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func (r *Router) notFound(w http.ResponseWriter) {
	writeError(w, http.StatusNotFound, "not found")
}
