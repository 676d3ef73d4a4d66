package httpx

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"log/slog"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/prescottprue/tessellate-sub000/internal/identity"
	"github.com/prescottprue/tessellate-sub000/internal/service/project"
	"github.com/prescottprue/tessellate-sub000/internal/service/provision"
	"github.com/prescottprue/tessellate-sub000/internal/ws"
)

// Router wires HTTP endpoints to the project lifecycle.
type Router struct {
	mux         *http.ServeMux
	logger      *slog.Logger
	lifecycle   project.Lifecycle
	events      *ws.Hub
	upgrader    websocket.Upgrader
	limiter     RateLimiter
	tokenSecret string
	dbHealth    func(context.Context) error

	metricsOnce        sync.Once
	metricsInitialized bool
	requestTotal       *prometheus.CounterVec
	requestLatency     *prometheus.HistogramVec
	rateLimitHits      *prometheus.CounterVec
}

const (
	rateWindowDefault  = time.Minute
	rateWindowRealtime = 30 * time.Second
	rateLimitSignup    = 5
	rateLimitLogin     = 12
	rateLimitWrite     = 60
	rateLimitRead      = 120
	rateLimitWebsocket = 30
	healthCheckTimeout = 2 * time.Second
)

// NewRouter assembles routes with dependencies.
func NewRouter(logger *slog.Logger, lifecycle project.Lifecycle, events *ws.Hub, limiter RateLimiter, tokenSecret string, dbHealth func(context.Context) error) *Router {
	r := &Router{
		mux:       http.NewServeMux(),
		logger:    logger,
		lifecycle: lifecycle,
		events:    events,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		limiter:     limiter,
		tokenSecret: tokenSecret,
		dbHealth:    dbHealth,
	}
	if r.limiter == nil {
		r.limiter = NewMemoryRateLimiter()
	}
	r.initMetrics()
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
	r.mux.HandleFunc("/healthz", r.audit(r.handleHealthz))
	r.mux.Handle("/metrics", promhttp.Handler())
	r.mux.HandleFunc("/projects", r.audit(r.handlerAuthRate("/projects", rateLimitWrite, rateWindowDefault, r.handleProjects)))
	r.mux.HandleFunc("/projects/", r.audit(r.handleProjectSubroutes))
	r.mux.HandleFunc("/ws/events", r.audit(r.handlerAuthRate("/ws/events", rateLimitWebsocket, rateWindowRealtime, r.handleEventsWS)))
	r.mux.HandleFunc("/events/", r.audit(r.handlerAuthRate("/events/", rateLimitRead, rateWindowDefault, r.handleEventsSSE)))
}

// handleProjects serves POST /projects.
func (r *Router) handleProjects(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	info, _ := authInfoFromContext(req.Context())
	var payload struct {
		Name     string `json:"name"`
		Template *struct {
			Name string `json:"name"`
			Type string `json:"type"`
		} `json:"template"`
		Delegate *struct {
			BaseURL string `json:"baseUrl"`
			Realm   string `json:"realm"`
			APIKey  string `json:"apiKey"`
		} `json:"delegate"`
	}
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	input := project.CreateInput{Name: payload.Name, OwnerID: info.AccountID}
	if payload.Template != nil {
		input.Template = &provision.TemplateRef{Name: payload.Template.Name, Type: payload.Template.Type}
	}
	if payload.Delegate != nil {
		input.Delegate = &project.DelegateInput{
			BaseURL: payload.Delegate.BaseURL,
			Realm:   payload.Delegate.Realm,
			APIKey:  payload.Delegate.APIKey,
		}
	}
	proj, err := r.lifecycle.Create(req.Context(), input)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, projectResponse(proj))
}

// handleProjectSubroutes dispatches /projects/{name}[/...]. Login,
// signup and logout are unauthenticated account-facing calls; the
// rest require a bearer token.
func (r *Router) handleProjectSubroutes(w http.ResponseWriter, req *http.Request) {
	trimmed := strings.TrimPrefix(req.URL.Path, "/projects/")
	parts := strings.SplitN(trimmed, "/", 2)
	name := parts[0]
	if name == "" {
		r.notFound(w)
		return
	}
	rest := ""
	if len(parts) == 2 {
		rest = parts[1]
	}
	switch rest {
	case "":
		r.handleProject(w, req, name)
	case "login":
		r.withRateLimit("/projects/login", rateLimitLogin, rateWindowDefault, rateLimitKeyIP, func(w http.ResponseWriter, req *http.Request) {
			r.handleLogin(w, req, name)
		})(w, req)
	case "signup":
		r.withRateLimit("/projects/signup", rateLimitSignup, rateWindowDefault, rateLimitKeyIP, func(w http.ResponseWriter, req *http.Request) {
			r.handleSignup(w, req, name)
		})(w, req)
	case "logout":
		r.handleLogout(w, req, name)
	case "collaborators":
		r.handlerAuthRate("/projects/collaborators", rateLimitWrite, rateWindowDefault, func(w http.ResponseWriter, req *http.Request) {
			r.handleCollaborators(w, req, name)
		})(w, req)
	case "groups":
		r.handlerAuthRate("/projects/groups", rateLimitWrite, rateWindowDefault, func(w http.ResponseWriter, req *http.Request) {
			r.handleGroups(w, req, name)
		})(w, req)
	default:
		r.notFound(w)
	}
}

func (r *Router) handleProject(w http.ResponseWriter, req *http.Request, name string) {
	switch req.Method {
	case http.MethodGet:
		r.handlerAuthRate("/projects/get", rateLimitRead, rateWindowDefault, func(w http.ResponseWriter, req *http.Request) {
			proj, err := r.lifecycle.Get(req.Context(), name)
			if err != nil {
				writeDomainError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, projectResponse(proj))
		})(w, req)
	case http.MethodDelete:
		r.handlerAuthRate("/projects/delete", rateLimitWrite, rateWindowDefault, func(w http.ResponseWriter, req *http.Request) {
			if err := r.lifecycle.Delete(req.Context(), name); err != nil {
				writeDomainError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
		})(w, req)
	default:
		r.methodNotAllowed(w)
	}
}

func (r *Router) handleLogin(w http.ResponseWriter, req *http.Request, name string) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	var payload struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	login := payload.Username
	if login == "" {
		login = payload.Email
	}
	result, err := r.lifecycle.Login(req.Context(), name, identity.Credentials{Login: login, Password: payload.Password})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, loginResponse(result))
}

func (r *Router) handleSignup(w http.ResponseWriter, req *http.Request, name string) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	var payload struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	result, err := r.lifecycle.Signup(req.Context(), name, identity.SignupData{
		Username: payload.Username,
		Email:    payload.Email,
		Password: payload.Password,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, loginResponse(result))
}

func (r *Router) handleLogout(w http.ResponseWriter, req *http.Request, name string) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	var payload struct {
		Username string `json:"username"`
	}
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	username := payload.Username
	if username == "" {
		if info, ok := authInfoFromContext(req.Context()); ok {
			username = info.Username
		}
	}
	// logout never fails the client
	_ = r.lifecycle.Logout(req.Context(), name, username)
	writeJSON(w, http.StatusOK, map[string]string{"status": "logged out"})
}

func (r *Router) handleCollaborators(w http.ResponseWriter, req *http.Request, name string) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	var payload struct {
		Usernames []string `json:"usernames"`
	}
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	proj, err := r.lifecycle.AddCollaborators(req.Context(), name, payload.Usernames)
	if err != nil && proj == nil {
		writeDomainError(w, err)
		return
	}
	resp := map[string]any{"project": projectResponse(proj)}
	if err != nil {
		// partial success: resolved collaborators were linked, the
		// rest are reported
		resp["errors"] = strings.Split(err.Error(), "\n")
	}
	writeJSON(w, http.StatusOK, resp)
}

func (r *Router) handleGroups(w http.ResponseWriter, req *http.Request, name string) {
	var payload struct {
		Name    string `json:"name"`
		NewName string `json:"newName"`
	}
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	desc := identity.GroupDescriptor{Name: payload.Name, NewName: payload.NewName}
	switch req.Method {
	case http.MethodPost:
		group, err := r.lifecycle.AddGroup(req.Context(), name, desc)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, groupResponse(group))
	case http.MethodPut:
		group, err := r.lifecycle.UpdateGroup(req.Context(), name, desc)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, groupResponse(group))
	case http.MethodDelete:
		if err := r.lifecycle.DeleteGroup(req.Context(), name, desc); err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	default:
		r.methodNotAllowed(w)
	}
}

// handleEventsWS streams provisioning events over a websocket.
func (r *Router) handleEventsWS(w http.ResponseWriter, req *http.Request) {
	projectName := req.URL.Query().Get("project")
	if projectName == "" {
		writeError(w, http.StatusBadRequest, "project query parameter required")
		return
	}
	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.logger.Error("websocket upgrade failed", "error", err)
		return
	}
	client := ws.NewClient(conn, r.logger)
	r.events.Register(projectName, client)
	go func() {
		defer func() {
			r.events.Unregister(projectName, client)
			client.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
	}()
}

// handleEventsSSE streams provisioning events as Server-Sent Events.
func (r *Router) handleEventsSSE(w http.ResponseWriter, req *http.Request) {
	projectName := strings.TrimPrefix(req.URL.Path, "/events/")
	if projectName == "" {
		r.notFound(w)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	headers := w.Header()
	headers.Set("Content-Type", "text/event-stream")
	headers.Set("Cache-Control", "no-cache")
	headers.Set("Connection", "keep-alive")
	flusher.Flush()

	client := ws.NewSSEClient(w, flusher, r.logger)
	r.events.Register(projectName, client)
	defer func() {
		r.events.Unregister(projectName, client)
		client.Close()
	}()

	heartbeat := time.NewTicker(25 * time.Second)
	defer heartbeat.Stop()
	for {
		select {
		case <-req.Context().Done():
			return
		case <-heartbeat.C:
			if err := client.Heartbeat(); err != nil {
				return
			}
		}
	}
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
			components["database"] = map[string]any{
				"status": "down",
				"error":  err.Error(),
			}
		} else {
			components["database"] = map[string]any{"status": "up"}
		}
	}
	payload := map[string]any{
		"status":     status,
		"components": components,
		"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
	}
	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, payload)
}

func (r *Router) audit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w}
		start := time.Now()
		next(recorder, req)

		status := recorder.status
		if status == 0 {
			status = http.StatusOK
		}
		duration := time.Since(start)
		r.recordRequestMetrics(req.Method, routeLabel(req.URL.Path), status, duration)
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

// routeLabel collapses per-project paths so metric cardinality stays
// bounded.
func routeLabel(path string) string {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) == 0 || parts[0] == "" {
		return "/"
	}
	switch parts[0] {
	case "projects":
		if len(parts) == 1 {
			return "/projects"
		}
		if len(parts) > 2 {
			return "/projects/{name}/" + parts[2]
		}
		return "/projects/{name}"
	case "events":
		return "/events/{name}"
	}
	return "/" + parts[0]
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	n, err := sr.ResponseWriter.Write(b)
	sr.bytes += n
	return n, err
}

func (sr *statusRecorder) Flush() {
	if f, ok := sr.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (sr *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := sr.ResponseWriter.(http.Hijacker); ok {
		return h.Hijack()
	}
	return nil, nil, errors.New("hijacker not supported")
}

func clientIP(req *http.Request) string {
	if forwarded := strings.TrimSpace(req.Header.Get("X-Forwarded-For")); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		if len(parts) > 0 {
			ip := strings.TrimSpace(parts[0])
			if ip != "" {
				return ip
			}
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(req.RemoteAddr))
	if err != nil {
		return strings.TrimSpace(req.RemoteAddr)
	}
	return host
}

func (r *Router) methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func (r *Router) notFound(w http.ResponseWriter) {
	writeError(w, http.StatusNotFound, "not found")
}
