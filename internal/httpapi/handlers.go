package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"opsfloww.io/internal/audit"
	"opsfloww.io/internal/auth"
	"opsfloww.io/internal/config"
	"opsfloww.io/internal/obs"
	"opsfloww.io/internal/work"
)

const serviceName = "opsfloww-api"

// ReadinessChecker reports whether dependencies are reachable.
type ReadinessChecker interface {
	Check(ctx context.Context) error
}

// Pinger is satisfied by the document store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ReadyProbe pings the primary store. The revocation backend never fails readiness
// because it degrades to memory on its own.
type ReadyProbe struct {
	Store Pinger
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.Store == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return rp.Store.Ping(ctx)
}

// Deps are the collaborators the HTTP layer is built on.
type Deps struct {
	Config    config.Config
	Auth      *auth.Service
	Work      work.Store
	Resources auth.ResourceLoader
	Audit     *audit.Recorder
	Ready     ReadinessChecker
	// RevocationBackend reports the active revocation store for /readyz.
	RevocationBackend func() string
	Version           string
}

// API is the HTTP layer.
type API struct {
	router     *mux.Router
	cfg        config.Config
	auth       *auth.Service
	work       work.Store
	resources  auth.ResourceLoader
	audit      *audit.Recorder
	readiness  ReadinessChecker
	revBackend func() string
	version    string
	limiter    *ipLimiter
}

func New(d Deps) *API {
	a := &API{
		router:     mux.NewRouter(),
		cfg:        d.Config,
		auth:       d.Auth,
		work:       d.Work,
		resources:  d.Resources,
		audit:      d.Audit,
		readiness:  d.Ready,
		revBackend: d.RevocationBackend,
		version:    d.Version,
		limiter:    newIPLimiter(d.Config.RateLimitBurst, d.Config.RateLimitPerSec),
	}
	if a.readiness == nil {
		a.readiness = ReadyProbe{}
	}
	if a.revBackend == nil {
		a.revBackend = func() string { return "none" }
	}
	if a.audit == nil {
		a.audit = audit.NewRecorder(nil)
	}
	a.routes()
	return a
}

func (a *API) routes() {
	r := a.router
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "Can't find "+r.URL.Path+" on this server!")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.HandleFunc("/healthz", a.Healthz).Methods(http.MethodGet)
	r.HandleFunc("/readyz", a.Ready).Methods(http.MethodGet)
	r.Handle("/metrics", obs.Handler()).Methods(http.MethodGet)

	v1 := r.PathPrefix("/api/v1").Subrouter()
	v1.HandleFunc("/info", a.Info).Methods(http.MethodGet)

	authR := v1.PathPrefix("/auth").Subrouter()
	authR.Use(a.rateLimit)
	authR.HandleFunc("/signup", a.handleSignup).Methods(http.MethodPost)
	authR.HandleFunc("/signin", a.handleSignin).Methods(http.MethodPost)
	authR.HandleFunc("/logout", a.handleLogout).Methods(http.MethodPost)
	authR.HandleFunc("/forgot-password", a.handleForgotPassword).Methods(http.MethodPost)
	authR.HandleFunc("/reset-password", a.handleResetPassword).Methods(http.MethodPatch)
	authR.HandleFunc("/reset-password/{token}", a.handleResetPassword).Methods(http.MethodPatch)
	authR.HandleFunc("/verify-email/{token}", a.handleVerifyEmail).Methods(http.MethodPatch)
	authR.HandleFunc("/refresh-token", a.handleRefresh).Methods(http.MethodPost)
	authR.Handle("/me", a.guard(a.handleMe)).Methods(http.MethodGet)
	authR.Handle("/update-me", a.guard(a.handleUpdateMe)).Methods(http.MethodPatch)
	authR.Handle("/update-password", a.guard(a.handleUpdatePassword)).Methods(http.MethodPatch)
	authR.Handle("/settings", a.guard(a.handleGetSettings)).Methods(http.MethodGet)
	authR.Handle("/settings", a.guard(a.handleUpdateSettings)).Methods(http.MethodPatch)
	authR.Handle("/resend-verification", a.guard(a.handleResendVerification)).Methods(http.MethodPost)
	authR.Handle("/2fa/setup", a.guard(a.handleTwoFactorSetup)).Methods(http.MethodPost)
	authR.Handle("/2fa/enable", a.guard(a.handleTwoFactorEnable)).Methods(http.MethodPost)
	authR.Handle("/2fa/disable", a.guard(a.handleTwoFactorDisable)).Methods(http.MethodPost)

	v1.Handle("/projects", a.guard(a.listProjects)).Methods(http.MethodGet)
	v1.Handle("/projects", a.guard(a.createProject,
		a.requirePermission(auth.KindProject, auth.ActionCreate))).Methods(http.MethodPost)
	v1.Handle("/projects/{id}", a.guard(a.getProject,
		a.loadResource(auth.KindProject, "id"), a.requirePermission(auth.KindProject, auth.ActionRead))).Methods(http.MethodGet)
	v1.Handle("/projects/{id}", a.guard(a.updateProject,
		a.loadResource(auth.KindProject, "id"), a.requirePermission(auth.KindProject, auth.ActionUpdate))).Methods(http.MethodPatch)
	v1.Handle("/projects/{id}", a.guard(a.deleteProject,
		a.loadResource(auth.KindProject, "id"), a.requirePermission(auth.KindProject, auth.ActionDelete))).Methods(http.MethodDelete)
	v1.Handle("/projects/{id}/members", a.guard(a.addProjectMember,
		a.loadResource(auth.KindProject, "id"), a.requirePermission(auth.KindProject, auth.ActionUpdate))).Methods(http.MethodPost)
	v1.Handle("/projects/{id}/members/{userId}", a.guard(a.removeProjectMember,
		a.loadResource(auth.KindProject, "id"), a.requirePermission(auth.KindProject, auth.ActionUpdate))).Methods(http.MethodDelete)
	v1.Handle("/projects/{id}/tasks", a.guard(a.listTasks,
		a.loadResource(auth.KindProject, "id"), a.requirePermission(auth.KindProject, auth.ActionRead))).Methods(http.MethodGet)
	v1.Handle("/projects/{id}/tasks", a.guard(a.createTask,
		a.loadResource(auth.KindProject, "id"), a.requirePermission(auth.KindTask, auth.ActionCreate))).Methods(http.MethodPost)

	v1.Handle("/tasks/{id}", a.guard(a.getTask,
		a.loadResource(auth.KindTask, "id"), a.requirePermission(auth.KindTask, auth.ActionRead))).Methods(http.MethodGet)
	v1.Handle("/tasks/{id}", a.guard(a.updateTask,
		a.loadResource(auth.KindTask, "id"), a.requirePermission(auth.KindTask, auth.ActionUpdate))).Methods(http.MethodPatch)
	v1.Handle("/tasks/{id}", a.guard(a.deleteTask,
		a.loadResource(auth.KindTask, "id"), a.requirePermission(auth.KindTask, auth.ActionDelete))).Methods(http.MethodDelete)

	v1.Handle("/teams", a.guard(a.createTeam,
		a.requirePermission(auth.KindTeam, auth.ActionCreate))).Methods(http.MethodPost)
	v1.Handle("/teams/{id}", a.guard(a.getTeam,
		a.loadResource(auth.KindTeam, "id"), a.requirePermission(auth.KindTeam, auth.ActionRead))).Methods(http.MethodGet)
	v1.Handle("/teams/{id}", a.guard(a.updateTeam,
		a.loadResource(auth.KindTeam, "id"), a.requirePermission(auth.KindTeam, auth.ActionUpdate))).Methods(http.MethodPatch)
	v1.Handle("/teams/{id}", a.guard(a.deleteTeam,
		a.loadResource(auth.KindTeam, "id"), a.requirePermission(auth.KindTeam, auth.ActionDelete))).Methods(http.MethodDelete)

	v1.Handle("/users/{id}", a.guard(a.getUser,
		a.loadResource(auth.KindUser, "id"), a.requirePermission(auth.KindUser, auth.ActionRead))).Methods(http.MethodGet)
	v1.Handle("/users/{id}", a.guard(a.updateUser,
		a.loadResource(auth.KindUser, "id"), a.requirePermission(auth.KindUser, auth.ActionUpdate))).Methods(http.MethodPatch)
	v1.Handle("/users/{id}", a.guard(a.deactivateUser,
		a.loadResource(auth.KindUser, "id"), a.requirePermission(auth.KindUser, auth.ActionDelete))).Methods(http.MethodDelete)
}

// Handler returns the fully wrapped handler for the server.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.router
	h = MaxBodyBytes(h, 1<<20)
	h = handlers.CORS(
		handlers.AllowedOrigins([]string{a.cfg.CORSOrigin}),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Content-Type", "Authorization", "X-Request-ID"}),
		handlers.AllowCredentials(),
	)(h)
	h = SecurityHeaders(h)
	h = handlers.RecoveryHandler(
		handlers.RecoveryLogger(obs.Logger()),
		handlers.PrintRecoveryStack(true),
	)(h)
	h = LoggingJSON(h)
	if a.cfg.TrustProxy {
		h = handlers.ProxyHeaders(h)
	}
	h = RequestID(h)
	h = otelhttp.NewHandler(h, serviceName)
	return obs.Instrument(h)
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": serviceName,
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readiness.Check(r.Context()); err != nil {
		obs.SetReady(false)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status":     "not_ready",
			"error":      err.Error(),
			"revocation": a.revBackend(),
		})
		return
	}
	obs.SetReady(true)
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "ready",
		"revocation": a.revBackend(),
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeSuccess(w, http.StatusOK, map[string]any{
		"name":    serviceName,
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
		"env":     a.cfg.Env,
	})
}
