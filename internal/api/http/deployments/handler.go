package deployments

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/gitter-badger/deployer-1/internal/domain/deployment"
	"github.com/gitter-badger/deployer-1/internal/logger"
	"github.com/gitter-badger/deployer-1/internal/version"
)

// Service abstracts the business operations the REST layer depends on.
type Service interface {
	ListAll(ctx context.Context) ([]deployment.DeployedUnit, error)
	FindByContextRoot(ctx context.Context, root deployment.ContextRoot) (deployment.DeployedUnit, error)
	AvailableVersions(ctx context.Context, root deployment.ContextRoot) ([]deployment.Version, error)
	ResolveChecksum(ctx context.Context, cs deployment.Checksum) (deployment.ArtifactLocation, error)
	ListVersions(ctx context.Context, cs deployment.Checksum) ([]deployment.Version, error)
	DeployChecksum(ctx context.Context, cs deployment.Checksum, name string) (deployment.DeployedUnit, error)
	RedeployChecksum(ctx context.Context, root deployment.ContextRoot, cs deployment.Checksum) (deployment.DeployedUnit, error)
	RedeployVersion(ctx context.Context, root deployment.ContextRoot, version deployment.Version) (deployment.DeployedUnit, error)
	Upsert(ctx context.Context, root deployment.ContextRoot, cs deployment.Checksum) (deployment.DeployedUnit, bool, error)
	UndeployContextRoot(ctx context.Context, root deployment.ContextRoot) (deployment.DeployedUnit, error)
}

// Options tune the router.
type Options struct {
	// AllowedOrigins for CORS; all origins when empty.
	AllowedOrigins []string
	// RequestTimeout bounds each request; zero disables the bound.
	RequestTimeout time.Duration
}

// Handler serves the REST API.
type Handler struct {
	service Service
}

// unitBody is the JSON form of a deployed unit.
type unitBody struct {
	Name        string               `json:"name"`
	ContextRoot string               `json:"contextRoot"`
	Checksum    string               `json:"checksum,omitempty"`
	Version     string               `json:"version,omitempty"`
	Versions    []deployment.Version `json:"availableVersions,omitempty"`
}

// upsertBody is the PUT /deployments/{contextRoot} payload.
type upsertBody struct {
	ContextRoot string `json:"contextRoot"`
	Checksum    string `json:"checksum"`
}

// versionBody is the PUT /deployments/{contextRoot}/version payload.
type versionBody struct {
	Version string `json:"version"`
}

// artifactBody is the JSON form of a resolved checksum.
type artifactBody struct {
	Checksum    string `json:"checksum"`
	Path        string `json:"path"`
	DownloadURI string `json:"downloadUri"`
	Version     string `json:"version,omitempty"`
}

// New creates a handler over service.
func New(service Service) *Handler {
	return &Handler{service: service}
}

// Routes builds the router.
func (h *Handler) Routes(opts Options) http.Handler {
	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
		ExposedHeaders: []string{"Location"},
	}))

	if opts.RequestTimeout > 0 {
		r.Use(middleware.Timeout(opts.RequestTimeout))
	}

	r.Get("/version", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, version.Current())
	})

	r.Route("/deployments", func(r chi.Router) {
		r.Get("/", h.ListDeployments)
		r.Post("/", h.PostDeployments)
		r.Route("/{contextRoot}", func(r chi.Router) {
			r.Get("/", h.GetDeployment)
			r.Put("/", h.PutDeployment)
			r.Post("/", h.PostDeployment)
			r.Delete("/", h.DeleteDeployment)
			r.Put("/version", h.PutVersion)
		})
	})

	r.Route("/checksums/{checksum}", func(r chi.Router) {
		r.Get("/", h.GetChecksum)
		r.Get("/versions", h.GetChecksumVersions)
	})

	return r
}

func toBody(unit deployment.DeployedUnit) unitBody {
	return unitBody{
		Name:        unit.Name,
		ContextRoot: unit.ContextRoot.String(),
		Checksum:    unit.Checksum.Hex(),
		Version:     unit.Version.String(),
	}
}

func contextRootParam(r *http.Request) deployment.ContextRoot {
	return deployment.NormalizeContextRoot(chi.URLParam(r, "contextRoot"))
}

func checksumParam(r *http.Request) (deployment.Checksum, error) {
	return deployment.ParseChecksum(chi.URLParam(r, "checksum"))
}

// withRequester records the caller for auditing.
func withRequester(r *http.Request) context.Context {
	principal, _, _ := r.BasicAuth()

	return deployment.WithRequester(r.Context(), deployment.Requester{
		Principal: principal,
		ClientIP:  r.RemoteAddr,
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := StatusCode(err)
	if code >= http.StatusInternalServerError {
		logger.ErrorKV(r.Context(), "Request failed", "error", err)
	}

	writeJSON(w, code, map[string]string{"error": err.Error()})
}

// StatusCode maps a service error to an HTTP status.
func StatusCode(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, deployment.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, deployment.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, deployment.ErrAmbiguousResult):
		return http.StatusConflict
	case errors.Is(err, deployment.ErrExecutionTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, deployment.ErrExecutionInterrupted), errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}

// requestLogger scopes the context logger to the request and logs its outcome.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := logger.WithFields(r.Context(),
			"request_id", middleware.GetReqID(r.Context()),
			"method", r.Method,
			"path", r.URL.Path,
		)

		wrapped := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(wrapped, r.WithContext(ctx))

		logger.DebugKV(ctx, "Request served", "status", wrapped.Status(), "duration", time.Since(start))
	})
}
