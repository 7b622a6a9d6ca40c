package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/hashicorp/go-hclog"

	"github.com/bryanwahyu/cbomkit/internal/application/cboms"
	"github.com/bryanwahyu/cbomkit/internal/application/compliance"
	"github.com/bryanwahyu/cbomkit/internal/application/errorcode"
	appscanning "github.com/bryanwahyu/cbomkit/internal/application/scanning"
	aidomain "github.com/bryanwahyu/cbomkit/internal/domain/ai"
	"github.com/bryanwahyu/cbomkit/internal/domain/cbom"
	domain "github.com/bryanwahyu/cbomkit/internal/domain/scanning"
	"github.com/bryanwahyu/cbomkit/internal/middleware"
)

// Options carries the services and middleware the router mounts.
type Options struct {
	Scans      *appscanning.Service
	CBOMs      *cboms.Service
	Compliance *compliance.Service

	Metrics        *middleware.Metrics
	Readiness      *middleware.Readiness
	HealthCheckers map[string]middleware.HealthChecker
	RateLimiter    *middleware.RateLimiter
	ErrorCodes     *errorcode.Generator
	APIKeys        map[string]string
	AllowedOrigins []string
	Version        string
	Logger         hclog.Logger
}

type Router struct {
	scans      *appscanning.Service
	cboms      *cboms.Service
	compliance *compliance.Service
	codes      *errorcode.Generator
	sessions   *Sessions
	origins    []string
	logger     hclog.Logger
}

func NewRouter(opts Options) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	codes := opts.ErrorCodes
	if codes == nil {
		codes = errorcode.New(nil)
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = middleware.NewMetrics()
	}
	readiness := opts.Readiness
	if readiness == nil {
		readiness = &middleware.Readiness{}
	}
	r := &Router{
		scans:      opts.Scans,
		cboms:      opts.CBOMs,
		compliance: opts.Compliance,
		codes:      codes,
		sessions:   NewSessions(),
		origins:    opts.AllowedOrigins,
		logger:     logger,
	}

	mux := chi.NewRouter()
	mux.Use(middleware.Logging(logger))
	mux.Use(metrics.Middleware)
	mux.Use(cors.Handler(cors.Options{
		AllowedOrigins: opts.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "Authorization", middleware.APIKeyHeader},
		MaxAge:         300,
	}))

	mux.Get("/health", middleware.HealthHandler(opts.Version, opts.HealthCheckers))
	mux.Method(http.MethodGet, "/ready", readiness)
	mux.Get("/live", middleware.LivenessHandler)
	mux.Get("/metrics", metrics.Handler)

	mux.Get("/v1/scan/{clientId}", r.handleScanSocket)

	auth := middleware.APIKeyAuth(opts.APIKeys)
	mux.Route("/api/v1", func(rt chi.Router) {
		if opts.RateLimiter != nil {
			rt.Use(middleware.RateLimit(opts.RateLimiter))
		}
		rt.Get("/cbom/last/{limit}", r.wrap(r.handleLastCBOMs))
		rt.Get("/cbom/*", r.wrap(r.handleGetCBOM))
		rt.With(auth).Post("/cbom/*", r.wrap(r.handleStoreCBOM))
		rt.With(auth).Delete("/cbom/*", r.wrap(r.handleDeleteCBOM))

		rt.With(auth).Post("/scans", r.wrap(r.handleStartScan))
		rt.Get("/scans/{scanId}", r.wrap(r.handleGetScan))

		rt.Get("/compliance/assets", r.wrap(r.handleAssets))
		rt.With(auth).Post("/compliance/assessment", r.wrap(r.handleAssessment))
	})

	return mux
}

type handlerFunc func(http.ResponseWriter, *http.Request) error

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func (r *Router) wrap(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		err := h(w, req)
		if err == nil {
			return
		}
		status, kind := classify(err)
		resp := errorResponse{Error: err.Error()}
		if status == http.StatusInternalServerError {
			resp.Code = r.codes.Next(kind)
			resp.Error = "internal error"
			r.logger.Error("request failed", "method", req.Method, "path", req.URL.Path, "code", resp.Code, "error", err)
		}
		writeJSON(w, status, resp)
	}
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, cbom.ErrNotFound), errors.Is(err, domain.ErrEntityNotFound):
		return http.StatusNotFound, "NOTFOUND"
	case errors.Is(err, aidomain.ErrQuotaExceeded):
		return http.StatusTooManyRequests, "QUOTA"
	case errors.Is(err, middleware.ErrInvalidInput),
		errors.Is(err, cboms.ErrInvalidLimit),
		errors.Is(err, cboms.ErrInvalidCBOM),
		errors.Is(err, cboms.ErrProjectIdentifierRequired),
		errors.Is(err, domain.ErrMissingCoordinates),
		errors.Is(err, errBadRequest):
		return http.StatusBadRequest, "VALIDATION"
	default:
		return http.StatusInternalServerError, "INTERNAL"
	}
}

var errBadRequest = errors.New("bad request")

func writeJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}

// projectIdentifier reads the path-escaped identifier after /cbom/.
func projectIdentifier(req *http.Request) (string, error) {
	raw := chi.URLParam(req, "*")
	id, err := url.PathUnescape(raw)
	if err != nil {
		return "", errors.Join(errBadRequest, err)
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return "", cboms.ErrProjectIdentifierRequired
	}
	return id, nil
}

// GET /api/v1/cbom/last/{limit}
func (r *Router) handleLastCBOMs(w http.ResponseWriter, req *http.Request) error {
	limit, err := strconv.Atoi(chi.URLParam(req, "limit"))
	if err != nil {
		return cboms.ErrInvalidLimit
	}
	list, err := r.cboms.ListRecent(req.Context(), limit)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, list)
}

// GET /api/v1/cbom/{projectIdentifier}
func (r *Router) handleGetCBOM(w http.ResponseWriter, req *http.Request) error {
	id, err := projectIdentifier(req)
	if err != nil {
		return err
	}
	model, err := r.cboms.Get(req.Context(), id)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, model)
}

// POST /api/v1/cbom/{projectIdentifier}
// Body: a CycloneDX JSON document
func (r *Router) handleStoreCBOM(w http.ResponseWriter, req *http.Request) error {
	id, err := projectIdentifier(req)
	if err != nil {
		return err
	}
	body, err := readBody(w, req)
	if err != nil {
		return err
	}
	model, err := r.cboms.Store(req.Context(), id, body)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusCreated, model)
}

// DELETE /api/v1/cbom/{projectIdentifier}
func (r *Router) handleDeleteCBOM(w http.ResponseWriter, req *http.Request) error {
	id, err := projectIdentifier(req)
	if err != nil {
		return err
	}
	if err := r.cboms.Delete(req.Context(), id); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

// POST /api/v1/scans
// Body: {"scanUrl": "...", "branch": "...", "subfolder": "...", "credentials": {...}}
// The scan runs in the background; poll GET /api/v1/scans/{scanId}.
func (r *Router) handleStartScan(w http.ResponseWriter, req *http.Request) error {
	var body appscanning.StartRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		return errors.Join(errBadRequest, err)
	}
	if err := validateStart(body); err != nil {
		return err
	}
	saga, err := r.scans.Start(req.Context(), body, nil)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusAccepted, map[string]any{
		"scanId": saga.ID(),
		"status": "queued",
	})
}

// GET /api/v1/scans/{scanId}
func (r *Router) handleGetScan(w http.ResponseWriter, req *http.Request) error {
	raw := chi.URLParam(req, "scanId")
	if err := middleware.ValidateScanID(raw); err != nil {
		return err
	}
	id, err := domain.ParseScanID(raw)
	if err != nil {
		return errors.Join(errBadRequest, err)
	}
	agg, err := r.scans.Status(req.Context(), id)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, agg.Snapshot())
}

// GET /api/v1/compliance/assets?project=
func (r *Router) handleAssets(w http.ResponseWriter, req *http.Request) error {
	project := strings.TrimSpace(req.URL.Query().Get("project"))
	if project == "" {
		return cboms.ErrProjectIdentifierRequired
	}
	assets, err := r.compliance.Assets(req.Context(), project)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, map[string]any{"project": project, "assets": assets})
}

// POST /api/v1/compliance/assessment?project=
func (r *Router) handleAssessment(w http.ResponseWriter, req *http.Request) error {
	project := strings.TrimSpace(req.URL.Query().Get("project"))
	if project == "" {
		return cboms.ErrProjectIdentifierRequired
	}
	out, err := r.compliance.Assess(req.Context(), project)
	if err != nil {
		return err
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, err = w.Write([]byte(out))
	return err
}

func validateStart(body appscanning.StartRequest) error {
	if err := middleware.ValidateScanURL(body.ScanURL); err != nil {
		return err
	}
	return middleware.ValidateSubfolder(body.Subfolder)
}
