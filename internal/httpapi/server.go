package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"edgeforge/internal/orchestrator"
	"edgeforge/internal/registry"
	"edgeforge/pkg/types"
)

// Service defines the methods required by the HTTP API layer.
// *manager.Manager satisfies it.
type Service interface {
	Submit(req types.BuildRequest) (*types.BuildRecord, error)
	Get(id string) (*types.BuildRecord, error)
	List() []types.BuildRecord
	Plan(req types.BuildRequest) (*orchestrator.Plan, error)
	Packages() ([]types.PackageRecord, error)
	Ready() bool
}

func NewMux(svc Service) http.Handler {
	r := chi.NewRouter()
	// Basic middlewares: request id, real ip, recoverer
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	// Compression for JSON endpoints
	r.Use(middleware.Compress(5))
	// Security headers
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})
	if corsEnabled {
		r.Use(cors.Handler(corsOptions()))
	}
	r.Use(MetricsMiddleware)
	r.Use(requestLog)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/builds", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]any{"builds": svc.List()})
		})

		r.Post("/builds", func(w http.ResponseWriter, r *http.Request) {
			req, ok := decodeBuildRequest(w, r)
			if !ok {
				return
			}
			rec, err := svc.Submit(req)
			if err != nil {
				writeServiceError(w, err)
				return
			}
			logEvent(r, "build accepted",
				"build_id", rec.ID, "model", rec.ModelName, "quant", rec.Quant)
			writeJSON(w, http.StatusAccepted, rec)
		})

		r.Get("/builds/{id}", func(w http.ResponseWriter, r *http.Request) {
			rec, err := svc.Get(chi.URLParam(r, "id"))
			if err != nil {
				writeServiceError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, rec)
		})

		r.Post("/plan", func(w http.ResponseWriter, r *http.Request) {
			req, ok := decodeBuildRequest(w, r)
			if !ok {
				return
			}
			plan, err := svc.Plan(req)
			if err != nil {
				writeServiceError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, plan)
		})

		r.Get("/packages", func(w http.ResponseWriter, r *http.Request) {
			pkgs, err := svc.Packages()
			if err != nil {
				writeServiceError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"packages": pkgs})
		})

		r.Get("/packages/{name}", func(w http.ResponseWriter, r *http.Request) {
			pkgs, err := svc.Packages()
			if err != nil {
				writeServiceError(w, err)
				return
			}
			rec, ok := registry.Find(pkgs, chi.URLParam(r, "name"))
			if !ok {
				writeJSONError(w, http.StatusNotFound, "no such package")
				return
			}
			writeJSON(w, http.StatusOK, rec)
		})
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if svc.Ready() {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("ready"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("draining"))
	})

	// Prometheus metrics endpoint
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	return r
}

// decodeBuildRequest enforces content type and body size, decodes the
// request and normalizes the task alias. A false return means the error
// response was already written.
func decodeBuildRequest(w http.ResponseWriter, r *http.Request) (types.BuildRequest, bool) {
	var req types.BuildRequest
	ct := r.Header.Get("Content-Type")
	if ct == "" || !strings.HasPrefix(strings.ToLower(ct), "application/json") {
		writeJSONError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
		return req, false
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return req, false
	}
	if req.Task != "" {
		task, err := types.ParseTaskType(string(req.Task))
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, err.Error())
			return req, false
		}
		req.Task = task
	}
	return req, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil && zlog != nil {
		zlog.Error().Err(err).Msg("encode response")
	}
}
