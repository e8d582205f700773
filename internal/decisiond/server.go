package decisiond

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/vyrodovalexey/catalog-authz/internal/observability"
	"github.com/vyrodovalexey/catalog-authz/internal/pdp"
)

const policyTypeStatic = "STATIC"

// Handler serves the decision service API from an engine.
type Handler struct {
	engine *Engine
	logger observability.Logger
	router chi.Router
}

// NewHandler creates the HTTP handler.
func NewHandler(engine *Engine, logger observability.Logger) *Handler {
	if logger == nil {
		logger = observability.NopLogger()
	}

	h := &Handler{engine: engine, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(h.logRequests)

	r.Get("/healthz", h.healthz)
	r.Route("/policy-stores/{storeID}", func(r chi.Router) {
		r.Use(h.requireStore)
		r.Post("/is-authorized", h.isAuthorized)
		r.Get("/policies/{policyID}", h.getPolicy)
	})

	h.router = r
	return h
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

func (h *Handler) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":        "healthy",
		"policyStoreId": h.engine.Store().PolicyStoreID,
		"policies":      len(h.engine.Store().Policies),
	})
}

func (h *Handler) requireStore(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if chi.URLParam(r, "storeID") != h.engine.Store().PolicyStoreID {
			writeJSON(w, http.StatusNotFound, pdp.ErrorOutput{Message: "policy store not found"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) isAuthorized(w http.ResponseWriter, r *http.Request) {
	var in pdp.IsAuthorizedInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, pdp.ErrorOutput{Message: "invalid request body: " + err.Error()})
		return
	}
	if in.Principal.EntityID == "" || in.Action.ActionID == "" || in.Resource.EntityType == "" {
		writeJSON(w, http.StatusBadRequest, pdp.ErrorOutput{Message: "principal, action and resource are required"})
		return
	}

	out := h.engine.Evaluate(r.Context(), NewInput(&in))

	h.logger.WithContext(r.Context()).Debug("request evaluated",
		observability.String("principal", in.Principal.EntityID),
		observability.String("action", in.Action.ActionID),
		observability.String("resource", in.Resource.EntityType+"/"+in.Resource.EntityID),
		observability.String("decision", out.Decision),
		observability.Int("determining_policies", len(out.DeterminingPolicies)),
		observability.Int("errors", len(out.Errors)),
	)

	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) getPolicy(w http.ResponseWriter, r *http.Request) {
	store := h.engine.Store()
	p, ok := store.Policy(chi.URLParam(r, "policyID"))
	if !ok {
		writeJSON(w, http.StatusNotFound, pdp.ErrorOutput{Message: "policy not found"})
		return
	}

	writeJSON(w, http.StatusOK, pdp.GetPolicyOutput{
		PolicyID:      p.ID,
		PolicyStoreID: store.PolicyStoreID,
		PolicyType:    policyTypeStatic,
		Definition: pdp.PolicyDefinition{Static: &pdp.StaticPolicyDefinition{
			Description: p.Description,
			Statement:   p.Statement(),
		}},
		LastUpdated: store.loadedAt.Format(time.RFC3339),
	})
}

func (h *Handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		ctx := observability.ContextWithRequestID(r.Context(), middleware.GetReqID(r.Context()))

		next.ServeHTTP(ww, r.WithContext(ctx))

		h.logger.WithContext(ctx).Info("request completed",
			observability.String("method", r.Method),
			observability.String("path", r.URL.Path),
			observability.Int("status", ww.Status()),
			observability.Duration("latency", time.Since(start)),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set(pdp.HeaderContentType, pdp.ContentTypeJSON)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
