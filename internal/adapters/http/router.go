package httpadapter

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/knowledge-assistant/internal/config"
	"github.com/kirillkom/knowledge-assistant/internal/core/domain"
	"github.com/kirillkom/knowledge-assistant/internal/core/ports"
	"github.com/kirillkom/knowledge-assistant/internal/infrastructure/ratelimit"
	"github.com/kirillkom/knowledge-assistant/internal/observability/metrics"
)

const (
	serviceName     = "api"
	maxRequestBytes = 1 << 20
	maxTopK         = 50
)

type Router struct {
	rag      ports.RAGService
	agent    ports.AgentRunner
	profiles *config.AgentProfiles
	metrics  *metrics.HTTPServerMetrics
	limiter  *ratelimit.KeyedLimiter
}

func NewRouter(
	cfg config.Config,
	rag ports.RAGService,
	agent ports.AgentRunner,
	profiles *config.AgentProfiles,
	m *metrics.HTTPServerMetrics,
) *Router {
	if profiles == nil {
		profiles, _ = config.NewAgentProfiles(domain.AgentProfile{Name: config.DefaultAgentName})
	}
	var limiter *ratelimit.KeyedLimiter
	if cfg.APIRateLimitRPS > 0 {
		limiter = ratelimit.NewKeyedLimiter(ratelimit.Config{
			RefillRate: cfg.APIRateLimitRPS,
			Capacity:   cfg.APIRateLimitBurst,
			IdleTTL:    cfg.APIRateLimitIdleTTL,
		})
	}
	return &Router{
		rag:      rag,
		agent:    agent,
		profiles: profiles,
		metrics:  m,
		limiter:  limiter,
	}
}

// Limiter exposes the per-client limiter so the process can evict idle buckets.
func (rt *Router) Limiter() *ratelimit.KeyedLimiter {
	return rt.limiter
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	mux.HandleFunc("/v1/rag/query", rt.queryRAG)
	mux.HandleFunc("/v1/agent/run", rt.runAgent)
	if rt.metrics != nil {
		mux.Handle("/metrics", rt.metrics.Handler())
	}

	var onLimited func(string)
	if rt.metrics != nil {
		onLimited = func(path string) { rt.metrics.RecordRateLimited(serviceName, path) }
	}

	var handler http.Handler = mux
	handler = rateLimitMiddleware(handler, rt.limiter, onLimited)
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(serviceName, handler)
	}
	handler = accessLogMiddleware(handler)
	return requestIDMiddleware(handler)
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type ragQueryRequest struct {
	Query         string `json:"query"`
	Agent         string `json:"agent"`
	TopK          int    `json:"top_k"`
	UseWebSearch  string `json:"use_web_search"`
	ReputableOnly bool   `json:"reputable_only"`
}

func (rt *Router) queryRAG(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed"})
		return
	}

	var req ragQueryRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	ragReq, err := rt.buildRAGRequest(req)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}

	start := time.Now()
	result, err := rt.rag.ProcessQuery(r.Context(), ragReq)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	if rt.metrics != nil {
		rt.metrics.RecordRAGObservation(serviceName, metrics.RAGObservation{
			QueryType:        string(result.Metadata.QueryType),
			Complexity:       string(result.Metadata.Complexity),
			RetrievalSkipped: result.Metadata.RetrievalSkipped,
			WebSearchUsed:    result.Metadata.WebSearchUsed,
			ChunksRetrieved:  result.Metadata.ChunksRetrieved,
			Duration:         time.Since(start),
		})
	}
	writeJSON(w, http.StatusOK, result)
}

func (rt *Router) buildRAGRequest(req ragQueryRequest) (domain.RAGRequest, error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return domain.RAGRequest{}, domain.WrapError(domain.ErrInvalidInput, "rag query", fmt.Errorf("query is required"))
	}
	profile, err := rt.profile(req.Agent)
	if err != nil {
		return domain.RAGRequest{}, err
	}
	mode, err := parseWebSearchMode(req.UseWebSearch)
	if err != nil {
		return domain.RAGRequest{}, err
	}
	if req.TopK < 0 || req.TopK > maxTopK {
		return domain.RAGRequest{}, domain.WrapError(domain.ErrInvalidInput, "rag query", fmt.Errorf("top_k must be between 1 and %d", maxTopK))
	}

	out := domain.RAGRequest{
		Query:         query,
		ReputableOnly: profile.ReputableOnly || req.ReputableOnly,
		WebSearch:     mode,
	}
	if profile.Retrieval != nil {
		override := *profile.Retrieval
		out.Retrieval = &override
	}
	if req.TopK > 0 {
		if out.Retrieval == nil {
			out.Retrieval = &domain.RetrievalParams{}
		}
		out.Retrieval.TopK = req.TopK
		out.Retrieval.MaxFinalChunks = req.TopK
	}
	return out, nil
}

type agentRunRequest struct {
	Query string `json:"query"`
	Agent string `json:"agent"`
}

func (rt *Router) runAgent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed"})
		return
	}

	var req agentRunRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	profile, err := rt.profile(req.Agent)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}

	result, err := rt.agent.Run(r.Context(), domain.AgentRequest{Query: req.Query, Profile: profile})
	if err != nil {
		if rt.metrics != nil {
			rt.metrics.RecordAgentRun(serviceName, profile.Name, "error", 0)
		}
		rt.writeError(w, r, err)
		return
	}
	if rt.metrics != nil {
		status := "completed"
		if result.FallbackReason != "" {
			status = result.FallbackReason
		}
		rt.metrics.RecordAgentRun(serviceName, profile.Name, status, result.Iterations)
	}
	writeJSON(w, http.StatusOK, result)
}

func (rt *Router) profile(name string) (domain.AgentProfile, error) {
	profile, ok := rt.profiles.Get(name)
	if !ok {
		return domain.AgentProfile{}, domain.WrapError(domain.ErrInvalidInput, "resolve agent", fmt.Errorf("unknown agent %q", name))
	}
	return profile, nil
}

func parseWebSearchMode(raw string) (domain.WebSearchMode, error) {
	switch mode := domain.WebSearchMode(strings.ToLower(strings.TrimSpace(raw))); mode {
	case "", domain.WebSearchAuto:
		return domain.WebSearchAuto, nil
	case domain.WebSearchAlways, domain.WebSearchNever:
		return mode, nil
	default:
		return "", domain.WrapError(domain.ErrInvalidInput, "rag query", fmt.Errorf("use_web_search must be auto, always or never"))
	}
}

type errorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

func (rt *Router) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := mapErrorToHTTPStatus(err)
	requestID := requestIDFromContext(r.Context())
	if status >= http.StatusInternalServerError {
		slog.Error("request_failed", "request_id", requestID, "path", r.URL.Path, "status", status, "error", err.Error())
	}
	writeJSON(w, status, errorResponse{Error: publicErrorMessage(status, err), RequestID: requestID})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid json", RequestID: requestIDFromContext(r.Context())})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
