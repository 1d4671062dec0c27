package usecase

import (
	"context"
	"fmt"

	"github.com/kirillkom/knowledge-assistant/internal/core/domain"
	"github.com/kirillkom/knowledge-assistant/internal/core/ports"
	"github.com/kirillkom/knowledge-assistant/internal/core/tools"
)

const (
	ToolKnowledgeSearch = "knowledge_search"
	ToolWebSearch       = "web_search"
)

type profileContextKey struct{}

// WithAgentProfile makes the running agent's profile visible to tools.
func WithAgentProfile(ctx context.Context, profile domain.AgentProfile) context.Context {
	return context.WithValue(ctx, profileContextKey{}, profile)
}

func agentProfileFrom(ctx context.Context) (domain.AgentProfile, bool) {
	profile, ok := ctx.Value(profileContextKey{}).(domain.AgentProfile)
	return profile, ok
}

// KnowledgeSearchTool exposes the RAG pipeline to agents.
type KnowledgeSearchTool struct {
	rag ports.RAGService
}

func NewKnowledgeSearchTool(rag ports.RAGService) *KnowledgeSearchTool {
	return &KnowledgeSearchTool{rag: rag}
}

func (t *KnowledgeSearchTool) Schema() tools.Schema {
	return tools.NewSchema(ToolKnowledgeSearch,
		"Search the user's knowledge base (notes, documents, transcripts) and return context with numbered citations.",
		map[string]tools.Param{
			"query":          {Type: tools.TypeString, Description: "Search query in natural language."},
			"top_k":          {Type: tools.TypeNumber, Description: "Number of chunks to keep after ranking (1-10)."},
			"reputable_only": {Type: tools.TypeBoolean, Description: "Exclude personal notes and keep documents and transcripts only."},
			"use_web_search": {
				Type:        tools.TypeString,
				Description: "Web search policy for this lookup.",
				Enum:        []string{string(domain.WebSearchAuto), string(domain.WebSearchAlways), string(domain.WebSearchNever)},
			},
		},
		"query",
	)
}

func (t *KnowledgeSearchTool) Access() tools.AccessLevel {
	return tools.AccessAll
}

func (t *KnowledgeSearchTool) Execute(ctx context.Context, params map[string]any) (any, error) {
	req := domain.RAGRequest{
		Query:     tools.StringParam(params, "query", ""),
		WebSearch: domain.WebSearchMode(tools.StringParam(params, "use_web_search", string(domain.WebSearchAuto))),
	}
	if profile, ok := agentProfileFrom(ctx); ok {
		if profile.Retrieval != nil {
			override := *profile.Retrieval
			req.Retrieval = &override
		}
		req.ReputableOnly = profile.ReputableOnly
	}
	req.ReputableOnly = tools.BoolParam(params, "reputable_only", req.ReputableOnly)
	if topK := tools.IntParam(params, "top_k", 0); topK > 0 {
		if topK > 10 {
			topK = 10
		}
		if req.Retrieval == nil {
			req.Retrieval = &domain.RetrievalParams{}
		}
		req.Retrieval.TopK = topK
		req.Retrieval.MaxFinalChunks = topK
	}

	result, err := t.rag.ProcessQuery(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("knowledge search: %w", err)
	}
	return result, nil
}

// WebSearchTool queries the web-search oracle directly.
type WebSearchTool struct {
	searcher   ports.WebSearcher
	maxResults int
}

func NewWebSearchTool(searcher ports.WebSearcher, maxResults int) *WebSearchTool {
	if maxResults <= 0 {
		maxResults = defaultWebMaxResults
	}
	return &WebSearchTool{searcher: searcher, maxResults: maxResults}
}

func (t *WebSearchTool) Schema() tools.Schema {
	return tools.NewSchema(ToolWebSearch,
		"Search the public web for recent or external information.",
		map[string]tools.Param{
			"query":       {Type: tools.TypeString, Description: "Web search query."},
			"max_results": {Type: tools.TypeNumber, Description: "Maximum number of results (1-10)."},
		},
		"query",
	)
}

func (t *WebSearchTool) Access() tools.AccessLevel {
	return tools.AccessRestricted
}

func (t *WebSearchTool) Execute(ctx context.Context, params map[string]any) (any, error) {
	limit := tools.IntParam(params, "max_results", t.maxResults)
	if limit <= 0 || limit > 10 {
		limit = t.maxResults
	}
	results, err := t.searcher.Search(ctx, tools.StringParam(params, "query", ""), limit)
	if err != nil {
		return nil, fmt.Errorf("web search: %w", err)
	}
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}
