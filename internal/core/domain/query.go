package domain

type QueryType string

const (
	QueryFactual     QueryType = "factual"
	QueryConceptual  QueryType = "conceptual"
	QueryComparative QueryType = "comparative"
	QueryProcedural  QueryType = "procedural"
	QueryExploratory QueryType = "exploratory"
)

type Complexity string

const (
	ComplexitySimple   Complexity = "simple"
	ComplexityModerate Complexity = "moderate"
	ComplexityComplex  Complexity = "complex"
)

// WebSearchDecision keeps the analyzer's recommendation three-valued:
// Undecided defers to the confidence threshold downstream.
type WebSearchDecision string

const (
	WebSearchUndecided WebSearchDecision = "undecided"
	WebSearchYes       WebSearchDecision = "true"
	WebSearchNo        WebSearchDecision = "false"
)

type RetrievalParams struct {
	InitialK       int `json:"initial_k" yaml:"initial_k"`
	TopK           int `json:"top_k" yaml:"top_k"`
	MaxFinalChunks int `json:"max_final_chunks" yaml:"max_final_chunks"`
}

type QueryAnalysis struct {
	QueryType       QueryType         `json:"query_type"`
	Complexity      Complexity        `json:"complexity"`
	RetrievalParams RetrievalParams   `json:"retrieval_params"`
	NeedsWebSearch  WebSearchDecision `json:"needs_web_search"`
	NeedsRetrieval  bool              `json:"needs_retrieval"`
}

// WebSearchMode is the caller's explicit override for web search.
type WebSearchMode string

const (
	WebSearchAuto   WebSearchMode = "auto"
	WebSearchAlways WebSearchMode = "always"
	WebSearchNever  WebSearchMode = "never"
)

type RAGRequest struct {
	Query string
	// Retrieval overrides the analyzer's breadth when non-nil.
	Retrieval     *RetrievalParams
	ReputableOnly bool
	WebSearch     WebSearchMode
}

type RAGMetadata struct {
	RetrievalSkipped bool       `json:"retrieval_skipped,omitempty"`
	QueryType        QueryType  `json:"query_type,omitempty"`
	Complexity       Complexity `json:"complexity,omitempty"`
	ChunksRetrieved  int        `json:"chunks_retrieved"`
	UniqueSources    int        `json:"unique_sources"`
	WebSearchUsed    bool       `json:"web_search_used"`
	Reranked         bool       `json:"reranked,omitempty"`
}

type RAGResult struct {
	Context   string      `json:"context"`
	Citations []Citation  `json:"citations"`
	Metadata  RAGMetadata `json:"metadata"`
}
