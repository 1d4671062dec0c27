package domain

type SourceType string

const (
	SourceNote     SourceType = "note"
	SourceDocument SourceType = "document"
	SourceYouTube  SourceType = "youtube"
	SourceWeb      SourceType = "web"
)

func (s SourceType) Valid() bool {
	switch s {
	case SourceNote, SourceDocument, SourceYouTube, SourceWeb:
		return true
	default:
		return false
	}
}

// Chunk is an immutable retrievable text unit produced by ingestion.
type Chunk struct {
	ID          string     `json:"id"`
	SourceType  SourceType `json:"source_type"`
	SourceID    string     `json:"source_id"`
	SourceTitle string     `json:"source_title,omitempty"`
	ChunkIndex  int        `json:"chunk_index"`
	Text        string     `json:"text"`
	TokenCount  int        `json:"token_count"`
}

// RankedResult is one entry of a producer's ranking. Score direction depends
// on the producer: vector distance is lower-is-better, BM25 and cross-encoder
// scores are higher-is-better.
type RankedResult struct {
	ChunkID string  `json:"chunk_id"`
	Score   float64 `json:"score"`
	Rank    int     `json:"rank"`
}

type SearchFilter struct {
	ExcludeSourceType SourceType
}

// RetrievedChunk is a chunk flowing through the retrieval pipeline together
// with the signals collected for it.
type RetrievedChunk struct {
	Chunk
	// Distance is the vector distance when the chunk came from semantic search,
	// -1 when it was only found lexically.
	Distance    float64 `json:"distance"`
	FusedScore  float64 `json:"fused_score"`
	RerankScore float64 `json:"rerank_score"`
	Reranked    bool    `json:"reranked"`
}

type Citation struct {
	DisplayIndex int        `json:"display_index"`
	SourceType   SourceType `json:"source_type"`
	SourceID     string     `json:"source_id"`
	SourceTitle  string     `json:"source_title"`
	ChunkIndex   int        `json:"chunk_index"`
	Distance     float64    `json:"distance"`
	URL          string     `json:"url,omitempty"`
}

type WebResult struct {
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
	URL     string `json:"url"`
}
